// Package logging sets up structured JSON logging for semsearch.
//
// Logs go to a size-rotated file under ~/.semsearch/logs/ and, unless the
// process is serving MCP over stdio, are also copied to stderr. The viewer
// reads those files back for `semsearch logs`.
package logging
