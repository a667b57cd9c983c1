// Package index turns documents on disk into stored passage records.
//
// An Indexer parses a file, splits it into overlapping passages, embeds all
// passages in one call and replaces the file's records in the store. A
// directory run streams files from the scanner into a sequential indexing
// stage; a failing file is counted and skipped.
package index

import (
	"github.com/Aman-CERP/semsearch/internal/chunk"
	"github.com/Aman-CERP/semsearch/internal/errors"
	"github.com/Aman-CERP/semsearch/internal/scanner"
)

// Parser extracts text from a file.
type Parser interface {
	Parse(path string) (string, error)
}

// Observer receives per-file progress. Implementations must be safe to call
// from the indexing goroutine.
type Observer interface {
	// FileStarted is called before a file is parsed. n counts files seen so
	// far, starting at 1.
	FileStarted(path string, n int)

	// FileIndexed is called after a file's records are stored.
	FileIndexed(path string, chunks int)

	// FileFailed is called when a file is skipped because of err.
	FileFailed(path string, err error)
}

// Config controls chunking and file selection.
type Config struct {
	Chunk chunk.Options

	// Extensions used by IndexDirectory when the caller passes none.
	Extensions []string

	// ExcludeDirs are directory name patterns never descended into.
	ExcludeDirs []string

	// IgnoreFiles name the gitignore-style files honoured during a walk.
	IgnoreFiles []string
}

// DefaultConfig uses the 512/100 window and .md/.txt/.pdf. Every matching
// file is indexed; exclusions and ignore files are opt-in.
func DefaultConfig() Config {
	return Config{
		Chunk:      chunk.DefaultOptions(),
		Extensions: scanner.DefaultExtensions,
	}
}

// Result summarises a directory run.
type Result struct {
	Indexed int      `json:"indexed"`
	Failed  int      `json:"failed"`
	Files   []string `json:"files"`
}

// PartialFailure returns an ERR_506 warning when some files failed, or nil.
func (r *Result) PartialFailure() error {
	if r == nil || r.Failed == 0 {
		return nil
	}
	return errors.PartialIndex(r.Failed, r.Indexed+r.Failed)
}

// Stats describes the collection.
type Stats struct {
	TotalChunks    int    `json:"total_chunks"`
	CollectionName string `json:"collection_name"`
}

type noopObserver struct{}

func (noopObserver) FileStarted(string, int)  {}
func (noopObserver) FileIndexed(string, int)  {}
func (noopObserver) FileFailed(string, error) {}
