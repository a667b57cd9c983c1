// Package scanner discovers documents to index under a directory tree.
// It streams matches over a channel so indexing can start before the walk
// finishes.
package scanner

import (
	"strings"
	"time"
)

// FileInfo describes a discovered document.
type FileInfo struct {
	Path      string    // Relative to the scan root
	AbsPath   string    // Absolute path
	Extension string    // Lowercase, with leading dot
	Size      int64     // Bytes
	ModTime   time.Time // Last modification
}

// Options configures a scan.
type Options struct {
	// Root is the directory to walk.
	Root string

	// Extensions to include. Matching is case-insensitive and a missing
	// leading dot is added. Empty means DefaultExtensions.
	Extensions []string

	// ExcludeDirs are filepath.Match patterns tested against each directory
	// name below the root, e.g. ".*" for hidden directories or "vendor".
	// Matching directories are not descended into. Empty walks everything.
	ExcludeDirs []string

	// IgnoreFiles are file names, such as ".gitignore", read in every
	// visited directory for gitignore-style patterns. Patterns apply to the
	// directory holding the file and everything below it. Empty disables
	// ignore files.
	IgnoreFiles []string

	// FollowSymlinks includes symlinked files. Symlinked directories are
	// never descended into.
	FollowSymlinks bool
}

// ScanResult is sent on the scan channel. Exactly one of File or Error is set.
type ScanResult struct {
	File  *FileInfo
	Error error
}

// DefaultExtensions are the document types indexed when none are given.
var DefaultExtensions = []string{".md", ".txt", ".pdf"}

// NormalizeExtensions lowercases extensions and adds the leading dot.
// Blank entries and duplicates are dropped; order is kept.
func NormalizeExtensions(exts []string) []string {
	seen := make(map[string]bool, len(exts))
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" || e == "." {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}
