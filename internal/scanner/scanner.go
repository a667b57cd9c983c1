package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/semsearch/internal/errors"
	"github.com/Aman-CERP/semsearch/internal/gitignore"
)

// resultBuffer lets the walk run ahead of a slow consumer.
const resultBuffer = 64

// Scan walks opts.Root and streams every regular file whose extension is in
// opts.Extensions. The channel is closed when the walk finishes or ctx is
// cancelled. Files are emitted in lexical order.
//
// A missing root is reported synchronously with an ERR_201 error.
func Scan(ctx context.Context, opts Options) (<-chan ScanResult, error) {
	root := opts.Root
	if root == "" {
		root = "."
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound(root, err).WithSuggestion("check the directory path")
		}
		return nil, fmt.Errorf("failed to stat root directory: %w", err)
	}
	if !info.IsDir() {
		return nil, errors.New(errors.ErrCodeInvalidPath, fmt.Sprintf("not a directory: %s", root), nil)
	}

	exts := NormalizeExtensions(opts.Extensions)
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	extSet := make(map[string]bool, len(exts))
	for _, e := range exts {
		extSet[e] = true
	}

	var excluded []string
	for _, pattern := range opts.ExcludeDirs {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if _, err := filepath.Match(pattern, ""); err != nil {
			return nil, errors.New(errors.ErrCodeInvalidInput,
				fmt.Sprintf("invalid exclude_dirs pattern %q", pattern), err)
		}
		excluded = append(excluded, pattern)
	}

	results := make(chan ScanResult, resultBuffer)
	go func() {
		defer close(results)
		w := &walker{
			root:        absRoot,
			exts:        extSet,
			excluded:    excluded,
			follow:      opts.FollowSymlinks,
			ignoreFiles: opts.IgnoreFiles,
			ignore:      gitignore.New(),
		}
		w.walk(ctx, results)
	}()
	return results, nil
}

type walker struct {
	root        string
	exts        map[string]bool
	excluded    []string
	follow      bool
	ignoreFiles []string
	ignore      *gitignore.Rules
}

func (w *walker) walk(ctx context.Context, results chan<- ScanResult) {
	absRoot := w.root
	err := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			slog.Debug("skipping unreadable path", slog.String("path", path), slog.String("error", err.Error()))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}

		if d.IsDir() {
			if path != absRoot && (skipDir(d.Name(), w.excluded) || w.ignore.Ignored(relPath, true)) {
				return filepath.SkipDir
			}
			if len(w.ignoreFiles) > 0 {
				if err := w.ignore.LoadDir(path, relPath, w.ignoreFiles); err != nil {
					slog.Debug("skipping ignore file", slog.String("dir", path), slog.String("error", err.Error()))
				}
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			if !w.follow {
				return nil
			}
			target, statErr := os.Stat(path)
			if statErr != nil || target.IsDir() {
				return nil
			}
		} else if !d.Type().IsRegular() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(d.Name()))
		if !w.exts[ext] || w.ignore.Ignored(relPath, false) {
			return nil
		}

		info, err := os.Stat(path)
		if err != nil {
			return nil
		}

		file := &FileInfo{
			Path:      relPath,
			AbsPath:   path,
			Extension: ext,
			Size:      info.Size(),
			ModTime:   info.ModTime(),
		}

		select {
		case results <- ScanResult{File: file}:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})

	if err != nil && ctx.Err() == nil {
		select {
		case results <- ScanResult{Error: err}:
		case <-ctx.Done():
		}
	}
}

// skipDir reports whether name matches an exclude pattern. Patterns were
// validated by Scan.
func skipDir(name string, excluded []string) bool {
	for _, pattern := range excluded {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// Collect drains a scan into a slice. It stops at the first error.
func Collect(ctx context.Context, opts Options) ([]*FileInfo, error) {
	ch, err := Scan(ctx, opts)
	if err != nil {
		return nil, err
	}

	var files []*FileInfo
	for r := range ch {
		if r.Error != nil {
			return nil, r.Error
		}
		files = append(files, r.File)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return files, nil
}
