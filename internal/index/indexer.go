package index

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/semsearch/internal/chunk"
	"github.com/Aman-CERP/semsearch/internal/embed"
	"github.com/Aman-CERP/semsearch/internal/errors"
	"github.com/Aman-CERP/semsearch/internal/scanner"
	"github.com/Aman-CERP/semsearch/internal/store"
)

// Dependencies are the collaborators an Indexer needs. Observer is optional.
type Dependencies struct {
	Store    store.VectorStore
	Embedder embed.Embedder
	Parser   Parser
	Observer Observer
}

// Indexer writes documents into a VectorStore.
type Indexer struct {
	store    store.VectorStore
	embedder embed.Embedder
	parser   Parser
	observer Observer
	config   Config
}

// saver is implemented by stores that buffer state until saved.
type saver interface {
	Save(ctx context.Context) error
}

// New creates an Indexer.
func New(deps Dependencies, cfg Config) (*Indexer, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if deps.Parser == nil {
		return nil, fmt.Errorf("parser is required")
	}

	if cfg.Chunk.Size == 0 && cfg.Chunk.Overlap == 0 {
		cfg.Chunk = chunk.DefaultOptions()
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = scanner.DefaultExtensions
	}

	observer := deps.Observer
	if observer == nil {
		observer = noopObserver{}
	}

	return &Indexer{
		store:    deps.Store,
		embedder: deps.Embedder,
		parser:   deps.Parser,
		observer: observer,
		config:   cfg,
	}, nil
}

// IndexFile indexes one document and returns the number of passages stored.
// Any previous records of the same file are replaced. A document with no
// text stores nothing and returns 0. Passages that embed to a zero-norm
// vector, such as pure punctuation, are skipped.
func (ix *Indexer) IndexFile(ctx context.Context, path string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	text, err := ix.parser.Parse(absPath)
	if err != nil {
		return 0, err
	}

	chunks, err := chunk.Document(absPath, text, ix.config.Chunk.Size, ix.config.Chunk.Overlap)
	if err != nil {
		return 0, err
	}

	if len(chunks) == 0 {
		slog.Warn("no_chunks_extracted", slog.String("file", absPath))
		// Drop records left from an earlier, non-empty version.
		if err := ix.store.ReplaceFile(ctx, absPath, nil, nil, nil, nil); err != nil {
			return 0, err
		}
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if _, ok := errors.As(err); ok {
			return 0, err
		}
		return 0, errors.EmbeddingFailed(fmt.Sprintf("failed to embed %s", filepath.Base(absPath)), err)
	}
	if len(vectors) != len(texts) {
		return 0, errors.EmbeddingFailed(
			fmt.Sprintf("embedder returned %d vectors for %d passages", len(vectors), len(texts)), nil)
	}

	if err := ix.store.EnsureEmbedder(ctx, ix.embedder.ModelName(), ix.embedder.Dimensions()); err != nil {
		return 0, err
	}

	filename := filepath.Base(absPath)
	fileType := filepath.Ext(absPath)
	ids := make([]string, 0, len(chunks))
	kept := make([][]float32, 0, len(chunks))
	keptTexts := make([]string, 0, len(chunks))
	metas := make([]store.Metadata, 0, len(chunks))
	for i, c := range chunks {
		if store.IsZero(vectors[i]) {
			slog.Debug("passage_skipped_zero_vector", slog.String("file", absPath), slog.Int("chunk", c.Index))
			continue
		}
		ids = append(ids, fmt.Sprintf("%s_%d", filename, c.Index))
		kept = append(kept, vectors[i])
		keptTexts = append(keptTexts, texts[i])
		metas = append(metas, store.Metadata{
			File:       absPath,
			Filename:   filename,
			ChunkIndex: c.Index,
			FileType:   fileType,
		})
	}
	if len(ids) == 0 {
		slog.Warn("no_embeddable_passages", slog.String("file", absPath))
	}

	if err := ix.store.ReplaceFile(ctx, absPath, ids, kept, keptTexts, metas); err != nil {
		return 0, err
	}

	slog.Debug("file_indexed", slog.String("file", absPath), slog.Int("chunks", len(ids)))
	return len(ids), nil
}

// IndexDirectory indexes every matching file under dir. extensions may be
// given with or without the leading dot; empty means the configured
// defaults. A missing directory fails with ERR_201. Files that fail are
// counted in Result.Failed and skipped. Cancelling ctx stops the run and
// returns the partial result together with ctx's error.
func (ix *Indexer) IndexDirectory(ctx context.Context, dir string, extensions []string) (*Result, error) {
	start := time.Now()

	exts := scanner.NormalizeExtensions(extensions)
	if len(exts) == 0 {
		exts = ix.config.Extensions
	}

	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	scanned, err := scanner.Scan(scanCtx, scanner.Options{
		Root:        dir,
		Extensions:  exts,
		ExcludeDirs: ix.config.ExcludeDirs,
		IgnoreFiles: ix.config.IgnoreFiles,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("index_started", slog.String("path", dir), slog.Any("extensions", exts))

	result := &Result{Files: []string{}}
	paths := make(chan string)

	g, gctx := errgroup.WithContext(scanCtx)

	// Stage 1: stream paths from the scanner.
	g.Go(func() error {
		defer close(paths)
		for r := range scanned {
			if r.Error != nil {
				return fmt.Errorf("scan failed: %w", r.Error)
			}
			select {
			case paths <- r.File.AbsPath:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	// Stage 2: index files one at a time.
	g.Go(func() error {
		n := 0
		for path := range paths {
			if err := gctx.Err(); err != nil {
				return err
			}
			n++
			ix.observer.FileStarted(path, n)

			chunks, err := ix.IndexFile(gctx, path)
			if err != nil {
				if isCancellation(err) && gctx.Err() != nil {
					return gctx.Err()
				}
				result.Failed++
				slog.Error("file_index_failed", append([]any{slog.String("file", path)}, errors.FormatForLog(err)...)...)
				ix.observer.FileFailed(path, err)
				continue
			}

			result.Indexed++
			result.Files = append(result.Files, path)
			ix.observer.FileIndexed(path, chunks)
		}
		return nil
	})

	err = g.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	if err != nil {
		slog.Warn("index_interrupted",
			slog.String("path", dir),
			slog.Int("indexed", result.Indexed),
			slog.String("error", err.Error()))
		ix.save(context.WithoutCancel(ctx))
		return result, err
	}

	ix.save(ctx)

	slog.Info("index_complete",
		slog.String("path", dir),
		slog.Int("indexed", result.Indexed),
		slog.Int("failed", result.Failed),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))

	return result, nil
}

// save flushes buffered store state. Records are already durable, so a
// failure only costs a graph rebuild on next open.
func (ix *Indexer) save(ctx context.Context) {
	s, ok := ix.store.(saver)
	if !ok {
		return
	}
	if err := s.Save(ctx); err != nil {
		slog.Warn("failed to save vector graph", slog.String("error", err.Error()))
	}
}

// Clear removes every record from the collection.
func (ix *Indexer) Clear(ctx context.Context) error {
	if err := ix.store.Clear(ctx); err != nil {
		return err
	}
	slog.Info("index_cleared", slog.String("collection", ix.store.Name()))
	return nil
}

// Stats reports the number of stored passages.
func (ix *Indexer) Stats(ctx context.Context) (Stats, error) {
	n, err := ix.store.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{TotalChunks: n, CollectionName: ix.store.Name()}, nil
}

func isCancellation(err error) bool {
	return stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)
}
