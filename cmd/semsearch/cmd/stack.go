package cmd

import (
	"context"
	stderrors "errors"
	"log/slog"

	"github.com/Aman-CERP/semsearch/internal/config"
	"github.com/Aman-CERP/semsearch/internal/embed"
	"github.com/Aman-CERP/semsearch/internal/index"
	"github.com/Aman-CERP/semsearch/internal/parse"
	"github.com/Aman-CERP/semsearch/internal/search"
	"github.com/Aman-CERP/semsearch/internal/store"
)

// stack is the collection with the indexer and engine built on it.
type stack struct {
	collection *store.Collection
	embedder   *embed.Provider
	indexer    *index.Indexer
	engine     *search.Engine
	lock       *store.WriterLock
}

// openStack opens the collection named by cfg. observer may be nil.
func openStack(ctx context.Context, cfg *config.Config, observer index.Observer) (*stack, error) {
	collection, err := store.Open(ctx, store.Config{
		Path:     cfg.Store.Path,
		Metric:   cfg.Store.Metric,
		M:        cfg.Store.HNSWM,
		EfSearch: cfg.Store.HNSWEfSearch,
	})
	if err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		_ = collection.Close()
		return nil, err
	}

	s := &stack{
		collection: collection,
		embedder:   embedder,
		lock:       store.NewWriterLock(collection.Path()),
	}

	s.indexer, err = index.New(index.Dependencies{
		Store:    collection,
		Embedder: embedder,
		Parser:   parse.New(parse.Options{PDF: cfg.Parse.PDF, MaxFileSize: cfg.Parse.MaxFileSize}),
		Observer: observer,
	}, indexConfig(cfg))
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	s.engine, err = search.NewEngine(collection, embedder, search.WithDefaultTopK(cfg.Search.TopK))
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the embedder and the collection.
func (s *stack) Close() error {
	return stderrors.Join(s.embedder.Close(), s.collection.Close())
}

// closeStack closes s from a defer, logging what cannot be returned.
func closeStack(s *stack) {
	if err := s.Close(); err != nil {
		slog.Warn("failed to close index", slog.String("error", err.Error()))
	}
}

// newEmbedder returns the provider for the configured embedder. The model
// is built on first use, so commands that never embed never contact it.
func newEmbedder(cfg *config.Config) (*embed.Provider, error) {
	provider, err := embed.ParseProvider(cfg.Embeddings.Provider)
	if err != nil {
		return nil, err
	}

	opts := embed.DefaultOptions()
	opts.Provider = provider
	opts.Model = cfg.Embeddings.Model
	opts.OllamaHost = cfg.Embeddings.OllamaHost
	opts.BatchSize = cfg.Embeddings.BatchSize
	opts.Cache = cfg.Embeddings.Cache
	opts.CacheSize = cfg.Embeddings.CacheSize
	if cfg.Embeddings.Timeout > 0 {
		opts.Timeout = cfg.Embeddings.Timeout
	}
	return embed.NewProviderWithOptions(opts), nil
}

func indexConfig(cfg *config.Config) index.Config {
	ic := index.DefaultConfig()
	ic.Chunk.Size = cfg.Chunk.Size
	ic.Chunk.Overlap = cfg.Chunk.Overlap
	if len(cfg.Index.Extensions) > 0 {
		ic.Extensions = cfg.Index.Extensions
	}
	ic.ExcludeDirs = cfg.Index.ExcludeDirs
	ic.IgnoreFiles = cfg.Index.IgnoreFiles
	return ic
}
