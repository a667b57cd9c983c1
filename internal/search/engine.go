package search

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/Aman-CERP/semsearch/internal/embed"
	"github.com/Aman-CERP/semsearch/internal/errors"
	"github.com/Aman-CERP/semsearch/internal/store"
)

// Engine ranks stored passages by similarity to a query.
type Engine struct {
	store       store.VectorStore
	embedder    embed.Embedder
	defaultTopK int
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithDefaultTopK sets the result count used when a caller passes topK <= 0.
func WithDefaultTopK(k int) EngineOption {
	return func(e *Engine) {
		if k > 0 {
			e.defaultTopK = k
		}
	}
}

// NewEngine creates a search engine. vs and embedder must be the ones the
// indexer writes with.
func NewEngine(vs store.VectorStore, embedder embed.Embedder, opts ...EngineOption) (*Engine, error) {
	if vs == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	e := &Engine{
		store:       vs,
		embedder:    embedder,
		defaultTopK: DefaultTopK,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Search returns up to topK passages whose similarity is at least
// threshold, most similar first. An empty collection yields an empty slice.
func (e *Engine) Search(ctx context.Context, query string, topK int, threshold float64) ([]Result, error) {
	start := time.Now()

	if strings.TrimSpace(query) == "" {
		return nil, errors.New(errors.ErrCodeQueryEmpty, "query must not be empty", nil)
	}
	if topK <= 0 {
		topK = e.defaultTopK
	}

	vector, err := e.embedder.EmbedOne(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.EmbeddingFailed("failed to embed query", err)
	}

	hits, err := e.store.Query(ctx, vector, topK)
	if err != nil {
		return nil, err
	}

	metric := e.store.Metric()
	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		similarity := metric.Similarity(h.Distance)
		if math.IsNaN(similarity) || similarity < threshold {
			continue
		}
		results = append(results, Result{
			Text:       h.Text,
			Similarity: similarity,
			Metadata:   h.Metadata,
		})
	}

	slog.Debug("search_complete",
		slog.Int("query_len", len(query)),
		slog.Int("top_k", topK),
		slog.Float64("threshold", threshold),
		slog.Int("candidates", len(hits)),
		slog.Int("results", len(results)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))

	return results, nil
}

// SearchWithFilter searches 2*topK candidates with no threshold and keeps
// those whose filename contains filter, ignoring case, up to topK. It may
// return fewer than topK even when more matching passages exist. An empty
// filter keeps every candidate.
func (e *Engine) SearchWithFilter(ctx context.Context, query, filter string, topK int) ([]Result, error) {
	if topK <= 0 {
		topK = e.defaultTopK
	}

	candidates, err := e.Search(ctx, query, topK*2, 0)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(filter)
	results := make([]Result, 0, topK)
	for _, r := range candidates {
		if len(results) == topK {
			break
		}
		if strings.Contains(strings.ToLower(r.Metadata.Filename), needle) {
			results = append(results, r)
		}
	}
	return results, nil
}
