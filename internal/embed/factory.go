package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Aman-CERP/semsearch/internal/errors"
)

// ProviderType names an embedding backend.
type ProviderType string

const (
	// ProviderOllama uses a local Ollama server (all-minilm by default).
	ProviderOllama ProviderType = "ollama"

	// ProviderStatic uses hash-based embeddings; offline and deterministic.
	ProviderStatic ProviderType = "static"
)

// ParseProvider maps a config string to a ProviderType.
func ParseProvider(s string) (ProviderType, error) {
	switch ProviderType(strings.ToLower(strings.TrimSpace(s))) {
	case ProviderOllama:
		return ProviderOllama, nil
	case ProviderStatic, "":
		return ProviderStatic, nil
	default:
		return "", errors.ConfigError(fmt.Sprintf("unknown embeddings provider %q", s), nil).
			WithSuggestion("use 'ollama' or 'static'")
	}
}

// Options selects and tunes an embedder.
type Options struct {
	Provider   ProviderType
	Model      string
	OllamaHost string
	BatchSize  int
	Timeout    time.Duration
	MaxRetries int

	// Cache wraps the embedder in an LRU cache of CacheSize entries.
	Cache     bool
	CacheSize int
}

// DefaultOptions returns the offline configuration with caching enabled.
func DefaultOptions() Options {
	return Options{
		Provider:   ProviderStatic,
		Model:      DefaultOllamaModel,
		OllamaHost: DefaultOllamaHost,
		BatchSize:  DefaultBatchSize,
		Timeout:    DefaultTimeout,
		MaxRetries: DefaultMaxRetries,
		Cache:      true,
		CacheSize:  DefaultEmbeddingCacheSize,
	}
}

// NewEmbedder builds the embedder described by opts. There is no silent
// fallback: an unreachable Ollama is an error, not a switch to static.
func NewEmbedder(ctx context.Context, opts Options) (Embedder, error) {
	var embedder Embedder

	switch opts.Provider {
	case ProviderStatic, "":
		embedder = NewStaticEmbedder()

	case ProviderOllama:
		e, err := NewOllamaEmbedder(ctx, OllamaConfig{
			Host:       opts.OllamaHost,
			Model:      opts.Model,
			BatchSize:  opts.BatchSize,
			Timeout:    opts.Timeout,
			MaxRetries: opts.MaxRetries,
		})
		if err != nil {
			return nil, err
		}
		embedder = e

	default:
		return nil, errors.ConfigError(fmt.Sprintf("unknown embeddings provider %q", opts.Provider), nil)
	}

	slog.Debug("embedder_ready",
		slog.String("provider", string(opts.Provider)),
		slog.String("model", embedder.ModelName()),
		slog.Int("dimensions", embedder.Dimensions()))

	if opts.Cache {
		embedder = NewCachedEmbedder(embedder, opts.CacheSize)
	}
	return embedder, nil
}
