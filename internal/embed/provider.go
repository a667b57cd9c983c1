package embed

import (
	"context"
	"sync"

	"github.com/Aman-CERP/semsearch/internal/errors"
)

// Factory builds an embedder. A Provider calls it at most once.
type Factory func(ctx context.Context) (Embedder, error)

// Provider is the process-wide embedder handle. The embedder is built on
// first use and shared by every caller after that, so indexing and search
// embed into the same space. A failed build is remembered: every later call
// returns the same ERR_502 error without retrying.
//
// Provider is itself an Embedder, so it can be handed to the indexer and
// the search engine before the model is ready.
type Provider struct {
	factory Factory

	once     sync.Once
	embedder Embedder
	err      error

	mu     sync.Mutex
	closed bool
}

var _ Embedder = (*Provider)(nil)

// NewProvider returns a Provider that builds its embedder with factory.
func NewProvider(factory Factory) *Provider {
	return &Provider{factory: factory}
}

// NewProviderWithOptions returns a Provider that builds its embedder with
// NewEmbedder(ctx, opts).
func NewProviderWithOptions(opts Options) *Provider {
	return NewProvider(func(ctx context.Context) (Embedder, error) {
		return NewEmbedder(ctx, opts)
	})
}

// Get returns the shared embedder, building it on the first call.
// Cancelling ctx does not abort a build that other callers may be waiting
// on; the factory's own timeouts bound it.
func (p *Provider) Get(ctx context.Context) (Embedder, error) {
	p.once.Do(func() {
		e, err := p.factory(context.WithoutCancel(ctx))
		switch {
		case err != nil:
			p.err = initFailed(err)
		case e == nil:
			p.err = errors.EmbeddingFailed("embedder factory returned no embedder", nil)
		default:
			p.embedder = e
		}
	})
	if p.err != nil {
		return nil, p.err
	}
	return p.embedder, nil
}

func initFailed(err error) error {
	if errors.HasCode(err, errors.ErrCodeEmbeddingFailed) {
		return err
	}
	return errors.EmbeddingFailed("failed to initialize embedder", err)
}

// Embed embeds texts with the shared embedder.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e, err := p.Get(ctx)
	if err != nil {
		return nil, err
	}
	return e.Embed(ctx, texts)
}

// EmbedOne embeds a single text with the shared embedder.
func (p *Provider) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	e, err := p.Get(ctx)
	if err != nil {
		return nil, err
	}
	return e.EmbedOne(ctx, text)
}

// Dimensions builds the embedder if needed and returns its dimension, or 0
// if it cannot be built.
func (p *Provider) Dimensions() int {
	e, err := p.Get(context.Background())
	if err != nil {
		return 0
	}
	return e.Dimensions()
}

// ModelName builds the embedder if needed and returns its model, or "" if
// it cannot be built.
func (p *Provider) ModelName() string {
	e, err := p.Get(context.Background())
	if err != nil {
		return ""
	}
	return e.ModelName()
}

// Available reports whether the embedder can be built and is ready.
func (p *Provider) Available(ctx context.Context) bool {
	e, err := p.Get(ctx)
	return err == nil && e.Available(ctx)
}

// Close releases the embedder if it was built. A Provider that was never
// used stays unbuilt; later calls fail.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	p.once.Do(func() {
		p.err = errors.EmbeddingFailed("embedder provider is closed", nil)
	})
	if p.embedder != nil {
		return p.embedder.Close()
	}
	return nil
}
