package embed

import (
	"context"
	"math"
	"sync/atomic"
)

// countingEmbedder is a test double that records calls and batch sizes.
type countingEmbedder struct {
	calls    atomic.Int64
	texts    atomic.Int64
	dims     int
	closed   atomic.Bool
	failWith error
}

func newCountingEmbedder(dims int) *countingEmbedder {
	return &countingEmbedder{dims: dims}
}

func (m *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	m.calls.Add(1)
	m.texts.Add(int64(len(texts)))
	if m.failWith != nil {
		return nil, m.failWith
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec := make([]float32, m.dims)
		vec[len(t)%m.dims] = 1
		out[i] = vec
	}
	return out, nil
}

func (m *countingEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	return embedOne(ctx, m, text)
}

func (m *countingEmbedder) Dimensions() int                  { return m.dims }
func (m *countingEmbedder) ModelName() string                { return "counting" }
func (m *countingEmbedder) Available(_ context.Context) bool { return !m.closed.Load() }

func (m *countingEmbedder) Close() error {
	m.closed.Store(true)
	return nil
}

func vectorMagnitude(v []float32) float64 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	return math.Sqrt(sum)
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
