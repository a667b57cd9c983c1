package store

import (
	"fmt"
	"math"
	"strings"

	"github.com/coder/hnsw"

	"github.com/Aman-CERP/semsearch/internal/errors"
)

// Metric couples a distance function with the transform that turns its
// distances into similarities, so the two can never disagree.
type Metric interface {
	// Name is the persisted identifier ("cosine", "l2").
	Name() string

	// Distance between two vectors; smaller is closer.
	Distance(a, b []float32) float32

	// DistanceFunc is the graph's distance function. It must be one that
	// coder/hnsw has registered, or the graph cannot be exported.
	DistanceFunc() hnsw.DistanceFunc

	// Similarity converts a distance from Distance into a similarity;
	// larger is closer.
	Similarity(distance float32) float64

	// Normalize reports whether vectors are scaled to unit length before
	// they enter the graph.
	Normalize() bool
}

// Cosine is the cosine metric. Distance is 1 - cos(a, b) in [0, 2] and
// similarity is 1 - distance in [-1, 1].
type Cosine struct{}

func (Cosine) Name() string                        { return "cosine" }
func (Cosine) Distance(a, b []float32) float32     { return hnsw.CosineDistance(a, b) }
func (Cosine) DistanceFunc() hnsw.DistanceFunc     { return hnsw.CosineDistance }
func (Cosine) Similarity(distance float32) float64 { return 1 - float64(distance) }
func (Cosine) Normalize() bool                     { return true }

// Euclidean is the L2 metric. Similarity is 1 / (1 + distance) in (0, 1].
type Euclidean struct{}

func (Euclidean) Name() string                        { return "l2" }
func (Euclidean) Distance(a, b []float32) float32     { return hnsw.EuclideanDistance(a, b) }
func (Euclidean) DistanceFunc() hnsw.DistanceFunc     { return hnsw.EuclideanDistance }
func (Euclidean) Similarity(distance float32) float64 { return 1 / (1 + float64(distance)) }
func (Euclidean) Normalize() bool                     { return false }

// MetricByName resolves a configured metric name.
func MetricByName(name string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "cosine", "cos":
		return Cosine{}, nil
	case "l2", "euclidean":
		return Euclidean{}, nil
	default:
		return nil, errors.ConfigError(fmt.Sprintf("unknown distance metric %q", name), nil).
			WithSuggestion("use 'cosine' or 'l2'")
	}
}

// IsZero reports whether v has zero norm. Such a vector has no direction,
// so it cannot be ranked against other vectors.
func IsZero(v []float32) bool {
	for _, val := range v {
		if val != 0 {
			return false
		}
	}
	return true
}

// normalizeCopy returns v scaled to unit length, leaving v untouched.
func normalizeCopy(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)

	var sumSquares float64
	for _, val := range out {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return out
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range out {
		out[i] *= inv
	}
	return out
}
