// Package search answers natural-language queries against the passage
// collection. Queries are embedded with the same Embedder that indexed the
// passages; store distances are turned into similarities by the
// collection's metric.
package search

import (
	"math"

	"github.com/Aman-CERP/semsearch/internal/store"
)

// DefaultTopK is used when a caller asks for zero or fewer results.
const DefaultTopK = 5

// Result is one ranked passage.
type Result struct {
	Text       string         `json:"text"`
	Similarity float64        `json:"similarity"`
	Metadata   store.Metadata `json:"metadata"`
}

// Round rounds a similarity to four decimals for display.
func Round(similarity float64) float64 {
	return math.Round(similarity*1e4) / 1e4
}

// Rounded returns a copy of results with similarities rounded for display.
func Rounded(results []Result) []Result {
	out := make([]Result, len(results))
	for i, r := range results {
		r.Similarity = Round(r.Similarity)
		out[i] = r
	}
	return out
}
