package search

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/semsearch/internal/embed"
	"github.com/Aman-CERP/semsearch/internal/errors"
	"github.com/Aman-CERP/semsearch/internal/store"
)

// mapEmbedder returns fixed vectors for known texts.
type mapEmbedder struct {
	vectors map[string][]float32
	dims    int
}

func (m *mapEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := m.vectors[t]
		if !ok {
			return nil, fmt.Errorf("no vector for %q", t)
		}
		out[i] = v
	}
	return out, nil
}

func (m *mapEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := m.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (m *mapEmbedder) Dimensions() int                  { return m.dims }
func (m *mapEmbedder) ModelName() string                { return "map" }
func (m *mapEmbedder) Available(_ context.Context) bool { return true }
func (m *mapEmbedder) Close() error                     { return nil }

var _ embed.Embedder = (*mapEmbedder)(nil)

type doc struct {
	id       string
	filename string
	vector   []float32
}

func newTestEngine(t *testing.T, queries map[string][]float32, docs ...doc) *Engine {
	t.Helper()
	ctx := context.Background()

	collection, err := store.Open(ctx, store.DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = collection.Close() })

	for i, d := range docs {
		require.NoError(t, collection.Add(ctx,
			[]string{d.id},
			[][]float32{d.vector},
			[]string{"text of " + d.id},
			[]store.Metadata{{File: "/docs/" + d.filename, Filename: d.filename, ChunkIndex: i, FileType: ".txt"}}))
	}

	engine, err := NewEngine(collection, &mapEmbedder{vectors: queries, dims: 3})
	require.NoError(t, err)
	return engine
}

// at returns a unit vector in the xy-plane whose cosine with [1,0,0] is cos.
func at(cos float64) []float32 {
	return []float32{float32(cos), float32(math.Sqrt(1 - cos*cos)), 0}
}

var query = map[string][]float32{"q": {1, 0, 0}}

// TS01: Empty collection returns an empty result
func TestSearch_EmptyCollection(t *testing.T) {
	engine := newTestEngine(t, query)

	results, err := engine.Search(context.Background(), "q", 5, 0)

	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

// TS02: Results are ordered by similarity, highest first
func TestSearch_OrderedBySimilarity(t *testing.T) {
	// Given: passages at decreasing similarity to the query
	engine := newTestEngine(t, query,
		doc{"low", "low.txt", at(0.2)},
		doc{"high", "high.txt", at(0.95)},
		doc{"mid", "mid.txt", at(0.6)},
	)

	// When
	results, err := engine.Search(context.Background(), "q", 3, 0)

	// Then: cosine similarity is 1 - distance, sorted descending
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "text of high", results[0].Text)
	assert.Equal(t, "text of mid", results[1].Text)
	assert.Equal(t, "text of low", results[2].Text)
	assert.InDelta(t, 0.95, results[0].Similarity, 1e-4)
	assert.InDelta(t, 0.6, results[1].Similarity, 1e-4)
	assert.InDelta(t, 0.2, results[2].Similarity, 1e-4)
	assert.Equal(t, "high.txt", results[0].Metadata.Filename)
}

// TS03: A threshold above every similarity yields nothing
func TestSearch_ThresholdFiltersEverything(t *testing.T) {
	engine := newTestEngine(t, query,
		doc{"a", "a.txt", at(0.3)},
		doc{"b", "b.txt", at(0.31)},
	)

	results, err := engine.Search(context.Background(), "q", 5, 0.9)

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_ZeroQueryVector(t *testing.T) {
	// Given: a query the embedder maps to the zero vector
	engine := newTestEngine(t, map[string][]float32{"?": {0, 0, 0}},
		doc{"a", "a.txt", at(0.9)},
	)

	// When: searching with a threshold every real similarity passes
	results, err := engine.Search(context.Background(), "?", 5, -1)

	// Then: nothing is ranked against a direction-less query
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestSearch_ThresholdKeepsEqualOrAbove(t *testing.T) {
	engine := newTestEngine(t, query,
		doc{"exact", "exact.txt", []float32{1, 0, 0}},
		doc{"mid", "mid.txt", at(0.5)},
		doc{"far", "far.txt", []float32{0, 1, 0}},
	)

	results, err := engine.Search(context.Background(), "q", 5, 0.45)

	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Similarity, 0.45)
	}
}

func TestSearch_TopK(t *testing.T) {
	docs := make([]doc, 8)
	for i := range docs {
		docs[i] = doc{fmt.Sprintf("d%d", i), fmt.Sprintf("d%d.txt", i), at(0.1 * float64(i+1))}
	}
	engine := newTestEngine(t, query, docs...)

	tests := []struct {
		name string
		topK int
		want int
	}{
		{"explicit", 3, 3},
		{"zero uses default", 0, DefaultTopK},
		{"negative uses default", -1, DefaultTopK},
		{"more than stored", 50, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := engine.Search(context.Background(), "q", tt.topK, -1)
			require.NoError(t, err)
			assert.Len(t, results, tt.want)
		})
	}
}

func TestSearch_Errors(t *testing.T) {
	engine := newTestEngine(t, map[string][]float32{"q": {1, 0, 0}, "short": {1, 0}},
		doc{"a", "a.txt", []float32{1, 0, 0}})
	ctx := context.Background()

	_, err := engine.Search(ctx, "   ", 5, 0)
	assert.True(t, errors.HasCode(err, errors.ErrCodeQueryEmpty))

	_, err = engine.Search(ctx, "unknown", 5, 0)
	assert.True(t, errors.HasCode(err, errors.ErrCodeEmbeddingFailed))

	_, err = engine.Search(ctx, "short", 5, 0)
	assert.True(t, errors.HasCode(err, errors.ErrCodeDimensionMismatch))
}

func TestSearchWithFilter(t *testing.T) {
	engine := newTestEngine(t, query,
		doc{"r1", "Report-2024.md", at(0.9)},
		doc{"n1", "notes.txt", at(0.85)},
		doc{"r2", "report-draft.txt", at(0.5)},
		doc{"n2", "notes-old.txt", at(0.4)},
	)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter string
		topK   int
		want   []string
	}{
		{"case-insensitive", "REPORT", 2, []string{"Report-2024.md", "report-draft.txt"}},
		{"truncated to topK", "notes", 1, []string{"notes.txt"}},
		// Only 2*topK candidates are considered: r1, n1.
		{"over-fetch window", "report", 1, []string{"Report-2024.md"}},
		{"no match", "zzz", 2, []string{}},
		{"empty filter keeps all", "", 2, []string{"Report-2024.md", "notes.txt"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := engine.SearchWithFilter(ctx, "q", tt.filter, tt.topK)
			require.NoError(t, err)

			names := make([]string, len(results))
			for i, r := range results {
				names[i] = r.Metadata.Filename
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestSearchWithFilter_BestEffort(t *testing.T) {
	// The only match sits outside the 2*topK window.
	engine := newTestEngine(t, query,
		doc{"a", "a.txt", at(0.9)},
		doc{"b", "b.txt", at(0.8)},
		doc{"target", "target.txt", at(0.1)},
	)

	results, err := engine.SearchWithFilter(context.Background(), "q", "target", 1)

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestNewEngine_RequiresDependencies(t *testing.T) {
	_, err := NewEngine(nil, &mapEmbedder{})
	assert.Error(t, err)
}

func TestRound(t *testing.T) {
	assert.Equal(t, 0.1235, Round(0.123456))
	assert.Equal(t, -0.5, Round(-0.50001))

	rounded := Rounded([]Result{{Similarity: 0.87654321}})
	assert.Equal(t, 0.8765, rounded[0].Similarity)
}
