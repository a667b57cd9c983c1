package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/semsearch/internal/embed"
	"github.com/Aman-CERP/semsearch/internal/index"
	"github.com/Aman-CERP/semsearch/internal/parse"
	"github.com/Aman-CERP/semsearch/internal/search"
	"github.com/Aman-CERP/semsearch/internal/store"
)

var quietLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

// connect starts srv on one end of an in-memory pipe and returns a client
// session on the other.
func connect(t *testing.T, srv *Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	serverT, clientT := mcp.NewInMemoryTransports()

	ss, err := srv.MCPServer().Connect(ctx, serverT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func newStackServer(t *testing.T) (*Server, *store.Collection) {
	t.Helper()
	collection, err := store.Open(context.Background(), store.DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = collection.Close() })

	embedder := embed.NewStaticEmbedder()
	ix, err := index.New(index.Dependencies{
		Store:    collection,
		Embedder: embedder,
		Parser:   parse.New(parse.DefaultOptions()),
	}, index.DefaultConfig())
	require.NoError(t, err)
	engine, err := search.NewEngine(collection, embedder)
	require.NoError(t, err)

	srv, err := NewServer(Dependencies{
		Searcher: engine,
		Indexer:  ix,
		Files:    collection,
		Logger:   quietLogger,
	}, Config{})
	require.NoError(t, err)
	return srv, collection
}

func writeDocs(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range map[string]string{
		"recipes.md":   "# Bread\nKnead the dough and let it rise before baking the bread in a hot oven.",
		"astronomy.txt": "Jupiter is the largest planet and has dozens of moons orbiting it.",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func call(t *testing.T, cs *mcp.ClientSession, name string, args any) *mcp.CallToolResult {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	return res
}

// structured decodes a tool's structured content into T.
func structured[T any](t *testing.T, res *mcp.CallToolResult) T {
	t.Helper()
	data, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	var v T
	require.NoError(t, json.Unmarshal(data, &v))
	return v
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

// =============================================================================
// Registration
// =============================================================================

func TestNewServer_RequiresDependencies(t *testing.T) {
	_, err := NewServer(Dependencies{}, Config{})
	assert.Error(t, err)

	_, err = NewServer(Dependencies{Searcher: stubSearcher{}}, Config{})
	assert.Error(t, err)
}

func TestListTools(t *testing.T) {
	srv, _ := newStackServer(t)
	cs := connect(t, srv)

	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
		assert.Equal(t, toolDescriptions[tool.Name], tool.Description)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"clear_index", "index_directory", "index_stats", "search"}, names)
}

// =============================================================================
// Tools end to end
// =============================================================================

func TestTools_IndexSearchStatsClear(t *testing.T) {
	// Given: a connected client and a directory of documents
	srv, _ := newStackServer(t)
	cs := connect(t, srv)
	dir := writeDocs(t)

	// When: indexing
	res := call(t, cs, "index_directory", map[string]any{"directory_path": dir})

	// Then
	require.False(t, res.IsError, text(t, res))
	ir := structured[index.Result](t, res)
	assert.Equal(t, 2, ir.Indexed)
	assert.Equal(t, 0, ir.Failed)

	// When: searching
	res = call(t, cs, "search", map[string]any{"query": "baking bread in the oven", "top_k": 1})

	// Then: the recipe is the best match and the text content is markdown
	require.False(t, res.IsError, text(t, res))
	out := structured[SearchOutput](t, res)
	require.Equal(t, 1, out.Count)
	assert.Equal(t, "recipes.md", out.Results[0].Metadata.Filename)
	assert.Contains(t, text(t, res), "## Search Results for")

	// When / Then: stats and clear
	res = call(t, cs, "index_stats", map[string]any{})
	stats := structured[index.Stats](t, res)
	assert.Equal(t, 2, stats.TotalChunks)
	assert.Equal(t, "documents", stats.CollectionName)

	res = call(t, cs, "clear_index", map[string]any{})
	assert.Equal(t, "Index cleared successfully", structured[ClearOutput](t, res).Message)

	res = call(t, cs, "index_stats", map[string]any{})
	assert.Equal(t, 0, structured[index.Stats](t, res).TotalChunks)
}

func TestSearch_Filter(t *testing.T) {
	srv, _ := newStackServer(t)
	cs := connect(t, srv)
	call(t, cs, "index_directory", map[string]any{"directory_path": writeDocs(t)})

	res := call(t, cs, "search", map[string]any{"query": "bread", "filter": "ASTRO"})

	out := structured[SearchOutput](t, res)
	require.Equal(t, 1, out.Count)
	assert.Equal(t, "astronomy.txt", out.Results[0].Metadata.Filename)
}

func TestSearch_EmptyCollection(t *testing.T) {
	srv, _ := newStackServer(t)
	cs := connect(t, srv)

	res := call(t, cs, "search", map[string]any{"query": "anything"})

	require.False(t, res.IsError)
	assert.Equal(t, 0, structured[SearchOutput](t, res).Count)
	assert.Equal(t, `No results found for "anything"`, text(t, res))
}

func TestTools_Errors(t *testing.T) {
	tests := []struct {
		name string
		tool string
		args map[string]any
		want string
	}{
		{"blank query", "search", map[string]any{"query": "   "}, "query must not be empty"},
		{"missing directory", "index_directory", map[string]any{"directory_path": "/does/not/exist"}, "-32004"},
		{"blank directory", "index_directory", map[string]any{"directory_path": ""}, "directory_path must not be empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newStackServer(t)
			cs := connect(t, srv)

			res := call(t, cs, tt.tool, tt.args)

			assert.True(t, res.IsError)
			assert.Contains(t, text(t, res), tt.want)
		})
	}
}

func TestTools_WritesFailWhileLockHeldElsewhere(t *testing.T) {
	// Given: another process holds the writer lock
	lockDir := t.TempDir()
	other := store.NewWriterLock(lockDir)
	require.NoError(t, other.TryLock())
	t.Cleanup(func() { _ = other.Unlock() })

	srv, err := NewServer(Dependencies{
		Searcher: stubSearcher{},
		Indexer:  nopIndexer{},
		Lock:     store.NewWriterLock(lockDir),
		Logger:   quietLogger,
	}, Config{})
	require.NoError(t, err)
	cs := connect(t, srv)

	// When / Then: both write tools report the lock without waiting
	for _, tc := range []struct {
		tool string
		args map[string]any
	}{
		{"index_directory", map[string]any{"directory_path": t.TempDir()}},
		{"clear_index", map[string]any{}},
	} {
		res := call(t, cs, tc.tool, tc.args)
		assert.True(t, res.IsError, tc.tool)
		assert.Contains(t, text(t, res), "-32006", tc.tool)
	}

	// And: stats still work, since readers never take the lock
	res := call(t, cs, "index_stats", map[string]any{})
	assert.False(t, res.IsError)
}

// =============================================================================
// Threshold and filter with a stub engine
// =============================================================================

type stubSearcher struct {
	results []search.Result
	gotK    int
	gotT    float64
}

func (s stubSearcher) Search(_ context.Context, _ string, topK int, threshold float64) ([]search.Result, error) {
	var out []search.Result
	for _, r := range s.results {
		if r.Similarity >= threshold {
			out = append(out, r)
		}
	}
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (s stubSearcher) SearchWithFilter(_ context.Context, _, _ string, _ int) ([]search.Result, error) {
	return append([]search.Result(nil), s.results...), nil
}

type nopIndexer struct{}

func (nopIndexer) IndexDirectory(context.Context, string, []string) (*index.Result, error) {
	return &index.Result{Files: []string{}}, nil
}
func (nopIndexer) Clear(context.Context) error { return nil }
func (nopIndexer) Stats(context.Context) (index.Stats, error) {
	return index.Stats{CollectionName: "documents"}, nil
}

func TestSearch_ThresholdAndRounding(t *testing.T) {
	stub := stubSearcher{results: []search.Result{
		{Text: "a", Similarity: 0.912345, Metadata: store.Metadata{Filename: "a.md"}},
		{Text: "b", Similarity: 0.4, Metadata: store.Metadata{Filename: "b.md"}},
	}}
	srv, err := NewServer(Dependencies{Searcher: stub, Indexer: nopIndexer{}, Logger: quietLogger}, Config{Threshold: 0.5})
	require.NoError(t, err)
	cs := connect(t, srv)

	tests := []struct {
		name  string
		args  map[string]any
		count int
	}{
		{"server default threshold", map[string]any{"query": "q"}, 1},
		{"explicit zero threshold", map[string]any{"query": "q", "threshold": 0.0}, 2},
		{"filter applies threshold", map[string]any{"query": "q", "filter": "md"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := structured[SearchOutput](t, call(t, cs, "search", tt.args))
			require.Equal(t, tt.count, out.Count)
			assert.Equal(t, 0.9123, out.Results[0].Similarity)
		})
	}
}

// =============================================================================
// Resources
// =============================================================================

func TestFilesResource(t *testing.T) {
	srv, _ := newStackServer(t)
	cs := connect(t, srv)
	call(t, cs, "index_directory", map[string]any{"directory_path": writeDocs(t)})

	res, err := cs.ReadResource(context.Background(), &mcp.ReadResourceParams{URI: FilesResourceURI})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)

	var out FilesOutput
	require.NoError(t, json.Unmarshal([]byte(res.Contents[0].Text), &out))
	assert.Equal(t, 2, out.Count)
	for _, f := range out.Files {
		assert.True(t, filepath.IsAbs(f), f)
	}
}

func TestFilesResource_NotRegisteredWithoutLister(t *testing.T) {
	srv, err := NewServer(Dependencies{Searcher: stubSearcher{}, Indexer: nopIndexer{}, Logger: quietLogger}, Config{})
	require.NoError(t, err)
	cs := connect(t, srv)

	_, err = cs.ReadResource(context.Background(), &mcp.ReadResourceParams{URI: FilesResourceURI})

	assert.Error(t, err)
}
