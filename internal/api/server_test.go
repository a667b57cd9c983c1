package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/semsearch/internal/embed"
	"github.com/Aman-CERP/semsearch/internal/errors"
	"github.com/Aman-CERP/semsearch/internal/index"
	"github.com/Aman-CERP/semsearch/internal/parse"
	"github.com/Aman-CERP/semsearch/internal/search"
	"github.com/Aman-CERP/semsearch/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var quietLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

type countingLocker struct {
	mu      sync.Mutex
	locks   int
	unlocks int
}

func (l *countingLocker) TryLock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.locks++
	return nil
}

func (l *countingLocker) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unlocks++
	return nil
}

// newStack wires a real collection, the static embedder, the indexer and
// the search engine behind a Server.
func newStack(t *testing.T, opts ...Option) *Server {
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

	opts = append([]Option{WithLogger(quietLogger)}, opts...)
	return NewServer(DefaultConfig(), engine, ix, opts...)
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func writeDocs(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"cooking.md": "# Pasta\nBoil the water, add salt, then cook the pasta for nine minutes.",
		"space.txt":  "The rocket reached orbit after a long burn of the second stage engine.",
		"image.bin":  "\x00\x01\x02",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

// =============================================================================
// Routes
// =============================================================================

func TestRoot(t *testing.T) {
	s := newStack(t)

	w := do(t, s, http.MethodGet, "/", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Semantic Search Engine API","docs":"/docs","health":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestIndexSearchStatsClear(t *testing.T) {
	// Given: a server over an empty collection and a directory of documents
	locker := &countingLocker{}
	s := newStack(t, WithLocker(locker))
	dir := writeDocs(t)

	// When: indexing the directory
	w := do(t, s, http.MethodPost, "/index", IndexRequest{DirectoryPath: dir})

	// Then: the two text documents are indexed and the binary skipped
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[index.Result](t, w)
	assert.Equal(t, 2, res.Indexed)
	assert.Equal(t, 0, res.Failed)
	assert.Len(t, res.Files, 2)

	// When: searching
	w = do(t, s, http.MethodPost, "/search", map[string]any{"query": "how long to cook pasta", "top_k": 1})

	// Then: one rounded result from the cooking document
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sr := decode[SearchResponse](t, w)
	assert.Equal(t, "how long to cook pasta", sr.Query)
	require.Equal(t, 1, sr.Count)
	require.Len(t, sr.Results, 1)
	assert.Equal(t, "cooking.md", sr.Results[0].Metadata.Filename)
	assert.Equal(t, search.Round(sr.Results[0].Similarity), sr.Results[0].Similarity)

	// When / Then: stats reflect the stored passages
	w = do(t, s, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[index.Stats](t, w)
	assert.Equal(t, "documents", stats.CollectionName)
	assert.Equal(t, 2, stats.TotalChunks)

	// When / Then: clear empties the collection
	w = do(t, s, http.MethodDelete, "/clear", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Index cleared successfully"}`, w.Body.String())

	w = do(t, s, http.MethodGet, "/stats", nil)
	assert.Equal(t, 0, decode[index.Stats](t, w).TotalChunks)

	// Writes took the writer lock and released it.
	assert.Equal(t, 2, locker.locks)
	assert.Equal(t, 2, locker.unlocks)
}

func TestSearch_EmptyCollection(t *testing.T) {
	s := newStack(t)

	w := do(t, s, http.MethodPost, "/search", SearchRequest{Query: "anything"})

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"query":"anything","results":[],"count":0}`, w.Body.String())
}

func TestSearch_PunctuationOnlyQuery(t *testing.T) {
	// Given: an indexed collection
	s := newStack(t)
	w := do(t, s, http.MethodPost, "/index", IndexRequest{DirectoryPath: writeDocs(t)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	for _, q := range []string{"?", "...", "!?-"} {
		// When: the query has no letters or digits
		w = do(t, s, http.MethodPost, "/search", SearchRequest{Query: q})

		// Then: a well-formed empty result, not a broken body
		require.Equal(t, http.StatusOK, w.Code, q)
		sr := decode[SearchResponse](t, w)
		assert.Equal(t, q, sr.Query)
		assert.Zero(t, sr.Count)
		assert.Empty(t, sr.Results)
	}
}

func TestIndex_ExtensionsFilter(t *testing.T) {
	s := newStack(t)
	dir := writeDocs(t)

	w := do(t, s, http.MethodPost, "/index", IndexRequest{DirectoryPath: dir, Extensions: []string{"md"}})

	require.Equal(t, http.StatusOK, w.Code)
	res := decode[index.Result](t, w)
	require.Len(t, res.Files, 1)
	assert.Equal(t, "cooking.md", filepath.Base(res.Files[0]))
}

// =============================================================================
// Errors
// =============================================================================

func TestRequestErrors(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"empty query", http.MethodPost, "/search", SearchRequest{Query: "  "}, http.StatusBadRequest},
		{"missing body", http.MethodPost, "/search", nil, http.StatusUnprocessableEntity},
		{"wrong type", http.MethodPost, "/search", map[string]any{"query": 3}, http.StatusUnprocessableEntity},
		{"missing directory", http.MethodPost, "/index", IndexRequest{DirectoryPath: "/does/not/exist"}, http.StatusNotFound},
		{"empty directory path", http.MethodPost, "/index", IndexRequest{}, http.StatusBadRequest},
		{"unknown route", http.MethodGet, "/nope", nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStack(t)

			w := do(t, s, tt.method, tt.path, tt.body)

			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestIndex_NotFoundDetail(t *testing.T) {
	s := newStack(t)

	w := do(t, s, http.MethodPost, "/index", IndexRequest{DirectoryPath: "/does/not/exist"})

	require.Equal(t, http.StatusNotFound, w.Code)
	resp := decode[ErrorResponse](t, w)
	assert.Contains(t, resp.Detail, "/does/not/exist")
	assert.Equal(t, errors.ErrCodeFileNotFound, resp.Code)
}

type stubSearcher struct{ err error }

func (s stubSearcher) Search(context.Context, string, int, float64) ([]search.Result, error) {
	return nil, s.err
}

func TestSearch_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"embedding failure", errors.EmbeddingFailed("model unavailable", nil), http.StatusInternalServerError},
		{"dimension mismatch", errors.New(errors.ErrCodeDimensionMismatch, "bad dims", nil), http.StatusBadRequest},
		{"locked", errors.New(errors.ErrCodeIndexLocked, "locked", nil), http.StatusConflict},
		{"plain error", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(DefaultConfig(), stubSearcher{err: tt.err}, nil, WithLogger(quietLogger))

			w := do(t, s, http.MethodPost, "/search", SearchRequest{Query: "q"})

			assert.Equal(t, tt.status, w.Code)
			assert.NotEmpty(t, decode[ErrorResponse](t, w).Detail)
		})
	}
}

func TestWrites_ConflictWhileLockHeldElsewhere(t *testing.T) {
	// Given: another process holds the collection's writer lock
	lockDir := t.TempDir()
	other := store.NewWriterLock(lockDir)
	require.NoError(t, other.TryLock())
	t.Cleanup(func() { _ = other.Unlock() })

	s := newStack(t, WithLocker(store.NewWriterLock(lockDir)))
	dir := writeDocs(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"index", http.MethodPost, "/index", IndexRequest{DirectoryPath: dir}},
		{"clear", http.MethodDelete, "/clear", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// When: a write arrives
			w := do(t, s, tt.method, tt.path, tt.body)

			// Then: it fails with 409 instead of waiting for the lock
			require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
			resp := decode[ErrorResponse](t, w)
			assert.Equal(t, errors.ErrCodeIndexLocked, resp.Code)
			assert.Contains(t, resp.Detail, "another process")
		})
	}

	// And: once released, writes go through
	require.NoError(t, other.Unlock())
	w := do(t, s, http.MethodPost, "/index", IndexRequest{DirectoryPath: dir})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestUninitialized(t *testing.T) {
	s := NewServer(DefaultConfig(), nil, nil, WithLogger(quietLogger))

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/search"},
		{http.MethodPost, "/index"},
		{http.MethodGet, "/stats"},
		{http.MethodDelete, "/clear"},
	} {
		w := do(t, s, tc.method, tc.path, map[string]any{"query": "q", "directory_path": "."})
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, tc.path)
	}
}

// =============================================================================
// Middleware
// =============================================================================

func TestCORSPreflight(t *testing.T) {
	s := newStack(t)

	w := do(t, s, http.MethodOptions, "/search", nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestID_Propagated(t *testing.T) {
	s := newStack(t)
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()

	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestLoggerMiddleware_RecordsRequest(t *testing.T) {
	var buf bytes.Buffer
	s := newStack(t, WithLogger(slog.New(slog.NewJSONHandler(&buf, nil))))

	do(t, s, http.MethodPost, "/search", SearchRequest{})

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "request_completed", rec["msg"])
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, float64(http.StatusBadRequest), rec["status"])
	assert.NotEmpty(t, rec["request_id"])
}

// =============================================================================
// Lifecycle
// =============================================================================

func TestServe_ShutsDownOnCancel(t *testing.T) {
	// Given: a server on a random port
	s := newStack(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	// When: it answers a request and the context is cancelled
	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get("http://" + ln.Addr().String() + "/")
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	cancel()

	// Then: Serve returns cleanly
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
