package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/semsearch/internal/index"
	"github.com/Aman-CERP/semsearch/internal/search"
	"github.com/Aman-CERP/semsearch/pkg/version"
)

// ServerName is reported to clients during initialization.
const ServerName = "semsearch"

// MaxTopK caps the number of results a client may request.
const MaxTopK = 50

// Searcher answers queries.
type Searcher interface {
	Search(ctx context.Context, query string, topK int, threshold float64) ([]search.Result, error)
	SearchWithFilter(ctx context.Context, query, filter string, topK int) ([]search.Result, error)
}

// Indexer writes and inspects the collection.
type Indexer interface {
	IndexDirectory(ctx context.Context, dir string, extensions []string) (*index.Result, error)
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (index.Stats, error)
}

// FileLister lists indexed files for the files resource.
type FileLister interface {
	Files(ctx context.Context) ([]string, error)
}

// Locker guards writes against other processes. TryLock must not block;
// it fails with ERR_209_INDEX_LOCKED while another process writes.
type Locker interface {
	TryLock() error
	Unlock() error
}

// Dependencies are the components behind the tools. Files and Lock are
// optional.
type Dependencies struct {
	Searcher Searcher
	Indexer  Indexer
	Files    FileLister
	Lock     Locker
	Logger   *slog.Logger
}

// Config holds tool defaults.
type Config struct {
	DefaultTopK int
	Threshold   float64
}

// Server bridges MCP clients and the search engine.
type Server struct {
	mcp      *mcp.Server
	searcher Searcher
	indexer  Indexer
	files    FileLister
	lock     Locker
	cfg      Config
	logger   *slog.Logger

	writeMu sync.Mutex
}

// NewServer registers the tools. Searcher and Indexer are required.
func NewServer(deps Dependencies, cfg Config) (*Server, error) {
	if deps.Searcher == nil {
		return nil, stderrors.New("searcher is required")
	}
	if deps.Indexer == nil {
		return nil, stderrors.New("indexer is required")
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = search.DefaultTopK
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		searcher: deps.Searcher,
		indexer:  deps.Indexer,
		files:    deps.Files,
		lock:     deps.Lock,
		cfg:      cfg,
		logger:   logger,
	}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: version.Version}, nil)
	s.registerTools()
	s.registerResources()
	return s, nil
}

// MCPServer returns the SDK server, e.g. to connect an in-memory transport.
func (s *Server) MCPServer() *mcp.Server { return s.mcp }

// Serve runs the server over stdio until ctx is cancelled or the client
// disconnects. Nothing else may write to stdout meanwhile.
func (s *Server) Serve(ctx context.Context) error {
	return s.Run(ctx, &mcp.StdioTransport{})
}

// Run serves a single session over t.
func (s *Server) Run(ctx context.Context, t mcp.Transport) error {
	s.logger.Info("mcp_server_started")
	err := s.mcp.Run(ctx, t)
	if err != nil && !stderrors.Is(err, context.Canceled) {
		s.logger.Error("mcp_server_failed", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("mcp_server_stopped")
	return nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: "search", Description: toolDescriptions["search"]}, s.handleSearch)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: "index_directory", Description: toolDescriptions["index_directory"]}, s.handleIndexDirectory)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: "index_stats", Description: toolDescriptions["index_stats"]}, s.handleIndexStats)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: "clear_index", Description: toolDescriptions["clear_index"]}, s.handleClearIndex)
	s.logger.Debug("mcp_tools_registered", slog.Int("count", len(toolDescriptions)))
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query must not be empty")
	}

	requestID := newRequestID()
	start := time.Now()
	topK := clampTopK(in.TopK, s.cfg.DefaultTopK, MaxTopK)
	threshold := s.cfg.Threshold
	if in.Threshold != nil {
		threshold = *in.Threshold
	}

	var (
		results []search.Result
		err     error
	)
	if in.Filter != "" {
		results, err = s.searcher.SearchWithFilter(ctx, in.Query, in.Filter, topK)
		results = aboveThreshold(results, threshold)
	} else {
		results, err = s.searcher.Search(ctx, in.Query, topK, threshold)
	}
	if err != nil {
		s.logger.Error("mcp_search_failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return nil, SearchOutput{}, MapError(err)
	}

	results = search.Rounded(results)
	s.logger.Info("mcp_search_complete",
		slog.String("request_id", requestID),
		slog.Int("results", len(results)),
		slog.Duration("duration", time.Since(start)))

	res := &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: FormatSearchResults(in.Query, results)}},
	}
	return res, SearchOutput{Query: in.Query, Results: results, Count: len(results)}, nil
}

func (s *Server) handleIndexDirectory(ctx context.Context, _ *mcp.CallToolRequest, in IndexDirectoryInput) (*mcp.CallToolResult, *index.Result, error) {
	if strings.TrimSpace(in.DirectoryPath) == "" {
		return nil, nil, NewInvalidParamsError("directory_path must not be empty")
	}

	var result *index.Result
	err := s.withWriteLock(func() error {
		var err error
		result, err = s.indexer.IndexDirectory(ctx, in.DirectoryPath, in.Extensions)
		return err
	})
	if err != nil {
		return nil, nil, MapError(err)
	}
	return nil, result, nil
}

func (s *Server) handleIndexStats(ctx context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, index.Stats, error) {
	stats, err := s.indexer.Stats(ctx)
	if err != nil {
		return nil, index.Stats{}, MapError(err)
	}
	return nil, stats, nil
}

func (s *Server) handleClearIndex(ctx context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, ClearOutput, error) {
	if err := s.withWriteLock(func() error { return s.indexer.Clear(ctx) }); err != nil {
		return nil, ClearOutput{}, MapError(err)
	}
	return nil, ClearOutput{Message: "Index cleared successfully"}, nil
}

func (s *Server) withWriteLock(fn func() error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.lock != nil {
		if err := s.lock.TryLock(); err != nil {
			return fmt.Errorf("failed to lock index: %w", err)
		}
		defer func() { _ = s.lock.Unlock() }()
	}
	return fn()
}

// aboveThreshold drops results below threshold in place.
func aboveThreshold(results []search.Result, threshold float64) []search.Result {
	kept := results[:0]
	for _, r := range results {
		if r.Similarity >= threshold {
			kept = append(kept, r)
		}
	}
	return kept
}

// newRequestID returns a short id for log correlation.
func newRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
