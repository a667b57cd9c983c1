// Package api serves search, indexing and stats over HTTP.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Aman-CERP/semsearch/internal/index"
	"github.com/Aman-CERP/semsearch/internal/search"
)

// Searcher answers queries.
type Searcher interface {
	Search(ctx context.Context, query string, topK int, threshold float64) ([]search.Result, error)
}

// Indexer writes and inspects the collection.
type Indexer interface {
	IndexDirectory(ctx context.Context, dir string, extensions []string) (*index.Result, error)
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (index.Stats, error)
}

// Locker guards writes against other processes. TryLock must not block;
// it fails with ERR_209_INDEX_LOCKED while another process writes.
type Locker interface {
	TryLock() error
	Unlock() error
}

// Config holds server settings.
type Config struct {
	Addr            string
	DefaultTopK     int
	Threshold       float64
	ShutdownTimeout time.Duration
}

// DefaultConfig listens on :8000 with top_k 5 and threshold 0.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8000",
		DefaultTopK:     search.DefaultTopK,
		Threshold:       0,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Server is the HTTP front end. A nil Searcher or Indexer makes the
// routes that need it answer 503.
type Server struct {
	cfg      Config
	searcher Searcher
	indexer  Indexer
	lock     Locker
	logger   *slog.Logger

	// writeMu serializes writers inside this process; lock covers others.
	writeMu sync.Mutex
	router  *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithLocker takes l around every write.
func WithLocker(l Locker) Option {
	return func(s *Server) { s.lock = l }
}

// WithLogger sets the request logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer builds the router.
func NewServer(cfg Config, searcher Searcher, indexer Indexer, opts ...Option) *Server {
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = search.DefaultTopK
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}

	s := &Server{
		cfg:      cfg,
		searcher: searcher,
		indexer:  indexer,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(LoggerMiddleware(s.logger))
	router.Use(CORSMiddleware())

	router.GET("/", s.handleRoot)
	router.POST("/search", s.handleSearch)
	router.POST("/index", s.handleIndex)
	router.GET("/stats", s.handleStats)
	router.DELETE("/clear", s.handleClear)
	return router
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on cfg.Addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http_server_started", slog.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("http_server_stopped")
	return nil
}

// withWriteLock runs fn while holding the in-process and cross-process
// writer locks. A write held by another process fails at once.
func (s *Server) withWriteLock(fn func() error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.lock != nil {
		if err := s.lock.TryLock(); err != nil {
			return err
		}
		defer func() { _ = s.lock.Unlock() }()
	}
	return fn()
}
