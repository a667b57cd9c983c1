package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Aman-CERP/semsearch/internal/errors"
	"github.com/Aman-CERP/semsearch/internal/search"
)

// SearchRequest is the body of POST /search. Absent fields take the
// server defaults.
type SearchRequest struct {
	Query     string   `json:"query"`
	TopK      *int     `json:"top_k,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
}

// SearchResponse is the body returned by POST /search.
type SearchResponse struct {
	Query   string          `json:"query"`
	Results []search.Result `json:"results"`
	Count   int             `json:"count"`
}

// IndexRequest is the body of POST /index.
type IndexRequest struct {
	DirectoryPath string   `json:"directory_path"`
	Extensions    []string `json:"extensions,omitempty"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Detail string `json:"detail"`
	Code   string `json:"code,omitempty"`
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Semantic Search Engine API",
		"docs":    "/docs",
		"health":  "ok",
	})
}

func (s *Server) handleSearch(c *gin.Context) {
	if s.searcher == nil {
		abort(c, http.StatusServiceUnavailable, "Search engine not initialized")
		return
	}

	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusUnprocessableEntity, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		abort(c, http.StatusBadRequest, "query must not be empty")
		return
	}

	topK := s.cfg.DefaultTopK
	if req.TopK != nil {
		topK = *req.TopK
	}
	threshold := s.cfg.Threshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	results, err := s.searcher.Search(c.Request.Context(), req.Query, topK, threshold)
	if err != nil {
		fail(c, err)
		return
	}

	results = search.Rounded(results)
	c.JSON(http.StatusOK, SearchResponse{Query: req.Query, Results: results, Count: len(results)})
}

func (s *Server) handleIndex(c *gin.Context) {
	if s.indexer == nil {
		abort(c, http.StatusServiceUnavailable, "Indexer not initialized")
		return
	}

	var req IndexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusUnprocessableEntity, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.DirectoryPath) == "" {
		abort(c, http.StatusBadRequest, "directory_path must not be empty")
		return
	}

	err := s.withWriteLock(func() error {
		result, err := s.indexer.IndexDirectory(c.Request.Context(), req.DirectoryPath, req.Extensions)
		if err != nil {
			return err
		}
		c.JSON(http.StatusOK, result)
		return nil
	})
	if err != nil {
		fail(c, err)
	}
}

func (s *Server) handleStats(c *gin.Context) {
	if s.indexer == nil {
		abort(c, http.StatusServiceUnavailable, "Indexer not initialized")
		return
	}

	stats, err := s.indexer.Stats(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleClear(c *gin.Context) {
	if s.indexer == nil {
		abort(c, http.StatusServiceUnavailable, "Indexer not initialized")
		return
	}

	err := s.withWriteLock(func() error {
		return s.indexer.Clear(c.Request.Context())
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Index cleared successfully"})
}

func abort(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Detail: detail})
}

// fail maps err to a status: missing files 404, bad input 400, a held
// writer lock 409, everything else 500.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)

	status := http.StatusInternalServerError
	switch {
	case errors.HasCode(err, errors.ErrCodeFileNotFound):
		status = http.StatusNotFound
	case errors.HasCode(err, errors.ErrCodeIndexLocked):
		status = http.StatusConflict
	case errors.GetCategory(err) == errors.CategoryValidation:
		status = http.StatusBadRequest
	}

	detail := err.Error()
	if ae, ok := errors.As(err); ok {
		detail = ae.Message
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Detail: detail, Code: errors.GetCode(err)})
}
