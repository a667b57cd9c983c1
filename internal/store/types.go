// Package store persists passage records and answers nearest-neighbour
// queries over their embeddings.
//
// A Collection keeps records in SQLite (modernc.org/sqlite) and an HNSW
// graph (coder/hnsw) over their vectors. SQLite is the source of truth; the
// graph is a cache that is rebuilt from it whenever the two disagree.
package store

import "context"

const (
	// CollectionName is the name of the single collection.
	CollectionName = "documents"

	// DefaultPath is the default collection directory.
	DefaultPath = ".db"

	// DefaultM is the HNSW neighbour count per node.
	DefaultM = 16

	// DefaultEfSearch is the HNSW candidate list size at query time.
	DefaultEfSearch = 64
)

// Metadata keys as persisted and as exposed over HTTP/MCP.
const (
	MetaFile       = "file"
	MetaFilename   = "filename"
	MetaChunkIndex = "chunk_index"
	MetaFileType   = "file_type"
)

// Metadata describes where a record came from.
type Metadata struct {
	File       string `json:"file"`
	Filename   string `json:"filename"`
	ChunkIndex int    `json:"chunk_index"`
	FileType   string `json:"file_type"`
}

// Record is one stored passage.
type Record struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata Metadata
}

// QueryResult is a record returned by Query with its distance to the query.
type QueryResult struct {
	ID       string
	Text     string
	Metadata Metadata
	Distance float32
}

// Config configures a Collection.
type Config struct {
	// Path is the collection directory (default .db).
	Path string

	// Metric is "cosine" (default) or "l2". It is fixed for the lifetime of
	// the collection; reopening with another metric fails.
	Metric string

	M        int
	EfSearch int
}

// DefaultConfig returns a cosine collection at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:     path,
		Metric:   "cosine",
		M:        DefaultM,
		EfSearch: DefaultEfSearch,
	}
}

// VectorStore is the storage contract used by the indexer and the search
// engine.
type VectorStore interface {
	// Add inserts or overwrites records. All slices must have equal length.
	// The batch is atomic.
	Add(ctx context.Context, ids []string, vectors [][]float32, texts []string, metas []Metadata) error

	// ReplaceFile removes every record of file and inserts the given ones,
	// atomically.
	ReplaceFile(ctx context.Context, file string, ids []string, vectors [][]float32, texts []string, metas []Metadata) error

	// Query returns up to k records nearest to vector, ascending by distance.
	Query(ctx context.Context, vector []float32, k int) ([]QueryResult, error)

	// Clear removes every record and keeps the metric.
	Clear(ctx context.Context) error

	// Count returns the number of records.
	Count(ctx context.Context) (int, error)

	// EnsureEmbedder binds the collection to a model and dimension on first
	// use and rejects a different dimension afterwards.
	EnsureEmbedder(ctx context.Context, model string, dims int) error

	Name() string
	Metric() Metric
	Close() error
}
