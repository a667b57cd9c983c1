package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/Aman-CERP/semsearch/internal/errors"
)

const (
	metaKeyMetric = "metric"
	metaKeyDims   = "dims"
	metaKeyModel  = "model"

	// metaKeyGeneration counts committed writes, so a handle can tell when
	// another process has changed the records under its graph.
	metaKeyGeneration = "generation"
)

// Collection is the persistent "documents" collection.
type Collection struct {
	mu sync.RWMutex

	db     *sql.DB
	dir    string
	metric Metric
	params graphParams
	graph  *vectorGraph

	dims       int
	model      string
	generation int64

	dirty  bool
	closed bool
}

var _ VectorStore = (*Collection)(nil)

// Open opens or creates the collection in cfg.Path.
func Open(ctx context.Context, cfg Config) (*Collection, error) {
	metric, err := MetricByName(cfg.Metric)
	if err != nil {
		return nil, err
	}
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, errors.StoreFailed(fmt.Sprintf("failed to create collection directory %s", cfg.Path), err)
	}

	dbPath := filepath.Join(cfg.Path, CollectionName+".sqlite")
	if err := checkIntegrity(ctx, dbPath); err != nil {
		return nil, err
	}

	// DSN params may be ignored by modernc.org/sqlite, so the pragmas are
	// also set explicitly below.
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.StoreFailed("failed to open database", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	c := &Collection{
		db:     db,
		dir:    cfg.Path,
		metric: metric,
		params: graphParams{M: cfg.M, EfSearch: cfg.EfSearch},
	}

	if err := c.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func checkIntegrity(ctx context.Context, dbPath string) error {
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", dbPath+"?mode=ro")
	if err != nil {
		return errors.StoreFailed("cannot open database for validation", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return corruptIndex(dbPath, err)
	}
	if result != "ok" {
		return corruptIndex(dbPath, fmt.Errorf("integrity check: %s", result))
	}
	return nil
}

func corruptIndex(path string, cause error) error {
	return errors.New(errors.ErrCodeCorruptIndex, "index database is corrupted", cause).
		WithDetail("path", path).
		WithSuggestion("delete the index directory and re-run 'semsearch index'")
}

func (c *Collection) init(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := c.db.ExecContext(ctx, pragma); err != nil {
			return errors.StoreFailed("failed to set pragma", err)
		}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id          TEXT PRIMARY KEY,
		file        TEXT NOT NULL,
		filename    TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		file_type   TEXT NOT NULL,
		text        TEXT NOT NULL,
		embedding   BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_records_file ON records(file);

	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return errors.StoreFailed("failed to initialize schema", err)
	}

	meta, err := c.readMeta(ctx)
	if err != nil {
		return err
	}

	switch stored := meta[metaKeyMetric]; {
	case stored == "":
		if _, err := c.db.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`,
			metaKeyMetric, c.metric.Name()); err != nil {
			return errors.StoreFailed("failed to record metric", err)
		}
	case stored != c.metric.Name():
		return errors.New(errors.ErrCodeMetricMismatch,
			fmt.Sprintf("collection uses metric %q, not %q", stored, c.metric.Name()), nil).
			WithSuggestion("keep the original metric or clear the index")
	}

	if v := meta[metaKeyDims]; v != "" {
		c.dims, _ = strconv.Atoi(v)
	}
	c.model = meta[metaKeyModel]
	c.generation = parseGeneration(meta[metaKeyGeneration])

	return c.loadGraph(ctx)
}

func parseGeneration(v string) int64 {
	n, _ := strconv.ParseInt(v, 10, 64)
	return n
}

func (c *Collection) readGeneration(ctx context.Context) (int64, error) {
	var v string
	err := c.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, metaKeyGeneration).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.StoreFailed("failed to read collection generation", err)
	}
	return parseGeneration(v), nil
}

// bumpGeneration increments the write generation inside tx and returns it.
func bumpGeneration(ctx context.Context, tx *sql.Tx) (int64, error) {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, '1')
		 ON CONFLICT(key) DO UPDATE SET value = CAST(CAST(value AS INTEGER) + 1 AS TEXT)`,
		metaKeyGeneration); err != nil {
		return 0, errors.StoreFailed("failed to advance collection generation", err)
	}
	var v string
	if err := tx.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, metaKeyGeneration).Scan(&v); err != nil {
		return 0, errors.StoreFailed("failed to read collection generation", err)
	}
	return parseGeneration(v), nil
}

// refresh reloads the graph when another handle has committed writes since
// this one last looked.
func (c *Collection) refresh(ctx context.Context) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return errClosed()
	}
	gen, err := c.readGeneration(ctx)
	current := c.generation
	c.mu.RUnlock()
	if err != nil {
		return err
	}
	if gen == current {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed()
	}
	return c.refreshLocked(ctx)
}

func (c *Collection) refreshLocked(ctx context.Context) error {
	gen, err := c.readGeneration(ctx)
	if err != nil {
		return err
	}
	if gen == c.generation {
		return nil
	}

	meta, err := c.readMeta(ctx)
	if err != nil {
		return err
	}
	c.dims = 0
	if v := meta[metaKeyDims]; v != "" {
		c.dims, _ = strconv.Atoi(v)
	}
	c.model = meta[metaKeyModel]
	c.generation = gen

	slog.Debug("collection_changed_externally", slog.Int64("generation", gen))
	return c.loadGraph(ctx)
}

func (c *Collection) readMeta(ctx context.Context) (map[string]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return nil, errors.StoreFailed("failed to read collection metadata", err)
	}
	defer func() { _ = rows.Close() }()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, errors.StoreFailed("failed to read collection metadata", err)
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

// loadGraph imports the persisted graph when it matches the records, and
// rebuilds it from SQLite otherwise.
func (c *Collection) loadGraph(ctx context.Context) error {
	count, err := c.count(ctx)
	if err != nil {
		return err
	}

	g, err := loadVectorGraph(c.graphPath(), c.metric, c.params)
	switch {
	case err == nil && g.len() == count && g.generation == c.generation:
		c.graph = g
		return nil
	case err != nil && !os.IsNotExist(err):
		slog.Warn("vector_graph_unreadable",
			slog.String("path", c.graphPath()),
			slog.String("error", err.Error()))
	case err == nil:
		slog.Warn("vector_graph_stale",
			slog.Int("graph", g.len()),
			slog.Int("records", count),
			slog.Int64("graph_generation", g.generation),
			slog.Int64("generation", c.generation))
	}

	return c.rebuildGraph(ctx)
}

func (c *Collection) rebuildGraph(ctx context.Context) error {
	rows, err := c.db.QueryContext(ctx, `SELECT id, embedding FROM records ORDER BY rowid`)
	if err != nil {
		return errors.StoreFailed("failed to read vectors", err)
	}
	defer func() { _ = rows.Close() }()

	g := newVectorGraph(c.metric, c.params)
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return errors.StoreFailed("failed to read vectors", err)
		}
		g.add(id, decodeVector(blob))
	}
	if err := rows.Err(); err != nil {
		return errors.StoreFailed("failed to read vectors", err)
	}

	c.graph = g
	c.dirty = g.len() > 0
	slog.Debug("vector_graph_rebuilt", slog.Int("records", g.len()))
	return nil
}

func (c *Collection) graphPath() string {
	return filepath.Join(c.dir, CollectionName+".hnsw")
}

// Name returns the collection name.
func (c *Collection) Name() string { return CollectionName }

// Metric returns the collection's distance metric.
func (c *Collection) Metric() Metric { return c.metric }

// Path returns the collection directory.
func (c *Collection) Path() string { return c.dir }

// Dimensions returns the bound vector length, or 0 before the first write.
func (c *Collection) Dimensions() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dims
}

// Model returns the bound embedding model name, if any.
func (c *Collection) Model() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model
}

// EnsureEmbedder binds the collection to model and dims on first use.
func (c *Collection) EnsureEmbedder(ctx context.Context, model string, dims int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed()
	}
	if err := c.refreshLocked(ctx); err != nil {
		return err
	}

	if c.dims != 0 && c.dims != dims {
		return dimensionMismatch(c.dims, dims).
			WithSuggestion(fmt.Sprintf("the index was built with %q; clear it before switching models", c.model))
	}
	if c.model != "" && c.model != model {
		slog.Warn("embedding_model_changed",
			slog.String("indexed_with", c.model),
			slog.String("current", model))
		return nil
	}
	if c.dims == dims && c.model == model {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.StoreFailed("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := upsertMeta(ctx, tx, metaKeyDims, strconv.Itoa(dims)); err != nil {
		return err
	}
	if err := upsertMeta(ctx, tx, metaKeyModel, model); err != nil {
		return err
	}
	gen, err := bumpGeneration(ctx, tx)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.StoreFailed("failed to commit", err)
	}

	c.dims = dims
	c.model = model
	c.generation = gen
	return nil
}

// Add inserts or overwrites records in one transaction.
func (c *Collection) Add(ctx context.Context, ids []string, vectors [][]float32, texts []string, metas []Metadata) error {
	return c.write(ctx, nil, ids, vectors, texts, metas)
}

// ReplaceFile deletes all records whose file metadata equals file and
// inserts the given records, in one transaction.
func (c *Collection) ReplaceFile(ctx context.Context, file string, ids []string, vectors [][]float32, texts []string, metas []Metadata) error {
	return c.write(ctx, &file, ids, vectors, texts, metas)
}

func (c *Collection) write(ctx context.Context, replaceFile *string, ids []string, vectors [][]float32, texts []string, metas []Metadata) error {
	if len(vectors) != len(ids) || len(texts) != len(ids) || len(metas) != len(ids) {
		return errors.New(errors.ErrCodeLengthMismatch,
			fmt.Sprintf("batch length mismatch: ids=%d vectors=%d texts=%d metadatas=%d",
				len(ids), len(vectors), len(texts), len(metas)), nil)
	}
	if replaceFile == nil && len(ids) == 0 {
		return nil
	}

	for i, v := range vectors {
		if IsZero(v) {
			return errors.New(errors.ErrCodeZeroVector,
				fmt.Sprintf("record %s has a zero-norm vector", ids[i]), nil)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed()
	}
	if err := c.refreshLocked(ctx); err != nil {
		return err
	}

	dims := c.dims
	for _, v := range vectors {
		if dims == 0 {
			dims = len(v)
		}
		if len(v) != dims || dims == 0 {
			return dimensionMismatch(dims, len(v))
		}
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.StoreFailed("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	var removed []string
	if replaceFile != nil {
		if removed, err = idsForFile(ctx, tx, *replaceFile); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE file = ?`, *replaceFile); err != nil {
			return errors.StoreFailed("failed to delete stale records", err)
		}
	}

	if len(ids) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO records
			(id, file, filename, chunk_index, file_type, text, embedding)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return errors.StoreFailed("failed to prepare insert", err)
		}
		defer func() { _ = stmt.Close() }()

		for i, id := range ids {
			m := metas[i]
			if _, err := stmt.ExecContext(ctx, id, m.File, m.Filename, m.ChunkIndex, m.FileType,
				texts[i], encodeVector(vectors[i])); err != nil {
				return errors.StoreFailed(fmt.Sprintf("failed to insert record %s", id), err)
			}
		}
	}

	if c.dims == 0 && dims != 0 {
		if err := upsertMeta(ctx, tx, metaKeyDims, strconv.Itoa(dims)); err != nil {
			return err
		}
	}
	gen, err := bumpGeneration(ctx, tx)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.StoreFailed("failed to commit", err)
	}

	// The graph only changes once the records are durable.
	c.graph.remove(removed...)
	for i, id := range ids {
		c.graph.add(id, vectors[i])
	}
	if dims != 0 {
		c.dims = dims
	}
	c.generation = gen
	c.dirty = true
	return nil
}

// Query returns up to k records nearest to vector. A zero-norm vector
// matches nothing.
func (c *Collection) Query(ctx context.Context, vector []float32, k int) ([]QueryResult, error) {
	if err := c.refresh(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, errClosed()
	}

	if k <= 0 || c.graph.len() == 0 {
		return []QueryResult{}, nil
	}
	if len(vector) != c.dims {
		return nil, dimensionMismatch(c.dims, len(vector))
	}
	if IsZero(vector) {
		return []QueryResult{}, nil
	}

	hits := c.graph.search(vector, k)
	if len(hits) == 0 {
		return []QueryResult{}, nil
	}

	ids := make([]any, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, file, filename, chunk_index, file_type, text FROM records WHERE id IN (`+placeholders+`)`, ids...)
	if err != nil {
		return nil, errors.StoreFailed("failed to load query results", err)
	}
	defer func() { _ = rows.Close() }()

	byID := make(map[string]QueryResult, len(hits))
	for rows.Next() {
		var r QueryResult
		if err := rows.Scan(&r.ID, &r.Metadata.File, &r.Metadata.Filename, &r.Metadata.ChunkIndex,
			&r.Metadata.FileType, &r.Text); err != nil {
			return nil, errors.StoreFailed("failed to load query results", err)
		}
		byID[r.ID] = r
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StoreFailed("failed to load query results", err)
	}

	results := make([]QueryResult, 0, len(hits))
	for _, h := range hits {
		r, ok := byID[h.ID]
		if !ok {
			continue
		}
		r.Distance = h.Distance
		results = append(results, r)
	}
	return results, nil
}

// Get returns the record with id, or nil if there is none.
func (c *Collection) Get(ctx context.Context, id string) (*Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, errClosed()
	}

	r := &Record{ID: id}
	var blob []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT file, filename, chunk_index, file_type, text, embedding FROM records WHERE id = ?`, id).
		Scan(&r.Metadata.File, &r.Metadata.Filename, &r.Metadata.ChunkIndex, &r.Metadata.FileType, &r.Text, &blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.StoreFailed("failed to read record", err)
	}
	r.Vector = decodeVector(blob)
	return r, nil
}

// Files returns the distinct source files in the collection, sorted.
func (c *Collection) Files(ctx context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, errClosed()
	}

	rows, err := c.db.QueryContext(ctx, `SELECT DISTINCT file FROM records ORDER BY file`)
	if err != nil {
		return nil, errors.StoreFailed("failed to list files", err)
	}
	defer func() { _ = rows.Close() }()

	files := []string{}
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, errors.StoreFailed("failed to list files", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// Count returns the number of records.
func (c *Collection) Count(ctx context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return 0, errClosed()
	}
	return c.count(ctx)
}

func (c *Collection) count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, errors.StoreFailed("failed to count records", err)
	}
	return n, nil
}

// Clear deletes every record and resets the embedder binding. The metric
// is kept.
func (c *Collection) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed()
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.StoreFailed("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return errors.StoreFailed("failed to clear records", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM meta WHERE key IN (?, ?)`, metaKeyDims, metaKeyModel); err != nil {
		return errors.StoreFailed("failed to clear metadata", err)
	}
	gen, err := bumpGeneration(ctx, tx)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.StoreFailed("failed to commit", err)
	}

	c.graph = newVectorGraph(c.metric, c.params)
	c.dims = 0
	c.model = ""
	c.generation = gen
	c.dirty = false
	removeGraphFiles(c.graphPath())
	return nil
}

// Save persists the graph. A graph that is mostly orphans is rebuilt first.
func (c *Collection) Save(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed()
	}
	return c.save(ctx)
}

func (c *Collection) save(ctx context.Context) error {
	if c.graph.len() == 0 {
		removeGraphFiles(c.graphPath())
		c.dirty = false
		return nil
	}
	if c.graph.orphans() > c.graph.len() {
		if err := c.rebuildGraph(ctx); err != nil {
			return err
		}
	}
	if err := c.graph.save(c.graphPath(), c.generation); err != nil {
		return errors.StoreFailed("failed to save vector graph", err)
	}
	c.dirty = false
	return nil
}

// Close saves pending graph changes and closes the database.
func (c *Collection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	var saveErr error
	if c.dirty {
		saveErr = c.save(context.Background())
	}
	_, _ = c.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	if err := c.db.Close(); err != nil && saveErr == nil {
		saveErr = errors.StoreFailed("failed to close database", err)
	}
	return saveErr
}

func idsForFile(ctx context.Context, tx *sql.Tx, file string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM records WHERE file = ?`, file)
	if err != nil {
		return nil, errors.StoreFailed("failed to read file records", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.StoreFailed("failed to read file records", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func upsertMeta(ctx context.Context, tx *sql.Tx, key, value string) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value); err != nil {
		return errors.StoreFailed(fmt.Sprintf("failed to write %s", key), err)
	}
	return nil
}

func dimensionMismatch(expected, got int) *errors.AppError {
	return errors.New(errors.ErrCodeDimensionMismatch,
		fmt.Sprintf("vector dimension %d does not match collection dimension %d", got, expected), nil)
}

func errClosed() error {
	return errors.StoreFailed("collection is closed", nil)
}

// encodeVector stores a vector as little-endian float32s.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
