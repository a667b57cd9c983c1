package store

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/coder/hnsw"
)

// vectorGraph is an HNSW graph keyed by record id. It is not safe for
// concurrent use; Collection guards it.
//
// Removal is lazy: the node stays in the graph and only the id mapping is
// dropped, because deleting the last node corrupts a coder/hnsw graph.
// Orphaned nodes are filtered out of results and disappear on rebuild.
type vectorGraph struct {
	graph  *hnsw.Graph[uint64]
	metric Metric
	params graphParams

	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	// generation is the collection write generation the graph was saved at.
	generation int64
}

type graphParams struct {
	M        int
	EfSearch int
}

// graphMeta is the gob sidecar written next to the exported graph.
type graphMeta struct {
	IDMap      map[string]uint64
	NextKey    uint64
	Metric     string
	Generation int64
}

type graphHit struct {
	ID       string
	Distance float32
}

func newVectorGraph(metric Metric, params graphParams) *vectorGraph {
	if params.M <= 0 {
		params.M = DefaultM
	}
	if params.EfSearch <= 0 {
		params.EfSearch = DefaultEfSearch
	}

	g := hnsw.NewGraph[uint64]()
	g.Distance = metric.DistanceFunc()
	g.M = params.M
	g.EfSearch = params.EfSearch
	g.Ml = 0.25

	return &vectorGraph{
		graph:  g,
		metric: metric,
		params: params,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}
}

// add inserts vec under id, orphaning any previous node for the same id.
func (v *vectorGraph) add(id string, vec []float32) {
	v.remove(id)

	if v.metric.Normalize() {
		vec = normalizeCopy(vec)
	}

	key := v.nextKey
	v.nextKey++
	v.graph.Add(hnsw.MakeNode(key, vec))
	v.idMap[id] = key
	v.keyMap[key] = id
}

func (v *vectorGraph) remove(ids ...string) {
	for _, id := range ids {
		if key, ok := v.idMap[id]; ok {
			delete(v.keyMap, key)
			delete(v.idMap, id)
		}
	}
}

func (v *vectorGraph) len() int { return len(v.idMap) }

func (v *vectorGraph) orphans() int { return v.graph.Len() - len(v.idMap) }

// search returns up to k live ids nearest to query, ascending by distance.
// It over-fetches by the orphan count so filtered nodes do not shrink the
// result.
func (v *vectorGraph) search(query []float32, k int) []graphHit {
	if k <= 0 || len(v.idMap) == 0 {
		return []graphHit{}
	}

	if v.metric.Normalize() {
		query = normalizeCopy(query)
	}

	fetch := min(k+v.orphans(), v.graph.Len())
	nodes := v.graph.Search(query, fetch)

	hits := make([]graphHit, 0, len(nodes))
	for _, node := range nodes {
		id, ok := v.keyMap[node.Key]
		if !ok {
			continue
		}
		hits = append(hits, graphHit{ID: id, Distance: v.metric.Distance(query, node.Value)})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// save exports the graph and its id mapping, each via temp file + rename.
func (v *vectorGraph) save(path string, generation int64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := writeAtomic(path, func(f *os.File) error { return v.graph.Export(f) }); err != nil {
		return fmt.Errorf("failed to export graph: %w", err)
	}

	meta := graphMeta{IDMap: v.idMap, NextKey: v.nextKey, Metric: v.metric.Name(), Generation: generation}
	if err := writeAtomic(path+".meta", func(f *os.File) error { return gob.NewEncoder(f).Encode(meta) }); err != nil {
		return fmt.Errorf("failed to save graph metadata: %w", err)
	}
	return nil
}

// loadVectorGraph imports a graph written by save.
func loadVectorGraph(path string, metric Metric, params graphParams) (*vectorGraph, error) {
	metaFile, err := os.Open(path + ".meta")
	if err != nil {
		return nil, err
	}
	var meta graphMeta
	decodeErr := gob.NewDecoder(metaFile).Decode(&meta)
	_ = metaFile.Close()
	if decodeErr != nil {
		return nil, fmt.Errorf("decode graph metadata: %w", decodeErr)
	}
	if meta.Metric != metric.Name() {
		return nil, fmt.Errorf("graph metric %q does not match %q", meta.Metric, metric.Name())
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	v := newVectorGraph(metric, params)
	// Import needs an io.ByteReader.
	if err := v.graph.Import(bufio.NewReader(file)); err != nil {
		return nil, fmt.Errorf("failed to import graph: %w", err)
	}
	v.graph.Distance = metric.DistanceFunc()
	v.graph.EfSearch = v.params.EfSearch

	v.idMap = meta.IDMap
	if v.idMap == nil {
		v.idMap = make(map[string]uint64)
	}
	v.nextKey = meta.NextKey
	v.generation = meta.Generation
	for id, key := range v.idMap {
		v.keyMap[key] = id
	}
	return v, nil
}

func removeGraphFiles(path string) {
	for _, p := range []string{path, path + ".meta"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove graph file", slog.String("path", p), slog.String("error", err.Error()))
		}
	}
}

func writeAtomic(path string, write func(*os.File) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
