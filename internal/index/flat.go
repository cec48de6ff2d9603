// Package index provides an exact inner-product nearest-neighbor index
// with a metadata side table and durable save/load.
package index

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/randalmurphy/codelens/internal/analysis"
)

var (
	// ErrCorrupt is returned when the vector store and metadata table
	// disagree. A partial pair is corruption, never a valid state.
	ErrCorrupt = errors.New("index corrupt")
	// ErrDimensionMismatch is returned when a vector does not match the
	// index's configured dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

const (
	vectorMagic   = "CLVX"
	vectorVersion = uint32(1)
)

// Hit is one search result: a metadata row and its inner-product score.
type Hit struct {
	Row   int
	Score float32
}

// Flat is an exact inner-product index over unit-normalized vectors.
// Row i of the vector store corresponds to row i of the metadata table;
// every mutation preserves that pairing or fails whole.
//
// Mutations take the write lock; any number of searches proceed
// concurrently against a stable snapshot under the read lock.
type Flat struct {
	mu         sync.RWMutex
	dimension  int
	generation uint64
	vectors    [][]float32
	metadata   []analysis.Record
	logger     *slog.Logger
}

// NewFlat creates an empty index for vectors of the given dimension.
func NewFlat(dimension int, logger *slog.Logger) *Flat {
	if logger == nil {
		logger = slog.Default()
	}
	return &Flat{
		dimension: dimension,
		logger:    logger,
	}
}

// Dimension returns the configured vector dimension.
func (f *Flat) Dimension() int { return f.dimension }

// Len returns the number of indexed vectors.
func (f *Flat) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.vectors)
}

// Generation returns the index generation, bumped on every rebuild.
func (f *Flat) Generation() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.generation
}

// Add appends vectors and their metadata rows as one unit.
func (f *Flat) Add(vectors [][]float32, metadata []analysis.Record) error {
	if len(vectors) != len(metadata) {
		return fmt.Errorf("%w: %d vectors, %d metadata rows", ErrCorrupt, len(vectors), len(metadata))
	}
	for _, v := range vectors {
		if len(v) != f.dimension {
			return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), f.dimension)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.vectors = append(f.vectors, vectors...)
	f.metadata = append(f.metadata, metadata...)
	f.generation++
	return nil
}

// Replace swaps the vector store and metadata table atomically,
// discarding previous contents.
func (f *Flat) Replace(vectors [][]float32, metadata []analysis.Record) error {
	if len(vectors) != len(metadata) {
		return fmt.Errorf("%w: %d vectors, %d metadata rows", ErrCorrupt, len(vectors), len(metadata))
	}
	for _, v := range vectors {
		if len(v) != f.dimension {
			return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), f.dimension)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.vectors = vectors
	f.metadata = metadata
	f.generation++
	return nil
}

// Clear drops all vectors and metadata.
func (f *Flat) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vectors = nil
	f.metadata = nil
	f.generation++
}

// Search returns the top-k rows by inner product, score descending.
func (f *Flat) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != f.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(query), f.dimension)
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if k <= 0 || len(f.vectors) == 0 {
		return []Hit{}, nil
	}

	hits := make([]Hit, len(f.vectors))
	for i, v := range f.vectors {
		hits[i] = Hit{Row: i, Score: dot(query, v)}
	}

	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].Score > hits[b].Score
	})

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// Row returns the metadata at row i.
func (f *Flat) Row(i int) (analysis.Record, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if i < 0 || i >= len(f.metadata) {
		return analysis.Record{}, false
	}
	return f.metadata[i], true
}

// ForEachRow calls fn for each metadata row in order under the read
// lock. fn returning false stops the scan.
func (f *Flat) ForEachRow(fn func(i int, row *analysis.Record) bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for i := range f.metadata {
		if !fn(i, &f.metadata[i]) {
			return
		}
	}
}

// Stats describes the current index contents.
type Stats struct {
	TotalVectors  int    `json:"total_vectors"`
	Dimension     int    `json:"dimension"`
	MetadataCount int    `json:"metadata_count"`
	Generation    uint64 `json:"generation"`
}

// CurrentStats returns a snapshot of index statistics.
func (f *Flat) CurrentStats() Stats {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return Stats{
		TotalVectors:  len(f.vectors),
		Dimension:     f.dimension,
		MetadataCount: len(f.metadata),
		Generation:    f.generation,
	}
}

// metaFile holds the metadata side of the persisted pair. The generation
// must match the vector file's header on load.
type metaFile struct {
	Generation uint64            `json:"generation"`
	Dimension  int               `json:"dimension"`
	Records    []analysis.Record `json:"records"`
}

// Save persists the vector store to base and the metadata table to
// base+".meta.json". Both artifacts are staged to temporary paths and
// renamed into place so a crash never leaves a mismatched pair visible.
func (f *Flat) Save(base string) error {
	f.mu.RLock()
	vectors := f.vectors
	metadata := f.metadata
	generation := f.generation
	f.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(base), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	vecTmp := base + ".tmp"
	if err := writeVectors(vecTmp, f.dimension, generation, vectors); err != nil {
		return err
	}

	metaPath := base + ".meta.json"
	metaTmp := metaPath + ".tmp"
	metaBytes, err := json.Marshal(metaFile{
		Generation: generation,
		Dimension:  f.dimension,
		Records:    metadata,
	})
	if err != nil {
		os.Remove(vecTmp)
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(metaTmp, metaBytes, 0644); err != nil {
		os.Remove(vecTmp)
		return fmt.Errorf("write metadata: %w", err)
	}

	if err := os.Rename(vecTmp, base); err != nil {
		os.Remove(metaTmp)
		return fmt.Errorf("commit vectors: %w", err)
	}
	if err := os.Rename(metaTmp, metaPath); err != nil {
		return fmt.Errorf("commit metadata: %w", err)
	}

	f.logger.Info("index saved", "path", base, "vectors", len(vectors), "generation", generation)
	return nil
}

// Load reads a persisted index pair. When neither artifact exists the
// index starts empty: first runs must not error. Any disagreement
// between the two artifacts is reported as ErrCorrupt.
func (f *Flat) Load(base string) error {
	vectors, generation, err := readVectors(base, f.dimension)
	if err != nil {
		if os.IsNotExist(err) {
			if _, statErr := os.Stat(base + ".meta.json"); statErr == nil {
				return fmt.Errorf("%w: metadata present but vector store missing", ErrCorrupt)
			}
			f.logger.Info("no index file, starting empty", "path", base)
			f.mu.Lock()
			f.vectors = nil
			f.metadata = nil
			f.generation = 0
			f.mu.Unlock()
			return nil
		}
		return err
	}

	metaBytes, err := os.ReadFile(base + ".meta.json")
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: vector store present but metadata missing", ErrCorrupt)
		}
		return fmt.Errorf("read metadata: %w", err)
	}

	var meta metaFile
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	if meta.Generation != generation {
		return fmt.Errorf("%w: vector generation %d, metadata generation %d",
			ErrCorrupt, generation, meta.Generation)
	}
	if meta.Dimension != f.dimension {
		return fmt.Errorf("%w: metadata dimension %d, index dimension %d",
			ErrCorrupt, meta.Dimension, f.dimension)
	}
	if len(meta.Records) != len(vectors) {
		return fmt.Errorf("%w: %d vectors, %d metadata rows",
			ErrCorrupt, len(vectors), len(meta.Records))
	}

	f.mu.Lock()
	f.vectors = vectors
	f.metadata = meta.Records
	f.generation = generation
	f.mu.Unlock()

	f.logger.Info("index loaded", "path", base, "vectors", len(vectors), "generation", generation)
	return nil
}

func writeVectors(path string, dimension int, generation uint64, vectors [][]float32) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create vector file: %w", err)
	}
	defer file.Close()

	header := make([]byte, 24)
	copy(header[0:4], vectorMagic)
	binary.LittleEndian.PutUint32(header[4:8], vectorVersion)
	binary.LittleEndian.PutUint64(header[8:16], generation)
	binary.LittleEndian.PutUint32(header[16:20], uint32(dimension))
	binary.LittleEndian.PutUint32(header[20:24], uint32(len(vectors)))
	if _, err := file.Write(header); err != nil {
		return fmt.Errorf("write vector header: %w", err)
	}

	buf := make([]byte, 4*dimension)
	for _, v := range vectors {
		for i, x := range v {
			binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
		}
		if _, err := file.Write(buf); err != nil {
			return fmt.Errorf("write vectors: %w", err)
		}
	}

	return file.Sync()
}

func readVectors(path string, dimension int) ([][]float32, uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}

	if len(data) < 24 || string(data[0:4]) != vectorMagic {
		return nil, 0, fmt.Errorf("%w: bad vector file header", ErrCorrupt)
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != vectorVersion {
		return nil, 0, fmt.Errorf("%w: unsupported vector file version %d", ErrCorrupt, v)
	}

	generation := binary.LittleEndian.Uint64(data[8:16])
	dim := int(binary.LittleEndian.Uint32(data[16:20]))
	count := int(binary.LittleEndian.Uint32(data[20:24]))

	if dim != dimension {
		return nil, 0, fmt.Errorf("%w: vector file dimension %d, index dimension %d",
			ErrCorrupt, dim, dimension)
	}
	if len(data) != 24+count*dim*4 {
		return nil, 0, fmt.Errorf("%w: vector file truncated", ErrCorrupt)
	}

	vectors := make([][]float32, count)
	offset := 24
	for i := range vectors {
		v := make([]float32, dim)
		for j := range v {
			v[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[offset:]))
			offset += 4
		}
		vectors[i] = v
	}

	return vectors, generation, nil
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
