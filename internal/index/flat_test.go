package index

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphy/codelens/internal/analysis"
)

func rec(path string, complexity float64) analysis.Record {
	return analysis.Record{
		FilePath: path,
		Language: "python",
		Metrics:  analysis.Metrics{AverageComplexity: complexity},
	}
}

func TestFlatAddAndSearch(t *testing.T) {
	f := NewFlat(3, nil)

	err := f.Add(
		[][]float32{{1, 0, 0}, {0, 1, 0}, {0.9, 0.1, 0}},
		[]analysis.Record{rec("a.py", 1), rec("b.py", 2), rec("c.py", 3)},
	)
	require.NoError(t, err)
	assert.Equal(t, 3, f.Len())

	hits, err := f.Search([]float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	// Highest inner product first.
	assert.Equal(t, 0, hits[0].Row)
	assert.Equal(t, 2, hits[1].Row)
	assert.Greater(t, hits[0].Score, hits[1].Score)

	record, ok := f.Row(hits[0].Row)
	require.True(t, ok)
	assert.Equal(t, "a.py", record.FilePath)
}

func TestFlatSearchKLargerThanIndex(t *testing.T) {
	f := NewFlat(2, nil)
	require.NoError(t, f.Add([][]float32{{1, 0}}, []analysis.Record{rec("a.py", 1)}))

	hits, err := f.Search([]float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestFlatRejectsMismatchedInput(t *testing.T) {
	f := NewFlat(2, nil)

	err := f.Add([][]float32{{1, 0}}, []analysis.Record{rec("a.py", 1), rec("b.py", 2)})
	assert.ErrorIs(t, err, ErrCorrupt)

	err = f.Add([][]float32{{1, 0, 0}}, []analysis.Record{rec("a.py", 1)})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = f.Search([]float32{1, 0, 0}, 5)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestFlatReplaceBumpsGeneration(t *testing.T) {
	f := NewFlat(2, nil)
	require.NoError(t, f.Add([][]float32{{1, 0}}, []analysis.Record{rec("a.py", 1)}))
	gen := f.Generation()

	require.NoError(t, f.Replace(
		[][]float32{{0, 1}, {1, 0}},
		[]analysis.Record{rec("b.py", 2), rec("c.py", 3)},
	))

	assert.Equal(t, 2, f.Len())
	assert.Greater(t, f.Generation(), gen)

	record, ok := f.Row(0)
	require.True(t, ok)
	assert.Equal(t, "b.py", record.FilePath)
}

func TestFlatSaveLoadRoundTrip(t *testing.T) {
	base := filepath.Join(t.TempDir(), "idx", "index.bin")

	f := NewFlat(3, nil)
	require.NoError(t, f.Add(
		[][]float32{{1, 0, 0}, {0, 0.5, 0.5}},
		[]analysis.Record{rec("a.py", 1.5), rec("b.py", 4.25)},
	))
	require.NoError(t, f.Save(base))

	loaded := NewFlat(3, nil)
	require.NoError(t, loaded.Load(base))

	assert.Equal(t, f.Len(), loaded.Len())
	assert.Equal(t, f.Generation(), loaded.Generation())

	record, ok := loaded.Row(1)
	require.True(t, ok)
	assert.Equal(t, "b.py", record.FilePath)
	assert.InDelta(t, 4.25, record.Metrics.AverageComplexity, 0.001)

	hits, err := loaded.Search([]float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 0, hits[0].Row)
}

func TestFlatLoadMissingFileYieldsEmptyIndex(t *testing.T) {
	f := NewFlat(3, nil)
	require.NoError(t, f.Load(filepath.Join(t.TempDir(), "nothing.bin")))
	assert.Zero(t, f.Len())
	assert.Zero(t, f.Generation())
}

func TestFlatLoadDetectsMissingMetadata(t *testing.T) {
	base := filepath.Join(t.TempDir(), "index.bin")

	f := NewFlat(2, nil)
	require.NoError(t, f.Add([][]float32{{1, 0}}, []analysis.Record{rec("a.py", 1)}))
	require.NoError(t, f.Save(base))
	require.NoError(t, os.Remove(base+".meta.json"))

	err := NewFlat(2, nil).Load(base)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestFlatLoadDetectsMissingVectors(t *testing.T) {
	base := filepath.Join(t.TempDir(), "index.bin")

	f := NewFlat(2, nil)
	require.NoError(t, f.Add([][]float32{{1, 0}}, []analysis.Record{rec("a.py", 1)}))
	require.NoError(t, f.Save(base))
	require.NoError(t, os.Remove(base))

	// An orphaned metadata file is half a pair, not a fresh start.
	err := NewFlat(2, nil).Load(base)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestFlatLoadDetectsGenerationMismatch(t *testing.T) {
	base := filepath.Join(t.TempDir(), "index.bin")

	f := NewFlat(2, nil)
	require.NoError(t, f.Add([][]float32{{1, 0}}, []analysis.Record{rec("a.py", 1)}))
	require.NoError(t, f.Save(base))

	// Rewrite the metadata with a different generation.
	metaPath := base + ".meta.json"
	raw, err := os.ReadFile(metaPath)
	require.NoError(t, err)
	var meta map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &meta))
	meta["generation"] = json.RawMessage("99")
	edited, err := json.Marshal(meta)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(metaPath, edited, 0644))

	err = NewFlat(2, nil).Load(base)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestFlatLoadDetectsTruncatedVectors(t *testing.T) {
	base := filepath.Join(t.TempDir(), "index.bin")

	f := NewFlat(2, nil)
	require.NoError(t, f.Add([][]float32{{1, 0}, {0, 1}}, []analysis.Record{rec("a.py", 1), rec("b.py", 2)}))
	require.NoError(t, f.Save(base))

	raw, err := os.ReadFile(base)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(base, raw[:len(raw)-4], 0644))

	err = NewFlat(2, nil).Load(base)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestFlatLoadDetectsDimensionMismatch(t *testing.T) {
	base := filepath.Join(t.TempDir(), "index.bin")

	f := NewFlat(2, nil)
	require.NoError(t, f.Add([][]float32{{1, 0}}, []analysis.Record{rec("a.py", 1)}))
	require.NoError(t, f.Save(base))

	err := NewFlat(3, nil).Load(base)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestFlatSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "index.bin")

	f := NewFlat(2, nil)
	require.NoError(t, f.Add([][]float32{{1, 0}}, []analysis.Record{rec("a.py", 1)}))
	require.NoError(t, f.Save(base))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	assert.ElementsMatch(t, []string{"index.bin", "index.bin.meta.json"}, names)
}

func TestFlatClear(t *testing.T) {
	f := NewFlat(2, nil)
	require.NoError(t, f.Add([][]float32{{1, 0}}, []analysis.Record{rec("a.py", 1)}))
	f.Clear()
	assert.Zero(t, f.Len())

	stats := f.CurrentStats()
	assert.Zero(t, stats.TotalVectors)
	assert.Equal(t, 2, stats.Dimension)
}
