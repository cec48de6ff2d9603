package pipeline

import (
	"context"
	"crypto/sha256"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphy/codelens/internal/analysis"
	"github.com/randalmurphy/codelens/internal/embedding"
	"github.com/randalmurphy/codelens/internal/index"
	"github.com/randalmurphy/codelens/internal/parser"
	"github.com/randalmurphy/codelens/internal/store"
)

// hashEmbedder derives a deterministic unit vector from the text hash,
// standing in for the remote embedding model.
type hashEmbedder struct {
	dim int
}

func (e *hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h := sha256.Sum256([]byte(text))
	v := make([]float32, e.dim)
	var sum float32
	for i := range v {
		v[i] = float32(h[i%len(h)]) + 1
		sum += v[i] * v[i]
	}
	norm := float32(math.Sqrt(float64(sum)))
	for i := range v {
		v[i] /= norm
	}
	return v, nil
}

func (e *hashEmbedder) EmbedRecords(ctx context.Context, records []analysis.Record) []analysis.Record {
	out := make([]analysis.Record, 0, len(records))
	for _, r := range records {
		text := embedding.ProjectRecord(&r)
		vec, _ := e.Embed(ctx, text)
		r.Embedding = vec
		r.EmbeddingText = text
		out = append(out, r)
	}
	return out
}

func writeRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		full := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}
	return root
}

func testAnalyzer(t *testing.T, indexPath string) (*Analyzer, *index.Flat, *store.SQLiteStore) {
	t.Helper()
	registry := parser.NewRegistry(nil)
	flat := index.NewFlat(8, nil)
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	a := NewAnalyzer(registry, &hashEmbedder{dim: 8}, flat, s, nil, nil, indexPath, nil)
	return a, flat, s
}

func TestAnalyzeFile(t *testing.T) {
	root := writeRepo(t, map[string]string{
		"app.py": "def main():\n    if True:\n        pass\n",
	})
	a, _, s := testAnalyzer(t, "")

	record, err := a.AnalyzeFile(context.Background(), filepath.Join(root, "app.py"), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "python", record.Language)
	require.Len(t, record.Functions, 1)
	assert.Equal(t, "main", record.Functions[0].Name)
	assert.NotZero(t, record.Metrics.TotalLines)

	// The result is persisted keyed by file path.
	stored, err := s.GetRecord(context.Background(), record.FilePath)
	require.NoError(t, err)
	assert.Equal(t, record.FilePath, stored.FilePath)
}

func TestAnalyzeFileUnsupportedExtension(t *testing.T) {
	root := writeRepo(t, map[string]string{"notes.txt": "hello"})
	a, _, _ := testAnalyzer(t, "")

	_, err := a.AnalyzeFile(context.Background(), filepath.Join(root, "notes.txt"), DefaultOptions())
	assert.ErrorIs(t, err, parser.ErrUnsupportedLanguage)
}

func TestAnalyzeFileWithoutMetrics(t *testing.T) {
	root := writeRepo(t, map[string]string{"app.py": "def main():\n    pass\n"})
	a, _, _ := testAnalyzer(t, "")

	opts := DefaultOptions()
	opts.IncludeMetrics = false
	record, err := a.AnalyzeFile(context.Background(), filepath.Join(root, "app.py"), opts)
	require.NoError(t, err)
	assert.Zero(t, record.Metrics)
}

func TestAnalyzeRepositoryAllLanguages(t *testing.T) {
	root := writeRepo(t, map[string]string{
		"app.py":  "def main():\n    pass\n",
		"tool.go": "package main\n\nfunc run() {}\n",
		"README":  "not source",
	})
	a, _, _ := testAnalyzer(t, "")

	records, err := a.AnalyzeRepository(context.Background(), root, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, records, 2)

	languages := map[string]bool{}
	for _, r := range records {
		languages[r.Language] = true
	}
	assert.True(t, languages["python"])
	assert.True(t, languages["go"])
}

func TestAnalyzeRepositoryLanguageFilter(t *testing.T) {
	root := writeRepo(t, map[string]string{
		"app.py":  "def main():\n    pass\n",
		"tool.go": "package main\n\nfunc run() {}\n",
	})
	a, _, _ := testAnalyzer(t, "")

	opts := DefaultOptions()
	opts.Language = "python"
	records, err := a.AnalyzeRepository(context.Background(), root, opts)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "python", records[0].Language)
}

func TestAnalyzeRepositoryRebuildsAndSavesIndex(t *testing.T) {
	root := writeRepo(t, map[string]string{
		"a.py": "def first():\n    pass\n",
		"b.py": "def second():\n    pass\n",
	})
	indexPath := filepath.Join(t.TempDir(), "index.bin")
	a, flat, _ := testAnalyzer(t, indexPath)

	opts := DefaultOptions()
	opts.IncludeEmbeddings = true
	_, err := a.AnalyzeRepository(context.Background(), root, opts)
	require.NoError(t, err)

	assert.Equal(t, 2, flat.Len())
	assert.Equal(t, uint64(1), flat.Generation())

	// Snapshot is loadable by a fresh index.
	reloaded := index.NewFlat(8, nil)
	require.NoError(t, reloaded.Load(indexPath))
	assert.Equal(t, 2, reloaded.Len())

	// A second run replaces the contents atomically and bumps the
	// generation.
	_, err = a.AnalyzeRepository(context.Background(), root, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, flat.Len())
	assert.Equal(t, uint64(2), flat.Generation())
}

// recordingInvalidator captures the patterns a rebuild asks to drop.
type recordingInvalidator struct {
	patterns []string
}

func (r *recordingInvalidator) DeletePattern(ctx context.Context, pattern string) error {
	r.patterns = append(r.patterns, pattern)
	return nil
}

func TestRebuildDropsCachedQueries(t *testing.T) {
	root := writeRepo(t, map[string]string{
		"a.py": "def first():\n    pass\n",
	})
	a, _, _ := testAnalyzer(t, "")

	inv := &recordingInvalidator{}
	a.SetQueryInvalidator(inv)

	opts := DefaultOptions()
	opts.IncludeEmbeddings = true
	_, err := a.AnalyzeRepository(context.Background(), root, opts)
	require.NoError(t, err)

	require.Len(t, inv.patterns, 1)
	assert.Equal(t, "query:*", inv.patterns[0])
}

func TestAnalyzeAlert(t *testing.T) {
	root := writeRepo(t, map[string]string{
		"auth.py": "def login(user):\n    if user:\n        return True\n    return False\n",
	})
	a, _, s := testAnalyzer(t, "")

	opts := DefaultOptions()
	opts.IncludeEmbeddings = true
	_, err := a.AnalyzeRepository(context.Background(), root, opts)
	require.NoError(t, err)

	result, err := a.AnalyzeAlert(context.Background(), AlertRequest{
		AlertType:    "error_rate",
		AlertMessage: "login failures spiking",
	})
	require.NoError(t, err)

	assert.Equal(t, "medium", result.Severity)
	assert.NotZero(t, result.AlertID)
	require.NotEmpty(t, result.RelatedCode)
	assert.Equal(t, 1, result.RelatedCode[0].Rank)
	assert.NotEmpty(t, result.SuggestedFixes)

	history, err := s.AlertHistory(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "error_rate", history[0].AlertType)
}

func TestAnalyzeAlertEmptyIndex(t *testing.T) {
	a, _, _ := testAnalyzer(t, "")

	result, err := a.AnalyzeAlert(context.Background(), AlertRequest{
		AlertType:    "latency",
		AlertMessage: "slow requests",
		Severity:     "low",
	})
	require.NoError(t, err)
	assert.Empty(t, result.RelatedCode)
	assert.Equal(t, "low", result.Severity)
}
