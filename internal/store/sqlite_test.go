package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphy/codelens/internal/analysis"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecord(path, language string, complexity float64) *analysis.Record {
	return &analysis.Record{
		FilePath:   path,
		Language:   language,
		Extraction: analysis.ExtractionGrammar,
		Functions: []analysis.Function{{
			Name:       "handler",
			Parameters: []analysis.Param{{Name: "req"}},
			Complexity: 2,
		}},
		Imports: []analysis.Import{{Text: "import os", Kind: analysis.ImportPlain}},
		Metrics: analysis.Metrics{TotalLines: 10, AverageComplexity: complexity},
	}
}

func TestSaveAndGetRecord(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveRecord(ctx, testRecord("src/a.py", "python", 2.5)))

	got, err := s.GetRecord(ctx, "src/a.py")
	require.NoError(t, err)
	assert.Equal(t, "python", got.Language)
	assert.Equal(t, analysis.ExtractionGrammar, got.Extraction)
	require.Len(t, got.Functions, 1)
	assert.Equal(t, "handler", got.Functions[0].Name)
	require.Len(t, got.Imports, 1)
	assert.InDelta(t, 2.5, got.Metrics.AverageComplexity, 0.001)
}

func TestSaveRecordUpserts(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveRecord(ctx, testRecord("src/a.py", "python", 1)))

	update := testRecord("src/a.py", "python", 7)
	update.Functions = append(update.Functions, analysis.Function{Name: "extra"})
	require.NoError(t, s.SaveRecord(ctx, update))

	got, err := s.GetRecord(ctx, "src/a.py")
	require.NoError(t, err)
	assert.Len(t, got.Functions, 2)
	assert.InDelta(t, 7, got.Metrics.AverageComplexity, 0.001)

	stats, err := s.DatabaseStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalResults)
}

func TestGetRecordNotFound(t *testing.T) {
	s := testStore(t)

	_, err := s.GetRecord(context.Background(), "missing.py")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteRecord(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveRecord(ctx, testRecord("src/a.py", "python", 1)))
	require.NoError(t, s.DeleteRecord(ctx, "src/a.py"))

	_, err := s.GetRecord(ctx, "src/a.py")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting a missing row is not an error.
	assert.NoError(t, s.DeleteRecord(ctx, "never-stored.py"))
}

func TestSearchRecords(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveRecord(ctx, testRecord("src/a.py", "python", 1)))
	require.NoError(t, s.SaveRecord(ctx, testRecord("src/b.go", "go", 3)))
	require.NoError(t, s.SaveRecord(ctx, testRecord("lib/c.go", "go", 6)))

	byLanguage, err := s.SearchRecords(ctx, RecordQuery{Language: "go"})
	require.NoError(t, err)
	assert.Len(t, byLanguage, 2)

	byPath, err := s.SearchRecords(ctx, RecordQuery{FilePathPattern: "src/"})
	require.NoError(t, err)
	assert.Len(t, byPath, 2)

	byComplexity, err := s.SearchRecords(ctx, RecordQuery{MinComplexity: 2, MaxComplexity: 5})
	require.NoError(t, err)
	require.Len(t, byComplexity, 1)
	assert.Equal(t, "src/b.go", byComplexity[0].FilePath)

	limited, err := s.SearchRecords(ctx, RecordQuery{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestAlerts(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	first := &Alert{
		AlertType:      "error_rate",
		AlertMessage:   "error rate above threshold",
		FilePath:       "src/a.py",
		LineNumber:     42,
		AnalysisResult: json.RawMessage(`[{"file_path":"src/a.py"}]`),
	}
	require.NoError(t, s.SaveAlert(ctx, first))
	assert.NotZero(t, first.ID)
	assert.Equal(t, "medium", first.Severity)

	require.NoError(t, s.SaveAlert(ctx, &Alert{
		AlertType:    "latency",
		AlertMessage: "p99 regression",
		Severity:     "high",
	}))

	alerts, err := s.AlertHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 2)

	// Newest first.
	assert.Equal(t, "latency", alerts[0].AlertType)
	assert.Equal(t, "error_rate", alerts[1].AlertType)
	assert.Equal(t, 42, alerts[1].LineNumber)
	assert.JSONEq(t, `[{"file_path":"src/a.py"}]`, string(alerts[1].AnalysisResult))
}

func TestDatabaseStats(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveRecord(ctx, testRecord("a.py", "python", 1)))
	require.NoError(t, s.SaveRecord(ctx, testRecord("b.py", "python", 1)))
	require.NoError(t, s.SaveRecord(ctx, testRecord("c.go", "go", 1)))
	require.NoError(t, s.SaveAlert(ctx, &Alert{AlertType: "x", AlertMessage: "y"}))

	stats, err := s.DatabaseStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalResults)
	assert.Equal(t, 1, stats.TotalAlerts)
	assert.Equal(t, 3, stats.RecentResults)
	assert.Equal(t, map[string]int{"python": 2, "go": 1}, stats.Languages)
}
