// Package store persists analysis results and alert history in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/randalmurphy/codelens/internal/analysis"
)

// ErrNotFound is returned when a requested row doesn't exist.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS analysis_results (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	file_path TEXT UNIQUE NOT NULL,
	language TEXT NOT NULL,
	extraction TEXT NOT NULL,
	functions TEXT,
	classes TEXT,
	imports TEXT,
	metrics TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS alert_data (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	alert_type TEXT NOT NULL,
	alert_message TEXT,
	file_path TEXT,
	line_number INTEGER,
	severity TEXT,
	analysis_result TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_analysis_results_language ON analysis_results(language);
CREATE INDEX IF NOT EXISTS idx_alert_data_created_at ON alert_data(created_at);
CREATE INDEX IF NOT EXISTS idx_alert_data_alert_type ON alert_data(alert_type);
`

// SQLiteStore implements result and alert persistence using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRecord inserts or updates the analysis result for a file.
func (s *SQLiteStore) SaveRecord(ctx context.Context, record *analysis.Record) error {
	functions, err := json.Marshal(record.Functions)
	if err != nil {
		return fmt.Errorf("failed to encode functions: %w", err)
	}
	classes, err := json.Marshal(record.Classes)
	if err != nil {
		return fmt.Errorf("failed to encode classes: %w", err)
	}
	imports, err := json.Marshal(record.Imports)
	if err != nil {
		return fmt.Errorf("failed to encode imports: %w", err)
	}
	metrics, err := json.Marshal(record.Metrics)
	if err != nil {
		return fmt.Errorf("failed to encode metrics: %w", err)
	}

	query := `
		INSERT INTO analysis_results
		(file_path, language, extraction, functions, classes, imports, metrics)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (file_path)
		DO UPDATE SET
			language = excluded.language,
			extraction = excluded.extraction,
			functions = excluded.functions,
			classes = excluded.classes,
			imports = excluded.imports,
			metrics = excluded.metrics,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err = s.db.ExecContext(ctx, query,
		record.FilePath, record.Language, string(record.Extraction),
		string(functions), string(classes), string(imports), string(metrics))
	if err != nil {
		return fmt.Errorf("failed to save analysis result: %w", err)
	}
	return nil
}

// GetRecord retrieves the stored analysis result for a file.
func (s *SQLiteStore) GetRecord(ctx context.Context, filePath string) (*analysis.Record, error) {
	query := `
		SELECT file_path, language, extraction, functions, classes, imports, metrics
		FROM analysis_results
		WHERE file_path = ?
	`
	record, err := scanRecord(s.db.QueryRowContext(ctx, query, filePath))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, filePath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load analysis result: %w", err)
	}
	return record, nil
}

// DeleteRecord removes the stored result for a file. Deleting a file
// that was never stored is not an error.
func (s *SQLiteStore) DeleteRecord(ctx context.Context, filePath string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM analysis_results WHERE file_path = ?", filePath)
	return err
}

// RecordQuery filters SearchRecords. Zero values mean "no constraint",
// except MaxComplexity which is ignored only when negative.
type RecordQuery struct {
	Language        string
	FilePathPattern string
	MinComplexity   float64
	MaxComplexity   float64
	Limit           int
}

// SearchRecords returns stored results matching the query, newest first.
func (s *SQLiteStore) SearchRecords(ctx context.Context, q RecordQuery) ([]analysis.Record, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT file_path, language, extraction, functions, classes, imports, metrics
		FROM analysis_results
		WHERE 1=1
	`)
	var args []interface{}

	if q.Language != "" {
		sb.WriteString(" AND language = ?")
		args = append(args, q.Language)
	}
	if q.FilePathPattern != "" {
		sb.WriteString(" AND file_path LIKE ?")
		args = append(args, "%"+q.FilePathPattern+"%")
	}
	if q.MinComplexity > 0 {
		sb.WriteString(" AND CAST(json_extract(metrics, '$.average_complexity') AS REAL) >= ?")
		args = append(args, q.MinComplexity)
	}
	if q.MaxComplexity > 0 {
		sb.WriteString(" AND CAST(json_extract(metrics, '$.average_complexity') AS REAL) <= ?")
		args = append(args, q.MaxComplexity)
	}

	sb.WriteString(" ORDER BY created_at DESC")
	if q.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search analysis results: %w", err)
	}
	defer rows.Close()

	var records []analysis.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*analysis.Record, error) {
	var record analysis.Record
	var extraction string
	var functions, classes, imports, metrics sql.NullString

	err := row.Scan(&record.FilePath, &record.Language, &extraction,
		&functions, &classes, &imports, &metrics)
	if err != nil {
		return nil, err
	}
	record.Extraction = analysis.Extraction(extraction)

	for _, col := range []struct {
		raw  sql.NullString
		dest interface{}
	}{
		{functions, &record.Functions},
		{classes, &record.Classes},
		{imports, &record.Imports},
		{metrics, &record.Metrics},
	} {
		if !col.raw.Valid || col.raw.String == "" {
			continue
		}
		if err := json.Unmarshal([]byte(col.raw.String), col.dest); err != nil {
			return nil, fmt.Errorf("failed to decode stored result for %s: %w", record.FilePath, err)
		}
	}
	return &record, nil
}

// Alert is a stored alert with the analysis attached at ingest time.
type Alert struct {
	ID             int64           `json:"id"`
	AlertType      string          `json:"alert_type"`
	AlertMessage   string          `json:"alert_message"`
	FilePath       string          `json:"file_path,omitempty"`
	LineNumber     int             `json:"line_number,omitempty"`
	Severity       string          `json:"severity"`
	AnalysisResult json.RawMessage `json:"analysis_result,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// SaveAlert stores an alert. Severity defaults to medium.
func (s *SQLiteStore) SaveAlert(ctx context.Context, alert *Alert) error {
	if alert.Severity == "" {
		alert.Severity = "medium"
	}
	query := `
		INSERT INTO alert_data
		(alert_type, alert_message, file_path, line_number, severity, analysis_result)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		alert.AlertType, alert.AlertMessage, alert.FilePath,
		alert.LineNumber, alert.Severity, string(alert.AnalysisResult))
	if err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}
	alert.ID, _ = result.LastInsertId()
	return nil
}

// AlertHistory returns the most recent alerts, newest first.
func (s *SQLiteStore) AlertHistory(ctx context.Context, limit int) ([]Alert, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, alert_type, alert_message, file_path, line_number, severity,
		       analysis_result, created_at
		FROM alert_data
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load alert history: %w", err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		var a Alert
		var filePath, severity, payload sql.NullString
		var lineNumber sql.NullInt64
		err := rows.Scan(&a.ID, &a.AlertType, &a.AlertMessage, &filePath,
			&lineNumber, &severity, &payload, &a.CreatedAt)
		if err != nil {
			return nil, err
		}
		a.FilePath = filePath.String
		a.LineNumber = int(lineNumber.Int64)
		a.Severity = severity.String
		if payload.Valid && payload.String != "" {
			a.AnalysisResult = json.RawMessage(payload.String)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// Stats summarizes the store contents.
type Stats struct {
	TotalResults  int            `json:"total_analysis_results"`
	TotalAlerts   int            `json:"total_alerts"`
	Languages     map[string]int `json:"language_distribution"`
	RecentResults int            `json:"recent_results_24h"`
}

// DatabaseStats returns row counts and the per-language distribution.
func (s *SQLiteStore) DatabaseStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Languages: make(map[string]int)}

	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM analysis_results").Scan(&stats.TotalResults); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM alert_data").Scan(&stats.TotalAlerts); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM analysis_results WHERE created_at > datetime('now', '-1 day')").
		Scan(&stats.RecentResults); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT language, COUNT(*) FROM analysis_results GROUP BY language")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var language string
		var count int
		if err := rows.Scan(&language, &count); err != nil {
			return nil, err
		}
		stats.Languages[language] = count
	}
	return stats, rows.Err()
}
