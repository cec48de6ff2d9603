// Package pipeline orchestrates parsing, persistence, and index builds.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/randalmurphy/codelens/internal/analysis"
	"github.com/randalmurphy/codelens/internal/index"
	"github.com/randalmurphy/codelens/internal/metrics"
	"github.com/randalmurphy/codelens/internal/parser"
	"github.com/randalmurphy/codelens/internal/store"
)

// Embedder produces vectors for records and query text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedRecords(ctx context.Context, records []analysis.Record) []analysis.Record
}

// QueryInvalidator drops cached query results. Rebuilds call it so
// entries keyed to older index generations don't sit out their TTL.
type QueryInvalidator interface {
	DeletePattern(ctx context.Context, pattern string) error
}

// Options controls a single analysis request.
type Options struct {
	// Language restricts repository analysis to one language. Empty
	// means every supported language.
	Language string
	// IncludeMetrics controls whether line and complexity metrics are
	// returned. Metrics are always computed; false only strips them
	// from the response.
	IncludeMetrics bool
	// IncludeEmbeddings embeds the results and rebuilds the index.
	IncludeEmbeddings bool
	// Patterns overrides the per-language default file globs.
	Patterns []string
}

// DefaultOptions returns the options used when a caller passes none.
func DefaultOptions() Options {
	return Options{IncludeMetrics: true}
}

// Analyzer ties the parser registry, stores, and the vector index
// together. Index rebuilds are serialized through a single writer.
type Analyzer struct {
	registry   *parser.Registry
	embedder   Embedder
	flat       *index.Flat
	store      *store.SQLiteStore
	mirror     *index.QdrantMirror
	metrics    *metrics.Logger
	queryCache QueryInvalidator
	indexPath  string
	logger     *slog.Logger

	mu sync.Mutex // guards index rebuild and save
}

// NewAnalyzer creates an analyzer. The store, mirror, and metrics
// logger are optional and may be nil.
func NewAnalyzer(registry *parser.Registry, embedder Embedder, flat *index.Flat,
	resultStore *store.SQLiteStore, mirror *index.QdrantMirror,
	metricsLogger *metrics.Logger, indexPath string, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		registry:  registry,
		embedder:  embedder,
		flat:      flat,
		store:     resultStore,
		mirror:    mirror,
		metrics:   metricsLogger,
		indexPath: indexPath,
		logger:    logger,
	}
}

// SetQueryInvalidator registers a cache whose query entries are dropped
// after every index rebuild.
func (a *Analyzer) SetQueryInvalidator(qc QueryInvalidator) {
	a.queryCache = qc
}

// AnalyzeFile parses a single file, chosen by extension.
func (a *Analyzer) AnalyzeFile(ctx context.Context, filePath string, opts Options) (*analysis.Record, error) {
	start := time.Now()

	p, err := a.registry.ResolveForFile(filePath)
	if err != nil {
		return nil, err
	}

	record, err := p.ParseFile(filePath)
	if err != nil {
		a.logEvent(func() { a.metrics.LogError("analyze_file", err.Error()) })
		return nil, err
	}

	a.persistRecords([]analysis.Record{*record})

	if opts.IncludeEmbeddings && a.embedder != nil {
		if err := a.rebuildIndex(ctx, []analysis.Record{*record}); err != nil {
			return nil, err
		}
	}

	a.logEvent(func() {
		a.metrics.LogAnalyze(filePath, record.Language, 1, time.Since(start).Milliseconds())
	})

	if !opts.IncludeMetrics {
		record.Metrics = analysis.Metrics{}
	}
	return record, nil
}

// AnalyzeRepository walks a repository for every requested language,
// persists the results, and optionally rebuilds the vector index.
func (a *Analyzer) AnalyzeRepository(ctx context.Context, root string, opts Options) ([]analysis.Record, error) {
	start := time.Now()

	languages := a.registry.Languages()
	if opts.Language != "" {
		languages = []string{opts.Language}
	}

	var records []analysis.Record

	for _, language := range languages {
		p, err := a.registry.Resolve(language)
		if err != nil {
			return nil, err
		}
		walker := analysis.NewWalker(p, a.logger)
		result, err := walker.ParseRepository(root, opts.Patterns)
		if err != nil {
			return nil, fmt.Errorf("failed to analyze %s files in %s: %w", language, root, err)
		}
		records = append(records, result.Records...)
	}

	a.persistRecords(records)

	if opts.IncludeEmbeddings && a.embedder != nil && len(records) > 0 {
		if err := a.rebuildIndex(ctx, records); err != nil {
			return nil, err
		}
	}

	a.logEvent(func() {
		a.metrics.LogAnalyze(root, opts.Language, len(records), time.Since(start).Milliseconds())
	})

	if !opts.IncludeMetrics {
		for i := range records {
			records[i].Metrics = analysis.Metrics{}
		}
	}
	return records, nil
}

// rebuildIndex embeds the records and atomically replaces the index
// contents, then snapshots to disk when an index path is configured.
func (a *Analyzer) rebuildIndex(ctx context.Context, records []analysis.Record) error {
	embedded := a.embedder.EmbedRecords(ctx, records)

	vectors := make([][]float32, 0, len(embedded))
	rows := make([]analysis.Record, 0, len(embedded))
	for _, r := range embedded {
		if !r.Embedded() {
			continue
		}
		vectors = append(vectors, r.Embedding)
		rows = append(rows, r)
	}
	if len(rows) == 0 {
		return fmt.Errorf("no records could be embedded")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.flat.Replace(vectors, rows); err != nil {
		return fmt.Errorf("failed to rebuild index: %w", err)
	}

	if a.indexPath != "" {
		if err := a.flat.Save(a.indexPath); err != nil {
			return fmt.Errorf("failed to save index: %w", err)
		}
		stats := a.flat.CurrentStats()
		a.logEvent(func() {
			a.metrics.LogIndexSave(a.indexPath, stats.TotalVectors, stats.Generation)
		})
	}

	if a.mirror != nil {
		if err := a.mirror.EnsureCollection(ctx, a.flat.Dimension()); err != nil {
			a.logger.Warn("mirror collection unavailable", "error", err)
		} else if err := a.mirror.UpsertRecords(ctx, rows); err != nil {
			a.logger.Warn("failed to mirror records", "error", err)
		}
	}

	if a.queryCache != nil {
		if err := a.queryCache.DeletePattern(ctx, "query:*"); err != nil {
			a.logger.Warn("failed to drop cached query results", "error", err)
		}
	}
	return nil
}

func (a *Analyzer) persistRecords(records []analysis.Record) {
	if a.store == nil {
		return
	}
	for i := range records {
		if err := a.store.SaveRecord(context.Background(), &records[i]); err != nil {
			a.logger.Warn("failed to persist analysis result",
				"file", records[i].FilePath, "error", err)
		}
	}
}

func (a *Analyzer) logEvent(fn func()) {
	if a.metrics != nil {
		fn()
	}
}

// AlertRequest is an incoming alert to analyze.
type AlertRequest struct {
	AlertType    string `json:"alert_type"`
	AlertMessage string `json:"alert_message"`
	FilePath     string `json:"file_path,omitempty"`
	LineNumber   int    `json:"line_number,omitempty"`
	Severity     string `json:"severity,omitempty"`
}

// RelatedCode is a code location related to an alert.
type RelatedCode struct {
	FilePath        string  `json:"file_path"`
	Language        string  `json:"language"`
	SimilarityScore float32 `json:"similarity_score"`
	Rank            int     `json:"rank"`
}

// AlertAnalysis is the outcome of analyzing one alert.
type AlertAnalysis struct {
	AlertID        int64         `json:"alert_id"`
	AlertType      string        `json:"alert_type"`
	AlertMessage   string        `json:"alert_message"`
	Severity       string        `json:"severity"`
	FilePath       string        `json:"file_path,omitempty"`
	LineNumber     int           `json:"line_number,omitempty"`
	RelatedCode    []RelatedCode `json:"related_code"`
	SuggestedFixes []string      `json:"suggested_fixes"`
	AnalyzedAt     time.Time     `json:"analyzed_at"`
}

// suggestedFixes is static guidance until fix generation is wired to a
// model.
var suggestedFixes = []string{
	"Review the code for potential issues",
	"Check for proper error handling",
	"Verify input validation",
	"Consider refactoring complex functions",
}

// AnalyzeAlert stores the alert and finds code related to its message.
func (a *Analyzer) AnalyzeAlert(ctx context.Context, req AlertRequest) (*AlertAnalysis, error) {
	if req.Severity == "" {
		req.Severity = "medium"
	}

	result := &AlertAnalysis{
		AlertType:      req.AlertType,
		AlertMessage:   req.AlertMessage,
		Severity:       req.Severity,
		FilePath:       req.FilePath,
		LineNumber:     req.LineNumber,
		RelatedCode:    []RelatedCode{},
		SuggestedFixes: suggestedFixes,
		AnalyzedAt:     time.Now().UTC(),
	}

	if a.embedder != nil && a.flat.Len() > 0 {
		query := req.AlertType + " " + req.AlertMessage
		vector, err := a.embedder.Embed(ctx, query)
		if err != nil {
			a.logger.Warn("failed to embed alert query", "error", err)
		} else {
			hits, err := a.flat.Search(vector, 5)
			if err != nil {
				return nil, err
			}
			for _, hit := range hits {
				record, ok := a.flat.Row(hit.Row)
				if !ok {
					continue
				}
				result.RelatedCode = append(result.RelatedCode, RelatedCode{
					FilePath:        record.FilePath,
					Language:        record.Language,
					SimilarityScore: hit.Score,
					Rank:            len(result.RelatedCode) + 1,
				})
			}
		}
	}

	if a.store != nil {
		payload, _ := json.Marshal(result.RelatedCode)
		alert := &store.Alert{
			AlertType:      req.AlertType,
			AlertMessage:   req.AlertMessage,
			FilePath:       req.FilePath,
			LineNumber:     req.LineNumber,
			Severity:       req.Severity,
			AnalysisResult: payload,
		}
		if err := a.store.SaveAlert(ctx, alert); err != nil {
			a.logger.Warn("failed to store alert", "error", err)
		} else {
			result.AlertID = alert.ID
		}
	}

	a.logEvent(func() {
		a.metrics.LogAlert(req.AlertType, req.Severity, len(result.RelatedCode))
	})
	return result, nil
}
