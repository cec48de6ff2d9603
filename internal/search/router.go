// Package search routes queries to the right lookup strategy over an
// in-memory flat index.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/randalmurphy/codelens/internal/analysis"
	"github.com/randalmurphy/codelens/internal/cache"
	"github.com/randalmurphy/codelens/internal/index"
	"github.com/randalmurphy/codelens/internal/metrics"
)

// ErrIndexUnavailable indicates no index has been built or loaded yet.
var ErrIndexUnavailable = errors.New("search index is empty")

// queryCacheTTL bounds how long cached query results stay valid. Keys
// embed the index generation, so the TTL only limits memory growth.
const queryCacheTTL = 5 * time.Minute

// Embedder turns query text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// QueryCache stores serialized query results under TTL'd keys.
type QueryCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// MirrorSearcher runs vector search against a remote replica of the
// index. Used only when the local index has nothing to search.
type MirrorSearcher interface {
	Search(ctx context.Context, vector []float32, limit int) ([]index.MirrorHit, error)
}

// Result is a single search hit.
type Result struct {
	Rank            int             `json:"rank"`
	FilePath        string          `json:"file_path"`
	Language        string          `json:"language"`
	SimilarityScore float32         `json:"similarity_score,omitempty"`
	MatchedFunction string          `json:"matched_function,omitempty"`
	ComplexityScore float64         `json:"complexity_score,omitempty"`
	Record          analysis.Record `json:"record"`
}

// Router dispatches semantic, function-name, and complexity queries.
type Router struct {
	index    *index.Flat
	embedder Embedder
	cache    QueryCache
	mirror   MirrorSearcher
	metrics  *metrics.Logger
	logger   *slog.Logger
}

// NewRouter creates a query router. The cache, mirror, and metrics
// logger are optional and may be nil.
func NewRouter(idx *index.Flat, embedder Embedder, queryCache QueryCache,
	mirror MirrorSearcher, metricsLogger *metrics.Logger, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		index:    idx,
		embedder: embedder,
		cache:    queryCache,
		mirror:   mirror,
		metrics:  metricsLogger,
		logger:   logger,
	}
}

// Semantic embeds the query text and runs inner-product search. When
// the local index is empty and a mirror is configured, the query falls
// through to the mirror.
func (r *Router) Semantic(ctx context.Context, query string, topK int) ([]Result, error) {
	start := time.Now()

	if err := r.ready(); err != nil {
		if r.mirror == nil {
			return nil, err
		}
		return r.semanticViaMirror(ctx, query, topK, start)
	}

	if cached, ok := r.cachedResults(ctx, "semantic", query, topK); ok {
		r.logSearch(query, "semantic", len(cached), start)
		return cached, nil
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := r.index.Search(vector, topK)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		record, ok := r.index.Row(hit.Row)
		if !ok {
			continue
		}
		results = append(results, Result{
			Rank:            len(results) + 1,
			FilePath:        record.FilePath,
			Language:        record.Language,
			SimilarityScore: hit.Score,
			Record:          record.StripEmbedding(),
		})
	}

	r.storeResults(ctx, "semantic", query, topK, results)
	r.logSearch(query, "semantic", len(results), start)
	return results, nil
}

// semanticViaMirror answers a semantic query from the remote mirror.
// Mirror hits carry only the payload facts, so results have no record.
func (r *Router) semanticViaMirror(ctx context.Context, query string, topK int, start time.Time) ([]Result, error) {
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := r.mirror.Search(ctx, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("mirror search failed: %w", err)
	}

	results := make([]Result, len(hits))
	for i, hit := range hits {
		results[i] = Result{
			Rank:            i + 1,
			FilePath:        hit.FilePath,
			Language:        hit.Language,
			SimilarityScore: hit.Score,
		}
	}

	r.logSearch(query, "semantic", len(results), start)
	return results, nil
}

// ByFunctionName finds files defining a function or method whose name
// contains the query, case-insensitively. Results keep index row order.
func (r *Router) ByFunctionName(ctx context.Context, query string, topK int) ([]Result, error) {
	start := time.Now()

	if err := r.ready(); err != nil {
		return nil, err
	}

	if cached, ok := r.cachedResults(ctx, "function", query, topK); ok {
		r.logSearch(query, "function", len(cached), start)
		return cached, nil
	}

	needle := strings.ToLower(query)
	var results []Result

	r.index.ForEachRow(func(_ int, record *analysis.Record) bool {
		name, found := matchFunction(record, needle)
		if !found {
			return true
		}
		results = append(results, Result{
			Rank:            len(results) + 1,
			FilePath:        record.FilePath,
			Language:        record.Language,
			MatchedFunction: name,
			Record:          record.StripEmbedding(),
		})
		return len(results) < topK
	})

	r.storeResults(ctx, "function", query, topK, results)
	r.logSearch(query, "function", len(results), start)
	return results, nil
}

// ByComplexity returns files whose average complexity falls inside the
// inclusive [min, max] range, most complex first.
func (r *Router) ByComplexity(ctx context.Context, min, max float64, topK int) ([]Result, error) {
	start := time.Now()

	if err := r.ready(); err != nil {
		return nil, err
	}
	if min > max {
		return nil, fmt.Errorf("invalid complexity range: min %.2f exceeds max %.2f", min, max)
	}

	rangeKey := fmt.Sprintf("%.4f:%.4f", min, max)
	if cached, ok := r.cachedResults(ctx, "complexity", rangeKey, topK); ok {
		r.logSearch(rangeKey, "complexity", len(cached), start)
		return cached, nil
	}

	var results []Result
	r.index.ForEachRow(func(_ int, record *analysis.Record) bool {
		score := record.Metrics.AverageComplexity
		if score < min || score > max {
			return true
		}
		results = append(results, Result{
			FilePath:        record.FilePath,
			Language:        record.Language,
			ComplexityScore: score,
			Record:          record.StripEmbedding(),
		})
		return true
	})

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].ComplexityScore > results[j].ComplexityScore
	})
	if len(results) > topK {
		results = results[:topK]
	}
	for i := range results {
		results[i].Rank = i + 1
	}

	r.storeResults(ctx, "complexity", rangeKey, topK, results)
	r.logSearch(rangeKey, "complexity", len(results), start)
	return results, nil
}

func (r *Router) ready() error {
	if r.index == nil || r.index.Len() == 0 {
		return ErrIndexUnavailable
	}
	return nil
}

// matchFunction scans top-level functions, then class methods.
func matchFunction(record *analysis.Record, needle string) (string, bool) {
	for _, fn := range record.Functions {
		if strings.Contains(strings.ToLower(fn.Name), needle) {
			return fn.Name, true
		}
	}
	for _, cls := range record.Classes {
		for _, m := range cls.Methods {
			if strings.Contains(strings.ToLower(m.Name), needle) {
				return cls.Name + "." + m.Name, true
			}
		}
	}
	return "", false
}

func (r *Router) cachedResults(ctx context.Context, mode, query string, topK int) ([]Result, bool) {
	if r.cache == nil {
		return nil, false
	}
	key := cache.QueryCacheKey(mode, query, topK, r.index.Generation())
	raw, err := r.cache.Get(ctx, key)
	if err != nil || raw == "" {
		return nil, false
	}
	var results []Result
	if err := json.Unmarshal([]byte(raw), &results); err != nil {
		r.logger.Warn("dropping undecodable cached results", "key", key, "error", err)
		return nil, false
	}
	return results, true
}

func (r *Router) storeResults(ctx context.Context, mode, query string, topK int, results []Result) {
	if r.cache == nil {
		return
	}
	raw, err := json.Marshal(results)
	if err != nil {
		return
	}
	key := cache.QueryCacheKey(mode, query, topK, r.index.Generation())
	if err := r.cache.Set(ctx, key, string(raw), queryCacheTTL); err != nil {
		r.logger.Warn("failed to cache query results", "key", key, "error", err)
	}
}

func (r *Router) logSearch(query, queryType string, results int, start time.Time) {
	if r.metrics != nil {
		r.metrics.LogSearch(query, queryType, results, time.Since(start).Milliseconds())
	}
}
