// cmd/codelens/app.go
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/randalmurphy/codelens/internal/cache"
	"github.com/randalmurphy/codelens/internal/config"
	"github.com/randalmurphy/codelens/internal/embedding"
	"github.com/randalmurphy/codelens/internal/index"
	"github.com/randalmurphy/codelens/internal/metrics"
	"github.com/randalmurphy/codelens/internal/parser"
	"github.com/randalmurphy/codelens/internal/pipeline"
	"github.com/randalmurphy/codelens/internal/search"
	"github.com/randalmurphy/codelens/internal/store"
)

// app wires the shared components every command needs.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *parser.Registry
	embedder *embedding.Client
	flat     *index.Flat
	store    *store.SQLiteStore
	cache    *cache.RedisCache
	mirror   *index.QdrantMirror
	metrics  *metrics.Logger
	analyzer *pipeline.Analyzer
	router   *search.Router
}

func newApp() (*app, error) {
	cfg, err := config.LoadConfig(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.Logging.Level),
	}))

	registry := parser.NewRegistry(logger)
	embedder := embedding.NewClient(cfg.Embedding.Endpoint, cfg.Embedding.Model,
		cfg.Embedding.Dimension, logger)

	flat := index.NewFlat(cfg.Embedding.Dimension, logger)
	if cfg.Index.Path != "" {
		if err := flat.Load(cfg.Index.Path); err != nil {
			return nil, fmt.Errorf("failed to load index: %w", err)
		}
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		embedder: embedder,
		flat:     flat,
	}

	if cfg.Storage.DatabasePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.DatabasePath), 0755); err != nil {
			return nil, err
		}
		a.store, err = store.NewSQLiteStore(cfg.Storage.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open result store: %w", err)
		}
	}

	if cfg.Storage.RedisURL != "" {
		a.cache, err = cache.NewRedisCache(cfg.Storage.RedisURL)
		if err != nil {
			logger.Warn("Redis cache unavailable, continuing without cache", "error", err)
			a.cache = nil
		}
	}

	if cfg.Index.QdrantHost != "" {
		a.mirror, err = index.NewQdrantMirror(cfg.Index.QdrantHost, cfg.Index.QdrantCollection)
		if err != nil {
			logger.Warn("Qdrant mirror unavailable, continuing without it", "error", err)
			a.mirror = nil
		}
	}

	if cfg.Logging.MetricsPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.MetricsPath), 0755); err == nil {
			a.metrics, _ = metrics.NewLogger(cfg.Logging.MetricsPath)
		}
	}

	a.analyzer = pipeline.NewAnalyzer(registry, embedder, flat, a.store, a.mirror,
		a.metrics, cfg.Index.Path, logger)

	// A nil concrete value must stay nil behind the interface.
	var queryCache search.QueryCache
	if a.cache != nil {
		queryCache = a.cache
		embedder.SetCache(a.cache)
		a.analyzer.SetQueryInvalidator(a.cache)
	}
	var mirror search.MirrorSearcher
	if a.mirror != nil {
		mirror = a.mirror
	}
	a.router = search.NewRouter(flat, embedder, queryCache, mirror, a.metrics, logger)
	return a, nil
}

func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
	if a.cache != nil {
		a.cache.Close()
	}
	if a.mirror != nil {
		a.mirror.Close()
	}
	if a.metrics != nil {
		a.metrics.Close()
	}
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".codelens.yaml"
	}
	return filepath.Join(homeDir, ".config", "codelens", "config.yaml")
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
