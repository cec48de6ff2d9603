// Package config loads service configuration from YAML with defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds global configuration
type Config struct {
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type EmbeddingConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
}

type IndexConfig struct {
	// Path is the base path of the on-disk snapshot. The metadata side
	// table lives next to it at <path>.meta.json.
	Path string `yaml:"path"`
	// QdrantHost enables the optional search mirror when non-empty.
	QdrantHost       string `yaml:"qdrant_host"`
	QdrantCollection string `yaml:"qdrant_collection"`
}

type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	RedisURL     string `yaml:"redis_url"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"` // error|warn|info|debug
	MetricsPath string `yaml:"metrics_path"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Embedding: EmbeddingConfig{
			Endpoint:  "http://localhost:8080/v1",
			Model:     "all-MiniLM-L6-v2",
			Dimension: 384,
		},
		Index: IndexConfig{
			Path:             filepath.Join(dataDir, "index.bin"),
			QdrantCollection: "codelens",
		},
		Storage: StorageConfig{
			DatabasePath: filepath.Join(dataDir, "codelens.db"),
		},
		Logging: LoggingConfig{
			Level:       "info",
			MetricsPath: filepath.Join(dataDir, "metrics.jsonl"),
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".codelens"
	}
	return filepath.Join(home, ".local", "share", "codelens")
}

// LoadConfig loads config from file or returns defaults
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Use defaults
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	if cfg.Embedding.Dimension <= 0 {
		return nil, fmt.Errorf("invalid config %s: embedding dimension must be positive", path)
	}

	return cfg, nil
}
