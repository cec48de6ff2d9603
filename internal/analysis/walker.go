package analysis

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// FileParser is the slice of a language parser the walker needs.
type FileParser interface {
	Language() string
	ParseFile(path string) (*Record, error)
	DefaultFilePatterns() []string
}

// Walker enumerates matching files under a root and parses each with a
// single language parser. Individual file failures are logged and
// excluded; they never abort the scan.
type Walker struct {
	parser   FileParser
	excludes []string
	logger   *slog.Logger
}

// Directories that never contain indexable sources.
var defaultExcludes = []string{
	"**/.git/**",
	"**/__pycache__/**",
	"**/node_modules/**",
	"**/venv/**",
	"**/.venv/**",
	"**/vendor/**",
	"**/dist/**",
	"**/build/**",
	"**/target/**",
	"**/.idea/**",
	"**/.vscode/**",
}

// NewWalker creates a walker for the given parser.
func NewWalker(parser FileParser, logger *slog.Logger) *Walker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Walker{
		parser:   parser,
		excludes: defaultExcludes,
		logger:   logger,
	}
}

// ParseRepository scans root for files matching patterns (the parser's
// default patterns when none are given) and parses each one.
func (w *Walker) ParseRepository(root string, patterns []string) (*RepositoryResult, error) {
	result := &RepositoryResult{
		Repository: root,
		Language:   w.parser.Language(),
		Records:    []Record{},
	}

	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		w.logger.Error("repository path is not a directory", "path", root)
		return result, nil
	}

	if len(patterns) == 0 {
		patterns = w.parser.DefaultFilePatterns()
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("walk error", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if w.excluded(relPath) {
				return filepath.SkipDir
			}
			return nil
		}

		if w.excluded(relPath) || !matchAny(patterns, relPath) {
			return nil
		}

		record, err := w.parser.ParseFile(path)
		if err != nil {
			w.logger.Error("failed to parse file", "path", path, "error", err)
			return nil
		}
		if record == nil {
			return nil
		}

		result.Records = append(result.Records, *record)
		result.Summary.Add(record)
		return nil
	})
	if err != nil {
		return result, err
	}

	w.logger.Info("repository scan complete",
		"root", root,
		"language", w.parser.Language(),
		"files", result.Summary.TotalFiles)

	return result, nil
}

func (w *Walker) excluded(relPath string) bool {
	for _, pattern := range w.excludes {
		if ok, _ := doublestar.Match(pattern, relPath); ok {
			return true
		}
		// Match the directory itself, not only its contents.
		if ok, _ := doublestar.Match(pattern, relPath+"/"); ok {
			return true
		}
	}
	return false
}

func matchAny(patterns []string, relPath string) bool {
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, relPath); ok {
			return true
		}
	}
	return false
}
