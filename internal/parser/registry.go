package parser

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Registry resolves languages to parser instances. It lazily constructs
// and caches exactly one parser per language; the closed set of variants
// is fixed at compile time.
type Registry struct {
	mu      sync.Mutex
	parsers map[string]*LanguageParser
	logger  *slog.Logger
}

// canonical maps language names, aliases and file extensions to the
// canonical language name.
var canonical = map[string]string{
	"python": "python",
	"py":     "python",
	"go":     "go",
	"golang": "go",
	"java":   "java",
}

var grammars = map[string]func() grammar{
	"python": pythonGrammar,
	"go":     goGrammar,
	"java":   javaGrammar,
}

// NewRegistry creates a parser registry. The registry is owned by the
// pipeline root and passed down; there is no process-wide singleton.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		parsers: make(map[string]*LanguageParser),
		logger:  logger,
	}
}

// Resolve returns the parser for a language name, alias or extension.
// Unknown inputs yield ErrUnsupportedLanguage, never a silent default.
func (r *Registry) Resolve(languageOrExt string) (Parser, error) {
	name, ok := canonical[strings.ToLower(strings.TrimPrefix(languageOrExt, "."))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, languageOrExt)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.parsers[name]; ok {
		return p, nil
	}

	p := newLanguageParser(grammars[name](), r.logger)
	r.parsers[name] = p
	r.logger.Info("parser created", "language", name)
	return p, nil
}

// ResolveForFile returns the parser matching a file's extension.
func (r *Registry) ResolveForFile(path string) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, path)
	}
	return r.Resolve(ext)
}

// Supported reports whether a language name, alias or extension is known.
func (r *Registry) Supported(languageOrExt string) bool {
	_, ok := canonical[strings.ToLower(strings.TrimPrefix(languageOrExt, "."))]
	return ok
}

// Languages returns the canonical language names, sorted.
func (r *Registry) Languages() []string {
	seen := make(map[string]bool)
	var out []string
	for _, name := range canonical {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// ClearCache drops all cached parser instances.
func (r *Registry) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers = make(map[string]*LanguageParser)
	r.logger.Info("parser cache cleared")
}
