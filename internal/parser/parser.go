// Package parser provides grammar-driven extraction of structural facts
// from source files, with a text-pattern fallback when grammar parsing
// is unavailable or the syntax tree reports errors.
package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/randalmurphy/codelens/internal/analysis"
)

var (
	// ErrUnsupportedLanguage is returned by the registry on a lookup miss.
	ErrUnsupportedLanguage = errors.New("unsupported language")
	// ErrNotAFile is returned when the target path is missing or not a
	// regular file.
	ErrNotAFile = errors.New("not a file")
)

// Parser is the capability set every language variant implements.
type Parser interface {
	Language() string
	ParseFile(path string) (*analysis.Record, error)
	ParseSource(source []byte, path string) *analysis.Record
	DefaultFilePatterns() []string
}

// extracted bundles the three entity lists a grammar pass produces.
type extracted struct {
	functions []analysis.Function
	classes   []analysis.Class
	imports   []analysis.Import
}

// grammar describes one language variant: its tree-sitter binding, the
// node kinds that count as decision points, its comment syntax, the tree
// extractor and the text-pattern fallback rules.
type grammar struct {
	name          string
	filePatterns  []string
	sitterLang    func() *sitter.Language
	lineComment   string
	blockComments []blockComment
	extract       func(root *sitter.Node, source []byte) extracted
	fallback      fallbackRules
}

// LanguageParser parses files of a single language. One instance is
// cached per language by the registry for the process lifetime.
type LanguageParser struct {
	g        grammar
	parser   *sitter.Parser
	degraded bool
	logger   *slog.Logger
}

func newLanguageParser(g grammar, logger *slog.Logger) *LanguageParser {
	if logger == nil {
		logger = slog.Default()
	}
	p := &LanguageParser{g: g, logger: logger}
	p.setupGrammar()
	return p
}

// setupGrammar acquires the tree-sitter grammar. A failure flips the
// parser into pattern-extraction mode instead of making it unusable.
func (p *LanguageParser) setupGrammar() {
	defer func() {
		if r := recover(); r != nil {
			p.degraded = true
			p.logger.Warn("grammar unavailable, using pattern extraction",
				"language", p.g.name, "cause", fmt.Sprint(r))
		}
	}()

	lang := p.g.sitterLang()
	if lang == nil {
		p.degraded = true
		return
	}
	sp := sitter.NewParser()
	sp.SetLanguage(lang)
	p.parser = sp
}

// Language returns the canonical language name.
func (p *LanguageParser) Language() string { return p.g.name }

// DefaultFilePatterns returns the glob patterns identifying files of
// this language for repository-wide scans.
func (p *LanguageParser) DefaultFilePatterns() []string { return p.g.filePatterns }

// ParseFile reads and parses one file into a record.
func (p *LanguageParser) ParseFile(path string) (*analysis.Record, error) {
	info, err := os.Stat(path)
	if err != nil {
		p.logger.Warn("file does not exist", "path", path)
		return nil, fmt.Errorf("%w: %s", ErrNotAFile, path)
	}
	if info.IsDir() {
		p.logger.Warn("path is not a file", "path", path)
		return nil, fmt.Errorf("%w: %s", ErrNotAFile, path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	return p.ParseSource(raw, path), nil
}

// ParseSource parses a byte buffer. It tries the grammar first and
// degrades to text-pattern extraction when the grammar is unavailable,
// the parse fails, or the tree reports structural errors. The record is
// tagged with the extraction path that produced it.
func (p *LanguageParser) ParseSource(source []byte, path string) *analysis.Record {
	text := decodeSource(source)

	record := &analysis.Record{
		FilePath:   path,
		Language:   p.g.name,
		Extraction: analysis.ExtractionGrammar,
		Functions:  []analysis.Function{},
		Classes:    []analysis.Class{},
		Imports:    []analysis.Import{},
	}

	ex, ok := p.grammarExtract([]byte(text))
	if !ok {
		ex = patternExtract(text, p.g.fallback)
		record.Extraction = analysis.ExtractionPattern
		p.logger.Debug("pattern extraction used", "path", path, "language", p.g.name)
	}

	if ex.functions != nil {
		record.Functions = ex.functions
	}
	if ex.classes != nil {
		record.Classes = ex.classes
	}
	if ex.imports != nil {
		record.Imports = ex.imports
	}

	record.Metrics = lineMetrics(text, p.g.lineComment, p.g.blockComments)
	record.Metrics.AverageComplexity = averageComplexity(record)

	return record
}

// grammarExtract runs the tree parse. The second return is false when
// the caller must fall back to pattern extraction.
func (p *LanguageParser) grammarExtract(source []byte) (ex extracted, ok bool) {
	if p.degraded || p.parser == nil {
		return extracted{}, false
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("grammar parse panicked", "language", p.g.name, "cause", fmt.Sprint(r))
			ex, ok = extracted{}, false
		}
	}()

	tree, err := p.parser.ParseCtx(context.Background(), nil, source)
	if err != nil || tree == nil {
		return extracted{}, false
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil || root.HasError() {
		return extracted{}, false
	}

	return p.g.extract(root, source), true
}

// complexity computes the McCabe-style score for the subtree rooted at
// node: base 1 plus 1 per descendant whose kind is a decision point.
func complexity(node *sitter.Node, decisionKinds map[string]bool) int {
	score := 1
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if decisionKinds[n.Type()] {
			score++
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(node)
	return score
}

// averageComplexity averages the scores of every function and type
// scope in the record, methods included. Zero when no scope exists.
func averageComplexity(r *analysis.Record) float64 {
	total, count := 0, 0
	for _, fn := range r.Functions {
		total += fn.Complexity
		count++
	}
	for _, cls := range r.Classes {
		total += cls.Complexity
		count++
		for _, m := range cls.Methods {
			total += m.Complexity
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return float64(total) / float64(count)
}

// Shared tree helpers.

func nodeText(node *sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}

func nodeSpan(node *sitter.Node) analysis.Span {
	return analysis.Span{
		StartLine:   int(node.StartPoint().Row),
		StartColumn: int(node.StartPoint().Column),
		EndLine:     int(node.EndPoint().Row),
		EndColumn:   int(node.EndPoint().Column),
	}
}

func childByType(node *sitter.Node, kind string) *sitter.Node {
	for i := 0; i < int(node.ChildCount()); i++ {
		if c := node.Child(i); c.Type() == kind {
			return c
		}
	}
	return nil
}
