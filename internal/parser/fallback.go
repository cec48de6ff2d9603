package parser

import (
	"regexp"
	"strings"

	"github.com/randalmurphy/codelens/internal/analysis"
)

// fallbackRules hold the per-construct matching rules used when grammar
// parsing is unavailable or the tree reports errors. Each expression
// captures the declared name in group 1.
type fallbackRules struct {
	function   *regexp.Regexp
	class      *regexp.Regexp
	importLine *regexp.Regexp
	// scopedImport marks an import line as scoped/static rather than plain.
	scopedImport *regexp.Regexp
}

// Control-flow keywords that superficially match a call-like signature
// shape. Never reported as functions.
var controlFlowKeywords = map[string]bool{
	"if":     true,
	"elif":   true,
	"else":   true,
	"while":  true,
	"for":    true,
	"switch": true,
	"select": true,
	"case":   true,
	"catch":  true,
	"except": true,
	"return": true,
}

// patternExtract scans raw text line by line applying the language's
// fallback rules. Entities come back in source order with base
// complexity; there is no tree to score decision points against.
func patternExtract(text string, rules fallbackRules) extracted {
	ex := extracted{
		functions: []analysis.Function{},
		classes:   []analysis.Class{},
		imports:   []analysis.Import{},
	}

	for i, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if rules.function != nil {
			if m := rules.function.FindStringSubmatchIndex(line); m != nil {
				name := line[m[2]:m[3]]
				if !controlFlowKeywords[name] {
					ex.functions = append(ex.functions, analysis.Function{
						Name:       name,
						Position:   lineSpan(i, m[0], len(line)),
						Parameters: []analysis.Param{},
						Complexity: 1,
						Body:       trimmed,
					})
					continue
				}
			}
		}

		if rules.class != nil {
			if m := rules.class.FindStringSubmatchIndex(line); m != nil {
				name := line[m[2]:m[3]]
				if !controlFlowKeywords[name] {
					ex.classes = append(ex.classes, analysis.Class{
						Name:       name,
						Position:   lineSpan(i, m[0], len(line)),
						Methods:    []analysis.Function{},
						Complexity: 1,
						Body:       trimmed,
					})
					continue
				}
			}
		}

		if rules.importLine != nil && rules.importLine.MatchString(line) {
			kind := analysis.ImportPlain
			if rules.scopedImport != nil && rules.scopedImport.MatchString(line) {
				kind = analysis.ImportScoped
			}
			ex.imports = append(ex.imports, analysis.Import{
				Text:     trimmed,
				Position: lineSpan(i, 0, len(line)),
				Kind:     kind,
			})
		}
	}

	return ex
}

func lineSpan(line, startCol, endCol int) analysis.Span {
	return analysis.Span{
		StartLine:   line,
		StartColumn: startCol,
		EndLine:     line,
		EndColumn:   endCol,
	}
}
