package embedding

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/randalmurphy/codelens/internal/analysis"
)

// bodySnippet is how much of an entity body feeds the embedding text.
const bodySnippet = 200

// ProjectRecord serializes a record's structured facts into the single
// text blob fed to the embedding model. The output is a pure function of
// the record: field order is fixed and every format is explicit, because
// index membership depends on identical records projecting to identical
// bytes.
func ProjectRecord(r *analysis.Record) string {
	parts := []string{
		"File: " + r.FilePath,
		"Language: " + r.Language,
	}

	for _, fn := range r.Functions {
		parts = append(parts, projectFunction(fn))
	}

	for _, cls := range r.Classes {
		text := "Class: " + cls.Name
		if len(cls.Methods) > 0 {
			names := make([]string, len(cls.Methods))
			for i, m := range cls.Methods {
				names[i] = m.Name
			}
			text += " Methods: " + strings.Join(names, ", ")
		}
		if cls.Body != "" {
			text += " Body: " + truncate(cls.Body, bodySnippet) + "..."
		}
		parts = append(parts, text)
	}

	if len(r.Imports) > 0 {
		texts := make([]string, len(r.Imports))
		for i, imp := range r.Imports {
			texts[i] = imp.Text
		}
		parts = append(parts, "Imports: "+strings.Join(texts, " "))
	}

	parts = append(parts, fmt.Sprintf("Metrics: Lines=%d, Complexity=%.2f",
		r.Metrics.TotalLines, r.Metrics.AverageComplexity))

	return strings.Join(parts, " ")
}

func projectFunction(fn analysis.Function) string {
	text := "Function: " + fn.Name
	if len(fn.Parameters) > 0 {
		params := make([]string, len(fn.Parameters))
		for i, p := range fn.Parameters {
			params[i] = formatParam(p)
		}
		text += " Parameters: " + strings.Join(params, ", ")
	}
	if fn.Body != "" {
		text += " Body: " + truncate(fn.Body, bodySnippet) + "..."
	}
	return text
}

func formatParam(p analysis.Param) string {
	switch {
	case p.Name != "" && p.Type != "":
		return p.Name + " " + p.Type
	case p.Name != "":
		return p.Name
	default:
		return p.Type
	}
}

// truncate cuts to n runes, never mid-rune, so the projection stays
// valid UTF-8.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
