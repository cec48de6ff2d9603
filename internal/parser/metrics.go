package parser

import (
	"strings"

	"github.com/randalmurphy/codelens/internal/analysis"
)

// blockComment is a multi-line comment delimiter pair.
type blockComment struct {
	open  string
	close string
}

// lineMetrics classifies every line of text into exactly one of blank,
// comment or code, so the three counts always sum to the total.
func lineMetrics(text, lineComment string, blocks []blockComment) analysis.Metrics {
	lines := strings.Split(text, "\n")

	m := analysis.Metrics{TotalLines: len(lines)}

	inBlock := false
	var closing string

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if trimmed == "" {
			m.BlankLines++
			if inBlock && strings.Contains(line, closing) {
				inBlock = false
			}
			continue
		}

		if inBlock {
			m.CommentLines++
			if idx := strings.Index(line, closing); idx >= 0 {
				inBlock = false
				// Anything after the closing delimiter still counts as
				// part of the comment line.
			}
			continue
		}

		if lineComment != "" && strings.HasPrefix(trimmed, lineComment) {
			m.CommentLines++
			continue
		}

		if open, close, ok := blockOpening(trimmed, blocks); ok {
			m.CommentLines++
			rest := trimmed[len(open):]
			if !strings.Contains(rest, close) {
				inBlock = true
				closing = close
			}
			continue
		}

		m.CodeLines++

		// A block comment opened mid-line spills into following lines.
		for _, b := range blocks {
			if idx := strings.Index(trimmed, b.open); idx > 0 {
				if !strings.Contains(trimmed[idx+len(b.open):], b.close) {
					inBlock = true
					closing = b.close
				}
				break
			}
		}
	}

	return m
}

func blockOpening(trimmed string, blocks []blockComment) (open, close string, ok bool) {
	for _, b := range blocks {
		if strings.HasPrefix(trimmed, b.open) {
			return b.open, b.close, true
		}
	}
	return "", "", false
}
