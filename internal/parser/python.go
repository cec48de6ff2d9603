package parser

import (
	"regexp"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/randalmurphy/codelens/internal/analysis"
)

func pythonGrammar() grammar {
	return grammar{
		name:         "python",
		filePatterns: []string{"**/*.py"},
		sitterLang:   python.GetLanguage,
		lineComment:  "#",
		extract:      extractPython,
		fallback: fallbackRules{
			function:     regexp.MustCompile(`^\s*(?:async\s+)?def\s+([A-Za-z_]\w*)\s*\(`),
			class:        regexp.MustCompile(`^\s*class\s+([A-Za-z_]\w*)`),
			importLine:   regexp.MustCompile(`^\s*(?:import\s+\S+|from\s+\S+\s+import\s+\S+)`),
			scopedImport: regexp.MustCompile(`^\s*from\s+`),
		},
	}
}

// Decision-point node kinds for Python. elif and else are distinct
// clause kinds in this grammar, unlike Go and Java where else is only
// a token inside if_statement.
var pythonDecisions = map[string]bool{
	"if_statement":    true,
	"elif_clause":     true,
	"else_clause":     true,
	"for_statement":   true,
	"while_statement": true,
	"case_clause":     true,
	"except_clause":   true,
}

func extractPython(root *sitter.Node, source []byte) extracted {
	ex := extracted{
		functions: []analysis.Function{},
		classes:   []analysis.Class{},
		imports:   []analysis.Import{},
	}

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "function_definition":
			ex.functions = append(ex.functions, pythonFunction(n, source))
			// Nested defs inside the body are still reported as functions.
			if body := n.ChildByFieldName("body"); body != nil {
				for i := 0; i < int(body.ChildCount()); i++ {
					walk(body.Child(i))
				}
			}
			return

		case "class_definition":
			ex.classes = append(ex.classes, pythonClass(n, source))
			return

		case "import_statement":
			ex.imports = append(ex.imports, analysis.Import{
				Text:     nodeText(n, source),
				Position: nodeSpan(n),
				Kind:     analysis.ImportPlain,
			})

		case "import_from_statement":
			ex.imports = append(ex.imports, analysis.Import{
				Text:     nodeText(n, source),
				Position: nodeSpan(n),
				Kind:     analysis.ImportScoped,
			})
		}

		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)

	return ex
}

func pythonFunction(n *sitter.Node, source []byte) analysis.Function {
	fn := analysis.Function{
		Position:   nodeSpan(n),
		Parameters: []analysis.Param{},
		Complexity: complexity(n, pythonDecisions),
	}

	if name := n.ChildByFieldName("name"); name != nil {
		fn.Name = nodeText(name, source)
	}
	if params := n.ChildByFieldName("parameters"); params != nil {
		fn.Parameters = pythonParams(params, source)
	}
	if body := n.ChildByFieldName("body"); body != nil {
		fn.Body = nodeText(body, source)
	}

	return fn
}

func pythonClass(n *sitter.Node, source []byte) analysis.Class {
	cls := analysis.Class{
		Position:   nodeSpan(n),
		Methods:    []analysis.Function{},
		Complexity: complexity(n, pythonDecisions),
	}

	if name := n.ChildByFieldName("name"); name != nil {
		cls.Name = nodeText(name, source)
	}

	body := n.ChildByFieldName("body")
	if body == nil {
		return cls
	}
	cls.Body = nodeText(body, source)

	for i := 0; i < int(body.ChildCount()); i++ {
		child := body.Child(i)
		target := child
		if child.Type() == "decorated_definition" {
			if def := child.ChildByFieldName("definition"); def != nil {
				target = def
			}
		}
		if target.Type() == "function_definition" {
			cls.Methods = append(cls.Methods, pythonFunction(target, source))
		}
	}

	return cls
}

func pythonParams(params *sitter.Node, source []byte) []analysis.Param {
	out := []analysis.Param{}

	for i := 0; i < int(params.ChildCount()); i++ {
		child := params.Child(i)
		switch child.Type() {
		case "identifier":
			out = append(out, analysis.Param{Name: nodeText(child, source)})
		case "typed_parameter", "typed_default_parameter":
			p := analysis.Param{}
			if id := childByType(child, "identifier"); id != nil {
				p.Name = nodeText(id, source)
			} else if name := child.ChildByFieldName("name"); name != nil {
				p.Name = nodeText(name, source)
			}
			if typ := child.ChildByFieldName("type"); typ != nil {
				p.Type = nodeText(typ, source)
			}
			if p.Name != "" {
				out = append(out, p)
			}
		case "default_parameter":
			if name := child.ChildByFieldName("name"); name != nil {
				out = append(out, analysis.Param{Name: nodeText(name, source)})
			}
		}
	}

	return out
}
