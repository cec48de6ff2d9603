package parser

import (
	"regexp"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"

	"github.com/randalmurphy/codelens/internal/analysis"
)

func javaGrammar() grammar {
	return grammar{
		name:          "java",
		filePatterns:  []string{"**/*.java"},
		sitterLang:    java.GetLanguage,
		lineComment:   "//",
		blockComments: []blockComment{{open: "/*", close: "*/"}},
		extract:       extractJava,
		fallback: fallbackRules{
			function: regexp.MustCompile(
				`^\s*(?:(?:public|private|protected|static|final|abstract|synchronized)\s+)*[\w<>\[\],.\s]+\s+([A-Za-z_]\w*)\s*\([^;]*$`),
			class:        regexp.MustCompile(`^\s*(?:(?:public|private|protected|static|final|abstract)\s+)*(?:class|interface|enum)\s+([A-Za-z_]\w*)`),
			importLine:   regexp.MustCompile(`^\s*import\s+[\w.]+(?:\.\*)?\s*;`),
			scopedImport: regexp.MustCompile(`^\s*import\s+static\s`),
		},
	}
}

// Decision-point node kinds for Java. switch_label counts each case arm.
var javaDecisions = map[string]bool{
	"if_statement":           true,
	"for_statement":          true,
	"enhanced_for_statement": true,
	"while_statement":        true,
	"do_statement":           true,
	"switch_label":           true,
	"catch_clause":           true,
}

func extractJava(root *sitter.Node, source []byte) extracted {
	ex := extracted{
		functions: []analysis.Function{},
		classes:   []analysis.Class{},
		imports:   []analysis.Import{},
	}

	var walk func(n *sitter.Node, inClass bool)
	walk = func(n *sitter.Node, inClass bool) {
		switch n.Type() {
		case "class_declaration":
			ex.classes = append(ex.classes, javaClass(n, source))
			// Nested class declarations are reported as classes too.
			if body := n.ChildByFieldName("body"); body != nil {
				for i := 0; i < int(body.ChildCount()); i++ {
					if c := body.Child(i); c.Type() == "class_declaration" {
						walk(c, true)
					}
				}
			}
			return

		case "method_declaration":
			// Methods owned by a captured class are listed under it;
			// anything else (interface methods, annotations) is a
			// standalone function.
			if !inClass {
				ex.functions = append(ex.functions, javaMethod(n, source))
			}
			return

		case "import_declaration":
			kind := analysis.ImportPlain
			if childByType(n, "static") != nil {
				kind = analysis.ImportScoped
			}
			ex.imports = append(ex.imports, analysis.Import{
				Text:     nodeText(n, source),
				Position: nodeSpan(n),
				Kind:     kind,
			})
			return
		}

		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i), inClass)
		}
	}
	walk(root, false)

	return ex
}

func javaClass(n *sitter.Node, source []byte) analysis.Class {
	cls := analysis.Class{
		Position:   nodeSpan(n),
		Methods:    []analysis.Function{},
		Complexity: complexity(n, javaDecisions),
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
		if c := body.Child(i); c.Type() == "method_declaration" {
			cls.Methods = append(cls.Methods, javaMethod(c, source))
		}
	}

	return cls
}

func javaMethod(n *sitter.Node, source []byte) analysis.Function {
	fn := analysis.Function{
		Position:   nodeSpan(n),
		Parameters: []analysis.Param{},
		Complexity: complexity(n, javaDecisions),
	}

	if name := n.ChildByFieldName("name"); name != nil {
		fn.Name = nodeText(name, source)
	}
	if params := n.ChildByFieldName("parameters"); params != nil {
		fn.Parameters = javaParams(params, source)
	}
	if body := n.ChildByFieldName("body"); body != nil {
		fn.Body = nodeText(body, source)
	}

	return fn
}

func javaParams(params *sitter.Node, source []byte) []analysis.Param {
	out := []analysis.Param{}

	for i := 0; i < int(params.ChildCount()); i++ {
		decl := params.Child(i)
		if decl.Type() != "formal_parameter" && decl.Type() != "spread_parameter" {
			continue
		}

		p := analysis.Param{}
		if name := decl.ChildByFieldName("name"); name != nil {
			p.Name = nodeText(name, source)
		}
		if typ := decl.ChildByFieldName("type"); typ != nil {
			p.Type = nodeText(typ, source)
		}
		if p.Name == "" && decl.Type() == "spread_parameter" {
			// spread_parameter nests the name in a variable_declarator.
			if v := childByType(decl, "variable_declarator"); v != nil {
				if name := v.ChildByFieldName("name"); name != nil {
					p.Name = nodeText(name, source)
				}
			}
		}
		if p.Name != "" {
			out = append(out, p)
		}
	}

	return out
}
