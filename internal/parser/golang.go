package parser

import (
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/randalmurphy/codelens/internal/analysis"
)

func goGrammar() grammar {
	return grammar{
		name:          "go",
		filePatterns:  []string{"**/*.go"},
		sitterLang:    golang.GetLanguage,
		lineComment:   "//",
		blockComments: []blockComment{{open: "/*", close: "*/"}},
		extract:       extractGo,
		fallback: fallbackRules{
			function:     regexp.MustCompile(`^func\s+(?:\([^)]*\)\s*)?([A-Za-z_]\w*)\s*\(`),
			class:        regexp.MustCompile(`^type\s+([A-Za-z_]\w*)\s+(?:struct|interface)\b`),
			importLine:   regexp.MustCompile(`^\s*(?:import\s|(?:[\w.]+\s+)?"[^"]+"\s*$)`),
			scopedImport: regexp.MustCompile(`^\s*[\w.]+\s+"[^"]+"\s*$`),
		},
	}
}

// Decision-point node kinds for Go. There is no while (for covers it),
// no exceptions, and else is not a distinct node kind; an else-if chain
// shows up as nested if_statement nodes, which are counted once each.
var goDecisions = map[string]bool{
	"if_statement":       true,
	"for_statement":      true,
	"expression_case":    true,
	"type_case":          true,
	"communication_case": true,
}

func extractGo(root *sitter.Node, source []byte) extracted {
	ex := extracted{
		functions: []analysis.Function{},
		classes:   []analysis.Class{},
		imports:   []analysis.Import{},
	}

	// Index into ex.classes by type name so receiver methods attach to
	// the struct or interface they belong to. Types are collected in a
	// first pass so a method declared above its receiver type in the
	// file still finds it.
	classIdx := map[string]int{}

	var collectTypes func(n *sitter.Node)
	collectTypes = func(n *sitter.Node) {
		if n.Type() == "type_declaration" {
			for i := 0; i < int(n.ChildCount()); i++ {
				spec := n.Child(i)
				if spec.Type() != "type_spec" {
					continue
				}
				typ := spec.ChildByFieldName("type")
				if typ == nil {
					continue
				}
				if typ.Type() != "struct_type" && typ.Type() != "interface_type" {
					continue
				}

				cls := analysis.Class{
					Position:   nodeSpan(spec),
					Methods:    []analysis.Function{},
					Complexity: complexity(spec, goDecisions),
					Body:       nodeText(spec, source),
				}
				if name := spec.ChildByFieldName("name"); name != nil {
					cls.Name = nodeText(name, source)
				}
				classIdx[cls.Name] = len(ex.classes)
				ex.classes = append(ex.classes, cls)
			}
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			collectTypes(n.Child(i))
		}
	}
	collectTypes(root)

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "function_declaration":
			ex.functions = append(ex.functions, goFunction(n, source))
			return

		case "method_declaration":
			fn := goFunction(n, source)
			recv := goReceiverType(n, source)
			if i, ok := classIdx[recv]; ok {
				ex.classes[i].Methods = append(ex.classes[i].Methods, fn)
			} else {
				ex.functions = append(ex.functions, fn)
			}
			return

		case "type_declaration":
			return

		case "import_declaration":
			collectGoImports(n, source, &ex.imports)
			return
		}

		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)

	return ex
}

func goFunction(n *sitter.Node, source []byte) analysis.Function {
	fn := analysis.Function{
		Position:   nodeSpan(n),
		Parameters: []analysis.Param{},
		Complexity: complexity(n, goDecisions),
	}

	if name := n.ChildByFieldName("name"); name != nil {
		fn.Name = nodeText(name, source)
	}
	if params := n.ChildByFieldName("parameters"); params != nil {
		fn.Parameters = goParams(params, source)
	}
	if body := n.ChildByFieldName("body"); body != nil {
		fn.Body = nodeText(body, source)
	}

	return fn
}

func goParams(params *sitter.Node, source []byte) []analysis.Param {
	out := []analysis.Param{}

	for i := 0; i < int(params.ChildCount()); i++ {
		decl := params.Child(i)
		if decl.Type() != "parameter_declaration" && decl.Type() != "variadic_parameter_declaration" {
			continue
		}

		typ := ""
		if t := decl.ChildByFieldName("type"); t != nil {
			typ = nodeText(t, source)
		}

		named := false
		for j := 0; j < int(decl.ChildCount()); j++ {
			if c := decl.Child(j); c.Type() == "identifier" {
				out = append(out, analysis.Param{Name: nodeText(c, source), Type: typ})
				named = true
			}
		}
		// Unnamed parameter: carry the type alone.
		if !named && typ != "" {
			out = append(out, analysis.Param{Type: typ})
		}
	}

	return out
}

// goReceiverType returns the bare receiver type name of a method,
// stripping pointer and generic markers.
func goReceiverType(n *sitter.Node, source []byte) string {
	recv := n.ChildByFieldName("receiver")
	if recv == nil {
		return ""
	}

	decl := childByType(recv, "parameter_declaration")
	if decl == nil {
		return ""
	}
	typ := decl.ChildByFieldName("type")
	if typ == nil {
		return ""
	}

	name := nodeText(typ, source)
	name = strings.TrimPrefix(name, "*")
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i]
	}
	return name
}

func collectGoImports(decl *sitter.Node, source []byte, out *[]analysis.Import) {
	var specs []*sitter.Node
	if list := childByType(decl, "import_spec_list"); list != nil {
		for i := 0; i < int(list.ChildCount()); i++ {
			if c := list.Child(i); c.Type() == "import_spec" {
				specs = append(specs, c)
			}
		}
	} else if spec := childByType(decl, "import_spec"); spec != nil {
		specs = append(specs, spec)
	}

	for _, spec := range specs {
		path := ""
		if p := spec.ChildByFieldName("path"); p != nil {
			path = strings.Trim(nodeText(p, source), `"`)
		}

		alias := ""
		if name := spec.ChildByFieldName("name"); name != nil {
			alias = nodeText(name, source)
		}

		kind := analysis.ImportPlain
		text := `import "` + path + `"`
		if alias != "" {
			kind = analysis.ImportScoped
			text = "import " + alias + ` "` + path + `"`
		}

		*out = append(*out, analysis.Import{
			Text:     text,
			Position: nodeSpan(spec),
			Kind:     kind,
		})
	}
}
