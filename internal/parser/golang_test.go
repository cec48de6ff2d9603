package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphy/codelens/internal/analysis"
)

func goParser(t *testing.T) Parser {
	t.Helper()
	p, err := NewRegistry(nil).Resolve("go")
	require.NoError(t, err)
	return p
}

func TestParseGoFunction(t *testing.T) {
	code := `package main

func run(name string, count int) error {
	if name == "" {
		return nil
	}
	for i := 0; i < count; i++ {
		println(name)
	}
	return nil
}
`
	record := goParser(t).ParseSource([]byte(code), "main.go")

	assert.Equal(t, analysis.ExtractionGrammar, record.Extraction)
	require.Len(t, record.Functions, 1)

	fn := record.Functions[0]
	assert.Equal(t, "run", fn.Name)
	require.Len(t, fn.Parameters, 2)
	assert.Equal(t, analysis.Param{Name: "name", Type: "string"}, fn.Parameters[0])
	assert.Equal(t, analysis.Param{Name: "count", Type: "int"}, fn.Parameters[1])

	// base 1 + if + for
	assert.Equal(t, 3, fn.Complexity)
}

func TestParseGoMethodAttachesToReceiverType(t *testing.T) {
	code := `package main

type Server struct {
	addr string
}

func (s *Server) Start() error {
	if s.addr == "" {
		return nil
	}
	return nil
}

func standalone() {}
`
	record := goParser(t).ParseSource([]byte(code), "server.go")

	require.Len(t, record.Classes, 1)
	cls := record.Classes[0]
	assert.Equal(t, "Server", cls.Name)
	require.Len(t, cls.Methods, 1)
	assert.Equal(t, "Start", cls.Methods[0].Name)
	assert.Equal(t, 2, cls.Methods[0].Complexity)

	require.Len(t, record.Functions, 1)
	assert.Equal(t, "standalone", record.Functions[0].Name)
}

func TestParseGoMethodDeclaredBeforeReceiverType(t *testing.T) {
	// Method above its receiver's type declaration still attaches to it.
	code := `package main

func (s *Server) Start() error {
	return nil
}

type Server struct {
	addr string
}
`
	record := goParser(t).ParseSource([]byte(code), "server.go")

	require.Len(t, record.Classes, 1)
	cls := record.Classes[0]
	assert.Equal(t, "Server", cls.Name)
	require.Len(t, cls.Methods, 1)
	assert.Equal(t, "Start", cls.Methods[0].Name)
	assert.Empty(t, record.Functions)
}

func TestParseGoMethodWithoutDeclaredReceiverType(t *testing.T) {
	// Receiver type declared in another file: the method is reported as
	// a plain function rather than dropped.
	code := `package main

func (c *Client) Do() {}
`
	record := goParser(t).ParseSource([]byte(code), "client.go")

	assert.Empty(t, record.Classes)
	require.Len(t, record.Functions, 1)
	assert.Equal(t, "Do", record.Functions[0].Name)
}

func TestParseGoImports(t *testing.T) {
	code := `package main

import (
	"fmt"
	sitter "github.com/smacker/go-tree-sitter"
)
`
	record := goParser(t).ParseSource([]byte(code), "main.go")

	require.Len(t, record.Imports, 2)
	assert.Equal(t, `import "fmt"`, record.Imports[0].Text)
	assert.Equal(t, analysis.ImportPlain, record.Imports[0].Kind)
	assert.Equal(t, `import sitter "github.com/smacker/go-tree-sitter"`, record.Imports[1].Text)
	assert.Equal(t, analysis.ImportScoped, record.Imports[1].Kind)
}

func TestParseGoSwitchCases(t *testing.T) {
	code := `package main

func classify(x int) string {
	switch {
	case x < 0:
		return "negative"
	case x == 0:
		return "zero"
	default:
		return "positive"
	}
}
`
	record := goParser(t).ParseSource([]byte(code), "main.go")

	require.Len(t, record.Functions, 1)
	// base 1 + two expression cases; default is not a case node.
	assert.Equal(t, 3, record.Functions[0].Complexity)
}
