package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphy/codelens/internal/analysis"
)

func javaParser(t *testing.T) Parser {
	t.Helper()
	p, err := NewRegistry(nil).Resolve("java")
	require.NoError(t, err)
	return p
}

func TestParseJavaClass(t *testing.T) {
	code := `
import java.util.List;
import static java.util.Objects.requireNonNull;

public class OrderService {
    public void process(List<String> orders) {
        for (String order : orders) {
            handle(order);
        }
    }

    private void handle(String order) {
        try {
            parse(order);
        } catch (Exception e) {
            log(e);
        }
    }
}
`
	record := javaParser(t).ParseSource([]byte(code), "OrderService.java")

	assert.Equal(t, analysis.ExtractionGrammar, record.Extraction)
	assert.Empty(t, record.Functions)
	require.Len(t, record.Classes, 1)

	cls := record.Classes[0]
	assert.Equal(t, "OrderService", cls.Name)
	require.Len(t, cls.Methods, 2)

	process := cls.Methods[0]
	assert.Equal(t, "process", process.Name)
	require.Len(t, process.Parameters, 1)
	assert.Equal(t, "orders", process.Parameters[0].Name)
	assert.Equal(t, "List<String>", process.Parameters[0].Type)
	// base 1 + enhanced for
	assert.Equal(t, 2, process.Complexity)

	handle := cls.Methods[1]
	assert.Equal(t, "handle", handle.Name)
	// base 1 + catch clause
	assert.Equal(t, 2, handle.Complexity)

	require.Len(t, record.Imports, 2)
	assert.Equal(t, analysis.ImportPlain, record.Imports[0].Kind)
	assert.Equal(t, analysis.ImportScoped, record.Imports[1].Kind)
}

func TestParseJavaNestedClass(t *testing.T) {
	code := `
public class Outer {
    static class Inner {
        void run() {}
    }
}
`
	record := javaParser(t).ParseSource([]byte(code), "Outer.java")

	require.Len(t, record.Classes, 2)
	assert.Equal(t, "Outer", record.Classes[0].Name)
	assert.Equal(t, "Inner", record.Classes[1].Name)
	require.Len(t, record.Classes[1].Methods, 1)
	assert.Equal(t, "run", record.Classes[1].Methods[0].Name)
}
