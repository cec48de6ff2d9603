package index

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordPointID(t *testing.T) {
	// Same path always maps to the same point so upserts stay idempotent.
	assert.Equal(t, recordPointID("src/a.py"), recordPointID("src/a.py"))
	assert.NotEqual(t, recordPointID("src/a.py"), recordPointID("src/b.py"))

	uuidShape := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	assert.Regexp(t, uuidShape, recordPointID("src/a.py"))
}
