package runid

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDv7Generator(t *testing.T) {
	var g Generator = UUIDv7Generator{}

	a, b := g.Generate(), g.Generate()
	assert.NotEqual(t, a, b)

	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestUUIDv7Generator_Sortable(t *testing.T) {
	g := UUIDv7Generator{}
	prev := g.Generate()
	for i := 0; i < 50; i++ {
		next := g.Generate()
		assert.Less(t, prev, next)
		prev = next
	}
}

func TestFixedGenerator(t *testing.T) {
	g := NewFixedGenerator("run-1", "run-2")

	assert.Equal(t, "run-1", g.Generate())
	assert.Equal(t, "run-2", g.Generate())
	assert.Panics(t, func() { g.Generate() })
}
