package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSaveRegistry(t *testing.T) {
	r := NewSaveRegistry(map[string]any{"count": int64(4)})

	v, ok := r.Consume("count")
	assert.True(t, ok)
	assert.Equal(t, int64(4), v)
	_, ok = r.Consume("count")
	assert.False(t, ok, "restored values are consumed once")

	n := 7
	unregister := r.Register("count", func() any { return n })
	r.Register("name", func() any { return "x" })
	assert.Equal(t, []string{"count", "name"}, r.Keys())
	assert.Equal(t, map[string]any{"count": 7, "name": "x"}, r.Snapshot())

	unregister()
	assert.Equal(t, []string{"name"}, r.Keys())
}

func TestSaveRegistryStaleUnregister(t *testing.T) {
	r := NewSaveRegistry(nil)
	first := r.Register("k", func() any { return 1 })
	r.Register("k", func() any { return 2 })

	first()
	assert.Equal(t, map[string]any{"k": 2}, r.Snapshot(), "replaced providers cannot unregister the replacement")
}
