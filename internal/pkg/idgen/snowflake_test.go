package idgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_Unique(t *testing.T) {
	gen, err := New(7)
	require.NoError(t, err)

	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := gen.Next()
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestNew_InvalidNode(t *testing.T) {
	_, err := New(5000)
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	assert.NotEmpty(t, Default().Next())
	assert.Same(t, Default(), Default())
}
