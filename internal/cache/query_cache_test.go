package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorEncoding(t *testing.T) {
	v := []float32{0.25, -1.5, 3.0e-7, 0}

	got, ok := decodeVector(encodeVector(v), len(v))
	require.True(t, ok)
	assert.Equal(t, v, got)
}

func TestDecodeVectorRejectsMalformed(t *testing.T) {
	t.Run("wrong dimension", func(t *testing.T) {
		_, ok := decodeVector(encodeVector([]float32{1, 2, 3}), 4)
		assert.False(t, ok)
	})

	t.Run("truncated", func(t *testing.T) {
		_, ok := decodeVector([]byte{1, 2, 3}, 0)
		assert.False(t, ok)
	})

	t.Run("empty", func(t *testing.T) {
		_, ok := decodeVector(nil, 0)
		assert.False(t, ok)
	})
}

func TestKeyIsNamespacedByModel(t *testing.T) {
	small := NewQueryEmbeddingCache(nil, nil, "text-embedding-3-small", 4, 0, nil)
	large := NewQueryEmbeddingCache(nil, nil, "text-embedding-3-large", 4, 0, nil)

	assert.NotEqual(t, small.key("what is entropy"), large.key("what is entropy"))
	assert.Equal(t, small.key("what is entropy"), small.key("what is entropy"))
	assert.Contains(t, small.key("q"), keyPrefix+"text-embedding-3-small:")
	assert.Equal(t, DefaultTTL, small.ttl)
}
