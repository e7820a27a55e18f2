//go:build integration

package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloo-solutions/tutorcore/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	calls int
	err   error
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return []float32{float32(len(text)), 1, 0}, nil
}

func TestQueryEmbeddingCache_Integration(t *testing.T) {
	ctx := context.Background()
	rc := testutil.NewRedisContainer(ctx, t)
	defer rc.Terminate(ctx)

	rdb, err := NewRedisClient(ctx, rc.URL())
	require.NoError(t, err)
	defer rdb.Close()

	t.Run("second lookup is served from redis", func(t *testing.T) {
		next := &countingEmbedder{}
		c := NewQueryEmbeddingCache(rdb, next, "m1", 3, time.Minute, nil)

		first, err := c.Embed(ctx, "define recursion")
		require.NoError(t, err)
		second, err := c.Embed(ctx, "define recursion")
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, 1, next.calls)

		ttl, err := rdb.TTL(ctx, c.key("define recursion")).Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Duration(0))
	})

	t.Run("provider errors are not cached", func(t *testing.T) {
		next := &countingEmbedder{err: errors.New("boom")}
		c := NewQueryEmbeddingCache(rdb, next, "m2", 3, time.Minute, nil)

		_, err := c.Embed(ctx, "q")
		require.Error(t, err)
		_, err = c.Embed(ctx, "q")
		require.Error(t, err)
		assert.Equal(t, 2, next.calls)
	})

	t.Run("malformed entry falls through to provider", func(t *testing.T) {
		next := &countingEmbedder{}
		c := NewQueryEmbeddingCache(rdb, next, "m3", 3, time.Minute, nil)
		require.NoError(t, rdb.Set(ctx, c.key("q"), []byte{1, 2}, time.Minute).Err())

		v, err := c.Embed(ctx, "q")
		require.NoError(t, err)
		assert.Len(t, v, 3)
		assert.Equal(t, 1, next.calls)
	})
}

func TestNewRedisClient_BadURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "not a url")
	assert.Error(t, err)
}
