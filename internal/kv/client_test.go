package kv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClientContract exercises the behaviour every backend must share
func testClientContract(t *testing.T, c Client) {
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		_, err := c.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("insert then get", func(t *testing.T) {
		v, err := c.Insert(ctx, "ins", []byte("one"), time.Minute)
		require.NoError(t, err)
		assert.NotZero(t, v)

		item, err := c.Get(ctx, "ins")
		require.NoError(t, err)
		assert.Equal(t, []byte("one"), item.Value)
		assert.Equal(t, v, item.Version)

		_, err = c.Insert(ctx, "ins", []byte("two"), time.Minute)
		assert.ErrorIs(t, err, ErrKeyExists)
	})

	t.Run("upsert changes version", func(t *testing.T) {
		v1, err := c.Upsert(ctx, "up", []byte("a"), 0)
		require.NoError(t, err)
		v2, err := c.Upsert(ctx, "up", []byte("b"), 0)
		require.NoError(t, err)
		assert.NotEqual(t, v1, v2)

		item, err := c.Get(ctx, "up")
		require.NoError(t, err)
		assert.Equal(t, []byte("b"), item.Value)
		assert.Equal(t, v2, item.Version)
	})

	t.Run("compare and swap", func(t *testing.T) {
		v1, err := c.Insert(ctx, "cas", []byte("a"), time.Minute)
		require.NoError(t, err)

		v2, err := c.CompareAndSwap(ctx, "cas", []byte("b"), time.Minute, v1)
		require.NoError(t, err)
		assert.NotEqual(t, v1, v2)

		_, err = c.CompareAndSwap(ctx, "cas", []byte("c"), time.Minute, v1)
		assert.ErrorIs(t, err, ErrVersionMismatch)

		item, err := c.Get(ctx, "cas")
		require.NoError(t, err)
		assert.Equal(t, []byte("b"), item.Value)

		_, err = c.CompareAndSwap(ctx, "cas-missing", []byte("x"), time.Minute, v1)
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("touch and remove", func(t *testing.T) {
		v, err := c.Insert(ctx, "tr", []byte("a"), time.Minute)
		require.NoError(t, err)

		require.NoError(t, c.Touch(ctx, "tr", 2*time.Minute))
		require.NoError(t, c.Touch(ctx, "tr", 0))
		item, err := c.Get(ctx, "tr")
		require.NoError(t, err)
		assert.Equal(t, v, item.Version, "touch must keep the version")

		require.NoError(t, c.Remove(ctx, "tr"))
		assert.ErrorIs(t, c.Remove(ctx, "tr"), ErrKeyNotFound)
		assert.ErrorIs(t, c.Touch(ctx, "tr", time.Minute), ErrKeyNotFound)
	})

	t.Run("binary values survive", func(t *testing.T) {
		raw := []byte{0x00, 0xff, 0x1f, 0x8b, 0x00}
		_, err := c.Upsert(ctx, "bin", raw, time.Minute)
		require.NoError(t, err)
		item, err := c.Get(ctx, "bin")
		require.NoError(t, err)
		assert.Equal(t, raw, item.Value)
	})
}

func TestRandomVersion(t *testing.T) {
	seen := make(map[Version]struct{})
	for i := 0; i < 1000; i++ {
		v := randomVersion(0)
		assert.NotZero(t, v)
		seen[v] = struct{}{}
	}
	assert.Greater(t, len(seen), 990)
}

func TestNamespace(t *testing.T) {
	mem := NewMemoryClient()
	assert.Same(t, Client(mem), WithNamespace(mem, ""))

	c := WithNamespace(mem, "app1")
	testClientContract(t, c)

	ctx := context.Background()
	_, err := c.Upsert(ctx, "k", []byte("v"), 0)
	require.NoError(t, err)
	item, err := mem.Get(ctx, "app1:k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), item.Value)

	_, err = mem.Get(ctx, "k")
	assert.True(t, errors.Is(err, ErrKeyNotFound))
}
