package kv

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryClient_Contract(t *testing.T) {
	testClientContract(t, NewMemoryClient())
}

func TestMemoryClient_Expiry(t *testing.T) {
	c := NewMemoryClient()
	now := time.Now()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := c.Insert(ctx, "k", []byte("v"), time.Second)
	require.NoError(t, err)
	_, err = c.Upsert(ctx, "forever", []byte("v"), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	now = now.Add(2 * time.Second)
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.Equal(t, 1, c.Len())

	// an expired key can be inserted again
	_, err = c.Insert(ctx, "k", []byte("v2"), time.Second)
	assert.NoError(t, err)
}

func TestMemoryClient_MonotonicVersions(t *testing.T) {
	c := NewMemoryClient()
	ctx := context.Background()
	v1, _ := c.Upsert(ctx, "a", nil, 0)
	v2, _ := c.Upsert(ctx, "b", nil, 0)
	assert.Greater(t, v2, v1)
}

func TestMemoryClient_CancelledContext(t *testing.T) {
	c := NewMemoryClient()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Upsert(ctx, "k", []byte("v"), 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, c.Len())
}

func TestMemoryClient_ConcurrentCAS(t *testing.T) {
	c := NewMemoryClient()
	ctx := context.Background()
	v, err := c.Insert(ctx, "k", []byte("0"), 0)
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.CompareAndSwap(ctx, "k", []byte("1"), 0, v); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}
