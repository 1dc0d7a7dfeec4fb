package kv

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/amoylab/sessionkv/internal/common/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSQLiteClient(t *testing.T, sweep time.Duration) *DBClient {
	t.Helper()
	cfg := &config.DatabaseConfig{
		Type:          "sqlite",
		DBName:        filepath.Join(t.TempDir(), "kv.db"),
		SweepInterval: sweep,
	}
	c, err := NewDBClient(zap.NewNop(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNewDBClient_InvalidType(t *testing.T) {
	c, err := NewDBClient(zap.NewNop(), &config.DatabaseConfig{Type: "oracle"})
	assert.Nil(t, c)
	assert.ErrorIs(t, err, ErrInvalidDatabaseType)
}

func TestDBClient_Contract(t *testing.T) {
	testClientContract(t, newSQLiteClient(t, 0))
}

func TestDBClient_ExpiredRows(t *testing.T) {
	c := newSQLiteClient(t, 0)
	now := time.Now()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	v, err := c.Insert(ctx, "k", []byte("v"), time.Second)
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	_, err = c.CompareAndSwap(ctx, "k", []byte("x"), 0, v)
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.ErrorIs(t, c.Touch(ctx, "k", time.Minute), ErrKeyNotFound)

	// insert replaces the expired row
	_, err = c.Insert(ctx, "k", []byte("fresh"), time.Minute)
	require.NoError(t, err)
	item, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh"), item.Value)
}

func TestDBClient_Sweep(t *testing.T) {
	c := newSQLiteClient(t, 0)
	now := time.Now()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := c.Insert(ctx, "a", []byte("v"), time.Second)
	require.NoError(t, err)
	_, err = c.Insert(ctx, "b", []byte("v"), 0)
	require.NoError(t, err)

	now = now.Add(time.Minute)
	n, err := c.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var count int64
	require.NoError(t, c.db.Model(&Entry{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestDBClient_SweeperLoop(t *testing.T) {
	c := newSQLiteClient(t, 10*time.Millisecond)
	ctx := context.Background()

	_, err := c.Insert(ctx, "a", []byte("v"), time.Millisecond)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		var count int64
		if err := c.db.Model(&Entry{}).Count(&count).Error; err != nil {
			return false
		}
		return count == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestRowVersion(t *testing.T) {
	for i := 0; i < 1000; i++ {
		v := rowVersion(7)
		assert.NotZero(t, v)
		assert.NotEqual(t, Version(7), v)
		assert.LessOrEqual(t, uint64(v), uint64(math.MaxInt64))
	}
}
