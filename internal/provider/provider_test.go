package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/amoylab/sessionkv/internal/common/cnst"
	"github.com/amoylab/sessionkv/internal/common/config"
	"github.com/amoylab/sessionkv/internal/kv"
	"github.com/amoylab/sessionkv/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errDown = errors.New("store down")

// brokenClient fails every call with errDown
type brokenClient struct{}

func (brokenClient) Get(context.Context, string) (*kv.Item, error) { return nil, errDown }
func (brokenClient) Insert(context.Context, string, []byte, time.Duration) (kv.Version, error) {
	return 0, errDown
}
func (brokenClient) Upsert(context.Context, string, []byte, time.Duration) (kv.Version, error) {
	return 0, errDown
}
func (brokenClient) CompareAndSwap(context.Context, string, []byte, time.Duration, kv.Version) (kv.Version, error) {
	return 0, errDown
}
func (brokenClient) Remove(context.Context, string) error              { return errDown }
func (brokenClient) Touch(context.Context, string, time.Duration) error { return errDown }
func (brokenClient) Close() error                                      { return nil }

func newTestProvider(t *testing.T, client kv.Client, throw bool) *Provider {
	t.Helper()
	cfg := &config.SessionConfig{ThrowOnError: throw}
	cfg.SetDefaults()
	p, err := NewFromConfig(zap.NewNop(), client, cfg, nil)
	require.NoError(t, err)
	return p
}

func newRedisBackedProvider(t *testing.T) *Provider {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := kv.NewRedisClient(zap.NewNop(), config.RedisConfig{
		ClusterType: cnst.RedisClusterTypeSingle,
		Addr:        mr.Addr(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return newTestProvider(t, kv.WithNamespace(client, "app"), false)
}

func TestProvider_Scenario(t *testing.T) {
	ctx := context.Background()
	p := newRedisBackedProvider(t)

	data := p.CreateNewStoreData(20)
	require.NoError(t, data.Items.Set("greeting", "hello"))
	require.NoError(t, p.SetAndReleaseItemExclusive(ctx, "s1", data, 0, true))

	first, err := p.GetItemExclusive(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, first.Locked)
	require.NotNil(t, first.Data)
	assert.Equal(t, 20, first.Data.Timeout)
	l1 := first.LockID
	assert.NotZero(t, l1)

	second, err := p.GetItemExclusive(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, second.Locked)
	assert.Equal(t, l1, second.LockID)
	assert.Nil(t, second.Data)

	blocked, err := p.GetItem(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, blocked.Locked)

	require.NoError(t, first.Data.Items.Set("greeting", "bye"))
	require.NoError(t, p.SetAndReleaseItemExclusive(ctx, "s1", first.Data, l1, false))

	got, err := p.GetItem(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, got.Locked)
	assert.Zero(t, got.LockID)
	require.NotNil(t, got.Data)
	var greeting string
	_, err = got.Data.Items.Get("greeting", &greeting)
	require.NoError(t, err)
	assert.Equal(t, "bye", greeting)
}

func TestProvider_Lifecycle(t *testing.T) {
	ctx := context.Background()
	p := newRedisBackedProvider(t)

	require.NoError(t, p.CreateUninitializedItem(ctx, "new", 10))
	res, err := p.GetItemExclusive(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, session.ActionInitializeItem, res.Actions)

	require.NoError(t, p.ResetItemTimeout(ctx, "new"))
	require.NoError(t, p.ReleaseItemExclusive(ctx, "new", res.LockID+1))
	require.NoError(t, p.ReleaseItemExclusive(ctx, "new", res.LockID))

	res, err = p.GetItemExclusive(ctx, "new")
	require.NoError(t, err)
	require.NoError(t, p.RemoveItem(ctx, "new", res.LockID))

	res, err = p.GetItem(ctx, "new")
	require.NoError(t, err)
	assert.Nil(t, res.Data)
	assert.False(t, res.Locked)
}

func TestProvider_ErrorPolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("swallow", func(t *testing.T) {
		p := newTestProvider(t, brokenClient{}, false)
		res, err := p.GetItemExclusive(ctx, "x")
		assert.NoError(t, err)
		assert.Nil(t, res.Data)
		assert.NoError(t, p.ReleaseItemExclusive(ctx, "x", 1))
		assert.NoError(t, p.CreateUninitializedItem(ctx, "x", 1))
	})

	t.Run("throw", func(t *testing.T) {
		p := newTestProvider(t, brokenClient{}, true)
		_, err := p.GetItem(ctx, "x")
		var perr *Error
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, "get", perr.Op)
		assert.Equal(t, "x", perr.ID)
		assert.ErrorIs(t, err, errDown)

		assert.ErrorIs(t, p.ResetItemTimeout(ctx, "x"), errDown)
		assert.ErrorIs(t, p.RemoveItem(ctx, "x", 0), errDown)
		assert.ErrorIs(t, p.SetAndReleaseItemExclusive(ctx, "x", nil, 0, true), errDown)
	})

	t.Run("corrupt always returned", func(t *testing.T) {
		client := kv.NewMemoryClient()
		p := newTestProvider(t, client, false)
		require.NoError(t, p.CreateUninitializedItem(ctx, "c", 1))
		_, err := client.Upsert(ctx, "data-c", []byte("garbage"), 0)
		require.NoError(t, err)

		_, err = p.GetItem(ctx, "c")
		assert.ErrorIs(t, err, session.ErrCorruptPayload)
	})
}

func TestProvider_Misc(t *testing.T) {
	p := newTestProvider(t, kv.NewMemoryClient(), false)
	assert.False(t, p.SetItemExpireCallback(func(string, *StoreData) {}))
	assert.NotPanics(t, func() {
		p.InitializeRequest(context.Background())
		p.EndRequest(context.Background())
	})
	assert.NoError(t, p.Close())
	assert.NotNil(t, p.Engine())
}

func TestClampLockAge(t *testing.T) {
	assert.Equal(t, time.Duration(0), clampLockAge(-time.Second))
	assert.Equal(t, time.Duration(0), clampLockAge(2*maxLockAge))
	assert.Equal(t, time.Minute, clampLockAge(time.Minute))
}

func TestError(t *testing.T) {
	err := &Error{Op: "write", ID: "abc", Err: errDown}
	assert.Equal(t, `could not write session "abc": store down`, err.Error())
	assert.ErrorIs(t, err, errDown)
}
