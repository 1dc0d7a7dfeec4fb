package provider

import (
	"context"
	"testing"
	"time"

	"github.com/amoylab/sessionkv/internal/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsyncProvider_Scenario(t *testing.T) {
	ctx := context.Background()
	a := NewAsync(newTestProvider(t, kv.NewMemoryClient(), false))

	data := a.CreateNewStoreData(20)
	require.NoError(t, data.Items.Set("n", 1))
	require.NoError(t, a.SetAndReleaseItemExclusive(ctx, "s1", data, 0, true).Wait(ctx))

	first, err := a.GetItemExclusive(ctx, "s1").Wait(ctx)
	require.NoError(t, err)
	assert.False(t, first.Locked)

	second, err := a.GetItemExclusive(ctx, "s1").Wait(ctx)
	require.NoError(t, err)
	assert.True(t, second.Locked)
	assert.Equal(t, first.LockID, second.LockID)

	require.NoError(t, a.SetAndReleaseItemExclusive(ctx, "s1", first.Data, first.LockID, false).Wait(ctx))
	got, err := a.GetItem(ctx, "s1").Wait(ctx)
	require.NoError(t, err)
	assert.Zero(t, got.LockID)
	require.NotNil(t, got.Data)

	require.NoError(t, a.ResetItemTimeout(ctx, "s1").Wait(ctx))
	require.NoError(t, a.ReleaseItemExclusive(ctx, "s1", 42).Wait(ctx))
	require.NoError(t, a.CreateUninitializedItem(ctx, "s2", 5).Wait(ctx))
	require.NoError(t, a.RemoveItem(ctx, "s2", 0).Wait(ctx))
	assert.False(t, a.SetItemExpireCallback(nil))
	assert.NoError(t, a.Close())
}

func TestFutures_WaitHonoursContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	var never ItemFuture = make(chan ItemOutcome)
	_, err := never.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var neverErr ErrFuture = make(chan error)
	assert.ErrorIs(t, neverErr.Wait(ctx), context.DeadlineExceeded)
}
