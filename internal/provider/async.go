package provider

import (
	"context"

	"github.com/amoylab/sessionkv/internal/session"
)

// ItemOutcome carries the result of an asynchronous read
type ItemOutcome struct {
	Result *ItemResult
	Err    error
}

// ItemFuture delivers exactly one ItemOutcome
type ItemFuture <-chan ItemOutcome

// Wait blocks until the outcome arrives or ctx is done
func (f ItemFuture) Wait(ctx context.Context) (*ItemResult, error) {
	select {
	case o := <-f:
		return o.Result, o.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ErrFuture delivers exactly one error value, nil on success
type ErrFuture <-chan error

// Wait blocks until the result arrives or ctx is done
func (f ErrFuture) Wait(ctx context.Context) error {
	select {
	case err := <-f:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AsyncProvider runs every Provider operation on its own goroutine. Ordering,
// retry and error semantics are those of the wrapped Provider.
type AsyncProvider struct {
	p *Provider
}

func NewAsync(p *Provider) *AsyncProvider {
	return &AsyncProvider{p: p}
}

func (a *AsyncProvider) goItem(fn func() (*ItemResult, error)) ItemFuture {
	ch := make(chan ItemOutcome, 1)
	go func() {
		defer close(ch)
		res, err := fn()
		ch <- ItemOutcome{Result: res, Err: err}
	}()
	return ch
}

func (a *AsyncProvider) goErr(fn func() error) ErrFuture {
	ch := make(chan error, 1)
	go func() {
		defer close(ch)
		ch <- fn()
	}()
	return ch
}

func (a *AsyncProvider) CreateNewStoreData(timeout int) *StoreData {
	return a.p.CreateNewStoreData(timeout)
}

func (a *AsyncProvider) CreateUninitializedItem(ctx context.Context, id string, timeout int) ErrFuture {
	return a.goErr(func() error { return a.p.CreateUninitializedItem(ctx, id, timeout) })
}

func (a *AsyncProvider) GetItem(ctx context.Context, id string) ItemFuture {
	return a.goItem(func() (*ItemResult, error) { return a.p.GetItem(ctx, id) })
}

func (a *AsyncProvider) GetItemExclusive(ctx context.Context, id string) ItemFuture {
	return a.goItem(func() (*ItemResult, error) { return a.p.GetItemExclusive(ctx, id) })
}

func (a *AsyncProvider) SetAndReleaseItemExclusive(ctx context.Context, id string, data *StoreData, lockID session.LockID, newItem bool) ErrFuture {
	return a.goErr(func() error { return a.p.SetAndReleaseItemExclusive(ctx, id, data, lockID, newItem) })
}

func (a *AsyncProvider) ReleaseItemExclusive(ctx context.Context, id string, lockID session.LockID) ErrFuture {
	return a.goErr(func() error { return a.p.ReleaseItemExclusive(ctx, id, lockID) })
}

func (a *AsyncProvider) RemoveItem(ctx context.Context, id string, lockID session.LockID) ErrFuture {
	return a.goErr(func() error { return a.p.RemoveItem(ctx, id, lockID) })
}

func (a *AsyncProvider) ResetItemTimeout(ctx context.Context, id string) ErrFuture {
	return a.goErr(func() error { return a.p.ResetItemTimeout(ctx, id) })
}

func (a *AsyncProvider) SetItemExpireCallback(fn ExpireCallback) bool {
	return a.p.SetItemExpireCallback(fn)
}

func (a *AsyncProvider) Close() error {
	return a.p.Close()
}
