package provider

import (
	"context"
	"errors"
	"time"

	"github.com/amoylab/sessionkv/internal/common/config"
	"github.com/amoylab/sessionkv/internal/kv"
	"github.com/amoylab/sessionkv/internal/session"
	"github.com/amoylab/sessionkv/pkg/metrics"

	"go.uber.org/zap"
)

// maxLockAge bounds reported lock ages; anything beyond is treated as bogus
const maxLockAge = 365 * 24 * time.Hour

// StoreData is the session state handed to and from the framework
type StoreData struct {
	Items *session.Items
	// Timeout in minutes
	Timeout int
}

// ItemResult is what GetItem and GetItemExclusive report. Data is nil when
// the session does not exist or is held by another request.
type ItemResult struct {
	Data    *StoreData
	Locked  bool
	LockAge time.Duration
	LockID  session.LockID
	Actions session.Actions
}

// ExpireCallback would be called when a session expires
type ExpireCallback func(id string, data *StoreData)

// Provider maps framework session calls onto a session.Engine. Store
// failures are logged and swallowed unless ThrowOnError is set, in which
// case they are returned as *Error. Corrupt records are always returned.
type Provider struct {
	engine       *session.Engine
	logger       *zap.Logger
	throwOnError bool
}

// New creates a provider over engine
func New(engine *session.Engine, throwOnError bool, logger *zap.Logger) *Provider {
	return &Provider{
		engine:       engine,
		logger:       logger.Named("provider"),
		throwOnError: throwOnError,
	}
}

// NewFromConfig builds the engine and provider from the session configuration.
// client stays owned by the caller.
func NewFromConfig(logger *zap.Logger, client kv.Client, cfg *config.SessionConfig, m *metrics.Metrics) (*Provider, error) {
	opts, err := session.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return New(session.NewEngine(client, opts, logger, m), cfg.ThrowOnError, logger), nil
}

// Engine returns the underlying engine
func (p *Provider) Engine() *session.Engine {
	return p.engine
}

// handle applies the error policy to err
func (p *Provider) handle(op, id string, err error) error {
	if err == nil {
		return nil
	}
	wrapped := &Error{Op: op, ID: id, Err: err}
	if errors.Is(err, session.ErrCorruptPayload) || errors.Is(err, session.ErrCorruptHeader) {
		p.logger.Error("session record is corrupt", zap.String("op", op), zap.String("id", id), zap.Error(err))
		return wrapped
	}
	p.logger.Error("could not retrieve, remove or write session",
		zap.String("op", op),
		zap.String("id", id),
		zap.Error(err))
	if p.throwOnError {
		return wrapped
	}
	return nil
}

func clampLockAge(age time.Duration) time.Duration {
	if age < 0 || age > maxLockAge {
		return 0
	}
	return age
}

func toItemResult(res *session.LockResult) *ItemResult {
	out := &ItemResult{
		Locked:  res.Locked,
		LockAge: clampLockAge(res.LockAge),
		LockID:  res.LockID,
		Actions: res.Actions,
	}
	if res.Record != nil {
		out.Data = &StoreData{Items: res.Record.Items, Timeout: res.Record.Timeout}
	}
	return out
}

// CreateNewStoreData returns empty session state with the given timeout
func (p *Provider) CreateNewStoreData(timeout int) *StoreData {
	return &StoreData{Items: session.NewItems(), Timeout: timeout}
}

// CreateUninitializedItem stores a placeholder flagged for initialization
func (p *Provider) CreateUninitializedItem(ctx context.Context, id string, timeout int) error {
	p.logger.Debug("CreateUninitializedItem", zap.String("id", id), zap.Int("timeout", timeout))
	return p.handle("create", id, p.engine.CreateUninitialized(ctx, id, timeout))
}

// GetItem reads a session without locking it
func (p *Provider) GetItem(ctx context.Context, id string) (*ItemResult, error) {
	p.logger.Debug("GetItem", zap.String("id", id))
	res, err := p.engine.Get(ctx, id)
	if err != nil {
		return &ItemResult{}, p.handle("get", id, err)
	}
	return toItemResult(res), nil
}

// GetItemExclusive reads a session and tries to lock it
func (p *Provider) GetItemExclusive(ctx context.Context, id string) (*ItemResult, error) {
	p.logger.Debug("GetItemExclusive", zap.String("id", id))
	res, err := p.engine.GetExclusive(ctx, id)
	if err != nil {
		return &ItemResult{}, p.handle("get exclusive", id, err)
	}
	return toItemResult(res), nil
}

// SetAndReleaseItemExclusive saves data and releases the lock held under lockID
func (p *Provider) SetAndReleaseItemExclusive(ctx context.Context, id string, data *StoreData, lockID session.LockID, newItem bool) error {
	p.logger.Debug("SetAndReleaseItemExclusive",
		zap.String("id", id),
		zap.Uint64("lock_id", uint64(lockID)),
		zap.Bool("new_item", newItem))
	if data == nil {
		data = p.CreateNewStoreData(0)
	}
	return p.handle("write", id, p.engine.SetAndRelease(ctx, id, data.Items, data.Timeout, lockID, newItem))
}

// ReleaseItemExclusive releases the lock held under lockID
func (p *Provider) ReleaseItemExclusive(ctx context.Context, id string, lockID session.LockID) error {
	p.logger.Debug("ReleaseItemExclusive", zap.String("id", id), zap.Uint64("lock_id", uint64(lockID)))
	return p.handle("release", id, p.engine.Release(ctx, id, lockID))
}

// RemoveItem deletes a session owned by lockID
func (p *Provider) RemoveItem(ctx context.Context, id string, lockID session.LockID) error {
	p.logger.Debug("RemoveItem", zap.String("id", id), zap.Uint64("lock_id", uint64(lockID)))
	return p.handle("remove", id, p.engine.Remove(ctx, id, lockID))
}

// ResetItemTimeout refreshes the expiry of a session
func (p *Provider) ResetItemTimeout(ctx context.Context, id string) error {
	p.logger.Debug("ResetItemTimeout", zap.String("id", id))
	return p.handle("reset timeout", id, p.engine.ResetTimeout(ctx, id))
}

// SetItemExpireCallback reports false: expiry is left to the store TTL
func (p *Provider) SetItemExpireCallback(ExpireCallback) bool {
	return false
}

// InitializeRequest is called at the start of every request; there is no per-request state
func (p *Provider) InitializeRequest(context.Context) {}

// EndRequest is called at the end of every request; there is nothing to clean up
func (p *Provider) EndRequest(context.Context) {}

// Close is a no-op; the store client belongs to whoever created it
func (p *Provider) Close() error {
	return nil
}
