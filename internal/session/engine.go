package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amoylab/sessionkv/internal/common/cnst"
	"github.com/amoylab/sessionkv/internal/common/config"
	"github.com/amoylab/sessionkv/internal/kv"
	"github.com/amoylab/sessionkv/pkg/metrics"
	"github.com/amoylab/sessionkv/pkg/trace"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Options controls the key layout and lock protocol of an Engine
type Options struct {
	HeaderPrefix string
	DataPrefix   string
	// ExclusiveAccess enables the lock protocol. When false lock ids are
	// always zero and every write is unconditional.
	ExclusiveAccess bool
	MaxRetryCount   int
	Codec           Codec
}

// DefaultOptions returns the options used when nothing is configured
func DefaultOptions() Options {
	return Options{
		HeaderPrefix:    "info-",
		DataPrefix:      "data-",
		ExclusiveAccess: true,
		MaxRetryCount:   5,
		Codec:           jsonCodec{},
	}
}

// OptionsFromConfig builds Options from the session configuration
func OptionsFromConfig(cfg *config.SessionConfig) (Options, error) {
	codec, err := NewCodec(cfg.Codec)
	if err != nil {
		return Options{}, err
	}
	return Options{
		HeaderPrefix:    cfg.HeaderPrefix,
		DataPrefix:      cfg.DataPrefix,
		ExclusiveAccess: cfg.IsExclusive(),
		MaxRetryCount:   cfg.MaxRetryCount,
		Codec:           codec,
	}, nil
}

// Engine implements the session lock protocol over a kv.Client using a
// header record and a data record per session. It holds no per-session
// state and is safe for concurrent use.
type Engine struct {
	client  kv.Client
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Metrics
	tracer  *trace.Builder
	now     func() time.Time
}

// NewEngine creates an engine; m may be nil
func NewEngine(client kv.Client, opts Options, logger *zap.Logger, m *metrics.Metrics) *Engine {
	if opts.Codec == nil {
		opts.Codec = jsonCodec{}
	}
	return &Engine{
		client:  client,
		opts:    opts,
		logger:  logger.Named("session.engine"),
		metrics: m,
		tracer:  trace.Tracer(cnst.TraceSession),
		now:     time.Now,
	}
}

// Options returns the engine options
func (e *Engine) Options() Options {
	return e.opts
}

func (e *Engine) headerKey(id string) string {
	return e.opts.HeaderPrefix + id
}

func (e *Engine) dataKey(id string) string {
	return e.opts.DataPrefix + id
}

// begin opens a span for op and returns a func recording its outcome
func (e *Engine) begin(ctx context.Context, op, id string) (context.Context, func(outcome string, err error)) {
	start := time.Now()
	scope := e.tracer.Start(ctx, cnst.SpanSessionPrefix+op).
		WithAttrs(attribute.String("session.id", id))
	return scope.Ctx, func(outcome string, err error) {
		if err != nil {
			outcome = metrics.OutcomeError
		}
		scope.WithAttrs(attribute.String("session.outcome", outcome)).Fail(err).End()
		e.metrics.SessionOp(op, outcome, start)
	}
}

// loadHeader reads and decodes the header record of id
func (e *Engine) loadHeader(ctx context.Context, id string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	item, err := e.client.Get(ctx, e.headerKey(id))
	if err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get header %s: %w", id, err)
	}
	rec := &Record{ID: id, HeaderVersion: item.Version}
	if err := decodeHeader(item.Value, rec); err != nil {
		return nil, fmt.Errorf("session %s: %w", id, err)
	}
	return rec, nil
}

// loadData reads the raw payload of rec and records its version
func (e *Engine) loadData(ctx context.Context, rec *Record) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	item, err := e.client.Get(ctx, e.dataKey(rec.ID))
	if err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			// a header without data never yields a half-initialized record
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get data %s: %w", rec.ID, err)
	}
	rec.DataVersion = item.Version
	return item.Value, nil
}

func (e *Engine) decodeInto(rec *Record, payload []byte) error {
	items, err := e.opts.Codec.Decode(payload)
	if err != nil {
		return fmt.Errorf("session %s: %w", rec.ID, err)
	}
	rec.Items = items
	return nil
}

// Load reads the record of id. With metaOnly only the header is read and
// Items is nil. ErrNotFound is returned when either record is missing.
func (e *Engine) Load(ctx context.Context, id string, metaOnly bool) (*Record, error) {
	rec, err := e.loadHeader(ctx, id)
	if err != nil {
		return nil, err
	}
	if metaOnly {
		return rec, nil
	}
	payload, err := e.loadData(ctx, rec)
	if err != nil {
		return nil, err
	}
	if err := e.decodeInto(rec, payload); err != nil {
		return nil, err
	}
	return rec, nil
}

func (e *Engine) writeData(ctx context.Context, rec *Record, payload []byte, conditional bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var (
		v   kv.Version
		err error
	)
	if conditional {
		v, err = e.client.CompareAndSwap(ctx, e.dataKey(rec.ID), payload, rec.ttl(), rec.DataVersion)
	} else {
		v, err = e.client.Upsert(ctx, e.dataKey(rec.ID), payload, rec.ttl())
	}
	if err != nil {
		return err
	}
	rec.DataVersion = v
	return nil
}

func (e *Engine) writeHeader(ctx context.Context, rec *Record, conditional bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := encodeHeader(rec)
	if err != nil {
		return err
	}
	var v kv.Version
	if conditional {
		v, err = e.client.CompareAndSwap(ctx, e.headerKey(rec.ID), raw, rec.ttl(), rec.HeaderVersion)
	} else {
		v, err = e.client.Upsert(ctx, e.headerKey(rec.ID), raw, rec.ttl())
	}
	if err != nil {
		return err
	}
	rec.HeaderVersion = v
	return nil
}

// retry runs attempt through the bounded controller and records conflicts
func (e *Engine) retry(ctx context.Context, op, id string, attempt func(ctx context.Context, n int) error) (Outcome, error) {
	outcome, attempts, err := runBounded(ctx, e.opts.MaxRetryCount, attempt)
	conflicts := attempts - 1
	if outcome == OutcomeExhausted {
		conflicts = attempts
	}
	for i := 0; i < conflicts; i++ {
		e.metrics.CASConflict(op)
	}
	switch outcome {
	case OutcomeExhausted:
		e.metrics.RetryExhausted(op)
		e.logger.Debug("gave up after losing every version race",
			zap.String("op", op),
			zap.String("id", id),
			zap.Int("attempts", attempts))
	case OutcomeAborted:
		e.logger.Debug("lock no longer owned, skipping write",
			zap.String("op", op),
			zap.String("id", id))
	}
	return outcome, err
}

func outcomeLabel(o Outcome) string {
	switch o {
	case OutcomeNotFound:
		return metrics.OutcomeNotFound
	case OutcomeExhausted:
		return metrics.OutcomeExhausted
	case OutcomeAborted:
		return metrics.OutcomeAborted
	case OutcomeFailed:
		return metrics.OutcomeError
	default:
		return metrics.OutcomeOK
	}
}

// SetAndRelease stores items and clears the lock held under lockID. New
// items are written unconditionally. For existing items the write is
// skipped when the record is gone or locked by someone else.
func (e *Engine) SetAndRelease(ctx context.Context, id string, items *Items, timeout int, lockID LockID, newItem bool) (err error) {
	ctx, done := e.begin(ctx, "set_and_release", id)
	outcome := OutcomeSuccess
	defer func() { done(outcomeLabel(outcome), err) }()

	payload, err := e.opts.Codec.Encode(items)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", id, err)
	}

	if newItem {
		rec := &Record{ID: id, Items: items, Timeout: timeout}
		if err := e.writeData(ctx, rec, payload, false); err != nil {
			return fmt.Errorf("write data %s: %w", id, err)
		}
		if err := e.writeHeader(ctx, rec, false); err != nil {
			return fmt.Errorf("write header %s: %w", id, err)
		}
		return nil
	}

	conditional := e.opts.ExclusiveAccess
	outcome, err = e.retry(ctx, "set_and_release", id, func(ctx context.Context, _ int) error {
		rec, err := e.loadHeader(ctx, id)
		if err != nil {
			return err
		}
		if rec.LockID != lockID {
			return errOwnershipMismatch
		}
		if _, err := e.loadData(ctx, rec); err != nil {
			return err
		}
		rec.Timeout = timeout
		if err := e.writeData(ctx, rec, payload, conditional); err != nil {
			return err
		}
		rec.Flags = ActionNone
		rec.LockID = 0
		rec.LockTime = time.Time{}
		return e.writeHeader(ctx, rec, conditional)
	})
	return err
}

// Release clears the lock held under lockID without touching the payload
func (e *Engine) Release(ctx context.Context, id string, lockID LockID) (err error) {
	ctx, done := e.begin(ctx, "release", id)
	var outcome Outcome
	defer func() { done(outcomeLabel(outcome), err) }()

	conditional := e.opts.ExclusiveAccess
	outcome, err = e.retry(ctx, "release", id, func(ctx context.Context, _ int) error {
		rec, err := e.loadHeader(ctx, id)
		if err != nil {
			return err
		}
		if rec.LockID != lockID {
			return errOwnershipMismatch
		}
		rec.LockID = 0
		rec.LockTime = time.Time{}
		return e.writeHeader(ctx, rec, conditional)
	})
	return err
}

// Remove deletes both records when lockID owns the session. The header goes
// first; a failure in between leaves an orphan data record that expires on
// its own.
func (e *Engine) Remove(ctx context.Context, id string, lockID LockID) (err error) {
	ctx, done := e.begin(ctx, "remove", id)
	outcome := metrics.OutcomeOK
	defer func() { done(outcome, err) }()

	rec, err := e.loadHeader(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			outcome = metrics.OutcomeNotFound
			return nil
		}
		return err
	}
	if rec.LockID != lockID {
		outcome = metrics.OutcomeAborted
		return nil
	}
	for _, key := range []string{e.headerKey(id), e.dataKey(id)} {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.client.Remove(ctx, key); err != nil && !errors.Is(err, kv.ErrKeyNotFound) {
			return fmt.Errorf("remove %s: %w", key, err)
		}
	}
	return nil
}

// ResetTimeout refreshes the expiry of both records without changing them
func (e *Engine) ResetTimeout(ctx context.Context, id string) (err error) {
	ctx, done := e.begin(ctx, "reset_timeout", id)
	var outcome Outcome
	defer func() { done(outcomeLabel(outcome), err) }()

	if !e.opts.ExclusiveAccess {
		outcome, err = e.touch(ctx, id)
		return err
	}

	outcome, err = e.retry(ctx, "reset_timeout", id, func(ctx context.Context, _ int) error {
		rec, err := e.loadHeader(ctx, id)
		if err != nil {
			return err
		}
		payload, err := e.loadData(ctx, rec)
		if err != nil {
			return err
		}
		if err := e.writeData(ctx, rec, payload, true); err != nil {
			return err
		}
		return e.writeHeader(ctx, rec, true)
	})
	return err
}

// touch refreshes both keys with the timeout stored in the header
func (e *Engine) touch(ctx context.Context, id string) (Outcome, error) {
	rec, err := e.loadHeader(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return OutcomeNotFound, nil
		}
		return OutcomeFailed, err
	}
	for _, key := range []string{e.dataKey(id), e.headerKey(id)} {
		if err := ctx.Err(); err != nil {
			return OutcomeFailed, err
		}
		if err := e.client.Touch(ctx, key, rec.ttl()); err != nil {
			if errors.Is(err, kv.ErrKeyNotFound) {
				return OutcomeNotFound, nil
			}
			return OutcomeFailed, fmt.Errorf("touch %s: %w", key, err)
		}
	}
	return OutcomeSuccess, nil
}

// CreateUninitialized writes an empty placeholder flagged ActionInitializeItem
func (e *Engine) CreateUninitialized(ctx context.Context, id string, timeout int) (err error) {
	ctx, done := e.begin(ctx, "create_uninitialized", id)
	defer func() { done(metrics.OutcomeOK, err) }()

	payload, err := e.opts.Codec.Encode(NewItems())
	if err != nil {
		return err
	}
	rec := &Record{ID: id, Flags: ActionInitializeItem, Timeout: timeout}
	if err := e.writeData(ctx, rec, payload, false); err != nil {
		return fmt.Errorf("write data %s: %w", id, err)
	}
	if err := e.writeHeader(ctx, rec, false); err != nil {
		return fmt.Errorf("write header %s: %w", id, err)
	}
	return nil
}
