package session

import (
	"context"
	"errors"
	"time"

	"github.com/amoylab/sessionkv/pkg/metrics"
)

// Get reads a session without taking the lock. A session held by another
// request is reported as locked with no record.
func (e *Engine) Get(ctx context.Context, id string) (res *LockResult, err error) {
	ctx, done := e.begin(ctx, "get", id)
	outcome := metrics.OutcomeOK
	defer func() { done(outcome, err) }()

	rec, err := e.loadHeader(ctx, id)
	if errors.Is(err, ErrNotFound) {
		outcome = metrics.OutcomeNotFound
		return &LockResult{}, nil
	}
	if err != nil {
		return nil, err
	}
	if rec.Locked() {
		outcome = metrics.OutcomeLocked
		return e.lockedResult(rec), nil
	}

	payload, err := e.loadData(ctx, rec)
	if errors.Is(err, ErrNotFound) {
		outcome = metrics.OutcomeNotFound
		return &LockResult{}, nil
	}
	if err != nil {
		return nil, err
	}
	if err := e.decodeInto(rec, payload); err != nil {
		return nil, err
	}
	return &LockResult{Record: rec, Actions: rec.Flags}, nil
}

// GetExclusive reads a session and takes its lock. The lock id is the header
// version observed before the winning write, so it is unique per acquisition.
//
// A missing session yields Locked=false with ActionInitializeItem. A session
// held elsewhere yields Locked=true with the holder's id and lock age. A
// successful acquisition yields the record with Locked=false and the new
// LockID. If every attempt loses a version race the session is reported as
// locked.
func (e *Engine) GetExclusive(ctx context.Context, id string) (res *LockResult, err error) {
	ctx, done := e.begin(ctx, "get_exclusive", id)
	outcome := metrics.OutcomeOK
	defer func() { done(outcome, err) }()

	// lock state as stored at the last load, before this call's own write
	var (
		observed     bool
		lastLockID   LockID
		lastLockTime time.Time
	)
	conditional := e.opts.ExclusiveAccess
	result, err := e.retry(ctx, "get_exclusive", id, func(ctx context.Context, _ int) error {
		rec, err := e.Load(ctx, id, false)
		if err != nil {
			return err
		}
		observed, lastLockID, lastLockTime = true, rec.LockID, rec.LockTime
		if rec.Locked() {
			res = e.lockedResult(rec)
			return nil
		}

		actions := rec.Flags
		if e.opts.ExclusiveAccess {
			rec.LockID = LockID(rec.HeaderVersion)
		}
		rec.LockTime = e.now()
		rec.Flags = ActionNone
		if err := e.writeHeader(ctx, rec, conditional); err != nil {
			return err
		}
		res = &LockResult{Record: rec, LockID: rec.LockID, Actions: actions}
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch result {
	case OutcomeNotFound:
		outcome = metrics.OutcomeNotFound
		return &LockResult{Actions: ActionInitializeItem}, nil
	case OutcomeExhausted:
		outcome = metrics.OutcomeExhausted
		e.metrics.LockContended()
		res = &LockResult{Locked: true}
		if observed {
			held := &Record{LockID: lastLockID, LockTime: lastLockTime}
			res.LockID = held.LockID
			res.LockAge = held.LockAge(e.now())
		}
		return res, nil
	}
	if res.Locked {
		outcome = metrics.OutcomeLocked
		e.metrics.LockContended()
	}
	return res, nil
}

func (e *Engine) lockedResult(rec *Record) *LockResult {
	return &LockResult{
		Locked:  true,
		LockID:  rec.LockID,
		LockAge: rec.LockAge(e.now()),
		Actions: rec.Flags,
	}
}

// LockAge returns the age of the lock on id, zero when unlocked or missing
func (e *Engine) LockAge(ctx context.Context, id string) (time.Duration, error) {
	rec, err := e.loadHeader(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return rec.LockAge(e.now()), nil
}
