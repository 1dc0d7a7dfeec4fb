package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/amoylab/sessionkv/internal/kv"
)

// Outcome is the terminal state of a bounded CAS loop
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	// OutcomeExhausted means every attempt lost a version race
	OutcomeExhausted
	// OutcomeNotFound means the record vanished
	OutcomeNotFound
	// OutcomeAborted means the caller no longer owns the lock
	OutcomeAborted
	// OutcomeFailed means the store returned an error or ctx was cancelled
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeAborted:
		return "aborted"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// runBounded calls attempt until it succeeds, hits a terminal status or has
// been called maxAttempts times. attempt reports a lost race with
// kv.ErrVersionMismatch. The number of attempts made is returned alongside.
func runBounded(ctx context.Context, maxAttempts int, attempt func(ctx context.Context, n int) error) (Outcome, int, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	for n := 1; n <= maxAttempts; n++ {
		if err := ctx.Err(); err != nil {
			return OutcomeFailed, n - 1, err
		}
		err := attempt(ctx, n)
		switch {
		case err == nil:
			return OutcomeSuccess, n, nil
		case errors.Is(err, kv.ErrVersionMismatch):
			continue
		case errors.Is(err, ErrNotFound), errors.Is(err, kv.ErrKeyNotFound):
			return OutcomeNotFound, n, nil
		case errors.Is(err, errOwnershipMismatch):
			return OutcomeAborted, n, nil
		default:
			return OutcomeFailed, n, err
		}
	}
	return OutcomeExhausted, maxAttempts, nil
}
