package session

import (
	"context"
	"errors"
	"testing"

	"github.com/amoylab/sessionkv/internal/kv"
	"github.com/stretchr/testify/assert"
)

func TestRunBounded(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name         string
		maxAttempts  int
		results      []error
		wantOutcome  Outcome
		wantAttempts int
		wantErr      error
	}{
		{name: "first try", maxAttempts: 5, results: []error{nil}, wantOutcome: OutcomeSuccess, wantAttempts: 1},
		{name: "after conflicts", maxAttempts: 5, results: []error{kv.ErrVersionMismatch, kv.ErrVersionMismatch, nil}, wantOutcome: OutcomeSuccess, wantAttempts: 3},
		{name: "exhausted", maxAttempts: 3, results: []error{kv.ErrVersionMismatch}, wantOutcome: OutcomeExhausted, wantAttempts: 3},
		{name: "zero treated as one", maxAttempts: 0, results: []error{kv.ErrVersionMismatch}, wantOutcome: OutcomeExhausted, wantAttempts: 1},
		{name: "not found from store", maxAttempts: 5, results: []error{kv.ErrVersionMismatch, kv.ErrKeyNotFound}, wantOutcome: OutcomeNotFound, wantAttempts: 2},
		{name: "not found from load", maxAttempts: 5, results: []error{ErrNotFound}, wantOutcome: OutcomeNotFound, wantAttempts: 1},
		{name: "ownership", maxAttempts: 5, results: []error{errOwnershipMismatch}, wantOutcome: OutcomeAborted, wantAttempts: 1},
		{name: "store failure", maxAttempts: 5, results: []error{boom}, wantOutcome: OutcomeFailed, wantAttempts: 1, wantErr: boom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			outcome, attempts, err := runBounded(context.Background(), tt.maxAttempts, func(_ context.Context, n int) error {
				calls++
				assert.Equal(t, calls, n)
				if calls <= len(tt.results) {
					return tt.results[calls-1]
				}
				return tt.results[len(tt.results)-1]
			})
			assert.Equal(t, tt.wantOutcome, outcome)
			assert.Equal(t, tt.wantAttempts, attempts)
			assert.Equal(t, tt.wantAttempts, calls)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRunBounded_CancelledBeforeNextAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	outcome, attempts, err := runBounded(ctx, 5, func(context.Context, int) error {
		calls++
		cancel()
		return kv.ErrVersionMismatch
	})
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "exhausted", OutcomeExhausted.String())
	assert.Equal(t, "outcome(42)", Outcome(42).String())
}
