package session

import (
	"time"

	"github.com/amoylab/sessionkv/internal/kv"
)

// Record is the stored state of one session
type Record struct {
	ID       string
	Items    *Items
	Flags    Actions
	LockID   LockID
	LockTime time.Time
	// Timeout in minutes, applied as the expiry of both stored keys
	Timeout int

	HeaderVersion kv.Version
	DataVersion   kv.Version
}

// Locked reports whether the record is held exclusively
func (r *Record) Locked() bool {
	return r.LockID != 0
}

// LockAge returns how long the current lock has been held, zero when unlocked
func (r *Record) LockAge(now time.Time) time.Duration {
	if r.LockID == 0 || r.LockTime.IsZero() {
		return 0
	}
	return now.Sub(r.LockTime)
}

func (r *Record) ttl() time.Duration {
	if r.Timeout <= 0 {
		return 0
	}
	return time.Duration(r.Timeout) * time.Minute
}

// LockResult is the outcome of a Get or GetExclusive call
type LockResult struct {
	// Record is nil when the session is missing or held by another request
	Record  *Record
	Locked  bool
	LockID  LockID
	LockAge time.Duration
	Actions Actions
}
