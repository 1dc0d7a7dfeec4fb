package session

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

const headerFormatVersion = 1

// Actions tells the caller what to do with a freshly read session
type Actions int

const (
	ActionNone Actions = iota
	// ActionInitializeItem marks a placeholder that must be initialized as a new session
	ActionInitializeItem
)

func (a Actions) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionInitializeItem:
		return "initialize_item"
	default:
		return fmt.Sprintf("actions(%d)", int(a))
	}
}

// LockID identifies the request holding a session exclusively. Zero means unlocked.
type LockID uint64

// header is the wire form of the header record. LockTime is unix milliseconds.
type header struct {
	V        int     `json:"v"`
	Flags    Actions `json:"flags"`
	Timeout  int     `json:"timeout"`
	LockID   LockID  `json:"lock_id,omitempty"`
	LockTime int64   `json:"lock_time,omitempty"`
}

func encodeHeader(r *Record) ([]byte, error) {
	h := header{
		V:       headerFormatVersion,
		Flags:   r.Flags,
		Timeout: r.Timeout,
		LockID:  r.LockID,
	}
	if !r.LockTime.IsZero() {
		h.LockTime = r.LockTime.UnixMilli()
	}
	return json.Marshal(h)
}

// decodeHeader fills the header fields of r from data
func decodeHeader(data []byte, r *Record) error {
	var h header
	if err := json.Unmarshal(data, &h); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptHeader, err)
	}
	if h.V != headerFormatVersion {
		return fmt.Errorf("%w: unsupported format version %d", ErrCorruptHeader, h.V)
	}
	r.Flags = h.Flags
	r.Timeout = h.Timeout
	r.LockID = h.LockID
	r.LockTime = time.Time{}
	if h.LockTime != 0 {
		r.LockTime = time.UnixMilli(h.LockTime)
	}
	return nil
}
