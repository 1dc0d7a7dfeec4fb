package session

import "errors"

var (
	// ErrNotFound is returned when the header or the data record is absent
	ErrNotFound = errors.New("session: not found")
	// ErrCorruptHeader is returned when a header record cannot be decoded
	ErrCorruptHeader = errors.New("session: corrupt header")
	// ErrCorruptPayload is returned when the item payload cannot be decoded
	ErrCorruptPayload = errors.New("session: corrupt payload")

	// errOwnershipMismatch stops a retry loop when the caller no longer owns the lock
	errOwnershipMismatch = errors.New("session: lock owned by another request")
)
