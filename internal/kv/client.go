package kv

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Version is the compare-and-swap token of a stored value. It is never zero
// and changes on every successful write.
type Version uint64

// Item is a stored value together with its current version
type Item struct {
	Value   []byte
	Version Version
}

var (
	// ErrKeyNotFound is returned when the key does not exist or has expired
	ErrKeyNotFound = errors.New("kv: key not found")
	// ErrKeyExists is returned by Insert when the key is already present
	ErrKeyExists = errors.New("kv: key exists")
	// ErrVersionMismatch is returned by CompareAndSwap when the stored version differs
	ErrVersionMismatch = errors.New("kv: version mismatch")
)

// Client is the key-value store used by the session engine and output cache.
// A ttl of zero means the entry never expires.
type Client interface {
	Get(ctx context.Context, key string) (*Item, error)
	// Insert writes value only if key is absent
	Insert(ctx context.Context, key string, value []byte, ttl time.Duration) (Version, error)
	// Upsert writes value unconditionally
	Upsert(ctx context.Context, key string, value []byte, ttl time.Duration) (Version, error)
	// CompareAndSwap writes value only if the stored version equals expected
	CompareAndSwap(ctx context.Context, key string, value []byte, ttl time.Duration, expected Version) (Version, error)
	Remove(ctx context.Context, key string) error
	// Touch refreshes the expiry of key without changing value or version
	Touch(ctx context.Context, key string, ttl time.Duration) error
	Close() error
}

// randomVersion derives a non-zero version from a random UUID, skipping avoid
func randomVersion(avoid Version) Version {
	for {
		id := uuid.New()
		v := Version(binary.BigEndian.Uint64(id[:8]) ^ binary.BigEndian.Uint64(id[8:]))
		if v != 0 && v != avoid {
			return v
		}
	}
}
