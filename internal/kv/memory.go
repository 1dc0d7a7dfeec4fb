package kv

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	value     []byte
	version   Version
	expiresAt time.Time
}

func (e *memEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryClient implements Client with an in-process map. Expired entries are
// dropped lazily on access.
type MemoryClient struct {
	mu      sync.Mutex
	entries map[string]*memEntry
	version Version
	now     func() time.Time
}

var _ Client = (*MemoryClient)(nil)

// NewMemoryClient creates a new in-memory client
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		entries: make(map[string]*memEntry),
		now:     time.Now,
	}
}

// lookup must be called with mu held
func (c *MemoryClient) lookup(key string) (*memEntry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if e.expired(c.now()) {
		delete(c.entries, key)
		return nil, false
	}
	return e, true
}

// store must be called with mu held
func (c *MemoryClient) store(key string, value []byte, ttl time.Duration) Version {
	c.version++
	e := &memEntry{
		value:   append([]byte(nil), value...),
		version: c.version,
	}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.entries[key] = e
	return e.version
}

func (c *MemoryClient) Get(ctx context.Context, key string) (*Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lookup(key)
	if !ok {
		return nil, ErrKeyNotFound
	}
	return &Item{Value: append([]byte(nil), e.value...), Version: e.version}, nil
}

func (c *MemoryClient) Insert(ctx context.Context, key string, value []byte, ttl time.Duration) (Version, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.lookup(key); ok {
		return 0, ErrKeyExists
	}
	return c.store(key, value, ttl), nil
}

func (c *MemoryClient) Upsert(ctx context.Context, key string, value []byte, ttl time.Duration) (Version, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.store(key, value, ttl), nil
}

func (c *MemoryClient) CompareAndSwap(ctx context.Context, key string, value []byte, ttl time.Duration, expected Version) (Version, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lookup(key)
	if !ok {
		return 0, ErrKeyNotFound
	}
	if e.version != expected {
		return 0, ErrVersionMismatch
	}
	return c.store(key, value, ttl), nil
}

func (c *MemoryClient) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.lookup(key); !ok {
		return ErrKeyNotFound
	}
	delete(c.entries, key)
	return nil
}

func (c *MemoryClient) Touch(ctx context.Context, key string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lookup(key)
	if !ok {
		return ErrKeyNotFound
	}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	} else {
		e.expiresAt = time.Time{}
	}
	return nil
}

// Len reports the number of live entries
func (c *MemoryClient) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	now := c.now()
	for _, e := range c.entries {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

func (c *MemoryClient) Close() error {
	return nil
}
