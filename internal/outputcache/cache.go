package outputcache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/amoylab/sessionkv/internal/common/cnst"
	"github.com/amoylab/sessionkv/internal/common/config"
	"github.com/amoylab/sessionkv/internal/kv"
	"github.com/amoylab/sessionkv/pkg/metrics"
	"github.com/amoylab/sessionkv/pkg/trace"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrEmptyKey is returned for blank keys when ThrowOnError is set
var ErrEmptyKey = errors.New("outputcache: key must not be empty")

// Error is returned for store failures when ThrowOnError is set
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("could not %s cache key %q: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Cache is a pass-through output cache over a kv.Client. Returned entries
// may be shared between concurrent callers and must not be modified.
type Cache struct {
	client       kv.Client
	prefix       string
	throwOnError bool
	logger       *zap.Logger
	metrics      *metrics.Metrics
	tracer       *trace.Builder
	group        singleflight.Group
	now          func() time.Time
}

// New creates an output cache; m may be nil
func New(client kv.Client, cfg config.OutputCacheConfig, logger *zap.Logger, m *metrics.Metrics) *Cache {
	return &Cache{
		client:       client,
		prefix:       cfg.Prefix,
		throwOnError: cfg.ThrowOnError,
		logger:       logger.Named("outputcache"),
		metrics:      m,
		tracer:       trace.Tracer(cnst.TraceOutputCache),
		now:          time.Now,
	}
}

// checkKey reports whether the operation should go ahead
func (c *Cache) checkKey(key string) (bool, error) {
	if strings.TrimSpace(key) != "" {
		return true, nil
	}
	if c.throwOnError {
		return false, ErrEmptyKey
	}
	c.logger.Warn(ErrEmptyKey.Error())
	return false, nil
}

func (c *Cache) handle(op, key string, err error) error {
	c.metrics.CacheError(op)
	c.logger.Error("could not retrieve, remove or write cache key",
		zap.String("op", op),
		zap.String("key", key),
		zap.Error(err))
	if c.throwOnError {
		return &Error{Op: op, Key: key, Err: err}
	}
	return nil
}

// ttl converts an absolute expiry; the zero time means no expiry
func (c *Cache) ttl(utcExpiry time.Time) (time.Duration, bool) {
	if utcExpiry.IsZero() {
		return 0, true
	}
	d := utcExpiry.Sub(c.now())
	return d, d > 0
}

// Get returns the cached entry for key, nil on a miss. Concurrent lookups
// of the same key share one store round-trip.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	if ok, err := c.checkKey(key); !ok {
		return nil, err
	}
	scope := c.tracer.Start(ctx, cnst.SpanOutputCacheGet).WithAttrs(attribute.String("cache.key", key))
	defer scope.End()

	v, err, _ := c.group.Do(key, func() (any, error) {
		item, err := c.client.Get(scope.Ctx, c.prefix+key)
		if err != nil {
			return nil, err
		}
		return item.Value, nil
	})
	if err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			c.metrics.CacheMiss()
			scope.WithAttrs(attribute.Bool("cache.hit", false))
			return nil, nil
		}
		scope.Fail(err)
		return nil, c.handle("get", key, err)
	}
	c.metrics.CacheHit()
	scope.WithAttrs(attribute.Bool("cache.hit", true))
	return v.([]byte), nil
}

// Add stores entry unless key already holds a value, and returns whichever
// entry is cached afterwards
func (c *Cache) Add(ctx context.Context, key string, entry []byte, utcExpiry time.Time) ([]byte, error) {
	if ok, err := c.checkKey(key); !ok {
		return nil, err
	}
	existing, err := c.Get(ctx, key)
	if err != nil || existing != nil {
		return existing, err
	}

	ttl, live := c.ttl(utcExpiry)
	if !live {
		return entry, nil
	}
	scope := c.tracer.Start(ctx, cnst.SpanOutputCacheSet).WithAttrs(attribute.String("cache.key", key))
	defer scope.End()

	_, err = c.client.Insert(scope.Ctx, c.prefix+key, entry, ttl)
	switch {
	case err == nil:
		return entry, nil
	case errors.Is(err, kv.ErrKeyExists):
		// lost a race with another writer; report its entry
		item, gerr := c.client.Get(scope.Ctx, c.prefix+key)
		if gerr == nil {
			return item.Value, nil
		}
		err = gerr
	}
	scope.Fail(err)
	return nil, c.handle("add", key, err)
}

// Set stores entry unconditionally. An expiry in the past drops the key.
func (c *Cache) Set(ctx context.Context, key string, entry []byte, utcExpiry time.Time) error {
	if ok, err := c.checkKey(key); !ok {
		return err
	}
	ttl, live := c.ttl(utcExpiry)
	if !live {
		return c.Remove(ctx, key)
	}
	scope := c.tracer.Start(ctx, cnst.SpanOutputCacheSet).WithAttrs(attribute.String("cache.key", key))
	defer scope.End()

	if _, err := c.client.Upsert(scope.Ctx, c.prefix+key, entry, ttl); err != nil {
		scope.Fail(err)
		return c.handle("set", key, err)
	}
	return nil
}

// Remove deletes key; a missing key is not an error
func (c *Cache) Remove(ctx context.Context, key string) error {
	if ok, err := c.checkKey(key); !ok {
		return err
	}
	if err := c.client.Remove(ctx, c.prefix+key); err != nil && !errors.Is(err, kv.ErrKeyNotFound) {
		return c.handle("remove", key, err)
	}
	return nil
}
