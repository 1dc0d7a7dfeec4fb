package kv

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/amoylab/sessionkv/internal/common/cnst"
	"github.com/amoylab/sessionkv/internal/common/config"
	"github.com/amoylab/sessionkv/pkg/utils"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Each key is a hash holding the value under "d" and the version under "v".
// ARGV: 1 value, 2 new version, 3 ttl in milliseconds (0 = no expiry).
var (
	insertScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'd', ARGV[1], 'v', ARGV[2])
if tonumber(ARGV[3]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
return 1
`)

	upsertScript = redis.NewScript(`
redis.call('HSET', KEYS[1], 'd', ARGV[1], 'v', ARGV[2])
if tonumber(ARGV[3]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[3])
else
  redis.call('PERSIST', KEYS[1])
end
return 1
`)

	// ARGV 4 is the expected version
	casScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'v')
if not cur then
  return -1
end
if cur ~= ARGV[4] then
  return 0
end
redis.call('HSET', KEYS[1], 'd', ARGV[1], 'v', ARGV[2])
if tonumber(ARGV[3]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[3])
else
  redis.call('PERSIST', KEYS[1])
end
return 1
`)

	// ARGV 1 is the ttl in milliseconds
	touchScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
if tonumber(ARGV[1]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
else
  redis.call('PERSIST', KEYS[1])
end
return 1
`)
)

// RedisClient implements Client on top of a redis UniversalClient
type RedisClient struct {
	logger *zap.Logger
	client redis.UniversalClient
	prefix string
}

var _ Client = (*RedisClient)(nil)

// NewRedisClient connects to redis in single, sentinel or cluster mode
func NewRedisClient(logger *zap.Logger, cfg config.RedisConfig) (*RedisClient, error) {
	opts := &redis.UniversalOptions{
		Addrs:    utils.SplitAddrs(cfg.Addr),
		Username: cfg.Username,
		Password: cfg.Password,
	}
	if cfg.ClusterType == cnst.RedisClusterTypeSentinel {
		opts.MasterName = cfg.MasterName
	}
	if cfg.ClusterType != cnst.RedisClusterTypeCluster {
		// can not set db in cluster mode
		opts.DB = cfg.DB
	}
	client := redis.NewUniversalClient(opts)

	// Test connection
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisClientFrom(logger, client, cfg.Prefix), nil
}

// NewRedisClientFrom wraps an existing redis client
func NewRedisClientFrom(logger *zap.Logger, client redis.UniversalClient, prefix string) *RedisClient {
	if prefix != "" {
		prefix += ":"
	}
	return &RedisClient{
		logger: logger.Named("kv.redis"),
		client: client,
		prefix: prefix,
	}
}

func (c *RedisClient) key(k string) string {
	return c.prefix + k
}

func ttlMillis(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	if ms := ttl.Milliseconds(); ms > 0 {
		return ms
	}
	return 1
}

func formatVersion(v Version) string {
	return strconv.FormatUint(uint64(v), 10)
}

func (c *RedisClient) Get(ctx context.Context, key string) (*Item, error) {
	vals, err := c.client.HMGet(ctx, c.key(key), "d", "v").Result()
	if err != nil {
		return nil, err
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return nil, ErrKeyNotFound
	}
	data, ok := vals[0].(string)
	if !ok {
		return nil, fmt.Errorf("kv: unexpected value type %T for %s", vals[0], key)
	}
	raw, ok := vals[1].(string)
	if !ok {
		return nil, fmt.Errorf("kv: unexpected version type %T for %s", vals[1], key)
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("kv: parse version of %s: %w", key, err)
	}
	return &Item{Value: []byte(data), Version: Version(v)}, nil
}

func (c *RedisClient) Insert(ctx context.Context, key string, value []byte, ttl time.Duration) (Version, error) {
	v := randomVersion(0)
	res, err := insertScript.Run(ctx, c.client, []string{c.key(key)}, value, formatVersion(v), ttlMillis(ttl)).Int64()
	if err != nil {
		return 0, err
	}
	if res == 0 {
		return 0, ErrKeyExists
	}
	return v, nil
}

func (c *RedisClient) Upsert(ctx context.Context, key string, value []byte, ttl time.Duration) (Version, error) {
	v := randomVersion(0)
	if err := upsertScript.Run(ctx, c.client, []string{c.key(key)}, value, formatVersion(v), ttlMillis(ttl)).Err(); err != nil {
		return 0, err
	}
	return v, nil
}

func (c *RedisClient) CompareAndSwap(ctx context.Context, key string, value []byte, ttl time.Duration, expected Version) (Version, error) {
	v := randomVersion(expected)
	res, err := casScript.Run(ctx, c.client, []string{c.key(key)},
		value, formatVersion(v), ttlMillis(ttl), formatVersion(expected)).Int64()
	if err != nil {
		return 0, err
	}
	switch res {
	case -1:
		return 0, ErrKeyNotFound
	case 0:
		return 0, ErrVersionMismatch
	}
	return v, nil
}

func (c *RedisClient) Remove(ctx context.Context, key string) error {
	n, err := c.client.Del(ctx, c.key(key)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrKeyNotFound
	}
	return nil
}

func (c *RedisClient) Touch(ctx context.Context, key string, ttl time.Duration) error {
	res, err := touchScript.Run(ctx, c.client, []string{c.key(key)}, ttlMillis(ttl)).Int64()
	if err != nil {
		return err
	}
	if res == 0 {
		return ErrKeyNotFound
	}
	return nil
}

func (c *RedisClient) Close() error {
	if err := c.client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}
