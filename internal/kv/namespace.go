package kv

import (
	"context"
	"time"
)

type namespaced struct {
	Client
	prefix string
}

// WithNamespace prefixes every key passed to client with "bucket:". An empty
// bucket returns client unchanged.
func WithNamespace(client Client, bucket string) Client {
	if bucket == "" {
		return client
	}
	return &namespaced{Client: client, prefix: bucket + ":"}
}

func (n *namespaced) Get(ctx context.Context, key string) (*Item, error) {
	return n.Client.Get(ctx, n.prefix+key)
}

func (n *namespaced) Insert(ctx context.Context, key string, value []byte, ttl time.Duration) (Version, error) {
	return n.Client.Insert(ctx, n.prefix+key, value, ttl)
}

func (n *namespaced) Upsert(ctx context.Context, key string, value []byte, ttl time.Duration) (Version, error) {
	return n.Client.Upsert(ctx, n.prefix+key, value, ttl)
}

func (n *namespaced) CompareAndSwap(ctx context.Context, key string, value []byte, ttl time.Duration, expected Version) (Version, error) {
	return n.Client.CompareAndSwap(ctx, n.prefix+key, value, ttl, expected)
}

func (n *namespaced) Remove(ctx context.Context, key string) error {
	return n.Client.Remove(ctx, n.prefix+key)
}

func (n *namespaced) Touch(ctx context.Context, key string, ttl time.Duration) error {
	return n.Client.Touch(ctx, n.prefix+key, ttl)
}
