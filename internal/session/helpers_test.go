package session

import (
	"context"
	"sync"
	"time"

	"github.com/amoylab/sessionkv/internal/kv"
	"go.uber.org/zap"
)

// hookClient wraps a kv.Client, counting calls and running hooks before
// compare-and-swap writes
type hookClient struct {
	kv.Client

	mu        sync.Mutex
	gets      int
	cas       int
	beforeCAS func(key string)
	failGet   error
}

func newHookClient() *hookClient {
	return &hookClient{Client: kv.NewMemoryClient()}
}

func (h *hookClient) Get(ctx context.Context, key string) (*kv.Item, error) {
	h.mu.Lock()
	h.gets++
	fail := h.failGet
	h.mu.Unlock()
	if fail != nil {
		return nil, fail
	}
	return h.Client.Get(ctx, key)
}

func (h *hookClient) CompareAndSwap(ctx context.Context, key string, value []byte, ttl time.Duration, expected kv.Version) (kv.Version, error) {
	h.mu.Lock()
	h.cas++
	hook := h.beforeCAS
	h.mu.Unlock()
	if hook != nil {
		hook(key)
	}
	return h.Client.CompareAndSwap(ctx, key, value, ttl, expected)
}

func (h *hookClient) counts() (gets, cas int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.gets, h.cas
}

func (h *hookClient) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.gets, h.cas = 0, 0
}

// bump rewrites key with its current value so any pending CAS loses
func (h *hookClient) bump(key string) {
	ctx := context.Background()
	item, err := h.Client.Get(ctx, key)
	if err != nil {
		return
	}
	_, _ = h.Client.Upsert(ctx, key, item.Value, time.Hour)
}

func newTestEngine(client kv.Client, mutate ...func(*Options)) *Engine {
	opts := DefaultOptions()
	for _, m := range mutate {
		m(&opts)
	}
	return NewEngine(client, opts, zap.NewNop(), nil)
}

func itemsWith(kvs map[string]any) *Items {
	items := NewItems()
	for k, v := range kvs {
		_ = items.Set(k, v)
	}
	return items
}
