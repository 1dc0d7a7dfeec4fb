package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/amoylab/sessionkv/internal/common/config"
	"github.com/amoylab/sessionkv/internal/kv"
	"github.com/amoylab/sessionkv/internal/outputcache"
	"github.com/amoylab/sessionkv/internal/provider"
	"github.com/amoylab/sessionkv/internal/session"
	"github.com/amoylab/sessionkv/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEnv struct {
	srv      *Server
	client   *kv.MemoryClient
	sessions *provider.Provider
	cfg      *config.SessionKVConfig
}

func newTestEnv(t *testing.T, mutate ...func(*config.SessionKVConfig)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.SessionKVConfig{}
	cfg.SetDefaults()
	cfg.Metrics.Enabled = true
	cfg.Session.LockPollInterval = 5 * time.Millisecond
	cfg.Session.ExecutionTimeout = 200 * time.Millisecond
	for _, m := range mutate {
		m(cfg)
	}

	client := kv.NewMemoryClient()
	m := metrics.New(cfg.Metrics)
	sessions, err := provider.NewFromConfig(zap.NewNop(), client, &cfg.Session, m)
	require.NoError(t, err)
	cache := outputcache.New(client, cfg.OutputCache, zap.NewNop(), m)

	return &testEnv{
		srv:      NewServer(zap.NewNop(), cfg, sessions, cache, m),
		client:   client,
		sessions: sessions,
		cfg:      cfg,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	return w
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("cookie %s not set", name)
	return nil
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthzAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeBody(t, w)["status"])

	w = env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "sessionkv_http_requests_total")
}

func TestSessionCounter(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/session/counter", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decodeBody(t, w)["counter"])
	cookie := sessionCookie(t, w, env.cfg.Session.CookieName)

	w = env.do(t, http.MethodPost, "/session/counter", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, decodeBody(t, w)["counter"])

	w = env.do(t, http.MethodGet, "/session/counter", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.EqualValues(t, 2, body["counter"])
	assert.Equal(t, cookie.Value, body["id"])

	// the lock is released after every request
	rec, err := env.sessions.Engine().Load(context.Background(), cookie.Value, true)
	require.NoError(t, err)
	assert.Zero(t, rec.LockID)
}

func TestSessionAbandon(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/session/counter", nil)
	cookie := sessionCookie(t, w, env.cfg.Session.CookieName)
	require.Equal(t, 2, env.client.Len())

	w = env.do(t, http.MethodPost, "/session/abandon", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, env.client.Len())
}

func TestSessionConcurrentIncrements(t *testing.T) {
	env := newTestEnv(t, func(c *config.SessionKVConfig) {
		c.Session.ExecutionTimeout = 5 * time.Second
	})
	w := env.do(t, http.MethodPost, "/session/counter", nil)
	cookie := sessionCookie(t, w, env.cfg.Session.CookieName)

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := env.do(t, http.MethodPost, "/session/counter", cookie)
			assert.Equal(t, http.StatusOK, w.Code)
		}()
	}
	wg.Wait()

	w = env.do(t, http.MethodGet, "/session/counter", cookie)
	assert.EqualValues(t, n+1, decodeBody(t, w)["counter"])
}

func TestSessionStaleLockIsReleased(t *testing.T) {
	env := newTestEnv(t, func(c *config.SessionKVConfig) {
		c.Session.ExecutionTimeout = 10 * time.Millisecond
	})
	ctx := context.Background()
	data := env.sessions.CreateNewStoreData(20)
	require.NoError(t, data.Items.Set(counterKey, 5))
	require.NoError(t, env.sessions.SetAndReleaseItemExclusive(ctx, "stuck", data, 0, true))
	res, err := env.sessions.GetItemExclusive(ctx, "stuck")
	require.NoError(t, err)
	require.NotZero(t, res.LockID)

	time.Sleep(30 * time.Millisecond)
	cookie := &http.Cookie{Name: env.cfg.Session.CookieName, Value: "stuck"}
	w := env.do(t, http.MethodPost, "/session/counter", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 6, decodeBody(t, w)["counter"])
}

func TestSessionLockWaitTimesOut(t *testing.T) {
	env := newTestEnv(t, func(c *config.SessionKVConfig) {
		c.Session.ExecutionTimeout = time.Hour
		c.Session.ThrowOnError = true
	})
	ctx := context.Background()
	require.NoError(t, env.sessions.SetAndReleaseItemExclusive(ctx, "busy", env.sessions.CreateNewStoreData(20), 0, true))
	_, err := env.sessions.GetItemExclusive(ctx, "busy")
	require.NoError(t, err)

	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodPost, "/session/counter", nil).WithContext(reqCtx)
	req.AddCookie(&http.Cookie{Name: env.cfg.Session.CookieName, Value: "busy"})
	w := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSessionUninitializedItem(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.sessions.CreateUninitializedItem(ctx, "fresh", 20))

	cookie := &http.Cookie{Name: env.cfg.Session.CookieName, Value: "fresh"}
	w := env.do(t, http.MethodPost, "/session/counter", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decodeBody(t, w)["counter"])

	rec, err := env.sessions.Engine().Load(ctx, "fresh", true)
	require.NoError(t, err)
	assert.Equal(t, session.ActionNone, rec.Flags)
}

func TestOutputCache(t *testing.T) {
	env := newTestEnv(t)

	first := env.do(t, http.MethodGet, "/cached/now", nil)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))

	second := env.do(t, http.MethodGet, "/cached/now", nil)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.True(t, strings.HasPrefix(second.Header().Get("Content-Type"), "application/json"))
}

func TestOutputCacheDisabled(t *testing.T) {
	env := newTestEnv(t)
	env.srv.cache = nil

	w := env.do(t, http.MethodGet, "/cached/now", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-Cache"))
}

func TestRecovery(t *testing.T) {
	env := newTestEnv(t)
	env.srv.router.GET("/panic", func(*gin.Context) { panic("boom") })

	w := env.do(t, http.MethodGet, "/panic", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestStartAndShutdown(t *testing.T) {
	env := newTestEnv(t, func(c *config.SessionKVConfig) { c.Port = 0 })
	errCh := make(chan error, 1)
	go func() { errCh <- env.srv.Start() }()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, env.srv.Shutdown(ctx))
	assert.NoError(t, <-errCh)
}

func TestSessionPersistsAfterClientHangsUp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	data := env.sessions.CreateNewStoreData(20)
	require.NoError(t, data.Items.Set(counterKey, 1))
	require.NoError(t, env.sessions.SetAndReleaseItemExclusive(ctx, "gone", data, 0, true))

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	env.srv.router.Group("/session", env.srv.sessionMiddleware()).POST("/hangup", func(c *gin.Context) {
		env.srv.handleCounterIncrement(c)
		cancel()
	})

	req := httptest.NewRequest(http.MethodPost, "/session/hangup", nil).WithContext(reqCtx)
	req.AddCookie(&http.Cookie{Name: env.cfg.Session.CookieName, Value: "gone"})
	env.srv.Handler().ServeHTTP(httptest.NewRecorder(), req)

	rec, err := env.sessions.Engine().Load(ctx, "gone", false)
	require.NoError(t, err)
	assert.Zero(t, rec.LockID)
	var n int
	_, err = rec.Items.Get(counterKey, &n)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
