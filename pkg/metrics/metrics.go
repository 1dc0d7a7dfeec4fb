package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/amoylab/sessionkv/internal/common/config"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by session operations
const (
	OutcomeOK        = "ok"
	OutcomeNotFound  = "not_found"
	OutcomeLocked    = "locked"
	OutcomeExhausted = "exhausted"
	OutcomeAborted   = "aborted"
	OutcomeError     = "error"
)

// Metrics holds every collector exposed by sessionkv. A nil *Metrics is valid
// and records nothing, so components can be built without a registry.
type Metrics struct {
	registry  *prometheus.Registry
	namespace string

	httpReqCnt *prometheus.CounterVec
	httpDur    *prometheus.HistogramVec
	httpInfl   *prometheus.GaugeVec

	sessionOpCnt   *prometheus.CounterVec
	sessionOpDur   *prometheus.HistogramVec
	casConflicts   *prometheus.CounterVec
	retryExhausted *prometheus.CounterVec
	lockContention prometheus.Counter

	cacheLookups *prometheus.CounterVec
	cacheErrors  *prometheus.CounterVec
}

func New(cfg config.MetricsConfig) *Metrics {
	ns := cfg.Namespace
	r := prometheus.NewRegistry()
	// Register standard process and Go collectors
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())

	httpReqCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "http_requests_total"}, []string{"method", "route", "status"})
	httpDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Name: "http_request_duration_seconds", Buckets: cfg.Buckets}, []string{"method", "route", "status"})
	httpInfl := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: ns, Name: "http_requests_inflight"}, []string{"route"})
	r.MustRegister(httpReqCnt, httpDur, httpInfl)

	sessionOpCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Subsystem: "session", Name: "operations_total"}, []string{"op", "outcome"})
	sessionOpDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Subsystem: "session", Name: "operation_duration_seconds", Buckets: cfg.Buckets}, []string{"op"})
	casConflicts := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Subsystem: "session", Name: "cas_conflicts_total"}, []string{"op"})
	retryExhausted := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Subsystem: "session", Name: "retry_exhausted_total"}, []string{"op"})
	lockContention := prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Subsystem: "session", Name: "lock_contention_total"})
	r.MustRegister(sessionOpCnt, sessionOpDur, casConflicts, retryExhausted, lockContention)

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Subsystem: "outputcache", Name: "lookups_total"}, []string{"result"})
	cacheErrors := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Subsystem: "outputcache", Name: "errors_total"}, []string{"op"})
	r.MustRegister(cacheLookups, cacheErrors)

	return &Metrics{
		registry:       r,
		namespace:      ns,
		httpReqCnt:     httpReqCnt,
		httpDur:        httpDur,
		httpInfl:       httpInfl,
		sessionOpCnt:   sessionOpCnt,
		sessionOpDur:   sessionOpDur,
		casConflicts:   casConflicts,
		retryExhausted: retryExhausted,
		lockContention: lockContention,
		cacheLookups:   cacheLookups,
		cacheErrors:    cacheErrors,
	}
}

// SessionOp records one finished session engine operation
func (m *Metrics) SessionOp(op, outcome string, since time.Time) {
	if m == nil {
		return
	}
	m.sessionOpCnt.WithLabelValues(op, outcome).Inc()
	m.sessionOpDur.WithLabelValues(op).Observe(time.Since(since).Seconds())
}

func (m *Metrics) CASConflict(op string) {
	if m == nil {
		return
	}
	m.casConflicts.WithLabelValues(op).Inc()
}

func (m *Metrics) RetryExhausted(op string) {
	if m == nil {
		return
	}
	m.retryExhausted.WithLabelValues(op).Inc()
}

// LockContended counts exclusive reads that found the record held by someone else
func (m *Metrics) LockContended() {
	if m == nil {
		return
	}
	m.lockContention.Inc()
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues("hit").Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}

func (m *Metrics) CacheError(op string) {
	if m == nil {
		return
	}
	m.cacheErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		route := c.FullPath()
		if route == "" {
			route = routeFromURL(c.Request.URL.Path)
		}
		m.httpInfl.WithLabelValues(route).Inc()
		start := time.Now()
		c.Next()
		status := httpStatus(c.Writer.Status())
		m.httpReqCnt.WithLabelValues(c.Request.Method, route, status).Inc()
		m.httpDur.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
		m.httpInfl.WithLabelValues(route).Dec()
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mostly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// unmatched routes collapse to a single label to keep cardinality bounded
func routeFromURL(path string) string {
	if strings.HasPrefix(path, "/session/") {
		return "/session/*"
	}
	if strings.HasPrefix(path, "/cached/") {
		return "/cached/*"
	}
	return "unmatched"
}

func httpStatus(code int) string { return strconv.Itoa(code) }
