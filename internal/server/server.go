package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/amoylab/sessionkv/internal/common/config"
	"github.com/amoylab/sessionkv/internal/outputcache"
	"github.com/amoylab/sessionkv/internal/provider"
	"github.com/amoylab/sessionkv/pkg/metrics"
	"github.com/amoylab/sessionkv/pkg/version"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

type (
	// Server hosts the session and output cache middlewares behind a gin router
	Server struct {
		logger   *zap.Logger
		cfg      *config.SessionKVConfig
		router   *gin.Engine
		httpSrv  *http.Server
		sessions *provider.Provider
		// cache is nil when the output cache is disabled
		cache *outputcache.Cache
		// metrics is nil when metrics are disabled
		metrics *metrics.Metrics
	}
)

// NewServer creates a new server; cache and m may be nil
func NewServer(logger *zap.Logger, cfg *config.SessionKVConfig, sessions *provider.Provider, cache *outputcache.Cache, m *metrics.Metrics) *Server {
	s := &Server{
		logger:   logger.Named("server"),
		cfg:      cfg,
		router:   gin.New(),
		sessions: sessions,
		cache:    cache,
		metrics:  m,
	}

	s.router.Use(s.recoveryMiddleware())
	if cfg.Tracing.Enabled {
		s.router.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	}
	if m != nil {
		s.router.Use(m.Middleware())
	}
	s.router.Use(s.loggerMiddleware())

	s.registerRoutes()

	s.httpSrv = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: s.router,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"version": version.Get(),
		})
	})
	if s.metrics != nil {
		s.router.GET(s.cfg.Metrics.Path, gin.WrapH(s.metrics.Handler()))
	}

	sess := s.router.Group("/session", s.sessionMiddleware())
	sess.GET("/counter", s.handleCounterGet)
	sess.POST("/counter", s.handleCounterIncrement)
	sess.POST("/abandon", s.handleAbandon)

	cached := s.router.Group("/cached", s.outputCacheMiddleware())
	cached.GET("/now", s.handleNow)
}

// Handler returns the http handler, mostly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("starting server", zap.String("addr", s.httpSrv.Addr))
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	return s.httpSrv.Shutdown(ctx)
}
