package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/amoylab/sessionkv/internal/common/config"
	"github.com/amoylab/sessionkv/internal/kv"
	"github.com/amoylab/sessionkv/internal/outputcache"
	"github.com/amoylab/sessionkv/internal/provider"
	"github.com/amoylab/sessionkv/internal/server"
	"github.com/amoylab/sessionkv/pkg/helper"
	"github.com/amoylab/sessionkv/pkg/logger"
	"github.com/amoylab/sessionkv/pkg/metrics"
	"github.com/amoylab/sessionkv/pkg/trace"
	"github.com/amoylab/sessionkv/pkg/version"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func serve(ctx context.Context, path string) error {
	cfg, cfgPath, err := config.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("failed to load config %s: %w", cfgPath, err)
	}

	lg, err := logger.NewLogger(&cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer lg.Sync()

	lg.Info("Loaded configuration", zap.String("path", cfgPath), zap.String("version", version.Get()))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return run(ctx, lg, cfg)
}

// run wires the store, provider, cache and HTTP server and blocks until ctx
// is done, then shuts everything down within the configured timeout
func run(ctx context.Context, lg *zap.Logger, cfg *config.SessionKVConfig) error {
	shutdownTracing, err := trace.InitTracing(ctx, &cfg.Tracing, lg)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics)
	}

	client, err := kv.NewClient(lg, &cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to initialize kv store: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			lg.Warn("failed to close kv store", zap.Error(err))
		}
	}()

	sessions, err := provider.NewFromConfig(lg, client, &cfg.Session, m)
	if err != nil {
		return fmt.Errorf("failed to initialize session provider: %w", err)
	}
	defer sessions.Close()

	var cache *outputcache.Cache
	if cfg.OutputCache.Enabled {
		cache = outputcache.New(client, cfg.OutputCache, lg, m)
	}

	if cfg.PID != "" {
		pidFile := helper.NewPIDFile(cfg.PID)
		if err := pidFile.Write(); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() {
			if err := pidFile.Remove(); err != nil {
				lg.Warn("failed to remove PID file", zap.String("path", pidFile.Path()), zap.Error(err))
			}
		}()
		lg.Info("Wrote PID file", zap.String("path", pidFile.Path()))
	}

	srv := server.NewServer(lg, cfg, sessions, cache, m)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		lg.Info("Received shutdown signal")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			lg.Error("failed to shutdown server", zap.Error(err))
		}
		if err := shutdownTracing(shutdownCtx); err != nil {
			lg.Warn("failed to shutdown tracing", zap.Error(err))
		}
		return nil
	})

	return g.Wait()
}
