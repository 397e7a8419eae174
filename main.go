package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"eventreg/config"
	"eventreg/handlers"
	"eventreg/metrics"
	"eventreg/middleware"
	"eventreg/persistence"
	"eventreg/registry"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	// Setup structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server exited cleanly")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	adapter := persistence.NewAdapter(store,
		persistence.WithKey(cfg.SnapshotKey),
		persistence.WithLogger(logger),
	)
	reg := registry.New(adapter,
		registry.WithLogger(logger),
		registry.WithMetrics(metrics.New(promReg)),
		registry.WithSampleData(cfg.SeedSample),
	)

	// The database is usable even if the initial save failed; only the
	// durability of the first changes is at risk, which is already logged.
	if err := reg.Open(ctx); err != nil && !errors.Is(err, persistence.ErrSave) {
		return err
	}
	defer func() {
		// Close DB connection last
		if err := reg.Close(); err != nil {
			logger.Error("failed to close db", "error", err)
		}
	}()
	logger.Info("database ready", "store", cfg.Store, "key", cfg.SnapshotKey)

	h := handlers.New(reg, logger)
	h.Location = cfg.Location()

	router := handlers.NewRouter(
		h,
		promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}),
		middleware.Logging(logger),
		middleware.Recovery(logger),
		middleware.RateLimit(cfg.RateLimit, cfg.RateWindow),
	)

	// Configure Server with Timeouts
	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		// 5 seconds to finish in-flight requests
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server forced to shutdown", "error", err)
			return err
		}
		return nil
	})

	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config) (persistence.Store, func(), error) {
	switch cfg.Store {
	case config.StoreRedis:
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		client, err := persistence.DialRedis(dialCtx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return persistence.NewRedisStore(client), func() { client.Close() }, nil
	default:
		store, err := persistence.NewFileStore(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
