// Package main runs the tracker service:
// - Scheduler: extraction cycle at startup, then every scrape interval
// - Retention: periodic pruning of old history points
// - HTTP: read API, manual scrape trigger, metrics, WebSocket feed
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"crypto-tracker/internal/api"
	"crypto-tracker/internal/cache"
	"crypto-tracker/internal/config"
	"crypto-tracker/internal/feed"
	"crypto-tracker/internal/orchestrator"
	"crypto-tracker/internal/source"
	"crypto-tracker/internal/storage"
	chstore "crypto-tracker/internal/storage/clickhouse"
	"crypto-tracker/internal/storage/memory"
	"crypto-tracker/internal/storage/migrations"
	pgstore "crypto-tracker/internal/storage/postgres"
	"crypto-tracker/internal/storage/sqlite"
)

const shutdownTimeout = 30 * time.Second

// Server holds all components of the tracker service.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	store        storage.Store
	orchestrator *orchestrator.Orchestrator
	hub          *feed.Hub
	http         *http.Server
}

func main() {
	envFile := flag.String("env-file", ".env", "Optional .env file loaded before reading the environment")
	configPath := flag.String("config", os.Getenv("TRACKER_CONFIG"), "Optional YAML config file")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server, cleanup, err := newServer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise tracker", zap.Error(err))
	}
	defer cleanup()

	done := make(chan struct{})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()

		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing exit", zap.String("signal", sig.String()))
			os.Exit(1)
		case <-time.After(shutdownTimeout):
			logger.Error("graceful shutdown timed out, forcing exit", zap.Duration("timeout", shutdownTimeout))
			os.Exit(1)
		case <-done:
		}
	}()

	err = server.Run(ctx)
	close(done)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("tracker stopped with error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// newServer wires stores, sinks and the orchestrator from configuration.
func newServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	store, err := openStore(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, nil, err
	}
	closers = append(closers, func() {
		if err := store.Close(); err != nil {
			logger.Warn("close store", zap.Error(err))
		}
	})

	hub := feed.NewHub(feed.DefaultHubConfig(), logger.Named("feed"))
	closers = append(closers, hub.Close)
	sinks := []orchestrator.Sink{hub}

	if cfg.Storage.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickhouseDSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("clickhouse: %w", err)
		}
		closers = append(closers, func() { _ = conn.Close() })
		sinks = append(sinks, chstore.NewHistoryArchive(conn))
		logger.Info("history archive enabled")
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			cleanup()
			return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
		}
		closers = append(closers, func() { _ = client.Close() })
		sinks = append(sinks, cache.NewSnapshotCache(client, cfg.Redis.TTL))
		logger.Info("snapshot cache enabled", zap.String("addr", cfg.Redis.Addr))
	}

	src := source.NewHTTPSource(cfg.Source.URL,
		source.WithTimeout(cfg.Source.Timeout),
		source.WithMaxRetries(cfg.Source.MaxRetries),
		source.WithUserAgent(cfg.Source.UserAgent),
	)

	orch := orchestrator.New(orchestrator.Options{
		Source:       src,
		Store:        store,
		Sinks:        sinks,
		Logger:       logger.Named("orchestrator"),
		TopN:         cfg.Scrape.TopN,
		RowScanLimit: cfg.Scrape.RowScanLimit,
	})

	handler := api.NewHandler(api.Options{
		Store:  store,
		Runner: orch,
		Feed:   hub,
		Logger: logger.Named("api"),
	})

	return &Server{
		cfg:          cfg,
		logger:       logger,
		store:        store,
		orchestrator: orch,
		hub:          hub,
		http: &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, cleanup, nil
}

// openStore opens the configured primary store.
func openStore(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (storage.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory storage, data is lost on restart")
		return memory.NewPriceStore(), nil
	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		logger.Info("using sqlite storage", zap.String("path", cfg.SQLitePath))
		return store, nil
	case config.DriverPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		logger.Info("using postgres storage")
		return pgstore.NewPriceStore(pool), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// Run starts all components and blocks until ctx is cancelled or one fails.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting tracker",
		zap.String("source", s.cfg.Source.URL),
		zap.Duration("interval", s.cfg.Scrape.Interval),
		zap.Int("top_n", s.cfg.Scrape.TopN),
		zap.String("http_addr", s.cfg.HTTP.Addr),
	)

	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	go s.runScheduler(ctx)

	if s.cfg.Retention.Days > 0 {
		go s.runRetention(ctx)
	}

	var runErr error
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http shutdown", zap.Error(err))
	}
	return runErr
}

// runScheduler runs a cycle immediately, then on every tick.
func (s *Server) runScheduler(ctx context.Context) {
	s.runCycle(ctx)

	ticker := time.NewTicker(s.cfg.Scrape.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

func (s *Server) runCycle(ctx context.Context) {
	result := s.orchestrator.RunCycle(ctx)
	if !result.Success && result.Failure == orchestrator.FailureBusy {
		s.logger.Info("cycle already running, skipping tick")
	}
}

// runRetention prunes history older than the retention window on every tick.
func (s *Server) runRetention(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Retention.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.orchestrator.PruneHistoryOlderThan(ctx, s.cfg.Retention.Days); err != nil {
				s.logger.Error("history pruning failed", zap.Error(err))
			}
		}
	}
}
