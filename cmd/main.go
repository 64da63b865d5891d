package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/readq/internal/adapters/http/api"
	repository "github.com/okian/readq/internal/adapters/repository"
	"github.com/okian/readq/internal/adapters/repository/sqlite"
	service "github.com/okian/readq/internal/app"
	"github.com/okian/readq/internal/config"
	"github.com/okian/readq/internal/domain/scoring"
	"github.com/okian/readq/pkg/logger"
	"github.com/okian/readq/pkg/metrics"
	"github.com/spf13/cobra"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Initialize logging with defaults; the configured level and format are
	// applied once the config is loaded.
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		stop()
		os.Exit(1) //nolint:gocritic // exitAfterDefer
	}
}

// cli carries state shared by every command once the config is loaded.
type cli struct {
	cfg *config.Config
	log logger.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "readq",
		Short:         "readq keeps ranked reading lists",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd.Context())
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.serve(cmd.Context())
		},
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API (default)",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return c.serve(cmd.Context())
			},
		},
		c.resequenceCmd(),
		c.auditCmd(),
		c.migrateCmd(),
	)
	return root
}

// setup loads configuration (defaults -> optional file -> env) and re-inits
// the logger with the configured level and format.
func (c *cli) setup(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.Init(logger.WithLevel(cfg.LogLevel), logger.WithFormat(cfg.LogFormat)); err != nil {
		// Fall back to info on an invalid level.
		_ = logger.Init(logger.WithFormat(cfg.LogFormat))
		logger.Get().Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
	}
	c.cfg = cfg
	c.log = logger.Get()
	return nil
}

// newCalculator builds the scoring calculator from the configured defaults.
func (c *cli) newCalculator() (*scoring.Calculator, error) {
	opts := []scoring.Option{
		scoring.WithPrivilegedAvailability(c.cfg.PrivilegedAvailability),
		scoring.WithMissingTypeWeight(c.cfg.MissingTypeWeight),
		scoring.WithMissingPrivilegedWeight(c.cfg.MissingPrivilegedWeight),
	}
	formula, err := c.cfg.DefaultFormula()
	if err != nil {
		return nil, err
	}
	if formula != nil {
		opts = append(opts, scoring.WithDefaultFormula(*formula))
	}
	return scoring.NewCalculator(opts...), nil
}

// openStore opens the configured storage backend. SQLite databases are
// migrated on open.
func (c *cli) openStore(ctx context.Context) (repository.Store, error) {
	switch c.cfg.Storage {
	case config.StorageMemory:
		c.log.Warn(ctx, "using in-memory storage; reading lists are lost on exit")
		return repository.NewMemoryStore(), nil
	default:
		store, err := sqlite.Open(ctx, c.cfg.SQLitePath, sqlite.WithLogger(c.log.Named("sqlite")))
		if err != nil {
			return nil, fmt.Errorf("failed to open database %s: %w", c.cfg.SQLitePath, err)
		}
		return store, nil
	}
}

// newService opens storage and wires the service. The returned close func
// releases the store.
func (c *cli) newService(ctx context.Context) (*service.Service, func(), error) {
	calc, err := c.newCalculator()
	if err != nil {
		return nil, nil, err
	}
	store, err := c.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	svc := service.New(
		service.WithLogger(c.log.Named("service")),
		service.WithStore(store),
		service.WithCalculator(calc),
		service.WithWorkerCount(c.cfg.WorkerCount),
		service.WithQueueSize(c.cfg.QueueSize),
		service.WithDedupeSize(c.cfg.DedupeSize),
	)
	closeStore := func() {
		if err := store.Close(); err != nil {
			c.log.Error(ctx, "failed to close store", logger.Error(err))
		}
	}
	return svc, closeStore, nil
}

func (c *cli) serve(ctx context.Context) error {
	svc, closeStore, err := c.newService(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer svc.Stop()

	if c.cfg.RescoreOnStart {
		res, err := svc.EnqueueRescoreAll(ctx, "startup")
		if err != nil {
			c.log.Error(ctx, "startup rescore failed", logger.Error(err))
		} else {
			c.log.Info(ctx, "startup rescore queued",
				logger.Int("users", res.Users),
				logger.Int("queued", res.Queued),
				logger.Int("failed", res.Failed),
			)
		}
	}

	// Start system metrics updater
	go startSystemMetricsUpdater(ctx)

	// Start service metrics updater
	go startServiceMetricsUpdater(ctx, svc)

	if c.cfg.AdminToken == "" {
		c.log.Info(ctx, "admin routes disabled; set admin_token to enable them")
	}
	apiServer := api.NewServer(svc,
		api.WithAdminToken(c.cfg.AdminToken),
		api.WithLogger(c.log.Named("api")),
	)

	srv := &http.Server{
		Addr:              c.cfg.Addr,
		Handler:           apiServer.Routes(),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		c.log.Info(ctx, "starting HTTP server", logger.String("addr", c.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or a listener failure.
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	}
	c.log.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		c.log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	c.log.Info(ctx, "server stopped")
	return nil
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)

	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics refreshes queue gauges. GetStats already records
// them while the service runs; capacity is only known here.
func updateServiceMetrics(svc *service.Service) {
	stats := svc.GetStats()

	if queueLen, ok := stats["queueLength"].(int); ok {
		metrics.UpdateQueueSize(queueLen)
		if capacity, ok := stats["queueSize"].(int); ok && capacity > 0 {
			metrics.UpdateQueueCapacity(capacity)
			metrics.UpdateQueueUtilization(float64(queueLen) / float64(capacity))
		}
	}
}
