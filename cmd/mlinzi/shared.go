package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	goutils "github.com/jkaninda/go-utils"

	"github.com/jkaninda/mlinzi/internal/config"
	"github.com/jkaninda/mlinzi/internal/logging"
	"github.com/jkaninda/mlinzi/internal/observability"
	"github.com/jkaninda/mlinzi/internal/runner"
	"github.com/jkaninda/mlinzi/internal/storage"
	pgstore "github.com/jkaninda/mlinzi/internal/storage/postgres"
	sqlitestore "github.com/jkaninda/mlinzi/internal/storage/sqlite"
)

// SharedComponents holds the subsystems both the bot and the pending
// command need. Built once by initShared, torn down by Cleanup.
type SharedComponents struct {
	Config *config.Config
	Logger *slog.Logger
	Store  storage.Store
	Obs    *observability.Observability // nil = observability disabled.
	Runner runner.Runner

	cleanups []func()
	once     sync.Once
}

// Cleanup runs all deferred cleanup functions in reverse order. Only the
// first call has an effect: shutdown runs it before re-exec and the
// deferred call in runBot must then do nothing.
func (sc *SharedComponents) Cleanup() {
	sc.once.Do(func() {
		for i := len(sc.cleanups) - 1; i >= 0; i-- {
			sc.cleanups[i]()
		}
	})
}

func (sc *SharedComponents) addCleanup(fn func()) {
	sc.cleanups = append(sc.cleanups, fn)
}

// loadConfig reads the config named by --config or MLINZI_CONFIG.
func loadConfig() (*config.Config, error) {
	return config.Load(goutils.Env("MLINZI_CONFIG", configPath))
}

// initShared performs the common initialization.
// Callers must call sc.Cleanup() when done.
func initShared(cfg *config.Config) (*SharedComponents, error) {
	logger, logCloser, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("initializing logging: %w", err)
	}

	sc := &SharedComponents{
		Config: cfg,
		Logger: logger,
	}
	sc.addCleanup(func() { closeQuietly(logCloser) })

	// Ensure data directory exists.
	dataDir := cfg.ResolvedDataDir()
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}
	logger.Debug("data directory initialized", slog.String("path", dataDir))

	// Observability.
	obs, err := observability.New(cfg.Observability, logger)
	if err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("initializing observability: %w", err)
	}
	sc.Obs = obs
	sc.addCleanup(func() {
		if obs != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			obs.Shutdown(shutdownCtx)
		}
	})
	if obs != nil {
		logger.Debug("observability initialized",
			slog.Bool("metrics", obs.Metrics != nil),
			slog.Bool("tracing", obs.Tracer != nil),
			slog.Bool("anomaly", obs.Anomaly != nil),
		)
	}

	// Storage (SQLite default, PostgreSQL optional).
	store, err := initStore(cfg, logger)
	if err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	sc.Store = store
	sc.addCleanup(func() {
		if err := store.Close(); err != nil {
			logger.Error("closing store", slog.String("error", err.Error()))
		}
	})

	if err := store.Migrate(context.Background()); err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	logger.Debug("storage initialized", slog.String("driver", store.Driver()))

	// External programs.
	var r runner.Runner = runner.NewProcessRunner(cfg.Sandbox.ShellTimeout(), logger)
	if obs != nil && (obs.Metrics != nil || obs.Tracer != nil || obs.Anomaly != nil) {
		r = observability.NewInstrumentedRunner(r, obs.Metrics, obs.TracerOrNil(), obs.Anomaly)
	}
	sc.Runner = r

	return sc, nil
}

// initStore creates the appropriate storage backend from config.
func initStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	switch driver := cfg.StorageDriverName(); driver {
	case storage.DriverPostgres:
		return initPostgresStore(cfg, logger)
	case storage.DriverSQLite:
		return initSQLiteStore(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", driver)
	}
}

func initSQLiteStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	journalMode := "wal"
	if cfg.Storage != nil && cfg.Storage.SQLite != nil && cfg.Storage.SQLite.JournalMode != "" {
		journalMode = cfg.Storage.SQLite.JournalMode
	}

	return sqlitestore.Open(sqlitestore.Config{
		Path:        cfg.DatabasePath(),
		JournalMode: journalMode,
	}, logger)
}

func initPostgresStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	pg := cfg.Storage.Postgres
	pgDB, err := pgstore.Open(pgstore.Config{
		DSN:             pg.DSN,
		MaxOpenConns:    pg.MaxOpenConns,
		MaxIdleConns:    pg.MaxIdleConns,
		ConnMaxLifetime: time.Duration(pg.ConnMaxLifetimeS) * time.Second,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	return pgstore.NewStore(pgDB), nil
}

func closeQuietly(c io.Closer) {
	_ = c.Close()
}
