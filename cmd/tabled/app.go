package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/JonMunkholm/tabled/internal/cache"
	"github.com/JonMunkholm/tabled/internal/config"
	"github.com/JonMunkholm/tabled/internal/core"
	"github.com/JonMunkholm/tabled/internal/core/coltype"
	"github.com/JonMunkholm/tabled/internal/metrics"
	"github.com/JonMunkholm/tabled/internal/store"
	"github.com/JonMunkholm/tabled/internal/store/memory"
	"github.com/JonMunkholm/tabled/internal/store/postgres"
	"github.com/JonMunkholm/tabled/internal/store/sqlite"
)

// migrator is implemented by stores with a schema to apply.
type migrator interface {
	Migrate(ctx context.Context) error
}

// app holds the collaborators shared by the commands.
type app struct {
	cfg     *config.Config
	store   store.Store
	cache   cache.Cache
	sweeper core.Sweeper
	metrics *metrics.Collector
	service *core.Service
}

// openStore connects the store selected by DB_DRIVER.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return postgres.Open(ctx, postgres.PoolConfig{
			URL:             cfg.URL,
			MaxConns:        cfg.MaxConns,
			MinConns:        cfg.MinConns,
			MaxConnLifetime: cfg.MaxConnLifetime,
			MaxConnIdleTime: cfg.MaxConnIdleTime,
		})
	case config.DriverSQLite:
		return sqlite.Open(cfg.Path)
	case config.DriverMemory:
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}

// migrate applies the store schema when the store has one.
func migrate(ctx context.Context, st store.Store) error {
	m, ok := st.(migrator)
	if !ok {
		return nil
	}
	return m.Migrate(ctx)
}

// newApp opens the store and cache and builds the service.
func newApp(ctx context.Context, cfg *config.Config, autoMigrate bool) (*app, error) {
	st, err := openStore(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Database.Driver, err)
	}
	slog.Info("store connected", "driver", cfg.Database.Driver)

	a := &app{cfg: cfg, store: st, metrics: metrics.New()}

	if autoMigrate {
		if err := migrate(ctx, st); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	types := coltype.NewRegistry()
	if cfg.Types.File != "" {
		n, err := loadTypes(types, cfg.Types.File)
		if err != nil {
			a.Close()
			return nil, err
		}
		slog.Info("column types declared", "file", cfg.Types.File, "count", n)
	}

	var locker cache.Locker
	if cfg.Cache.Redis() {
		rc, err := cache.NewRedis(ctx, cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
			Prefix:   cfg.Cache.KeyPrefix,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.cache = rc
		locker = cache.NewRedisLocker(rc.Client, cache.RedisLockerConfig{
			TTL:        cfg.Cache.LockTTL,
			Attempts:   cfg.Cache.LockAttempts,
			RetryDelay: cfg.Cache.LockRetryDelay,
		})
		slog.Info("redis cache connected", "addr", cfg.Cache.RedisAddr)
	} else {
		mem := cache.NewMemory()
		a.cache = mem
		a.sweeper = mem
		locker = cache.NewLocalLocker()
	}

	a.service = core.NewService(st, core.Config{
		ImportMaxRows:   cfg.Import.MaxRows,
		ImportErrorCap:  cfg.Import.ErrorCap,
		ImportTimeout:   cfg.Import.Timeout,
		SummaryPageSize: cfg.Import.SummaryPageSize,
		AnalyticsTTL:    cfg.Ledger.AnalyticsTTL,
		CatalogTTL:      cfg.Cache.CatalogTTL,
	}, core.Options{
		Types:   types,
		Cache:   a.cache,
		Locker:  locker,
		Limiter: core.NewImportLimiter(cfg.Import.MaxConcurrent, cfg.Import.MaxWaitTime, a.metrics),
		Metrics: a.metrics,
	})
	return a, nil
}

func loadTypes(reg *coltype.Registry, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open column types file: %w", err)
	}
	defer f.Close()

	n, err := reg.LoadDeclarations(f)
	if err != nil {
		return 0, fmt.Errorf("load column types from %s: %w", path, err)
	}
	return n, nil
}

// Close releases the cache and the store.
func (a *app) Close() {
	var errs []error
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if err := errors.Join(errs...); err != nil {
		slog.Warn("close failed", "error", err)
	}
}
