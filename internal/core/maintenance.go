package core

// maintenance.go runs the periodic cache upkeep of a long-running server:
//  1. Expired entries are swept from the process-local cache.
//  2. The unrestricted public table listing is recomputed so the first
//     storefront request after a write does not pay for the row counts.
//
// The loop is context-aware for graceful shutdown. A failed cycle is logged
// and the loop carries on.

import (
	"context"
	"log/slog"
	"time"

	"github.com/JonMunkholm/tabled/internal/model"
)

// Sweeper is implemented by caches that hold expired entries until swept.
type Sweeper interface {
	Sweep() int
}

// MaintenanceConfig holds the settings of the maintenance loop.
type MaintenanceConfig struct {
	Interval    time.Duration // How often to run (default: 1m)
	WarmCatalog bool          // Recompute the public table listing each cycle
}

// StartMaintenance runs one maintenance cycle immediately and then every
// Interval until ctx is cancelled. sweeper may be nil.
func (s *Service) StartMaintenance(ctx context.Context, sweeper Sweeper, cfg MaintenanceConfig) {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	slog.Info("maintenance started",
		"interval", cfg.Interval.String(),
		"warm_catalog", cfg.WarmCatalog,
	)

	s.runMaintenance(ctx, sweeper, cfg)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("maintenance stopped")
			return
		case <-ticker.C:
			s.runMaintenance(ctx, sweeper, cfg)
		}
	}
}

// runMaintenance performs one cycle.
func (s *Service) runMaintenance(ctx context.Context, sweeper Sweeper, cfg MaintenanceConfig) {
	start := time.Now()

	swept := 0
	if sweeper != nil {
		swept = sweeper.Sweep()
	}

	warmed := 0
	if cfg.WarmCatalog && s.cache != nil {
		tables, err := s.ListPublicTables(ctx, model.UserContext{})
		if err != nil {
			slog.Error("catalog warm-up failed", "error", err)
		} else {
			warmed = len(tables)
		}
	}

	status := s.limiter.Status()
	slog.Debug("maintenance cycle completed",
		"cache_entries_swept", swept,
		"catalog_tables", warmed,
		"imports_active", status.Active,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
