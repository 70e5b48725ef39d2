package core

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JonMunkholm/tabled/internal/cache"
)

type countingSweeper struct {
	calls atomic.Int32
}

func (c *countingSweeper) Sweep() int {
	c.calls.Add(1)
	return 0
}

func TestStartMaintenance_StopsOnCancel(t *testing.T) {
	svc, _ := newTestService(t)
	sw := &countingSweeper{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.StartMaintenance(ctx, sw, MaintenanceConfig{Interval: 5 * time.Millisecond})
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for sw.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("sweeps = %d after 2s, want at least 2", sw.calls.Load())
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("maintenance did not stop after cancel")
	}
}

func TestRunMaintenance_WarmsCatalog(t *testing.T) {
	c := cache.NewMemory()
	svc, _ := newTestService(t, func(o *Options) { o.Cache = c })
	saleTable(t, svc)

	svc.runMaintenance(bg(), nil, MaintenanceConfig{WarmCatalog: true})

	if _, ok, _ := c.Get(bg(), catalogPrefix+"tables"); !ok {
		t.Error("public table listing not cached after warm-up")
	}
}

func TestRunMaintenance_NoCache(t *testing.T) {
	svc, _ := newTestService(t)
	sw := &countingSweeper{}

	// Warm-up is skipped without a cache; the sweep still runs.
	svc.runMaintenance(bg(), sw, MaintenanceConfig{WarmCatalog: true})

	if sw.calls.Load() != 1 {
		t.Errorf("sweeps = %d, want 1", sw.calls.Load())
	}
}
