// Package cache provides the advisory read cache and the per-item locks used
// by the inventory engines.
//
// Cached values are advisory. Nothing that decides stock or availability
// reads through this package; those paths go to the store under a lock.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/JonMunkholm/tabled/internal/metrics"
)

// Cache is a byte-oriented key/value cache with per-entry TTL.
type Cache interface {
	// Get returns the value stored under key. ok is false on a miss.
	Get(ctx context.Context, key string) (val []byte, ok bool, err error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// DeletePrefix removes every key starting with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
	Close() error
}

// GetOrCompute returns the cached value under key, or computes it with fn
// and stores it for ttl. Cache failures are logged and never fail the call;
// a nil cache always computes.
func GetOrCompute[T any](ctx context.Context, c Cache, key string, ttl time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if c == nil {
		return fn(ctx)
	}

	if raw, ok, err := c.Get(ctx, key); err != nil {
		slog.Warn("cache get failed", "key", key, "error", err)
	} else if ok {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, nil
		}
		slog.Warn("cache entry undecodable, recomputing", "key", key)
	}

	v, err := fn(ctx)
	if err != nil {
		return v, err
	}

	raw, err := json.Marshal(v)
	if err != nil {
		slog.Warn("cache encode failed", "key", key, "error", err)
		return v, nil
	}
	if err := c.Set(ctx, key, raw, ttl); err != nil {
		slog.Warn("cache set failed", "key", key, "error", err)
	}
	return v, nil
}

// Invalidate drops every key under prefix, logging failures.
func Invalidate(ctx context.Context, c Cache, prefix string) {
	if c == nil {
		return
	}
	if err := c.DeletePrefix(ctx, prefix); err != nil {
		slog.Warn("cache invalidate failed", "prefix", prefix, "error", err)
	}
}

// instrumented counts hits and misses on the wrapped cache.
type instrumented struct {
	Cache
	m *metrics.Collector
}

// Instrument wraps c so lookups are counted on m.
func Instrument(c Cache, m *metrics.Collector) Cache {
	if c == nil || m == nil {
		return c
	}
	return &instrumented{Cache: c, m: m}
}

func (i *instrumented) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, ok, err := i.Cache.Get(ctx, key)
	if err == nil {
		i.m.CacheLookup(ok)
	}
	return val, ok, err
}
