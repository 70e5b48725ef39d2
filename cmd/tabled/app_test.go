package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/tabled/internal/config"
	"github.com/JonMunkholm/tabled/internal/core"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{Driver: config.DriverMemory},
		Import: config.ImportConfig{
			MaxRows:         100,
			ErrorCap:        10,
			MaxConcurrent:   2,
			MaxWaitTime:     time.Second,
			Timeout:         time.Minute,
			SummaryPageSize: 50,
		},
		Cache:  config.CacheConfig{CatalogTTL: time.Minute},
		Ledger: config.LedgerConfig{AnalyticsTTL: time.Minute},
	}
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	_, err := openStore(context.Background(), config.DatabaseConfig{Driver: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mysql")
}

func TestOpenStore_SQLiteMigrates(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tabled.db")

	st, err := openStore(ctx, config.DatabaseConfig{Driver: config.DriverSQLite, Path: path})
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, migrate(ctx, st))
	// Migrations are idempotent
	require.NoError(t, migrate(ctx, st))
	assert.NoError(t, st.Ping(ctx))
}

func TestNewApp_Memory(t *testing.T) {
	ctx := context.Background()
	a, err := newApp(ctx, memoryConfig(), true)
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.sweeper, "memory cache should be swept")
	assert.NoError(t, a.service.Ping(ctx))
	assert.Equal(t, 2, a.service.Limiter().MaxConcurrent())
}

func TestNewApp_TypesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "types.yaml")
	manifest := "module: shop\ntypes:\n  - id: size\n    base: text\n    options: [S, M, L]\n"
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0o600))

	cfg := memoryConfig()
	cfg.Types.File = path

	a, err := newApp(context.Background(), cfg, false)
	require.NoError(t, err)
	defer a.Close()

	_, ok := a.service.Types().Resolve("shop:size")
	assert.True(t, ok, "declared type should be registered")
}

func TestNewApp_BadTypesFile(t *testing.T) {
	cfg := memoryConfig()
	cfg.Types.File = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := newApp(context.Background(), cfg, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "column types file")
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, &core.DatasetSummary{
		TotalRows:     3,
		ValidRows:     2,
		InvalidRows:   1,
		TotalWarnings: 1,
		Summary: []core.ColumnSummary{{
			Column:       "country",
			Type:         "country",
			InvalidCount: 1,
			Samples: []core.InvalidValue{
				{RowID: "r1", Value: "Frnace", Error: "unknown country", Suggestion: "France"},
			},
		}},
	})

	out := buf.String()
	assert.Contains(t, out, "Rows: 3 total, 2 valid, 1 invalid")
	assert.Contains(t, out, "country (country): 1 invalid")
	assert.Contains(t, out, `(did you mean "France"?)`)
}

func TestPrintSummary_Clean(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, &core.DatasetSummary{TotalRows: 2, ValidRows: 2})
	assert.Contains(t, buf.String(), "No invalid values.")
}
