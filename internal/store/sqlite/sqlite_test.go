package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/tabled/internal/store"
	"github.com/JonMunkholm/tabled/internal/store/storetest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "tabled.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return openTestStore(t)
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	st := openTestStore(t)
	require.NoError(t, st.Migrate(context.Background()))

	var n int
	require.NoError(t, st.db.Get(&n, `SELECT COUNT(*) FROM schema_migrations`))
	assert.Equal(t, 1, n)
}

func TestJSONPath(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"name", `$."name"`},
		{"Unit Price", `$."Unit Price"`},
		{`say "hi"`, `$."say \"hi\""`},
	}
	for _, tt := range tests {
		if got := jsonPath(tt.key); got != tt.want {
			t.Errorf("jsonPath(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestLimitClause(t *testing.T) {
	tests := []struct {
		page store.Page
		want string
	}{
		{store.Page{}, ""},
		{store.Page{Limit: 10}, " LIMIT 10 OFFSET 0"},
		{store.Page{Limit: 5, Offset: 20}, " LIMIT 5 OFFSET 20"},
		{store.Page{Offset: 3}, " LIMIT -1 OFFSET 3"},
	}
	for _, tt := range tests {
		if got := limitClause(tt.page); got != tt.want {
			t.Errorf("limitClause(%+v) = %q, want %q", tt.page, got, tt.want)
		}
	}
}
