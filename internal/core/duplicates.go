package core

import (
	"context"
	"strings"

	"github.com/JonMunkholm/tabled/internal/core/coltype"
	"github.com/JonMunkholm/tabled/internal/store"
)

// DuplicateSource tells where a duplicate value was found.
type DuplicateSource int

const (
	NoDuplicate DuplicateSource = iota
	DuplicateInBatch
	DuplicateInTable
)

// DuplicateChecker tracks values of no-duplicate columns for one import.
// Values compare by equality of their stored form, without case folding.
type DuplicateChecker struct {
	rows           store.RowStore
	tableID        string
	checkPersisted bool
	seen           map[string]map[string]struct{}
}

// NewDuplicateChecker returns a checker scoped to one call. When
// checkPersisted is false only the in-flight batch is consulted.
func NewDuplicateChecker(rows store.RowStore, tableID string, checkPersisted bool) *DuplicateChecker {
	return &DuplicateChecker{
		rows:           rows,
		tableID:        tableID,
		checkPersisted: checkPersisted,
		seen:           make(map[string]map[string]struct{}),
	}
}

func dupKey(value any) string {
	return store.ValueKey(coltype.Storable(value))
}

// Seen reports whether value was remembered earlier in this batch.
func (d *DuplicateChecker) Seen(column string, value any) bool {
	_, ok := d.seen[strings.ToLower(column)][dupKey(value)]
	return ok
}

// Remember records value as used in this batch.
func (d *DuplicateChecker) Remember(column string, value any) {
	col := strings.ToLower(column)
	if d.seen[col] == nil {
		d.seen[col] = make(map[string]struct{})
	}
	d.seen[col][dupKey(value)] = struct{}{}
}

// Check looks value up in the batch first, then in persisted rows.
func (d *DuplicateChecker) Check(ctx context.Context, column string, value any) (DuplicateSource, error) {
	if d.Seen(column, value) {
		return DuplicateInBatch, nil
	}
	if !d.checkPersisted || d.rows == nil {
		return NoDuplicate, nil
	}
	exists, err := d.rows.ValueExists(ctx, d.tableID, column, coltype.Storable(value))
	if err != nil {
		return NoDuplicate, err
	}
	if exists {
		return DuplicateInTable, nil
	}
	return NoDuplicate, nil
}
