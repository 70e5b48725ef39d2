// Package storetest holds the behavioural test suite every store.Store
// implementation must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/tabled/internal/model"
	"github.com/JonMunkholm/tabled/internal/store"
)

// Factory returns a fresh, migrated, empty store.
type Factory func(t *testing.T) store.Store

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, st store.Store)
	}{
		{"Tables", testTables},
		{"Columns", testColumns},
		{"Rows", testRows},
		{"RenameAndDropKey", testRenameAndDropKey},
		{"QueryRows", testQueryRows},
		{"ValueExists", testValueExists},
		{"TxRollback", testTxRollback},
		{"NestedTxRollback", testNestedTxRollback},
		{"Ledger", testLedger},
		{"Sequences", testSequences},
		{"Sales", testSales},
		{"Rentals", testRentals},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newStore(t)
			tt.fn(t, st)
		})
	}
}

// ============================================================================
// Fixtures
// ============================================================================

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTable(t *testing.T, st store.Store, owner string, tt model.TableType, vis model.Visibility) model.Table {
	t.Helper()
	table := model.Table{
		ID:         uuid.NewString(),
		Name:       "table-" + uuid.NewString()[:8],
		OwnerID:    owner,
		TableType:  tt,
		Visibility: vis,
		CreatedAt:  epoch,
		UpdatedAt:  epoch,
	}
	require.NoError(t, st.CreateTable(context.Background(), &table))
	return table
}

func newRow(t *testing.T, st store.Store, tableID string, data map[string]any) model.Row {
	t.Helper()
	row := model.Row{
		ID:        uuid.NewString(),
		TableID:   tableID,
		Data:      data,
		CreatedBy: "user-1",
		CreatedAt: epoch,
		UpdatedAt: epoch,
	}
	require.NoError(t, st.InsertRow(context.Background(), &row))
	return row
}

// text renders a stored cell independent of how the backend decoded it.
func text(v any) string {
	return store.ValueText(v)
}

// ============================================================================
// Tables and columns
// ============================================================================

func testTables(t *testing.T, st store.Store) {
	ctx := context.Background()
	a := newTable(t, st, "alice", model.TableTypeData, model.VisibilityPrivate)
	b := newTable(t, st, "alice", model.TableTypeSale, model.VisibilityPublic)
	newTable(t, st, "bob", model.TableTypeRent, model.VisibilityShared)

	got, err := st.GetTable(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Name, got.Name)
	assert.Equal(t, model.TableTypeData, got.TableType)
	assert.True(t, got.CreatedAt.Equal(epoch))

	_, err = st.GetTable(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	owned, err := st.ListTables(ctx, store.TableFilter{OwnerID: "alice"})
	require.NoError(t, err)
	assert.Len(t, owned, 2)

	public, err := st.ListTables(ctx, store.TableFilter{Visibilities: []model.Visibility{model.VisibilityPublic, model.VisibilityShared}})
	require.NoError(t, err)
	assert.Len(t, public, 2)

	byID, err := st.ListTables(ctx, store.TableFilter{IDs: []string{b.ID}, Types: []model.TableType{model.TableTypeSale}})
	require.NoError(t, err)
	require.Len(t, byID, 1)
	assert.Equal(t, b.ID, byID[0].ID)

	a.Name = "renamed"
	a.Visibility = model.VisibilityPublic
	require.NoError(t, st.UpdateTable(ctx, &a))
	got, err = st.GetTable(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, model.VisibilityPublic, got.Visibility)

	missing := model.Table{ID: "missing", Name: "x", TableType: model.TableTypeData, Visibility: model.VisibilityPrivate}
	assert.ErrorIs(t, st.UpdateTable(ctx, &missing), store.ErrNotFound)
}

func testColumns(t *testing.T, st store.Store) {
	ctx := context.Background()
	table := newTable(t, st, "alice", model.TableTypeData, model.VisibilityPrivate)

	def := "n/a"
	status := model.Column{
		ID: uuid.NewString(), TableID: table.ID, Name: "Status", Type: "core:select",
		IsRequired: true, AllowDuplicates: true, DefaultValue: &def, Position: 1,
		Options: []string{"open", "closed"},
	}
	name := model.Column{
		ID: uuid.NewString(), TableID: table.ID, Name: "Name", Type: "core:text",
		AllowDuplicates: false, Position: 0,
	}
	require.NoError(t, st.CreateColumn(ctx, &status))
	require.NoError(t, st.CreateColumn(ctx, &name))

	dup := model.Column{ID: uuid.NewString(), TableID: table.ID, Name: "status", Type: "core:text"}
	assert.ErrorIs(t, st.CreateColumn(ctx, &dup), store.ErrConflict, "column names are unique case-insensitively")

	cols, err := st.ListColumns(ctx, table.ID)
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, "Name", cols[0].Name, "ordered by position")
	assert.Equal(t, []string{"open", "closed"}, cols[1].Options)
	require.NotNil(t, cols[1].DefaultValue)
	assert.Equal(t, "n/a", *cols[1].DefaultValue)
	assert.Nil(t, cols[0].DefaultValue)
	assert.False(t, cols[0].AllowDuplicates)

	status.Name = "State"
	status.Options = []string{"a"}
	status.DefaultValue = nil
	require.NoError(t, st.UpdateColumn(ctx, &status))
	cols, err = st.ListColumns(ctx, table.ID)
	require.NoError(t, err)
	assert.Equal(t, "State", cols[1].Name)
	assert.Nil(t, cols[1].DefaultValue)

	require.NoError(t, st.DeleteColumn(ctx, table.ID, name.ID))
	assert.ErrorIs(t, st.DeleteColumn(ctx, table.ID, name.ID), store.ErrNotFound)
	cols, err = st.ListColumns(ctx, table.ID)
	require.NoError(t, err)
	assert.Len(t, cols, 1)
}

// ============================================================================
// Rows
// ============================================================================

func testRows(t *testing.T, st store.Store) {
	ctx := context.Background()
	table := newTable(t, st, "alice", model.TableTypeData, model.VisibilityPrivate)
	other := newTable(t, st, "alice", model.TableTypeData, model.VisibilityPrivate)

	var ids []string
	for i := range 5 {
		r := newRow(t, st, table.ID, map[string]any{"n": i, "label": fmt.Sprintf("row %d", i)})
		ids = append(ids, r.ID)
	}
	newRow(t, st, other.ID, map[string]any{"n": 99})

	orphan := model.Row{ID: uuid.NewString(), TableID: "missing", Data: map[string]any{}, CreatedAt: epoch, UpdatedAt: epoch}
	assert.ErrorIs(t, st.InsertRow(ctx, &orphan), store.ErrNotFound)

	got, err := st.GetRow(ctx, table.ID, ids[2])
	require.NoError(t, err)
	assert.Equal(t, "2", text(got.Data["n"]))
	assert.Equal(t, "row 2", got.Data["label"])

	_, err = st.GetRow(ctx, other.ID, ids[2])
	assert.ErrorIs(t, err, store.ErrNotFound, "row lookups are scoped to the table")

	n, err := st.CountRows(ctx, table.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)

	page, err := st.ListRows(ctx, table.ID, store.Page{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[1], page[0].ID, "rows list in insertion order")
	assert.Equal(t, ids[2], page[1].ID)

	require.NoError(t, st.UpdateRowData(ctx, table.ID, ids[0], map[string]any{"n": 10, "flag": true}))
	got, err = st.GetRow(ctx, table.ID, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "10", text(got.Data["n"]))
	assert.Equal(t, true, got.Data["flag"])
	assert.NotContains(t, got.Data, "label")

	assert.ErrorIs(t, st.UpdateRowData(ctx, table.ID, "missing", map[string]any{}), store.ErrNotFound)

	deleted, err := st.DeleteRows(ctx, table.ID, []string{ids[0], ids[1], "missing"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	deleted, err = st.DeleteAllRows(ctx, table.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, deleted)

	n, err = st.CountRows(ctx, other.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "other tables are untouched")
}

func testRenameAndDropKey(t *testing.T, st store.Store) {
	ctx := context.Background()
	table := newTable(t, st, "alice", model.TableTypeData, model.VisibilityPrivate)
	withKey := newRow(t, st, table.ID, map[string]any{"old": true, "keep": "x"})
	withoutKey := newRow(t, st, table.ID, map[string]any{"keep": "y"})

	require.NoError(t, st.RenameDataKey(ctx, table.ID, "old", "new"))

	got, err := st.GetRow(ctx, table.ID, withKey.ID)
	require.NoError(t, err)
	assert.NotContains(t, got.Data, "old")
	assert.Equal(t, true, got.Data["new"], "renamed values keep their JSON type")
	assert.Equal(t, "x", got.Data["keep"])

	got, err = st.GetRow(ctx, table.ID, withoutKey.ID)
	require.NoError(t, err)
	assert.NotContains(t, got.Data, "new", "rows without the key gain nothing")

	require.NoError(t, st.DropDataKey(ctx, table.ID, "keep"))
	got, err = st.GetRow(ctx, table.ID, withKey.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"new": true}, got.Data)
}

func testQueryRows(t *testing.T, st store.Store) {
	ctx := context.Background()
	a := newTable(t, st, "alice", model.TableTypeData, model.VisibilityPublic)
	b := newTable(t, st, "bob", model.TableTypeData, model.VisibilityPublic)
	hidden := newTable(t, st, "carol", model.TableTypeData, model.VisibilityPrivate)

	newRow(t, st, a.ID, map[string]any{"city": "Oslo", "open": true})
	newRow(t, st, a.ID, map[string]any{"city": "Bergen", "open": false})
	newRow(t, st, b.ID, map[string]any{"city": "OSLO", "open": true})
	newRow(t, st, hidden.ID, map[string]any{"city": "Oslo"})

	rows, total, err := st.QueryRows(ctx, store.RowQuery{
		TableIDs: []string{a.ID, b.ID},
		Where:    map[string]string{"city": "oslo"},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, rows, 2)

	rows, total, err = st.QueryRows(ctx, store.RowQuery{
		TableIDs: []string{a.ID, b.ID},
		Where:    map[string]string{"open": "TRUE"},
		Page:     store.Page{Limit: 1},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total, "total counts matches before paging")
	assert.Len(t, rows, 1)

	rows, total, err = st.QueryRows(ctx, store.RowQuery{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, rows)
}

func testValueExists(t *testing.T, st store.Store) {
	ctx := context.Background()
	table := newTable(t, st, "alice", model.TableTypeData, model.VisibilityPrivate)
	newRow(t, st, table.ID, map[string]any{"sku": "A-1", "qty": 5, "ok": true})

	tests := []struct {
		column string
		value  any
		want   bool
	}{
		{"sku", "A-1", true},
		{"sku", "a-1", false},
		{"qty", 5, true},
		{"qty", "5", false},
		{"ok", true, true},
		{"missing", "A-1", false},
	}
	for _, tt := range tests {
		got, err := st.ValueExists(ctx, table.ID, tt.column, tt.value)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "ValueExists(%s, %v)", tt.column, tt.value)
	}
}

// ============================================================================
// Transactions
// ============================================================================

var errBoom = errors.New("boom")

func testTxRollback(t *testing.T, st store.Store) {
	ctx := context.Background()
	table := newTable(t, st, "alice", model.TableTypeData, model.VisibilityPrivate)

	err := st.WithTx(ctx, func(tx store.Store) error {
		newRow(t, tx, table.ID, map[string]any{"a": 1})
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)

	n, err := st.CountRows(ctx, table.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	err = st.WithTx(ctx, func(tx store.Store) error {
		row := newRow(t, tx, table.ID, map[string]any{"a": 1})
		locked, err := tx.LockRow(ctx, table.ID, row.ID)
		if err != nil {
			return err
		}
		return tx.UpdateRowData(ctx, table.ID, locked.ID, map[string]any{"a": 2})
	})
	require.NoError(t, err)

	rows, err := st.ListRows(ctx, table.ID, store.Page{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2", text(rows[0].Data["a"]))
}

func testNestedTxRollback(t *testing.T, st store.Store) {
	ctx := context.Background()
	table := newTable(t, st, "alice", model.TableTypeData, model.VisibilityPrivate)

	err := st.WithTx(ctx, func(tx store.Store) error {
		newRow(t, tx, table.ID, map[string]any{"outer": true})
		nested := tx.WithTx(ctx, func(inner store.Store) error {
			newRow(t, inner, table.ID, map[string]any{"inner": true})
			return errBoom
		})
		assert.ErrorIs(t, nested, errBoom)
		return tx.WithTx(ctx, func(inner store.Store) error {
			newRow(t, inner, table.ID, map[string]any{"second": true})
			return nil
		})
	})
	require.NoError(t, err)

	rows, err := st.ListRows(ctx, table.ID, store.Page{})
	require.NoError(t, err)
	require.Len(t, rows, 2, "only the failed savepoint is discarded")
	assert.Contains(t, rows[0].Data, "outer")
	assert.Contains(t, rows[1].Data, "second")
}

// ============================================================================
// Ledger, sequences, sales and rentals
// ============================================================================

func testLedger(t *testing.T, st store.Store) {
	ctx := context.Background()
	minus := int64(-2)
	entries := []model.InventoryTransaction{
		{TableID: "t1", ItemID: "i1", TransactionType: model.TxAdd, NewData: map[string]any{"qty": 5}},
		{TableID: "t1", ItemID: "i1", TransactionType: model.TxSale, QuantityChange: &minus,
			PreviousData: map[string]any{"qty": 5}, NewData: map[string]any{"qty": 3}, ReferenceID: "sale-1"},
		{TableID: "t2", ItemID: "i9", TransactionType: model.TxRent},
	}
	for i := range entries {
		entries[i].ID = uuid.NewString()
		entries[i].TableName = "Inventory"
		entries[i].CreatedAt = epoch.Add(time.Duration(i) * time.Minute)
		require.NoError(t, st.AppendTransaction(ctx, &entries[i]))
	}

	all, err := st.ListTransactions(ctx, store.LedgerFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, entries[2].ID, all[0].ID, "newest first")

	sales, err := st.ListTransactions(ctx, store.LedgerFilter{TableID: "t1", Type: model.TxSale})
	require.NoError(t, err)
	require.Len(t, sales, 1)
	require.NotNil(t, sales[0].QuantityChange)
	assert.EqualValues(t, -2, *sales[0].QuantityChange)
	assert.Equal(t, "5", text(sales[0].PreviousData["qty"]))
	assert.Equal(t, "sale-1", sales[0].ReferenceID)

	window, err := st.ListTransactions(ctx, store.LedgerFilter{From: epoch, To: epoch.Add(time.Minute)})
	require.NoError(t, err)
	require.Len(t, window, 1, "To is exclusive")
	assert.Equal(t, entries[0].ID, window[0].ID)
	assert.Nil(t, window[0].QuantityChange)
	assert.Nil(t, window[0].PreviousData)
}

func testSequences(t *testing.T, st store.Store) {
	ctx := context.Background()
	for want := int64(1); want <= 3; want++ {
		got, err := st.NextSequence(ctx, model.SequenceSales, 2026)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	got, err := st.NextSequence(ctx, model.SequenceSales, 2027)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got, "each year starts over")

	got, err = st.NextSequence(ctx, model.SequenceRentals, 2026)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got, "scopes are independent")
}

func testSales(t *testing.T, st store.Store) {
	ctx := context.Background()
	sale := model.Sale{
		ID: uuid.NewString(), SaleNumber: model.SaleNumber(2026, 1),
		TableID: "t1", ItemID: "i1", CustomerID: "c1", QuantitySold: 3,
		UnitPrice: decimal.RequireFromString("19.99"), TotalAmount: decimal.RequireFromString("59.97"),
		PaymentStatus: model.PaymentStatusPending, SaleStatus: model.SaleStatusCompleted,
		CreatedAt: epoch, UpdatedAt: epoch,
	}
	require.NoError(t, st.InsertSale(ctx, &sale))

	dup := sale
	dup.ID = uuid.NewString()
	assert.ErrorIs(t, st.InsertSale(ctx, &dup), store.ErrConflict, "sale numbers are unique")

	got, err := st.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.True(t, got.UnitPrice.Equal(sale.UnitPrice))
	assert.True(t, got.TotalAmount.Equal(sale.TotalAmount))
	assert.EqualValues(t, 3, got.QuantitySold)

	got.PaymentStatus = model.PaymentStatusPaid
	got.UpdatedAt = epoch.Add(time.Hour)
	require.NoError(t, st.UpdateSale(ctx, got))
	got, err = st.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPaid, got.PaymentStatus)

	later := sale
	later.ID = uuid.NewString()
	later.SaleNumber = model.SaleNumber(2026, 2)
	later.CreatedAt = epoch.Add(time.Minute)
	require.NoError(t, st.InsertSale(ctx, &later))

	list, err := st.ListSales(ctx, store.SaleFilter{TableID: "t1"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, later.ID, list[0].ID)

	_, err = st.GetSale(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testRentals(t *testing.T, st store.Store) {
	ctx := context.Background()
	rental := model.Rental{
		ID: uuid.NewString(), RentalNumber: model.RentalNumber(2026, 1),
		TableID: "t1", ItemID: "i1", CustomerID: "c1",
		RentalStatus: model.RentalActive, RentedAt: epoch,
	}
	require.NoError(t, st.InsertRental(ctx, &rental))

	second := rental
	second.ID = uuid.NewString()
	second.RentalNumber = model.RentalNumber(2026, 2)
	assert.ErrorIs(t, st.InsertRental(ctx, &second), store.ErrConflict, "one active rental per item")

	active, err := st.FindActiveRental(ctx, "t1", "i1")
	require.NoError(t, err)
	assert.Equal(t, rental.ID, active.ID)
	assert.Nil(t, active.ReleasedAt)

	released := epoch.Add(time.Hour)
	active.RentalStatus = model.RentalReleased
	active.ReleasedAt = &released
	require.NoError(t, st.UpdateRental(ctx, active))

	_, err = st.FindActiveRental(ctx, "t1", "i1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	got, err := st.GetRental(ctx, rental.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ReleasedAt)
	assert.True(t, got.ReleasedAt.Equal(released))

	require.NoError(t, st.InsertRental(ctx, &second), "item can be rented again once released")

	list, err := st.ListRentals(ctx, store.RentalFilter{ItemID: "i1", Status: model.RentalReleased})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, rental.ID, list[0].ID)
}
