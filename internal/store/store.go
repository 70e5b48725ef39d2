// Package store defines the persistence contract the core services depend
// on. Implementations live in the postgres, sqlite and memory subpackages.
//
// All methods take a context and are safe to call from multiple goroutines.
// WithTx runs fn against a transaction-scoped Store; calling WithTx on that
// scoped Store opens a nested transaction (a savepoint) whose failure rolls
// back only the nested work.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/JonMunkholm/tabled/internal/model"
)

// Sentinel errors returned by every implementation. Callers use errors.Is.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// Store is the full persistence surface.
type Store interface {
	TableStore
	RowStore
	LedgerStore
	CommerceStore

	// WithTx runs fn inside a transaction. If fn returns an error the
	// transaction is rolled back and the error returned unchanged.
	WithTx(ctx context.Context, fn func(tx Store) error) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying handle. Only the root Store may be closed.
	Close() error
}

// TableStore persists table and column metadata.
type TableStore interface {
	CreateTable(ctx context.Context, t *model.Table) error
	GetTable(ctx context.Context, id string) (*model.Table, error)
	ListTables(ctx context.Context, f TableFilter) ([]model.Table, error)
	UpdateTable(ctx context.Context, t *model.Table) error

	ListColumns(ctx context.Context, tableID string) ([]model.Column, error)
	CreateColumn(ctx context.Context, c *model.Column) error
	UpdateColumn(ctx context.Context, c *model.Column) error
	DeleteColumn(ctx context.Context, tableID, columnID string) error
}

// RowStore persists row documents.
type RowStore interface {
	InsertRow(ctx context.Context, r *model.Row) error
	GetRow(ctx context.Context, tableID, rowID string) (*model.Row, error)

	// LockRow reads a row and holds a write lock on it until the enclosing
	// transaction ends. Outside a transaction it behaves like GetRow.
	LockRow(ctx context.Context, tableID, rowID string) (*model.Row, error)

	UpdateRowData(ctx context.Context, tableID, rowID string, data map[string]any) error
	ListRows(ctx context.Context, tableID string, page Page) ([]model.Row, error)
	CountRows(ctx context.Context, tableID string) (int64, error)
	DeleteRows(ctx context.Context, tableID string, rowIDs []string) (int64, error)
	DeleteAllRows(ctx context.Context, tableID string) (int64, error)

	// RenameDataKey moves the value stored under oldKey to newKey in every
	// row of the table.
	RenameDataKey(ctx context.Context, tableID, oldKey, newKey string) error

	// DropDataKey removes key from every row of the table.
	DropDataKey(ctx context.Context, tableID, key string) error

	// QueryRows returns rows from the listed tables whose data matches every
	// Where entry by case-insensitive equality of the stored text, together
	// with the total number of matches before paging.
	QueryRows(ctx context.Context, q RowQuery) ([]model.Row, int64, error)

	// ValueExists reports whether any row stores value under column. Values
	// compare by their JSON encoding.
	ValueExists(ctx context.Context, tableID, column string, value any) (bool, error)
}

// LedgerStore persists the append-only inventory ledger.
type LedgerStore interface {
	AppendTransaction(ctx context.Context, t *model.InventoryTransaction) error
	ListTransactions(ctx context.Context, f LedgerFilter) ([]model.InventoryTransaction, error)
}

// CommerceStore persists sales, rentals and the per-year document sequences.
type CommerceStore interface {
	// NextSequence returns the next value of the (scope, year) counter,
	// starting at 1.
	NextSequence(ctx context.Context, scope string, year int) (int64, error)

	InsertSale(ctx context.Context, s *model.Sale) error
	GetSale(ctx context.Context, id string) (*model.Sale, error)
	UpdateSale(ctx context.Context, s *model.Sale) error
	ListSales(ctx context.Context, f SaleFilter) ([]model.Sale, error)

	InsertRental(ctx context.Context, r *model.Rental) error
	GetRental(ctx context.Context, id string) (*model.Rental, error)
	UpdateRental(ctx context.Context, r *model.Rental) error
	FindActiveRental(ctx context.Context, tableID, itemID string) (*model.Rental, error)
	ListRentals(ctx context.Context, f RentalFilter) ([]model.Rental, error)
}

// Page bounds a listing. A zero Limit means no limit.
type Page struct {
	Limit  int
	Offset int
}

// TableFilter narrows ListTables. Empty fields match everything.
type TableFilter struct {
	OwnerID      string
	IDs          []string
	Types        []model.TableType
	Visibilities []model.Visibility
}

// RowQuery selects rows across tables for the public records listing.
type RowQuery struct {
	TableIDs []string
	Where    map[string]string
	Page     Page
}

// LedgerFilter narrows ListTransactions. Results are newest first.
type LedgerFilter struct {
	TableID string
	ItemID  string
	Type    model.TransactionType
	From    time.Time
	To      time.Time
	Page    Page
}

// SaleFilter narrows ListSales. Results are newest first.
type SaleFilter struct {
	TableID string
	ItemID  string
	Page    Page
}

// RentalFilter narrows ListRentals. Results are newest first.
type RentalFilter struct {
	TableID string
	ItemID  string
	Status  string
	Page    Page
}
