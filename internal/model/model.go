// Package model holds the persisted domain types shared by the core services,
// the storage backends and the HTTP layer.
package model

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TableType selects the semantics attached to a user table.
type TableType string

const (
	TableTypeData TableType = "data"
	TableTypeSale TableType = "sale"
	TableTypeRent TableType = "rent"
)

// Valid reports whether t is a known table type.
func (t TableType) Valid() bool {
	switch t {
	case TableTypeData, TableTypeSale, TableTypeRent:
		return true
	}
	return false
}

// Visibility controls who may read a table through the public catalog.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
	VisibilityShared  Visibility = "shared"
)

// Valid reports whether v is a known visibility.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPrivate, VisibilityPublic, VisibilityShared:
		return true
	}
	return false
}

// Table is a user-defined schema owned by one user.
type Table struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	OwnerID     string     `json:"ownerId"`
	TableType   TableType  `json:"tableType"`
	Visibility  Visibility `json:"visibility"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Column describes one field of a Table.
type Column struct {
	ID              string   `json:"id"`
	TableID         string   `json:"tableId"`
	Name            string   `json:"name"`
	Type            string   `json:"type"`
	IsRequired      bool     `json:"isRequired"`
	AllowDuplicates bool     `json:"allowDuplicates"`
	DefaultValue    *string  `json:"defaultValue,omitempty"`
	Position        int      `json:"position"`
	Options         []string `json:"options,omitempty"`
}

// HasOption reports whether value is one of the column's select options,
// compared case-insensitively.
func (c Column) HasOption(value string) bool {
	return slices.ContainsFunc(c.Options, func(o string) bool {
		return strings.EqualFold(strings.TrimSpace(o), strings.TrimSpace(value))
	})
}

// FindColumn returns the column whose name matches name case-insensitively.
func FindColumn(columns []Column, name string) (Column, bool) {
	for _, c := range columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

// Row is one record of a Table. Data keys are column names.
type Row struct {
	ID        string         `json:"id"`
	TableID   string         `json:"tableId"`
	Data      map[string]any `json:"data"`
	CreatedBy string         `json:"createdBy,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// TransactionType classifies an inventory ledger entry.
type TransactionType string

const (
	TxSale    TransactionType = "sale"
	TxRent    TransactionType = "rent"
	TxRelease TransactionType = "release"
	TxAdd     TransactionType = "add"
	TxRemove  TransactionType = "remove"
	TxUpdate  TransactionType = "update"
	TxAdjust  TransactionType = "adjust"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TxSale, TxRent, TxRelease, TxAdd, TxRemove, TxUpdate, TxAdjust:
		return true
	}
	return false
}

// InventoryTransaction is an append-only ledger entry describing one
// inventory-affecting event, with the item state before and after.
type InventoryTransaction struct {
	ID              string          `json:"id"`
	TableID         string          `json:"tableId"`
	TableName       string          `json:"tableName"`
	ItemID          string          `json:"itemId"`
	TransactionType TransactionType `json:"transactionType"`
	QuantityChange  *int64          `json:"quantityChange,omitempty"`
	PreviousData    map[string]any  `json:"previousData,omitempty"`
	NewData         map[string]any  `json:"newData,omitempty"`
	ReferenceID     string          `json:"referenceId,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	CreatedBy       string          `json:"createdBy,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// Sale statuses.
const (
	SaleStatusPending   = "pending"
	SaleStatusCompleted = "completed"
	SaleStatusCancelled = "cancelled"
	SaleStatusRefunded  = "refunded"
)

// Payment statuses.
const (
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusFailed   = "failed"
	PaymentStatusRefunded = "refunded"
)

// Sale records a completed purchase of one item.
type Sale struct {
	ID            string          `json:"id"`
	SaleNumber    string          `json:"saleNumber"`
	TableID       string          `json:"tableId"`
	ItemID        string          `json:"itemId"`
	CustomerID    string          `json:"customerId"`
	QuantitySold  int64           `json:"quantitySold"`
	UnitPrice     decimal.Decimal `json:"unitPrice"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	PaymentMethod string          `json:"paymentMethod,omitempty"`
	PaymentStatus string          `json:"paymentStatus"`
	SaleStatus    string          `json:"saleStatus"`
	Notes         string          `json:"notes,omitempty"`
	CreatedBy     string          `json:"createdBy,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Rental statuses.
const (
	RentalActive    = "active"
	RentalReleased  = "released"
	RentalCancelled = "cancelled"
)

// Rental tracks one item lent to a customer.
type Rental struct {
	ID           string     `json:"id"`
	RentalNumber string     `json:"rentalNumber"`
	TableID      string     `json:"tableId"`
	ItemID       string     `json:"itemId"`
	CustomerID   string     `json:"customerId"`
	RentalStatus string     `json:"rentalStatus"`
	Notes        string     `json:"notes,omitempty"`
	RentedAt     time.Time  `json:"rentedAt"`
	ReleasedAt   *time.Time `json:"releasedAt,omitempty"`
	CreatedBy    string     `json:"createdBy,omitempty"`
}

// Sequence scopes used for human-readable document numbers.
const (
	SequenceSales   = "sales"
	SequenceRentals = "rentals"
)

// SaleNumber formats the per-year sale number, e.g. S-2026-000042.
func SaleNumber(year int, seq int64) string {
	return fmt.Sprintf("S-%d-%06d", year, seq)
}

// RentalNumber formats the per-year rental number, e.g. R-2026-000007.
func RentalNumber(year int, seq int64) string {
	return fmt.Sprintf("R-%d-%06d", year, seq)
}

// UserContext is the authenticated caller as handed over by the upstream
// auth layer. A nil AllowedTables means the caller is not restricted to an
// explicit table list.
type UserContext struct {
	UserID        string   `json:"userId"`
	Email         string   `json:"email,omitempty"`
	AllowedTables []string `json:"allowedTables,omitempty"`
}

// Restricted reports whether the caller carries an explicit table list.
func (u UserContext) Restricted() bool {
	return u.AllowedTables != nil
}

// CanAccess reports whether the caller may read table t through the public
// catalog: either t is listed in AllowedTables, or the caller is unrestricted
// and t is public or shared.
func (u UserContext) CanAccess(t Table) bool {
	if u.Restricted() {
		return slices.Contains(u.AllowedTables, t.ID)
	}
	return t.Visibility == VisibilityPublic || t.Visibility == VisibilityShared
}

// Owns reports whether the caller owns t.
func (u UserContext) Owns(t Table) bool {
	return u.UserID != "" && u.UserID == t.OwnerID
}
