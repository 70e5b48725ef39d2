package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/tabled/internal/model"
	"github.com/JonMunkholm/tabled/internal/store"
)

// ============================================================================
// Ledger
// ============================================================================

type transactionRecord struct {
	ID              string         `db:"id"`
	TableID         string         `db:"table_id"`
	TableName       string         `db:"table_name"`
	ItemID          string         `db:"item_id"`
	TransactionType string         `db:"transaction_type"`
	QuantityChange  sql.NullInt64  `db:"quantity_change"`
	PreviousData    sql.NullString `db:"previous_data"`
	NewData         sql.NullString `db:"new_data"`
	ReferenceID     string         `db:"reference_id"`
	Notes           string         `db:"notes"`
	CreatedBy       string         `db:"created_by"`
	CreatedAt       time.Time      `db:"created_at"`
}

const transactionColumns = `id, table_id, table_name, item_id, transaction_type, quantity_change,
	previous_data, new_data, reference_id, notes, created_by, created_at`

func (s *Store) AppendTransaction(ctx context.Context, t *model.InventoryTransaction) error {
	rec := transactionRecord{
		ID:              t.ID,
		TableID:         t.TableID,
		TableName:       t.TableName,
		ItemID:          t.ItemID,
		TransactionType: string(t.TransactionType),
		ReferenceID:     t.ReferenceID,
		Notes:           t.Notes,
		CreatedBy:       t.CreatedBy,
		CreatedAt:       t.CreatedAt,
	}
	if t.QuantityChange != nil {
		rec.QuantityChange = sql.NullInt64{Int64: *t.QuantityChange, Valid: true}
	}
	if t.PreviousData != nil {
		doc, err := encodeDocument(t.PreviousData)
		if err != nil {
			return err
		}
		rec.PreviousData = sql.NullString{String: doc, Valid: true}
	}
	if t.NewData != nil {
		doc, err := encodeDocument(t.NewData)
		if err != nil {
			return err
		}
		rec.NewData = sql.NullString{String: doc, Valid: true}
	}

	_, err := sqlx.NamedExecContext(ctx, s.ext, `
		INSERT INTO inventory_transactions (`+transactionColumns+`)
		VALUES (:id, :table_id, :table_name, :item_id, :transaction_type, :quantity_change,
			:previous_data, :new_data, :reference_id, :notes, :created_by, :created_at)`, rec)
	if err != nil {
		return fmt.Errorf("insert inventory transaction: %w", mapError(err))
	}
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, f store.LedgerFilter) ([]model.InventoryTransaction, error) {
	var (
		conds []string
		args  []any
	)
	if f.TableID != "" {
		conds = append(conds, "table_id = ?")
		args = append(args, f.TableID)
	}
	if f.ItemID != "" {
		conds = append(conds, "item_id = ?")
		args = append(args, f.ItemID)
	}
	if f.Type != "" {
		conds = append(conds, "transaction_type = ?")
		args = append(args, string(f.Type))
	}
	if !f.From.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		conds = append(conds, "created_at < ?")
		args = append(args, f.To.UTC())
	}

	query := `SELECT ` + transactionColumns + ` FROM inventory_transactions`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC" + limitClause(f.Page)

	var recs []transactionRecord
	if err := sqlx.SelectContext(ctx, s.ext, &recs, query, args...); err != nil {
		return nil, fmt.Errorf("list inventory transactions: %w", err)
	}

	out := make([]model.InventoryTransaction, 0, len(recs))
	for _, r := range recs {
		t := model.InventoryTransaction{
			ID:              r.ID,
			TableID:         r.TableID,
			TableName:       r.TableName,
			ItemID:          r.ItemID,
			TransactionType: model.TransactionType(r.TransactionType),
			ReferenceID:     r.ReferenceID,
			Notes:           r.Notes,
			CreatedBy:       r.CreatedBy,
			CreatedAt:       r.CreatedAt.UTC(),
		}
		if r.QuantityChange.Valid {
			q := r.QuantityChange.Int64
			t.QuantityChange = &q
		}
		if r.PreviousData.Valid {
			doc, err := decodeDocument(r.PreviousData.String)
			if err != nil {
				return nil, fmt.Errorf("decode previous data: %w", err)
			}
			t.PreviousData = doc
		}
		if r.NewData.Valid {
			doc, err := decodeDocument(r.NewData.String)
			if err != nil {
				return nil, fmt.Errorf("decode new data: %w", err)
			}
			t.NewData = doc
		}
		out = append(out, t)
	}
	return out, nil
}

// ============================================================================
// Sequences
// ============================================================================

func (s *Store) NextSequence(ctx context.Context, scope string, year int) (int64, error) {
	var next int64
	err := sqlx.GetContext(ctx, s.ext, &next, `
		INSERT INTO document_sequences (scope, year, value) VALUES (?, ?, 1)
		ON CONFLICT (scope, year) DO UPDATE SET value = value + 1
		RETURNING value`, scope, year)
	if err != nil {
		return 0, fmt.Errorf("next sequence %s/%d: %w", scope, year, err)
	}
	return next, nil
}

// ============================================================================
// Sales
// ============================================================================

type saleRecord struct {
	ID            string    `db:"id"`
	SaleNumber    string    `db:"sale_number"`
	TableID       string    `db:"table_id"`
	ItemID        string    `db:"item_id"`
	CustomerID    string    `db:"customer_id"`
	QuantitySold  int64     `db:"quantity_sold"`
	UnitPrice     string    `db:"unit_price"`
	TotalAmount   string    `db:"total_amount"`
	PaymentMethod string    `db:"payment_method"`
	PaymentStatus string    `db:"payment_status"`
	SaleStatus    string    `db:"sale_status"`
	Notes         string    `db:"notes"`
	CreatedBy     string    `db:"created_by"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func newSaleRecord(s *model.Sale) saleRecord {
	return saleRecord{
		ID:            s.ID,
		SaleNumber:    s.SaleNumber,
		TableID:       s.TableID,
		ItemID:        s.ItemID,
		CustomerID:    s.CustomerID,
		QuantitySold:  s.QuantitySold,
		UnitPrice:     s.UnitPrice.StringFixed(2),
		TotalAmount:   s.TotalAmount.StringFixed(2),
		PaymentMethod: s.PaymentMethod,
		PaymentStatus: s.PaymentStatus,
		SaleStatus:    s.SaleStatus,
		Notes:         s.Notes,
		CreatedBy:     s.CreatedBy,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

func (r saleRecord) model() (model.Sale, error) {
	price, err := decimal.NewFromString(r.UnitPrice)
	if err != nil {
		return model.Sale{}, fmt.Errorf("decode unit price: %w", err)
	}
	total, err := decimal.NewFromString(r.TotalAmount)
	if err != nil {
		return model.Sale{}, fmt.Errorf("decode total amount: %w", err)
	}
	return model.Sale{
		ID:            r.ID,
		SaleNumber:    r.SaleNumber,
		TableID:       r.TableID,
		ItemID:        r.ItemID,
		CustomerID:    r.CustomerID,
		QuantitySold:  r.QuantitySold,
		UnitPrice:     price,
		TotalAmount:   total,
		PaymentMethod: r.PaymentMethod,
		PaymentStatus: r.PaymentStatus,
		SaleStatus:    r.SaleStatus,
		Notes:         r.Notes,
		CreatedBy:     r.CreatedBy,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}, nil
}

const saleColumns = `id, sale_number, table_id, item_id, customer_id, quantity_sold, unit_price, total_amount,
	payment_method, payment_status, sale_status, notes, created_by, created_at, updated_at`

func (s *Store) InsertSale(ctx context.Context, sale *model.Sale) error {
	_, err := sqlx.NamedExecContext(ctx, s.ext, `
		INSERT INTO sales (`+saleColumns+`)
		VALUES (:id, :sale_number, :table_id, :item_id, :customer_id, :quantity_sold, :unit_price, :total_amount,
			:payment_method, :payment_status, :sale_status, :notes, :created_by, :created_at, :updated_at)`,
		newSaleRecord(sale))
	if err != nil {
		return fmt.Errorf("insert sale: %w", mapError(err))
	}
	return nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*model.Sale, error) {
	var rec saleRecord
	if err := sqlx.GetContext(ctx, s.ext, &rec, `SELECT `+saleColumns+` FROM sales WHERE id = ?`, id); err != nil {
		return nil, mapError(err)
	}
	sale, err := rec.model()
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) UpdateSale(ctx context.Context, sale *model.Sale) error {
	res, err := sqlx.NamedExecContext(ctx, s.ext, `
		UPDATE sales
		SET payment_method = :payment_method, payment_status = :payment_status,
		    sale_status = :sale_status, notes = :notes, updated_at = :updated_at
		WHERE id = :id`, newSaleRecord(sale))
	if err != nil {
		return fmt.Errorf("update sale: %w", mapError(err))
	}
	return requireAffected(res)
}

func (s *Store) ListSales(ctx context.Context, f store.SaleFilter) ([]model.Sale, error) {
	var (
		conds []string
		args  []any
	)
	if f.TableID != "" {
		conds = append(conds, "table_id = ?")
		args = append(args, f.TableID)
	}
	if f.ItemID != "" {
		conds = append(conds, "item_id = ?")
		args = append(args, f.ItemID)
	}
	query := `SELECT ` + saleColumns + ` FROM sales`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, sale_number DESC" + limitClause(f.Page)

	var recs []saleRecord
	if err := sqlx.SelectContext(ctx, s.ext, &recs, query, args...); err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	out := make([]model.Sale, 0, len(recs))
	for _, r := range recs {
		sale, err := r.model()
		if err != nil {
			return nil, err
		}
		out = append(out, sale)
	}
	return out, nil
}

// ============================================================================
// Rentals
// ============================================================================

type rentalRecord struct {
	ID           string       `db:"id"`
	RentalNumber string       `db:"rental_number"`
	TableID      string       `db:"table_id"`
	ItemID       string       `db:"item_id"`
	CustomerID   string       `db:"customer_id"`
	RentalStatus string       `db:"rental_status"`
	Notes        string       `db:"notes"`
	RentedAt     time.Time    `db:"rented_at"`
	ReleasedAt   sql.NullTime `db:"released_at"`
	CreatedBy    string       `db:"created_by"`
}

func newRentalRecord(r *model.Rental) rentalRecord {
	rec := rentalRecord{
		ID:           r.ID,
		RentalNumber: r.RentalNumber,
		TableID:      r.TableID,
		ItemID:       r.ItemID,
		CustomerID:   r.CustomerID,
		RentalStatus: r.RentalStatus,
		Notes:        r.Notes,
		RentedAt:     r.RentedAt,
		CreatedBy:    r.CreatedBy,
	}
	if r.ReleasedAt != nil {
		rec.ReleasedAt = sql.NullTime{Time: *r.ReleasedAt, Valid: true}
	}
	return rec
}

func (r rentalRecord) model() model.Rental {
	out := model.Rental{
		ID:           r.ID,
		RentalNumber: r.RentalNumber,
		TableID:      r.TableID,
		ItemID:       r.ItemID,
		CustomerID:   r.CustomerID,
		RentalStatus: r.RentalStatus,
		Notes:        r.Notes,
		RentedAt:     r.RentedAt.UTC(),
		CreatedBy:    r.CreatedBy,
	}
	if r.ReleasedAt.Valid {
		t := r.ReleasedAt.Time.UTC()
		out.ReleasedAt = &t
	}
	return out
}

const rentalColumns = `id, rental_number, table_id, item_id, customer_id, rental_status, notes, rented_at, released_at, created_by`

func (s *Store) InsertRental(ctx context.Context, r *model.Rental) error {
	_, err := sqlx.NamedExecContext(ctx, s.ext, `
		INSERT INTO rentals (`+rentalColumns+`)
		VALUES (:id, :rental_number, :table_id, :item_id, :customer_id, :rental_status, :notes, :rented_at, :released_at, :created_by)`,
		newRentalRecord(r))
	if err != nil {
		return fmt.Errorf("insert rental: %w", mapError(err))
	}
	return nil
}

func (s *Store) GetRental(ctx context.Context, id string) (*model.Rental, error) {
	var rec rentalRecord
	if err := sqlx.GetContext(ctx, s.ext, &rec, `SELECT `+rentalColumns+` FROM rentals WHERE id = ?`, id); err != nil {
		return nil, mapError(err)
	}
	r := rec.model()
	return &r, nil
}

func (s *Store) UpdateRental(ctx context.Context, r *model.Rental) error {
	res, err := sqlx.NamedExecContext(ctx, s.ext, `
		UPDATE rentals
		SET rental_status = :rental_status, notes = :notes, released_at = :released_at
		WHERE id = :id`, newRentalRecord(r))
	if err != nil {
		return fmt.Errorf("update rental: %w", mapError(err))
	}
	return requireAffected(res)
}

func (s *Store) FindActiveRental(ctx context.Context, tableID, itemID string) (*model.Rental, error) {
	var rec rentalRecord
	err := sqlx.GetContext(ctx, s.ext, &rec, `
		SELECT `+rentalColumns+` FROM rentals
		WHERE table_id = ? AND item_id = ? AND rental_status = 'active'
		ORDER BY rented_at DESC LIMIT 1`, tableID, itemID)
	if err != nil {
		return nil, mapError(err)
	}
	r := rec.model()
	return &r, nil
}

func (s *Store) ListRentals(ctx context.Context, f store.RentalFilter) ([]model.Rental, error) {
	var (
		conds []string
		args  []any
	)
	if f.TableID != "" {
		conds = append(conds, "table_id = ?")
		args = append(args, f.TableID)
	}
	if f.ItemID != "" {
		conds = append(conds, "item_id = ?")
		args = append(args, f.ItemID)
	}
	if f.Status != "" {
		conds = append(conds, "rental_status = ?")
		args = append(args, f.Status)
	}
	query := `SELECT ` + rentalColumns + ` FROM rentals`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY rented_at DESC, rental_number DESC" + limitClause(f.Page)

	var recs []rentalRecord
	if err := sqlx.SelectContext(ctx, s.ext, &recs, query, args...); err != nil {
		return nil, fmt.Errorf("list rentals: %w", err)
	}
	out := make([]model.Rental, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.model())
	}
	return out, nil
}
