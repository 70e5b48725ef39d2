package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/tabled/internal/model"
	"github.com/JonMunkholm/tabled/internal/store"
)

// ============================================================================
// Ledger
// ============================================================================

const transactionColumns = `id, table_id, table_name, item_id, transaction_type, quantity_change,
	previous_data, new_data, reference_id, notes, created_by, created_at`

func (s *Store) AppendTransaction(ctx context.Context, t *model.InventoryTransaction) error {
	var prev, next []byte
	if t.PreviousData != nil {
		b, err := encodeDocument(t.PreviousData)
		if err != nil {
			return err
		}
		prev = b
	}
	if t.NewData != nil {
		b, err := encodeDocument(t.NewData)
		if err != nil {
			return err
		}
		next = b
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO inventory_transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		t.ID, t.TableID, t.TableName, t.ItemID, string(t.TransactionType), t.QuantityChange,
		prev, next, t.ReferenceID, t.Notes, t.CreatedBy, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert inventory transaction: %w", mapError(err))
	}
	return nil
}

func scanTransaction(row pgx.CollectableRow) (model.InventoryTransaction, error) {
	var (
		t          model.InventoryTransaction
		txType     string
		prev, next []byte
	)
	if err := row.Scan(&t.ID, &t.TableID, &t.TableName, &t.ItemID, &txType, &t.QuantityChange,
		&prev, &next, &t.ReferenceID, &t.Notes, &t.CreatedBy, &t.CreatedAt); err != nil {
		return t, err
	}
	t.TransactionType = model.TransactionType(txType)
	t.CreatedAt = t.CreatedAt.UTC()
	if prev != nil {
		doc, err := decodeDocument(prev)
		if err != nil {
			return t, fmt.Errorf("decode previous data: %w", err)
		}
		t.PreviousData = doc
	}
	if next != nil {
		doc, err := decodeDocument(next)
		if err != nil {
			return t, fmt.Errorf("decode new data: %w", err)
		}
		t.NewData = doc
	}
	return t, nil
}

func (s *Store) ListTransactions(ctx context.Context, f store.LedgerFilter) ([]model.InventoryTransaction, error) {
	var w whereBuilder
	if f.TableID != "" {
		w.add("table_id = $?", f.TableID)
	}
	if f.ItemID != "" {
		w.add("item_id = $?", f.ItemID)
	}
	if f.Type != "" {
		w.add("transaction_type = $?", string(f.Type))
	}
	if !f.From.IsZero() {
		w.add("created_at >= $?", f.From.UTC())
	}
	if !f.To.IsZero() {
		w.add("created_at < $?", f.To.UTC())
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+transactionColumns+` FROM inventory_transactions`+w.String()+
			` ORDER BY created_at DESC, id DESC`+limitClause(f.Page), w.args...)
	if err != nil {
		return nil, fmt.Errorf("list inventory transactions: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanTransaction)
	if err != nil {
		return nil, fmt.Errorf("list inventory transactions: %w", err)
	}
	return out, nil
}

// ============================================================================
// Sequences
// ============================================================================

func (s *Store) NextSequence(ctx context.Context, scope string, year int) (int64, error) {
	var next int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO document_sequences (scope, year, value) VALUES ($1, $2, 1)
		ON CONFLICT (scope, year) DO UPDATE SET value = document_sequences.value + 1
		RETURNING value`, scope, year).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next sequence %s/%d: %w", scope, year, err)
	}
	return next, nil
}

// ============================================================================
// Sales
// ============================================================================

// Money columns travel as text so NUMERIC precision never passes through a
// float.
const saleColumns = `id, sale_number, table_id, item_id, customer_id, quantity_sold, unit_price::text, total_amount::text,
	payment_method, payment_status, sale_status, notes, created_by, created_at, updated_at`

func scanSale(row pgx.CollectableRow) (model.Sale, error) {
	var (
		sale         model.Sale
		price, total string
	)
	if err := row.Scan(&sale.ID, &sale.SaleNumber, &sale.TableID, &sale.ItemID, &sale.CustomerID, &sale.QuantitySold,
		&price, &total, &sale.PaymentMethod, &sale.PaymentStatus, &sale.SaleStatus, &sale.Notes,
		&sale.CreatedBy, &sale.CreatedAt, &sale.UpdatedAt); err != nil {
		return sale, err
	}
	var err error
	if sale.UnitPrice, err = decimal.NewFromString(price); err != nil {
		return sale, fmt.Errorf("decode unit price: %w", err)
	}
	if sale.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return sale, fmt.Errorf("decode total amount: %w", err)
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	sale.UpdatedAt = sale.UpdatedAt.UTC()
	return sale, nil
}

func (s *Store) InsertSale(ctx context.Context, sale *model.Sale) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO sales (id, sale_number, table_id, item_id, customer_id, quantity_sold, unit_price, total_amount,
			payment_method, payment_status, sale_status, notes, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::text::numeric, $8::text::numeric, $9, $10, $11, $12, $13, $14, $15)`,
		sale.ID, sale.SaleNumber, sale.TableID, sale.ItemID, sale.CustomerID, sale.QuantitySold,
		sale.UnitPrice.StringFixed(2), sale.TotalAmount.StringFixed(2),
		sale.PaymentMethod, sale.PaymentStatus, sale.SaleStatus, sale.Notes, sale.CreatedBy, sale.CreatedAt, sale.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert sale: %w", mapError(err))
	}
	return nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*model.Sale, error) {
	rows, err := s.db.Query(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get sale: %w", err)
	}
	sale, err := pgx.CollectExactlyOneRow(rows, scanSale)
	if err != nil {
		return nil, mapError(err)
	}
	return &sale, nil
}

func (s *Store) UpdateSale(ctx context.Context, sale *model.Sale) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE sales
		SET payment_method = $2, payment_status = $3, sale_status = $4, notes = $5, updated_at = $6
		WHERE id = $1`,
		sale.ID, sale.PaymentMethod, sale.PaymentStatus, sale.SaleStatus, sale.Notes, sale.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update sale: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListSales(ctx context.Context, f store.SaleFilter) ([]model.Sale, error) {
	var w whereBuilder
	if f.TableID != "" {
		w.add("table_id = $?", f.TableID)
	}
	if f.ItemID != "" {
		w.add("item_id = $?", f.ItemID)
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+saleColumns+` FROM sales`+w.String()+` ORDER BY created_at DESC, sale_number DESC`+limitClause(f.Page),
		w.args...)
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanSale)
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	return out, nil
}

// ============================================================================
// Rentals
// ============================================================================

const rentalColumns = `id, rental_number, table_id, item_id, customer_id, rental_status, notes, rented_at, released_at, created_by`

func scanRental(row pgx.CollectableRow) (model.Rental, error) {
	var r model.Rental
	if err := row.Scan(&r.ID, &r.RentalNumber, &r.TableID, &r.ItemID, &r.CustomerID, &r.RentalStatus,
		&r.Notes, &r.RentedAt, &r.ReleasedAt, &r.CreatedBy); err != nil {
		return r, err
	}
	r.RentedAt = r.RentedAt.UTC()
	if r.ReleasedAt != nil {
		t := r.ReleasedAt.UTC()
		r.ReleasedAt = &t
	}
	return r, nil
}

func (s *Store) InsertRental(ctx context.Context, r *model.Rental) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO rentals (`+rentalColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID, r.RentalNumber, r.TableID, r.ItemID, r.CustomerID, r.RentalStatus, r.Notes, r.RentedAt, r.ReleasedAt, r.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert rental: %w", mapError(err))
	}
	return nil
}

func (s *Store) GetRental(ctx context.Context, id string) (*model.Rental, error) {
	rows, err := s.db.Query(ctx, `SELECT `+rentalColumns+` FROM rentals WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get rental: %w", err)
	}
	r, err := pgx.CollectExactlyOneRow(rows, scanRental)
	if err != nil {
		return nil, mapError(err)
	}
	return &r, nil
}

func (s *Store) UpdateRental(ctx context.Context, r *model.Rental) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE rentals SET rental_status = $2, notes = $3, released_at = $4
		WHERE id = $1`, r.ID, r.RentalStatus, r.Notes, r.ReleasedAt)
	if err != nil {
		return fmt.Errorf("update rental: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) FindActiveRental(ctx context.Context, tableID, itemID string) (*model.Rental, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+rentalColumns+` FROM rentals
		WHERE table_id = $1 AND item_id = $2 AND rental_status = 'active'
		ORDER BY rented_at DESC LIMIT 1`, tableID, itemID)
	if err != nil {
		return nil, fmt.Errorf("find active rental: %w", err)
	}
	r, err := pgx.CollectExactlyOneRow(rows, scanRental)
	if err != nil {
		return nil, mapError(err)
	}
	return &r, nil
}

func (s *Store) ListRentals(ctx context.Context, f store.RentalFilter) ([]model.Rental, error) {
	var w whereBuilder
	if f.TableID != "" {
		w.add("table_id = $?", f.TableID)
	}
	if f.ItemID != "" {
		w.add("item_id = $?", f.ItemID)
	}
	if f.Status != "" {
		w.add("rental_status = $?", f.Status)
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+rentalColumns+` FROM rentals`+w.String()+` ORDER BY rented_at DESC, rental_number DESC`+limitClause(f.Page),
		w.args...)
	if err != nil {
		return nil, fmt.Errorf("list rentals: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanRental)
	if err != nil {
		return nil, fmt.Errorf("list rentals: %w", err)
	}
	return out, nil
}
