package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/JonMunkholm/tabled/internal/model"
	"github.com/JonMunkholm/tabled/internal/store"
)

// ============================================================================
// Ledger
// ============================================================================

func (s *Store) AppendTransaction(ctx context.Context, t *model.InventoryTransaction) error {
	return s.write(ctx, func(st *state) error {
		entry := *t
		entry.PreviousData = store.CloneData(t.PreviousData)
		entry.NewData = store.CloneData(t.NewData)
		st.appendLedger(entry)
		return nil
	})
}

func (s *Store) ListTransactions(ctx context.Context, f store.LedgerFilter) ([]model.InventoryTransaction, error) {
	var out []model.InventoryTransaction
	err := s.read(ctx, func(st *state) error {
		for i := len(st.ledger) - 1; i >= 0; i-- {
			t := st.ledger[i]
			if f.TableID != "" && t.TableID != f.TableID {
				continue
			}
			if f.ItemID != "" && t.ItemID != f.ItemID {
				continue
			}
			if f.Type != "" && t.TransactionType != f.Type {
				continue
			}
			if !f.From.IsZero() && t.CreatedAt.Before(f.From) {
				continue
			}
			if !f.To.IsZero() && !t.CreatedAt.Before(f.To) {
				continue
			}
			out = append(out, t)
		}
		return nil
	})
	slices.SortStableFunc(out, func(a, b model.InventoryTransaction) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return paginate(out, f.Page), err
}

// ============================================================================
// Sequences
// ============================================================================

func (s *Store) NextSequence(ctx context.Context, scope string, year int) (int64, error) {
	var next int64
	err := s.write(ctx, func(st *state) error {
		key := fmt.Sprintf("%s/%d", scope, year)
		next = st.sequences[key] + 1
		put(st, st.sequences, key, next)
		return nil
	})
	return next, err
}

// ============================================================================
// Sales
// ============================================================================

func (s *Store) InsertSale(ctx context.Context, sale *model.Sale) error {
	return s.write(ctx, func(st *state) error {
		for _, existing := range st.sales {
			if existing.ID == sale.ID || existing.SaleNumber == sale.SaleNumber {
				return store.ErrConflict
			}
		}
		put(st, st.sales, sale.ID, *sale)
		return nil
	})
}

func (s *Store) GetSale(ctx context.Context, id string) (*model.Sale, error) {
	var out *model.Sale
	err := s.read(ctx, func(st *state) error {
		sale, ok := st.sales[id]
		if !ok {
			return store.ErrNotFound
		}
		out = &sale
		return nil
	})
	return out, err
}

func (s *Store) UpdateSale(ctx context.Context, sale *model.Sale) error {
	return s.write(ctx, func(st *state) error {
		if _, ok := st.sales[sale.ID]; !ok {
			return store.ErrNotFound
		}
		put(st, st.sales, sale.ID, *sale)
		return nil
	})
}

func (s *Store) ListSales(ctx context.Context, f store.SaleFilter) ([]model.Sale, error) {
	var out []model.Sale
	err := s.read(ctx, func(st *state) error {
		for _, sale := range st.sales {
			if f.TableID != "" && sale.TableID != f.TableID {
				continue
			}
			if f.ItemID != "" && sale.ItemID != f.ItemID {
				continue
			}
			out = append(out, sale)
		}
		return nil
	})
	slices.SortFunc(out, func(a, b model.Sale) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(b.SaleNumber, a.SaleNumber))
	})
	return paginate(out, f.Page), err
}

// ============================================================================
// Rentals
// ============================================================================

func (s *Store) InsertRental(ctx context.Context, r *model.Rental) error {
	return s.write(ctx, func(st *state) error {
		for _, existing := range st.rentals {
			if existing.ID == r.ID || existing.RentalNumber == r.RentalNumber {
				return store.ErrConflict
			}
			if r.RentalStatus == model.RentalActive && existing.RentalStatus == model.RentalActive &&
				existing.TableID == r.TableID && existing.ItemID == r.ItemID {
				return store.ErrConflict
			}
		}
		put(st, st.rentals, r.ID, *r)
		return nil
	})
}

func (s *Store) GetRental(ctx context.Context, id string) (*model.Rental, error) {
	var out *model.Rental
	err := s.read(ctx, func(st *state) error {
		r, ok := st.rentals[id]
		if !ok {
			return store.ErrNotFound
		}
		out = &r
		return nil
	})
	return out, err
}

func (s *Store) UpdateRental(ctx context.Context, r *model.Rental) error {
	return s.write(ctx, func(st *state) error {
		if _, ok := st.rentals[r.ID]; !ok {
			return store.ErrNotFound
		}
		put(st, st.rentals, r.ID, *r)
		return nil
	})
}

func (s *Store) FindActiveRental(ctx context.Context, tableID, itemID string) (*model.Rental, error) {
	var out *model.Rental
	err := s.read(ctx, func(st *state) error {
		for _, r := range st.rentals {
			if r.TableID == tableID && r.ItemID == itemID && r.RentalStatus == model.RentalActive {
				if out == nil || r.RentedAt.After(out.RentedAt) {
					found := r
					out = &found
				}
			}
		}
		if out == nil {
			return store.ErrNotFound
		}
		return nil
	})
	return out, err
}

func (s *Store) ListRentals(ctx context.Context, f store.RentalFilter) ([]model.Rental, error) {
	var out []model.Rental
	err := s.read(ctx, func(st *state) error {
		for _, r := range st.rentals {
			if f.TableID != "" && r.TableID != f.TableID {
				continue
			}
			if f.ItemID != "" && r.ItemID != f.ItemID {
				continue
			}
			if f.Status != "" && r.RentalStatus != f.Status {
				continue
			}
			out = append(out, r)
		}
		return nil
	})
	slices.SortFunc(out, func(a, b model.Rental) int {
		return cmp.Or(b.RentedAt.Compare(a.RentedAt), cmp.Compare(b.RentalNumber, a.RentalNumber))
	})
	return paginate(out, f.Page), err
}
