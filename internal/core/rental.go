package core

// rental.go drives the rent-table item lifecycle:
//
//	available=true --rent--> available=false, rental active
//	               --release--> available=false, used=true, rental released
//	               --cancel--> available=true, rental cancelled
//
// used=true is terminal. Every transition runs under the item lock in one
// transaction and appends one ledger entry.

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/JonMunkholm/tabled/internal/core/coltype"
	"github.com/JonMunkholm/tabled/internal/logging"
	"github.com/JonMunkholm/tabled/internal/model"
	"github.com/JonMunkholm/tabled/internal/store"
)

// itemFlag reads a boolean item field; missing or empty values give def.
func itemFlag(data map[string]any, field string, def bool) (bool, error) {
	v, ok := dataValue(data, field)
	if !ok || coltype.IsEmpty(v) {
		return def, nil
	}
	return coltype.ToBool(v)
}

// rentState reads the available and used flags of a rent item. A missing
// available flag counts as true unless the item is used.
func rentState(data map[string]any) (available, used bool, err error) {
	used, err = itemFlag(data, fieldUsed, false)
	if err != nil {
		return false, false, ValidationError("item used flag is invalid: %v", err)
	}
	available, err = itemFlag(data, fieldAvailable, !used)
	if err != nil {
		return false, false, ValidationError("item available flag is invalid: %v", err)
	}
	return available, used, nil
}

func (s *Service) observeRental(action string, err error) {
	switch {
	case err == nil:
		s.metrics.ObserveRental(action, "success")
	case KindOf(err) == KindInternal:
		s.metrics.ObserveRental(action, "error")
	default:
		s.metrics.ObserveRental(action, "rejected")
	}
}

// ============================================================================
// Rent
// ============================================================================

// RentRequest is a storefront rental.
type RentRequest struct {
	TableID    string `json:"tableId"`
	ItemID     string `json:"itemId"`
	CustomerID string `json:"customerId"`
	Notes      string `json:"notes,omitempty"`
}

// Rent lends an available item to a customer.
func (s *Service) Rent(ctx context.Context, user model.UserContext, req RentRequest) (*model.Rental, error) {
	r, err := s.rent(ctx, user, req)
	s.observeRental("rent", err)
	return r, err
}

func (s *Service) rent(ctx context.Context, user model.UserContext, req RentRequest) (*model.Rental, error) {
	if err := requireUser(user); err != nil {
		return nil, err
	}
	if req.TableID == "" || req.ItemID == "" || req.CustomerID == "" {
		return nil, ValidationError("tableId, itemId and customerId are required")
	}

	t, err := loadCatalogTable(ctx, s.store, user, req.TableID, model.TableTypeRent)
	if err != nil {
		return nil, err
	}

	unlock, err := s.lockItem(ctx, t.ID, req.ItemID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var rental model.Rental
	err = s.store.WithTx(ctx, func(tx store.Store) error {
		item, err := tx.LockRow(ctx, t.ID, req.ItemID)
		if err != nil {
			return storeError(err, "item")
		}
		available, used, err := rentState(item.Data)
		if err != nil {
			return err
		}
		if used {
			return ValidationError("item has already been used and cannot be rented again")
		}
		if !available {
			return ValidationError("item is not available")
		}
		if _, err := tx.FindActiveRental(ctx, t.ID, item.ID); err == nil {
			return ConflictError("item is already rented")
		} else if !errors.Is(err, store.ErrNotFound) {
			return InternalError("failed to check active rental", err)
		}

		now := s.now()
		seq, err := tx.NextSequence(ctx, model.SequenceRentals, now.Year())
		if err != nil {
			return InternalError("failed to allocate rental number", err)
		}
		rental = model.Rental{
			ID:           uuid.NewString(),
			RentalNumber: model.RentalNumber(now.Year(), seq),
			TableID:      t.ID,
			ItemID:       item.ID,
			CustomerID:   req.CustomerID,
			RentalStatus: model.RentalActive,
			Notes:        req.Notes,
			RentedAt:     now,
			CreatedBy:    user.UserID,
		}
		if err := tx.InsertRental(ctx, &rental); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return ConflictError("item is already rented")
			}
			return InternalError("failed to record rental", err)
		}

		next := store.CloneData(item.Data)
		next[dataKey(item.Data, fieldAvailable)] = false
		if err := tx.UpdateRowData(ctx, t.ID, item.ID, next); err != nil {
			return InternalError("failed to update item", err)
		}

		s.ledger.Record(ctx, tx, model.InventoryTransaction{
			TableID:         t.ID,
			TableName:       t.Name,
			ItemID:          item.ID,
			TransactionType: model.TxRent,
			PreviousData:    item.Data,
			NewData:         next,
			ReferenceID:     rental.ID,
			Notes:           "rental " + rental.RentalNumber,
			CreatedBy:       user.UserID,
			CreatedAt:       now,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateCatalog(ctx)
	logging.FromContext(ctx).Info("item rented",
		"rental_number", rental.RentalNumber,
		"table_id", rental.TableID,
		"item_id", rental.ItemID,
	)
	return &rental, nil
}

// ============================================================================
// Release
// ============================================================================

// ReleaseRequest names the rental to release, either by id or by item.
type ReleaseRequest struct {
	RentalID string `json:"rental_id,omitempty"`
	TableID  string `json:"table_id,omitempty"`
	ItemID   string `json:"item_id,omitempty"`
}

// Release ends an active rental and marks the item used.
func (s *Service) Release(ctx context.Context, user model.UserContext, req ReleaseRequest) (*model.Rental, error) {
	r, err := s.release(ctx, user, req)
	s.observeRental("release", err)
	return r, err
}

func (s *Service) release(ctx context.Context, user model.UserContext, req ReleaseRequest) (*model.Rental, error) {
	if err := requireUser(user); err != nil {
		return nil, err
	}
	tableID, itemID, err := s.rentalTarget(ctx, req.RentalID, req.TableID, req.ItemID)
	if err != nil {
		return nil, err
	}

	t, err := loadCatalogTable(ctx, s.store, user, tableID, model.TableTypeRent)
	if err != nil {
		return nil, err
	}

	return s.finishRental(ctx, user, t, itemID, req.RentalID, model.RentalReleased)
}

// rentalTarget resolves the table and item of a release or cancel request.
func (s *Service) rentalTarget(ctx context.Context, rentalID, tableID, itemID string) (string, string, error) {
	if rentalID == "" {
		if tableID == "" || itemID == "" {
			return "", "", ValidationError("rental_id or both table_id and item_id are required")
		}
		return tableID, itemID, nil
	}
	r, err := s.store.GetRental(ctx, rentalID)
	if err != nil {
		return "", "", storeError(err, "rental")
	}
	if r.RentalStatus != model.RentalActive {
		return "", "", ValidationError("no active rental: rental %s is %s", r.RentalNumber, r.RentalStatus)
	}
	return r.TableID, r.ItemID, nil
}

// finishRental moves the item's active rental to status: released marks the
// item used, cancelled makes it available again.
func (s *Service) finishRental(ctx context.Context, user model.UserContext, t *model.Table, itemID, rentalID, status string) (*model.Rental, error) {
	unlock, err := s.lockItem(ctx, t.ID, itemID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var rental *model.Rental
	err = s.store.WithTx(ctx, func(tx store.Store) error {
		var err error
		rental, err = tx.FindActiveRental(ctx, t.ID, itemID)
		if errors.Is(err, store.ErrNotFound) {
			return ValidationError("no active rental for this item")
		}
		if err != nil {
			return InternalError("failed to load rental", err)
		}
		if rentalID != "" && rental.ID != rentalID {
			return ValidationError("no active rental: rental %s is not active", rentalID)
		}

		item, err := tx.LockRow(ctx, t.ID, itemID)
		if err != nil {
			return storeError(err, "item")
		}

		now := s.now()
		next := store.CloneData(item.Data)
		entryType := model.TxRelease
		switch status {
		case model.RentalReleased:
			next[dataKey(item.Data, fieldAvailable)] = false
			next[dataKey(item.Data, fieldUsed)] = true
		case model.RentalCancelled:
			next[dataKey(item.Data, fieldAvailable)] = true
			entryType = model.TxUpdate
		}

		rental.RentalStatus = status
		rental.ReleasedAt = &now
		if err := tx.UpdateRental(ctx, rental); err != nil {
			return InternalError("failed to update rental", err)
		}
		if err := tx.UpdateRowData(ctx, t.ID, itemID, next); err != nil {
			return InternalError("failed to update item", err)
		}

		s.ledger.Record(ctx, tx, model.InventoryTransaction{
			TableID:         t.ID,
			TableName:       t.Name,
			ItemID:          itemID,
			TransactionType: entryType,
			PreviousData:    item.Data,
			NewData:         next,
			ReferenceID:     rental.ID,
			Notes:           "rental " + rental.RentalNumber + " " + status,
			CreatedBy:       user.UserID,
			CreatedAt:       now,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateCatalog(ctx)
	logging.FromContext(ctx).Info("rental finished",
		"rental_number", rental.RentalNumber,
		"status", status,
		"table_id", t.ID,
		"item_id", itemID,
	)
	return rental, nil
}

// ============================================================================
// Cancel and records
// ============================================================================

// CancelRental cancels an active rental on a table owned by user and makes
// the item available again.
func (s *Service) CancelRental(ctx context.Context, user model.UserContext, rentalID string) (*model.Rental, error) {
	r, err := s.cancelRental(ctx, user, rentalID)
	s.observeRental("cancel", err)
	return r, err
}

func (s *Service) cancelRental(ctx context.Context, user model.UserContext, rentalID string) (*model.Rental, error) {
	if rentalID == "" {
		return nil, ValidationError("rental id is required")
	}
	tableID, itemID, err := s.rentalTarget(ctx, rentalID, "", "")
	if err != nil {
		return nil, err
	}
	t, _, err := loadOwnedTable(ctx, s.store, user, tableID)
	if err != nil {
		return nil, err
	}
	return s.finishRental(ctx, user, t, itemID, rentalID, model.RentalCancelled)
}

// GetRental returns a rental from a table owned by user.
func (s *Service) GetRental(ctx context.Context, user model.UserContext, id string) (*model.Rental, error) {
	r, err := s.store.GetRental(ctx, id)
	if err != nil {
		return nil, storeError(err, "rental")
	}
	if _, _, err := loadOwnedTable(ctx, s.store, user, r.TableID); err != nil {
		return nil, err
	}
	return r, nil
}

// ListRentals returns rentals of a table owned by user, newest first.
func (s *Service) ListRentals(ctx context.Context, user model.UserContext, tableID, status string, page store.Page) ([]model.Rental, error) {
	if _, _, err := loadOwnedTable(ctx, s.store, user, tableID); err != nil {
		return nil, err
	}
	out, err := s.store.ListRentals(ctx, store.RentalFilter{TableID: tableID, Status: status, Page: page})
	if err != nil {
		return nil, InternalError("failed to list rentals", err)
	}
	if out == nil {
		out = []model.Rental{}
	}
	return out, nil
}
