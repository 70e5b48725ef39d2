package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/tabled/internal/cache"
	"github.com/JonMunkholm/tabled/internal/core/coltype"
	"github.com/JonMunkholm/tabled/internal/logging"
	"github.com/JonMunkholm/tabled/internal/model"
	"github.com/JonMunkholm/tabled/internal/store"
)

// Item field names on inventory tables.
const (
	fieldPrice     = "price"
	fieldQty       = "qty"
	fieldAvailable = "available"
	fieldUsed      = "used"
)

// dataKey returns the key under which data stores field, matching case
// insensitively, or field itself when absent.
func dataKey(data map[string]any, field string) string {
	if _, ok := data[field]; ok {
		return field
	}
	for k := range data {
		if strings.EqualFold(k, field) {
			return k
		}
	}
	return field
}

func dataValue(data map[string]any, field string) (any, bool) {
	v, ok := data[dataKey(data, field)]
	return v, ok
}

// itemQuantity reads the stock of a sale item.
func itemQuantity(data map[string]any) (int64, error) {
	v, ok := dataValue(data, fieldQty)
	if !ok || coltype.IsEmpty(v) {
		return 0, errors.New("qty is missing")
	}
	n, err := coltype.ToInt(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("qty %d is negative", n)
	}
	return n, nil
}

// itemPrice reads the unit price of a sale item.
func itemPrice(data map[string]any) (decimal.Decimal, error) {
	v, ok := dataValue(data, fieldPrice)
	if !ok || coltype.IsEmpty(v) {
		return decimal.Zero, errors.New("price is missing")
	}
	d, err := coltype.ToDecimal(v)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("price %s is not positive", d.String())
	}
	return d, nil
}

// lockItem takes the per-item lock that serializes inventory transitions.
func (s *Service) lockItem(ctx context.Context, tableID, itemID string) (func(), error) {
	unlock, err := s.locker.Lock(ctx, cache.ItemLockKey(tableID, itemID))
	if err != nil {
		if errors.Is(err, cache.ErrLockBusy) {
			s.metrics.LockContended()
			return nil, &Error{Kind: KindUnavailable, Message: "system busy, please try again later (lock)", Err: err}
		}
		return nil, InternalError("failed to lock item", err)
	}
	return unlock, nil
}

// loadCatalogTable loads a table for a storefront operation and checks that
// user may use it and that it has the wanted type.
func loadCatalogTable(ctx context.Context, st store.TableStore, user model.UserContext, tableID string, want model.TableType) (*model.Table, error) {
	t, err := st.GetTable(ctx, tableID)
	if err != nil {
		return nil, storeError(err, "table")
	}
	if !user.CanAccess(*t) && !user.Owns(*t) {
		return nil, ForbiddenError("access denied")
	}
	if want != "" && t.TableType != want {
		switch want {
		case model.TableTypeSale:
			return nil, ForbiddenError("table does not support purchases")
		default:
			return nil, ForbiddenError("table does not support rentals")
		}
	}
	return t, nil
}

// ============================================================================
// Buy
// ============================================================================

// BuyRequest is a storefront purchase.
type BuyRequest struct {
	TableID       string `json:"table_id"`
	ItemID        string `json:"item_id"`
	CustomerID    string `json:"customer_id"`
	QuantitySold  int64  `json:"quantity_sold"`
	PaymentMethod string `json:"payment_method,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

// Buy sells req.QuantitySold units of an item. The stock check, the sale
// record, the decrement and the ledger entry run under the item lock in one
// transaction; a purchase larger than the stock changes nothing.
func (s *Service) Buy(ctx context.Context, user model.UserContext, req BuyRequest) (*model.Sale, error) {
	sale, err := s.buy(ctx, user, req)
	switch {
	case err == nil:
		s.metrics.ObserveSale("success")
	case KindOf(err) == KindInternal:
		s.metrics.ObserveSale("error")
	default:
		s.metrics.ObserveSale("rejected")
	}
	return sale, err
}

func (s *Service) buy(ctx context.Context, user model.UserContext, req BuyRequest) (*model.Sale, error) {
	if err := requireUser(user); err != nil {
		return nil, err
	}
	if req.TableID == "" || req.ItemID == "" || req.CustomerID == "" {
		return nil, ValidationError("table_id, item_id and customer_id are required")
	}
	if req.QuantitySold < 1 {
		return nil, ValidationError("quantity_sold must be at least 1")
	}

	t, err := loadCatalogTable(ctx, s.store, user, req.TableID, model.TableTypeSale)
	if err != nil {
		return nil, err
	}

	unlock, err := s.lockItem(ctx, t.ID, req.ItemID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var sale model.Sale
	err = s.store.WithTx(ctx, func(tx store.Store) error {
		item, err := tx.LockRow(ctx, t.ID, req.ItemID)
		if err != nil {
			return storeError(err, "item")
		}
		price, err := itemPrice(item.Data)
		if err != nil {
			return ValidationError("item price is invalid: %v", err)
		}
		qty, err := itemQuantity(item.Data)
		if err != nil {
			return ValidationError("item quantity is invalid: %v", err)
		}
		if req.QuantitySold > qty {
			return ValidationError("insufficient stock: available %d, requested %d", qty, req.QuantitySold)
		}

		now := s.now()
		seq, err := tx.NextSequence(ctx, model.SequenceSales, now.Year())
		if err != nil {
			return InternalError("failed to allocate sale number", err)
		}
		sale = model.Sale{
			ID:            uuid.NewString(),
			SaleNumber:    model.SaleNumber(now.Year(), seq),
			TableID:       t.ID,
			ItemID:        item.ID,
			CustomerID:    req.CustomerID,
			QuantitySold:  req.QuantitySold,
			UnitPrice:     price,
			TotalAmount:   price.Mul(decimal.NewFromInt(req.QuantitySold)),
			PaymentMethod: req.PaymentMethod,
			PaymentStatus: model.PaymentStatusPending,
			SaleStatus:    model.SaleStatusCompleted,
			Notes:         req.Notes,
			CreatedBy:     user.UserID,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.InsertSale(ctx, &sale); err != nil {
			return InternalError("failed to record sale", err)
		}

		next := store.CloneData(item.Data)
		next[dataKey(item.Data, fieldQty)] = qty - req.QuantitySold
		if err := tx.UpdateRowData(ctx, t.ID, item.ID, next); err != nil {
			return InternalError("failed to update stock", err)
		}

		s.ledger.Record(ctx, tx, model.InventoryTransaction{
			TableID:         t.ID,
			TableName:       t.Name,
			ItemID:          item.ID,
			TransactionType: model.TxSale,
			QuantityChange:  int64Ptr(-req.QuantitySold),
			PreviousData:    item.Data,
			NewData:         next,
			ReferenceID:     sale.ID,
			Notes:           "sale " + sale.SaleNumber,
			CreatedBy:       user.UserID,
			CreatedAt:       now,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateCatalog(ctx)
	logging.FromContext(ctx).Info("item sold",
		"sale_number", sale.SaleNumber,
		"table_id", sale.TableID,
		"item_id", sale.ItemID,
		"quantity", sale.QuantitySold,
		"total", sale.TotalAmount.StringFixed(coltype.CurrencyPlaces),
	)
	return &sale, nil
}

// ============================================================================
// Sale records
// ============================================================================

var (
	saleStatuses    = []string{model.SaleStatusPending, model.SaleStatusCompleted, model.SaleStatusCancelled, model.SaleStatusRefunded}
	paymentStatuses = []string{model.PaymentStatusPending, model.PaymentStatusPaid, model.PaymentStatusFailed, model.PaymentStatusRefunded}
)

// SaleUpdate lists the only sale fields that may change after the purchase.
type SaleUpdate struct {
	SaleStatus    *string `json:"saleStatus,omitempty"`
	PaymentStatus *string `json:"paymentStatus,omitempty"`
	PaymentMethod *string `json:"paymentMethod,omitempty"`
	Notes         *string `json:"notes,omitempty"`
}

// loadOwnedSale loads a sale whose table user owns.
func loadOwnedSale(ctx context.Context, st store.Store, user model.UserContext, id string) (*model.Sale, error) {
	sale, err := st.GetSale(ctx, id)
	if err != nil {
		return nil, storeError(err, "sale")
	}
	if _, _, err := loadOwnedTable(ctx, st, user, sale.TableID); err != nil {
		return nil, err
	}
	return sale, nil
}

// GetSale returns a sale from a table owned by user.
func (s *Service) GetSale(ctx context.Context, user model.UserContext, id string) (*model.Sale, error) {
	return loadOwnedSale(ctx, s.store, user, id)
}

// UpdateSale changes the status, payment and notes fields of a sale.
func (s *Service) UpdateSale(ctx context.Context, user model.UserContext, id string, upd SaleUpdate) (*model.Sale, error) {
	if upd.SaleStatus != nil && !slices.Contains(saleStatuses, *upd.SaleStatus) {
		return nil, ValidationError("invalid sale status %q", *upd.SaleStatus)
	}
	if upd.PaymentStatus != nil && !slices.Contains(paymentStatuses, *upd.PaymentStatus) {
		return nil, ValidationError("invalid payment status %q", *upd.PaymentStatus)
	}

	var sale *model.Sale
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		var err error
		sale, err = loadOwnedSale(ctx, tx, user, id)
		if err != nil {
			return err
		}
		if upd.SaleStatus != nil {
			sale.SaleStatus = *upd.SaleStatus
		}
		if upd.PaymentStatus != nil {
			sale.PaymentStatus = *upd.PaymentStatus
		}
		if upd.PaymentMethod != nil {
			sale.PaymentMethod = *upd.PaymentMethod
		}
		if upd.Notes != nil {
			sale.Notes = *upd.Notes
		}
		sale.UpdatedAt = s.now()
		if err := tx.UpdateSale(ctx, sale); err != nil {
			return storeError(err, "sale")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sale, nil
}

// ListSales returns sales of a table owned by user, newest first.
func (s *Service) ListSales(ctx context.Context, user model.UserContext, tableID string, page store.Page) ([]model.Sale, error) {
	if _, _, err := loadOwnedTable(ctx, s.store, user, tableID); err != nil {
		return nil, err
	}
	sales, err := s.store.ListSales(ctx, store.SaleFilter{TableID: tableID, Page: page})
	if err != nil {
		return nil, InternalError("failed to list sales", err)
	}
	if sales == nil {
		sales = []model.Sale{}
	}
	return sales, nil
}
