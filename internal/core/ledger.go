package core

// ledger.go records and reads the append-only inventory ledger.
//
// The ledger is an audit side channel. Current stock and availability live
// on the item row, so a failed ledger write is logged and counted but never
// fails the operation that triggered it.

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/tabled/internal/cache"
	"github.com/JonMunkholm/tabled/internal/logging"
	"github.com/JonMunkholm/tabled/internal/metrics"
	"github.com/JonMunkholm/tabled/internal/model"
	"github.com/JonMunkholm/tabled/internal/store"
)

const (
	defaultLedgerPageSize = 50
	maxLedgerPageSize     = 500
	analyticsScanPage     = 1000
	defaultAnalyticsDays  = 30
)

// Ledger writes and aggregates inventory transactions.
type Ledger struct {
	store   store.Store
	cache   cache.Cache
	metrics *metrics.Collector
	ttl     time.Duration
	now     func() time.Time
}

// NewLedger creates a ledger on st. c and m may be nil.
func NewLedger(st store.Store, c cache.Cache, m *metrics.Collector, ttl time.Duration, now func() time.Time) *Ledger {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Ledger{store: st, cache: c, metrics: m, ttl: ttl, now: now}
}

// Record appends entry through st, which is either the root store or the
// caller's transaction. The insert runs in its own nested transaction so a
// failure cannot abort the caller's. Failures are logged, never returned.
func (l *Ledger) Record(ctx context.Context, st store.Store, entry model.InventoryTransaction) {
	if st == nil {
		st = l.store
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = l.now()
	}

	err := st.WithTx(ctx, func(sp store.Store) error {
		return sp.AppendTransaction(ctx, &entry)
	})
	if err != nil {
		l.metrics.LedgerWriteFailed()
		logging.FromContext(ctx).Error("ledger write failed",
			"transaction_type", entry.TransactionType,
			"table_id", entry.TableID,
			"item_id", entry.ItemID,
			"reference_id", entry.ReferenceID,
			"error", err,
		)
	}
}

// List returns ledger entries newest first. The page size defaults to 50
// and is capped at 500.
func (l *Ledger) List(ctx context.Context, f store.LedgerFilter) ([]model.InventoryTransaction, error) {
	if f.Type != "" && !f.Type.Valid() {
		return nil, ValidationError("invalid transaction type %q", f.Type)
	}
	if f.Page.Limit <= 0 {
		f.Page.Limit = defaultLedgerPageSize
	}
	f.Page.Limit = min(f.Page.Limit, maxLedgerPageSize)
	f.Page.Offset = max(f.Page.Offset, 0)

	out, err := l.store.ListTransactions(ctx, f)
	if err != nil {
		return nil, InternalError("failed to list inventory transactions", err)
	}
	if out == nil {
		out = []model.InventoryTransaction{}
	}
	return out, nil
}

// ============================================================================
// Analytics
// ============================================================================

// Analytics buckets.
const (
	BucketDay   = "day"
	BucketWeek  = "week"
	BucketMonth = "month"
)

// AnalyticsQuery selects the ledger window to aggregate. A zero To means the
// end of the current day and a zero From means thirty days before To.
type AnalyticsQuery struct {
	TableID string
	From    time.Time
	To      time.Time
	Bucket  string
}

// Aggregate is a transaction count with the sum of quantity changes.
type Aggregate struct {
	Count    int64 `json:"count"`
	Quantity int64 `json:"quantity"`
}

func (a *Aggregate) add(t model.InventoryTransaction) {
	a.Count++
	if t.QuantityChange != nil {
		a.Quantity += *t.QuantityChange
	}
}

// TableAggregate is an Aggregate for one table.
type TableAggregate struct {
	TableID   string `json:"tableId"`
	TableName string `json:"tableName"`
	Aggregate
}

// ItemAggregate is an Aggregate for one item.
type ItemAggregate struct {
	TableID string `json:"tableId"`
	ItemID  string `json:"itemId"`
	Aggregate
}

// BucketAggregate is an Aggregate for one date bucket, keyed by the bucket
// start date.
type BucketAggregate struct {
	Bucket string `json:"bucket"`
	Aggregate
}

// AnalyticsReport aggregates the ledger over a window.
type AnalyticsReport struct {
	From              time.Time                           `json:"from"`
	To                time.Time                           `json:"to"`
	Bucket            string                              `json:"bucket"`
	TotalTransactions int64                               `json:"totalTransactions"`
	ByType            map[model.TransactionType]Aggregate `json:"byType"`
	ByTable           []TableAggregate                    `json:"byTable"`
	ByItem            []ItemAggregate                     `json:"byItem"`
	ByBucket          []BucketAggregate                   `json:"byBucket"`
}

func (l *Ledger) normalize(q AnalyticsQuery) (AnalyticsQuery, error) {
	switch q.Bucket {
	case "":
		q.Bucket = BucketDay
	case BucketDay, BucketWeek, BucketMonth:
	default:
		return q, ValidationError("invalid bucket %q (use day, week or month)", q.Bucket)
	}
	if q.To.IsZero() {
		y, m, d := l.now().Date()
		q.To = time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
	}
	if q.From.IsZero() {
		q.From = q.To.AddDate(0, 0, -defaultAnalyticsDays)
	}
	q.From, q.To = q.From.UTC(), q.To.UTC()
	if !q.From.Before(q.To) {
		return q, ValidationError("from must be before to")
	}
	return q, nil
}

// Analytics aggregates the ledger by type, table, item and date bucket.
// tableIDs limits the aggregation to those tables. Results are memoized in
// the advisory cache.
func (l *Ledger) Analytics(ctx context.Context, q AnalyticsQuery, tableIDs []string) (*AnalyticsReport, error) {
	q, err := l.normalize(q)
	if err != nil {
		return nil, err
	}
	allowed := make(map[string]bool, len(tableIDs))
	for _, id := range tableIDs {
		allowed[id] = true
	}
	if q.TableID != "" && !allowed[q.TableID] {
		return nil, ForbiddenError("access denied")
	}

	ids := append([]string(nil), tableIDs...)
	sort.Strings(ids)
	key := fmt.Sprintf("analytics:%s:%d:%d:%s:%v", q.TableID, q.From.Unix(), q.To.Unix(), q.Bucket, ids)

	report, err := cache.GetOrCompute(ctx, l.cache, key, l.ttl, func(ctx context.Context) (*AnalyticsReport, error) {
		return l.aggregate(ctx, q, allowed)
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (l *Ledger) aggregate(ctx context.Context, q AnalyticsQuery, allowed map[string]bool) (*AnalyticsReport, error) {
	report := &AnalyticsReport{
		From:     q.From,
		To:       q.To,
		Bucket:   q.Bucket,
		ByType:   map[model.TransactionType]Aggregate{},
		ByTable:  []TableAggregate{},
		ByItem:   []ItemAggregate{},
		ByBucket: []BucketAggregate{},
	}
	tables := map[string]*TableAggregate{}
	items := map[[2]string]*ItemAggregate{}
	buckets := map[string]*BucketAggregate{}

	filter := store.LedgerFilter{TableID: q.TableID, From: q.From, To: q.To}
	for offset := 0; ; offset += analyticsScanPage {
		filter.Page = store.Page{Limit: analyticsScanPage, Offset: offset}
		page, err := l.store.ListTransactions(ctx, filter)
		if err != nil {
			return nil, InternalError("failed to read inventory transactions", err)
		}
		for _, t := range page {
			if !allowed[t.TableID] {
				continue
			}
			report.TotalTransactions++

			byType := report.ByType[t.TransactionType]
			byType.add(t)
			report.ByType[t.TransactionType] = byType

			ta, ok := tables[t.TableID]
			if !ok {
				ta = &TableAggregate{TableID: t.TableID, TableName: t.TableName}
				tables[t.TableID] = ta
			}
			ta.add(t)

			ik := [2]string{t.TableID, t.ItemID}
			ia, ok := items[ik]
			if !ok {
				ia = &ItemAggregate{TableID: t.TableID, ItemID: t.ItemID}
				items[ik] = ia
			}
			ia.add(t)

			bk := bucketStart(t.CreatedAt, q.Bucket)
			ba, ok := buckets[bk]
			if !ok {
				ba = &BucketAggregate{Bucket: bk}
				buckets[bk] = ba
			}
			ba.add(t)
		}
		if len(page) < analyticsScanPage {
			break
		}
	}

	for _, ta := range tables {
		report.ByTable = append(report.ByTable, *ta)
	}
	sort.Slice(report.ByTable, func(i, j int) bool {
		a, b := report.ByTable[i], report.ByTable[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.TableID < b.TableID
	})
	for _, ia := range items {
		report.ByItem = append(report.ByItem, *ia)
	}
	sort.Slice(report.ByItem, func(i, j int) bool {
		a, b := report.ByItem[i], report.ByItem[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if a.TableID != b.TableID {
			return a.TableID < b.TableID
		}
		return a.ItemID < b.ItemID
	})
	for _, ba := range buckets {
		report.ByBucket = append(report.ByBucket, *ba)
	}
	sort.Slice(report.ByBucket, func(i, j int) bool {
		return report.ByBucket[i].Bucket < report.ByBucket[j].Bucket
	})
	return report, nil
}

// bucketStart returns the start date of the bucket holding t. Weeks start
// on Monday.
func bucketStart(t time.Time, bucket string) string {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch bucket {
	case BucketWeek:
		offset := (int(day.Weekday()) + 6) % 7
		day = day.AddDate(0, 0, -offset)
	case BucketMonth:
		day = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return day.Format(time.DateOnly)
}

// ============================================================================
// Service access
// ============================================================================

// ListTransactions returns ledger entries for a table owned by user.
func (s *Service) ListTransactions(ctx context.Context, user model.UserContext, f store.LedgerFilter) ([]model.InventoryTransaction, error) {
	if f.TableID == "" {
		return nil, ValidationError("table_id is required")
	}
	if _, _, err := loadOwnedTable(ctx, s.store, user, f.TableID); err != nil {
		return nil, err
	}
	return s.ledger.List(ctx, f)
}

// InventoryAnalytics aggregates the ledger over the tables owned by user, or
// over one of them when q.TableID is set.
func (s *Service) InventoryAnalytics(ctx context.Context, user model.UserContext, q AnalyticsQuery) (*AnalyticsReport, error) {
	tables, err := s.ListTables(ctx, user)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(tables))
	for i, t := range tables {
		ids[i] = t.ID
	}
	if q.TableID != "" {
		if _, _, err := loadOwnedTable(ctx, s.store, user, q.TableID); err != nil {
			return nil, err
		}
	}
	return s.ledger.Analytics(ctx, q, ids)
}

// ============================================================================
// Entry builders
// ============================================================================

func int64Ptr(v int64) *int64 { return &v }

// stockAdded builds the ledger entry for a new sale-table row.
func stockAdded(t *model.Table, row model.Row, userID string) model.InventoryTransaction {
	entry := model.InventoryTransaction{
		TableID:         t.ID,
		TableName:       t.Name,
		ItemID:          row.ID,
		TransactionType: model.TxAdd,
		NewData:         store.CloneData(row.Data),
		Notes:           "row created",
		CreatedBy:       userID,
	}
	if qty, err := itemQuantity(row.Data); err == nil {
		entry.QuantityChange = int64Ptr(qty)
	}
	return entry
}

// stockRemoved builds the ledger entry for a deleted sale-table row.
func stockRemoved(t *model.Table, row model.Row, userID, notes string) model.InventoryTransaction {
	entry := model.InventoryTransaction{
		TableID:         t.ID,
		TableName:       t.Name,
		ItemID:          row.ID,
		TransactionType: model.TxRemove,
		PreviousData:    store.CloneData(row.Data),
		Notes:           notes,
		CreatedBy:       userID,
	}
	if qty, err := itemQuantity(row.Data); err == nil {
		entry.QuantityChange = int64Ptr(-qty)
	}
	return entry
}
