package core

// catalog.go is the read side of the storefront: public tables, their items
// and cross-table record queries. Only sale and rent tables are listed.
// Results for unrestricted callers are memoized under catalogPrefix and
// dropped whenever a write changes table data.

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/JonMunkholm/tabled/internal/cache"
	"github.com/JonMunkholm/tabled/internal/core/coltype"
	"github.com/JonMunkholm/tabled/internal/model"
	"github.com/JonMunkholm/tabled/internal/store"
)

const (
	catalogPrefix = "catalog:"

	// DefaultRecordLimit and MaxRecordLimit bound QueryRecords pages.
	DefaultRecordLimit = 100
	MaxRecordLimit     = 1000
)

// catalogTypes are the table types exposed through the catalog.
var catalogTypes = []model.TableType{model.TableTypeSale, model.TableTypeRent}

func (s *Service) invalidateCatalog(ctx context.Context) {
	cache.Invalidate(ctx, s.cache, catalogPrefix)
}

// PublicTable is a catalog table summary.
type PublicTable struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	TableType   model.TableType `json:"tableType"`
	RowCount    int64           `json:"rowCount"`
}

// Record is a row flattened for the storefront: its data keys plus id,
// tableId, tableName, tableType, createdAt and updatedAt.
type Record map[string]any

func flatten(t model.Table, r model.Row) Record {
	rec := make(Record, len(r.Data)+6)
	for k, v := range r.Data {
		rec[k] = v
	}
	rec["id"] = r.ID
	rec["tableId"] = t.ID
	rec["tableName"] = t.Name
	rec["tableType"] = t.TableType
	rec["createdAt"] = r.CreatedAt.Format(time.RFC3339)
	rec["updatedAt"] = r.UpdatedAt.Format(time.RFC3339)
	return rec
}

// catalogTables returns the sale and rent tables user may read, by name.
func (s *Service) catalogTables(ctx context.Context, user model.UserContext) ([]model.Table, error) {
	f := store.TableFilter{Types: catalogTypes}
	if user.Restricted() {
		if len(user.AllowedTables) == 0 {
			return []model.Table{}, nil
		}
		f.IDs = user.AllowedTables
	} else {
		f.Visibilities = []model.Visibility{model.VisibilityPublic, model.VisibilityShared}
	}
	tables, err := s.store.ListTables(ctx, f)
	if err != nil {
		return nil, InternalError("failed to list tables", err)
	}
	slices.SortFunc(tables, func(a, b model.Table) int { return strings.Compare(a.Name, b.Name) })
	return tables, nil
}

func (s *Service) publicTables(ctx context.Context, user model.UserContext) ([]PublicTable, error) {
	tables, err := s.catalogTables(ctx, user)
	if err != nil {
		return nil, err
	}
	out := make([]PublicTable, 0, len(tables))
	for _, t := range tables {
		n, err := s.store.CountRows(ctx, t.ID)
		if err != nil {
			return nil, InternalError("failed to count rows", err)
		}
		out = append(out, PublicTable{
			ID:          t.ID,
			Name:        t.Name,
			Description: t.Description,
			TableType:   t.TableType,
			RowCount:    n,
		})
	}
	return out, nil
}

// ListPublicTables lists the catalog tables user may read with their row
// counts.
func (s *Service) ListPublicTables(ctx context.Context, user model.UserContext) ([]PublicTable, error) {
	if user.Restricted() {
		return s.publicTables(ctx, user)
	}
	return cache.GetOrCompute(ctx, s.cache, catalogPrefix+"tables", s.cfg.CatalogTTL, func(ctx context.Context) ([]PublicTable, error) {
		return s.publicTables(ctx, user)
	})
}

// SearchTables lists the catalog tables that carry every named column.
func (s *Service) SearchTables(ctx context.Context, user model.UserContext, columns []string) ([]PublicTable, error) {
	want := make([]string, 0, len(columns))
	for _, c := range columns {
		if c = strings.TrimSpace(c); c != "" {
			want = append(want, c)
		}
	}
	if len(want) == 0 {
		return nil, ValidationError("columns parameter is required")
	}

	tables, err := s.ListPublicTables(ctx, user)
	if err != nil {
		return nil, err
	}
	out := []PublicTable{}
	for _, t := range tables {
		cols, err := s.store.ListColumns(ctx, t.ID)
		if err != nil {
			return nil, InternalError("failed to load columns", err)
		}
		if !slices.ContainsFunc(want, func(name string) bool {
			_, ok := model.FindColumn(cols, name)
			return !ok
		}) {
			out = append(out, t)
		}
	}
	return out, nil
}

// ============================================================================
// Items
// ============================================================================

// ItemList is the item listing of one catalog table.
type ItemList struct {
	TableID   string          `json:"tableId"`
	TableName string          `json:"tableName"`
	TableType model.TableType `json:"tableType"`
	Items     []any           `json:"items"`
	Count     int             `json:"count"`
}

// ListItems returns every item of a catalog table. flat selects Record
// entries instead of rows.
func (s *Service) ListItems(ctx context.Context, user model.UserContext, tableID string, flat bool) (*ItemList, error) {
	t, err := loadCatalogTable(ctx, s.store, user, tableID, "")
	if err != nil {
		return nil, err
	}
	if !slices.Contains(catalogTypes, t.TableType) {
		return nil, ForbiddenError("table does not support catalog listing")
	}

	list := &ItemList{TableID: t.ID, TableName: t.Name, TableType: t.TableType, Items: []any{}}
	err = s.eachRowPage(ctx, s.store, t.ID, func(rows []model.Row) error {
		for _, r := range rows {
			if flat {
				list.Items = append(list.Items, flatten(*t, r))
			} else {
				list.Items = append(list.Items, r)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	list.Count = len(list.Items)
	return list, nil
}

// GetItem returns one item of a catalog table as a Record.
func (s *Service) GetItem(ctx context.Context, user model.UserContext, tableID, itemID string) (Record, error) {
	t, err := loadCatalogTable(ctx, s.store, user, tableID, "")
	if err != nil {
		return nil, err
	}
	r, err := s.store.GetRow(ctx, t.ID, itemID)
	if err != nil {
		return nil, storeError(err, "item")
	}
	return flatten(*t, *r), nil
}

// Availability answers whether quantity units of an item can be had now.
type Availability struct {
	Available    bool  `json:"available"`
	AvailableQty int64 `json:"availableQty"`
	RequestedQty int64 `json:"requestedQty"`
}

// CheckAvailability reports the current stock of a sale item, or 1 or 0 for
// a rent item. The answer is read from the store and may be stale by the
// time a purchase is made; Buy and Rent check again under the item lock.
func (s *Service) CheckAvailability(ctx context.Context, user model.UserContext, tableID, itemID string, quantity int64) (*Availability, error) {
	if quantity < 1 {
		return nil, ValidationError("quantity must be at least 1")
	}
	t, err := loadCatalogTable(ctx, s.store, user, tableID, "")
	if err != nil {
		return nil, err
	}
	r, err := s.store.GetRow(ctx, t.ID, itemID)
	if err != nil {
		return nil, storeError(err, "item")
	}

	var qty int64
	switch t.TableType {
	case model.TableTypeSale:
		qty, _ = itemQuantity(r.Data)
	case model.TableTypeRent:
		available, used, err := rentState(r.Data)
		if err == nil && available && !used {
			qty = 1
		}
	default:
		return nil, ForbiddenError("table does not support purchases or rentals")
	}
	return &Availability{Available: qty >= quantity, AvailableQty: qty, RequestedQty: quantity}, nil
}

// ============================================================================
// Records
// ============================================================================

// RecordQuery filters QueryRecords. Where matches stored text without
// regard to case. Columns, when set, trims each record to those keys plus
// the identifying ones.
type RecordQuery struct {
	Where   map[string]string
	Columns []string
	Limit   int
	Offset  int
}

// Pagination describes one page of a listing.
type Pagination struct {
	Total   int64 `json:"total"`
	Page    int   `json:"page"`
	Limit   int   `json:"limit"`
	HasMore bool  `json:"hasMore"`
}

// RecordPage is one page of QueryRecords.
type RecordPage struct {
	Records    []Record          `json:"records"`
	Count      int               `json:"count"`
	Total      int64             `json:"total"`
	Pagination Pagination        `json:"pagination"`
	Filters    map[string]string `json:"filters,omitempty"`
}

// cachedRecords is the memoized form of an unrestricted record query.
type cachedRecords struct {
	Records []Record `json:"records"`
	Total   int64    `json:"total"`
}

// QueryRecords returns flattened items across every catalog table user may
// read, in a stable order suitable for paging.
func (s *Service) QueryRecords(ctx context.Context, user model.UserContext, q RecordQuery) (*RecordPage, error) {
	if q.Limit <= 0 {
		q.Limit = DefaultRecordLimit
	}
	q.Limit = min(q.Limit, MaxRecordLimit)
	q.Offset = max(q.Offset, 0)

	page := &RecordPage{Records: []Record{}, Filters: q.Where}
	page.Pagination = Pagination{Page: q.Offset/q.Limit + 1, Limit: q.Limit}

	tables, err := s.catalogTables(ctx, user)
	if err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		return page, nil
	}
	byID := make(map[string]model.Table, len(tables))
	ids := make([]string, len(tables))
	for i, t := range tables {
		byID[t.ID] = t
		ids[i] = t.ID
	}

	compute := func(ctx context.Context) (cachedRecords, error) {
		rows, total, err := s.store.QueryRows(ctx, store.RowQuery{
			TableIDs: ids,
			Where:    q.Where,
			Page:     store.Page{Limit: q.Limit, Offset: q.Offset},
		})
		if err != nil {
			return cachedRecords{}, InternalError("failed to query records", err)
		}
		out := cachedRecords{Records: make([]Record, 0, len(rows)), Total: total}
		for _, r := range rows {
			out.Records = append(out.Records, flatten(byID[r.TableID], r))
		}
		return out, nil
	}

	var res cachedRecords
	if user.Restricted() {
		res, err = compute(ctx)
	} else {
		res, err = cache.GetOrCompute(ctx, s.cache, recordsKey(ids, q), s.cfg.CatalogTTL, compute)
	}
	if err != nil {
		return nil, err
	}

	if len(q.Columns) > 0 {
		for _, rec := range res.Records {
			trimRecord(rec, q.Columns)
		}
	}
	page.Records = res.Records
	page.Count = len(res.Records)
	page.Total = res.Total
	page.Pagination.Total = res.Total
	page.Pagination.HasMore = int64(q.Offset+q.Limit) < res.Total
	return page, nil
}

// recordsKey derives the cache key of a record query.
func recordsKey(tableIDs []string, q RecordQuery) string {
	ids := slices.Sorted(slices.Values(tableIDs))
	keys := make([]string, 0, len(q.Where))
	for k := range q.Where {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var b strings.Builder
	b.WriteString(strings.Join(ids, ","))
	for _, k := range keys {
		fmt.Fprintf(&b, "|%s=%s", strings.ToLower(k), strings.ToLower(q.Where[k]))
	}
	fmt.Fprintf(&b, "|%d|%d", q.Limit, q.Offset)
	sum := sha1.Sum([]byte(b.String()))
	return catalogPrefix + "records:" + hex.EncodeToString(sum[:8])
}

var recordIdentity = []string{"id", "tableId", "tableName", "tableType"}

func trimRecord(rec Record, keep []string) {
	for k := range rec {
		if slices.Contains(recordIdentity, k) || slices.Contains(keep, k) {
			continue
		}
		delete(rec, k)
	}
}

// ============================================================================
// Distinct values
// ============================================================================

// ValueList is the set of distinct values of one column across tables.
type ValueList struct {
	Column        string            `json:"column"`
	Values        []any             `json:"values"`
	Count         int               `json:"count"`
	Filters       map[string]string `json:"filters,omitempty"`
	TablesSampled []string          `json:"tablesSampled"`
}

// DistinctValues collects the distinct non-empty values of column over the
// catalog tables that have it, optionally narrowed by where.
func (s *Service) DistinctValues(ctx context.Context, user model.UserContext, column string, where map[string]string) (*ValueList, error) {
	column = strings.TrimSpace(column)
	if column == "" {
		return nil, ValidationError("column is required")
	}
	out := &ValueList{Column: column, Values: []any{}, Filters: where, TablesSampled: []string{}}

	tables, err := s.catalogTables(ctx, user)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for _, t := range tables {
		cols, err := s.store.ListColumns(ctx, t.ID)
		if err != nil {
			return nil, InternalError("failed to load columns", err)
		}
		col, ok := model.FindColumn(cols, column)
		if !ok {
			continue
		}
		out.TablesSampled = append(out.TablesSampled, t.Name)

		for offset := 0; ; offset += s.cfg.SummaryPageSize {
			rows, _, err := s.store.QueryRows(ctx, store.RowQuery{
				TableIDs: []string{t.ID},
				Where:    where,
				Page:     store.Page{Limit: s.cfg.SummaryPageSize, Offset: offset},
			})
			if err != nil {
				return nil, InternalError("failed to read values", err)
			}
			for _, r := range rows {
				v, ok := RawRow(r.Data).lookup(col.Name)
				if !ok || coltype.IsEmpty(v) {
					continue
				}
				key := store.ValueKey(v)
				if seen[key] {
					continue
				}
				seen[key] = true
				out.Values = append(out.Values, v)
			}
			if len(rows) < s.cfg.SummaryPageSize {
				break
			}
		}
	}
	out.Count = len(out.Values)
	return out, nil
}
