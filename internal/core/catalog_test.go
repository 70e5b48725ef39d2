package core

import (
	"slices"
	"testing"

	"github.com/JonMunkholm/tabled/internal/cache"
	"github.com/JonMunkholm/tabled/internal/model"
)

type catalogFixture struct {
	svc    *Service
	shop   *TableDetail
	tools  *TableDetail
	hidden *TableDetail
	notes  *TableDetail
	widget *model.Row
	gadget *model.Row
	drill  *model.Row
}

func newCatalogFixture(t *testing.T, opts ...func(*Options)) *catalogFixture {
	t.Helper()
	svc, _ := newTestService(t, opts...)
	f := &catalogFixture{svc: svc}
	f.shop = saleTable(t, svc)
	f.tools = rentTable(t, svc)
	f.hidden = createTable(t, svc, TableInput{Name: "Hidden", TableType: model.TableTypeSale})
	f.notes = createTable(t, svc, TableInput{Name: "Notes", Visibility: model.VisibilityPublic})
	f.widget = stockedItem(t, svc, f.shop.ID, "Widget", "9.99", 5)
	f.gadget = stockedItem(t, svc, f.shop.ID, "Gadget", "4.50", 0)
	f.drill = addRow(t, svc, f.tools.ID, RawRow{"name": "Drill"})
	addRow(t, svc, f.hidden.ID, RawRow{"price": "1", "qty": "1"})
	return f
}

func tableNames(tables []PublicTable) []string {
	out := make([]string, len(tables))
	for i, t := range tables {
		out[i] = t.Name
	}
	return out
}

// ============================================================================
// Table Listing Tests
// ============================================================================

func TestListPublicTables(t *testing.T) {
	f := newCatalogFixture(t)

	tests := []struct {
		name string
		user model.UserContext
		want []string
	}{
		{"anonymous", model.UserContext{}, []string{"Shop", "Tools"}},
		{"shopper", shopper, []string{"Shop", "Tools"}},
		{"token with private table", model.UserContext{AllowedTables: []string{f.hidden.ID, f.notes.ID}}, []string{"Hidden"}},
		{"empty token", model.UserContext{AllowedTables: []string{}}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.ListPublicTables(bg(), tt.user)
			if err != nil {
				t.Fatal(err)
			}
			if names := tableNames(got); !slices.Equal(names, tt.want) {
				t.Errorf("tables = %v, want %v", names, tt.want)
			}
		})
	}

	got, _ := f.svc.ListPublicTables(bg(), shopper)
	if got[0].RowCount != 2 || got[1].RowCount != 1 {
		t.Errorf("row counts = %d/%d, want 2/1", got[0].RowCount, got[1].RowCount)
	}
}

func TestListPublicTables_CacheInvalidatedOnWrite(t *testing.T) {
	f := newCatalogFixture(t, func(o *Options) { o.Cache = cache.NewMemory() })

	before, err := f.svc.ListPublicTables(bg(), shopper)
	if err != nil {
		t.Fatal(err)
	}
	addRow(t, f.svc, f.tools.ID, RawRow{"name": "Ladder"})

	after, err := f.svc.ListPublicTables(bg(), shopper)
	if err != nil {
		t.Fatal(err)
	}
	if before[1].RowCount != 1 || after[1].RowCount != 2 {
		t.Errorf("Tools rows before/after = %d/%d, want 1/2", before[1].RowCount, after[1].RowCount)
	}
}

func TestSearchTables(t *testing.T) {
	f := newCatalogFixture(t)

	tests := []struct {
		name    string
		columns []string
		want    []string
	}{
		{"shared column", []string{"name"}, []string{"Shop", "Tools"}},
		{"sale columns", []string{"price", " QTY "}, []string{"Shop"}},
		{"rent column", []string{"available"}, []string{"Tools"}},
		{"no match", []string{"name", "colour"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.SearchTables(bg(), shopper, tt.columns)
			if err != nil {
				t.Fatal(err)
			}
			if names := tableNames(got); !slices.Equal(names, tt.want) {
				t.Errorf("tables = %v, want %v", names, tt.want)
			}
		})
	}

	_, err := f.svc.SearchTables(bg(), shopper, []string{" ", ""})
	mustKind(t, err, KindValidation)
}

// ============================================================================
// Item Tests
// ============================================================================

func TestListItems(t *testing.T) {
	f := newCatalogFixture(t)

	list, err := f.svc.ListItems(bg(), shopper, f.shop.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if list.Count != 2 || list.TableName != "Shop" {
		t.Errorf("list = %+v", list)
	}
	if _, ok := list.Items[0].(model.Row); !ok {
		t.Errorf("item type = %T, want model.Row", list.Items[0])
	}

	flat, err := f.svc.ListItems(bg(), shopper, f.shop.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	rec, ok := flat.Items[0].(Record)
	if !ok {
		t.Fatalf("item type = %T, want Record", flat.Items[0])
	}
	if rec["id"] != f.widget.ID || rec["tableName"] != "Shop" || rec["name"] != "Widget" {
		t.Errorf("record = %v", rec)
	}
	if rec["createdAt"] != "2026-03-14T10:30:00Z" {
		t.Errorf("createdAt = %v", rec["createdAt"])
	}

	_, err = f.svc.ListItems(bg(), shopper, f.notes.ID, false)
	mustKind(t, err, KindForbidden)

	_, err = f.svc.ListItems(bg(), shopper, f.hidden.ID, false)
	mustKind(t, err, KindForbidden)
}

func TestGetItem(t *testing.T) {
	f := newCatalogFixture(t)

	rec, err := f.svc.GetItem(bg(), shopper, f.tools.ID, f.drill.ID)
	if err != nil {
		t.Fatal(err)
	}
	if rec["tableType"] != model.TableTypeRent || rec["available"] != true {
		t.Errorf("record = %v", rec)
	}

	_, err = f.svc.GetItem(bg(), shopper, f.tools.ID, "missing")
	mustKind(t, err, KindNotFound)
}

func TestFlatten_MetadataWins(t *testing.T) {
	tbl := model.Table{ID: "t1", Name: "Shop", TableType: model.TableTypeSale}
	row := model.Row{ID: "r1", TableID: "t1", Data: map[string]any{"id": "spoofed", "colour": "red"}}

	rec := flatten(tbl, row)
	if rec["id"] != "r1" || rec["colour"] != "red" {
		t.Errorf("record = %v", rec)
	}
}

func TestCheckAvailability(t *testing.T) {
	f := newCatalogFixture(t)
	rented := addRow(t, f.svc, f.tools.ID, RawRow{"name": "Saw"})
	rentItem(t, f.svc, f.tools.ID, rented.ID)

	tests := []struct {
		name          string
		tableID       string
		itemID        string
		qty           int64
		wantAvailable bool
		wantQty       int64
	}{
		{"in stock", f.shop.ID, f.widget.ID, 3, true, 5},
		{"all of it", f.shop.ID, f.widget.ID, 5, true, 5},
		{"too many", f.shop.ID, f.widget.ID, 6, false, 5},
		{"sold out", f.shop.ID, f.gadget.ID, 1, false, 0},
		{"rent free", f.tools.ID, f.drill.ID, 1, true, 1},
		{"rent taken", f.tools.ID, rented.ID, 1, false, 0},
		{"rent two", f.tools.ID, f.drill.ID, 2, false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.CheckAvailability(bg(), shopper, tt.tableID, tt.itemID, tt.qty)
			if err != nil {
				t.Fatal(err)
			}
			if got.Available != tt.wantAvailable || got.AvailableQty != tt.wantQty || got.RequestedQty != tt.qty {
				t.Errorf("got %+v", got)
			}
		})
	}

	_, err := f.svc.CheckAvailability(bg(), shopper, f.shop.ID, f.widget.ID, 0)
	mustKind(t, err, KindValidation)

	_, err = f.svc.CheckAvailability(bg(), shopper, f.notes.ID, "x", 1)
	mustKind(t, err, KindNotFound)
}

// ============================================================================
// Record Query Tests
// ============================================================================

func TestQueryRecords(t *testing.T) {
	f := newCatalogFixture(t)

	all, err := f.svc.QueryRecords(bg(), shopper, RecordQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if all.Total != 3 || all.Count != 3 || all.Pagination.Limit != DefaultRecordLimit || all.Pagination.HasMore {
		t.Errorf("all = %+v", all.Pagination)
	}

	filtered, err := f.svc.QueryRecords(bg(), shopper, RecordQuery{Where: map[string]string{"name": "WIDGET"}})
	if err != nil {
		t.Fatal(err)
	}
	if filtered.Count != 1 || filtered.Records[0]["id"] != f.widget.ID {
		t.Errorf("filtered = %+v", filtered.Records)
	}
	if filtered.Filters["name"] != "WIDGET" {
		t.Errorf("filters = %v", filtered.Filters)
	}

	paged, err := f.svc.QueryRecords(bg(), shopper, RecordQuery{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatal(err)
	}
	if paged.Count != 1 || paged.Pagination.Page != 2 || paged.Pagination.HasMore {
		t.Errorf("paged = %+v count=%d", paged.Pagination, paged.Count)
	}

	first, _ := f.svc.QueryRecords(bg(), shopper, RecordQuery{Limit: 2})
	if !first.Pagination.HasMore {
		t.Error("first page HasMore = false")
	}

	capped, _ := f.svc.QueryRecords(bg(), shopper, RecordQuery{Limit: 5000})
	if capped.Pagination.Limit != MaxRecordLimit {
		t.Errorf("limit = %d, want %d", capped.Pagination.Limit, MaxRecordLimit)
	}
}

func TestQueryRecords_Columns(t *testing.T) {
	f := newCatalogFixture(t)

	page, err := f.svc.QueryRecords(bg(), shopper, RecordQuery{
		Where:   map[string]string{"name": "widget"},
		Columns: []string{"price"},
	})
	if err != nil {
		t.Fatal(err)
	}
	rec := page.Records[0]
	for _, k := range []string{"id", "tableId", "tableName", "tableType", "price"} {
		if _, ok := rec[k]; !ok {
			t.Errorf("missing %q in %v", k, rec)
		}
	}
	for _, k := range []string{"name", "qty", "createdAt"} {
		if _, ok := rec[k]; ok {
			t.Errorf("unexpected %q in %v", k, rec)
		}
	}
}

func TestQueryRecords_Restricted(t *testing.T) {
	f := newCatalogFixture(t, func(o *Options) { o.Cache = cache.NewMemory() })

	// Warm the shared cache with an unrestricted query first.
	if _, err := f.svc.QueryRecords(bg(), shopper, RecordQuery{}); err != nil {
		t.Fatal(err)
	}

	token := model.UserContext{AllowedTables: []string{f.hidden.ID}}
	page, err := f.svc.QueryRecords(bg(), token, RecordQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 1 || page.Records[0]["tableName"] != "Hidden" {
		t.Errorf("restricted = %+v", page.Records)
	}

	none, err := f.svc.QueryRecords(bg(), model.UserContext{AllowedTables: []string{}}, RecordQuery{})
	if err != nil || none.Total != 0 || none.Records == nil {
		t.Errorf("empty token = %+v, %v", none, err)
	}
}

func TestRecordsKey(t *testing.T) {
	a := recordsKey([]string{"t2", "t1"}, RecordQuery{Where: map[string]string{"Name": "X"}, Limit: 10})
	b := recordsKey([]string{"t1", "t2"}, RecordQuery{Where: map[string]string{"name": "x"}, Limit: 10})
	c := recordsKey([]string{"t1", "t2"}, RecordQuery{Where: map[string]string{"name": "x"}, Limit: 10, Offset: 10})

	if a != b {
		t.Errorf("equivalent queries differ: %s vs %s", a, b)
	}
	if a == c {
		t.Error("different offsets share a key")
	}
}

// ============================================================================
// Distinct Value Tests
// ============================================================================

func TestDistinctValues(t *testing.T) {
	f := newCatalogFixture(t)
	addRow(t, f.svc, f.tools.ID, RawRow{"name": "Widget"})

	got, err := f.svc.DistinctValues(bg(), shopper, "name", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.Count != 3 {
		t.Errorf("values = %v, want Widget, Gadget, Drill", got.Values)
	}
	if !slices.Equal(got.TablesSampled, []string{"Shop", "Tools"}) {
		t.Errorf("TablesSampled = %v", got.TablesSampled)
	}

	priced, err := f.svc.DistinctValues(bg(), shopper, "price", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(priced.TablesSampled, []string{"Shop"}) || priced.Count != 2 {
		t.Errorf("price = %+v", priced)
	}

	narrowed, err := f.svc.DistinctValues(bg(), shopper, "name", map[string]string{"name": "drill"})
	if err != nil {
		t.Fatal(err)
	}
	if narrowed.Count != 1 || narrowed.Values[0] != "Drill" {
		t.Errorf("narrowed = %v", narrowed.Values)
	}

	_, err = f.svc.DistinctValues(bg(), shopper, " ", nil)
	mustKind(t, err, KindValidation)
}
