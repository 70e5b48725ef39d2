package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/tabled/internal/config"
	"github.com/JonMunkholm/tabled/internal/core"
	"github.com/JonMunkholm/tabled/internal/metrics"
	"github.com/JonMunkholm/tabled/internal/store/memory"
	mw "github.com/JonMunkholm/tabled/internal/web/middleware"
)

const (
	ownerID   = "owner-1"
	shopperID = "shopper-1"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RequestTimeout: 5 * time.Second, MaxBodySize: 1 << 20},
		Import: config.ImportConfig{MaxRows: 100},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	svc := core.NewService(memory.New(), core.Config{}, core.Options{})
	s := NewServer(svc, cfg, metrics.New())
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

// do sends a request as userID (anonymous when empty) and decodes a JSON
// response into out when out is non-nil.
func do(t *testing.T, s *Server, method, path, userID string, body any, out any) *httptest.ResponseRecorder {
	t.Helper()

	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, rdr)
	if userID != "" {
		req.Header.Set(mw.HeaderUserID, userID)
	}
	if _, ok := body.(string); !ok && body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), "body: %s", rec.Body.String())
	}
	return rec
}

type tableResp struct {
	Table struct {
		ID      string `json:"id"`
		Columns []struct {
			Name string `json:"name"`
		} `json:"columns"`
	} `json:"table"`
}

// createShop creates a public sale table with one stocked item and returns
// the table and item ids.
func createShop(t *testing.T, s *Server) (string, string) {
	t.Helper()
	var tr tableResp
	rec := do(t, s, http.MethodPost, "/api/tables", ownerID, map[string]any{
		"name":       "Shop",
		"tableType":  "sale",
		"visibility": "public",
		"columns":    []map[string]any{{"name": "name", "type": "text", "isRequired": true}},
	}, &tr)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var rr struct {
		Row struct {
			ID string `json:"id"`
		} `json:"row"`
	}
	rec = do(t, s, http.MethodPost, "/api/tables/"+tr.Table.ID+"/rows", ownerID, map[string]any{
		"data": map[string]any{"name": "Widget", "price": "9.99", "qty": 5},
	}, &rr)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return tr.Table.ID, rr.Row.ID
}

// ============================================================================
// Health and metrics
// ============================================================================

func TestHealthz(t *testing.T) {
	s := newTestServer(t, testConfig())

	var body map[string]string
	rec := do(t, s, http.MethodGet, "/healthz", "", nil, &body)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, testConfig())
	do(t, s, http.MethodGet, "/healthz", "", nil, nil)

	rec := do(t, s, http.MethodGet, "/metrics", "", nil, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `tabled_http_requests_total{method="GET",route="/healthz",status="200"} 1`)
}

// ============================================================================
// Tables and rows
// ============================================================================

func TestCreateTable(t *testing.T) {
	s := newTestServer(t, testConfig())
	id, _ := createShop(t, s)

	var tr tableResp
	rec := do(t, s, http.MethodGet, "/api/tables/"+id, ownerID, nil, &tr)
	require.Equal(t, http.StatusOK, rec.Code)

	names := make([]string, 0, len(tr.Table.Columns))
	for _, c := range tr.Table.Columns {
		names = append(names, c.Name)
	}
	assert.ElementsMatch(t, []string{"name", "price", "qty"}, names)

	var list struct {
		Count int `json:"count"`
	}
	do(t, s, http.MethodGet, "/api/tables", ownerID, nil, &list)
	assert.Equal(t, 1, list.Count)
}

func TestCreateTable_Anonymous(t *testing.T) {
	s := newTestServer(t, testConfig())

	var resp ErrorResponse
	rec := do(t, s, http.MethodPost, "/api/tables", "", map[string]any{"name": "x"}, &resp)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", resp.Error)
	assert.Equal(t, "AUTH001", resp.Code)
	assert.Equal(t, "authentication required", resp.Message)
}

func TestListTables_Empty(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := do(t, s, http.MethodGet, "/api/tables", ownerID, nil, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"tables":[],"count":0}`, rec.Body.String())
}

func TestCreateRow_Invalid(t *testing.T) {
	s := newTestServer(t, testConfig())
	id, _ := createShop(t, s)

	var resp ErrorResponse
	rec := do(t, s, http.MethodPost, "/api/tables/"+id+"/rows", ownerID, map[string]any{
		"data": map[string]any{"price": "1.00"},
	}, &resp)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", resp.Error)
	assert.Contains(t, resp.Message, "name is required")
}

func TestCreateRow_DuplicateValue(t *testing.T) {
	s := newTestServer(t, testConfig())

	var tr tableResp
	rec := do(t, s, http.MethodPost, "/api/tables", ownerID, map[string]any{
		"name":    "Parts",
		"columns": []map[string]any{{"name": "sku", "type": "text", "allowDuplicates": false}},
	}, &tr)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	path := "/api/tables/" + tr.Table.ID + "/rows"
	rec = do(t, s, http.MethodPost, path, ownerID, map[string]any{"data": map[string]any{"sku": "A-1"}}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp ErrorResponse
	rec = do(t, s, http.MethodPost, path, ownerID, map[string]any{"data": map[string]any{"sku": "A-1"}}, &resp)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", resp.Error)
	assert.Contains(t, resp.Message, "duplicate value A-1 in column sku")
}

func TestBadJSON(t *testing.T) {
	s := newTestServer(t, testConfig())

	var resp ErrorResponse
	rec := do(t, s, http.MethodPost, "/api/tables", ownerID, "{not json", &resp)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, resp.Message, "invalid request body")
}

func TestBodyTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.Server.MaxBodySize = 16
	s := newTestServer(t, cfg)

	var resp ErrorResponse
	rec := do(t, s, http.MethodPost, "/api/tables", ownerID, map[string]any{"name": strings.Repeat("x", 64)}, &resp)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, resp.Message, "exceeds 16 bytes")
}

// ============================================================================
// Import
// ============================================================================

func TestImport_JSON(t *testing.T) {
	s := newTestServer(t, testConfig())
	id, _ := createShop(t, s)

	var result core.ImportResult
	rec := do(t, s, http.MethodPost, "/api/tables/"+id+"/data/import", ownerID, map[string]any{
		"hasHeaders": true,
		"data": [][]any{
			{"Name", "Price", "Qty"},
			{"Bolt", "1.50", "10"},
			{"Nut", "0.25", "100"},
		},
	}, &result)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, result.ImportedRows)
	assert.Empty(t, result.Errors)
}

func TestImport_ValidationEnvelope(t *testing.T) {
	s := newTestServer(t, testConfig())
	id, _ := createShop(t, s)

	var resp ErrorResponse
	rec := do(t, s, http.MethodPost, "/api/tables/"+id+"/data/import", ownerID, map[string]any{
		"hasHeaders": true,
		"data": [][]any{
			{"name", "price", "qty"},
			{"", "1.50", "10"},
			{"Nut", "cheap", "1"},
		},
	}, &resp)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Len(t, resp.Details, 2)
	assert.Equal(t, resp.Details[0], resp.Message)
	assert.Equal(t, 2, resp.Total)

	var rows core.RowPage
	do(t, s, http.MethodGet, "/api/tables/"+id+"/rows", ownerID, nil, &rows)
	assert.EqualValues(t, 1, rows.Total, "failed import must not write")
}

func TestImport_CSVBody(t *testing.T) {
	s := newTestServer(t, testConfig())
	id, _ := createShop(t, s)

	req := httptest.NewRequest(http.MethodPost, "/api/tables/"+id+"/data/import/csv",
		strings.NewReader("\xEF\xBB\xBFname,price,qty\nBolt,1.50,10\n"))
	req.Header.Set("Content-Type", "text/csv")
	req.Header.Set(mw.HeaderUserID, ownerID)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"importedRows":1,"errors":[],"totalErrors":0}`, rec.Body.String())
}

func TestImport_CSVMultipart(t *testing.T) {
	s := newTestServer(t, testConfig())
	id, _ := createShop(t, s)

	var buf bytes.Buffer
	mpw := multipart.NewWriter(&buf)
	fw, err := mpw.CreateFormFile(csvFormField, "stock.csv")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("name;price;qty\nBolt;1.50;10\nNut;0.25;3\n"))
	require.NoError(t, mpw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/tables/"+id+"/data/import/csv?delimiter=%3B&importMode=replace", &buf)
	req.Header.Set("Content-Type", mpw.FormDataContentType())
	req.Header.Set(mw.HeaderUserID, ownerID)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var rows core.RowPage
	do(t, s, http.MethodGet, "/api/tables/"+id+"/rows", ownerID, nil, &rows)
	assert.EqualValues(t, 2, rows.Total, "replace drops the original item")
}

func TestImport_CSVTooManyRows(t *testing.T) {
	cfg := testConfig()
	cfg.Import.MaxRows = 1
	s := newTestServer(t, cfg)
	id, _ := createShop(t, s)

	var resp ErrorResponse
	rec := do(t, s, http.MethodPost, "/api/tables/"+id+"/data/import/csv", ownerID,
		"name,price,qty\nA,1,1\nB,1,1\n", &resp)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, resp.Message, "more than 1 data rows")
}

func TestMappingSuggestions(t *testing.T) {
	s := newTestServer(t, testConfig())
	id, _ := createShop(t, s)

	var body struct {
		Mappings  []core.MappingMatch `json:"mappings"`
		Unmatched []string            `json:"unmatched"`
	}
	rec := do(t, s, http.MethodPost, "/api/tables/"+id+"/data/mapping-suggestions", ownerID,
		map[string]any{"headers": []string{"Item Name", "PRICE", "Colour"}}, &body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, body.Mappings, 1)
	assert.Equal(t, "price", body.Mappings[0].TargetColumn)
	assert.Equal(t, []string{"Item Name", "Colour"}, body.Unmatched)
}

// ============================================================================
// Commerce
// ============================================================================

func TestBuyFlow(t *testing.T) {
	s := newTestServer(t, testConfig())
	tableID, itemID := createShop(t, s)

	var bought struct {
		Sale struct {
			ID           string `json:"id"`
			SaleNumber   string `json:"saleNumber"`
			QuantitySold int64  `json:"quantitySold"`
			TotalAmount  string `json:"totalAmount"`
		} `json:"sale"`
	}
	rec := do(t, s, http.MethodPost, "/api/public/buy", shopperID, map[string]any{
		"table_id": tableID, "item_id": itemID, "customer_id": "c-1", "quantity_sold": 2,
	}, &bought)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.EqualValues(t, 2, bought.Sale.QuantitySold)
	assert.Equal(t, "19.98", bought.Sale.TotalAmount)

	var avail core.Availability
	do(t, s, http.MethodGet, "/api/public/tables/"+tableID+"/items/"+itemID+"/availability?quantity=4", "", nil, &avail)
	assert.Equal(t, core.Availability{Available: false, AvailableQty: 3, RequestedQty: 4}, avail)

	var shortage ErrorResponse
	rec = do(t, s, http.MethodPost, "/api/public/buy", shopperID, map[string]any{
		"table_id": tableID, "item_id": itemID, "customer_id": "c-1", "quantity_sold": 6,
	}, &shortage)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VAL002", shortage.Code)

	var sales struct {
		Count int `json:"count"`
	}
	do(t, s, http.MethodGet, "/api/tables/"+tableID+"/sales", ownerID, nil, &sales)
	assert.Equal(t, 1, sales.Count)

	rec = do(t, s, http.MethodPatch, "/api/sales/"+bought.Sale.ID, ownerID, map[string]any{"paymentStatus": "paid"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var txs struct {
		Count int `json:"count"`
	}
	rec = do(t, s, http.MethodGet, "/api/inventory/transactions?table_id="+tableID+"&type=sale", ownerID, nil, &txs)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, txs.Count)
}

func TestBuy_UnknownTable(t *testing.T) {
	s := newTestServer(t, testConfig())

	var resp ErrorResponse
	rec := do(t, s, http.MethodPost, "/api/public/buy", shopperID, map[string]any{
		"table_id": "missing", "item_id": "x", "customer_id": "c-1", "quantity_sold": 1,
	}, &resp)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", resp.Error)
}

func TestRentalFlow(t *testing.T) {
	s := newTestServer(t, testConfig())

	var tr tableResp
	do(t, s, http.MethodPost, "/api/tables", ownerID, map[string]any{
		"name": "Tools", "tableType": "rent", "visibility": "public",
		"columns": []map[string]any{{"name": "name", "type": "text"}},
	}, &tr)
	var rr struct {
		Row struct {
			ID string `json:"id"`
		} `json:"row"`
	}
	do(t, s, http.MethodPost, "/api/tables/"+tr.Table.ID+"/rows", ownerID, map[string]any{"data": map[string]any{"name": "Drill"}}, &rr)

	var rented struct {
		Rental struct {
			ID           string `json:"id"`
			RentalStatus string `json:"rentalStatus"`
		} `json:"rental"`
	}
	rec := do(t, s, http.MethodPost, "/api/public/rent", shopperID, map[string]any{
		"tableId": tr.Table.ID, "itemId": rr.Row.ID, "customerId": "c-1",
	}, &rented)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "active", rented.Rental.RentalStatus)

	rec = do(t, s, http.MethodPost, "/api/public/release", shopperID, map[string]any{"rental_id": rented.Rental.ID}, &rented)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "released", rented.Rental.RentalStatus)

	var resp ErrorResponse
	rec = do(t, s, http.MethodPost, "/api/public/release", shopperID, map[string]any{
		"table_id": tr.Table.ID, "item_id": rr.Row.ID,
	}, &resp)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VAL007", resp.Code)
}

// ============================================================================
// Catalog
// ============================================================================

func TestCatalog(t *testing.T) {
	s := newTestServer(t, testConfig())
	tableID, itemID := createShop(t, s)

	var tables struct {
		Count int `json:"count"`
	}
	do(t, s, http.MethodGet, "/api/public/tables", "", nil, &tables)
	assert.Equal(t, 1, tables.Count)

	var search struct {
		Count           int      `json:"count"`
		SearchedColumns []string `json:"searchedColumns"`
	}
	do(t, s, http.MethodGet, "/api/public/tables/search?columns=NAME,+price", "", nil, &search)
	assert.Equal(t, 1, search.Count)
	assert.Equal(t, []string{"NAME", "price"}, search.SearchedColumns)

	rec := do(t, s, http.MethodGet, "/api/public/tables/search", "", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var item map[string]any
	do(t, s, http.MethodGet, "/api/public/tables/"+tableID+"/items/"+itemID, "", nil, &item)
	assert.Equal(t, "Widget", item["name"])
	assert.Equal(t, "Shop", item["tableName"])

	var page core.RecordPage
	do(t, s, http.MethodGet, "/api/public/records?where[name]=WIDGET&columns=price&limit=5", "", nil, &page)
	require.Len(t, page.Records, 1)
	assert.Equal(t, map[string]string{"name": "WIDGET"}, page.Filters)
	assert.Equal(t, 5, page.Pagination.Limit)
	assert.NotContains(t, page.Records[0], "qty")

	var values core.ValueList
	do(t, s, http.MethodGet, "/api/public/values/name", "", nil, &values)
	assert.Equal(t, []any{"Widget"}, values.Values)
}

func TestCatalog_RestrictedToken(t *testing.T) {
	s := newTestServer(t, testConfig())
	createShop(t, s)

	req := httptest.NewRequest(http.MethodGet, "/api/public/tables", nil)
	req.Header.Set(mw.HeaderTableAccess, "some-other-table")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.JSONEq(t, `{"tables":[],"count":0}`, rec.Body.String())
}

func TestPublic_RequiresAPIKey(t *testing.T) {
	cfg := testConfig()
	cfg.Security = config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"secret"}}
	s := newTestServer(t, cfg)

	rec := do(t, s, http.MethodGet, "/api/public/tables", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/public/tables", nil)
	req.Header.Set(mw.HeaderAPIKey, "secret")
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Owner routes are not behind the key.
	rec = do(t, s, http.MethodGet, "/api/tables", ownerID, nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// ============================================================================
// Rate limiting
// ============================================================================

func TestRateLimiter(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     2,
		window:   time.Minute,
		now:      func() time.Time { return now },
		done:     make(chan struct{}),
	}

	assert.True(t, rl.allow("1.1.1.1"))
	assert.True(t, rl.allow("1.1.1.1"))
	assert.False(t, rl.allow("1.1.1.1"))
	assert.True(t, rl.allow("2.2.2.2"), "budgets are per ip")

	now = now.Add(61 * time.Second)
	assert.True(t, rl.allow("1.1.1.1"), "budget resets after the window")

	now = now.Add(3 * time.Minute)
	rl.sweep()
	assert.Empty(t, rl.visitors)
}

func TestRateLimiter_Middleware(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1}
	s := newTestServer(t, cfg)

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/healthz", "", nil, nil).Code)

	var resp ErrorResponse
	rec := do(t, s, http.MethodGet, "/healthz", "", nil, &resp)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limited", resp.Error)
}
