package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilCollector(t *testing.T) {
	var c *Collector

	// None of these may panic.
	c.ObserveImport("add", "success", 10, 0.5)
	c.ImportWaiting(1)
	c.ObserveSale("success")
	c.ObserveRental("rent", "success")
	c.LedgerWriteFailed()
	c.LockContended()
	c.CacheLookup(true)
	c.RequestStarted("GET")("/healthz", 200)
}

func TestRequestStarted(t *testing.T) {
	c := NewWithRegistry(prometheus.NewRegistry())

	done := c.RequestStarted("POST")
	if got := testutil.ToFloat64(c.RequestsInFlight); got != 1 {
		t.Errorf("in flight = %v, want 1", got)
	}
	done("/api/public/buy", 201)

	if got := testutil.ToFloat64(c.RequestsInFlight); got != 0 {
		t.Errorf("in flight after = %v, want 0", got)
	}
	if got := testutil.ToFloat64(c.RequestsTotal.WithLabelValues("POST", "/api/public/buy", "201")); got != 1 {
		t.Errorf("requests_total = %v, want 1", got)
	}
}

func TestObserveImport(t *testing.T) {
	c := NewWithRegistry(prometheus.NewRegistry())

	c.ObserveImport("add", "success", 10, 0.2)
	c.ObserveImport("replace", "success", 5, 0.1)
	c.ObserveImport("add", "validation_failed", 0, 0.01)

	if got := testutil.ToFloat64(c.ImportsTotal.WithLabelValues("add", "success")); got != 1 {
		t.Errorf("imports_total{add,success} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.ImportedRows); got != 15 {
		t.Errorf("imported_rows_total = %v, want 15", got)
	}
}

func TestLedgerWriteFailed(t *testing.T) {
	c := NewWithRegistry(prometheus.NewRegistry())
	c.LedgerWriteFailed()
	c.LedgerWriteFailed()

	if got := testutil.ToFloat64(c.LedgerWriteFailures); got != 2 {
		t.Errorf("ledger_write_failures_total = %v, want 2", got)
	}
}

func TestCacheLookup(t *testing.T) {
	c := NewWithRegistry(prometheus.NewRegistry())
	c.CacheLookup(true)
	c.CacheLookup(false)
	c.CacheLookup(false)

	if got := testutil.ToFloat64(c.CacheLookups.WithLabelValues("hit")); got != 1 {
		t.Errorf("hits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.CacheLookups.WithLabelValues("miss")); got != 2 {
		t.Errorf("misses = %v, want 2", got)
	}
}

func TestHandler(t *testing.T) {
	c := New()
	c.ObserveSale("success")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `tabled_sales_total{outcome="success"} 1`) {
		t.Errorf("metrics output missing tabled_sales_total sample")
	}
}
