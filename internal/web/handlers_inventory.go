package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/tabled/internal/core"
	"github.com/JonMunkholm/tabled/internal/model"
	"github.com/JonMunkholm/tabled/internal/store"
)

// ============================================================================
// Sales
// ============================================================================

func (s *Server) handleListSales(w http.ResponseWriter, r *http.Request) {
	sales, err := s.service.ListSales(r.Context(), userFrom(r), chi.URLParam(r, "id"), parsePage(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales, "count": len(sales)})
}

func (s *Server) handleGetSale(w http.ResponseWriter, r *http.Request) {
	sale, err := s.service.GetSale(r.Context(), userFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (s *Server) handleUpdateSale(w http.ResponseWriter, r *http.Request) {
	var upd core.SaleUpdate
	if err := s.decodeJSON(w, r, &upd); err != nil {
		badRequest(w, r, "%v", err)
		return
	}

	sale, err := s.service.UpdateSale(r.Context(), userFrom(r), chi.URLParam(r, "id"), upd)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

// ============================================================================
// Rentals
// ============================================================================

func (s *Server) handleListRentals(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	rentals, err := s.service.ListRentals(r.Context(), userFrom(r), chi.URLParam(r, "id"), status, parsePage(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rentals": rentals, "count": len(rentals)})
}

func (s *Server) handleGetRental(w http.ResponseWriter, r *http.Request) {
	rental, err := s.service.GetRental(r.Context(), userFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rental": rental})
}

func (s *Server) handleCancelRental(w http.ResponseWriter, r *http.Request) {
	rental, err := s.service.CancelRental(r.Context(), userFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rental": rental})
}

// ============================================================================
// Ledger
// ============================================================================

// handleListTransactions lists ledger entries. Query parameters: table_id
// (required), item_id, type, from, to, limit and offset.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.LedgerFilter{
		TableID: q.Get("table_id"),
		ItemID:  q.Get("item_id"),
		Type:    model.TransactionType(q.Get("type")),
		Page:    parsePage(r),
	}

	var err error
	if f.From, err = parseTimeParam(r, "from"); err != nil {
		badRequest(w, r, "%v", err)
		return
	}
	if f.To, err = parseTimeParam(r, "to"); err != nil {
		badRequest(w, r, "%v", err)
		return
	}

	txs, err := s.service.ListTransactions(r.Context(), userFrom(r), f)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs, "count": len(txs)})
}

// handleInventoryAnalytics aggregates the ledger. Query parameters:
// table_id, from, to and bucket (day, week or month).
func (s *Server) handleInventoryAnalytics(w http.ResponseWriter, r *http.Request) {
	q := core.AnalyticsQuery{
		TableID: r.URL.Query().Get("table_id"),
		Bucket:  r.URL.Query().Get("bucket"),
	}

	var err error
	if q.From, err = parseTimeParam(r, "from"); err != nil {
		badRequest(w, r, "%v", err)
		return
	}
	if q.To, err = parseTimeParam(r, "to"); err != nil {
		badRequest(w, r, "%v", err)
		return
	}

	report, err := s.service.InventoryAnalytics(r.Context(), userFrom(r), q)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
