package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/tabled/internal/core"
)

// ============================================================================
// Commerce
// ============================================================================

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	var req core.BuyRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, "%v", err)
		return
	}

	sale, err := s.service.Buy(r.Context(), userFrom(r), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"sale": sale})
}

func (s *Server) handleRent(w http.ResponseWriter, r *http.Request) {
	var req core.RentRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, "%v", err)
		return
	}

	rental, err := s.service.Rent(r.Context(), userFrom(r), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"rental": rental})
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	var req core.ReleaseRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, "%v", err)
		return
	}

	rental, err := s.service.Release(r.Context(), userFrom(r), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rental": rental})
}

// ============================================================================
// Catalog
// ============================================================================

func (s *Server) handleListPublicTables(w http.ResponseWriter, r *http.Request) {
	tables, err := s.service.ListPublicTables(r.Context(), userFrom(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables, "count": len(tables)})
}

// handleSearchTables finds catalog tables carrying every column named in
// ?columns=a,b.
func (s *Server) handleSearchTables(w http.ResponseWriter, r *http.Request) {
	columns := parseList(r, "columns")
	tables, err := s.service.SearchTables(r.Context(), userFrom(r), columns)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tables":          tables,
		"count":           len(tables),
		"searchedColumns": columns,
	})
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.ListItems(r.Context(), userFrom(r), chi.URLParam(r, "id"), parseBoolParam(r, "flat", false))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.service.GetItem(r.Context(), userFrom(r), chi.URLParam(r, "id"), chi.URLParam(r, "itemId"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// handleAvailability checks stock for ?quantity=n (default 1).
func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	qty := parseIntParam(r, "quantity", 1, 1)
	avail, err := s.service.CheckAvailability(r.Context(), userFrom(r), chi.URLParam(r, "id"), chi.URLParam(r, "itemId"), int64(qty))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, avail)
}

// handleQueryRecords pages flattened records across the catalog. Query
// parameters: where[column]=value, columns=a,b, limit and offset.
func (s *Server) handleQueryRecords(w http.ResponseWriter, r *http.Request) {
	q := core.RecordQuery{
		Where:   parseWhere(r),
		Columns: parseList(r, "columns"),
		Limit:   parseIntParam(r, "limit", core.DefaultRecordLimit, 1),
		Offset:  parseIntParam(r, "offset", 0, 0),
	}

	page, err := s.service.QueryRecords(r.Context(), userFrom(r), q)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// handleDistinctValues lists the values of one column across the catalog,
// narrowed by where[column]=value.
func (s *Server) handleDistinctValues(w http.ResponseWriter, r *http.Request) {
	values, err := s.service.DistinctValues(r.Context(), userFrom(r), chi.URLParam(r, "column"), parseWhere(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, values)
}
