package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/tabled/internal/core"
	"github.com/JonMunkholm/tabled/internal/model"
)

// ============================================================================
// Tables
// ============================================================================

func (s *Server) handleCreateTable(w http.ResponseWriter, r *http.Request) {
	var in core.TableInput
	if err := s.decodeJSON(w, r, &in); err != nil {
		badRequest(w, r, "%v", err)
		return
	}

	table, err := s.service.CreateTable(r.Context(), userFrom(r), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"table": table})
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	tables, err := s.service.ListTables(r.Context(), userFrom(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if tables == nil {
		tables = []model.Table{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables, "count": len(tables)})
}

func (s *Server) handleGetTable(w http.ResponseWriter, r *http.Request) {
	table, err := s.service.GetTable(r.Context(), userFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"table": table})
}

// ============================================================================
// Columns
// ============================================================================

func (s *Server) handleAddColumn(w http.ResponseWriter, r *http.Request) {
	var in core.ColumnInput
	if err := s.decodeJSON(w, r, &in); err != nil {
		badRequest(w, r, "%v", err)
		return
	}

	col, err := s.service.AddColumn(r.Context(), userFrom(r), chi.URLParam(r, "id"), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"column": col})
}

func (s *Server) handleUpdateColumn(w http.ResponseWriter, r *http.Request) {
	var patch core.ColumnPatch
	if err := s.decodeJSON(w, r, &patch); err != nil {
		badRequest(w, r, "%v", err)
		return
	}

	col, err := s.service.UpdateColumn(r.Context(), userFrom(r), chi.URLParam(r, "id"), chi.URLParam(r, "name"), patch)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"column": col})
}

func (s *Server) handleDeleteColumn(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.service.DeleteColumn(r.Context(), userFrom(r), chi.URLParam(r, "id"), name); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": name})
}

func (s *Server) handlePreviewTypeChange(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type string `json:"type"`
	}
	if err := s.decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, "%v", err)
		return
	}

	preview, err := s.service.PreviewTypeChange(r.Context(), userFrom(r), chi.URLParam(r, "id"), chi.URLParam(r, "name"), req.Type)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// ============================================================================
// Rows
// ============================================================================

func (s *Server) handleCreateRow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Data core.RawRow `json:"data"`
	}
	if err := s.decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, "%v", err)
		return
	}
	if req.Data == nil {
		badRequest(w, r, "data is required")
		return
	}

	row, err := s.service.CreateRow(r.Context(), userFrom(r), chi.URLParam(r, "id"), req.Data)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"row": row})
}

func (s *Server) handleListRows(w http.ResponseWriter, r *http.Request) {
	page, err := s.service.ListRows(r.Context(), userFrom(r), chi.URLParam(r, "id"), parsePage(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// ============================================================================
// Dataset validation
// ============================================================================

func (s *Server) handleValidateDataset(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.ValidateDataset(r.Context(), userFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleDeleteInvalidRows(w http.ResponseWriter, r *http.Request) {
	deleted, after, err := s.service.DeleteInvalidRows(r.Context(), userFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deletedCount": deleted, "validation": after})
}
