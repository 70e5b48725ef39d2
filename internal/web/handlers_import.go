package web

import (
	"io"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/tabled/internal/core"
)

// csvFormField is the multipart field carrying the uploaded file.
const csvFormField = "file"

// handleImport imports a JSON batch.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req core.ImportRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, "%v", err)
		return
	}
	s.runImport(w, r, req)
}

// handleImportCSV imports a CSV file sent as multipart form data or as a
// text/csv body. Query parameters: hasHeaders (default true), importMode
// and delimiter.
func (s *Server) handleImportCSV(w http.ResponseWriter, r *http.Request) {
	opts := core.CSVOptions{
		HasHeaders: parseBoolParam(r, "hasHeaders", true),
		MaxRows:    s.cfg.Import.MaxRows,
	}
	if d := r.URL.Query().Get("delimiter"); d != "" {
		c, size := utf8.DecodeRuneInString(d)
		if size != len(d) || c == utf8.RuneError {
			badRequest(w, r, "delimiter must be a single character")
			return
		}
		opts.Comma = c
	}

	body, closeBody, err := s.csvBody(w, r)
	if err != nil {
		badRequest(w, r, "%v", err)
		return
	}
	defer closeBody()

	req, err := core.ReadCSV(body, opts)
	if err != nil {
		if _, ok := asCoreError(err); !ok {
			err = core.ValidationError("%v", err)
		}
		respondError(w, r, err)
		return
	}
	req.ImportMode = core.ImportMode(r.URL.Query().Get("importMode"))
	s.runImport(w, r, req)
}

// csvBody returns the uploaded CSV stream.
func (s *Server) csvBody(w http.ResponseWriter, r *http.Request) (io.Reader, func(), error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodySize)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return r.Body, func() {}, nil
	}

	file, _, err := r.FormFile(csvFormField)
	if err != nil {
		return nil, nil, err
	}
	return file, func() {
		_ = file.Close()
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}, nil
}

func (s *Server) runImport(w http.ResponseWriter, r *http.Request, req core.ImportRequest) {
	result, err := s.service.Import(r.Context(), userFrom(r), chi.URLParam(r, "id"), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleMappingSuggestions pairs source headers with the table's columns.
func (s *Server) handleMappingSuggestions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Headers []string `json:"headers"`
	}
	if err := s.decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, "%v", err)
		return
	}
	if len(req.Headers) == 0 {
		badRequest(w, r, "headers are required")
		return
	}

	table, err := s.service.GetTable(r.Context(), userFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	matches := core.SuggestMapping(req.Headers, table.Columns)
	if matches == nil {
		matches = []core.MappingMatch{}
	}
	unmatched := []string{}
	used := make(map[int]bool, len(matches))
	for _, m := range matches {
		used[m.SourceIndex] = true
	}
	for i, h := range req.Headers {
		if !used[i] && strings.TrimSpace(h) != "" {
			unmatched = append(unmatched, h)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"mappings":  matches,
		"unmatched": unmatched,
	})
}
