package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/tabled/internal/store"
)

// Listing defaults for owner routes.
const (
	defaultPageLimit = 100
	maxPageLimit     = 1000
)

// decodeJSON reads a JSON body into v, capped at the configured body size.
// Numbers are kept as json.Number so column types see the literal text.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodySize)
	dec := json.NewDecoder(body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		case errors.Is(err, io.EOF):
			return errors.New("request body is empty")
		default:
			return fmt.Errorf("invalid request body: %v", err)
		}
	}
	return nil
}

// parseIntParam parses an integer query parameter with a default value.
// Values below floor fall back to the default.
func parseIntParam(r *http.Request, name string, defaultVal, floor int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < floor {
		return defaultVal
	}
	return i
}

// parsePage reads limit and offset.
func parsePage(r *http.Request) store.Page {
	return store.Page{
		Limit:  min(parseIntParam(r, "limit", defaultPageLimit, 1), maxPageLimit),
		Offset: parseIntParam(r, "offset", 0, 0),
	}
}

// parseTimeParam accepts RFC 3339 timestamps or plain dates. An absent
// parameter yields the zero time.
func parseTimeParam(r *http.Request, name string) (time.Time, error) {
	val := strings.TrimSpace(r.URL.Query().Get(name))
	if val == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, val)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q (use YYYY-MM-DD or RFC 3339)", name, val)
	}
	return t.UTC(), nil
}

// parseList splits a comma-separated query parameter, dropping blanks.
func parseList(r *http.Request, name string) []string {
	var out []string
	for _, part := range strings.Split(r.URL.Query().Get(name), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseWhere collects where[column]=value filters.
func parseWhere(r *http.Request) map[string]string {
	where := make(map[string]string)
	for key, values := range r.URL.Query() {
		if !strings.HasPrefix(key, "where[") || !strings.HasSuffix(key, "]") || len(values) == 0 {
			continue
		}
		col := strings.TrimSpace(key[len("where[") : len(key)-1])
		if col == "" {
			continue
		}
		where[col] = values[0]
	}
	return where
}

// parseBoolParam reads a boolean query parameter.
func parseBoolParam(r *http.Request, name string, defaultVal bool) bool {
	b, err := strconv.ParseBool(r.URL.Query().Get(name))
	if err != nil {
		return defaultVal
	}
	return b
}
