package web

// errors.go provides unified error response handling for the API.
//
// The error flow:
//  1. A handler gets an error from the core service or its own input checks
//  2. It calls respondError(w, r, err)
//  3. The status comes from the error's kind, the support code from core.MapError
//  4. The technical error is logged with the request ID for correlation
//  5. The caller receives the error envelope

import (
	"net/http"

	"github.com/JonMunkholm/tabled/internal/core"
	"github.com/JonMunkholm/tabled/internal/logging"
)

// ErrorResponse is the JSON envelope of every failed request.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
	Total   int      `json:"totalErrors,omitempty"`
	Action  string   `json:"action,omitempty"`
	Code    string   `json:"code"`
}

// errorResponse builds the envelope for err. Messages of typed core errors
// are safe to return; anything else is replaced by the generic message.
func errorResponse(err error) (int, ErrorResponse) {
	kind := core.KindOf(err)
	msg := core.MapError(err)

	resp := ErrorResponse{
		Error:   kind.String(),
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	}
	if e, ok := asCoreError(err); ok && kind != core.KindInternal {
		resp.Message = e.Message
		resp.Details = e.Details
		resp.Total = e.Total
	}
	return kind.HTTPStatus(), resp
}

// respondError logs err and writes its envelope.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := errorResponse(err)

	log := logging.FromContext(r.Context()).With(
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", resp.Code,
		"error", err.Error(),
	)
	if status >= http.StatusInternalServerError {
		log.Error("request error")
	} else {
		log.Warn("request rejected")
	}

	writeJSON(w, status, resp)
}

// badRequest reports a malformed request before it reaches the service.
func badRequest(w http.ResponseWriter, r *http.Request, format string, args ...any) {
	respondError(w, r, core.ValidationError(format, args...))
}
