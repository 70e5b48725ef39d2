package middleware

import (
	"net/http"
	"strings"

	"github.com/JonMunkholm/tabled/internal/core"
	"github.com/JonMunkholm/tabled/internal/logging"
	"github.com/JonMunkholm/tabled/internal/model"
)

// Identity headers set by the upstream auth layer.
const (
	HeaderUserID      = "X-User-ID"
	HeaderUserEmail   = "X-User-Email"
	HeaderTableAccess = "X-Table-Access"
)

// Identity attaches the caller described by the identity headers to the
// request context, along with the client IP. Requests without X-User-ID
// proceed anonymously. A present X-Table-Access header, even an empty one,
// restricts the caller to the listed tables.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := model.UserContext{
			UserID: strings.TrimSpace(r.Header.Get(HeaderUserID)),
			Email:  strings.TrimSpace(r.Header.Get(HeaderUserEmail)),
		}
		if values, ok := r.Header[http.CanonicalHeaderKey(HeaderTableAccess)]; ok {
			user.AllowedTables = splitList(strings.Join(values, ","))
		}

		ctx := core.ContextWithUser(r.Context(), user)
		ctx = core.ContextWithIPAddress(ctx, extractIPString(r.RemoteAddr))
		ctx = logging.WithUser(ctx, user.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// splitList splits a comma-separated header value, dropping blanks. The
// result is never nil.
func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func extractIPString(addr string) string {
	if ip := extractIP(addr); ip != nil {
		return ip.String()
	}
	return addr
}
