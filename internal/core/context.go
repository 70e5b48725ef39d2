package core

import (
	"context"

	"github.com/JonMunkholm/tabled/internal/model"
)

type contextKey string

const (
	ctxKeyUser      contextKey = "user"
	ctxKeyIPAddress contextKey = "client_ip"
)

// ContextWithUser attaches the authenticated caller handed over by the
// upstream auth layer.
func ContextWithUser(ctx context.Context, u model.UserContext) context.Context {
	return context.WithValue(ctx, ctxKeyUser, u)
}

// UserFromContext returns the caller attached by ContextWithUser.
func UserFromContext(ctx context.Context) (model.UserContext, bool) {
	u, ok := ctx.Value(ctxKeyUser).(model.UserContext)
	return u, ok
}

// ContextWithIPAddress adds the client IP for ledger notes and logs.
func ContextWithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKeyIPAddress, ip)
}

// GetIPAddressFromContext extracts the client IP from context.
func GetIPAddressFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyIPAddress).(string); ok {
		return v
	}
	return ""
}
