package web

import (
	"errors"
	"net/http"

	"github.com/JonMunkholm/tabled/internal/core"
	"github.com/JonMunkholm/tabled/internal/model"
)

// userFrom returns the caller attached by the Identity middleware. Requests
// that bypassed it are anonymous.
func userFrom(r *http.Request) model.UserContext {
	u, _ := core.UserFromContext(r.Context())
	return u
}

func asCoreError(err error) (*core.Error, bool) {
	var e *core.Error
	ok := errors.As(err, &e)
	return e, ok
}
