package core

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/JonMunkholm/tabled/internal/cache"
	"github.com/JonMunkholm/tabled/internal/store"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name:        "nil error returns empty",
			err:         nil,
			wantCode:    "",
			wantMessage: "",
		},
		{
			name:        "insufficient stock",
			err:         ValidationError("insufficient stock: available 5, requested 6"),
			wantCode:    "VAL002",
			wantMessage: "Not enough stock for this purchase",
		},
		{
			name:        "required field from import details",
			err:         ValidationErrors([]string{"Row 2: name is required"}),
			wantCode:    "VAL003",
			wantMessage: "Required field is empty",
		},
		{
			name:        "validation without pattern falls back to kind",
			err:         ValidationError("quantity_sold must be at least 1"),
			wantCode:    "VAL001",
			wantMessage: "The request contains invalid data",
		},
		{
			name:        "column conflict",
			err:         ConflictError("column already exists: sku"),
			wantCode:    "CONF001",
			wantMessage: "A column with this name already exists",
		},
		{
			name:        "forbidden",
			err:         ForbiddenError("access denied"),
			wantCode:    "AUTH001",
			wantMessage: "You do not have access to this table",
		},
		{
			name:        "wrong table type",
			err:         ForbiddenError("table does not support purchases"),
			wantCode:    "AUTH002",
			wantMessage: "This table does not support the operation",
		},
		{
			name:        "wrapped store not found",
			err:         fmt.Errorf("get row: %w", store.ErrNotFound),
			wantCode:    "NF001",
			wantMessage: "The requested record does not exist",
		},
		{
			name:        "lock busy",
			err:         cache.ErrLockBusy,
			wantCode:    "SYS002",
			wantMessage: "The item is being updated by another request",
		},
		{
			name:        "connection refused",
			err:         errors.New("dial tcp: connection refused"),
			wantCode:    "DB001",
			wantMessage: "Unable to connect to database",
		},
		{
			name:        "internal hides technical message",
			err:         InternalError("failed to insert sale", errors.New("connection refused")),
			wantCode:    "ERR000",
			wantMessage: "An unexpected error occurred",
		},
		{
			name:        "unknown error returns default",
			err:         errors.New("some random internal error"),
			wantCode:    "ERR000",
			wantMessage: "An unexpected error occurred",
		},
		{
			name:        "case insensitive matching",
			err:         errors.New("DEADLOCK detected"),
			wantCode:    "DB004",
			wantMessage: "Database was busy with conflicting operations",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Message != tt.wantMessage {
				t.Errorf("MapError() message = %q, want %q", got.Message, tt.wantMessage)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(ErrTooManyImports)

	expected := "System is busy processing other imports (Code: SYS001). Please wait a moment and try again"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error is not user facing", nil, false},
		{"typed validation is user facing", ValidationError("bad"), true},
		{"known pattern is user facing", errors.New("connection reset by peer"), true},
		{"unknown error is not user facing", errors.New("random internal error xyz"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewUserError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if got := NewUserError(nil); got != nil {
			t.Errorf("NewUserError(nil) = %v, want nil", got)
		}
	})

	t.Run("wraps technical error with user message", func(t *testing.T) {
		techErr := errors.New("deadlock detected")
		userErr := NewUserError(techErr)

		if userErr.Error() != "Database was busy with conflicting operations" {
			t.Errorf("Error() = %q, want user message", userErr.Error())
		}
		if !errors.Is(userErr, techErr) {
			t.Error("Unwrap() should return original error")
		}
	})
}

// ============================================================================
// Kinds
// ============================================================================

func TestKindOf(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		want   Kind
		status int
	}{
		{"validation", ValidationError("x"), KindValidation, http.StatusBadRequest},
		{"conflict", ConflictError("x"), KindConflict, http.StatusConflict},
		{"forbidden", ForbiddenError("x"), KindForbidden, http.StatusForbidden},
		{"not found", NotFoundError("x"), KindNotFound, http.StatusNotFound},
		{"wrapped typed", fmt.Errorf("outer: %w", NotFoundError("x")), KindNotFound, http.StatusNotFound},
		{"store not found", store.ErrNotFound, KindNotFound, http.StatusNotFound},
		{"store conflict", store.ErrConflict, KindConflict, http.StatusConflict},
		{"too many imports", ErrTooManyImports, KindUnavailable, http.StatusServiceUnavailable},
		{"plain", errors.New("boom"), KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := KindOf(tt.err)
			if got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
			if got.HTTPStatus() != tt.status {
				t.Errorf("HTTPStatus() = %d, want %d", got.HTTPStatus(), tt.status)
			}
		})
	}
}

func TestValidationErrors_FirstDetailIsMessage(t *testing.T) {
	err := ValidationErrors([]string{"Row 1: a", "Row 2: b"})
	if err.Message != "Row 1: a" {
		t.Errorf("Message = %q, want first detail", err.Message)
	}
	if len(err.Details) != 2 {
		t.Errorf("Details = %v, want 2 entries", err.Details)
	}
}

func TestStoreError(t *testing.T) {
	if err := storeError(nil, "table"); err != nil {
		t.Errorf("storeError(nil) = %v, want nil", err)
	}
	err := storeError(store.ErrNotFound, "table")
	if KindOf(err) != KindNotFound || err.(*Error).Message != "table not found" {
		t.Errorf("storeError(ErrNotFound) = %v", err)
	}
	typed := ForbiddenError("access denied")
	if got := storeError(typed, "table"); got != typed {
		t.Errorf("storeError(typed) = %v, want it unchanged", got)
	}
	if KindOf(storeError(errors.New("boom"), "table")) != KindInternal {
		t.Error("storeError(plain) should be internal")
	}
}
