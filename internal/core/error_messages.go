package core

// # Error Codes Reference
//
// Every error shown to a caller carries a support code. Callers quote the code
// and support staff look it up here.
//
// # Validation (VAL001-VAL099)
//
//	VAL001 - Input rejected by a column type or a request check
//	VAL002 - Insufficient stock for a purchase
//	VAL003 - Required field is empty
//	VAL004 - Duplicate value in a column that forbids duplicates
//	VAL005 - Import exceeds the row limit
//	VAL006 - Value is not one of the column's options
//	VAL007 - No active rental for the item
//
// # Conflict (CONF001-CONF099)
//
//	CONF001 - A column with this name already exists
//	CONF002 - The item already has an active rental
//
// # Access (AUTH001-AUTH099)
//
//	AUTH001 - Caller may not use this table
//	AUTH002 - Table does not support the requested operation
//
// # Not found (NF001-NF099)
//
//	NF001 - Table, item, sale or rental does not exist
//
// # Availability (SYS001-SYS099)
//
//	SYS001 - Too many imports in progress
//	SYS002 - Item is locked by another request
//
// # Database (DB001-DB099)
//
//	DB001 - Connection refused
//	DB002 - Connection reset
//	DB003 - Timeout
//	DB004 - Deadlock
//
// # Default (ERR000)
//
// Fallback when nothing matches. Check the application log for the technical
// error, keyed by request id.
//
// Typed *Error values are matched on their message first, then on their kind.
// Untyped errors are matched case-insensitively by substring; the first
// pattern wins, so specific patterns come before general ones.

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// =========================================================================
	// Validation
	// =========================================================================
	{
		pattern: "insufficient stock",
		msg: UserMessage{
			Message: "Not enough stock for this purchase",
			Action:  "Lower the quantity or check availability first",
			Code:    "VAL002",
		},
	},
	{
		pattern: "is required",
		msg: UserMessage{
			Message: "Required field is empty",
			Action:  "Ensure all required columns have values",
			Code:    "VAL003",
		},
	},
	{
		pattern: "duplicate value",
		msg: UserMessage{
			Message: "A value must be unique but appears more than once",
			Action:  "Remove the duplicate rows or allow duplicates for the column",
			Code:    "VAL004",
		},
	},
	{
		pattern: "exceeds the limit",
		msg: UserMessage{
			Message: "Import is larger than the allowed row limit",
			Action:  "Split the data into smaller batches",
			Code:    "VAL005",
		},
	},
	{
		pattern: "is not one of",
		msg: UserMessage{
			Message: "Value is not in the allowed list",
			Action:  "Check the allowed values for this field",
			Code:    "VAL006",
		},
	},
	{
		pattern: "no active rental",
		msg: UserMessage{
			Message: "This item has no active rental",
			Action:  "Check the rental id or the item",
			Code:    "VAL007",
		},
	},

	// =========================================================================
	// Conflict
	// =========================================================================
	{
		pattern: "column already exists",
		msg: UserMessage{
			Message: "A column with this name already exists",
			Action:  "Choose a different column name",
			Code:    "CONF001",
		},
	},
	{
		pattern: "already rented",
		msg: UserMessage{
			Message: "The item already has an active rental",
			Action:  "Release the current rental first",
			Code:    "CONF002",
		},
	},

	// =========================================================================
	// Access
	// =========================================================================
	{
		pattern: "does not support",
		msg: UserMessage{
			Message: "This table does not support the operation",
			Action:  "Use a sale table to buy and a rent table to rent",
			Code:    "AUTH002",
		},
	},

	// =========================================================================
	// Availability
	// =========================================================================
	{
		pattern: "too many imports",
		msg: UserMessage{
			Message: "System is busy processing other imports",
			Action:  "Please wait a moment and try again",
			Code:    "SYS001",
		},
	},
	{
		pattern: "(lock)",
		msg: UserMessage{
			Message: "The item is being updated by another request",
			Action:  "Please try again",
			Code:    "SYS002",
		},
	},

	// =========================================================================
	// Database
	// =========================================================================
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB002",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try a smaller import or try again later",
			Code:    "DB003",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB004",
		},
	},
}

// kindMessages is the fallback for typed errors no pattern matched.
var kindMessages = map[Kind]UserMessage{
	KindValidation: {
		Message: "The request contains invalid data",
		Action:  "Review the details and correct the input",
		Code:    "VAL001",
	},
	KindConflict: {
		Message: "The request conflicts with existing data",
		Action:  "Use a different name or value",
		Code:    "CONF001",
	},
	KindForbidden: {
		Message: "You do not have access to this table",
		Action:  "Ask the table owner for access",
		Code:    "AUTH001",
	},
	KindNotFound: {
		Message: "The requested record does not exist",
		Action:  "Verify the id is correct",
		Code:    "NF001",
	},
	KindUnavailable: {
		Message: "System is busy",
		Action:  "Please wait a moment and try again",
		Code:    "SYS001",
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

func matchPattern(s string) (UserMessage, bool) {
	s = strings.ToLower(s)
	for _, ep := range errorPatterns {
		if strings.Contains(s, ep.pattern) {
			return ep.msg, true
		}
	}
	return UserMessage{}, false
}

// MapError converts an error to a user-friendly message with a support code.
//
// Example:
//
//	msg := MapError(ValidationError("insufficient stock: available 5, requested 6"))
//	// msg.Code == "VAL002"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var e *Error
	if errors.As(err, &e) {
		if e.Kind == KindInternal {
			return defaultMessage
		}
		if msg, ok := matchPattern(e.Message); ok {
			return msg
		}
		return kindMessages[e.Kind]
	}

	if msg, ok := matchPattern(err.Error()); ok {
		return msg
	}
	if k := KindOf(err); k != KindInternal {
		return kindMessages[k]
	}
	return defaultMessage
}

// Code returns the support code for err.
func Code(err error) string {
	return MapError(err).Code
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user message. The original
// error stays available through Unwrap for logging.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
