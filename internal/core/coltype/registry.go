// Package coltype holds the column type contracts used to coerce and check
// user-supplied cell values.
//
// Every column of a user table names a type id. The Registry resolves that id
// to a TypeContract; ids that are not registered resolve to a permissive
// contract that accepts any value unchanged, so tables created against a type
// that was later removed keep working.
//
// Built-in ids are plain words ("currency", "country"). Types declared by
// extension modules are namespaced as "<moduleId>:<typeId>".
package coltype

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// TypeContract coerces raw input into the canonical value for one column type.
//
// Coerce must be idempotent: coercing an already-coerced value returns an
// equal value. SuggestFix returns a human hint for a value that failed Coerce.
type TypeContract interface {
	ID() string
	Coerce(raw any) (any, error)
	SuggestFix(raw any) string
}

// PermissiveID is the id reported by the fallback contract.
const PermissiveID = "permissive"

// ErrDuplicateType is returned when a type id is registered twice.
var ErrDuplicateType = errors.New("column type already registered")

// Registry maps type ids to contracts. It is safe for concurrent use; writes
// are expected only at startup.
type Registry struct {
	mu    sync.RWMutex
	types map[string]TypeContract
}

// NewRegistry returns a registry preloaded with the built-in types.
func NewRegistry() *Registry {
	r := &Registry{types: make(map[string]TypeContract)}
	for _, c := range builtins() {
		r.types[c.ID()] = c
	}
	return r
}

// Register adds a module-declared contract under "<moduleID>:<typeID>".
func (r *Registry) Register(moduleID, typeID string, c TypeContract) error {
	moduleID = strings.TrimSpace(moduleID)
	typeID = strings.TrimSpace(typeID)
	if moduleID == "" || typeID == "" {
		return fmt.Errorf("register column type: module and type id are required")
	}
	if c == nil {
		return fmt.Errorf("register column type %s:%s: nil contract", moduleID, typeID)
	}

	key := normalizeID(moduleID + ":" + typeID)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.types[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateType, key)
	}
	r.types[key] = c
	return nil
}

// Resolve returns the contract registered for id.
func (r *Registry) Resolve(id string) (TypeContract, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.types[normalizeID(id)]
	return c, ok
}

// ResolveOrPermissive returns the contract for id, or the accept-anything
// contract when id is unknown.
func (r *Registry) ResolveOrPermissive(id string) TypeContract {
	if c, ok := r.Resolve(id); ok {
		return c
	}
	return permissive{}
}

// IDs returns all registered type ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.types))
	for id := range r.types {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// permissive accepts any value. Strings are trimmed.
type permissive struct{}

func (permissive) ID() string { return PermissiveID }

func (permissive) Coerce(raw any) (any, error) {
	if s, ok := raw.(string); ok {
		return strings.TrimSpace(s), nil
	}
	return raw, nil
}

func (permissive) SuggestFix(any) string { return "" }
