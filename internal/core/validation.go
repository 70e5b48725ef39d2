package core

// validation.go checks one row against a table's columns.
//
// Validation runs in one of two modes:
//  1. Strict (create and import): present values are coerced, missing values
//     take the column default, and a required column with neither is an issue.
//     Any issue blocks the write.
//  2. Advisory (dataset health): values are coerced for reporting only, empty
//     values always pass, nothing is mutated.

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/JonMunkholm/tabled/internal/core/coltype"
	"github.com/JonMunkholm/tabled/internal/model"
)

// Mode selects how strictly a row is validated.
type Mode int

const (
	ModeStrict Mode = iota
	ModeAdvisory
)

// RawRow is caller-supplied row input keyed by column name, before any
// coercion.
type RawRow map[string]any

// lookup finds the raw value for column name, preferring an exact key match.
func (r RawRow) lookup(name string) (any, bool) {
	if v, ok := r[name]; ok {
		return v, true
	}
	for k, v := range r {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

// ValidatedRow holds values already coerced by their column types. It is
// read-only once built.
type ValidatedRow struct {
	values map[string]any
}

// Get returns the typed value for column.
func (v ValidatedRow) Get(column string) (any, bool) {
	val, ok := v.values[column]
	return val, ok
}

// Columns returns the names of the populated columns in sorted order.
func (v ValidatedRow) Columns() []string {
	return slices.Sorted(maps.Keys(v.values))
}

// Len returns the number of populated columns.
func (v ValidatedRow) Len() int { return len(v.values) }

// Data returns the row as a JSON-storable document.
func (v ValidatedRow) Data() map[string]any {
	out := make(map[string]any, len(v.values))
	for k, val := range v.values {
		out[k] = coltype.Storable(val)
	}
	return out
}

// Issue is one strict-mode problem with a row. RowIndex is 1-based; zero
// means the row is not part of a batch.
type Issue struct {
	RowIndex int
	Column   string
	Message  string
}

func (i Issue) String() string {
	if i.RowIndex > 0 {
		return fmt.Sprintf("Row %d: %s", i.RowIndex, i.Message)
	}
	return i.Message
}

// IssueStrings renders issues for an error detail list.
func IssueStrings(issues []Issue) []string {
	out := make([]string, len(issues))
	for i, is := range issues {
		out[i] = is.String()
	}
	return out
}

// ValueValidationResult is the advisory verdict on one cell.
type ValueValidationResult struct {
	IsValid    bool   `json:"isValid"`
	Error      string `json:"error,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// RowReport is the advisory verdict on one row, keyed by column name.
type RowReport struct {
	Results  map[string]ValueValidationResult `json:"results"`
	Warnings int                              `json:"warnings"`
}

// Valid reports whether every cell passed.
func (r RowReport) Valid() bool { return r.Warnings == 0 }

// RowValidator validates rows using a type registry.
type RowValidator struct {
	types *coltype.Registry
}

// NewRowValidator creates a validator. A nil registry uses the built-ins.
func NewRowValidator(types *coltype.Registry) *RowValidator {
	if types == nil {
		types = coltype.NewRegistry()
	}
	return &RowValidator{types: types}
}

// Validate coerces raw against columns. In strict mode the issue list covers
// coercion failures, option mismatches, required columns without a value or
// default, and keys that name no column. In advisory mode empty values pass
// and defaults are not applied.
func (v *RowValidator) Validate(rowIndex int, raw RawRow, columns []model.Column, mode Mode) (ValidatedRow, []Issue) {
	out := ValidatedRow{values: make(map[string]any, len(columns))}
	var issues []Issue

	issue := func(col, format string, args ...any) {
		issues = append(issues, Issue{RowIndex: rowIndex, Column: col, Message: fmt.Sprintf(format, args...)})
	}

	for _, col := range columns {
		val, present := raw.lookup(col.Name)
		if present && coltype.IsEmpty(val) {
			present = false
		}

		if !present {
			if mode == ModeAdvisory {
				continue
			}
			if col.DefaultValue != nil && strings.TrimSpace(*col.DefaultValue) != "" {
				coerced, err := v.coerce(col, *col.DefaultValue)
				if err != nil {
					issue(col.Name, "%s: invalid default value: %v", col.Name, err)
					continue
				}
				out.values[col.Name] = coerced
				continue
			}
			if col.IsRequired {
				issue(col.Name, "%s is required", col.Name)
			}
			continue
		}

		coerced, err := v.coerce(col, val)
		if err != nil {
			issue(col.Name, "%s: %v", col.Name, err)
			continue
		}
		out.values[col.Name] = coerced
	}

	if mode == ModeStrict {
		var unknown []string
		for k := range raw {
			if _, ok := model.FindColumn(columns, k); !ok {
				unknown = append(unknown, k)
			}
		}
		slices.Sort(unknown)
		for _, k := range unknown {
			issue(k, "unknown column %q", k)
		}
	}

	return out, issues
}

// Advise reports per-column advisory results for raw without changing it.
// Empty values are always valid.
func (v *RowValidator) Advise(raw RawRow, columns []model.Column) RowReport {
	report := RowReport{Results: make(map[string]ValueValidationResult, len(columns))}
	for _, col := range columns {
		val, ok := raw.lookup(col.Name)
		if !ok || coltype.IsEmpty(val) {
			report.Results[col.Name] = ValueValidationResult{IsValid: true}
			continue
		}
		if _, err := v.coerce(col, val); err != nil {
			report.Results[col.Name] = ValueValidationResult{
				Error:      err.Error(),
				Suggestion: v.types.ResolveOrPermissive(col.Type).SuggestFix(val),
			}
			report.Warnings++
			continue
		}
		report.Results[col.Name] = ValueValidationResult{IsValid: true}
	}
	return report
}

// coerce runs the column's type contract and, for columns with options,
// checks membership.
func (v *RowValidator) coerce(col model.Column, raw any) (any, error) {
	coerced, err := v.types.ResolveOrPermissive(col.Type).Coerce(raw)
	if err != nil {
		return nil, err
	}
	if len(col.Options) > 0 {
		s := fmt.Sprint(coltype.Storable(coerced))
		if !col.HasOption(s) {
			return nil, fmt.Errorf("%q is not one of: %s", s, strings.Join(col.Options, ", "))
		}
	}
	return coerced, nil
}
