package core

// import.go ingests a batch of rows into a user table.
//
// An import runs in two phases inside one store transaction:
//  1. Validate: every row is mapped, coerced and checked for required values
//     and duplicates. All problems are collected; any problem rejects the
//     whole batch before a single write.
//  2. Commit: replace mode clears the table, then each row is inserted in its
//     own savepoint. A row whose insert fails is rolled back alone and
//     reported in the result; earlier rows stay.

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/tabled/internal/core/coltype"
	"github.com/JonMunkholm/tabled/internal/logging"
	"github.com/JonMunkholm/tabled/internal/model"
	"github.com/JonMunkholm/tabled/internal/store"
)

// ImportMode selects whether an import appends to or replaces table data.
type ImportMode string

const (
	ImportAdd     ImportMode = "add"
	ImportReplace ImportMode = "replace"
)

// ImportRequest is one batch of tabular input. When HasHeaders is set and
// Headers is empty, the first Data row is the header row.
type ImportRequest struct {
	HasHeaders     bool            `json:"hasHeaders"`
	Headers        []string        `json:"headers,omitempty"`
	Data           [][]any         `json:"data"`
	ColumnMappings []ColumnMapping `json:"columnMappings"`
	ImportMode     ImportMode      `json:"importMode"`
}

// ImportResult reports a committed import. Errors holds insert failures,
// capped; TotalErrors is the uncapped count.
type ImportResult struct {
	ImportedRows int      `json:"importedRows"`
	Errors       []string `json:"errors"`
	TotalErrors  int      `json:"totalErrors"`
}

// mappedColumn is a resolved ColumnMapping.
type mappedColumn struct {
	source int
	column model.Column
}

// pendingRow is a validated row waiting for the commit phase.
type pendingRow struct {
	index int
	row   ValidatedRow
}

// Import validates and stores req in the table. Validation problems return a
// ValidationError listing them and nothing is written.
func (s *Service) Import(ctx context.Context, user model.UserContext, tableID string, req ImportRequest) (*ImportResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ImportTimeout)
	defer cancel()

	if req.ImportMode == "" {
		req.ImportMode = ImportAdd
	}
	if req.ImportMode != ImportAdd && req.ImportMode != ImportReplace {
		return nil, ValidationError("invalid import mode %q (use add or replace)", req.ImportMode)
	}

	headers, rows := splitHeaders(req)
	if len(rows) > s.cfg.ImportMaxRows {
		return nil, ValidationError("import of %d rows exceeds the limit of %d", len(rows), s.cfg.ImportMaxRows)
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	log := logging.WithFields(ctx, "table_id", tableID, "import_mode", req.ImportMode)
	start := time.Now()

	result := &ImportResult{Errors: []string{}}
	var allErrors []string

	err := s.store.WithTx(ctx, func(tx store.Store) error {
		t, cols, err := loadOwnedTable(ctx, tx, user, tableID)
		if err != nil {
			return err
		}

		mapped, err := resolveMappings(req.ColumnMappings, headers, cols)
		if err != nil {
			return err
		}

		pending, problems, err := s.validateBatch(ctx, tx, tableID, req.ImportMode, rows, mapped, cols)
		if err != nil {
			return err
		}
		if len(problems) > 0 {
			verr := ValidationErrors(s.capErrors(problems))
			verr.Total = len(problems)
			return verr
		}

		if req.ImportMode == ImportReplace {
			if err := s.clearForReplace(ctx, tx, t, user.UserID); err != nil {
				return err
			}
		}

		now := s.now()
		for _, p := range pending {
			if err := ctx.Err(); err != nil {
				return err
			}
			row := model.Row{
				ID:        uuid.NewString(),
				TableID:   tableID,
				Data:      p.row.Data(),
				CreatedBy: user.UserID,
				CreatedAt: now,
				UpdatedAt: now,
			}
			err := tx.WithTx(ctx, func(sp store.Store) error {
				return sp.InsertRow(ctx, &row)
			})
			if err != nil {
				allErrors = append(allErrors, fmt.Sprintf("Row %d: failed to insert: %v", p.index, err))
				continue
			}
			result.ImportedRows++
			if t.TableType == model.TableTypeSale {
				s.ledger.Record(ctx, tx, stockAdded(t, row, user.UserID))
			}
		}
		return nil
	})

	elapsed := time.Since(start).Seconds()
	if err != nil {
		outcome := "error"
		if KindOf(err) == KindValidation {
			outcome = "rejected"
		}
		s.metrics.ObserveImport(string(req.ImportMode), outcome, 0, elapsed)
		log.Warn("import failed", "rows", len(rows), "error", err)
		return nil, err
	}

	result.TotalErrors = len(allErrors)
	result.Errors = append(result.Errors, s.capErrors(allErrors)...)

	outcome := "success"
	if result.TotalErrors > 0 {
		outcome = "partial"
	}
	s.metrics.ObserveImport(string(req.ImportMode), outcome, result.ImportedRows, elapsed)
	s.invalidateCatalog(ctx)
	log.Info("import completed",
		"rows_imported", result.ImportedRows,
		"insert_errors", result.TotalErrors,
		"duration_ms", int64(elapsed*1000),
	)
	return result, nil
}

// capErrors truncates errs to the configured cap, noting how many were left
// out.
func (s *Service) capErrors(errs []string) []string {
	limit := s.cfg.ImportErrorCap
	if len(errs) <= limit {
		return errs
	}
	out := append([]string(nil), errs[:limit]...)
	return append(out, fmt.Sprintf("... and %d more errors", len(errs)-limit))
}

// splitHeaders separates the header row from the data rows.
func splitHeaders(req ImportRequest) ([]string, [][]any) {
	rows := req.Data
	headers := req.Headers
	if req.HasHeaders && len(headers) == 0 && len(rows) > 0 {
		headers = make([]string, len(rows[0]))
		for i, h := range rows[0] {
			headers[i] = coltype.CleanCell(fmt.Sprint(h))
		}
		rows = rows[1:]
	}
	return headers, rows
}

// resolveMappings turns the requested mappings into source indexes. With no
// mappings, headers are matched to columns by name; without headers, columns
// are filled positionally.
func resolveMappings(mappings []ColumnMapping, headers []string, cols []model.Column) ([]mappedColumn, error) {
	if len(mappings) == 0 {
		if len(headers) > 0 {
			for _, m := range SuggestMapping(headers, cols) {
				mappings = append(mappings, m.ColumnMapping)
			}
		} else {
			for i, c := range cols {
				mappings = append(mappings, ColumnMapping{SourceIndex: i, TargetColumn: c.Name})
			}
		}
	}
	if len(mappings) == 0 {
		return nil, ValidationError("no columns could be mapped; supply columnMappings")
	}

	out := make([]mappedColumn, 0, len(mappings))
	used := make(map[string]bool)
	for _, m := range mappings {
		col, ok := model.FindColumn(cols, m.TargetColumn)
		if !ok {
			return nil, ValidationError("column mapping targets unknown column %q", m.TargetColumn)
		}
		key := strings.ToLower(col.Name)
		if used[key] {
			return nil, ValidationError("column %s is mapped more than once", col.Name)
		}
		used[key] = true

		src := m.SourceIndex
		if m.SourceColumn != "" {
			src = -1
			for i, h := range headers {
				if strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(m.SourceColumn)) {
					src = i
					break
				}
			}
			if src < 0 {
				return nil, ValidationError("source column %q not found in headers", m.SourceColumn)
			}
		}
		if src < 0 {
			return nil, ValidationError("invalid source index %d for column %s", src, col.Name)
		}
		out = append(out, mappedColumn{source: src, column: col})
	}
	return out, nil
}

// validateBatch runs the validate phase. problems holds every row issue;
// err is an infrastructure failure.
func (s *Service) validateBatch(ctx context.Context, tx store.Store, tableID string, mode ImportMode, rows [][]any, mapped []mappedColumn, cols []model.Column) ([]pendingRow, []string, error) {
	dups := NewDuplicateChecker(tx, tableID, mode != ImportReplace)
	pending := make([]pendingRow, 0, len(rows))
	var problems []string

	for i, cells := range rows {
		index := i + 1
		if blankRow(cells) {
			continue
		}

		raw := make(RawRow, len(mapped))
		for _, m := range mapped {
			if m.source >= len(cells) {
				continue
			}
			cell := cells[m.source]
			if str, ok := cell.(string); ok {
				cell = coltype.CleanCell(str)
			}
			raw[m.column.Name] = cell
		}

		validated, issues := s.validator.Validate(index, raw, cols, ModeStrict)
		problems = append(problems, IssueStrings(issues)...)

		rowOK := len(issues) == 0
		for _, col := range cols {
			if col.AllowDuplicates {
				continue
			}
			v, ok := validated.Get(col.Name)
			if !ok {
				continue
			}
			src, err := dups.Check(ctx, col.Name, v)
			if err != nil {
				return nil, nil, InternalError("failed to check duplicates", err)
			}
			switch src {
			case DuplicateInBatch:
				problems = append(problems, fmt.Sprintf("Row %d: duplicate value %v in column %s (already in this import)", index, coltype.Storable(v), col.Name))
				rowOK = false
			case DuplicateInTable:
				problems = append(problems, fmt.Sprintf("Row %d: duplicate value %v in column %s (already exists in table)", index, coltype.Storable(v), col.Name))
				rowOK = false
			default:
				dups.Remember(col.Name, v)
			}
		}

		if rowOK {
			pending = append(pending, pendingRow{index: index, row: validated})
		}
	}
	return pending, problems, nil
}

func blankRow(cells []any) bool {
	for _, c := range cells {
		if !coltype.IsEmpty(c) {
			return false
		}
	}
	return true
}

// clearForReplace deletes every row of t. On a sale table each removed item
// is recorded in the ledger first.
func (s *Service) clearForReplace(ctx context.Context, tx store.Store, t *model.Table, userID string) error {
	if t.TableType == model.TableTypeSale {
		var existing []model.Row
		err := s.eachRowPage(ctx, tx, t.ID, func(rows []model.Row) error {
			existing = append(existing, rows...)
			return nil
		})
		if err != nil {
			return err
		}
		for _, r := range existing {
			s.ledger.Record(ctx, tx, stockRemoved(t, r, userID, "replaced by import"))
		}
	}
	if _, err := tx.DeleteAllRows(ctx, t.ID); err != nil {
		return InternalError("failed to clear table", err)
	}
	return nil
}
