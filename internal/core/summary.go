package core

import (
	"context"
	"fmt"
	"slices"

	"github.com/JonMunkholm/tabled/internal/core/coltype"
	"github.com/JonMunkholm/tabled/internal/logging"
	"github.com/JonMunkholm/tabled/internal/model"
	"github.com/JonMunkholm/tabled/internal/store"
)

// maxSamples bounds the example values kept per column.
const maxSamples = 5

// ColumnSummary counts the advisory failures of one column.
type ColumnSummary struct {
	Column       string         `json:"column"`
	Type         string         `json:"type"`
	InvalidCount int            `json:"invalidCount"`
	Samples      []InvalidValue `json:"samples"`
}

// InvalidValue is one failing cell.
type InvalidValue struct {
	RowID      string `json:"rowId"`
	Value      any    `json:"value"`
	Error      string `json:"error"`
	Suggestion string `json:"suggestion,omitempty"`
}

// DatasetSummary is the advisory validation state of a whole table.
type DatasetSummary struct {
	TotalRows     int             `json:"totalRows"`
	ValidRows     int             `json:"validRows"`
	InvalidRows   int             `json:"invalidRows"`
	TotalWarnings int             `json:"totalWarnings"`
	Summary       []ColumnSummary `json:"summary"`
}

// ValidateDataset runs advisory validation over every row of a table owned
// by user. Nothing is changed.
func (s *Service) ValidateDataset(ctx context.Context, user model.UserContext, tableID string) (*DatasetSummary, error) {
	_, cols, err := loadOwnedTable(ctx, s.store, user, tableID)
	if err != nil {
		return nil, err
	}
	summary, _, err := s.summarize(ctx, s.store, tableID, cols)
	return summary, err
}

// summarize validates the table page by page and also returns the ids of the
// invalid rows.
func (s *Service) summarize(ctx context.Context, st store.RowStore, tableID string, cols []model.Column) (*DatasetSummary, []string, error) {
	summary := &DatasetSummary{Summary: []ColumnSummary{}}
	byColumn := make(map[string]*ColumnSummary, len(cols))
	var invalid []string

	err := s.eachRowPage(ctx, st, tableID, func(rows []model.Row) error {
		for _, r := range rows {
			summary.TotalRows++
			report := s.validator.Advise(RawRow(r.Data), cols)
			if report.Valid() {
				summary.ValidRows++
				continue
			}
			summary.InvalidRows++
			summary.TotalWarnings += report.Warnings
			invalid = append(invalid, r.ID)

			for _, col := range cols {
				res := report.Results[col.Name]
				if res.IsValid {
					continue
				}
				cs, ok := byColumn[col.Name]
				if !ok {
					cs = &ColumnSummary{Column: col.Name, Type: col.Type, Samples: []InvalidValue{}}
					byColumn[col.Name] = cs
				}
				cs.InvalidCount++
				if len(cs.Samples) < maxSamples {
					v, _ := RawRow(r.Data).lookup(col.Name)
					cs.Samples = append(cs.Samples, InvalidValue{
						RowID:      r.ID,
						Value:      v,
						Error:      res.Error,
						Suggestion: res.Suggestion,
					})
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	for _, col := range cols {
		if cs, ok := byColumn[col.Name]; ok {
			summary.Summary = append(summary.Summary, *cs)
		}
	}
	return summary, invalid, nil
}

// DeleteInvalidRows removes every row that fails advisory validation and
// returns the count together with a fresh summary of what is left.
func (s *Service) DeleteInvalidRows(ctx context.Context, user model.UserContext, tableID string) (int64, *DatasetSummary, error) {
	var deleted int64
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		t, cols, err := loadOwnedTable(ctx, tx, user, tableID)
		if err != nil {
			return err
		}
		_, invalid, err := s.summarize(ctx, tx, tableID, cols)
		if err != nil {
			return err
		}
		if len(invalid) == 0 {
			return nil
		}

		if t.TableType == model.TableTypeSale {
			for _, id := range invalid {
				r, err := tx.GetRow(ctx, tableID, id)
				if err != nil {
					return storeError(err, "row")
				}
				s.ledger.Record(ctx, tx, stockRemoved(t, *r, user.UserID, "invalid row deleted"))
			}
		}

		for chunk := range slices.Chunk(invalid, s.cfg.SummaryPageSize) {
			n, err := tx.DeleteRows(ctx, tableID, chunk)
			if err != nil {
				return InternalError("failed to delete rows", err)
			}
			deleted += n
		}
		return nil
	})
	if err != nil {
		return 0, nil, err
	}

	if deleted > 0 {
		s.invalidateCatalog(ctx)
		logging.FromContext(ctx).Info("invalid rows deleted", "table_id", tableID, "deleted", deleted)
	}

	after, err := s.ValidateDataset(ctx, user, tableID)
	if err != nil {
		return deleted, nil, err
	}
	return deleted, after, nil
}

// ============================================================================
// Type change preview
// ============================================================================

// TypeChangePreview reports how the stored values of a column would fare
// under a new type.
type TypeChangePreview struct {
	Column      string         `json:"column"`
	FromType    string         `json:"fromType"`
	ToType      string         `json:"toType"`
	Convertible int            `json:"convertible"`
	Failing     int            `json:"failing"`
	Empty       int            `json:"empty"`
	Samples     []InvalidValue `json:"samples"`
}

func (p *TypeChangePreview) sampleStrings() []string {
	out := make([]string, len(p.Samples))
	for i, smp := range p.Samples {
		out[i] = fmt.Sprintf("row %s: %v: %s", smp.RowID, smp.Value, smp.Error)
	}
	return out
}

// PreviewTypeChange reports which stored values of the named column would
// convert to newType. Nothing is changed.
func (s *Service) PreviewTypeChange(ctx context.Context, user model.UserContext, tableID, column, newType string) (*TypeChangePreview, error) {
	_, cols, err := loadOwnedTable(ctx, s.store, user, tableID)
	if err != nil {
		return nil, err
	}
	col, ok := model.FindColumn(cols, column)
	if !ok {
		return nil, NotFoundError("column %s not found", column)
	}
	if newType == "" {
		return nil, ValidationError("type is required")
	}
	from := col.Type
	col.Type = newType
	preview, err := s.previewTypeChange(ctx, s.store, tableID, col.Name, col)
	if err != nil {
		return nil, err
	}
	preview.FromType = from
	return preview, nil
}

// previewTypeChange coerces the values stored under storedName with the type
// and options of col.
func (s *Service) previewTypeChange(ctx context.Context, st store.RowStore, tableID, storedName string, col model.Column) (*TypeChangePreview, error) {
	p := &TypeChangePreview{Column: storedName, ToType: col.Type, Samples: []InvalidValue{}}
	err := s.eachRowPage(ctx, st, tableID, func(rows []model.Row) error {
		for _, r := range rows {
			v, ok := RawRow(r.Data).lookup(storedName)
			if !ok || coltype.IsEmpty(v) {
				p.Empty++
				continue
			}
			if _, err := s.validator.coerce(col, v); err != nil {
				p.Failing++
				if len(p.Samples) < maxSamples {
					p.Samples = append(p.Samples, InvalidValue{RowID: r.ID, Value: v, Error: err.Error()})
				}
				continue
			}
			p.Convertible++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}
