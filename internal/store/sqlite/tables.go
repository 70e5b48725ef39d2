package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/JonMunkholm/tabled/internal/model"
	"github.com/JonMunkholm/tabled/internal/store"
)

type tableRecord struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	OwnerID     string    `db:"owner_id"`
	TableType   string    `db:"table_type"`
	Visibility  string    `db:"visibility"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r tableRecord) model() model.Table {
	return model.Table{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		OwnerID:     r.OwnerID,
		TableType:   model.TableType(r.TableType),
		Visibility:  model.Visibility(r.Visibility),
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

func newTableRecord(t *model.Table) tableRecord {
	return tableRecord{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		OwnerID:     t.OwnerID,
		TableType:   string(t.TableType),
		Visibility:  string(t.Visibility),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

type columnRecord struct {
	ID              string         `db:"id"`
	TableID         string         `db:"table_id"`
	Name            string         `db:"name"`
	ColumnType      string         `db:"column_type"`
	IsRequired      bool           `db:"is_required"`
	AllowDuplicates bool           `db:"allow_duplicates"`
	DefaultValue    sql.NullString `db:"default_value"`
	Position        int            `db:"position"`
	Options         string         `db:"options"`
}

func (r columnRecord) model() (model.Column, error) {
	c := model.Column{
		ID:              r.ID,
		TableID:         r.TableID,
		Name:            r.Name,
		Type:            r.ColumnType,
		IsRequired:      r.IsRequired,
		AllowDuplicates: r.AllowDuplicates,
		Position:        r.Position,
	}
	if r.DefaultValue.Valid {
		v := r.DefaultValue.String
		c.DefaultValue = &v
	}
	if r.Options != "" {
		if err := json.Unmarshal([]byte(r.Options), &c.Options); err != nil {
			return c, fmt.Errorf("decode column options: %w", err)
		}
	}
	return c, nil
}

func newColumnRecord(c *model.Column) (columnRecord, error) {
	opts := c.Options
	if opts == nil {
		opts = []string{}
	}
	b, err := json.Marshal(opts)
	if err != nil {
		return columnRecord{}, fmt.Errorf("encode column options: %w", err)
	}
	r := columnRecord{
		ID:              c.ID,
		TableID:         c.TableID,
		Name:            c.Name,
		ColumnType:      c.Type,
		IsRequired:      c.IsRequired,
		AllowDuplicates: c.AllowDuplicates,
		Position:        c.Position,
		Options:         string(b),
	}
	if c.DefaultValue != nil {
		r.DefaultValue = sql.NullString{String: *c.DefaultValue, Valid: true}
	}
	return r, nil
}

const tableColumns = `id, name, description, owner_id, table_type, visibility, created_at, updated_at`

func (s *Store) CreateTable(ctx context.Context, t *model.Table) error {
	_, err := sqlx.NamedExecContext(ctx, s.ext, `
		INSERT INTO user_tables (`+tableColumns+`)
		VALUES (:id, :name, :description, :owner_id, :table_type, :visibility, :created_at, :updated_at)`,
		newTableRecord(t))
	if err != nil {
		return fmt.Errorf("insert table: %w", mapError(err))
	}
	return nil
}

func (s *Store) GetTable(ctx context.Context, id string) (*model.Table, error) {
	var rec tableRecord
	err := sqlx.GetContext(ctx, s.ext, &rec, `SELECT `+tableColumns+` FROM user_tables WHERE id = ?`, id)
	if err != nil {
		return nil, mapError(err)
	}
	t := rec.model()
	return &t, nil
}

func (s *Store) ListTables(ctx context.Context, f store.TableFilter) ([]model.Table, error) {
	var (
		conds []string
		args  []any
	)
	if f.OwnerID != "" {
		conds = append(conds, "owner_id = ?")
		args = append(args, f.OwnerID)
	}
	if len(f.IDs) > 0 {
		conds = append(conds, "id IN (?)")
		args = append(args, f.IDs)
	}
	if len(f.Types) > 0 {
		conds = append(conds, "table_type IN (?)")
		args = append(args, f.Types)
	}
	if len(f.Visibilities) > 0 {
		conds = append(conds, "visibility IN (?)")
		args = append(args, f.Visibilities)
	}

	query := `SELECT ` + tableColumns + ` FROM user_tables`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at, name, id"

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("build table query: %w", err)
	}

	var recs []tableRecord
	if err := sqlx.SelectContext(ctx, s.ext, &recs, s.ext.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	out := make([]model.Table, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.model())
	}
	return out, nil
}

func (s *Store) UpdateTable(ctx context.Context, t *model.Table) error {
	res, err := sqlx.NamedExecContext(ctx, s.ext, `
		UPDATE user_tables
		SET name = :name, description = :description, table_type = :table_type,
		    visibility = :visibility, updated_at = :updated_at
		WHERE id = :id`, newTableRecord(t))
	if err != nil {
		return fmt.Errorf("update table: %w", mapError(err))
	}
	return requireAffected(res)
}

const columnColumns = `id, table_id, name, column_type, is_required, allow_duplicates, default_value, position, options`

func (s *Store) ListColumns(ctx context.Context, tableID string) ([]model.Column, error) {
	var recs []columnRecord
	err := sqlx.SelectContext(ctx, s.ext, &recs,
		`SELECT `+columnColumns+` FROM table_columns WHERE table_id = ? ORDER BY position, name`, tableID)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	out := make([]model.Column, 0, len(recs))
	for _, r := range recs {
		c, err := r.model()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) CreateColumn(ctx context.Context, c *model.Column) error {
	rec, err := newColumnRecord(c)
	if err != nil {
		return err
	}
	_, err = sqlx.NamedExecContext(ctx, s.ext, `
		INSERT INTO table_columns (`+columnColumns+`)
		VALUES (:id, :table_id, :name, :column_type, :is_required, :allow_duplicates, :default_value, :position, :options)`,
		rec)
	if err != nil {
		return fmt.Errorf("insert column: %w", mapError(err))
	}
	return nil
}

func (s *Store) UpdateColumn(ctx context.Context, c *model.Column) error {
	rec, err := newColumnRecord(c)
	if err != nil {
		return err
	}
	res, err := sqlx.NamedExecContext(ctx, s.ext, `
		UPDATE table_columns
		SET name = :name, column_type = :column_type, is_required = :is_required,
		    allow_duplicates = :allow_duplicates, default_value = :default_value,
		    position = :position, options = :options
		WHERE id = :id AND table_id = :table_id`, rec)
	if err != nil {
		return fmt.Errorf("update column: %w", mapError(err))
	}
	return requireAffected(res)
}

func (s *Store) DeleteColumn(ctx context.Context, tableID, columnID string) error {
	res, err := s.ext.ExecContext(ctx, `DELETE FROM table_columns WHERE id = ? AND table_id = ?`, columnID, tableID)
	if err != nil {
		return fmt.Errorf("delete column: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
