package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/tabled/internal/model"
	"github.com/JonMunkholm/tabled/internal/store"
)

const tableColumns = `id, name, description, owner_id, table_type, visibility, created_at, updated_at`

func scanTable(row pgx.CollectableRow) (model.Table, error) {
	var (
		t          model.Table
		tableType  string
		visibility string
	)
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.OwnerID, &tableType, &visibility, &t.CreatedAt, &t.UpdatedAt)
	t.TableType = model.TableType(tableType)
	t.Visibility = model.Visibility(visibility)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, err
}

func (s *Store) CreateTable(ctx context.Context, t *model.Table) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO user_tables (`+tableColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.Name, t.Description, t.OwnerID, string(t.TableType), string(t.Visibility), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert table: %w", mapError(err))
	}
	return nil
}

func (s *Store) GetTable(ctx context.Context, id string) (*model.Table, error) {
	rows, err := s.db.Query(ctx, `SELECT `+tableColumns+` FROM user_tables WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get table: %w", err)
	}
	t, err := pgx.CollectExactlyOneRow(rows, scanTable)
	if err != nil {
		return nil, mapError(err)
	}
	return &t, nil
}

func (s *Store) ListTables(ctx context.Context, f store.TableFilter) ([]model.Table, error) {
	var w whereBuilder
	if f.OwnerID != "" {
		w.add("owner_id = $?", f.OwnerID)
	}
	if len(f.IDs) > 0 {
		w.add("id = ANY($?)", f.IDs)
	}
	if len(f.Types) > 0 {
		types := make([]string, len(f.Types))
		for i, t := range f.Types {
			types[i] = string(t)
		}
		w.add("table_type = ANY($?)", types)
	}
	if len(f.Visibilities) > 0 {
		vis := make([]string, len(f.Visibilities))
		for i, v := range f.Visibilities {
			vis[i] = string(v)
		}
		w.add("visibility = ANY($?)", vis)
	}

	rows, err := s.db.Query(ctx, `SELECT `+tableColumns+` FROM user_tables`+w.String()+` ORDER BY created_at, name, id`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	tables, err := pgx.CollectRows(rows, scanTable)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return tables, nil
}

func (s *Store) UpdateTable(ctx context.Context, t *model.Table) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE user_tables
		SET name = $2, description = $3, table_type = $4, visibility = $5, updated_at = $6
		WHERE id = $1`,
		t.ID, t.Name, t.Description, string(t.TableType), string(t.Visibility), t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update table: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

const columnColumns = `id, table_id, name, column_type, is_required, allow_duplicates, default_value, position, options`

func scanColumn(row pgx.CollectableRow) (model.Column, error) {
	var (
		c       model.Column
		options []byte
	)
	if err := row.Scan(&c.ID, &c.TableID, &c.Name, &c.Type, &c.IsRequired, &c.AllowDuplicates,
		&c.DefaultValue, &c.Position, &options); err != nil {
		return c, err
	}
	if len(options) > 0 {
		if err := json.Unmarshal(options, &c.Options); err != nil {
			return c, fmt.Errorf("decode column options: %w", err)
		}
	}
	return c, nil
}

func encodeOptions(opts []string) ([]byte, error) {
	if opts == nil {
		opts = []string{}
	}
	b, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("encode column options: %w", err)
	}
	return b, nil
}

func (s *Store) ListColumns(ctx context.Context, tableID string) ([]model.Column, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+columnColumns+` FROM table_columns WHERE table_id = $1 ORDER BY position, name`, tableID)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	cols, err := pgx.CollectRows(rows, scanColumn)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	return cols, nil
}

func (s *Store) CreateColumn(ctx context.Context, c *model.Column) error {
	opts, err := encodeOptions(c.Options)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO table_columns (`+columnColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.TableID, c.Name, c.Type, c.IsRequired, c.AllowDuplicates, c.DefaultValue, c.Position, opts)
	if err != nil {
		return fmt.Errorf("insert column: %w", mapError(err))
	}
	return nil
}

func (s *Store) UpdateColumn(ctx context.Context, c *model.Column) error {
	opts, err := encodeOptions(c.Options)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE table_columns
		SET name = $3, column_type = $4, is_required = $5, allow_duplicates = $6,
		    default_value = $7, position = $8, options = $9
		WHERE id = $1 AND table_id = $2`,
		c.ID, c.TableID, c.Name, c.Type, c.IsRequired, c.AllowDuplicates, c.DefaultValue, c.Position, opts)
	if err != nil {
		return fmt.Errorf("update column: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteColumn(ctx context.Context, tableID, columnID string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM table_columns WHERE id = $1 AND table_id = $2`, columnID, tableID)
	if err != nil {
		return fmt.Errorf("delete column: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
