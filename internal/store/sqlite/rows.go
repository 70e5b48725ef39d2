package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/JonMunkholm/tabled/internal/model"
	"github.com/JonMunkholm/tabled/internal/store"
)

type rowRecord struct {
	ID        string    `db:"id"`
	TableID   string    `db:"table_id"`
	Data      string    `db:"data"`
	CreatedBy string    `db:"created_by"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r rowRecord) model() (model.Row, error) {
	row := model.Row{
		ID:        r.ID,
		TableID:   r.TableID,
		CreatedBy: r.CreatedBy,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
	data, err := decodeDocument(r.Data)
	if err != nil {
		return row, fmt.Errorf("decode row %s: %w", r.ID, err)
	}
	row.Data = data
	return row, nil
}

func decodeDocument(s string) (map[string]any, error) {
	data := map[string]any{}
	if s == "" {
		return data, nil
	}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil {
		return nil, err
	}
	return data, nil
}

func encodeDocument(data map[string]any) (string, error) {
	if data == nil {
		return "{}", nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode row data: %w", err)
	}
	return string(b), nil
}

const rowColumns = `id, table_id, data, created_by, created_at, updated_at`

func (s *Store) InsertRow(ctx context.Context, r *model.Row) error {
	doc, err := encodeDocument(r.Data)
	if err != nil {
		return err
	}
	_, err = sqlx.NamedExecContext(ctx, s.ext, `
		INSERT INTO table_rows (`+rowColumns+`)
		VALUES (:id, :table_id, :data, :created_by, :created_at, :updated_at)`,
		rowRecord{ID: r.ID, TableID: r.TableID, Data: doc, CreatedBy: r.CreatedBy, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt})
	if err != nil {
		return fmt.Errorf("insert row: %w", mapError(err))
	}
	return nil
}

func (s *Store) GetRow(ctx context.Context, tableID, rowID string) (*model.Row, error) {
	var rec rowRecord
	err := sqlx.GetContext(ctx, s.ext, &rec, `SELECT `+rowColumns+` FROM table_rows WHERE id = ? AND table_id = ?`, rowID, tableID)
	if err != nil {
		return nil, mapError(err)
	}
	row, err := rec.model()
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// LockRow implements store.RowStore. Transactions begin IMMEDIATE, which
// already holds the database write lock.
func (s *Store) LockRow(ctx context.Context, tableID, rowID string) (*model.Row, error) {
	return s.GetRow(ctx, tableID, rowID)
}

func (s *Store) UpdateRowData(ctx context.Context, tableID, rowID string, data map[string]any) error {
	doc, err := encodeDocument(data)
	if err != nil {
		return err
	}
	res, err := s.ext.ExecContext(ctx,
		`UPDATE table_rows SET data = ?, updated_at = ? WHERE id = ? AND table_id = ?`,
		doc, time.Now().UTC(), rowID, tableID)
	if err != nil {
		return fmt.Errorf("update row: %w", mapError(err))
	}
	return requireAffected(res)
}

func (s *Store) selectRows(ctx context.Context, query string, args ...any) ([]model.Row, error) {
	var recs []rowRecord
	if err := sqlx.SelectContext(ctx, s.ext, &recs, query, args...); err != nil {
		return nil, err
	}
	out := make([]model.Row, 0, len(recs))
	for _, r := range recs {
		row, err := r.model()
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

func (s *Store) ListRows(ctx context.Context, tableID string, page store.Page) ([]model.Row, error) {
	rows, err := s.selectRows(ctx,
		`SELECT `+rowColumns+` FROM table_rows WHERE table_id = ? ORDER BY created_at, rowid`+limitClause(page), tableID)
	if err != nil {
		return nil, fmt.Errorf("list rows: %w", err)
	}
	return rows, nil
}

func (s *Store) CountRows(ctx context.Context, tableID string) (int64, error) {
	var n int64
	if err := sqlx.GetContext(ctx, s.ext, &n, `SELECT COUNT(*) FROM table_rows WHERE table_id = ?`, tableID); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return n, nil
}

func (s *Store) DeleteRows(ctx context.Context, tableID string, rowIDs []string) (int64, error) {
	if len(rowIDs) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`DELETE FROM table_rows WHERE table_id = ? AND id IN (?)`, tableID, rowIDs)
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}
	res, err := s.ext.ExecContext(ctx, s.ext.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("delete rows: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) DeleteAllRows(ctx context.Context, tableID string) (int64, error) {
	res, err := s.ext.ExecContext(ctx, `DELETE FROM table_rows WHERE table_id = ?`, tableID)
	if err != nil {
		return 0, fmt.Errorf("delete all rows: %w", err)
	}
	return res.RowsAffected()
}

// RenameDataKey copies the raw JSON under oldKey with ->, so booleans keep
// their JSON type.
func (s *Store) RenameDataKey(ctx context.Context, tableID, oldKey, newKey string) error {
	oldPath, newPath := jsonPath(oldKey), jsonPath(newKey)
	_, err := s.ext.ExecContext(ctx, `
		UPDATE table_rows
		SET data = json_remove(json_set(data, ?, json(data -> ?)), ?), updated_at = ?
		WHERE table_id = ? AND json_type(data, ?) IS NOT NULL`,
		newPath, oldPath, oldPath, time.Now().UTC(), tableID, oldPath)
	if err != nil {
		return fmt.Errorf("rename data key: %w", err)
	}
	return nil
}

func (s *Store) DropDataKey(ctx context.Context, tableID, key string) error {
	path := jsonPath(key)
	_, err := s.ext.ExecContext(ctx, `
		UPDATE table_rows SET data = json_remove(data, ?), updated_at = ?
		WHERE table_id = ? AND json_type(data, ?) IS NOT NULL`,
		path, time.Now().UTC(), tableID, path)
	if err != nil {
		return fmt.Errorf("drop data key: %w", err)
	}
	return nil
}

// textOf mirrors Postgres ->>: JSON booleans render as true/false rather
// than SQLite's 1/0.
const textOf = `CASE json_type(data, ?) WHEN 'true' THEN 'true' WHEN 'false' THEN 'false' ELSE CAST(data ->> ? AS TEXT) END`

func (s *Store) QueryRows(ctx context.Context, q store.RowQuery) ([]model.Row, int64, error) {
	if len(q.TableIDs) == 0 {
		return nil, 0, nil
	}
	where := "table_id IN (?)"
	args := []any{q.TableIDs}

	keys := make([]string, 0, len(q.Where))
	for k := range q.Where {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		path := jsonPath(k)
		where += " AND lower(" + textOf + ") = lower(?)"
		args = append(args, path, path, q.Where[k])
	}

	countQuery, countArgs, err := sqlx.In(`SELECT COUNT(*) FROM table_rows WHERE `+where, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("build records count: %w", err)
	}
	var total int64
	if err := sqlx.GetContext(ctx, s.ext, &total, s.ext.Rebind(countQuery), countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count records: %w", err)
	}

	listQuery, listArgs, err := sqlx.In(
		`SELECT `+rowColumns+` FROM table_rows WHERE `+where+` ORDER BY table_id, created_at, rowid`+limitClause(q.Page),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("build records query: %w", err)
	}
	rows, err := s.selectRows(ctx, s.ext.Rebind(listQuery), listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("query records: %w", err)
	}
	return rows, total, nil
}

func (s *Store) ValueExists(ctx context.Context, tableID, column string, value any) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, s.ext, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM table_rows
			WHERE table_id = ? AND (data -> ?) = json(?)
		)`, tableID, jsonPath(column), store.ValueKey(value))
	if err != nil {
		return false, fmt.Errorf("check value exists: %w", err)
	}
	return exists, nil
}
