package postgres

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/tabled/internal/model"
	"github.com/JonMunkholm/tabled/internal/store"
)

const rowColumns = `id, table_id, data, created_by, created_at, updated_at`

func decodeDocument(b []byte) (map[string]any, error) {
	data := map[string]any{}
	if len(b) == 0 {
		return data, nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil {
		return nil, err
	}
	return data, nil
}

func encodeDocument(data map[string]any) ([]byte, error) {
	if data == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode row data: %w", err)
	}
	return b, nil
}

func scanRow(row pgx.CollectableRow) (model.Row, error) {
	var (
		r   model.Row
		doc []byte
	)
	if err := row.Scan(&r.ID, &r.TableID, &doc, &r.CreatedBy, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return r, err
	}
	data, err := decodeDocument(doc)
	if err != nil {
		return r, fmt.Errorf("decode row %s: %w", r.ID, err)
	}
	r.Data = data
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}

func (s *Store) InsertRow(ctx context.Context, r *model.Row) error {
	doc, err := encodeDocument(r.Data)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO table_rows (`+rowColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, r.TableID, doc, r.CreatedBy, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert row: %w", mapError(err))
	}
	return nil
}

func (s *Store) getRow(ctx context.Context, query, tableID, rowID string) (*model.Row, error) {
	rows, err := s.db.Query(ctx, query, rowID, tableID)
	if err != nil {
		return nil, fmt.Errorf("get row: %w", err)
	}
	r, err := pgx.CollectExactlyOneRow(rows, scanRow)
	if err != nil {
		return nil, mapError(err)
	}
	return &r, nil
}

func (s *Store) GetRow(ctx context.Context, tableID, rowID string) (*model.Row, error) {
	return s.getRow(ctx, `SELECT `+rowColumns+` FROM table_rows WHERE id = $1 AND table_id = $2`, tableID, rowID)
}

// LockRow implements store.RowStore with SELECT ... FOR UPDATE.
func (s *Store) LockRow(ctx context.Context, tableID, rowID string) (*model.Row, error) {
	return s.getRow(ctx, `SELECT `+rowColumns+` FROM table_rows WHERE id = $1 AND table_id = $2 FOR UPDATE`, tableID, rowID)
}

func (s *Store) UpdateRowData(ctx context.Context, tableID, rowID string, data map[string]any) error {
	doc, err := encodeDocument(data)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE table_rows SET data = $3, updated_at = $4 WHERE id = $1 AND table_id = $2`,
		rowID, tableID, doc, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update row: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListRows(ctx context.Context, tableID string, page store.Page) ([]model.Row, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+rowColumns+` FROM table_rows WHERE table_id = $1 ORDER BY seq`+limitClause(page), tableID)
	if err != nil {
		return nil, fmt.Errorf("list rows: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanRow)
	if err != nil {
		return nil, fmt.Errorf("list rows: %w", err)
	}
	return out, nil
}

func (s *Store) CountRows(ctx context.Context, tableID string) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM table_rows WHERE table_id = $1`, tableID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return n, nil
}

func (s *Store) DeleteRows(ctx context.Context, tableID string, rowIDs []string) (int64, error) {
	if len(rowIDs) == 0 {
		return 0, nil
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM table_rows WHERE table_id = $1 AND id = ANY($2)`, tableID, rowIDs)
	if err != nil {
		return 0, fmt.Errorf("delete rows: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) DeleteAllRows(ctx context.Context, tableID string) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM table_rows WHERE table_id = $1`, tableID)
	if err != nil {
		return 0, fmt.Errorf("delete all rows: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) RenameDataKey(ctx context.Context, tableID, oldKey, newKey string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE table_rows
		SET data = (data - $2::text) || jsonb_build_object($3::text, data -> $2::text), updated_at = $4
		WHERE table_id = $1 AND jsonb_exists(data, $2::text)`,
		tableID, oldKey, newKey, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("rename data key: %w", err)
	}
	return nil
}

func (s *Store) DropDataKey(ctx context.Context, tableID, key string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE table_rows SET data = data - $2::text, updated_at = $3
		WHERE table_id = $1 AND jsonb_exists(data, $2::text)`,
		tableID, key, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("drop data key: %w", err)
	}
	return nil
}

func (s *Store) QueryRows(ctx context.Context, q store.RowQuery) ([]model.Row, int64, error) {
	if len(q.TableIDs) == 0 {
		return nil, 0, nil
	}
	var w whereBuilder
	w.add("table_id = ANY($?)", q.TableIDs)

	keys := make([]string, 0, len(q.Where))
	for k := range q.Where {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		w.args = append(w.args, k)
		keyArg := len(w.args)
		w.add(fmt.Sprintf("lower(data ->> $%d::text) = lower($?::text)", keyArg), q.Where[k])
	}

	var total int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM table_rows`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count records: %w", err)
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+rowColumns+` FROM table_rows`+w.String()+` ORDER BY table_id, seq`+limitClause(q.Page), w.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query records: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanRow)
	if err != nil {
		return nil, 0, fmt.Errorf("query records: %w", err)
	}
	return out, total, nil
}

func (s *Store) ValueExists(ctx context.Context, tableID, column string, value any) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM table_rows
			WHERE table_id = $1 AND data -> $2::text = $3::jsonb
		)`, tableID, column, store.ValueKey(value)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check value exists: %w", err)
	}
	return exists, nil
}
