// Package memory is an in-process store.Store used by tests and by the
// "memory" database driver for local development.
//
// Transactions are serialized: the outermost WithTx holds a write lock for
// its whole duration. Writes inside a transaction are journaled with their
// inverse, and a failing WithTx replays the journal back to where it began,
// which gives nested calls savepoint semantics. Reads outside a transaction
// may observe uncommitted writes.
package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/tabled/internal/model"
	"github.com/JonMunkholm/tabled/internal/store"
)

type state struct {
	tables    map[string]model.Table
	columns   map[string]model.Column
	rows      map[string]model.Row
	rowOrder  map[string]int64
	ledger    []model.InventoryTransaction
	sales     map[string]model.Sale
	rentals   map[string]model.Rental
	sequences map[string]int64
	counter   int64

	// undo holds the inverse of every write made inside an open transaction,
	// oldest first. depth is the number of open WithTx calls.
	undo  []func()
	depth int
}

func newState() state {
	return state{
		tables:    map[string]model.Table{},
		columns:   map[string]model.Column{},
		rows:      map[string]model.Row{},
		rowOrder:  map[string]int64{},
		sales:     map[string]model.Sale{},
		rentals:   map[string]model.Rental{},
		sequences: map[string]int64{},
	}
}

func (st *state) remember(undo func()) {
	if st.depth > 0 {
		st.undo = append(st.undo, undo)
	}
}

// begin opens a transaction level and returns its position in the journal.
func (st *state) begin() int {
	st.depth++
	return len(st.undo)
}

// end closes a transaction level, reverting its writes when rollback is set.
// Writes of a committed nested level stay journaled for the enclosing one.
func (st *state) end(mark int, rollback bool) {
	if rollback {
		for i := len(st.undo) - 1; i >= mark; i-- {
			st.undo[i]()
		}
		clear(st.undo[mark:])
		st.undo = st.undo[:mark]
	}
	st.depth--
	if st.depth == 0 {
		st.undo = nil
	}
}

// put stores v under k in m, journaling the previous entry.
func put[V any](st *state, m map[string]V, k string, v V) {
	old, had := m[k]
	st.remember(func() {
		if had {
			m[k] = old
		} else {
			delete(m, k)
		}
	})
	m[k] = v
}

// del removes k from m, journaling the removed entry.
func del[V any](st *state, m map[string]V, k string) {
	old, had := m[k]
	if !had {
		return
	}
	st.remember(func() { m[k] = old })
	delete(m, k)
}

func (st *state) appendLedger(entry model.InventoryTransaction) {
	n := len(st.ledger)
	st.remember(func() {
		clear(st.ledger[n:])
		st.ledger = st.ledger[:n]
	})
	st.ledger = append(st.ledger, entry)
}

func (st *state) nextCounter() int64 {
	old := st.counter
	st.remember(func() { st.counter = old })
	st.counter++
	return st.counter
}

type database struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	st   state
}

// Store implements store.Store in memory.
type Store struct {
	db   *database
	inTx bool
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{db: &database{st: newState()}}
}

// WithTx implements store.Store.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.inTx {
		s.db.txMu.Lock()
		defer s.db.txMu.Unlock()
	}

	s.db.mu.Lock()
	mark := s.db.st.begin()
	s.db.mu.Unlock()

	rollback := true
	defer func() {
		s.db.mu.Lock()
		s.db.st.end(mark, rollback)
		s.db.mu.Unlock()
	}()

	if err := fn(&Store{db: s.db, inTx: true}); err != nil {
		return err
	}
	rollback = false
	return nil
}

// Ping implements store.Store.
func (s *Store) Ping(context.Context) error { return nil }

// Close implements store.Store.
func (s *Store) Close() error { return nil }

func (s *Store) read(ctx context.Context, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	return fn(&s.db.st)
}

// write serializes with transactions so a rollback cannot discard a
// concurrent non-transactional write.
func (s *Store) write(ctx context.Context, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.inTx {
		s.db.txMu.Lock()
		defer s.db.txMu.Unlock()
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return fn(&s.db.st)
}

// ============================================================================
// Tables and columns
// ============================================================================

func (s *Store) CreateTable(ctx context.Context, t *model.Table) error {
	return s.write(ctx, func(st *state) error {
		if _, ok := st.tables[t.ID]; ok {
			return store.ErrConflict
		}
		put(st, st.tables, t.ID, *t)
		return nil
	})
}

func (s *Store) GetTable(ctx context.Context, id string) (*model.Table, error) {
	var out *model.Table
	err := s.read(ctx, func(st *state) error {
		t, ok := st.tables[id]
		if !ok {
			return store.ErrNotFound
		}
		out = &t
		return nil
	})
	return out, err
}

func (s *Store) ListTables(ctx context.Context, f store.TableFilter) ([]model.Table, error) {
	var out []model.Table
	err := s.read(ctx, func(st *state) error {
		for _, t := range st.tables {
			if f.OwnerID != "" && t.OwnerID != f.OwnerID {
				continue
			}
			if len(f.IDs) > 0 && !slices.Contains(f.IDs, t.ID) {
				continue
			}
			if len(f.Types) > 0 && !slices.Contains(f.Types, t.TableType) {
				continue
			}
			if len(f.Visibilities) > 0 && !slices.Contains(f.Visibilities, t.Visibility) {
				continue
			}
			out = append(out, t)
		}
		return nil
	})
	slices.SortFunc(out, func(a, b model.Table) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out, err
}

func (s *Store) UpdateTable(ctx context.Context, t *model.Table) error {
	return s.write(ctx, func(st *state) error {
		if _, ok := st.tables[t.ID]; !ok {
			return store.ErrNotFound
		}
		put(st, st.tables, t.ID, *t)
		return nil
	})
}

func (s *Store) ListColumns(ctx context.Context, tableID string) ([]model.Column, error) {
	var out []model.Column
	err := s.read(ctx, func(st *state) error {
		for _, c := range st.columns {
			if c.TableID == tableID {
				c.Options = slices.Clone(c.Options)
				out = append(out, c)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b model.Column) int {
		return cmp.Or(cmp.Compare(a.Position, b.Position), cmp.Compare(a.Name, b.Name))
	})
	return out, err
}

func (s *Store) CreateColumn(ctx context.Context, c *model.Column) error {
	return s.write(ctx, func(st *state) error {
		if _, ok := st.tables[c.TableID]; !ok {
			return store.ErrNotFound
		}
		if columnNameTaken(st, c.TableID, c.Name, c.ID) {
			return store.ErrConflict
		}
		col := *c
		col.Options = slices.Clone(c.Options)
		put(st, st.columns, c.ID, col)
		return nil
	})
}

func (s *Store) UpdateColumn(ctx context.Context, c *model.Column) error {
	return s.write(ctx, func(st *state) error {
		existing, ok := st.columns[c.ID]
		if !ok || existing.TableID != c.TableID {
			return store.ErrNotFound
		}
		if columnNameTaken(st, c.TableID, c.Name, c.ID) {
			return store.ErrConflict
		}
		col := *c
		col.Options = slices.Clone(c.Options)
		put(st, st.columns, c.ID, col)
		return nil
	})
}

func (s *Store) DeleteColumn(ctx context.Context, tableID, columnID string) error {
	return s.write(ctx, func(st *state) error {
		c, ok := st.columns[columnID]
		if !ok || c.TableID != tableID {
			return store.ErrNotFound
		}
		del(st, st.columns, columnID)
		return nil
	})
}

func columnNameTaken(st *state, tableID, name, exceptID string) bool {
	for id, c := range st.columns {
		if c.TableID == tableID && id != exceptID && strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

// ============================================================================
// Rows
// ============================================================================

func (s *Store) InsertRow(ctx context.Context, r *model.Row) error {
	return s.write(ctx, func(st *state) error {
		if _, ok := st.tables[r.TableID]; !ok {
			return store.ErrNotFound
		}
		if _, ok := st.rows[r.ID]; ok {
			return store.ErrConflict
		}
		row := *r
		row.Data = store.CloneData(r.Data)
		put(st, st.rows, r.ID, row)
		put(st, st.rowOrder, r.ID, st.nextCounter())
		return nil
	})
}

func (s *Store) GetRow(ctx context.Context, tableID, rowID string) (*model.Row, error) {
	var out *model.Row
	err := s.read(ctx, func(st *state) error {
		r, ok := st.rows[rowID]
		if !ok || r.TableID != tableID {
			return store.ErrNotFound
		}
		r.Data = store.CloneData(r.Data)
		out = &r
		return nil
	})
	return out, err
}

// LockRow implements store.RowStore. Transactions are already serialized.
func (s *Store) LockRow(ctx context.Context, tableID, rowID string) (*model.Row, error) {
	return s.GetRow(ctx, tableID, rowID)
}

func (s *Store) UpdateRowData(ctx context.Context, tableID, rowID string, data map[string]any) error {
	return s.write(ctx, func(st *state) error {
		r, ok := st.rows[rowID]
		if !ok || r.TableID != tableID {
			return store.ErrNotFound
		}
		r.Data = store.CloneData(data)
		r.UpdatedAt = time.Now().UTC()
		put(st, st.rows, rowID, r)
		return nil
	})
}

func (s *Store) ListRows(ctx context.Context, tableID string, page store.Page) ([]model.Row, error) {
	var out []model.Row
	err := s.read(ctx, func(st *state) error {
		out = st.tableRows(func(r model.Row) bool { return r.TableID == tableID })
		return nil
	})
	return paginate(out, page), err
}

func (s *Store) CountRows(ctx context.Context, tableID string) (int64, error) {
	var n int64
	err := s.read(ctx, func(st *state) error {
		for _, r := range st.rows {
			if r.TableID == tableID {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (s *Store) DeleteRows(ctx context.Context, tableID string, rowIDs []string) (int64, error) {
	var n int64
	err := s.write(ctx, func(st *state) error {
		for _, id := range rowIDs {
			if r, ok := st.rows[id]; ok && r.TableID == tableID {
				del(st, st.rows, id)
				del(st, st.rowOrder, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

func (s *Store) DeleteAllRows(ctx context.Context, tableID string) (int64, error) {
	var n int64
	err := s.write(ctx, func(st *state) error {
		for id, r := range st.rows {
			if r.TableID == tableID {
				del(st, st.rows, id)
				del(st, st.rowOrder, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

func (s *Store) RenameDataKey(ctx context.Context, tableID, oldKey, newKey string) error {
	return s.write(ctx, func(st *state) error {
		for id, r := range st.rows {
			if r.TableID != tableID {
				continue
			}
			v, ok := r.Data[oldKey]
			if !ok {
				continue
			}
			data := store.CloneData(r.Data)
			delete(data, oldKey)
			data[newKey] = v
			r.Data = data
			put(st, st.rows, id, r)
		}
		return nil
	})
}

func (s *Store) DropDataKey(ctx context.Context, tableID, key string) error {
	return s.write(ctx, func(st *state) error {
		for id, r := range st.rows {
			if r.TableID != tableID {
				continue
			}
			if _, ok := r.Data[key]; !ok {
				continue
			}
			data := store.CloneData(r.Data)
			delete(data, key)
			r.Data = data
			put(st, st.rows, id, r)
		}
		return nil
	})
}

func (s *Store) QueryRows(ctx context.Context, q store.RowQuery) ([]model.Row, int64, error) {
	var out []model.Row
	err := s.read(ctx, func(st *state) error {
		out = st.tableRows(func(r model.Row) bool {
			if !slices.Contains(q.TableIDs, r.TableID) {
				return false
			}
			for k, want := range q.Where {
				v, ok := r.Data[k]
				if !ok || !strings.EqualFold(store.ValueText(v), want) {
					return false
				}
			}
			return true
		})
		return nil
	})
	return paginate(out, q.Page), int64(len(out)), err
}

func (s *Store) ValueExists(ctx context.Context, tableID, column string, value any) (bool, error) {
	key := store.ValueKey(value)
	found := false
	err := s.read(ctx, func(st *state) error {
		for _, r := range st.rows {
			if r.TableID != tableID {
				continue
			}
			if v, ok := r.Data[column]; ok && store.ValueKey(v) == key {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}

// tableRows returns matching rows in insertion order.
func (st *state) tableRows(match func(model.Row) bool) []model.Row {
	var out []model.Row
	for _, r := range st.rows {
		if match(r) {
			r.Data = store.CloneData(r.Data)
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b model.Row) int {
		return cmp.Compare(st.rowOrder[a.ID], st.rowOrder[b.ID])
	})
	return out
}

func paginate[T any](items []T, p store.Page) []T {
	if p.Offset > 0 {
		if p.Offset >= len(items) {
			return nil
		}
		items = items[p.Offset:]
	}
	if p.Limit > 0 && p.Limit < len(items) {
		items = items[:p.Limit]
	}
	return items
}
