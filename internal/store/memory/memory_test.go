package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/tabled/internal/model"
	"github.com/JonMunkholm/tabled/internal/store"
	"github.com/JonMunkholm/tabled/internal/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return New()
	})
}

var errAbort = errors.New("abort")

func seedTable(t *testing.T, st *Store) model.Table {
	t.Helper()
	tbl := model.Table{ID: "t1", Name: "Shop", OwnerID: "u1", TableType: model.TableTypeSale, CreatedAt: time.Now()}
	require.NoError(t, st.CreateTable(context.Background(), &tbl))
	return tbl
}

func TestWithTx_RollbackUndoesCommittedNestedWrites(t *testing.T) {
	ctx := context.Background()
	st := New()
	tbl := seedTable(t, st)
	require.NoError(t, st.InsertRow(ctx, &model.Row{ID: "keep", TableID: tbl.ID, Data: map[string]any{"name": "a"}}))
	require.NoError(t, st.InsertRow(ctx, &model.Row{ID: "gone", TableID: tbl.ID, Data: map[string]any{"name": "b"}}))
	seq, err := st.NextSequence(ctx, "SALE", 2026)
	require.NoError(t, err)
	require.EqualValues(t, 1, seq)

	err = st.WithTx(ctx, func(tx store.Store) error {
		require.NoError(t, tx.WithTx(ctx, func(inner store.Store) error {
			require.NoError(t, inner.UpdateRowData(ctx, tbl.ID, "keep", map[string]any{"name": "changed"}))
			_, err := inner.DeleteRows(ctx, tbl.ID, []string{"gone"})
			require.NoError(t, err)
			require.NoError(t, inner.InsertRow(ctx, &model.Row{ID: "new", TableID: tbl.ID, Data: map[string]any{"name": "c"}}))
			require.NoError(t, inner.AppendTransaction(ctx, &model.InventoryTransaction{ID: "l1", TableID: tbl.ID}))
			_, err = inner.NextSequence(ctx, "SALE", 2026)
			return err
		}))
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	rows, err := st.ListRows(ctx, tbl.ID, store.Page{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "keep", rows[0].ID)
	assert.Equal(t, "a", rows[0].Data["name"])
	assert.Equal(t, "gone", rows[1].ID, "deleted row should come back in its original position")

	entries, err := st.ListTransactions(ctx, store.LedgerFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)

	seq, err = st.NextSequence(ctx, "SALE", 2026)
	require.NoError(t, err)
	assert.EqualValues(t, 2, seq)
}

func TestWithTx_InnerRollbackKeepsOuterWrites(t *testing.T) {
	ctx := context.Background()
	st := New()
	tbl := seedTable(t, st)

	err := st.WithTx(ctx, func(tx store.Store) error {
		require.NoError(t, tx.InsertRow(ctx, &model.Row{ID: "outer", TableID: tbl.ID, Data: map[string]any{}}))
		err := tx.WithTx(ctx, func(inner store.Store) error {
			require.NoError(t, inner.InsertRow(ctx, &model.Row{ID: "inner", TableID: tbl.ID, Data: map[string]any{}}))
			return errAbort
		})
		require.ErrorIs(t, err, errAbort)
		return nil
	})
	require.NoError(t, err)

	n, err := st.CountRows(ctx, tbl.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Empty(t, st.db.st.undo, "journal should be released after the outermost commit")
	assert.Zero(t, st.db.st.depth)
}

func TestWithTx_ManySavepointsStayLinear(t *testing.T) {
	ctx := context.Background()
	st := New()
	tbl := seedTable(t, st)

	const n = 20000
	start := time.Now()
	err := st.WithTx(ctx, func(tx store.Store) error {
		for i := range n {
			err := tx.WithTx(ctx, func(sp store.Store) error {
				id := fmt.Sprintf("r%05d", i)
				if err := sp.InsertRow(ctx, &model.Row{ID: id, TableID: tbl.ID, Data: map[string]any{"n": i}}); err != nil {
					return err
				}
				return sp.AppendTransaction(ctx, &model.InventoryTransaction{ID: "l" + id, TableID: tbl.ID, ItemID: id})
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	count, err := st.CountRows(ctx, tbl.ID)
	require.NoError(t, err)
	assert.EqualValues(t, n, count)
	assert.Less(t, time.Since(start), 5*time.Second)
}
