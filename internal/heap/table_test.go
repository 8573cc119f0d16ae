package heap

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crio-db/crio/internal/buffer"
	"github.com/crio-db/crio/internal/disk"
)

func newTestTable(t *testing.T, poolSize int) *Table {
	t.Helper()
	fs := disk.NewMemFileSet()
	mgr := disk.NewManager(fs)
	sched := disk.NewScheduler(mgr)
	t.Cleanup(sched.Shutdown)
	pool := buffer.NewPool(mgr, sched, poolSize, buffer.DefaultK, buffer.SequentialThreshold, buffer.PrefetchLookahead)

	tbl, err := NewTable(1, pool)
	require.NoError(t, err)
	return tbl
}

func TestTableInsertAndGet(t *testing.T) {
	tbl := newTestTable(t, 8)

	rid, err := tbl.Insert([]byte("row one"))
	require.NoError(t, err)

	got, err := tbl.Get(rid)
	require.NoError(t, err)
	require.Equal(t, "row one", string(got))
}

func TestTableUpdateAndDelete(t *testing.T) {
	tbl := newTestTable(t, 8)

	rid, err := tbl.Insert([]byte("original"))
	require.NoError(t, err)

	require.NoError(t, tbl.Update(rid, []byte("changed")))
	got, err := tbl.Get(rid)
	require.NoError(t, err)
	require.Equal(t, "changed", string(got))

	require.NoError(t, tbl.Delete(rid))
	_, err = tbl.Get(rid)
	require.Error(t, err)
}

func TestTableScanVisitsAllLiveRows(t *testing.T) {
	tbl := newTestTable(t, 8)

	var ids []RecordID
	for i := 0; i < 20; i++ {
		rid, err := tbl.Insert([]byte(fmt.Sprintf("row-%d", i)))
		require.NoError(t, err)
		ids = append(ids, rid)
	}

	require.NoError(t, tbl.Delete(ids[5]))

	seen := make(map[string]bool)
	err := tbl.Scan(func(id RecordID, tup []byte) error {
		seen[string(tup)] = true
		return nil
	})
	require.NoError(t, err)

	require.Len(t, seen, 19)
	require.False(t, seen["row-5"])
	require.True(t, seen["row-0"])
	require.True(t, seen["row-19"])
}

func TestTableInsertGrowsChainWhenPagesFill(t *testing.T) {
	tbl := newTestTable(t, 4)

	big := make([]byte, 2000)
	var last RecordID
	for i := 0; i < 10; i++ {
		rid, err := tbl.Insert(big)
		require.NoError(t, err)
		last = rid
	}

	got, err := tbl.Get(last)
	require.NoError(t, err)
	require.Len(t, got, 2000)
}

func TestOpenTableResumesExistingChain(t *testing.T) {
	tbl := newTestTable(t, 8)
	rid, err := tbl.Insert([]byte("persisted"))
	require.NoError(t, err)
	require.NoError(t, tbl.Close())

	reopened := OpenTable(tbl.TableID, tbl.FirstPageID(), tbl.Pool)
	got, err := reopened.Get(rid)
	require.NoError(t, err)
	require.Equal(t, "persisted", string(got))
}

func TestClosedTableRejectsOperations(t *testing.T) {
	tbl := newTestTable(t, 8)
	require.NoError(t, tbl.Close())

	_, err := tbl.Insert([]byte("x"))
	require.ErrorIs(t, err, ErrTableClosed)
}
