package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crio-db/crio/internal/config"
	"github.com/crio-db/crio/internal/heap"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.Defaults()
	cfg.Workdir = t.TempDir()
	cfg.PoolSize = 16

	eng, err := OpenMem(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func TestCreateAndOpenTableRoundTrips(t *testing.T) {
	eng := newTestEngine(t)

	tbl, err := eng.CreateTable("accounts")
	require.NoError(t, err)

	rid, err := tbl.Insert([]byte("row-1"))
	require.NoError(t, err)

	reopened, err := eng.OpenTable("accounts")
	require.NoError(t, err)
	got, err := reopened.Get(rid)
	require.NoError(t, err)
	require.Equal(t, "row-1", string(got))
}

func TestCreateTableTwiceFails(t *testing.T) {
	eng := newTestEngine(t)

	_, err := eng.CreateTable("dup")
	require.NoError(t, err)

	_, err = eng.CreateTable("dup")
	require.ErrorIs(t, err, ErrTableExists)
}

func TestOpenUnknownTableFails(t *testing.T) {
	eng := newTestEngine(t)

	_, err := eng.OpenTable("ghost")
	require.ErrorIs(t, err, ErrTableNotFound)
}

func TestCreateAndOpenIndexRoundTrips(t *testing.T) {
	eng := newTestEngine(t)

	idx, err := eng.CreateIndex("by_id")
	require.NoError(t, err)
	require.NoError(t, idx.Insert(5, dummyRID()))

	reopened, err := eng.OpenIndex("by_id")
	require.NoError(t, err)
	got, err := reopened.Search(5)
	require.NoError(t, err)
	require.Equal(t, dummyRID(), got)
}

func TestEngineCloseRejectsFurtherOperations(t *testing.T) {
	cfg := config.Defaults()
	cfg.Workdir = t.TempDir()
	eng, err := OpenMem(cfg)
	require.NoError(t, err)

	require.NoError(t, eng.Close())

	_, err = eng.CreateTable("t")
	require.ErrorIs(t, err, ErrClosed)

	// Close is idempotent.
	require.NoError(t, eng.Close())
}

func TestTablesListsRegisteredIDs(t *testing.T) {
	eng := newTestEngine(t)

	_, err := eng.CreateTable("a")
	require.NoError(t, err)
	_, err = eng.CreateTable("b")
	require.NoError(t, err)

	require.Len(t, eng.Tables(), 2)
}

func dummyRID() heap.RecordID {
	return heap.RecordID{PageID: 0, SlotID: 1}
}
