package btree

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crio-db/crio/internal/buffer"
	"github.com/crio-db/crio/internal/common"
	"github.com/crio-db/crio/internal/disk"
	"github.com/crio-db/crio/internal/heap"
)

func newTestTree(t *testing.T, order int) *Tree {
	t.Helper()
	fs := disk.NewMemFileSet()
	mgr := disk.NewManager(fs)
	sched := disk.NewScheduler(mgr)
	t.Cleanup(sched.Shutdown)
	pool := buffer.NewPool(mgr, sched, 64, buffer.DefaultK, buffer.SequentialThreshold, buffer.PrefetchLookahead)

	tr, err := NewTree(pool, order, t.TempDir(), "idx")
	require.NoError(t, err)
	return tr
}

func rid(n int) heap.RecordID {
	return heap.RecordID{PageID: 0, SlotID: uint16(n)}
}

func TestTreeInsertAndSearchSingleLeaf(t *testing.T) {
	tr := newTestTree(t, DefaultOrder)

	require.NoError(t, tr.Insert(10, rid(1)))
	require.NoError(t, tr.Insert(5, rid(2)))
	require.NoError(t, tr.Insert(20, rid(3)))

	got, err := tr.Search(10)
	require.NoError(t, err)
	require.Equal(t, rid(1), got)

	_, err = tr.Search(99)
	require.ErrorIs(t, err, common.ErrKeyNotFound)
}

func TestTreeInsertDuplicateKeyRejected(t *testing.T) {
	tr := newTestTree(t, DefaultOrder)

	require.NoError(t, tr.Insert(1, rid(1)))
	err := tr.Insert(1, rid(2))
	require.ErrorIs(t, err, common.ErrDuplicateKey)
}

// TestTreeLeafSplitMatchesWorkedExample drives order=4 (capacity 4 leaf
// entries) through the sequential 10,20,30,40,50 insert sequence: the
// first four fit in the root leaf, and the fifth overflows it to 5
// entries, which split at 5/2=2 into left=[10,20], right=[30,40,50].
func TestTreeLeafSplitMatchesWorkedExample(t *testing.T) {
	tr := newTestTree(t, 4)

	for _, k := range []Key{10, 20, 30, 40, 50} {
		require.NoError(t, tr.Insert(k, rid(int(k))))
	}

	require.Equal(t, 2, tr.Height())

	keys, err := tr.InOrder()
	require.NoError(t, err)
	require.Equal(t, []Key{10, 20, 30, 40, 50}, keys)

	for _, k := range []Key{10, 20, 30, 40, 50} {
		got, err := tr.Search(k)
		require.NoError(t, err)
		require.Equal(t, rid(int(k)), got)
	}
}

func TestTreeShuffledInsertsStayOrdered(t *testing.T) {
	tr := newTestTree(t, 4)

	keys := make([]Key, 200)
	for i := range keys {
		keys[i] = Key(i)
	}
	rand.New(rand.NewSource(7)).Shuffle(len(keys), func(i, j int) {
		keys[i], keys[j] = keys[j], keys[i]
	})

	for _, k := range keys {
		require.NoError(t, tr.Insert(k, rid(int(k))))
	}

	got, err := tr.InOrder()
	require.NoError(t, err)
	require.Len(t, got, 200)
	for i, k := range got {
		require.Equal(t, Key(i), k)
	}
}

func TestTreeRangeScan(t *testing.T) {
	tr := newTestTree(t, 4)

	for i := 0; i < 50; i++ {
		require.NoError(t, tr.Insert(Key(i), rid(i)))
	}

	got, err := tr.RangeScan(10, 19)
	require.NoError(t, err)
	require.Len(t, got, 10)
	for i, r := range got {
		require.Equal(t, rid(10+i), r)
	}

	got, err = tr.RangeScan(1000, 2000)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestTreeDeleteTombstonesEntry(t *testing.T) {
	tr := newTestTree(t, 4)

	for i := 0; i < 20; i++ {
		require.NoError(t, tr.Insert(Key(i), rid(i)))
	}

	require.NoError(t, tr.Delete(5))
	_, err := tr.Search(5)
	require.ErrorIs(t, err, common.ErrKeyNotFound)

	got, err := tr.Search(6)
	require.NoError(t, err)
	require.Equal(t, rid(6), got)
}

func TestOpenTreeRestoresRootAndHeight(t *testing.T) {
	fs := disk.NewMemFileSet()
	mgr := disk.NewManager(fs)
	sched := disk.NewScheduler(mgr)
	t.Cleanup(sched.Shutdown)
	pool := buffer.NewPool(mgr, sched, 64, buffer.DefaultK, buffer.SequentialThreshold, buffer.PrefetchLookahead)
	workdir := t.TempDir()

	tr, err := NewTree(pool, 4, workdir, "idx")
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		require.NoError(t, tr.Insert(Key(i), rid(i)))
	}
	require.NoError(t, tr.Close())

	reopened, err := OpenTree(pool, 4, workdir, "idx")
	require.NoError(t, err)
	require.Equal(t, tr.RootPageID(), reopened.RootPageID())
	require.Equal(t, tr.Height(), reopened.Height())

	got, err := reopened.Search(15)
	require.NoError(t, err)
	require.Equal(t, rid(15), got)
}

func TestTreeNegativeKeysOrderCorrectlyAcrossRootSplit(t *testing.T) {
	tr := newTestTree(t, 4)

	keys := []Key{-100, -50, -10, -1, 0, 1, 10, 50, 100}
	for _, k := range keys {
		require.NoError(t, tr.Insert(k, rid(int(k)+1000)))
	}

	got, err := tr.InOrder()
	require.NoError(t, err)
	want := append([]Key(nil), keys...)
	require.Equal(t, want, got)

	for _, k := range keys {
		r, err := tr.Search(k)
		require.NoError(t, err)
		require.Equal(t, rid(int(k)+1000), r)
	}
}

func TestTreeClosedRejectsOperations(t *testing.T) {
	tr := newTestTree(t, DefaultOrder)
	require.NoError(t, tr.Close())

	_, err := tr.Search(1)
	require.ErrorIs(t, err, ErrTreeClosed)

	err = tr.Insert(1, rid(1))
	require.ErrorIs(t, err, ErrTreeClosed)
}

func TestTreeManyInsertsProduceMultiLevelHeight(t *testing.T) {
	tr := newTestTree(t, 8)

	for i := 0; i < 500; i++ {
		require.NoError(t, tr.Insert(Key(i), rid(i)))
	}

	require.Greater(t, tr.Height(), 2, fmt.Sprintf("500 keys at order 8 should force >2 levels, got height %d", tr.Height()))

	for i := 0; i < 500; i += 37 {
		got, err := tr.Search(Key(i))
		require.NoError(t, err)
		require.Equal(t, rid(i), got)
	}
}
