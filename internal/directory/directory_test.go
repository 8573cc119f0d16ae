package directory

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crio-db/crio/internal/buffer"
	"github.com/crio-db/crio/internal/disk"
	"github.com/crio-db/crio/internal/pageid"
)

func newTestPool(t *testing.T) *buffer.Pool {
	t.Helper()
	fs := disk.NewMemFileSet()
	mgr := disk.NewManager(fs)
	sched := disk.NewScheduler(mgr)
	t.Cleanup(sched.Shutdown)
	return buffer.NewPool(mgr, sched, 8, buffer.DefaultK, buffer.SequentialThreshold, buffer.PrefetchLookahead)
}

func TestLoadInitializesEmptyDirectoryOnFreshDatabase(t *testing.T) {
	pool := newTestPool(t)
	d, err := Load(pool)
	require.NoError(t, err)
	require.Empty(t, d.Tables())
}

func TestRegisterAndLookup(t *testing.T) {
	pool := newTestPool(t)
	d, err := Load(pool)
	require.NoError(t, err)

	first, err := pageid.New(0, 5)
	require.NoError(t, err)
	require.NoError(t, d.Register(42, first))

	got, ok := d.Lookup(42)
	require.True(t, ok)
	require.Equal(t, first, got)
}

func TestRegisterRejectsDuplicateTableID(t *testing.T) {
	pool := newTestPool(t)
	d, err := Load(pool)
	require.NoError(t, err)

	first, err := pageid.New(0, 5)
	require.NoError(t, err)
	require.NoError(t, d.Register(1, first))

	err = d.Register(1, first)
	require.Error(t, err)
}

func TestDirectorySurvivesReload(t *testing.T) {
	pool := newTestPool(t)
	d, err := Load(pool)
	require.NoError(t, err)

	first, err := pageid.New(0, 9)
	require.NoError(t, err)
	require.NoError(t, d.Register(7, first))

	// Reload against the same pool/disk: the directory page was persisted
	// synchronously on Register, so a second Load must see it.
	d2, err := Load(pool)
	require.NoError(t, err)
	got, ok := d2.Lookup(7)
	require.True(t, ok)
	require.Equal(t, first, got)
}

func TestForgetRemovesEntry(t *testing.T) {
	pool := newTestPool(t)
	d, err := Load(pool)
	require.NoError(t, err)

	first, err := pageid.New(0, 3)
	require.NoError(t, err)
	require.NoError(t, d.Register(2, first))
	require.NoError(t, d.Forget(2))

	_, ok := d.Lookup(2)
	require.False(t, ok)
}
