package buffer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crio-db/crio/internal/pageid"
)

func mustPageID(t *testing.T, fileID uint8, offset uint32) pageid.PageID {
	t.Helper()
	id, err := pageid.New(fileID, offset)
	require.NoError(t, err)
	return id
}

func TestAccessTrackerTriggersAfterThreshold(t *testing.T) {
	tr := NewAccessTracker(3, 8)

	require.Nil(t, tr.Observe(mustPageID(t, 0, 1)))
	require.Nil(t, tr.Observe(mustPageID(t, 0, 2)))

	hints := tr.Observe(mustPageID(t, 0, 3))
	require.Len(t, hints, 8)
	require.Equal(t, mustPageID(t, 0, 4), hints[0])
	require.Equal(t, mustPageID(t, 0, 11), hints[7])
}

func TestAccessTrackerResetsOnNonSequentialJump(t *testing.T) {
	tr := NewAccessTracker(3, 8)

	require.Nil(t, tr.Observe(mustPageID(t, 0, 1)))
	require.Nil(t, tr.Observe(mustPageID(t, 0, 2)))
	require.Nil(t, tr.Observe(mustPageID(t, 0, 50))) // breaks the run

	// 50 started a new run, so 50, 51, 52 is the next run of three.
	require.Nil(t, tr.Observe(mustPageID(t, 0, 51)))
	hints := tr.Observe(mustPageID(t, 0, 52))
	require.Len(t, hints, 8)
	require.Equal(t, mustPageID(t, 0, 53), hints[0])
}

func TestAccessTrackerTracksFilesIndependently(t *testing.T) {
	tr := NewAccessTracker(2, 4)

	require.Nil(t, tr.Observe(mustPageID(t, 0, 1)))
	hints := tr.Observe(mustPageID(t, 0, 2))
	require.Len(t, hints, 4)

	// A fresh file starts its own run; one access is not enough yet.
	require.Nil(t, tr.Observe(mustPageID(t, 1, 1)))
}

func TestAccessTrackerResetClearsRun(t *testing.T) {
	tr := NewAccessTracker(2, 4)

	require.Nil(t, tr.Observe(mustPageID(t, 0, 1)))
	tr.Reset(0)

	// Would have triggered without the reset.
	require.Nil(t, tr.Observe(mustPageID(t, 0, 2)))
}
