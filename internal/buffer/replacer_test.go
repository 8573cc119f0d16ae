package buffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReplacerPrefersFramesWithFewerThanKAccesses(t *testing.T) {
	r := NewReplacer(2)

	// Frame 0 accessed twice (has a finite k-distance).
	r.RecordAccess(0)
	r.RecordAccess(0)
	r.SetEvictable(0, true)

	// Frame 1 accessed once (infinite k-distance): classic LRU, and always
	// preferred over a frame with K recorded accesses.
	r.RecordAccess(1)
	r.SetEvictable(1, true)

	victim, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, 1, victim)
}

func TestReplacerLargestBackwardKDistanceWins(t *testing.T) {
	r := NewReplacer(2)

	// Frame 0: accessed at t=1,2 -> old, large k-distance from current clock.
	r.RecordAccess(0)
	r.RecordAccess(0)
	r.SetEvictable(0, true)

	// Frame 1: accessed at t=3,4 -> more recent, smaller k-distance.
	r.RecordAccess(1)
	r.RecordAccess(1)
	r.SetEvictable(1, true)

	victim, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, 0, victim)
}

func TestReplacerSkipsNonEvictableFrames(t *testing.T) {
	r := NewReplacer(2)

	r.RecordAccess(0)
	r.SetEvictable(0, false) // pinned

	r.RecordAccess(1)
	r.SetEvictable(1, true)

	victim, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, 1, victim)
}

func TestReplacerReturnsFalseWhenNothingEvictable(t *testing.T) {
	r := NewReplacer(2)
	r.RecordAccess(0)
	r.SetEvictable(0, false)

	_, ok := r.Evict()
	require.False(t, ok)
}

func TestReplacerTieBreaksByEarliestAccess(t *testing.T) {
	r := NewReplacer(3)

	// With K=3 both frames have only two accesses, so both have an
	// infinite backward k-distance; the tie goes to frame 0, whose
	// earliest recorded access is older.
	r.RecordAccess(0) // t=1
	r.RecordAccess(1) // t=2
	r.RecordAccess(0) // t=3
	r.RecordAccess(1) // t=4
	r.SetEvictable(0, true)
	r.SetEvictable(1, true)

	victim, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, 0, victim)
}

func TestReplacerRemoveDropsHistory(t *testing.T) {
	r := NewReplacer(2)
	r.RecordAccess(0)
	r.SetEvictable(0, true)
	require.Equal(t, 1, r.Size())

	r.Remove(0)
	require.Equal(t, 0, r.Size())

	_, ok := r.Evict()
	require.False(t, ok)
}

func TestReplacerSequentialFloodDoesNotEvictHotFrame(t *testing.T) {
	r := NewReplacer(2)

	// Frame 5 is "hot": accessed many times early on.
	for i := 0; i < 5; i++ {
		r.RecordAccess(5)
	}
	r.SetEvictable(5, true)

	// Frames 10..19 simulate a one-pass sequential scan: each touched
	// exactly once, so each has an infinite k-distance and is preferred
	// for eviction ahead of the hot frame.
	for i := 10; i < 20; i++ {
		r.RecordAccess(i)
		r.SetEvictable(i, true)
	}

	victim, ok := r.Evict()
	require.True(t, ok)
	require.NotEqual(t, 5, victim)
}
