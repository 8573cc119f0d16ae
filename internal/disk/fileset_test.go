package disk

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalFileSetCreatesAndReopens(t *testing.T) {
	dir := t.TempDir()

	fs, err := NewLocalFileSet(dir)
	require.NoError(t, err)
	defer fs.Close()

	require.False(t, fs.Exists(0))

	seg, err := fs.OpenSegment(0)
	require.NoError(t, err)
	require.NotNil(t, seg)
	require.True(t, fs.Exists(0))

	seg2, err := fs.OpenSegment(0)
	require.NoError(t, err)
	require.Same(t, seg.(SegmentFile), seg2.(SegmentFile))
}

func TestMemFileSetReadWrite(t *testing.T) {
	fs := NewMemFileSet()
	require.False(t, fs.Exists(1))

	seg, err := fs.OpenSegment(1)
	require.NoError(t, err)
	require.True(t, fs.Exists(1))

	buf := make([]byte, 4096)
	for i := range buf {
		buf[i] = 0xAB
	}
	n, err := seg.WriteAt(buf, 0)
	require.NoError(t, err)
	require.Equal(t, 4096, n)

	out := make([]byte, 4096)
	n, err = seg.ReadAt(out, 0)
	require.NoError(t, err)
	require.Equal(t, 4096, n)
	require.Equal(t, buf, out)
}

func TestMemFileSetSameFileAcrossOpens(t *testing.T) {
	fs := NewMemFileSet()
	seg, err := fs.OpenSegment(2)
	require.NoError(t, err)

	_, err = seg.WriteAt([]byte("hello"), 0)
	require.NoError(t, err)

	seg2, err := fs.OpenSegment(2)
	require.NoError(t, err)

	out := make([]byte, 5)
	_, err = seg2.ReadAt(out, 0)
	require.NoError(t, err)
	require.Equal(t, "hello", string(out))
}
