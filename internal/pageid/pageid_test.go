package pageid

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crio-db/crio/internal/common"
)

func TestNewPackAndUnpack(t *testing.T) {
	id, err := New(3, 42)
	require.NoError(t, err)
	require.Equal(t, uint8(3), id.FileID())
	require.Equal(t, uint32(42), id.Offset())
}

func TestNewRejectsOffsetOverflow(t *testing.T) {
	_, err := New(0, common.MaxPagesPerFile)
	require.ErrorIs(t, err, common.ErrInvalidPageID)
}

func TestOrderingByPackedValue(t *testing.T) {
	a, err := New(0, 10)
	require.NoError(t, err)
	b, err := New(0, 20)
	require.NoError(t, err)
	c, err := New(1, 0)
	require.NoError(t, err)

	require.True(t, a.Less(b))
	require.True(t, b.Less(c))
	require.False(t, c.Less(a))
}

func TestStringFormat(t *testing.T) {
	id, err := New(2, 7)
	require.NoError(t, err)
	require.Equal(t, "2:7", id.String())
}
