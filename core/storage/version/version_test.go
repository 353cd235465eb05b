package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestReadAt_SnapshotSelection verifies that a read at ts returns the
// newest version committed at or before ts.
func TestReadAt_SnapshotSelection(t *testing.T) {
	c := NewCell("x4", 40)
	c.Append(41, 5)
	c.Append(42, 9)

	require.Equal(t, int64(40), c.ReadAt(0), "time 0 must see the initial version")
	require.Equal(t, int64(40), c.ReadAt(4))
	require.Equal(t, int64(41), c.ReadAt(5), "a version is visible at its own commit time")
	require.Equal(t, int64(41), c.ReadAt(8))
	require.Equal(t, int64(42), c.ReadAt(9))
	require.Equal(t, int64(42), c.ReadAt(100))
}

// TestModifiedAfter covers the first-committer-wins primitive.
func TestModifiedAfter(t *testing.T) {
	c := NewCell("x2", 20)
	require.False(t, c.ModifiedAfter(0), "only the initial version exists")

	c.Append(22, 3)
	require.True(t, c.ModifiedAfter(0))
	require.True(t, c.ModifiedAfter(2))
	require.False(t, c.ModifiedAfter(3))
	require.False(t, c.ModifiedAfter(4))
}

// TestAppend_MonotonicCommitTimes verifies the append-only invariant: a
// commit time at or below the newest version panics.
func TestAppend_MonotonicCommitTimes(t *testing.T) {
	c := NewCell("x6", 60)
	c.Append(61, 4)

	require.Panics(t, func() { c.Append(62, 4) })
	require.Panics(t, func() { c.Append(62, 3) })

	c.Append(62, 5)
	require.Equal(t, Version{Value: 62, CommitTime: 5}, c.Latest())
}
