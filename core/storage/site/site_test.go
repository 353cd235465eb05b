package site

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// setupSite creates a site for isolated testing.
func setupSite(t *testing.T, id int) *Site {
	t.Helper()
	return New(id, zap.NewNop())
}

// TestHosting: a site hosts every even variable plus its own odd ones.
func TestHosting(t *testing.T) {
	s := setupSite(t, 2)
	require.True(t, s.Hosts("x2"))
	require.True(t, s.Hosts("x1"), "x1's home is site 2")
	require.True(t, s.Hosts("x11"))
	require.False(t, s.Hosts("x3"), "x3 lives at site 4")

	_, err := s.Read("x3", 10)
	require.ErrorIs(t, err, ErrNotHosted)
}

// TestReadWrite exercises the snapshot read path against initial and
// committed versions.
func TestReadWrite(t *testing.T) {
	s := setupSite(t, 1)

	v, err := s.Read("x2", 0)
	require.NoError(t, err)
	require.Equal(t, int64(20), v)

	require.NoError(t, s.Write("x2", 22, 5))

	v, err = s.Read("x2", 4)
	require.NoError(t, err)
	require.Equal(t, int64(20), v, "snapshot before the commit sees the old value")

	v, err = s.Read("x2", 5)
	require.NoError(t, err)
	require.Equal(t, int64(22), v)

	require.True(t, s.HadCommittedWriteSince("x2", 4))
	require.False(t, s.HadCommittedWriteSince("x2", 5))
	require.False(t, s.HadCommittedWriteSince("x3", 0), "unhosted variables report false")
}

// TestFailRecoverLifecycle walks UP -> DOWN -> RECOVERING and checks the
// failure intervals and the unreadable set along the way.
func TestFailRecoverLifecycle(t *testing.T) {
	s := setupSite(t, 2)

	require.Equal(t, StatusUp, s.Status())
	s.Fail(3)
	require.Equal(t, StatusDown, s.Status())

	_, err := s.Read("x2", 10)
	require.ErrorIs(t, err, ErrSiteDown)

	// fail is a no-op unless the site is up
	s.Fail(4)
	require.Len(t, s.FailureIntervals(), 1)

	intervals := s.FailureIntervals()
	require.Equal(t, uint64(3), intervals[0].FailedAt)
	require.Equal(t, OpenInterval, intervals[0].RecoveredAt)

	s.Recover(7)
	require.Equal(t, StatusRecovering, s.Status())
	intervals = s.FailureIntervals()
	require.Equal(t, uint64(7), intervals[0].RecoveredAt)

	// replicated variables are unreadable until the next committed write
	_, err = s.Read("x2", 10)
	require.ErrorIs(t, err, ErrUnavailable)

	// single-copy variables are readable immediately upon recovery
	v, err := s.Read("x1", 10)
	require.NoError(t, err)
	require.Equal(t, int64(10), v)

	// a committed write clears the flag
	require.NoError(t, s.Write("x2", 22, 8))
	v, err = s.Read("x2", 10)
	require.NoError(t, err)
	require.Equal(t, int64(22), v)

	// recover is a no-op unless the site is down
	s.Recover(9)
	require.Len(t, s.FailureIntervals(), 1)
}

// TestHasStableHistory: a failure interval starting at or before ts breaks
// the history unless a committed write after the recovery (and at or
// before ts) healed the copy; later failures do not.
func TestHasStableHistory(t *testing.T) {
	s := setupSite(t, 1)
	require.True(t, s.HasStableHistory("x2", 5))
	require.False(t, s.HasStableHistory("x3", 5), "unhosted variable has no history here")

	s.Fail(3)
	require.False(t, s.HasStableHistory("x2", 5), "failed at 3 <= ts 5")
	require.True(t, s.HasStableHistory("x2", 2), "snapshot predates the failure")

	s.Recover(4)
	require.True(t, s.HasStableHistory("x2", 2), "recovery does not repair the gap, but the pre-fail snapshot is intact")
	require.False(t, s.HasStableHistory("x2", 3))

	// a committed write after recovery heals the copy for newer snapshots
	require.NoError(t, s.Write("x2", 22, 5))
	require.True(t, s.HasStableHistory("x2", 6))
	require.False(t, s.HasStableHistory("x2", 3), "snapshots inside the hole stay unservable")
}

// TestSnapshotRead serves a pre-failure snapshot even while the variable
// sits in the unreadable set.
func TestSnapshotRead(t *testing.T) {
	s := setupSite(t, 1)
	require.NoError(t, s.Write("x8", 88, 2))

	s.Fail(5)
	s.Recover(6)

	_, err := s.Read("x8", 3)
	require.ErrorIs(t, err, ErrUnavailable)

	v, err := s.SnapshotRead("x8", 3)
	require.NoError(t, err)
	require.Equal(t, int64(88), v)
}

// TestDump reports only modified variables, in index order.
func TestDump(t *testing.T) {
	s := setupSite(t, 2)
	require.Empty(t, s.Dump())

	require.NoError(t, s.Write("x4", 44, 2))
	require.NoError(t, s.Write("x1", 11, 3))

	rows := s.Dump()
	require.Equal(t, []DumpRow{{Variable: "x1", Value: 11}, {Variable: "x4", Value: 44}}, rows)

	// a write that restores the initial value is not modified
	require.NoError(t, s.Write("x4", 40, 4))
	require.Equal(t, []DumpRow{{Variable: "x1", Value: 11}}, s.Dump())
}
