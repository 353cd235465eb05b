package datamanager

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sushant-115/sukunadb/core/replication"
	"github.com/sushant-115/sukunadb/core/storage/site"
)

// setupDataManager creates a data manager over ten fresh sites.
func setupDataManager(t *testing.T) *DataManager {
	t.Helper()
	return New(zap.NewNop())
}

// TestRead_SingleCopy routes odd variables to their home site and fails
// with ErrSiteDown while the owner is down.
func TestRead_SingleCopy(t *testing.T) {
	dm := setupDataManager(t)

	v, err := dm.Read("T1", "x1", 5)
	require.NoError(t, err)
	require.Equal(t, int64(10), v)

	dm.FailSite(2, 1) // x1's home
	_, err = dm.Read("T1", "x1", 5)
	require.ErrorIs(t, err, ErrSiteDown)
	require.Zero(t, dm.PendingReads(), "single-copy reads never wait")
}

// TestRead_ReplicatedPrefersServableStableCopy: with one site freshly
// recovered, the read is served by any other host.
func TestRead_ReplicatedPrefersServableStableCopy(t *testing.T) {
	dm := setupDataManager(t)
	dm.FailSite(1, 1)
	dm.RecoverSite(1, 2)

	v, err := dm.Read("T1", "x2", 5)
	require.NoError(t, err)
	require.Equal(t, int64(20), v)
}

// TestRead_NoValidCopy: when every host failed at or before the snapshot
// timestamp, no site has an unbroken history and the read fails hard.
func TestRead_NoValidCopy(t *testing.T) {
	dm := setupDataManager(t)
	for id := 1; id <= replication.NumSites; id++ {
		dm.FailSite(id, 1)
	}

	_, err := dm.Read("T1", "x2", 5)
	require.ErrorIs(t, err, ErrNoValidCopy)
	require.Zero(t, dm.PendingReads())
}

// TestRead_MustWaitThenResolve: stable copies exist (every site failed
// after the snapshot ts) but none is serviceable, so the read parks; the
// first recovery serves it even though the variable is still flagged
// unreadable for ordinary reads.
func TestRead_MustWaitThenResolve(t *testing.T) {
	dm := setupDataManager(t)
	for id := 1; id <= replication.NumSites; id++ {
		dm.FailSite(id, 10)
	}

	_, err := dm.Read("T1", "x8", 5)
	require.ErrorIs(t, err, ErrMustWait)
	require.Equal(t, 1, dm.PendingReads())

	resolved := dm.RecoverSite(3, 11)
	require.Len(t, resolved, 1)
	require.Equal(t, ResolvedRead{Txn: "T1", Variable: "x8", Value: 80}, resolved[0])
	require.Zero(t, dm.PendingReads())
}

// TestRecover_LeavesUnservableReadsParked: a recovery that cannot serve a
// parked read leaves it in the queue.
func TestRecover_LeavesUnservableReadsParked(t *testing.T) {
	dm := setupDataManager(t)
	dm.FailSite(1, 1) // site 1's history is broken before the snapshot
	for id := 2; id <= replication.NumSites; id++ {
		dm.FailSite(id, 10)
	}

	_, err := dm.Read("T1", "x8", 5)
	require.ErrorIs(t, err, ErrMustWait)

	resolved := dm.RecoverSite(1, 11)
	require.Empty(t, resolved, "site 1 failed before ts and cannot serve")
	require.Equal(t, 1, dm.PendingReads())

	resolved = dm.RecoverSite(2, 12)
	require.Len(t, resolved, 1)
	require.Equal(t, int64(80), resolved[0].Value)
}

// TestDropWaits purges a transaction's parked reads.
func TestDropWaits(t *testing.T) {
	dm := setupDataManager(t)
	for id := 1; id <= replication.NumSites; id++ {
		dm.FailSite(id, 10)
	}
	_, err := dm.Read("T1", "x8", 5)
	require.ErrorIs(t, err, ErrMustWait)

	dm.DropWaits("T1")
	require.Zero(t, dm.PendingReads())
	require.Empty(t, dm.RecoverSite(1, 11))
}

// TestCommit_FanOutSkipsDownSites: a replicated commit lands on every
// live host, skips down ones, and reaches recovering sites so their
// copies become readable again.
func TestCommit_FanOutSkipsDownSites(t *testing.T) {
	dm := setupDataManager(t)
	dm.FailSite(4, 1)
	dm.FailSite(5, 2)
	dm.RecoverSite(5, 3)

	applied := dm.Commit("T1", map[string]int64{"x2": 22}, 4)
	require.Equal(t, 9, applied, "nine of ten hosts are not down")

	require.False(t, dm.Site(4).HadCommittedWriteSince("x2", 0), "down site missed the write")
	require.True(t, dm.Site(5).HadCommittedWriteSince("x2", 0), "recovering site received the write")
	require.True(t, dm.Site(5).Readable("x2"), "the write cleared the unreadable flag")

	// single-copy write with the owner down is skipped silently
	dm.FailSite(2, 5)
	applied = dm.Commit("T2", map[string]int64{"x1": 11}, 6)
	require.Zero(t, applied)
}

// TestHadCommittedWriteSince consults every host, including down ones.
func TestHadCommittedWriteSince(t *testing.T) {
	dm := setupDataManager(t)
	require.False(t, dm.HadCommittedWriteSince("x2", 0))

	dm.Commit("T1", map[string]int64{"x2": 22}, 3)
	require.True(t, dm.HadCommittedWriteSince("x2", 2))
	require.False(t, dm.HadCommittedWriteSince("x2", 3))

	dm.FailSite(1, 4)
	require.True(t, dm.HadCommittedWriteSince("x2", 2), "histories survive failures")
}

// TestUpHosts: replicated variables list live hosts; single-copy
// variables always list the home site so the validator can see a dead
// owner.
func TestUpHosts(t *testing.T) {
	dm := setupDataManager(t)
	require.Len(t, dm.UpHosts("x2"), 10)

	dm.FailSite(3, 1)
	require.Len(t, dm.UpHosts("x2"), 9)
	require.NotContains(t, dm.UpHosts("x2"), 3)

	dm.FailSite(2, 2)
	require.Equal(t, []int{2}, dm.UpHosts("x1"), "home site reported even while down")

	for id := 1; id <= replication.NumSites; id++ {
		dm.FailSite(id, 3)
	}
	require.Len(t, dm.UpHosts("x2"), 10, "with no live host every host is reported")
}

// TestDump prints modified variables per site in id order.
func TestDump(t *testing.T) {
	dm := setupDataManager(t)
	dm.Commit("T1", map[string]int64{"x1": 101}, 2)

	var buf bytes.Buffer
	dm.Dump(&buf)
	require.Equal(t, "x1: 101 at site 2\n", buf.String())
}

// TestSiteAccessor returns nil for unknown ids.
func TestSiteAccessor(t *testing.T) {
	dm := setupDataManager(t)
	require.NotNil(t, dm.Site(1))
	require.Nil(t, dm.Site(11))
	require.Equal(t, site.StatusUp, dm.Site(10).Status())
}
