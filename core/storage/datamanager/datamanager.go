// Package datamanager routes snapshot reads and commit-time writes across
// the ten sites according to the replication directory and the
// available-copies rules, and parks replicated reads that must wait for a
// site recovery.
package datamanager

import (
	"fmt"
	"io"
	"sort"

	"go.uber.org/zap"

	"github.com/sushant-115/sukunadb/core/replication"
	"github.com/sushant-115/sukunadb/core/storage/site"
)

// pendingRead is one parked replicated read awaiting a recovery.
type pendingRead struct {
	txn      string
	variable string
	ts       uint64
}

// ResolvedRead is a parked read served by a site recovery.
type ResolvedRead struct {
	Txn      string
	Variable string
	Value    int64
}

// DataManager owns the sites and implements the availability policy.
type DataManager struct {
	sites  map[int]*site.Site
	waits  []pendingRead
	logger *zap.Logger
}

// New creates the ten sites, each seeded with its hosted variables.
func New(logger *zap.Logger) *DataManager {
	dm := &DataManager{
		sites:  make(map[int]*site.Site, replication.NumSites),
		logger: logger.Named("storage"),
	}
	for id := 1; id <= replication.NumSites; id++ {
		dm.sites[id] = site.New(id, logger)
	}
	return dm
}

// Site returns the site with the given id, or nil for an unknown id.
func (dm *DataManager) Site(id int) *site.Site {
	return dm.sites[id]
}

// Read serves a snapshot read at ts for the named transaction.
//
// Single-copy variables are read from their home site or fail with
// ErrSiteDown. Replicated variables are read from any site with a stable
// history through ts that can serve right now; if no site has a stable
// history the read fails with ErrNoValidCopy, and if stable copies exist
// but none is currently serviceable the read is parked and ErrMustWait is
// returned.
func (dm *DataManager) Read(txn, variable string, ts uint64) (int64, error) {
	idx, err := replication.ParseIndex(variable)
	if err != nil {
		return 0, err
	}

	if !replication.IsReplicated(idx) {
		owner := dm.sites[replication.HomeSite(idx)]
		if owner.Status() == site.StatusDown {
			return 0, fmt.Errorf("%w: site %d owning %s", ErrSiteDown, owner.ID(), variable)
		}
		return owner.Read(variable, ts)
	}

	stable := false
	for id := 1; id <= replication.NumSites; id++ {
		s := dm.sites[id]
		if !s.HasStableHistory(variable, ts) {
			continue
		}
		stable = true
		if s.Readable(variable) {
			return s.Read(variable, ts)
		}
	}
	if !stable {
		return 0, fmt.Errorf("%w: %s at ts %d", ErrNoValidCopy, variable, ts)
	}

	dm.waits = append(dm.waits, pendingRead{txn: txn, variable: variable, ts: ts})
	dm.logger.Info("read parked until recovery",
		zap.String("txn", txn),
		zap.String("variable", variable),
		zap.Uint64("ts", ts))
	return 0, ErrMustWait
}

// Commit applies a transaction's buffered writes at its commit stamp.
// Every host that is not down receives the version; down hosts are
// skipped (the commit validator has already established that no touched
// site failed during the transaction's lifetime). It returns the number
// of per-site version appends.
func (dm *DataManager) Commit(txn string, writes map[string]int64, commitTime uint64) int {
	variables := make([]string, 0, len(writes))
	for v := range writes {
		variables = append(variables, v)
	}
	sort.Strings(variables)

	applied := 0
	for _, v := range variables {
		idx, err := replication.ParseIndex(v)
		if err != nil {
			continue
		}
		for _, id := range replication.SitesFor(idx) {
			s := dm.sites[id]
			if s.Status() == site.StatusDown {
				continue
			}
			if err := s.Write(v, writes[v], commitTime); err != nil {
				dm.logger.Error("commit write rejected",
					zap.String("txn", txn),
					zap.String("variable", v),
					zap.Int("site", id),
					zap.Error(err))
				continue
			}
			applied++
		}
	}
	return applied
}

// HadCommittedWriteSince reports whether any host of the variable holds a
// version committed strictly after ts. Down sites are consulted too: their
// histories are retained across failures.
func (dm *DataManager) HadCommittedWriteSince(variable string, ts uint64) bool {
	idx, err := replication.ParseIndex(variable)
	if err != nil {
		return false
	}
	for _, id := range replication.SitesFor(idx) {
		if dm.sites[id].HadCommittedWriteSince(variable, ts) {
			return true
		}
	}
	return false
}

// UpHosts returns the ids of hosts of the variable that are not down, in
// ascending order. For single-copy variables the home site is always
// included, and a replicated variable with every host down reports all of
// them: the write has nowhere live to land, so the commit validator must
// be able to observe the outage through the sites-touched set.
func (dm *DataManager) UpHosts(variable string) []int {
	idx, err := replication.ParseIndex(variable)
	if err != nil {
		return nil
	}
	if !replication.IsReplicated(idx) {
		return []int{replication.HomeSite(idx)}
	}
	var ids []int
	for _, id := range replication.SitesFor(idx) {
		if dm.sites[id].Status() != site.StatusDown {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return replication.SitesFor(idx)
	}
	return ids
}

// FailSite transitions a site to DOWN at the given logical time.
func (dm *DataManager) FailSite(id int, now uint64) {
	if s, ok := dm.sites[id]; ok {
		s.Fail(now)
	}
}

// RecoverSite transitions a site to RECOVERING at the given logical time
// and drains every parked read the recovered site can now serve: a parked
// read is servable when the site's copy has an unbroken history through
// the read's snapshot timestamp. Such a snapshot predates the failure, so
// it is served even while the variable sits in the unreadable set.
func (dm *DataManager) RecoverSite(id int, now uint64) []ResolvedRead {
	s, ok := dm.sites[id]
	if !ok {
		return nil
	}
	s.Recover(now)

	var resolved []ResolvedRead
	remaining := dm.waits[:0]
	for _, w := range dm.waits {
		if !s.HasStableHistory(w.variable, w.ts) {
			remaining = append(remaining, w)
			continue
		}
		value, err := s.SnapshotRead(w.variable, w.ts)
		if err != nil {
			remaining = append(remaining, w)
			continue
		}
		resolved = append(resolved, ResolvedRead{Txn: w.txn, Variable: w.variable, Value: value})
	}
	dm.waits = remaining
	return resolved
}

// DropWaits discards any parked reads belonging to the transaction. Called
// when the transaction ends or aborts.
func (dm *DataManager) DropWaits(txn string) {
	remaining := dm.waits[:0]
	for _, w := range dm.waits {
		if w.txn != txn {
			remaining = append(remaining, w)
		}
	}
	dm.waits = remaining
}

// PendingReads returns the number of parked reads.
func (dm *DataManager) PendingReads() int {
	return len(dm.waits)
}

// Dump writes the modified variables of every site, in site-id order.
func (dm *DataManager) Dump(w io.Writer) {
	for id := 1; id <= replication.NumSites; id++ {
		for _, row := range dm.sites[id].Dump() {
			fmt.Fprintf(w, "%s: %d at site %d\n", row.Variable, row.Value, id)
		}
	}
}
