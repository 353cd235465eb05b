// Package site models one of SukunaDB's ten logical data sites: a set of
// hosted variables with multi-version histories, an up/down/recovering
// status, and the bookkeeping needed by the available-copies discipline
// (failure intervals and the unreadable-until-next-write set).
package site

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/sushant-115/sukunadb/core/replication"
	"github.com/sushant-115/sukunadb/core/storage/version"
)

var (
	// ErrSiteDown is returned for any read or write against a down site.
	ErrSiteDown = errors.New("site down")
	// ErrNotHosted is returned when the site does not store the variable.
	ErrNotHosted = errors.New("variable not hosted at site")
	// ErrUnavailable is returned while a recovered replicated variable is
	// waiting for its next committed write.
	ErrUnavailable = errors.New("variable unavailable until next write")
)

// Status is the availability state of a site.
type Status int

const (
	StatusUp Status = iota
	StatusDown
	StatusRecovering
)

func (s Status) String() string {
	switch s {
	case StatusUp:
		return "UP"
	case StatusDown:
		return "DOWN"
	case StatusRecovering:
		return "RECOVERING"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// OpenInterval marks a failure interval whose site has not recovered yet.
const OpenInterval = uint64(math.MaxUint64)

// FailureInterval is one [failed, recovered] span in a site's history.
// RecoveredAt is OpenInterval while the site is still down.
type FailureInterval struct {
	FailedAt    uint64
	RecoveredAt uint64
}

// Site is a single logical storage node.
//
// The engine is single-threaded, so the mutex is not strictly required; it
// is kept so the observable semantics survive if callers ever run sites
// from multiple goroutines.
type Site struct {
	id     int
	mu     sync.Mutex
	status Status
	cells  map[string]*version.Cell
	// replicated variables flagged unreadable after recovery, cleared by
	// the next committed write to the variable at this site
	unreadable map[string]struct{}
	intervals  []FailureInterval
	logger     *zap.Logger
}

// New creates a site hosting the variables assigned to it by the
// replication directory, each seeded with its initial version.
func New(id int, logger *zap.Logger) *Site {
	s := &Site{
		id:         id,
		status:     StatusUp,
		cells:      make(map[string]*version.Cell),
		unreadable: make(map[string]struct{}),
		logger:     logger.With(zap.Int("site", id)),
	}
	for _, idx := range replication.VariablesAt(id) {
		name := replication.VariableName(idx)
		s.cells[name] = version.NewCell(name, replication.InitialValue(idx))
	}
	return s
}

// ID returns the site id.
func (s *Site) ID() int {
	return s.id
}

// Status returns the current availability state.
func (s *Site) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Hosts reports whether this site stores the variable.
func (s *Site) Hosts(variable string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.cells[variable]
	return ok
}

// Read returns the snapshot value of the variable at ts. It fails while the
// site is down, while the variable is in the post-recovery unreadable set,
// or when the variable is not hosted here.
func (s *Site) Read(variable string, ts uint64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusDown {
		return 0, ErrSiteDown
	}
	cell, ok := s.cells[variable]
	if !ok {
		return 0, ErrNotHosted
	}
	if _, stale := s.unreadable[variable]; stale {
		return 0, fmt.Errorf("%w: %s at site %d", ErrUnavailable, variable, s.id)
	}
	return cell.ReadAt(ts), nil
}

// SnapshotRead reads the variable at ts regardless of the unreadable set.
// It is used to resolve parked reads whose snapshot predates the failure:
// the history up to ts is intact even though post-recovery reads at newer
// timestamps must wait for a fresh write.
func (s *Site) SnapshotRead(variable string, ts uint64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cell, ok := s.cells[variable]
	if !ok {
		return 0, ErrNotHosted
	}
	return cell.ReadAt(ts), nil
}

// Write appends a committed version and clears the variable's unreadable
// flag. Writes are accepted while UP or RECOVERING; a write to a down site
// is an engine bug surfaced as ErrSiteDown.
func (s *Site) Write(variable string, value int64, commitTime uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusDown {
		return ErrSiteDown
	}
	cell, ok := s.cells[variable]
	if !ok {
		return ErrNotHosted
	}
	cell.Append(value, commitTime)
	delete(s.unreadable, variable)
	s.logger.Debug("version appended",
		zap.String("variable", variable),
		zap.Int64("value", value),
		zap.Uint64("commit_time", commitTime))
	return nil
}

// HadCommittedWriteSince reports whether a version was committed to the
// variable at this site strictly after ts. Unhosted variables report false.
func (s *Site) HadCommittedWriteSince(variable string, ts uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cell, ok := s.cells[variable]
	if !ok {
		return false
	}
	return cell.ModifiedAfter(ts)
}

// Fail transitions the site UP -> DOWN at the given logical time, opening a
// failure interval and clearing the unreadable set. It is a no-op from
// DOWN or RECOVERING.
func (s *Site) Fail(now uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusUp {
		return
	}
	s.status = StatusDown
	s.intervals = append(s.intervals, FailureInterval{FailedAt: now, RecoveredAt: OpenInterval})
	s.unreadable = make(map[string]struct{})
	s.logger.Info("site failed", zap.Uint64("at", now))
}

// Recover transitions the site DOWN -> RECOVERING at the given logical
// time, closing the open failure interval and flagging every replicated
// variable unreadable until its next committed write. Single-copy
// variables are readable immediately since no other replica can have moved
// ahead. The status never transitions back to UP automatically; the engine
// treats RECOVERING like UP everywhere except through the unreadable set.
func (s *Site) Recover(now uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusDown {
		return
	}
	s.status = StatusRecovering
	s.intervals[len(s.intervals)-1].RecoveredAt = now
	for name := range s.cells {
		idx, err := replication.ParseIndex(name)
		if err != nil {
			continue
		}
		if replication.IsReplicated(idx) {
			s.unreadable[name] = struct{}{}
		}
	}
	s.logger.Info("site recovered", zap.Uint64("at", now), zap.Int("unreadable", len(s.unreadable)))
}

// FailureIntervals returns a copy of the site's failure history in order.
func (s *Site) FailureIntervals() []FailureInterval {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]FailureInterval, len(s.intervals))
	copy(out, s.intervals)
	return out
}

// HasStableHistory reports whether this site's copy of the variable can
// serve a snapshot at ts: the site hosts the variable and every failure
// interval that began at or before ts was healed by a committed write to
// the variable after the recovery. A commit after recovery guarantees the
// copy holds the globally newest version at or before ts, so the snapshot
// read cannot observe the downtime hole.
func (s *Site) HasStableHistory(variable string, ts uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cell, ok := s.cells[variable]
	if !ok {
		return false
	}
	lastWrite := cell.LastCommitAtOrBefore(ts)
	for _, iv := range s.intervals {
		if iv.FailedAt <= ts && (iv.RecoveredAt == OpenInterval || iv.RecoveredAt >= lastWrite) {
			return false
		}
	}
	return true
}

// Readable reports whether a normal read of the variable could be served
// right now (site not down, variable hosted and not flagged unreadable).
func (s *Site) Readable(variable string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusDown {
		return false
	}
	if _, ok := s.cells[variable]; !ok {
		return false
	}
	_, stale := s.unreadable[variable]
	return !stale
}

// DumpRow is one modified variable reported by Dump.
type DumpRow struct {
	Variable string
	Value    int64
}

// Dump returns the site's modified variables (latest value differs from
// the initial 10*i) in variable-index order.
func (s *Site) Dump() []DumpRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	indices := make([]int, 0, len(s.cells))
	byIndex := make(map[int]*version.Cell, len(s.cells))
	for name, cell := range s.cells {
		idx, err := replication.ParseIndex(name)
		if err != nil {
			continue
		}
		indices = append(indices, idx)
		byIndex[idx] = cell
	}
	sort.Ints(indices)
	var rows []DumpRow
	for _, idx := range indices {
		latest := byIndex[idx].Latest()
		if latest.Value != replication.InitialValue(idx) {
			rows = append(rows, DumpRow{Variable: replication.VariableName(idx), Value: latest.Value})
		}
	}
	return rows
}
