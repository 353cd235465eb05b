package transaction

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	internaltelemetry "github.com/sushant-115/sukunadb/internal/telemetry"

	"github.com/sushant-115/sukunadb/core/replication"
	"github.com/sushant-115/sukunadb/core/storage/datamanager"
	"github.com/sushant-115/sukunadb/core/storage/site"
)

// Manager is the ordered serialization engine. It owns the transaction
// table, the global read/write tables, and the logical clock, and drives
// the data manager for storage access. Commands are processed strictly one
// at a time; observable result lines go to out, diagnostics to the logger.
type Manager struct {
	dm    *datamanager.DataManager
	clock *Clock

	txns       map[string]*Transaction
	readers    map[string]map[string]struct{} // variable -> txn names that read it
	writers    map[string]map[string]struct{} // variable -> txn names with committed writes
	lastWriter map[string]string              // variable -> most recent committer

	out     io.Writer
	logger  *zap.Logger
	metrics *internaltelemetry.EngineMetrics // may be nil
}

// NewManager creates an engine over the given data manager. metrics may be
// nil when telemetry is disabled.
func NewManager(dm *datamanager.DataManager, out io.Writer, logger *zap.Logger, metrics *internaltelemetry.EngineMetrics) *Manager {
	return &Manager{
		dm:         dm,
		clock:      &Clock{},
		txns:       make(map[string]*Transaction),
		readers:    make(map[string]map[string]struct{}),
		writers:    make(map[string]map[string]struct{}),
		lastWriter: make(map[string]string),
		out:        out,
		logger:     logger.Named("engine"),
		metrics:    metrics,
	}
}

// Begin starts a transaction. A duplicate name is rejected.
func (m *Manager) Begin(name string, readOnly bool) {
	if _, exists := m.txns[name]; exists {
		fmt.Fprintf(m.out, "Transaction %s already exists.\n", name)
		return
	}
	t := New(name, readOnly, m.clock.Next())
	m.txns[name] = t
	m.logger.Info("transaction started",
		zap.String("txn", name),
		zap.String("txn_id", t.ID()),
		zap.Bool("read_only", readOnly),
		zap.Uint64("start", t.StartTime()))
	if readOnly {
		fmt.Fprintf(m.out, "Transaction %s started (Read-Only).\n", name)
	} else {
		fmt.Fprintf(m.out, "Transaction %s started.\n", name)
	}
	if m.metrics != nil {
		m.metrics.TxnsBegunCounter.Add(context.Background(), 1)
	}
}

// Read serves a snapshot read at the transaction's start stamp. A read
// that must wait parks the transaction; any other failure aborts it.
func (m *Manager) Read(name, variable string) {
	t, ok := m.txns[name]
	if !ok || t.Status() != StatusActive {
		fmt.Fprintf(m.out, "Transaction %s is not active.\n", name)
		return
	}
	if t.blocked {
		fmt.Fprintf(m.out, "Transaction %s is waiting on a previous read.\n", name)
		return
	}
	if _, err := replication.ParseIndex(variable); err != nil {
		m.abort(t, AbortReason{Code: AbortInvalidVariable, Txn: name, Variable: variable})
		return
	}

	value, err := m.dm.Read(name, variable, t.StartTime())
	switch {
	case err == nil:
		t.AddReadVariable(variable)
		m.addReader(variable, name)
		fmt.Fprintf(m.out, "%s: %d\n", variable, value)
		if m.metrics != nil {
			m.metrics.ReadsServedCounter.Add(context.Background(), 1)
		}
	case isMustWait(err):
		t.blocked = true
		m.logger.Info("transaction blocked on read",
			zap.String("txn", name),
			zap.String("variable", variable))
		if m.metrics != nil {
			m.metrics.ReadsQueuedCounter.Add(context.Background(), 1)
		}
	default:
		m.abort(t, AbortReason{Code: AbortReadFailed, Txn: name, Variable: variable, Err: err})
	}
}

// Write validates and buffers a write; nothing reaches storage until the
// transaction commits. The hosts the write would land on are folded into
// the sites-touched set now so the validator can detect failures spanning
// the transaction's lifetime.
func (m *Manager) Write(name, variable string, value int64) {
	t, ok := m.txns[name]
	if !ok || t.Status() != StatusActive {
		fmt.Fprintf(m.out, "Transaction %s is not active.\n", name)
		return
	}
	if t.ReadOnly() {
		m.abort(t, AbortReason{Code: AbortReadOnlyWrite, Txn: name})
		return
	}
	if _, err := replication.ParseIndex(variable); err != nil {
		m.abort(t, AbortReason{Code: AbortInvalidVariable, Txn: name, Variable: variable})
		return
	}

	t.AddSitesWritten(m.dm.UpHosts(variable))
	t.BufferWrite(variable, value)
	fmt.Fprintf(m.out, "Write of %d to %s buffered for transaction %s\n", value, variable, name)
}

// End validates the transaction and commits or aborts it. The record stays
// in the transaction table either way so later transactions can still
// resolve dependency edges against it.
func (m *Manager) End(name string) {
	t, ok := m.txns[name]
	if !ok {
		fmt.Fprintf(m.out, "Transaction %s not found.\n", name)
		return
	}
	if t.Status() != StatusActive {
		fmt.Fprintf(m.out, "Transaction %s is not active.\n", name)
		return
	}
	m.validateAndCommit(t)
	m.dm.DropWaits(name)
}

// validateAndCommit runs the ordered commit checks; the first failure
// aborts the transaction.
func (m *Manager) validateAndCommit(t *Transaction) {
	started := time.Now()
	defer func() {
		if m.metrics != nil {
			m.metrics.ValidationHistogram.Record(context.Background(), time.Since(started).Microseconds())
		}
	}()

	// Read-only transactions saw a consistent snapshot at their start
	// stamp; nothing to validate.
	if t.ReadOnly() {
		t.status = StatusCommitted
		fmt.Fprintf(m.out, "%s committed (Read-Only).\n", t.Name())
		if m.metrics != nil {
			m.metrics.TxnsCommittedCounter.Add(context.Background(), 1)
		}
		return
	}

	// A write may have been skipped while a touched site was down, so any
	// failure interval overlapping [start, now] dooms the transaction.
	now := m.clock.Now()
	for _, id := range sortedSites(t.SitesWritten()) {
		s := m.dm.Site(id)
		if s == nil {
			continue
		}
		for _, iv := range s.FailureIntervals() {
			if iv.FailedAt <= now && (iv.RecoveredAt == site.OpenInterval || iv.RecoveredAt >= t.StartTime()) {
				m.abort(t, AbortReason{Code: AbortSiteFailure, Txn: t.Name(), SiteID: id})
				return
			}
		}
	}

	// First-committer-wins: any committed write to a variable in the write
	// set after this transaction started is a conflict.
	for _, v := range sortedVariables(t.WriteSet()) {
		if m.dm.HadCommittedWriteSince(v, t.StartTime()) {
			m.abort(t, AbortReason{Code: AbortWriteConflict, Txn: t.Name(), Variable: v})
			return
		}
	}

	// Build serialization edges into the committing transaction:
	// committed writers of what it read, readers of what it writes, and
	// the last committed writer of each written variable.
	for v := range t.ReadSet() {
		for w := range m.writers[v] {
			t.AddDependency(w)
		}
	}
	for v := range t.WriteSet() {
		for r := range m.readers[v] {
			t.AddDependency(r)
		}
		if lw, ok := m.lastWriter[v]; ok {
			t.AddDependency(lw)
		}
	}

	if m.hasCycleFrom(t) {
		m.abort(t, AbortReason{Code: AbortCycle, Txn: t.Name()})
		return
	}

	t.commit = m.clock.Next()
	applied := m.dm.Commit(t.Name(), t.WriteSet(), t.CommitTime())
	for v := range t.WriteSet() {
		m.lastWriter[v] = t.Name()
		if m.writers[v] == nil {
			m.writers[v] = make(map[string]struct{})
		}
		m.writers[v][t.Name()] = struct{}{}
	}
	for v := range t.ReadSet() {
		m.addReader(v, t.Name())
	}
	t.status = StatusCommitted
	m.logger.Info("transaction committed",
		zap.String("txn", t.Name()),
		zap.Uint64("commit", t.CommitTime()),
		zap.Int("writes_applied", applied))
	fmt.Fprintf(m.out, "%s committed.\n", t.Name())
	if m.metrics != nil {
		m.metrics.TxnsCommittedCounter.Add(context.Background(), 1)
		m.metrics.WritesAppliedCounter.Add(context.Background(), int64(applied))
	}
}

// abort marks the transaction aborted, discards its buffered writes and
// parked reads, and emits the reason line followed by the abort notice.
// Reads already emitted are not retracted; the record stays in the table
// but its edges are inert since its commit stamp is never set.
func (m *Manager) abort(t *Transaction, reason AbortReason) {
	t.status = StatusAborted
	t.blocked = false
	m.dm.DropWaits(t.Name())
	m.logger.Info("transaction aborted",
		zap.String("txn", t.Name()),
		zap.String("reason", reason.Label()))
	fmt.Fprintln(m.out, reason.Line())
	fmt.Fprintf(m.out, "Transaction %s aborted.\n", t.Name())
	if m.metrics != nil {
		m.metrics.TxnsAbortedCounter.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("reason", reason.Label())))
	}
}

// FailSite transitions a site to DOWN.
func (m *Manager) FailSite(id int) {
	before, _ := m.SiteStatus(id)
	m.dm.FailSite(id, m.clock.Next())
	fmt.Fprintf(m.out, "Site %d failed.\n", id)
	if after, ok := m.SiteStatus(id); ok && after != before && m.metrics != nil {
		m.metrics.SitesDownUpDown.Add(context.Background(), 1)
	}
}

// RecoverSite transitions a site to RECOVERING and serves every parked
// read the recovered site can resolve.
func (m *Manager) RecoverSite(id int) {
	before, _ := m.SiteStatus(id)
	resolved := m.dm.RecoverSite(id, m.clock.Next())
	fmt.Fprintf(m.out, "Site %d recovered.\n", id)
	if after, ok := m.SiteStatus(id); ok && after != before && m.metrics != nil {
		m.metrics.SitesDownUpDown.Add(context.Background(), -1)
	}
	for _, r := range resolved {
		t, ok := m.txns[r.Txn]
		if !ok || t.Status() != StatusActive {
			continue
		}
		t.blocked = false
		t.AddReadVariable(r.Variable)
		m.addReader(r.Variable, r.Txn)
		fmt.Fprintf(m.out, "%s: %d\n", r.Variable, r.Value)
		if m.metrics != nil {
			m.metrics.ReadsServedCounter.Add(context.Background(), 1)
		}
	}
}

// Dump prints the modified variables of every site in site-id order.
func (m *Manager) Dump() {
	m.dm.Dump(m.out)
}

// TransactionStatus returns the lifecycle state of a named transaction.
func (m *Manager) TransactionStatus(name string) (Status, bool) {
	t, ok := m.txns[name]
	if !ok {
		return 0, false
	}
	return t.Status(), true
}

// SiteStatus returns the availability state of a site.
func (m *Manager) SiteStatus(id int) (site.Status, bool) {
	s := m.dm.Site(id)
	if s == nil {
		return 0, false
	}
	return s.Status(), true
}

func (m *Manager) addReader(variable, txn string) {
	if m.readers[variable] == nil {
		m.readers[variable] = make(map[string]struct{})
	}
	m.readers[variable][txn] = struct{}{}
}

func isMustWait(err error) bool {
	return errors.Is(err, datamanager.ErrMustWait)
}

func sortedSites(ids map[int]struct{}) []int {
	out := make([]int, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

func sortedVariables(writes map[string]int64) []string {
	out := make([]string, 0, len(writes))
	for v := range writes {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
