// Package transaction implements SukunaDB's serialization engine: the
// transaction records, the logical clock, and the manager that dispatches
// operations, buffers writes, and validates at commit time.
package transaction

import (
	"github.com/google/uuid"
)

// Status is the lifecycle state of a transaction.
type Status int

const (
	StatusActive Status = iota
	StatusCommitted
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "ACTIVE"
	case StatusCommitted:
		return "COMMITTED"
	case StatusAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// Transaction is the in-memory record of one transaction. Records are
// retained after commit or abort so later transactions can resolve
// dependency edges against them.
type Transaction struct {
	id       string // uuid for log correlation
	name     string
	readOnly bool
	status   Status
	start    uint64
	commit   uint64 // 0 while uncommitted

	readSet  map[string]struct{}
	writeSet map[string]int64 // buffered until commit, last write wins
	// ids of sites a committed version of this transaction would land on
	sitesWritten map[int]struct{}
	// names of serialization predecessors (edges pred -> this)
	preds map[string]struct{}

	// a parked read is outstanding; further reads are refused until the
	// next recovery resolves it
	blocked bool
}

// New creates an active record bound to a fresh start stamp.
func New(name string, readOnly bool, start uint64) *Transaction {
	return &Transaction{
		id:           uuid.New().String(),
		name:         name,
		readOnly:     readOnly,
		status:       StatusActive,
		start:        start,
		readSet:      make(map[string]struct{}),
		writeSet:     make(map[string]int64),
		sitesWritten: make(map[int]struct{}),
		preds:        make(map[string]struct{}),
	}
}

// ID returns the record's uuid.
func (t *Transaction) ID() string { return t.id }

// Name returns the transaction name, e.g. "T1".
func (t *Transaction) Name() string { return t.name }

// ReadOnly reports whether the transaction was begun with beginRO.
func (t *Transaction) ReadOnly() bool { return t.readOnly }

// Status returns the lifecycle state.
func (t *Transaction) Status() Status { return t.status }

// StartTime returns the start stamp.
func (t *Transaction) StartTime() uint64 { return t.start }

// CommitTime returns the commit stamp, 0 while uncommitted.
func (t *Transaction) CommitTime() uint64 { return t.commit }

// AddReadVariable records a served read.
func (t *Transaction) AddReadVariable(variable string) {
	t.readSet[variable] = struct{}{}
}

// ReadSet returns the variables this transaction has read.
func (t *Transaction) ReadSet() map[string]struct{} { return t.readSet }

// BufferWrite buffers a write until commit; a later write to the same
// variable overwrites the earlier one.
func (t *Transaction) BufferWrite(variable string, value int64) {
	t.writeSet[variable] = value
}

// WriteSet returns the buffered writes.
func (t *Transaction) WriteSet() map[string]int64 { return t.writeSet }

// AddSitesWritten unions site ids into the sites-touched set.
func (t *Transaction) AddSitesWritten(ids []int) {
	for _, id := range ids {
		t.sitesWritten[id] = struct{}{}
	}
}

// SitesWritten returns the ids of sites this transaction's writes touch.
func (t *Transaction) SitesWritten() map[int]struct{} { return t.sitesWritten }

// AddDependency records a serialization predecessor by name.
func (t *Transaction) AddDependency(name string) {
	if name != t.name {
		t.preds[name] = struct{}{}
	}
}

// Dependencies returns the predecessor set.
func (t *Transaction) Dependencies() map[string]struct{} { return t.preds }
