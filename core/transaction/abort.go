package transaction

import (
	"errors"
	"fmt"

	"github.com/sushant-115/sukunadb/core/storage/datamanager"
)

// AbortCode enumerates why the engine aborts a transaction.
type AbortCode int

const (
	AbortInvalidVariable AbortCode = iota
	AbortReadOnlyWrite
	AbortReadFailed
	AbortSiteFailure
	AbortWriteConflict
	AbortCycle
)

// AbortReason is an abort code plus the context needed to render the
// reason line that precedes the abort notice in the output stream.
type AbortReason struct {
	Code     AbortCode
	Txn      string
	Variable string
	SiteID   int
	Err      error
}

// Line renders the human-readable reason line.
func (r AbortReason) Line() string {
	switch r.Code {
	case AbortInvalidVariable:
		return fmt.Sprintf("Invalid variable name: %s", r.Variable)
	case AbortReadOnlyWrite:
		return fmt.Sprintf("Read-only transaction %s cannot perform writes.", r.Txn)
	case AbortReadFailed:
		return fmt.Sprintf("Read failed for transaction %s on variable %s: %v", r.Txn, r.Variable, r.Err)
	case AbortSiteFailure:
		return fmt.Sprintf("%s aborts due to failure of site %d", r.Txn, r.SiteID)
	case AbortWriteConflict:
		return fmt.Sprintf("Write-write conflict detected on %s for transaction %s", r.Variable, r.Txn)
	case AbortCycle:
		return fmt.Sprintf("Cycle detected in dependency graph for transaction %s", r.Txn)
	default:
		return fmt.Sprintf("Transaction %s failed validation", r.Txn)
	}
}

// Label returns the low-cardinality value used for logs and the abort
// metric's reason attribute.
func (r AbortReason) Label() string {
	switch r.Code {
	case AbortInvalidVariable:
		return "invalid_variable"
	case AbortReadOnlyWrite:
		return "read_only_write"
	case AbortReadFailed:
		switch {
		case errors.Is(r.Err, datamanager.ErrSiteDown):
			return "site_down"
		case errors.Is(r.Err, datamanager.ErrNoValidCopy):
			return "no_valid_copy"
		default:
			return "read_failed"
		}
	case AbortSiteFailure:
		return "site_failure"
	case AbortWriteConflict:
		return "write_conflict"
	case AbortCycle:
		return "cycle"
	default:
		return "unknown"
	}
}
