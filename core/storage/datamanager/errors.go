package datamanager

import "errors"

var (
	// ErrSiteDown signals a single-copy read whose owner site is down.
	// The caller aborts the transaction.
	ErrSiteDown = errors.New("site down")

	// ErrNoValidCopy signals a replicated read for which no site kept an
	// unbroken history through the snapshot timestamp. The caller aborts
	// the transaction.
	ErrNoValidCopy = errors.New("no valid copy")

	// ErrMustWait signals that a stable copy exists but no site can serve
	// it right now. The read is parked and retried on site recovery; the
	// transaction stays active.
	ErrMustWait = errors.New("read must wait for site recovery")
)
