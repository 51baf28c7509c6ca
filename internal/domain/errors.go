package domain

import "errors"

// Ledger and repository errors
var (
	ErrAuctionNotFound = errors.New("auction not found")
	ErrAuctionExists   = errors.New("auction already active")
	ErrInvalidState    = errors.New("auction is not in a valid state for this operation")

	// ErrLedgerUnavailable wraps backend failures on the bid path.
	ErrLedgerUnavailable = errors.New("bid ledger unavailable")
)

// ErrNotDue means a scheduled job ran before its auction's current end time.
// The job stays pending.
var ErrNotDue = errors.New("job not due yet")

// Bid input errors
var (
	ErrInvalidBid = errors.New("invalid bid")
)

// Delivery and sync errors, contained within their component
var (
	ErrSessionClosed = errors.New("session closed")
	ErrSlowConsumer  = errors.New("session send buffer full")
	ErrSyncQueueFull = errors.New("durability sync queue full")
)
