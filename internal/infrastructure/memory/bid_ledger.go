// Package memory holds single-process implementations of the ledger and the
// change bus, for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bidding-core/internal/domain"
)

type entry struct {
	mu      sync.Mutex
	record  domain.AuctionRecord
	removed bool
}

// BidLedger serializes raises per auction with a per-entry mutex. The map
// lock is held only for lookup, insert and delete, so bids on different
// auctions never wait on each other.
type BidLedger struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

func NewBidLedger() *BidLedger {
	return &BidLedger{entries: make(map[string]*entry)}
}

func (l *BidLedger) lookup(auctionID string) *entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entries[auctionID]
}

func (l *BidLedger) CompareAndRaise(ctx context.Context, attempt domain.BidAttempt) (domain.BidResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.BidResult{}, err
	}

	e := l.lookup(attempt.AuctionID)
	if e == nil {
		return domain.BidResult{Outcome: domain.BidNotFound}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Lost a race with Remove.
	if e.removed {
		return domain.BidResult{Outcome: domain.BidNotFound}, nil
	}

	outcome := domain.EvaluateBid(&e.record, attempt)
	if outcome == domain.BidAccepted {
		e.record.Raise(attempt)
	}

	return domain.BidResult{Outcome: outcome, Record: e.record}, nil
}

func (l *BidLedger) Get(ctx context.Context, auctionID string) (*domain.AuctionRecord, error) {
	e := l.lookup(auctionID)
	if e == nil {
		return nil, fmt.Errorf("get ledger entry %s: %w", auctionID, domain.ErrAuctionNotFound)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return nil, fmt.Errorf("get ledger entry %s: %w", auctionID, domain.ErrAuctionNotFound)
	}

	rec := e.record
	return &rec, nil
}

func (l *BidLedger) Activate(ctx context.Context, record domain.AuctionRecord) error {
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.entries[record.AuctionID]; ok {
		return fmt.Errorf("activate %s: %w", record.AuctionID, domain.ErrAuctionExists)
	}
	l.entries[record.AuctionID] = &entry{record: record}
	return nil
}

func (l *BidLedger) Reschedule(ctx context.Context, auctionID string, endTime time.Time) error {
	e := l.lookup(auctionID)
	if e == nil {
		return fmt.Errorf("reschedule %s: %w", auctionID, domain.ErrAuctionNotFound)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return fmt.Errorf("reschedule %s: %w", auctionID, domain.ErrAuctionNotFound)
	}
	e.record.EndTime = endTime
	return nil
}

func (l *BidLedger) Remove(ctx context.Context, auctionID string) error {
	l.mu.Lock()
	e, ok := l.entries[auctionID]
	delete(l.entries, auctionID)
	l.mu.Unlock()

	if ok {
		e.mu.Lock()
		e.removed = true
		e.mu.Unlock()
	}
	return nil
}
