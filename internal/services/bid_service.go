package services

import (
	"context"
	"fmt"
	"time"

	"bidding-core/internal/domain"
	"bidding-core/internal/metrics"
	"bidding-core/pkg/logger"
)

// BidService is the caller-facing side of the ledger. It never reads the
// durable record.
type BidService struct {
	ledger    domain.BidLedger
	publisher domain.ChangePublisher
	syncer    domain.BidSyncer
	metrics   metrics.MetricsCollector
	log       logger.Logger
	now       func() time.Time
}

func NewBidService(
	ledger domain.BidLedger,
	publisher domain.ChangePublisher,
	syncer domain.BidSyncer,
	m metrics.MetricsCollector,
	log logger.Logger,
) *BidService {
	if m == nil {
		m = metrics.Nop{}
	}
	return &BidService{
		ledger:    ledger,
		publisher: publisher,
		syncer:    syncer,
		metrics:   m,
		log:       log,
		now:       time.Now,
	}
}

// SetClock replaces the time source used to stamp attempts.
func (s *BidService) SetClock(now func() time.Time) {
	s.now = now
}

// PlaceBid evaluates one bid. Rejections come back as outcomes with a nil
// error; an error means the input was invalid (ErrInvalidBid) or the ledger
// could not be reached (ErrLedgerUnavailable).
//
// An accepted bid is published before PlaceBid returns. Durability sync is
// only dispatched.
func (s *BidService) PlaceBid(ctx context.Context, auctionID, bidderID string, amount float64) (domain.BidResult, error) {
	started := time.Now()
	defer func() { s.metrics.RecordBidLatency(time.Since(started)) }()

	normalized, err := ValidateAttempt(auctionID, bidderID, amount)
	if err != nil {
		return domain.BidResult{}, err
	}

	attempt := domain.BidAttempt{
		AuctionID:   auctionID,
		Amount:      normalized,
		BidderID:    bidderID,
		SubmittedAt: s.now(),
	}

	result, err := s.ledger.CompareAndRaise(ctx, attempt)
	if err != nil {
		s.log.Error("Ledger evaluation failed", "auction_id", auctionID, "error", err)
		return domain.BidResult{}, fmt.Errorf("place bid on %s: %w: %w", auctionID, domain.ErrLedgerUnavailable, err)
	}
	s.metrics.RecordBidOutcome(result.Outcome.String())

	if result.Outcome != domain.BidAccepted {
		s.log.Debug("Bid rejected", "auction_id", auctionID, "bidder_id", bidderID,
			"amount", normalized, "outcome", result.Outcome.String())
		return result, nil
	}

	s.log.Info("Bid accepted", "auction_id", auctionID, "bidder_id", bidderID,
		"amount", normalized, "version", result.Record.Version)

	// The raise is committed; a caller that goes away must not cancel the
	// publish of it.
	pubCtx := context.WithoutCancel(ctx)
	if err := s.publisher.Publish(pubCtx, domain.NewPriceUpdate(result.Record)); err != nil {
		s.log.Error("Failed to publish price update", "auction_id", auctionID, "error", err)
	} else {
		s.metrics.RecordEventPublished()
	}

	s.syncer.Dispatch(result.Record)

	return result, nil
}

// GetAuctionState is the out-of-band read late joiners use to catch up.
func (s *BidService) GetAuctionState(ctx context.Context, auctionID string) (*domain.AuctionRecord, error) {
	return s.ledger.Get(ctx, auctionID)
}
