package services

import (
	"context"
	"time"

	"bidding-core/internal/domain"
	"bidding-core/pkg/logger"
)

// BidHistoryRecorder turns accepted price updates into bid history rows.
// It listens on the same change stream as the session hub.
type BidHistoryRecorder struct {
	bidRepo domain.BidRepository
	timeout time.Duration
	log     logger.Logger
}

func NewBidHistoryRecorder(bidRepo domain.BidRepository, log logger.Logger) *BidHistoryRecorder {
	return &BidHistoryRecorder{
		bidRepo: bidRepo,
		timeout: 5 * time.Second,
		log:     log,
	}
}

// Start blocks until ctx is done.
func (r *BidHistoryRecorder) Start(ctx context.Context, subscriber domain.ChangeSubscriber) error {
	r.log.Info("Starting bid history recorder")
	return subscriber.SubscribeToChanges(ctx, func(event *domain.ChangeEvent) error {
		return r.Record(ctx, event)
	})
}

// Record stores event if it is a price update. Lifecycle events are ignored.
func (r *BidHistoryRecorder) Record(ctx context.Context, event *domain.ChangeEvent) error {
	if event.Type != domain.PriceUpdated {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	err := r.bidRepo.SaveBidEvent(ctx, &domain.BidEvent{
		AuctionID: event.AuctionID,
		UserID:    event.BidderID,
		Amount:    event.NewPrice,
		Sequence:  event.Sequence,
		Timestamp: event.Timestamp,
	})
	if err != nil {
		r.log.Error("Failed to store bid event", "auction_id", event.AuctionID,
			"sequence", event.Sequence, "error", err)
		return err
	}

	r.log.Debug("Stored bid event", "auction_id", event.AuctionID, "sequence", event.Sequence)
	return nil
}
