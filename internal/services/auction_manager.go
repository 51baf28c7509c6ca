package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bidding-core/internal/domain"
	"bidding-core/pkg/logger"
	"bidding-core/pkg/utils"
)

// AuctionManager drives the lifecycle around the ledger: it creates ledger
// entries when auctions go live, moves end times, and finalizes the durable
// record before the entry is dropped.
type AuctionManager struct {
	auctionRepo domain.AuctionRepository
	ledger      domain.BidLedger
	eventPub    domain.ChangePublisher
	scheduler   domain.AuctionScheduler
	log         logger.Logger
	now         func() time.Time
}

func NewAuctionManager(
	auctionRepo domain.AuctionRepository,
	ledger domain.BidLedger,
	eventPub domain.ChangePublisher,
	scheduler domain.AuctionScheduler,
	log logger.Logger,
) *AuctionManager {
	return &AuctionManager{
		auctionRepo: auctionRepo,
		ledger:      ledger,
		eventPub:    eventPub,
		scheduler:   scheduler,
		log:         log,
		now:         time.Now,
	}
}

func (am *AuctionManager) SetScheduler(scheduler domain.AuctionScheduler) {
	am.scheduler = scheduler
}

func (am *AuctionManager) SetClock(now func() time.Time) {
	am.now = now
}

// CreateAuction stores a pending auction and schedules its start and end.
// An auction whose start time has already come goes live immediately.
func (am *AuctionManager) CreateAuction(ctx context.Context, sellerID string, startTime, endTime time.Time, startingPrice float64) (*domain.Auction, error) {
	if !endTime.After(startTime) {
		return nil, fmt.Errorf("%w: end time must be after start time", domain.ErrInvalidState)
	}
	price, err := domain.NormalizeAmount(startingPrice)
	if err != nil {
		return nil, err
	}

	now := am.now()
	if !endTime.After(now) {
		return nil, fmt.Errorf("%w: end time is in the past", domain.ErrInvalidState)
	}

	auction := &domain.Auction{
		ID:            utils.GenerateID("auction"),
		SellerID:      sellerID,
		StartTime:     startTime,
		EndTime:       endTime,
		StartingPrice: price,
		CurrentPrice:  price,
		Status:        domain.AuctionPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := am.auctionRepo.CreateAuction(ctx, auction); err != nil {
		return nil, fmt.Errorf("create auction: %w", err)
	}

	if startTime.After(now) {
		if err := am.scheduler.ScheduleAuctionStart(ctx, auction.ID, startTime); err != nil {
			return nil, err
		}
	}
	if err := am.scheduler.ScheduleAuctionEnd(ctx, auction.ID, endTime); err != nil {
		return nil, err
	}

	if !startTime.After(now) {
		if err := am.StartAuction(ctx, auction.ID); err != nil {
			return nil, err
		}
		auction.Status = domain.AuctionActive
	}

	am.log.Info("Auction created", "auction_id", auction.ID, "start_time", startTime, "end_time", endTime)
	return auction, nil
}

// StartAuction marks the auction active and opens its ledger entry. Starting
// an auction that is already live is a no-op.
func (am *AuctionManager) StartAuction(ctx context.Context, auctionID string) error {
	auction, err := am.auctionRepo.GetAuction(ctx, auctionID)
	if err != nil {
		return err
	}

	switch auction.Status {
	case domain.AuctionEnded, domain.AuctionCancelled:
		return fmt.Errorf("start auction %s (%s): %w", auctionID, auction.Status, domain.ErrInvalidState)
	case domain.AuctionPending:
		if err := am.auctionRepo.UpdateAuctionStatus(ctx, auctionID, domain.AuctionActive); err != nil {
			return err
		}
	}

	if err := am.activate(ctx, auction); err != nil {
		return err
	}

	am.log.Info("Auction started", "auction_id", auctionID, "end_time", auction.EndTime)
	return nil
}

// StartNow opens a pending auction right away, keeping its original length.
func (am *AuctionManager) StartNow(ctx context.Context, auctionID string) (*domain.Auction, error) {
	auction, err := am.auctionRepo.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if auction.Status != domain.AuctionPending {
		return nil, fmt.Errorf("start auction %s (%s): %w", auctionID, auction.Status, domain.ErrInvalidState)
	}

	duration := auction.Duration()
	auction.StartTime = am.now()
	auction.EndTime = auction.StartTime.Add(duration)

	if err := am.auctionRepo.UpdateAuctionWindow(ctx, auctionID, auction.StartTime, auction.EndTime); err != nil {
		return nil, err
	}
	if err := am.scheduler.CancelSchedule(ctx, auctionID); err != nil {
		return nil, err
	}
	if err := am.scheduler.ScheduleAuctionEnd(ctx, auctionID, auction.EndTime); err != nil {
		return nil, err
	}
	if err := am.StartAuction(ctx, auctionID); err != nil {
		return nil, err
	}

	auction.Status = domain.AuctionActive
	return auction, nil
}

// EndAuction writes the ledger's final state to the durable record, tells
// observers and only then drops the ledger entry. If the durable write fails
// the entry stays so the job can be retried.
func (am *AuctionManager) EndAuction(ctx context.Context, auctionID string) error {
	rec, err := am.ledger.Get(ctx, auctionID)
	if errors.Is(err, domain.ErrAuctionNotFound) {
		return am.endWithoutLedger(ctx, auctionID)
	}
	if err != nil {
		return err
	}

	now := am.now()
	if now.Before(rec.EndTime) {
		// Extended after this job was queued. Usually the job was cancelled
		// with the extension; if that step failed, this job is the only one
		// left and must stay pending until the new end time.
		return fmt.Errorf("end auction %s: due at %s: %w",
			auctionID, rec.EndTime.Format(time.RFC3339), domain.ErrNotDue)
	}

	if err := am.auctionRepo.FinalizeAuction(ctx, *rec); err != nil {
		return fmt.Errorf("finalize auction %s: %w", auctionID, err)
	}

	endTime := rec.EndTime
	am.publish(ctx, &domain.ChangeEvent{
		Type:      domain.AuctionClosed,
		AuctionID: auctionID,
		NewPrice:  rec.CurrentPrice,
		BidderID:  rec.WinningBidderID,
		Timestamp: now,
		EndTime:   &endTime,
	})

	if err := am.ledger.Remove(ctx, auctionID); err != nil {
		am.log.Error("Failed to remove ledger entry", "auction_id", auctionID, "error", err)
	}

	am.log.Info("Auction ended", "auction_id", auctionID, "final_price", rec.CurrentPrice,
		"winner_id", rec.WinningBidderID)
	return nil
}

// endWithoutLedger covers auctions that never went live on this ledger and
// repeated end jobs.
func (am *AuctionManager) endWithoutLedger(ctx context.Context, auctionID string) error {
	auction, err := am.auctionRepo.GetAuction(ctx, auctionID)
	if err != nil {
		return err
	}
	if auction.Status == domain.AuctionEnded || auction.Status == domain.AuctionCancelled {
		return nil
	}

	am.log.Warn("Ending auction without ledger entry", "auction_id", auctionID, "status", auction.Status.String())
	return am.auctionRepo.FinalizeAuction(ctx, domain.AuctionRecord{
		AuctionID:       auctionID,
		CurrentPrice:    auction.CurrentPrice,
		WinningBidderID: auction.WinnerID,
		Version:         auction.Version,
	})
}

// ExtendAuction moves a live auction's end time later.
func (am *AuctionManager) ExtendAuction(ctx context.Context, auctionID string, newEndTime time.Time) (*domain.AuctionRecord, error) {
	rec, err := am.ledger.Get(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if !am.now().Before(rec.EndTime) {
		return nil, fmt.Errorf("extend auction %s: already closed: %w", auctionID, domain.ErrInvalidState)
	}
	if !newEndTime.After(rec.EndTime) {
		return nil, fmt.Errorf("extend auction %s: new end time must be after %s: %w",
			auctionID, rec.EndTime.Format(time.RFC3339), domain.ErrInvalidState)
	}

	auction, err := am.auctionRepo.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	// Durable record first, then the ledger, then the end job. A failure
	// part way leaves the old end job pending, and EndAuction holds it
	// until whatever end time the ledger carries.
	if err := am.auctionRepo.UpdateAuctionWindow(ctx, auctionID, auction.StartTime, newEndTime); err != nil {
		return nil, err
	}
	if err := am.ledger.Reschedule(ctx, auctionID, newEndTime); err != nil {
		if rerr := am.auctionRepo.UpdateAuctionWindow(ctx, auctionID, auction.StartTime, auction.EndTime); rerr != nil {
			am.log.Error("Failed to restore auction window", "auction_id", auctionID, "error", rerr)
		}
		return nil, err
	}
	if err := am.scheduler.RescheduleAuctionEnd(ctx, auctionID, newEndTime); err != nil {
		return nil, fmt.Errorf("extend auction %s: reschedule end job: %w", auctionID, err)
	}

	rec.EndTime = newEndTime
	am.publish(ctx, &domain.ChangeEvent{
		Type:      domain.AuctionExtended,
		AuctionID: auctionID,
		NewPrice:  rec.CurrentPrice,
		BidderID:  rec.WinningBidderID,
		Timestamp: am.now(),
		EndTime:   &newEndTime,
	})

	am.log.Info("Auction extended", "auction_id", auctionID, "new_end_time", newEndTime)
	return rec, nil
}

// RestoreActiveAuctions recreates ledger entries for every auction the
// durable record holds as active. Entries that already exist are kept.
func (am *AuctionManager) RestoreActiveAuctions(ctx context.Context) (int, error) {
	auctions, err := am.auctionRepo.GetActiveAuctions(ctx)
	if err != nil {
		return 0, fmt.Errorf("load active auctions: %w", err)
	}

	restored := 0
	for _, auction := range auctions {
		if err := am.activate(ctx, auction); err != nil {
			am.log.Error("Failed to restore auction", "auction_id", auction.ID, "error", err)
			continue
		}
		restored++
	}

	am.log.Info("Active auctions restored", "count", restored, "total", len(auctions))
	return restored, nil
}

func (am *AuctionManager) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	return am.auctionRepo.GetAuction(ctx, auctionID)
}

func (am *AuctionManager) activate(ctx context.Context, auction *domain.Auction) error {
	price := auction.CurrentPrice
	if price < auction.StartingPrice {
		price = auction.StartingPrice
	}

	err := am.ledger.Activate(ctx, domain.AuctionRecord{
		AuctionID:       auction.ID,
		CurrentPrice:    price,
		WinningBidderID: auction.WinnerID,
		EndTime:         auction.EndTime,
		Version:         auction.Version,
		UpdatedAt:       am.now(),
	})
	if errors.Is(err, domain.ErrAuctionExists) {
		return nil
	}
	return err
}

func (am *AuctionManager) publish(ctx context.Context, event *domain.ChangeEvent) {
	if err := am.eventPub.Publish(ctx, event); err != nil {
		am.log.Error("Failed to publish lifecycle event", "auction_id", event.AuctionID,
			"type", event.Type, "error", err)
	}
}
