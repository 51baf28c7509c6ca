package services

import (
	"context"
	"fmt"

	"bidding-core/internal/domain"
	"bidding-core/pkg/logger"
)

// AuctionEventSink is the session side of the notifier.
type AuctionEventSink interface {
	OnAuctionEvent(auctionID string, event *domain.ChangeEvent)
	CloseTopic(auctionID string)
}

// EventListener forwards change events from the broker to local sessions.
type EventListener struct {
	sink AuctionEventSink
	log  logger.Logger
}

func NewEventListener(sink AuctionEventSink, log logger.Logger) *EventListener {
	return &EventListener{
		sink: sink,
		log:  log,
	}
}

// Start blocks until ctx is done.
func (el *EventListener) Start(ctx context.Context, subscriber domain.ChangeSubscriber) error {
	el.log.Info("Starting event listener")
	return subscriber.SubscribeToChanges(ctx, el.handleChangeEvent)
}

func (el *EventListener) handleChangeEvent(event *domain.ChangeEvent) error {
	el.log.Debug("Handling change event", "type", event.Type, "auction_id", event.AuctionID,
		"sequence", event.Sequence)

	switch event.Type {
	case domain.PriceUpdated, domain.AuctionExtended:
		el.sink.OnAuctionEvent(event.AuctionID, event)
	case domain.AuctionClosed:
		// Final broadcast, then nobody stays subscribed to a closed auction.
		el.sink.OnAuctionEvent(event.AuctionID, event)
		el.sink.CloseTopic(event.AuctionID)
	default:
		return fmt.Errorf("unknown change event type %q for auction %s", event.Type, event.AuctionID)
	}
	return nil
}
