package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"bidding-core/internal/domain"
	"bidding-core/pkg/logger"

	"github.com/go-redis/redis/v8"
)

// RedisChangeSubscriber receives every auction topic over one pattern
// subscription. A single subscription delivers messages in publish order,
// which preserves per-topic ordering for the handler.
type RedisChangeSubscriber struct {
	client redis.UniversalClient
	log    logger.Logger
}

func NewRedisChangeSubscriber(client redis.UniversalClient, log logger.Logger) *RedisChangeSubscriber {
	return &RedisChangeSubscriber{
		client: client,
		log:    log,
	}
}

// SubscribeToChanges blocks until ctx is cancelled or the subscription
// channel closes.
func (r *RedisChangeSubscriber) SubscribeToChanges(ctx context.Context, handler domain.ChangeHandler) error {
	pubsub := r.client.PSubscribe(ctx, topicPrefix+"*")
	defer pubsub.Close()

	// Wait for confirmation so that nothing published after we return from
	// Receive is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to auction updates: %w", err)
	}

	ch := pubsub.Channel()

	r.log.Info("Subscribed to auction updates")

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			event, err := parseChangeEvent(msg.Channel, msg.Payload)
			if err != nil {
				r.log.Error("Failed to parse change event", "channel", msg.Channel, "payload", msg.Payload, "error", err)
				continue
			}

			if err := handler(event); err != nil {
				r.log.Error("Failed to handle change event", "auction_id", event.AuctionID, "error", err)
			}

		case <-ctx.Done():
			r.log.Info("Change subscriber stopped")
			return ctx.Err()
		}
	}
}

func parseChangeEvent(channel, payload string) (*domain.ChangeEvent, error) {
	var event domain.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return nil, fmt.Errorf("invalid event payload: %w", err)
	}

	topicID := strings.TrimPrefix(channel, topicPrefix)
	if event.AuctionID == "" {
		event.AuctionID = topicID
	}
	if event.AuctionID != topicID {
		return nil, fmt.Errorf("event for %s arrived on %s", event.AuctionID, channel)
	}

	return &event, nil
}
