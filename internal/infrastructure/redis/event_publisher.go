package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"bidding-core/internal/domain"

	"github.com/go-redis/redis/v8"
)

const topicPrefix = "auction_updates:"

// TopicFor is the pub/sub channel carrying one auction's change events.
func TopicFor(auctionID string) string {
	return topicPrefix + auctionID
}

type RedisChangePublisher struct {
	client redis.UniversalClient
}

func NewRedisChangePublisher(client redis.UniversalClient) *RedisChangePublisher {
	return &RedisChangePublisher{client: client}
}

func (r *RedisChangePublisher) Publish(ctx context.Context, event *domain.ChangeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode change event: %w", err)
	}

	return r.client.Publish(ctx, TopicFor(event.AuctionID), payload).Err()
}
