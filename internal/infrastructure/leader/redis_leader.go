package leader

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	leaderKey = "bidding_scheduler_leader"
	minTTL    = time.Second
)

var releaseScript = redis.NewScript(`
        if redis.call("GET", KEYS[1]) == ARGV[1] then
            return redis.call("DEL", KEYS[1])
        else
            return 0
        end
    `)

var renewScript = redis.NewScript(`
        if redis.call("GET", KEYS[1]) == ARGV[1] then
            return redis.call("PEXPIRE", KEYS[1], ARGV[2])
        else
            return 0
        end
    `)

// RedisLeaderElection holds a TTL lock in Redis. The holder renews it at a
// third of the TTL until it is released or lost.
type RedisLeaderElection struct {
	client redis.UniversalClient
	ttl    time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewRedisLeaderElection raises ttl to one second if it is shorter. A zero
// TTL would make the lock permanent.
func NewRedisLeaderElection(client redis.UniversalClient, ttl time.Duration) *RedisLeaderElection {
	if ttl < minTTL {
		ttl = minTTL
	}
	return &RedisLeaderElection{
		client: client,
		ttl:    ttl,
	}
}

func (r *RedisLeaderElection) BecomeLeader(ctx context.Context, instanceID string) (bool, error) {
	acquired, err := r.client.SetNX(ctx, leaderKey, instanceID, r.ttl).Result()
	if err != nil {
		return false, err
	}

	if acquired {
		r.startRenewal(instanceID)
	}
	return acquired, nil
}

func (r *RedisLeaderElection) IsLeader(ctx context.Context, instanceID string) (bool, error) {
	current, err := r.client.Get(ctx, leaderKey).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return current == instanceID, nil
}

func (r *RedisLeaderElection) ReleaseLeadership(ctx context.Context, instanceID string) error {
	r.stopRenewal()
	return releaseScript.Run(ctx, r.client, []string{leaderKey}, instanceID).Err()
}

func (r *RedisLeaderElection) startRenewal(instanceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	go r.maintainLeadership(ctx, instanceID)
}

func (r *RedisLeaderElection) stopRenewal() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

func (r *RedisLeaderElection) maintainLeadership(ctx context.Context, instanceID string) {
	ticker := time.NewTicker(r.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		renewCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		renewed, err := renewScript.Run(renewCtx, r.client, []string{leaderKey},
			instanceID, r.ttl.Milliseconds()).Int64()
		cancel()

		if err != nil || renewed == 0 {
			// Lost leadership; the next BecomeLeader call competes again.
			return
		}
	}
}
