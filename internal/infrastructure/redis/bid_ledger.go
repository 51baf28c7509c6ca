package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"bidding-core/internal/domain"

	"github.com/go-redis/redis/v8"
)

// compareAndRaiseScript is the only writer of price and winner. Redis runs a
// script to completion before serving another command, which makes the
// read-compare-write indivisible per key.
var compareAndRaiseScript = redis.NewScript(`
        local f = redis.call('HMGET', KEYS[1], 'price', 'end_time', 'winner', 'version')
        local price = f[1]
        local end_time = f[2]
        if not price or not end_time then
            return {"NOT_FOUND"}
        end

        local winner = f[3] or ""
        local version = f[4] or "0"

        if tonumber(ARGV[3]) >= tonumber(end_time) then
            return {"EXPIRED", price, winner, end_time, version}
        end

        if tonumber(ARGV[1]) <= tonumber(price) then
            return {"TOO_LOW", price, winner, end_time, version}
        end

        version = redis.call('HINCRBY', KEYS[1], 'version', 1)
        redis.call('HSET', KEYS[1],
            'price', ARGV[1],
            'winner', ARGV[2],
            'updated_at', ARGV[3])

        return {"ACCEPTED", ARGV[1], ARGV[2], end_time, tostring(version)}
    `)

var activateScript = redis.NewScript(`
        if redis.call('EXISTS', KEYS[1]) == 1 then
            return 0
        end
        redis.call('HSET', KEYS[1],
            'price', ARGV[1],
            'winner', ARGV[2],
            'end_time', ARGV[3],
            'version', ARGV[4],
            'updated_at', ARGV[5])
        redis.call('PEXPIREAT', KEYS[1], ARGV[6])
        return 1
    `)

var rescheduleScript = redis.NewScript(`
        if redis.call('EXISTS', KEYS[1]) == 0 then
            return 0
        end
        redis.call('HSET', KEYS[1], 'end_time', ARGV[1])
        redis.call('PEXPIREAT', KEYS[1], ARGV[2])
        return 1
    `)

type RedisBidLedger struct {
	client    redis.UniversalClient
	retention time.Duration
}

// NewRedisBidLedger keeps each entry for retention past its end time so that
// late reads still see the final state until the auction is finalized.
func NewRedisBidLedger(client redis.UniversalClient, retention time.Duration) *RedisBidLedger {
	return &RedisBidLedger{client: client, retention: retention}
}

func ledgerKey(auctionID string) string {
	return fmt.Sprintf("auction:%s", auctionID)
}

func (r *RedisBidLedger) CompareAndRaise(ctx context.Context, attempt domain.BidAttempt) (domain.BidResult, error) {
	result, err := compareAndRaiseScript.Run(ctx, r.client, []string{ledgerKey(attempt.AuctionID)},
		domain.FormatAmount(attempt.Amount),
		attempt.BidderID,
		strconv.FormatInt(domain.UnixMillis(attempt.SubmittedAt), 10)).Result()
	if err != nil {
		return domain.BidResult{}, fmt.Errorf("compare and raise %s: %w", attempt.AuctionID, err)
	}

	fields, err := stringSlice(result)
	if err != nil {
		return domain.BidResult{}, fmt.Errorf("compare and raise %s: %w", attempt.AuctionID, err)
	}

	var outcome domain.BidOutcome
	switch fields[0] {
	case "NOT_FOUND":
		return domain.BidResult{Outcome: domain.BidNotFound}, nil
	case "EXPIRED":
		outcome = domain.BidExpired
	case "TOO_LOW":
		outcome = domain.BidTooLow
	case "ACCEPTED":
		outcome = domain.BidAccepted
	default:
		return domain.BidResult{}, fmt.Errorf("compare and raise %s: unexpected script reply %q", attempt.AuctionID, fields[0])
	}

	if len(fields) < 5 {
		return domain.BidResult{}, fmt.Errorf("compare and raise %s: short script reply %v", attempt.AuctionID, fields)
	}

	rec, err := parseRecord(attempt.AuctionID, fields[1], fields[2], fields[3], fields[4])
	if err != nil {
		return domain.BidResult{}, err
	}
	if outcome == domain.BidAccepted {
		rec.UpdatedAt = attempt.SubmittedAt
	}

	return domain.BidResult{Outcome: outcome, Record: rec}, nil
}

func (r *RedisBidLedger) Get(ctx context.Context, auctionID string) (*domain.AuctionRecord, error) {
	values, err := r.client.HGetAll(ctx, ledgerKey(auctionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get ledger entry %s: %w", auctionID, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("get ledger entry %s: %w", auctionID, domain.ErrAuctionNotFound)
	}

	version := values["version"]
	if version == "" {
		version = "0"
	}

	rec, err := parseRecord(auctionID, values["price"], values["winner"], values["end_time"], version)
	if err != nil {
		return nil, err
	}
	if ms, err := strconv.ParseInt(values["updated_at"], 10, 64); err == nil {
		rec.UpdatedAt = domain.FromUnixMillis(ms)
	}

	return &rec, nil
}

func (r *RedisBidLedger) Activate(ctx context.Context, record domain.AuctionRecord) error {
	updatedAt := record.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	created, err := activateScript.Run(ctx, r.client, []string{ledgerKey(record.AuctionID)},
		domain.FormatAmount(record.CurrentPrice),
		record.WinningBidderID,
		strconv.FormatInt(domain.UnixMillis(record.EndTime), 10),
		strconv.FormatInt(record.Version, 10),
		strconv.FormatInt(domain.UnixMillis(updatedAt), 10),
		strconv.FormatInt(domain.UnixMillis(record.EndTime.Add(r.retention)), 10)).Int64()
	if err != nil {
		return fmt.Errorf("activate %s: %w", record.AuctionID, err)
	}
	if created == 0 {
		return fmt.Errorf("activate %s: %w", record.AuctionID, domain.ErrAuctionExists)
	}
	return nil
}

func (r *RedisBidLedger) Reschedule(ctx context.Context, auctionID string, endTime time.Time) error {
	updated, err := rescheduleScript.Run(ctx, r.client, []string{ledgerKey(auctionID)},
		strconv.FormatInt(domain.UnixMillis(endTime), 10),
		strconv.FormatInt(domain.UnixMillis(endTime.Add(r.retention)), 10)).Int64()
	if err != nil {
		return fmt.Errorf("reschedule %s: %w", auctionID, err)
	}
	if updated == 0 {
		return fmt.Errorf("reschedule %s: %w", auctionID, domain.ErrAuctionNotFound)
	}
	return nil
}

func (r *RedisBidLedger) Remove(ctx context.Context, auctionID string) error {
	return r.client.Del(ctx, ledgerKey(auctionID)).Err()
}

func parseRecord(auctionID, price, winner, endTime, version string) (domain.AuctionRecord, error) {
	amount, err := domain.ParseAmount(price)
	if err != nil {
		return domain.AuctionRecord{}, fmt.Errorf("ledger entry %s: %w", auctionID, err)
	}
	endMs, err := strconv.ParseInt(endTime, 10, 64)
	if err != nil {
		return domain.AuctionRecord{}, fmt.Errorf("ledger entry %s: bad end_time: %w", auctionID, err)
	}
	v, err := strconv.ParseInt(version, 10, 64)
	if err != nil {
		return domain.AuctionRecord{}, fmt.Errorf("ledger entry %s: bad version: %w", auctionID, err)
	}

	return domain.AuctionRecord{
		AuctionID:       auctionID,
		CurrentPrice:    amount,
		WinningBidderID: winner,
		EndTime:         domain.FromUnixMillis(endMs),
		Version:         v,
	}, nil
}

func stringSlice(result interface{}) ([]string, error) {
	items, ok := result.([]interface{})
	if !ok || len(items) == 0 {
		return nil, errors.New("unexpected script reply")
	}

	out := make([]string, len(items))
	for i, item := range items {
		switch v := item.(type) {
		case string:
			out[i] = v
		case int64:
			out[i] = strconv.FormatInt(v, 10)
		default:
			return nil, fmt.Errorf("unexpected script reply element %T", item)
		}
	}
	return out, nil
}
