package redis

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"bidding-core/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) (*RedisBidLedger, *miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisBidLedger(client, time.Hour), mr, client
}

func attempt(auctionID string, amount float64, bidder string, at time.Time) domain.BidAttempt {
	return domain.BidAttempt{AuctionID: auctionID, Amount: amount, BidderID: bidder, SubmittedAt: at}
}

func TestRedisBidLedger_SampleScenario(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, ledger.Activate(ctx, domain.AuctionRecord{
		AuctionID:    "A1",
		CurrentPrice: 100,
		EndTime:      base.Add(60 * time.Second),
	}))

	res, err := ledger.CompareAndRaise(ctx, attempt("A1", 150, "U1", base.Add(10*time.Second)))
	require.NoError(t, err)
	require.Equal(t, domain.BidAccepted, res.Outcome)
	require.Equal(t, 150.0, res.Record.CurrentPrice)
	require.Equal(t, "U1", res.Record.WinningBidderID)
	require.Equal(t, int64(1), res.Record.Version)

	res, err = ledger.CompareAndRaise(ctx, attempt("A1", 120, "U2", base.Add(20*time.Second)))
	require.NoError(t, err)
	require.Equal(t, domain.BidTooLow, res.Outcome)
	require.Equal(t, 150.0, res.Record.CurrentPrice)

	res, err = ledger.CompareAndRaise(ctx, attempt("A1", 200, "U3", base.Add(70*time.Second)))
	require.NoError(t, err)
	require.Equal(t, domain.BidExpired, res.Outcome)

	rec, err := ledger.Get(ctx, "A1")
	require.NoError(t, err)
	require.Equal(t, 150.0, rec.CurrentPrice)
	require.Equal(t, "U1", rec.WinningBidderID)
	require.Equal(t, base.Add(60*time.Second), rec.EndTime)
	require.Equal(t, base.Add(10*time.Second), rec.UpdatedAt)
}

func TestRedisBidLedger_TieIsTooLow(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, ledger.Activate(ctx, domain.AuctionRecord{AuctionID: "A1", CurrentPrice: 100, EndTime: now.Add(time.Minute)}))

	res, err := ledger.CompareAndRaise(ctx, attempt("A1", 100, "U1", now))
	require.NoError(t, err)
	require.Equal(t, domain.BidTooLow, res.Outcome)

	rec, err := ledger.Get(ctx, "A1")
	require.NoError(t, err)
	require.False(t, rec.HasWinner())
	require.Equal(t, int64(0), rec.Version)
}

func TestRedisBidLedger_ExpirySharpness(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	ctx := context.Background()
	end := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, ledger.Activate(ctx, domain.AuctionRecord{AuctionID: "A1", CurrentPrice: 100, EndTime: end}))

	res, err := ledger.CompareAndRaise(ctx, attempt("A1", 110, "U1", end.Add(-time.Millisecond)))
	require.NoError(t, err)
	require.Equal(t, domain.BidAccepted, res.Outcome)

	res, err = ledger.CompareAndRaise(ctx, attempt("A1", 1000, "U2", end))
	require.NoError(t, err)
	require.Equal(t, domain.BidExpired, res.Outcome)
}

func TestRedisBidLedger_NotFound(t *testing.T) {
	ledger, mr, _ := newTestLedger(t)
	ctx := context.Background()

	res, err := ledger.CompareAndRaise(ctx, attempt("missing", 100, "U1", time.Now()))
	require.NoError(t, err)
	require.Equal(t, domain.BidNotFound, res.Outcome)
	require.False(t, mr.Exists("auction:missing"), "a rejected bid must not create an entry")

	_, err = ledger.Get(ctx, "missing")
	require.True(t, errors.Is(err, domain.ErrAuctionNotFound))
}

func TestRedisBidLedger_ActivateIsIdempotent(t *testing.T) {
	ledger, mr, _ := newTestLedger(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, ledger.Activate(ctx, domain.AuctionRecord{AuctionID: "A1", CurrentPrice: 100, EndTime: now.Add(time.Minute)}))
	_, err := ledger.CompareAndRaise(ctx, attempt("A1", 130, "U1", now))
	require.NoError(t, err)

	err = ledger.Activate(ctx, domain.AuctionRecord{AuctionID: "A1", CurrentPrice: 100, EndTime: now.Add(time.Minute)})
	require.True(t, errors.Is(err, domain.ErrAuctionExists))

	rec, err := ledger.Get(ctx, "A1")
	require.NoError(t, err)
	require.Equal(t, 130.0, rec.CurrentPrice)

	require.Greater(t, mr.TTL("auction:A1"), time.Duration(0))
}

func TestRedisBidLedger_RescheduleAndRemove(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	ctx := context.Background()
	end := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, ledger.Activate(ctx, domain.AuctionRecord{AuctionID: "A1", CurrentPrice: 100, EndTime: end}))

	newEnd := end.Add(30 * time.Second)
	require.NoError(t, ledger.Reschedule(ctx, "A1", newEnd))

	res, err := ledger.CompareAndRaise(ctx, attempt("A1", 110, "U1", end.Add(10*time.Second)))
	require.NoError(t, err)
	require.Equal(t, domain.BidAccepted, res.Outcome)
	require.Equal(t, newEnd, res.Record.EndTime)

	require.NoError(t, ledger.Remove(ctx, "A1"))
	res, err = ledger.CompareAndRaise(ctx, attempt("A1", 500, "U2", end))
	require.NoError(t, err)
	require.Equal(t, domain.BidNotFound, res.Outcome)

	err = ledger.Reschedule(ctx, "A1", newEnd)
	require.True(t, errors.Is(err, domain.ErrAuctionNotFound))
}

func TestRedisBidLedger_AtomicUnderContention(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, ledger.Activate(ctx, domain.AuctionRecord{AuctionID: "A1", CurrentPrice: 90, EndTime: now.Add(time.Hour)}))

	const n = 50
	amounts := make([]float64, n)
	for i := range amounts {
		amounts[i] = float64(100 + i)
	}
	rand.Shuffle(n, func(i, j int) { amounts[i], amounts[j] = amounts[j], amounts[i] })

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted []domain.BidResult
	)
	for i, amount := range amounts {
		wg.Add(1)
		go func(i int, amount float64) {
			defer wg.Done()
			res, err := ledger.CompareAndRaise(ctx, attempt("A1", amount, fmt.Sprintf("U%d", i), now))
			if !assert.NoError(t, err) {
				return
			}
			if res.Outcome == domain.BidAccepted {
				mu.Lock()
				accepted = append(accepted, res)
				mu.Unlock()
			}
		}(i, amount)
	}
	wg.Wait()

	rec, err := ledger.Get(ctx, "A1")
	require.NoError(t, err)
	require.Equal(t, float64(100+n-1), rec.CurrentPrice)
	require.Equal(t, int64(len(accepted)), rec.Version)

	maxAccepted := 0.0
	versions := make(map[int64]float64)
	for _, res := range accepted {
		if res.Record.CurrentPrice > maxAccepted {
			maxAccepted = res.Record.CurrentPrice
		}
		_, dup := versions[res.Record.Version]
		require.False(t, dup, "each accepted raise gets its own version")
		versions[res.Record.Version] = res.Record.CurrentPrice
	}
	require.Equal(t, rec.CurrentPrice, maxAccepted)

	for v := int64(2); v <= rec.Version; v++ {
		require.Greater(t, versions[v], versions[v-1], "accepted prices must increase with version")
	}
}
