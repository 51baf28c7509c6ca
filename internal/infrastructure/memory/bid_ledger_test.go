package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"bidding-core/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bid(auctionID string, amount float64, bidder string, at time.Time) domain.BidAttempt {
	return domain.BidAttempt{AuctionID: auctionID, Amount: amount, BidderID: bidder, SubmittedAt: at}
}

func TestBidLedger_SampleScenario(t *testing.T) {
	ledger := NewBidLedger()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, ledger.Activate(ctx, domain.AuctionRecord{AuctionID: "A1", CurrentPrice: 100, EndTime: base.Add(time.Minute)}))

	res, err := ledger.CompareAndRaise(ctx, bid("A1", 150, "U1", base.Add(10*time.Second)))
	require.NoError(t, err)
	require.Equal(t, domain.BidAccepted, res.Outcome)
	require.Equal(t, int64(1), res.Record.Version)

	res, err = ledger.CompareAndRaise(ctx, bid("A1", 120, "U2", base.Add(20*time.Second)))
	require.NoError(t, err)
	require.Equal(t, domain.BidTooLow, res.Outcome)
	require.Equal(t, 150.0, res.Record.CurrentPrice)

	res, err = ledger.CompareAndRaise(ctx, bid("A1", 150, "U3", base.Add(30*time.Second)))
	require.NoError(t, err)
	require.Equal(t, domain.BidTooLow, res.Outcome)

	res, err = ledger.CompareAndRaise(ctx, bid("A1", 200, "U3", base.Add(70*time.Second)))
	require.NoError(t, err)
	require.Equal(t, domain.BidExpired, res.Outcome)

	rec, err := ledger.Get(ctx, "A1")
	require.NoError(t, err)
	require.Equal(t, 150.0, rec.CurrentPrice)
	require.Equal(t, "U1", rec.WinningBidderID)
}

func TestBidLedger_NotFoundAndRemove(t *testing.T) {
	ledger := NewBidLedger()
	ctx := context.Background()
	now := time.Now()

	res, err := ledger.CompareAndRaise(ctx, bid("A1", 100, "U1", now))
	require.NoError(t, err)
	require.Equal(t, domain.BidNotFound, res.Outcome)

	_, err = ledger.Get(ctx, "A1")
	require.ErrorIs(t, err, domain.ErrAuctionNotFound)

	require.NoError(t, ledger.Activate(ctx, domain.AuctionRecord{AuctionID: "A1", CurrentPrice: 10, EndTime: now.Add(time.Minute)}))
	require.ErrorIs(t, ledger.Activate(ctx, domain.AuctionRecord{AuctionID: "A1"}), domain.ErrAuctionExists)

	require.NoError(t, ledger.Reschedule(ctx, "A1", now.Add(2*time.Minute)))
	rec, err := ledger.Get(ctx, "A1")
	require.NoError(t, err)
	require.Equal(t, now.Add(2*time.Minute), rec.EndTime)

	require.NoError(t, ledger.Remove(ctx, "A1"))
	require.NoError(t, ledger.Remove(ctx, "A1"))
	require.ErrorIs(t, ledger.Reschedule(ctx, "A1", now), domain.ErrAuctionNotFound)

	res, err = ledger.CompareAndRaise(ctx, bid("A1", 100, "U1", now))
	require.NoError(t, err)
	require.Equal(t, domain.BidNotFound, res.Outcome)
}

func TestBidLedger_GetReturnsCopy(t *testing.T) {
	ledger := NewBidLedger()
	ctx := context.Background()
	require.NoError(t, ledger.Activate(ctx, domain.AuctionRecord{AuctionID: "A1", CurrentPrice: 10, EndTime: time.Now().Add(time.Minute)}))

	rec, err := ledger.Get(ctx, "A1")
	require.NoError(t, err)
	rec.CurrentPrice = 1_000_000

	rec, err = ledger.Get(ctx, "A1")
	require.NoError(t, err)
	require.Equal(t, 10.0, rec.CurrentPrice)
}

func TestBidLedger_AtomicUnderContention(t *testing.T) {
	ledger := NewBidLedger()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, ledger.Activate(ctx, domain.AuctionRecord{AuctionID: "A1", CurrentPrice: 0.5, EndTime: now.Add(time.Hour)}))
	require.NoError(t, ledger.Activate(ctx, domain.AuctionRecord{AuctionID: "B1", CurrentPrice: 0.5, EndTime: now.Add(time.Hour)}))

	const n = 200
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted = map[string][]domain.AuctionRecord{}
	)
	for i := 0; i < n; i++ {
		for _, id := range []string{"A1", "B1"} {
			wg.Add(1)
			go func(id string, i int) {
				defer wg.Done()
				res, err := ledger.CompareAndRaise(ctx, bid(id, float64(i+1), fmt.Sprintf("U%d", i), now))
				if !assert.NoError(t, err) {
					return
				}
				if res.Outcome == domain.BidAccepted {
					mu.Lock()
					accepted[id] = append(accepted[id], res.Record)
					mu.Unlock()
				}
			}(id, i)
		}
	}
	wg.Wait()

	for _, id := range []string{"A1", "B1"} {
		rec, err := ledger.Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, float64(n), rec.CurrentPrice)
		require.Equal(t, int64(len(accepted[id])), rec.Version)

		byVersion := make(map[int64]float64, len(accepted[id]))
		for _, r := range accepted[id] {
			byVersion[r.Version] = r.CurrentPrice
		}
		require.Len(t, byVersion, len(accepted[id]))
		for v := int64(2); v <= rec.Version; v++ {
			require.Greater(t, byVersion[v], byVersion[v-1])
		}
	}
}
