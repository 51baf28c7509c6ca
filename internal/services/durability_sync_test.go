package services

import (
	"errors"
	"testing"
	"time"

	"bidding-core/internal/domain"
	"bidding-core/pkg/logger"

	"github.com/stretchr/testify/require"
)

func record(auctionID string, price float64, version int64) domain.AuctionRecord {
	return domain.AuctionRecord{AuctionID: auctionID, CurrentPrice: price, WinningBidderID: "U1", Version: version}
}

func TestDurabilitySync_WritesAndDrains(t *testing.T) {
	store := newFakeDurableStore()
	ds := NewDurabilitySync(store, SyncOptions{Workers: 3, QueueSize: 100, Timeout: time.Second}, nil, logger.NewNop())
	ds.Start()

	for v := int64(1); v <= 50; v++ {
		ds.Dispatch(record("A1", float64(100+v), v))
	}
	ds.Stop()

	require.Equal(t, 150.0, store.price("A1"))
	require.Equal(t, int64(50), store.version("A1"))
	require.Equal(t, 50, store.calls)
}

func TestDurabilitySync_FailuresAreContained(t *testing.T) {
	counts := &countingMetrics{}
	store := newFakeDurableStore()
	store.err = errors.New("mysql gone")

	ds := NewDurabilitySync(store, SyncOptions{Workers: 1, QueueSize: 10}, counts, logger.NewNop())
	ds.Start()
	ds.Dispatch(record("A1", 150, 1))
	ds.Stop()

	require.Equal(t, 1, store.calls)
	require.Equal(t, int64(1), counts.syncFailures.Load())
}

func TestDurabilitySync_DispatchNeverBlocks(t *testing.T) {
	store := newFakeDurableStore()
	store.delay = time.Hour

	ds := NewDurabilitySync(store, SyncOptions{Workers: 1, QueueSize: 2, Timeout: 50 * time.Millisecond}, nil, logger.NewNop())
	ds.Start()
	defer ds.Stop()

	done := make(chan struct{})
	go func() {
		for v := int64(1); v <= 20; v++ {
			ds.Dispatch(record("A1", float64(v), v))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dispatch blocked on a slow store")
	}
}

func TestDurabilitySync_DispatchAfterStop(t *testing.T) {
	store := newFakeDurableStore()
	counts := &countingMetrics{}
	ds := NewDurabilitySync(store, SyncOptions{Workers: 1, QueueSize: 1}, counts, logger.NewNop())
	ds.Start()
	ds.Stop()
	ds.Stop()

	require.NotPanics(t, func() { ds.Dispatch(record("A1", 1, 1)) })
	require.Equal(t, int64(1), counts.syncFailures.Load())
	require.Equal(t, 0, store.calls)
}
