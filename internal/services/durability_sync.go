package services

import (
	"context"
	"sync"
	"time"

	"bidding-core/internal/domain"
	"bidding-core/internal/metrics"
	"bidding-core/pkg/logger"

	"github.com/sourcegraph/conc"
)

type SyncOptions struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

// DurabilitySync mirrors accepted ledger state into the durable record on a
// fixed pool of workers. Failures are logged and counted, never retried.
type DurabilitySync struct {
	store   domain.DurableRecord
	opts    SyncOptions
	metrics metrics.MetricsCollector
	log     logger.Logger

	queue chan domain.AuctionRecord
	wg    conc.WaitGroup

	mu      sync.RWMutex
	started bool
	stopped bool
}

func NewDurabilitySync(store domain.DurableRecord, opts SyncOptions, m metrics.MetricsCollector, log logger.Logger) *DurabilitySync {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &DurabilitySync{
		store:   store,
		opts:    opts,
		metrics: m,
		log:     log,
		queue:   make(chan domain.AuctionRecord, opts.QueueSize),
	}
}

func (d *DurabilitySync) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	d.started = true

	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Go(d.worker)
	}
	d.log.Info("Durability sync started", "workers", d.opts.Workers, "queue_size", d.opts.QueueSize)
}

// Dispatch hands record to the workers without waiting. A full queue drops
// the write.
func (d *DurabilitySync) Dispatch(record domain.AuctionRecord) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		d.fail(record, domain.ErrSyncQueueFull)
		return
	}

	select {
	case d.queue <- record:
	default:
		d.fail(record, domain.ErrSyncQueueFull)
	}
}

// Stop refuses new work, lets the workers drain the queue and waits for them.
func (d *DurabilitySync) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if started {
		d.wg.Wait()
	}
	d.log.Info("Durability sync stopped")
}

func (d *DurabilitySync) worker() {
	for record := range d.queue {
		d.write(record)
	}
}

func (d *DurabilitySync) write(record domain.AuctionRecord) {
	ctx := context.Background()
	if d.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.Timeout)
		defer cancel()
	}

	if err := d.store.UpdateAuctionPrice(ctx, record); err != nil {
		d.fail(record, err)
		return
	}
	d.log.Debug("Durable record updated", "auction_id", record.AuctionID, "version", record.Version)
}

func (d *DurabilitySync) fail(record domain.AuctionRecord, err error) {
	d.metrics.RecordSyncFailure()
	d.log.Error("Durability sync failed", "auction_id", record.AuctionID,
		"price", record.CurrentPrice, "version", record.Version, "error", err)
}
