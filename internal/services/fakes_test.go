package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"bidding-core/internal/domain"
	"bidding-core/internal/metrics"
)

type countingMetrics struct {
	metrics.Nop
	syncFailures     atomic.Int64
	deliveryFailures atomic.Int64
	published        atomic.Int64
	outcomes         sync.Map
}

func (m *countingMetrics) RecordSyncFailure() { m.syncFailures.Add(1) }
func (m *countingMetrics) RecordDeliveryFailure() { m.deliveryFailures.Add(1) }
func (m *countingMetrics) RecordEventPublished() { m.published.Add(1) }

func (m *countingMetrics) RecordBidOutcome(outcome string) {
	v, _ := m.outcomes.LoadOrStore(outcome, new(atomic.Int64))
	v.(*atomic.Int64).Add(1)
}

func (m *countingMetrics) outcomeCount(outcome string) int64 {
	v, ok := m.outcomes.Load(outcome)
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*domain.ChangeEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event *domain.ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) published() []*domain.ChangeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*domain.ChangeEvent(nil), p.events...)
}

type recordingSyncer struct {
	mu      sync.Mutex
	records []domain.AuctionRecord
}

func (s *recordingSyncer) Dispatch(record domain.AuctionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
}

func (s *recordingSyncer) dispatched() []domain.AuctionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AuctionRecord(nil), s.records...)
}

// failingLedger stands in for an unreachable backend.
type failingLedger struct{ domain.BidLedger }

var errBackendDown = errors.New("connection refused")

func (failingLedger) CompareAndRaise(context.Context, domain.BidAttempt) (domain.BidResult, error) {
	return domain.BidResult{}, errBackendDown
}

// fakeDurableStore keeps the highest price per auction, like the
// conditional update does.
type fakeDurableStore struct {
	mu       sync.Mutex
	prices   map[string]float64
	versions map[string]int64
	calls    int
	err      error
	delay    time.Duration
}

func newFakeDurableStore() *fakeDurableStore {
	return &fakeDurableStore{prices: make(map[string]float64), versions: make(map[string]int64)}
}

func (s *fakeDurableStore) UpdateAuctionPrice(ctx context.Context, record domain.AuctionRecord) error {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return s.err
	}
	if record.CurrentPrice > s.prices[record.AuctionID] {
		s.prices[record.AuctionID] = record.CurrentPrice
		s.versions[record.AuctionID] = record.Version
	}
	return nil
}

func (s *fakeDurableStore) price(auctionID string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prices[auctionID]
}

func (s *fakeDurableStore) version(auctionID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versions[auctionID]
}

type fakeAuctionRepo struct {
	mu          sync.Mutex
	auctions    map[string]*domain.Auction
	finalizeErr error
	windowErr   error
}

func newFakeAuctionRepo() *fakeAuctionRepo {
	return &fakeAuctionRepo{auctions: make(map[string]*domain.Auction)}
}

func (r *fakeAuctionRepo) CreateAuction(_ context.Context, auction *domain.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *auction
	r.auctions[auction.ID] = &cp
	return nil
}

func (r *fakeAuctionRepo) GetAuction(_ context.Context, auctionID string) (*domain.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.auctions[auctionID]
	if !ok {
		return nil, domain.ErrAuctionNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *fakeAuctionRepo) UpdateAuctionStatus(_ context.Context, auctionID string, status domain.AuctionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.auctions[auctionID]
	if !ok {
		return domain.ErrAuctionNotFound
	}
	a.Status = status
	return nil
}

func (r *fakeAuctionRepo) UpdateAuctionWindow(_ context.Context, auctionID string, startTime, endTime time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.windowErr != nil {
		return r.windowErr
	}
	a, ok := r.auctions[auctionID]
	if !ok {
		return domain.ErrAuctionNotFound
	}
	a.StartTime, a.EndTime = startTime, endTime
	return nil
}

func (r *fakeAuctionRepo) FinalizeAuction(_ context.Context, final domain.AuctionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalizeErr != nil {
		return r.finalizeErr
	}
	a, ok := r.auctions[final.AuctionID]
	if !ok {
		return domain.ErrAuctionNotFound
	}
	a.Status = domain.AuctionEnded
	a.CurrentPrice = final.CurrentPrice
	a.WinnerID = final.WinningBidderID
	a.Version = final.Version
	return nil
}

func (r *fakeAuctionRepo) GetActiveAuctions(_ context.Context) ([]*domain.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Auction
	for _, a := range r.auctions {
		if a.Status == domain.AuctionActive {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeAuctionRepo) get(auctionID string) domain.Auction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.auctions[auctionID]
}

type fakeJobRepo struct {
	mu        sync.Mutex
	jobs      []*domain.ScheduledJob
	cancelErr error
}

func (r *fakeJobRepo) CreateJob(_ context.Context, job *domain.ScheduledJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	r.jobs = append(r.jobs, &cp)
	return nil
}

func (r *fakeJobRepo) GetPendingJobs(_ context.Context, before time.Time) ([]*domain.ScheduledJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.ScheduledJob
	for _, j := range r.jobs {
		if j.Status == domain.JobPending && !j.RunAt.After(before) {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeJobRepo) UpdateJobStatus(_ context.Context, jobID string, status domain.JobStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.ID == jobID {
			j.Status = status
		}
	}
	return nil
}

func (r *fakeJobRepo) CancelJobsForAuction(_ context.Context, auctionID string, jobType domain.JobType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelErr != nil {
		return r.cancelErr
	}
	for _, j := range r.jobs {
		if j.AuctionID == auctionID && j.Status == domain.JobPending && (jobType == "" || j.JobType == jobType) {
			j.Status = domain.JobCancelled
		}
	}
	return nil
}

func (r *fakeJobRepo) pending(auctionID string) []domain.ScheduledJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ScheduledJob
	for _, j := range r.jobs {
		if j.AuctionID == auctionID && j.Status == domain.JobPending {
			out = append(out, *j)
		}
	}
	return out
}

type fakeLeader struct {
	mu      sync.Mutex
	holder  string
	blocked bool
}

func (l *fakeLeader) BecomeLeader(_ context.Context, instanceID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.blocked || (l.holder != "" && l.holder != instanceID) {
		return false, nil
	}
	l.holder = instanceID
	return true, nil
}

func (l *fakeLeader) IsLeader(_ context.Context, instanceID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holder == instanceID, nil
}

func (l *fakeLeader) ReleaseLeadership(_ context.Context, instanceID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holder == instanceID {
		l.holder = ""
	}
	return nil
}
