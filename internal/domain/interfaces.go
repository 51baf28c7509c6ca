package domain

import (
	"context"
	"time"
)

// Repository interfaces
type AuctionRepository interface {
	CreateAuction(ctx context.Context, auction *Auction) error
	GetAuction(ctx context.Context, auctionID string) (*Auction, error)
	UpdateAuctionStatus(ctx context.Context, auctionID string, status AuctionStatus) error
	UpdateAuctionWindow(ctx context.Context, auctionID string, startTime, endTime time.Time) error
	FinalizeAuction(ctx context.Context, final AuctionRecord) error
	GetActiveAuctions(ctx context.Context) ([]*Auction, error)
}

// DurableRecord is the system of record mirrored by Durability Sync. It is
// never read on the bid path.
type DurableRecord interface {
	UpdateAuctionPrice(ctx context.Context, record AuctionRecord) error
}

type BidRepository interface {
	SaveBidEvent(ctx context.Context, event *BidEvent) error
	GetBidHistory(ctx context.Context, auctionID string) ([]*BidEvent, error)
}

type SchedulerRepository interface {
	CreateJob(ctx context.Context, job *ScheduledJob) error
	GetPendingJobs(ctx context.Context, before time.Time) ([]*ScheduledJob, error)
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus) error
	CancelJobsForAuction(ctx context.Context, auctionID string, jobType JobType) error
}

// BidLedger is the fast, authoritative store of live auctions. CompareAndRaise
// is its only price mutator and runs atomically per auction.
type BidLedger interface {
	Get(ctx context.Context, auctionID string) (*AuctionRecord, error)
	CompareAndRaise(ctx context.Context, attempt BidAttempt) (BidResult, error)
	Activate(ctx context.Context, record AuctionRecord) error
	Reschedule(ctx context.Context, auctionID string, endTime time.Time) error
	Remove(ctx context.Context, auctionID string) error
}

// Event interfaces
type ChangePublisher interface {
	Publish(ctx context.Context, event *ChangeEvent) error
}

type ChangeSubscriber interface {
	SubscribeToChanges(ctx context.Context, handler ChangeHandler) error
}

type ChangeHandler func(event *ChangeEvent) error

// BidSyncer mirrors accepted ledger state into the durable record without
// blocking the caller.
type BidSyncer interface {
	Dispatch(record AuctionRecord)
}

// Leader election interface
type LeaderElection interface {
	BecomeLeader(ctx context.Context, instanceID string) (bool, error)
	IsLeader(ctx context.Context, instanceID string) (bool, error)
	ReleaseLeadership(ctx context.Context, instanceID string) error
}

// Scheduler interface
type AuctionScheduler interface {
	ScheduleAuctionStart(ctx context.Context, auctionID string, startTime time.Time) error
	ScheduleAuctionEnd(ctx context.Context, auctionID string, endTime time.Time) error
	RescheduleAuctionEnd(ctx context.Context, auctionID string, newEndTime time.Time) error
	CancelSchedule(ctx context.Context, auctionID string) error
	Start(ctx context.Context) error
	Stop() error
}
