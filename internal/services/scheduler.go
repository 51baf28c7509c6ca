package services

import (
	"context"
	"errors"
	"time"

	"bidding-core/internal/domain"
	"bidding-core/pkg/logger"
	"bidding-core/pkg/utils"

	"github.com/robfig/cron/v3"
)

// LifecycleRunner executes due lifecycle jobs.
type LifecycleRunner interface {
	StartAuction(ctx context.Context, auctionID string) error
	EndAuction(ctx context.Context, auctionID string) error
}

// CronAuctionScheduler persists lifecycle jobs and, on the elected leader
// only, runs the ones that are due.
type CronAuctionScheduler struct {
	cron       *cron.Cron
	spec       string
	repo       domain.SchedulerRepository
	runner     LifecycleRunner
	leader     domain.LeaderElection
	instanceID string
	log        logger.Logger
	now        func() time.Time
}

func NewCronAuctionScheduler(repo domain.SchedulerRepository, leader domain.LeaderElection,
	instanceID, spec string, log logger.Logger) *CronAuctionScheduler {
	if spec == "" {
		spec = "@every 5s"
	}
	return &CronAuctionScheduler{
		cron:       cron.New(cron.WithSeconds()),
		spec:       spec,
		repo:       repo,
		leader:     leader,
		instanceID: instanceID,
		log:        log,
		now:        time.Now,
	}
}

func (s *CronAuctionScheduler) SetRunner(runner LifecycleRunner) {
	s.runner = runner
}

func (s *CronAuctionScheduler) Start(ctx context.Context) error {
	s.log.Info("Starting auction scheduler", "spec", s.spec)

	_, err := s.cron.AddFunc(s.spec, func() {
		s.processPendingJobs(ctx)
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop waits for a running pass to finish and gives up leadership.
func (s *CronAuctionScheduler) Stop() error {
	s.log.Info("Stopping auction scheduler")
	<-s.cron.Stop().Done()

	if s.leader == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.leader.ReleaseLeadership(ctx, s.instanceID)
}

func (s *CronAuctionScheduler) ScheduleAuctionStart(ctx context.Context, auctionID string, startTime time.Time) error {
	return s.createJob(ctx, auctionID, domain.JobStartAuction, startTime)
}

func (s *CronAuctionScheduler) ScheduleAuctionEnd(ctx context.Context, auctionID string, endTime time.Time) error {
	return s.createJob(ctx, auctionID, domain.JobEndAuction, endTime)
}

// RescheduleAuctionEnd replaces pending end jobs only; a pending start job
// survives.
func (s *CronAuctionScheduler) RescheduleAuctionEnd(ctx context.Context, auctionID string, newEndTime time.Time) error {
	if err := s.repo.CancelJobsForAuction(ctx, auctionID, domain.JobEndAuction); err != nil {
		return err
	}
	return s.ScheduleAuctionEnd(ctx, auctionID, newEndTime)
}

// CancelSchedule cancels every pending job of the auction.
func (s *CronAuctionScheduler) CancelSchedule(ctx context.Context, auctionID string) error {
	return s.repo.CancelJobsForAuction(ctx, auctionID, "")
}

func (s *CronAuctionScheduler) createJob(ctx context.Context, auctionID string, jobType domain.JobType, runAt time.Time) error {
	job := &domain.ScheduledJob{
		ID:        utils.GenerateID("job"),
		AuctionID: auctionID,
		JobType:   jobType,
		RunAt:     runAt,
		Status:    domain.JobPending,
		CreatedAt: s.now(),
	}
	return s.repo.CreateJob(ctx, job)
}

func (s *CronAuctionScheduler) isLeader(ctx context.Context) bool {
	if s.leader == nil {
		return true
	}

	leading, err := s.leader.IsLeader(ctx, s.instanceID)
	if err != nil {
		s.log.Error("Failed to check leadership", "error", err)
		return false
	}
	if leading {
		return true
	}

	leading, err = s.leader.BecomeLeader(ctx, s.instanceID)
	if err != nil {
		s.log.Error("Failed to acquire leadership", "error", err)
		return false
	}
	if leading {
		s.log.Info("Acquired scheduler leadership", "instance_id", s.instanceID)
	}
	return leading
}

func (s *CronAuctionScheduler) processPendingJobs(ctx context.Context) {
	if s.runner == nil || !s.isLeader(ctx) {
		return
	}

	jobs, err := s.repo.GetPendingJobs(ctx, s.now())
	if err != nil {
		s.log.Error("Failed to get pending jobs", "error", err)
		return
	}

	for _, job := range jobs {
		s.log.Info("Processing job", "job_id", job.ID, "type", job.JobType, "auction_id", job.AuctionID)

		var err error
		switch job.JobType {
		case domain.JobStartAuction:
			err = s.runner.StartAuction(ctx, job.AuctionID)
		case domain.JobEndAuction:
			err = s.runner.EndAuction(ctx, job.AuctionID)
		default:
			s.log.Warn("Unknown job type", "job_id", job.ID, "type", job.JobType)
			continue
		}

		if errors.Is(err, domain.ErrNotDue) {
			s.log.Debug("Job not due yet", "job_id", job.ID, "auction_id", job.AuctionID, "reason", err)
			continue
		}
		if err != nil {
			// Left pending, so the next pass retries it.
			s.log.Error("Failed to execute job", "job_id", job.ID, "auction_id", job.AuctionID, "error", err)
			continue
		}

		if err := s.repo.UpdateJobStatus(ctx, job.ID, domain.JobExecuted); err != nil {
			s.log.Error("Failed to mark job executed", "job_id", job.ID, "error", err)
		}
	}
}
