package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"bidding-core/internal/domain"
)

const jobColumns = `id, auction_id, job_type, run_at, status, created_at`

// MySQLSchedulerRepository stores lifecycle jobs in scheduled_jobs. Jobs are
// never deleted; a job leaves the pending state exactly once.
type MySQLSchedulerRepository struct {
	db *sql.DB
}

func NewMySQLSchedulerRepository(db *sql.DB) *MySQLSchedulerRepository {
	return &MySQLSchedulerRepository{db: db}
}

func (r *MySQLSchedulerRepository) CreateJob(ctx context.Context, job *domain.ScheduledJob) error {
	query := `INSERT INTO scheduled_jobs (` + jobColumns + `) VALUES (?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		job.ID, job.AuctionID, string(job.JobType), job.RunAt, string(job.Status), job.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert %s job for auction %s: %w", job.JobType, job.AuctionID, err)
	}
	return nil
}

// GetPendingJobs returns pending jobs due at or before before, oldest first.
func (r *MySQLSchedulerRepository) GetPendingJobs(ctx context.Context, before time.Time) ([]*domain.ScheduledJob, error) {
	query := `
        SELECT ` + jobColumns + `
        FROM scheduled_jobs
        WHERE status = ? AND run_at <= ?
        ORDER BY run_at ASC
    `
	rows, err := r.db.QueryContext(ctx, query, string(domain.JobPending), before)
	if err != nil {
		return nil, fmt.Errorf("query due jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.ScheduledJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *MySQLSchedulerRepository) UpdateJobStatus(ctx context.Context, jobID string, status domain.JobStatus) error {
	_, err := r.db.ExecContext(ctx, `UPDATE scheduled_jobs SET status = ? WHERE id = ?`, string(status), jobID)
	if err != nil {
		return fmt.Errorf("mark job %s %s: %w", jobID, status, err)
	}
	return nil
}

// CancelJobsForAuction cancels pending jobs of jobType, or of every type
// when jobType is empty.
func (r *MySQLSchedulerRepository) CancelJobsForAuction(ctx context.Context, auctionID string, jobType domain.JobType) error {
	query := `
        UPDATE scheduled_jobs SET status = ?
        WHERE auction_id = ? AND status = ? AND (? = '' OR job_type = ?)
    `
	_, err := r.db.ExecContext(ctx, query,
		string(domain.JobCancelled), auctionID, string(domain.JobPending), string(jobType), string(jobType))
	if err != nil {
		return fmt.Errorf("cancel jobs for auction %s: %w", auctionID, err)
	}
	return nil
}

func scanJob(row rowScanner) (*domain.ScheduledJob, error) {
	var (
		job     domain.ScheduledJob
		jobType string
		status  string
	)
	if err := row.Scan(&job.ID, &job.AuctionID, &jobType, &job.RunAt, &status, &job.CreatedAt); err != nil {
		return nil, err
	}

	job.JobType = domain.JobType(jobType)
	job.Status = domain.JobStatus(status)
	return &job, nil
}
