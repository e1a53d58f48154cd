package scheduler

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
)

// Queue retry policy: a job gets three attempts with exponential backoff on a
// 60 second base.
const (
	jobMaxAttempts = 3
	jobBackoffBase = 60 * time.Second
)

// Job statuses.
const (
	jobStatusPending = "pending"
	jobStatusRunning = "running"
	jobStatusDone    = "done"
	jobStatusFailed  = "failed"
)

// Job is a durable template-execution request. The queue and the cron-only
// path converge on ProcessTemplate, so enabling or disabling the queue never
// changes execution semantics.
type Job struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	TemplateID  snowflake.ID `gorm:"not null;index"`
	Status      string       `gorm:"type:text;not null;default:'pending';index"`
	Attempts    int          `gorm:"not null;default:0"`
	MaxAttempts int          `gorm:"not null;default:3"`
	RunAt       time.Time    `gorm:"not null;index"`
	LastError   *string      `gorm:"type:text"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Job) TableName() string { return "scheduler_jobs" }

// Enqueue records a job for the template unless one is already pending or
// running.
func (s *Scheduler) Enqueue(ctx context.Context, templateID snowflake.ID) error {
	now := s.clk.Now()
	return s.db.WithContext(ctx).Exec(
		`INSERT INTO scheduler_jobs (id, template_id, status, attempts, max_attempts, run_at, created_at, updated_at)
		 SELECT ?, ?, ?, 0, ?, ?, ?, ?
		 WHERE NOT EXISTS (
			SELECT 1 FROM scheduler_jobs
			WHERE template_id = ? AND status IN (?, ?)
		 )`,
		s.genID.Generate(),
		templateID,
		jobStatusPending,
		jobMaxAttempts,
		now,
		now,
		now,
		templateID,
		jobStatusPending,
		jobStatusRunning,
	).Error
}

// RunQueue polls for due jobs until the context is cancelled.
func (s *Scheduler) RunQueue(ctx context.Context) {
	interval := s.cfg.QueuePollInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.drainQueue(ctx); err != nil {
			s.log.Warn("queue drain failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) drainQueue(ctx context.Context) error {
	for {
		job, err := s.claimJob(ctx)
		if err != nil {
			return err
		}
		if job == nil {
			return nil
		}
		s.runJob(ctx, job)
	}
}

// claimJob picks the oldest due pending job with a conditional status flip.
// RowsAffected distinguishes winning the claim from racing another worker.
func (s *Scheduler) claimJob(ctx context.Context) (*Job, error) {
	now := s.clk.Now()
	var candidates []Job
	err := s.db.WithContext(ctx).
		Where("status = ? AND run_at <= ?", jobStatusPending, now).
		Order("run_at ASC").
		Limit(5).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	for i := range candidates {
		job := candidates[i]
		result := s.db.WithContext(ctx).Exec(
			`UPDATE scheduler_jobs
			 SET status = ?, updated_at = ?
			 WHERE id = ? AND status = ?`,
			jobStatusRunning,
			now,
			job.ID,
			jobStatusPending,
		)
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected > 0 {
			job.Status = jobStatusRunning
			return &job, nil
		}
	}
	return nil, nil
}

func (s *Scheduler) runJob(ctx context.Context, job *Job) {
	_, err := s.ProcessTemplate(ctx, job.TemplateID)
	now := s.clk.Now()

	if err == nil {
		if updateErr := s.db.WithContext(ctx).Exec(
			`UPDATE scheduler_jobs SET status = ?, attempts = ?, last_error = NULL, updated_at = ? WHERE id = ?`,
			jobStatusDone,
			job.Attempts+1,
			now,
			job.ID,
		).Error; updateErr != nil {
			s.log.Warn("failed to mark job done", zap.Error(updateErr))
		}
		return
	}

	attempts := job.Attempts + 1
	message := err.Error()
	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = jobMaxAttempts
	}

	if attempts >= maxAttempts {
		if updateErr := s.db.WithContext(ctx).Exec(
			`UPDATE scheduler_jobs SET status = ?, attempts = ?, last_error = ?, updated_at = ? WHERE id = ?`,
			jobStatusFailed,
			attempts,
			message,
			now,
			job.ID,
		).Error; updateErr != nil {
			s.log.Warn("failed to mark job failed", zap.Error(updateErr))
		}
		return
	}

	retryAt := now.Add(jobBackoffBase * (1 << (attempts - 1)))
	if updateErr := s.db.WithContext(ctx).Exec(
		`UPDATE scheduler_jobs SET status = ?, attempts = ?, last_error = ?, run_at = ?, updated_at = ? WHERE id = ?`,
		jobStatusPending,
		attempts,
		message,
		retryAt,
		now,
		job.ID,
	).Error; updateErr != nil {
		s.log.Warn("failed to reschedule job", zap.Error(updateErr))
	}
}
