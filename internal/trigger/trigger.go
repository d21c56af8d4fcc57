// Package trigger is the in-process scheduling adapter: a cron loop
// that finds due jobs and dispatches them to the executor. Delivery is
// at-least-once; a job that fails stays in ERROR until its next due
// sweep, per the no-automatic-retry policy.
package trigger

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/user/webintel-service/internal/domain"
)

// JobSource lists due jobs.
type JobSource interface {
	ListDueJobs(ctx context.Context, now time.Time) ([]domain.ScraperJob, error)
}

// Dispatcher executes a single job.
type Dispatcher interface {
	ExecuteJob(ctx context.Context, jobID string) (*domain.ScrapedRecord, error)
}

// sweepExpr runs at the top of every hour. Cadences are daily at the
// finest, so an hourly sweep dispatches each job within an hour of
// falling due.
const sweepExpr = "0 * * * *"

// Trigger drives scheduled job execution.
type Trigger struct {
	source     JobSource
	dispatcher Dispatcher
	logger     *zap.Logger
	cron       *cron.Cron
}

func New(source JobSource, dispatcher Dispatcher, logger *zap.Logger) *Trigger {
	return &Trigger{
		source:     source,
		dispatcher: dispatcher,
		logger:     logger,
		cron:       cron.New(),
	}
}

// Start begins the sweep loop. ctx cancellation stops dispatching;
// call Stop to halt the cron scheduler itself.
func (t *Trigger) Start(ctx context.Context) error {
	_, err := t.cron.AddFunc(sweepExpr, func() { t.Sweep(ctx) })
	if err != nil {
		return err
	}
	t.cron.Start()
	t.logger.Info("trigger loop started", zap.String("sweep", sweepExpr))
	return nil
}

// Stop halts the cron scheduler and waits for a running sweep.
func (t *Trigger) Stop() {
	<-t.cron.Stop().Done()
}

// Sweep dispatches every currently due job sequentially. Failures are
// logged and left for the next sweep; a job already running under a
// concurrent trigger is skipped quietly.
func (t *Trigger) Sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	now := time.Now().UTC()
	due, err := t.source.ListDueJobs(ctx, now)
	if err != nil {
		t.logger.Error("failed to list due jobs", zap.Error(err))
		return
	}
	if len(due) == 0 {
		return
	}
	t.logger.Info("dispatching due jobs", zap.Int("count", len(due)))

	for _, job := range due {
		if ctx.Err() != nil {
			return
		}
		if _, err := t.dispatcher.ExecuteJob(ctx, job.ID); err != nil {
			if errors.Is(err, domain.ErrJobRunning) {
				t.logger.Info("job already running, skipping", zap.String("job_id", job.ID))
				continue
			}
			t.logger.Error("scheduled job failed",
				zap.String("job_id", job.ID),
				zap.String("url", job.URL),
				zap.Error(err),
			)
		}
	}
}
