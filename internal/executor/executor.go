// Package executor owns the job lifecycle: creation with schedule
// computation, dispatch to the registered source scraper, and the
// post-run state transition.
package executor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/user/webintel-service/internal/domain"
	"github.com/user/webintel-service/internal/monitoring"
	"github.com/user/webintel-service/internal/scraper"
)

// Store is the persistence surface the executor needs.
type Store interface {
	CreateJob(ctx context.Context, job *domain.ScraperJob) error
	GetJob(ctx context.Context, id string) (*domain.ScraperJob, error)
	UpdateJobRun(ctx context.Context, id string, lastRun time.Time, nextRun *time.Time, status domain.JobStatus) error
	CreateRecord(ctx context.Context, rec *domain.ScrapedRecord) error
	LatestContentHash(ctx context.Context, jobID string) (string, error)
}

// Locker is the single-flight guard keyed by job id. Concurrent
// triggers of the same job (a late external trigger overlapping the
// next scheduled one) would otherwise race on lastRun/nextRun and
// duplicate records.
type Locker interface {
	AcquireJobLock(ctx context.Context, jobID string, ttl time.Duration) (bool, error)
	ReleaseJobLock(ctx context.Context, jobID string) error
}

// Options tunes executor behavior.
type Options struct {
	// SkipUnchanged compares each scrape's content hash with the job's
	// most recent record and skips persistence on a match. Off by
	// default: every execution stores a record and the hash serves as
	// a fingerprint for downstream consumers.
	SkipUnchanged bool
	// LockTTL bounds how long a crashed execution can hold the
	// single-flight lock.
	LockTTL time.Duration
}

// Executor dispatches job executions to the correct source scraper and
// owns job state transitions.
type Executor struct {
	store    Store
	locker   Locker
	registry *scraper.Registry
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	opts     Options
	now      func() time.Time
}

func NewExecutor(store Store, locker Locker, registry *scraper.Registry, m *monitoring.Metrics, logger *zap.Logger, opts Options) *Executor {
	if opts.LockTTL == 0 {
		opts.LockTTL = 10 * time.Minute
	}
	return &Executor{
		store:    store,
		locker:   locker,
		registry: registry,
		metrics:  m,
		logger:   logger,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateJobParams are the caller-supplied fields of a new job.
type CreateJobParams struct {
	TenantID  string
	Name      string
	Type      domain.JobType
	URL       string
	Frequency domain.Frequency
	Config    map[string]string
}

// CreateJob validates params, persists a new ACTIVE job and returns it.
// An unsupported frequency is normalized to daily; the returned warning
// is non-empty in that case so callers can surface the downgrade
// instead of coercing silently.
func (e *Executor) CreateJob(ctx context.Context, p CreateJobParams) (*domain.ScraperJob, string, error) {
	if !p.Type.Valid() {
		return nil, "", fmt.Errorf("unknown job type %q", p.Type)
	}
	parsed, err := url.Parse(p.URL)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		return nil, "", fmt.Errorf("invalid job url %q", p.URL)
	}

	freq, ok := domain.NormalizeFrequency(p.Frequency)
	var warning string
	if !ok {
		warning = fmt.Sprintf("unsupported frequency %q normalized to %q", p.Frequency, freq)
		e.logger.Warn("frequency normalized",
			zap.String("requested", string(p.Frequency)),
			zap.String("stored", string(freq)),
		)
	}

	now := e.now()
	next := freq.NextRun(now)
	job := &domain.ScraperJob{
		ID:        uuid.NewString(),
		TenantID:  p.TenantID,
		Name:      p.Name,
		Type:      p.Type,
		URL:       p.URL,
		Frequency: freq,
		Config:    p.Config,
		Status:    domain.StatusActive,
		NextRun:   &next,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.CreateJob(ctx, job); err != nil {
		return nil, "", fmt.Errorf("create job: %w", err)
	}
	return job, warning, nil
}

// ExecuteJob runs one scrape for a job. The job must exist and be
// ACTIVE; a concurrent execution of the same job yields ErrJobRunning.
// On success the job stays ACTIVE with lastRun/nextRun advanced; on
// failure it moves to ERROR with lastRun updated, nextRun untouched,
// and the error propagated. Recovery happens at the next externally
// triggered run, never by an automatic retry here.
func (e *Executor) ExecuteJob(ctx context.Context, jobID string) (*domain.ScrapedRecord, error) {
	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.StatusActive {
		return nil, fmt.Errorf("job %s in status %s: %w", jobID, job.Status, domain.ErrJobNotActive)
	}
	return e.run(ctx, job)
}

func (e *Executor) run(ctx context.Context, job *domain.ScraperJob) (*domain.ScrapedRecord, error) {
	acquired, err := e.locker.AcquireJobLock(ctx, job.ID, e.opts.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire job lock: %w", err)
	}
	if !acquired {
		return nil, fmt.Errorf("job %s: %w", job.ID, domain.ErrJobRunning)
	}
	defer func() {
		if err := e.locker.ReleaseJobLock(context.WithoutCancel(ctx), job.ID); err != nil {
			e.logger.Error("failed to release job lock", zap.String("job_id", job.ID), zap.Error(err))
		}
	}()

	src, err := e.registry.Lookup(job.Type)
	if err != nil {
		e.failJob(ctx, job, err)
		return nil, fmt.Errorf("job %s type %s: %w", job.ID, job.Type, err)
	}

	start := e.now()
	result, err := src.Scrape(ctx, job.URL, job.Config)
	e.metrics.ObserveDuration(e.now().Sub(start).Seconds())
	if err != nil {
		e.failJob(ctx, job, err)
		return nil, fmt.Errorf("execute job %s: %w", job.ID, err)
	}
	e.metrics.ObserveCoverage(result.Coverage)

	hash, err := scraper.Fingerprint(result.Content)
	if err != nil {
		e.failJob(ctx, job, err)
		return nil, fmt.Errorf("execute job %s: %w", job.ID, err)
	}

	record := &domain.ScrapedRecord{
		ID:          uuid.NewString(),
		JobID:       job.ID,
		TenantID:    job.TenantID,
		Type:        job.Type,
		URL:         job.URL,
		Title:       result.Title,
		Content:     result.Content,
		Metadata:    result.Metadata,
		ContentHash: hash,
		ScrapedAt:   e.now(),
	}

	persist := true
	if e.opts.SkipUnchanged {
		prev, err := e.store.LatestContentHash(ctx, job.ID)
		if err != nil {
			e.logger.Warn("failed to load previous content hash, persisting anyway",
				zap.String("job_id", job.ID), zap.Error(err))
		} else if prev != "" && prev == hash {
			persist = false
			e.metrics.SkippedUnchangedTotal.Inc()
			e.logger.Info("content unchanged, skipping record",
				zap.String("job_id", job.ID), zap.String("hash", hash))
		}
	}
	if persist {
		if err := e.store.CreateRecord(ctx, record); err != nil {
			e.metrics.IncError("db_save_failed")
			e.failJob(ctx, job, err)
			return nil, fmt.Errorf("persist record for job %s: %w", job.ID, err)
		}
	}

	now := e.now()
	next := job.Frequency.NextRun(now)
	if err := e.store.UpdateJobRun(ctx, job.ID, now, &next, jobStatusAfterRun(job)); err != nil {
		return nil, fmt.Errorf("update job %s after run: %w", job.ID, err)
	}

	e.metrics.IncScrape(string(job.Type), "success")
	e.logger.Info("job executed",
		zap.String("job_id", job.ID),
		zap.String("type", string(job.Type)),
		zap.String("url", job.URL),
		zap.Float64("coverage", result.Coverage),
		zap.Bool("persisted", persist),
	)
	return record, nil
}

// jobStatusAfterRun keeps sentinel jobs DISABLED after their one-shot
// run; everything else returns to ACTIVE, which also clears a previous
// ERROR on the next successful run.
func jobStatusAfterRun(job *domain.ScraperJob) domain.JobStatus {
	if job.Status == domain.StatusDisabled {
		return domain.StatusDisabled
	}
	return domain.StatusActive
}

// failJob records the ERROR transition: lastRun advances, nextRun is
// left untouched so the externally scheduled slot is preserved.
func (e *Executor) failJob(ctx context.Context, job *domain.ScraperJob, cause error) {
	e.metrics.IncScrape(string(job.Type), "failed")
	e.metrics.IncError(errorReason(cause))
	e.logger.Error("job execution failed",
		zap.String("job_id", job.ID),
		zap.String("url", job.URL),
		zap.Error(cause),
	)
	if err := e.store.UpdateJobRun(ctx, job.ID, e.now(), nil, domain.StatusError); err != nil {
		e.logger.Error("failed to mark job as errored", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func errorReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrScraperUnregistered):
		return "scraper_unregistered"
	default:
		return "scrape_failed"
	}
}

// ManualScrape performs a one-off scrape outside of scheduling. A
// disabled sentinel job (yearly cadence, DISABLED) is created purely as
// a storage anchor for the record's job foreign key.
func (e *Executor) ManualScrape(ctx context.Context, tenantID string, typ domain.JobType, scrapeURL string, cfg map[string]string) (*domain.ScrapedRecord, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("unknown job type %q", typ)
	}
	parsed, err := url.Parse(scrapeURL)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		return nil, fmt.Errorf("invalid scrape url %q", scrapeURL)
	}

	now := e.now()
	sentinel := &domain.ScraperJob{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Name:      fmt.Sprintf("manual-%s-%d", typ, now.Unix()),
		Type:      typ,
		URL:       scrapeURL,
		Frequency: domain.FreqYearly,
		Config:    cfg,
		Status:    domain.StatusDisabled,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.CreateJob(ctx, sentinel); err != nil {
		return nil, fmt.Errorf("create sentinel job: %w", err)
	}
	return e.run(ctx, sentinel)
}
