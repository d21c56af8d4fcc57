// Package service is the tenant-scoped facade over jobs, records and
// analytics. It holds no extraction logic; scraping goes through the
// executor and persistence through the store.
package service

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/user/webintel-service/internal/domain"
	"github.com/user/webintel-service/internal/executor"
)

const (
	defaultRecordLimit = 50
	maxRecordLimit     = 200
	recentActivityN    = 10
)

// Store is the persistence surface the facade needs beyond what the
// executor already owns.
type Store interface {
	GetJob(ctx context.Context, id string) (*domain.ScraperJob, error)
	UpdateJob(ctx context.Context, job *domain.ScraperJob) error
	DeleteJob(ctx context.Context, tenantID, id string) error
	ListJobs(ctx context.Context, tenantID string) ([]domain.JobWithCount, error)
	ListRecords(ctx context.Context, tenantID string, typ *domain.JobType, limit int) ([]domain.ScrapedRecord, error)
	CountRecords(ctx context.Context, tenantID string) (int64, error)
	RecordCountsByType(ctx context.Context, tenantID string) (map[string]int64, error)
	JobCountsByStatus(ctx context.Context, tenantID string) (map[string]int64, error)
	RecentRecordSummaries(ctx context.Context, tenantID string, limit int) ([]domain.RecordSummary, error)
}

// Service exposes the scraping subsystem to the API layer and
// dashboards.
type Service struct {
	store    Store
	executor *executor.Executor
	logger   *zap.Logger
}

func NewService(store Store, exec *executor.Executor, logger *zap.Logger) *Service {
	return &Service{store: store, executor: exec, logger: logger}
}

// CreateScraperJob creates a job for a tenant. The returned warning is
// non-empty when an unsupported frequency was normalized to daily.
func (s *Service) CreateScraperJob(ctx context.Context, p executor.CreateJobParams) (*domain.ScraperJob, string, error) {
	return s.executor.CreateJob(ctx, p)
}

// UpdateJobParams are the updatable fields of a job; nil means keep.
type UpdateJobParams struct {
	Name      *string
	URL       *string
	Frequency *domain.Frequency
	Config    map[string]string
	Status    *domain.JobStatus
}

// UpdateScraperJob applies a partial update to a tenant's job. The
// returned warning is non-empty when an unsupported frequency was
// normalized to daily.
func (s *Service) UpdateScraperJob(ctx context.Context, tenantID, jobID string, p UpdateJobParams) (*domain.ScraperJob, string, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, "", err
	}
	if job.TenantID != tenantID {
		return nil, "", domain.ErrJobNotFound
	}

	var warning string
	if p.Name != nil {
		job.Name = *p.Name
	}
	if p.URL != nil {
		parsed, err := url.Parse(*p.URL)
		if err != nil || !parsed.IsAbs() || parsed.Host == "" {
			return nil, "", fmt.Errorf("invalid job url %q", *p.URL)
		}
		job.URL = *p.URL
	}
	if p.Frequency != nil {
		freq, ok := domain.NormalizeFrequency(*p.Frequency)
		if !ok {
			warning = fmt.Sprintf("unsupported frequency %q normalized to %q", *p.Frequency, freq)
		}
		if freq != job.Frequency {
			job.Frequency = freq
			next := freq.NextRun(jobReference(job))
			job.NextRun = &next
		}
	}
	if p.Config != nil {
		job.Config = p.Config
	}
	if p.Status != nil {
		job.Status = *p.Status
	}

	if err := s.store.UpdateJob(ctx, job); err != nil {
		return nil, "", err
	}
	return job, warning, nil
}

// jobReference is the instant schedule changes are computed from: the
// last run when one exists, otherwise creation time.
func jobReference(job *domain.ScraperJob) time.Time {
	if job.LastRun != nil {
		return *job.LastRun
	}
	return job.CreatedAt
}

// DeleteScraperJob removes a tenant's job, cascading deletion of its
// records first.
func (s *Service) DeleteScraperJob(ctx context.Context, tenantID, jobID string) error {
	if err := s.store.DeleteJob(ctx, tenantID, jobID); err != nil {
		return err
	}
	s.logger.Info("job deleted", zap.String("tenant_id", tenantID), zap.String("job_id", jobID))
	return nil
}

// GetScraperJobs lists a tenant's jobs with their record counts. Jobs
// left in ERROR appear here so operators can intervene.
func (s *Service) GetScraperJobs(ctx context.Context, tenantID string) ([]domain.JobWithCount, error) {
	return s.store.ListJobs(ctx, tenantID)
}

// GetScrapedData returns a tenant's records, optionally filtered by
// type, most recent first. The limit is capped.
func (s *Service) GetScrapedData(ctx context.Context, tenantID string, typ *domain.JobType, limit int) ([]domain.ScrapedRecord, error) {
	if limit <= 0 {
		limit = defaultRecordLimit
	}
	if limit > maxRecordLimit {
		limit = maxRecordLimit
	}
	return s.store.ListRecords(ctx, tenantID, typ, limit)
}

// PerformManualScrape runs a one-off scrape anchored to a disabled
// sentinel job.
func (s *Service) PerformManualScrape(ctx context.Context, tenantID string, typ domain.JobType, scrapeURL string, cfg map[string]string) (*domain.ScrapedRecord, error) {
	return s.executor.ManualScrape(ctx, tenantID, typ, scrapeURL, cfg)
}

// ExecuteJob dispatches one scheduled execution; the trigger loop and
// the API both enter through here.
func (s *Service) ExecuteJob(ctx context.Context, jobID string) (*domain.ScrapedRecord, error) {
	return s.executor.ExecuteJob(ctx, jobID)
}

// GetScrapingAnalytics builds the tenant's rollup: total records,
// type and status distributions, and recent activity.
func (s *Service) GetScrapingAnalytics(ctx context.Context, tenantID string) (*domain.Analytics, error) {
	total, err := s.store.CountRecords(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}
	byType, err := s.store.RecordCountsByType(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("group records by type: %w", err)
	}
	byStatus, err := s.store.JobCountsByStatus(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("group jobs by status: %w", err)
	}
	recent, err := s.store.RecentRecordSummaries(ctx, tenantID, recentActivityN)
	if err != nil {
		return nil, fmt.Errorf("recent records: %w", err)
	}
	return &domain.Analytics{
		TotalRecords:   total,
		ByType:         byType,
		JobsByStatus:   byStatus,
		RecentActivity: recent,
	}, nil
}
