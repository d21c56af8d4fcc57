package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/webintel-service/internal/domain"
	"github.com/user/webintel-service/internal/monitoring"
	"github.com/user/webintel-service/internal/scraper"
)

// fakeStore is an in-memory executor.Store.
type fakeStore struct {
	jobs       map[string]*domain.ScraperJob
	records    []*domain.ScrapedRecord
	lastHash   string
	createErr  error
	recordErr  error
	runUpdates []runUpdate
}

type runUpdate struct {
	jobID   string
	lastRun time.Time
	nextRun *time.Time
	status  domain.JobStatus
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: make(map[string]*domain.ScraperJob)}
}

func (f *fakeStore) CreateJob(_ context.Context, job *domain.ScraperJob) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.jobs[job.ID] = job
	return nil
}

func (f *fakeStore) GetJob(_ context.Context, id string) (*domain.ScraperJob, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (f *fakeStore) UpdateJobRun(_ context.Context, id string, lastRun time.Time, nextRun *time.Time, status domain.JobStatus) error {
	f.runUpdates = append(f.runUpdates, runUpdate{id, lastRun, nextRun, status})
	if job, ok := f.jobs[id]; ok {
		job.LastRun = &lastRun
		if nextRun != nil {
			job.NextRun = nextRun
		}
		job.Status = status
	}
	return nil
}

func (f *fakeStore) CreateRecord(_ context.Context, rec *domain.ScrapedRecord) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeStore) LatestContentHash(_ context.Context, _ string) (string, error) {
	return f.lastHash, nil
}

// fakeLocker counts acquisitions and can simulate a held lock.
type fakeLocker struct {
	held     bool
	acquires int
	releases int
}

func (f *fakeLocker) AcquireJobLock(_ context.Context, _ string, _ time.Duration) (bool, error) {
	f.acquires++
	return !f.held, nil
}

func (f *fakeLocker) ReleaseJobLock(_ context.Context, _ string) error {
	f.releases++
	return nil
}

// stubScraper returns a fixed result or error.
type stubScraper struct {
	result *scraper.Result
	err    error
	calls  int
}

func (s *stubScraper) Scrape(_ context.Context, _ string, _ map[string]string) (*scraper.Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func testExecutor(t *testing.T, store *fakeStore, locker *fakeLocker, stub *stubScraper, opts Options) *Executor {
	t.Helper()
	reg := scraper.NewRegistry()
	if stub != nil {
		reg.Register(domain.TypeCompetitorPricing, stub)
	}
	return NewExecutor(store, locker, reg, monitoring.NewMetricsWith(prometheus.NewRegistry()), zap.NewNop(), opts)
}

func activeJob(store *fakeStore) *domain.ScraperJob {
	next := time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC)
	job := &domain.ScraperJob{
		ID:        "job-1",
		TenantID:  "tenant-1",
		Name:      "pricing watch",
		Type:      domain.TypeCompetitorPricing,
		URL:       "https://shop.example.com/catalog",
		Frequency: domain.FreqDaily,
		Status:    domain.StatusActive,
		NextRun:   &next,
	}
	store.jobs[job.ID] = job
	return job
}

func okResult() *scraper.Result {
	return &scraper.Result{
		Title:    "Catalog",
		Content:  scraper.CompetitorContent{TotalProducts: 2, AveragePrice: 20},
		Metadata: map[string]any{"total_products": 2},
		Coverage: 0.75,
	}
}

func TestCreateJob(t *testing.T) {
	store := newFakeStore()
	e := testExecutor(t, store, &fakeLocker{}, nil, Options{})

	job, warning, err := e.CreateJob(context.Background(), CreateJobParams{
		TenantID:  "tenant-1",
		Name:      "watch",
		Type:      domain.TypeCompetitorPricing,
		URL:       "https://shop.example.com",
		Frequency: domain.FreqWeekly,
	})
	require.NoError(t, err)
	assert.Empty(t, warning)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, domain.StatusActive, job.Status)
	assert.Equal(t, domain.FreqWeekly, job.Frequency)
	require.NotNil(t, job.NextRun)
	assert.Equal(t, job.CreatedAt.AddDate(0, 0, 7), *job.NextRun)
	assert.Contains(t, store.jobs, job.ID)
}

func TestCreateJob_FrequencyNormalizedWithWarning(t *testing.T) {
	store := newFakeStore()
	e := testExecutor(t, store, &fakeLocker{}, nil, Options{})

	job, warning, err := e.CreateJob(context.Background(), CreateJobParams{
		TenantID:  "tenant-1",
		Name:      "watch",
		Type:      domain.TypeCompetitorPricing,
		URL:       "https://shop.example.com",
		Frequency: domain.Frequency("hourly"),
	})
	require.NoError(t, err)
	assert.Contains(t, warning, "hourly")
	assert.Equal(t, domain.FreqDaily, job.Frequency)
}

func TestCreateJob_InvalidURL(t *testing.T) {
	store := newFakeStore()
	e := testExecutor(t, store, &fakeLocker{}, nil, Options{})

	tests := []string{"", "not a url", "/relative/path", "ftp-like"}
	for _, u := range tests {
		_, _, err := e.CreateJob(context.Background(), CreateJobParams{
			TenantID:  "tenant-1",
			Type:      domain.TypeCompetitorPricing,
			URL:       u,
			Frequency: domain.FreqDaily,
		})
		require.Error(t, err, "url %q", u)
	}
	assert.Empty(t, store.jobs)
}

func TestCreateJob_UnknownType(t *testing.T) {
	e := testExecutor(t, newFakeStore(), &fakeLocker{}, nil, Options{})
	_, _, err := e.CreateJob(context.Background(), CreateJobParams{
		TenantID:  "tenant-1",
		Type:      domain.JobType("BOGUS"),
		URL:       "https://example.com",
		Frequency: domain.FreqDaily,
	})
	require.Error(t, err)
}

func TestExecuteJob_Success(t *testing.T) {
	store := newFakeStore()
	job := activeJob(store)
	locker := &fakeLocker{}
	stub := &stubScraper{result: okResult()}
	e := testExecutor(t, store, locker, stub, Options{})

	fixed := time.Date(2025, time.May, 2, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return fixed }

	record, err := e.ExecuteJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stub.calls)
	assert.Equal(t, job.ID, record.JobID)
	assert.Equal(t, "tenant-1", record.TenantID)
	assert.Equal(t, "Catalog", record.Title)
	assert.NotEmpty(t, record.ContentHash)
	require.Len(t, store.records, 1)

	stored := store.jobs[job.ID]
	assert.Equal(t, domain.StatusActive, stored.Status)
	require.NotNil(t, stored.LastRun)
	assert.Equal(t, fixed, *stored.LastRun)
	require.NotNil(t, stored.NextRun)
	assert.Equal(t, fixed.AddDate(0, 0, 1), *stored.NextRun)

	assert.Equal(t, 1, locker.acquires)
	assert.Equal(t, 1, locker.releases)
}

func TestExecuteJob_FailureMarksError(t *testing.T) {
	store := newFakeStore()
	job := activeJob(store)
	originalNext := *job.NextRun
	stub := &stubScraper{err: errors.New("target unreachable")}
	e := testExecutor(t, store, &fakeLocker{}, stub, Options{})

	_, err := e.ExecuteJob(context.Background(), job.ID)
	require.Error(t, err)

	stored := store.jobs[job.ID]
	assert.Equal(t, domain.StatusError, stored.Status)
	require.NotNil(t, stored.LastRun)
	// nextRun keeps its pre-failure value.
	assert.Equal(t, originalNext, *stored.NextRun)
	assert.Empty(t, store.records)
}

func TestExecuteJob_NotFound(t *testing.T) {
	e := testExecutor(t, newFakeStore(), &fakeLocker{}, nil, Options{})
	_, err := e.ExecuteJob(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestExecuteJob_NotActive(t *testing.T) {
	store := newFakeStore()
	job := activeJob(store)
	job.Status = domain.StatusPaused
	e := testExecutor(t, store, &fakeLocker{}, &stubScraper{result: okResult()}, Options{})

	_, err := e.ExecuteJob(context.Background(), job.ID)
	assert.ErrorIs(t, err, domain.ErrJobNotActive)
	assert.Empty(t, store.records)
}

func TestExecuteJob_AlreadyRunning(t *testing.T) {
	store := newFakeStore()
	job := activeJob(store)
	stub := &stubScraper{result: okResult()}
	e := testExecutor(t, store, &fakeLocker{held: true}, stub, Options{})

	_, err := e.ExecuteJob(context.Background(), job.ID)
	assert.ErrorIs(t, err, domain.ErrJobRunning)
	assert.Zero(t, stub.calls)
	// The overlapping trigger must not touch job state.
	assert.Empty(t, store.runUpdates)
}

func TestExecuteJob_UnregisteredType(t *testing.T) {
	store := newFakeStore()
	job := activeJob(store)
	job.Type = domain.TypeSocialMetrics
	e := testExecutor(t, store, &fakeLocker{}, &stubScraper{result: okResult()}, Options{})

	_, err := e.ExecuteJob(context.Background(), job.ID)
	assert.ErrorIs(t, err, domain.ErrScraperUnregistered)
	assert.Equal(t, domain.StatusError, store.jobs[job.ID].Status)
}

func TestExecuteJob_SkipUnchanged(t *testing.T) {
	store := newFakeStore()
	job := activeJob(store)
	stub := &stubScraper{result: okResult()}
	e := testExecutor(t, store, &fakeLocker{}, stub, Options{SkipUnchanged: true})

	hash, err := scraper.Fingerprint(okResult().Content)
	require.NoError(t, err)
	store.lastHash = hash

	record, err := e.ExecuteJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, hash, record.ContentHash)
	// Unchanged content: no new record, but the schedule still advances.
	assert.Empty(t, store.records)
	assert.Equal(t, domain.StatusActive, store.jobs[job.ID].Status)
	require.NotNil(t, store.jobs[job.ID].LastRun)
}

func TestExecuteJob_SkipUnchangedPersistsOnNewContent(t *testing.T) {
	store := newFakeStore()
	job := activeJob(store)
	store.lastHash = "deadbeef"
	e := testExecutor(t, store, &fakeLocker{}, &stubScraper{result: okResult()}, Options{SkipUnchanged: true})

	_, err := e.ExecuteJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Len(t, store.records, 1)
}

func TestExecuteJob_PersistFailureMarksError(t *testing.T) {
	store := newFakeStore()
	job := activeJob(store)
	store.recordErr = errors.New("disk full")
	e := testExecutor(t, store, &fakeLocker{}, &stubScraper{result: okResult()}, Options{})

	_, err := e.ExecuteJob(context.Background(), job.ID)
	require.Error(t, err)
	assert.Equal(t, domain.StatusError, store.jobs[job.ID].Status)
}

func TestManualScrape(t *testing.T) {
	store := newFakeStore()
	stub := &stubScraper{result: okResult()}
	e := testExecutor(t, store, &fakeLocker{}, stub, Options{})

	record, err := e.ManualScrape(context.Background(), "tenant-9", domain.TypeCompetitorPricing, "https://shop.example.com/sale", nil)
	require.NoError(t, err)
	assert.Equal(t, "tenant-9", record.TenantID)
	require.Len(t, store.records, 1)

	// A disabled sentinel job anchors the record and stays disabled.
	sentinel, ok := store.jobs[record.JobID]
	require.True(t, ok)
	assert.Equal(t, domain.StatusDisabled, sentinel.Status)
	assert.Equal(t, domain.FreqYearly, sentinel.Frequency)
}

func TestManualScrape_InvalidInput(t *testing.T) {
	e := testExecutor(t, newFakeStore(), &fakeLocker{}, nil, Options{})

	_, err := e.ManualScrape(context.Background(), "t", domain.JobType("BOGUS"), "https://example.com", nil)
	require.Error(t, err)

	_, err = e.ManualScrape(context.Background(), "t", domain.TypeCompetitorPricing, "not-a-url", nil)
	require.Error(t, err)
}
