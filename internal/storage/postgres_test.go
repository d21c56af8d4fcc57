package storage

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/webintel-service/internal/domain"
)

var jobColumns = []string{
	"id", "tenant_id", "name", "type", "url", "frequency", "config",
	"status", "last_run", "next_run", "created_at", "updated_at",
}

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresStoreWithPool(mock), mock
}

func sampleJob() *domain.ScraperJob {
	created := time.Date(2025, time.April, 1, 8, 0, 0, 0, time.UTC)
	next := created.AddDate(0, 0, 1)
	return &domain.ScraperJob{
		ID:        "job-1",
		TenantID:  "tenant-1",
		Name:      "pricing watch",
		Type:      domain.TypeCompetitorPricing,
		URL:       "https://shop.example.com",
		Frequency: domain.FreqDaily,
		Config:    map[string]string{"product": ".item"},
		Status:    domain.StatusActive,
		NextRun:   &next,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestCreateJob(t *testing.T) {
	store, mock := newMockStore(t)
	job := sampleJob()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO scraper_jobs`)).
		WithArgs(job.ID, job.TenantID, job.Name, job.Type, job.URL, job.Frequency,
			pgxmock.AnyArg(), job.Status, job.LastRun, job.NextRun, job.CreatedAt, job.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.CreateJob(context.Background(), job))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJob(t *testing.T) {
	store, mock := newMockStore(t)
	job := sampleJob()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, tenant_id, name, type, url, frequency, config, status, last_run, next_run, created_at, updated_at`)).
		WithArgs(job.ID).
		WillReturnRows(pgxmock.NewRows(jobColumns).AddRow(
			job.ID, job.TenantID, job.Name, job.Type, job.URL, job.Frequency,
			[]byte(`{"product":".item"}`), job.Status, job.LastRun, job.NextRun,
			job.CreatedAt, job.UpdatedAt,
		))

	got, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.Name, got.Name)
	assert.Equal(t, job.Type, got.Type)
	assert.Equal(t, map[string]string{"product": ".item"}, got.Config)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJob_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM scraper_jobs`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(jobColumns))

	_, err := store.GetJob(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestUpdateJob_NotFound(t *testing.T) {
	store, mock := newMockStore(t)
	job := sampleJob()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE scraper_jobs`)).
		WithArgs(job.ID, job.Name, job.Type, job.URL, job.Frequency,
			pgxmock.AnyArg(), job.Status, job.NextRun, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.UpdateJob(context.Background(), job)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestUpdateJobRun(t *testing.T) {
	store, mock := newMockStore(t)
	lastRun := time.Date(2025, time.April, 2, 8, 0, 0, 0, time.UTC)
	nextRun := lastRun.AddDate(0, 0, 1)

	mock.ExpectExec(regexp.QuoteMeta(`SET last_run = $2, next_run = $3, status = $4`)).
		WithArgs("job-1", lastRun, nextRun, domain.StatusActive, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := store.UpdateJobRun(context.Background(), "job-1", lastRun, &nextRun, domain.StatusActive)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateJobRun_FailureKeepsNextRun(t *testing.T) {
	store, mock := newMockStore(t)
	lastRun := time.Date(2025, time.April, 2, 8, 0, 0, 0, time.UTC)

	// No next_run column in the statement when nextRun is nil.
	mock.ExpectExec(regexp.QuoteMeta(`SET last_run = $2, status = $3`)).
		WithArgs("job-1", lastRun, domain.StatusError, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := store.UpdateJobRun(context.Background(), "job-1", lastRun, nil, domain.StatusError)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteJob(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM scraped_records WHERE job_id = $1 AND tenant_id = $2`)).
		WithArgs("job-1", "tenant-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM scraper_jobs WHERE id = $1 AND tenant_id = $2`)).
		WithArgs("job-1", "tenant-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	require.NoError(t, store.DeleteJob(context.Background(), "tenant-1", "job-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteJob_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM scraped_records`)).
		WithArgs("missing", "tenant-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM scraper_jobs`)).
		WithArgs("missing", "tenant-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectRollback()

	err := store.DeleteJob(context.Background(), "tenant-1", "missing")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestListJobs(t *testing.T) {
	store, mock := newMockStore(t)
	job := sampleJob()

	columns := append(append([]string{}, jobColumns...), "record_count")
	mock.ExpectQuery(`SELECT j\.id, .+ FROM scraper_jobs j`).
		WithArgs("tenant-1").
		WillReturnRows(pgxmock.NewRows(columns).AddRow(
			job.ID, job.TenantID, job.Name, job.Type, job.URL, job.Frequency,
			[]byte(`{}`), job.Status, job.LastRun, job.NextRun,
			job.CreatedAt, job.UpdatedAt, int64(7),
		))

	jobs, err := store.ListJobs(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, job.ID, jobs[0].ID)
	assert.Equal(t, int64(7), jobs[0].RecordCount)
}

func TestListDueJobs(t *testing.T) {
	store, mock := newMockStore(t)
	job := sampleJob()
	now := time.Date(2025, time.April, 3, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE status = $1 AND next_run IS NOT NULL AND next_run <= $2`)).
		WithArgs(domain.StatusActive, now).
		WillReturnRows(pgxmock.NewRows(jobColumns).AddRow(
			job.ID, job.TenantID, job.Name, job.Type, job.URL, job.Frequency,
			[]byte(nil), job.Status, job.LastRun, job.NextRun,
			job.CreatedAt, job.UpdatedAt,
		))

	jobs, err := store.ListDueJobs(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, job.ID, jobs[0].ID)
	assert.Nil(t, jobs[0].Config)
}

func TestCreateRecord(t *testing.T) {
	store, mock := newMockStore(t)
	rec := &domain.ScrapedRecord{
		ID:          "rec-1",
		JobID:       "job-1",
		TenantID:    "tenant-1",
		Type:        domain.TypeSocialMetrics,
		URL:         "https://x.com/acme",
		Title:       "Acme",
		Content:     map[string]any{"followers": 10},
		Metadata:    map[string]any{"platform": "twitter"},
		ContentHash: "abc123",
		ScrapedAt:   time.Date(2025, time.April, 2, 9, 0, 0, 0, time.UTC),
	}

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO scraped_records`)).
		WithArgs(rec.ID, rec.JobID, rec.TenantID, rec.Type, rec.URL, rec.Title,
			pgxmock.AnyArg(), pgxmock.AnyArg(), rec.ContentHash, rec.ScrapedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.CreateRecord(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestContentHash(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT content_hash FROM scraped_records`)).
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{"content_hash"}).AddRow("abc123"))

	hash, err := store.LatestContentHash(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "abc123", hash)
}

func TestLatestContentHash_NoRecords(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT content_hash FROM scraped_records`)).
		WithArgs("job-9").
		WillReturnRows(pgxmock.NewRows([]string{"content_hash"}))

	hash, err := store.LatestContentHash(context.Background(), "job-9")
	require.NoError(t, err)
	assert.Empty(t, hash)
}

func TestListRecords_TypeFilter(t *testing.T) {
	store, mock := newMockStore(t)
	typ := domain.TypeNewsSentiment
	scrapedAt := time.Date(2025, time.April, 2, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`AND type = $2`)).
		WithArgs("tenant-1", typ).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "job_id", "tenant_id", "type", "url", "title",
			"content", "metadata", "content_hash", "scraped_at",
		}).AddRow(
			"rec-1", "job-1", "tenant-1", typ, "https://news.example.com", "Headlines",
			[]byte(`{"articles":[]}`), []byte(`{"source_kind":"news"}`), "abc123", scrapedAt,
		))

	records, err := store.ListRecords(context.Background(), "tenant-1", &typ, 50)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Headlines", records[0].Title)
	assert.Equal(t, map[string]any{"source_kind": "news"}, records[0].Metadata)
}

func TestRecordCountsByType(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT type, COUNT(*) FROM scraped_records`)).
		WithArgs("tenant-1").
		WillReturnRows(pgxmock.NewRows([]string{"type", "count"}).
			AddRow("COMPETITOR_PRICING", int64(12)).
			AddRow("SOCIAL_MEDIA_METRICS", int64(4)))

	counts, err := store.RecordCountsByType(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"COMPETITOR_PRICING": 12, "SOCIAL_MEDIA_METRICS": 4}, counts)
}

func TestJobCountsByStatus(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status, COUNT(*) FROM scraper_jobs`)).
		WithArgs("tenant-1").
		WillReturnRows(pgxmock.NewRows([]string{"status", "count"}).
			AddRow("ACTIVE", int64(3)).
			AddRow("ERROR", int64(1)))

	counts, err := store.JobCountsByStatus(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"ACTIVE": 3, "ERROR": 1}, counts)
}

func TestRecentRecordSummaries(t *testing.T) {
	store, mock := newMockStore(t)
	scrapedAt := time.Date(2025, time.April, 2, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, type, url, title, metadata, scraped_at`)).
		WithArgs("tenant-1", 10).
		WillReturnRows(pgxmock.NewRows([]string{"id", "type", "url", "title", "metadata", "scraped_at"}).
			AddRow("rec-1", domain.TypeMarketTrends, "https://trends.example.com", "Trending", []byte(`{}`), scrapedAt))

	summaries, err := store.RecentRecordSummaries(context.Background(), "tenant-1", 10)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "Trending", summaries[0].Title)
	assert.Equal(t, scrapedAt, summaries[0].ScrapedAt)
}
