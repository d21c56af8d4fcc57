// Package storage owns persistence: a PostgreSQL store for jobs and
// records, and a Redis store for single-flight job locks.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/webintel-service/internal/domain"
)

// Pool is the subset of pgxpool.Pool used by the store, so tests can
// substitute a mock pool.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// PostgresStore handles interactions with the PostgreSQL database.
type PostgresStore struct {
	db Pool
}

// NewPostgresStore connects a store to the database at connStr.
func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreWithPool wraps an existing pool, used by tests.
func NewPostgresStoreWithPool(db Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// CreateJob inserts a new scraper job.
func (s *PostgresStore) CreateJob(ctx context.Context, job *domain.ScraperJob) error {
	cfg, err := json.Marshal(job.Config)
	if err != nil {
		return fmt.Errorf("marshal job config: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO scraper_jobs (id, tenant_id, name, type, url, frequency, config, status, last_run, next_run, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		job.ID, job.TenantID, job.Name, job.Type, job.URL, job.Frequency, cfg,
		job.Status, job.LastRun, job.NextRun, job.CreatedAt, job.UpdatedAt,
	)
	return err
}

// GetJob loads a job by id, returning ErrJobNotFound when absent.
func (s *PostgresStore) GetJob(ctx context.Context, id string) (*domain.ScraperJob, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, tenant_id, name, type, url, frequency, config, status, last_run, next_run, created_at, updated_at
		 FROM scraper_jobs WHERE id = $1`, id)
	return scanJob(row)
}

func scanJob(row pgx.Row) (*domain.ScraperJob, error) {
	var job domain.ScraperJob
	var cfg []byte
	err := row.Scan(&job.ID, &job.TenantID, &job.Name, &job.Type, &job.URL,
		&job.Frequency, &cfg, &job.Status, &job.LastRun, &job.NextRun,
		&job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &job.Config); err != nil {
			return nil, fmt.Errorf("unmarshal job config: %w", err)
		}
	}
	return &job, nil
}

// UpdateJob overwrites a job's mutable configuration fields.
func (s *PostgresStore) UpdateJob(ctx context.Context, job *domain.ScraperJob) error {
	cfg, err := json.Marshal(job.Config)
	if err != nil {
		return fmt.Errorf("marshal job config: %w", err)
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE scraper_jobs
		 SET name = $2, type = $3, url = $4, frequency = $5, config = $6, status = $7, next_run = $8, updated_at = $9
		 WHERE id = $1`,
		job.ID, job.Name, job.Type, job.URL, job.Frequency, cfg, job.Status, job.NextRun, time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

// UpdateJobRun applies the executor's post-run state transition.
// NextRun is only touched when non-nil, so a failed run leaves the
// pre-failure schedule in place.
func (s *PostgresStore) UpdateJobRun(ctx context.Context, id string, lastRun time.Time, nextRun *time.Time, status domain.JobStatus) error {
	var err error
	if nextRun != nil {
		_, err = s.db.Exec(ctx,
			`UPDATE scraper_jobs SET last_run = $2, next_run = $3, status = $4, updated_at = $5 WHERE id = $1`,
			id, lastRun, *nextRun, status, time.Now().UTC())
	} else {
		_, err = s.db.Exec(ctx,
			`UPDATE scraper_jobs SET last_run = $2, status = $3, updated_at = $4 WHERE id = $1`,
			id, lastRun, status, time.Now().UTC())
	}
	return err
}

// DeleteJob removes a job and all of its records in one transaction,
// records first.
func (s *PostgresStore) DeleteJob(ctx context.Context, tenantID, id string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM scraped_records WHERE job_id = $1 AND tenant_id = $2`, id, tenantID); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx,
		`DELETE FROM scraper_jobs WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return tx.Commit(ctx)
}

// ListJobs returns a tenant's jobs with per-job record counts, newest
// first.
func (s *PostgresStore) ListJobs(ctx context.Context, tenantID string) ([]domain.JobWithCount, error) {
	rows, err := s.db.Query(ctx,
		`SELECT j.id, j.tenant_id, j.name, j.type, j.url, j.frequency, j.config, j.status,
		        j.last_run, j.next_run, j.created_at, j.updated_at,
		        COUNT(r.id) AS record_count
		 FROM scraper_jobs j
		 LEFT JOIN scraped_records r ON r.job_id = j.id
		 WHERE j.tenant_id = $1
		 GROUP BY j.id
		 ORDER BY j.created_at DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.JobWithCount
	for rows.Next() {
		var jc domain.JobWithCount
		var cfg []byte
		if err := rows.Scan(&jc.ID, &jc.TenantID, &jc.Name, &jc.Type, &jc.URL,
			&jc.Frequency, &cfg, &jc.Status, &jc.LastRun, &jc.NextRun,
			&jc.CreatedAt, &jc.UpdatedAt, &jc.RecordCount); err != nil {
			return nil, err
		}
		if len(cfg) > 0 {
			if err := json.Unmarshal(cfg, &jc.Config); err != nil {
				return nil, fmt.Errorf("unmarshal job config: %w", err)
			}
		}
		jobs = append(jobs, jc)
	}
	return jobs, rows.Err()
}

// ListDueJobs returns ACTIVE jobs whose next_run is at or before now.
func (s *PostgresStore) ListDueJobs(ctx context.Context, now time.Time) ([]domain.ScraperJob, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, tenant_id, name, type, url, frequency, config, status, last_run, next_run, created_at, updated_at
		 FROM scraper_jobs
		 WHERE status = $1 AND next_run IS NOT NULL AND next_run <= $2
		 ORDER BY next_run`, domain.StatusActive, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.ScraperJob
	for rows.Next() {
		var job domain.ScraperJob
		var cfg []byte
		if err := rows.Scan(&job.ID, &job.TenantID, &job.Name, &job.Type, &job.URL,
			&job.Frequency, &cfg, &job.Status, &job.LastRun, &job.NextRun,
			&job.CreatedAt, &job.UpdatedAt); err != nil {
			return nil, err
		}
		if len(cfg) > 0 {
			if err := json.Unmarshal(cfg, &job.Config); err != nil {
				return nil, fmt.Errorf("unmarshal job config: %w", err)
			}
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// CreateRecord inserts a scraped record. Records are never updated.
func (s *PostgresStore) CreateRecord(ctx context.Context, rec *domain.ScrapedRecord) error {
	content, err := json.Marshal(rec.Content)
	if err != nil {
		return fmt.Errorf("marshal record content: %w", err)
	}
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal record metadata: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO scraped_records (id, job_id, tenant_id, type, url, title, content, metadata, content_hash, scraped_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, rec.JobID, rec.TenantID, rec.Type, rec.URL, rec.Title,
		content, meta, rec.ContentHash, rec.ScrapedAt,
	)
	return err
}

// LatestContentHash returns the content hash of the job's most recent
// record, or empty when the job has no records yet.
func (s *PostgresStore) LatestContentHash(ctx context.Context, jobID string) (string, error) {
	var hash string
	err := s.db.QueryRow(ctx,
		`SELECT content_hash FROM scraped_records WHERE job_id = $1 ORDER BY scraped_at DESC LIMIT 1`,
		jobID).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return hash, nil
}

// ListRecords returns a tenant's records, optionally filtered by type,
// most recent first, capped at limit.
func (s *PostgresStore) ListRecords(ctx context.Context, tenantID string, typ *domain.JobType, limit int) ([]domain.ScrapedRecord, error) {
	query := `SELECT id, job_id, tenant_id, type, url, title, content, metadata, content_hash, scraped_at
	          FROM scraped_records WHERE tenant_id = $1`
	args := []any{tenantID}
	if typ != nil {
		query += ` AND type = $2`
		args = append(args, *typ)
	}
	query += fmt.Sprintf(` ORDER BY scraped_at DESC LIMIT %d`, limit)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.ScrapedRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func scanRecord(rows pgx.Rows) (*domain.ScrapedRecord, error) {
	var rec domain.ScrapedRecord
	var content, meta []byte
	if err := rows.Scan(&rec.ID, &rec.JobID, &rec.TenantID, &rec.Type, &rec.URL,
		&rec.Title, &content, &meta, &rec.ContentHash, &rec.ScrapedAt); err != nil {
		return nil, err
	}
	if len(content) > 0 {
		if err := json.Unmarshal(content, &rec.Content); err != nil {
			return nil, fmt.Errorf("unmarshal record content: %w", err)
		}
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal record metadata: %w", err)
		}
	}
	return &rec, nil
}

// CountRecords returns the total number of records owned by a tenant.
func (s *PostgresStore) CountRecords(ctx context.Context, tenantID string) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM scraped_records WHERE tenant_id = $1`, tenantID).Scan(&n)
	return n, err
}

// RecordCountsByType groups a tenant's record counts by job type.
func (s *PostgresStore) RecordCountsByType(ctx context.Context, tenantID string) (map[string]int64, error) {
	rows, err := s.db.Query(ctx,
		`SELECT type, COUNT(*) FROM scraped_records WHERE tenant_id = $1 GROUP BY type`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanGroupCounts(rows)
}

// JobCountsByStatus groups a tenant's job counts by status.
func (s *PostgresStore) JobCountsByStatus(ctx context.Context, tenantID string) (map[string]int64, error) {
	rows, err := s.db.Query(ctx,
		`SELECT status, COUNT(*) FROM scraper_jobs WHERE tenant_id = $1 GROUP BY status`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanGroupCounts(rows)
}

func scanGroupCounts(rows pgx.Rows) (map[string]int64, error) {
	counts := make(map[string]int64)
	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		counts[key] = n
	}
	return counts, rows.Err()
}

// RecentRecordSummaries returns metadata-only views of the tenant's
// most recent records.
func (s *PostgresStore) RecentRecordSummaries(ctx context.Context, tenantID string, limit int) ([]domain.RecordSummary, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, type, url, title, metadata, scraped_at
		 FROM scraped_records WHERE tenant_id = $1
		 ORDER BY scraped_at DESC LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RecordSummary
	for rows.Next() {
		var rs domain.RecordSummary
		var meta []byte
		if err := rows.Scan(&rs.ID, &rs.Type, &rs.URL, &rs.Title, &meta, &rs.ScrapedAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &rs.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal record metadata: %w", err)
			}
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}
