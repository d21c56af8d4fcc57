package domain

import "time"

// JobType identifies which source scraper a job dispatches to.
type JobType string

const (
	TypeCompetitorPricing  JobType = "COMPETITOR_PRICING"
	TypeCompetitorProducts JobType = "COMPETITOR_PRODUCTS"
	TypeSocialMetrics      JobType = "SOCIAL_METRICS"
	TypeMarketTrends       JobType = "MARKET_TRENDS"
	TypeNewsSentiment      JobType = "NEWS_SENTIMENT"
	TypeIndustryReports    JobType = "INDUSTRY_REPORTS"
)

// JobTypes lists every known job type.
var JobTypes = []JobType{
	TypeCompetitorPricing,
	TypeCompetitorProducts,
	TypeSocialMetrics,
	TypeMarketTrends,
	TypeNewsSentiment,
	TypeIndustryReports,
}

// Valid reports whether t is a known job type.
func (t JobType) Valid() bool {
	for _, known := range JobTypes {
		if t == known {
			return true
		}
	}
	return false
}

// JobStatus is the run state of a scraper job.
type JobStatus string

const (
	StatusActive   JobStatus = "ACTIVE"
	StatusPaused   JobStatus = "PAUSED"
	StatusDisabled JobStatus = "DISABLED"
	StatusError    JobStatus = "ERROR"
)

// ScraperJob is a persisted configuration describing what to scrape,
// how often, and its current run state.
type ScraperJob struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenant_id"`
	Name      string            `json:"name"`
	Type      JobType           `json:"type"`
	URL       string            `json:"url"`
	Frequency Frequency         `json:"frequency"`
	Config    map[string]string `json:"config,omitempty"`
	Status    JobStatus         `json:"status"`
	LastRun   *time.Time        `json:"last_run,omitempty"`
	NextRun   *time.Time        `json:"next_run,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// ScrapedRecord is one stored result of a single scrape execution.
// Records are immutable once written; they are removed only as a
// cascade of job deletion.
type ScrapedRecord struct {
	ID          string         `json:"id"`
	JobID       string         `json:"job_id"`
	TenantID    string         `json:"tenant_id"`
	Type        JobType        `json:"type"`
	URL         string         `json:"url"`
	Title       string         `json:"title"`
	Content     any            `json:"content"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	ContentHash string         `json:"content_hash"`
	ScrapedAt   time.Time      `json:"scraped_at"`
}

// JobWithCount pairs a job with the number of records it owns,
// for job-listing views.
type JobWithCount struct {
	ScraperJob
	RecordCount int64 `json:"record_count"`
}

// Analytics is the tenant-scoped rollup returned by the service facade.
type Analytics struct {
	TotalRecords   int64            `json:"total_records"`
	ByType         map[string]int64 `json:"by_type"`
	JobsByStatus   map[string]int64 `json:"jobs_by_status"`
	RecentActivity []RecordSummary  `json:"recent_activity"`
}

// RecordSummary is the metadata-only view of a record used in analytics.
type RecordSummary struct {
	ID        string         `json:"id"`
	Type      JobType        `json:"type"`
	URL       string         `json:"url"`
	Title     string         `json:"title"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	ScrapedAt time.Time      `json:"scraped_at"`
}
