// Package scraper implements the source scrapers: type-specific
// fetch-extract-structure pipelines for competitor, social media and
// market intelligence pages.
package scraper

import (
	"context"

	"github.com/user/webintel-service/internal/domain"
)

// Result is the raw outcome of one scrape before the executor stamps
// ids, tenant and hash onto a stored record.
type Result struct {
	Title    string
	Content  any
	Metadata map[string]any
	// Coverage is the fraction of expected fields that extraction
	// actually populated, 0-1.
	Coverage float64
}

// Scraper is a single source variant. Implementations are stateless;
// all per-job variation arrives through cfg (selector overrides).
type Scraper interface {
	Scrape(ctx context.Context, url string, cfg map[string]string) (*Result, error)
}

// Registry maps job types to scraper instances. Adding a new source
// means one new variant and one entry here.
type Registry struct {
	scrapers map[domain.JobType]Scraper
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{scrapers: make(map[domain.JobType]Scraper)}
}

// Register binds a scraper to a job type, replacing any previous binding.
func (r *Registry) Register(t domain.JobType, s Scraper) {
	r.scrapers[t] = s
}

// Lookup returns the scraper for a job type, or ErrScraperUnregistered.
func (r *Registry) Lookup(t domain.JobType) (Scraper, error) {
	s, ok := r.scrapers[t]
	if !ok {
		return nil, domain.ErrScraperUnregistered
	}
	return s, nil
}

// selectorOr returns the configured selector for key, falling back to
// the variant's default.
func selectorOr(cfg map[string]string, key, fallback string) string {
	if v, ok := cfg[key]; ok && v != "" {
		return v
	}
	return fallback
}
