// Package fetch retrieves remote pages and parses them into queryable
// documents, with retry, linear backoff and user-agent rotation.
package fetch

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Options configures a Client. Zero values fall back to the defaults
// below.
type Options struct {
	UserAgent string
	Delay     time.Duration
	Retries   int
	Timeout   time.Duration
	Headers   map[string]string
	// RatePerSecond throttles requests issued through this client.
	// Zero means no throttling beyond the inter-attempt delay.
	RatePerSecond float64
}

const (
	defaultDelay   = time.Second
	defaultRetries = 3
	defaultTimeout = 30 * time.Second
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
}

// FetchError is a fetch failure surviving all retry attempts. It
// carries the URL and the last underlying error.
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Client fetches pages over HTTP. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	opts       Options
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient creates a fetch client with the given options.
func NewClient(opts Options, logger *zap.Logger) *Client {
	if opts.Delay == 0 {
		opts.Delay = defaultDelay
	}
	if opts.Retries == 0 {
		opts.Retries = defaultRetries
	}
	if opts.Timeout == 0 {
		opts.Timeout = defaultTimeout
	}
	var limiter *rate.Limiter
	if opts.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1)
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: opts.Timeout,
			// 4xx and 5xx are both handled (and retried) above the
			// transport, so any status below 500 passes through here.
		},
		opts:    opts,
		limiter: limiter,
		logger:  logger,
	}
}

// FetchPage retrieves url and parses the body into a goquery document.
// Client and server HTTP error classes are both treated as retryable;
// before attempt n a linear backoff of Delay*n is applied. After all
// retries are exhausted a *FetchError is returned.
func (c *Client) FetchPage(ctx context.Context, url string) (*goquery.Document, error) {
	var lastErr error
	for attempt := 1; attempt <= c.opts.Retries; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, c.opts.Delay*time.Duration(attempt)); err != nil {
				return nil, err
			}
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		doc, err := c.fetchOnce(ctx, url)
		if err == nil {
			return doc, nil
		}
		lastErr = err
		c.logger.Warn("fetch attempt failed",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	return nil, &FetchError{URL: url, Attempts: c.opts.Retries, Err: lastErr}
}

func (c *Client) fetchOnce(ctx context.Context, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func (c *Client) setHeaders(req *http.Request) {
	ua := c.opts.UserAgent
	if ua == "" {
		ua = userAgents[rand.Intn(len(userAgents))]
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Cache-Control", "no-cache")
	for k, v := range c.opts.Headers {
		req.Header.Set(k, v)
	}
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
