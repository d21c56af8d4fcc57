package scraper

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/user/webintel-service/internal/extract"
	"github.com/user/webintel-service/internal/fetch"
)

const (
	maxArticles        = 20
	maxInsightItems    = 5
	relevanceThreshold = 50
)

// Trend is one extracted search trend entry.
type Trend struct {
	Keyword      string  `json:"keyword"`
	SearchVolume int64   `json:"search_volume"`
	Change       float64 `json:"change"`
	Direction    string  `json:"direction"`
}

// Article is one extracted news item.
type Article struct {
	Title     string    `json:"title"`
	Summary   string    `json:"summary,omitempty"`
	Source    string    `json:"source,omitempty"`
	URL       string    `json:"url,omitempty"`
	Published time.Time `json:"published"`
	Sentiment string    `json:"sentiment"`
	Relevance float64   `json:"relevance"`
}

// SentimentSummary aggregates sentiment across extracted articles.
type SentimentSummary struct {
	Overall     float64 `json:"overall"`
	PositivePct float64 `json:"positive_pct"`
	NegativePct float64 `json:"negative_pct"`
	NeutralPct  float64 `json:"neutral_pct"`
}

// Insights is the synthesized view over trends and articles.
type Insights struct {
	GrowingTopics         []string `json:"growing_topics,omitempty"`
	DecliningTopics       []string `json:"declining_topics,omitempty"`
	EmergingOpportunities []string `json:"emerging_opportunities,omitempty"`
	PotentialThreats      []string `json:"potential_threats,omitempty"`
}

// MarketContent is the structured payload of a market intelligence scrape.
type MarketContent struct {
	SourceKind string            `json:"source_kind"`
	Trends     []Trend           `json:"trends,omitempty"`
	Articles   []Article         `json:"articles,omitempty"`
	Sentiment  *SentimentSummary `json:"sentiment,omitempty"`
	Insights   *Insights         `json:"insights,omitempty"`
}

var marketDefaults = map[string]string{
	"trend":        ".trend-item, .trending-item, [data-trend]",
	"keyword":      ".keyword, .trend-title, .title",
	"volume":       ".volume, .search-volume, .count",
	"change":       ".change, .trend-change, .percent",
	"article":      "article, .article, .news-item",
	"title":        "h1, h2, h3, .headline, .title",
	"summary":      ".summary, .excerpt, .description, p",
	"source":       ".source, .byline, .publisher",
	"link":         "a",
	"published":    "time, .date, .published",
	"report_title": "h1, .report-title",
	"report_body":  ".report-body, .content, main",
}

// MarketIntelligenceScraper extracts search trends, news sentiment and
// industry report content from market sources.
type MarketIntelligenceScraper struct {
	client *fetch.Client
	logger *zap.Logger
}

// NewMarketIntelligenceScraper creates a market intelligence scraper
// using the given fetch client.
func NewMarketIntelligenceScraper(client *fetch.Client, logger *zap.Logger) *MarketIntelligenceScraper {
	return &MarketIntelligenceScraper{client: client, logger: logger}
}

// DetectSourceKind classifies a market source from its URL.
func DetectSourceKind(pageURL string) string {
	lower := strings.ToLower(pageURL)
	switch {
	case strings.Contains(lower, "trends.google"), strings.Contains(lower, "/trends"):
		return "trends"
	case strings.Contains(lower, "news"), strings.Contains(lower, "press"), strings.Contains(lower, "blog"):
		return "news"
	case strings.Contains(lower, "report"), strings.Contains(lower, "research"), strings.Contains(lower, "insights"):
		return "report"
	default:
		return "generic"
	}
}

// Scrape fetches a market source page and builds a MarketContent
// payload according to the detected source kind.
func (s *MarketIntelligenceScraper) Scrape(ctx context.Context, pageURL string, cfg map[string]string) (*Result, error) {
	doc, err := s.client.FetchPage(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	kind := DetectSourceKind(pageURL)
	content := MarketContent{SourceKind: kind}

	switch kind {
	case "trends":
		content.Trends = s.extractTrends(doc, cfg)
	case "news":
		content.Articles = s.extractArticles(doc, cfg, pageURL)
		content.Sentiment = summarizeSentiment(content.Articles)
	case "report":
		content.Articles = s.extractReport(doc, cfg, pageURL)
	default:
		content.Trends = s.extractTrends(doc, cfg)
		content.Articles = s.extractArticles(doc, cfg, pageURL)
		if len(content.Articles) > 0 {
			content.Sentiment = summarizeSentiment(content.Articles)
		}
	}
	content.Insights = synthesizeInsights(content.Trends, content.Articles)

	var populated int
	if len(content.Trends) > 0 {
		populated++
	}
	if len(content.Articles) > 0 {
		populated++
	}
	coverage := extract.Coverage(populated, 2)

	s.logger.Debug("market scrape complete",
		zap.String("url", pageURL),
		zap.String("source_kind", kind),
		zap.Int("trends", len(content.Trends)),
		zap.Int("articles", len(content.Articles)),
		zap.Float64("coverage", coverage),
	)

	return &Result{
		Title:   extract.Text(doc, "title"),
		Content: content,
		Metadata: map[string]any{
			"source_kind": kind,
			"trends":      len(content.Trends),
			"articles":    len(content.Articles),
		},
		Coverage: coverage,
	}, nil
}

func (s *MarketIntelligenceScraper) extractTrends(doc *goquery.Document, cfg map[string]string) []Trend {
	var trends []Trend
	doc.Find(selectorOr(cfg, "trend", marketDefaults["trend"])).Each(func(_ int, el *goquery.Selection) {
		keyword := strings.TrimSpace(el.Find(selectorOr(cfg, "keyword", marketDefaults["keyword"])).First().Text())
		if keyword == "" {
			return
		}
		change := parsePercent(el.Find(selectorOr(cfg, "change", marketDefaults["change"])).First().Text())
		trends = append(trends, Trend{
			Keyword:      keyword,
			SearchVolume: extract.Count(el.Find(selectorOr(cfg, "volume", marketDefaults["volume"])).First().Text()),
			Change:       change,
			Direction:    classifyDirection(change),
		})
	})
	return trends
}

func (s *MarketIntelligenceScraper) extractArticles(doc *goquery.Document, cfg map[string]string, pageURL string) []Article {
	var articles []Article
	doc.Find(selectorOr(cfg, "article", marketDefaults["article"])).EachWithBreak(func(i int, el *goquery.Selection) bool {
		if i >= maxArticles {
			return false
		}
		title := strings.TrimSpace(el.Find(selectorOr(cfg, "title", marketDefaults["title"])).First().Text())
		if title == "" {
			return true
		}
		summary := strings.TrimSpace(el.Find(selectorOr(cfg, "summary", marketDefaults["summary"])).First().Text())
		link, _ := el.Find(selectorOr(cfg, "link", marketDefaults["link"])).First().Attr("href")

		articles = append(articles, Article{
			Title:     title,
			Summary:   summary,
			Source:    strings.TrimSpace(el.Find(selectorOr(cfg, "source", marketDefaults["source"])).First().Text()),
			URL:       link,
			Published: parsePublished(el.Find(selectorOr(cfg, "published", marketDefaults["published"])).First()),
			Sentiment: extract.Sentiment(title + " " + summary),
			Relevance: extract.Relevance(title, summary),
		})
		return true
	})
	return articles
}

// extractReport treats an industry report page as a single article so
// downstream sentiment and insight synthesis apply uniformly.
func (s *MarketIntelligenceScraper) extractReport(doc *goquery.Document, cfg map[string]string, pageURL string) []Article {
	title := extract.Text(doc, selectorOr(cfg, "report_title", marketDefaults["report_title"]))
	body := extract.Text(doc, selectorOr(cfg, "report_body", marketDefaults["report_body"]))
	if title == "" && body == "" {
		return nil
	}
	if len(body) > 500 {
		body = body[:500]
	}
	return []Article{{
		Title:     title,
		Summary:   body,
		URL:       pageURL,
		Published: time.Now().UTC(),
		Sentiment: extract.Sentiment(title + " " + body),
		Relevance: extract.Relevance(title, body),
	}}
}

// parsePercent pulls a signed percentage out of text like "+12%" or
// "-3.5 %", returning 0 when nothing parses.
func parsePercent(text string) float64 {
	cleaned := strings.TrimSpace(strings.ReplaceAll(text, "%", ""))
	cleaned = strings.TrimPrefix(cleaned, "+")
	v, err := strconv.ParseFloat(strings.TrimSpace(cleaned), 64)
	if err != nil {
		return 0
	}
	return v
}

func classifyDirection(change float64) string {
	switch {
	case change > 5:
		return "up"
	case change < -5:
		return "down"
	default:
		return "stable"
	}
}

// parsePublished best-effort parses a date from a time element's
// datetime attribute or text, defaulting to now on failure.
func parsePublished(sel *goquery.Selection) time.Time {
	candidates := []string{}
	if dt, ok := sel.Attr("datetime"); ok {
		candidates = append(candidates, dt)
	}
	candidates = append(candidates, strings.TrimSpace(sel.Text()))

	layouts := []string{
		time.RFC3339,
		"2006-01-02",
		"Jan 2, 2006",
		"January 2, 2006",
		"02 Jan 2006",
	}
	for _, c := range candidates {
		for _, layout := range layouts {
			if t, err := time.Parse(layout, c); err == nil {
				return t
			}
		}
	}
	return time.Now().UTC()
}

func summarizeSentiment(articles []Article) *SentimentSummary {
	if len(articles) == 0 {
		return nil
	}
	var pos, neg, neu int
	for _, a := range articles {
		switch a.Sentiment {
		case "positive":
			pos++
		case "negative":
			neg++
		default:
			neu++
		}
	}
	total := float64(len(articles))
	return &SentimentSummary{
		Overall:     float64(pos-neg) / total,
		PositivePct: float64(pos) / total * 100,
		NegativePct: float64(neg) / total * 100,
		NeutralPct:  float64(neu) / total * 100,
	}
}

func synthesizeInsights(trends []Trend, articles []Article) *Insights {
	if len(trends) == 0 && len(articles) == 0 {
		return nil
	}
	ins := &Insights{}
	for _, t := range trends {
		switch t.Direction {
		case "up":
			if len(ins.GrowingTopics) < maxInsightItems {
				ins.GrowingTopics = append(ins.GrowingTopics, t.Keyword)
			}
		case "down":
			if len(ins.DecliningTopics) < maxInsightItems {
				ins.DecliningTopics = append(ins.DecliningTopics, t.Keyword)
			}
		}
	}
	for _, a := range articles {
		if a.Relevance <= relevanceThreshold {
			continue
		}
		switch a.Sentiment {
		case "positive":
			if len(ins.EmergingOpportunities) < maxInsightItems {
				ins.EmergingOpportunities = append(ins.EmergingOpportunities, truncateWords(a.Title, 3))
			}
		case "negative":
			if len(ins.PotentialThreats) < maxInsightItems {
				ins.PotentialThreats = append(ins.PotentialThreats, truncateWords(a.Title, 3))
			}
		}
	}
	return ins
}

func truncateWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) <= n {
		return text
	}
	return strings.Join(words[:n], " ") + "..."
}
