package scraper

import (
	"context"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/user/webintel-service/internal/extract"
	"github.com/user/webintel-service/internal/fetch"
)

const (
	maxPosts       = 10
	maxPostContent = 200
	maxTopHashtags = 10
)

// Post is one extracted social media post.
type Post struct {
	Content  string   `json:"content"`
	Likes    int64    `json:"likes"`
	Comments int64    `json:"comments"`
	Shares   int64    `json:"shares"`
	Hashtags []string `json:"hashtags,omitempty"`
	Mentions []string `json:"mentions,omitempty"`
}

// HashtagCount is a hashtag with its usage frequency across posts.
type HashtagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// SocialContent is the structured payload of a social media scrape.
type SocialContent struct {
	Platform        string         `json:"platform"`
	Followers       int64          `json:"followers"`
	Following       int64          `json:"following"`
	Posts           []Post         `json:"posts"`
	TotalEngagement int64          `json:"total_engagement"`
	AvgEngagement   float64        `json:"avg_engagement"`
	EngagementRate  float64        `json:"engagement_rate"`
	TopHashtags     []HashtagCount `json:"top_hashtags,omitempty"`
}

type selectorSet struct {
	followers string
	following string
	post      string
	content   string
	likes     string
	comments  string
	shares    string
}

var genericSocialSelectors = selectorSet{
	followers: ".followers, [data-followers], .follower-count",
	following: ".following, [data-following]",
	post:      ".post, article, [data-post]",
	content:   ".post-content, .caption, p",
	likes:     ".likes, [data-likes], .like-count",
	comments:  ".comments, [data-comments], .comment-count",
	shares:    ".shares, [data-shares], .share-count",
}

var platformSelectors = map[string]selectorSet{
	"instagram": {
		followers: "header section ul li:nth-child(2) span",
		following: "header section ul li:nth-child(3) span",
		post:      "article div div div div a",
		content:   "img[alt]",
		likes:     "section span",
		comments:  "ul li",
	},
	"twitter": {
		followers: "a[href$='/followers'] span",
		following: "a[href$='/following'] span",
		post:      "article[data-testid='tweet']",
		content:   "div[data-testid='tweetText']",
		likes:     "div[data-testid='like'] span",
		comments:  "div[data-testid='reply'] span",
		shares:    "div[data-testid='retweet'] span",
	},
	"linkedin": {
		followers: ".org-top-card-summary-info-list__info-item",
		post:      ".feed-shared-update-v2",
		content:   ".feed-shared-text",
		likes:     ".social-details-social-counts__reactions-count",
		comments:  ".social-details-social-counts__comments",
	},
	"facebook": genericSocialSelectors,
	"tiktok": {
		followers: "[data-e2e='followers-count']",
		following: "[data-e2e='following-count']",
		post:      "[data-e2e='user-post-item']",
		content:   "[data-e2e='user-post-item-desc']",
		likes:     "[data-e2e='like-count']",
		comments:  "[data-e2e='comment-count']",
	},
	"youtube": {
		followers: "#subscriber-count",
		post:      "ytd-grid-video-renderer",
		content:   "#video-title",
		likes:     "#metadata-line span",
	},
}

// SocialMediaScraper extracts profile metrics and recent posts from
// social media pages, with per-platform selector sets.
type SocialMediaScraper struct {
	client *fetch.Client
	logger *zap.Logger
}

// NewSocialMediaScraper creates a social media scraper using the given
// fetch client.
func NewSocialMediaScraper(client *fetch.Client, logger *zap.Logger) *SocialMediaScraper {
	return &SocialMediaScraper{client: client, logger: logger}
}

// DetectPlatform picks the platform from URL substring matching.
func DetectPlatform(pageURL string) string {
	lower := strings.ToLower(pageURL)
	switch {
	case strings.Contains(lower, "instagram"):
		return "instagram"
	case strings.Contains(lower, "facebook"):
		return "facebook"
	case strings.Contains(lower, "twitter"), strings.Contains(lower, "x.com"):
		return "twitter"
	case strings.Contains(lower, "linkedin"):
		return "linkedin"
	case strings.Contains(lower, "tiktok"):
		return "tiktok"
	case strings.Contains(lower, "youtube"):
		return "youtube"
	default:
		return "unknown"
	}
}

// Scrape fetches a profile page and builds a SocialContent payload.
func (s *SocialMediaScraper) Scrape(ctx context.Context, pageURL string, cfg map[string]string) (*Result, error) {
	doc, err := s.client.FetchPage(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	platform := DetectPlatform(pageURL)
	sel, ok := platformSelectors[platform]
	if !ok {
		sel = genericSocialSelectors
	}

	content := SocialContent{
		Platform:  platform,
		Followers: extract.Count(extract.Text(doc, selectorOr(cfg, "followers", sel.followers))),
		Following: extract.Count(extract.Text(doc, selectorOr(cfg, "following", sel.following))),
	}

	hashtagFreq := make(map[string]int)
	doc.Find(selectorOr(cfg, "post", sel.post)).EachWithBreak(func(i int, el *goquery.Selection) bool {
		if i >= maxPosts {
			return false
		}
		text := strings.TrimSpace(el.Find(selectorOr(cfg, "content", sel.content)).First().Text())
		if len(text) > maxPostContent {
			text = text[:maxPostContent]
		}
		post := Post{
			Content:  text,
			Likes:    extract.Count(el.Find(selectorOr(cfg, "likes", sel.likes)).First().Text()),
			Comments: extract.Count(el.Find(selectorOr(cfg, "comments", sel.comments)).First().Text()),
			Hashtags: extract.Hashtags(text),
			Mentions: extract.Mentions(text),
		}
		if sel.shares != "" {
			post.Shares = extract.Count(el.Find(selectorOr(cfg, "shares", sel.shares)).First().Text())
		}
		for _, tag := range post.Hashtags {
			hashtagFreq[strings.ToLower(tag)]++
		}
		content.Posts = append(content.Posts, post)
		return true
	})

	for _, p := range content.Posts {
		content.TotalEngagement += p.Likes + p.Comments + p.Shares
	}
	if n := len(content.Posts); n > 0 {
		content.AvgEngagement = float64(content.TotalEngagement) / float64(n)
	}
	if content.Followers > 0 {
		content.EngagementRate = content.AvgEngagement / float64(content.Followers) * 100
	}
	content.TopHashtags = topHashtags(hashtagFreq, maxTopHashtags)

	var populated int
	if content.Followers > 0 {
		populated++
	}
	if content.Following > 0 {
		populated++
	}
	if len(content.Posts) > 0 {
		populated++
	}
	coverage := extract.Coverage(populated, 3)

	s.logger.Debug("social scrape complete",
		zap.String("url", pageURL),
		zap.String("platform", platform),
		zap.Int("posts", len(content.Posts)),
		zap.Float64("coverage", coverage),
	)

	return &Result{
		Title:   extract.Text(doc, "title"),
		Content: content,
		Metadata: map[string]any{
			"platform":        platform,
			"followers":       content.Followers,
			"posts":           len(content.Posts),
			"engagement_rate": content.EngagementRate,
		},
		Coverage: coverage,
	}, nil
}

func topHashtags(freq map[string]int, limit int) []HashtagCount {
	out := make([]HashtagCount, 0, len(freq))
	for tag, count := range freq {
		out = append(out, HashtagCount{Tag: tag, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tag < out[j].Tag
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
