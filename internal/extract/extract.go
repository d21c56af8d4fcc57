// Package extract provides stateless helpers for pulling text, numbers
// and simple signals out of a parsed document. Helpers never fail: a
// selector with no matches degrades to an empty value so a scrape with
// largely absent selectors still completes with sparse content.
package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Text returns the trimmed text of the first element matching selector.
func Text(doc *goquery.Document, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(doc.Find(selector).First().Text())
}

// Attr returns the named attribute of the first element matching selector.
func Attr(doc *goquery.Document, selector, name string) string {
	if selector == "" {
		return ""
	}
	val, _ := doc.Find(selector).First().Attr(name)
	return strings.TrimSpace(val)
}

// MultipleText returns the trimmed text of every element matching
// selector, skipping empty matches.
func MultipleText(doc *goquery.Document, selector string) []string {
	var out []string
	if selector == "" {
		return out
	}
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			out = append(out, t)
		}
	})
	return out
}

var priceRe = regexp.MustCompile(`[$€£¥₹₨]\s*(\d+(?:[.,]\d{3})*(?:\.\d+)?)|(\d+(?:[.,]\d{3})*(?:\.\d+)?)\s*[$€£¥₹₨]`)

// Price scans text for a currency symbol adjacent to a decimal number
// and returns the numeric value, or nil when no price is present.
func Price(text string) *float64 {
	m := priceRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	raw := m[1]
	if raw == "" {
		raw = m[2]
	}
	raw = strings.ReplaceAll(raw, ",", "")
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &v
}

var currencySymbols = map[string]string{
	"$": "USD",
	"€": "EUR",
	"£": "GBP",
	"¥": "JPY",
	"₹": "INR",
	"₨": "PKR",
}

// Currency infers a currency code from the symbol present in a price
// string, defaulting to USD.
func Currency(text string) string {
	for sym, code := range currencySymbols {
		if strings.Contains(text, sym) {
			return code
		}
	}
	return "USD"
}

var countRe = regexp.MustCompile(`([0-9]+(?:[.,][0-9]+)*)\s*([KkMmBb])?`)

// Count parses abbreviated magnitudes like "1.2K", "3M" or "1B" into
// whole numbers. Unparseable input yields 0.
func Count(text string) int64 {
	m := countRe.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	numeric := strings.ReplaceAll(m[1], ",", "")
	v, err := strconv.ParseFloat(numeric, 64)
	if err != nil {
		return 0
	}
	switch strings.ToUpper(m[2]) {
	case "K":
		v *= 1_000
	case "M":
		v *= 1_000_000
	case "B":
		v *= 1_000_000_000
	}
	return int64(v)
}

var (
	hashtagRe = regexp.MustCompile(`#(\w+)`)
	mentionRe = regexp.MustCompile(`@(\w+)`)
)

// Hashtags extracts #word tokens from text, without the leading '#'.
func Hashtags(text string) []string {
	return tokenMatches(hashtagRe, text)
}

// Mentions extracts @word tokens from text, without the leading '@'.
func Mentions(text string) []string {
	return tokenMatches(mentionRe, text)
}

func tokenMatches(re *regexp.Regexp, text string) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		out = append(out, m[1])
	}
	return out
}

var (
	positiveWords = []string{
		"good", "great", "excellent", "positive", "growth", "success",
		"win", "strong", "rise", "gain", "boost", "improve",
	}
	negativeWords = []string{
		"bad", "poor", "negative", "decline", "loss", "fail",
		"weak", "fall", "drop", "crisis", "risk", "concern",
	}
)

// Sentiment classifies text as "positive", "negative" or "neutral" by
// counting occurrences of two small fixed keyword lists. This is a
// coarse heuristic, not a statistical classifier.
func Sentiment(text string) string {
	lower := strings.ToLower(text)
	var pos, neg int
	for _, w := range positiveWords {
		pos += strings.Count(lower, w)
	}
	for _, w := range negativeWords {
		neg += strings.Count(lower, w)
	}
	switch {
	case pos > neg:
		return "positive"
	case neg > pos:
		return "negative"
	default:
		return "neutral"
	}
}

var marketingKeywords = []string{
	"marketing", "advertising", "campaign", "brand", "digital",
	"social media", "seo", "content", "engagement", "conversion",
	"analytics", "audience", "strategy", "roi", "ecommerce",
}

// Relevance scores how relevant a title plus summary is to marketing
// topics: the fraction of a fixed keyword list present in the combined
// text, scaled to 0-100.
func Relevance(title, summary string) float64 {
	combined := strings.ToLower(title + " " + summary)
	var hits int
	for _, kw := range marketingKeywords {
		if strings.Contains(combined, kw) {
			hits++
		}
	}
	return float64(hits) / float64(len(marketingKeywords)) * 100
}

// Coverage reports the fraction of expected fields that were actually
// populated by a scrape, scaled 0-1. It makes silent best-effort
// degradation observable.
func Coverage(populated, expected int) float64 {
	if expected <= 0 {
		return 0
	}
	return float64(populated) / float64(expected)
}
