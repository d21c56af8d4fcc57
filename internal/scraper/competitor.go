package scraper

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/user/webintel-service/internal/extract"
	"github.com/user/webintel-service/internal/fetch"
)

// Product is one extracted product listing.
type Product struct {
	Name        string   `json:"name"`
	Price       *float64 `json:"price,omitempty"`
	Currency    string   `json:"currency"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category,omitempty"`
	InStock     bool     `json:"in_stock"`
	Rating      string   `json:"rating,omitempty"`
	ReviewCount int64    `json:"review_count"`
	ImageURL    string   `json:"image_url,omitempty"`
	ProductURL  string   `json:"product_url,omitempty"`
}

// PriceRange is the min/max over all products with a parsed price.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// CompetitorContent is the structured payload of a competitor scrape.
type CompetitorContent struct {
	Products      []Product   `json:"products"`
	TotalProducts int         `json:"total_products"`
	AveragePrice  float64     `json:"average_price"`
	PriceRange    *PriceRange `json:"price_range,omitempty"`
}

var competitorDefaults = map[string]string{
	"product":     ".product, .product-item, [data-product]",
	"name":        ".product-name, .product-title, h2, h3",
	"price":       ".price, .product-price, [data-price]",
	"description": ".description, .product-description",
	"category":    ".category, .product-category",
	"stock":       ".stock, .availability, .in-stock",
	"rating":      ".rating, .stars, [data-rating]",
	"reviews":     ".reviews, .review-count",
	"image":       "img",
	"link":        "a",
}

// CompetitorScraper extracts product listings, prices and availability
// from competitor catalog pages.
type CompetitorScraper struct {
	client *fetch.Client
	logger *zap.Logger
}

// NewCompetitorScraper creates a competitor scraper using the given
// fetch client.
func NewCompetitorScraper(client *fetch.Client, logger *zap.Logger) *CompetitorScraper {
	return &CompetitorScraper{client: client, logger: logger}
}

// Scrape fetches a competitor page and builds a CompetitorContent
// payload. A missing field never aborts the scrape; helpers degrade to
// empty values and the result's coverage reflects how much was found.
func (s *CompetitorScraper) Scrape(ctx context.Context, pageURL string, cfg map[string]string) (*Result, error) {
	doc, err := s.client.FetchPage(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	base, _ := url.Parse(pageURL)

	var products []Product
	var populated, expected int
	doc.Find(selectorOr(cfg, "product", competitorDefaults["product"])).Each(func(_ int, el *goquery.Selection) {
		p, fieldsFound := s.extractProduct(el, cfg, base)
		if p == nil {
			return
		}
		products = append(products, *p)
		populated += fieldsFound
		expected += 8
	})

	content := CompetitorContent{
		Products:      products,
		TotalProducts: len(products),
	}

	var sum float64
	var priced int
	for _, p := range products {
		if p.Price == nil {
			continue
		}
		if priced == 0 {
			content.PriceRange = &PriceRange{Min: *p.Price, Max: *p.Price}
		} else {
			if *p.Price < content.PriceRange.Min {
				content.PriceRange.Min = *p.Price
			}
			if *p.Price > content.PriceRange.Max {
				content.PriceRange.Max = *p.Price
			}
		}
		sum += *p.Price
		priced++
	}
	if priced > 0 {
		content.AveragePrice = sum / float64(priced)
	}

	coverage := extract.Coverage(populated, expected)
	s.logger.Debug("competitor scrape complete",
		zap.String("url", pageURL),
		zap.Int("products", len(products)),
		zap.Float64("coverage", coverage),
	)

	return &Result{
		Title:   extract.Text(doc, "title"),
		Content: content,
		Metadata: map[string]any{
			"total_products": content.TotalProducts,
			"average_price":  content.AveragePrice,
		},
		Coverage: coverage,
	}, nil
}

func (s *CompetitorScraper) extractProduct(el *goquery.Selection, cfg map[string]string, base *url.URL) (*Product, int) {
	name := strings.TrimSpace(el.Find(selectorOr(cfg, "name", competitorDefaults["name"])).First().Text())
	if name == "" {
		return nil, 0
	}

	priceText := strings.TrimSpace(el.Find(selectorOr(cfg, "price", competitorDefaults["price"])).First().Text())
	stockText := strings.ToLower(strings.TrimSpace(el.Find(selectorOr(cfg, "stock", competitorDefaults["stock"])).First().Text()))

	p := Product{
		Name:        name,
		Price:       extract.Price(priceText),
		Currency:    extract.Currency(priceText),
		Description: strings.TrimSpace(el.Find(selectorOr(cfg, "description", competitorDefaults["description"])).First().Text()),
		Category:    strings.TrimSpace(el.Find(selectorOr(cfg, "category", competitorDefaults["category"])).First().Text()),
		InStock:     !strings.Contains(stockText, "out") && !strings.Contains(stockText, "unavailable"),
		Rating:      strings.TrimSpace(el.Find(selectorOr(cfg, "rating", competitorDefaults["rating"])).First().Text()),
		ReviewCount: extract.Count(el.Find(selectorOr(cfg, "reviews", competitorDefaults["reviews"])).First().Text()),
	}

	if src, ok := el.Find(selectorOr(cfg, "image", competitorDefaults["image"])).First().Attr("src"); ok {
		p.ImageURL = resolveURL(base, src)
	}
	if href, ok := el.Find(selectorOr(cfg, "link", competitorDefaults["link"])).First().Attr("href"); ok {
		p.ProductURL = resolveURL(base, href)
	}

	found := 1 // name
	for _, present := range []bool{
		p.Price != nil,
		p.Description != "",
		p.Category != "",
		stockText != "",
		p.Rating != "",
		p.ImageURL != "",
		p.ProductURL != "",
	} {
		if present {
			found++
		}
	}
	return &p, found
}

// resolveURL resolves ref against base, returning ref unchanged when
// either side does not parse.
func resolveURL(base *url.URL, ref string) string {
	if base == nil {
		return ref
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(parsed).String()
}
