package sources

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadgen/internal/common"
	"github.com/ternarybob/leadgen/internal/models"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout is the default HTTP timeout for listing fetches
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second)
	DefaultRateLimit = 2

	// DefaultMaxResults caps listings per search when not configured
	DefaultMaxResults = 50

	// maxAttempts is the number of tries per search request
	maxAttempts = 3

	defaultUserAgent = "leadgen/1.0"
)

// WebProvider fetches listings from one configured listing site by
// scraping its search results with CSS selectors.
type WebProvider struct {
	config     common.SourceConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     arbor.ILogger
}

// NewWebProvider creates a provider for one source configuration
func NewWebProvider(config common.SourceConfig, logger arbor.ILogger) *WebProvider {
	rateLimit := config.RateLimit
	if rateLimit <= 0 {
		rateLimit = DefaultRateLimit
	}

	return &WebProvider{
		config: config,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(rateLimit), rateLimit),
		logger:  logger,
	}
}

// Name returns the configured source name
func (p *WebProvider) Name() string {
	return p.config.Name
}

// Search fetches listings for a search term, honoring the source's
// rate limit and retrying transient failures.
func (p *WebProvider) Search(ctx context.Context, term string, filters models.LeadFilters) ([]models.Listing, error) {
	searchURL := p.buildURL(term, filters)

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			// Exponential backoff with jitter
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			backoff += time.Duration(rand.Int63n(int64(500 * time.Millisecond)))

			p.logger.Warn().
				Str("source", p.config.Name).
				Int("attempt", attempt+1).
				Dur("backoff", backoff).
				Err(lastErr).
				Msg("Retrying source fetch")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		// Wait for rate limiter
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait failed: %w", err)
		}

		listings, err := p.fetch(ctx, searchURL)
		if err == nil {
			p.logger.Debug().
				Str("source", p.config.Name).
				Str("term", term).
				Int("count", len(listings)).
				Msg("Source fetch completed")
			return listings, nil
		}

		lastErr = err
		if !isRetryable(err) {
			break
		}
	}

	return nil, fmt.Errorf("source %s failed: %w", p.config.Name, lastErr)
}

// buildURL expands the configured URL template with the search term
// and location filter
func (p *WebProvider) buildURL(term string, filters models.LeadFilters) string {
	searchURL := p.config.URL
	searchURL = strings.ReplaceAll(searchURL, "{query}", url.QueryEscape(term))
	searchURL = strings.ReplaceAll(searchURL, "{location}", url.QueryEscape(filters.Location))
	return searchURL
}

// statusError marks HTTP failures so retry logic can tell transient
// from permanent
type statusError struct {
	statusCode int
	url        string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.statusCode, e.url)
}

func isRetryable(err error) bool {
	if se, ok := err.(*statusError); ok {
		return se.statusCode == http.StatusTooManyRequests || se.statusCode >= 500
	}
	// Network errors are worth a retry
	return true
}

// fetch performs one request and parses listings from the response
func (p *WebProvider) fetch(ctx context.Context, searchURL string) ([]models.Listing, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	userAgent := p.config.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{statusCode: resp.StatusCode, url: searchURL}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return p.parseListings(doc), nil
}

// parseListings applies the configured selectors to the document
func (p *WebProvider) parseListings(doc *goquery.Document) []models.Listing {
	sel := p.config.Selectors

	maxResults := p.config.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	var listings []models.Listing
	doc.Find(sel.Item).EachWithBreak(func(i int, item *goquery.Selection) bool {
		if len(listings) >= maxResults {
			return false
		}

		listing := models.Listing{
			SourceName: p.config.Name,
			Name:       textOf(item, sel.Name),
			Email:      textOf(item, sel.Email),
			Phone:      textOf(item, sel.Phone),
			PriceText:  textOf(item, sel.Price),
			Location:   textOf(item, sel.Location),
			Property:   textOf(item, sel.PropertyType),
		}

		if sel.Link != "" {
			if href, ok := item.Find(sel.Link).First().Attr("href"); ok {
				listing.URL = href
			}
		}

		// A listing with no name is noise
		if listing.Name == "" {
			return true
		}

		listings = append(listings, listing)
		return true
	})

	return listings
}

func textOf(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(s.Find(selector).First().Text())
}
