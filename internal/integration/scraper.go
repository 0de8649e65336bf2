// Package integration handles external service interactions
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/abelzeko/water-watcher/internal/entities"
)

// DefaultUserAgent identifies the pipeline to upstream sites
const DefaultUserAgent = "WaterWatcher/1.0 (river condition tracker)"

const maxBodySize = 10 << 20

// Scraper fetches one upstream source and returns normalised items
type Scraper interface {
	Name() string
	Scrape(ctx context.Context) ([]entities.ScrapedItem, error)
}

// GaugeLister lists the USGS gauge ids of tracked rivers
type GaugeLister interface {
	ListGaugeIDs(ctx context.Context) ([]string, error)
}

// ReachLister lists the American Whitewater reach ids of tracked rivers
type ReachLister interface {
	ListAWIDs(ctx context.Context) ([]string, error)
}

// RiverLister lists every tracked river
type RiverLister interface {
	ListAll(ctx context.Context) ([]entities.River, error)
}

// DealURLChecker reports whether a listing URL is already stored
type DealURLChecker interface {
	ExistsURL(ctx context.Context, url string) (bool, error)
}

// StatusError is returned when an upstream answers with a non-2xx status
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d from %s", e.Code, e.URL)
}

// StatusCode extracts the HTTP status from err, or 0 when err is not a StatusError
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// HTTPClient is the shared upstream client: request pacing, a circuit
// breaker per source, and a bounded response size.
type HTTPClient struct {
	name      string
	client    *http.Client
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker[[]byte]
	userAgent string
	log       *zap.Logger
}

// ClientOption customises an HTTPClient
type ClientOption func(*HTTPClient)

// WithUserAgent overrides the default User-Agent
func WithUserAgent(ua string) ClientOption {
	return func(c *HTTPClient) {
		c.userAgent = ua
	}
}

// WithHTTPClient swaps the underlying http.Client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = hc
	}
}

// NewHTTPClient creates a client for one source. delay is the minimum gap
// between requests; zero disables pacing.
func NewHTTPClient(name string, timeout, delay time.Duration, log *zap.Logger, opts ...ClientOption) *HTTPClient {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}

	c := &HTTPClient{
		name:      name,
		client:    &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(limit, 1),
		userAgent: DefaultUserAgent,
		log:       log.With(zap.String("source", name)),
	}

	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// 4xx answers mean the upstream is alive
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			code := StatusCode(err)
			return code >= 400 && code < 500
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn("Circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the source this client serves
func (c *HTTPClient) Name() string {
	return c.name
}

// Get fetches url and returns the body of a 2xx response
func (c *HTTPClient) Get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	return c.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		c.log.Debug("Sending HTTP request", zap.String("url", url))
		res, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
		}
		defer res.Body.Close()

		if res.StatusCode < 200 || res.StatusCode > 299 {
			io.Copy(io.Discard, io.LimitReader(res.Body, maxBodySize))
			return nil, &StatusError{URL: url, Code: res.StatusCode}
		}

		body, err := io.ReadAll(io.LimitReader(res.Body, maxBodySize))
		if err != nil {
			return nil, fmt.Errorf("failed to read response from %s: %w", url, err)
		}
		return body, nil
	})
}

// GetJSON fetches url and decodes the JSON body into v
func (c *HTTPClient) GetJSON(ctx context.Context, url string, headers map[string]string, v any) error {
	body, err := c.Get(ctx, url, headers)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", url, err)
	}
	return nil
}

// GetDocument fetches url and parses it as HTML
func (c *HTTPClient) GetDocument(ctx context.Context, url string, headers map[string]string) (*goquery.Document, error) {
	body, err := c.Get(ctx, url, headers)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse the webpage: %w", err)
	}
	return doc, nil
}

var whitespace = regexp.MustCompile(`\s+`)

// CleanHTML strips markup and collapses whitespace
func CleanHTML(s string) string {
	if !strings.Contains(s, "<") {
		return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	doc.Find("br, p, div, li").Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml(" ")
	})
	return strings.TrimSpace(whitespace.ReplaceAllString(doc.Text(), " "))
}

// parseNumber parses a reading such as "1,250" or " 3.4 "
func parseNumber(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func floatPtr(f float64) *float64 {
	return &f
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var riverNamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\s+River\b`),
	regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\s+Creek\b`),
	regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\s+Canyon\b`),
	regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\s+Fork\b`),
}

// ExtractRiverName finds the first "Name River|Creek|Canyon|Fork" phrase in
// the given texts, trying each pattern over all of them before the next
func ExtractRiverName(texts ...string) string {
	combined := strings.TrimSpace(strings.Join(texts, " "))
	if combined == "" {
		return ""
	}
	for _, p := range riverNamePatterns {
		if m := p.FindString(combined); m != "" {
			return strings.TrimSpace(m)
		}
	}
	return ""
}

type keywordRule struct {
	keyword string
	value   string
}

// classify returns the value of the first rule whose keyword appears in text
func classify(text string, rules []keywordRule, fallback string) string {
	text = strings.ToLower(text)
	for _, r := range rules {
		if strings.Contains(text, r.keyword) {
			return r.value
		}
	}
	return fallback
}

var (
	dangerKeywords  = []string{"closed", "closure", "flood", "emergency", "evacuate", "dangerous"}
	warningKeywords = []string{"warning", "caution", "advisory", "fire", "high water", "restricted"}
)

// advisorySeverity grades a land agency notice by its wording
func advisorySeverity(title, description string) string {
	text := strings.ToLower(title + " " + description)
	for _, k := range dangerKeywords {
		if strings.Contains(text, k) {
			return entities.SeverityDanger
		}
	}
	for _, k := range warningKeywords {
		if strings.Contains(text, k) {
			return entities.SeverityWarning
		}
	}
	return entities.SeverityInfo
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	"01/02/2006",
}

// ParseDate accepts the date formats agency feeds use and returns UTC
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
