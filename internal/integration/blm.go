package integration

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/abelzeko/water-watcher/internal/entities"
)

// Advisory types
const (
	AdvisoryClosure         = "closure"
	AdvisoryFireRestriction = "fire_restriction"
	AdvisoryWaterAdvisory   = "water_advisory"
	AdvisorySeasonalAccess  = "seasonal_access"
	AdvisoryPermitRequired  = "permit_required"
	AdvisoryGeneral         = "general"
)

var blmTypeRules = []keywordRule{
	{"closure", AdvisoryClosure},
	{"closed", AdvisoryClosure},
	{"fire", AdvisoryFireRestriction},
	{"fire restriction", AdvisoryFireRestriction},
	{"burn ban", AdvisoryFireRestriction},
	{"water", AdvisoryWaterAdvisory},
	{"water level", AdvisoryWaterAdvisory},
	{"flood", AdvisoryWaterAdvisory},
	{"high water", AdvisoryWaterAdvisory},
	{"seasonal", AdvisorySeasonalAccess},
	{"seasonal closure", AdvisorySeasonalAccess},
	{"winter closure", AdvisorySeasonalAccess},
	{"permit", AdvisoryPermitRequired},
}

// BLMScraper reads Bureau of Land Management river advisories from the
// alerts API and the alerts feed
type BLMScraper struct {
	client  *HTTPClient
	baseURL string
	parser  *gofeed.Parser
	log     *zap.Logger
	now     func() time.Time
}

// NewBLMScraper creates a BLM advisory scraper
func NewBLMScraper(client *HTTPClient, baseURL string, log *zap.Logger) *BLMScraper {
	return &BLMScraper{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		parser:  gofeed.NewParser(),
		log:     log.With(zap.String("source", entities.SourceBLM)),
		now:     time.Now,
	}
}

// Name implements Scraper
func (s *BLMScraper) Name() string {
	return entities.SourceBLM
}

var blmHeaders = map[string]string{"Accept": "application/json, application/xml, text/xml"}

// Scrape implements Scraper. Either endpoint failing is logged and the
// other is still read.
func (s *BLMScraper) Scrape(ctx context.Context) ([]entities.ScrapedItem, error) {
	s.log.Info("Starting scraper")

	items := s.fetchAlerts(ctx)
	items = append(items, s.fetchFeed(ctx)...)

	s.log.Info("Scraper finished", zap.Int("items", len(items)))
	return items, ctx.Err()
}

func (s *BLMScraper) fetchAlerts(ctx context.Context) []entities.ScrapedItem {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("activity", "whitewater,rafting,kayaking,river")
	q.Set("status", "active")

	var raw json.RawMessage
	if err := s.client.GetJSON(ctx, s.baseURL+"/api/alerts?"+q.Encode(), blmHeaders, &raw); err != nil {
		s.log.Warn("BLM API fetch failed", zap.Error(err))
		return nil
	}

	var alerts []map[string]any
	if err := json.Unmarshal(raw, &alerts); err != nil {
		var wrapped map[string]any
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			s.log.Warn("Unexpected BLM API payload", zap.Error(err))
			return nil
		}
		for _, key := range []string{"alerts", "results", "features"} {
			if list, ok := wrapped[key].([]any); ok {
				for _, a := range list {
					if m := asMap(a); m != nil {
						alerts = append(alerts, m)
					}
				}
				break
			}
		}
	}

	var items []entities.ScrapedItem
	for _, alert := range alerts {
		if item, ok := s.parseAlert(alert); ok {
			items = append(items, item)
		}
	}
	return items
}

// alertField reads key from the alert or its attributes object
func alertField(alert map[string]any, keys ...string) string {
	if v := firstString(alert, keys...); v != "" {
		return v
	}
	if attrs := asMap(alert["attributes"]); attrs != nil {
		return firstString(attrs, keys...)
	}
	return ""
}

func (s *BLMScraper) parseAlert(alert map[string]any) (entities.ScrapedItem, bool) {
	title := alertField(alert, "title", "name")
	description := alertField(alert, "description", "summary")
	area := alertField(alert, "area", "location", "area_name")

	river := ExtractRiverName(title, area, description)
	if river == "" {
		return entities.ScrapedItem{}, false
	}

	return entities.ScrapedItem{
		Source:    entities.SourceBLM,
		SourceURL: alertField(alert, "url", "link"),
		ScrapedAt: s.now().UTC(),
		Advisory: &entities.Advisory{
			RiverName:   river,
			Type:        classify(title+" "+description, blmTypeRules, AdvisoryGeneral),
			Severity:    advisorySeverity(title, description),
			Title:       title,
			Description: description,
			Area:        area,
			StartDate:   ParseDate(alertField(alert, "start_date", "startDate")),
			EndDate:     ParseDate(alertField(alert, "end_date", "endDate")),
		},
	}, true
}

func (s *BLMScraper) fetchFeed(ctx context.Context) []entities.ScrapedItem {
	body, err := s.client.Get(ctx, s.baseURL+"/rss/alerts.xml", blmHeaders)
	if err != nil {
		s.log.Warn("BLM RSS fetch failed", zap.Error(err))
		return nil
	}

	feed, err := s.parser.ParseString(string(body))
	if err != nil {
		s.log.Warn("Failed to parse BLM RSS", zap.Error(err))
		return nil
	}

	var items []entities.ScrapedItem
	for _, it := range feed.Items {
		if it.Title == "" {
			continue
		}
		description := it.Description
		river := ExtractRiverName(it.Title, description)
		if river == "" {
			continue
		}

		var start *time.Time
		switch {
		case it.PublishedParsed != nil:
			t := it.PublishedParsed.UTC()
			start = &t
		case it.UpdatedParsed != nil:
			t := it.UpdatedParsed.UTC()
			start = &t
		}

		items = append(items, entities.ScrapedItem{
			Source:    entities.SourceBLM,
			SourceURL: it.Link,
			ScrapedAt: s.now().UTC(),
			Advisory: &entities.Advisory{
				RiverName:   river,
				Type:        classify(it.Title+" "+description, blmTypeRules, AdvisoryGeneral),
				Severity:    advisorySeverity(it.Title, description),
				Title:       it.Title,
				Description: description,
				StartDate:   start,
			},
		})
	}
	return items
}
