package integration

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/abelzeko/water-watcher/internal/entities"
)

// USFS alert types
const (
	AlertTypeClosure             = "closure"
	AlertTypeTrailClosure        = "trail_closure"
	AlertTypeFloodWarning        = "flood_warning"
	AlertTypeSeasonalRestriction = "seasonal_restriction"
	AlertTypeCampgroundStatus    = "campground_status"
	AlertTypeFireRestriction     = "fire_restriction"
)

var usfsTypeRules = []keywordRule{
	{"closure", AlertTypeClosure},
	{"closed", AlertTypeClosure},
	{"trail closure", AlertTypeTrailClosure},
	{"trail closed", AlertTypeTrailClosure},
	{"flood", AlertTypeFloodWarning},
	{"flood warning", AlertTypeFloodWarning},
	{"high water", AlertTypeFloodWarning},
	{"seasonal", AlertTypeSeasonalRestriction},
	{"winter", AlertTypeSeasonalRestriction},
	{"campground", AlertTypeCampgroundStatus},
	{"camp", AlertTypeCampgroundStatus},
	{"fire", AlertTypeFireRestriction},
	{"burn", AlertTypeFireRestriction},
	{"restriction", AlertTypeSeasonalRestriction},
}

// USFSScraper reads Forest Service alerts for river facilities and
// recreation areas from the RIDB API
type USFSScraper struct {
	client  *HTTPClient
	baseURL string
	apiKey  string
	log     *zap.Logger
	now     func() time.Time
}

// NewUSFSScraper creates a RIDB scraper. Without an API key it does nothing.
func NewUSFSScraper(client *HTTPClient, baseURL, apiKey string, log *zap.Logger) *USFSScraper {
	return &USFSScraper{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		log:     log.With(zap.String("source", entities.SourceUSFS)),
		now:     time.Now,
	}
}

// Name implements Scraper
func (s *USFSScraper) Name() string {
	return entities.SourceUSFS
}

type ridbList struct {
	RecData []map[string]any `json:"RECDATA"`
}

func (s *USFSScraper) headers() map[string]string {
	return map[string]string{
		"Accept": "application/json",
		"apikey": s.apiKey,
	}
}

// Scrape implements Scraper
func (s *USFSScraper) Scrape(ctx context.Context) ([]entities.ScrapedItem, error) {
	if s.apiKey == "" {
		s.log.Warn("RIDB_API_KEY not configured, skipping USFS scraper")
		return nil, nil
	}
	s.log.Info("Starting scraper")

	items := s.fetchFacilityAlerts(ctx)
	items = append(items, s.fetchRecAreaAlerts(ctx)...)

	s.log.Info("Scraper finished", zap.Int("items", len(items)))
	return items, ctx.Err()
}

func (s *USFSScraper) fetchFacilityAlerts(ctx context.Context) []entities.ScrapedItem {
	q := url.Values{}
	q.Set("query", "river")
	q.Set("activity", "WHITEWATER RAFTING,KAYAKING,CANOEING")
	q.Set("limit", "50")
	q.Set("offset", "0")

	var facilities ridbList
	if err := s.client.GetJSON(ctx, s.baseURL+"/facilities?"+q.Encode(), s.headers(), &facilities); err != nil {
		s.log.Warn("RIDB facilities fetch failed", zap.Error(err))
		return nil
	}

	var items []entities.ScrapedItem
	for _, facility := range facilities.RecData {
		id := firstString(facility, "FacilityID")
		if id == "" {
			continue
		}
		name := firstString(facility, "FacilityName")
		river := ExtractRiverName(name)
		if river == "" {
			river = ExtractRiverName(firstString(facility, "FacilityDescription"))
		}
		items = append(items, s.fetchAlerts(ctx, fmt.Sprintf("/facilities/%s/alerts", id), name, river)...)
	}
	return items
}

func (s *USFSScraper) fetchRecAreaAlerts(ctx context.Context) []entities.ScrapedItem {
	q := url.Values{}
	q.Set("query", "river")
	q.Set("limit", "50")
	q.Set("offset", "0")

	var areas ridbList
	if err := s.client.GetJSON(ctx, s.baseURL+"/recareas?"+q.Encode(), s.headers(), &areas); err != nil {
		s.log.Warn("RIDB rec areas fetch failed", zap.Error(err))
		return nil
	}

	var items []entities.ScrapedItem
	for _, area := range areas.RecData {
		id := firstString(area, "RecAreaID")
		if id == "" {
			continue
		}
		name := firstString(area, "RecAreaName")
		items = append(items, s.fetchAlerts(ctx, fmt.Sprintf("/recareas/%s/alerts", id), name, ExtractRiverName(name))...)
	}
	return items
}

func (s *USFSScraper) fetchAlerts(ctx context.Context, path, placeName, river string) []entities.ScrapedItem {
	var alerts ridbList
	if err := s.client.GetJSON(ctx, s.baseURL+path, s.headers(), &alerts); err != nil {
		s.log.Debug("Failed to fetch alerts", zap.String("path", path), zap.Error(err))
		return nil
	}

	var items []entities.ScrapedItem
	for _, alert := range alerts.RecData {
		if item, ok := s.parseAlert(alert, placeName, river); ok {
			items = append(items, item)
		}
	}
	return items
}

func (s *USFSScraper) parseAlert(alert map[string]any, placeName, river string) (entities.ScrapedItem, bool) {
	title := firstString(alert, "Title", "AlertTitle")
	description := firstString(alert, "Description", "AlertDescription")

	if river == "" {
		river = ExtractRiverName(title + " " + description + " " + placeName)
	}
	if river == "" {
		return entities.ScrapedItem{}, false
	}

	return entities.ScrapedItem{
		Source:    entities.SourceUSFS,
		SourceURL: firstString(alert, "URL", "AlertURL"),
		ScrapedAt: s.now().UTC(),
		Advisory: &entities.Advisory{
			RiverName:   river,
			Type:        classify(title+" "+description, usfsTypeRules, AdvisoryGeneral),
			Severity:    advisorySeverity(title, description),
			Title:       title,
			Description: description,
			Area:        placeName,
			StartDate:   ParseDate(firstString(alert, "StartDate", "AlertStartDate")),
			EndDate:     ParseDate(firstString(alert, "EndDate", "AlertEndDate")),
		},
	}, true
}
