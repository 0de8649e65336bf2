package integration

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/abelzeko/water-watcher/internal/entities"
)

// USGS parameter codes
const (
	paramDischarge   = "00060" // cfs
	paramGaugeHeight = "00065" // ft
	paramWaterTemp   = "00010" // °C
)

const usgsSiteURL = "https://waterdata.usgs.gov/nwis/uv?site_no="

// USGSScraper reads instantaneous values for every tracked gauge in one request
type USGSScraper struct {
	client  *HTTPClient
	baseURL string
	gauges  GaugeLister
	log     *zap.Logger
	now     func() time.Time
}

// NewUSGSScraper creates a USGS instantaneous values scraper
func NewUSGSScraper(client *HTTPClient, baseURL string, gauges GaugeLister, log *zap.Logger) *USGSScraper {
	return &USGSScraper{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		gauges:  gauges,
		log:     log.With(zap.String("source", entities.SourceUSGS)),
		now:     time.Now,
	}
}

// Name implements Scraper
func (s *USGSScraper) Name() string {
	return entities.SourceUSGS
}

type usgsResponse struct {
	Value struct {
		TimeSeries []usgsTimeSeries `json:"timeSeries"`
	} `json:"value"`
}

type usgsTimeSeries struct {
	SourceInfo struct {
		SiteName string     `json:"siteName"`
		SiteCode []usgsCode `json:"siteCode"`
	} `json:"sourceInfo"`
	Variable struct {
		VariableCode []usgsCode `json:"variableCode"`
	} `json:"variable"`
	Values []struct {
		Value []struct {
			Value    string `json:"value"`
			DateTime string `json:"dateTime"`
		} `json:"value"`
	} `json:"values"`
}

type usgsCode struct {
	Value string `json:"value"`
}

// Scrape implements Scraper
func (s *USGSScraper) Scrape(ctx context.Context) ([]entities.ScrapedItem, error) {
	s.log.Info("Starting scraper")

	ids, err := s.gauges.ListGaugeIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list gauge ids: %w", err)
	}
	if len(ids) == 0 {
		s.log.Info("No USGS gauge IDs configured, skipping")
		return nil, nil
	}

	q := url.Values{}
	q.Set("format", "json")
	q.Set("sites", strings.Join(ids, ","))
	q.Set("parameterCd", strings.Join([]string{paramDischarge, paramGaugeHeight, paramWaterTemp}, ","))
	q.Set("siteStatus", "active")

	var resp usgsResponse
	if err := s.client.GetJSON(ctx, s.baseURL+"/iv/?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	sites := s.groupBySite(resp.Value.TimeSeries)

	codes := make([]string, 0, len(sites))
	for code := range sites {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	now := s.now().UTC()
	items := make([]entities.ScrapedItem, 0, len(codes))
	for _, code := range codes {
		readings := sites[code]

		reading := &entities.ConditionReading{USGSGaugeID: code}
		if v, ok := readings[paramDischarge].(float64); ok {
			reading.FlowRate = floatPtr(v)
		}
		if v, ok := readings[paramGaugeHeight].(float64); ok {
			reading.GaugeHeight = floatPtr(v)
		}
		if v, ok := readings[paramWaterTemp].(float64); ok {
			reading.WaterTemp = floatPtr(v*9/5 + 32)
		}

		items = append(items, entities.ScrapedItem{
			Source:    entities.SourceUSGS,
			SourceURL: usgsSiteURL + code,
			ScrapedAt: now,
			Condition: reading,
			Raw:       readings,
		})
	}

	s.log.Info("Scraper finished", zap.Int("items", len(items)))
	return items, nil
}

// groupBySite keeps the latest numeric value of each parameter per site
func (s *USGSScraper) groupBySite(series []usgsTimeSeries) map[string]entities.JSONMap {
	sites := make(map[string]entities.JSONMap)
	for _, ts := range series {
		if len(ts.SourceInfo.SiteCode) == 0 || len(ts.Variable.VariableCode) == 0 || len(ts.Values) == 0 {
			continue
		}
		site := ts.SourceInfo.SiteCode[0].Value
		param := ts.Variable.VariableCode[0].Value
		values := ts.Values[0].Value
		if len(values) == 0 {
			continue
		}
		latest := values[len(values)-1]

		v, ok := parseNumber(latest.Value)
		if !ok {
			s.log.Warn("Non-numeric value, skipping",
				zap.String("value", latest.Value),
				zap.String("param", param),
				zap.String("site", site))
			continue
		}

		readings, exists := sites[site]
		if !exists {
			readings = entities.JSONMap{"site_code": site}
			sites[site] = readings
		}
		readings[param] = v
		readings["datetime"] = latest.DateTime
	}
	return sites
}
