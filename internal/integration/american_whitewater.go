package integration

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/abelzeko/water-watcher/internal/entities"
)

// Hazard types assigned to scraped reach alerts
const (
	HazardStrainer    = "strainer"
	HazardDam         = "dam"
	HazardLogjam      = "logjam"
	HazardClosure     = "closure"
	HazardRapidChange = "rapid_change"
)

const maxTripReports = 10

var difficultyMap = map[string]string{
	"I":      "Class I",
	"I-II":   "Class I-II",
	"II":     "Class II",
	"II-III": "Class II-III",
	"III":    "Class III",
	"III-IV": "Class III-IV",
	"IV":     "Class IV",
	"IV-V":   "Class IV-V",
	"V":      "Class V",
	"V+":     "Class V+",
	"VI":     "Class VI",
}

var hazardRules = []struct {
	kind  string
	words []string
}{
	{HazardStrainer, []string{"strainer", "tree", "log", "wood", "debris"}},
	{HazardDam, []string{"dam", "diversion", "weir"}},
	{HazardLogjam, []string{"logjam", "log jam", "blockage"}},
	{HazardClosure, []string{"closure", "closed", "permit"}},
}

var gaugeTextPattern = regexp.MustCompile(`(?i)(?:current|level|reading)[:\s]+([0-9,.]+)\s*(cfs|ft)`)

// AWScraper collects reach details, gauges, rapids, trip reports and
// hazards from American Whitewater
type AWScraper struct {
	client  *HTTPClient
	baseURL string
	reaches ReachLister
	log     *zap.Logger
	now     func() time.Time
}

// NewAWScraper creates an American Whitewater scraper
func NewAWScraper(client *HTTPClient, baseURL string, reaches ReachLister, log *zap.Logger) *AWScraper {
	return &AWScraper{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		reaches: reaches,
		log:     log.With(zap.String("source", entities.SourceAW)),
		now:     time.Now,
	}
}

// Name implements Scraper
func (s *AWScraper) Name() string {
	return entities.SourceAW
}

// GaugeReading is one row of a reach's gauge table
type GaugeReading struct {
	Name    string   `json:"name"`
	Reading *float64 `json:"reading"`
	Unit    string   `json:"unit"`
}

// Rapid is a named rapid on a reach
type Rapid struct {
	Name        string `json:"name"`
	Difficulty  string `json:"difficulty,omitempty"`
	Description string `json:"description,omitempty"`
}

// TripReport is a paddler's report from a reach page
type TripReport struct {
	Date    string   `json:"date,omitempty"`
	Flow    *float64 `json:"flow,omitempty"`
	Quality string   `json:"quality,omitempty"`
	Comment string   `json:"comment,omitempty"`
}

type reachDetail struct {
	Name        string
	Section     string
	Difficulty  string
	Description string
	FlowRange   *entities.FlowRange
}

var awHeaders = map[string]string{"Accept": "application/json, text/html"}

// Scrape implements Scraper
func (s *AWScraper) Scrape(ctx context.Context) ([]entities.ScrapedItem, error) {
	s.log.Info("Starting scraper")

	ids, err := s.reaches.ListAWIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list reach ids: %w", err)
	}
	if len(ids) == 0 {
		s.log.Info("No AW IDs configured, skipping")
		return nil, nil
	}

	var items []entities.ScrapedItem
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return items, err
		}
		item, err := s.scrapeReach(ctx, id)
		if err != nil {
			s.log.Error("Failed to scrape reach", zap.String("aw_id", id), zap.Error(err))
			continue
		}
		items = append(items, item)
	}

	s.log.Info("Scraper finished", zap.Int("items", len(items)))
	return items, nil
}

func (s *AWScraper) reachURL(id string) string {
	return fmt.Sprintf("%s/River/detail/id/%s/", s.baseURL, id)
}

func (s *AWScraper) scrapeReach(ctx context.Context, id string) (entities.ScrapedItem, error) {
	viewURL := s.reachURL(id)
	s.log.Info("Scraping AW reach", zap.String("aw_id", id))

	var detail reachDetail
	var raw map[string]any
	if err := s.client.GetJSON(ctx, viewURL+".json", awHeaders, &raw); err != nil {
		s.log.Warn("Failed to fetch reach detail", zap.String("aw_id", id), zap.Error(err))
	} else {
		detail = extractReachDetail(raw)
	}

	var (
		gauges  []GaugeReading
		rapids  []Rapid
		reports []TripReport
		hazards []entities.HazardReport
	)
	doc, err := s.client.GetDocument(ctx, viewURL, awHeaders)
	if err != nil {
		s.log.Warn("Failed to fetch reach page", zap.String("aw_id", id), zap.Error(err))
	} else {
		gauges = parseGauges(doc)
		rapids = parseRapids(doc)
		reports = parseTripReports(doc)
		hazards = parseHazards(doc)
		if len(reports) > 0 {
			if next, err := s.client.GetDocument(ctx, viewURL+"?page=2", awHeaders); err == nil {
				reports = append(reports, parseTripReports(next)...)
			} else {
				s.log.Warn("Failed to fetch trip reports page", zap.String("aw_id", id), zap.Error(err))
			}
		}
	}

	if raw == nil && doc == nil {
		return entities.ScrapedItem{}, fmt.Errorf("reach %s: no data", id)
	}

	if len(reports) > maxTripReports {
		reports = reports[:maxTripReports]
	}

	reading := &entities.ConditionReading{
		AWID:        id,
		RiverName:   detail.Name,
		Difficulty:  detail.Difficulty,
		Description: detail.Description,
		FlowRange:   detail.FlowRange,
	}
	for _, g := range gauges {
		if g.Reading == nil {
			continue
		}
		switch strings.ToLower(g.Unit) {
		case "cfs":
			reading.FlowRate = g.Reading
		case "ft", "feet":
			reading.GaugeHeight = g.Reading
		}
	}

	s.log.Info("Scraped AW reach",
		zap.String("aw_id", id),
		zap.Int("rapids", len(rapids)),
		zap.Int("reports", len(reports)),
		zap.Int("hazards", len(hazards)))

	return entities.ScrapedItem{
		Source:    entities.SourceAW,
		SourceURL: viewURL,
		ScrapedAt: s.now().UTC(),
		Condition: reading,
		Hazards:   hazards,
		Raw: entities.JSONMap{
			"aw_id":          id,
			"name":           detail.Name,
			"section":        detail.Section,
			"difficulty":     detail.Difficulty,
			"gauge_readings": gauges,
			"rapids":         rapids,
			"trip_reports":   reports,
		},
	}, nil
}

// extractReachDetail handles the several shapes the reach JSON comes in
func extractReachDetail(raw map[string]any) reachDetail {
	info := asMap(raw["info"])
	if info == nil {
		info = asMap(raw["CContainerViewJSON_view"])
	}
	reach := raw
	if info != nil {
		reach = info
		if main := asMap(info["CRiverMainGadgetJSON_main"]); main != nil {
			reach = main
		}
	}
	river := reach
	if r := asMap(reach["river"]); r != nil {
		river = r
	}

	d := reachDetail{
		Name:        firstString(river, "name", "river"),
		Section:     firstString(river, "section", "altname"),
		Difficulty:  firstString(river, "class", "difficulty"),
		Description: CleanHTML(firstString(river, "description")),
	}
	if mapped, ok := difficultyMap[d.Difficulty]; ok {
		d.Difficulty = mapped
	}

	gauge := asMap(river["gaugeinfo"])
	if gauge == nil {
		gauge = asMap(river["gauge"])
	}
	if gauge != nil {
		fr := &entities.FlowRange{
			Min:  anyFloat(firstValue(gauge, "minimum", "min")),
			Max:  anyFloat(firstValue(gauge, "maximum", "max")),
			Unit: firstString(gauge, "unit"),
		}
		if fr.Unit == "" {
			fr.Unit = "cfs"
		}
		d.FlowRange = fr
	}
	return d
}

func parseGauges(doc *goquery.Document) []GaugeReading {
	var gauges []GaugeReading
	table := doc.Find("table.gaugeTable").First()
	if table.Length() == 0 {
		section := doc.Find("div#gauge-container").First()
		if section.Length() == 0 {
			section = doc.Find("div.gauge-info").First()
		}
		if section.Length() == 0 {
			return nil
		}
		content := whitespace.ReplaceAllString(section.Text(), " ")
		if m := gaugeTextPattern.FindStringSubmatch(content); m != nil {
			g := GaugeReading{Name: "primary", Unit: strings.ToLower(m[2])}
			if v, ok := parseNumber(m[1]); ok {
				g.Reading = floatPtr(v)
			}
			gauges = append(gauges, g)
		}
		return gauges
	}

	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return
		}
		cells := row.Find("td")
		if cells.Length() < 3 {
			return
		}
		g := GaugeReading{
			Name: strings.TrimSpace(cells.Eq(0).Text()),
			Unit: strings.TrimSpace(cells.Eq(2).Text()),
		}
		if v, ok := parseNumber(cells.Eq(1).Text()); ok {
			g.Reading = floatPtr(v)
		}
		gauges = append(gauges, g)
	})
	return gauges
}

func parseRapids(doc *goquery.Document) []Rapid {
	var rapids []Rapid
	elems := doc.Find("div.rapid")
	if elems.Length() == 0 {
		elems = doc.Find("div.rapid-detail")
	}
	elems.Each(func(_ int, el *goquery.Selection) {
		name := text(el.Find("h3[class*='name'], h4[class*='name'], strong[class*='name'], span[class*='name']"))
		if name == "" {
			name = text(el.Find("h3, h4"))
		}
		if name == "" {
			return
		}
		desc := text(el.Find("p"))
		if desc == "" {
			desc = text(el.Find("div.description"))
		}
		rapids = append(rapids, Rapid{
			Name:        name,
			Difficulty:  text(el.Find("[class*='class']")),
			Description: desc,
		})
	})
	if len(rapids) > 0 {
		return rapids
	}

	table := doc.Find("table#rapids").First()
	if table.Length() == 0 {
		table = doc.Find("table.rapids").First()
	}
	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return
		}
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		r := Rapid{
			Name:       strings.TrimSpace(cells.Eq(0).Text()),
			Difficulty: strings.TrimSpace(cells.Eq(1).Text()),
		}
		if cells.Length() > 2 {
			r.Description = strings.TrimSpace(cells.Eq(2).Text())
		}
		rapids = append(rapids, r)
	})
	return rapids
}

func parseTripReports(doc *goquery.Document) []TripReport {
	var reports []TripReport
	elems := doc.Find("div.trip-report")
	if elems.Length() == 0 {
		elems = doc.Find("div.report")
	}
	elems.Each(func(_ int, el *goquery.Selection) {
		comment := text(el.Find("p"))
		if comment == "" {
			comment = text(el.Find(".comment"))
		}
		r := TripReport{
			Date:    text(el.Find("[class*='date']")),
			Quality: text(el.Find("[class*='quality']")),
			Comment: comment,
		}
		if v, ok := parseNumber(text(el.Find("[class*='flow'], [class*='level']"))); ok {
			r.Flow = floatPtr(v)
		}
		reports = append(reports, r)
	})
	return reports
}

func parseHazards(doc *goquery.Document) []entities.HazardReport {
	var hazards []entities.HazardReport
	elems := doc.Find("div.alert")
	if elems.Length() == 0 {
		elems = doc.Find("div.hazard")
	}
	elems.Each(func(_ int, el *goquery.Selection) {
		title := text(el.Find("h3, h4, strong"))
		if title == "" {
			title = "Unknown hazard"
		}
		desc := text(el.Find("p"))
		class, _ := el.Attr("class")

		hazards = append(hazards, entities.HazardReport{
			Type:        ClassifyHazard(title, desc),
			Severity:    severityFromClass(class),
			Title:       title,
			Description: desc,
		})
	})
	return hazards
}

// ClassifyHazard maps hazard wording to a hazard type
func ClassifyHazard(title, description string) string {
	t := strings.ToLower(title + " " + description)
	for _, rule := range hazardRules {
		for _, w := range rule.words {
			if strings.Contains(t, w) {
				return rule.kind
			}
		}
	}
	return HazardRapidChange
}

func severityFromClass(class string) string {
	switch {
	case strings.Contains(class, "danger"), strings.Contains(class, "critical"):
		return entities.SeverityDanger
	case strings.Contains(class, "warning"), strings.Contains(class, "caution"):
		return entities.SeverityWarning
	default:
		return entities.SeverityInfo
	}
}

// text returns the trimmed text of the first element in sel
func text(sel *goquery.Selection) string {
	return strings.TrimSpace(sel.First().Text())
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func firstValue(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprint(v)
		}
	}
	return ""
}

func anyFloat(v any) *float64 {
	switch n := v.(type) {
	case float64:
		return floatPtr(n)
	case string:
		if f, ok := parseNumber(n); ok {
			return floatPtr(f)
		}
	}
	return nil
}
