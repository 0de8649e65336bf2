package integration

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/abelzeko/water-watcher/internal/entities"
)

const maxDescriptionLength = 2000

// Craigslist categories searched: sporting goods and boats
var craigslistCategories = []string{"sga", "boa"}

// Compound queries keep the request count per region low
var craigslistSearchGroups = []string{
	"raft OR kayak OR canoe OR whitewater",
	"paddle OR oar OR PFD OR life jacket",
	"drysuit OR wetsuit OR NRS OR throw bag",
	"AIRE OR Hyside OR Maravia OR SOTAR",
}

var craigslistUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14.0; rv:121.0) Gecko/20100101 Firefox/121.0",
}

// RaftKeywords mark a listing as whitewater gear
var RaftKeywords = []string{
	"raft", "rafting", "kayak", "canoe", "paddle", "oar", "pfd",
	"life jacket", "life vest", "drysuit", "dry suit", "wetsuit", "wet suit",
	"throw bag", "river", "whitewater", "white water", "inflatable boat",
	"nrs", "aire", "hyside", "maravia", "sotar",
}

// Checked in order; the first keyword found decides the category
var categoryRules = []keywordRule{
	{"raft", entities.CategoryRaft},
	{"rafting", entities.CategoryRaft},
	{"inflatable boat", entities.CategoryRaft},
	{"kayak", entities.CategoryKayak},
	{"canoe", entities.CategoryKayak},
	{"paddle", entities.CategoryPaddle},
	{"oar", entities.CategoryPaddle},
	{"pfd", entities.CategoryPFD},
	{"life jacket", entities.CategoryPFD},
	{"life vest", entities.CategoryPFD},
	{"drysuit", entities.CategoryDrysuit},
	{"dry suit", entities.CategoryDrysuit},
	{"wetsuit", entities.CategoryDrysuit},
	{"wet suit", entities.CategoryDrysuit},
}

var (
	pricePattern = regexp.MustCompile(`\$\s*([\d,]+(?:\.\d{2})?)`)
	imagePattern = regexp.MustCompile(`<img[^>]+src="([^"]+)"`)
)

// CraigslistScraper watches Craigslist searches for gear deals
type CraigslistScraper struct {
	client  *HTTPClient
	regions []string
	baseURL string
	known   DealURLChecker
	parser  *gofeed.Parser
	log     *zap.Logger
	now     func() time.Time
	jitter  func() time.Duration
}

// NewCraigslistScraper creates a Craigslist scraper. baseURL may contain
// "{region}"; empty means https://{region}.craigslist.org.
func NewCraigslistScraper(client *HTTPClient, regions []string, baseURL string, known DealURLChecker, log *zap.Logger) *CraigslistScraper {
	if baseURL == "" {
		baseURL = "https://{region}.craigslist.org"
	}
	return &CraigslistScraper{
		client:  client,
		regions: regions,
		baseURL: strings.TrimRight(baseURL, "/"),
		known:   known,
		parser:  gofeed.NewParser(),
		log:     log.With(zap.String("source", entities.SourceCraigslist)),
		now:     time.Now,
		jitter: func() time.Duration {
			return 500*time.Millisecond + rand.N(1500*time.Millisecond)
		},
	}
}

// Name implements Scraper
func (s *CraigslistScraper) Name() string {
	return entities.SourceCraigslist
}

// Scrape implements Scraper
func (s *CraigslistScraper) Scrape(ctx context.Context) ([]entities.ScrapedItem, error) {
	s.log.Info("Starting scraper", zap.Strings("regions", s.regions))

	seen := make(map[string]struct{})
	var items []entities.ScrapedItem

	for _, region := range s.regions {
		ua := craigslistUserAgents[rand.IntN(len(craigslistUserAgents))]
		headers := map[string]string{
			"User-Agent":      ua,
			"Accept":          "application/rss+xml, application/xml, text/xml, text/html",
			"Accept-Language": "en-US,en;q=0.9",
		}
		regionCount := 0

		for _, category := range craigslistCategories {
			for _, query := range craigslistSearchGroups {
				if err := ctx.Err(); err != nil {
					return items, err
				}

				listings := s.scrapeRSS(ctx, region, category, query, headers, seen)
				if len(listings) == 0 {
					listings = s.scrapeHTML(ctx, region, category, query, headers, seen)
				}

				for _, l := range listings {
					if !IsRelevant(l.Title, l.Description) {
						continue
					}
					l.Category = Categorize(l.Title, l.Description)
					deal := l
					items = append(items, entities.ScrapedItem{
						Source:    entities.SourceCraigslist,
						SourceURL: l.URL,
						ScrapedAt: s.now().UTC(),
						Deal:      &deal,
					})
					regionCount++
				}

				if err := sleep(ctx, s.jitter()); err != nil {
					return items, err
				}
			}
		}

		s.log.Info("Craigslist region scanned",
			zap.String("region", region),
			zap.Int("relevant", regionCount))
	}

	s.log.Info("Scraper finished", zap.Int("items", len(items)))
	return items, nil
}

func (s *CraigslistScraper) regionBase(region string) string {
	return strings.ReplaceAll(s.baseURL, "{region}", region)
}

// isNew reports whether link was neither stored before nor seen this run,
// and marks it seen
func (s *CraigslistScraper) isNew(ctx context.Context, link string, seen map[string]struct{}) bool {
	if link == "" {
		return false
	}
	if _, ok := seen[link]; ok {
		return false
	}
	seen[link] = struct{}{}

	exists, err := s.known.ExistsURL(ctx, link)
	if err != nil {
		s.log.Warn("Failed to check deal URL", zap.String("url", link), zap.Error(err))
		return true
	}
	return !exists
}

func (s *CraigslistScraper) scrapeRSS(ctx context.Context, region, category, query string, headers map[string]string, seen map[string]struct{}) []entities.DealListing {
	u := fmt.Sprintf("%s/search/%s?format=rss&query=%s", s.regionBase(region), category, url.QueryEscape(query))

	body, err := s.client.Get(ctx, u, headers)
	if err != nil {
		s.logFetchError(region, category, err)
		return nil
	}

	feed, err := s.parser.ParseString(string(body))
	if err != nil {
		s.log.Warn("RSS parse error",
			zap.String("region", region),
			zap.String("category", category),
			zap.Error(err))
		return nil
	}

	var listings []entities.DealListing
	for _, it := range feed.Items {
		link := strings.TrimSpace(it.Link)
		if !s.isNew(ctx, link, seen) {
			continue
		}

		rawDesc := it.Description
		desc := CleanHTML(rawDesc)

		l := entities.DealListing{
			Title:       strings.TrimSpace(it.Title),
			URL:         link,
			Description: truncate(desc, maxDescriptionLength),
			Region:      region,
			Price:       ExtractPrice(it.Title),
		}
		if l.Price == nil {
			l.Price = ExtractPrice(desc)
		}
		if m := imagePattern.FindStringSubmatch(rawDesc); m != nil {
			l.ImageURL = m[1]
		}
		if it.PublishedParsed != nil {
			t := it.PublishedParsed.UTC()
			l.PostedAt = &t
		} else if it.UpdatedParsed != nil {
			t := it.UpdatedParsed.UTC()
			l.PostedAt = &t
		}
		listings = append(listings, l)
	}
	return listings
}

func (s *CraigslistScraper) scrapeHTML(ctx context.Context, region, category, query string, headers map[string]string, seen map[string]struct{}) []entities.DealListing {
	base := s.regionBase(region)
	u := fmt.Sprintf("%s/search/%s?query=%s", base, category, url.QueryEscape(query))

	doc, err := s.client.GetDocument(ctx, u, headers)
	if err != nil {
		s.logFetchError(region, category, err)
		return nil
	}

	rows := doc.Find("li.cl-static-search-result")
	if rows.Length() == 0 {
		rows = doc.Find("li.result-row")
	}

	var listings []entities.DealListing
	rows.Each(func(_ int, row *goquery.Selection) {
		link := row.Find("a").First()
		href, _ := link.Attr("href")
		if href == "" {
			return
		}
		if strings.HasPrefix(href, "/") {
			href = base + href
		}
		if !s.isNew(ctx, href, seen) {
			return
		}

		l := entities.DealListing{
			Title:  strings.TrimSpace(link.Text()),
			URL:    href,
			Region: region,
		}
		price := row.Find("span.priceinfo").First()
		if price.Length() == 0 {
			price = row.Find("span.result-price").First()
		}
		if price.Length() > 0 {
			l.Price = ExtractPrice(price.Text())
		}
		listings = append(listings, l)
	})
	return listings
}

func (s *CraigslistScraper) logFetchError(region, category string, err error) {
	if StatusCode(err) == http.StatusForbidden {
		s.log.Warn("Blocked by Craigslist, backing off",
			zap.String("region", region),
			zap.String("category", category))
		return
	}
	s.log.Warn("Craigslist request failed",
		zap.String("region", region),
		zap.String("category", category),
		zap.Error(err))
}

// IsRelevant reports whether a listing mentions whitewater gear
func IsRelevant(title, description string) bool {
	text := strings.ToLower(title + " " + description)
	for _, k := range RaftKeywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// Categorize assigns a gear category from listing text
func Categorize(title, description string) string {
	return classify(title+" "+description, categoryRules, entities.CategoryOther)
}

// ExtractPrice finds the first dollar amount in text
func ExtractPrice(text string) *float64 {
	m := pricePattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	if v, ok := parseNumber(m[1]); ok {
		return floatPtr(v)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
