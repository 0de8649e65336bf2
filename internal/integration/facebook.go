package integration

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/abelzeko/water-watcher/internal/entities"
)

const (
	facebookWindow     = 48 * time.Hour
	maxPostLength      = 1000
	maxPostAttachments = 5
	facebookMobileUA   = "Mozilla/5.0 (Linux; Android 13) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36"
)

var (
	flowPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(\d[\d,]*)\s*(?:cfs|cubic\s+feet)`),
		regexp.MustCompile(`(?i)flow[:\s]+(\d[\d,]*)`),
		regexp.MustCompile(`(?i)(\d[\d,]*)\s*(?:ft³/s)`),
	}
	gaugeHeightPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(\d+\.?\d*)\s*(?:feet|ft|foot)\s*(?:gauge|gage|stage)`),
		regexp.MustCompile(`(?i)(?:gauge|gage|stage)[:\s]+(\d+\.?\d*)\s*(?:feet|ft|foot)?`),
	}
	waterTempPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)water\s*temp[:\s]+(\d+\.?\d*)\s*°?[fF]`),
		regexp.MustCompile(`(?i)(\d+\.?\d*)\s*°?[fF]\s*water`),
	}
	hashtagPattern = regexp.MustCompile(`#([A-Z][a-z]+)([A-Z])`)
)

// Checked in order; the first keyword found decides the quality
var qualityKeywords = []struct {
	quality string
	words   []string
}{
	{entities.QualityExcellent, []string{"excellent", "perfect", "prime", "ideal", "outstanding", "amazing"}},
	{entities.QualityGood, []string{"good", "great", "nice", "solid", "fun", "enjoyable"}},
	{entities.QualityFair, []string{"fair", "ok", "okay", "moderate", "decent", "average", "mediocre"}},
	{entities.QualityPoor, []string{"poor", "low", "bad", "scrapy", "bony", "rocky"}},
	{entities.QualityDangerous, []string{"dangerous", "flood", "deadly", "extreme", "closed", "hazardous", "unsafe"}},
}

// FacebookScraper reads river reports from public Facebook pages, through
// the Graph API when a token is configured and the mobile site otherwise
type FacebookScraper struct {
	client    *HTTPClient
	graphURL  string
	mobileURL string
	token     string
	pages     []string
	rivers    RiverLister
	log       *zap.Logger
	now       func() time.Time
}

// FacebookConfig holds the endpoints and pages the scraper reads
type FacebookConfig struct {
	GraphURL    string
	MobileURL   string
	AccessToken string
	Pages       []string
}

// NewFacebookScraper creates a Facebook page scraper
func NewFacebookScraper(client *HTTPClient, cfg FacebookConfig, rivers RiverLister, log *zap.Logger) *FacebookScraper {
	return &FacebookScraper{
		client:    client,
		graphURL:  strings.TrimRight(cfg.GraphURL, "/"),
		mobileURL: strings.TrimRight(cfg.MobileURL, "/"),
		token:     cfg.AccessToken,
		pages:     cfg.Pages,
		rivers:    rivers,
		log:       log.With(zap.String("source", entities.SourceFacebook)),
		now:       time.Now,
	}
}

// Name implements Scraper
func (s *FacebookScraper) Name() string {
	return entities.SourceFacebook
}

type post struct {
	text      string
	author    string
	sourceURL string
	images    []string
	links     []string
	timestamp *time.Time
}

// Scrape implements Scraper
func (s *FacebookScraper) Scrape(ctx context.Context) ([]entities.ScrapedItem, error) {
	s.log.Info("Starting scraper")

	rivers, err := s.rivers.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rivers: %w", err)
	}
	if len(rivers) == 0 {
		s.log.Info("No tracked rivers, skipping")
		return nil, nil
	}

	if s.token == "" {
		s.log.Warn("No Facebook access token configured, scraping public pages")
	}

	var items []entities.ScrapedItem
	for _, page := range s.pages {
		if err := ctx.Err(); err != nil {
			return items, err
		}

		var posts []post
		if s.token != "" {
			posts = s.fetchGraphPosts(ctx, page)
		} else {
			posts = s.fetchMobilePosts(ctx, page)
		}
		for _, p := range posts {
			items = append(items, s.riverMentions(p, rivers)...)
		}
	}

	s.log.Info("Scraper finished", zap.Int("items", len(items)))
	return items, nil
}

type graphPosts struct {
	Data []struct {
		ID          string `json:"id"`
		Message     string `json:"message"`
		CreatedTime string `json:"created_time"`
		From        struct {
			Name string `json:"name"`
		} `json:"from"`
		FullPicture  string `json:"full_picture"`
		PermalinkURL string `json:"permalink_url"`
	} `json:"data"`
}

func (s *FacebookScraper) fetchGraphPosts(ctx context.Context, page string) []post {
	q := url.Values{}
	q.Set("access_token", s.token)
	q.Set("fields", "id,message,created_time,from,full_picture,permalink_url")
	q.Set("limit", "50")

	var resp graphPosts
	err := s.client.GetJSON(ctx, fmt.Sprintf("%s/%s/posts?%s", s.graphURL, url.PathEscape(page), q.Encode()), nil, &resp)
	if err != nil {
		switch StatusCode(err) {
		case http.StatusUnauthorized:
			s.log.Error("Facebook API: expired token", zap.String("page", page))
		case http.StatusForbidden:
			s.log.Error("Facebook API: invalid token or no access", zap.String("page", page))
		case http.StatusTooManyRequests:
			s.log.Warn("Facebook API: rate limited", zap.String("page", page))
		default:
			s.log.Error("Failed to fetch Facebook page", zap.String("page", page), zap.Error(err))
		}
		return nil
	}

	threshold := s.now().Add(-facebookWindow)
	var posts []post
	for _, d := range resp.Data {
		if d.Message == "" {
			continue
		}
		ts := ParseDate(d.CreatedTime)
		if ts != nil && ts.Before(threshold) {
			continue
		}
		p := post{
			text:      d.Message,
			author:    d.From.Name,
			sourceURL: d.PermalinkURL,
			timestamp: ts,
		}
		if p.sourceURL == "" {
			p.sourceURL = "https://www.facebook.com/" + page
		}
		if d.FullPicture != "" {
			p.images = []string{d.FullPicture}
		}
		posts = append(posts, p)
	}
	return posts
}

func (s *FacebookScraper) fetchMobilePosts(ctx context.Context, page string) []post {
	headers := map[string]string{
		"User-Agent":      facebookMobileUA,
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.5",
	}
	doc, err := s.client.GetDocument(ctx, s.mobileURL+"/"+url.PathEscape(page), headers)
	if err != nil {
		if StatusCode(err) == http.StatusNotFound {
			s.log.Warn("Facebook page not found", zap.String("page", page))
		} else {
			s.log.Error("Failed to fetch public Facebook page", zap.String("page", page), zap.Error(err))
		}
		return nil
	}
	return s.parseMobilePosts(doc, page)
}

func (s *FacebookScraper) parseMobilePosts(doc *goquery.Document, page string) []post {
	elems := doc.Find("div[data-ft]")
	if elems.Length() == 0 {
		elems = doc.Find("article")
	}

	var posts []post
	elems.Each(func(_ int, el *goquery.Selection) {
		body := text(el.Find("div[class*='story'], div[class*='userContent']"))
		if body == "" {
			body = text(el.Find("p"))
		}
		if body == "" {
			return
		}

		p := post{text: body, author: text(el.Find("strong"))}
		if p.author == "" {
			p.author = text(el.Find("h3"))
		}
		if p.author == "" {
			p.author = page
		}

		el.Find("img").Each(func(_ int, img *goquery.Selection) {
			src, _ := img.Attr("src")
			if src != "" && !strings.Contains(src, "emoji") && !strings.Contains(src, "static") {
				p.images = append(p.images, src)
			}
		})
		el.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			if strings.HasPrefix(href, "http") && !strings.Contains(href, "facebook.com") {
				p.links = append(p.links, href)
			}
		})

		p.sourceURL = "https://www.facebook.com/" + page
		if href, ok := el.Find("a[href*='/story.php'], a[href*='/permalink']").First().Attr("href"); ok && strings.HasPrefix(href, "/") {
			p.sourceURL = s.mobileURL + href
		}
		posts = append(posts, p)
	})
	return posts
}

// riverMentions emits one item per tracked river named in the post
func (s *FacebookScraper) riverMentions(p post, rivers []entities.River) []entities.ScrapedItem {
	lower := strings.ToLower(p.text)
	split := strings.ToLower(hashtagPattern.ReplaceAllString(p.text, "$1 $2"))

	scrapedAt := s.now().UTC()
	if p.timestamp != nil {
		scrapedAt = *p.timestamp
	}

	matched := make(map[string]bool)
	var items []entities.ScrapedItem
	for _, r := range rivers {
		if matched[r.ID] || r.Name == "" {
			continue
		}
		pattern, err := regexp.Compile(`\b` + regexp.QuoteMeta(strings.ToLower(r.Name)) + `\b`)
		if err != nil {
			continue
		}
		if !pattern.MatchString(lower) && !pattern.MatchString(split) {
			continue
		}
		matched[r.ID] = true

		reading := ClassifyPost(p.text)
		reading.RiverID = r.ID
		reading.RiverName = r.Name

		items = append(items, entities.ScrapedItem{
			Source:    entities.SourceFacebook,
			SourceURL: p.sourceURL,
			ScrapedAt: scrapedAt,
			Condition: reading,
			Raw: entities.JSONMap{
				"river_id":   r.ID,
				"river_name": r.Name,
				"post_text":  truncate(p.text, maxPostLength),
				"author":     p.author,
				"images":     limit(p.images, maxPostAttachments),
				"links":      limit(p.links, maxPostAttachments),
			},
		})
	}
	return items
}

// ClassifyPost pulls flow, gauge height, water temperature and a quality
// label out of free post text
func ClassifyPost(text string) *entities.ConditionReading {
	r := &entities.ConditionReading{}
	r.FlowRate = firstMatch(flowPatterns, text)
	r.GaugeHeight = firstMatch(gaugeHeightPatterns, text)
	r.WaterTemp = firstMatch(waterTempPatterns, text)

	lower := strings.ToLower(text)
	for _, q := range qualityKeywords {
		for _, w := range q.words {
			if strings.Contains(lower, w) {
				r.Quality = q.quality
				return r
			}
		}
	}
	return r
}

// firstMatch parses the capture of the first pattern that matches
func firstMatch(patterns []*regexp.Regexp, text string) *float64 {
	for _, p := range patterns {
		m := p.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if v, ok := parseNumber(m[1]); ok {
			return floatPtr(v)
		}
		return nil
	}
	return nil
}

func limit(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
