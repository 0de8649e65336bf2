package usecases

import (
	"context"
	"math"
	"slices"
	"time"

	"github.com/abelzeko/water-watcher/internal/entities"
	"github.com/abelzeko/water-watcher/internal/repository"
)

// Windows for admin and analytics aggregates
const (
	ScraperStatsWindow   = 24 * time.Hour
	QualityTrendWindow   = 7 * 24 * time.Hour
	RecentScrapeLogCount = 20
	TopRatedRiverCount   = 5
)

// ScraperSources lists every source that writes scrape logs
var ScraperSources = []string{
	entities.SourceUSGS,
	entities.SourceAW,
	entities.SourceCraigslist,
	entities.SourceBLM,
	entities.SourceUSFS,
	entities.SourceFacebook,
	entities.SourceDealMatch,
}

// ScraperStatus summarises one source's health
type ScraperStatus struct {
	Source        string     `json:"source"`
	LastRun       *time.Time `json:"lastRun"`
	LastStatus    string     `json:"lastStatus,omitempty"`
	LastError     string     `json:"lastError,omitempty"`
	Runs24h       int64      `json:"runs24h"`
	SuccessRate   float64    `json:"successRate"`
	Items24h      int64      `json:"items24h"`
	AvgDurationMs float64    `json:"avgDurationMs"`
}

// ScraperDetail is a source's status plus its recent runs
type ScraperDetail struct {
	ScraperStatus
	RecentLogs []entities.ScrapeLog `json:"recentLogs"`
}

// AdminUseCase reports scraper health
type AdminUseCase struct {
	logs *repository.ScrapeLogRepository
	now  func() time.Time
}

// NewAdminUseCase creates an admin use case
func NewAdminUseCase(logs *repository.ScrapeLogRepository) *AdminUseCase {
	return &AdminUseCase{logs: logs, now: time.Now}
}

// ScraperStats returns the status of every known source over the last 24h
func (uc *AdminUseCase) ScraperStats(ctx context.Context) ([]ScraperStatus, error) {
	stats, err := uc.logs.StatsSince(ctx, uc.now().UTC().Add(-ScraperStatsWindow))
	if err != nil {
		return nil, err
	}
	out := make([]ScraperStatus, 0, len(ScraperSources))
	for _, source := range ScraperSources {
		st, err := uc.status(ctx, source, stats[source])
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// ScraperDetail returns one source's status and its most recent runs
func (uc *AdminUseCase) ScraperDetail(ctx context.Context, source string) (*ScraperDetail, error) {
	if !slices.Contains(ScraperSources, source) {
		return nil, entities.NotFound("Scraper")
	}
	stats, err := uc.logs.StatsSince(ctx, uc.now().UTC().Add(-ScraperStatsWindow))
	if err != nil {
		return nil, err
	}
	st, err := uc.status(ctx, source, stats[source])
	if err != nil {
		return nil, err
	}
	recent, err := uc.logs.RecentBySource(ctx, source, RecentScrapeLogCount)
	if err != nil {
		return nil, err
	}
	return &ScraperDetail{ScraperStatus: st, RecentLogs: recent}, nil
}

func (uc *AdminUseCase) status(ctx context.Context, source string, s repository.SourceStats) (ScraperStatus, error) {
	st := ScraperStatus{
		Source:        source,
		Runs24h:       s.Runs,
		Items24h:      s.Items,
		AvgDurationMs: math.Round(s.AvgDuration),
	}
	if s.Runs > 0 {
		st.SuccessRate = roundTo(float64(s.Successes)/float64(s.Runs)*100, 1)
	}
	last, err := uc.logs.Latest(ctx, source)
	switch {
	case err == nil:
		st.LastRun = &last.StartedAt
		st.LastStatus = last.Status
		st.LastError = last.Error
	case !isNotFound(err):
		return st, err
	}
	return st, nil
}

// Analytics is the admin dashboard overview. Rates are percentages.
type Analytics struct {
	Totals              repository.Totals       `json:"totals"`
	ConditionsByQuality []repository.LabelCount `json:"conditionsByQuality"`
	DealsByCategory     []repository.LabelCount `json:"dealsByCategory"`
	TopRatedRivers      []repository.RatedRiver `json:"topRatedRivers"`
	ScrapeSuccessRate   float64                 `json:"scrapeSuccessRate"`
	GeneratedAt         time.Time               `json:"generatedAt"`
}

// AnalyticsUseCase builds the admin dashboard aggregates
type AnalyticsUseCase struct {
	analytics *repository.AnalyticsRepository
	now       func() time.Time
}

// NewAnalyticsUseCase creates an analytics use case
func NewAnalyticsUseCase(analytics *repository.AnalyticsRepository) *AnalyticsUseCase {
	return &AnalyticsUseCase{analytics: analytics, now: time.Now}
}

// Overview gathers totals, recent quality mix, deal mix, top rivers and
// 24h scrape success
func (uc *AnalyticsUseCase) Overview(ctx context.Context) (*Analytics, error) {
	now := uc.now().UTC()
	totals, err := uc.analytics.Totals(ctx)
	if err != nil {
		return nil, err
	}
	quality, err := uc.analytics.ConditionsByQuality(ctx, now.Add(-QualityTrendWindow))
	if err != nil {
		return nil, err
	}
	categories, err := uc.analytics.DealsByCategory(ctx)
	if err != nil {
		return nil, err
	}
	top, err := uc.analytics.TopRatedRivers(ctx, TopRatedRiverCount)
	if err != nil {
		return nil, err
	}
	rate, err := uc.analytics.ScrapeSuccessRate(ctx, now.Add(-ScraperStatsWindow))
	if err != nil {
		return nil, err
	}
	return &Analytics{
		Totals:              totals,
		ConditionsByQuality: quality,
		DealsByCategory:     categories,
		TopRatedRivers:      top,
		ScrapeSuccessRate:   roundTo(rate*100, 1),
		GeneratedAt:         now,
	}, nil
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
