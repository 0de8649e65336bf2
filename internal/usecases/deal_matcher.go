package usecases

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/abelzeko/water-watcher/internal/entities"
	"github.com/abelzeko/water-watcher/internal/repository"
)

// NotificationThreshold is the lowest match score that triggers an alert
const NotificationThreshold = 50

// ScoreMatch rates how well a deal fits a filter on a 0..100 scale.
// Zero means the deal does not match at all.
func ScoreMatch(deal *entities.GearDeal, f *entities.DealFilter) int {
	if f.MaxPrice != nil && deal.Price != nil && *deal.Price > *f.MaxPrice {
		return 0
	}
	if len(f.Regions) > 0 && deal.Region != "" && !f.Regions.Contains(deal.Region) {
		return 0
	}

	score := 0

	switch {
	case len(f.Categories) == 0:
		score += 15
	case deal.Category != "" && f.Categories.Contains(deal.Category):
		score += 30
	}

	if len(f.Keywords) > 0 {
		text := strings.ToLower(deal.Title + " " + deal.Description)
		hits := 0
		for _, kw := range f.Keywords {
			if strings.Contains(text, strings.ToLower(kw)) {
				hits++
			}
		}
		if hits == 0 {
			return 0
		}
		score += min(hits*10, 40)
	} else {
		score += 20
	}

	switch {
	case f.MaxPrice != nil && deal.Price != nil:
		score += 20
		if *f.MaxPrice > 0 {
			savings := (*f.MaxPrice - *deal.Price) / *f.MaxPrice
			score += min(int(savings*10), 10)
		}
	case deal.Price != nil:
		score += 10
	}

	switch {
	case len(f.Regions) == 0:
		score += 5
	case deal.Region != "" && f.Regions.Contains(deal.Region):
		score += 10
	}

	return min(score, 100)
}

// DealMatcher stores new listings and scores them against saved filters
type DealMatcher struct {
	db    *gorm.DB
	deals *repository.DealRepository
	logs  *repository.ScrapeLogRepository
	log   *zap.Logger
	now   func() time.Time
}

// NewDealMatcher creates a deal matcher
func NewDealMatcher(db *gorm.DB, deals *repository.DealRepository, logs *repository.ScrapeLogRepository, log *zap.Logger) *DealMatcher {
	return &DealMatcher{
		db:    db,
		deals: deals,
		logs:  logs,
		log:   log.Named("deal_matcher"),
		now:   time.Now,
	}
}

// Match saves unseen listings, records every filter hit and returns the
// hits strong enough to notify about
func (m *DealMatcher) Match(ctx context.Context, items []entities.ScrapedItem) ([]entities.DealMatch, error) {
	filters, err := m.deals.ActiveFilters(ctx)
	if err != nil {
		return nil, err
	}
	if len(filters) == 0 {
		m.log.Info("No active deal filters, skipping matching")
		return nil, nil
	}
	m.log.Info("Matching deals", zap.Int("deals", len(items)), zap.Int("filters", len(filters)))

	started := m.now().UTC()
	var (
		saved   int
		matches []entities.DealMatch
	)
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		saved, matches, err = m.match(ctx, m.deals.WithTx(tx), items, filters)
		return err
	})
	if err != nil {
		saved = 0
	}

	entry := &entities.ScrapeLog{
		Source:     entities.SourceDealMatch,
		Status:     entities.ScrapeSuccess,
		ItemCount:  saved,
		StartedAt:  started,
		FinishedAt: m.now().UTC(),
	}
	entry.Duration = entry.FinishedAt.Sub(started).Milliseconds()
	if err != nil {
		entry.Status = entities.ScrapeError
		entry.Error = err.Error()
		m.log.Error("Deal matching failed", zap.Error(err))
	}
	if logErr := m.logs.Create(context.WithoutCancel(ctx), entry); logErr != nil {
		m.log.Error("Failed to write scrape log", zap.Error(logErr))
	}
	if err != nil {
		return nil, err
	}

	var notify []entities.DealMatch
	for _, match := range matches {
		if match.Notify {
			notify = append(notify, match)
		}
	}
	m.log.Info("Deal matching finished",
		zap.Int("saved", saved),
		zap.Int("matches", len(matches)),
		zap.Int("above_threshold", len(notify)))
	return notify, nil
}

func (m *DealMatcher) match(ctx context.Context, deals *repository.DealRepository, items []entities.ScrapedItem, filters []entities.DealFilter) (int, []entities.DealMatch, error) {
	seen := make(map[string]bool)
	saved := 0
	var matches []entities.DealMatch

	for _, item := range items {
		listing := item.Deal
		if listing == nil || listing.URL == "" || seen[listing.URL] {
			continue
		}
		seen[listing.URL] = true

		exists, err := deals.ExistsURL(ctx, listing.URL)
		if err != nil {
			return saved, matches, err
		}
		if exists {
			continue
		}

		deal := &entities.GearDeal{
			Title:       listing.Title,
			Price:       listing.Price,
			URL:         listing.URL,
			ImageURL:    listing.ImageURL,
			Description: listing.Description,
			Category:    listing.Category,
			Region:      listing.Region,
			PostedAt:    listing.PostedAt,
			ScrapedAt:   item.ScrapedAt,
			IsActive:    true,
		}
		if err := deals.Create(ctx, deal); err != nil {
			return saved, matches, fmt.Errorf("failed to save deal: %w", err)
		}
		saved++

		for i := range filters {
			f := &filters[i]
			score := ScoreMatch(deal, f)
			if score <= 0 {
				continue
			}
			if err := deals.CreateMatch(ctx, &entities.DealFilterMatch{FilterID: f.ID, DealID: deal.ID, Score: score}); err != nil {
				return saved, matches, fmt.Errorf("failed to save deal match: %w", err)
			}
			matches = append(matches, entities.DealMatch{
				FilterID:     f.ID,
				FilterName:   f.Name,
				UserID:       f.UserID,
				DealID:       deal.ID,
				DealTitle:    deal.Title,
				DealPrice:    deal.Price,
				DealURL:      deal.URL,
				DealCategory: deal.Category,
				DealRegion:   deal.Region,
				Score:        score,
				Notify:       score >= NotificationThreshold,
			})
		}
	}
	return saved, matches, nil
}
