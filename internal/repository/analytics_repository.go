package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/abelzeko/water-watcher/internal/entities"
)

// Totals counts the main tables
type Totals struct {
	Rivers        int64 `json:"rivers"`
	Users         int64 `json:"users"`
	ActiveDeals   int64 `json:"activeDeals"`
	ActiveHazards int64 `json:"activeHazards"`
	Trips         int64 `json:"trips"`
	Reviews       int64 `json:"reviews"`
}

// LabelCount is a group-by row
type LabelCount struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// RatedRiver is a river with its review aggregate
type RatedRiver struct {
	RiverID       string  `json:"riverId"`
	Name          string  `json:"name"`
	AverageRating float64 `json:"averageRating"`
	ReviewCount   int64   `json:"reviewCount"`
}

// AnalyticsRepository runs read-only aggregate queries
type AnalyticsRepository struct {
	db *gorm.DB
}

// NewAnalyticsRepository creates an analytics repository
func NewAnalyticsRepository(db *gorm.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// Totals counts rivers, users, active deals, active hazards, trips and reviews
func (r *AnalyticsRepository) Totals(ctx context.Context) (Totals, error) {
	var t Totals
	counts := []struct {
		model any
		where string
		dest  *int64
	}{
		{&entities.River{}, "", &t.Rivers},
		{&entities.User{}, "", &t.Users},
		{&entities.GearDeal{}, "is_active = ?", &t.ActiveDeals},
		{&entities.Hazard{}, "is_active = ?", &t.ActiveHazards},
		{&entities.Trip{}, "", &t.Trips},
		{&entities.RiverReview{}, "", &t.Reviews},
	}
	for _, c := range counts {
		q := r.db.WithContext(ctx).Model(c.model)
		if c.where != "" {
			q = q.Where(c.where, true)
		}
		if err := q.Count(c.dest).Error; err != nil {
			return Totals{}, fmt.Errorf("failed to count: %w", err)
		}
	}
	return t, nil
}

// ConditionsByQuality counts conditions scraped since, by quality label
func (r *AnalyticsRepository) ConditionsByQuality(ctx context.Context, since time.Time) ([]LabelCount, error) {
	var out []LabelCount
	err := r.db.WithContext(ctx).Model(&entities.RiverCondition{}).
		Select("COALESCE(quality, 'unknown') AS label, COUNT(*) AS count").
		Where("scraped_at >= ?", since).
		Group("label").
		Order("count DESC").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to group conditions: %w", err)
	}
	return out, nil
}

// DealsByCategory counts active deals by category
func (r *AnalyticsRepository) DealsByCategory(ctx context.Context) ([]LabelCount, error) {
	var out []LabelCount
	err := r.db.WithContext(ctx).Model(&entities.GearDeal{}).
		Select("COALESCE(NULLIF(category, ''), 'other') AS label, COUNT(*) AS count").
		Where("is_active = ?", true).
		Group("label").
		Order("count DESC").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to group deals: %w", err)
	}
	return out, nil
}

// TopRatedRivers returns the best rated rivers
func (r *AnalyticsRepository) TopRatedRivers(ctx context.Context, limit int) ([]RatedRiver, error) {
	var out []RatedRiver
	err := r.db.WithContext(ctx).Table("river_reviews").
		Select("river_reviews.river_id AS river_id, rivers.name AS name, AVG(river_reviews.rating) AS average_rating, COUNT(*) AS review_count").
		Joins("JOIN rivers ON rivers.id = river_reviews.river_id").
		Group("river_reviews.river_id, rivers.name").
		Order("average_rating DESC, review_count DESC").
		Limit(limit).
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to rank rivers: %w", err)
	}
	return out, nil
}

// ScrapeSuccessRate returns the share of successful runs since, or 0 with no runs
func (r *AnalyticsRepository) ScrapeSuccessRate(ctx context.Context, since time.Time) (float64, error) {
	var row struct {
		Runs      int64
		Successes int64
	}
	err := r.db.WithContext(ctx).Model(&entities.ScrapeLog{}).
		Select("COUNT(*) AS runs, COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS successes", entities.ScrapeSuccess).
		Where("started_at >= ?", since).
		Scan(&row).Error
	if err != nil {
		return 0, fmt.Errorf("failed to compute success rate: %w", err)
	}
	if row.Runs == 0 {
		return 0, nil
	}
	return float64(row.Successes) / float64(row.Runs), nil
}
