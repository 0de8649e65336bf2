package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/abelzeko/water-watcher/internal/entities"
)

// SourceStats aggregates scrape runs of one source over a window
type SourceStats struct {
	Source      string
	Runs        int64
	Successes   int64
	Items       int64
	AvgDuration float64
}

// ScrapeLogRepository stores scraper run history
type ScrapeLogRepository struct {
	db *gorm.DB
}

// NewScrapeLogRepository creates a scrape log repository
func NewScrapeLogRepository(db *gorm.DB) *ScrapeLogRepository {
	return &ScrapeLogRepository{db: db}
}

// Create inserts a scrape log row
func (r *ScrapeLogRepository) Create(ctx context.Context, l *entities.ScrapeLog) error {
	return translate(r.db.WithContext(ctx).Create(l).Error, "Scrape log")
}

// StatsSince aggregates runs started at or after since, per source
func (r *ScrapeLogRepository) StatsSince(ctx context.Context, since time.Time) (map[string]SourceStats, error) {
	var rows []SourceStats
	err := r.db.WithContext(ctx).Model(&entities.ScrapeLog{}).
		Select(`source,
			COUNT(*) AS runs,
			SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS successes,
			COALESCE(SUM(item_count), 0) AS items,
			COALESCE(AVG(duration), 0) AS avg_duration`, entities.ScrapeSuccess).
		Where("started_at >= ?", since).
		Group("source").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate scrape logs: %w", err)
	}

	out := make(map[string]SourceStats, len(rows))
	for _, s := range rows {
		out[s.Source] = s
	}
	return out, nil
}

// Latest returns the most recent run of a source
func (r *ScrapeLogRepository) Latest(ctx context.Context, source string) (*entities.ScrapeLog, error) {
	var l entities.ScrapeLog
	if err := r.db.WithContext(ctx).Where("source = ?", source).Order("started_at DESC").First(&l).Error; err != nil {
		return nil, translate(err, "Scrape log")
	}
	return &l, nil
}

// RecentBySource returns the newest runs of a source
func (r *ScrapeLogRepository) RecentBySource(ctx context.Context, source string, limit int) ([]entities.ScrapeLog, error) {
	var out []entities.ScrapeLog
	err := r.db.WithContext(ctx).
		Where("source = ?", source).
		Order("started_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list scrape logs: %w", err)
	}
	return out, nil
}
