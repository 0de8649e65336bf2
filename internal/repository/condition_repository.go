package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/abelzeko/water-watcher/internal/entities"
)

// ConditionRepository stores river condition snapshots
type ConditionRepository struct {
	db *gorm.DB
}

// NewConditionRepository creates a condition repository
func NewConditionRepository(db *gorm.DB) *ConditionRepository {
	return &ConditionRepository{db: db}
}

// WithTx returns a repository bound to the given transaction
func (r *ConditionRepository) WithTx(tx *gorm.DB) *ConditionRepository {
	return &ConditionRepository{db: tx}
}

// Create inserts a condition
func (r *ConditionRepository) Create(ctx context.Context, c *entities.RiverCondition) error {
	if c.ScrapedAt.IsZero() {
		c.ScrapedAt = time.Now().UTC()
	}
	return translate(r.db.WithContext(ctx).Create(c).Error, "Condition")
}

// Latest returns the most recent condition of a river
func (r *ConditionRepository) Latest(ctx context.Context, riverID string) (*entities.RiverCondition, error) {
	var c entities.RiverCondition
	err := r.db.WithContext(ctx).
		Where("river_id = ?", riverID).
		Order("scraped_at DESC").
		First(&c).Error
	if err != nil {
		return nil, translate(err, "Condition")
	}
	return &c, nil
}

// ListByRiver returns the newest conditions of a river
func (r *ConditionRepository) ListByRiver(ctx context.Context, riverID string, limit int) ([]entities.RiverCondition, error) {
	var out []entities.RiverCondition
	err := r.db.WithContext(ctx).
		Where("river_id = ?", riverID).
		Order("scraped_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conditions: %w", err)
	}
	return out, nil
}

// RecentSince returns the newest conditions of a river scraped at or after cutoff
func (r *ConditionRepository) RecentSince(ctx context.Context, riverID string, cutoff time.Time, limit int) ([]entities.RiverCondition, error) {
	var out []entities.RiverCondition
	err := r.db.WithContext(ctx).
		Where("river_id = ? AND scraped_at >= ?", riverID, cutoff).
		Order("scraped_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list recent conditions: %w", err)
	}
	return out, nil
}

// ListSince returns conditions stored after since across all rivers, newest
// first. It filters on created_at: scraped_at is the upstream reading time
// and can be hours older than the row.
func (r *ConditionRepository) ListSince(ctx context.Context, since time.Time, limit int) ([]entities.RiverCondition, error) {
	var out []entities.RiverCondition
	err := r.db.WithContext(ctx).
		Preload("River").
		Where("created_at > ?", since).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conditions since %s: %w", since.Format(time.RFC3339), err)
	}
	return out, nil
}

// LatestPerRiver returns the newest condition for each of the given rivers
func (r *ConditionRepository) LatestPerRiver(ctx context.Context, riverIDs []string) (map[string]entities.RiverCondition, error) {
	out := make(map[string]entities.RiverCondition, len(riverIDs))
	if len(riverIDs) == 0 {
		return out, nil
	}

	latest := r.db.Model(&entities.RiverCondition{}).
		Select("river_id, MAX(scraped_at) AS scraped_at").
		Where("river_id IN ?", riverIDs).
		Group("river_id")

	var rows []entities.RiverCondition
	err := r.db.WithContext(ctx).
		Joins("JOIN (?) AS latest ON latest.river_id = river_conditions.river_id AND latest.scraped_at = river_conditions.scraped_at", latest).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load latest conditions: %w", err)
	}
	for _, c := range rows {
		out[c.RiverID] = c
	}
	return out, nil
}

// ListForExport returns conditions newest first, optionally for one river
func (r *ConditionRepository) ListForExport(ctx context.Context, riverID string, limit int) ([]entities.RiverCondition, error) {
	q := r.db.WithContext(ctx).Preload("River").Order("scraped_at DESC").Limit(limit)
	if riverID != "" {
		q = q.Where("river_id = ?", riverID)
	}
	var out []entities.RiverCondition
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list conditions: %w", err)
	}
	return out, nil
}
