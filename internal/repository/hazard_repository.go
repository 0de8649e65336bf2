package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/abelzeko/water-watcher/internal/entities"
)

// HazardFilter narrows a hazard listing
type HazardFilter struct {
	RiverID    string
	Severity   string
	ActiveOnly bool
	Page       Page
}

// HazardRepository stores river hazards
type HazardRepository struct {
	db *gorm.DB
}

// NewHazardRepository creates a hazard repository
func NewHazardRepository(db *gorm.DB) *HazardRepository {
	return &HazardRepository{db: db}
}

// WithTx returns a repository bound to the given transaction
func (r *HazardRepository) WithTx(tx *gorm.DB) *HazardRepository {
	return &HazardRepository{db: tx}
}

// Create inserts a hazard
func (r *HazardRepository) Create(ctx context.Context, h *entities.Hazard) error {
	if h.ReportedAt.IsZero() {
		h.ReportedAt = time.Now().UTC()
	}
	return translate(r.db.WithContext(ctx).Create(h).Error, "Hazard")
}

// FindActiveByTitle returns the active hazard of a river with the given title
func (r *HazardRepository) FindActiveByTitle(ctx context.Context, riverID, title string) (*entities.Hazard, error) {
	var h entities.Hazard
	err := r.db.WithContext(ctx).
		Where("river_id = ? AND title = ? AND is_active = ?", riverID, title, true).
		First(&h).Error
	if err != nil {
		return nil, translate(err, "Hazard")
	}
	return &h, nil
}

// ListActiveByRiver returns a river's active hazards, newest first
func (r *HazardRepository) ListActiveByRiver(ctx context.Context, riverID string) ([]entities.Hazard, error) {
	var out []entities.Hazard
	err := r.db.WithContext(ctx).
		Where("river_id = ? AND is_active = ?", riverID, true).
		Order("reported_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list hazards: %w", err)
	}
	return out, nil
}

// ListActiveSince returns active hazards created after since, with their river
func (r *HazardRepository) ListActiveSince(ctx context.Context, since time.Time, limit int) ([]entities.Hazard, error) {
	var out []entities.Hazard
	err := r.db.WithContext(ctx).
		Preload("River").
		Where("is_active = ? AND created_at > ?", true, since).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list hazards since %s: %w", since.Format(time.RFC3339), err)
	}
	return out, nil
}

// ExpireStale deactivates hazards whose expiry has passed and returns how many changed
func (r *HazardRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&entities.Hazard{}).
		Where("is_active = ? AND expires_at IS NOT NULL AND expires_at < ?", true, now).
		Update("is_active", false)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to expire hazards: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// List returns one page of hazards, newest first, plus the total
func (r *HazardRepository) List(ctx context.Context, filter HazardFilter) ([]entities.Hazard, int64, error) {
	q := r.db.WithContext(ctx).Model(&entities.Hazard{})
	if filter.RiverID != "" {
		q = q.Where("river_id = ?", filter.RiverID)
	}
	if filter.Severity != "" {
		q = q.Where("severity = ?", strings.ToLower(filter.Severity))
	}
	if filter.ActiveOnly {
		q = q.Where("is_active = ?", true)
	}

	q = q.Session(&gorm.Session{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count hazards: %w", err)
	}

	var out []entities.Hazard
	if err := filter.Page.apply(q).Preload("River").Order("reported_at DESC").Find(&out).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list hazards: %w", err)
	}
	return out, total, nil
}
