package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/abelzeko/water-watcher/internal/entities"
)

// DealQuery narrows a deal listing
type DealQuery struct {
	Search   string
	Category string
	Region   string
	MaxPrice *float64
	Page     Page
}

// DealRepository stores gear deals, saved filters and their matches
type DealRepository struct {
	db *gorm.DB
}

// NewDealRepository creates a deal repository
func NewDealRepository(db *gorm.DB) *DealRepository {
	return &DealRepository{db: db}
}

// WithTx returns a repository bound to the given transaction
func (r *DealRepository) WithTx(tx *gorm.DB) *DealRepository {
	return &DealRepository{db: tx}
}

// ExistsURL reports whether a deal with this URL is already stored
func (r *DealRepository) ExistsURL(ctx context.Context, url string) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&entities.GearDeal{}).Where("url = ?", url).Count(&n).Error; err != nil {
		return false, fmt.Errorf("failed to check deal url: %w", err)
	}
	return n > 0, nil
}

// Create inserts a deal
func (r *DealRepository) Create(ctx context.Context, d *entities.GearDeal) error {
	if d.ScrapedAt.IsZero() {
		d.ScrapedAt = time.Now().UTC()
	}
	return translate(r.db.WithContext(ctx).Create(d).Error, "Deal")
}

// Get returns a deal by ID
func (r *DealRepository) Get(ctx context.Context, id string) (*entities.GearDeal, error) {
	var d entities.GearDeal
	if err := r.db.WithContext(ctx).First(&d, "id = ?", id).Error; err != nil {
		return nil, translate(err, "Deal")
	}
	return &d, nil
}

// List returns one page of active deals, newest first, plus the total
func (r *DealRepository) List(ctx context.Context, query DealQuery) ([]entities.GearDeal, int64, error) {
	q := r.db.WithContext(ctx).Model(&entities.GearDeal{}).Where("is_active = ?", true)
	if s := strings.TrimSpace(query.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", like, like)
	}
	if query.Category != "" {
		q = q.Where("category = ?", strings.ToLower(query.Category))
	}
	if query.Region != "" {
		q = q.Where("LOWER(region) = ?", strings.ToLower(query.Region))
	}
	if query.MaxPrice != nil {
		q = q.Where("price IS NOT NULL AND price <= ?", *query.MaxPrice)
	}

	q = q.Session(&gorm.Session{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count deals: %w", err)
	}

	var deals []entities.GearDeal
	if err := query.Page.apply(q).Order("scraped_at DESC").Find(&deals).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list deals: %w", err)
	}
	return deals, total, nil
}

// CreateFilter inserts a saved filter
func (r *DealRepository) CreateFilter(ctx context.Context, f *entities.DealFilter) error {
	return translate(r.db.WithContext(ctx).Create(f).Error, "Deal filter")
}

// ListFilters returns a user's filters
func (r *DealRepository) ListFilters(ctx context.Context, userID string) ([]entities.DealFilter, error) {
	var out []entities.DealFilter
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list deal filters: %w", err)
	}
	return out, nil
}

// GetFilter returns a filter by ID
func (r *DealRepository) GetFilter(ctx context.Context, id string) (*entities.DealFilter, error) {
	var f entities.DealFilter
	if err := r.db.WithContext(ctx).First(&f, "id = ?", id).Error; err != nil {
		return nil, translate(err, "Deal filter")
	}
	return &f, nil
}

// UpdateFilter saves every column of the filter
func (r *DealRepository) UpdateFilter(ctx context.Context, f *entities.DealFilter) error {
	return translate(r.db.WithContext(ctx).Save(f).Error, "Deal filter")
}

// DeleteFilter removes a filter and its matches
func (r *DealRepository) DeleteFilter(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("filter_id = ?", id).Delete(&entities.DealFilterMatch{}).Error; err != nil {
			return fmt.Errorf("failed to delete filter matches: %w", err)
		}
		res := tx.Delete(&entities.DealFilter{}, "id = ?", id)
		if res.Error != nil {
			return fmt.Errorf("failed to delete deal filter: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return entities.NotFound("Deal filter")
		}
		return nil
	})
}

// ActiveFilters returns every active filter across all users
func (r *DealRepository) ActiveFilters(ctx context.Context) ([]entities.DealFilter, error) {
	var out []entities.DealFilter
	if err := r.db.WithContext(ctx).Where("is_active = ?", true).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to load active filters: %w", err)
	}
	return out, nil
}

// CreateMatch records a filter match; an existing pair is left untouched
func (r *DealRepository) CreateMatch(ctx context.Context, m *entities.DealFilterMatch) error {
	err := r.db.WithContext(ctx).Create(m).Error
	if err != nil && isUniqueViolation(err) {
		return nil
	}
	return translate(err, "Deal match")
}

// MarkNotified flags a filter match as notified
func (r *DealRepository) MarkNotified(ctx context.Context, filterID, dealID string) error {
	err := r.db.WithContext(ctx).Model(&entities.DealFilterMatch{}).
		Where("filter_id = ? AND deal_id = ?", filterID, dealID).
		Update("notified", true).Error
	if err != nil {
		return fmt.Errorf("failed to mark match notified: %w", err)
	}
	return nil
}

// MatchesSince returns matches created after since, with their deal and filter
func (r *DealRepository) MatchesSince(ctx context.Context, since time.Time, limit int) ([]entities.DealFilterMatch, error) {
	var out []entities.DealFilterMatch
	err := r.db.WithContext(ctx).
		Preload("Deal").
		Preload("Filter").
		Where("created_at > ?", since).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list matches since %s: %w", since.Format(time.RFC3339), err)
	}
	return out, nil
}

// ListMatchesForUser returns one page of matches across a user's filters
func (r *DealRepository) ListMatchesForUser(ctx context.Context, userID string, page Page) ([]entities.DealFilterMatch, int64, error) {
	q := r.db.WithContext(ctx).Model(&entities.DealFilterMatch{}).
		Where("filter_id IN (?)", r.db.Model(&entities.DealFilter{}).Select("id").Where("user_id = ?", userID))

	q = q.Session(&gorm.Session{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count matches: %w", err)
	}

	var out []entities.DealFilterMatch
	if err := page.apply(q).Preload("Deal").Preload("Filter").Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list matches: %w", err)
	}
	return out, total, nil
}

// ListForExport returns active deals newest first
func (r *DealRepository) ListForExport(ctx context.Context, limit int) ([]entities.GearDeal, error) {
	var out []entities.GearDeal
	if err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("scraped_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list deals: %w", err)
	}
	return out, nil
}
