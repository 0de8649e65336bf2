package repository

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/abelzeko/water-watcher/internal/entities"
)

// RiverFilter narrows a river listing
type RiverFilter struct {
	Search     string
	State      string
	Difficulty string
	Page       Page
}

// RiverRepository defines the interface for river data persistence operations
type RiverRepository interface {
	List(ctx context.Context, filter RiverFilter) ([]entities.River, int64, error)
	ListAll(ctx context.Context) ([]entities.River, error)
	Get(ctx context.Context, id string) (*entities.River, error)
	Create(ctx context.Context, river *entities.River) error
	Update(ctx context.Context, river *entities.River) error
	Delete(ctx context.Context, id string) error
	FindByUSGSGauge(ctx context.Context, gaugeID string) (*entities.River, error)
	FindByAWID(ctx context.Context, awID string) (*entities.River, error)
	FindByName(ctx context.Context, name string) (*entities.River, error)
	ListGaugeIDs(ctx context.Context) ([]string, error)
	ListAWIDs(ctx context.Context) ([]string, error)
	WithTx(tx *gorm.DB) RiverRepository
}

// GormRiverRepository implements RiverRepository with GORM
type GormRiverRepository struct {
	db *gorm.DB
}

// NewRiverRepository creates a river repository
func NewRiverRepository(db *gorm.DB) *GormRiverRepository {
	return &GormRiverRepository{db: db}
}

// WithTx returns a repository bound to the given transaction
func (r *GormRiverRepository) WithTx(tx *gorm.DB) RiverRepository {
	return &GormRiverRepository{db: tx}
}

// List returns one page of rivers ordered by name, plus the total match count
func (r *GormRiverRepository) List(ctx context.Context, filter RiverFilter) ([]entities.River, int64, error) {
	q := r.db.WithContext(ctx).Model(&entities.River{})
	if s := strings.TrimSpace(filter.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(state) LIKE ? OR LOWER(region) LIKE ?", like, like, like)
	}
	if filter.State != "" {
		q = q.Where("state = ?", filter.State)
	}
	if filter.Difficulty != "" {
		q = q.Where("difficulty = ?", filter.Difficulty)
	}

	q = q.Session(&gorm.Session{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count rivers: %w", err)
	}

	var rivers []entities.River
	if err := filter.Page.apply(q).Order("name ASC").Find(&rivers).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list rivers: %w", err)
	}
	return rivers, total, nil
}

// ListAll returns every river ordered by name
func (r *GormRiverRepository) ListAll(ctx context.Context) ([]entities.River, error) {
	var rivers []entities.River
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&rivers).Error; err != nil {
		return nil, fmt.Errorf("failed to list rivers: %w", err)
	}
	return rivers, nil
}

// Get returns a river by ID
func (r *GormRiverRepository) Get(ctx context.Context, id string) (*entities.River, error) {
	var river entities.River
	if err := r.db.WithContext(ctx).First(&river, "id = ?", id).Error; err != nil {
		return nil, translate(err, "River")
	}
	return &river, nil
}

// Create inserts a river
func (r *GormRiverRepository) Create(ctx context.Context, river *entities.River) error {
	return translate(r.db.WithContext(ctx).Create(river).Error, "River")
}

// Update saves every column of the river
func (r *GormRiverRepository) Update(ctx context.Context, river *entities.River) error {
	return translate(r.db.WithContext(ctx).Save(river).Error, "River")
}

// Delete removes a river together with the rows that reference it
func (r *GormRiverRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&entities.River{}, "id = ?", id)
		if res.Error != nil {
			return fmt.Errorf("failed to delete river: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return entities.NotFound("River")
		}
		for _, model := range []any{
			&entities.RiverCondition{},
			&entities.Hazard{},
			&entities.UserRiver{},
			&entities.RiverReview{},
			&entities.TripStop{},
		} {
			if err := tx.Where("river_id = ?", id).Delete(model).Error; err != nil {
				return fmt.Errorf("failed to delete river dependents: %w", err)
			}
		}
		return nil
	})
}

// FindByUSGSGauge returns the river tracked by a USGS gauge
func (r *GormRiverRepository) FindByUSGSGauge(ctx context.Context, gaugeID string) (*entities.River, error) {
	return r.findOne(ctx, "usgs_gauge_id = ?", gaugeID)
}

// FindByAWID returns the river with the given American Whitewater reach ID
func (r *GormRiverRepository) FindByAWID(ctx context.Context, awID string) (*entities.River, error) {
	return r.findOne(ctx, "aw_id = ?", awID)
}

// FindByName returns the first river whose name contains name, case-insensitively
func (r *GormRiverRepository) FindByName(ctx context.Context, name string) (*entities.River, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, entities.NotFound("River")
	}
	if river, err := r.findOne(ctx, "LOWER(name) = ?", strings.ToLower(name)); err == nil {
		return river, nil
	}
	return r.findOne(ctx, "LOWER(name) LIKE ?", "%"+strings.ToLower(name)+"%")
}

// ListGaugeIDs returns every USGS gauge ID that is linked to a river
func (r *GormRiverRepository) ListGaugeIDs(ctx context.Context) ([]string, error) {
	return r.pluck(ctx, "usgs_gauge_id")
}

// ListAWIDs returns every American Whitewater reach ID that is linked to a river
func (r *GormRiverRepository) ListAWIDs(ctx context.Context) ([]string, error) {
	return r.pluck(ctx, "aw_id")
}

func (r *GormRiverRepository) findOne(ctx context.Context, query string, args ...any) (*entities.River, error) {
	var river entities.River
	if err := r.db.WithContext(ctx).Where(query, args...).Order("name ASC").First(&river).Error; err != nil {
		return nil, translate(err, "River")
	}
	return &river, nil
}

func (r *GormRiverRepository) pluck(ctx context.Context, column string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&entities.River{}).
		Where(column+" IS NOT NULL AND "+column+" <> ''").
		Distinct().Order(column).Pluck(column, &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", column, err)
	}
	return ids, nil
}
