package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/abelzeko/water-watcher/internal/entities"
)

// TripRepository stores trips and their stops
type TripRepository struct {
	db *gorm.DB
}

// NewTripRepository creates a trip repository
func NewTripRepository(db *gorm.DB) *TripRepository {
	return &TripRepository{db: db}
}

func orderedStops(db *gorm.DB) *gorm.DB {
	return db.Order("day_number ASC, sort_order ASC")
}

// Create inserts a trip with any stops it carries
func (r *TripRepository) Create(ctx context.Context, t *entities.Trip) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(t).Error; err != nil {
			return translate(err, "Trip")
		}
		for i := range t.Stops {
			t.Stops[i].TripID = t.ID
			if err := tx.Omit("River").Create(&t.Stops[i]).Error; err != nil {
				return translate(err, "Trip stop")
			}
		}
		return nil
	})
}

// Get returns a trip with its stops in day order
func (r *TripRepository) Get(ctx context.Context, id string) (*entities.Trip, error) {
	var t entities.Trip
	err := r.db.WithContext(ctx).
		Preload("Stops", orderedStops).
		Preload("Stops.River").
		First(&t, "id = ?", id).Error
	if err != nil {
		return nil, translate(err, "Trip")
	}
	return &t, nil
}

// ListByUser returns one page of a user's trips, soonest first
func (r *TripRepository) ListByUser(ctx context.Context, userID, status string, page Page) ([]entities.Trip, int64, error) {
	q := r.db.WithContext(ctx).Model(&entities.Trip{}).Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count trips: %w", err)
	}

	var out []entities.Trip
	err := page.apply(q).
		Preload("Stops", orderedStops).
		Order("start_date ASC").
		Find(&out).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list trips: %w", err)
	}
	return out, total, nil
}

// Update saves the trip's own columns; stops are managed separately
func (r *TripRepository) Update(ctx context.Context, t *entities.Trip) error {
	return translate(r.db.WithContext(ctx).Omit("Stops").Save(t).Error, "Trip")
}

// Delete removes a trip and its stops
func (r *TripRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("trip_id = ?", id).Delete(&entities.TripStop{}).Error; err != nil {
			return fmt.Errorf("failed to delete trip stops: %w", err)
		}
		res := tx.Delete(&entities.Trip{}, "id = ?", id)
		if res.Error != nil {
			return fmt.Errorf("failed to delete trip: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return entities.NotFound("Trip")
		}
		return nil
	})
}

// AddStop inserts a stop into a trip
func (r *TripRepository) AddStop(ctx context.Context, s *entities.TripStop) error {
	return translate(r.db.WithContext(ctx).Omit("River").Create(s).Error, "Trip stop")
}

// RemoveStop deletes a stop that belongs to the trip
func (r *TripRepository) RemoveStop(ctx context.Context, tripID, stopID string) error {
	res := r.db.WithContext(ctx).Where("id = ? AND trip_id = ?", stopID, tripID).Delete(&entities.TripStop{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete trip stop: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return entities.NotFound("Trip stop")
	}
	return nil
}

// ListForExport returns a user's trips with stops and rivers loaded
func (r *TripRepository) ListForExport(ctx context.Context, userID string) ([]entities.Trip, error) {
	var out []entities.Trip
	err := r.db.WithContext(ctx).
		Preload("Stops", orderedStops).
		Preload("Stops.River").
		Where("user_id = ?", userID).
		Order("start_date ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list trips: %w", err)
	}
	return out, nil
}
