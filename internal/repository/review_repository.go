package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/abelzeko/water-watcher/internal/entities"
)

// ReviewRepository stores river reviews
type ReviewRepository struct {
	db *gorm.DB
}

// NewReviewRepository creates a review repository
func NewReviewRepository(db *gorm.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// Create inserts a review; a second review of the same river by the same
// user is a conflict
func (r *ReviewRepository) Create(ctx context.Context, rv *entities.RiverReview) error {
	err := r.db.WithContext(ctx).Omit("User").Create(rv).Error
	if err != nil && isUniqueViolation(err) {
		return entities.NewDomainError(entities.CodeConflict, "You have already reviewed this river")
	}
	return translate(err, "Review")
}

// Get returns a review by ID
func (r *ReviewRepository) Get(ctx context.Context, id string) (*entities.RiverReview, error) {
	var rv entities.RiverReview
	if err := r.db.WithContext(ctx).First(&rv, "id = ?", id).Error; err != nil {
		return nil, translate(err, "Review")
	}
	return &rv, nil
}

// ListByRiver returns one page of a river's reviews, newest first, with authors
func (r *ReviewRepository) ListByRiver(ctx context.Context, riverID string, page Page) ([]entities.RiverReview, int64, error) {
	q := r.db.WithContext(ctx).Model(&entities.RiverReview{}).Where("river_id = ?", riverID).Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count reviews: %w", err)
	}

	var out []entities.RiverReview
	if err := page.apply(q).Preload("User").Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list reviews: %w", err)
	}
	return out, total, nil
}

// Update saves a review's columns
func (r *ReviewRepository) Update(ctx context.Context, rv *entities.RiverReview) error {
	return translate(r.db.WithContext(ctx).Omit("User").Save(rv).Error, "Review")
}

// Delete removes a review
func (r *ReviewRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&entities.RiverReview{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete review: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return entities.NotFound("Review")
	}
	return nil
}

// RatingSummary is the average rating and review count of a river
type RatingSummary struct {
	Average float64
	Count   int64
}

// AverageRating returns a river's mean rating and review count
func (r *ReviewRepository) AverageRating(ctx context.Context, riverID string) (RatingSummary, error) {
	var row struct {
		Average *float64
		Count   int64
	}
	err := r.db.WithContext(ctx).Model(&entities.RiverReview{}).
		Select("AVG(rating) AS average, COUNT(*) AS count").
		Where("river_id = ?", riverID).
		Scan(&row).Error
	if err != nil {
		return RatingSummary{}, fmt.Errorf("failed to compute rating: %w", err)
	}
	out := RatingSummary{Count: row.Count}
	if row.Average != nil {
		out.Average = *row.Average
	}
	return out, nil
}
