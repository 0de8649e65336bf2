package usecases

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/abelzeko/water-watcher/internal/entities"
	"github.com/abelzeko/water-watcher/internal/repository"
)

// ReviewInput is the payload for reviewing a river
type ReviewInput struct {
	Rating     int        `json:"rating" binding:"required,min=1,max=5"`
	Title      string     `json:"title" binding:"max=255"`
	Body       string     `json:"body" binding:"required,max=5000"`
	VisitDate  *time.Time `json:"visitDate"`
	Difficulty string     `json:"difficulty" binding:"max=32"`
}

// UpdateReviewInput is a partial review update
type UpdateReviewInput struct {
	Rating     *int       `json:"rating" binding:"omitempty,min=1,max=5"`
	Title      *string    `json:"title" binding:"omitempty,max=255"`
	Body       *string    `json:"body" binding:"omitempty,min=1,max=5000"`
	VisitDate  *time.Time `json:"visitDate"`
	Difficulty *string    `json:"difficulty" binding:"omitempty,max=32"`
}

// ReviewUseCase manages river reviews, one per user per river
type ReviewUseCase struct {
	reviews *repository.ReviewRepository
	rivers  repository.RiverRepository
	log     *zap.Logger
}

// NewReviewUseCase creates a review use case
func NewReviewUseCase(reviews *repository.ReviewRepository, rivers repository.RiverRepository, log *zap.Logger) *ReviewUseCase {
	return &ReviewUseCase{reviews: reviews, rivers: rivers, log: log.Named("reviews")}
}

// List returns one page of a river's reviews
func (uc *ReviewUseCase) List(ctx context.Context, riverID string, page repository.Page) ([]entities.RiverReview, int64, error) {
	if _, err := uc.rivers.Get(ctx, riverID); err != nil {
		return nil, 0, err
	}
	return uc.reviews.ListByRiver(ctx, riverID, page)
}

// Create adds the user's review of a river. A second review is a conflict.
func (uc *ReviewUseCase) Create(ctx context.Context, userID, riverID string, in ReviewInput) (*entities.RiverReview, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return nil, entities.Invalid("Rating must be between 1 and 5")
	}
	body := strings.TrimSpace(in.Body)
	if body == "" {
		return nil, entities.Invalid("Review body is required")
	}
	if _, err := uc.rivers.Get(ctx, riverID); err != nil {
		return nil, err
	}

	rv := &entities.RiverReview{
		RiverID:    riverID,
		UserID:     userID,
		Rating:     in.Rating,
		Title:      strings.TrimSpace(in.Title),
		Body:       body,
		VisitDate:  in.VisitDate,
		Difficulty: in.Difficulty,
	}
	if err := uc.reviews.Create(ctx, rv); err != nil {
		return nil, err
	}
	uc.log.Info("Review created", zap.String("river_id", riverID), zap.String("user_id", userID), zap.Int("rating", in.Rating))
	return rv, nil
}

// Update edits the author's own review
func (uc *ReviewUseCase) Update(ctx context.Context, userID, id string, in UpdateReviewInput) (*entities.RiverReview, error) {
	rv, err := uc.reviews.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rv.UserID != userID {
		return nil, entities.NewDomainError(entities.CodeForbidden, "You can only edit your own reviews")
	}
	if in.Rating != nil {
		if *in.Rating < 1 || *in.Rating > 5 {
			return nil, entities.Invalid("Rating must be between 1 and 5")
		}
		rv.Rating = *in.Rating
	}
	if in.Title != nil {
		rv.Title = strings.TrimSpace(*in.Title)
	}
	if in.Body != nil {
		rv.Body = strings.TrimSpace(*in.Body)
		if rv.Body == "" {
			return nil, entities.Invalid("Review body is required")
		}
	}
	if in.VisitDate != nil {
		rv.VisitDate = in.VisitDate
	}
	if in.Difficulty != nil {
		rv.Difficulty = *in.Difficulty
	}
	if err := uc.reviews.Update(ctx, rv); err != nil {
		return nil, err
	}
	return rv, nil
}

// Delete removes a review. Admins may delete any review.
func (uc *ReviewUseCase) Delete(ctx context.Context, userID string, isAdmin bool, id string) error {
	rv, err := uc.reviews.Get(ctx, id)
	if err != nil {
		return err
	}
	if rv.UserID != userID && !isAdmin {
		return entities.NewDomainError(entities.CodeForbidden, "You can only delete your own reviews")
	}
	return uc.reviews.Delete(ctx, id)
}
