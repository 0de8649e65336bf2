package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/abelzeko/water-watcher/internal/entities"
)

// AlertRepository stores the delivered-notification log
type AlertRepository struct {
	db *gorm.DB
}

// NewAlertRepository creates an alert repository
func NewAlertRepository(db *gorm.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create inserts an alert log row
func (r *AlertRepository) Create(ctx context.Context, a *entities.AlertLog) error {
	if a.SentAt.IsZero() {
		a.SentAt = time.Now().UTC()
	}
	return translate(r.db.WithContext(ctx).Create(a).Error, "Alert")
}

// ListForUser returns one page of a user's alerts, newest first
func (r *AlertRepository) ListForUser(ctx context.Context, userID, alertType string, page Page) ([]entities.AlertLog, int64, error) {
	q := r.db.WithContext(ctx).Model(&entities.AlertLog{}).Where("user_id = ?", userID)
	if alertType != "" {
		q = q.Where("type = ?", alertType)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count alerts: %w", err)
	}

	var out []entities.AlertLog
	if err := page.apply(q).Order("sent_at DESC").Find(&out).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list alerts: %w", err)
	}
	return out, total, nil
}
