package usecases

import (
	"context"

	"github.com/abelzeko/water-watcher/internal/entities"
	"github.com/abelzeko/water-watcher/internal/repository"
)

// AlertUseCase lists the notifications a user has received
type AlertUseCase struct {
	alerts *repository.AlertRepository
}

// NewAlertUseCase creates an alert use case
func NewAlertUseCase(alerts *repository.AlertRepository) *AlertUseCase {
	return &AlertUseCase{alerts: alerts}
}

// List returns one page of the user's alerts, optionally of one type
func (uc *AlertUseCase) List(ctx context.Context, userID, alertType string, page repository.Page) ([]entities.AlertLog, int64, error) {
	switch alertType {
	case "", entities.AlertDeal, entities.AlertCondition, entities.AlertHazard, entities.AlertDigest:
	default:
		return nil, 0, entities.Invalid("Type must be one of deal, condition, hazard, digest")
	}
	return uc.alerts.ListForUser(ctx, userID, alertType, page)
}
