// Package usecases contains the application's business logic
package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/abelzeko/water-watcher/internal/entities"
	"github.com/abelzeko/water-watcher/internal/repository"
)

// Condition history bounds for a river
const (
	DefaultConditionLimit = 20
	MaxConditionLimit     = 100
)

// CreateRiverInput is the payload for adding a river
type CreateRiverInput struct {
	Name        string   `json:"name" binding:"required,max=255"`
	State       string   `json:"state" binding:"required,max=64"`
	Region      string   `json:"region" binding:"max=128"`
	Latitude    *float64 `json:"latitude" binding:"omitempty,latitude"`
	Longitude   *float64 `json:"longitude" binding:"omitempty,longitude"`
	Difficulty  string   `json:"difficulty" binding:"max=32"`
	Description string   `json:"description"`
	AWID        *string  `json:"awId" binding:"omitempty,max=64"`
	USGSGaugeID *string  `json:"usgsGaugeId" binding:"omitempty,numeric,max=32"`
	ImageURL    string   `json:"imageUrl" binding:"omitempty,url"`
}

// UpdateRiverInput is a partial river update; nil fields are left unchanged
type UpdateRiverInput struct {
	Name        *string  `json:"name" binding:"omitempty,min=1,max=255"`
	State       *string  `json:"state" binding:"omitempty,min=1,max=64"`
	Region      *string  `json:"region" binding:"omitempty,max=128"`
	Latitude    *float64 `json:"latitude" binding:"omitempty,latitude"`
	Longitude   *float64 `json:"longitude" binding:"omitempty,longitude"`
	Difficulty  *string  `json:"difficulty" binding:"omitempty,max=32"`
	Description *string  `json:"description"`
	AWID        *string  `json:"awId" binding:"omitempty,max=64"`
	USGSGaugeID *string  `json:"usgsGaugeId" binding:"omitempty,numeric,max=32"`
	ImageURL    *string  `json:"imageUrl" binding:"omitempty,url"`
}

// RiverUseCase handles business logic related to river data
type RiverUseCase struct {
	repo       repository.RiverRepository
	conditions *repository.ConditionRepository
	hazards    *repository.HazardRepository
	reviews    *repository.ReviewRepository
	log        *zap.Logger
}

// NewRiverUseCase creates a new river use case
func NewRiverUseCase(
	repo repository.RiverRepository,
	conditions *repository.ConditionRepository,
	hazards *repository.HazardRepository,
	reviews *repository.ReviewRepository,
	log *zap.Logger,
) *RiverUseCase {
	return &RiverUseCase{
		repo:       repo,
		conditions: conditions,
		hazards:    hazards,
		reviews:    reviews,
		log:        log.Named("rivers"),
	}
}

// List returns one page of rivers matching the filter
func (uc *RiverUseCase) List(ctx context.Context, filter repository.RiverFilter) ([]entities.River, int64, error) {
	return uc.repo.List(ctx, filter)
}

// ListAll returns every river ordered by name
func (uc *RiverUseCase) ListAll(ctx context.Context) ([]entities.River, error) {
	return uc.repo.ListAll(ctx)
}

// Get returns a river with its latest condition, active hazards and rating
func (uc *RiverUseCase) Get(ctx context.Context, id string) (*entities.RiverSummary, error) {
	river, err := uc.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return uc.summarize(ctx, river)
}

// FindByName resolves a river by (partial) name and returns its summary
func (uc *RiverUseCase) FindByName(ctx context.Context, name string) (*entities.RiverSummary, error) {
	river, err := uc.repo.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return uc.summarize(ctx, river)
}

func (uc *RiverUseCase) summarize(ctx context.Context, river *entities.River) (*entities.RiverSummary, error) {
	summary := &entities.RiverSummary{River: *river, ActiveHazards: []entities.Hazard{}}

	latest, err := uc.conditions.Latest(ctx, river.ID)
	switch {
	case err == nil:
		summary.LatestCondition = latest
	case !isNotFound(err):
		return nil, err
	}

	hazards, err := uc.hazards.ListActiveByRiver(ctx, river.ID)
	if err != nil {
		return nil, err
	}
	if hazards != nil {
		summary.ActiveHazards = hazards
	}

	rating, err := uc.reviews.AverageRating(ctx, river.ID)
	if err != nil {
		return nil, err
	}
	summary.AverageRating = rating.Average
	summary.ReviewCount = rating.Count
	return summary, nil
}

// Create adds a river
func (uc *RiverUseCase) Create(ctx context.Context, in CreateRiverInput) (*entities.River, error) {
	river := &entities.River{
		Name:        strings.TrimSpace(in.Name),
		State:       strings.TrimSpace(in.State),
		Region:      in.Region,
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		Difficulty:  in.Difficulty,
		Description: in.Description,
		AWID:        blankToNil(in.AWID),
		USGSGaugeID: blankToNil(in.USGSGaugeID),
		ImageURL:    in.ImageURL,
	}
	if river.Name == "" || river.State == "" {
		return nil, entities.Invalid("name and state are required")
	}
	if err := uc.repo.Create(ctx, river); err != nil {
		return nil, err
	}
	uc.log.Info("River created", zap.String("river_id", river.ID), zap.String("name", river.Name))
	return river, nil
}

// Update applies a partial update to a river
func (uc *RiverUseCase) Update(ctx context.Context, id string, in UpdateRiverInput) (*entities.River, error) {
	river, err := uc.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		river.Name = strings.TrimSpace(*in.Name)
	}
	if in.State != nil {
		river.State = strings.TrimSpace(*in.State)
	}
	if in.Region != nil {
		river.Region = *in.Region
	}
	if in.Latitude != nil {
		river.Latitude = in.Latitude
	}
	if in.Longitude != nil {
		river.Longitude = in.Longitude
	}
	if in.Difficulty != nil {
		river.Difficulty = *in.Difficulty
	}
	if in.Description != nil {
		river.Description = *in.Description
	}
	if in.AWID != nil {
		river.AWID = blankToNil(in.AWID)
	}
	if in.USGSGaugeID != nil {
		river.USGSGaugeID = blankToNil(in.USGSGaugeID)
	}
	if in.ImageURL != nil {
		river.ImageURL = *in.ImageURL
	}
	if river.Name == "" || river.State == "" {
		return nil, entities.Invalid("name and state cannot be empty")
	}

	if err := uc.repo.Update(ctx, river); err != nil {
		return nil, err
	}
	return river, nil
}

// Delete removes a river and everything attached to it
func (uc *RiverUseCase) Delete(ctx context.Context, id string) error {
	if err := uc.repo.Delete(ctx, id); err != nil {
		return err
	}
	uc.log.Info("River deleted", zap.String("river_id", id))
	return nil
}

// Conditions returns a river's newest conditions; limit is clamped to 1..100
func (uc *RiverUseCase) Conditions(ctx context.Context, riverID string, limit int) ([]entities.RiverCondition, error) {
	if _, err := uc.repo.Get(ctx, riverID); err != nil {
		return nil, err
	}
	switch {
	case limit == 0:
		limit = DefaultConditionLimit
	case limit < 1:
		limit = 1
	case limit > MaxConditionLimit:
		limit = MaxConditionLimit
	}
	return uc.conditions.ListByRiver(ctx, riverID, limit)
}

// Hazards returns a river's active hazards
func (uc *RiverUseCase) Hazards(ctx context.Context, riverID string) ([]entities.Hazard, error) {
	if _, err := uc.repo.Get(ctx, riverID); err != nil {
		return nil, err
	}
	return uc.hazards.ListActiveByRiver(ctx, riverID)
}

// ListHazards returns one page of active hazards across rivers
func (uc *RiverUseCase) ListHazards(ctx context.Context, severity string, page repository.Page) ([]entities.Hazard, int64, error) {
	switch strings.ToLower(severity) {
	case "", entities.SeverityInfo, entities.SeverityWarning, entities.SeverityDanger:
	default:
		return nil, 0, entities.Invalid("severity must be info, warning or danger")
	}
	return uc.hazards.List(ctx, repository.HazardFilter{Severity: severity, ActiveOnly: true, Page: page})
}

var qualityEmoji = map[string]string{
	entities.QualityExcellent: "🟢",
	entities.QualityGood:      "🟢",
	entities.QualityFair:      "🟡",
	entities.QualityPoor:      "🟠",
	entities.QualityDangerous: "🔴",
}

// FormatRiverInfo formats a river summary for chat display
func (uc *RiverUseCase) FormatRiverInfo(s *entities.RiverSummary) string {
	if s == nil {
		return "No information available for this river."
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Information for %s (%s):\n", s.Name, s.State))
	if s.Difficulty != "" {
		result.WriteString(fmt.Sprintf("🧭 Difficulty: %s\n", s.Difficulty))
	}
	result.WriteString("\n")

	c := s.LatestCondition
	if c == nil {
		result.WriteString("No condition reports yet.\n")
	} else {
		if q := c.QualityValue(); q != "" {
			result.WriteString(fmt.Sprintf("%s Quality: %s\n", qualityEmoji[q], q))
		}
		if r := c.RunnabilityValue(); r != "" {
			result.WriteString(fmt.Sprintf("🚣 Runnability: %s\n", strings.ReplaceAll(r, "_", " ")))
		}
		if c.FlowRate != nil {
			result.WriteString(fmt.Sprintf("💧 Flow: %.0f cfs\n", *c.FlowRate))
		}
		// Only include fields that have values
		if c.GaugeHeight != nil {
			result.WriteString(fmt.Sprintf("📏 Gauge height: %.2f ft\n", *c.GaugeHeight))
		}
		if c.WaterTemp != nil {
			result.WriteString(fmt.Sprintf("🌡️ Water temperature: %.1f °F\n", *c.WaterTemp))
		}
		result.WriteString(fmt.Sprintf("🕒 Last update: %s (%s)\n", c.ScrapedAt.Format("2006-01-02 15:04 MST"), c.Source))
	}

	if len(s.ActiveHazards) > 0 {
		result.WriteString(fmt.Sprintf("\n⚠️ %d active hazard(s), see /hazards %s\n", len(s.ActiveHazards), s.Name))
	}
	if s.ReviewCount > 0 {
		result.WriteString(fmt.Sprintf("⭐ %.1f from %d review(s)\n", s.AverageRating, s.ReviewCount))
	}

	return strings.TrimRight(result.String(), "\n")
}

// FormatHazards formats a river's active hazards for chat display
func (uc *RiverUseCase) FormatHazards(riverName string, hazards []entities.Hazard) string {
	if len(hazards) == 0 {
		return fmt.Sprintf("✅ No active hazards on %s.", riverName)
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Active hazards on %s:\n", riverName))
	for _, h := range hazards {
		result.WriteString(fmt.Sprintf("\n%s %s [%s]\n", severityIcon(h.Severity), h.Title, h.Severity))
		if h.Description != "" {
			result.WriteString(truncateRunes(h.Description, 200) + "\n")
		}
		if h.ExpiresAt != nil {
			result.WriteString(fmt.Sprintf("Until %s\n", h.ExpiresAt.Format("2006-01-02")))
		}
	}
	return strings.TrimRight(result.String(), "\n")
}

func severityIcon(severity string) string {
	switch severity {
	case entities.SeverityDanger:
		return "🔴"
	case entities.SeverityWarning:
		return "⚠️"
	}
	return "ℹ️"
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func blankToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func isNotFound(err error) bool {
	return errors.Is(err, entities.ErrNotFound)
}
