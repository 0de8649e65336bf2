package usecases

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/abelzeko/water-watcher/internal/entities"
	"github.com/abelzeko/water-watcher/internal/repository"
)

// DealFilterInput creates a saved deal search
type DealFilterInput struct {
	Name       string   `json:"name" binding:"required,max=255"`
	Keywords   []string `json:"keywords" binding:"required,min=1,dive,required,max=64"`
	Categories []string `json:"categories" binding:"omitempty,dive,oneof=raft kayak paddle pfd drysuit other"`
	MaxPrice   *float64 `json:"maxPrice" binding:"omitempty,gt=0"`
	Regions    []string `json:"regions" binding:"omitempty,dive,max=64"`
	IsActive   *bool    `json:"isActive"`
}

// UpdateDealFilterInput is a partial filter update
type UpdateDealFilterInput struct {
	Name       *string  `json:"name" binding:"omitempty,min=1,max=255"`
	Keywords   []string `json:"keywords" binding:"omitempty,min=1,dive,required,max=64"`
	Categories []string `json:"categories" binding:"omitempty,dive,oneof=raft kayak paddle pfd drysuit other"`
	MaxPrice   *float64 `json:"maxPrice" binding:"omitempty,gte=0"`
	Regions    []string `json:"regions" binding:"omitempty,dive,max=64"`
	IsActive   *bool    `json:"isActive"`
}

// DealUseCase serves gear deals and users' saved filters
type DealUseCase struct {
	deals *repository.DealRepository
	log   *zap.Logger
}

// NewDealUseCase creates a deal use case
func NewDealUseCase(deals *repository.DealRepository, log *zap.Logger) *DealUseCase {
	return &DealUseCase{deals: deals, log: log.Named("deals")}
}

// List returns one page of active deals
func (uc *DealUseCase) List(ctx context.Context, query repository.DealQuery) ([]entities.GearDeal, int64, error) {
	return uc.deals.List(ctx, query)
}

// Get returns a single deal
func (uc *DealUseCase) Get(ctx context.Context, id string) (*entities.GearDeal, error) {
	return uc.deals.Get(ctx, id)
}

// ListFilters returns the user's saved filters
func (uc *DealUseCase) ListFilters(ctx context.Context, userID string) ([]entities.DealFilter, error) {
	return uc.deals.ListFilters(ctx, userID)
}

// GetFilter returns one of the user's filters
func (uc *DealUseCase) GetFilter(ctx context.Context, userID, id string) (*entities.DealFilter, error) {
	f, err := uc.deals.GetFilter(ctx, id)
	if err != nil {
		return nil, err
	}
	if f.UserID != userID {
		return nil, entities.NotFound("Deal filter")
	}
	return f, nil
}

// CreateFilter saves a new filter for the user
func (uc *DealUseCase) CreateFilter(ctx context.Context, userID string, in DealFilterInput) (*entities.DealFilter, error) {
	keywords := normalizeTerms(in.Keywords)
	if len(keywords) == 0 {
		return nil, entities.Invalid("At least one keyword is required")
	}
	f := &entities.DealFilter{
		UserID:     userID,
		Name:       strings.TrimSpace(in.Name),
		Keywords:   keywords,
		Categories: normalizeTerms(in.Categories),
		MaxPrice:   in.MaxPrice,
		Regions:    normalizeTerms(in.Regions),
		IsActive:   in.IsActive == nil || *in.IsActive,
	}
	if f.Name == "" {
		return nil, entities.Invalid("Filter name is required")
	}
	if err := uc.deals.CreateFilter(ctx, f); err != nil {
		return nil, err
	}
	uc.log.Info("Deal filter created", zap.String("user_id", userID), zap.String("filter_id", f.ID))
	return f, nil
}

// UpdateFilter applies a partial update to one of the user's filters
func (uc *DealUseCase) UpdateFilter(ctx context.Context, userID, id string, in UpdateDealFilterInput) (*entities.DealFilter, error) {
	f, err := uc.GetFilter(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		f.Name = strings.TrimSpace(*in.Name)
		if f.Name == "" {
			return nil, entities.Invalid("Filter name is required")
		}
	}
	if in.Keywords != nil {
		f.Keywords = normalizeTerms(in.Keywords)
		if len(f.Keywords) == 0 {
			return nil, entities.Invalid("At least one keyword is required")
		}
	}
	if in.Categories != nil {
		f.Categories = normalizeTerms(in.Categories)
	}
	if in.Regions != nil {
		f.Regions = normalizeTerms(in.Regions)
	}
	if in.MaxPrice != nil {
		// zero clears the price cap
		if *in.MaxPrice == 0 {
			f.MaxPrice = nil
		} else {
			f.MaxPrice = in.MaxPrice
		}
	}
	if in.IsActive != nil {
		f.IsActive = *in.IsActive
	}
	if err := uc.deals.UpdateFilter(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// DeleteFilter removes one of the user's filters with its matches
func (uc *DealUseCase) DeleteFilter(ctx context.Context, userID, id string) error {
	if _, err := uc.GetFilter(ctx, userID, id); err != nil {
		return err
	}
	return uc.deals.DeleteFilter(ctx, id)
}

// Matches returns one page of deals matched by the user's filters
func (uc *DealUseCase) Matches(ctx context.Context, userID string, page repository.Page) ([]entities.DealFilterMatch, int64, error) {
	return uc.deals.ListMatchesForUser(ctx, userID, page)
}

// FormatDeals renders recent deals as chat text
func (uc *DealUseCase) FormatDeals(deals []entities.GearDeal) string {
	if len(deals) == 0 {
		return "No gear deals right now. Check back later!"
	}
	var b strings.Builder
	b.WriteString("🛶 Latest gear deals:\n")
	for _, d := range deals {
		b.WriteString("\n• ")
		b.WriteString(truncateRunes(d.Title, 80))
		if d.Price != nil {
			fmt.Fprintf(&b, " - $%.0f", *d.Price)
		}
		if d.Region != "" {
			b.WriteString(" (" + d.Region + ")")
		}
		b.WriteString("\n  " + d.URL)
	}
	return b.String()
}

// normalizeTerms lowercases, trims and de-duplicates a term list
func normalizeTerms(in []string) entities.StringList {
	out := entities.StringList{}
	seen := make(map[string]bool, len(in))
	for _, t := range in {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
