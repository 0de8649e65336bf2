package usecases

import (
	"context"
	"time"

	"github.com/abelzeko/water-watcher/internal/repository"
)

// Live feed event names
const (
	EventConditionUpdate = "condition-update"
	EventHazardAlert     = "hazard-alert"
	EventDealMatch       = "deal-match"
)

// FeedPollLimit caps the rows of each kind returned by one poll
const FeedPollLimit = 50

// FeedEvent is one server-sent event. ID and At identify the stored row so
// overlapping polls can drop repeats.
type FeedEvent struct {
	Type string
	ID   string
	At   time.Time
	Data any
}

// ConditionUpdate is the payload of a condition-update event
type ConditionUpdate struct {
	RiverID     string    `json:"riverId"`
	RiverName   string    `json:"riverName"`
	FlowRate    *float64  `json:"flowRate"`
	GaugeHeight *float64  `json:"gaugeHeight"`
	Quality     *string   `json:"quality"`
	Runnability *string   `json:"runnability"`
	Source      string    `json:"source"`
	ScrapedAt   time.Time `json:"scrapedAt"`
}

// HazardAlert is the payload of a hazard-alert event
type HazardAlert struct {
	ID        string    `json:"id"`
	RiverID   string    `json:"riverId"`
	RiverName string    `json:"riverName"`
	Type      string    `json:"type"`
	Severity  string    `json:"severity"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

// DealMatchEvent is the payload of a deal-match event
type DealMatchEvent struct {
	FilterID   string   `json:"filterId"`
	FilterName string   `json:"filterName"`
	DealID     string   `json:"dealId"`
	Title      string   `json:"title"`
	Price      *float64 `json:"price"`
	URL        string   `json:"url"`
	Score      int      `json:"score"`
}

// FeedUseCase polls for changes to stream to live clients
type FeedUseCase struct {
	conditions *repository.ConditionRepository
	hazards    *repository.HazardRepository
	deals      *repository.DealRepository
}

// NewFeedUseCase creates a feed use case
func NewFeedUseCase(conditions *repository.ConditionRepository, hazards *repository.HazardRepository, deals *repository.DealRepository) *FeedUseCase {
	return &FeedUseCase{conditions: conditions, hazards: hazards, deals: deals}
}

// Poll returns the conditions, hazards and deal matches stored after since
func (uc *FeedUseCase) Poll(ctx context.Context, since time.Time) ([]FeedEvent, error) {
	var events []FeedEvent

	conditions, err := uc.conditions.ListSince(ctx, since, FeedPollLimit)
	if err != nil {
		return nil, err
	}
	for _, c := range conditions {
		ev := ConditionUpdate{
			RiverID:     c.RiverID,
			FlowRate:    c.FlowRate,
			GaugeHeight: c.GaugeHeight,
			Quality:     c.Quality,
			Runnability: c.Runnability,
			Source:      c.Source,
			ScrapedAt:   c.ScrapedAt,
		}
		if c.River != nil {
			ev.RiverName = c.River.Name
		}
		events = append(events, FeedEvent{Type: EventConditionUpdate, ID: c.ID, At: c.CreatedAt, Data: ev})
	}

	hazards, err := uc.hazards.ListActiveSince(ctx, since, FeedPollLimit)
	if err != nil {
		return nil, err
	}
	for _, h := range hazards {
		ev := HazardAlert{
			ID:        h.ID,
			RiverID:   h.RiverID,
			Type:      h.Type,
			Severity:  h.Severity,
			Title:     h.Title,
			CreatedAt: h.CreatedAt,
		}
		if h.River != nil {
			ev.RiverName = h.River.Name
		}
		events = append(events, FeedEvent{Type: EventHazardAlert, ID: h.ID, At: h.CreatedAt, Data: ev})
	}

	matches, err := uc.deals.MatchesSince(ctx, since, FeedPollLimit)
	if err != nil {
		return nil, err
	}
	for _, m := range matches {
		if m.Deal == nil {
			continue
		}
		ev := DealMatchEvent{
			FilterID: m.FilterID,
			DealID:   m.DealID,
			Title:    m.Deal.Title,
			Price:    m.Deal.Price,
			URL:      m.Deal.URL,
			Score:    m.Score,
		}
		if m.Filter != nil {
			ev.FilterName = m.Filter.Name
		}
		events = append(events, FeedEvent{Type: EventDealMatch, ID: m.ID, At: m.CreatedAt, Data: ev})
	}

	return events, nil
}
