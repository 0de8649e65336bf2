package usecases

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/abelzeko/water-watcher/internal/entities"
	"github.com/abelzeko/water-watcher/internal/repository"
)

// Higher wins when two sources report on the same river
var sourcePriority = map[string]int{
	entities.SourceUSGS:     100,
	entities.SourceAW:       80,
	entities.SourceBLM:      70,
	entities.SourceUSFS:     70,
	entities.SourceFacebook: 30,
}

const (
	mergeWindow     = 2 * time.Hour
	mergeCandidates = 5
)

// Default CFS bands, lower bound inclusive
var defaultFlowBands = []struct {
	label string
	upper float64
}{
	{entities.RunnabilityTooLow, 200},
	{entities.RunnabilityLow, 500},
	{entities.RunnabilityRunnable, 1500},
	{entities.RunnabilityOptimal, 5000},
	{entities.RunnabilityHigh, 10000},
	{entities.RunnabilityDangerous, math.Inf(1)},
}

// ClassifyRunnability grades a flow against the river's recommended range,
// or against generic CFS bands when the range is incomplete
func ClassifyRunnability(flow *float64, flowRange *entities.FlowRange) string {
	if flow == nil {
		return ""
	}
	f := *flow

	if flowRange != nil && flowRange.Min != nil && flowRange.Max != nil {
		lo, hi := *flowRange.Min, *flowRange.Max
		switch {
		case f < lo*0.5:
			return entities.RunnabilityTooLow
		case f < lo:
			return entities.RunnabilityLow
		case f <= hi:
			return entities.RunnabilityOptimal
		case f <= hi*1.5:
			return entities.RunnabilityHigh
		default:
			return entities.RunnabilityDangerous
		}
	}

	if f < 0 {
		return ""
	}
	for _, b := range defaultFlowBands {
		if f < b.upper {
			return b.label
		}
	}
	return ""
}

var runnabilityQuality = map[string]string{
	entities.RunnabilityOptimal:   entities.QualityExcellent,
	entities.RunnabilityRunnable:  entities.QualityGood,
	entities.RunnabilityHigh:      entities.QualityFair,
	entities.RunnabilityLow:       entities.QualityPoor,
	entities.RunnabilityTooLow:    entities.QualityPoor,
	entities.RunnabilityTooHigh:   entities.QualityDangerous,
	entities.RunnabilityDangerous: entities.QualityDangerous,
}

// RunnabilityToQuality maps a runnability class to the quality label users see
func RunnabilityToQuality(runnability string) string {
	return runnabilityQuality[runnability]
}

// ConditionProcessor turns scraped items into condition snapshots and
// hazard records
type ConditionProcessor struct {
	db         *gorm.DB
	rivers     repository.RiverRepository
	conditions *repository.ConditionRepository
	hazards    *repository.HazardRepository
	logs       *repository.ScrapeLogRepository
	log        *zap.Logger
	now        func() time.Time
}

// NewConditionProcessor creates a condition processor
func NewConditionProcessor(
	db *gorm.DB,
	rivers repository.RiverRepository,
	conditions *repository.ConditionRepository,
	hazards *repository.HazardRepository,
	logs *repository.ScrapeLogRepository,
	log *zap.Logger,
) *ConditionProcessor {
	return &ConditionProcessor{
		db:         db,
		rivers:     rivers,
		conditions: conditions,
		hazards:    hazards,
		logs:       logs,
		log:        log.Named("condition_processor"),
		now:        time.Now,
	}
}

// Process stores the items of one scraper run in a single transaction and
// reports what changed. A scrape log row is written whatever the outcome.
func (p *ConditionProcessor) Process(ctx context.Context, source string, items []entities.ScrapedItem) (entities.ProcessResult, error) {
	started := p.now().UTC()
	log := p.log.With(zap.String("source", source))

	var result entities.ProcessResult
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = p.withTx(tx).process(ctx, source, items, log)
		return err
	})
	if err != nil {
		result = entities.ProcessResult{}
	}

	entry := &entities.ScrapeLog{
		Source:     source,
		StartedAt:  started,
		FinishedAt: p.now().UTC(),
	}
	entry.Duration = entry.FinishedAt.Sub(started).Milliseconds()
	if err != nil {
		entry.Status = entities.ScrapeError
		entry.Error = err.Error()
		log.Error("Processing failed", zap.Error(err))
	} else {
		entry.Status = entities.ScrapeSuccess
		entry.ItemCount = len(result.Conditions) + len(result.Hazards)
		log.Info("Processed scrape results",
			zap.Int("conditions", len(result.Conditions)),
			zap.Int("hazards", len(result.Hazards)),
			zap.Int64("duration_ms", entry.Duration))
	}
	if logErr := p.logs.Create(context.WithoutCancel(ctx), entry); logErr != nil {
		log.Error("Failed to write scrape log", zap.Error(logErr))
	}

	return result, err
}

// withTx returns a copy whose stores run inside tx
func (p *ConditionProcessor) withTx(tx *gorm.DB) *ConditionProcessor {
	c := *p
	c.rivers = p.rivers.WithTx(tx)
	c.conditions = p.conditions.WithTx(tx)
	c.hazards = p.hazards.WithTx(tx)
	return &c
}

func (p *ConditionProcessor) process(ctx context.Context, source string, items []entities.ScrapedItem, log *zap.Logger) (entities.ProcessResult, error) {
	var result entities.ProcessResult

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		var river *entities.River
		if item.Condition != nil {
			r, err := p.findRiver(ctx, source, item.Condition)
			if err != nil {
				return result, err
			}
			if r == nil {
				log.Warn("No river found for scraped condition",
					zap.String("gauge_id", item.Condition.USGSGaugeID),
					zap.String("aw_id", item.Condition.AWID),
					zap.String("river", item.Condition.RiverName))
				continue
			}
			river = r

			processed, err := p.saveCondition(ctx, source, river, item)
			if err != nil {
				return result, err
			}
			if processed.QualityChanged {
				log.Info("Quality changed",
					zap.String("river", river.Name),
					zap.String("from", processed.OldQuality),
					zap.String("to", processed.NewQuality))
			}
			result.Conditions = append(result.Conditions, processed)
		}

		if item.Advisory != nil {
			r, err := p.lookup(p.rivers.FindByName(ctx, item.Advisory.RiverName))
			if err != nil {
				return result, err
			}
			if r == nil {
				log.Debug("Advisory for untracked river", zap.String("river", item.Advisory.RiverName))
				continue
			}
			river = r

			a := item.Advisory
			if a.EndDate != nil && a.EndDate.Before(p.now()) {
				continue
			}
			h := entities.Hazard{
				RiverID:     river.ID,
				Type:        a.Type,
				Severity:    a.Severity,
				Title:       a.Title,
				Description: a.Description,
				Source:      source,
				SourceURL:   item.SourceURL,
				ReportedAt:  item.ScrapedAt,
				ExpiresAt:   a.EndDate,
				IsActive:    true,
			}
			created, err := p.saveHazard(ctx, &h)
			if err != nil {
				return result, err
			}
			if created {
				result.Hazards = append(result.Hazards, entities.NewHazard{RiverName: river.Name, Hazard: h})
			}
		}

		if river == nil {
			continue
		}
		for _, report := range item.Hazards {
			h := entities.Hazard{
				RiverID:     river.ID,
				Type:        report.Type,
				Severity:    report.Severity,
				Title:       report.Title,
				Description: report.Description,
				Source:      source,
				SourceURL:   item.SourceURL,
				ReportedAt:  item.ScrapedAt,
				IsActive:    true,
			}
			created, err := p.saveHazard(ctx, &h)
			if err != nil {
				return result, err
			}
			if created {
				result.Hazards = append(result.Hazards, entities.NewHazard{RiverName: river.Name, Hazard: h})
			}
		}
	}

	return result, nil
}

// lookup turns a not-found result into a nil river
func (p *ConditionProcessor) lookup(river *entities.River, err error) (*entities.River, error) {
	if errors.Is(err, entities.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up river: %w", err)
	}
	return river, nil
}

func (p *ConditionProcessor) findRiver(ctx context.Context, source string, c *entities.ConditionReading) (*entities.River, error) {
	switch {
	case source == entities.SourceUSGS && c.USGSGaugeID != "":
		return p.lookup(p.rivers.FindByUSGSGauge(ctx, c.USGSGaugeID))
	case source == entities.SourceAW && c.AWID != "":
		return p.lookup(p.rivers.FindByAWID(ctx, c.AWID))
	case c.RiverID != "":
		return p.lookup(p.rivers.Get(ctx, c.RiverID))
	case c.RiverName != "":
		return p.lookup(p.rivers.FindByName(ctx, c.RiverName))
	}
	return nil, nil
}

func (p *ConditionProcessor) saveCondition(ctx context.Context, source string, river *entities.River, item entities.ScrapedItem) (entities.ProcessedCondition, error) {
	c := item.Condition
	flow, gauge, temp, err := p.merge(ctx, river.ID, source, c.FlowRate, c.GaugeHeight, c.WaterTemp)
	if err != nil {
		return entities.ProcessedCondition{}, err
	}

	runnability := ClassifyRunnability(flow, c.FlowRange)
	quality := RunnabilityToQuality(runnability)
	if flow == nil && c.Quality != "" {
		quality = c.Quality
	}

	prev, err := p.conditions.Latest(ctx, river.ID)
	if err != nil && !errors.Is(err, entities.ErrNotFound) {
		return entities.ProcessedCondition{}, fmt.Errorf("failed to load previous condition: %w", err)
	}
	oldQuality := prev.QualityValue()

	scrapedAt := item.ScrapedAt
	if scrapedAt.IsZero() {
		scrapedAt = p.now().UTC()
	}
	record := &entities.RiverCondition{
		RiverID:     river.ID,
		FlowRate:    flow,
		GaugeHeight: gauge,
		WaterTemp:   temp,
		Quality:     optional(quality),
		Runnability: optional(runnability),
		Source:      source,
		SourceURL:   item.SourceURL,
		RawData:     item.Raw,
		ScrapedAt:   scrapedAt,
	}
	if err := p.conditions.Create(ctx, record); err != nil {
		return entities.ProcessedCondition{}, fmt.Errorf("failed to save condition: %w", err)
	}

	out := entities.ProcessedCondition{
		RiverID:     river.ID,
		RiverName:   river.Name,
		Quality:     quality,
		Runnability: runnability,
		FlowRate:    flow,
		GaugeHeight: gauge,
		WaterTemp:   temp,
		Source:      source,
	}
	if oldQuality != "" && quality != "" && oldQuality != quality {
		out.QualityChanged = true
		out.OldQuality = oldQuality
		out.NewQuality = quality
	}
	return out, nil
}

// merge fills missing readings from recent conditions of strictly
// higher-priority sources
func (p *ConditionProcessor) merge(ctx context.Context, riverID, source string, flow, gauge, temp *float64) (*float64, *float64, *float64, error) {
	recent, err := p.conditions.RecentSince(ctx, riverID, p.now().Add(-mergeWindow), mergeCandidates)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load recent conditions: %w", err)
	}

	current := sourcePriority[source]
	for _, c := range recent {
		if sourcePriority[c.Source] <= current {
			continue
		}
		if flow == nil {
			flow = c.FlowRate
		}
		if gauge == nil {
			gauge = c.GaugeHeight
		}
		if temp == nil {
			temp = c.WaterTemp
		}
	}
	return flow, gauge, temp, nil
}

// saveHazard inserts h unless the river already has an active hazard with
// the same title
func (p *ConditionProcessor) saveHazard(ctx context.Context, h *entities.Hazard) (bool, error) {
	if h.Title == "" {
		return false, nil
	}
	_, err := p.hazards.FindActiveByTitle(ctx, h.RiverID, h.Title)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, entities.ErrNotFound) {
		return false, fmt.Errorf("failed to check existing hazard: %w", err)
	}
	if err := p.hazards.Create(ctx, h); err != nil {
		return false, fmt.Errorf("failed to save hazard: %w", err)
	}
	return true, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
