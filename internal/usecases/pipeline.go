package usecases

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/abelzeko/water-watcher/internal/entities"
	"github.com/abelzeko/water-watcher/internal/integration"
	"github.com/abelzeko/water-watcher/internal/metrics"
	"github.com/abelzeko/water-watcher/internal/repository"
)

// PipelineScrapers groups the scrapers of each scheduled job. Nil entries
// are skipped.
type PipelineScrapers struct {
	Rivers       []integration.Scraper
	Facebook     integration.Scraper
	Deals        integration.Scraper
	LandAgencies []integration.Scraper
}

// CycleSummary reports what one pipeline job did
type CycleSummary struct {
	Items      int
	Conditions int
	Hazards    int
	Deals      int
	Alerts     int
	Failed     []string
}

// PipelineUseCase runs the scheduled scrape → process → notify jobs
type PipelineUseCase struct {
	scrapers  PipelineScrapers
	processor *ConditionProcessor
	matcher   *DealMatcher
	notifier  *Notifier
	hazards   *repository.HazardRepository
	logs      *repository.ScrapeLogRepository
	log       *zap.Logger
	now       func() time.Time
}

// NewPipelineUseCase creates the pipeline
func NewPipelineUseCase(
	scrapers PipelineScrapers,
	processor *ConditionProcessor,
	matcher *DealMatcher,
	notifier *Notifier,
	hazards *repository.HazardRepository,
	logs *repository.ScrapeLogRepository,
	log *zap.Logger,
) *PipelineUseCase {
	return &PipelineUseCase{
		scrapers:  scrapers,
		processor: processor,
		matcher:   matcher,
		notifier:  notifier,
		hazards:   hazards,
		logs:      logs,
		log:       log.Named("pipeline"),
		now:       time.Now,
	}
}

// RunRiverScrapers refreshes gauge and reach conditions and alerts watchers
func (uc *PipelineUseCase) RunRiverScrapers(ctx context.Context) CycleSummary {
	uc.log.Info("Starting river scrape cycle")
	summary := uc.runConditionScrapers(ctx, uc.scrapers.Rivers)
	uc.log.Info("River scrape cycle finished", summaryFields(summary)...)
	return summary
}

// RunFacebook scans public pages for trip reports
func (uc *PipelineUseCase) RunFacebook(ctx context.Context) CycleSummary {
	if uc.scrapers.Facebook == nil {
		return CycleSummary{}
	}
	uc.log.Info("Starting Facebook scrape cycle")
	summary := uc.runConditionScrapers(ctx, []integration.Scraper{uc.scrapers.Facebook})
	uc.log.Info("Facebook scrape cycle finished", summaryFields(summary)...)
	return summary
}

// RunLandAgencyScrapers expires stale hazards, then pulls BLM and USFS advisories
func (uc *PipelineUseCase) RunLandAgencyScrapers(ctx context.Context) CycleSummary {
	uc.log.Info("Starting land agency scrape cycle")

	expired, err := uc.hazards.ExpireStale(ctx, uc.now().UTC())
	if err != nil {
		uc.log.Error("Failed to expire stale hazards", zap.Error(err))
	} else if expired > 0 {
		uc.log.Info("Expired stale hazards", zap.Int64("count", expired))
	}

	summary := uc.runConditionScrapers(ctx, uc.scrapers.LandAgencies)
	uc.log.Info("Land agency scrape cycle finished", summaryFields(summary)...)
	return summary
}

// RunRaftWatch scrapes marketplace listings and alerts users whose filters match
func (uc *PipelineUseCase) RunRaftWatch(ctx context.Context) CycleSummary {
	var summary CycleSummary
	s := uc.scrapers.Deals
	if s == nil {
		return summary
	}
	uc.log.Info("Starting raft watch cycle")

	items, ok := uc.scrape(ctx, s)
	if !ok {
		summary.Failed = append(summary.Failed, s.Name())
		return summary
	}
	summary.Items = len(items)

	matches, err := uc.matcher.Match(ctx, items)
	if err != nil {
		summary.Failed = append(summary.Failed, entities.SourceDealMatch)
		return summary
	}
	summary.Deals = len(matches)

	if len(matches) > 0 {
		sent, err := uc.notifier.NotifyDealMatches(ctx, matches)
		if err != nil {
			uc.log.Error("Deal notifications failed", zap.Error(err))
		}
		summary.Alerts += sent
	}

	uc.log.Info("Raft watch cycle finished", summaryFields(summary)...)
	return summary
}

// RunWeeklyDigest emails the weekly summary
func (uc *PipelineUseCase) RunWeeklyDigest(ctx context.Context) CycleSummary {
	uc.log.Info("Starting weekly digest")
	sent, err := uc.notifier.SendWeeklyDigest(ctx)
	if err != nil {
		uc.log.Error("Weekly digest failed", zap.Error(err))
		return CycleSummary{Alerts: sent, Failed: []string{entities.AlertDigest}}
	}
	return CycleSummary{Alerts: sent}
}

// runConditionScrapers scrapes, processes and notifies for each scraper in
// turn. A failing scraper is logged and the cycle moves on.
func (uc *PipelineUseCase) runConditionScrapers(ctx context.Context, scrapers []integration.Scraper) CycleSummary {
	var summary CycleSummary
	for _, s := range scrapers {
		if s == nil {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		items, ok := uc.scrape(ctx, s)
		if !ok {
			summary.Failed = append(summary.Failed, s.Name())
			continue
		}
		summary.Items += len(items)

		result, err := uc.processor.Process(ctx, s.Name(), items)
		if err != nil {
			summary.Failed = append(summary.Failed, s.Name())
			continue
		}
		summary.Conditions += len(result.Conditions)
		summary.Hazards += len(result.Hazards)

		sent, err := uc.notifier.NotifyConditionChanges(ctx, result.Conditions)
		if err != nil {
			uc.log.Error("Condition notifications failed", zap.String("source", s.Name()), zap.Error(err))
		}
		summary.Alerts += sent

		sent, err = uc.notifier.NotifyHazards(ctx, result.Hazards)
		if err != nil {
			uc.log.Error("Hazard notifications failed", zap.String("source", s.Name()), zap.Error(err))
		}
		summary.Alerts += sent
	}
	return summary
}

// scrape runs one scraper, records its metrics and writes an error scrape
// log when it fails
func (uc *PipelineUseCase) scrape(ctx context.Context, s integration.Scraper) ([]entities.ScrapedItem, bool) {
	started := uc.now()
	items, err := s.Scrape(ctx)
	finished := uc.now()
	metrics.RecordScraperRun(s.Name(), len(items), finished.Sub(started), err)

	if err == nil {
		uc.log.Info("Scraper finished", zap.String("source", s.Name()), zap.Int("items", len(items)))
		return items, true
	}

	uc.log.Error("Scraper failed", zap.String("source", s.Name()), zap.Error(err))
	entry := &entities.ScrapeLog{
		Source:     s.Name(),
		Status:     entities.ScrapeError,
		Error:      err.Error(),
		Duration:   finished.Sub(started).Milliseconds(),
		StartedAt:  started.UTC(),
		FinishedAt: finished.UTC(),
	}
	if logErr := uc.logs.Create(context.WithoutCancel(ctx), entry); logErr != nil {
		uc.log.Error("Failed to write scrape log", zap.Error(logErr))
	}
	return nil, false
}

func summaryFields(s CycleSummary) []zap.Field {
	return []zap.Field{
		zap.Int("items", s.Items),
		zap.Int("conditions", s.Conditions),
		zap.Int("hazards", s.Hazards),
		zap.Int("deals", s.Deals),
		zap.Int("alerts", s.Alerts),
		zap.Strings("failed", s.Failed),
	}
}
