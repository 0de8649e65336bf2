// Package app wires configuration, logging, storage and use cases for the
// binaries
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/abelzeko/water-watcher/internal/api"
	"github.com/abelzeko/water-watcher/internal/auth"
	"github.com/abelzeko/water-watcher/internal/config"
	"github.com/abelzeko/water-watcher/internal/entities"
	"github.com/abelzeko/water-watcher/internal/integration"
	"github.com/abelzeko/water-watcher/internal/integration/mail"
	"github.com/abelzeko/water-watcher/internal/integration/openai"
	"github.com/abelzeko/water-watcher/internal/integration/push"
	"github.com/abelzeko/water-watcher/internal/logger"
	"github.com/abelzeko/water-watcher/internal/repository"
	"github.com/abelzeko/water-watcher/internal/usecases"
)

// Repositories are the stores shared by every binary
type Repositories struct {
	Rivers     repository.RiverRepository
	Conditions *repository.ConditionRepository
	Hazards    *repository.HazardRepository
	Reviews    *repository.ReviewRepository
	Deals      *repository.DealRepository
	Trips      *repository.TripRepository
	Users      *repository.UserRepository
	Alerts     *repository.AlertRepository
	ScrapeLogs *repository.ScrapeLogRepository
	Analytics  *repository.AnalyticsRepository
}

// App is a configured process with an open, migrated database
type App struct {
	Config *config.Config
	Log    *zap.Logger
	DB     *gorm.DB
	Repos  Repositories
}

// New loads configuration from path (or the default locations) and opens
// the database
func New(configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a, err := NewWithConfig(cfg, log)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}
	return a, nil
}

// NewWithConfig opens and migrates the database for an already loaded config
func NewWithConfig(cfg *config.Config, log *zap.Logger) (*App, error) {
	db, err := repository.Open(cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := repository.Migrate(db); err != nil {
		_ = repository.Close(db)
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	log.Info("Database ready", zap.String("driver", cfg.Database.Driver))

	return &App{
		Config: cfg,
		Log:    log,
		DB:     db,
		Repos: Repositories{
			Rivers:     repository.NewRiverRepository(db),
			Conditions: repository.NewConditionRepository(db),
			Hazards:    repository.NewHazardRepository(db),
			Reviews:    repository.NewReviewRepository(db),
			Deals:      repository.NewDealRepository(db),
			Trips:      repository.NewTripRepository(db),
			Users:      repository.NewUserRepository(db),
			Alerts:     repository.NewAlertRepository(db),
			ScrapeLogs: repository.NewScrapeLogRepository(db),
			Analytics:  repository.NewAnalyticsRepository(db),
		},
	}, nil
}

// Close releases the database and flushes the logger
func (a *App) Close() {
	if err := repository.Close(a.DB); err != nil {
		a.Log.Error("Error closing database", zap.Error(err))
	}
	_ = a.Log.Sync()
}

// Ping checks the database connection
func (a *App) Ping(ctx context.Context) error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Mailer returns the Resend mailer; it reports disabled without an API key
func (a *App) Mailer() *mail.Mailer {
	return mail.NewMailer(a.Config.Email, a.Config.App.BaseURL, a.Log)
}

// RiverUseCase builds the river use case shared by the API and the bot
func (a *App) RiverUseCase() *usecases.RiverUseCase {
	r := a.Repos
	return usecases.NewRiverUseCase(r.Rivers, r.Conditions, r.Hazards, r.Reviews, a.Log)
}

// DealUseCase builds the gear deal use case
func (a *App) DealUseCase() *usecases.DealUseCase {
	return usecases.NewDealUseCase(a.Repos.Deals, a.Log)
}

// BotInterpreter returns the OpenAI free-text interpreter, or nil when no API
// key is configured
func (a *App) BotInterpreter() api.QueryInterpreter {
	in := openai.NewInterpreter(a.Config.OpenAI, a.Log)
	if in == nil {
		return nil
	}
	return in
}

// APIServices builds every use case behind the HTTP API
func (a *App) APIServices(tokens *auth.JWTManager) api.Services {
	r := a.Repos
	return api.Services{
		Auth:      usecases.NewAuthUseCase(r.Users, tokens, a.Mailer(), a.Log),
		Rivers:    a.RiverUseCase(),
		Reviews:   usecases.NewReviewUseCase(r.Reviews, r.Rivers, a.Log),
		Deals:     a.DealUseCase(),
		Trips:     usecases.NewTripUseCase(r.Trips, r.Rivers, a.Log),
		Users:     usecases.NewUserUseCase(r.Users, r.Rivers, a.Log),
		Alerts:    usecases.NewAlertUseCase(r.Alerts),
		Analytics: usecases.NewAnalyticsUseCase(r.Analytics),
		Admin:     usecases.NewAdminUseCase(r.ScrapeLogs),
		Feed:      usecases.NewFeedUseCase(r.Conditions, r.Hazards, r.Deals),
		Export:    usecases.NewExportUseCase(r.Rivers, r.Conditions, r.Deals, r.Trips, r.Hazards),
	}
}

// Scrapers builds one scraper per upstream; Facebook is left out when its
// schedule is disabled
func (a *App) Scrapers() usecases.PipelineScrapers {
	sc := a.Config.Scraper
	client := func(source string) *integration.HTTPClient {
		return integration.NewHTTPClient(source, sc.RequestTimeout, sc.RateLimitDelay, a.Log)
	}

	scrapers := usecases.PipelineScrapers{
		Rivers: []integration.Scraper{
			integration.NewUSGSScraper(client(entities.SourceUSGS), sc.USGSBaseURL, a.Repos.Rivers, a.Log),
			integration.NewAWScraper(client(entities.SourceAW), sc.AWBaseURL, a.Repos.Rivers, a.Log),
		},
		Deals: integration.NewCraigslistScraper(client(entities.SourceCraigslist), sc.CraigslistRegions, sc.CraigslistBaseURL, a.Repos.Deals, a.Log),
		LandAgencies: []integration.Scraper{
			integration.NewBLMScraper(client(entities.SourceBLM), sc.BLMBaseURL, a.Log),
			integration.NewUSFSScraper(client(entities.SourceUSFS), sc.RIDBBaseURL, sc.RIDBAPIKey, a.Log),
		},
	}
	if a.Config.Schedule.FacebookIntervalMinutes > 0 {
		scrapers.Facebook = integration.NewFacebookScraper(client(entities.SourceFacebook), integration.FacebookConfig{
			GraphURL:    sc.FacebookGraphURL,
			MobileURL:   sc.FacebookMobileURL,
			AccessToken: sc.FacebookAccessToken,
			Pages:       sc.FacebookPages,
		}, a.Repos.Rivers, a.Log)
	}
	return scrapers
}

// Pipeline builds the scrape → process → notify pipeline
func (a *App) Pipeline() *usecases.PipelineUseCase {
	r := a.Repos
	processor := usecases.NewConditionProcessor(a.DB, r.Rivers, r.Conditions, r.Hazards, r.ScrapeLogs, a.Log)
	matcher := usecases.NewDealMatcher(a.DB, r.Deals, r.ScrapeLogs, a.Log)
	notifier := usecases.NewNotifier(
		r.Users, r.Deals, r.Alerts, r.Conditions, r.Hazards,
		push.NewSender(a.Config.Push, a.Log),
		a.Mailer(),
		a.Log,
	)
	return usecases.NewPipelineUseCase(a.Scrapers(), processor, matcher, notifier, r.Hazards, r.ScrapeLogs, a.Log)
}
