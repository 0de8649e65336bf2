// Package config loads application settings from config.toml, .env and the environment
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultJWTSecret is the development signing secret. It is rejected in production.
const DefaultJWTSecret = "water-watcher-dev-secret-change-me"

// Config holds all application configuration
type Config struct {
	App       AppConfig
	HTTP      HTTPConfig
	Database  DatabaseConfig
	Log       LogConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	SSE       SSEConfig
	Scraper   ScraperConfig
	Schedule  ScheduleConfig
	Push      PushConfig
	Email     EmailConfig
	Telegram  TelegramConfig
	OpenAI    OpenAIConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name    string
	Env     string
	BaseURL string // public URL used to build links in notifications
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port             string
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	ShutdownTimeout  time.Duration
	CORSAllowOrigins []string
	TrustedProxies   []string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // sqlite or postgres
	URL             string // file path for sqlite, DSN for postgres
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogLevel        string // silent, error, warn, info
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// JWTConfig holds session token settings
type JWTConfig struct {
	Secret       string
	Expiration   time.Duration
	Issuer       string
	CookieName   string
	CookieSecure bool
}

// RateLimitConfig holds per-IP token bucket settings
type RateLimitConfig struct {
	Enabled      bool
	Requests     int
	Window       time.Duration
	AuthRequests int
	AuthWindow   time.Duration
}

// SSEConfig holds live feed settings
type SSEConfig struct {
	PollInterval time.Duration
	Lookback     time.Duration
}

// ScraperConfig holds upstream endpoints and politeness settings
type ScraperConfig struct {
	RequestTimeout      time.Duration
	RateLimitDelay      time.Duration
	CraigslistRegions   []string
	CraigslistBaseURL   string // empty means https://{region}.craigslist.org
	USGSBaseURL         string
	AWBaseURL           string
	BLMBaseURL          string
	RIDBBaseURL         string
	RIDBAPIKey          string
	FacebookAccessToken string
	FacebookPages       []string
	FacebookGraphURL    string
	FacebookMobileURL   string
}

// ScheduleConfig holds pipeline job intervals in minutes
type ScheduleConfig struct {
	RiverIntervalMinutes      int
	RaftWatchIntervalMinutes  int
	LandAgencyIntervalMinutes int
	FacebookIntervalMinutes   int // 0 disables the job
	DigestCron                string
}

// PushConfig holds Web Push VAPID credentials
type PushConfig struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string
}

// EmailConfig holds Resend settings
type EmailConfig struct {
	ResendAPIKey string
	FromAddress  string
}

// TelegramConfig holds the bot token
type TelegramConfig struct {
	BotToken string
}

// OpenAIConfig holds the optional free-text interpreter of the Telegram bot
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string // empty means the public API
}

// legacyEnv maps config keys to the environment variable names used by the
// scraping pipeline and the web app before they shared a config file.
var legacyEnv = map[string]string{
	"http.port":                             "PORT",
	"database.url":                          "DATABASE_URL",
	"scraper.request_timeout":               "REQUEST_TIMEOUT",
	"scraper.rate_limit_delay":              "RATE_LIMIT_DELAY",
	"scraper.craigslist_regions":            "CRAIGSLIST_REGIONS",
	"scraper.usgs_base_url":                 "USGS_BASE_URL",
	"scraper.aw_base_url":                   "AW_BASE_URL",
	"scraper.blm_base_url":                  "BLM_BASE_URL",
	"scraper.ridb_api_key":                  "RIDB_API_KEY",
	"scraper.facebook_access_token":         "FACEBOOK_ACCESS_TOKEN",
	"schedule.river_interval_minutes":       "SCRAPE_INTERVAL_MINUTES",
	"schedule.raft_watch_interval_minutes":  "RAFT_WATCH_INTERVAL_MINUTES",
	"schedule.land_agency_interval_minutes": "LAND_AGENCY_INTERVAL_MINUTES",
	"push.vapid_public_key":                 "NEXT_PUBLIC_VAPID_PUBLIC_KEY",
	"push.vapid_private_key":                "VAPID_PRIVATE_KEY",
	"push.vapid_subject":                    "VAPID_SUBJECT",
	"email.resend_api_key":                  "RESEND_API_KEY",
	"email.from_address":                    "NOTIFICATION_FROM_EMAIL",
	"telegram.bot_token":                    "TELEGRAM_BOT_TOKEN",
	"openai.api_key":                        "OPENAI_API_KEY",
}

// Load loads configuration.
// Priority (highest to lowest):
// 1. Environment variables (SECTION_KEY, plus the legacy names in legacyEnv)
// 2. .env in the working directory
// 3. config.toml (explicit path, or searched in . and ./config)
// 4. Built-in defaults
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	cfg := &Config{
		App: AppConfig{
			Name:    v.GetString("app.name"),
			Env:     v.GetString("app.env"),
			BaseURL: strings.TrimRight(v.GetString("app.base_url"), "/"),
		},
		HTTP: HTTPConfig{
			Port:             v.GetString("http.port"),
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			ShutdownTimeout:  v.GetDuration("http.shutdown_timeout"),
			CORSAllowOrigins: stringList(v, "http.cors_allow_origins"),
			TrustedProxies:   stringList(v, "http.trusted_proxies"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			URL:             v.GetString("database.url"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
			LogLevel:        v.GetString("database.log_level"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		JWT: JWTConfig{
			Secret:       v.GetString("jwt.secret"),
			Expiration:   v.GetDuration("jwt.expiration"),
			Issuer:       v.GetString("jwt.issuer"),
			CookieName:   v.GetString("jwt.cookie_name"),
			CookieSecure: v.GetBool("jwt.cookie_secure"),
		},
		RateLimit: RateLimitConfig{
			Enabled:      v.GetBool("rate_limit.enabled"),
			Requests:     v.GetInt("rate_limit.requests"),
			Window:       v.GetDuration("rate_limit.window"),
			AuthRequests: v.GetInt("rate_limit.auth_requests"),
			AuthWindow:   v.GetDuration("rate_limit.auth_window"),
		},
		SSE: SSEConfig{
			PollInterval: v.GetDuration("sse.poll_interval"),
			Lookback:     v.GetDuration("sse.lookback"),
		},
		Scraper: ScraperConfig{
			RequestTimeout:      time.Duration(v.GetInt("scraper.request_timeout")) * time.Second,
			RateLimitDelay:      time.Duration(v.GetFloat64("scraper.rate_limit_delay") * float64(time.Second)),
			CraigslistRegions:   stringList(v, "scraper.craigslist_regions"),
			CraigslistBaseURL:   v.GetString("scraper.craigslist_base_url"),
			USGSBaseURL:         strings.TrimRight(v.GetString("scraper.usgs_base_url"), "/"),
			AWBaseURL:           strings.TrimRight(v.GetString("scraper.aw_base_url"), "/"),
			BLMBaseURL:          strings.TrimRight(v.GetString("scraper.blm_base_url"), "/"),
			RIDBBaseURL:         strings.TrimRight(v.GetString("scraper.ridb_base_url"), "/"),
			RIDBAPIKey:          v.GetString("scraper.ridb_api_key"),
			FacebookAccessToken: v.GetString("scraper.facebook_access_token"),
			FacebookPages:       stringList(v, "scraper.facebook_pages"),
			FacebookGraphURL:    strings.TrimRight(v.GetString("scraper.facebook_graph_url"), "/"),
			FacebookMobileURL:   strings.TrimRight(v.GetString("scraper.facebook_mobile_url"), "/"),
		},
		Schedule: ScheduleConfig{
			RiverIntervalMinutes:      v.GetInt("schedule.river_interval_minutes"),
			RaftWatchIntervalMinutes:  v.GetInt("schedule.raft_watch_interval_minutes"),
			LandAgencyIntervalMinutes: v.GetInt("schedule.land_agency_interval_minutes"),
			FacebookIntervalMinutes:   v.GetInt("schedule.facebook_interval_minutes"),
			DigestCron:                v.GetString("schedule.digest_cron"),
		},
		Push: PushConfig{
			VAPIDPublicKey:  v.GetString("push.vapid_public_key"),
			VAPIDPrivateKey: v.GetString("push.vapid_private_key"),
			VAPIDSubject:    v.GetString("push.vapid_subject"),
		},
		Email: EmailConfig{
			ResendAPIKey: v.GetString("email.resend_api_key"),
			FromAddress:  v.GetString("email.from_address"),
		},
		Telegram: TelegramConfig{
			BotToken: v.GetString("telegram.bot_token"),
		},
		OpenAI: OpenAIConfig{
			APIKey:  v.GetString("openai.api_key"),
			Model:   v.GetString("openai.model"),
			BaseURL: v.GetString("openai.base_url"),
		},
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = inferDriver(cfg.Database.URL)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "water-watcher")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.base_url", "http://localhost:3000")

	v.SetDefault("http.port", "8080")
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 0) // SSE streams stay open
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("http.cors_allow_origins", "http://localhost:3000")

	v.SetDefault("database.url", "water-watcher.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("jwt.secret", DefaultJWTSecret)
	v.SetDefault("jwt.expiration", 7*24*time.Hour)
	v.SetDefault("jwt.issuer", "water-watcher")
	v.SetDefault("jwt.cookie_name", "ww_session")
	v.SetDefault("jwt.cookie_secure", false)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests", 60)
	v.SetDefault("rate_limit.window", time.Minute)
	v.SetDefault("rate_limit.auth_requests", 10)
	v.SetDefault("rate_limit.auth_window", time.Minute)

	v.SetDefault("sse.poll_interval", 30*time.Second)
	v.SetDefault("sse.lookback", 5*time.Minute)

	v.SetDefault("scraper.request_timeout", 30)
	v.SetDefault("scraper.rate_limit_delay", 2.0)
	v.SetDefault("scraper.craigslist_regions", "seattle,portland,denver,saltlakecity,boise")
	v.SetDefault("scraper.usgs_base_url", "https://waterservices.usgs.gov/nwis")
	v.SetDefault("scraper.aw_base_url", "https://www.americanwhitewater.org/content")
	v.SetDefault("scraper.blm_base_url", "https://www.blm.gov")
	v.SetDefault("scraper.ridb_base_url", "https://ridb.recreation.gov/api/v1")
	v.SetDefault("scraper.facebook_pages", "americanwhitewater,whitewaterkayaking")
	v.SetDefault("scraper.facebook_graph_url", "https://graph.facebook.com/v19.0")
	v.SetDefault("scraper.facebook_mobile_url", "https://m.facebook.com")

	v.SetDefault("schedule.river_interval_minutes", 240)
	v.SetDefault("schedule.raft_watch_interval_minutes", 30)
	v.SetDefault("schedule.land_agency_interval_minutes", 360)
	v.SetDefault("schedule.facebook_interval_minutes", 0)
	v.SetDefault("schedule.digest_cron", "0 8 * * 1")

	v.SetDefault("push.vapid_subject", "mailto:you@example.com")
	v.SetDefault("email.from_address", "alerts@waterwatcher.app")
	v.SetDefault("openai.model", "gpt-4o")
}

// stringList reads a list that may come from TOML as an array or from the
// environment as a comma-separated string
func stringList(v *viper.Viper, key string) []string {
	var parts []string
	switch raw := v.Get(key).(type) {
	case nil:
		return nil
	case []string:
		parts = raw
	case []any:
		for _, item := range raw {
			parts = append(parts, fmt.Sprint(item))
		}
	default:
		parts = strings.Split(fmt.Sprint(raw), ",")
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func inferDriver(url string) string {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return "postgres"
	}
	return "sqlite"
}

// IsProduction reports whether the app runs in production mode
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// Validate performs validation on the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database.url (DATABASE_URL) is required")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Schedule.RiverIntervalMinutes <= 0 {
		return fmt.Errorf("schedule.river_interval_minutes must be positive")
	}
	if c.Schedule.RaftWatchIntervalMinutes <= 0 {
		return fmt.Errorf("schedule.raft_watch_interval_minutes must be positive")
	}
	if c.Schedule.LandAgencyIntervalMinutes <= 0 {
		return fmt.Errorf("schedule.land_agency_interval_minutes must be positive")
	}
	if c.Schedule.FacebookIntervalMinutes < 0 {
		return fmt.Errorf("schedule.facebook_interval_minutes cannot be negative")
	}
	if c.Scraper.RequestTimeout <= 0 {
		return fmt.Errorf("scraper.request_timeout must be positive")
	}
	if c.Scraper.RateLimitDelay < 0 {
		return fmt.Errorf("scraper.rate_limit_delay cannot be negative")
	}

	if c.RateLimit.Enabled && (c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0) {
		return fmt.Errorf("rate_limit.requests and rate_limit.window must be positive")
	}
	if c.SSE.PollInterval <= 0 {
		return fmt.Errorf("sse.poll_interval must be positive")
	}

	// Production-specific validations
	if c.IsProduction() {
		if c.JWT.Secret == "" || c.JWT.Secret == DefaultJWTSecret {
			return fmt.Errorf("jwt.secret (JWT_SECRET) must be set in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if !c.JWT.CookieSecure {
			return fmt.Errorf("jwt.cookie_secure must be true in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("http.cors_allow_origins cannot be '*' in production")
			}
		}
	}

	return nil
}

// PushEnabled reports whether VAPID keys are configured
func (c *Config) PushEnabled() bool {
	return c.Push.VAPIDPublicKey != "" && c.Push.VAPIDPrivateKey != ""
}

// EmailEnabled reports whether the Resend API key is configured
func (c *Config) EmailEnabled() bool {
	return c.Email.ResendAPIKey != ""
}
