package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration
type Config struct {
	// The Odds API (game calendar)
	OddsAPIKey      string        `envconfig:"ODDS_API_KEY" required:"true"`
	OddsAPIBaseURL  string        `envconfig:"ODDS_API_BASE_URL" default:"https://api.the-odds-api.com/v4"`
	OddsAPISport    string        `envconfig:"ODDS_API_SPORT" default:"basketball_nba"`
	CalendarTimeout time.Duration `envconfig:"CALENDAR_TIMEOUT" default:"30s"`

	// NBA stats (outcome source)
	StatsBaseURL    string        `envconfig:"STATS_BASE_URL" default:"https://stats.nba.com/stats"`
	StatsSeason     string        `envconfig:"STATS_SEASON" default:""`
	StatsSeasonType string        `envconfig:"STATS_SEASON_TYPE" default:"Regular Season"`
	OutcomeTimeout  time.Duration `envconfig:"OUTCOME_TIMEOUT" default:"30s"`
	StatsRatePerSec float64       `envconfig:"STATS_RATE_PER_SEC" default:"1.5"`

	// Database
	DatabaseHost     string `envconfig:"DATABASE_HOST" default:"localhost"`
	DatabasePort     int    `envconfig:"DATABASE_PORT" default:"5432"`
	DatabaseName     string `envconfig:"DATABASE_NAME" default:"flooorgang"`
	DatabaseUser     string `envconfig:"DATABASE_USER" default:"flooorgang"`
	DatabasePassword string `envconfig:"DATABASE_PASSWORD" required:"true"`
	DatabaseSSLMode  string `envconfig:"DATABASE_SSL_MODE" default:"disable"`

	// Redis
	RedisHost     string        `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int           `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	CacheTTLStats time.Duration `envconfig:"CACHE_TTL_STATS" default:"6h"`

	// Application
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Scheduling
	LeadTime        time.Duration `envconfig:"LEAD_TIME" default:"3h"`
	MinDeferral     time.Duration `envconfig:"MIN_DEFERRAL" default:"0s"`
	DisplayTimezone string        `envconfig:"DISPLAY_TIMEZONE" default:"America/Los_Angeles"`
	EnableScheduler bool          `envconfig:"ENABLE_SCHEDULER" default:"true"`
	PlanCron        string        `envconfig:"PLAN_CRON" default:"0 9 * * *"`
	CheckinCron     string        `envconfig:"CHECKIN_CRON" default:"*/30 * * * *"`
	ResultsCron     string        `envconfig:"RESULTS_CRON" default:"0 8 * * *"`

	// Analysis pipeline
	ScannerCommand  string        `envconfig:"SCANNER_COMMAND" default:"python3 scanner_v2.py --fresh"`
	ScannerWorkdir  string        `envconfig:"SCANNER_WORKDIR" default:"."`
	ScannerGraphics bool          `envconfig:"SCANNER_GRAPHICS" default:"true"`
	ScannerTimeout  time.Duration `envconfig:"SCANNER_TIMEOUT" default:"10m"`
	LogDir          string        `envconfig:"LOG_DIR" default:"logs"`
	PropschedBin    string        `envconfig:"PROPSCHED_BIN" default:"propsched"`

	// Notifications
	SlackWebhookURL string        `envconfig:"SLACK_WEBHOOK_URL" default:""`
	NotifyTimeout   time.Duration `envconfig:"NOTIFY_TIMEOUT" default:"10s"`

	// Monitoring
	EnableMetrics  bool   `envconfig:"ENABLE_METRICS" default:"true"`
	MetricsPort    int    `envconfig:"METRICS_PORT" default:"9090"`
	PushgatewayURL string `envconfig:"PUSHGATEWAY_URL" default:""`
}

// Load loads configuration from environment variables
// It first attempts to load from .env file if in development mode
func Load() (*Config, error) {
	// Try to load .env file (ignore error if doesn't exist)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.OddsAPIKey == "" {
		return fmt.Errorf("ODDS_API_KEY is required")
	}

	if c.DatabasePassword == "" {
		return fmt.Errorf("DATABASE_PASSWORD is required")
	}

	if c.LeadTime < 0 {
		return fmt.Errorf("LEAD_TIME must not be negative")
	}

	if c.MinDeferral < 0 {
		return fmt.Errorf("MIN_DEFERRAL must not be negative")
	}

	if _, err := time.LoadLocation(c.DisplayTimezone); err != nil {
		return fmt.Errorf("DISPLAY_TIMEZONE %q is not a valid zone: %w", c.DisplayTimezone, err)
	}

	if c.ScannerCommand == "" {
		return fmt.Errorf("SCANNER_COMMAND is required")
	}

	if c.IsProduction() && c.SlackWebhookURL == "" {
		return fmt.Errorf("SLACK_WEBHOOK_URL is required in production")
	}

	return nil
}

// Location returns the display time zone. Validate guarantees it parses.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DisplayTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DatabaseHost,
		c.DatabasePort,
		c.DatabaseUser,
		c.DatabasePassword,
		c.DatabaseName,
		c.DatabaseSSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// MustLoad loads configuration or exits on error
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}
