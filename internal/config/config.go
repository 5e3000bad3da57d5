package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration
type Config struct {
	// Database
	DatabaseHost     string `envconfig:"DATABASE_HOST" default:"localhost"`
	DatabasePort     int    `envconfig:"DATABASE_PORT" default:"5432"`
	DatabaseName     string `envconfig:"DATABASE_NAME" default:"draftlab"`
	DatabaseUser     string `envconfig:"DATABASE_USER" default:"draftlab"`
	DatabasePassword string `envconfig:"DATABASE_PASSWORD"`
	DatabaseSSLMode  string `envconfig:"DATABASE_SSL_MODE" default:"disable"`
	DatabaseMaxConns int32  `envconfig:"DATABASE_MAX_CONNS" default:"25"`

	// StoreDriver selects the document store: postgres or memory
	StoreDriver string `envconfig:"STORE_DRIVER" default:"postgres"`

	// Redis
	RedisEnabled  bool   `envconfig:"REDIS_ENABLED" default:"false"`
	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// Application
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// API
	APIPort        int    `envconfig:"API_PORT" default:"8080"`
	AdminJWTSecret string `envconfig:"ADMIN_JWT_SECRET" default:"change_me"`
	PublicBaseURL  string `envconfig:"PUBLIC_BASE_URL" default:"https://localhost:8080"`

	// Scheduler
	EnableScheduler           bool          `envconfig:"ENABLE_SCHEDULER" default:"true"`
	InitialAggregationEnabled bool          `envconfig:"INITIAL_AGGREGATION_ENABLED" default:"false"`
	AggregationCron           string        `envconfig:"AGGREGATION_CRON" default:"0 2 * * *"`
	AggregationTimezone       string        `envconfig:"AGGREGATION_TIMEZONE" default:"America/New_York"`
	IncrementalInterval       time.Duration `envconfig:"INCREMENTAL_INTERVAL" default:"0s"`

	// Aggregation
	AggregationPageSize int `envconfig:"AGGREGATION_PAGE_SIZE" default:"50"`
	BatchWriteSize      int `envconfig:"BATCH_WRITE_SIZE" default:"500"`

	// Caching
	AnalyticsCacheMaxAge time.Duration `envconfig:"ANALYTICS_CACHE_MAX_AGE" default:"24h"`
	MetadataPollInterval time.Duration `envconfig:"METADATA_POLL_INTERVAL" default:"1m"`
	QueryCacheTTL        time.Duration `envconfig:"QUERY_CACHE_TTL" default:"0s"`

	// Query
	QueryDefaultLimit int      `envconfig:"QUERY_DEFAULT_LIMIT" default:"25"`
	QueryMaxLimit     int      `envconfig:"QUERY_MAX_LIMIT" default:"100"`
	QueryCollections  []string `envconfig:"QUERY_COLLECTIONS" default:"qbStats,rbStats,wrStats,teStats,wrProjections,wrModelStats,historicalMatchups,playerGameLogs"`
	RequireIndexes    bool     `envconfig:"REQUIRE_INDEXES" default:"true"`

	// Ranking
	RankingWeightsFile string `envconfig:"RANKING_WEIGHTS_FILE" default:""`

	// Remote sources
	AWSRegion           string        `envconfig:"AWS_REGION" default:"us-east-1"`
	SourceTimeout       time.Duration `envconfig:"SOURCE_TIMEOUT" default:"30s"`
	SourceMaxConcurrent int           `envconfig:"SOURCE_MAX_CONCURRENT" default:"4"`

	// Alerts
	SendGridAPIKey string `envconfig:"SENDGRID_API_KEY" default:""`
	AlertEmailFrom string `envconfig:"ALERT_EMAIL_FROM" default:"alerts@draftlab.local"`
	AlertEmailTo   string `envconfig:"ALERT_EMAIL_TO" default:""`

	// Monitoring
	EnableMetrics bool `envconfig:"ENABLE_METRICS" default:"true"`
	MetricsPort   int  `envconfig:"METRICS_PORT" default:"9090"`
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
	switch c.StoreDriver {
	case "postgres":
		if c.DatabasePassword == "" {
			return fmt.Errorf("DATABASE_PASSWORD is required")
		}
	case "memory":
	default:
		return fmt.Errorf("STORE_DRIVER must be postgres or memory, got %q", c.StoreDriver)
	}

	if c.AdminJWTSecret == "change_me" && c.IsProduction() {
		return fmt.Errorf("ADMIN_JWT_SECRET must be changed in production")
	}

	if c.AggregationPageSize <= 0 {
		return fmt.Errorf("AGGREGATION_PAGE_SIZE must be positive")
	}

	if c.BatchWriteSize <= 0 || c.BatchWriteSize > 500 {
		return fmt.Errorf("BATCH_WRITE_SIZE must be between 1 and 500")
	}

	if c.QueryDefaultLimit <= 0 || c.QueryMaxLimit < c.QueryDefaultLimit {
		return fmt.Errorf("QUERY_DEFAULT_LIMIT must be positive and not above QUERY_MAX_LIMIT")
	}

	if _, err := time.LoadLocation(c.AggregationTimezone); err != nil {
		return fmt.Errorf("AGGREGATION_TIMEZONE %q: %w", c.AggregationTimezone, err)
	}

	if !strings.HasPrefix(c.PublicBaseURL, "https://") {
		return fmt.Errorf("PUBLIC_BASE_URL must be an https URL")
	}

	return nil
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

// Location returns the scheduler time zone
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.AggregationTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// AlertsEnabled reports whether email alerts are configured
func (c *Config) AlertsEnabled() bool {
	return c.SendGridAPIKey != "" && c.AlertEmailTo != ""
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// MustLoad loads configuration or panics on error
// Use this in main() where we want to fail fast
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}
