package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	BulkModeInsert = "insert"
	BulkModeCopy   = "copy"
)

// Config holds the environment driven configuration for the ingestion service.
type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	Debug       bool   `env:"DEBUG" envDefault:"false"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile     string `env:"LOG_FILE"`

	SECIdentity  string        `env:"SEC_IDENTITY"`
	SECBaseURL   string        `env:"SEC_BASE_URL" envDefault:"https://www.sec.gov"`
	FormTypes    []string      `env:"FORM_TYPES" envSeparator:"," envDefault:"13F-HR,13F-HR/A"`
	FeedMaxPages int           `env:"FEED_MAX_PAGES" envDefault:"1"`
	FeedCacheTTL time.Duration `env:"FEED_CACHE_TTL" envDefault:"30s"`

	Database DatabaseConfig

	CIKFile        string   `env:"CIK_FILE" envDefault:"ciks.txt"`
	NotifyURLs     []string `env:"NOTIFY_URLS" envSeparator:","`
	HealthcheckURL string   `env:"HEALTHCHECK_URL"`

	PollInterval       time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`
	RateLimitPerSecond float64       `env:"RATE_LIMIT_PER_SECOND" envDefault:"10"`
	RetryCooldown      time.Duration `env:"RETRY_COOLDOWN" envDefault:"30s"`
	ChunkSize          int           `env:"CHUNK_SIZE" envDefault:"20000"`
	BulkMode           string        `env:"BULK_MODE" envDefault:"insert"`
	HTTPTimeout        time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`
	StoreTimeout       time.Duration `env:"STORE_TIMEOUT" envDefault:"60s"`
	PingInterval       time.Duration `env:"PING_INTERVAL" envDefault:"60s"`
	PingTimeout        time.Duration `env:"PING_TIMEOUT" envDefault:"10s"`

	Admin AdminConfig
}

// DatabaseConfig selects and addresses the relational store.
type DatabaseConfig struct {
	Driver     string `env:"DB_DRIVER" envDefault:"postgres"`
	Host       string `env:"DB_HOST" envDefault:"localhost"`
	Port       int    `env:"DB_PORT" envDefault:"5432"`
	User       string `env:"DB_USER" envDefault:"postgres"`
	Password   string `env:"DB_PASSWORD"`
	Name       string `env:"DB_NAME" envDefault:"sec"`
	SSLMode    string `env:"DB_SSLMODE" envDefault:"disable"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"holdings.db"`
}

// AdminConfig configures the operator HTTP surface.
type AdminConfig struct {
	Port      int    `env:"ADMIN_PORT" envDefault:"8080"`
	APIKey    string `env:"ADMIN_API_KEY"`
	APISecret string `env:"ADMIN_API_SECRET"`
	JWTSecret string `env:"JWT_SECRET"`
}

// Load reads optional .env files, then parses the environment into Config.
// Variables already set in the environment win over .env values.
func Load() (*Config, error) {
	loadEnvFiles()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.BulkMode = strings.ToLower(strings.TrimSpace(cfg.BulkMode))
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	cfg.NotifyURLs = compact(cfg.NotifyURLs)
	cfg.FormTypes = compact(cfg.FormTypes)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDatabase reads only the store settings, for tools that do not poll.
func LoadDatabase() (DatabaseConfig, error) {
	loadEnvFiles()

	var cfg DatabaseConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse database config: %w", err)
	}
	cfg.Driver = strings.ToLower(strings.TrimSpace(cfg.Driver))
	if cfg.Driver != DriverPostgres && cfg.Driver != DriverSQLite {
		return cfg, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Driver)
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.SECIdentity) == "" {
		errs = append(errs, errors.New("SEC_IDENTITY is required"))
	}
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.Host == "" || c.Database.User == "" || c.Database.Name == "" {
			errs = append(errs, errors.New("DB_HOST, DB_USER and DB_NAME are required for postgres"))
		}
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver))
	}
	switch c.BulkMode {
	case BulkModeInsert:
	case BulkModeCopy:
		if c.Database.Driver != DriverPostgres {
			errs = append(errs, errors.New("BULK_MODE=copy requires DB_DRIVER=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported BULK_MODE %q", c.BulkMode))
	}
	if c.ChunkSize <= 0 {
		errs = append(errs, errors.New("CHUNK_SIZE must be positive"))
	}
	if c.RateLimitPerSecond <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_PER_SECOND must be positive"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL must be positive"))
	}
	if len(c.FormTypes) == 0 {
		errs = append(errs, errors.New("FORM_TYPES must list at least one form"))
	}
	if c.CIKFile == "" {
		errs = append(errs, errors.New("CIK_FILE is required"))
	}
	if c.Admin.APIKey != "" && (c.Admin.APISecret == "" || c.Admin.JWTSecret == "") {
		errs = append(errs, errors.New("ADMIN_API_KEY requires ADMIN_API_SECRET and JWT_SECRET"))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether logs should be emitted as JSON.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// PostgresDSN builds the connection string for gorm and pgx.
func (d DatabaseConfig) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// Redacted describes the connection without the password, for logging.
func (d DatabaseConfig) Redacted() string {
	if d.Driver == DriverSQLite {
		return "sqlite:" + d.SQLitePath
	}
	return fmt.Sprintf("postgres://%s@%s:%d/%s?sslmode=%s", d.User, d.Host, d.Port, d.Name, d.SSLMode)
}

// AdminAddr returns the admin HTTP listen address.
func (c *Config) AdminAddr() string {
	return fmt.Sprintf(":%d", c.Admin.Port)
}

func loadEnvFiles() {
	for _, path := range []string{".env", "../.env"} {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}

func compact(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
