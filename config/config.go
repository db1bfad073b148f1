package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Store  StoreConfig  `mapstructure:"store"`
	Portal PortalConfig `mapstructure:"portal"`
	Fetch  FetchConfig  `mapstructure:"fetch"`
	Scrape ScrapeConfig `mapstructure:"scrape"`
	Log    LogConfig    `mapstructure:"log"`
	Import ImportConfig `mapstructure:"import"`
}

// StoreConfig selects and configures the property database.
type StoreConfig struct {
	Driver           string `mapstructure:"driver"`
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     string `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDB       string `mapstructure:"postgres_db"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode"`
	SQLitePath       string `mapstructure:"sqlite_path"`
}

// PortalConfig points at the property portal's HTTP API.
type PortalConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RatePerSecond  float64       `mapstructure:"rate_per_second"`
}

// FetchConfig bounds how property pages are loaded.
type FetchConfig struct {
	PageSize       int           `mapstructure:"page_size"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxPages       int           `mapstructure:"max_pages"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	MaxRetries     int           `mapstructure:"max_retries"`
}

// ScrapeConfig drives the headless listing scraper.
type ScrapeConfig struct {
	ListingURLTemplate string `mapstructure:"listing_url_template"`
	Pages              int    `mapstructure:"pages"`
	ListingsPerPage    int    `mapstructure:"listings_per_page"`
	ChromeBin          string `mapstructure:"chrome_bin"`
	RateLimitMs        int    `mapstructure:"rate_limit_ms"`
	MaxConcurrency     int    `mapstructure:"max_concurrency"`
	MaxRetries         int    `mapstructure:"max_retries"`
}

// LogConfig selects log level and encoding ("console" or "json").
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ImportConfig holds defaults for the CSV import command.
type ImportConfig struct {
	CSVPath string `mapstructure:"csv_path"`
}

// Load reads an optional .env file and config.yaml, then applies
// COMPARATOR_-prefixed environment variables (store.driver is
// COMPARATOR_STORE_DRIVER).
func Load() (*Config, error) {
	// A missing .env is normal; system env vars still apply.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("COMPARATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.postgres_host", "localhost")
	v.SetDefault("store.postgres_port", "5432")
	v.SetDefault("store.postgres_user", "comparator")
	v.SetDefault("store.postgres_password", "comparator123")
	v.SetDefault("store.postgres_db", "property_db")
	v.SetDefault("store.postgres_sslmode", "disable")
	v.SetDefault("store.sqlite_path", "./output/properties.db")

	v.SetDefault("portal.base_url", "http://localhost:5000")
	v.SetDefault("portal.request_timeout", 15*time.Second)
	v.SetDefault("portal.rate_per_second", 5.0)

	v.SetDefault("fetch.page_size", 50)
	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.max_pages", 20)
	v.SetDefault("fetch.max_concurrency", 3)
	v.SetDefault("fetch.max_retries", 3)

	v.SetDefault("scrape.listing_url_template", "https://www.99acres.com/property-in-{city}-ffid-page-{page}")
	v.SetDefault("scrape.pages", 2)
	v.SetDefault("scrape.listings_per_page", 20)
	v.SetDefault("scrape.chrome_bin", "")
	v.SetDefault("scrape.rate_limit_ms", 2000)
	v.SetDefault("scrape.max_concurrency", 3)
	v.SetDefault("scrape.max_retries", 3)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("import.csv_path", "./data/properties.csv")
}

// Validate rejects settings the rest of the application cannot work with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		return eris.Errorf("config: store.driver must be postgres or sqlite, got %q", c.Store.Driver)
	}
	if c.Fetch.PageSize < 1 {
		return eris.Errorf("config: fetch.page_size must be positive, got %d", c.Fetch.PageSize)
	}
	if c.Fetch.Timeout <= 0 {
		return eris.Errorf("config: fetch.timeout must be positive, got %v", c.Fetch.Timeout)
	}
	if c.Fetch.MaxConcurrency < 1 {
		return eris.Errorf("config: fetch.max_concurrency must be positive, got %d", c.Fetch.MaxConcurrency)
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	s := c.Store
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		s.PostgresHost, s.PostgresPort, s.PostgresUser, s.PostgresPassword, s.PostgresDB, s.PostgresSSLMode)
}

// Interval is the minimum gap between scraper page loads.
func (c ScrapeConfig) Interval() time.Duration {
	return time.Duration(c.RateLimitMs) * time.Millisecond
}
