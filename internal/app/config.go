package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (STOREFRONT_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string        `default:"0.0.0.0:8080" usage:"HTTP listen address"`
	WriteTimeout time.Duration `default:"2m" usage:"HTTP response write timeout" flag:"write-timeout"`
	Catalog      CatalogConfig
	Cache        CacheConfig
	Store        StoreConfig
	Images       ImagesConfig
	Graceful     GracefulConfig
}

// CatalogConfig controls the remote product catalog client.
type CatalogConfig struct {
	BaseURL             string        `default:"https://fakestoreapi.com" usage:"Catalog API base URL" flag:"catalog-url"`
	RequestTimeout      time.Duration `default:"30s" usage:"Timeout of a single catalog request attempt"`
	ResourceTimeout     time.Duration `default:"60s" usage:"Timeout of a whole catalog response including body"`
	MaxAttempts         int           `default:"3" usage:"Catalog request attempts before giving up"`
	BaseDelay           time.Duration `default:"1s" usage:"Delay before the first retry, doubled on each further retry"`
	WaitForConnectivity bool          `default:"true" usage:"Keep re-dialing while the network is unreachable"`
}

// CacheConfig controls the product cache.
type CacheConfig struct {
	TTL             time.Duration `default:"1h" usage:"Product cache entry lifetime"`
	WarmOnStart     bool          `default:"false" usage:"Load every cache partition before serving" flag:"warm-on-start"`
	WarmConcurrency int           `default:"4" usage:"Parallel catalog lookups while warming"`
}

// StoreConfig selects the key-value backend shared by the cache, the cart and
// the favorites.
type StoreConfig struct {
	Driver      string `default:"sqlite" usage:"Store driver: memory, sqlite, postgres or redis" flag:"driver"`
	SQLitePath  string `default:"storefront.db" usage:"SQLite database file" env:"SQLITE_PATH" flag:"sqlite-path"`
	DatabaseURL string `usage:"PostgreSQL connection URL (STOREFRONT_STORE_DATABASE_URL or DATABASE_URL)" env:"DATABASE_URL" flag:"database-url"`
	RedisURL    string `usage:"Redis connection URL (STOREFRONT_STORE_REDIS_URL or REDIS_URL)" env:"REDIS_URL" flag:"redis-url"`
}

// ImagesConfig bounds the product image cache.
type ImagesConfig struct {
	MaxEntries   int           `default:"100" usage:"Maximum cached images"`
	MaxCost      int64         `default:"52428800" usage:"Maximum total cost of cached images in bytes"`
	MaxSize      int64         `default:"10485760" usage:"Maximum size of a downloaded image in bytes"`
	MaxDecode    int64         `default:"67108864" usage:"Maximum decoded pixel buffer of a single image in bytes"`
	FetchTimeout time.Duration `default:"30s" usage:"Timeout of a single image download"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, flags and YAML
// config files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "STOREFRONT",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(acfg aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, acfg).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports settings the application cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return errors.New("sqlite store requires a database path")
		}
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return errors.New("postgres store requires a database URL: set STOREFRONT_STORE_DATABASE_URL or DATABASE_URL")
		}
	case DriverRedis:
		if c.Store.RedisURL == "" {
			return errors.New("redis store requires a URL: set STOREFRONT_STORE_REDIS_URL or REDIS_URL")
		}
	default:
		return errors.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Catalog.MaxAttempts < 1 {
		return errors.Errorf("catalog max attempts must be positive, got %d", c.Catalog.MaxAttempts)
	}
	if c.Catalog.BaseURL == "" {
		return errors.New("catalog base URL is required")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) such as PORT, DATABASE_URL and REDIS_URL onto the
// STOREFRONT_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.Store.DatabaseURL == "" {
		c.Store.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.Store.RedisURL == "" {
		c.Store.RedisURL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
