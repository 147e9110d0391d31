package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLoaderConfig(files ...string) aconfig.Config {
	return aconfig.Config{
		EnvPrefix: "STOREFRONT",
		SkipFlags: true,
		SkipFiles: len(files) == 0,
		Files:     files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")

	cfg, err := loadConfig(testLoaderConfig())
	require.NoError(t, err)

	assert.Equal(t, defaultAddr, cfg.Addr)
	assert.Equal(t, "https://fakestoreapi.com", cfg.Catalog.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Catalog.RequestTimeout)
	assert.Equal(t, 60*time.Second, cfg.Catalog.ResourceTimeout)
	assert.Equal(t, 3, cfg.Catalog.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Catalog.BaseDelay)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, 100, cfg.Images.MaxEntries)
	assert.Equal(t, int64(50<<20), cfg.Images.MaxCost)
	assert.Equal(t, int64(64<<20), cfg.Images.MaxDecode)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("STOREFRONT_STORE_DRIVER", "redis")
	t.Setenv("STOREFRONT_STORE_REDIS_URL", "redis://cache:6379/1")
	t.Setenv("STOREFRONT_CACHE_TTL", "5m")

	cfg, err := loadConfig(testLoaderConfig())
	require.NoError(t, err)
	assert.Equal(t, DriverRedis, cfg.Store.Driver)
	assert.Equal(t, "redis://cache:6379/1", cfg.Store.RedisURL)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
}

func TestLoadConfig_PlatformDefaults(t *testing.T) {
	t.Setenv("STOREFRONT_STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@db/storefront")
	t.Setenv("REDIS_URL", "redis://r:6379")
	t.Setenv("PORT", "9000")

	cfg, err := loadConfig(testLoaderConfig())
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db/storefront", cfg.Store.DatabaseURL)
	assert.Equal(t, "redis://r:6379", cfg.Store.RedisURL)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)
}

func TestLoadConfig_YAML(t *testing.T) {
	t.Setenv("PORT", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: 127.0.0.1:7000
store:
  driver: memory
images:
  max_entries: 10
`), 0o600))

	cfg, err := loadConfig(testLoaderConfig(path))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", cfg.Addr)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, 10, cfg.Images.MaxEntries)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Catalog: CatalogConfig{BaseURL: "https://fakestoreapi.com", MaxAttempts: 3},
			Store:   StoreConfig{Driver: DriverMemory},
		}
	}
	require.NoError(t, valid().Validate())

	for name, mutate := range map[string]func(*Config){
		"UnknownDriver": func(c *Config) { c.Store.Driver = "etcd" },
		"PostgresNoURL": func(c *Config) { c.Store.Driver = DriverPostgres },
		"RedisNoURL":    func(c *Config) { c.Store.Driver = DriverRedis },
		"SQLiteNoPath":  func(c *Config) { c.Store.Driver = DriverSQLite },
		"ZeroAttempts":  func(c *Config) { c.Catalog.MaxAttempts = 0 },
		"NoCatalogURL":  func(c *Config) { c.Catalog.BaseURL = "" },
	} {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
