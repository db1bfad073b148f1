package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 50, cfg.Fetch.PageSize)
	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, 20, cfg.Fetch.MaxPages)
	assert.Equal(t, 3, cfg.Fetch.MaxConcurrency)
	assert.Equal(t, 3, cfg.Fetch.MaxRetries)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 2*time.Second, cfg.Scrape.Interval())
	assert.Contains(t, cfg.Scrape.ListingURLTemplate, "{city}")
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)
	yaml := `
store:
  driver: postgres
  postgres_host: db.internal
fetch:
  page_size: 25
  timeout: 5s
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 25, cfg.Fetch.PageSize)
	assert.Equal(t, 5*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Contains(t, cfg.DSN(), "host=db.internal")
}

func TestLoadEnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("COMPARATOR_FETCH_PAGE_SIZE", "10")
	t.Setenv("COMPARATOR_PORTAL_BASE_URL", "https://portal.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Fetch.PageSize)
	assert.Equal(t, "https://portal.example.com", cfg.Portal.BaseURL)
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("COMPARATOR_LOG_LEVEL=warn\n"), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("COMPARATOR_LOG_LEVEL") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	chdirTemp(t)
	t.Setenv("COMPARATOR_STORE_DRIVER", "mongo")

	_, err := Load()
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	cfg := &Config{Store: StoreConfig{
		PostgresHost: "localhost", PostgresPort: "5432", PostgresUser: "u",
		PostgresPassword: "p", PostgresDB: "d", PostgresSSLMode: "disable",
	}}
	assert.Equal(t, "host=localhost port=5432 user=u password=p dbname=d sslmode=disable", cfg.DSN())
}
