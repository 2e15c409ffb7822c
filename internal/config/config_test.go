package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// No config.yaml in a fresh temp dir
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, int32(2), cfg.Store.MinConns)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 100, cfg.Dashboard.PageSize)
	assert.Equal(t, 15*time.Second, cfg.Dashboard.UnlockTimeout())
	assert.Equal(t, 500*time.Millisecond, cfg.Dashboard.SettleDelay())
	assert.Equal(t, 4*time.Second, cfg.Dashboard.NotificationTTL())
	assert.Equal(t, 30, cfg.Dashboard.UnlockRatePerMin)
	assert.Equal(t, 30*time.Minute, cfg.Dashboard.IdleTTL())
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 200, cfg.Retry.InitialBackoffMs)
	assert.Equal(t, 2000, cfg.Retry.MaxBackoffMs)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: leadgate.db
log:
  level: debug
  format: console
server:
  port: 9090
  cors_origins:
    - https://app.example.com
dashboard:
  page_size: 50
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "leadgate.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 50, cfg.Dashboard.PageSize)
	// Defaults still apply for unset values
	assert.Equal(t, 15, cfg.Dashboard.UnlockTimeoutSecs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("LEADGATE_STORE_DRIVER", "postgres")
	t.Setenv("LEADGATE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("LEADGATE_SERVER_PORT", "3000")
	t.Setenv("LEADGATE_DASHBOARD_SETTLE_DELAY_MS", "0")
	t.Setenv("LEADGATE_STORE_DATABASE_URL", "postgres://localhost/leadgate")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, time.Duration(0), cfg.Dashboard.SettleDelay())
	assert.Equal(t, "postgres://localhost/leadgate", cfg.Store.DatabaseURL)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with the loaded defaults for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = "postgres://localhost/test"
	cfg.Server.Port = 8080
	cfg.Dashboard = DashboardConfig{
		PageSize:            100,
		UnlockTimeoutSecs:   15,
		SettleDelayMs:       500,
		NotificationTTLSecs: 4,
		UnlockRatePerMin:    30,
		IdleTTLMins:         30,
	}
	cfg.Retry = RetryConfig{MaxAttempts: 3, InitialBackoffMs: 200, MaxBackoffMs: 2000}
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"serve", "cli", "migrate"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidate_PostgresNeedsURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("cli")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.Driver = "sqlite"
	assert.NoError(t, cfg.Validate("cli"))
}

func TestValidate_UnknownDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `store.driver "mysql"`)
}

func TestValidate_ServePort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")

	assert.NoError(t, cfg.Validate("cli"))
}

func TestValidate_DashboardBounds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"page size", func(c *Config) { c.Dashboard.PageSize = 0 }, "dashboard.page_size"},
		{"unlock timeout", func(c *Config) { c.Dashboard.UnlockTimeoutSecs = -1 }, "dashboard.unlock_timeout_secs"},
		{"settle delay", func(c *Config) { c.Dashboard.SettleDelayMs = -5 }, "dashboard.settle_delay_ms"},
		{"notification ttl", func(c *Config) { c.Dashboard.NotificationTTLSecs = 0 }, "dashboard.notification_ttl_secs"},
		{"retry attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, "retry.max_attempts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			tt.mutate(cfg)
			err := cfg.Validate("serve")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)

			// migrate only needs the store
			assert.NoError(t, cfg.Validate("migrate"))
		})
	}
}

func TestValidate_UnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
