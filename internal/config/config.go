package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Dashboard DashboardConfig `yaml:"dashboard" mapstructure:"dashboard"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// DashboardConfig tunes per-user sessions and the unlock workflow.
type DashboardConfig struct {
	PageSize            int `yaml:"page_size" mapstructure:"page_size"`
	UnlockTimeoutSecs   int `yaml:"unlock_timeout_secs" mapstructure:"unlock_timeout_secs"`
	SettleDelayMs       int `yaml:"settle_delay_ms" mapstructure:"settle_delay_ms"`
	NotificationTTLSecs int `yaml:"notification_ttl_secs" mapstructure:"notification_ttl_secs"`
	UnlockRatePerMin    int `yaml:"unlock_rate_per_min" mapstructure:"unlock_rate_per_min"`
	IdleTTLMins         int `yaml:"idle_ttl_mins" mapstructure:"idle_ttl_mins"`
}

// UnlockTimeout returns the unlock call deadline.
func (d DashboardConfig) UnlockTimeout() time.Duration {
	return time.Duration(d.UnlockTimeoutSecs) * time.Second
}

// SettleDelay returns the pause between a successful unlock and the reload.
func (d DashboardConfig) SettleDelay() time.Duration {
	return time.Duration(d.SettleDelayMs) * time.Millisecond
}

// NotificationTTL returns how long a notification stays visible.
func (d DashboardConfig) NotificationTTL() time.Duration {
	return time.Duration(d.NotificationTTLSecs) * time.Second
}

// IdleTTL returns how long an unused session is kept.
func (d DashboardConfig) IdleTTL() time.Duration {
	return time.Duration(d.IdleTTLMins) * time.Minute
}

// RetryConfig configures retries of backend reads.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("dashboard.page_size", 100)
	v.SetDefault("dashboard.unlock_timeout_secs", 15)
	v.SetDefault("dashboard.settle_delay_ms", 500)
	v.SetDefault("dashboard.notification_ttl_secs", 4)
	v.SetDefault("dashboard.unlock_rate_per_min", 30)
	v.SetDefault("dashboard.idle_ttl_mins", 30)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 200)
	v.SetDefault("retry.max_backoff_ms", 2000)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings required by the given command mode
// ("serve", "cli" or "migrate").
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "cli", "migrate":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	case "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be postgres or sqlite", c.Store.Driver))
	}

	if mode == "migrate" {
		return joinErrs(errs)
	}

	d := c.Dashboard
	if d.PageSize <= 0 {
		errs = append(errs, "dashboard.page_size must be > 0")
	}
	if d.UnlockTimeoutSecs <= 0 {
		errs = append(errs, "dashboard.unlock_timeout_secs must be > 0")
	}
	if d.SettleDelayMs < 0 {
		errs = append(errs, "dashboard.settle_delay_ms must be >= 0")
	}
	if d.NotificationTTLSecs <= 0 {
		errs = append(errs, "dashboard.notification_ttl_secs must be > 0")
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, "retry.max_attempts must be >= 1")
	}

	return joinErrs(errs)
}

func joinErrs(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return eris.New("config: " + strings.Join(errs, "; "))
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
