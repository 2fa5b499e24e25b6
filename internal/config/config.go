package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Cron      CronConfig      `yaml:"cron" mapstructure:"cron"`
	Scheduler SchedulerConfig `yaml:"scheduler" mapstructure:"scheduler"`
	Discovery DiscoveryConfig `yaml:"discovery" mapstructure:"discovery"`
	Readiness ReadinessConfig `yaml:"readiness" mapstructure:"readiness"`
	Enrich    EnrichConfig    `yaml:"enrich" mapstructure:"enrich"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Blob      BlobConfig      `yaml:"blob" mapstructure:"blob"`
	Alerts    AlertsConfig    `yaml:"alerts" mapstructure:"alerts"`
	AWS       AWSConfig       `yaml:"aws" mapstructure:"aws"`
}

// StoreConfig configures the Postgres backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the manual trigger server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// CronConfig configures the scheduled trigger and the shared secret gating
// the manual trigger.
type CronConfig struct {
	Secret    string            `yaml:"secret" mapstructure:"secret"`
	SecretARN string            `yaml:"secret_arn" mapstructure:"secret_arn"`
	Enabled   bool              `yaml:"enabled" mapstructure:"enabled"`
	Schedules map[string]string `yaml:"schedules" mapstructure:"schedules"`
}

// SchedulerConfig bounds the due-item scheduler.
type SchedulerConfig struct {
	RegistryLimit           int `yaml:"registry_limit" mapstructure:"registry_limit"`
	LifecycleLimit          int `yaml:"lifecycle_limit" mapstructure:"lifecycle_limit"`
	URLsPerEntry            int `yaml:"urls_per_entry" mapstructure:"urls_per_entry"`
	RegistryDefaultPriority int `yaml:"registry_default_priority" mapstructure:"registry_default_priority"`
	CheckDefaultPriority    int `yaml:"check_default_priority" mapstructure:"check_default_priority"`
}

// DiscoveryConfig holds the quality gate constants and sweep sizes.
type DiscoveryConfig struct {
	Threshold         int `yaml:"threshold" mapstructure:"threshold"`
	TitleWeight       int `yaml:"title_weight" mapstructure:"title_weight"`
	SummaryWeight     int `yaml:"summary_weight" mapstructure:"summary_weight"`
	RegionWeight      int `yaml:"region_weight" mapstructure:"region_weight"`
	URLWeight         int `yaml:"url_weight" mapstructure:"url_weight"`
	ValidateLimit     int `yaml:"validate_limit" mapstructure:"validate_limit"`
	PromoteLimit      int `yaml:"promote_limit" mapstructure:"promote_limit"`
	ExpiryDays        int `yaml:"expiry_days" mapstructure:"expiry_days"`
	LifecyclePriority int `yaml:"lifecycle_priority" mapstructure:"lifecycle_priority"`
}

// ReadinessConfig configures the readiness sweep.
type ReadinessConfig struct {
	SweepLimit int  `yaml:"sweep_limit" mapstructure:"sweep_limit"`
	Fallback   bool `yaml:"fallback" mapstructure:"fallback"`
}

// EnrichConfig configures the shard-gated enrichment sweep.
type EnrichConfig struct {
	Limit int `yaml:"limit" mapstructure:"limit"`
}

// FetchConfig configures outbound page fetches.
type FetchConfig struct {
	TimeoutSecs      int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	DelayMillis      int    `yaml:"delay_millis" mapstructure:"delay_millis"`
	UserAgent        string `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes     int64  `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	BreakerThreshold int    `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
}

// BlobConfig selects the raw payload store.
type BlobConfig struct {
	Backend    string `yaml:"backend" mapstructure:"backend"`
	Bucket     string `yaml:"bucket" mapstructure:"bucket"`
	Prefix     string `yaml:"prefix" mapstructure:"prefix"`
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// AlertsConfig configures domain failure alerts.
type AlertsConfig struct {
	WebhookURL       string `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureThreshold int64  `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	WindowHours      int    `yaml:"window_hours" mapstructure:"window_hours"`
}

// AWSConfig configures the AWS SDK.
type AWSConfig struct {
	Region string `yaml:"region" mapstructure:"region"`
}

// DefaultSchedules are the cron expressions used when none are configured.
var DefaultSchedules = map[string]string{
	"schedule":  "*/5 * * * *",
	"promote":   "15 * * * *",
	"readiness": "30 3 * * *",
	"enrich":    "*/10 * * * *",
	"alerts":    "0 * * * *",
}

// Load reads configuration from .env, config.yaml and the environment.
func Load() (*Config, error) {
	// .env is optional; real environment variables win over it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("GRANTWATCH")
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

	if len(cfg.Cron.Schedules) == 0 {
		cfg.Cron.Schedules = make(map[string]string, len(DefaultSchedules))
		for k, s := range DefaultSchedules {
			cfg.Cron.Schedules[k] = s
		}
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("cron.secret", "")
	v.SetDefault("cron.secret_arn", "")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("scheduler.registry_limit", 200)
	v.SetDefault("scheduler.lifecycle_limit", 50)
	v.SetDefault("scheduler.urls_per_entry", 3)
	v.SetDefault("scheduler.registry_default_priority", 4)
	v.SetDefault("scheduler.check_default_priority", 3)
	v.SetDefault("discovery.threshold", 50)
	v.SetDefault("discovery.title_weight", 30)
	v.SetDefault("discovery.summary_weight", 30)
	v.SetDefault("discovery.region_weight", 20)
	v.SetDefault("discovery.url_weight", 20)
	v.SetDefault("discovery.validate_limit", 100)
	v.SetDefault("discovery.promote_limit", 50)
	v.SetDefault("discovery.expiry_days", 7)
	v.SetDefault("discovery.lifecycle_priority", 3)
	v.SetDefault("readiness.sweep_limit", 100)
	v.SetDefault("readiness.fallback", true)
	v.SetDefault("enrich.limit", 20)
	v.SetDefault("fetch.timeout_secs", 8)
	v.SetDefault("fetch.delay_millis", 500)
	v.SetDefault("fetch.user_agent", "grantwatch/1.0 (+https://sells-group.com/bot)")
	v.SetDefault("fetch.max_body_bytes", 5<<20)
	v.SetDefault("fetch.breaker_threshold", 3)
	v.SetDefault("blob.backend", "sqlite")
	v.SetDefault("blob.prefix", "raw")
	v.SetDefault("blob.sqlite_path", "grantwatch-blobs.db")
	v.SetDefault("alerts.failure_threshold", 10)
	v.SetDefault("alerts.window_hours", 24)
	v.SetDefault("aws.region", "ap-northeast-1")
}

// Validate checks the configuration for the given run mode ("serve", "run",
// "lambda", "migrate").
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve", "run", "lambda", "migrate":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	if mode == "serve" && c.Server.Port <= 0 {
		errs = append(errs, "server.port must be > 0")
	}

	if c.Discovery.Threshold < 0 || c.Discovery.Threshold > 100 {
		errs = append(errs, "discovery.threshold must be between 0 and 100")
	}
	for _, w := range []int{c.Discovery.TitleWeight, c.Discovery.SummaryWeight, c.Discovery.RegionWeight, c.Discovery.URLWeight} {
		if w < 0 {
			errs = append(errs, "discovery weights must be >= 0")
			break
		}
	}

	if c.Fetch.TimeoutSecs <= 0 || c.Fetch.TimeoutSecs > 60 {
		errs = append(errs, "fetch.timeout_secs must be between 1 and 60")
	}

	switch c.Blob.Backend {
	case "sqlite", "memory":
	case "gcs":
		if c.Blob.Bucket == "" {
			errs = append(errs, "blob.bucket is required for the gcs backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("blob.backend %q is not supported", c.Blob.Backend))
	}

	for _, n := range []struct {
		name string
		v    int
	}{
		{"scheduler.registry_limit", c.Scheduler.RegistryLimit},
		{"scheduler.lifecycle_limit", c.Scheduler.LifecycleLimit},
		{"discovery.validate_limit", c.Discovery.ValidateLimit},
		{"discovery.promote_limit", c.Discovery.PromoteLimit},
		{"readiness.sweep_limit", c.Readiness.SweepLimit},
		{"enrich.limit", c.Enrich.Limit},
	} {
		if n.v < 1 || n.v > 1000 {
			errs = append(errs, fmt.Sprintf("%s must be between 1 and 1000", n.name))
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: invalid: %s", strings.Join(errs, "; "))
	}
	return nil
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
