package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sethvargo/go-envconfig"
)

const (
	SnapshotStorePostgres = "postgres"
	SnapshotStoreRedis    = "redis"
	SnapshotStoreDisk     = "disk"
)

type Config struct {
	Environment string `toml:"environment"`
	Host        string `toml:"host"`
	Port        int    `toml:"port"`
	// logging
	LogLevel      string `toml:"log_level"`
	LogsPath      string `toml:"logs_path"`
	LogToStdout   bool   `toml:"log_to_stdout"`
	SentryEnabled bool   `toml:"sentry_enabled"`
	// postgres
	PostgresHost string `toml:"postgres_host"`
	PostgresPort string `toml:"postgres_port"`
	PostgresDB   string `toml:"postgres_db"`
	// redis
	RedisHost string `toml:"redis_host"`
	RedisPort string `toml:"redis_port"`
	// metrics
	PrometheusMetricsHost string `toml:"prometheus_metrics_host"`
	PrometheusMetricsPort string `toml:"prometheus_metrics_port"`
	// predictor
	SnapshotStore             string        `toml:"snapshot_store"`
	SnapshotDir               string        `toml:"snapshot_dir"`
	CacheSizeMB               int           `toml:"cache_size_mb"`
	CacheTTL                  time.Duration `toml:"cache_ttl"`
	InitializeRateLimitPerMin int           `toml:"initialize_rate_limit_per_min"`
	AllowedOrigins            []string      `toml:"allowed_origins"`
}

// Secrets never live in the TOML file, they come from the environment.
type Secrets struct {
	SentryDSN        string `env:"SENTRY_DSN"`
	RedisPassword    string `env:"GYMSTATS_REDIS_PASS"`
	PostgresUser     string `env:"GYMSTATS_POSTGRES_USER, default=postgres"`
	PostgresPassword string `env:"GYMSTATS_POSTGRES_PASS"`
	HoneycombEnabled bool   `env:"HONEYCOMB_ENABLED, default=false"`
	HoneycombAPIKey  string `env:"HONEYCOMB_API_KEY"`
	OtelServiceName  string `env:"OTEL_SERVICE_NAME, default=gymstats-predictor"`
}

type Toml struct {
	Development *Config
	Production  *Config
	Test        *Config
}

func (t *Toml) Get(env string) (*Config, error) {
	var cfg *Config
	switch strings.ToLower(env) {
	case "dev", "development":
		cfg = t.Development
	case "prod", "production":
		cfg = t.Production
	case "test", "testing":
		cfg = t.Test
	default:
		return nil, fmt.Errorf("unknown env: %s", env)
	}
	if cfg == nil {
		return nil, fmt.Errorf("env [%s] missing from config", env)
	}
	return cfg, nil
}

// Load reads the section of the TOML file at path for the given env.
func Load(env, path string) (*Config, error) {
	var t Toml
	if _, err := toml.DecodeFile(path, &t); err != nil {
		return nil, fmt.Errorf("decode config [%s]: %w", path, err)
	}

	cfg, err := t.Get(env)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid [%s] config: %w", env, err)
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.SnapshotStore == "" {
		c.SnapshotStore = SnapshotStorePostgres
	}
	if c.CacheSizeMB <= 0 {
		c.CacheSizeMB = 8
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 30 * time.Minute
	}
	if c.InitializeRateLimitPerMin <= 0 {
		c.InitializeRateLimitPerMin = 6
	}
}

func (c *Config) validate() error {
	if c.Port <= 0 {
		return fmt.Errorf("port not set")
	}
	switch c.SnapshotStore {
	case SnapshotStorePostgres, SnapshotStoreRedis:
	case SnapshotStoreDisk:
		if c.SnapshotDir == "" {
			return fmt.Errorf("snapshot_dir is required with the disk snapshot store")
		}
	default:
		return fmt.Errorf("unknown snapshot store: %s", c.SnapshotStore)
	}
	return nil
}

func LoadSecrets(ctx context.Context) (Secrets, error) {
	var secrets Secrets
	if err := envconfig.Process(ctx, &secrets); err != nil {
		return Secrets{}, fmt.Errorf("process env secrets: %w", err)
	}
	return secrets, nil
}

// LoadSecretsFrom is LoadSecrets over a fixed set of values.
func LoadSecretsFrom(ctx context.Context, env map[string]string) (Secrets, error) {
	var secrets Secrets
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &secrets,
		Lookuper: envconfig.MapLookuper(env),
	}); err != nil {
		return Secrets{}, fmt.Errorf("process env secrets: %w", err)
	}
	return secrets, nil
}
