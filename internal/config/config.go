package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"` // empty disables gRPC health

	Env      string `yaml:"env"`       // "dev" | "prod"
	LogLevel string `yaml:"log_level"` // debug | info | warn | error

	// Store
	Store       string `yaml:"store"`   // sqlite | postgres | memory
	DBPath      string `yaml:"db_path"` // e.g. "./data/parkgate.db"
	PostgresDSN string `yaml:"postgres_dsn"`

	// Decision engine
	RatePerHour     int64         `yaml:"rate_per_hour"`
	DirectionPolicy string        `yaml:"direction_policy"` // payload | validate | reader
	StoreTimeout    time.Duration `yaml:"store_timeout"`
	MaxAttempts     int           `yaml:"max_attempts"`

	// Reader liveness
	HeartbeatRetentionDays int           `yaml:"heartbeat_retention_days"` // 0 = keep forever
	PruneInterval          time.Duration `yaml:"prune_interval"`
	ReaderOfflineAfter     time.Duration `yaml:"reader_offline_after"`

	// Optional integrations; empty disables.
	RedisAddr          string `yaml:"redis_addr"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
	AMQPURL            string `yaml:"amqp_url"`
	AMQPExchange       string `yaml:"amqp_exchange"`
}

func Defaults() Config {
	return Config{
		HTTPAddr:               ":8080",
		GRPCAddr:               ":9090",
		Env:                    "dev",
		LogLevel:               "info",
		Store:                  "sqlite",
		DBPath:                 "./data/parkgate.db",
		RatePerHour:            5000,
		DirectionPolicy:        "payload",
		StoreTimeout:           5 * time.Second,
		MaxAttempts:            3,
		HeartbeatRetentionDays: 30,
		PruneInterval:          time.Minute,
		ReaderOfflineAfter:     5 * time.Minute,
		RateLimitPerMinute:     120,
		AMQPExchange:           "parkgate.decisions",
	}
}

// Load builds the config from defaults, then the YAML file named by
// PARKGATE_CONFIG_FILE (if any), then PARKGATE_* environment variables.
func Load() (Config, error) {
	cfg := Defaults()

	if path := strings.TrimSpace(os.Getenv("PARKGATE_CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.HTTPAddr = getenvDefault("PARKGATE_HTTP_ADDR", cfg.HTTPAddr)
	if v, ok := os.LookupEnv("PARKGATE_GRPC_ADDR"); ok {
		cfg.GRPCAddr = strings.TrimSpace(v)
	}

	cfg.Env = strings.ToLower(getenvDefault("PARKGATE_ENV", cfg.Env))
	if cfg.Env != "dev" && cfg.Env != "prod" {
		// fail-soft: treat unknown as dev
		cfg.Env = "dev"
	}
	cfg.LogLevel = getenvDefault("PARKGATE_LOG_LEVEL", cfg.LogLevel)

	cfg.Store = strings.ToLower(getenvDefault("PARKGATE_STORE", cfg.Store))
	cfg.DBPath = getenvDefault("PARKGATE_DB_PATH", cfg.DBPath)
	cfg.PostgresDSN = getenvDefault("PARKGATE_POSTGRES_DSN", cfg.PostgresDSN)

	cfg.RatePerHour = int64(getenvInt("PARKGATE_RATE_PER_HOUR", int(cfg.RatePerHour)))
	cfg.DirectionPolicy = getenvDefault("PARKGATE_DIRECTION_POLICY", cfg.DirectionPolicy)
	cfg.StoreTimeout = getenvDuration("PARKGATE_STORE_TIMEOUT", cfg.StoreTimeout)
	cfg.MaxAttempts = getenvInt("PARKGATE_MAX_ATTEMPTS", cfg.MaxAttempts)

	cfg.HeartbeatRetentionDays = getenvInt("PARKGATE_HEARTBEAT_RETENTION_DAYS", cfg.HeartbeatRetentionDays)
	cfg.PruneInterval = getenvDuration("PARKGATE_PRUNE_INTERVAL", cfg.PruneInterval)
	cfg.ReaderOfflineAfter = getenvDuration("PARKGATE_READER_OFFLINE_AFTER", cfg.ReaderOfflineAfter)

	cfg.RedisAddr = getenvDefault("PARKGATE_REDIS_ADDR", cfg.RedisAddr)
	cfg.RateLimitPerMinute = getenvInt("PARKGATE_RATE_LIMIT_PER_MINUTE", cfg.RateLimitPerMinute)
	cfg.AMQPURL = getenvDefault("PARKGATE_AMQP_URL", cfg.AMQPURL)
	cfg.AMQPExchange = getenvDefault("PARKGATE_AMQP_EXCHANGE", cfg.AMQPExchange)
}

func (c Config) Validate() error {
	var errs []error
	switch c.Store {
	case "sqlite", "memory":
	case "postgres":
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres store needs PARKGATE_POSTGRES_DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", c.Store))
	}
	if c.RatePerHour < 0 {
		errs = append(errs, errors.New("rate_per_hour must not be negative"))
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("store_timeout must be positive"))
	}
	return errors.Join(errs...)
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// getenvDuration accepts Go durations ("90s") or bare seconds ("90").
func getenvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return def
	}
	return d
}
