// Package config loads the Sentinel configuration: product defaults,
// overlaid by an optional YAML file, overlaid by SENTINEL_* environment
// variables, then validated. Invalid configuration is fatal at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/securepay-ai/sentinel/internal/domain"
)

// Load builds the effective configuration. path may be empty (defaults +
// env only). A .env file in the working directory is honored if present.
func Load(path string) (*domain.Config, error) {
	_ = godotenv.Load()

	cfg := domain.DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		// Unmarshal into the defaults so omitted keys keep their values.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *domain.Config) {
	cfg.Server.Host = getEnv("SENTINEL_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("SENTINEL_PORT", cfg.Server.Port)

	cfg.Pipeline.BudgetMs = getEnvInt("SENTINEL_BUDGET_MS", cfg.Pipeline.BudgetMs)
	cfg.Pipeline.AmountCeiling = getEnvFloat("SENTINEL_AMOUNT_CEILING", cfg.Pipeline.AmountCeiling)

	cfg.Scoring.ModelArtifacts = getEnv("SENTINEL_MODEL_ARTIFACTS", cfg.Scoring.ModelArtifacts)
	cfg.Scoring.ModelTimeoutMs = getEnvInt("SENTINEL_MODEL_TIMEOUT_MS", cfg.Scoring.ModelTimeoutMs)

	cfg.Repository.Driver = getEnv("SENTINEL_DB_DRIVER", cfg.Repository.Driver)
	cfg.Repository.SQLitePath = getEnv("SENTINEL_SQLITE_PATH", cfg.Repository.SQLitePath)
	cfg.Repository.PostgresHost = getEnv("SENTINEL_POSTGRES_HOST", cfg.Repository.PostgresHost)
	cfg.Repository.PostgresPort = getEnvInt("SENTINEL_POSTGRES_PORT", cfg.Repository.PostgresPort)
	cfg.Repository.PostgresUser = getEnv("SENTINEL_POSTGRES_USER", cfg.Repository.PostgresUser)
	cfg.Repository.PostgresPassword = getEnv("SENTINEL_POSTGRES_PASSWORD", cfg.Repository.PostgresPassword)
	cfg.Repository.PostgresDB = getEnv("SENTINEL_POSTGRES_DB", cfg.Repository.PostgresDB)
	cfg.Repository.PostgresSSLMode = getEnv("SENTINEL_POSTGRES_SSLMODE", cfg.Repository.PostgresSSLMode)

	cfg.Cache.Type = getEnv("SENTINEL_CACHE_TYPE", cfg.Cache.Type)
	cfg.Cache.RedisAddr = getEnv("SENTINEL_REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = getEnv("SENTINEL_REDIS_PASSWORD", cfg.Cache.RedisPassword)

	cfg.EventBus.Type = getEnv("SENTINEL_BUS_TYPE", cfg.EventBus.Type)
	cfg.EventBus.NATSUrl = getEnv("SENTINEL_NATS_URL", cfg.EventBus.NATSUrl)
	cfg.EventBus.NATSToken = getEnv("SENTINEL_NATS_TOKEN", cfg.EventBus.NATSToken)

	if brokers := getEnv("SENTINEL_KAFKA_BROKERS", ""); brokers != "" {
		cfg.Stream.Brokers = splitList(brokers)
	}
	cfg.Stream.GroupID = getEnv("SENTINEL_KAFKA_GROUP", cfg.Stream.GroupID)
	cfg.Stream.TransactionsTopic = getEnv("SENTINEL_KAFKA_TOPIC", cfg.Stream.TransactionsTopic)

	cfg.Logging.Level = getEnv("SENTINEL_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("SENTINEL_LOG_FORMAT", cfg.Logging.Format)
	cfg.Tracing.Enabled = getEnvBool("SENTINEL_TRACING", cfg.Tracing.Enabled)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
