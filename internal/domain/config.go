package domain

import (
	"fmt"
	"math"
	"time"
)

// Config holds the complete Sentinel configuration. Defaults are the
// product calibration; deployments override via YAML file and SENTINEL_*
// environment variables. Validation failures are fatal at startup and can
// never surface per-request.
type Config struct {
	Server ServerConfig `yaml:"server"`

	// Pipeline behavior (budget, fallbacks, batch limits).
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Scoring policy (bands, decision table, ensemble weights).
	Scoring ScoringConfig `yaml:"scoring"`

	// Component configurations
	Repository RepositoryConfig `yaml:"repository"`
	Cache      CacheConfig      `yaml:"cache"`
	EventBus   EventBusConfig   `yaml:"event_bus"`
	Stream     StreamConfig     `yaml:"stream"`

	// Observability
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ReadTimeout  int    `yaml:"read_timeout"`  // seconds
	WriteTimeout int    `yaml:"write_timeout"` // seconds
}

// PipelineConfig holds orchestration settings.
type PipelineConfig struct {
	// BudgetMs is the hard end-to-end deadline per invocation.
	BudgetMs int `yaml:"budget_ms"`

	// RetryEnsemble re-invokes the scoring stage once when every sub-model
	// failed and at least half the budget remains.
	RetryEnsemble bool `yaml:"retry_ensemble"`

	// RuleWorkers bounds concurrent rule evaluation per invocation.
	RuleWorkers int `yaml:"rule_workers"`

	// MaxBatch caps the batch analyze endpoint.
	MaxBatch int `yaml:"max_batch"`

	// AmountCeiling is the absolute per-transaction ceiling. Exceeding it is
	// a forced REJECT, not an ingress validation error.
	AmountCeiling float64 `yaml:"amount_ceiling"`

	// HighAmountMark flags large-but-legal transactions for the dashboard.
	HighAmountMark float64 `yaml:"high_amount_mark"`

	// Currencies the product accepts.
	Currencies []string `yaml:"currencies"`

	// HomeCountry for international-transaction detection.
	HomeCountry string `yaml:"home_country"`
}

// Budget returns the invocation deadline as a duration.
func (c PipelineConfig) Budget() time.Duration {
	return time.Duration(c.BudgetMs) * time.Millisecond
}

// AcceptsCurrency reports whether the code is in the configured whitelist.
func (c PipelineConfig) AcceptsCurrency(code string) bool {
	for _, cur := range c.Currencies {
		if cur == code {
			return true
		}
	}
	return false
}

// ScoringConfig holds the score-to-decision policy and ensemble settings.
// Thresholds are ascending lower bounds: score < MediumThreshold is LOW,
// [MediumThreshold, HighThreshold) MEDIUM, [HighThreshold,
// CriticalThreshold) HIGH, >= CriticalThreshold CRITICAL.
type ScoringConfig struct {
	MediumThreshold   float64 `yaml:"medium_threshold"`
	HighThreshold     float64 `yaml:"high_threshold"`
	CriticalThreshold float64 `yaml:"critical_threshold"`

	// Policy maps each risk level to its decision. Severity must be
	// non-decreasing in risk level.
	Policy map[RiskLevel]Decision `yaml:"policy"`

	// Weights are the nominal per-model ensemble weights. They are
	// renormalized over the sub-models that actually respond.
	Weights map[string]float64 `yaml:"weights"`

	// Baseline is the fixed reference score explanations attribute against.
	Baseline float64 `yaml:"baseline"`

	// TopFactors bounds the ranked explanation length.
	TopFactors int `yaml:"top_factors"`

	// ModelTimeoutMs is the per-sub-model budget inside the scoring stage.
	ModelTimeoutMs int `yaml:"model_timeout_ms"`

	// ModelArtifacts is the path to the model coefficient file consumed by
	// the registry (hot-reloaded via the admin API).
	ModelArtifacts string `yaml:"model_artifacts"`
}

// ModelTimeout returns the per-model budget as a duration.
func (c ScoringConfig) ModelTimeout() time.Duration {
	return time.Duration(c.ModelTimeoutMs) * time.Millisecond
}

// RiskLevelFor maps a clamped score to its configured band.
func (c ScoringConfig) RiskLevelFor(score float64) RiskLevel {
	switch {
	case score >= c.CriticalThreshold:
		return RiskCritical
	case score >= c.HighThreshold:
		return RiskHigh
	case score >= c.MediumThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Validate enforces the policy invariants: bands strictly ascending inside
// (0,1], a decision for every risk level, decision severity monotone in
// risk, and positive weights summing to ~1.0.
func (c ScoringConfig) Validate() error {
	if !(c.MediumThreshold > 0 && c.MediumThreshold < c.HighThreshold &&
		c.HighThreshold < c.CriticalThreshold && c.CriticalThreshold <= 1) {
		return fmt.Errorf("risk bands must be strictly ascending in (0,1]: %.3f/%.3f/%.3f",
			c.MediumThreshold, c.HighThreshold, c.CriticalThreshold)
	}

	prev := 0
	for _, level := range RiskLevels {
		d, ok := c.Policy[level]
		if !ok {
			return fmt.Errorf("policy missing decision for risk level %s", level)
		}
		sev := d.Severity()
		if sev == 0 {
			return fmt.Errorf("policy maps %s to unknown decision %q", level, d)
		}
		if sev < prev {
			return fmt.Errorf("policy not monotonic: %s -> %s is less severe than the level below", level, d)
		}
		prev = sev
	}

	if len(c.Weights) == 0 {
		return fmt.Errorf("at least one model weight is required")
	}
	sum := 0.0
	for id, w := range c.Weights {
		if w <= 0 {
			return fmt.Errorf("weight for model %s must be positive, got %f", id, w)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("model weights must sum to 1.0 (+-0.01), got %f", sum)
	}

	if c.Baseline < 0 || c.Baseline > 1 {
		return fmt.Errorf("baseline must be in [0,1], got %f", c.Baseline)
	}
	if c.TopFactors < 1 {
		return fmt.Errorf("top_factors must be at least 1, got %d", c.TopFactors)
	}
	if c.ModelTimeoutMs <= 0 {
		return fmt.Errorf("model_timeout_ms must be positive, got %d", c.ModelTimeoutMs)
	}
	return nil
}

// StreamConfig holds Kafka ingestion settings. Ingestion is disabled when
// no brokers are configured.
type StreamConfig struct {
	Brokers           []string `yaml:"brokers"`
	GroupID           string   `yaml:"group_id"`
	TransactionsTopic string   `yaml:"transactions_topic"`
}

// Enabled reports whether stream ingestion should start.
func (c StreamConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// DefaultConfig returns the product calibration: SQLite, in-process cache
// and bus, no Kafka, thresholds and weights as shipped.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Pipeline: PipelineConfig{
			BudgetMs:       100,
			RetryEnsemble:  true,
			RuleWorkers:    8,
			MaxBatch:       100,
			AmountCeiling:  500000,
			HighAmountMark: 100000,
			Currencies:     []string{"BDT"},
			HomeCountry:    "BD",
		},
		Scoring: ScoringConfig{
			MediumThreshold:   0.3,
			HighThreshold:     0.5,
			CriticalThreshold: 0.8,
			Policy: map[RiskLevel]Decision{
				RiskLow:      DecisionApprove,
				RiskMedium:   DecisionApprove,
				RiskHigh:     DecisionReview,
				RiskCritical: DecisionReject,
			},
			Weights: map[string]float64{
				"random_forest":  0.35,
				"xgboost":        0.40,
				"neural_network": 0.25,
			},
			Baseline:       0.10,
			TopFactors:     5,
			ModelTimeoutMs: 40,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./sentinel.db",
		},
		Cache: CacheConfig{
			Type:           "memory",
			LocalMaxSize:   10000,
			ProfileTTLSecs: 300,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Stream: StreamConfig{
			GroupID:           "sentinel-ingest",
			TransactionsTopic: "payments.transactions",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "sentinel",
		},
	}
}

// Validate checks the whole configuration. Called once at startup.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port out of range: %d", c.Server.Port)
	}
	if c.Pipeline.BudgetMs <= 0 {
		return fmt.Errorf("pipeline budget_ms must be positive, got %d", c.Pipeline.BudgetMs)
	}
	if c.Pipeline.AmountCeiling <= 0 {
		return fmt.Errorf("amount_ceiling must be positive, got %f", c.Pipeline.AmountCeiling)
	}
	if c.Pipeline.MaxBatch <= 0 {
		return fmt.Errorf("max_batch must be positive, got %d", c.Pipeline.MaxBatch)
	}
	if c.Pipeline.RuleWorkers <= 0 {
		return fmt.Errorf("rule_workers must be positive, got %d", c.Pipeline.RuleWorkers)
	}
	if len(c.Pipeline.Currencies) == 0 {
		return fmt.Errorf("at least one currency must be configured")
	}
	if c.Scoring.ModelTimeoutMs >= c.Pipeline.BudgetMs {
		return fmt.Errorf("model_timeout_ms (%d) must be below the pipeline budget (%d)",
			c.Scoring.ModelTimeoutMs, c.Pipeline.BudgetMs)
	}
	if err := c.Scoring.Validate(); err != nil {
		return fmt.Errorf("scoring config: %w", err)
	}
	switch c.Repository.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown repository driver %q", c.Repository.Driver)
	}
	if c.Stream.Enabled() && (c.Stream.GroupID == "" || c.Stream.TransactionsTopic == "") {
		return fmt.Errorf("stream ingestion needs group_id and transactions_topic")
	}
	return nil
}
