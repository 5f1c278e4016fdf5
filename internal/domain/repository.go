// Package domain defines the core types and interfaces for Sentinel.
package domain

import (
	"context"
	"time"
)

// AssessmentFilter narrows and pages assessment queries. Zero values mean
// "no constraint". Search matches transaction id and account substrings.
type AssessmentFilter struct {
	RiskLevel RiskLevel
	Decision  Decision
	MinAmount *float64
	MaxAmount *float64
	StartDate *time.Time
	EndDate   *time.Time
	Search    string
	Page      int
	PageSize  int
}

// AlertFilter narrows and pages alert queries.
type AlertFilter struct {
	Status    AlertStatus
	RiskLevel RiskLevel
	StartDate *time.Time
	EndDate   *time.Time
	Page      int
	PageSize  int
}

// Repository defines persistence for the pipeline and the read-only query
// surface consumed by the dashboard. The pipeline only ever inserts
// transactions, assessments, and alerts; alert status updates come from the
// review workflow, and profiles are written by the out-of-band updater.
type Repository interface {
	// Transactions (the immutable ingress record).
	SaveTransaction(ctx context.Context, tx *TransactionRequest) error
	GetTransaction(ctx context.Context, txID string) (*TransactionRequest, error)

	// Assessments. SaveAssessment is insert-if-absent on transaction id and
	// returns ErrDuplicate from the storage layer when an assessment already
	// exists, so at most one is ever persisted per transaction.
	SaveAssessment(ctx context.Context, a *FraudAssessment) error
	GetAssessment(ctx context.Context, txID string) (*FraudAssessment, error)
	ListAssessments(ctx context.Context, f AssessmentFilter) ([]*FraudAssessment, int, error)

	// Alerts. SaveAlert deduplicates on transaction id the same way.
	SaveAlert(ctx context.Context, alert *Alert) error
	GetAlert(ctx context.Context, id string) (*Alert, error)
	GetAlertByTransaction(ctx context.Context, txID string) (*Alert, error)
	ListAlerts(ctx context.Context, f AlertFilter) ([]*Alert, int, error)
	UpdateAlert(ctx context.Context, alert *Alert) error

	// Rule definitions (admin surface; the engine loads from here).
	SaveRule(ctx context.Context, rule *Rule) error
	GetRule(ctx context.Context, id string) (*Rule, error)
	ListRules(ctx context.Context, enabledOnly bool) ([]*Rule, error)
	DeleteRule(ctx context.Context, id string) error

	// Behavioral profiles (read path for the feature extractor).
	GetAccountProfile(ctx context.Context, accountID string) (*AccountProfile, error)
	SaveAccountProfile(ctx context.Context, p *AccountProfile) error

	// Analytics projections.
	GetDashboardStats(ctx context.Context, period Period) (*DashboardStats, error)
	GetRiskDistribution(ctx context.Context, period Period) (*RiskDistribution, error)
	GetTrends(ctx context.Context, days int) (*TrendData, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `yaml:"driver"`

	// SQLite specific
	SQLitePath string `yaml:"sqlite_path"`

	// PostgreSQL specific
	PostgresHost     string `yaml:"postgres_host"`
	PostgresPort     int    `yaml:"postgres_port"`
	PostgresUser     string `yaml:"postgres_user"`
	PostgresPassword string `yaml:"postgres_password"`
	PostgresDB       string `yaml:"postgres_db"`
	PostgresSSLMode  string `yaml:"postgres_sslmode"`

	// Connection pool settings
	MaxOpenConns        int `yaml:"max_open_conns"`
	MaxIdleConns        int `yaml:"max_idle_conns"`
	ConnMaxLifetimeSecs int `yaml:"conn_max_lifetime_secs"`
}
