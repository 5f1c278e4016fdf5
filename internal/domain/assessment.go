package domain

import (
	"time"
)

// RiskLevel is the ordinal risk category derived from the fraud score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Severity orders risk levels so policy monotonicity can be checked.
// Unknown levels sort below LOW.
func (r RiskLevel) Severity() int {
	switch r {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	case RiskCritical:
		return 4
	default:
		return 0
	}
}

// RiskLevels lists all levels in ascending severity.
var RiskLevels = []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}

// Decision is the terminal pipeline output for a transaction.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReview  Decision = "REVIEW"
	DecisionReject  Decision = "REJECT"
)

// Severity orders decisions from least to most severe.
func (d Decision) Severity() int {
	switch d {
	case DecisionApprove:
		return 1
	case DecisionReview:
		return 2
	case DecisionReject:
		return 3
	default:
		return 0
	}
}

// SubScore is the outcome of one sub-model invocation. Exactly one is
// produced per registered model per invocation, whether it succeeded or not.
type SubScore struct {
	ModelID      string  `json:"model_id"`
	ModelVersion string  `json:"model_version"`
	Probability  float64 `json:"probability"`
	LatencyMs    int64   `json:"latency_ms"`
	OK           bool    `json:"ok"`
	// Error kind when OK is false: "timeout" or "error".
	FailureKind string `json:"failure_kind,omitempty"`
}

// Factor is one ranked explanation entry: a feature and its signed
// contribution to the deviation of the score from the baseline.
type Factor struct {
	Feature string  `json:"feature"`
	Impact  float64 `json:"impact"`
}

// Fallback reasons recorded on degraded or policy-fallback assessments.
const (
	FallbackNone        = ""
	FallbackRuleOnly    = "ensemble_unavailable"
	FallbackDeadline    = "deadline_exceeded"
	FallbackFeatureless = "features_unavailable"
)

// FraudAssessment is the terminal artifact of one pipeline invocation.
// RiskLevel and Decision are derived from (Score, rule outcome) by the
// decision policy and are never set independently.
type FraudAssessment struct {
	TransactionID string    `json:"transaction_id"`
	Score         float64   `json:"score"`
	RiskLevel     RiskLevel `json:"risk_level"`
	Decision      Decision  `json:"decision"`
	Reason        string    `json:"reason,omitempty"`

	// Ranked explanation, bounded length, deterministic order.
	Factors []Factor `json:"factors,omitempty"`

	// Confidence is the model agreement measure in [0,1]; 1.0 when a single
	// model contributed.
	Confidence float64 `json:"confidence"`

	// Scoring provenance.
	ModelVersion string     `json:"model_version"`
	SubScores    []SubScore `json:"sub_scores,omitempty"`
	FiredRules   []string   `json:"fired_rules,omitempty"`
	Flags        []string   `json:"flags,omitempty"`

	// Degradation metadata. Degraded marks any invocation that lost a data
	// source or sub-model; Unscored marks a decision made without any
	// ensemble score at all.
	Degraded       bool     `json:"degraded,omitempty"`
	Unscored       bool     `json:"unscored,omitempty"`
	ExcludedModels []string `json:"excluded_models,omitempty"`
	MissingLookups []string `json:"missing_lookups,omitempty"`
	FallbackReason string   `json:"fallback_reason,omitempty"`
	ForcedBy       string   `json:"forced_by,omitempty"`

	ProcessingMs int64     `json:"processing_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

// Assessment flags surfaced to the dashboard.
const (
	FlagHighAmount       = "high_amount"
	FlagHighRiskScore    = "high_risk_score"
	FlagUnknownDevice    = "unknown_device"
	FlagInternational    = "international_transaction"
	FlagUnusualHour      = "unusual_hour"
	FlagVelocityExceeded = "velocity_exceeded"
)

// AnalyzeResponse is the ingress API response. Duplicate marks a
// resubmission that was answered from the persisted assessment.
type AnalyzeResponse struct {
	*FraudAssessment
	Duplicate bool `json:"duplicate,omitempty"`
}
