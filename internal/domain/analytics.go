package domain

import (
	"fmt"
	"time"
)

// Period selects the window for analytics projections.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// ParsePeriod maps the query-string value to a Period, defaulting to day.
func ParsePeriod(s string) (Period, error) {
	switch s {
	case "", string(PeriodDay):
		return PeriodDay, nil
	case string(PeriodWeek):
		return PeriodWeek, nil
	case string(PeriodMonth):
		return PeriodMonth, nil
	default:
		return "", fmt.Errorf("unknown period %q", s)
	}
}

// Window returns the [from, to) time range the period covers, ending now.
func (p Period) Window(now time.Time) (time.Time, time.Time) {
	switch p {
	case PeriodWeek:
		return now.AddDate(0, 0, -7), now
	case PeriodMonth:
		return now.AddDate(0, -1, 0), now
	default:
		return now.AddDate(0, 0, -1), now
	}
}

// DashboardStats is a read-only projection over persisted assessments and
// alerts for a window. Projections are recomputed from storage and never
// written back into assessment records.
type DashboardStats struct {
	Period            Period  `json:"period"`
	TotalTransactions int64   `json:"total_transactions"`
	FraudDetected     int64   `json:"fraud_detected"`
	FraudPrevented    float64 `json:"fraud_prevented_amount"`
	ReviewCount       int64   `json:"review_count"`
	ApproveCount      int64   `json:"approve_count"`
	AvgScore          float64 `json:"avg_score"`
	DegradedCount     int64   `json:"degraded_count"`

	AlertsPending      int64 `json:"alerts_pending"`
	AlertsAcknowledged int64 `json:"alerts_acknowledged"`
	AlertsResolved     int64 `json:"alerts_resolved"`
	AlertsDismissed    int64 `json:"alerts_dismissed"`

	GeneratedAt time.Time `json:"generated_at"`
}

// RiskDistribution is the share of assessments per risk level in a window.
type RiskDistribution struct {
	Period      Period                `json:"period"`
	Total       int64                 `json:"total"`
	Counts      map[RiskLevel]int64   `json:"counts"`
	Percentages map[RiskLevel]float64 `json:"percentages"`
	GeneratedAt time.Time             `json:"generated_at"`
}

// TrendPoint is one day of the trend series.
type TrendPoint struct {
	Date         string  `json:"date"` // YYYY-MM-DD
	Transactions int64   `json:"transactions"`
	Frauds       int64   `json:"frauds"`
	AvgScore     float64 `json:"avg_score"`
}

// TrendData is the daily trend series for the last N days.
type TrendData struct {
	Days        int          `json:"days"`
	Points      []TrendPoint `json:"points"`
	GeneratedAt time.Time    `json:"generated_at"`
}
