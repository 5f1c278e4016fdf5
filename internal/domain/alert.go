package domain

import (
	"fmt"
	"time"
)

// AlertStatus is the review-workflow state of an alert. The pipeline only
// ever creates PENDING alerts; every later transition comes from the
// external review workflow and is never read back into scoring.
type AlertStatus string

const (
	AlertPending      AlertStatus = "PENDING"
	AlertAcknowledged AlertStatus = "ACKNOWLEDGED"
	AlertResolved     AlertStatus = "RESOLVED"
	AlertDismissed    AlertStatus = "DISMISSED"
)

// CanTransitionTo reports whether the review workflow may move an alert
// from s to next. RESOLVED and DISMISSED are terminal.
func (s AlertStatus) CanTransitionTo(next AlertStatus) bool {
	switch s {
	case AlertPending:
		return next == AlertAcknowledged || next == AlertResolved || next == AlertDismissed
	case AlertAcknowledged:
		return next == AlertResolved || next == AlertDismissed
	default:
		return false
	}
}

// Alert is raised once per transaction whose decision was not a clean
// APPROVE, or where any rule fired. Deduplicated on TransactionID.
type Alert struct {
	ID            string      `json:"id"`
	TransactionID string      `json:"transaction_id"`
	RiskLevel     RiskLevel   `json:"risk_level"`
	Message       string      `json:"message"`
	Status        AlertStatus `json:"status"`

	CreatedAt  time.Time  `json:"created_at"`
	ReviewedBy string     `json:"reviewed_by,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	Notes      string     `json:"notes,omitempty"`
}

// Transition applies a review-workflow status change, enforcing the legal
// transitions above. Resolution timestamps are set on entry to a terminal
// state.
func (a *Alert) Transition(next AlertStatus, reviewer string, notes string) error {
	if !a.Status.CanTransitionTo(next) {
		return fmt.Errorf("illegal alert transition %s -> %s", a.Status, next)
	}
	a.Status = next
	a.ReviewedBy = reviewer
	if notes != "" {
		a.Notes = notes
	}
	if next == AlertResolved || next == AlertDismissed {
		now := time.Now().UTC()
		a.ResolvedAt = &now
	}
	return nil
}
