// Package alert raises review alerts for assessments that need analyst
// attention: any decision other than a clean approval, or any rule firing
// even under an approval.
package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/securepay-ai/sentinel/internal/domain"
	"github.com/securepay-ai/sentinel/internal/repository"
)

// Manager persists alerts and publishes their creation. At most one alert
// ever exists per transaction: the storage layer deduplicates on transaction
// id, and a replay gets the already-raised alert back instead of a copy.
type Manager struct {
	repo domain.Repository
	bus  domain.EventBus
}

// NewManager creates an alert manager.
func NewManager(repo domain.Repository, bus domain.EventBus) *Manager {
	return &Manager{repo: repo, bus: bus}
}

// Raise creates the alert for an assessment if it warrants one. Returns nil
// when the assessment is a clean approval. On a duplicate transaction the
// previously raised alert is returned and nothing is republished.
func (m *Manager) Raise(ctx context.Context, a *domain.FraudAssessment) (*domain.Alert, error) {
	if a == nil || !needsAlert(a) {
		return nil, nil
	}

	alert := &domain.Alert{
		ID:            uuid.New().String(),
		TransactionID: a.TransactionID,
		RiskLevel:     a.RiskLevel,
		Message:       buildMessage(a),
		Status:        domain.AlertPending,
		CreatedAt:     time.Now().UTC(),
	}

	if err := m.repo.SaveAlert(ctx, alert); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return m.repo.GetAlertByTransaction(ctx, a.TransactionID)
		}
		return nil, fmt.Errorf("failed to save alert: %w", err)
	}

	m.publish(ctx, alert)
	return alert, nil
}

// needsAlert implements the raise condition: decision is not APPROVE, or
// any rule fired (rules always surface for audit visibility).
func needsAlert(a *domain.FraudAssessment) bool {
	return a.Decision != domain.DecisionApprove || len(a.FiredRules) > 0
}

func buildMessage(a *domain.FraudAssessment) string {
	verb := "flagged"
	switch a.Decision {
	case domain.DecisionApprove:
		verb = "approved with findings"
	case domain.DecisionReview:
		verb = "flagged for review"
	case domain.DecisionReject:
		verb = "rejected"
	}

	msg := fmt.Sprintf("Transaction %s %s: %s", a.TransactionID, verb, a.Reason)
	if len(a.FiredRules) > 0 {
		msg += fmt.Sprintf(" [rules: %s]", strings.Join(a.FiredRules, ", "))
	}
	return msg
}

// publish is best-effort: the persisted alert is the source of truth, and a
// bus outage must not fail the transaction decision.
func (m *Manager) publish(ctx context.Context, alert *domain.Alert) {
	if m.bus == nil {
		return
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		slog.Error("failed to marshal alert event", "alert_id", alert.ID, "error", err)
		return
	}
	if err := m.bus.Publish(ctx, domain.TopicAlertCreated, payload); err != nil {
		slog.Warn("failed to publish alert event",
			"alert_id", alert.ID,
			"transaction_id", alert.TransactionID,
			"error", err)
	}
}
