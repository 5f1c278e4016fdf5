package domain

import (
	"fmt"
	"time"
)

// Rule is a deterministic hard rule evaluated against every transaction.
// Expression is a CEL predicate over the transaction fields and the feature
// vector; it must compile to a boolean. Rules are stored in the repository
// and hot-reloaded into the engine as an atomic swap.
//
// A forcing rule short-circuits decisioning: its match yields ForcedDecision
// regardless of any model score. Non-forcing rules only surface in the
// outcome for escalation and audit.
type Rule struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression"`

	Forces         bool     `json:"forces"`
	ForcedDecision Decision `json:"forced_decision,omitempty"`

	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// ValidateConfig checks the parts of a rule that do not require compiling
// the expression. The rules engine validates the expression itself.
func (r *Rule) ValidateConfig() error {
	if r.ID == "" {
		return fmt.Errorf("rule id is required")
	}
	if r.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if r.Expression == "" {
		return fmt.Errorf("rule expression is required")
	}
	if r.Forces {
		switch r.ForcedDecision {
		case DecisionReview, DecisionReject:
		default:
			return fmt.Errorf("forcing rule %s must force REVIEW or REJECT, got %q", r.ID, r.ForcedDecision)
		}
	}
	return nil
}

// RuleOutcome is the order-independent union of rule firings for one
// invocation. When multiple forcing rules fire, the most severe forced
// decision wins; ForcedBy names the rule that supplied it.
type RuleOutcome struct {
	FiredRules     []string `json:"fired_rules,omitempty"`
	ForcesDecision bool     `json:"forces_decision,omitempty"`
	ForcedDecision Decision `json:"forced_decision,omitempty"`
	ForcedBy       string   `json:"forced_by,omitempty"`
	ForcedReason   string   `json:"forced_reason,omitempty"`
}

// Fired reports whether any rule matched.
func (o *RuleOutcome) Fired() bool {
	return len(o.FiredRules) > 0
}
