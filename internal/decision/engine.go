// Package decision maps a fraud score and a rule outcome to the terminal
// decision. The mapping is pure: risk level and decision are functions of
// (score, rule outcome, configured policy) and nothing else, so the same
// inputs always produce the same answer.
package decision

import (
	"fmt"
	"strings"

	"github.com/securepay-ai/sentinel/internal/domain"
)

// Outcome is one decisioning result, merged into the assessment by the
// orchestrator.
type Outcome struct {
	Score          float64
	RiskLevel      domain.RiskLevel
	Decision       domain.Decision
	Reason         string
	Unscored       bool
	FallbackReason string
}

// Engine applies the configured banding and policy table. The config is
// validated for monotonicity at startup, which is what makes the banded path
// monotone: a higher score can never yield a less severe decision.
type Engine struct {
	scoring domain.ScoringConfig
}

// NewEngine wires the decision policy from the scoring config.
func NewEngine(cfg domain.ScoringConfig) *Engine {
	return &Engine{scoring: cfg}
}

// Decide maps a scored invocation to its decision. A forcing rule outcome
// overrides the banded path entirely; the risk level still reflects the
// score when the score's own band is more severe than the forced floor.
func (e *Engine) Decide(score float64, rules *domain.RuleOutcome) Outcome {
	score = clamp01(score)

	if rules != nil && rules.ForcesDecision {
		return e.forced(score, rules)
	}

	level := e.scoring.RiskLevelFor(score)
	return Outcome{
		Score:     score,
		RiskLevel: level,
		Decision:  e.scoring.Policy[level],
		Reason:    fmt.Sprintf("score %.3f maps to %s risk", score, level),
	}
}

// DecideRuleOnly is the fallback when every sub-model failed: firings
// escalate to REVIEW, otherwise the transaction is approved with an explicit
// unscored mark. It never silently matches a normally scored approval.
func (e *Engine) DecideRuleOnly(rules *domain.RuleOutcome) Outcome {
	if rules != nil && rules.ForcesDecision {
		out := e.forced(0, rules)
		out.Unscored = true
		out.FallbackReason = domain.FallbackRuleOnly
		return out
	}

	out := Outcome{
		RiskLevel:      domain.RiskLow,
		Decision:       domain.DecisionApprove,
		Reason:         "ensemble unavailable; no rules fired",
		Unscored:       true,
		FallbackReason: domain.FallbackRuleOnly,
	}
	if rules != nil && rules.Fired() {
		out.RiskLevel = domain.RiskHigh
		out.Decision = domain.DecisionReview
		out.Reason = fmt.Sprintf("ensemble unavailable; rules fired: %s", strings.Join(rules.FiredRules, ","))
	}
	return out
}

// DecideDeadline is the fail-open answer when the invocation budget elapses
// before scoring completes. Rules that already fired still apply; a forced
// decision survives the deadline.
func (e *Engine) DecideDeadline(rules *domain.RuleOutcome) Outcome {
	if rules != nil && rules.ForcesDecision {
		out := e.forced(0, rules)
		out.Unscored = true
		out.FallbackReason = domain.FallbackDeadline
		return out
	}

	return Outcome{
		RiskLevel:      domain.RiskHigh,
		Decision:       domain.DecisionReview,
		Reason:         "deadline exceeded; escalated for manual review",
		Unscored:       true,
		FallbackReason: domain.FallbackDeadline,
	}
}

func (e *Engine) forced(score float64, rules *domain.RuleOutcome) Outcome {
	level := forcedFloor(rules.ForcedDecision)
	if banded := e.scoring.RiskLevelFor(score); banded.Severity() > level.Severity() {
		level = banded
	}
	return Outcome{
		Score:     score,
		RiskLevel: level,
		Decision:  rules.ForcedDecision,
		Reason:    fmt.Sprintf("forced by rule %s (%s)", rules.ForcedBy, rules.ForcedReason),
	}
}

// forcedFloor is the minimum risk level a forced decision implies: a forced
// rejection is always CRITICAL, a forced review at least HIGH.
func forcedFloor(d domain.Decision) domain.RiskLevel {
	if d == domain.DecisionReject {
		return domain.RiskCritical
	}
	return domain.RiskHigh
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
