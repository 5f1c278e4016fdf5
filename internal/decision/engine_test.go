package decision

import (
	"strings"
	"testing"

	"github.com/securepay-ai/sentinel/internal/domain"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := domain.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	return NewEngine(cfg.Scoring)
}

func TestScoreBands(t *testing.T) {
	engine := newTestEngine(t)

	cases := []struct {
		score    float64
		level    domain.RiskLevel
		decision domain.Decision
	}{
		{0.0, domain.RiskLow, domain.DecisionApprove},
		{0.126, domain.RiskLow, domain.DecisionApprove},
		{0.299, domain.RiskLow, domain.DecisionApprove},
		{0.3, domain.RiskMedium, domain.DecisionApprove},
		{0.49, domain.RiskMedium, domain.DecisionApprove},
		{0.5, domain.RiskHigh, domain.DecisionReview},
		{0.79, domain.RiskHigh, domain.DecisionReview},
		{0.8, domain.RiskCritical, domain.DecisionReject},
		{0.9, domain.RiskCritical, domain.DecisionReject},
		{1.0, domain.RiskCritical, domain.DecisionReject},
	}

	for _, tc := range cases {
		out := engine.Decide(tc.score, &domain.RuleOutcome{})
		if out.RiskLevel != tc.level {
			t.Errorf("score %.3f: expected %s, got %s", tc.score, tc.level, out.RiskLevel)
		}
		if out.Decision != tc.decision {
			t.Errorf("score %.3f: expected %s, got %s", tc.score, tc.decision, out.Decision)
		}
		if out.Unscored {
			t.Errorf("score %.3f: banded path must not be unscored", tc.score)
		}
	}
}

func TestScoreClamped(t *testing.T) {
	engine := newTestEngine(t)

	if out := engine.Decide(1.7, nil); out.Score != 1.0 || out.RiskLevel != domain.RiskCritical {
		t.Errorf("expected clamp to 1.0 CRITICAL, got %.2f %s", out.Score, out.RiskLevel)
	}
	if out := engine.Decide(-0.2, nil); out.Score != 0.0 || out.RiskLevel != domain.RiskLow {
		t.Errorf("expected clamp to 0.0 LOW, got %.2f %s", out.Score, out.RiskLevel)
	}
}

func TestForcedOverride(t *testing.T) {
	engine := newTestEngine(t)

	forced := &domain.RuleOutcome{
		FiredRules:     []string{"amount-ceiling"},
		ForcesDecision: true,
		ForcedDecision: domain.DecisionReject,
		ForcedBy:       "amount-ceiling",
		ForcedReason:   "Amount above regulatory ceiling",
	}

	// A tiny score cannot soften a forced rejection.
	out := engine.Decide(0.05, forced)
	if out.Decision != domain.DecisionReject {
		t.Errorf("expected forced REJECT, got %s", out.Decision)
	}
	if out.RiskLevel != domain.RiskCritical {
		t.Errorf("forced rejection must be CRITICAL, got %s", out.RiskLevel)
	}
	if !strings.Contains(out.Reason, "amount-ceiling") {
		t.Errorf("reason must name the forcing rule, got %q", out.Reason)
	}

	// A forced review keeps the score's own band when it is more severe.
	review := &domain.RuleOutcome{
		FiredRules:     []string{"manual-watch"},
		ForcesDecision: true,
		ForcedDecision: domain.DecisionReview,
		ForcedBy:       "manual-watch",
		ForcedReason:   "Watchlisted account",
	}
	out = engine.Decide(0.9, review)
	if out.Decision != domain.DecisionReview {
		t.Errorf("expected forced REVIEW, got %s", out.Decision)
	}
	if out.RiskLevel != domain.RiskCritical {
		t.Errorf("expected score band CRITICAL to survive, got %s", out.RiskLevel)
	}

	out = engine.Decide(0.1, review)
	if out.RiskLevel != domain.RiskHigh {
		t.Errorf("expected forced review floor HIGH, got %s", out.RiskLevel)
	}
}

func TestMonotonicity(t *testing.T) {
	engine := newTestEngine(t)

	prev := 0
	for i := 0; i <= 100; i++ {
		score := float64(i) / 100
		out := engine.Decide(score, &domain.RuleOutcome{})
		sev := out.Decision.Severity()
		if sev < prev {
			t.Fatalf("decision severity regressed at score %.2f", score)
		}
		prev = sev
	}
}

func TestRuleOnlyFallback(t *testing.T) {
	engine := newTestEngine(t)

	// No firings: approve, but never silently.
	out := engine.DecideRuleOnly(&domain.RuleOutcome{})
	if out.Decision != domain.DecisionApprove || out.RiskLevel != domain.RiskLow {
		t.Errorf("expected unscored APPROVE LOW, got %s %s", out.Decision, out.RiskLevel)
	}
	if !out.Unscored || out.FallbackReason != domain.FallbackRuleOnly {
		t.Errorf("expected unscored rule-only marks, got %+v", out)
	}

	// Non-forcing firings escalate.
	out = engine.DecideRuleOnly(&domain.RuleOutcome{FiredRules: []string{"velocity-burst"}})
	if out.Decision != domain.DecisionReview || out.RiskLevel != domain.RiskHigh {
		t.Errorf("expected unscored REVIEW HIGH, got %s %s", out.Decision, out.RiskLevel)
	}
	if !strings.Contains(out.Reason, "velocity-burst") {
		t.Errorf("reason must list the fired rules, got %q", out.Reason)
	}

	// Forcing rules win with no score at all.
	out = engine.DecideRuleOnly(&domain.RuleOutcome{
		FiredRules:     []string{"sender-blacklisted"},
		ForcesDecision: true,
		ForcedDecision: domain.DecisionReject,
		ForcedBy:       "sender-blacklisted",
		ForcedReason:   "Sender account blacklisted",
	})
	if out.Decision != domain.DecisionReject || out.RiskLevel != domain.RiskCritical {
		t.Errorf("expected forced REJECT CRITICAL, got %s %s", out.Decision, out.RiskLevel)
	}
	if !out.Unscored || out.FallbackReason != domain.FallbackRuleOnly {
		t.Errorf("expected unscored rule-only marks, got %+v", out)
	}
}

func TestDeadlineFallback(t *testing.T) {
	engine := newTestEngine(t)

	out := engine.DecideDeadline(nil)
	if out.Decision != domain.DecisionReview || out.RiskLevel != domain.RiskHigh {
		t.Errorf("expected fail-open REVIEW HIGH, got %s %s", out.Decision, out.RiskLevel)
	}
	if !out.Unscored || out.FallbackReason != domain.FallbackDeadline {
		t.Errorf("expected deadline fallback marks, got %+v", out)
	}

	out = engine.DecideDeadline(&domain.RuleOutcome{
		FiredRules:     []string{"amount-ceiling"},
		ForcesDecision: true,
		ForcedDecision: domain.DecisionReject,
		ForcedBy:       "amount-ceiling",
		ForcedReason:   "Amount above regulatory ceiling",
	})
	if out.Decision != domain.DecisionReject {
		t.Errorf("forced decision must survive the deadline, got %s", out.Decision)
	}
	if out.FallbackReason != domain.FallbackDeadline {
		t.Errorf("expected deadline fallback reason, got %q", out.FallbackReason)
	}
}
