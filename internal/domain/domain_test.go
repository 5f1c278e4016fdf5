package domain

import (
	"testing"
	"time"
)

func validRequest() *TransactionRequest {
	return &TransactionRequest{
		TransactionID:   "tx-001",
		Amount:          1500,
		Currency:        "BDT",
		SenderAccount:   "acct-sender",
		ReceiverAccount: "acct-receiver",
		Type:            TypeP2P,
		Channel:         ChannelApp,
		CreatedAt:       time.Now().UTC(),
	}
}

func TestTransactionRequestValidate(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		if err := validRequest().Validate(); err != nil {
			t.Fatalf("expected valid request, got %v", err)
		}
	})

	t.Run("MissingID", func(t *testing.T) {
		req := validRequest()
		req.TransactionID = ""
		if err := req.Validate(); err == nil {
			t.Error("expected error for missing transaction_id")
		}
	})

	t.Run("NonPositiveAmount", func(t *testing.T) {
		for _, amount := range []float64{0, -10} {
			req := validRequest()
			req.Amount = amount
			if err := req.Validate(); err == nil {
				t.Errorf("expected error for amount %f", amount)
			}
		}
	})

	t.Run("OverCeilingIsStillValid", func(t *testing.T) {
		// Ceiling enforcement belongs to the rule engine (forced REJECT),
		// not ingress validation.
		req := validRequest()
		req.Amount = 600000
		if err := req.Validate(); err != nil {
			t.Errorf("over-ceiling amount must pass validation, got %v", err)
		}
	})

	t.Run("BadCurrency", func(t *testing.T) {
		req := validRequest()
		req.Currency = "TAKA"
		if err := req.Validate(); err == nil {
			t.Error("expected error for 4-letter currency")
		}
	})

	t.Run("UnknownType", func(t *testing.T) {
		req := validRequest()
		req.Type = "wire"
		if err := req.Validate(); err == nil {
			t.Error("expected error for unknown type")
		}
	})

	t.Run("SelfTransfer", func(t *testing.T) {
		req := validRequest()
		req.ReceiverAccount = req.SenderAccount
		if err := req.Validate(); err == nil {
			t.Error("expected error for p2p self-transfer")
		}

		req.Type = TypeCashIn
		if err := req.Validate(); err != nil {
			t.Errorf("cash_in self-transfer should be allowed, got %v", err)
		}
	})

	t.Run("NormalizeDefaults", func(t *testing.T) {
		req := validRequest()
		req.Channel = ""
		req.CreatedAt = time.Time{}
		req.Normalize()
		if req.Channel != ChannelApp {
			t.Errorf("expected default channel app, got %s", req.Channel)
		}
		if req.CreatedAt.IsZero() {
			t.Error("expected CreatedAt to be set")
		}
	})
}

func TestSeverityOrdering(t *testing.T) {
	if !(RiskLow.Severity() < RiskMedium.Severity() &&
		RiskMedium.Severity() < RiskHigh.Severity() &&
		RiskHigh.Severity() < RiskCritical.Severity()) {
		t.Error("risk levels must be strictly ordered")
	}
	if !(DecisionApprove.Severity() < DecisionReview.Severity() &&
		DecisionReview.Severity() < DecisionReject.Severity()) {
		t.Error("decisions must be strictly ordered")
	}
}

func TestAlertTransitions(t *testing.T) {
	t.Run("PendingToAcknowledged", func(t *testing.T) {
		a := &Alert{Status: AlertPending}
		if err := a.Transition(AlertAcknowledged, "analyst-1", ""); err != nil {
			t.Fatalf("Transition failed: %v", err)
		}
		if a.ReviewedBy != "analyst-1" {
			t.Errorf("expected reviewer to be recorded, got %q", a.ReviewedBy)
		}
		if a.ResolvedAt != nil {
			t.Error("acknowledge must not set resolution timestamp")
		}
	})

	t.Run("ResolveSetsTimestamp", func(t *testing.T) {
		a := &Alert{Status: AlertAcknowledged}
		if err := a.Transition(AlertResolved, "analyst-2", "confirmed fraud"); err != nil {
			t.Fatalf("Transition failed: %v", err)
		}
		if a.ResolvedAt == nil {
			t.Error("resolve must set resolution timestamp")
		}
		if a.Notes != "confirmed fraud" {
			t.Errorf("expected notes to be recorded, got %q", a.Notes)
		}
	})

	t.Run("TerminalStatesAreFinal", func(t *testing.T) {
		for _, status := range []AlertStatus{AlertResolved, AlertDismissed} {
			a := &Alert{Status: status}
			if err := a.Transition(AlertAcknowledged, "analyst-3", ""); err == nil {
				t.Errorf("expected error transitioning out of %s", status)
			}
		}
	})
}

func TestScoringConfigValidate(t *testing.T) {
	base := DefaultConfig().Scoring

	t.Run("DefaultsValid", func(t *testing.T) {
		if err := base.Validate(); err != nil {
			t.Fatalf("default scoring config must validate: %v", err)
		}
	})

	t.Run("BandsMustAscend", func(t *testing.T) {
		cfg := base
		cfg.HighThreshold = 0.2 // below medium
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for non-ascending bands")
		}
	})

	t.Run("PolicyMustBeMonotonic", func(t *testing.T) {
		cfg := base
		cfg.Policy = map[RiskLevel]Decision{
			RiskLow:      DecisionReview,
			RiskMedium:   DecisionApprove, // less severe than LOW's decision
			RiskHigh:     DecisionReview,
			RiskCritical: DecisionReject,
		}
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for non-monotonic policy")
		}
	})

	t.Run("PolicyMustCoverAllLevels", func(t *testing.T) {
		cfg := base
		cfg.Policy = map[RiskLevel]Decision{
			RiskLow: DecisionApprove,
		}
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for incomplete policy")
		}
	})

	t.Run("WeightsMustSumToOne", func(t *testing.T) {
		cfg := base
		cfg.Weights = map[string]float64{"a": 0.5, "b": 0.3}
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for weights summing to 0.8")
		}
	})

	t.Run("RiskLevelBands", func(t *testing.T) {
		cases := []struct {
			score float64
			want  RiskLevel
		}{
			{0.0, RiskLow},
			{0.29, RiskLow},
			{0.3, RiskMedium},
			{0.49, RiskMedium},
			{0.5, RiskHigh},
			{0.79, RiskHigh},
			{0.8, RiskCritical},
			{1.0, RiskCritical},
		}
		for _, tc := range cases {
			if got := base.RiskLevelFor(tc.score); got != tc.want {
				t.Errorf("RiskLevelFor(%.2f) = %s, want %s", tc.score, got, tc.want)
			}
		}
	})
}

func TestPeriod(t *testing.T) {
	if _, err := ParsePeriod("year"); err == nil {
		t.Error("expected error for unknown period")
	}

	p, err := ParsePeriod("")
	if err != nil || p != PeriodDay {
		t.Errorf("empty period should default to day, got %s err %v", p, err)
	}

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	from, to := PeriodWeek.Window(now)
	if !to.Equal(now) {
		t.Errorf("window must end now, got %v", to)
	}
	if got := to.Sub(from); got != 7*24*time.Hour {
		t.Errorf("week window = %v, want 168h", got)
	}
}
