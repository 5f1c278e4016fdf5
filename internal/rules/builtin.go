package rules

import "github.com/securepay-ai/sentinel/internal/domain"

// BuiltinRules returns the default rule set seeded into the repository on
// first start, when the rules table is empty. Thresholds are literals in the
// expressions because rules are operator-editable data, not configuration;
// they match the default pipeline calibration.
func BuiltinRules() []*domain.Rule {
	return []*domain.Rule{
		{
			ID:             "amount-ceiling",
			Name:           "Amount above regulatory ceiling",
			Description:    "Transactions above the per-transaction ceiling are rejected outright, whatever the models say.",
			Expression:     "amount > 500000.0",
			Forces:         true,
			ForcedDecision: domain.DecisionReject,
			Enabled:        true,
		},
		{
			ID:             "sender-blacklisted",
			Name:           "Sender account blacklisted",
			Description:    "The sending account is on the confirmed-fraud blacklist.",
			Expression:     `features["sender_blacklisted"] == 1.0`,
			Forces:         true,
			ForcedDecision: domain.DecisionReject,
			Enabled:        true,
		},
		{
			ID:             "receiver-blacklisted",
			Name:           "Receiver account blacklisted",
			Description:    "The receiving account is on the confirmed-fraud blacklist.",
			Expression:     `features["receiver_blacklisted"] == 1.0`,
			Forces:         true,
			ForcedDecision: domain.DecisionReject,
			Enabled:        true,
		},
		{
			ID:          "velocity-burst",
			Name:        "Velocity burst in the last hour",
			Description: "Fifteen or more transactions from the sender inside one hour.",
			Expression:  `features["velocity_1h"] >= 15.0`,
			Enabled:     true,
		},
		{
			ID:          "high-amount-unknown-device",
			Name:        "High amount from unknown device",
			Description: "A high-value transfer from a device the account has never used.",
			Expression:  `amount > 100000.0 && features["is_known_device"] == 0.0`,
			Enabled:     true,
		},
		{
			ID:          "international-off-hours",
			Name:        "International transfer at an unusual hour",
			Description: "Cross-border transfer outside the account's typical activity hours.",
			Expression:  `features["is_international"] == 1.0 && features["is_typical_hour"] == 0.0`,
			Enabled:     true,
		},
		{
			ID:          "amount-spike",
			Name:        "Amount far above account average",
			Description: "Transaction amount is more than ten times the account's average.",
			Expression:  `features["amount_ratio_avg"] >= 10.0`,
			Enabled:     true,
		},
	}
}
