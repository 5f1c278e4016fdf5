// Package explain attributes a fraud score to the features that moved it
// away from the baseline. Attribution is proportional, not SHAP-exact: the
// deviation is split across features by their salience-weighted distance
// from neutral, which keeps the ranking deterministic and cheap enough for
// the scoring path.
package explain

import (
	"math"
	"sort"

	"github.com/securepay-ai/sentinel/internal/domain"
)

// attribution holds the per-feature reference point and salience weight.
// Neutral is the value a feature takes on an unremarkable transaction; the
// weight sign says which direction raises risk. Calibrated offline with the
// model bundle.
type attribution struct {
	neutral float64
	weight  float64
}

var attributions = map[string]attribution{
	domain.FeatureAmountNormalized:   {neutral: 0.1, weight: 1.0},
	domain.FeatureAmountZScore:       {neutral: 0, weight: 0.15},
	domain.FeatureAmountRatioAvg:     {neutral: 1, weight: 0.05},
	domain.FeatureVelocity1h:         {neutral: 0, weight: 0.08},
	domain.FeatureVelocity24h:        {neutral: 0, weight: 0.01},
	domain.FeatureFrequencyRatio:     {neutral: 1, weight: 0.10},
	domain.FeatureHourOfDay:          {neutral: 0.5, weight: 0.05},
	domain.FeatureTypicalHour:        {neutral: 1, weight: -0.40},
	domain.FeatureKnownDevice:        {neutral: 1, weight: -0.60},
	domain.FeatureDeviceSeenCount:    {neutral: 5, weight: -0.02},
	domain.FeatureKnownLocation:      {neutral: 1, weight: -0.30},
	domain.FeatureLocationConsistent: {neutral: 1, weight: -0.20},
	domain.FeatureInternational:      {neutral: 0, weight: 0.50},
	domain.FeatureFrequentReceiver:   {neutral: 0, weight: -0.15},
	domain.FeatureAccountAge:         {neutral: 1, weight: -0.30},
	domain.FeatureHistoricalFraud:    {neutral: 0, weight: 0.80},
	domain.FeatureSenderBlacklisted:  {neutral: 0, weight: 1.0},
	domain.FeatureReceiverBlacklist:  {neutral: 0, weight: 1.0},
	domain.FeatureChannelRisk:        {neutral: 0.1, weight: 0.40},
	domain.FeatureTypeRisk:           {neutral: 0.1, weight: 0.30},
}

// Explainer ranks the features behind a score.
type Explainer struct {
	baseline   float64
	topFactors int
}

// NewExplainer wires the attribution policy from the scoring config.
func NewExplainer(cfg domain.ScoringConfig) *Explainer {
	return &Explainer{
		baseline:   cfg.Baseline,
		topFactors: cfg.TopFactors,
	}
}

// Explain returns the top factors behind the score, ranked by absolute
// impact with ties broken by feature name ascending. A positive impact
// means the feature pushed the score up. The full attribution sums to
// roughly score minus baseline; the returned list is the bounded prefix.
// Identical inputs produce identical output.
func (e *Explainer) Explain(vec *domain.FeatureVector, score float64) []domain.Factor {
	if vec == nil {
		return nil
	}

	relevances := make([]domain.Factor, 0, len(domain.FeatureNames))
	totalAbs := 0.0
	for _, name := range domain.FeatureNames {
		attr, ok := attributions[name]
		if !ok || !vec.Has(name) {
			continue
		}
		rel := attr.weight * (vec.Get(name) - attr.neutral)
		if rel == 0 {
			continue
		}
		relevances = append(relevances, domain.Factor{Feature: name, Impact: rel})
		totalAbs += math.Abs(rel)
	}
	if totalAbs == 0 {
		return nil
	}

	// Scale by the absolute deviation so each impact keeps the sign of its
	// own push; the signed sum then lands near score-baseline on its own.
	scale := math.Abs(score-e.baseline) / totalAbs
	if scale == 0 {
		return nil
	}

	factors := make([]domain.Factor, 0, len(relevances))
	for _, r := range relevances {
		factors = append(factors, domain.Factor{Feature: r.Feature, Impact: r.Impact * scale})
	}

	sort.Slice(factors, func(i, j int) bool {
		ai, aj := math.Abs(factors[i].Impact), math.Abs(factors[j].Impact)
		if ai != aj {
			return ai > aj
		}
		return factors[i].Feature < factors[j].Feature
	})

	if len(factors) > e.topFactors {
		factors = factors[:e.topFactors]
	}
	return factors
}
