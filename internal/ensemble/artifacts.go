package ensemble

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/securepay-ai/sentinel/internal/domain"
)

// Artifacts is the coefficient bundle the sub-models are built from. Bundles
// are fitted offline, shipped as JSON, and hot-swapped through the registry;
// the bundle version travels on every assessment as model provenance.
type Artifacts struct {
	Version       string       `json:"version"`
	RandomForest  ForestParams `json:"random_forest"`
	XGBoost       BoostParams  `json:"xgboost"`
	NeuralNetwork NetParams    `json:"neural_network"`
}

// ForestParams holds the stump votes of the forest model.
type ForestParams struct {
	Version string  `json:"version"`
	Stumps  []Stump `json:"stumps"`
}

// BoostParams holds the additive rounds of the booster.
type BoostParams struct {
	Version string  `json:"version"`
	Bias    float64 `json:"bias"`
	Rounds  []Stump `json:"rounds"`
}

// NetParams holds the network layers. Hidden units are sparse weight maps
// over feature names; HiddenBias and Output must match the hidden layer size.
type NetParams struct {
	Version    string               `json:"version"`
	Hidden     []map[string]float64 `json:"hidden"`
	HiddenBias []float64            `json:"hidden_bias"`
	Output     []float64            `json:"output"`
	OutputBias float64              `json:"output_bias"`
}

var featureSet = func() map[string]bool {
	set := make(map[string]bool, len(domain.FeatureNames))
	for _, name := range domain.FeatureNames {
		set[name] = true
	}
	return set
}()

func knownFeature(name string) bool {
	return featureSet[name]
}

// LoadArtifacts reads and validates a coefficient bundle from disk.
func LoadArtifacts(path string) (*Artifacts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model artifacts: %w", err)
	}

	var arts Artifacts
	if err := json.Unmarshal(data, &arts); err != nil {
		return nil, fmt.Errorf("failed to parse model artifacts: %w", err)
	}
	if err := arts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model artifacts %s: %w", path, err)
	}
	return &arts, nil
}

// Validate checks the bundle against the feature schema. Artifacts and code
// ship together, so a reference to a feature the schema does not carry is a
// deploy mistake, not a forward-compatibility case.
func (a *Artifacts) Validate() error {
	if a.Version == "" {
		return fmt.Errorf("bundle version is required")
	}
	if a.RandomForest.Version == "" || a.XGBoost.Version == "" || a.NeuralNetwork.Version == "" {
		return fmt.Errorf("every model needs a version")
	}

	if len(a.RandomForest.Stumps) == 0 {
		return fmt.Errorf("random forest needs at least one stump")
	}
	for i, s := range a.RandomForest.Stumps {
		if !knownFeature(s.Feature) {
			return fmt.Errorf("random forest stump %d: unknown feature %q", i, s.Feature)
		}
		if s.Low < 0 || s.Low > 1 || s.High < 0 || s.High > 1 {
			return fmt.Errorf("random forest stump %d: leaf values must be in [0,1]", i)
		}
	}

	if len(a.XGBoost.Rounds) == 0 {
		return fmt.Errorf("xgboost needs at least one round")
	}
	for i, r := range a.XGBoost.Rounds {
		if !knownFeature(r.Feature) {
			return fmt.Errorf("xgboost round %d: unknown feature %q", i, r.Feature)
		}
	}

	n := &a.NeuralNetwork
	if len(n.Hidden) == 0 {
		return fmt.Errorf("neural network needs at least one hidden unit")
	}
	if len(n.HiddenBias) != len(n.Hidden) || len(n.Output) != len(n.Hidden) {
		return fmt.Errorf("neural network layer sizes disagree: %d hidden, %d biases, %d output weights",
			len(n.Hidden), len(n.HiddenBias), len(n.Output))
	}
	for i, unit := range n.Hidden {
		for feature := range unit {
			if !knownFeature(feature) {
				return fmt.Errorf("neural network unit %d: unknown feature %q", i, feature)
			}
		}
	}
	return nil
}

// Build constructs the live sub-models from the bundle, in registry order.
func (a *Artifacts) Build() []SubModel {
	return []SubModel{
		&forestModel{
			version: a.RandomForest.Version,
			stumps:  a.RandomForest.Stumps,
		},
		&boostModel{
			version: a.XGBoost.Version,
			bias:    a.XGBoost.Bias,
			rounds:  a.XGBoost.Rounds,
		},
		&netModel{
			version:    a.NeuralNetwork.Version,
			hidden:     a.NeuralNetwork.Hidden,
			hiddenBias: a.NeuralNetwork.HiddenBias,
			output:     a.NeuralNetwork.Output,
			outputBias: a.NeuralNetwork.OutputBias,
		},
	}
}

// DefaultArtifacts returns the calibration baked into the binary, fitted
// offline on the historical transaction corpus. Deployments normally ship a
// fresher bundle and point scoring.model_artifacts at it.
func DefaultArtifacts() *Artifacts {
	return &Artifacts{
		Version: "ensemble-v2.1",
		RandomForest: ForestParams{
			Version: "rf-v3.2",
			Stumps: []Stump{
				{Feature: domain.FeatureAmountZScore, Threshold: 3, Low: 0.10, High: 0.90},
				{Feature: domain.FeatureAmountNormalized, Threshold: 0.5, Low: 0.10, High: 0.85},
				{Feature: domain.FeatureVelocity1h, Threshold: 10, Low: 0.10, High: 0.90},
				{Feature: domain.FeatureSenderBlacklisted, Threshold: 0.5, Low: 0.10, High: 0.95},
				{Feature: domain.FeatureReceiverBlacklist, Threshold: 0.5, Low: 0.10, High: 0.95},
				{Feature: domain.FeatureKnownDevice, Threshold: 0.5, Low: 0.80, High: 0.05},
				{Feature: domain.FeatureInternational, Threshold: 0.5, Low: 0.15, High: 0.70},
				{Feature: domain.FeatureHistoricalFraud, Threshold: 0.2, Low: 0.10, High: 0.85},
				{Feature: domain.FeatureAmountRatioAvg, Threshold: 5, Low: 0.15, High: 0.80},
				{Feature: domain.FeatureChannelRisk, Threshold: 0.45, Low: 0.20, High: 0.60},
			},
		},
		XGBoost: BoostParams{
			Version: "xgb-v1.8",
			Bias:    -2.2,
			Rounds: []Stump{
				{Feature: domain.FeatureAmountZScore, Threshold: 3, Low: -0.10, High: 1.20},
				{Feature: domain.FeatureVelocity1h, Threshold: 10, Low: -0.10, High: 1.10},
				{Feature: domain.FeatureSenderBlacklisted, Threshold: 0.5, Low: 0, High: 2.50},
				{Feature: domain.FeatureReceiverBlacklist, Threshold: 0.5, Low: 0, High: 2.50},
				{Feature: domain.FeatureKnownDevice, Threshold: 0.5, Low: 0.90, High: -0.20},
				{Feature: domain.FeatureAmountNormalized, Threshold: 0.5, Low: -0.10, High: 1.00},
				{Feature: domain.FeatureInternational, Threshold: 0.5, Low: -0.05, High: 0.80},
				{Feature: domain.FeatureHistoricalFraud, Threshold: 0.2, Low: 0, High: 1.00},
				{Feature: domain.FeatureFrequencyRatio, Threshold: 3, Low: -0.05, High: 0.70},
				{Feature: domain.FeatureAmountRatioAvg, Threshold: 5, Low: -0.10, High: 0.90},
			},
		},
		NeuralNetwork: NetParams{
			Version: "nn-v2.0",
			Hidden: []map[string]float64{
				{
					domain.FeatureAmountNormalized: 2.50,
					domain.FeatureAmountZScore:     0.25,
					domain.FeatureAmountRatioAvg:   0.05,
				},
				{
					domain.FeatureVelocity1h:     0.15,
					domain.FeatureVelocity24h:    0.02,
					domain.FeatureFrequencyRatio: 0.20,
				},
				{
					domain.FeatureKnownDevice:       -1.00,
					domain.FeatureSenderBlacklisted: 3.00,
					domain.FeatureReceiverBlacklist: 3.00,
					domain.FeatureHistoricalFraud:   2.00,
				},
				{
					domain.FeatureInternational:      1.50,
					domain.FeatureTypicalHour:        -0.50,
					domain.FeatureLocationConsistent: -0.50,
					domain.FeatureChannelRisk:        1.50,
					domain.FeatureTypeRisk:           1.00,
				},
			},
			HiddenBias: []float64{-1.0, -1.2, -0.5, -0.8},
			Output:     []float64{1.2, 1.2, 1.5, 0.8},
			OutputBias: -0.4,
		},
	}
}
