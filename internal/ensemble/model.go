package ensemble

import (
	"context"
	"fmt"
	"math"

	"github.com/securepay-ai/sentinel/internal/domain"
)

// Sub-model identifiers. These match the weight keys in the scoring config.
const (
	ModelRandomForest  = "random_forest"
	ModelXGBoost       = "xgboost"
	ModelNeuralNetwork = "neural_network"
)

// SubModel produces a fraud probability in [0,1] for one feature vector.
// Implementations must be safe for concurrent use; the scorer invokes every
// registered model in parallel on each transaction.
type SubModel interface {
	ID() string
	Version() string
	Score(ctx context.Context, vec *domain.FeatureVector) (float64, error)
}

// Stump is a single-feature threshold split. Low applies when the feature
// value is at or below the threshold, High when above.
type Stump struct {
	Feature   string  `json:"feature"`
	Threshold float64 `json:"threshold"`
	Low       float64 `json:"low"`
	High      float64 `json:"high"`
}

func (s Stump) eval(vec *domain.FeatureVector) float64 {
	if vec.Get(s.Feature) > s.Threshold {
		return s.High
	}
	return s.Low
}

// forestModel averages independent stump votes, each voting a probability.
type forestModel struct {
	version string
	stumps  []Stump
}

func (m *forestModel) ID() string      { return ModelRandomForest }
func (m *forestModel) Version() string { return m.version }

func (m *forestModel) Score(_ context.Context, vec *domain.FeatureVector) (float64, error) {
	if len(m.stumps) == 0 {
		return 0, fmt.Errorf("random forest has no trees")
	}
	sum := 0.0
	for _, s := range m.stumps {
		sum += s.eval(vec)
	}
	return clamp01(sum / float64(len(m.stumps))), nil
}

// boostModel is an additive stump booster: each round contributes log-odds
// on top of a bias, squashed through the logistic function.
type boostModel struct {
	version string
	bias    float64
	rounds  []Stump
}

func (m *boostModel) ID() string      { return ModelXGBoost }
func (m *boostModel) Version() string { return m.version }

func (m *boostModel) Score(_ context.Context, vec *domain.FeatureVector) (float64, error) {
	if len(m.rounds) == 0 {
		return 0, fmt.Errorf("booster has no rounds")
	}
	raw := m.bias
	for _, r := range m.rounds {
		raw += r.eval(vec)
	}
	return sigmoid(raw), nil
}

// netModel is a single-hidden-layer network with tanh activations and a
// logistic output. Hidden weights are sparse maps over feature names;
// features absent from a unit contribute nothing.
type netModel struct {
	version    string
	hidden     []map[string]float64
	hiddenBias []float64
	output     []float64
	outputBias float64
}

func (m *netModel) ID() string      { return ModelNeuralNetwork }
func (m *netModel) Version() string { return m.version }

func (m *netModel) Score(_ context.Context, vec *domain.FeatureVector) (float64, error) {
	if len(m.hidden) == 0 {
		return 0, fmt.Errorf("network has no hidden units")
	}
	raw := m.outputBias
	for i, unit := range m.hidden {
		z := m.hiddenBias[i]
		for feature, w := range unit {
			z += w * vec.Get(feature)
		}
		raw += m.output[i] * math.Tanh(z)
	}
	return sigmoid(raw), nil
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
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
