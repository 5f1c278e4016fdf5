// Package ensemble blends the fraud probabilities of several deterministic
// sub-models into one score. Models run concurrently under a per-model
// timeout and the configured weights are renormalized over whichever subset
// responded, so one slow or broken model degrades the score instead of
// losing the transaction.
package ensemble

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/securepay-ai/sentinel/internal/domain"
)

// Result is the outcome of one scoring-stage invocation. SubScores carries
// exactly one entry per registered model, responded or not.
type Result struct {
	Score      float64
	Confidence float64
	Version    string
	SubScores  []domain.SubScore
	Excluded   []string
	Degraded   bool
}

// Scorer fans a feature vector out to every registered sub-model and blends
// the responses.
type Scorer struct {
	registry *Registry
	weights  map[string]float64
	timeout  time.Duration
}

// NewScorer wires the registry to the scoring policy.
func NewScorer(registry *Registry, cfg domain.ScoringConfig) *Scorer {
	return &Scorer{
		registry: registry,
		weights:  cfg.Weights,
		timeout:  cfg.ModelTimeout(),
	}
}

// ModelInfo describes one live sub-model for the admin API.
type ModelInfo struct {
	ID      string  `json:"id"`
	Version string  `json:"version"`
	Weight  float64 `json:"weight"`
}

// Models lists the live sub-models with their nominal weights.
func (s *Scorer) Models() []ModelInfo {
	models := s.registry.Models()
	infos := make([]ModelInfo, 0, len(models))
	for _, m := range models {
		infos = append(infos, ModelInfo{
			ID:      m.ID(),
			Version: m.Version(),
			Weight:  s.weights[m.ID()],
		})
	}
	return infos
}

// Version returns the live bundle version.
func (s *Scorer) Version() string {
	return s.registry.Version()
}

type modelResult struct {
	score float64
	err   error
}

// Score blends the sub-model probabilities for one vector. A model that
// misses its timeout is excluded and its late result discarded; the
// remaining weights are renormalized so the blend stays a convex
// combination. When no model responds the error is
// domain.ErrEnsembleUnavailable and the result still carries the per-model
// outcomes for the audit trail.
func (s *Scorer) Score(ctx context.Context, vec *domain.FeatureVector) (*Result, error) {
	models := s.registry.Models()
	res := &Result{Version: s.registry.Version()}
	if len(models) == 0 {
		return res, domain.ErrEnsembleUnavailable
	}

	type launch struct {
		model  SubModel
		ch     chan modelResult
		ctx    context.Context
		cancel context.CancelFunc
		start  time.Time
	}

	// All timeouts start together, so collecting sequentially below still
	// bounds the stage at roughly one model timeout.
	launches := make([]launch, 0, len(models))
	for _, m := range models {
		mctx, cancel := context.WithTimeout(ctx, s.timeout)
		l := launch{model: m, ch: make(chan modelResult, 1), ctx: mctx, cancel: cancel, start: time.Now()}
		go func(m SubModel, ch chan modelResult, mctx context.Context) {
			score, err := m.Score(mctx, vec)
			ch <- modelResult{score: score, err: err}
		}(m, l.ch, mctx)
		launches = append(launches, l)
	}

	var (
		blended   float64
		weightSum float64
		okScores  []float64
	)

	for _, l := range launches {
		sub := domain.SubScore{ModelID: l.model.ID(), ModelVersion: l.model.Version()}

		select {
		case r := <-l.ch:
			sub.LatencyMs = time.Since(l.start).Milliseconds()
			if r.err != nil {
				sub.FailureKind = "error"
				slog.Warn("sub-model failed", "model", sub.ModelID, "error", r.err)
			} else {
				sub.OK = true
				sub.Probability = clamp01(r.score)
			}
		case <-l.ctx.Done():
			sub.LatencyMs = time.Since(l.start).Milliseconds()
			if l.ctx.Err() == context.DeadlineExceeded {
				sub.FailureKind = "timeout"
				slog.Warn("sub-model timed out", "model", sub.ModelID, "timeout", s.timeout)
			} else {
				sub.FailureKind = "error"
			}
		}
		l.cancel()

		if sub.OK {
			w := s.weights[sub.ModelID]
			blended += w * sub.Probability
			weightSum += w
			okScores = append(okScores, sub.Probability)
		} else {
			res.Excluded = append(res.Excluded, sub.ModelID)
			res.Degraded = true
		}
		res.SubScores = append(res.SubScores, sub)
	}

	if len(okScores) == 0 {
		return res, domain.ErrEnsembleUnavailable
	}

	if weightSum > 0 {
		res.Score = clamp01(blended / weightSum)
	} else {
		// None of the responders carries a configured weight; average them
		// evenly rather than inventing a zero score.
		sum := 0.0
		for _, v := range okScores {
			sum += v
		}
		res.Score = clamp01(sum / float64(len(okScores)))
	}

	res.Confidence = confidence(okScores)
	return res, nil
}

// confidence maps model disagreement to [0,1]: 1.0 when a single model
// responded or all responders agree, falling linearly with twice the
// standard deviation of the responding probabilities.
func confidence(scores []float64) float64 {
	if len(scores) <= 1 {
		return 1
	}

	mean := 0.0
	for _, s := range scores {
		mean += s
	}
	mean /= float64(len(scores))

	variance := 0.0
	for _, s := range scores {
		d := s - mean
		variance += d * d
	}
	variance /= float64(len(scores))

	spread := 2 * math.Sqrt(variance)
	if spread > 1 {
		spread = 1
	}
	return 1 - spread
}
