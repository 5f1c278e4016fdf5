// Package pipeline orchestrates one fraud assessment per transaction:
// feature extraction, rules and ensemble scoring in parallel, decisioning,
// explanation, persistence, and alerting, all inside a hard latency budget.
//
// Concurrent submissions sharing a transaction id are coalesced so exactly
// one assessment is computed and persisted; resubmissions of an already
// assessed transaction are answered from storage.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/securepay-ai/sentinel/internal/alert"
	"github.com/securepay-ai/sentinel/internal/decision"
	"github.com/securepay-ai/sentinel/internal/domain"
	"github.com/securepay-ai/sentinel/internal/ensemble"
	"github.com/securepay-ai/sentinel/internal/explain"
	"github.com/securepay-ai/sentinel/internal/feature"
	"github.com/securepay-ai/sentinel/internal/metrics"
	"github.com/securepay-ai/sentinel/internal/repository"
	"github.com/securepay-ai/sentinel/internal/rules"
)

var tracer = otel.Tracer("sentinel-pipeline")

// persistTimeout bounds the trailing writes. They run on their own context:
// an invocation that spent its scoring budget still has to land in the
// audit trail.
const persistTimeout = 2 * time.Second

// velocityFlagMark is the hourly transaction count at which the
// velocity_exceeded flag is set.
const velocityFlagMark = 10.0

// Scorer is the ensemble surface the orchestrator consumes.
type Scorer interface {
	Score(ctx context.Context, vec *domain.FeatureVector) (*ensemble.Result, error)
}

// Orchestrator owns stage sequencing, the end-to-end budget, fallback
// policy, and idempotency for the analyze path.
type Orchestrator struct {
	cfg       *domain.Config
	repo      domain.Repository
	bus       domain.EventBus
	extractor *feature.Extractor
	rules     *rules.Engine
	scorer    Scorer
	decider   *decision.Engine
	explainer *explain.Explainer
	alerts    *alert.Manager

	inflight *inflightGroup
}

// NewOrchestrator wires the pipeline stages.
func NewOrchestrator(
	cfg *domain.Config,
	repo domain.Repository,
	bus domain.EventBus,
	extractor *feature.Extractor,
	ruleEngine *rules.Engine,
	scorer Scorer,
	decider *decision.Engine,
	explainer *explain.Explainer,
	alerts *alert.Manager,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		repo:      repo,
		bus:       bus,
		extractor: extractor,
		rules:     ruleEngine,
		scorer:    scorer,
		decider:   decider,
		explainer: explainer,
		alerts:    alerts,
		inflight:  newInflightGroup(),
	}
}

// Analyze runs one transaction through the full pipeline. It is the single
// entry point for both the HTTP API and stream ingestion, and is safe to
// call concurrently with duplicate submissions: exactly one assessment is
// computed and persisted per transaction id.
func (o *Orchestrator) Analyze(ctx context.Context, tx *domain.TransactionRequest) (*domain.AnalyzeResponse, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction request is required")
	}

	tx.Normalize()
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	if !o.cfg.Pipeline.AcceptsCurrency(tx.Currency) {
		return nil, fmt.Errorf("unsupported currency %q", tx.Currency)
	}

	resp, winner, err := o.inflight.do(ctx, tx.TransactionID, func() (*domain.AnalyzeResponse, error) {
		return o.assess(ctx, tx)
	})
	if err != nil {
		return nil, err
	}

	if !winner && !resp.Duplicate {
		// Coalesced caller: hand back the writer's assessment, marked as a
		// duplicate submission.
		shared := *resp
		shared.Duplicate = true
		resp = &shared
	}
	if resp.Duplicate {
		metrics.DuplicatesTotal.Inc()
	}
	return resp, nil
}

// assess is the writer path: it runs the stages and produces the assessment
// of record for one transaction id.
func (o *Orchestrator) assess(ctx context.Context, tx *domain.TransactionRequest) (*domain.AnalyzeResponse, error) {
	start := time.Now()

	// A transaction assessed in the past is answered from storage, not
	// recomputed.
	if prior, err := o.repo.GetAssessment(ctx, tx.TransactionID); err == nil {
		return &domain.AnalyzeResponse{FraudAssessment: prior, Duplicate: true}, nil
	}

	ctx, span := tracer.Start(ctx, "pipeline.assess",
		trace.WithAttributes(
			attribute.String("transaction.id", tx.TransactionID),
			attribute.Float64("transaction.amount", tx.Amount),
		),
	)
	defer span.End()

	o.publish(ctx, domain.TopicTransactionIngested, tx)

	ctx, cancel := context.WithTimeout(ctx, o.cfg.Pipeline.Budget())
	defer cancel()

	// 1. Features.
	fstart := time.Now()
	vec, err := o.extractor.Extract(ctx, tx)
	metrics.ObserveStage("features", fstart)
	if err != nil {
		// Without even a default vector there is nothing to score or
		// explain. Rules still run on the raw transaction fields.
		slog.Error("feature extraction failed",
			"transaction_id", tx.TransactionID,
			"error", err,
		)
		ruleOut := o.evalRules(ctx, tx, nil)
		out := o.decider.DecideRuleOnly(ruleOut)
		out.FallbackReason = domain.FallbackFeatureless
		a := o.assemble(tx, nil, ruleOut, nil, out, nil, start)
		a.Degraded = true
		a.MissingLookups = append(a.MissingLookups, "features")
		return o.finish(tx, a)
	}

	// 2. Rules and ensemble concurrently, over the same vector.
	var (
		wg       sync.WaitGroup
		ruleOut  *domain.RuleOutcome
		score    *ensemble.Result
		scoreErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		ruleOut = o.evalRules(ctx, tx, vec)
	}()
	go func() {
		defer wg.Done()
		sstart := time.Now()
		score, scoreErr = o.scorer.Score(ctx, vec)
		metrics.ObserveStage("ensemble", sstart)
	}()
	wg.Wait()

	// One retry when every sub-model failed and at least half the budget
	// remains.
	if scoreErr != nil && o.cfg.Pipeline.RetryEnsemble {
		if dl, ok := ctx.Deadline(); ok && time.Until(dl) >= o.cfg.Pipeline.Budget()/2 {
			slog.Warn("ensemble unavailable, retrying once",
				"transaction_id", tx.TransactionID,
			)
			sstart := time.Now()
			score, scoreErr = o.scorer.Score(ctx, vec)
			metrics.ObserveStage("ensemble_retry", sstart)
		}
	}

	// Budget exhausted: answer with the fail-open escalation rather than an
	// error. Whatever the rules produced before the cut still applies.
	if ctx.Err() != nil {
		out := o.decider.DecideDeadline(ruleOut)
		a := o.assemble(tx, vec, ruleOut, score, out, nil, start)
		span.SetAttributes(attribute.String("assessment.fallback", out.FallbackReason))
		return o.finish(tx, a)
	}

	// 3. Decision, then explanation for scored outcomes.
	var (
		out     decision.Outcome
		factors []domain.Factor
	)
	if scoreErr == nil {
		out = o.decider.Decide(score.Score, ruleOut)
		estart := time.Now()
		factors = o.explainer.Explain(vec, out.Score)
		metrics.ObserveStage("explain", estart)
	} else {
		out = o.decider.DecideRuleOnly(ruleOut)
	}

	a := o.assemble(tx, vec, ruleOut, score, out, factors, start)

	span.SetAttributes(
		attribute.String("assessment.decision", string(a.Decision)),
		attribute.String("assessment.risk_level", string(a.RiskLevel)),
		attribute.Float64("assessment.score", a.Score),
	)

	// 4. Persist, alert, publish.
	return o.finish(tx, a)
}

// evalRules runs the rule stage. Rule failures degrade to an empty outcome;
// they never abort the invocation.
func (o *Orchestrator) evalRules(ctx context.Context, tx *domain.TransactionRequest, vec *domain.FeatureVector) *domain.RuleOutcome {
	rstart := time.Now()
	out, err := o.rules.Evaluate(ctx, tx, vec)
	metrics.ObserveStage("rules", rstart)
	if err != nil {
		slog.Error("rule evaluation failed",
			"transaction_id", tx.TransactionID,
			"error", err,
		)
		return &domain.RuleOutcome{}
	}
	return out
}

// assemble merges stage outputs into the assessment record.
func (o *Orchestrator) assemble(tx *domain.TransactionRequest, vec *domain.FeatureVector, ruleOut *domain.RuleOutcome, score *ensemble.Result, out decision.Outcome, factors []domain.Factor, start time.Time) *domain.FraudAssessment {
	a := &domain.FraudAssessment{
		TransactionID:  tx.TransactionID,
		Score:          out.Score,
		RiskLevel:      out.RiskLevel,
		Decision:       out.Decision,
		Reason:         out.Reason,
		Factors:        factors,
		Unscored:       out.Unscored,
		FallbackReason: out.FallbackReason,
		ProcessingMs:   time.Since(start).Milliseconds(),
		CreatedAt:      time.Now().UTC(),
	}
	if ruleOut != nil {
		a.FiredRules = ruleOut.FiredRules
		if ruleOut.ForcesDecision {
			a.ForcedBy = ruleOut.ForcedBy
		}
	}
	if vec != nil {
		a.MissingLookups = vec.Missing
		a.Degraded = len(vec.Missing) > 0
	}
	if score != nil {
		a.Confidence = score.Confidence
		a.ModelVersion = score.Version
		a.SubScores = score.SubScores
		a.ExcludedModels = score.Excluded
		a.Degraded = a.Degraded || score.Degraded
	}
	a.Flags = o.flags(tx, vec, a)
	return a
}

// flags derives the dashboard flags from the request, the vector, and the
// assessed risk.
func (o *Orchestrator) flags(tx *domain.TransactionRequest, vec *domain.FeatureVector, a *domain.FraudAssessment) []string {
	var flags []string
	if tx.Amount >= o.cfg.Pipeline.HighAmountMark {
		flags = append(flags, domain.FlagHighAmount)
	}
	if a.RiskLevel == domain.RiskHigh || a.RiskLevel == domain.RiskCritical {
		flags = append(flags, domain.FlagHighRiskScore)
	}
	if vec == nil {
		return flags
	}
	if vec.Values[domain.FeatureKnownDevice] == 0 {
		flags = append(flags, domain.FlagUnknownDevice)
	}
	if vec.Values[domain.FeatureInternational] == 1 {
		flags = append(flags, domain.FlagInternational)
	}
	if vec.Values[domain.FeatureTypicalHour] == 0 {
		flags = append(flags, domain.FlagUnusualHour)
	}
	if vec.Values[domain.FeatureVelocity1h] >= velocityFlagMark {
		flags = append(flags, domain.FlagVelocityExceeded)
	}
	return flags
}

// finish persists the assessment, raises the alert, publishes completion,
// and records metrics. It runs on its own context so a spent scoring budget
// cannot keep the assessment out of the audit trail.
func (o *Orchestrator) finish(tx *domain.TransactionRequest, a *domain.FraudAssessment) (*domain.AnalyzeResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	pstart := time.Now()
	if err := o.repo.SaveTransaction(ctx, tx); err != nil {
		slog.Error("failed to save transaction",
			"transaction_id", tx.TransactionID,
			"error", err,
		)
	}

	if err := o.repo.SaveAssessment(ctx, a); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// Lost the persistence race to another writer; its row is the
			// assessment of record.
			prior, gerr := o.repo.GetAssessment(ctx, tx.TransactionID)
			if gerr == nil {
				metrics.ObserveStage("persist", pstart)
				return &domain.AnalyzeResponse{FraudAssessment: prior, Duplicate: true}, nil
			}
			slog.Error("assessment read-back failed",
				"transaction_id", tx.TransactionID,
				"error", gerr,
			)
		} else {
			slog.Error("failed to save assessment",
				"transaction_id", tx.TransactionID,
				"error", err,
			)
		}
	}
	metrics.ObserveStage("persist", pstart)

	al, err := o.alerts.Raise(ctx, a)
	switch {
	case err != nil:
		slog.Error("failed to raise alert",
			"transaction_id", tx.TransactionID,
			"error", err,
		)
	case al != nil:
		metrics.AlertsTotal.WithLabelValues(string(al.RiskLevel)).Inc()
	}

	o.record(a)
	o.publish(ctx, domain.TopicAssessmentCompleted, a)

	slog.Info("transaction assessed",
		"transaction_id", tx.TransactionID,
		"decision", a.Decision,
		"risk_level", a.RiskLevel,
		"score", a.Score,
		"duration_ms", a.ProcessingMs,
	)

	return &domain.AnalyzeResponse{FraudAssessment: a}, nil
}

func (o *Orchestrator) record(a *domain.FraudAssessment) {
	metrics.AssessmentsTotal.WithLabelValues(string(a.Decision), string(a.RiskLevel)).Inc()
	metrics.PipelineDuration.Observe(float64(a.ProcessingMs) / 1000)
	if a.FallbackReason != "" {
		metrics.FallbacksTotal.WithLabelValues(a.FallbackReason).Inc()
	}
	for _, id := range a.FiredRules {
		metrics.RuleFiringsTotal.WithLabelValues(id).Inc()
	}
	for _, sub := range a.SubScores {
		if !sub.OK {
			metrics.ModelFailuresTotal.WithLabelValues(sub.ModelID, sub.FailureKind).Inc()
		}
	}
}

func (o *Orchestrator) publish(ctx context.Context, topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal event", "topic", topic, "error", err)
		return
	}
	if err := o.bus.Publish(ctx, topic, payload); err != nil {
		slog.Warn("failed to publish event", "topic", topic, "error", err)
	}
}
