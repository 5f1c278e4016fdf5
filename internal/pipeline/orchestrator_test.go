package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/securepay-ai/sentinel/internal/alert"
	"github.com/securepay-ai/sentinel/internal/bus"
	"github.com/securepay-ai/sentinel/internal/cache"
	"github.com/securepay-ai/sentinel/internal/decision"
	"github.com/securepay-ai/sentinel/internal/domain"
	"github.com/securepay-ai/sentinel/internal/ensemble"
	"github.com/securepay-ai/sentinel/internal/explain"
	"github.com/securepay-ai/sentinel/internal/feature"
	"github.com/securepay-ai/sentinel/internal/repository"
	"github.com/securepay-ai/sentinel/internal/rules"
)

// stubScorer stands in for the ensemble so tests control scores, failures,
// and latency. It respects the per-invocation context the way the real
// scorer does: an expired budget yields the all-failed result.
type stubScorer struct {
	mu        sync.Mutex
	calls     int
	res       *ensemble.Result
	err       error
	failFirst bool
	delay     time.Duration
}

func (s *stubScorer) Score(ctx context.Context, vec *domain.FeatureVector) (*ensemble.Result, error) {
	s.mu.Lock()
	s.calls++
	n := s.calls
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return failedResult(), domain.ErrEnsembleUnavailable
		}
	}
	if s.failFirst && n == 1 {
		return failedResult(), domain.ErrEnsembleUnavailable
	}
	if s.err != nil {
		return failedResult(), s.err
	}
	out := *s.res
	return &out, nil
}

func (s *stubScorer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// healthyResult mirrors a full three-model response blending to 0.126.
func healthyResult() *ensemble.Result {
	return &ensemble.Result{
		Score:      0.126,
		Confidence: 0.96,
		Version:    "ensemble-v2.1",
		SubScores: []domain.SubScore{
			{ModelID: ensemble.ModelRandomForest, ModelVersion: "rf-v3.2", Probability: 0.10, LatencyMs: 1, OK: true},
			{ModelID: ensemble.ModelXGBoost, ModelVersion: "xgb-v1.8", Probability: 0.15, LatencyMs: 1, OK: true},
			{ModelID: ensemble.ModelNeuralNetwork, ModelVersion: "nn-v2.0", Probability: 0.12, LatencyMs: 1, OK: true},
		},
	}
}

// failedResult mirrors the scorer's every-model-failed audit result.
func failedResult() *ensemble.Result {
	return &ensemble.Result{
		Version:  "stub-v1",
		Degraded: true,
		Excluded: []string{ensemble.ModelRandomForest, ensemble.ModelXGBoost, ensemble.ModelNeuralNetwork},
		SubScores: []domain.SubScore{
			{ModelID: ensemble.ModelRandomForest, ModelVersion: "rf-v3.2", FailureKind: "timeout"},
			{ModelID: ensemble.ModelXGBoost, ModelVersion: "xgb-v1.8", FailureKind: "timeout"},
			{ModelID: ensemble.ModelNeuralNetwork, ModelVersion: "nn-v2.0", FailureKind: "timeout"},
		},
	}
}

type testPipeline struct {
	orch   *Orchestrator
	repo   domain.Repository
	bus    *bus.ChannelBus
	engine *rules.Engine
	stub   *stubScorer
	cfg    *domain.Config
}

func newTestPipeline(t *testing.T, mutate func(*domain.Config)) *testPipeline {
	t.Helper()

	cfg := domain.DefaultConfig()
	cfg.Repository.SQLitePath = filepath.Join(t.TempDir(), "sentinel.db")
	if mutate != nil {
		mutate(cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	c, err := cache.New(cfg.Cache)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	b := bus.NewChannelBus(100)

	engine, err := rules.NewEngine(cfg.Pipeline.RuleWorkers)
	if err != nil {
		t.Fatalf("failed to create rule engine: %v", err)
	}
	if err := engine.LoadRules(rules.BuiltinRules()); err != nil {
		t.Fatalf("failed to load builtin rules: %v", err)
	}

	stub := &stubScorer{res: healthyResult()}

	orch := NewOrchestrator(
		cfg,
		repo,
		b,
		feature.NewExtractor(repo, c, cfg),
		engine,
		stub,
		decision.NewEngine(cfg.Scoring),
		explain.NewExplainer(cfg.Scoring),
		alert.NewManager(repo, b),
	)

	t.Cleanup(func() {
		engine.Close()
		b.Close()
		c.Close()
		repo.Close()
	})

	return &testPipeline{orch: orch, repo: repo, bus: b, engine: engine, stub: stub, cfg: cfg}
}

func testTx(id string, amount float64) *domain.TransactionRequest {
	return &domain.TransactionRequest{
		TransactionID:   id,
		Amount:          amount,
		Currency:        "BDT",
		SenderAccount:   "acct-sender",
		ReceiverAccount: "acct-receiver",
		Type:            domain.TypeP2P,
		Channel:         domain.ChannelApp,
		DeviceID:        "dev-1",
		CreatedAt:       time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC),
	}
}

func TestAnalyzeApprovesLowRisk(t *testing.T) {
	p := newTestPipeline(t, nil)
	ctx := context.Background()

	resp, err := p.orch.Analyze(ctx, testTx("tx-low", 50000))
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}

	if resp.Duplicate {
		t.Error("first submission must not be marked duplicate")
	}
	if got := resp.Score; got < 0.126-1e-9 || got > 0.126+1e-9 {
		t.Errorf("Score = %f, want 0.126", got)
	}
	if resp.RiskLevel != domain.RiskLow {
		t.Errorf("RiskLevel = %s, want LOW", resp.RiskLevel)
	}
	if resp.Decision != domain.DecisionApprove {
		t.Errorf("Decision = %s, want APPROVE", resp.Decision)
	}
	if resp.Unscored || resp.Degraded {
		t.Errorf("healthy invocation flagged unscored=%v degraded=%v", resp.Unscored, resp.Degraded)
	}
	if len(resp.FiredRules) != 0 {
		t.Errorf("no rules should fire at 50000 BDT, got %v", resp.FiredRules)
	}
	if len(resp.Flags) != 0 {
		t.Errorf("expected no flags, got %v", resp.Flags)
	}
	if resp.ModelVersion != "ensemble-v2.1" {
		t.Errorf("ModelVersion = %q", resp.ModelVersion)
	}
	if len(resp.SubScores) != 3 {
		t.Errorf("expected 3 sub-scores, got %d", len(resp.SubScores))
	}
	if len(resp.Factors) == 0 || len(resp.Factors) > p.cfg.Scoring.TopFactors {
		t.Errorf("factors length %d outside (0,%d]", len(resp.Factors), p.cfg.Scoring.TopFactors)
	}

	stored, err := p.repo.GetAssessment(ctx, "tx-low")
	if err != nil {
		t.Fatalf("assessment not persisted: %v", err)
	}
	if stored.Decision != domain.DecisionApprove {
		t.Errorf("persisted decision = %s", stored.Decision)
	}

	if _, err := p.repo.GetAlertByTransaction(ctx, "tx-low"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("clean approval must not raise an alert, got err=%v", err)
	}
}

func TestForcedRejectAboveCeiling(t *testing.T) {
	p := newTestPipeline(t, nil)
	ctx := context.Background()

	resp, err := p.orch.Analyze(ctx, testTx("tx-ceiling", 600000))
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}

	if resp.Decision != domain.DecisionReject {
		t.Errorf("Decision = %s, want REJECT", resp.Decision)
	}
	if resp.RiskLevel != domain.RiskCritical {
		t.Errorf("RiskLevel = %s, want CRITICAL", resp.RiskLevel)
	}
	if resp.ForcedBy != "amount-ceiling" {
		t.Errorf("ForcedBy = %q, want amount-ceiling", resp.ForcedBy)
	}
	if !strings.Contains(resp.Reason, "amount-ceiling") {
		t.Errorf("Reason %q should name the forcing rule", resp.Reason)
	}
	// The model score is recorded alongside the forced decision.
	if resp.Score != 0.126 {
		t.Errorf("Score = %f, want the ensemble score 0.126", resp.Score)
	}
	if !reflect.DeepEqual(resp.FiredRules, []string{"amount-ceiling"}) {
		t.Errorf("FiredRules = %v", resp.FiredRules)
	}

	al, err := p.repo.GetAlertByTransaction(ctx, "tx-ceiling")
	if err != nil {
		t.Fatalf("forced reject must raise an alert: %v", err)
	}
	if al.RiskLevel != domain.RiskCritical {
		t.Errorf("alert risk = %s, want CRITICAL", al.RiskLevel)
	}
	if al.Status != domain.AlertPending {
		t.Errorf("alert status = %s, want PENDING", al.Status)
	}
}

func TestRuleOnlyFallbackApproves(t *testing.T) {
	p := newTestPipeline(t, func(cfg *domain.Config) {
		cfg.Pipeline.RetryEnsemble = false
	})
	p.stub.err = domain.ErrEnsembleUnavailable
	ctx := context.Background()

	resp, err := p.orch.Analyze(ctx, testTx("tx-unscored", 50000))
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}

	if resp.Decision != domain.DecisionApprove {
		t.Errorf("Decision = %s, want APPROVE", resp.Decision)
	}
	if resp.RiskLevel != domain.RiskLow {
		t.Errorf("RiskLevel = %s, want LOW", resp.RiskLevel)
	}
	if !resp.Unscored {
		t.Error("assessment must be marked unscored")
	}
	if resp.FallbackReason != domain.FallbackRuleOnly {
		t.Errorf("FallbackReason = %q, want %q", resp.FallbackReason, domain.FallbackRuleOnly)
	}
	if !resp.Degraded {
		t.Error("losing every sub-model must mark the assessment degraded")
	}
	if len(resp.ExcludedModels) != 3 {
		t.Errorf("ExcludedModels = %v, want all three", resp.ExcludedModels)
	}
	if got := p.stub.callCount(); got != 1 {
		t.Errorf("scorer called %d times with retry disabled, want 1", got)
	}

	if _, err := p.repo.GetAlertByTransaction(ctx, "tx-unscored"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("unscored approval without firings must not alert, got err=%v", err)
	}
}

func TestRuleOnlyFallbackEscalatesOnFirings(t *testing.T) {
	p := newTestPipeline(t, func(cfg *domain.Config) {
		cfg.Pipeline.RetryEnsemble = false
	})
	p.stub.err = domain.ErrEnsembleUnavailable
	ctx := context.Background()

	err := p.engine.LoadRule(&domain.Rule{
		ID:         "large-p2p",
		Name:       "Large P2P transfer",
		Expression: `amount > 100000.0 && tx_type == "p2p"`,
		Enabled:    true,
	})
	if err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}

	resp, err := p.orch.Analyze(ctx, testTx("tx-firing", 150000))
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}

	if resp.Decision != domain.DecisionReview {
		t.Errorf("Decision = %s, want REVIEW", resp.Decision)
	}
	if resp.RiskLevel != domain.RiskHigh {
		t.Errorf("RiskLevel = %s, want HIGH", resp.RiskLevel)
	}
	if !resp.Unscored {
		t.Error("assessment must be marked unscored")
	}
	if !reflect.DeepEqual(resp.FiredRules, []string{"large-p2p"}) {
		t.Errorf("FiredRules = %v", resp.FiredRules)
	}

	al, err := p.repo.GetAlertByTransaction(ctx, "tx-firing")
	if err != nil {
		t.Fatalf("escalated fallback must raise an alert: %v", err)
	}
	if al.RiskLevel != domain.RiskHigh {
		t.Errorf("alert risk = %s, want HIGH", al.RiskLevel)
	}
}

func TestCriticalRejectDegraded(t *testing.T) {
	p := newTestPipeline(t, nil)
	p.stub.res = &ensemble.Result{
		Score:      0.9,
		Confidence: 1.0,
		Version:    "ensemble-v2.1",
		Degraded:   true,
		Excluded:   []string{ensemble.ModelRandomForest, ensemble.ModelNeuralNetwork},
		SubScores: []domain.SubScore{
			{ModelID: ensemble.ModelRandomForest, ModelVersion: "rf-v3.2", FailureKind: "timeout"},
			{ModelID: ensemble.ModelXGBoost, ModelVersion: "xgb-v1.8", Probability: 0.9, OK: true},
			{ModelID: ensemble.ModelNeuralNetwork, ModelVersion: "nn-v2.0", FailureKind: "error"},
		},
	}
	ctx := context.Background()

	resp, err := p.orch.Analyze(ctx, testTx("tx-critical", 50000))
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}

	if resp.Decision != domain.DecisionReject {
		t.Errorf("Decision = %s, want REJECT", resp.Decision)
	}
	if resp.RiskLevel != domain.RiskCritical {
		t.Errorf("RiskLevel = %s, want CRITICAL", resp.RiskLevel)
	}
	if !resp.Degraded {
		t.Error("single-model invocation must be marked degraded")
	}
	if resp.Unscored {
		t.Error("a surviving model means the assessment is scored")
	}
	if len(resp.ExcludedModels) != 2 {
		t.Errorf("ExcludedModels = %v, want two entries", resp.ExcludedModels)
	}

	al, err := p.repo.GetAlertByTransaction(ctx, "tx-critical")
	if err != nil {
		t.Fatalf("critical reject must raise an alert: %v", err)
	}
	if al.RiskLevel != domain.RiskCritical {
		t.Errorf("alert risk = %s, want CRITICAL", al.RiskLevel)
	}
}

func TestEnsembleRetryRecovers(t *testing.T) {
	p := newTestPipeline(t, nil)
	p.stub.failFirst = true
	ctx := context.Background()

	resp, err := p.orch.Analyze(ctx, testTx("tx-retry", 50000))
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}

	if got := p.stub.callCount(); got != 2 {
		t.Fatalf("scorer called %d times, want 2 (initial + retry)", got)
	}
	if resp.Unscored {
		t.Error("successful retry must produce a scored assessment")
	}
	if resp.FallbackReason != "" {
		t.Errorf("FallbackReason = %q, want none", resp.FallbackReason)
	}
	if resp.Decision != domain.DecisionApprove {
		t.Errorf("Decision = %s, want APPROVE", resp.Decision)
	}
}

func TestDeadlineFailOpen(t *testing.T) {
	p := newTestPipeline(t, func(cfg *domain.Config) {
		cfg.Pipeline.BudgetMs = 30
		cfg.Scoring.ModelTimeoutMs = 10
	})
	p.stub.delay = 500 * time.Millisecond
	ctx := context.Background()

	begin := time.Now()
	resp, err := p.orch.Analyze(ctx, testTx("tx-deadline", 50000))
	if err != nil {
		t.Fatalf("deadline expiry must not surface as an error: %v", err)
	}
	if elapsed := time.Since(begin); elapsed > 2*time.Second {
		t.Errorf("deadline response took %v", elapsed)
	}

	if resp.Decision != domain.DecisionReview {
		t.Errorf("Decision = %s, want REVIEW", resp.Decision)
	}
	if resp.RiskLevel != domain.RiskHigh {
		t.Errorf("RiskLevel = %s, want HIGH", resp.RiskLevel)
	}
	if !resp.Unscored {
		t.Error("deadline assessment must be unscored")
	}
	if resp.FallbackReason != domain.FallbackDeadline {
		t.Errorf("FallbackReason = %q, want %q", resp.FallbackReason, domain.FallbackDeadline)
	}

	if _, err := p.repo.GetAlertByTransaction(ctx, "tx-deadline"); err != nil {
		t.Errorf("fail-open review must raise an alert: %v", err)
	}
}

func TestDeadlineForcedRuleSurvives(t *testing.T) {
	p := newTestPipeline(t, func(cfg *domain.Config) {
		cfg.Pipeline.BudgetMs = 30
		cfg.Scoring.ModelTimeoutMs = 10
	})
	p.stub.delay = 500 * time.Millisecond
	ctx := context.Background()

	resp, err := p.orch.Analyze(ctx, testTx("tx-deadline-forced", 600000))
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}

	if resp.Decision != domain.DecisionReject {
		t.Errorf("Decision = %s, want the forced REJECT", resp.Decision)
	}
	if resp.FallbackReason != domain.FallbackDeadline {
		t.Errorf("FallbackReason = %q, want %q", resp.FallbackReason, domain.FallbackDeadline)
	}
	if resp.ForcedBy != "amount-ceiling" {
		t.Errorf("ForcedBy = %q", resp.ForcedBy)
	}
}

func TestResubmissionAnsweredFromStorage(t *testing.T) {
	p := newTestPipeline(t, nil)
	ctx := context.Background()

	first, err := p.orch.Analyze(ctx, testTx("tx-dup", 50000))
	if err != nil {
		t.Fatalf("first Analyze returned error: %v", err)
	}
	if first.Duplicate {
		t.Fatal("first submission marked duplicate")
	}

	// Same id, different payload: the stored assessment wins.
	second, err := p.orch.Analyze(ctx, testTx("tx-dup", 99999))
	if err != nil {
		t.Fatalf("second Analyze returned error: %v", err)
	}

	if !second.Duplicate {
		t.Error("resubmission must be marked duplicate")
	}
	if second.Score != first.Score {
		t.Errorf("resubmission score = %f, want the stored %f", second.Score, first.Score)
	}
	if second.Decision != first.Decision {
		t.Errorf("resubmission decision = %s, want %s", second.Decision, first.Decision)
	}
	if got := p.stub.callCount(); got != 1 {
		t.Errorf("scorer called %d times, resubmission must not rescore", got)
	}

	_, total, err := p.repo.ListAssessments(ctx, domain.AssessmentFilter{})
	if err != nil {
		t.Fatalf("ListAssessments failed: %v", err)
	}
	if total != 1 {
		t.Errorf("persisted %d assessments, want 1", total)
	}
}

func TestConcurrentDuplicatesCoalesce(t *testing.T) {
	p := newTestPipeline(t, nil)
	p.stub.delay = 30 * time.Millisecond
	ctx := context.Background()

	const submitters = 25
	var (
		wg        sync.WaitGroup
		fresh     atomic.Int32
		responses [submitters]*domain.AnalyzeResponse
	)
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			resp, err := p.orch.Analyze(ctx, testTx("tx-burst", 600000))
			if err != nil {
				t.Errorf("submitter %d: %v", idx, err)
				return
			}
			responses[idx] = resp
			if !resp.Duplicate {
				fresh.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if got := p.stub.callCount(); got != 1 {
		t.Errorf("scorer invoked %d times for one transaction id, want 1", got)
	}
	if got := fresh.Load(); got != 1 {
		t.Errorf("%d responses claim to be the fresh assessment, want exactly 1", got)
	}
	for i, resp := range responses {
		if resp == nil {
			continue
		}
		if resp.Decision != domain.DecisionReject {
			t.Errorf("submitter %d decision = %s, want REJECT", i, resp.Decision)
		}
		if resp.Score != responses[0].Score {
			t.Errorf("submitter %d observed score %f, others %f", i, resp.Score, responses[0].Score)
		}
	}

	_, total, err := p.repo.ListAssessments(ctx, domain.AssessmentFilter{})
	if err != nil {
		t.Fatalf("ListAssessments failed: %v", err)
	}
	if total != 1 {
		t.Errorf("persisted %d assessments, want 1", total)
	}

	_, alerts, err := p.repo.ListAlerts(ctx, domain.AlertFilter{})
	if err != nil {
		t.Fatalf("ListAlerts failed: %v", err)
	}
	if alerts != 1 {
		t.Errorf("persisted %d alerts, want 1", alerts)
	}

	if p.orch.inflight.size() != 0 {
		t.Errorf("in-flight registry not drained: %d entries", p.orch.inflight.size())
	}
}

func TestIngressValidation(t *testing.T) {
	p := newTestPipeline(t, nil)
	ctx := context.Background()

	if _, err := p.orch.Analyze(ctx, nil); err == nil {
		t.Error("nil request must be rejected")
	}

	bad := testTx("tx-bad", -5)
	if _, err := p.orch.Analyze(ctx, bad); err == nil {
		t.Error("non-positive amount must be rejected")
	}

	usd := testTx("tx-usd", 1000)
	usd.Currency = "USD"
	_, err := p.orch.Analyze(ctx, usd)
	if err == nil || !strings.Contains(err.Error(), "unsupported currency") {
		t.Errorf("unsupported currency error = %v", err)
	}

	if _, err := p.repo.GetAssessment(ctx, "tx-bad"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("rejected submissions must not persist, got err=%v", err)
	}
}

func TestDashboardFlags(t *testing.T) {
	p := newTestPipeline(t, nil)
	p.stub.res = &ensemble.Result{
		Score:      0.55,
		Confidence: 0.9,
		Version:    "ensemble-v2.1",
		SubScores:  healthyResult().SubScores,
	}
	ctx := context.Background()

	tx := testTx("tx-flags", 150000)
	tx.Geo = &domain.Geo{Lat: 13.08, Lon: 80.27, City: "Chennai", Country: "IN"}

	resp, err := p.orch.Analyze(ctx, tx)
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}

	want := []string{domain.FlagHighAmount, domain.FlagHighRiskScore, domain.FlagInternational}
	if !reflect.DeepEqual(resp.Flags, want) {
		t.Errorf("Flags = %v, want %v", resp.Flags, want)
	}
	if resp.Decision != domain.DecisionReview {
		t.Errorf("Decision = %s, want REVIEW at score 0.55", resp.Decision)
	}
}

func TestPipelineEventsPublished(t *testing.T) {
	p := newTestPipeline(t, nil)
	ctx := context.Background()

	var ingested, completed, alerted atomic.Int32
	subscribe := func(topic string, counter *atomic.Int32) {
		t.Helper()
		_, err := p.bus.Subscribe(ctx, topic, func(ctx context.Context, msg *domain.Message) error {
			counter.Add(1)
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe %s: %v", topic, err)
		}
	}
	subscribe(domain.TopicTransactionIngested, &ingested)
	subscribe(domain.TopicAssessmentCompleted, &completed)
	subscribe(domain.TopicAlertCreated, &alerted)

	if _, err := p.orch.Analyze(ctx, testTx("tx-events", 600000)); err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}

	// Handlers run on the bus goroutine.
	time.Sleep(50 * time.Millisecond)

	if got := ingested.Load(); got != 1 {
		t.Errorf("transaction.ingested published %d times, want 1", got)
	}
	if got := completed.Load(); got != 1 {
		t.Errorf("assessment.completed published %d times, want 1", got)
	}
	if got := alerted.Load(); got != 1 {
		t.Errorf("alert.created published %d times, want 1", got)
	}
}
