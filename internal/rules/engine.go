// Package rules compiles and evaluates the hard fraud rules that run
// alongside the scoring ensemble. Rules are CEL predicates over the
// transaction and its feature vector; a matching forcing rule overrides
// whatever the ensemble says.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/securepay-ai/sentinel/internal/domain"
)

// Engine holds the compiled rule set and evaluates it against transactions.
// The compiled map is replaced wholesale on reload, so in-flight evaluations
// always see a consistent snapshot.
type Engine struct {
	mu         sync.RWMutex
	env        *cel.Env
	compiled   map[string]*CompiledRule
	maxWorkers int
}

// CompiledRule pairs a rule with its pre-compiled CEL program.
type CompiledRule struct {
	Rule    *domain.Rule
	Program cel.Program
}

// NewEngine creates a rule engine with a bounded evaluation worker pool.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("currency", cel.StringType),
		cel.Variable("sender_id", cel.StringType),
		cel.Variable("receiver_id", cel.StringType),
		cel.Variable("tx_type", cel.StringType),
		cel.Variable("channel", cel.StringType),
		cel.Variable("device_id", cel.StringType),
		cel.Variable("hour", cel.IntType),
		cel.Variable("features", cel.MapType(cel.StringType, cel.DoubleType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:        env,
		compiled:   make(map[string]*CompiledRule),
		maxWorkers: maxWorkers,
	}, nil
}

// ValidateRule checks a rule's config and compiles its expression without
// mutating the loaded rule set. Used by the API before a rule is persisted.
func (e *Engine) ValidateRule(rule *domain.Rule) error {
	if rule == nil {
		return fmt.Errorf("rule is required")
	}
	if err := rule.ValidateConfig(); err != nil {
		return err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(rule)
	return err
}

// LoadRule compiles and loads a single rule into the engine.
func (e *Engine) LoadRule(rule *domain.Rule) error {
	if rule == nil {
		return fmt.Errorf("rule is required")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(rule)
	if err != nil {
		return err
	}

	e.compiled[rule.ID] = compiled
	return nil
}

// LoadRules compiles and loads the enabled rules from the given set.
func (e *Engine) LoadRules(rules []*domain.Rule) error {
	for _, rule := range rules {
		if rule.Enabled {
			if err := e.LoadRule(rule); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules atomically replaces the loaded rule set with the enabled rules
// from the given set. If any rule fails to compile, the current set stays
// active.
func (e *Engine) ReloadRules(rules []*domain.Rule) error {
	next := make(map[string]*CompiledRule)

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		compiled, err := e.compileRule(rule)
		if err != nil {
			return err
		}
		next[rule.ID] = compiled
	}

	e.compiled = next
	return nil
}

// Evaluate runs every loaded rule against the transaction and returns the
// union of firings. Rules run in parallel under the worker pool; a rule
// whose expression errors at runtime counts as a non-match. When several
// forcing rules fire, the most severe forced decision wins, ties going to
// the first rule ID in ascending order.
func (e *Engine) Evaluate(ctx context.Context, tx *domain.TransactionRequest, vec *domain.FeatureVector) (*domain.RuleOutcome, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction is required")
	}

	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiled))
	for _, rule := range e.compiled {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	outcome := &domain.RuleOutcome{}
	if len(rules) == 0 {
		return outcome, nil
	}

	features := map[string]float64{}
	if vec != nil && vec.Values != nil {
		features = vec.Values
	}

	activation := map[string]any{
		"amount":      tx.Amount,
		"currency":    tx.Currency,
		"sender_id":   tx.SenderAccount,
		"receiver_id": tx.ReceiverAccount,
		"tx_type":     string(tx.Type),
		"channel":     string(tx.Channel),
		"device_id":   tx.DeviceID,
		"hour":        tx.CreatedAt.Hour(),
		"features":    features,
	}

	start := time.Now()
	matched := make([]bool, len(rules))
	var wg sync.WaitGroup

	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				return
			}
			matched[idx] = e.evaluateRule(r, activation, tx.TransactionID)
		}(i, rule)
	}

	wg.Wait()

	fired := make([]*CompiledRule, 0, len(rules))
	for i, rule := range rules {
		if matched[i] {
			fired = append(fired, rule)
		}
	}
	sort.Slice(fired, func(i, j int) bool { return fired[i].Rule.ID < fired[j].Rule.ID })

	for _, f := range fired {
		outcome.FiredRules = append(outcome.FiredRules, f.Rule.ID)

		if !f.Rule.Forces {
			continue
		}
		if !outcome.ForcesDecision || f.Rule.ForcedDecision.Severity() > outcome.ForcedDecision.Severity() {
			outcome.ForcesDecision = true
			outcome.ForcedDecision = f.Rule.ForcedDecision
			outcome.ForcedBy = f.Rule.ID
			outcome.ForcedReason = f.Rule.Name
		}
	}

	if outcome.Fired() {
		slog.Debug("rules fired",
			"transaction_id", tx.TransactionID,
			"fired", outcome.FiredRules,
			"forced", outcome.ForcesDecision,
			"elapsed_ms", time.Since(start).Milliseconds())
	}

	return outcome, nil
}

// evaluateRule runs one compiled predicate. A runtime evaluation error is
// treated as a non-match so a single bad rule cannot block decisioning.
func (e *Engine) evaluateRule(rule *CompiledRule, activation map[string]any, txID string) bool {
	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		slog.Warn("rule evaluation failed, treating as non-match",
			"rule_id", rule.Rule.ID,
			"transaction_id", txID,
			"error", err)
		return false
	}

	b, ok := out.(types.Bool)
	if !ok {
		slog.Warn("rule returned non-boolean value, treating as non-match",
			"rule_id", rule.Rule.ID,
			"transaction_id", txID)
		return false
	}
	return bool(b)
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// GetLoadedRules returns the currently loaded rules in ID order.
func (e *Engine) GetLoadedRules() []*domain.Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.Rule, 0, len(e.compiled))
	for _, compiled := range e.compiled {
		rules = append(rules, compiled.Rule)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules
}

// Close drops the loaded rule set.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiled = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(rule *domain.Rule) (*CompiledRule, error) {
	ast, issues := e.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", rule.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", rule.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", rule.ID, err)
	}

	return &CompiledRule{
		Rule:    rule,
		Program: program,
	}, nil
}
