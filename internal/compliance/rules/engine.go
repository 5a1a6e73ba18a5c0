package rules

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Aidin1998/pincex_aml/internal/compliance"
	"github.com/Aidin1998/pincex_aml/pkg/metrics"
	"github.com/Aidin1998/pincex_aml/pkg/models"
	"go.uber.org/zap"
)

// Failure records a rule that could not run to completion
type Failure struct {
	RuleID string `json:"rule_id"`
	Err    error  `json:"-"`
}

// Kind reports whether the failure was a history outage or a generic rule error
func (f Failure) Kind() string {
	if errors.Is(f.Err, compliance.ErrHistoryUnavailable) {
		return "history_unavailable"
	}
	return "rule_error"
}

// Evaluation is the engine output for one transaction. Triggered keeps
// registration order. Unavailable lists rules that could not check, which is
// distinct from rules that checked clean.
type Evaluation struct {
	Triggered   []Result  `json:"triggered"`
	Unavailable []Failure `json:"unavailable,omitempty"`
}

// TotalRisk is CalculateTotalRisk over the triggered results
func (e Evaluation) TotalRisk() float64 {
	return CalculateTotalRisk(e.Triggered)
}

// Reasons returns the reason text of every triggered rule in order
func (e Evaluation) Reasons() []string {
	reasons := make([]string, 0, len(e.Triggered))
	for _, r := range e.Triggered {
		if r.Reason != "" {
			reasons = append(reasons, r.Reason)
		}
	}
	return reasons
}

// Engine runs registered rules against transactions
type Engine struct {
	mu     sync.RWMutex
	logger *zap.Logger
	rules  []Rule
}

// NewEngine creates an engine with the given rules registered in order
func NewEngine(logger *zap.Logger, rules ...Rule) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{logger: logger}
	for _, r := range rules {
		e.Register(r)
	}
	return e
}

// Register appends a rule. Rules run in registration order.
func (e *Engine) Register(rule Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, rule)
	e.logger.Debug("Rule registered", zap.String("rule_id", rule.ID()))
}

// Rules returns the registered rule ids in order
func (e *Engine) Rules() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, len(e.rules))
	for i, r := range e.rules {
		ids[i] = r.ID()
	}
	return ids
}

// Evaluate runs every rule and collects triggered results (score > 0).
// A failing or panicking rule never aborts the evaluation.
func (e *Engine) Evaluate(ctx context.Context, txn *models.Transaction, ectx EvalContext) Evaluation {
	e.mu.RLock()
	rules := make([]Rule, len(e.rules))
	copy(rules, e.rules)
	e.mu.RUnlock()

	var eval Evaluation
	for _, rule := range rules {
		start := time.Now()
		result, err := e.runIsolated(ctx, rule, txn, ectx)
		if err != nil {
			failure := Failure{RuleID: rule.ID(), Err: err}
			eval.Unavailable = append(eval.Unavailable, failure)
			metrics.RuleFailures.WithLabelValues(rule.ID(), failure.Kind()).Inc()
			e.logger.Warn("Rule could not be evaluated, treating as not triggered",
				zap.String("rule_id", rule.ID()),
				zap.String("transaction_id", txn.ID.String()),
				zap.String("failure_kind", failure.Kind()),
				zap.Error(err))
			continue
		}

		if result.Triggered && result.Score > 0 {
			eval.Triggered = append(eval.Triggered, result)
			metrics.RuleTriggers.WithLabelValues(rule.ID()).Inc()
			e.logger.Info("Rule triggered",
				zap.String("rule_id", rule.ID()),
				zap.String("transaction_id", txn.ID.String()),
				zap.Float64("score", result.Score),
				zap.Duration("duration", time.Since(start)))
		}
	}

	return eval
}

func (e *Engine) runIsolated(ctx context.Context, rule Rule, txn *models.Transaction, ectx EvalContext) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{}
			err = fmt.Errorf("%w: rule %s panicked: %v", compliance.ErrRuleEvaluation, rule.ID(), r)
		}
	}()

	result, err = rule.Check(ctx, txn, ectx)
	if err != nil && !errors.Is(err, compliance.ErrHistoryUnavailable) && !errors.Is(err, compliance.ErrRuleEvaluation) {
		err = fmt.Errorf("%w: %s: %v", compliance.ErrRuleEvaluation, rule.ID(), err)
	}
	return result, err
}

// CalculateTotalRisk returns the maximum score among triggered results.
// Scores are not summed: several rules tripping on the same pattern must not
// compound.
func CalculateTotalRisk(results []Result) float64 {
	total := 0.0
	for _, r := range results {
		if r.Triggered && r.Score > total {
			total = r.Score
		}
	}
	return total
}
