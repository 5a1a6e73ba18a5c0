package rules

import (
	"context"
	"time"

	"github.com/Aidin1998/pincex_aml/pkg/models"
)

// Result is the outcome of one rule against one transaction
type Result struct {
	RuleID    string  `json:"rule_id"`
	RuleName  string  `json:"rule_name"`
	Triggered bool    `json:"triggered"`
	Score     float64 `json:"risk_score"` // 0.0 to 100.0
	Reason    string  `json:"reason,omitempty"`
}

// HistoryReader is the read-only view of transaction history a rule may use
type HistoryReader interface {
	CountSince(ctx context.Context, customerID string, since time.Time) (int64, error)
}

// EvalContext carries per-evaluation inputs that are not part of the transaction
type EvalContext struct {
	CustomerID string
	History    HistoryReader
	Now        time.Time
}

// Rule is a single compliance check. Implementations must not write shared
// state. Returning an error means the rule could not check; the engine treats
// that as not triggered and records the failure separately.
type Rule interface {
	ID() string
	Name() string
	Check(ctx context.Context, txn *models.Transaction, ectx EvalContext) (Result, error)
}

func notTriggered(r Rule) Result {
	return Result{RuleID: r.ID(), RuleName: r.Name()}
}
