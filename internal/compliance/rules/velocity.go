package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/Aidin1998/pincex_aml/internal/compliance"
	"github.com/Aidin1998/pincex_aml/pkg/models"
)

// VelocityRule flags a customer whose prior transactions within Window already
// reached MaxTransactions, i.e. this one would exceed it.
type VelocityRule struct {
	Window          time.Duration
	MaxTransactions int64
	Score           float64
}

// NewVelocityRule creates the rule with a 5 minute window and a limit of 3
func NewVelocityRule() *VelocityRule {
	return &VelocityRule{
		Window:          5 * time.Minute,
		MaxTransactions: 3,
		Score:           60.0,
	}
}

func (r *VelocityRule) ID() string   { return "velocity_high_frequency_v1" }
func (r *VelocityRule) Name() string { return "Velocity/High Frequency Check" }

// Check counts existing transactions for the customer since Now-Window.
// A missing or failing history store returns ErrHistoryUnavailable.
func (r *VelocityRule) Check(ctx context.Context, _ *models.Transaction, ectx EvalContext) (Result, error) {
	if ectx.History == nil || ectx.CustomerID == "" {
		return notTriggered(r), fmt.Errorf("%w: no history handle for velocity check", compliance.ErrHistoryUnavailable)
	}

	windowStart := ectx.Now.Add(-r.Window)
	count, err := ectx.History.CountSince(ctx, ectx.CustomerID, windowStart)
	if err != nil {
		return notTriggered(r), fmt.Errorf("%w: %v", compliance.ErrHistoryUnavailable, err)
	}

	if count >= r.MaxTransactions {
		return Result{
			RuleID:    r.ID(),
			RuleName:  r.Name(),
			Triggered: true,
			Score:     r.Score,
			Reason: fmt.Sprintf("Velocity High: %d prior transactions in last %d mins.",
				count, int(r.Window.Minutes())),
		}, nil
	}
	return notTriggered(r), nil
}
