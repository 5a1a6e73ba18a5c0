package rules

import (
	"context"
	"fmt"

	"github.com/Aidin1998/pincex_aml/pkg/models"
	"github.com/shopspring/decimal"
)

// StructuringRule flags amounts just below the currency reporting threshold
type StructuringRule struct {
	LowerBound         decimal.Decimal
	ReportingThreshold decimal.Decimal
	Score              float64
}

// NewStructuringRule creates the rule with the 9,000 / 10,000 band
func NewStructuringRule() *StructuringRule {
	return &StructuringRule{
		LowerBound:         decimal.NewFromInt(9000),
		ReportingThreshold: decimal.NewFromInt(10000),
		Score:              75.0,
	}
}

func (r *StructuringRule) ID() string   { return "structuring_detection_v1" }
func (r *StructuringRule) Name() string { return "Structuring Detection" }

// Check triggers when LowerBound <= amount < ReportingThreshold
func (r *StructuringRule) Check(_ context.Context, txn *models.Transaction, _ EvalContext) (Result, error) {
	amount := txn.Amount
	if amount.GreaterThanOrEqual(r.LowerBound) && amount.LessThan(r.ReportingThreshold) {
		return Result{
			RuleID:    r.ID(),
			RuleName:  r.Name(),
			Triggered: true,
			Score:     r.Score,
			Reason: fmt.Sprintf("Transaction amount %s is just below the reporting threshold of %s. Potential Structuring.",
				amount.String(), r.ReportingThreshold.String()),
		}, nil
	}
	return notTriggered(r), nil
}
