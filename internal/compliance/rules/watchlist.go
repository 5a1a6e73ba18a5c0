package rules

import (
	"context"
	"fmt"

	"github.com/Aidin1998/pincex_aml/internal/compliance/screening"
	"github.com/Aidin1998/pincex_aml/pkg/models"
)

// Screener is the sanctions-list lookup used by WatchlistRule
type Screener interface {
	Screen(ctx context.Context, name string) screening.ScreeningResult
}

// WatchlistRule screens the counterparty name against the sanctions list
type WatchlistRule struct {
	screener Screener
	Score    float64
}

// NewWatchlistRule creates the rule over a screener
func NewWatchlistRule(screener Screener) *WatchlistRule {
	return &WatchlistRule{screener: screener, Score: 100.0}
}

func (r *WatchlistRule) ID() string   { return "global_sanctions_screen_v1" }
func (r *WatchlistRule) Name() string { return "Global Sanctions Screen" }

// Check triggers with a full score on a sanctions hit
func (r *WatchlistRule) Check(ctx context.Context, txn *models.Transaction, _ EvalContext) (Result, error) {
	match := r.screener.Screen(ctx, txn.CounterpartyName)
	if !match.Hit {
		return notTriggered(r), nil
	}

	return Result{
		RuleID:    r.ID(),
		RuleName:  r.Name(),
		Triggered: true,
		Score:     r.Score,
		Reason: fmt.Sprintf("SANCTION MATCH: '%s' ~ '%s' (Score: %.1f%%)",
			txn.CounterpartyName, match.MatchedName, match.Score),
	}, nil
}
