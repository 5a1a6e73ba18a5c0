// Package risk combines rule scores and the circular-flow outcome into a
// final decision.
package risk

import (
	"strings"

	"github.com/Aidin1998/pincex_aml/internal/compliance/graph"
	"github.com/Aidin1998/pincex_aml/internal/compliance/rules"
	"github.com/Aidin1998/pincex_aml/pkg/models"
)

const (
	// BlockThreshold is the score at and above which a transaction is blocked
	BlockThreshold = 100.0
	// CircularPenalty is added on a confirmed ring
	CircularPenalty = 100.0
	// ReasonSeparator joins individual reasons in the flagged-reason text
	ReasonSeparator = " | "
)

// Decision is the pipeline verdict for one transaction
type Decision struct {
	Status        models.TransactionStatus `json:"status"`
	Score         float64                  `json:"risk_score"`
	Reasons       []string                 `json:"reasons"`
	ReasonText    string                   `json:"flagged_reason"`
	CircularCheck graph.Outcome            `json:"circular_check"`
}

// Decide maps an aggregate score onto a status. Negative scores are treated as 0.
func Decide(score float64) models.TransactionStatus {
	switch {
	case score >= BlockThreshold:
		return models.StatusBlocked
	case score > 0:
		return models.StatusFlagged
	default:
		return models.StatusCompleted
	}
}

// Aggregator builds decisions
type Aggregator struct {
	penalty float64
}

// NewAggregator creates an aggregator with the standard circular penalty
func NewAggregator() *Aggregator {
	return &Aggregator{penalty: CircularPenalty}
}

// Aggregate takes the maximum triggered rule score, adds the circular penalty
// when the ring is confirmed, and decides. An unavailable circular check adds
// nothing but is recorded on the decision.
func (a *Aggregator) Aggregate(triggered []rules.Result, check graph.CycleCheck) Decision {
	score := rules.CalculateTotalRisk(triggered)

	reasons := make([]string, 0, len(triggered)+1)
	for _, r := range triggered {
		if r.Triggered && r.Reason != "" {
			reasons = append(reasons, r.Reason)
		}
	}

	if check.Confirmed() {
		score += a.penalty
		reasons = append(reasons, graph.CircularFlowMessage)
	}

	outcome := check.Outcome
	if outcome == "" {
		outcome = graph.OutcomeNotFound
	}

	return Decision{
		Status:        Decide(score),
		Score:         score,
		Reasons:       reasons,
		ReasonText:    strings.Join(reasons, ReasonSeparator),
		CircularCheck: outcome,
	}
}
