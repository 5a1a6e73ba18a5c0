package risk

import (
	"testing"

	"github.com/Aidin1998/pincex_aml/internal/compliance/graph"
	"github.com/Aidin1998/pincex_aml/internal/compliance/rules"
	"github.com/Aidin1998/pincex_aml/pkg/models"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestDecide_Boundaries(t *testing.T) {
	assert.Equal(t, models.StatusCompleted, Decide(0))
	assert.Equal(t, models.StatusFlagged, Decide(0.0001))
	assert.Equal(t, models.StatusFlagged, Decide(99.999))
	assert.Equal(t, models.StatusBlocked, Decide(100))
	assert.Equal(t, models.StatusBlocked, Decide(175))
}

func TestDecide_Properties(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("scores at or above 100 block", prop.ForAll(
		func(s float64) bool { return Decide(s) == models.StatusBlocked },
		gen.Float64Range(100, 1e6),
	))
	properties.Property("scores strictly between 0 and 100 flag", prop.ForAll(
		func(s float64) bool { return s <= 0 || s >= 100 || Decide(s) == models.StatusFlagged },
		gen.Float64Range(0, 100),
	))
	properties.Property("exactly one status for any score", prop.ForAll(
		func(s float64) bool {
			status := Decide(s)
			blocked := status == models.StatusBlocked
			flagged := status == models.StatusFlagged
			completed := status == models.StatusCompleted
			return (blocked && s >= 100) || (flagged && s > 0 && s < 100) || (completed && s <= 0)
		},
		gen.Float64Range(-10, 1000),
	))

	properties.TestingRun(t)
}

func TestAggregate_MaxNotSum(t *testing.T) {
	agg := NewAggregator()
	triggered := []rules.Result{
		{RuleID: "structuring", Triggered: true, Score: 75, Reason: "Potential Structuring."},
		{RuleID: "velocity", Triggered: true, Score: 60, Reason: "Velocity High"},
	}

	d := agg.Aggregate(triggered, graph.CycleCheck{Outcome: graph.OutcomeNotFound})

	assert.Equal(t, 75.0, d.Score)
	assert.Equal(t, models.StatusFlagged, d.Status)
	assert.Equal(t, "Potential Structuring. | Velocity High", d.ReasonText)
	assert.Equal(t, graph.OutcomeNotFound, d.CircularCheck)
}

func TestAggregate_CircularKillSwitch(t *testing.T) {
	agg := NewAggregator()

	d := agg.Aggregate(nil, graph.CycleCheck{Outcome: graph.OutcomeConfirmed, Path: []string{"A", "B", "A"}})

	assert.Equal(t, 100.0, d.Score)
	assert.Equal(t, models.StatusBlocked, d.Status)
	assert.Equal(t, graph.CircularFlowMessage, d.ReasonText)

	d = agg.Aggregate([]rules.Result{{Triggered: true, Score: 60, Reason: "Velocity High"}},
		graph.CycleCheck{Outcome: graph.OutcomeConfirmed})
	assert.Equal(t, 160.0, d.Score)
	assert.Equal(t, []string{"Velocity High", graph.CircularFlowMessage}, d.Reasons)
}

func TestAggregate_UnavailableAddsNothing(t *testing.T) {
	agg := NewAggregator()

	d := agg.Aggregate(nil, graph.CycleCheck{Outcome: graph.OutcomeUnavailable})

	assert.Zero(t, d.Score)
	assert.Equal(t, models.StatusCompleted, d.Status)
	assert.Empty(t, d.ReasonText)
	assert.Equal(t, graph.OutcomeUnavailable, d.CircularCheck)
}
