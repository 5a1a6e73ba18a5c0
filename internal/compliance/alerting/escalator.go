package alerting

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultAlertThreshold is the score above which decisions are escalated
const DefaultAlertThreshold = 80.0

// Escalation statuses and actions
const (
	EscalationBlocked   = "BLOCKED"
	EscalationProcessed = "PROCESSED"

	ActionEscalated = "ESCALATED_TO_COMPLIANCE"
	ActionNone      = "NONE"
)

// Escalation reports what the escalator did with one decision
type Escalation struct {
	Status    string `json:"status"`
	Action    string `json:"action"`
	AlertSent bool   `json:"alert_sent"`
}

// Escalator queues alerts for decisions above the threshold
type Escalator struct {
	threshold  float64
	dispatcher *Dispatcher
	logger     *zap.Logger
}

// NewEscalator creates an escalator. A non-positive threshold uses DefaultAlertThreshold.
func NewEscalator(threshold float64, dispatcher *Dispatcher, logger *zap.Logger) *Escalator {
	if threshold <= 0 {
		threshold = DefaultAlertThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Escalator{threshold: threshold, dispatcher: dispatcher, logger: logger}
}

// Threshold returns the escalation threshold
func (e *Escalator) Threshold() float64 {
	return e.threshold
}

// Escalate never blocks on delivery. AlertSent reports whether the alert was
// accepted for delivery, not whether it arrived.
func (e *Escalator) Escalate(alert Alert) Escalation {
	if alert.RiskScore <= e.threshold {
		return Escalation{Status: EscalationProcessed, Action: ActionNone, AlertSent: false}
	}

	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}

	sent := e.dispatcher != nil && e.dispatcher.Enqueue(alert)
	e.logger.Warn("High risk transaction escalated to compliance",
		zap.String("transaction_id", alert.TransactionID),
		zap.Float64("risk_score", alert.RiskScore),
		zap.Bool("alert_queued", sent))

	return Escalation{Status: EscalationBlocked, Action: ActionEscalated, AlertSent: sent}
}
