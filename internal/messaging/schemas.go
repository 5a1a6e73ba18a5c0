package messaging

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MessageType defines the type of message being sent
type MessageType string

const (
	// Graph shadow writes
	MsgTransferEdge MessageType = "graph.transfer_edge"

	// Decisions
	MsgDecisionRecorded MessageType = "decision.recorded"
)

// BaseMessage contains common fields for all messages
type BaseMessage struct {
	MessageID     string      `json:"message_id"`
	Type          MessageType `json:"type"`
	Timestamp     time.Time   `json:"timestamp"`
	Version       string      `json:"version"`
	Source        string      `json:"source"`
	CorrelationID string      `json:"correlation_id,omitempty"`
}

// TransferEdgeMessage carries one committed transfer into the graph store
type TransferEdgeMessage struct {
	BaseMessage
	From          string          `json:"from"`
	To            string          `json:"to"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	TransactionID string          `json:"transaction_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// DecisionMessage announces a committed risk decision to downstream consumers
type DecisionMessage struct {
	BaseMessage
	TransactionID string          `json:"transaction_id"`
	CustomerID    string          `json:"customer_id"`
	Status        string          `json:"status"`
	RiskScore     float64         `json:"risk_score"`
	Reasons       []string        `json:"reasons"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	AuditHash     string          `json:"audit_hash"`
}

// Topic defines Kafka topics for different message types
type Topic string

const (
	TopicGraphEdges Topic = "aml-graph-edges"
	TopicDecisions  Topic = "aml-decisions"
)

// GetTopic returns the appropriate topic for a message type
func GetTopic(msgType MessageType) Topic {
	switch msgType {
	case MsgTransferEdge:
		return TopicGraphEdges
	default:
		return TopicDecisions
	}
}

// NewBaseMessage creates a new base message with common fields
func NewBaseMessage(msgType MessageType, source string, correlationID string) BaseMessage {
	return BaseMessage{
		MessageID:     uuid.New().String(),
		Type:          msgType,
		Timestamp:     time.Now().UTC(),
		Version:       "1.0",
		Source:        source,
		CorrelationID: correlationID,
	}
}
