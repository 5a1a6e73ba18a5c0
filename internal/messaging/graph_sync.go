package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Aidin1998/pincex_aml/internal/compliance/graph"
	"go.uber.org/zap"
)

// EdgePublisher satisfies the orchestrator's graph sink by publishing edges
// to Kafka instead of writing the graph store directly.
type EdgePublisher struct {
	bus    *MessageBus
	source string
}

// NewEdgePublisher creates an edge publisher on bus
func NewEdgePublisher(bus *MessageBus, source string) *EdgePublisher {
	if source == "" {
		source = "amlsentinel"
	}
	return &EdgePublisher{bus: bus, source: source}
}

// IngestEdge publishes the edge; the graph store is updated by GraphSyncService
func (p *EdgePublisher) IngestEdge(ctx context.Context, edge graph.Edge) error {
	msg := &TransferEdgeMessage{
		BaseMessage:   NewBaseMessage(MsgTransferEdge, p.source, edge.TransactionID),
		From:          edge.From,
		To:            edge.To,
		Amount:        edge.Amount,
		Currency:      edge.Currency,
		TransactionID: edge.TransactionID,
		OccurredAt:    edge.Timestamp,
	}
	return p.bus.PublishTransferEdge(ctx, msg)
}

// GraphSyncService applies transfer edge messages to a graph store
type GraphSyncService struct {
	store  graph.Store
	bus    *MessageBus
	logger *zap.Logger
}

// NewGraphSyncService creates the consumer side and registers its handler on bus
func NewGraphSyncService(store graph.Store, bus *MessageBus, logger *zap.Logger) *GraphSyncService {
	s := &GraphSyncService{store: store, bus: bus, logger: logger}
	bus.RegisterHandler(MsgTransferEdge, s.handleTransferEdge)
	return s
}

func (s *GraphSyncService) handleTransferEdge(ctx context.Context, msg *ReceivedMessage) error {
	var edgeMsg TransferEdgeMessage
	if err := json.Unmarshal(msg.Value, &edgeMsg); err != nil {
		return fmt.Errorf("failed to unmarshal transfer edge message: %w", err)
	}

	edge := graph.Edge{
		From:          edgeMsg.From,
		To:            edgeMsg.To,
		Amount:        edgeMsg.Amount,
		Currency:      edgeMsg.Currency,
		TransactionID: edgeMsg.TransactionID,
		Timestamp:     edgeMsg.OccurredAt,
	}
	if err := s.store.IngestEdge(ctx, edge); err != nil {
		s.logger.Error("Failed to apply transfer edge",
			zap.Error(err),
			zap.String("transaction_id", edgeMsg.TransactionID))
		return err
	}

	s.logger.Debug("Transfer edge applied",
		zap.String("from", edge.From),
		zap.String("to", edge.To),
		zap.String("transaction_id", edge.TransactionID))
	return nil
}
