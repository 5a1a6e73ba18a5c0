package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MessageBus coordinates message publishing and consumption across services
type MessageBus struct {
	producer Producer
	consumer Consumer
	logger   *zap.Logger
	handlers map[MessageType][]MessageHandler
	mu       sync.RWMutex
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewMessageBus creates a new message bus instance. Either side may be nil
// for publish-only or consume-only processes.
func NewMessageBus(producer Producer, consumer Consumer, logger *zap.Logger) *MessageBus {
	ctx, cancel := context.WithCancel(context.Background())

	return &MessageBus{
		producer: producer,
		consumer: consumer,
		logger:   logger,
		handlers: make(map[MessageType][]MessageHandler),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// PublishTransferEdge publishes a committed transfer for the graph store.
// Keyed by source node so edges from one node stay ordered.
func (mb *MessageBus) PublishTransferEdge(ctx context.Context, event *TransferEdgeMessage) error {
	if mb.producer == nil {
		return fmt.Errorf("message bus has no producer")
	}

	mb.logger.Debug("Publishing transfer edge",
		zap.String("from", event.From),
		zap.String("to", event.To),
		zap.String("transaction_id", event.TransactionID))

	return mb.producer.Publish(ctx, GetTopic(event.Type), event.From, event)
}

// PublishDecision publishes a committed risk decision
func (mb *MessageBus) PublishDecision(ctx context.Context, event *DecisionMessage) error {
	if mb.producer == nil {
		return fmt.Errorf("message bus has no producer")
	}

	mb.logger.Debug("Publishing decision",
		zap.String("transaction_id", event.TransactionID),
		zap.String("status", event.Status))

	return mb.producer.Publish(ctx, GetTopic(event.Type), event.CustomerID, event)
}

// RegisterHandler registers a message handler for a specific message type
func (mb *MessageBus) RegisterHandler(msgType MessageType, handler MessageHandler) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	mb.handlers[msgType] = append(mb.handlers[msgType], handler)

	mb.logger.Info("Registered message handler",
		zap.String("type", string(msgType)))
}

// StartConsumers starts consuming messages for all registered handlers
func (mb *MessageBus) StartConsumers(groupID string) error {
	mb.mu.RLock()
	defer mb.mu.RUnlock()

	if len(mb.handlers) == 0 {
		mb.logger.Warn("No message handlers registered")
		return nil
	}
	if mb.consumer == nil {
		return fmt.Errorf("message bus has no consumer")
	}

	topicSet := make(map[Topic]bool)
	for msgType := range mb.handlers {
		topicSet[GetTopic(msgType)] = true
	}

	topics := make([]Topic, 0, len(topicSet))
	for topic := range topicSet {
		topics = append(topics, topic)
	}

	mb.logger.Info("Starting message consumers",
		zap.String("group_id", groupID),
		zap.Int("topic_count", len(topics)),
		zap.Int("handler_count", len(mb.handlers)))

	return mb.consumer.Subscribe(mb.ctx, topics, groupID, mb.handleMessage)
}

// handleMessage routes incoming messages to registered handlers by type
func (mb *MessageBus) handleMessage(ctx context.Context, msg *ReceivedMessage) error {
	start := time.Now()

	var baseMsg BaseMessage
	if err := parseJSON(msg.Value, &baseMsg); err != nil {
		mb.logger.Error("Failed to parse message",
			zap.Error(err),
			zap.String("topic", msg.Topic))
		return err
	}

	mb.mu.RLock()
	handlers, exists := mb.handlers[baseMsg.Type]
	mb.mu.RUnlock()

	if !exists {
		mb.logger.Debug("No handlers registered for message type",
			zap.String("type", string(baseMsg.Type)))
		return nil
	}

	var lastErr error
	for _, handler := range handlers {
		if err := handler(ctx, msg); err != nil {
			lastErr = err
			mb.logger.Error("Message handler failed",
				zap.Error(err),
				zap.String("type", string(baseMsg.Type)),
				zap.String("topic", msg.Topic))
		}
	}

	mb.logger.Debug("Message processed",
		zap.String("type", string(baseMsg.Type)),
		zap.Duration("duration", time.Since(start)),
		zap.Bool("success", lastErr == nil))

	return lastErr
}

// Stop gracefully stops the message bus
func (mb *MessageBus) Stop() error {
	mb.logger.Info("Stopping message bus")

	mb.cancel()

	var producerErr, consumerErr error
	if mb.producer != nil {
		producerErr = mb.producer.Close()
	}
	if mb.consumer != nil {
		consumerErr = mb.consumer.Close()
	}

	if producerErr != nil {
		return producerErr
	}
	return consumerErr
}

// HealthCheck reports whether the bus is still running
func (mb *MessageBus) HealthCheck() error {
	select {
	case <-mb.ctx.Done():
		return fmt.Errorf("message bus is stopped")
	default:
		return nil
	}
}

func parseJSON(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("json unmarshal failed: %w", err)
	}
	return nil
}
