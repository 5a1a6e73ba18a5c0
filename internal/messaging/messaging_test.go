package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Aidin1998/pincex_aml/internal/compliance/graph"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type published struct {
	topic Topic
	key   string
	value []byte
}

// loopback delivers published messages straight to the subscribed handler
type loopback struct {
	mu       sync.Mutex
	sent     []published
	handler  MessageHandler
	topics   []Topic
	failWith error
}

func (l *loopback) Publish(ctx context.Context, topic Topic, key string, message interface{}) error {
	if l.failWith != nil {
		return l.failWith
	}
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.sent = append(l.sent, published{topic: topic, key: key, value: data})
	handler := l.handler
	l.mu.Unlock()

	if handler != nil {
		return handler(ctx, &ReceivedMessage{Topic: string(topic), Key: key, Value: data})
	}
	return nil
}

func (l *loopback) Subscribe(_ context.Context, topics []Topic, _ string, handler MessageHandler) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.topics = topics
	l.handler = handler
	return nil
}

func (l *loopback) Close() error { return nil }

func TestEdgePublisher_RoundTripIntoGraph(t *testing.T) {
	lb := &loopback{}
	bus := NewMessageBus(lb, lb, zaptest.NewLogger(t))
	store := graph.NewMemoryStore()
	NewGraphSyncService(store, bus, zaptest.NewLogger(t))
	require.NoError(t, bus.StartConsumers("graph-sync"))
	assert.Equal(t, []Topic{TopicGraphEdges}, lb.topics)

	pub := NewEdgePublisher(bus, "")
	ctx := context.Background()
	now := time.Now().UTC()
	for _, e := range [][2]string{{"A", "B"}, {"B", "C"}, {"C", "A"}} {
		require.NoError(t, pub.IngestEdge(ctx, graph.Edge{
			From: e[0], To: e[1], Amount: decimal.NewFromInt(500), Currency: "USD", TransactionID: e[0] + e[1], Timestamp: now,
		}))
	}

	require.Len(t, lb.sent, 3)
	assert.Equal(t, TopicGraphEdges, lb.sent[0].topic)
	assert.Equal(t, "A", lb.sent[0].key)

	rings, err := store.FindCycles(ctx, 2, 4, 10)
	require.NoError(t, err)
	require.Len(t, rings, 1)
	assert.Equal(t, []string{"A", "B", "C", "A"}, rings[0].Path)
}

func TestMessageBus_PublishFailureSurfaces(t *testing.T) {
	lb := &loopback{failWith: errors.New("broker down")}
	bus := NewMessageBus(lb, nil, zaptest.NewLogger(t))

	err := NewEdgePublisher(bus, "test").IngestEdge(context.Background(), graph.Edge{From: "A", To: "B"})
	assert.Error(t, err)

	err = bus.PublishDecision(context.Background(), &DecisionMessage{
		BaseMessage: NewBaseMessage(MsgDecisionRecorded, "test", ""),
	})
	assert.Error(t, err)
}

func TestMessageBus_HandleMessage(t *testing.T) {
	bus := NewMessageBus(nil, nil, zaptest.NewLogger(t))

	var got []string
	bus.RegisterHandler(MsgDecisionRecorded, func(_ context.Context, msg *ReceivedMessage) error {
		var d DecisionMessage
		require.NoError(t, json.Unmarshal(msg.Value, &d))
		got = append(got, d.TransactionID)
		return nil
	})

	data, err := json.Marshal(DecisionMessage{
		BaseMessage:   NewBaseMessage(MsgDecisionRecorded, "test", ""),
		TransactionID: "tx-1",
	})
	require.NoError(t, err)

	require.NoError(t, bus.handleMessage(context.Background(), &ReceivedMessage{Value: data}))
	assert.Equal(t, []string{"tx-1"}, got)

	assert.Error(t, bus.handleMessage(context.Background(), &ReceivedMessage{Value: []byte("{")}))
	assert.Error(t, bus.StartConsumers("x"))

	require.NoError(t, bus.Stop())
	assert.Error(t, bus.HealthCheck())
}

func TestGetTopic(t *testing.T) {
	assert.Equal(t, TopicGraphEdges, GetTopic(MsgTransferEdge))
	assert.Equal(t, TopicDecisions, GetTopic(MsgDecisionRecorded))
}
