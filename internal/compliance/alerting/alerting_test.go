package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func sampleAlert(score float64) Alert {
	return Alert{
		ID:            uuid.New(),
		TransactionID: "tx-123",
		CustomerID:    "cust-1",
		RiskScore:     score,
		Flags:         []string{"SANCTION MATCH", "Velocity High"},
		Amount:        decimal.RequireFromString("9500.00"),
		Currency:      "USD",
		CreatedAt:     time.Now().UTC(),
	}
}

type recordingSink struct {
	name string
	err  error

	mu     sync.Mutex
	alerts []Alert
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Send(_ context.Context, a Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

func TestAlert_Subject(t *testing.T) {
	assert.Equal(t, "URGENT: High Risk Transaction Detected (Score: 100)", sampleAlert(100).Subject())
	assert.Equal(t, "URGENT: High Risk Transaction Detected (Score: 87.5)", sampleAlert(87.5).Subject())
	assert.Contains(t, sampleAlert(100).Body(), "SANCTION MATCH, Velocity High")
}

func TestWebhookSink_PayloadAndRetry(t *testing.T) {
	var calls int32
	var body webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-Token"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, map[string]string{"X-Token": "secret"}, time.Second, zaptest.NewLogger(t))
	sink.Backoff = time.Millisecond

	require.NoError(t, sink.Send(context.Background(), sampleAlert(100)))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, "High Risk Transaction Detected: tx-123", body.Text)
	require.Len(t, body.Blocks, 2)
	assert.Equal(t, "*Risk Score:* 100\n*Flags:* SANCTION MATCH, Velocity High", body.Blocks[0].Text.Text)
	assert.Equal(t, "*Amount:*\n9500", body.Blocks[1].Fields[0].Text)
}

func TestWebhookSink_GivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, nil, time.Second, zaptest.NewLogger(t))
	sink.RetryCount = 1
	sink.Backoff = time.Millisecond

	err := sink.Send(context.Background(), sampleAlert(100))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after retries")
}

func TestEmailSink(t *testing.T) {
	logOnly := NewEmailSink(EmailConfig{To: []string{"compliance@bank.test"}}, zaptest.NewLogger(t))
	assert.NoError(t, logOnly.Send(context.Background(), sampleAlert(100)))

	none := NewEmailSink(EmailConfig{Host: "smtp.test"}, zaptest.NewLogger(t))
	assert.Error(t, none.Send(context.Background(), sampleAlert(100)))

	sink := NewEmailSink(EmailConfig{Host: "smtp.test", Port: 2525, From: "aml@bank.test", To: []string{"officer@bank.test"}}, zaptest.NewLogger(t))
	var gotAddr string
	var gotMsg []byte
	sink.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotMsg = addr, msg
		return nil
	}
	require.NoError(t, sink.Send(context.Background(), sampleAlert(100)))
	assert.Equal(t, "smtp.test:2525", gotAddr)
	assert.Contains(t, string(gotMsg), "Subject: URGENT: High Risk Transaction Detected (Score: 100)")

	sink.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("550 rejected") }
	assert.Error(t, sink.Send(context.Background(), sampleAlert(100)))
}

func TestDispatcher_DeliversToEverySink(t *testing.T) {
	failing := &recordingSink{name: "broken", err: errors.New("down")}
	ok := &recordingSink{name: "ok"}
	d := NewDispatcher(DispatcherConfig{QueueSize: 8, Workers: 2}, zaptest.NewLogger(t), failing, ok)
	d.Start()

	for i := 0; i < 5; i++ {
		require.True(t, d.Enqueue(sampleAlert(100)))
	}
	require.NoError(t, d.Stop(context.Background()))

	assert.Equal(t, 5, failing.count())
	assert.Equal(t, 5, ok.count())
	assert.False(t, d.Enqueue(sampleAlert(100)))
}

func TestDispatcher_FullQueueDrops(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{QueueSize: 1, Workers: 1}, zaptest.NewLogger(t))

	assert.True(t, d.Enqueue(sampleAlert(100)))
	assert.False(t, d.Enqueue(sampleAlert(100)))
	assert.NoError(t, d.Stop(context.Background()))
}

func TestEscalator(t *testing.T) {
	sink := &recordingSink{name: "rec"}
	d := NewDispatcher(DispatcherConfig{}, zaptest.NewLogger(t), sink)
	d.Start()
	esc := NewEscalator(0, d, zaptest.NewLogger(t))
	assert.Equal(t, DefaultAlertThreshold, esc.Threshold())

	low := esc.Escalate(sampleAlert(75))
	assert.Equal(t, Escalation{Status: EscalationProcessed, Action: ActionNone, AlertSent: false}, low)

	edge := esc.Escalate(sampleAlert(80))
	assert.False(t, edge.AlertSent)

	high := sampleAlert(100)
	high.ID = uuid.Nil
	res := esc.Escalate(high)
	assert.Equal(t, Escalation{Status: EscalationBlocked, Action: ActionEscalated, AlertSent: true}, res)

	require.NoError(t, d.Stop(context.Background()))
	require.Equal(t, 1, sink.count())
	assert.NotEqual(t, uuid.Nil, sink.alerts[0].ID)
}

func TestEscalator_DeliveryFailureDoesNotChangeOutcome(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{}, zaptest.NewLogger(t), &recordingSink{name: "broken", err: errors.New("down")})
	d.Start()
	esc := NewEscalator(80, d, zaptest.NewLogger(t))

	res := esc.Escalate(sampleAlert(100))
	assert.True(t, res.AlertSent)
	assert.Equal(t, EscalationBlocked, res.Status)
	require.NoError(t, d.Stop(context.Background()))
}
