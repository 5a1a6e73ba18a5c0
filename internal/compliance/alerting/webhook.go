package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// WebhookSink posts a chat-style (Slack incoming webhook) message
type WebhookSink struct {
	URL        string
	Headers    map[string]string
	RetryCount int
	Backoff    time.Duration
	client     *http.Client
	logger     *zap.Logger
}

// NewWebhookSink creates a webhook sink
func NewWebhookSink(url string, headers map[string]string, timeout time.Duration, logger *zap.Logger) *WebhookSink {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSink{
		URL:        url,
		Headers:    headers,
		RetryCount: 3,
		Backoff:    time.Second,
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (s *WebhookSink) Name() string { return "webhook" }

type textObject struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type block struct {
	Type   string       `json:"type"`
	Text   *textObject  `json:"text,omitempty"`
	Fields []textObject `json:"fields,omitempty"`
}

type webhookPayload struct {
	Text   string  `json:"text"`
	Blocks []block `json:"blocks"`
}

func buildPayload(alert Alert) webhookPayload {
	currency := alert.Currency
	if currency == "" {
		currency = "USD"
	}
	return webhookPayload{
		Text: fmt.Sprintf("High Risk Transaction Detected: %s", alert.TransactionID),
		Blocks: []block{
			{
				Type: "section",
				Text: &textObject{
					Type: "mrkdwn",
					Text: fmt.Sprintf("*Risk Score:* %s\n*Flags:* %s", formatScore(alert.RiskScore), strings.Join(alert.Flags, ", ")),
				},
			},
			{
				Type: "section",
				Fields: []textObject{
					{Type: "mrkdwn", Text: fmt.Sprintf("*Amount:*\n%s", alert.Amount.String())},
					{Type: "mrkdwn", Text: fmt.Sprintf("*Currency:*\n%s", currency)},
				},
			},
		},
	}
}

func (s *WebhookSink) Send(ctx context.Context, alert Alert) error {
	data, err := json.Marshal(buildPayload(alert))
	if err != nil {
		return errors.Wrap(err, "failed to marshal webhook payload")
	}
	return s.sendWithRetry(ctx, data)
}

func (s *WebhookSink) sendWithRetry(ctx context.Context, data []byte) error {
	var lastErr error

	for i := 0; i <= s.RetryCount; i++ {
		err := s.post(ctx, data)
		if err == nil {
			return nil
		}
		lastErr = err
		s.logger.Warn("Webhook send failed, retrying",
			zap.Int("attempt", i+1),
			zap.Error(err))

		if i < s.RetryCount {
			select {
			case <-time.After(time.Duration(i+1) * s.Backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return errors.Wrap(lastErr, "webhook send failed after retries")
}

func (s *WebhookSink) post(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(data))
	if err != nil {
		return errors.Wrap(err, "failed to create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send webhook request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
