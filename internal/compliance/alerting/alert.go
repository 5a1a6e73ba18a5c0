// Package alerting escalates high-risk decisions to compliance officers.
// Delivery is asynchronous and best-effort; nothing here can change a
// decision that has already been recorded.
package alerting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Alert is the payload handed to every sink
type Alert struct {
	ID            uuid.UUID       `json:"id"`
	TransactionID string          `json:"transaction_id"`
	CustomerID    string          `json:"customer_id"`
	RiskScore     float64         `json:"risk_score"`
	Flags         []string        `json:"flags"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Subject is the email subject line for the alert
func (a Alert) Subject() string {
	return fmt.Sprintf("URGENT: High Risk Transaction Detected (Score: %s)", formatScore(a.RiskScore))
}

// Body renders the plain-text alert body
func (a Alert) Body() string {
	var b strings.Builder
	b.WriteString("WARNING: COMPLIANCE THRESHOLD BREACHED\n")
	b.WriteString("--------------------------------------\n")
	fmt.Fprintf(&b, "Transaction ID:   %s\n", a.TransactionID)
	fmt.Fprintf(&b, "Customer ID:      %s\n", a.CustomerID)
	fmt.Fprintf(&b, "Amount:           %s %s\n", a.Amount.String(), a.Currency)
	fmt.Fprintf(&b, "Risk Score:       %s / 100\n", formatScore(a.RiskScore))
	fmt.Fprintf(&b, "Alerts Triggered: %s\n\n", strings.Join(a.Flags, ", "))
	b.WriteString("Action Required: IMMEDIATE REVIEW\n")
	return b.String()
}

func formatScore(score float64) string {
	return decimal.NewFromFloat(score).String()
}

// Sink delivers an alert to one destination
type Sink interface {
	Name() string
	Send(ctx context.Context, alert Alert) error
}
