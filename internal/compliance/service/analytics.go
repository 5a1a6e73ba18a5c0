package service

import (
	"context"
	"fmt"

	"github.com/Aidin1998/pincex_aml/internal/database"
	"github.com/Aidin1998/pincex_aml/pkg/models"
	"github.com/shopspring/decimal"
)

// recentAlertLimit is how many blocked transactions the dashboard lists
const recentAlertLimit = 5

// AnalyticsStore is the read side of the transaction store
type AnalyticsStore interface {
	Totals(ctx context.Context) (*database.TransactionTotals, error)
	BlockedReasons(ctx context.Context) ([]database.ReasonCount, error)
	RecentBlocked(ctx context.Context, limit int) ([]models.Transaction, error)
}

// RecentAlert is a blocked transaction shown on the dashboard
type RecentAlert struct {
	ID           string          `json:"id"`
	Counterparty string          `json:"counterparty"`
	Amount       decimal.Decimal `json:"amount"`
	Reason       string          `json:"reason"`
}

// Dashboard summarises evaluated transactions
type Dashboard struct {
	TotalTransactions   int64                  `json:"total_transactions"`
	TotalVolume         decimal.Decimal        `json:"total_volume"`
	AvgRiskScore        float64                `json:"avg_risk_score"`
	BlockedTransactions int64                  `json:"blocked_transactions"`
	BlockedVolume       decimal.Decimal        `json:"blocked_volume"`
	BlockRate           float64                `json:"block_rate_percent"`
	RiskDistribution    []database.ReasonCount `json:"risk_distribution"`
	RecentAlerts        []RecentAlert          `json:"recent_alerts"`
}

// Analytics computes the compliance dashboard
type Analytics struct {
	store AnalyticsStore
}

// NewAnalytics creates an analytics reader
func NewAnalytics(store AnalyticsStore) *Analytics {
	return &Analytics{store: store}
}

// Dashboard aggregates totals, blocked reasons and the latest blocked transfers
func (a *Analytics) Dashboard(ctx context.Context) (*Dashboard, error) {
	totals, err := a.store.Totals(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load totals: %w", err)
	}
	reasons, err := a.store.BlockedReasons(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load reason distribution: %w", err)
	}
	blocked, err := a.store.RecentBlocked(ctx, recentAlertLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent alerts: %w", err)
	}

	d := &Dashboard{
		TotalTransactions:   totals.TotalTransactions,
		TotalVolume:         totals.TotalVolume,
		AvgRiskScore:        totals.AvgRiskScore,
		BlockedTransactions: totals.BlockedTransactions,
		BlockedVolume:       totals.BlockedVolume,
		RiskDistribution:    reasons,
		RecentAlerts:        make([]RecentAlert, 0, len(blocked)),
	}
	if d.RiskDistribution == nil {
		d.RiskDistribution = []database.ReasonCount{}
	}
	if totals.TotalTransactions > 0 {
		d.BlockRate = float64(totals.BlockedTransactions) / float64(totals.TotalTransactions) * 100
	}
	for _, txn := range blocked {
		d.RecentAlerts = append(d.RecentAlerts, RecentAlert{
			ID:           txn.ID.String(),
			Counterparty: txn.CounterpartyName,
			Amount:       txn.Amount,
			Reason:       txn.FlaggedReason,
		})
	}
	return d, nil
}
