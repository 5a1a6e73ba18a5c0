package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Aidin1998/pincex_aml/pkg/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrTransactionNotFound is returned by GetByID for unknown ids
var ErrTransactionNotFound = errors.New("transaction not found")

// TransactionRepository persists evaluated transactions
type TransactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates a transaction repository
func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// CountSince counts the customer's transactions with a timestamp at or after since
func (r *TransactionRepository) CountSince(ctx context.Context, customerID string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("customer_id = ? AND occurred_at >= ?", customerID, since.UTC()).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// Append inserts txn inside a database transaction and runs beforeCommit
// before committing. If beforeCommit fails the insert is rolled back and its
// error is returned. Fields beforeCommit sets on txn are persisted.
func (r *TransactionRepository) Append(ctx context.Context, txn *models.Transaction, beforeCommit func(ctx context.Context, txn *models.Transaction) error) error {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(txn).Error; err != nil {
			return fmt.Errorf("failed to insert transaction: %w", err)
		}
		if beforeCommit == nil {
			return nil
		}
		if err := beforeCommit(ctx, txn); err != nil {
			return err
		}
		if err := tx.Model(txn).Updates(map[string]interface{}{
			"audit_hash": txn.AuditHash,
		}).Error; err != nil {
			return fmt.Errorf("failed to update transaction audit hash: %w", err)
		}
		return nil
	})
}

// GetByID returns one transaction
func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var txn models.Transaction
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&txn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &txn, nil
}

// TransactionFilter narrows List
type TransactionFilter struct {
	CustomerID string
	Status     models.TransactionStatus
	Limit      int
	Offset     int
}

// List returns transactions newest first
func (r *TransactionRepository) List(ctx context.Context, filter TransactionFilter) ([]models.Transaction, error) {
	q := r.db.WithContext(ctx).Model(&models.Transaction{})
	if filter.CustomerID != "" {
		q = q.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}

	var txns []models.Transaction
	if err := q.Order("occurred_at DESC").Offset(filter.Offset).Limit(filter.Limit).Find(&txns).Error; err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txns, nil
}

// TransactionTotals are whole-table aggregates
type TransactionTotals struct {
	TotalTransactions   int64
	TotalVolume         decimal.Decimal
	AvgRiskScore        float64
	BlockedTransactions int64
	BlockedVolume       decimal.Decimal
}

// ReasonCount is one bucket of the blocked-reason distribution
type ReasonCount struct {
	Reason string `json:"reason"`
	Count  int64  `json:"count"`
}

// Totals computes counts and volumes in the database
func (r *TransactionRepository) Totals(ctx context.Context) (*TransactionTotals, error) {
	var all struct {
		Total    int64
		Volume   decimal.Decimal
		AvgScore float64
	}
	if err := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Select("COUNT(*) AS total, COALESCE(SUM(amount), 0) AS volume, COALESCE(AVG(risk_score), 0) AS avg_score").
		Scan(&all).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate transactions: %w", err)
	}

	var blocked struct {
		Total  int64
		Volume decimal.Decimal
	}
	if err := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Select("COUNT(*) AS total, COALESCE(SUM(amount), 0) AS volume").
		Where("status = ?", models.StatusBlocked).
		Scan(&blocked).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate blocked transactions: %w", err)
	}

	return &TransactionTotals{
		TotalTransactions:   all.Total,
		TotalVolume:         all.Volume,
		AvgRiskScore:        all.AvgScore,
		BlockedTransactions: blocked.Total,
		BlockedVolume:       blocked.Volume,
	}, nil
}

// BlockedReasons groups blocked transactions by reason text, most frequent first
func (r *TransactionRepository) BlockedReasons(ctx context.Context) ([]ReasonCount, error) {
	var rows []ReasonCount
	if err := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Select("flagged_reason AS reason, COUNT(*) AS count").
		Where("status = ?", models.StatusBlocked).
		Group("flagged_reason").
		Order("count DESC, reason ASC").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to group blocked reasons: %w", err)
	}
	for i := range rows {
		if rows[i].Reason == "" {
			rows[i].Reason = "Unknown"
		}
	}
	return rows, nil
}

// RecentBlocked returns the newest blocked transactions
func (r *TransactionRepository) RecentBlocked(ctx context.Context, limit int) ([]models.Transaction, error) {
	return r.List(ctx, TransactionFilter{Status: models.StatusBlocked, Limit: limit})
}
