package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionStatus is the outcome written onto a transaction by the risk pipeline
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "PENDING"
	StatusCompleted TransactionStatus = "COMPLETED"
	StatusFlagged   TransactionStatus = "FLAGGED"
	StatusBlocked   TransactionStatus = "BLOCKED"
)

// RiskLevel is the customer's KYC risk bucket
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// Customer represents a KYC'd customer sending funds
type Customer struct {
	ID            string    `json:"id" gorm:"primaryKey;type:varchar(64)" validate:"required,max=64"`
	FullName      string    `json:"full_name" gorm:"index" validate:"required,max=200"`
	Email         string    `json:"email" gorm:"uniqueIndex" validate:"omitempty,email,max=254"`
	PhoneNumber   string    `json:"phone_number"`
	AccountNumber string    `json:"account_number" gorm:"index" validate:"omitempty,min=5,max=64"`
	Nationality   string    `json:"nationality"`
	Jurisdiction  string    `json:"jurisdiction"`
	KYCStatus     string    `json:"kyc_status" gorm:"default:PENDING"`
	RiskScore     float64   `json:"risk_score"`
	RiskLevel     RiskLevel `json:"risk_level" gorm:"type:varchar(16);default:low"`
	IsPEP         bool      `json:"is_pep"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// GraphNodeID returns the identifier this customer has in the transfer graph.
// Customers with a known account are keyed by it so that inbound transfers
// to that account can close a ring.
func (c *Customer) GraphNodeID() string {
	if c.AccountNumber != "" {
		return c.AccountNumber
	}
	return c.ID
}

// Transaction represents a transfer evaluated by the risk pipeline
type Transaction struct {
	ID                  uuid.UUID         `json:"id" gorm:"primaryKey;type:uuid"`
	Reference           string            `json:"reference" gorm:"type:varchar(128);uniqueIndex"`
	CustomerID          string            `json:"customer_id" gorm:"type:varchar(64);index:idx_tx_customer_time,priority:1"`
	Amount              decimal.Decimal   `json:"amount" gorm:"type:numeric(20,8)"`
	Currency            string            `json:"currency" gorm:"type:char(3)"`
	CounterpartyName    string            `json:"counterparty_name"`
	CounterpartyAccount string            `json:"counterparty_account" gorm:"index"`
	Type                string            `json:"transaction_type" gorm:"type:varchar(16)"`
	Timestamp           time.Time         `json:"timestamp" gorm:"column:occurred_at;index:idx_tx_customer_time,priority:2"`
	Status              TransactionStatus `json:"status" gorm:"type:varchar(16);index"`
	RiskScore           float64           `json:"risk_score"`
	FlaggedReason       string            `json:"flagged_reason,omitempty" gorm:"type:text"`
	AuditHash           string            `json:"audit_hash,omitempty" gorm:"type:varchar(64)"`
	CreatedAt           time.Time         `json:"created_at"`
}

// TableName returns the table name for GORM
func (Transaction) TableName() string {
	return "transactions"
}
