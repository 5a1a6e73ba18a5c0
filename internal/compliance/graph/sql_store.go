package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// EdgeRecord is the persisted form of a transfer edge
type EdgeRecord struct {
	ID            uuid.UUID       `gorm:"primaryKey;type:uuid"`
	FromNode      string          `gorm:"type:varchar(128);index:idx_edge_from_to,priority:1;not null"`
	ToNode        string          `gorm:"type:varchar(128);index:idx_edge_from_to,priority:2;not null"`
	Amount        decimal.Decimal `gorm:"type:numeric(20,8)"`
	Currency      string          `gorm:"type:char(3)"`
	TransactionID string          `gorm:"type:varchar(64);index"`
	Timestamp     time.Time       `gorm:"column:occurred_at;index;not null"`
	CreatedAt     time.Time
}

// TableName returns the table name for GORM
func (EdgeRecord) TableName() string {
	return "transfer_edges"
}

// SQLStore persists edges in the primary database and runs traversals over a
// snapshot of the edges inside the lookback window.
type SQLStore struct {
	db       *gorm.DB
	lookback time.Duration
	maxEdges int
}

// NewSQLStore creates a store over db. A zero lookback reads every edge.
func NewSQLStore(db *gorm.DB, lookback time.Duration, maxEdges int) *SQLStore {
	if maxEdges <= 0 {
		maxEdges = 100000
	}
	return &SQLStore{db: db, lookback: lookback, maxEdges: maxEdges}
}

// Migrate creates the edge table
func (s *SQLStore) Migrate() error {
	return s.db.AutoMigrate(&EdgeRecord{})
}

func (s *SQLStore) IngestEdge(ctx context.Context, edge Edge) error {
	if edge.From == "" || edge.To == "" {
		return fmt.Errorf("edge requires both endpoints")
	}
	rec := EdgeRecord{
		ID:            uuid.New(),
		FromNode:      edge.From,
		ToNode:        edge.To,
		Amount:        edge.Amount,
		Currency:      edge.Currency,
		TransactionID: edge.TransactionID,
		Timestamp:     edge.Timestamp.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to insert transfer edge: %w", err)
	}
	return nil
}

func (s *SQLStore) FindCycles(ctx context.Context, minHops, maxHops, limit int) ([]Ring, error) {
	adj, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return adj.cycles(ctx, minHops, maxHops, limit)
}

func (s *SQLStore) FindPath(ctx context.Context, from, to string, maxHops int) ([]string, error) {
	adj, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return adj.path(from, to, maxHops), nil
}

func (s *SQLStore) snapshot(ctx context.Context) (*adjacency, error) {
	query := s.db.WithContext(ctx).Model(&EdgeRecord{})
	if s.lookback > 0 {
		query = query.Where("occurred_at >= ?", time.Now().UTC().Add(-s.lookback))
	}

	var records []EdgeRecord
	if err := query.Order("occurred_at DESC").Limit(s.maxEdges).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to load transfer edges: %w", err)
	}

	adj := newAdjacency()
	for _, r := range records {
		adj.add(Edge{
			From:          r.FromNode,
			To:            r.ToNode,
			Amount:        r.Amount,
			Currency:      r.Currency,
			TransactionID: r.TransactionID,
			Timestamp:     r.Timestamp,
		})
	}
	return adj, nil
}
