// Package graph models transfers as a directed graph and finds short
// round-trip cycles in it.
package graph

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Edge is one transfer between two graph nodes
type Edge struct {
	From          string          `json:"from"`
	To            string          `json:"to"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Ring is a closed path. Path[0] == Path[len(Path)-1] and Amounts[i] is the
// amount on the edge Path[i] -> Path[i+1].
type Ring struct {
	Path    []string          `json:"path"`
	Amounts []decimal.Decimal `json:"amounts"`
	Hops    int               `json:"hops"`
}

// Store is the graph backend
type Store interface {
	IngestEdge(ctx context.Context, edge Edge) error
	FindCycles(ctx context.Context, minHops, maxHops, limit int) ([]Ring, error)
	FindPath(ctx context.Context, from, to string, maxHops int) ([]string, error)
}
