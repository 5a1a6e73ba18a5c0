package graph

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps the whole transfer graph in process
type MemoryStore struct {
	mu  sync.RWMutex
	adj *adjacency
}

// NewMemoryStore creates an empty in-memory graph
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{adj: newAdjacency()}
}

func (s *MemoryStore) IngestEdge(_ context.Context, edge Edge) error {
	if edge.From == "" || edge.To == "" {
		return fmt.Errorf("edge requires both endpoints")
	}
	s.mu.Lock()
	s.adj.add(edge)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) FindCycles(ctx context.Context, minHops, maxHops, limit int) ([]Ring, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.adj.cycles(ctx, minHops, maxHops, limit)
}

func (s *MemoryStore) FindPath(_ context.Context, from, to string, maxHops int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.adj.path(from, to, maxHops), nil
}

// EdgeCount returns the number of distinct directed edges
func (s *MemoryStore) EdgeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.adj.edgeCount()
}
