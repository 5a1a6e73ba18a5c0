package graph

import (
	"context"

	"github.com/tidwall/btree"
)

// adjacency keeps nodes and their neighbours in key order so that traversal
// output is stable across runs. Parallel edges collapse to the latest one.
type adjacency struct {
	nodes *btree.Map[string, *btree.Map[string, Edge]]
}

func newAdjacency() *adjacency {
	return &adjacency{nodes: btree.NewMap[string, *btree.Map[string, Edge]](32)}
}

func (a *adjacency) add(edge Edge) {
	out, ok := a.nodes.Get(edge.From)
	if !ok {
		out = btree.NewMap[string, Edge](32)
		a.nodes.Set(edge.From, out)
	}
	if prev, ok := out.Get(edge.To); ok && prev.Timestamp.After(edge.Timestamp) {
		return
	}
	out.Set(edge.To, edge)

	if _, ok := a.nodes.Get(edge.To); !ok {
		a.nodes.Set(edge.To, btree.NewMap[string, Edge](32))
	}
}

func (a *adjacency) edgeCount() int {
	n := 0
	a.nodes.Scan(func(_ string, out *btree.Map[string, Edge]) bool {
		n += out.Len()
		return true
	})
	return n
}

func (a *adjacency) neighbours(node string) []Edge {
	out, ok := a.nodes.Get(node)
	if !ok {
		return nil
	}
	edges := make([]Edge, 0, out.Len())
	out.Scan(func(_ string, e Edge) bool {
		edges = append(edges, e)
		return true
	})
	return edges
}

// cycles enumerates simple cycles with minHops..maxHops edges. Each cycle is
// reported once, rotated so that it starts at its smallest node.
func (a *adjacency) cycles(ctx context.Context, minHops, maxHops, limit int) ([]Ring, error) {
	var starts []string
	a.nodes.Scan(func(node string, _ *btree.Map[string, Edge]) bool {
		starts = append(starts, node)
		return true
	})

	rings := make([]Ring, 0)
	for _, start := range starts {
		if err := ctx.Err(); err != nil {
			return rings, err
		}
		path := []string{start}
		edges := make([]Edge, 0, maxHops)
		onPath := map[string]bool{start: true}

		var walk func(node string) bool
		walk = func(node string) bool {
			for _, e := range a.neighbours(node) {
				hops := len(edges) + 1
				if e.To == start {
					if hops >= minHops {
						rings = append(rings, buildRing(path, append(edges, e)))
						if limit > 0 && len(rings) >= limit {
							return false
						}
					}
					continue
				}
				// Only visit nodes greater than start so each cycle is found
				// from its minimum node only.
				if e.To < start || onPath[e.To] || hops >= maxHops {
					continue
				}
				onPath[e.To] = true
				path = append(path, e.To)
				edges = append(edges, e)
				more := walk(e.To)
				edges = edges[:len(edges)-1]
				path = path[:len(path)-1]
				delete(onPath, e.To)
				if !more {
					return false
				}
			}
			return true
		}

		if !walk(start) {
			break
		}
	}
	return rings, nil
}

func buildRing(path []string, edges []Edge) Ring {
	ring := Ring{
		Path: make([]string, 0, len(path)+1),
		Hops: len(edges),
	}
	ring.Path = append(ring.Path, path...)
	ring.Path = append(ring.Path, path[0])
	for _, e := range edges {
		ring.Amounts = append(ring.Amounts, e.Amount)
	}
	return ring
}

// path returns the shortest path from -> to with at most maxHops edges, or nil
func (a *adjacency) path(from, to string, maxHops int) []string {
	if from == to || maxHops <= 0 {
		return nil
	}
	if _, ok := a.nodes.Get(from); !ok {
		return nil
	}

	parent := map[string]string{from: ""}
	frontier := []string{from}
	for depth := 0; depth < maxHops && len(frontier) > 0; depth++ {
		var next []string
		for _, node := range frontier {
			for _, e := range a.neighbours(node) {
				if _, seen := parent[e.To]; seen {
					continue
				}
				parent[e.To] = node
				if e.To == to {
					return unwind(parent, from, to)
				}
				next = append(next, e.To)
			}
		}
		frontier = next
	}
	return nil
}

func unwind(parent map[string]string, from, to string) []string {
	var rev []string
	for n := to; n != from; n = parent[n] {
		rev = append(rev, n)
	}
	rev = append(rev, from)
	out := make([]string, len(rev))
	for i := range rev {
		out[i] = rev[len(rev)-1-i]
	}
	return out
}
