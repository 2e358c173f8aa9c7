// Package dag orders bundles along their wiring dependencies. It is used by
// the container to sequence refresh events and to schedule start-level
// batches across independent dependency branches.
package dag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

type (
	// CycleError indicates that the graph contains a cycle, preventing a
	// strict topological ordering.
	CycleError struct {
		// Cycle contains the nodes left with incoming edges (enough to
		// identify the problem, not necessarily a minimal cycle).
		Cycle []string
	}

	// Graph is a directed graph for topological sorting. An edge from A to B
	// means A must complete before B starts.
	Graph[K comparable] struct {
		// adjacency maps each node to its outgoing neighbors.
		adjacency map[K][]K
		// nodes tracks all nodes in insertion order for deterministic output.
		nodes   []K
		nodeSet map[K]bool
	}
)

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Cycle, " -> "))
}

// New creates an empty Graph.
func New[K comparable]() *Graph[K] {
	return &Graph[K]{
		adjacency: make(map[K][]K),
		nodeSet:   make(map[K]bool),
	}
}

// AddNode adds a node to the graph. If the node already exists, this is a no-op.
func (g *Graph[K]) AddNode(k K) {
	if g.nodeSet[k] {
		return
	}
	g.nodeSet[k] = true
	g.nodes = append(g.nodes, k)
}

// AddEdge adds a directed edge from -> to, meaning "from" must run before "to".
// Both nodes are implicitly added. Self edges are ignored.
func (g *Graph[K]) AddEdge(from, to K) {
	g.AddNode(from)
	g.AddNode(to)
	if from == to {
		return
	}
	for _, n := range g.adjacency[from] {
		if n == to {
			return
		}
	}
	g.adjacency[from] = append(g.adjacency[from], to)
}

// Len returns the number of nodes.
func (g *Graph[K]) Len() int { return len(g.nodes) }

// TopologicalSort returns a valid execution order using Kahn's algorithm.
// Returns CycleError if the graph contains a cycle. Nodes at the same
// topological level appear in the order they were first added.
func (g *Graph[K]) TopologicalSort() ([]K, error) {
	order, stuck := g.kahn(false)
	if len(stuck) > 0 {
		cycle := make([]string, 0, len(stuck))
		for _, k := range stuck {
			cycle = append(cycle, fmt.Sprint(k))
		}
		return nil, &CycleError{Cycle: cycle}
	}
	return order, nil
}

// Order returns a total order that respects every edge not on a cycle.
// Whenever only cyclic nodes remain, the earliest inserted of them is
// released first. Wiring graphs are often cyclic, so callers that must make
// progress use Order rather than TopologicalSort.
func (g *Graph[K]) Order() []K {
	order, _ := g.kahn(true)
	return order
}

func (g *Graph[K]) kahn(breakCycles bool) (order, stuck []K) {
	if len(g.nodes) == 0 {
		return nil, nil
	}
	inDegree := make(map[K]int, len(g.nodes))
	for _, node := range g.nodes {
		inDegree[node] = 0
	}
	for _, neighbors := range g.adjacency {
		for _, n := range neighbors {
			inDegree[n]++
		}
	}

	done := make(map[K]bool, len(g.nodes))
	queue := make([]K, 0)
	for _, node := range g.nodes {
		if inDegree[node] == 0 {
			queue = append(queue, node)
		}
	}
	for len(order) < len(g.nodes) {
		if len(queue) == 0 {
			if !breakCycles {
				break
			}
			for _, node := range g.nodes {
				if !done[node] {
					inDegree[node] = 0
					queue = append(queue, node)
					break
				}
			}
		}
		node := queue[0]
		queue = queue[1:]
		if done[node] {
			continue
		}
		done[node] = true
		order = append(order, node)
		for _, n := range g.adjacency[node] {
			if done[n] {
				continue
			}
			inDegree[n]--
			if inDegree[n] == 0 {
				queue = append(queue, n)
			}
		}
	}
	for _, node := range g.nodes {
		if !done[node] {
			stuck = append(stuck, node)
		}
	}
	return order, stuck
}

// Run calls fn once per node with at most workers calls in flight (no limit
// when workers < 1). A node starts only after every predecessor that comes
// earlier in Order has returned, so nodes on one dependency chain run one at
// a time while independent branches overlap. A failing node does not stop
// the others; all errors are joined. Nodes not yet started when ctx is
// canceled are skipped.
func (g *Graph[K]) Run(ctx context.Context, workers int, fn func(context.Context, K) error) error {
	order := g.Order()
	if len(order) == 0 {
		return nil
	}
	pos := make(map[K]int, len(order))
	for i, k := range order {
		pos[k] = i
	}
	waiting := make(map[K]int, len(order))
	next := make(map[K][]K, len(order))
	for _, from := range order {
		for _, to := range g.adjacency[from] {
			if pos[from] < pos[to] {
				waiting[to]++
				next[from] = append(next[from], to)
			}
		}
	}

	var (
		eg   errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	if workers > 0 {
		eg.SetLimit(workers)
	}
	finished := make(chan K, len(order))
	launch := func(k K) {
		eg.Go(func() error {
			defer func() { finished <- k }()
			if ctx.Err() != nil {
				return nil
			}
			if err := fn(ctx, k); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}

	for _, k := range order {
		if waiting[k] == 0 {
			launch(k)
		}
	}
	for range order {
		k := <-finished
		for _, n := range next[k] {
			waiting[n]--
			if waiting[n] == 0 {
				launch(n)
			}
		}
	}
	_ = eg.Wait()

	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
