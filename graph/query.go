package graph

import (
	"fmt"
	"slices"

	"github.com/albertocavalcante/go-modrt/resource"
)

// Get returns the node for a key, or nil if not found.
func (g *Graph) Get(key Key) *Node {
	return g.Nodes[key]
}

// GetByName returns the nodes with the given symbolic name in key order.
func (g *Graph) GetByName(name string) []*Node {
	var out []*Node
	for _, k := range g.keys() {
		if k.SymbolicName == name {
			out = append(out, g.Nodes[k])
		}
	}
	return out
}

// Contains returns true if the graph contains the given revision.
func (g *Graph) Contains(key Key) bool {
	_, ok := g.Nodes[key]
	return ok
}

// DirectDeps returns the providers a revision is wired to.
func (g *Graph) DirectDeps(key Key) []Key {
	if node := g.Nodes[key]; node != nil {
		return node.Dependencies
	}
	return nil
}

// DirectDependents returns the revisions wired to the given one.
func (g *Graph) DirectDependents(key Key) []Key {
	if node := g.Nodes[key]; node != nil {
		return node.Dependents
	}
	return nil
}

// TransitiveDeps returns all transitive providers of a revision in
// breadth-first order.
func (g *Graph) TransitiveDeps(key Key) []Key {
	return g.walk(key, func(n *Node) []Key { return n.Dependencies })
}

// TransitiveDependents returns every revision that transitively depends on
// the given one, closest first. Attached fragments are dependents of their
// host. This is the set a refresh of the revision has to touch.
func (g *Graph) TransitiveDependents(key Key) []Key {
	return g.walk(key, func(n *Node) []Key { return n.Dependents })
}

func (g *Graph) walk(key Key, next func(*Node) []Key) []Key {
	result := make([]Key, 0)
	visited := map[Key]bool{key: true}
	queue := []Key{key}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		node := g.Nodes[current]
		if node == nil {
			continue
		}
		for _, k := range next(node) {
			if !visited[k] {
				visited[k] = true
				result = append(result, k)
				queue = append(queue, k)
			}
		}
	}
	return result
}

// Path finds the shortest chain of wires from one revision to a provider.
// Returns nil if no path exists.
func (g *Graph) Path(from, to Key) []Key {
	if from == to {
		return []Key{from}
	}

	type queueItem struct {
		key  Key
		path []Key
	}
	visited := map[Key]bool{from: true}
	queue := []queueItem{{key: from, path: []Key{from}}}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		node := g.Nodes[current.key]
		if node == nil {
			continue
		}
		for _, dep := range node.Dependencies {
			path := append(slices.Clip(current.path), dep)
			if dep == to {
				return path
			}
			if !visited[dep] {
				visited[dep] = true
				queue = append(queue, queueItem{key: dep, path: path})
			}
		}
	}
	return nil
}

// AllPaths finds all acyclic wire chains from one revision to another.
// This can be expensive for large graphs with many paths.
func (g *Graph) AllPaths(from, to Key) [][]Key {
	var result [][]Key
	g.findAllPaths(from, to, []Key{from}, make(map[Key]bool), &result)
	return result
}

func (g *Graph) findAllPaths(current, target Key, path []Key, visited map[Key]bool, result *[][]Key) {
	if current == target {
		*result = append(*result, slices.Clone(path))
		return
	}

	visited[current] = true
	defer func() { visited[current] = false }()

	node := g.Nodes[current]
	if node == nil {
		return
	}
	for _, dep := range node.Dependencies {
		if !visited[dep] {
			g.findAllPaths(dep, target, append(path, dep), visited, result)
		}
	}
}

// Explain returns why each requirer of pkg is wired to its provider.
func (g *Graph) Explain(pkg string) ([]Explanation, error) {
	var out []Explanation
	for _, k := range g.keys() {
		node := g.Nodes[k]
		for _, wire := range g.wiring.RequiredWires(node.Revision, resource.PackageNamespace) {
			if wire.Capability.Name() != pkg {
				continue
			}
			provider := KeyOf(wire.Provider)
			out = append(out, Explanation{
				Package:      pkg,
				Requirer:     k,
				Provider:     provider,
				Version:      wire.Capability.Version().String(),
				Requirement:  wire.Requirement.String(),
				Dynamic:      wire.Requirement.Dynamic(),
				Uses:         wire.Capability.Uses(),
				Alternatives: g.exporters(pkg, provider),
			})
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("package %q is not wired in generation %d", pkg, g.Generation)
	}
	return out, nil
}

// exporters returns resolved revisions exporting pkg other than except.
func (g *Graph) exporters(pkg string, except Key) []Key {
	var out []Key
	for _, k := range g.keys() {
		if k == except {
			continue
		}
		rw := g.wiring.Get(g.Nodes[k].Revision)
		if rw == nil {
			continue
		}
		for _, c := range rw.Capabilities {
			if c.Namespace == resource.PackageNamespace && c.Name() == pkg {
				out = append(out, k)
				break
			}
		}
	}
	return out
}

// Stats returns statistics about the graph.
func (g *Graph) Stats() Stats {
	stats := Stats{
		Revisions: len(g.Nodes),
		Cycles:    len(g.FindCycles()),
	}
	for _, node := range g.Nodes {
		stats.Wires += len(node.Wires)
		if node.Fragment {
			stats.Fragments++
		}
	}
	for _, k := range g.Roots() {
		stats.MaxDepth = max(stats.MaxDepth, g.depth(k))
	}
	return stats
}

func (g *Graph) depth(root Key) int {
	depths := make(map[Key]int)
	onPath := make(map[Key]bool)
	var maxDepth int

	var dfs func(key Key, depth int)
	dfs = func(key Key, depth int) {
		// A node already on the current path closes a cycle.
		if onPath[key] {
			return
		}
		if existing, ok := depths[key]; ok && existing >= depth {
			return
		}
		depths[key] = depth
		maxDepth = max(maxDepth, depth)

		node := g.Nodes[key]
		if node == nil {
			return
		}
		onPath[key] = true
		for _, dep := range node.Dependencies {
			dfs(dep, depth+1)
		}
		delete(onPath, key)
	}
	dfs(root, 0)
	return maxDepth
}

// Roots returns revisions nothing is wired to, in key order.
func (g *Graph) Roots() []Key {
	var roots []Key
	for _, k := range g.keys() {
		if len(g.Nodes[k].Dependents) == 0 {
			roots = append(roots, k)
		}
	}
	return roots
}

// Leaves returns revisions without wires, in key order.
func (g *Graph) Leaves() []Key {
	var leaves []Key
	for _, k := range g.keys() {
		if len(g.Nodes[k].Dependencies) == 0 {
			leaves = append(leaves, k)
		}
	}
	return leaves
}

// HasCycles returns true if the graph contains cycles.
func (g *Graph) HasCycles() bool {
	return len(g.FindCycles()) > 0
}

// FindCycles returns the cycles found by a depth-first walk in key order.
// Package wiring is often cyclic; cycles are legal.
func (g *Graph) FindCycles() [][]Key {
	var cycles [][]Key
	visited := make(map[Key]bool)
	recStack := make(map[Key]bool)
	path := make([]Key, 0)

	var find func(key Key)
	find = func(key Key) {
		visited[key] = true
		recStack[key] = true
		path = append(path, key)

		if node := g.Nodes[key]; node != nil {
			for _, dep := range node.Dependencies {
				if !visited[dep] {
					find(dep)
				} else if recStack[dep] {
					if i := slices.Index(path, dep); i >= 0 {
						cycles = append(cycles, slices.Clone(path[i:]))
					}
				}
			}
		}

		path = path[:len(path)-1]
		recStack[key] = false
	}

	for _, k := range g.keys() {
		if !visited[k] {
			find(k)
		}
	}
	return cycles
}
