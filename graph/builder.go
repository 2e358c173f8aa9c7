package graph

import (
	"slices"

	"github.com/albertocavalcante/go-modrt/resource"
)

// Build constructs a Graph from a wiring.
func Build(w *resource.Wiring) *Graph {
	if w == nil {
		w = resource.EmptyWiring()
	}
	g := &Graph{
		Generation: w.Generation(),
		Nodes:      make(map[Key]*Node, w.Len()),
		wiring:     w,
	}

	// First pass: create all nodes with their outgoing edges.
	for _, rev := range w.Revisions() {
		key := KeyOf(rev)
		node := &Node{
			Key:      key,
			Revision: rev,
			Fragment: rev.IsFragment(),
		}
		for _, wire := range w.RequiredWires(rev, "") {
			provider := KeyOf(wire.Provider)
			node.Wires = append(node.Wires, Edge{
				Namespace:   wire.Namespace(),
				Name:        wire.Capability.Name(),
				Requirer:    key,
				Provider:    provider,
				Requirement: wire.Requirement.String(),
			})
			if provider != key && !slices.Contains(node.Dependencies, provider) {
				node.Dependencies = append(node.Dependencies, provider)
			}
		}
		slices.SortFunc(node.Dependencies, compareKeys)
		if node.Fragment {
			for _, h := range w.Hosts(rev) {
				node.Hosts = append(node.Hosts, KeyOf(h))
			}
		}
		g.Nodes[key] = node
	}

	// Second pass: reverse edges.
	for _, key := range g.keys() {
		for _, dep := range g.Nodes[key].Dependencies {
			if n := g.Nodes[dep]; n != nil {
				n.Dependents = append(n.Dependents, key)
			}
		}
	}
	return g
}

// keys returns the node keys in bundle ID order.
func (g *Graph) keys() []Key {
	out := make([]Key, 0, len(g.Nodes))
	for k := range g.Nodes {
		out = append(out, k)
	}
	slices.SortFunc(out, compareKeys)
	return out
}
