package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const separatorWidth = 60 // Width of separator lines in text output

// WiringJSON is the JSON form of a graph.
type WiringJSON struct {
	Generation uint64         `json:"generation"`
	Revisions  []RevisionJSON `json:"revisions"`
}

// RevisionJSON is one revision in WiringJSON.
type RevisionJSON struct {
	Key          string     `json:"key"`
	ID           int64      `json:"id"`
	Generation   int64      `json:"generation,omitempty"`
	SymbolicName string     `json:"symbolicName"`
	Version      string     `json:"version"`
	Fragment     bool       `json:"fragment,omitempty"`
	Hosts        []string   `json:"hosts,omitempty"`
	Wires        []WireJSON `json:"wires,omitempty"`
}

// WireJSON is one wire in WiringJSON.
type WireJSON struct {
	Namespace   string `json:"namespace"`
	Name        string `json:"name"`
	Provider    string `json:"provider"`
	Requirement string `json:"requirement,omitempty"`
}

// ToJSON outputs the graph as indented JSON in bundle ID order.
func (g *Graph) ToJSON() ([]byte, error) {
	out := WiringJSON{Generation: g.Generation, Revisions: make([]RevisionJSON, 0, len(g.Nodes))}
	for _, k := range g.keys() {
		node := g.Nodes[k]
		rj := RevisionJSON{
			Key:          k.String(),
			ID:           k.ID,
			Generation:   k.Generation,
			SymbolicName: k.SymbolicName,
			Version:      k.Version,
			Fragment:     node.Fragment,
		}
		for _, h := range node.Hosts {
			rj.Hosts = append(rj.Hosts, h.String())
		}
		for _, e := range node.Wires {
			rj.Wires = append(rj.Wires, WireJSON{
				Namespace:   e.Namespace,
				Name:        e.Name,
				Provider:    e.Provider.String(),
				Requirement: e.Requirement,
			})
		}
		out.Revisions = append(out.Revisions, rj)
	}
	return json.MarshalIndent(out, "", "  ")
}

// ToDOT outputs the graph in Graphviz DOT format. Edges are labeled with
// the wired name; fragments are dashed.
func (g *Graph) ToDOT() string {
	var buf bytes.Buffer

	buf.WriteString("digraph wiring {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  node [shape=box];\n\n")

	keys := g.keys()
	for _, k := range keys {
		label := fmt.Sprintf("%s\\n%s [%d]", k.SymbolicName, k.Version, k.ID)
		attrs := fmt.Sprintf(`label="%s"`, label) //nolint:gocritic // DOT format requires this quote style
		if g.Nodes[k].Fragment {
			attrs += ", style=dashed"
		}
		fmt.Fprintf(&buf, "  %q [%s];\n", k.String(), attrs)
	}

	buf.WriteString("\n")

	for _, k := range keys {
		for _, e := range g.Nodes[k].Wires {
			fmt.Fprintf(&buf, "  %q -> %q [label=%q];\n", k.String(), e.Provider.String(), e.Name)
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

// ToText outputs a human-readable listing of every revision and its wires.
func (g *Graph) ToText() string {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Wiring (generation %d)\n", g.Generation)
	buf.WriteString(strings.Repeat("=", separatorWidth) + "\n\n")

	stats := g.Stats()
	fmt.Fprintf(&buf, "Revisions: %d\n", stats.Revisions)
	fmt.Fprintf(&buf, "Wires: %d\n", stats.Wires)
	if stats.Fragments > 0 {
		fmt.Fprintf(&buf, "Fragments: %d\n", stats.Fragments)
	}
	fmt.Fprintf(&buf, "Max depth: %d\n", stats.MaxDepth)
	if stats.Cycles > 0 {
		fmt.Fprintf(&buf, "Cycles: %d\n", stats.Cycles)
	}
	buf.WriteString("\n")

	for _, k := range g.keys() {
		node := g.Nodes[k]
		buf.WriteString(k.String())
		if node.Fragment {
			buf.WriteString(" (fragment)")
		}
		buf.WriteString("\n")
		for i, e := range node.Wires {
			connector := "├── "
			if i == len(node.Wires)-1 {
				connector = "└── "
			}
			fmt.Fprintf(&buf, "%s%s %s -> %s\n", connector, shortNamespace(e.Namespace), e.Name, e.Provider)
		}
	}
	return buf.String()
}

// ToExplainText outputs a human-readable explanation for a package.
func (g *Graph) ToExplainText(pkg string) (string, error) {
	explanations, err := g.Explain(pkg)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Explanation for package: %s\n", pkg)
	buf.WriteString(strings.Repeat("=", separatorWidth) + "\n")

	for _, e := range explanations {
		fmt.Fprintf(&buf, "\n%s\n", e.Requirer)
		fmt.Fprintf(&buf, "  Wired to: %s (version %s)\n", e.Provider, e.Version)
		fmt.Fprintf(&buf, "  Requirement: %s\n", e.Requirement)
		if e.Dynamic {
			buf.WriteString("  Added by dynamic import\n")
		}
		if len(e.Uses) > 0 {
			fmt.Fprintf(&buf, "  Uses: %s\n", strings.Join(e.Uses, ", "))
		}
		if len(e.Alternatives) > 0 {
			alts := make([]string, len(e.Alternatives))
			for i, a := range e.Alternatives {
				alts[i] = a.String()
			}
			fmt.Fprintf(&buf, "  Other exporters: %s\n", strings.Join(alts, ", "))
		}
	}
	return buf.String(), nil
}

func shortNamespace(ns string) string {
	if i := strings.LastIndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
