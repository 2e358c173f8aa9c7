package graph

import (
	"cmp"
	"fmt"
	"strings"

	"github.com/albertocavalcante/go-modrt/resource"
)

// Key identifies a revision in a graph.
type Key struct {
	ID           int64
	Generation   int64
	SymbolicName string
	Version      string
}

// KeyOf returns the key of rev.
func KeyOf(rev *resource.Revision) Key {
	return Key{
		ID:           rev.BundleID(),
		Generation:   rev.Generation(),
		SymbolicName: rev.SymbolicName(),
		Version:      rev.Version().String(),
	}
}

// String returns "name_version [id]" with ".gen" appended for updated
// revisions.
func (k Key) String() string {
	s := fmt.Sprintf("%s_%s [%d]", k.SymbolicName, k.Version, k.ID)
	if k.Generation > 0 {
		s = fmt.Sprintf("%s_%s [%d.%d]", k.SymbolicName, k.Version, k.ID, k.Generation)
	}
	return s
}

func compareKeys(a, b Key) int {
	return cmp.Or(cmp.Compare(a.ID, b.ID), cmp.Compare(a.Generation, b.Generation))
}

// Graph is a read-only view of a wiring. Edges run from a requirer to its
// providers.
type Graph struct {
	// Generation is the wiring generation the graph was built from.
	Generation uint64

	// Nodes contains all resolved revisions.
	Nodes map[Key]*Node

	wiring *resource.Wiring
}

// Node is one resolved revision.
type Node struct {
	Key      Key
	Revision *resource.Revision

	// Dependencies are the providers this revision is wired to, sorted and
	// without duplicates.
	Dependencies []Key

	// Dependents are the revisions wired to this one.
	Dependents []Key

	// Wires are the revision's required wires.
	Wires []Edge

	// Fragment is true for fragments; Hosts lists where they attach.
	Fragment bool
	Hosts    []Key
}

// Edge is one wire.
type Edge struct {
	Namespace string `json:"namespace"`
	// Name is the package, bundle or host name the wire satisfies.
	Name     string `json:"name"`
	Requirer Key    `json:"-"`
	Provider Key    `json:"-"`
	// Requirement is the requirement as declared.
	Requirement string `json:"requirement,omitempty"`
}

// Explanation says why a requirer is wired to a provider for a package.
type Explanation struct {
	Package  string
	Requirer Key
	Provider Key

	// Version is the version of the exported package.
	Version string

	// Requirement is the requirement that produced the wire.
	Requirement string

	// Dynamic is true for wires added by dynamic import.
	Dynamic bool

	// Uses lists the packages the provider's export constrains.
	Uses []string

	// Alternatives are other resolved revisions exporting the package.
	Alternatives []Key
}

// String renders a one-line summary.
func (e Explanation) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s imports %s %s from %s", e.Requirer, e.Package, e.Version, e.Provider)
	if e.Dynamic {
		b.WriteString(" (dynamic)")
	}
	return b.String()
}

// Stats summarizes a graph.
type Stats struct {
	Revisions int
	Wires     int
	Fragments int
	// MaxDepth is the longest acyclic chain of providers.
	MaxDepth int
	Cycles   int
}
