package graph

import (
	"cmp"
	"slices"

	"github.com/albertocavalcante/go-modrt/resource"
)

// Rewire is a requirement whose provider changed between two wirings.
type Rewire struct {
	Requirer    Key    `json:"-"`
	Namespace   string `json:"namespace"`
	Name        string `json:"name"`
	OldProvider Key    `json:"-"`
	NewProvider Key    `json:"-"`
}

// WiringDiff describes the differences between two wirings.
//
// Typical use is reporting what a refresh changed:
//
//	before := c.Wiring()
//	c.RefreshBundles(ctx, nil)
//	diff := graph.Diff(before, c.Wiring())
type WiringDiff struct {
	// Added contains revisions resolved in new but not in old.
	Added []Key `json:"added,omitempty"`

	// Removed contains revisions resolved in old but not in new.
	Removed []Key `json:"removed,omitempty"`

	// Rewired contains wires of revisions present in both whose provider
	// changed, or that appeared or disappeared. A missing side has a zero
	// Key.
	Rewired []Rewire `json:"rewired,omitempty"`
}

// IsEmpty returns true if the wirings are equivalent.
func (d *WiringDiff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Rewired) == 0
}

// TotalChanges returns the number of added, removed and rewired entries.
func (d *WiringDiff) TotalChanges() int {
	return len(d.Added) + len(d.Removed) + len(d.Rewired)
}

// Diff computes the difference between two wirings. Nil is treated as
// empty. Results are sorted by bundle ID.
func Diff(old, new *resource.Wiring) *WiringDiff {
	if old == nil {
		old = resource.EmptyWiring()
	}
	if new == nil {
		new = resource.EmptyWiring()
	}
	diff := &WiringDiff{}

	for _, rev := range new.Revisions() {
		if !old.IsResolved(rev) {
			diff.Added = append(diff.Added, KeyOf(rev))
			continue
		}
		diff.Rewired = append(diff.Rewired, rewires(rev, old, new)...)
	}
	for _, rev := range old.Revisions() {
		if !new.IsResolved(rev) {
			diff.Removed = append(diff.Removed, KeyOf(rev))
		}
	}
	return diff
}

type wireID struct {
	namespace string
	name      string
}

func rewires(rev *resource.Revision, old, new *resource.Wiring) []Rewire {
	index := func(w *resource.Wiring) map[wireID]*resource.Revision {
		m := make(map[wireID]*resource.Revision)
		for _, wire := range w.RequiredWires(rev, "") {
			id := wireID{wire.Namespace(), wire.Capability.Name()}
			if _, ok := m[id]; !ok {
				m[id] = wire.Provider
			}
		}
		return m
	}
	before, after := index(old), index(new)

	var out []Rewire
	for id, p := range after {
		if q, ok := before[id]; ok && q == p {
			continue
		}
		r := Rewire{Requirer: KeyOf(rev), Namespace: id.namespace, Name: id.name, NewProvider: KeyOf(p)}
		if q := before[id]; q != nil {
			r.OldProvider = KeyOf(q)
		}
		out = append(out, r)
	}
	for id, q := range before {
		if _, ok := after[id]; !ok {
			out = append(out, Rewire{Requirer: KeyOf(rev), Namespace: id.namespace, Name: id.name, OldProvider: KeyOf(q)})
		}
	}
	slices.SortFunc(out, func(a, b Rewire) int {
		return cmp.Or(cmp.Compare(a.Namespace, b.Namespace), cmp.Compare(a.Name, b.Name))
	})
	return out
}
