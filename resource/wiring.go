package resource

import (
	"maps"
	"slices"
)

// RevisionWiring is the resolved state of one revision within a Wiring.
// Capabilities and Requirements are the effective declarations, which for a
// host include those hosted from attached fragments. Native is the selected
// native code clause, or nil.
type RevisionWiring struct {
	Revision     *Revision
	Required     []*Wire
	Capabilities []*Capability
	Requirements []*Requirement
	Native       *NativeClause
}

// Wiring is an immutable, consistent set of revision wirings for one
// resolution generation.
type Wiring struct {
	generation uint64
	revisions  map[*Revision]*RevisionWiring
	provided   map[*Revision][]*Wire
}

// EmptyWiring returns the generation-zero wiring.
func EmptyWiring() *Wiring {
	return &Wiring{
		revisions: map[*Revision]*RevisionWiring{},
		provided:  map[*Revision][]*Wire{},
	}
}

func newWiring(gen uint64, revs map[*Revision]*RevisionWiring) *Wiring {
	w := &Wiring{generation: gen, revisions: revs, provided: map[*Revision][]*Wire{}}
	for _, rev := range w.Revisions() {
		for _, wire := range revs[rev].Required {
			w.provided[wire.Provider] = append(w.provided[wire.Provider], wire)
		}
	}
	return w
}

// Generation returns the monotonically increasing generation number.
func (w *Wiring) Generation() uint64 { return w.generation }

// Len returns the number of resolved revisions.
func (w *Wiring) Len() int { return len(w.revisions) }

// Get returns the revision wiring of rev, or nil if rev is not resolved.
func (w *Wiring) Get(rev *Revision) *RevisionWiring { return w.revisions[rev] }

// IsResolved reports whether rev is part of this wiring.
func (w *Wiring) IsResolved(rev *Revision) bool {
	_, ok := w.revisions[rev]
	return ok
}

// Revisions returns the resolved revisions ordered by bundle ID.
func (w *Wiring) Revisions() []*Revision {
	revs := slices.Collect(maps.Keys(w.revisions))
	SortRevisions(revs)
	return revs
}

// RequiredWires returns the wires where rev is the requirer, in namespace
// or all namespaces when namespace is empty.
func (w *Wiring) RequiredWires(rev *Revision, namespace string) []*Wire {
	rw := w.revisions[rev]
	if rw == nil {
		return nil
	}
	return filterWires(rw.Required, namespace)
}

// ProvidedWires returns the wires where rev is the provider.
func (w *Wiring) ProvidedWires(rev *Revision, namespace string) []*Wire {
	return filterWires(w.provided[rev], namespace)
}

// Hosts returns the hosts a fragment is attached to.
func (w *Wiring) Hosts(fragment *Revision) []*Revision {
	var out []*Revision
	for _, wire := range w.RequiredWires(fragment, HostNamespace) {
		out = append(out, wire.Provider)
	}
	return out
}

// Fragments returns the fragments attached to host in attachment order.
func (w *Wiring) Fragments(host *Revision) []*Revision {
	var out []*Revision
	for _, wire := range w.ProvidedWires(host, HostNamespace) {
		out = append(out, wire.Requirer)
	}
	return out
}

// Wires returns every wire, grouped by requirer in bundle ID order.
func (w *Wiring) Wires() []*Wire {
	var out []*Wire
	for _, rev := range w.Revisions() {
		out = append(out, w.revisions[rev].Required...)
	}
	return out
}

// With returns a new wiring that adds or replaces the given revision
// wirings.
func (w *Wiring) With(rws ...*RevisionWiring) *Wiring {
	revs := maps.Clone(w.revisions)
	for _, rw := range rws {
		revs[rw.Revision] = rw
	}
	return newWiring(w.generation+1, revs)
}

// Without returns a new wiring with the given revisions removed. Wires of
// remaining revisions that point at removed providers are dropped too.
func (w *Wiring) Without(removed ...*Revision) *Wiring {
	gone := make(map[*Revision]bool, len(removed))
	for _, r := range removed {
		gone[r] = true
	}
	revs := make(map[*Revision]*RevisionWiring, len(w.revisions))
	for rev, rw := range w.revisions {
		if gone[rev] {
			continue
		}
		kept := rw
		if slices.ContainsFunc(rw.Required, func(wire *Wire) bool { return gone[wire.Provider] }) {
			cp := *rw
			cp.Required = slices.DeleteFunc(slices.Clone(rw.Required), func(wire *Wire) bool { return gone[wire.Provider] })
			kept = &cp
		}
		revs[rev] = kept
	}
	return newWiring(w.generation+1, revs)
}

// WithWire returns a new wiring where wire is appended to its requirer's
// required wires. The requirer must already be resolved.
func (w *Wiring) WithWire(wire *Wire) *Wiring {
	rw := w.revisions[wire.Requirer]
	if rw == nil {
		return w
	}
	cp := *rw
	cp.Required = append(slices.Clip(rw.Required), wire)
	return w.With(&cp)
}

func filterWires(wires []*Wire, namespace string) []*Wire {
	if namespace == "" {
		return slices.Clone(wires)
	}
	var out []*Wire
	for _, wire := range wires {
		if wire.Capability.Namespace == namespace {
			out = append(out, wire)
		}
	}
	return out
}
