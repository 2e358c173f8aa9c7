// Package resource defines the resolution data model: capabilities,
// requirements, revisions, wires and wirings.
//
// A Revision is an immutable generation of an installed bundle. It declares
// Capabilities (what it provides) and Requirements (what it needs). The
// resolver connects requirements to capabilities with Wires, and groups the
// wires of one consistent resolution into a Wiring.
//
// # Copy-on-write wirings
//
// A Wiring is never mutated after construction. With and Without return a
// new Wiring with a higher generation number, leaving the receiver intact.
// Readers may hold a Wiring for as long as they like without locking:
//
//	w := current.Load()
//	for _, wire := range w.RequiredWires(rev, resource.PackageNamespace) {
//		fmt.Println(wire)
//	}
//
// # Fragments
//
// A fragment revision attaches to a host through a wire in HostNamespace.
// The fragment's package capabilities and requirements are then hosted by
// the host: wires name the host as provider or requirer while pointing at
// the fragment's declared Capability or Requirement.
package resource
