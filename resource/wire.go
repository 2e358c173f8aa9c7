package resource

import "fmt"

// Wire connects a requirement of a requirer to a capability of a provider.
// For hosted fragment declarations the requirer or provider is the host
// while Requirement or Capability belongs to the fragment.
type Wire struct {
	Requirer    *Revision
	Requirement *Requirement
	Provider    *Revision
	Capability  *Capability
}

// Namespace returns the wire's namespace.
func (w *Wire) Namespace() string { return w.Capability.Namespace }

func (w *Wire) String() string {
	return fmt.Sprintf("%s -> %s (%s %s)", w.Requirer, w.Provider, w.Capability.Namespace, w.Capability.Name())
}
