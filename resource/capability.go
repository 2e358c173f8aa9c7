package resource

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/albertocavalcante/go-modrt/filter"
	"github.com/albertocavalcante/go-modrt/version"
)

// Capability is a declared provision of a revision.
type Capability struct {
	Namespace  string
	Attributes map[string]any
	Directives map[string]string

	revision *Revision
}

// NewCapability returns an unowned capability. Ownership is assigned when
// the capability is passed to NewRevision.
func NewCapability(namespace string, attrs map[string]any, dirs map[string]string) *Capability {
	if attrs == nil {
		attrs = map[string]any{}
	}
	if dirs == nil {
		dirs = map[string]string{}
	}
	return &Capability{Namespace: namespace, Attributes: attrs, Directives: dirs}
}

// Revision returns the declaring revision.
func (c *Capability) Revision() *Revision { return c.revision }

// Name returns the namespace-named attribute, e.g. the package name of a
// package capability or the symbolic name of a bundle capability.
func (c *Capability) Name() string {
	s, _ := c.Attributes[c.Namespace].(string)
	return s
}

// Version returns the capability version. Bundle and host capabilities use
// bundle-version; everything else uses version.
func (c *Capability) Version() version.Version {
	key := AttrVersion
	if c.Namespace == BundleNamespace || c.Namespace == HostNamespace {
		key = AttrBundleVersion
	}
	v, _ := c.Attributes[key].(version.Version)
	return v
}

// Uses returns the package names listed in the uses directive.
func (c *Capability) Uses() []string {
	return splitList(c.Directives[DirectiveUses])
}

// Mandatory returns the attribute names a requirement must mention.
func (c *Capability) Mandatory() []string {
	return splitList(c.Directives[DirectiveMandatory])
}

// Effective reports whether the capability participates in resolution.
func (c *Capability) Effective() bool {
	e := c.Directives[DirectiveEffective]
	return e == "" || e == "resolve"
}

func (c *Capability) clone(owner *Revision) *Capability {
	return &Capability{
		Namespace:  c.Namespace,
		Attributes: maps.Clone(c.Attributes),
		Directives: maps.Clone(c.Directives),
		revision:   owner,
	}
}

func (c *Capability) String() string {
	var b strings.Builder
	b.WriteString(c.Namespace)
	if name := c.Name(); name != "" {
		b.WriteString("; ")
		b.WriteString(name)
	}
	keys := slices.Sorted(maps.Keys(c.Attributes))
	for _, k := range keys {
		if k == c.Namespace {
			continue
		}
		fmt.Fprintf(&b, "; %s=%v", k, c.Attributes[k])
	}
	if c.revision != nil {
		b.WriteString(" [")
		b.WriteString(c.revision.String())
		b.WriteString("]")
	}
	return b.String()
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// filterAttributes collects every attribute name referenced by f.
func filterAttributes(f *filter.Filter, into map[string]bool) {
	if f == nil {
		return
	}
	switch f.Op() {
	case filter.OpAnd, filter.OpOr, filter.OpNot:
		for _, c := range f.Children() {
			filterAttributes(c, into)
		}
	default:
		into[f.Attribute()] = true
	}
}
