package resource

import (
	"maps"
	"strings"

	"github.com/albertocavalcante/go-modrt/filter"
)

// Requirement is a declared need of a revision.
type Requirement struct {
	Namespace   string
	Filter      *filter.Filter
	Attributes  map[string]any
	Directives  map[string]string
	Resolution  Resolution
	Cardinality Cardinality

	revision *Revision
}

// NewRequirement returns an unowned requirement. The resolution and
// cardinality fields are derived from the directives.
func NewRequirement(namespace string, f *filter.Filter, attrs map[string]any, dirs map[string]string) *Requirement {
	if attrs == nil {
		attrs = map[string]any{}
	}
	if dirs == nil {
		dirs = map[string]string{}
	}
	r := &Requirement{Namespace: namespace, Filter: f, Attributes: attrs, Directives: dirs}
	switch dirs[DirectiveResolution] {
	case "optional":
		r.Resolution = ResolutionOptional
	case "dynamic":
		r.Resolution = ResolutionDynamic
	}
	if dirs[DirectiveCardinality] == "multiple" {
		r.Cardinality = CardinalityMultiple
	}
	return r
}

// Revision returns the declaring revision.
func (r *Requirement) Revision() *Revision { return r.revision }

// Name returns the namespace-named attribute: the imported package name,
// dynamic import pattern, or required symbolic name.
func (r *Requirement) Name() string {
	s, _ := r.Attributes[r.Namespace].(string)
	return s
}

// Optional reports whether resolution may proceed without a wire.
func (r *Requirement) Optional() bool { return r.Resolution == ResolutionOptional }

// Dynamic reports whether this is a dynamic package import.
func (r *Requirement) Dynamic() bool { return r.Resolution == ResolutionDynamic }

// Reexport reports whether a require-bundle requirement re-exports the
// required bundle's packages.
func (r *Requirement) Reexport() bool {
	return r.Directives[DirectiveVisibility] == "reexport"
}

// Effective reports whether the requirement participates in resolution.
func (r *Requirement) Effective() bool {
	e := r.Directives[DirectiveEffective]
	return e == "" || e == "resolve"
}

// Matches reports whether c satisfies r: same namespace, filter match, and
// every mandatory attribute of c referenced by the filter.
func (r *Requirement) Matches(c *Capability) bool {
	if c.Namespace != r.Namespace {
		return false
	}
	if r.Filter != nil && !r.Filter.Matches(c.Attributes) {
		return false
	}
	if mandatory := c.Mandatory(); len(mandatory) > 0 {
		referenced := map[string]bool{}
		filterAttributes(r.Filter, referenced)
		for _, attr := range mandatory {
			if !referenced[attr] {
				return false
			}
		}
	}
	return true
}

// MatchesPackage reports whether a dynamic import pattern covers pkg.
// Patterns are "*", a package name, or a "prefix.*" wildcard.
func (r *Requirement) MatchesPackage(pkg string) bool {
	pattern := r.Name()
	switch {
	case pattern == "*":
		return true
	case strings.HasSuffix(pattern, ".*"):
		return strings.HasPrefix(pkg, strings.TrimSuffix(pattern, "*"))
	default:
		return pattern == pkg
	}
}

func (r *Requirement) clone(owner *Revision) *Requirement {
	c := *r
	c.Attributes = maps.Clone(r.Attributes)
	c.Directives = maps.Clone(r.Directives)
	c.revision = owner
	return &c
}

func (r *Requirement) String() string {
	var b strings.Builder
	b.WriteString(r.Namespace)
	if r.Filter != nil {
		b.WriteString("; filter:=")
		b.WriteString(r.Filter.String())
	}
	if r.Resolution != ResolutionMandatory {
		b.WriteString("; resolution:=")
		b.WriteString(r.Resolution.String())
	}
	return b.String()
}
