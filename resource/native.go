package resource

import (
	"strings"

	"github.com/albertocavalcante/go-modrt/filter"
	"github.com/albertocavalcante/go-modrt/version"
)

// NativeClause is one Bundle-NativeCode clause.
type NativeClause struct {
	Paths           []string
	OSNames         []string
	Processors      []string
	OSVersions      []string
	Languages       []string
	SelectionFilter *filter.Filter
}

// NativeCode is the ordered native-code clause list of a revision. Optional
// is set when the list ends with the "*" wildcard clause.
type NativeCode struct {
	Clauses  []NativeClause
	Optional bool
}

// Empty reports whether the revision declares no native code at all.
func (n NativeCode) Empty() bool {
	return len(n.Clauses) == 0 && !n.Optional
}

// Requirement expresses the clause list as an osgi.native requirement of
// owner with one filter alternative per clause. A clause without any
// matching attribute leaves the requirement unfiltered. A list ending in
// "*" yields an optional requirement.
func (n NativeCode) Requirement(owner *Revision) *Requirement {
	var alts []string
	unconstrained := false
	for _, c := range n.Clauses {
		expr := c.filterString()
		if expr == "" {
			unconstrained = true
			break
		}
		alts = append(alts, expr)
	}
	var f *filter.Filter
	if !unconstrained && len(alts) > 0 {
		expr := alts[0]
		if len(alts) > 1 {
			expr = "(|" + strings.Join(alts, "") + ")"
		}
		f, _ = filter.Parse(expr)
	}
	dirs := map[string]string{}
	if n.Optional {
		dirs[DirectiveResolution] = ResolutionOptional.String()
	}
	return NewRequirement(NativeNamespace, f, nil, dirs).clone(owner)
}

// filterString renders the clause's matching attributes as a conjunction,
// or "" when the clause matches everywhere.
func (c NativeClause) filterString() string {
	var parts []string
	anyOf := func(attr string, values []string) {
		var alts []string
		for _, v := range values {
			alts = append(alts, "("+attr+"~="+nativeEscaper.Replace(v)+")")
		}
		switch len(alts) {
		case 0:
		case 1:
			parts = append(parts, alts[0])
		default:
			parts = append(parts, "(|"+strings.Join(alts, "")+")")
		}
	}
	anyOf(NativeOSName, c.OSNames)
	anyOf(NativeProcessor, c.Processors)
	var ranges []string
	for _, raw := range c.OSVersions {
		if r, err := version.ParseRange(raw); err == nil {
			ranges = append(ranges, r.FilterString(NativeOSVersion))
		}
	}
	switch len(ranges) {
	case 0:
	case 1:
		parts = append(parts, ranges[0])
	default:
		parts = append(parts, "(|"+strings.Join(ranges, "")+")")
	}
	anyOf(NativeLanguage, c.Languages)
	if c.SelectionFilter != nil {
		parts = append(parts, c.SelectionFilter.String())
	}
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	default:
		return "(&" + strings.Join(parts, "") + ")"
	}
}

var nativeEscaper = strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`, `*`, `\*`)

func (c NativeClause) String() string {
	var b strings.Builder
	b.WriteString(strings.Join(c.Paths, ";"))
	for _, os := range c.OSNames {
		b.WriteString(";osname=")
		b.WriteString(os)
	}
	for _, p := range c.Processors {
		b.WriteString(";processor=")
		b.WriteString(p)
	}
	for _, v := range c.OSVersions {
		b.WriteString(";osversion=")
		b.WriteString(v)
	}
	for _, l := range c.Languages {
		b.WriteString(";language=")
		b.WriteString(l)
	}
	if c.SelectionFilter != nil {
		b.WriteString(";selection-filter=")
		b.WriteString(c.SelectionFilter.String())
	}
	return b.String()
}

// Activation is the activation policy of a revision.
type Activation struct {
	Lazy    bool
	Include []string
	Exclude []string
}

// Triggers reports whether loading a class from pkg activates a lazily
// activated revision.
func (a Activation) Triggers(pkg string) bool {
	if !a.Lazy {
		return false
	}
	for _, e := range a.Exclude {
		if e == pkg {
			return false
		}
	}
	if len(a.Include) == 0 {
		return true
	}
	for _, i := range a.Include {
		if i == pkg {
			return true
		}
	}
	return false
}
