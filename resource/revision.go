package resource

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/albertocavalcante/go-modrt/version"
)

// RevisionParams describes a revision to construct.
type RevisionParams struct {
	BundleID     int64
	Generation   int64
	Location     string
	SymbolicName string
	Version      version.Version
	Capabilities []*Capability
	Requirements []*Requirement
	Content      Content
	Classpath    []string
	NativeCode   NativeCode
	Activation   Activation
	Activator    string
	Fragment     bool
	Singleton    bool
	MultiRelease bool
	Headers      map[string]string
}

// Revision is an immutable generation of an installed bundle.
type Revision struct {
	bundleID     int64
	generation   int64
	location     string
	symbolicName string
	version      version.Version
	caps         []*Capability
	reqs         []*Requirement
	content      Content
	classpath    []string
	nativeCode   NativeCode
	activation   Activation
	activator    string
	fragment     bool
	singleton    bool
	multiRelease bool
	headers      map[string]string
}

// NewRevision builds a revision. Capabilities and requirements are copied
// and owned by the returned revision.
func NewRevision(p RevisionParams) *Revision {
	r := &Revision{
		bundleID:     p.BundleID,
		generation:   p.Generation,
		location:     p.Location,
		symbolicName: p.SymbolicName,
		version:      p.Version,
		content:      p.Content,
		classpath:    slices.Clone(p.Classpath),
		nativeCode:   p.NativeCode,
		activation:   p.Activation,
		activator:    p.Activator,
		fragment:     p.Fragment,
		singleton:    p.Singleton,
		multiRelease: p.MultiRelease,
		headers:      p.Headers,
	}
	if len(r.classpath) == 0 {
		r.classpath = []string{"."}
	}
	if r.content == nil {
		r.content = MapContent(nil)
	}
	for _, c := range p.Capabilities {
		r.caps = append(r.caps, c.clone(r))
	}
	for _, q := range p.Requirements {
		r.reqs = append(r.reqs, q.clone(r))
	}
	return r
}

func (r *Revision) BundleID() int64 { return r.bundleID }
func (r *Revision) Generation() int64 { return r.generation }
func (r *Revision) Location() string { return r.location }
func (r *Revision) SymbolicName() string { return r.symbolicName }
func (r *Revision) Version() version.Version { return r.version }
func (r *Revision) Content() Content { return r.content }
func (r *Revision) Classpath() []string { return r.classpath }
func (r *Revision) NativeCode() NativeCode { return r.nativeCode }
func (r *Revision) Activation() Activation { return r.activation }
func (r *Revision) Activator() string { return r.activator }
func (r *Revision) IsFragment() bool { return r.fragment }
func (r *Revision) IsSingleton() bool { return r.singleton }
func (r *Revision) IsMultiRelease() bool { return r.multiRelease }
func (r *Revision) Header(name string) string { return r.headers[name] }
func (r *Revision) Headers() map[string]string { return r.headers }

// Capabilities returns declared capabilities in namespace, or all of them
// when namespace is empty.
func (r *Revision) Capabilities(namespace string) []*Capability {
	if namespace == "" {
		return r.caps
	}
	var out []*Capability
	for _, c := range r.caps {
		if c.Namespace == namespace {
			out = append(out, c)
		}
	}
	return out
}

// Requirements returns declared requirements in namespace, or all of them
// when namespace is empty.
func (r *Revision) Requirements(namespace string) []*Requirement {
	if namespace == "" {
		return r.reqs
	}
	var out []*Requirement
	for _, q := range r.reqs {
		if q.Namespace == namespace {
			out = append(out, q)
		}
	}
	return out
}

// Exports returns the names of exported packages in declaration order.
func (r *Revision) Exports() []string {
	var out []string
	for _, c := range r.Capabilities(PackageNamespace) {
		out = append(out, c.Name())
	}
	return out
}

func (r *Revision) String() string {
	return fmt.Sprintf("%s_%s [%d.%d]", r.symbolicName, r.version, r.bundleID, r.generation)
}

// CompareRevisions orders revisions by bundle ID, then generation.
func CompareRevisions(a, b *Revision) int {
	if c := cmp.Compare(a.bundleID, b.bundleID); c != 0 {
		return c
	}
	return cmp.Compare(a.generation, b.generation)
}

// SortRevisions sorts revisions in place by bundle ID and generation.
func SortRevisions(revs []*Revision) {
	slices.SortFunc(revs, CompareRevisions)
}
