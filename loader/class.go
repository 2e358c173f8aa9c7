package loader

import (
	"strings"

	"github.com/albertocavalcante/go-modrt/resource"
)

// ClassSuffix is the entry suffix of class bytes.
const ClassSuffix = ".class"

// Class is a class defined by a Loader. Two classes are the same type only
// if they are the same *Class.
type Class struct {
	name   string
	bytes  []byte
	source *Resource
	loader *Loader
}

// Name returns the fully qualified class name.
func (c *Class) Name() string { return c.name }

// Bytes returns the defined, possibly woven, class bytes.
func (c *Class) Bytes() []byte { return c.bytes }

// Source returns the resource the class was read from.
func (c *Class) Source() *Resource { return c.source }

// Loader returns the defining loader.
func (c *Class) Loader() *Loader { return c.loader }

// Revision returns the revision of the defining loader.
func (c *Class) Revision() *resource.Revision { return c.loader.rev }

// Generation returns the wiring generation of the defining loader.
func (c *Class) Generation() uint64 { return c.loader.gen }

func (c *Class) String() string {
	return c.name + " (" + c.loader.rev.String() + ")"
}

// Resource is an entry found on a class path.
type Resource struct {
	// Path is the logical path that was requested.
	Path string
	// Entry is the physical entry read, which differs from Path when a
	// multi-release overlay was selected.
	Entry string
	// Classpath is the Bundle-ClassPath entry that holds the resource.
	Classpath string
	// Revision owns the content, which is a fragment for fragment entries.
	Revision *resource.Revision

	content resource.Content
	owner   *Loader
}

// Read returns the resource bytes.
func (r *Resource) Read() ([]byte, error) {
	return r.content.ReadFile(r.Entry)
}

func (r *Resource) String() string {
	return r.Revision.String() + "!" + r.Classpath + "!" + r.Entry
}

// ClassPath returns the resource path of a class name.
func ClassPath(name string) string {
	return strings.ReplaceAll(name, ".", "/") + ClassSuffix
}

// PackageOf returns the package of a class name, empty for the default
// package.
func PackageOf(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return name[:i]
}

// ResourcePackage returns the package a resource path belongs to.
func ResourcePackage(path string) string {
	path = strings.TrimPrefix(path, "/")
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return ""
	}
	return strings.ReplaceAll(path[:i], "/", ".")
}
