package container

import (
	"context"

	"github.com/albertocavalcante/go-modrt/loader"
	"github.com/albertocavalcante/go-modrt/resource"
)

// BundleContext is a bundle's handle on the container, passed to its
// activator.
type BundleContext struct {
	c *Container
	b *Bundle
}

func (c *Container) contextFor(b *Bundle) *BundleContext {
	return &BundleContext{c: c, b: b}
}

// Context returns a context for b.
func (c *Container) Context(b *Bundle) *BundleContext { return c.contextFor(b) }

// Bundle returns the bundle the context belongs to.
func (bc *BundleContext) Bundle() *Bundle { return bc.b }

// Container returns the owning container.
func (bc *BundleContext) Container() *Container { return bc.c }

// Property returns a framework property.
func (bc *BundleContext) Property(key string) string { return bc.c.cfg.properties[key] }

// Install installs a bundle.
func (bc *BundleContext) Install(ctx context.Context, location string, headers map[string]string, content resource.Content) (*Bundle, error) {
	return bc.c.Install(ctx, location, headers, content)
}

// Bundles returns the installed bundles.
func (bc *BundleContext) Bundles() []*Bundle { return bc.c.Bundles() }

// GetBundle returns the bundle with id, or nil.
func (bc *BundleContext) GetBundle(id int64) *Bundle { return bc.c.Bundle(id) }

// AddBundleListener registers an asynchronous bundle listener.
func (bc *BundleContext) AddBundleListener(l BundleListener) func() {
	return bc.c.AddBundleListener(l)
}

// AddSyncBundleListener registers a synchronous bundle listener.
func (bc *BundleContext) AddSyncBundleListener(l BundleListener) func() {
	return bc.c.AddSyncBundleListener(l)
}

// AddFrameworkListener registers a framework listener.
func (bc *BundleContext) AddFrameworkListener(l FrameworkListener) func() {
	return bc.c.AddFrameworkListener(l)
}

// LoadClass loads a class through the bundle's loader.
func (bc *BundleContext) LoadClass(ctx context.Context, name string) (*loader.Class, error) {
	return bc.c.LoadClass(ctx, bc.b, name)
}

// FindResource finds a resource through the bundle's loader.
func (bc *BundleContext) FindResource(ctx context.Context, path string) (*loader.Resource, error) {
	l, err := bc.c.Loader(ctx, bc.b)
	if err != nil {
		return nil, err
	}
	return l.FindResource(ctx, path)
}
