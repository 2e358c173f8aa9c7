package container

import (
	"context"
	"fmt"
	"iter"

	"github.com/albertocavalcante/go-modrt/loader"
	"github.com/albertocavalcante/go-modrt/resolver"
	"github.com/albertocavalcante/go-modrt/resource"
)

var _ loader.Env = (*Container)(nil)

// LoaderFor returns the loader of a resolved revision, creating it on first
// use. Loaders are dropped when their revision leaves the wiring.
func (c *Container) LoaderFor(rev *resource.Revision) (*loader.Loader, error) {
	c.loaderMu.Lock()
	defer c.loaderMu.Unlock()
	if l := c.loaders[rev]; l != nil && !l.IsStale() {
		return l, nil
	}
	l, err := loader.New(rev, c.wiring.Load(), c, c.loaderOptions(rev)...)
	if err != nil {
		return nil, err
	}
	c.loaders[rev] = l
	return l, nil
}

func (c *Container) loaderOptions(rev *resource.Revision) []loader.Option {
	opts := []loader.Option{
		loader.WithLogger(c.log),
		loader.WithRuntimeVersion(c.cfg.runtimeVersion),
		loader.WithLazyActivation(c.lazyActivate),
	}
	if len(c.cfg.weaving) > 0 {
		opts = append(opts, loader.WithWeavingHooks(c.cfg.weaving...))
	}
	if len(c.cfg.bootDelegation) > 0 {
		opts = append(opts, loader.WithBootDelegation(c.cfg.bootDelegation...))
	}
	switch {
	case c.cfg.parent != nil:
		opts = append(opts, loader.WithParent(c.cfg.parent))
	case c.system != nil && rev != c.system.Revision():
		opts = append(opts, loader.WithParent(systemParent{c}))
	}
	return opts
}

func (c *Container) dropLoaders(revs ...*resource.Revision) {
	c.loaderMu.Lock()
	defer c.loaderMu.Unlock()
	for _, rev := range revs {
		if l := c.loaders[rev]; l != nil {
			l.Retire()
		}
		delete(c.loaders, rev)
	}
}

// Loader returns the loader of b's current revision, resolving b first if
// needed.
func (c *Container) Loader(ctx context.Context, b *Bundle) (*loader.Loader, error) {
	if err := c.checkLive(b); err != nil {
		return nil, err
	}
	if b.IsFragment() {
		return nil, fmt.Errorf("%s: %w", b, loader.ErrNotResolved)
	}
	if b.State() == Installed {
		if _, rep, err := c.resolve(ctx, []*resource.Revision{b.Revision()}); err != nil {
			return nil, err
		} else if rep != nil {
			return nil, fmt.Errorf("%s: %w", b, rep)
		}
	}
	return c.LoaderFor(b.Revision())
}

// LoadClass loads name through b's loader.
func (c *Container) LoadClass(ctx context.Context, b *Bundle, name string) (*loader.Class, error) {
	l, err := c.Loader(ctx, b)
	if err != nil {
		return nil, err
	}
	return l.LoadClass(ctx, name)
}

// ResolveDynamic wires a dynamic import of pkg for rev and publishes the
// extended wiring. It returns a nil wire when no provider matches.
func (c *Container) ResolveDynamic(ctx context.Context, rev *resource.Revision, pkg string, patterns []string) (*resource.Wire, error) {
	c.resolveMu.Lock()
	existing := c.wiring.Load()
	w, wire, err := c.res.ResolveDynamic(ctx, resolver.DynamicRequest{
		Requirer:   rev,
		Package:    pkg,
		Patterns:   patterns,
		Existing:   existing,
		Installed:  c.installedRevisions(),
		Properties: c.cfg.properties,
		Hooks:      c.cfg.hooks,
	})
	if err != nil {
		c.resolveMu.Unlock()
		return nil, err
	}
	var newly []*Bundle
	if w != nil && w != existing {
		if err := c.commit(existing, w); err != nil {
			c.resolveMu.Unlock()
			return nil, err
		}
		newly = c.markResolved(existing, w)
	}
	c.resolveMu.Unlock()

	for _, b := range newly {
		c.fire(b, EventResolved)
	}
	c.obs.ObserveDynamicImport(wire != nil)
	if wire != nil {
		c.log.Debug("dynamic import wired", "requirer", rev.String(), "package", pkg, "provider", wire.Provider.String())
	}
	return wire, nil
}

// systemParent delegates to the system bundle's loader, looked up per call
// so it follows the system bundle's wiring.
type systemParent struct{ c *Container }

var _ loader.Parent = systemParent{}

func (p systemParent) loader() (*loader.Loader, error) {
	return p.c.LoaderFor(p.c.system.Revision())
}

func (p systemParent) LoadClass(ctx context.Context, name string) (*loader.Class, error) {
	l, err := p.loader()
	if err != nil {
		return nil, err
	}
	return l.LoadClass(ctx, name)
}

func (p systemParent) FindResource(ctx context.Context, path string) (*loader.Resource, error) {
	l, err := p.loader()
	if err != nil {
		return nil, err
	}
	return l.FindResource(ctx, path)
}

func (p systemParent) FindResources(ctx context.Context, path string) iter.Seq[*loader.Resource] {
	l, err := p.loader()
	if err != nil {
		return func(func(*loader.Resource) bool) {}
	}
	return l.FindResources(ctx, path)
}
