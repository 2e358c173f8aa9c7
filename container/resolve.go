package container

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/albertocavalcante/go-modrt/internal/dag"
	"github.com/albertocavalcante/go-modrt/resolver"
	"github.com/albertocavalcante/go-modrt/resource"
)

// ResolveBundles resolves the given bundles, or every unresolved bundle
// when bundles is empty. It reports whether all of them are resolved
// afterwards. Failures leave the wiring unchanged for the failing bundles
// only.
func (c *Container) ResolveBundles(ctx context.Context, bundles []*Bundle) bool {
	rep, err := c.ResolveBundlesReport(ctx, bundles)
	return err == nil && rep == nil
}

// ResolveBundlesReport is ResolveBundles returning the diagnostic report
// for the bundles that stayed unresolved.
func (c *Container) ResolveBundlesReport(ctx context.Context, bundles []*Bundle) (*resolver.UnresolvedReport, error) {
	if len(bundles) == 0 {
		bundles = c.Bundles()
	}
	var revs []*resource.Revision
	for _, b := range bundles {
		if b.State() == Installed {
			revs = append(revs, b.Revision())
		}
	}
	if len(revs) == 0 {
		return nil, nil
	}
	_, rep, err := c.resolve(ctx, revs)
	return rep, err
}

// resolve wires revs as optional roots and commits the result. RESOLVED
// events fire provider first after the wiring is published.
func (c *Container) resolve(ctx context.Context, revs []*resource.Revision) ([]*Bundle, *resolver.UnresolvedReport, error) {
	start := time.Now()

	c.resolveMu.Lock()
	existing := c.wiring.Load()
	res, err := c.res.Resolve(ctx, resolver.Request{
		Optional:   revs,
		Installed:  c.installedRevisions(),
		Existing:   existing,
		Properties: c.cfg.properties,
		Hooks:      c.cfg.hooks,
	})
	if err != nil {
		c.resolveMu.Unlock()
		var rep *resolver.UnresolvedReport
		if errors.As(err, &rep) {
			c.obs.ObserveResolve(time.Since(start), 0, len(revs))
			return nil, rep, nil
		}
		return nil, nil, err
	}
	if err := c.commit(existing, res.Wiring); err != nil {
		c.resolveMu.Unlock()
		return nil, nil, err
	}
	newly := c.markResolved(existing, res.Wiring)
	c.resolveMu.Unlock()

	for _, b := range newly {
		c.fire(b, EventResolved)
	}
	failed := 0
	if res.Unresolved != nil {
		failed = len(res.Unresolved.Failures)
		c.log.Debug("bundles left unresolved", "count", failed)
	}
	c.obs.ObserveResolve(time.Since(start), len(newly), failed)
	return newly, res.Unresolved, nil
}

// markResolved moves the bundles whose current revision entered the wiring
// from INSTALLED to RESOLVED, returning them provider first. Callers hold
// resolveMu.
func (c *Container) markResolved(old, next *resource.Wiring) []*Bundle {
	var newly []*Bundle
	for _, rev := range next.Revisions() {
		if old.IsResolved(rev) {
			continue
		}
		b := c.bundleOf(rev)
		if b == nil || b.Revision() != rev {
			continue
		}
		if b.state.CompareAndSwap(int32(Installed), int32(Resolved)) {
			c.obs.ObserveTransition(Installed, Resolved)
			newly = append(newly, b)
		}
	}
	return c.dependencyOrder(newly, next)
}

// dependencyGraph returns a graph over bundles with an edge from each
// provider to each of its requirers in w, or the reverse when reverse is
// set.
func (c *Container) dependencyGraph(bundles []*Bundle, w *resource.Wiring, reverse bool) (*dag.Graph[int64], map[int64]*Bundle) {
	sorted := slices.Clone(bundles)
	slices.SortFunc(sorted, func(a, b *Bundle) int { return cmp.Compare(a.id, b.id) })

	g := dag.New[int64]()
	set := make(map[int64]*Bundle, len(sorted))
	for _, b := range sorted {
		g.AddNode(b.id)
		set[b.id] = b
	}
	for _, b := range sorted {
		for _, rev := range c.revisionsOf(b) {
			for _, wire := range w.RequiredWires(rev, "") {
				p, ok := set[wire.Provider.BundleID()]
				if !ok || p == b {
					continue
				}
				if reverse {
					g.AddEdge(b.id, p.id)
				} else {
					g.AddEdge(p.id, b.id)
				}
			}
		}
	}
	return g, set
}

// dependencyOrder sorts bundles provider first. Cycles are broken by ID.
func (c *Container) dependencyOrder(bundles []*Bundle, w *resource.Wiring) []*Bundle {
	if len(bundles) < 2 {
		return bundles
	}
	g, set := c.dependencyGraph(bundles, w, false)
	out := make([]*Bundle, 0, len(bundles))
	for _, id := range g.Order() {
		out = append(out, set[id])
	}
	return out
}

// RefreshBundles re-resolves the given bundles and everything that
// transitively depends on them. With no bundles it refreshes the owners of
// removal-pending revisions. It returns the refreshed bundles, provider
// first.
//
// Bundles in the closure are stopped dependents first, unresolved
// dependents first, resolved providers first, and restarted providers
// first if they were active. PACKAGES_REFRESHED fires last.
func (c *Container) RefreshBundles(ctx context.Context, bundles []*Bundle) ([]*Bundle, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	start := time.Now()

	roots := bundles
	if len(roots) == 0 {
		for _, rev := range c.RemovalPending() {
			if b := c.bundleOf(rev); b != nil {
				roots = append(roots, b)
			}
		}
	}

	// Step 1: compute the closure over the current wiring.
	w := c.wiring.Load()
	revs, closure := c.dependencyClosure(w, roots)
	order := c.dependencyOrder(closure, w)
	c.log.Debug("refreshing", "roots", len(roots), "closure", len(order))

	// Step 2: stop, dependents first.
	restart := make(map[*Bundle]bool)
	for i := len(order) - 1; i >= 0; i-- {
		b := order[i]
		if s := b.State(); s != Active && s != Starting {
			continue
		}
		restart[b] = true
		if err := c.stopTransient(ctx, b); err != nil && !errors.Is(err, ErrInvalidOperation) {
			c.log.Warn("stop during refresh failed", "bundle", b.String(), "error", err)
		}
	}

	// Step 3: unresolve, dependents first.
	var unresolved []*Bundle
	c.resolveMu.Lock()
	cur := c.wiring.Load()
	if err := c.commit(cur, cur.Without(revs...)); err != nil {
		c.resolveMu.Unlock()
		return nil, fmt.Errorf("refresh: %w", err)
	}
	c.tableMu.Lock()
	for _, rev := range revs {
		delete(c.pending, rev)
	}
	c.tableMu.Unlock()
	c.dropLoaders(revs...)
	for i := len(order) - 1; i >= 0; i-- {
		b := order[i]
		if b.State() == Uninstalled {
			continue
		}
		if b.state.CompareAndSwap(int32(Resolved), int32(Installed)) {
			c.obs.ObserveTransition(Resolved, Installed)
			unresolved = append(unresolved, b)
		}
	}
	c.resolveMu.Unlock()
	for _, b := range unresolved {
		c.fire(b, EventUnresolved)
	}

	// Step 4: resolve, providers first.
	var live []*resource.Revision
	var refreshed []*Bundle
	for _, b := range order {
		if b.State() == Uninstalled {
			continue
		}
		refreshed = append(refreshed, b)
		live = append(live, b.Revision())
	}
	if len(live) > 0 {
		_, rep, err := c.resolve(ctx, live)
		if err != nil {
			c.fireError(c.system, err)
		} else if rep != nil {
			c.log.Warn("bundles unresolved after refresh", "report", rep.Error())
		}
	}

	// Step 5: restart, providers first.
	for _, b := range refreshed {
		if !restart[b] {
			continue
		}
		if err := c.startTransient(ctx, b); err != nil {
			var aerr *ActivatorError
			if !errors.As(err, &aerr) {
				c.fireError(b, err)
			}
		}
	}

	c.ev.fireFramework(FrameworkEvent{Type: PackagesRefreshed, Bundle: c.system})
	c.obs.ObserveRefresh(time.Since(start), len(refreshed))
	return refreshed, nil
}

// dependencyClosure returns every revision reachable from the roots'
// revisions through provided wires and fragment attachment, and the live
// bundles owning them. All revisions of a bundle in the closure are
// included.
func (c *Container) dependencyClosure(w *resource.Wiring, roots []*Bundle) ([]*resource.Revision, []*Bundle) {
	seen := make(map[*resource.Revision]bool)
	owners := make(map[*Bundle]bool)
	var revs []*resource.Revision
	var bundles []*Bundle
	var queue []*resource.Revision

	var addBundle func(b *Bundle)
	add := func(rev *resource.Revision) {
		if rev == nil || seen[rev] || (c.system != nil && rev == c.system.Revision()) {
			return
		}
		seen[rev] = true
		revs = append(revs, rev)
		queue = append(queue, rev)
		if b := c.bundleOf(rev); b != nil {
			addBundle(b)
		}
	}
	addBundle = func(b *Bundle) {
		if owners[b] {
			return
		}
		owners[b] = true
		if b != c.system {
			bundles = append(bundles, b)
		}
		for _, rev := range c.revisionsOf(b) {
			add(rev)
		}
	}

	for _, b := range roots {
		if b != nil && b != c.system {
			addBundle(b)
		}
	}
	for len(queue) > 0 {
		rev := queue[0]
		queue = queue[1:]
		for _, wire := range w.ProvidedWires(rev, "") {
			add(wire.Requirer)
		}
		if rev.IsFragment() {
			for _, h := range w.Hosts(rev) {
				add(h)
			}
		}
	}
	resource.SortRevisions(revs)
	return revs, bundles
}
