package container

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/albertocavalcante/go-modrt/loader"
	"github.com/albertocavalcante/go-modrt/manifest"
	"github.com/albertocavalcante/go-modrt/resolver"
	"github.com/albertocavalcante/go-modrt/resource"
	"github.com/albertocavalcante/go-modrt/storage"
)

// PropUUID is the property holding the framework UUID, persisted with the
// framework state.
const PropUUID = "framework.uuid"

// SystemBundleID is the ID of the system bundle.
const SystemBundleID = 0

// Container owns the bundle table and the current wiring.
//
// The wiring is published through an atomic pointer: readers never lock,
// and writers compute a new wiring off to the side and swap it in under
// resolveMu. The bundle table has its own small lock that covers only ID
// assignment and table updates, so concurrent installs do not serialize on
// manifest parsing or storage.
type Container struct {
	cfg config
	log *slog.Logger
	res *resolver.Resolver
	obs Observer
	ev  *events

	wiring    atomic.Pointer[resource.Wiring]
	resolveMu sync.Mutex

	tableMu    sync.Mutex
	nextID     int64
	byID       map[int64]*Bundle
	byLocation map[string]*Bundle
	pending    map[*resource.Revision]*Bundle

	loaderMu sync.Mutex
	loaders  map[*resource.Revision]*loader.Loader

	levelMu    sync.Mutex
	startLevel atomic.Int32
	refreshMu  sync.Mutex

	system *Bundle
}

// New creates a container. With WithSystemBundle the system bundle is
// installed as bundle 0.
func New(opts ...Option) (*Container, error) {
	cfg := config{
		runtimeVersion:   loader.DefaultRuntimeVersion,
		stateLockTimeout: DefaultStateLockTimeout,
		workers:          DefaultStartLevelWorkers,
		bundleStartLevel: DefaultBundleStartLevel,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(discardHandler{})
	}
	if cfg.resolver == nil {
		cfg.resolver = resolver.New(resolver.WithLogger(cfg.logger))
	}
	if cfg.storage == nil {
		cfg.storage = storage.NewMemory()
	}
	if cfg.observer == nil {
		cfg.observer = noopObserver{}
	}
	if cfg.activators == nil {
		cfg.activators = NewActivators()
	}

	c := &Container{
		cfg:        cfg,
		log:        cfg.logger,
		res:        cfg.resolver,
		obs:        cfg.observer,
		nextID:     SystemBundleID + 1,
		byID:       make(map[int64]*Bundle),
		byLocation: make(map[string]*Bundle),
		pending:    make(map[*resource.Revision]*Bundle),
		loaders:    make(map[*resource.Revision]*loader.Loader),
	}
	c.ev = newEvents(func(r any) {
		c.log.Error("listener panicked", "error", panicError(r))
	})
	c.wiring.Store(resource.EmptyWiring())

	if sys := cfg.system; sys != nil {
		desc, err := c.describe(sys.Headers, sys.Content)
		if err != nil {
			c.ev.close()
			return nil, fmt.Errorf("system bundle: %w", err)
		}
		rev := desc.NewRevision(SystemBundleID, 0, sys.Location, sys.Content)
		c.system = newBundle(SystemBundleID, sys.Location, rev, 0)
		c.byID[SystemBundleID] = c.system
		c.byLocation[sys.Location] = c.system
	}
	return c, nil
}

// Close stops event delivery after the queued events are delivered.
func (c *Container) Close() { c.ev.close() }

// System returns the system bundle, or nil.
func (c *Container) System() *Bundle { return c.system }

// Wiring returns the current wiring.
func (c *Container) Wiring() *resource.Wiring { return c.wiring.Load() }

// Properties returns a copy of the framework properties.
func (c *Container) Properties() map[string]string { return maps.Clone(c.cfg.properties) }

// Bundles returns the installed bundles ordered by ID.
func (c *Container) Bundles() []*Bundle {
	c.tableMu.Lock()
	out := slices.Collect(maps.Values(c.byID))
	c.tableMu.Unlock()
	slices.SortFunc(out, func(a, b *Bundle) int { return cmp.Compare(a.id, b.id) })
	return out
}

// Bundle returns the bundle with id, or nil.
func (c *Container) Bundle(id int64) *Bundle {
	c.tableMu.Lock()
	defer c.tableMu.Unlock()
	return c.byID[id]
}

// BundleByLocation returns the bundle installed from location, or nil.
func (c *Container) BundleByLocation(location string) *Bundle {
	c.tableMu.Lock()
	defer c.tableMu.Unlock()
	return c.byLocation[location]
}

// Len returns the number of installed bundles.
func (c *Container) Len() int {
	c.tableMu.Lock()
	defer c.tableMu.Unlock()
	return len(c.byID)
}

// NextID returns the ID the next install will receive.
func (c *Container) NextID() int64 {
	c.tableMu.Lock()
	defer c.tableMu.Unlock()
	return c.nextID
}

// RemovalPending returns revisions that left their bundle through update
// or uninstall but stay wired until the next refresh.
func (c *Container) RemovalPending() []*resource.Revision {
	c.tableMu.Lock()
	out := slices.Collect(maps.Keys(c.pending))
	c.tableMu.Unlock()
	resource.SortRevisions(out)
	return out
}

// AddBundleListener registers a listener delivered on the dispatcher
// goroutine. The returned func removes it.
func (c *Container) AddBundleListener(l BundleListener) func() { return c.ev.addBundle(l, false) }

// AddSyncBundleListener registers a listener delivered on the goroutine
// performing the transition, before the transition completes.
func (c *Container) AddSyncBundleListener(l BundleListener) func() { return c.ev.addBundle(l, true) }

// AddFrameworkListener registers a framework event listener.
func (c *Container) AddFrameworkListener(l FrameworkListener) func() { return c.ev.addFramework(l) }

// FireFrameworkEvent publishes a framework event.
func (c *Container) FireFrameworkEvent(ev FrameworkEvent) { c.ev.fireFramework(ev) }

// FlushEvents waits until every event fired so far has been delivered to
// asynchronous listeners.
func (c *Container) FlushEvents() { c.ev.flush() }

func (c *Container) fire(b *Bundle, t EventType) {
	c.ev.fireBundle(BundleEvent{Type: t, Bundle: b})
}

func (c *Container) fireError(b *Bundle, err error) {
	c.ev.fireFramework(FrameworkEvent{Type: FrameworkError, Bundle: b, Err: err})
}

func (c *Container) transition(b *Bundle, to State) {
	if from := b.setState(to); from != to {
		c.obs.ObserveTransition(from, to)
	}
}

func (c *Container) describe(headers map[string]string, content resource.Content) (*manifest.Descriptor, error) {
	if headers == nil {
		if content == nil {
			return nil, errors.New("no manifest headers and no content")
		}
		h, err := manifest.ReadHeaders(content)
		if err != nil {
			return nil, err
		}
		headers = h
	}
	return manifest.Load(headers, content, c.cfg.runtimeVersion)
}

// Install installs a bundle. Headers are read from the content's
// META-INF/MANIFEST.MF when nil. Installing an already installed location
// returns the existing bundle.
func (c *Container) Install(ctx context.Context, location string, headers map[string]string, content resource.Content) (*Bundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b := c.BundleByLocation(location); b != nil {
		return b, nil
	}
	desc, err := c.describe(headers, content)
	if err != nil {
		return nil, fmt.Errorf("installing %s: %w", location, err)
	}

	b, created := c.insert(location, func(id int64) *resource.Revision {
		return desc.NewRevision(id, 0, location, content)
	})
	if !created {
		return b, nil
	}

	h, err := c.cfg.storage.PersistRevision(ctx, b.record(), content)
	if err != nil {
		c.remove(b)
		b.setState(Uninstalled)
		return nil, fmt.Errorf("persisting %s: %w", location, err)
	}
	b.mu.Lock()
	b.handle = h
	b.mu.Unlock()
	c.saveState(ctx)

	c.obs.ObserveInstalled(c.Len())
	c.fire(b, EventInstalled)
	c.log.Info("bundle installed", "bundle", b.String(), "location", location)
	return b, nil
}

// insert assigns an ID and adds a bundle under the table lock.
func (c *Container) insert(location string, mk func(id int64) *resource.Revision) (*Bundle, bool) {
	c.tableMu.Lock()
	defer c.tableMu.Unlock()
	if b := c.byLocation[location]; b != nil {
		return b, false
	}
	id := c.nextID
	c.nextID++
	b := newBundle(id, location, mk(id), c.cfg.bundleStartLevel)
	c.byID[id] = b
	c.byLocation[location] = b
	return b, true
}

func (c *Container) remove(b *Bundle) {
	c.tableMu.Lock()
	defer c.tableMu.Unlock()
	delete(c.byID, b.id)
	if c.byLocation[b.location] == b {
		delete(c.byLocation, b.location)
	}
}

func (c *Container) saveState(ctx context.Context) {
	st := storage.FrameworkState{
		UUID:       c.cfg.properties[PropUUID],
		NextID:     c.NextID(),
		StartLevel: c.StartLevel(),
	}
	if err := c.cfg.storage.SaveState(ctx, st); err != nil {
		c.log.Warn("failed to save framework state", "error", err)
	}
}

func (c *Container) checkLive(b *Bundle) error {
	if b == nil {
		return invalid("nil bundle")
	}
	if b.State() == Uninstalled {
		return invalid("%s is uninstalled", b)
	}
	return nil
}

// Update replaces the bundle's revision. The old revision stays wired for
// existing dependents until the next refresh. An active bundle is stopped
// around the update and started again.
func (c *Container) Update(ctx context.Context, b *Bundle, headers map[string]string, content resource.Content) error {
	if err := c.checkLive(b); err != nil {
		return err
	}
	if b == c.system {
		return invalid("the system bundle cannot be updated")
	}
	ctx, release, err := b.acquire(ctx, c.cfg.stateLockTimeout)
	if err != nil {
		return err
	}
	defer release()
	if err := c.checkLive(b); err != nil {
		return err
	}

	desc, err := c.describe(headers, content)
	if err != nil {
		return fmt.Errorf("updating %s: %w", b, err)
	}
	old := b.Revision()
	wasActive := b.State() == Active || b.State() == Starting
	if wasActive {
		_ = c.stopLocked(ctx, b)
	}

	rev := desc.NewRevision(b.id, old.Generation()+1, b.location, content)
	rec := b.record()
	rec.SymbolicName = rev.SymbolicName()
	rec.Version = rev.Version().String()
	rec.Generation = rev.Generation()
	rec.Headers = rev.Headers()
	h, err := c.cfg.storage.PersistRevision(ctx, rec, content)
	if err != nil {
		if wasActive {
			_ = c.startLocked(ctx, b, b.Autostart() == storage.AutostartDeclared)
		}
		return fmt.Errorf("persisting update of %s: %w", b, err)
	}

	removed := c.retire(b, old)
	b.mu.Lock()
	b.handle = h
	b.lastModified = time.Now()
	b.mu.Unlock()
	b.current.Store(rev)
	if prev := b.State(); prev == Resolved {
		c.transition(b, Installed)
		if removed {
			c.fire(b, EventUnresolved)
		}
	}
	c.fire(b, EventUpdated)
	c.log.Info("bundle updated", "bundle", b.String(), "generation", rev.Generation())

	if wasActive {
		if err := c.startLocked(ctx, b, b.Autostart() == storage.AutostartDeclared); err != nil {
			c.fireError(b, err)
		}
	}
	return nil
}

// Uninstall stops and removes a bundle. Its ID is never reused. A revision
// that still has dependents stays wired until the next refresh.
func (c *Container) Uninstall(ctx context.Context, b *Bundle) error {
	if err := c.checkLive(b); err != nil {
		return err
	}
	if b == c.system {
		return invalid("the system bundle cannot be uninstalled")
	}
	ctx, release, err := b.acquire(ctx, c.cfg.stateLockTimeout)
	if err != nil {
		return err
	}
	defer release()
	if err := c.checkLive(b); err != nil {
		return err
	}

	if s := b.State(); s == Active || s == Starting {
		_ = c.stopLocked(ctx, b)
	}
	rev := b.Revision()
	wasResolved := b.State() == Resolved
	removed := c.retire(b, rev)
	c.remove(b)
	c.transition(b, Uninstalled)
	if wasResolved && removed {
		c.fire(b, EventUnresolved)
	}
	if err := c.cfg.storage.Remove(ctx, b.id); err != nil {
		c.log.Warn("failed to remove persisted bundle", "bundle", b.String(), "error", err)
	}
	c.obs.ObserveInstalled(c.Len())
	c.fire(b, EventUninstalled)
	c.log.Info("bundle uninstalled", "bundle", b.String())
	return nil
}

// retire takes rev out of service. A resolved revision with dependents, or
// an attached fragment, becomes removal pending; otherwise it leaves the
// wiring now. It reports whether rev left the wiring.
func (c *Container) retire(b *Bundle, rev *resource.Revision) bool {
	c.resolveMu.Lock()
	defer c.resolveMu.Unlock()
	w := c.wiring.Load()
	if !w.IsResolved(rev) {
		return false
	}
	if rev.IsFragment() || hasDependents(w, rev) {
		c.tableMu.Lock()
		c.pending[rev] = b
		c.tableMu.Unlock()
		return false
	}
	if err := c.commit(w, w.Without(rev)); err != nil {
		c.log.Error("failed to retire revision", "revision", rev.String(), "error", err)
		return false
	}
	c.dropLoaders(rev)
	return true
}

func hasDependents(w *resource.Wiring, rev *resource.Revision) bool {
	for _, wire := range w.ProvidedWires(rev, "") {
		if wire.Requirer != rev {
			return true
		}
	}
	return false
}

// commit swaps in next if the wiring is still old. Callers hold resolveMu.
func (c *Container) commit(old, next *resource.Wiring) error {
	if !c.wiring.CompareAndSwap(old, next) {
		return ErrConcurrentCommit
	}
	return nil
}

// Restore reinstalls the bundles found in storage, keeping their IDs,
// start levels and persistent start flags.
func (c *Container) Restore(ctx context.Context) error {
	recs, err := c.cfg.storage.LoadPersisted(ctx)
	if err != nil {
		return fmt.Errorf("loading persisted bundles: %w", err)
	}
	st, ok, err := c.cfg.storage.LoadState(ctx)
	if err != nil {
		return fmt.Errorf("loading framework state: %w", err)
	}

	var errs []error
	for _, rec := range recs {
		content, err := c.cfg.storage.OpenContent(ctx, rec.Handle)
		if err != nil {
			errs = append(errs, fmt.Errorf("bundle %d: %w", rec.ID, err))
			continue
		}
		desc, err := c.describe(rec.Headers, content)
		if err != nil {
			errs = append(errs, fmt.Errorf("bundle %d: %w", rec.ID, err))
			continue
		}
		rev := desc.NewRevision(rec.ID, rec.Generation, rec.Location, content)
		b := newBundle(rec.ID, rec.Location, rev, rec.StartLevel)
		b.autostart = rec.Autostart
		b.handle = rec.Handle
		if rec.LastModified != 0 {
			b.lastModified = time.Unix(0, rec.LastModified)
		}

		c.tableMu.Lock()
		c.byID[rec.ID] = b
		c.byLocation[rec.Location] = b
		if rec.ID >= c.nextID {
			c.nextID = rec.ID + 1
		}
		c.tableMu.Unlock()
		c.log.Debug("bundle restored", "bundle", b.String())
	}
	if ok {
		c.tableMu.Lock()
		c.nextID = max(c.nextID, st.NextID)
		c.tableMu.Unlock()
	}
	c.obs.ObserveInstalled(c.Len())
	return errors.Join(errs...)
}

// bundleOf returns the bundle whose current or pending revision is rev.
func (c *Container) bundleOf(rev *resource.Revision) *Bundle {
	c.tableMu.Lock()
	defer c.tableMu.Unlock()
	if b := c.pending[rev]; b != nil {
		return b
	}
	if b := c.byID[rev.BundleID()]; b != nil && b.Revision() == rev {
		return b
	}
	return nil
}

// revisionsOf returns b's current revision followed by its pending ones.
func (c *Container) revisionsOf(b *Bundle) []*resource.Revision {
	out := []*resource.Revision{b.Revision()}
	c.tableMu.Lock()
	for rev, pb := range c.pending {
		if pb == b {
			out = append(out, rev)
		}
	}
	c.tableMu.Unlock()
	resource.SortRevisions(out[1:])
	return out
}

// installedRevisions returns the current revision of every bundle.
func (c *Container) installedRevisions() []*resource.Revision {
	var out []*resource.Revision
	for _, b := range c.Bundles() {
		out = append(out, b.Revision())
	}
	return out
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
