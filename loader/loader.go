package loader

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/albertocavalcante/go-modrt/manifest"
	"github.com/albertocavalcante/go-modrt/resource"
)

// DefaultRuntimeVersion is the runtime version used for multi-release
// selection when none is configured.
const DefaultRuntimeVersion = 11

// Env connects a Loader to the runtime that owns it.
type Env interface {
	// Wiring returns the current wiring.
	Wiring() *resource.Wiring
	// LoaderFor returns the loader of a resolved provider revision.
	LoaderFor(rev *resource.Revision) (*Loader, error)
	// ResolveDynamic adds a wire for a dynamic import of pkg by rev and
	// returns it, or nil when no provider is available. patterns are
	// dynamic imports added by weaving.
	ResolveDynamic(ctx context.Context, rev *resource.Revision, pkg string, patterns []string) (*resource.Wire, error)
}

// Parent answers boot-delegated lookups. *Loader implements Parent.
type Parent interface {
	LoadClass(ctx context.Context, name string) (*Class, error)
	FindResource(ctx context.Context, path string) (*Resource, error)
	FindResources(ctx context.Context, path string) iter.Seq[*Resource]
}

var _ Parent = (*Loader)(nil)

type config struct {
	logger  *slog.Logger
	parent  Parent
	boot    []string
	runtime int
	weaving []WeavingHook
	onLazy  func(ctx context.Context, rev *resource.Revision) error
}

// Option configures a Loader.
type Option func(*config)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithParent sets the loader consulted for boot-delegated packages.
func WithParent(p Parent) Option {
	return func(c *config) { c.parent = p }
}

// WithBootDelegation sets the boot delegation patterns: "*", a package
// name, or a "prefix.*" wildcard that also matches the prefix itself.
func WithBootDelegation(patterns ...string) Option {
	return func(c *config) { c.boot = patterns }
}

// WithRuntimeVersion sets the runtime version for multi-release selection.
func WithRuntimeVersion(v int) Option {
	return func(c *config) { c.runtime = v }
}

// WithWeavingHooks sets the weaving hooks run before class definition.
func WithWeavingHooks(hooks ...WeavingHook) Option {
	return func(c *config) { c.weaving = hooks }
}

// WithLazyActivation sets the callback run the first time a class that
// triggers lazy activation is defined. A non-nil error re-arms the trigger
// for the next such class.
func WithLazyActivation(fn func(ctx context.Context, rev *resource.Revision) error) Option {
	return func(c *config) { c.onLazy = fn }
}

// cpEntry is one class path entry of the host or of a fragment.
type cpEntry struct {
	owner    *resource.Revision
	name     string
	content  resource.Content
	entries  map[string]bool
	overlays *manifest.OverlaySet
}

// Loader loads classes and resources for one resolved host revision in
// one wiring generation. It is safe for concurrent use.
type Loader struct {
	rev    *resource.Revision
	gen    uint64
	wiring *resource.Wiring
	env    Env
	cfg    config

	classpath []cpEntry
	imports   map[string]*resource.Wire
	required  []*resource.Wire
	exports   map[string]bool
	dynamic   []*resource.Requirement

	mu           sync.Mutex
	classes      map[string]*Class
	dynWires     map[string]*resource.Wire
	weavingNow   map[string]bool
	wovenImports []string

	lazyFired atomic.Bool
	retired   atomic.Bool
	resolving singleflight.Group
}

// New builds the loader of rev as wired in wiring.
func New(rev *resource.Revision, wiring *resource.Wiring, env Env, opts ...Option) (*Loader, error) {
	rw := wiring.Get(rev)
	if rw == nil || rev.IsFragment() {
		return nil, fmt.Errorf("%w: %s", ErrNotResolved, rev)
	}
	cfg := config{runtime: DefaultRuntimeVersion}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(discardHandler{})
	}

	l := &Loader{
		rev:        rev,
		gen:        wiring.Generation(),
		wiring:     wiring,
		env:        env,
		cfg:        cfg,
		imports:    map[string]*resource.Wire{},
		exports:    map[string]bool{},
		classes:    map[string]*Class{},
		dynWires:   map[string]*resource.Wire{},
		weavingNow: map[string]bool{},
	}
	for _, w := range rw.Required {
		switch w.Capability.Namespace {
		case resource.PackageNamespace:
			if _, ok := l.imports[w.Capability.Name()]; !ok {
				l.imports[w.Capability.Name()] = w
			}
		case resource.BundleNamespace:
			l.required = append(l.required, w)
		}
	}
	for _, c := range rw.Capabilities {
		if c.Namespace == resource.PackageNamespace {
			l.exports[c.Name()] = true
		}
	}
	for _, q := range rw.Requirements {
		if q.Namespace == resource.PackageNamespace && q.Dynamic() {
			l.dynamic = append(l.dynamic, q)
		}
	}
	l.classpath = l.buildClasspath()
	return l, nil
}

func (l *Loader) buildClasspath() []cpEntry {
	var out []cpEntry
	owners := append([]*resource.Revision{l.rev}, l.wiring.Fragments(l.rev)...)
	for _, owner := range owners {
		for _, name := range owner.Classpath() {
			c, err := resource.ClasspathContent(owner.Content(), name)
			if err != nil {
				l.cfg.logger.Warn("skipping class path entry", "revision", owner.String(), "entry", name, "error", err)
				continue
			}
			e := cpEntry{owner: owner, name: name, content: c, entries: map[string]bool{}}
			for _, n := range c.Entries() {
				e.entries[n] = true
			}
			if owner.IsMultiRelease() || l.rev.IsMultiRelease() {
				set, err := manifest.NewOverlaySet(c.Entries())
				if err != nil {
					l.cfg.logger.Warn("ignoring overlay entries", "revision", owner.String(), "entry", name, "error", err)
				}
				e.overlays = set
			}
			out = append(out, e)
		}
	}
	return out
}

// Revision returns the host revision of the loader.
func (l *Loader) Revision() *resource.Revision { return l.rev }

// Generation returns the wiring generation the loader was built from.
func (l *Loader) Generation() uint64 { return l.gen }

// IsStale reports whether the loader no longer belongs to the current
// wiring: it was retired, or its revision has left the wiring.
func (l *Loader) IsStale() bool {
	return l.retired.Load() || !l.env.Wiring().IsResolved(l.rev)
}

// Retire marks the loader stale. The owner retires a loader when a refresh
// rebuilds the wires of its revision, even if the revision is resolved
// again afterwards.
func (l *Loader) Retire() { l.retired.Store(true) }

func (l *Loader) staleError(name string) error {
	if !l.IsStale() {
		return nil
	}
	return &StaleWiringError{Revision: l.rev, Generation: l.gen, Current: l.env.Wiring().Generation(), Name: name}
}

// lookup is one class or resource request.
type lookup struct {
	class string
	path  string
	pkg   string
}

// outcome is the result of one delegation step. done stops the pipeline;
// done with neither class nor res is an authoritative miss.
type outcome struct {
	class *Class
	res   *Resource
	done  bool
}

type step func(ctx context.Context, lk lookup) (outcome, error)

func (l *Loader) pipeline() []step {
	return []step{l.bootStep, l.importStep, l.requireStep, l.localStep, l.dynamicStep}
}

func (l *Loader) run(ctx context.Context, lk lookup) (outcome, error) {
	for _, st := range l.pipeline() {
		out, err := st(ctx, lk)
		if err != nil || out.done {
			return out, err
		}
	}
	return outcome{}, nil
}

// LoadClass loads a class by fully qualified name.
func (l *Loader) LoadClass(ctx context.Context, name string) (*Class, error) {
	if name == "" {
		return nil, classNotFound(name)
	}
	l.mu.Lock()
	cls := l.classes[name]
	l.mu.Unlock()
	if cls != nil {
		return cls, nil
	}
	if err := l.staleError(name); err != nil {
		return nil, err
	}

	out, err := l.run(ctx, lookup{class: name, path: ClassPath(name), pkg: PackageOf(name)})
	if err != nil {
		return nil, err
	}
	if out.class == nil {
		l.cfg.logger.Debug("class not found", "revision", l.rev.String(), "class", name)
		return nil, classNotFound(name)
	}
	l.mu.Lock()
	if existing := l.classes[name]; existing != nil {
		out.class = existing
	} else {
		l.classes[name] = out.class
	}
	l.mu.Unlock()
	return out.class, nil
}

// FindResource returns the first resource for path following the
// delegation pipeline.
func (l *Loader) FindResource(ctx context.Context, path string) (*Resource, error) {
	path = strings.TrimPrefix(path, "/")
	if err := l.staleError(path); err != nil {
		return nil, err
	}
	out, err := l.run(ctx, lookup{path: path, pkg: ResourcePackage(path)})
	if err != nil {
		return nil, err
	}
	if out.res == nil {
		return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, path)
	}
	return out.res, nil
}

// FindResources returns every resource for path visible to the revision:
// an authoritative import yields the provider's resources only; otherwise
// required bundles come first, then the host class path, then fragments in
// attachment order. Duplicates are kept. The sequence reflects the loader's
// wiring generation and yields nothing once the loader is stale.
func (l *Loader) FindResources(ctx context.Context, path string) iter.Seq[*Resource] {
	path = strings.TrimPrefix(path, "/")
	lk := lookup{path: path, pkg: ResourcePackage(path)}
	return func(yield func(*Resource) bool) {
		if l.IsStale() {
			return
		}
		if l.cfg.parent != nil && l.bootDelegated(lk.pkg) {
			found := false
			for r := range l.cfg.parent.FindResources(ctx, path) {
				found = true
				if !yield(r) {
					return
				}
			}
			if found {
				return
			}
		}
		if w := l.importWire(lk.pkg); w != nil {
			provider, err := l.env.LoaderFor(w.Provider)
			if err != nil {
				l.cfg.logger.Warn("provider loader unavailable", "provider", w.Provider.String(), "error", err)
				return
			}
			for _, r := range provider.exportedResources(lk, map[*Loader]bool{}) {
				if !yield(r) {
					return
				}
			}
			return
		}
		visited := map[*Loader]bool{l: true}
		for _, w := range l.required {
			provider, err := l.env.LoaderFor(w.Provider)
			if err != nil {
				continue
			}
			for _, r := range provider.exportedResources(lk, visited) {
				if !yield(r) {
					return
				}
			}
		}
		for _, r := range l.localResources(path) {
			if !yield(r) {
				return
			}
		}
	}
}

// FindLocalResource looks only at the loader's own class path, fragments
// included.
func (l *Loader) FindLocalResource(path string) (*Resource, error) {
	path = strings.TrimPrefix(path, "/")
	if r := l.localResource(path); r != nil {
		return r, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, path)
}

func (l *Loader) bootDelegated(pkg string) bool {
	for _, p := range l.cfg.boot {
		switch {
		case p == "*":
			return true
		case strings.HasSuffix(p, ".*"):
			prefix := strings.TrimSuffix(p, ".*")
			if pkg == prefix || strings.HasPrefix(pkg, prefix+".") {
				return true
			}
		case p == pkg:
			return true
		}
	}
	return false
}

func (l *Loader) importWire(pkg string) *resource.Wire {
	if w := l.imports[pkg]; w != nil {
		return w
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dynWires[pkg]
}

func (l *Loader) bootStep(ctx context.Context, lk lookup) (outcome, error) {
	if l.cfg.parent == nil || !l.bootDelegated(lk.pkg) {
		return outcome{}, nil
	}
	if lk.class != "" {
		cls, err := l.cfg.parent.LoadClass(ctx, lk.class)
		switch {
		case errors.Is(err, ErrClassNotFound):
			return outcome{}, nil
		case err != nil:
			return outcome{}, err
		}
		return outcome{class: cls, done: true}, nil
	}
	res, err := l.cfg.parent.FindResource(ctx, lk.path)
	switch {
	case errors.Is(err, ErrResourceNotFound):
		return outcome{}, nil
	case err != nil:
		return outcome{}, err
	}
	return outcome{res: res, done: true}, nil
}

func (l *Loader) importStep(ctx context.Context, lk lookup) (outcome, error) {
	w := l.importWire(lk.pkg)
	if w == nil {
		return outcome{}, nil
	}
	return l.delegate(ctx, w, lk)
}

// delegate asks the provider of an import wire. The answer is final.
func (l *Loader) delegate(ctx context.Context, w *resource.Wire, lk lookup) (outcome, error) {
	provider, err := l.env.LoaderFor(w.Provider)
	if err != nil {
		return outcome{}, fmt.Errorf("loader for %s: %w", w.Provider, err)
	}
	out, err := provider.exported(ctx, lk, map[*Loader]bool{})
	out.done = true
	return out, err
}

func (l *Loader) requireStep(ctx context.Context, lk lookup) (outcome, error) {
	visited := map[*Loader]bool{l: true}
	for _, w := range l.required {
		provider, err := l.env.LoaderFor(w.Provider)
		if err != nil {
			return outcome{}, fmt.Errorf("loader for %s: %w", w.Provider, err)
		}
		out, err := provider.exported(ctx, lk, visited)
		if err != nil || out.done {
			return out, err
		}
	}
	return outcome{}, nil
}

func (l *Loader) localStep(ctx context.Context, lk lookup) (outcome, error) {
	return l.local(ctx, lk)
}

// exported answers a lookup on behalf of another loader: only packages the
// revision exports, or re-exports from required bundles, are visible.
func (l *Loader) exported(ctx context.Context, lk lookup, visited map[*Loader]bool) (outcome, error) {
	if visited[l] {
		return outcome{}, nil
	}
	visited[l] = true

	if w := l.importWire(lk.pkg); w != nil && w.Provider != l.rev {
		if !l.exports[lk.pkg] {
			return outcome{}, nil
		}
		return l.delegate(ctx, w, lk)
	}
	if l.exports[lk.pkg] {
		if out, err := l.local(ctx, lk); err != nil || out.done {
			return out, err
		}
	}
	for _, w := range l.required {
		if !w.Requirement.Reexport() {
			continue
		}
		provider, err := l.env.LoaderFor(w.Provider)
		if err != nil {
			return outcome{}, fmt.Errorf("loader for %s: %w", w.Provider, err)
		}
		if out, err := provider.exported(ctx, lk, visited); err != nil || out.done {
			return out, err
		}
	}
	return outcome{}, nil
}

func (l *Loader) exportedResources(lk lookup, visited map[*Loader]bool) []*Resource {
	if visited[l] {
		return nil
	}
	visited[l] = true

	if w := l.importWire(lk.pkg); w != nil && w.Provider != l.rev {
		if !l.exports[lk.pkg] {
			return nil
		}
		provider, err := l.env.LoaderFor(w.Provider)
		if err != nil {
			return nil
		}
		return provider.exportedResources(lk, visited)
	}
	var out []*Resource
	if l.exports[lk.pkg] {
		out = append(out, l.localResources(lk.path)...)
	}
	for _, w := range l.required {
		if !w.Requirement.Reexport() {
			continue
		}
		if provider, err := l.env.LoaderFor(w.Provider); err == nil {
			out = append(out, provider.exportedResources(lk, visited)...)
		}
	}
	return out
}

// local looks on the own class path and defines classes found there.
func (l *Loader) local(ctx context.Context, lk lookup) (outcome, error) {
	r := l.localResource(lk.path)
	if r == nil {
		return outcome{}, nil
	}
	if lk.class == "" {
		return outcome{res: r, done: true}, nil
	}
	cls, err := l.define(ctx, lk.class, r)
	if err != nil {
		return outcome{}, err
	}
	return outcome{class: cls, done: true}, nil
}

func (l *Loader) localResource(path string) *Resource {
	for i := range l.classpath {
		if r := l.classpath[i].find(path, l); r != nil {
			return r
		}
	}
	return nil
}

func (l *Loader) localResources(path string) []*Resource {
	var out []*Resource
	for i := range l.classpath {
		if r := l.classpath[i].find(path, l); r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (e *cpEntry) find(path string, l *Loader) *Resource {
	entry := path
	if e.overlays != nil {
		entry = e.overlays.Select(l.cfg.runtime, path)
	}
	if !e.entries[entry] {
		return nil
	}
	return &Resource{
		Path:      path,
		Entry:     entry,
		Classpath: e.name,
		Revision:  e.owner,
		content:   e.content,
		owner:     l,
	}
}

// define turns class bytes into a Class owned by l, at most once per name.
func (l *Loader) define(ctx context.Context, name string, r *Resource) (*Class, error) {
	l.mu.Lock()
	cls := l.classes[name]
	l.mu.Unlock()
	if cls != nil {
		return cls, nil
	}

	data, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", r, err)
	}
	data, err = l.weave(ctx, name, data)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	if existing := l.classes[name]; existing != nil {
		cls = existing
	} else {
		cls = &Class{name: name, bytes: data, source: r, loader: l}
		l.classes[name] = cls
	}
	l.mu.Unlock()

	l.lazyTrigger(ctx, PackageOf(name))
	return cls, nil
}

func (l *Loader) lazyTrigger(ctx context.Context, pkg string) {
	if l.cfg.onLazy == nil || !l.rev.Activation().Triggers(pkg) {
		return
	}
	if !l.lazyFired.CompareAndSwap(false, true) {
		return
	}
	if err := l.cfg.onLazy(ctx, l.rev); err != nil {
		l.lazyFired.Store(false)
		l.cfg.logger.Debug("lazy activation deferred", "revision", l.rev.String(), "error", err)
	}
}

func (l *Loader) dynamicPatterns(pkg string) (matched bool, woven []string) {
	l.mu.Lock()
	woven = append(woven, l.wovenImports...)
	l.mu.Unlock()
	for _, q := range l.dynamic {
		if q.MatchesPackage(pkg) {
			matched = true
		}
	}
	for _, p := range woven {
		probe := resource.NewRequirement(resource.PackageNamespace, nil,
			map[string]any{resource.PackageNamespace: p}, nil)
		if probe.MatchesPackage(pkg) {
			matched = true
		}
	}
	return matched, woven
}

func (l *Loader) dynamicStep(ctx context.Context, lk lookup) (outcome, error) {
	if lk.pkg == "" || l.env == nil {
		return outcome{}, nil
	}
	matched, woven := l.dynamicPatterns(lk.pkg)
	if !matched {
		return outcome{}, nil
	}
	v, err, _ := l.resolving.Do(lk.pkg, func() (any, error) {
		if w := l.importWire(lk.pkg); w != nil {
			return w, nil
		}
		w, err := l.env.ResolveDynamic(ctx, l.rev, lk.pkg, woven)
		if err != nil || w == nil {
			return w, err
		}
		l.mu.Lock()
		l.dynWires[lk.pkg] = w
		l.mu.Unlock()
		l.cfg.logger.Debug("dynamic import wired", "revision", l.rev.String(), "package", lk.pkg, "provider", w.Provider.String())
		return w, nil
	})
	if err != nil {
		return outcome{}, err
	}
	w, _ := v.(*resource.Wire)
	if w == nil {
		return outcome{}, nil
	}
	return l.delegate(ctx, w, lk)
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
