package container

import (
	"log/slog"
	"time"

	"github.com/albertocavalcante/go-modrt/loader"
	"github.com/albertocavalcante/go-modrt/resolver"
	"github.com/albertocavalcante/go-modrt/resource"
	"github.com/albertocavalcante/go-modrt/storage"
)

// Defaults.
const (
	DefaultStateLockTimeout  = 5 * time.Second
	DefaultStartLevelWorkers = 4
	DefaultBundleStartLevel  = 1
)

// Observer receives measurements. metrics.Collectors implements it.
type Observer interface {
	ObserveResolve(d time.Duration, resolved, failed int)
	ObserveRefresh(d time.Duration, bundles int)
	ObserveTransition(from, to State)
	ObserveDynamicImport(wired bool)
	ObserveActivatorError(op string)
	ObserveInstalled(n int)
}

type noopObserver struct{}

func (noopObserver) ObserveResolve(time.Duration, int, int) {}
func (noopObserver) ObserveRefresh(time.Duration, int)      {}
func (noopObserver) ObserveTransition(State, State)         {}
func (noopObserver) ObserveDynamicImport(bool)              {}
func (noopObserver) ObserveActivatorError(string)           {}
func (noopObserver) ObserveInstalled(int)                   {}

// SystemBundle describes bundle 0.
type SystemBundle struct {
	Location string
	Headers  map[string]string
	Content  resource.Content
}

type config struct {
	logger           *slog.Logger
	resolver         *resolver.Resolver
	storage          storage.Storage
	hooks            []resolver.HookFactory
	weaving          []loader.WeavingHook
	properties       map[string]string
	activators       *Activators
	notifier         ServiceNotifier
	observer         Observer
	bootDelegation   []string
	parent           loader.Parent
	runtimeVersion   int
	stateLockTimeout time.Duration
	workers          int
	bundleStartLevel int
	system           *SystemBundle
}

// Option configures a Container.
type Option func(*config)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithResolver sets the resolver.
func WithResolver(r *resolver.Resolver) Option {
	return func(c *config) { c.resolver = r }
}

// WithStorage sets the persistent storage. The default is memory storage.
func WithStorage(s storage.Storage) Option {
	return func(c *config) { c.storage = s }
}

// WithResolverHooks registers resolver hooks.
func WithResolverHooks(hooks ...resolver.HookFactory) Option {
	return func(c *config) { c.hooks = append(c.hooks, hooks...) }
}

// WithWeavingHooks registers weaving hooks.
func WithWeavingHooks(hooks ...loader.WeavingHook) Option {
	return func(c *config) { c.weaving = append(c.weaving, hooks...) }
}

// WithProperties sets the framework properties seen by the resolver and
// bundle contexts.
func WithProperties(props map[string]string) Option {
	return func(c *config) { c.properties = props }
}

// WithActivators sets the activator registry.
func WithActivators(a *Activators) Option {
	return func(c *config) { c.activators = a }
}

// WithServiceNotifier sets the service registry notifier.
func WithServiceNotifier(n ServiceNotifier) Option {
	return func(c *config) { c.notifier = n }
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(c *config) { c.observer = o }
}

// WithBootDelegation sets the package patterns delegated to the parent
// loader first.
func WithBootDelegation(patterns ...string) Option {
	return func(c *config) { c.bootDelegation = patterns }
}

// WithParentLoader sets the parent for boot delegation. The default is the
// system bundle's loader.
func WithParentLoader(p loader.Parent) Option {
	return func(c *config) { c.parent = p }
}

// WithRuntimeVersion sets the version used for multi-release selection.
func WithRuntimeVersion(v int) Option {
	return func(c *config) { c.runtimeVersion = v }
}

// WithStateLockTimeout bounds waits for a bundle's state lock.
func WithStateLockTimeout(d time.Duration) Option {
	return func(c *config) { c.stateLockTimeout = d }
}

// WithStartLevelWorkers bounds the parallelism within one start level.
func WithStartLevelWorkers(n int) Option {
	return func(c *config) { c.workers = n }
}

// WithInitialBundleStartLevel sets the start level assigned to newly
// installed bundles.
func WithInitialBundleStartLevel(level int) Option {
	return func(c *config) { c.bundleStartLevel = level }
}

// WithSystemBundle installs sys as bundle 0.
func WithSystemBundle(sys SystemBundle) Option {
	return func(c *config) { c.system = &sys }
}
