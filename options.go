package modrt

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/albertocavalcante/go-modrt/container"
	"github.com/albertocavalcante/go-modrt/loader"
	"github.com/albertocavalcante/go-modrt/resolver"
	"github.com/albertocavalcante/go-modrt/resource"
	"github.com/albertocavalcante/go-modrt/storage"
)

// Option configures a Framework.
type Option func(*frameworkConfig) error

// frameworkConfig holds the programmatic configuration. Everything that
// can be expressed as a string lives in Config instead.
type frameworkConfig struct {
	logger           *slog.Logger
	storage          storage.Storage
	activators       *container.Activators
	hooks            []resolver.HookFactory
	weaving          []loader.WeavingHook
	notifier         container.ServiceNotifier
	registerer       prometheus.Registerer
	parent           loader.Parent
	systemContent    resource.Content
	stateLockTimeout time.Duration
	maxPermutations  int
}

// WithLogger sets a structured logger for framework diagnostics.
// If not set, logging is disabled (silent mode).
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil)).With("component", "modrt")
//	fw, err := modrt.New(props, modrt.WithLogger(logger))
func WithLogger(l *slog.Logger) Option {
	return func(c *frameworkConfig) error {
		c.logger = l
		return nil
	}
}

// WithStorage sets the bundle storage, overriding framework.storage.
func WithStorage(s storage.Storage) Option {
	return func(c *frameworkConfig) error {
		c.storage = s
		return nil
	}
}

// WithActivators sets the registry bundle activators are looked up in.
func WithActivators(a *container.Activators) Option {
	return func(c *frameworkConfig) error {
		c.activators = a
		return nil
	}
}

// WithResolverHooks registers resolver hook factories.
func WithResolverHooks(hooks ...resolver.HookFactory) Option {
	return func(c *frameworkConfig) error {
		c.hooks = append(c.hooks, hooks...)
		return nil
	}
}

// WithWeavingHooks registers weaving hooks applied to every class load.
func WithWeavingHooks(hooks ...loader.WeavingHook) Option {
	return func(c *frameworkConfig) error {
		c.weaving = append(c.weaving, hooks...)
		return nil
	}
}

// WithServiceNotifier sets the hook told about bundles becoming ACTIVE and
// STOPPING.
func WithServiceNotifier(n container.ServiceNotifier) Option {
	return func(c *frameworkConfig) error {
		c.notifier = n
		return nil
	}
}

// WithMetrics registers the framework's Prometheus collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *frameworkConfig) error {
		c.registerer = reg
		return nil
	}
}

// WithParentLoader sets the parent used when framework.bundle.parent is
// "app".
func WithParentLoader(p loader.Parent) Option {
	return func(c *frameworkConfig) error {
		c.parent = p
		return nil
	}
}

// WithSystemContent sets the content of the system bundle. Classes the
// host application makes available to bundles live here and are exported
// through framework.system.packages.extra or found by boot delegation.
func WithSystemContent(content resource.Content) Option {
	return func(c *frameworkConfig) error {
		c.systemContent = content
		return nil
	}
}

// WithStateLockTimeout bounds how long a lifecycle operation waits for a
// bundle busy with another transition.
func WithStateLockTimeout(d time.Duration) Option {
	return func(c *frameworkConfig) error {
		if d <= 0 {
			return errors.New("state lock timeout must be positive")
		}
		c.stateLockTimeout = d
		return nil
	}
}

// WithMaxPermutations bounds the resolver's uses-constraint backtracking.
func WithMaxPermutations(n int) Option {
	return func(c *frameworkConfig) error {
		c.maxPermutations = n
		return nil
	}
}

// validate checks the options against the parsed properties.
func (c *frameworkConfig) validate(s *settings) error {
	if s.parent == ParentApp && c.parent == nil {
		return errors.New("framework.bundle.parent=app requires WithParentLoader")
	}
	if c.maxPermutations < 0 {
		return errors.New("max permutations must not be negative")
	}
	return nil
}

// log returns the configured logger, or a no-op logger if none was set.
func (c *frameworkConfig) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.New(discardHandler{})
}

// discardHandler is a slog.Handler that discards all log records.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// newFrameworkConfig applies opts and validates the result.
func newFrameworkConfig(s *settings, opts ...Option) (*frameworkConfig, error) {
	c := &frameworkConfig{}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if err := c.validate(s); err != nil {
		return nil, err
	}
	return c, nil
}
