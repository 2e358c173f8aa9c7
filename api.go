// Package modrt embeds a dynamic module runtime: bundles with their own
// class space are installed, resolved against each other, started,
// updated and refreshed while the host process keeps running.
//
// # Overview
//
// The runtime is split into packages that can be used on their own:
//
//   - manifest: parses bundle manifests into capabilities and requirements
//   - resolver: computes a consistent wiring for a set of revisions
//   - loader: loads classes and resources along the wires of a revision
//   - container: owns the bundle table, lifecycle and start levels
//
// This package ties them together behind a Framework configured with
// string properties, the way a launcher would.
//
// # Quick Start
//
//	fw, err := modrt.New(modrt.Config{
//	    modrt.PropStorage:             "/var/lib/app/bundles",
//	    modrt.PropSystemPackagesExtra: "com.example.host.api;version=1.0",
//	}, modrt.WithActivators(activators))
//	if err != nil {
//	    return err
//	}
//	if err := fw.Start(ctx); err != nil {
//	    return err
//	}
//	bc := fw.BundleContext()
//	b, err := bc.Install(ctx, "file:plugins/greeter", nil, resource.NewDirContent("plugins/greeter"))
//
// # Lifecycle
//
// A Framework moves through the states of its system bundle: INSTALLED
// after New, STARTING after Init, ACTIVE after Start and RESOLVED again
// after Stop. Init restores persisted bundles; Start raises the start level
// to framework.beginning.startlevel, which starts the persistently started
// bundles. Stop lowers the start level to 0 and releases the container. A
// stopped Framework can be initialized again.
//
// # Thread Safety
//
// All public types in this package are safe for concurrent use.
package modrt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/albertocavalcante/go-modrt/container"
	"github.com/albertocavalcante/go-modrt/manifest"
	"github.com/albertocavalcante/go-modrt/metrics"
	"github.com/albertocavalcante/go-modrt/resolver"
	"github.com/albertocavalcante/go-modrt/resource"
	"github.com/albertocavalcante/go-modrt/storage"
)

// System bundle identity.
const (
	SystemSymbolicName = "modrt.system"
	SystemLocation     = "System Bundle"
)

// Framework is an embedded module runtime.
type Framework struct {
	s       *settings
	cfg     *frameworkConfig
	log     *slog.Logger
	metrics *metrics.Collectors

	state atomic.Int32

	mu      sync.Mutex
	c       *container.Container
	st      storage.Storage
	inits   int
	stopped chan struct{}
	stopEv  container.FrameworkEvent
}

// New validates the configuration and creates a Framework in the INSTALLED
// state. Nothing touches storage until Init.
func New(props Config, opts ...Option) (*Framework, error) {
	s, err := parseConfig(props)
	if err != nil {
		return nil, err
	}
	cfg, err := newFrameworkConfig(s, opts...)
	if err != nil {
		return nil, err
	}

	f := &Framework{
		s:   s,
		cfg: cfg,
		log: cfg.log().With("framework", s.props[PropUUID]),
	}
	if cfg.registerer != nil {
		if f.metrics, err = metrics.New(cfg.registerer); err != nil {
			return nil, err
		}
	}
	f.state.Store(int32(container.Installed))
	return f, nil
}

// State returns the framework state.
func (f *Framework) State() State { return State(f.state.Load()) }

// UUID returns the framework UUID.
func (f *Framework) UUID() string { return f.s.props[PropUUID] }

// Properties returns a copy of the effective framework properties,
// defaults included.
func (f *Framework) Properties() map[string]string { return maps.Clone(f.s.props) }

// Container returns the container, or nil before Init.
func (f *Framework) Container() *container.Container {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.c
}

// BundleContext returns the system bundle's context, or nil before Init.
func (f *Framework) BundleContext() *BundleContext {
	c := f.Container()
	if c == nil {
		return nil
	}
	return c.Context(c.System())
}

// Init prepares the framework without starting bundles:
//
//  1. Opens storage, cleaning it on the first Init when configured.
//  2. Creates the container with the system bundle.
//  3. Restores persisted bundles.
//  4. Resolves the system bundle.
//
// Init on an initialized framework does nothing.
func (f *Framework) Init(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initLocked(ctx)
}

func (f *Framework) initLocked(ctx context.Context) error {
	switch f.State() {
	case container.Starting, container.Active, container.Stopping:
		return nil
	}

	// Step 1: Storage
	st, err := f.openStorage(ctx)
	if err != nil {
		return err
	}

	// Step 2: Container
	c, err := container.New(f.containerOptions(st)...)
	if err != nil {
		return fmt.Errorf("creating container: %w", err)
	}

	// Step 3: Restore
	if err := c.Restore(ctx); err != nil {
		f.log.Warn("some bundles could not be restored", "error", err)
		c.FireFrameworkEvent(container.FrameworkEvent{Type: container.FrameworkWarning, Bundle: c.System(), Err: err})
	}

	// Step 4: System bundle
	rep, err := c.ResolveBundlesReport(ctx, []*container.Bundle{c.System()})
	if err == nil && rep != nil {
		err = rep
	}
	if err != nil {
		c.Close()
		return fmt.Errorf("resolving the system bundle: %w", err)
	}

	f.c = c
	f.st = st
	f.inits++
	f.stopped = make(chan struct{})
	f.state.Store(int32(container.Starting))
	f.log.Info("framework initialized", "bundles", c.Len()-1, "storage", f.s.storageDir)
	return nil
}

func (f *Framework) openStorage(ctx context.Context) (storage.Storage, error) {
	st := f.cfg.storage
	if st == nil && f.s.storageDir != "" {
		fs, err := storage.NewFS(f.s.storageDir)
		if err != nil {
			return nil, err
		}
		st = fs
	}
	if st == nil {
		if f.st != nil {
			// Keep the memory storage across re-initialization.
			return f.st, nil
		}
		st = storage.NewMemory()
	}
	if f.s.cleanOnFirst && f.inits == 0 {
		if err := st.Clean(ctx); err != nil {
			return nil, fmt.Errorf("cleaning storage: %w", err)
		}
		f.log.Debug("storage cleaned")
	}
	return st, nil
}

func (f *Framework) containerOptions(st storage.Storage) []container.Option {
	resOpts := []resolver.Option{resolver.WithLogger(f.log)}
	if f.cfg.maxPermutations > 0 {
		resOpts = append(resOpts, resolver.WithMaxPermutations(f.cfg.maxPermutations))
	}
	opts := []container.Option{
		container.WithLogger(f.log),
		container.WithStorage(st),
		container.WithResolver(resolver.New(resOpts...)),
		container.WithProperties(f.s.props),
		container.WithBootDelegation(f.s.bootDelegation...),
		container.WithRuntimeVersion(f.s.runtimeVersion()),
		container.WithStartLevelWorkers(f.s.workers),
		container.WithSystemBundle(f.systemBundle()),
	}
	if f.cfg.activators != nil {
		opts = append(opts, container.WithActivators(f.cfg.activators))
	}
	if len(f.cfg.hooks) > 0 {
		opts = append(opts, container.WithResolverHooks(f.cfg.hooks...))
	}
	if len(f.cfg.weaving) > 0 {
		opts = append(opts, container.WithWeavingHooks(f.cfg.weaving...))
	}
	if f.cfg.notifier != nil {
		opts = append(opts, container.WithServiceNotifier(f.cfg.notifier))
	}
	if f.metrics != nil {
		opts = append(opts, container.WithObserver(f.metrics))
	}
	if f.cfg.stateLockTimeout > 0 {
		opts = append(opts, container.WithStateLockTimeout(f.cfg.stateLockTimeout))
	}
	// boot and framework both delegate to the system bundle, the
	// container's default parent.
	if f.s.parent == ParentApp {
		opts = append(opts, container.WithParentLoader(f.cfg.parent))
	}
	return opts
}

// systemBundle describes bundle 0: it exports the extra system packages
// and provides the configured execution environments.
func (f *Framework) systemBundle() container.SystemBundle {
	headers := map[string]string{
		manifest.HeaderManifestVersion: "2",
		manifest.HeaderSymbolicName:    SystemSymbolicName + ";singleton:=true",
		manifest.HeaderVersion:         Version,
	}
	if f.s.extraPackages != "" {
		headers[manifest.HeaderExportPackage] = f.s.extraPackages
	}
	if len(f.s.ee) > 0 {
		headers[manifest.HeaderProvideCapability] = eeCapabilities(f.s.ee)
	}
	content := f.cfg.systemContent
	if content == nil {
		content = resource.MapContent{}
	}
	return container.SystemBundle{Location: SystemLocation, Headers: headers, Content: content}
}

// Start initializes the framework if needed, activates the system bundle
// and raises the start level to framework.beginning.startlevel. Bundle
// failures along the way are reported as framework ERROR events; Start
// itself fails only when the framework cannot start. A STARTED framework
// event fires at the end.
func (f *Framework) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.State() == container.Active {
		return nil
	}
	if err := f.initLocked(ctx); err != nil {
		return err
	}
	c := f.c
	sys := c.System()
	if err := c.Start(ctx, sys, container.StartTransient); err != nil {
		return fmt.Errorf("starting the system bundle: %w", err)
	}
	start := time.Now()
	if err := c.SetStartLevel(ctx, f.s.beginningLevel); err != nil {
		return fmt.Errorf("raising the start level: %w", err)
	}
	f.state.Store(int32(container.Active))
	c.FireFrameworkEvent(container.FrameworkEvent{Type: container.FrameworkStarted, Bundle: sys})
	f.log.Info("framework started", "level", f.s.beginningLevel, "took", time.Since(start))
	return nil
}

// Stop lowers the start level to 0, which stops every bundle requirers
// first, stops the system bundle and releases the container. Waiters in
// WaitForStop receive the STOPPED event. Stop on a framework that is not
// initialized does nothing.
func (f *Framework) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.State() {
	case container.Starting, container.Active:
	default:
		return nil
	}
	f.state.Store(int32(container.Stopping))
	c := f.c
	sys := c.System()

	var errs []error
	if err := c.SetStartLevel(ctx, 0); err != nil {
		errs = append(errs, fmt.Errorf("lowering the start level: %w", err))
	}
	if err := c.Stop(ctx, sys, container.StopTransient); err != nil {
		errs = append(errs, fmt.Errorf("stopping the system bundle: %w", err))
	}

	ev := container.FrameworkEvent{Type: container.FrameworkStopped, Bundle: sys}
	c.FireFrameworkEvent(ev)
	c.Close()

	f.c = nil
	f.stopEv = ev
	close(f.stopped)
	f.state.Store(int32(container.Resolved))
	f.log.Info("framework stopped")
	return errors.Join(errs...)
}

// WaitForStop blocks until the framework stops or timeout elapses. It
// returns the STOPPED event, or a WAIT_TIMEDOUT event on timeout. A zero
// timeout waits forever. A framework that is not running returns STOPPED
// at once.
func (f *Framework) WaitForStop(timeout time.Duration) FrameworkEvent {
	f.mu.Lock()
	ch := f.stopped
	running := f.c != nil
	f.mu.Unlock()
	if !running || ch == nil {
		return container.FrameworkEvent{Type: container.FrameworkStopped}
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case <-ch:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.stopEv
	case <-expired:
		return container.FrameworkEvent{Type: container.WaitTimedOut}
	}
}
