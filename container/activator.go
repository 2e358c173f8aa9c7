package container

import (
	"context"
	"fmt"
	"sync"
)

// Activator is the start/stop callback pair of a bundle, named by its
// Bundle-Activator header.
type Activator interface {
	Start(ctx context.Context, bc *BundleContext) error
	Stop(ctx context.Context, bc *BundleContext) error
}

// ActivatorFuncs adapts plain functions to Activator. Nil funcs succeed.
type ActivatorFuncs struct {
	OnStart func(ctx context.Context, bc *BundleContext) error
	OnStop  func(ctx context.Context, bc *BundleContext) error
}

// Start implements Activator.
func (a ActivatorFuncs) Start(ctx context.Context, bc *BundleContext) error {
	if a.OnStart == nil {
		return nil
	}
	return a.OnStart(ctx, bc)
}

// Stop implements Activator.
func (a ActivatorFuncs) Stop(ctx context.Context, bc *BundleContext) error {
	if a.OnStop == nil {
		return nil
	}
	return a.OnStop(ctx, bc)
}

// ActivatorFactory creates the activator for one start of a bundle.
type ActivatorFactory func() Activator

// Activators maps activator names to factories. It is safe for concurrent
// use.
type Activators struct {
	mu        sync.RWMutex
	factories map[string]ActivatorFactory
}

// NewActivators returns an empty registry.
func NewActivators() *Activators {
	return &Activators{factories: make(map[string]ActivatorFactory)}
}

// Register adds or replaces a factory.
func (r *Activators) Register(name string, f ActivatorFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Lookup returns a new activator for name.
func (r *Activators) Lookup(name string) (Activator, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no activator registered as %q", name)
	}
	return f(), nil
}

// ServiceNotifier is told about transitions that affect services
// registered by a bundle.
type ServiceNotifier interface {
	BundleActive(b *Bundle)
	BundleStopping(b *Bundle)
}

// callActivator runs fn and turns a panic into an error.
func callActivator(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
