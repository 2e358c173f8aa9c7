package container

import (
	"context"
	"errors"
	"time"

	"github.com/albertocavalcante/go-modrt/resource"
	"github.com/albertocavalcante/go-modrt/storage"
)

var errLazyNotPending = errors.New("bundle is not waiting for lazy activation")

// Start starts a bundle. Without StartTransient the persistent start flag
// is recorded first, and a bundle above the framework start level is left
// to be started when the level rises. A transient start above the level
// fails. With StartActivationPolicy a lazily activated bundle moves to
// STARTING and activates on its first class load.
func (c *Container) Start(ctx context.Context, b *Bundle, opts StartOptions) error {
	if err := c.checkLive(b); err != nil {
		return err
	}
	if b.IsFragment() {
		return invalid("fragment %s cannot be started", b)
	}
	ctx, release, err := b.acquire(ctx, c.cfg.stateLockTimeout)
	if err != nil {
		return err
	}
	defer release()
	if err := c.checkLive(b); err != nil {
		return err
	}

	declared := opts&StartActivationPolicy != 0
	if opts&StartTransient != 0 {
		if b.StartLevel() > c.StartLevel() {
			return invalid("%s has start level %d above the framework start level %d", b, b.StartLevel(), c.StartLevel())
		}
	} else {
		a := storage.AutostartEager
		if declared {
			a = storage.AutostartDeclared
		}
		c.setAutostart(ctx, b, a)
		if b.StartLevel() > c.StartLevel() {
			return nil
		}
	}
	return c.startLocked(ctx, b, declared)
}

// Stop stops a bundle. Without StopTransient the persistent start flag is
// cleared so the bundle stays stopped across restarts.
func (c *Container) Stop(ctx context.Context, b *Bundle, opts StopOptions) error {
	if err := c.checkLive(b); err != nil {
		return err
	}
	if b.IsFragment() {
		return invalid("fragment %s cannot be stopped", b)
	}
	ctx, release, err := b.acquire(ctx, c.cfg.stateLockTimeout)
	if err != nil {
		return err
	}
	defer release()
	if err := c.checkLive(b); err != nil {
		return err
	}
	if opts&StopTransient != 0 {
		if b.StartLevel() > c.StartLevel() {
			return invalid("%s has start level %d above the framework start level %d", b, b.StartLevel(), c.StartLevel())
		}
	} else {
		c.setAutostart(ctx, b, storage.AutostartStopped)
	}
	return c.stopLocked(ctx, b)
}

// startTransient starts b with its persistent activation policy without
// changing the flag.
func (c *Container) startTransient(ctx context.Context, b *Bundle) error {
	ctx, release, err := b.acquire(ctx, c.cfg.stateLockTimeout)
	if err != nil {
		return err
	}
	defer release()
	if err := c.checkLive(b); err != nil {
		return err
	}
	return c.startLocked(ctx, b, b.Autostart() == storage.AutostartDeclared)
}

func (c *Container) stopTransient(ctx context.Context, b *Bundle) error {
	ctx, release, err := b.acquire(ctx, c.cfg.stateLockTimeout)
	if err != nil {
		return err
	}
	defer release()
	return c.stopLocked(ctx, b)
}

func (c *Container) setAutostart(ctx context.Context, b *Bundle, a storage.Autostart) {
	b.mu.Lock()
	changed := b.autostart != a
	b.autostart = a
	b.mu.Unlock()
	if !changed || b == c.system {
		return
	}
	if err := c.cfg.storage.SaveBundle(ctx, b.record()); err != nil {
		c.log.Warn("failed to persist start flag", "bundle", b.String(), "error", err)
	}
}

// startLocked resolves and starts b. Callers hold b's state lock.
func (c *Container) startLocked(ctx context.Context, b *Bundle, declared bool) error {
	switch b.State() {
	case Active:
		return nil
	case Starting:
		if !b.LazyPending() || declared {
			return nil
		}
		return c.activate(ctx, b)
	case Installed:
		if _, rep, err := c.resolve(ctx, []*resource.Revision{b.Revision()}); err != nil {
			return err
		} else if rep != nil {
			return rep
		}
		if b.State() != Resolved {
			return invalid("%s could not be resolved", b)
		}
	case Uninstalled:
		return invalid("%s is uninstalled", b)
	}

	if declared && b.Revision().Activation().Lazy {
		b.setLazyPending(true)
		c.transition(b, Starting)
		c.fire(b, EventLazyActivation)
		c.log.Debug("bundle waiting for lazy activation", "bundle", b.String())
		return nil
	}
	return c.activate(ctx, b)
}

// activate runs the activator. On failure the bundle goes back to RESOLVED
// and a framework ERROR event is fired.
func (c *Container) activate(ctx context.Context, b *Bundle) error {
	b.setLazyPending(false)
	c.transition(b, Starting)
	c.fire(b, EventStarting)

	act, err := c.lookupActivator(b)
	if err == nil && act != nil {
		bc := c.contextFor(b)
		err = callActivator(func() error { return act.Start(ctx, bc) })
	}
	if err != nil {
		c.transition(b, Stopping)
		c.fire(b, EventStopping)
		c.transition(b, Resolved)
		c.fire(b, EventStopped)
		return c.activatorFailed(b, "start", err)
	}

	b.setActivator(act)
	c.transition(b, Active)
	if n := c.cfg.notifier; n != nil {
		n.BundleActive(b)
	}
	c.fire(b, EventStarted)
	c.log.Info("bundle started", "bundle", b.String())
	return nil
}

// stopLocked stops b. Callers hold b's state lock.
func (c *Container) stopLocked(ctx context.Context, b *Bundle) error {
	switch b.State() {
	case Starting:
		if !b.LazyPending() {
			return nil
		}
		b.setLazyPending(false)
		c.transition(b, Stopping)
		c.fire(b, EventStopping)
		c.transition(b, Resolved)
		c.fire(b, EventStopped)
		return nil
	case Active:
	default:
		return nil
	}

	c.transition(b, Stopping)
	c.fire(b, EventStopping)
	if n := c.cfg.notifier; n != nil {
		n.BundleStopping(b)
	}
	var err error
	if act := b.takeActivator(); act != nil {
		bc := c.contextFor(b)
		err = callActivator(func() error { return act.Stop(ctx, bc) })
	}
	c.transition(b, Resolved)
	c.fire(b, EventStopped)
	if err != nil {
		return c.activatorFailed(b, "stop", err)
	}
	c.log.Info("bundle stopped", "bundle", b.String())
	return nil
}

func (c *Container) activatorFailed(b *Bundle, op string, err error) error {
	aerr := &ActivatorError{Bundle: b, Op: op, Err: err}
	c.obs.ObserveActivatorError(op)
	c.fireError(b, aerr)
	c.log.Warn("activator failed", "bundle", b.String(), "op", op, "error", err)
	return aerr
}

func (c *Container) lookupActivator(b *Bundle) (Activator, error) {
	name := b.Revision().Activator()
	if name == "" {
		return nil, nil
	}
	return c.cfg.activators.Lookup(name)
}

// lazyActivate is the loader's first-class-load trigger. It activates b
// when it waits in STARTING under the lazy policy. The trigger is re-armed
// only when b was not waiting for activation or its state lock could not be
// taken. A failed activation is reported as a framework ERROR event, leaves
// b RESOLVED and spends the trigger, so later class loads do not retry.
func (c *Container) lazyActivate(ctx context.Context, rev *resource.Revision) error {
	b := c.bundleOf(rev)
	if b == nil || b.Revision() != rev {
		return errLazyNotPending
	}
	if b.State() != Starting || !b.LazyPending() {
		return errLazyNotPending
	}
	ctx, release, err := b.acquire(ctx, c.cfg.stateLockTimeout)
	if err != nil {
		return err
	}
	defer release()
	if b.State() != Starting || !b.LazyPending() {
		return errLazyNotPending
	}
	start := time.Now()
	if err := c.activate(ctx, b); err != nil {
		// Reported through events; the trigger stays spent.
		return nil
	}
	c.log.Debug("lazy activation", "bundle", b.String(), "took", time.Since(start))
	return nil
}
