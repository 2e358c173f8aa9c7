package container

import (
	"context"
	"errors"
	"time"

	"github.com/albertocavalcante/go-modrt/resource"
	"github.com/albertocavalcante/go-modrt/storage"
)

// StartLevel returns the active framework start level.
func (c *Container) StartLevel() int { return int(c.startLevel.Load()) }

// SetStartLevel moves the framework start level to level one step at a
// time. Raising starts the persistently started bundles of each level,
// providers before requirers and independent branches in parallel.
// Lowering stops the bundles above level, requirers first. Failures are
// reported as framework ERROR events. STARTLEVEL_CHANGED fires when done.
func (c *Container) SetStartLevel(ctx context.Context, level int) error {
	if level < 0 {
		return invalid("start level %d is negative", level)
	}
	c.levelMu.Lock()
	defer c.levelMu.Unlock()

	cur := c.StartLevel()
	for cur < level {
		if err := ctx.Err(); err != nil {
			return err
		}
		cur++
		c.startLevel.Store(int32(cur))
		c.raise(ctx, cur)
	}
	for cur > level {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.lower(ctx, cur)
		cur--
		c.startLevel.Store(int32(cur))
	}
	if level > 0 {
		c.saveState(ctx)
	}
	c.ev.fireFramework(FrameworkEvent{Type: StartLevelChanged, Bundle: c.system})
	c.log.Debug("start level changed", "level", level)
	return nil
}

func (c *Container) raise(ctx context.Context, level int) {
	var batch []*Bundle
	var revs []*resource.Revision
	for _, b := range c.Bundles() {
		if b == c.system || b.IsFragment() || b.StartLevel() != level {
			continue
		}
		if b.Autostart() == storage.AutostartStopped || b.State() == Active {
			continue
		}
		batch = append(batch, b)
		if b.State() == Installed {
			revs = append(revs, b.Revision())
		}
	}
	if len(batch) == 0 {
		return
	}
	if len(revs) > 0 {
		if _, _, err := c.resolve(ctx, revs); err != nil {
			c.fireError(c.system, err)
		}
	}

	start := time.Now()
	g, set := c.dependencyGraph(batch, c.wiring.Load(), false)
	err := g.Run(ctx, c.cfg.workers, func(ctx context.Context, id int64) error {
		b := set[id]
		err := c.startTransient(ctx, b)
		var aerr *ActivatorError
		if err != nil && !errors.As(err, &aerr) {
			c.fireError(b, err)
		}
		return err
	})
	c.log.Debug("start level raised", "level", level, "bundles", len(batch), "took", time.Since(start), "error", err)
}

func (c *Container) lower(ctx context.Context, level int) {
	var batch []*Bundle
	for _, b := range c.Bundles() {
		if b == c.system || b.StartLevel() != level {
			continue
		}
		if s := b.State(); s == Active || s == Starting {
			batch = append(batch, b)
		}
	}
	if len(batch) == 0 {
		return
	}
	g, set := c.dependencyGraph(batch, c.wiring.Load(), true)
	err := g.Run(ctx, c.cfg.workers, func(ctx context.Context, id int64) error {
		b := set[id]
		err := c.stopTransient(ctx, b)
		var aerr *ActivatorError
		if err != nil && !errors.As(err, &aerr) {
			c.fireError(b, err)
		}
		return err
	})
	c.log.Debug("start level lowered", "level", level, "bundles", len(batch), "error", err)
}

// SetBundleStartLevel assigns b's start level and starts or stops it to
// match the framework start level.
func (c *Container) SetBundleStartLevel(ctx context.Context, b *Bundle, level int) error {
	if err := c.checkLive(b); err != nil {
		return err
	}
	if b == c.system {
		return invalid("the system bundle start level is fixed")
	}
	if level < 1 {
		return invalid("bundle start level %d must be positive", level)
	}
	ctx, release, err := b.acquire(ctx, c.cfg.stateLockTimeout)
	if err != nil {
		return err
	}
	defer release()

	b.mu.Lock()
	b.startLevel = level
	b.lastModified = time.Now()
	b.mu.Unlock()
	if err := c.cfg.storage.SaveBundle(ctx, b.record()); err != nil {
		c.log.Warn("failed to persist start level", "bundle", b.String(), "error", err)
	}

	fl := c.StartLevel()
	switch s := b.State(); {
	case level > fl && (s == Active || s == Starting):
		return c.stopLocked(ctx, b)
	case level <= fl && !b.IsFragment() && b.Autostart() != storage.AutostartStopped && s != Active:
		return c.startLocked(ctx, b, b.Autostart() == storage.AutostartDeclared)
	}
	return nil
}
