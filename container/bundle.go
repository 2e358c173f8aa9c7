package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/albertocavalcante/go-modrt/resource"
	"github.com/albertocavalcante/go-modrt/storage"
	"github.com/albertocavalcante/go-modrt/version"
)

// Bundle is an installed module. Its ID is never reused; its revision
// changes on update.
type Bundle struct {
	id       int64
	location string

	state   atomic.Int32
	current atomic.Pointer[resource.Revision]
	lock    stateLock

	mu           sync.Mutex
	startLevel   int
	autostart    storage.Autostart
	handle       storage.Handle
	lastModified time.Time
	lazyPending  bool
	activator    Activator
}

func newBundle(id int64, location string, rev *resource.Revision, startLevel int) *Bundle {
	b := &Bundle{
		id:           id,
		location:     location,
		lock:         newStateLock(),
		startLevel:   startLevel,
		lastModified: time.Now(),
	}
	b.current.Store(rev)
	b.state.Store(int32(Installed))
	return b
}

// ID returns the bundle ID.
func (b *Bundle) ID() int64 { return b.id }

// Location returns the install location.
func (b *Bundle) Location() string { return b.location }

// Revision returns the current revision.
func (b *Bundle) Revision() *resource.Revision { return b.current.Load() }

// SymbolicName returns the symbolic name of the current revision.
func (b *Bundle) SymbolicName() string { return b.Revision().SymbolicName() }

// Version returns the version of the current revision.
func (b *Bundle) Version() version.Version { return b.Revision().Version() }

// State returns the lifecycle state.
func (b *Bundle) State() State { return State(b.state.Load()) }

func (b *Bundle) setState(s State) State { return State(b.state.Swap(int32(s))) }

// StartLevel returns the assigned start level.
func (b *Bundle) StartLevel() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.startLevel
}

// Autostart returns the persistent start flag.
func (b *Bundle) Autostart() storage.Autostart {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.autostart
}

// LastModified returns the time of the last install, update or start
// level change.
func (b *Bundle) LastModified() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastModified
}

// LazyPending reports whether the bundle waits in STARTING for its first
// class load.
func (b *Bundle) LazyPending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lazyPending
}

func (b *Bundle) setLazyPending(v bool) {
	b.mu.Lock()
	b.lazyPending = v
	b.mu.Unlock()
}

func (b *Bundle) setActivator(a Activator) {
	b.mu.Lock()
	b.activator = a
	b.mu.Unlock()
}

func (b *Bundle) takeActivator() Activator {
	b.mu.Lock()
	defer b.mu.Unlock()
	a := b.activator
	b.activator = nil
	return a
}

// IsFragment reports whether the current revision is a fragment.
func (b *Bundle) IsFragment() bool { return b.Revision().IsFragment() }

func (b *Bundle) String() string {
	rev := b.Revision()
	if rev == nil || rev.SymbolicName() == "" {
		return fmt.Sprintf("%s [%d]", b.location, b.id)
	}
	return fmt.Sprintf("%s_%s [%d]", rev.SymbolicName(), rev.Version(), b.id)
}

func (b *Bundle) record() storage.BundleRecord {
	rev := b.Revision()
	b.mu.Lock()
	defer b.mu.Unlock()
	return storage.BundleRecord{
		ID:           b.id,
		Location:     b.location,
		SymbolicName: rev.SymbolicName(),
		Version:      rev.Version().String(),
		StartLevel:   b.startLevel,
		Autostart:    b.autostart,
		Generation:   rev.Generation(),
		Handle:       b.handle,
		Headers:      rev.Headers(),
		LastModified: b.lastModified.UnixNano(),
	}
}

// stateLock serializes state transitions of one bundle. Holders record
// themselves in the context so a nested transition of the same bundle from
// within the same operation fails fast instead of waiting on itself.
type stateLock struct {
	ch chan struct{}
}

func newStateLock() stateLock { return stateLock{ch: make(chan struct{}, 1)} }

type heldKey struct{}

// heldSet is an immutable set of bundles whose lock the operation holds.
type heldSet struct {
	b    *Bundle
	next *heldSet
}

func holds(ctx context.Context, b *Bundle) bool {
	for h, _ := ctx.Value(heldKey{}).(*heldSet); h != nil; h = h.next {
		if h.b == b {
			return true
		}
	}
	return false
}

// acquire locks b's state, waiting at most timeout. The returned context
// marks the lock as held and must be passed to nested operations.
func (b *Bundle) acquire(ctx context.Context, timeout time.Duration) (context.Context, func(), error) {
	if holds(ctx, b) {
		return nil, nil, invalid("%s is already changing state in this operation", b)
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case b.lock.ch <- struct{}{}:
	case <-timer.C:
		return nil, nil, fmt.Errorf("%w: %s after %s", ErrStateChangeTimeout, b, timeout)
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	parent, _ := ctx.Value(heldKey{}).(*heldSet)
	held := context.WithValue(ctx, heldKey{}, &heldSet{b: b, next: parent})
	return held, func() { <-b.lock.ch }, nil
}
