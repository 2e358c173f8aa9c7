package container

import (
	"fmt"
	"slices"
	"sync"
)

// BundleListener receives bundle events.
type BundleListener func(BundleEvent)

// FrameworkListener receives framework events.
type FrameworkListener func(FrameworkEvent)

type listenerEntry[L any] struct {
	id   uint64
	fn   L
	sync bool
}

// events fans out lifecycle events. Synchronous bundle listeners run on
// the goroutine performing the transition. Everything else is queued to a
// single dispatcher goroutine, which preserves the order events were fired
// in and therefore the per-bundle order.
type events struct {
	mu        sync.Mutex
	nextID    uint64
	bundle    []listenerEntry[BundleListener]
	framework []listenerEntry[FrameworkListener]

	queueMu sync.Mutex
	queue   []func()
	wake    chan struct{}
	done    chan struct{}
	closed  bool

	onPanic func(any)
}

func newEvents(onPanic func(any)) *events {
	e := &events{
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		onPanic: onPanic,
	}
	go e.run()
	return e
}

func (e *events) addBundle(l BundleListener, sync bool) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.bundle = append(e.bundle, listenerEntry[BundleListener]{id: id, fn: l, sync: sync})
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.bundle = slices.DeleteFunc(e.bundle, func(x listenerEntry[BundleListener]) bool { return x.id == id })
	}
}

func (e *events) addFramework(l FrameworkListener) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.framework = append(e.framework, listenerEntry[FrameworkListener]{id: id, fn: l})
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.framework = slices.DeleteFunc(e.framework, func(x listenerEntry[FrameworkListener]) bool { return x.id == id })
	}
}

func (e *events) fireBundle(ev BundleEvent) {
	e.mu.Lock()
	ls := slices.Clone(e.bundle)
	e.mu.Unlock()

	var async []BundleListener
	for _, l := range ls {
		if l.sync {
			e.call(func() { l.fn(ev) })
		} else {
			async = append(async, l.fn)
		}
	}
	if len(async) > 0 {
		e.post(func() {
			for _, fn := range async {
				e.call(func() { fn(ev) })
			}
		})
	}
}

func (e *events) fireFramework(ev FrameworkEvent) {
	e.mu.Lock()
	ls := slices.Clone(e.framework)
	e.mu.Unlock()
	if len(ls) == 0 {
		return
	}
	e.post(func() {
		for _, l := range ls {
			e.call(func() { l.fn(ev) })
		}
	})
}

// call runs a listener, containing panics.
func (e *events) call(fn func()) {
	defer func() {
		if r := recover(); r != nil && e.onPanic != nil {
			e.onPanic(r)
		}
	}()
	fn()
}

func (e *events) post(fn func()) {
	e.queueMu.Lock()
	if e.closed {
		e.queueMu.Unlock()
		return
	}
	e.queue = append(e.queue, fn)
	e.queueMu.Unlock()
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *events) run() {
	defer close(e.done)
	for {
		e.queueMu.Lock()
		batch := e.queue
		e.queue = nil
		closed := e.closed
		e.queueMu.Unlock()

		for _, fn := range batch {
			fn()
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-e.wake
	}
}

// close delivers queued events and stops the dispatcher.
func (e *events) close() {
	e.queueMu.Lock()
	if e.closed {
		e.queueMu.Unlock()
		<-e.done
		return
	}
	e.closed = true
	e.queueMu.Unlock()
	select {
	case e.wake <- struct{}{}:
	default:
	}
	<-e.done
}

// flush waits until every event queued so far has been delivered.
func (e *events) flush() {
	ch := make(chan struct{})
	e.queueMu.Lock()
	if e.closed {
		e.queueMu.Unlock()
		return
	}
	e.queue = append(e.queue, func() { close(ch) })
	e.queueMu.Unlock()
	select {
	case e.wake <- struct{}{}:
	default:
	}
	<-ch
}

func panicError(r any) error { return fmt.Errorf("listener panic: %v", r) }
