// Package container manages installed bundles, their lifecycle and the
// committed wiring.
//
// # Concurrency
//
// The current wiring is an immutable value behind an atomic pointer.
// Class loading and other readers never take a lock. Resolve, refresh,
// dynamic import and revision retirement compute a new wiring and swap it
// in while holding a single commit lock; resolution itself runs against a
// snapshot.
//
// Every bundle has a state lock with a bounded wait. An operation that
// holds a bundle's lock carries that fact in its context, so nested calls
// on the same bundle (an activator stopping its own bundle, for example)
// fail with ErrInvalidOperation instead of deadlocking.
//
// # Events
//
// Bundle events for one bundle are delivered in the order of its
// transitions. Synchronous listeners run inline; asynchronous bundle
// listeners and all framework listeners run on one dispatcher goroutine.
//
// # Refresh
//
// RefreshBundles computes the dependency closure of its roots over the
// current wiring and then:
//
//  1. stops active bundles, requirers first;
//  2. removes the closure from the wiring and fires UNRESOLVED, requirers
//     first;
//  3. resolves the closure again, firing RESOLVED providers first;
//  4. restarts the bundles that were active, providers first;
//  5. fires PACKAGES_REFRESHED.
//
// # Start Levels
//
// SetStartLevel walks one level at a time. Bundles of one level are
// started through a dependency graph so that independent branches start in
// parallel, bounded by WithStartLevelWorkers.
package container
