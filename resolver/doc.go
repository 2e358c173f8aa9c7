// Package resolver computes consistent wirings for bundle revisions.
//
// The resolver is a pure function over its inputs. It reads a snapshot of
// installed revisions and the currently committed wiring and returns a new
// wiring; it never mutates either input, so several trial resolutions may
// run concurrently.
//
// # Algorithm Overview
//
// A call to Resolve proceeds in steps:
//
//  1. Resolver hooks are begun and may filter the resolvable set.
//  2. Singleton collisions are settled per symbolic name. An already
//     resolved singleton wins, otherwise the highest version does.
//  3. Fragments attach to matching hosts that resolve in the same call.
//  4. Native code clauses are selected against framework properties.
//  5. Candidate capabilities are collected for every requirement and the
//     set of resolvable revisions is reduced to a fixpoint.
//  6. Uses constraints are checked over package spaces. On a conflict the
//     resolver backtracks to the next candidate of a blamed requirement.
//     Visited candidate permutations are memoized and the total number of
//     permutations is bounded.
//  7. Hooks are ended, even when resolution failed.
//
// Candidates are preferred in this order: providers already resolved in the
// existing wiring, higher capability version, lower bundle ID, then
// declaration order. The same inputs always produce the same wiring.
//
// # Failures
//
// When a mandatory revision cannot be resolved, Resolve returns an
// *UnresolvedReport naming each failing requirement and its Reason.
// Optional revisions that fail are listed in Result.Unresolved instead.
package resolver
