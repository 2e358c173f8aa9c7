// Package loader finds classes and resources for one resolved revision.
//
// A Loader is bound to exactly one wiring generation. It reads the wires of
// its revision from that generation when it is built and never consults a
// newer one, so a class loaded before a refresh stays a distinct type from
// the same class loaded afterwards. Once the revision drops out of the
// current wiring, or its owner retires the loader because a refresh rebuilt
// the revision's wires, the loader reports *StaleWiringError for classes it
// has not defined yet; classes it already defined keep working.
//
// # Delegation
//
// Every lookup runs the same ordered list of steps and stops at the first
// step that decides:
//
//  1. Boot delegation. Packages matching the configured prefixes go to the
//     parent first. Only a parent miss lets the lookup continue.
//  2. Imports. A package wire, static or added by a dynamic import, is
//     authoritative: the provider answers and there is no local fallback.
//  3. Required bundles, in wiring order. Re-exported bundles are followed
//     transitively.
//  4. The local class path: the host's Bundle-ClassPath entries, nested
//     archives included, then the entries of attached fragments in
//     attachment order. Multi-release overlays are selected once, when the
//     loader is built, for the configured runtime version.
//  5. Dynamic imports. A matching pattern asks the environment for one new
//     wire. Concurrent requests for the same package share one resolution,
//     and the wire is reused by later lookups.
//
// ErrClassNotFound is the ordinary outcome of a miss and is not logged as a
// failure.
//
// # Classes
//
// A class named "com.acme.Foo" is read from "com/acme/Foo.class". The
// loader that owns the bytes defines the class once and caches it, so every
// importer observes the same *Class. Weaving hooks see the bytes before
// definition; a hook that loads the class it is weaving gets the unwoven
// definition instead of a second weaving pass.
package loader
