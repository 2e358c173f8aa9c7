package resolver

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"

	"github.com/albertocavalcante/go-modrt/resource"
)

// DefaultMaxPermutations bounds the uses-constraint search of one round.
const DefaultMaxPermutations = 10000

// Resolver computes wirings. A Resolver holds no per-call state and is safe
// for concurrent use.
type Resolver struct {
	logger          *slog.Logger
	maxPermutations int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger for resolution diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// WithMaxPermutations bounds the number of candidate permutations tried by
// the uses-constraint search before a consumer is given up on.
func WithMaxPermutations(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxPermutations = n
		}
	}
}

// New returns a Resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{maxPermutations: DefaultMaxPermutations}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.New(discardHandler{})
	}
	return r
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Resolve resolves the requested revisions against the existing wiring.
//
// On success the returned Result carries the new complete wiring. Existing
// is never modified. When a mandatory revision cannot be resolved the error
// is an *UnresolvedReport; a failing hook yields an *UnresolvedReport whose
// HookErr is set and whose failures cite ReasonHookRejected. Context
// cancellation returns the context error.
func (r *Resolver) Resolve(ctx context.Context, req Request) (res *Result, err error) {
	s := newSession(ctx, r, req)
	triggers := append(slices.Clone(req.Mandatory), req.Optional...)

	// Step 1: Begin every hook. End runs on every begun hook no matter how
	// the call ends.
	hooks, herr := beginHooks(req.Hooks, triggers)
	defer func() {
		if endErr := hooks.end(); endErr != nil && err == nil {
			res, err = nil, s.hookReport(endErr)
		}
	}()
	if herr != nil {
		return nil, s.hookReport(herr)
	}
	s.hooks = hooks

	if err := s.run(); err != nil {
		var h *HookError
		if errors.As(err, &h) {
			return nil, s.hookReport(h)
		}
		return nil, err
	}
	return s.result()
}

// session is the state of one Resolve call.
type session struct {
	ctx      context.Context
	log      *slog.Logger
	maxPerms int
	existing *resource.Wiring
	props    map[string]string
	hooks    *hookSet

	requested map[*resource.Revision]bool
	mandatory map[*resource.Revision]bool
	pending   []*resource.Revision
	isPending map[*resource.Revision]bool
	providers []*resource.Revision

	// base holds failures that persist across rounds. failed is rebuilt
	// from base at the start of every round.
	base     map[*resource.Revision][]Cause
	failed   map[*resource.Revision][]Cause
	excluded map[*resource.Revision]bool
	winners  map[*resource.Revision][]*resource.Revision

	hosts      map[*resource.Revision][]*resource.Revision
	native     map[*resource.Revision]*resource.NativeClause
	matches    map[*resource.Requirement][]candidate
	collisions map[*resource.Revision]map[*resource.Capability]bool

	slots  []*slot
	chosen []int
}

func newSession(ctx context.Context, r *Resolver, req Request) *session {
	existing := req.Existing
	if existing == nil {
		existing = resource.EmptyWiring()
	}
	if len(req.Refreshing) > 0 {
		existing = existing.Without(req.Refreshing...)
	}
	s := &session{
		ctx:        ctx,
		log:        r.logger,
		maxPerms:   r.maxPermutations,
		existing:   existing,
		props:      req.Properties,
		hooks:      &hookSet{},
		requested:  map[*resource.Revision]bool{},
		mandatory:  map[*resource.Revision]bool{},
		isPending:  map[*resource.Revision]bool{},
		base:       map[*resource.Revision][]Cause{},
		excluded:   map[*resource.Revision]bool{},
		hosts:      map[*resource.Revision][]*resource.Revision{},
		native:     map[*resource.Revision]*resource.NativeClause{},
		matches:    map[*resource.Requirement][]candidate{},
		collisions: map[*resource.Revision]map[*resource.Capability]bool{},
	}
	for _, rev := range req.Mandatory {
		s.requested[rev] = true
		s.mandatory[rev] = true
	}
	for _, rev := range req.Optional {
		s.requested[rev] = true
	}
	refreshing := map[*resource.Revision]bool{}
	for _, rev := range req.Refreshing {
		refreshing[rev] = true
	}
	addPending := func(rev *resource.Revision) {
		if rev == nil || refreshing[rev] || s.isPending[rev] || s.existing.IsResolved(rev) {
			return
		}
		s.isPending[rev] = true
		s.pending = append(s.pending, rev)
	}
	for _, rev := range req.Mandatory {
		addPending(rev)
	}
	for _, rev := range req.Optional {
		addPending(rev)
	}
	for _, rev := range req.Installed {
		addPending(rev)
	}
	resource.SortRevisions(s.pending)

	s.providers = s.existing.Revisions()
	s.providers = append(s.providers, s.pending...)
	return s
}

// run executes the resolution steps and leaves the chosen permutation in
// s.chosen. Errors are *HookError or context errors.
func (s *session) run() error {
	// Step 2: Let hooks narrow the resolvable set.
	if err := s.filterResolvable(); err != nil {
		return err
	}

	// Step 3: Native code selection does not depend on other revisions.
	s.selectNative()

	// Step 4: Static fragment to host attachment candidates.
	if err := s.attachFragments(); err != nil {
		return err
	}

	// Step 5: Rounds of singleton selection, candidate reduction and the
	// uses-constraint search. Every round that does not succeed records at
	// least one new permanent failure or singleton exclusion, so the loop
	// terminates.
	for round := 1; ; round++ {
		if err := s.ctx.Err(); err != nil {
			return err
		}
		s.failed = maps.Clone(s.base)
		if err := s.selectSingletons(); err != nil {
			return err
		}
		if err := s.reduce(); err != nil {
			return err
		}
		if s.retrySingletons() {
			s.log.Debug("retrying singleton selection", "round", round)
			continue
		}
		if err := s.buildSlots(); err != nil {
			return err
		}
		perm, conflict, err := s.search()
		if err != nil {
			return err
		}
		if conflict == nil {
			s.chosen = perm
			s.log.Debug("resolution converged", "round", round, "slots", len(s.slots))
			return nil
		}
		drop := s.dropFor(conflict)
		s.log.Debug("uses conflict", "revision", drop.String(), "package", conflict.pkg)
		s.base[drop] = append(s.base[drop], Cause{
			Requirement: conflict.req,
			Reason:      ReasonUsesConflict,
			Detail:      conflict.detail,
		})
	}
}

func (s *session) filterResolvable() error {
	if len(s.hooks.hooks) == 0 {
		return nil
	}
	kept, herr := s.hooks.filterResolvable(s.pending)
	if herr != nil {
		return herr
	}
	keep := map[*resource.Revision]bool{}
	for _, rev := range kept {
		keep[rev] = true
	}
	for _, rev := range s.pending {
		if !keep[rev] {
			s.base[rev] = append(s.base[rev], Cause{Reason: ReasonFilteredByHook})
		}
	}
	return nil
}

func (s *session) fail(rev *resource.Revision, c Cause) {
	s.failed[rev] = append(s.failed[rev], c)
}

// viable reports whether rev may still take part in this round.
func (s *session) viable(rev *resource.Revision) bool {
	if s.existing.IsResolved(rev) {
		return true
	}
	return s.isPending[rev] && len(s.failed[rev]) == 0
}

// dropFor picks the revision given up on after an exhausted uses search.
// Revisions requested as optional go first.
func (s *session) dropFor(c *conflict) *resource.Revision {
	if !s.mandatory[c.consumer] {
		return c.consumer
	}
	for _, rev := range c.involved {
		if s.requested[rev] && !s.mandatory[rev] {
			return rev
		}
	}
	return c.consumer
}

// result assembles the new wiring from the chosen permutation.
func (s *session) result() (*Result, error) {
	included := s.reachable()

	var rws []*resource.RevisionWiring
	var resolved []*resource.Revision
	for _, rev := range s.pending {
		if !included[rev] {
			continue
		}
		resolved = append(resolved, rev)
		if rev.IsFragment() {
			rws = append(rws, s.fragmentWiring(rev, included))
		} else {
			rws = append(rws, s.hostWiring(rev))
		}
	}

	report := s.report()
	if report != nil && slices.ContainsFunc(report.Failures, func(f RevisionFailure) bool { return f.Mandatory }) {
		return nil, report
	}

	wiring := s.existing
	if len(rws) > 0 {
		wiring = s.existing.With(rws...)
	}
	return &Result{Wiring: wiring, Resolved: resolved, Unresolved: report}, nil
}

// reachable returns the pending revisions to include: the requested ones
// that survived, every pending provider they are wired to, transitively, and
// the fragments attached to included hosts.
func (s *session) reachable() map[*resource.Revision]bool {
	wiredTo := map[*resource.Revision][]*resource.Revision{}
	for i, sl := range s.slots {
		for _, c := range sl.chosen(s.chosen[i]) {
			if s.isPending[c.provider] {
				wiredTo[sl.requirer] = append(wiredTo[sl.requirer], c.provider)
			}
		}
	}

	included := map[*resource.Revision]bool{}
	var queue []*resource.Revision
	visit := func(rev *resource.Revision) {
		if !included[rev] && s.isPending[rev] && s.viable(rev) {
			included[rev] = true
			queue = append(queue, rev)
		}
	}
	for _, rev := range s.pending {
		if !s.requested[rev] {
			continue
		}
		if rev.IsFragment() {
			for _, h := range s.hosts[rev] {
				visit(h)
			}
		}
		visit(rev)
	}
	for len(queue) > 0 {
		rev := queue[0]
		queue = queue[1:]
		for _, p := range wiredTo[rev] {
			visit(p)
		}
		if !rev.IsFragment() {
			for _, f := range s.attached(rev) {
				visit(f)
			}
		}
	}
	// A fragment is only included together with at least one host.
	for rev := range included {
		if rev.IsFragment() && !slices.ContainsFunc(s.hosts[rev], func(h *resource.Revision) bool { return included[h] }) {
			delete(included, rev)
		}
	}
	return included
}

func (s *session) hostWiring(rev *resource.Revision) *resource.RevisionWiring {
	rw := &resource.RevisionWiring{
		Revision:     rev,
		Capabilities: s.providedCaps(rev),
		Native:       s.native[rev],
	}
	for _, h := range s.hostedReqs(rev) {
		rw.Requirements = append(rw.Requirements, h.req)
	}
	for i, sl := range s.slots {
		if sl.requirer != rev {
			continue
		}
		for _, c := range sl.chosen(s.chosen[i]) {
			// A revision importing its own export keeps it; no wire.
			if c.provider == rev && sl.req.Namespace == resource.PackageNamespace {
				continue
			}
			rw.Required = append(rw.Required, &resource.Wire{
				Requirer:    rev,
				Requirement: sl.req,
				Provider:    c.provider,
				Capability:  c.cap,
			})
		}
	}
	return rw
}

func (s *session) fragmentWiring(frag *resource.Revision, included map[*resource.Revision]bool) *resource.RevisionWiring {
	rw := &resource.RevisionWiring{
		Revision:     frag,
		Capabilities: frag.Capabilities(""),
		Requirements: frag.Requirements(""),
	}
	hostReq := fragmentHostRequirement(frag)
	for _, h := range s.hosts[frag] {
		if !included[h] {
			continue
		}
		for _, hc := range h.Capabilities(resource.HostNamespace) {
			if hostReq.Matches(hc) {
				rw.Required = append(rw.Required, &resource.Wire{
					Requirer:    frag,
					Requirement: hostReq,
					Provider:    h,
					Capability:  hc,
				})
				break
			}
		}
	}
	return rw
}

// report lists the failures of requested revisions, or nil.
func (s *session) report() *UnresolvedReport {
	var failures []RevisionFailure
	for _, rev := range s.pending {
		if !s.requested[rev] || len(s.failed[rev]) == 0 {
			continue
		}
		failures = append(failures, RevisionFailure{
			Revision:  rev,
			Mandatory: s.mandatory[rev],
			Causes:    s.failed[rev],
		})
	}
	if len(failures) == 0 {
		return nil
	}
	return &UnresolvedReport{Failures: failures}
}

// hookReport fails every requested revision with ReasonHookRejected.
func (s *session) hookReport(h *HookError) *UnresolvedReport {
	rep := &UnresolvedReport{HookErr: h}
	var revs []*resource.Revision
	for rev := range s.requested {
		revs = append(revs, rev)
	}
	resource.SortRevisions(revs)
	for _, rev := range revs {
		rep.Failures = append(rep.Failures, RevisionFailure{
			Revision:  rev,
			Mandatory: s.mandatory[rev],
			Causes:    []Cause{{Reason: ReasonHookRejected, Detail: h.Error()}},
		})
	}
	return rep
}
