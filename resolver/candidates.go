package resolver

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/albertocavalcante/go-modrt/resource"
)

// candidate is a capability offered by a provider. For fragment-hosted
// capabilities the provider is the host while cap belongs to the fragment.
type candidate struct {
	provider *resource.Revision
	cap      *resource.Capability
}

func (c candidate) String() string {
	if c.cap == nil {
		return "<none>"
	}
	return c.provider.String() + " " + c.cap.String()
}

// hosted is an effective requirement of a host. from is the fragment that
// declared it, or nil.
type hosted struct {
	req  *resource.Requirement
	from *resource.Revision
}

// slot is one requirement to wire. Single-cardinality slots choose one of
// options; an optional slot ends with the zero candidate meaning no wire.
// Multiple-cardinality slots wire to every option.
type slot struct {
	requirer *resource.Revision
	req      *resource.Requirement
	options  []candidate
	multiple bool
}

// chosen returns the candidates wired for option index i.
func (sl *slot) chosen(i int) []candidate {
	if sl.multiple {
		return sl.options
	}
	if c := sl.options[i]; c.cap != nil {
		return []candidate{c}
	}
	return nil
}

func skipRequirement(q *resource.Requirement) bool {
	return !q.Effective() || q.Dynamic() || q.Namespace == resource.HostNamespace
}

func fragmentHostRequirement(frag *resource.Revision) *resource.Requirement {
	reqs := frag.Requirements(resource.HostNamespace)
	if len(reqs) == 0 {
		return nil
	}
	return reqs[0]
}

// attachFragments computes, for every pending fragment, the pending hosts
// it may attach to. Fragments never attach to hosts that are already
// resolved; that requires a refresh of the host.
func (s *session) attachFragments() error {
	for _, frag := range s.pending {
		if !frag.IsFragment() || len(s.base[frag]) > 0 {
			continue
		}
		hostReq := fragmentHostRequirement(frag)
		if hostReq == nil {
			s.base[frag] = append(s.base[frag], Cause{Reason: ReasonFragmentNoHost, Detail: "no host requirement"})
			continue
		}
		var caps []*resource.Capability
		var owners []*resource.Revision
		for _, host := range s.pending {
			if host.IsFragment() {
				continue
			}
			for _, hc := range host.Capabilities(resource.HostNamespace) {
				if hostReq.Matches(hc) {
					caps = append(caps, hc)
					owners = append(owners, host)
					break
				}
			}
		}
		kept, herr := s.hooks.filterMatches(hostReq, caps)
		if herr != nil {
			return herr
		}
		for i, hc := range caps {
			if slices.Contains(kept, hc) {
				s.hosts[frag] = append(s.hosts[frag], owners[i])
			}
		}
		if len(s.hosts[frag]) == 0 {
			detail := ""
			if s.hasResolvedHost(hostReq) {
				detail = "matching hosts are already resolved"
			}
			s.base[frag] = append(s.base[frag], Cause{Requirement: hostReq, Reason: ReasonFragmentNoHost, Detail: detail})
		}
	}
	return nil
}

func (s *session) hasResolvedHost(hostReq *resource.Requirement) bool {
	for _, rev := range s.existing.Revisions() {
		for _, hc := range rev.Capabilities(resource.HostNamespace) {
			if hostReq.Matches(hc) {
				return true
			}
		}
	}
	return false
}

// attached returns the viable fragments attached to host in bundle order.
func (s *session) attached(host *resource.Revision) []*resource.Revision {
	var out []*resource.Revision
	for _, frag := range s.pending {
		if frag.IsFragment() && s.viable(frag) && slices.Contains(s.hosts[frag], host) {
			out = append(out, frag)
		}
	}
	return out
}

// potentialFragments returns every fragment that may attach to host,
// regardless of viability.
func (s *session) potentialFragments(host *resource.Revision) []*resource.Revision {
	var out []*resource.Revision
	for _, frag := range s.pending {
		if frag.IsFragment() && slices.Contains(s.hosts[frag], host) {
			out = append(out, frag)
		}
	}
	return out
}

// providedCaps returns the effective capabilities of a provider. For a
// pending host this includes the capabilities of every potential fragment.
func (s *session) providedCaps(rev *resource.Revision) []*resource.Capability {
	if rw := s.existing.Get(rev); rw != nil {
		return rw.Capabilities
	}
	caps := slices.Clone(rev.Capabilities(""))
	if rev.IsFragment() {
		return caps
	}
	for _, frag := range s.potentialFragments(rev) {
		if !s.viable(frag) {
			continue
		}
		for _, c := range frag.Capabilities("") {
			if c.Namespace != resource.IdentityNamespace && c.Namespace != resource.HostNamespace {
				caps = append(caps, c)
			}
		}
	}
	return caps
}

// allProvidedCaps is providedCaps without the fragment viability filter.
func (s *session) allProvidedCaps(rev *resource.Revision) []*resource.Capability {
	if rw := s.existing.Get(rev); rw != nil {
		return rw.Capabilities
	}
	caps := slices.Clone(rev.Capabilities(""))
	if rev.IsFragment() {
		return caps
	}
	for _, frag := range s.potentialFragments(rev) {
		for _, c := range frag.Capabilities("") {
			if c.Namespace != resource.IdentityNamespace && c.Namespace != resource.HostNamespace {
				caps = append(caps, c)
			}
		}
	}
	return caps
}

// hostedReqs returns the effective requirements of a pending host: its own
// followed by those of its viable fragments.
func (s *session) hostedReqs(rev *resource.Revision) []hosted {
	var out []hosted
	for _, q := range rev.Requirements("") {
		if q.Namespace != resource.HostNamespace {
			out = append(out, hosted{req: q})
		}
	}
	for _, frag := range s.attached(rev) {
		for _, q := range frag.Requirements("") {
			if q.Namespace != resource.HostNamespace {
				out = append(out, hosted{req: q, from: frag})
			}
		}
	}
	return out
}

// substitutedResolved reports whether a resolved revision imports pkg from
// another provider, which hides its own export of pkg.
func (s *session) substitutedResolved(rev *resource.Revision, pkg string) bool {
	for _, w := range s.existing.RequiredWires(rev, resource.PackageNamespace) {
		if w.Capability.Name() == pkg && w.Provider != rev {
			return true
		}
	}
	return false
}

// matchesFor returns every capability matching q across all providers,
// filtered by hooks and sorted by preference. The result ignores viability
// and is cached for the whole call.
func (s *session) matchesFor(q *resource.Requirement) ([]candidate, error) {
	if cands, ok := s.matches[q]; ok {
		return cands, nil
	}
	var cands []candidate
	var caps []*resource.Capability
	for _, p := range s.providers {
		for _, c := range s.allProvidedCaps(p) {
			if !q.Matches(c) {
				continue
			}
			if p.IsFragment() && c.Namespace != resource.IdentityNamespace {
				continue
			}
			if c.Namespace == resource.PackageNamespace && s.existing.IsResolved(p) && s.substitutedResolved(p, c.Name()) {
				continue
			}
			cands = append(cands, candidate{provider: p, cap: c})
			caps = append(caps, c)
		}
	}
	if len(s.hooks.hooks) > 0 && len(caps) > 0 {
		kept, herr := s.hooks.filterMatches(q, caps)
		if herr != nil {
			return nil, herr
		}
		cands = slices.DeleteFunc(cands, func(c candidate) bool { return !slices.Contains(kept, c.cap) })
	}

	// Preference: already resolved, higher version, lower bundle ID, then
	// declaration order, which the stable sort preserves.
	slices.SortStableFunc(cands, func(a, b candidate) int {
		ra, rb := s.existing.IsResolved(a.provider), s.existing.IsResolved(b.provider)
		if ra != rb {
			if ra {
				return -1
			}
			return 1
		}
		if c := b.cap.Version().Compare(a.cap.Version()); c != 0 {
			return c
		}
		return cmp.Compare(a.provider.BundleID(), b.provider.BundleID())
	})
	s.matches[q] = cands
	return cands, nil
}

// viableCandidates returns the candidates for q, as required by requirer,
// whose providers can still resolve.
func (s *session) viableCandidates(requirer *resource.Revision, q *resource.Requirement) ([]candidate, error) {
	all, err := s.matchesFor(q)
	if err != nil {
		return nil, err
	}
	var out []candidate
	for _, c := range all {
		if q.Namespace == resource.BundleNamespace && c.provider == requirer {
			continue
		}
		if !s.viable(c.provider) {
			continue
		}
		if owner := c.cap.Revision(); owner != c.provider && !s.existing.IsResolved(c.provider) && !s.viable(owner) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *session) missingCause(q *resource.Requirement) Cause {
	reason := ReasonNoCandidates
	if q.Namespace == resource.ExecutionEnvironmentNamespace {
		reason = ReasonMissingExecutionEnvironment
	}
	var unresolvable []string
	for _, c := range s.matches[q] {
		if !s.viable(c.provider) {
			unresolvable = append(unresolvable, c.provider.String())
		}
	}
	detail := ""
	if len(unresolvable) > 0 {
		detail = "candidates cannot resolve: " + strings.Join(slices.Compact(unresolvable), ", ")
	}
	return Cause{Requirement: q, Reason: reason, Detail: detail}
}

// reduce removes revisions with unsatisfiable mandatory requirements until
// a fixpoint is reached. A failing hosted requirement fails its fragment
// only; the host stays.
func (s *session) reduce() error {
	for changed := true; changed; {
		changed = false
		if err := s.ctx.Err(); err != nil {
			return err
		}
		for _, frag := range s.pending {
			if !frag.IsFragment() || !s.viable(frag) {
				continue
			}
			if !slices.ContainsFunc(s.hosts[frag], s.viable) {
				s.fail(frag, Cause{
					Requirement: fragmentHostRequirement(frag),
					Reason:      ReasonFragmentNoHost,
					Detail:      "no host can resolve",
				})
				changed = true
			}
		}
		for _, rev := range s.pending {
			if rev.IsFragment() || !s.viable(rev) {
				continue
			}
			for _, h := range s.hostedReqs(rev) {
				if skipRequirement(h.req) || h.req.Optional() {
					continue
				}
				cands, err := s.viableCandidates(rev, h.req)
				if err != nil {
					return err
				}
				if len(cands) > 0 {
					continue
				}
				if h.from != nil {
					s.fail(h.from, s.missingCause(h.req))
				} else {
					s.fail(rev, s.missingCause(h.req))
				}
				changed = true
				break
			}
		}
	}
	return nil
}

// buildSlots lists the requirements of every viable pending host with
// their viable options.
func (s *session) buildSlots() error {
	s.slots = s.slots[:0]
	for _, rev := range s.pending {
		if rev.IsFragment() || !s.viable(rev) {
			continue
		}
		for _, h := range s.hostedReqs(rev) {
			if skipRequirement(h.req) {
				continue
			}
			cands, err := s.viableCandidates(rev, h.req)
			if err != nil {
				return err
			}
			if len(cands) == 0 {
				continue
			}
			sl := &slot{requirer: rev, req: h.req, options: cands}
			switch {
			case h.req.Cardinality == resource.CardinalityMultiple:
				sl.multiple = true
			case h.req.Optional():
				sl.options = append(slices.Clip(cands), candidate{})
			}
			s.slots = append(s.slots, sl)
		}
	}
	return nil
}

// identity returns the identity capability of rev.
func identity(rev *resource.Revision) *resource.Capability {
	ids := rev.Capabilities(resource.IdentityNamespace)
	if len(ids) == 0 {
		return nil
	}
	return ids[0]
}

// selectSingletons settles singleton collisions per symbolic name. The
// group is ordered by preference: resolved first, then higher version, then
// lower bundle ID. A candidate loses when a selected member is among its
// collisions as filtered by hooks.
func (s *session) selectSingletons() error {
	s.winners = map[*resource.Revision][]*resource.Revision{}
	groups := map[string][]*resource.Revision{}
	for _, rev := range s.providers {
		if !rev.IsSingleton() || !s.viable(rev) || s.excluded[rev] || identity(rev) == nil {
			continue
		}
		groups[rev.SymbolicName()] = append(groups[rev.SymbolicName()], rev)
	}
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		group := groups[name]
		if len(group) < 2 {
			continue
		}
		slices.SortStableFunc(group, func(a, b *resource.Revision) int {
			ra, rb := s.existing.IsResolved(a), s.existing.IsResolved(b)
			if ra != rb {
				if ra {
					return -1
				}
				return 1
			}
			if c := b.Version().Compare(a.Version()); c != 0 {
				return c
			}
			return resource.CompareRevisions(a, b)
		})
		var selected []*resource.Revision
		for _, rev := range group {
			cols, err := s.collisionSet(rev, group)
			if err != nil {
				return err
			}
			var winner *resource.Revision
			for _, sel := range selected {
				if cols[identity(sel)] {
					winner = sel
					break
				}
			}
			if winner == nil {
				selected = append(selected, rev)
				continue
			}
			s.fail(rev, Cause{
				Reason: ReasonSingletonCollision,
				Detail: fmt.Sprintf("singleton %s already selected", winner),
			})
			s.winners[winner] = append(s.winners[winner], rev)
		}
	}
	return nil
}

func (s *session) collisionSet(rev *resource.Revision, group []*resource.Revision) (map[*resource.Capability]bool, error) {
	if set, ok := s.collisions[rev]; ok {
		return set, nil
	}
	var others []*resource.Capability
	for _, o := range group {
		if o != rev {
			others = append(others, identity(o))
		}
	}
	if len(s.hooks.hooks) > 0 {
		kept, herr := s.hooks.filterSingletonCollisions(identity(rev), others)
		if herr != nil {
			return nil, herr
		}
		others = kept
	}
	set := make(map[*resource.Capability]bool, len(others))
	for _, c := range others {
		set[c] = true
	}
	s.collisions[rev] = set
	return set, nil
}

// retrySingletons excludes selected pending singletons that failed for
// another reason so the next member of their group gets a chance. It
// reports whether another round is needed.
func (s *session) retrySingletons() bool {
	retry := false
	for winner, losers := range s.winners {
		if len(losers) == 0 || s.viable(winner) || !s.isPending[winner] {
			continue
		}
		s.excluded[winner] = true
		s.base[winner] = append(s.base[winner], s.failed[winner]...)
		retry = true
	}
	return retry
}
