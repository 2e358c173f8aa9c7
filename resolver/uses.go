package resolver

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/albertocavalcante/go-modrt/resource"
)

// conflict is a uses-constraint violation found for one permutation.
type conflict struct {
	consumer *resource.Revision
	pkg      string
	req      *resource.Requirement
	detail   string
	// blame lists the slots whose choice contributed, in ascending order.
	blame []int
	// involved lists the pending providers taking part in the conflict.
	involved []*resource.Revision
}

// source is a capability visible to a revision and the slot that made it
// visible, or -1 when it is the revision's own export or a resolved wire.
type source struct {
	cand candidate
	slot int
}

// bundleSource is a required bundle of a revision.
type bundleSource struct {
	provider *resource.Revision
	reexport bool
	slot     int
}

// space computes package spaces for one permutation. Pending revisions use
// the permutation's choices, resolved revisions use the wiring.
type space struct {
	s       *session
	wiring  *resource.Wiring
	imports map[*resource.Revision]map[string]source
	bundles map[*resource.Revision][]bundleSource
	generic map[*resource.Revision][]source
	exports map[*resource.Revision]map[string][]candidate
}

func newSpace(s *session, wiring *resource.Wiring, perm []int) *space {
	sp := &space{
		s:       s,
		wiring:  wiring,
		imports: map[*resource.Revision]map[string]source{},
		bundles: map[*resource.Revision][]bundleSource{},
		generic: map[*resource.Revision][]source{},
		exports: map[*resource.Revision]map[string][]candidate{},
	}
	for i, sl := range s.slots {
		for _, c := range sl.chosen(perm[i]) {
			sp.add(sl.requirer, sl.req, c, i)
		}
	}
	return sp
}

func (sp *space) add(requirer *resource.Revision, q *resource.Requirement, c candidate, slot int) {
	switch q.Namespace {
	case resource.PackageNamespace:
		if sp.imports[requirer] == nil {
			sp.imports[requirer] = map[string]source{}
		}
		pkg := c.cap.Name()
		if _, ok := sp.imports[requirer][pkg]; !ok {
			sp.imports[requirer][pkg] = source{cand: c, slot: slot}
		}
	case resource.BundleNamespace:
		sp.bundles[requirer] = append(sp.bundles[requirer], bundleSource{provider: c.provider, reexport: q.Reexport(), slot: slot})
	default:
		sp.generic[requirer] = append(sp.generic[requirer], source{cand: c, slot: slot})
	}
}

func (sp *space) pending(rev *resource.Revision) bool {
	return sp.s.isPending[rev] && !sp.wiring.IsResolved(rev)
}

// importsOf returns the package imports of rev.
func (sp *space) importsOf(rev *resource.Revision) map[string]source {
	if sp.pending(rev) {
		return sp.imports[rev]
	}
	if m, ok := sp.imports[rev]; ok {
		return m
	}
	m := map[string]source{}
	for _, w := range sp.wiring.RequiredWires(rev, resource.PackageNamespace) {
		pkg := w.Capability.Name()
		if _, ok := m[pkg]; !ok {
			m[pkg] = source{cand: candidate{provider: w.Provider, cap: w.Capability}, slot: -1}
		}
	}
	sp.imports[rev] = m
	return m
}

func (sp *space) bundlesOf(rev *resource.Revision) []bundleSource {
	if sp.pending(rev) {
		return sp.bundles[rev]
	}
	var out []bundleSource
	for _, w := range sp.wiring.RequiredWires(rev, resource.BundleNamespace) {
		out = append(out, bundleSource{provider: w.Provider, reexport: w.Requirement.Reexport(), slot: -1})
	}
	return out
}

func (sp *space) capsOf(rev *resource.Revision) []*resource.Capability {
	if rw := sp.wiring.Get(rev); rw != nil {
		return rw.Capabilities
	}
	return sp.s.providedCaps(rev)
}

// substituted reports whether rev imports pkg from another provider while
// also exporting it.
func (sp *space) substituted(rev *resource.Revision, pkg string) bool {
	src, ok := sp.importsOf(rev)[pkg]
	return ok && src.cand.provider != rev
}

// exportsOf returns the packages rev makes available to requirers of the
// bundle: its own unsubstituted exports plus those it re-exports.
func (sp *space) exportsOf(rev *resource.Revision, visiting map[*resource.Revision]bool) map[string][]candidate {
	if m, ok := sp.exports[rev]; ok {
		return m
	}
	if visiting[rev] {
		return nil
	}
	visiting[rev] = true
	defer delete(visiting, rev)

	m := map[string][]candidate{}
	for _, c := range sp.capsOf(rev) {
		if c.Namespace != resource.PackageNamespace || sp.substituted(rev, c.Name()) {
			continue
		}
		m[c.Name()] = append(m[c.Name()], candidate{provider: rev, cap: c})
	}
	for _, b := range sp.bundlesOf(rev) {
		if !b.reexport {
			continue
		}
		for pkg, cands := range sp.exportsOf(b.provider, visiting) {
			m[pkg] = appendNew(m[pkg], cands...)
		}
	}
	if len(visiting) == 1 {
		sp.exports[rev] = m
	}
	return m
}

func appendNew(dst []candidate, cands ...candidate) []candidate {
	for _, c := range cands {
		if !slices.ContainsFunc(dst, func(d candidate) bool { return d.cap == c.cap }) {
			dst = append(dst, c)
		}
	}
	return dst
}

// visible returns the sources of pkg as seen from rev. An import is
// authoritative; otherwise required bundles and rev's own export combine.
func (sp *space) visible(rev *resource.Revision, pkg string) []source {
	if src, ok := sp.importsOf(rev)[pkg]; ok {
		return []source{src}
	}
	var out []source
	for _, b := range sp.bundlesOf(rev) {
		for _, c := range sp.exportsOf(b.provider, map[*resource.Revision]bool{})[pkg] {
			out = append(out, source{cand: c, slot: b.slot})
		}
	}
	for _, c := range sp.capsOf(rev) {
		if c.Namespace == resource.PackageNamespace && c.Name() == pkg {
			out = append(out, source{cand: candidate{provider: rev, cap: c}, slot: -1})
		}
	}
	return out
}

// roots returns every capability rev is wired to, directly or through
// required bundles, plus its own exports.
func (sp *space) roots(rev *resource.Revision) []source {
	var out []source
	imports := sp.importsOf(rev)
	pkgs := make([]string, 0, len(imports))
	for pkg := range imports {
		pkgs = append(pkgs, pkg)
	}
	slices.Sort(pkgs)
	for _, pkg := range pkgs {
		out = append(out, imports[pkg])
	}
	for _, b := range sp.bundlesOf(rev) {
		exp := sp.exportsOf(b.provider, map[*resource.Revision]bool{})
		names := make([]string, 0, len(exp))
		for pkg := range exp {
			names = append(names, pkg)
		}
		slices.Sort(names)
		for _, pkg := range names {
			for _, c := range exp[pkg] {
				out = append(out, source{cand: c, slot: b.slot})
			}
		}
	}
	for _, c := range sp.capsOf(rev) {
		if c.Namespace == resource.PackageNamespace && !sp.substituted(rev, c.Name()) {
			out = append(out, source{cand: candidate{provider: rev, cap: c}, slot: -1})
		}
	}
	if sp.pending(rev) {
		out = append(out, sp.generic[rev]...)
	}
	return out
}

// check returns the first conflict of consumer, or nil.
func (sp *space) check(consumer *resource.Revision) *conflict {
	seen := map[*resource.Capability]bool{}
	for _, root := range sp.roots(consumer) {
		if c := sp.walk(consumer, root.cand, []int{root.slot}, seen); c != nil {
			return c
		}
	}
	return nil
}

// walk follows the uses directives of cand and verifies that consumer sees
// the same providers for every used package. path holds the slots that led
// to cand.
func (sp *space) walk(consumer *resource.Revision, cand candidate, path []int, seen map[*resource.Capability]bool) *conflict {
	if seen[cand.cap] {
		return nil
	}
	seen[cand.cap] = true
	for _, used := range cand.cap.Uses() {
		mine := sp.visible(consumer, used)
		for _, theirs := range sp.visible(cand.provider, used) {
			if len(mine) > 0 && !slices.ContainsFunc(mine, func(m source) bool { return m.cand.cap == theirs.cand.cap }) {
				return sp.newConflict(consumer, used, cand, theirs, mine, path)
			}
			if c := sp.walk(consumer, theirs.cand, append(slices.Clip(path), theirs.slot), seen); c != nil {
				return c
			}
		}
	}
	return nil
}

func (sp *space) newConflict(consumer *resource.Revision, pkg string, via candidate, theirs source, mine []source, path []int) *conflict {
	blame := slices.Clone(path)
	blame = append(blame, theirs.slot)
	var seenBy []string
	for _, m := range mine {
		blame = append(blame, m.slot)
		seenBy = append(seenBy, m.cand.provider.String())
	}
	blame = slices.DeleteFunc(blame, func(i int) bool { return i < 0 })
	slices.Sort(blame)
	blame = slices.Compact(blame)

	c := &conflict{
		consumer: consumer,
		pkg:      pkg,
		blame:    blame,
		detail: fmt.Sprintf("package %s is used by %s and resolves to %s, but %s sees it from %s",
			pkg, via.cap.Name(), theirs.cand.provider, consumer, strings.Join(seenBy, ", ")),
	}
	for _, i := range blame {
		if sl := sp.s.slots[i]; sl.requirer == consumer {
			c.req = sl.req
			break
		}
	}
	for _, rev := range []*resource.Revision{via.provider, theirs.cand.provider} {
		if sp.pending(rev) && rev != consumer && !slices.Contains(c.involved, rev) {
			c.involved = append(c.involved, rev)
		}
	}
	return c
}

// checkSubstitution reports a slot wired to an export its provider no
// longer offers because the provider imports the package from elsewhere.
func (sp *space) checkSubstitution(perm []int) *conflict {
	for i, sl := range sp.s.slots {
		if sl.req.Namespace != resource.PackageNamespace {
			continue
		}
		for _, c := range sl.chosen(perm[i]) {
			if c.provider == sl.requirer || !sp.pending(c.provider) || !sp.substituted(c.provider, c.cap.Name()) {
				continue
			}
			blame := []int{i}
			if src := sp.importsOf(c.provider)[c.cap.Name()]; src.slot >= 0 {
				blame = append(blame, src.slot)
				slices.Sort(blame)
			}
			return &conflict{
				consumer: sl.requirer,
				pkg:      c.cap.Name(),
				req:      sl.req,
				blame:    blame,
				detail:   fmt.Sprintf("package %s of %s is substituted by an import", c.cap.Name(), c.provider),
			}
		}
	}
	return nil
}

// checkAll returns the first conflict of any viable pending consumer.
func (sp *space) checkAll(perm []int) *conflict {
	if c := sp.checkSubstitution(perm); c != nil {
		return c
	}
	for _, rev := range sp.s.pending {
		if rev.IsFragment() || !sp.s.viable(rev) {
			continue
		}
		if c := sp.check(rev); c != nil {
			return c
		}
	}
	return nil
}

// search explores candidate permutations breadth first, starting from the
// most preferred choice for every slot. A conflict advances each blamed
// slot to its next option. Visited permutations are memoized, and a choice
// that alone caused a conflict is never retried.
func (s *session) search() ([]int, *conflict, error) {
	start := make([]int, len(s.slots))
	queue := [][]int{start}
	visited := map[string]bool{permKey(start): true}
	bad := map[[2]int]bool{}
	var first *conflict

	for n := 0; len(queue) > 0 && n < s.maxPerms; n++ {
		if err := s.ctx.Err(); err != nil {
			return nil, nil, err
		}
		perm := queue[0]
		queue = queue[1:]
		if containsBad(perm, bad) {
			continue
		}
		c := newSpace(s, s.existing, perm).checkAll(perm)
		if c == nil {
			return perm, nil, nil
		}
		if first == nil {
			first = c
		}
		if len(c.blame) == 1 {
			bad[[2]int{c.blame[0], perm[c.blame[0]]}] = true
		}
		for _, i := range c.blame {
			sl := s.slots[i]
			if sl.multiple || perm[i]+1 >= len(sl.options) {
				continue
			}
			next := slices.Clone(perm)
			next[i]++
			if key := permKey(next); !visited[key] {
				visited[key] = true
				queue = append(queue, next)
			}
		}
	}
	return nil, first, nil
}

func containsBad(perm []int, bad map[[2]int]bool) bool {
	for i, o := range perm {
		if bad[[2]int{i, o}] {
			return true
		}
	}
	return false
}

func permKey(perm []int) string {
	var b strings.Builder
	for i, o := range perm {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(o))
	}
	return b.String()
}
