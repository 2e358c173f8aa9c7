package resolver

import (
	"context"
	"errors"
	"slices"

	"github.com/albertocavalcante/go-modrt/resource"
)

// ErrNotResolved is returned by ResolveDynamic when the requirer has no
// wiring.
var ErrNotResolved = errors.New("resolver: requirer is not resolved")

// DynamicRequest asks for one package wire on a resolved revision.
type DynamicRequest struct {
	Requirer   *resource.Revision
	Package    string
	Existing   *resource.Wiring
	Installed  []*resource.Revision
	Properties map[string]string
	Hooks      []HookFactory
	// Patterns are dynamic import patterns added at run time, for example
	// by weaving hooks, on top of the requirer's declared ones.
	Patterns []string
}

// ResolveDynamic wires a dynamic import of one package. Resolved exporters
// are preferred; otherwise unresolved exporters are resolved on the way.
// The returned wire is nil when no provider is available or when the
// requirer does not dynamically import the package. The wiring is Existing
// unless a wire was added.
func (r *Resolver) ResolveDynamic(ctx context.Context, req DynamicRequest) (*resource.Wiring, *resource.Wire, error) {
	existing := req.Existing
	if existing == nil {
		existing = resource.EmptyWiring()
	}
	rw := existing.Get(req.Requirer)
	if rw == nil {
		return nil, nil, ErrNotResolved
	}
	for _, w := range rw.Required {
		if w.Capability.Namespace == resource.PackageNamespace && w.Capability.Name() == req.Package {
			return existing, w, nil
		}
	}
	var dynamic []*resource.Requirement
	for _, q := range rw.Requirements {
		if q.Namespace == resource.PackageNamespace && q.Dynamic() && q.MatchesPackage(req.Package) {
			dynamic = append(dynamic, q)
		}
	}
	for _, pattern := range req.Patterns {
		q := resource.NewRequirement(resource.PackageNamespace, nil,
			map[string]any{resource.PackageNamespace: pattern},
			map[string]string{resource.DirectiveResolution: "dynamic"})
		if q.MatchesPackage(req.Package) {
			dynamic = append(dynamic, q)
		}
	}
	if len(dynamic) == 0 {
		return existing, nil, nil
	}

	wiring, cands, err := r.dynamicCandidates(ctx, req, existing, dynamic)
	if err != nil || len(cands) == 0 {
		return existing, nil, err
	}

	s := newSession(ctx, r, Request{Existing: wiring})
	for _, c := range cands {
		w := &resource.Wire{
			Requirer:    req.Requirer,
			Requirement: c.req,
			Provider:    c.provider,
			Capability:  c.cap,
		}
		trial := wiring.WithWire(w)
		if conflict := newSpace(s, trial, nil).check(req.Requirer); conflict != nil {
			r.logger.Debug("dynamic candidate rejected", "package", req.Package, "provider", c.provider.String(), "reason", conflict.detail)
			continue
		}
		return trial, w, nil
	}
	return existing, nil, nil
}

type dynamicCandidate struct {
	candidate
	req *resource.Requirement
}

// dynamicCandidates returns the wiring to extend and the candidates to try
// in preference order. When no resolved revision exports the package, the
// unresolved exporters are resolved as optional revisions first.
func (r *Resolver) dynamicCandidates(ctx context.Context, req DynamicRequest, existing *resource.Wiring, dynamic []*resource.Requirement) (*resource.Wiring, []dynamicCandidate, error) {
	wiring := existing
	cands, err := r.matchDynamic(ctx, req, wiring, dynamic)
	if err != nil || len(cands) > 0 {
		return wiring, cands, err
	}

	var exporters []*resource.Revision
	for _, rev := range req.Installed {
		if wiring.IsResolved(rev) || rev.IsFragment() {
			continue
		}
		if slices.Contains(rev.Exports(), req.Package) {
			exporters = append(exporters, rev)
		}
	}
	if len(exporters) == 0 {
		return wiring, nil, nil
	}
	res, err := r.Resolve(ctx, Request{
		Optional:   exporters,
		Installed:  req.Installed,
		Existing:   wiring,
		Properties: req.Properties,
		Hooks:      req.Hooks,
	})
	if err != nil {
		return wiring, nil, err
	}
	wiring = res.Wiring
	cands, err = r.matchDynamic(ctx, req, wiring, dynamic)
	return wiring, cands, err
}

// matchDynamic lists resolved exporters of the package that satisfy one of
// the dynamic requirements, filtered by hooks and sorted like static
// candidates.
func (r *Resolver) matchDynamic(ctx context.Context, req DynamicRequest, wiring *resource.Wiring, dynamic []*resource.Requirement) (out []dynamicCandidate, err error) {
	s := newSession(ctx, r, Request{Existing: wiring})
	hooks, herr := beginHooks(req.Hooks, []*resource.Revision{req.Requirer})
	defer func() {
		if endErr := hooks.end(); endErr != nil && err == nil {
			out, err = nil, endErr
		}
	}()
	if herr != nil {
		return nil, herr
	}
	s.hooks = hooks

	for _, q := range dynamic {
		all, err := s.matchesFor(q)
		if err != nil {
			return nil, err
		}
		for _, c := range all {
			if c.cap.Name() != req.Package || c.provider == req.Requirer {
				continue
			}
			if slices.ContainsFunc(out, func(d dynamicCandidate) bool { return d.cap == c.cap }) {
				continue
			}
			out = append(out, dynamicCandidate{candidate: c, req: q})
		}
	}
	return out, nil
}
