package resolver

import (
	"fmt"
	"slices"

	"github.com/albertocavalcante/go-modrt/resource"
)

// HookFactory begins a resolver hook for one resolve operation.
type HookFactory interface {
	Begin(triggers []*resource.Revision) (Hook, error)
}

// Hook filters resolver decisions. Filter methods may only remove entries;
// anything added is ignored. End is called once for every begun hook, even
// when resolution fails.
type Hook interface {
	FilterResolvable(candidates []*resource.Revision) ([]*resource.Revision, error)
	FilterSingletonCollisions(singleton *resource.Capability, collisions []*resource.Capability) ([]*resource.Capability, error)
	FilterMatches(req *resource.Requirement, candidates []*resource.Capability) ([]*resource.Capability, error)
	End() error
}

// HookFuncs adapts plain functions to Hook and HookFactory. Nil fields keep
// every candidate.
type HookFuncs struct {
	OnBegin                     func(triggers []*resource.Revision) error
	OnFilterResolvable          func(candidates []*resource.Revision) ([]*resource.Revision, error)
	OnFilterSingletonCollisions func(singleton *resource.Capability, collisions []*resource.Capability) ([]*resource.Capability, error)
	OnFilterMatches             func(req *resource.Requirement, candidates []*resource.Capability) ([]*resource.Capability, error)
	OnEnd                       func() error
}

var (
	_ Hook        = (*HookFuncs)(nil)
	_ HookFactory = (*HookFuncs)(nil)
)

// Begin implements HookFactory.
func (h *HookFuncs) Begin(triggers []*resource.Revision) (Hook, error) {
	if h.OnBegin != nil {
		if err := h.OnBegin(triggers); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// FilterResolvable implements Hook.
func (h *HookFuncs) FilterResolvable(c []*resource.Revision) ([]*resource.Revision, error) {
	if h.OnFilterResolvable == nil {
		return c, nil
	}
	return h.OnFilterResolvable(c)
}

// FilterSingletonCollisions implements Hook.
func (h *HookFuncs) FilterSingletonCollisions(s *resource.Capability, c []*resource.Capability) ([]*resource.Capability, error) {
	if h.OnFilterSingletonCollisions == nil {
		return c, nil
	}
	return h.OnFilterSingletonCollisions(s, c)
}

// FilterMatches implements Hook.
func (h *HookFuncs) FilterMatches(r *resource.Requirement, c []*resource.Capability) ([]*resource.Capability, error) {
	if h.OnFilterMatches == nil {
		return c, nil
	}
	return h.OnFilterMatches(r, c)
}

// End implements Hook.
func (h *HookFuncs) End() error {
	if h.OnEnd == nil {
		return nil
	}
	return h.OnEnd()
}

// hookSet holds the hooks begun for one operation. Every call recovers
// panics and turns them into a *HookError.
type hookSet struct {
	hooks []Hook
}

func beginHooks(factories []HookFactory, triggers []*resource.Revision) (*hookSet, *HookError) {
	hs := &hookSet{}
	for _, f := range factories {
		var h Hook
		err := guard(func() error {
			var err error
			h, err = f.Begin(slices.Clone(triggers))
			return err
		})
		if err != nil {
			return hs, &HookError{Op: "begin", Err: err}
		}
		if h != nil {
			hs.hooks = append(hs.hooks, h)
		}
	}
	return hs, nil
}

// end calls End on every begun hook and returns the first failure.
func (hs *hookSet) end() *HookError {
	var first *HookError
	for _, h := range hs.hooks {
		if err := guard(h.End); err != nil && first == nil {
			first = &HookError{Op: "end", Err: err}
		}
	}
	return first
}

func (hs *hookSet) filterResolvable(revs []*resource.Revision) ([]*resource.Revision, *HookError) {
	for _, h := range hs.hooks {
		var out []*resource.Revision
		err := guard(func() error {
			var err error
			out, err = h.FilterResolvable(slices.Clone(revs))
			return err
		})
		if err != nil {
			return nil, &HookError{Op: "filterResolvable", Err: err}
		}
		revs = keepSubset(revs, out)
	}
	return revs, nil
}

func (hs *hookSet) filterSingletonCollisions(s *resource.Capability, cols []*resource.Capability) ([]*resource.Capability, *HookError) {
	for _, h := range hs.hooks {
		var out []*resource.Capability
		err := guard(func() error {
			var err error
			out, err = h.FilterSingletonCollisions(s, slices.Clone(cols))
			return err
		})
		if err != nil {
			return nil, &HookError{Op: "filterSingletonCollisions", Err: err}
		}
		cols = keepSubset(cols, out)
	}
	return cols, nil
}

func (hs *hookSet) filterMatches(req *resource.Requirement, caps []*resource.Capability) ([]*resource.Capability, *HookError) {
	for _, h := range hs.hooks {
		var out []*resource.Capability
		err := guard(func() error {
			var err error
			out, err = h.FilterMatches(req, slices.Clone(caps))
			return err
		})
		if err != nil {
			return nil, &HookError{Op: "filterMatches", Err: err}
		}
		caps = keepSubset(caps, out)
	}
	return caps, nil
}

// keepSubset returns the elements of orig present in kept, in orig order.
func keepSubset[T comparable](orig, kept []T) []T {
	set := make(map[T]bool, len(kept))
	for _, k := range kept {
		set[k] = true
	}
	out := make([]T, 0, len(kept))
	for _, o := range orig {
		if set[o] {
			out = append(out, o)
		}
	}
	return out
}

func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
