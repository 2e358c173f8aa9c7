package loader

import (
	"context"
	"fmt"
	"slices"

	"github.com/albertocavalcante/go-modrt/resource"
)

// WovenClass is a class about to be defined.
type WovenClass struct {
	Name     string
	Revision *resource.Revision
	// Bytes may be replaced by the hook.
	Bytes []byte
	// DynamicImports may be extended with package patterns that become
	// dynamic imports of the revision.
	DynamicImports []string
}

// WeavingHook transforms class bytes before definition.
type WeavingHook interface {
	Weave(ctx context.Context, wc *WovenClass) error
}

// WeavingFunc adapts a function to WeavingHook.
type WeavingFunc func(ctx context.Context, wc *WovenClass) error

// Weave implements WeavingHook.
func (f WeavingFunc) Weave(ctx context.Context, wc *WovenClass) error { return f(ctx, wc) }

// weave runs the hooks for name unless name is already being woven by this
// loader, in which case the bytes are returned unchanged.
func (l *Loader) weave(ctx context.Context, name string, data []byte) ([]byte, error) {
	if len(l.cfg.weaving) == 0 {
		return data, nil
	}
	l.mu.Lock()
	if l.weavingNow[name] {
		l.mu.Unlock()
		return data, nil
	}
	l.weavingNow[name] = true
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.weavingNow, name)
		l.mu.Unlock()
	}()

	wc := &WovenClass{Name: name, Revision: l.rev, Bytes: data}
	for _, h := range l.cfg.weaving {
		if err := runHook(ctx, h, wc); err != nil {
			return nil, &WeavingError{Class: name, Err: err}
		}
	}
	if len(wc.DynamicImports) > 0 {
		l.mu.Lock()
		for _, p := range wc.DynamicImports {
			if !slices.Contains(l.wovenImports, p) {
				l.wovenImports = append(l.wovenImports, p)
			}
		}
		l.mu.Unlock()
	}
	return wc.Bytes, nil
}

func runHook(ctx context.Context, h WeavingHook, wc *WovenClass) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.Weave(ctx, wc)
}
