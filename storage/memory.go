package storage

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/albertocavalcante/go-modrt/resource"
)

var _ Storage = (*Memory)(nil)

// Memory is an in-process Storage. Content is kept by reference.
type Memory struct {
	mu      sync.RWMutex
	bundles map[int64]BundleRecord
	content map[Handle]resource.Content
	state   *FrameworkState
}

// NewMemory creates an empty in-memory storage.
func NewMemory() *Memory {
	return &Memory{
		bundles: make(map[int64]BundleRecord),
		content: make(map[Handle]resource.Content),
	}
}

// PersistRevision implements Storage.
func (m *Memory) PersistRevision(ctx context.Context, rec BundleRecord, content resource.Content) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	h := Handle(fmt.Sprintf("mem:%d:%d", rec.ID, rec.Generation))
	rec.Handle = h
	rec.Headers = maps.Clone(rec.Headers)

	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.bundles[rec.ID]; ok && old.Handle != h {
		delete(m.content, old.Handle)
	}
	m.content[h] = content
	m.bundles[rec.ID] = rec
	return h, nil
}

// SaveBundle implements Storage.
func (m *Memory) SaveBundle(ctx context.Context, rec BundleRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bundles[rec.ID]; !ok {
		return fmt.Errorf("%w: bundle %d", ErrNotFound, rec.ID)
	}
	rec.Headers = maps.Clone(rec.Headers)
	m.bundles[rec.ID] = rec
	return nil
}

// LoadPersisted implements Storage.
func (m *Memory) LoadPersisted(ctx context.Context) ([]BundleRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := slices.Collect(maps.Values(m.bundles))
	slices.SortFunc(out, func(a, b BundleRecord) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// OpenContent implements Storage.
func (m *Memory) OpenContent(ctx context.Context, h Handle) (resource.Content, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.content[h]
	if !ok {
		return nil, fmt.Errorf("%w: content %s", ErrNotFound, h)
	}
	return c, nil
}

// Remove implements Storage.
func (m *Memory) Remove(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.bundles[id]
	if !ok {
		return nil
	}
	delete(m.content, rec.Handle)
	delete(m.bundles, id)
	return nil
}

// SaveState implements Storage.
func (m *Memory) SaveState(ctx context.Context, st FrameworkState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = &st
	return nil
}

// LoadState implements Storage.
func (m *Memory) LoadState(ctx context.Context) (FrameworkState, bool, error) {
	if err := ctx.Err(); err != nil {
		return FrameworkState{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return FrameworkState{}, false, nil
	}
	return *m.state, true, nil
}

// Clean implements Storage.
func (m *Memory) Clean(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bundles = make(map[int64]BundleRecord)
	m.content = make(map[Handle]resource.Content)
	m.state = nil
	return nil
}

// Len returns the number of stored bundle rows.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bundles)
}
