package storage

import (
	"context"
	"errors"

	"github.com/albertocavalcante/go-modrt/resource"
)

var _ Storage = (*Failing)(nil)

// Failing wraps a Storage and fails writes with Err. Reads pass through.
// Useful for testing that failed writes leave no partial state.
type Failing struct {
	Storage
	Err error
}

// NewFailing creates a storage that fails writes with err over a fresh
// memory storage.
func NewFailing(err error) *Failing {
	if err == nil {
		err = errors.New("storage write failed")
	}
	return &Failing{Storage: NewMemory(), Err: err}
}

// PersistRevision always returns Err.
func (f *Failing) PersistRevision(context.Context, BundleRecord, resource.Content) (Handle, error) {
	return "", f.Err
}

// SaveBundle always returns Err.
func (f *Failing) SaveBundle(context.Context, BundleRecord) error { return f.Err }

// SaveState always returns Err.
func (f *Failing) SaveState(context.Context, FrameworkState) error { return f.Err }
