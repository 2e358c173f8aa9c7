// Package storage persists the bundle table and revision content so a
// framework can be restarted with the same bundles, start levels and
// persistent start flags.
//
// Two implementations are provided. Memory keeps everything in process and
// is the default when no storage area is configured. FS writes a directory:
//
//	state.cbor              framework state (UUID, next bundle ID, start level)
//	bundles/<id>.cbor       one BundleRecord per installed bundle
//	content/<digest>.zst    zstd-compressed revision content, content addressed
//
// Records are encoded with deterministic CBOR so equal tables produce equal
// bytes. Content digests are keyed BLAKE3 over the encoded archive and are
// verified when content is opened.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/albertocavalcante/go-modrt/resource"
)

// ErrNotFound is returned for unknown bundles or content handles.
var ErrNotFound = errors.New("storage: not found")

// Handle identifies persisted revision content.
type Handle string

// Autostart is the persistent start flag of a bundle.
type Autostart uint8

const (
	// AutostartStopped means the bundle is not started by start levels.
	AutostartStopped Autostart = iota
	// AutostartEager starts the bundle eagerly.
	AutostartEager
	// AutostartDeclared starts the bundle using its declared activation
	// policy.
	AutostartDeclared
)

func (a Autostart) String() string {
	switch a {
	case AutostartStopped:
		return "stopped"
	case AutostartEager:
		return "eager"
	case AutostartDeclared:
		return "declared"
	default:
		return fmt.Sprintf("Autostart(%d)", uint8(a))
	}
}

// BundleRecord is the persisted row of one bundle.
type BundleRecord struct {
	ID           int64             `cbor:"1,keyasint"`
	Location     string            `cbor:"2,keyasint"`
	SymbolicName string            `cbor:"3,keyasint,omitempty"`
	Version      string            `cbor:"4,keyasint,omitempty"`
	StartLevel   int               `cbor:"5,keyasint"`
	Autostart    Autostart         `cbor:"6,keyasint"`
	Generation   int64             `cbor:"7,keyasint"`
	Handle       Handle            `cbor:"8,keyasint,omitempty"`
	Headers      map[string]string `cbor:"9,keyasint,omitempty"`
	LastModified int64             `cbor:"10,keyasint,omitempty"`
}

// FrameworkState is the persisted state of the framework itself.
type FrameworkState struct {
	UUID       string `cbor:"1,keyasint"`
	NextID     int64  `cbor:"2,keyasint"`
	StartLevel int    `cbor:"3,keyasint"`
}

// Storage persists bundles and their content. Implementations are safe
// for concurrent use.
type Storage interface {
	// PersistRevision stores content for a new revision and saves rec with
	// the returned handle.
	PersistRevision(ctx context.Context, rec BundleRecord, content resource.Content) (Handle, error)
	// SaveBundle updates a bundle row, for example a start level change.
	SaveBundle(ctx context.Context, rec BundleRecord) error
	// LoadPersisted returns every bundle row ordered by ID.
	LoadPersisted(ctx context.Context) ([]BundleRecord, error)
	// OpenContent returns the content behind a handle.
	OpenContent(ctx context.Context, h Handle) (resource.Content, error)
	// Remove deletes a bundle row and content no other row references.
	Remove(ctx context.Context, id int64) error
	// SaveState stores the framework state.
	SaveState(ctx context.Context, st FrameworkState) error
	// LoadState returns the framework state and whether one was saved.
	LoadState(ctx context.Context) (FrameworkState, bool, error)
	// Clean discards everything.
	Clean(ctx context.Context) error
}
