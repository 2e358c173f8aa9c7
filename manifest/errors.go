package manifest

import (
	"errors"
	"fmt"
	"strings"
)

// ErrManifest matches every *ManifestError with errors.Is.
var ErrManifest = errors.New("invalid manifest")

// ManifestError reports a malformed or structurally invalid manifest.
type ManifestError struct {
	Header string
	Detail string
	Err    error
}

func (e *ManifestError) Error() string {
	msg := "invalid manifest"
	if e.Header != "" {
		msg += " header " + e.Header
	}
	msg += ": " + e.Detail
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ManifestError) Unwrap() error { return e.Err }

func (e *ManifestError) Is(target error) bool { return target == ErrManifest }

func headerError(header string, err error, format string, args ...any) *ManifestError {
	return &ManifestError{Header: header, Detail: fmt.Sprintf(format, args...), Err: err}
}

// OverlayError lists multi-release entries that were rejected.
type OverlayError struct {
	Rejected []RejectedOverlay
}

// RejectedOverlay is one rejected entry with the reason.
type RejectedOverlay struct {
	Path   string
	Reason string
}

func (e *OverlayError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "rejected %d multi-release overlay entr", len(e.Rejected))
	if len(e.Rejected) == 1 {
		b.WriteString("y:")
	} else {
		b.WriteString("ies:")
	}
	for _, r := range e.Rejected {
		fmt.Fprintf(&b, "\n  %s: %s", r.Path, r.Reason)
	}
	return b.String()
}
