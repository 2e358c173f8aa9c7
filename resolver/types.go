package resolver

import (
	"fmt"
	"strings"

	"github.com/albertocavalcante/go-modrt/resource"
)

// Framework property keys consulted during resolution.
const (
	PropOSName    = "framework.os.name"
	PropOSVersion = "framework.os.version"
	PropProcessor = "framework.processor"
	PropLanguage  = "framework.language"
)

// Request is the input of one resolve operation.
type Request struct {
	// Mandatory revisions must all resolve or the call fails.
	Mandatory []*resource.Revision
	// Optional revisions resolve when they can.
	Optional []*resource.Revision
	// Installed lists every current revision that may serve as a provider,
	// resolved or not. Unresolved ones are resolved as needed.
	Installed []*resource.Revision
	// Existing is the committed wiring. Its revisions are fixed providers.
	Existing *resource.Wiring
	// Refreshing lists revisions of Existing that are being refreshed out.
	// They are neither fixed providers nor candidates.
	Refreshing []*resource.Revision
	// Properties are framework properties for native code selection.
	Properties map[string]string
	// Hooks are consulted at each extension point.
	Hooks []HookFactory
}

// Result is the output of a successful resolve operation.
type Result struct {
	// Wiring is the new complete wiring. It equals Existing when nothing
	// new resolved.
	Wiring *resource.Wiring
	// Resolved lists the newly resolved revisions ordered by bundle ID.
	Resolved []*resource.Revision
	// Unresolved describes optional revisions that did not resolve, or nil.
	Unresolved *UnresolvedReport
}

// Reason classifies why a requirement could not be satisfied.
type Reason int

const (
	ReasonNoCandidates Reason = iota
	ReasonUsesConflict
	ReasonSingletonCollision
	ReasonNativeCodeNoMatch
	ReasonHookRejected
	ReasonMissingExecutionEnvironment
	ReasonFilteredByHook
	ReasonFragmentNoHost
)

func (r Reason) String() string {
	switch r {
	case ReasonNoCandidates:
		return "NoCandidates"
	case ReasonUsesConflict:
		return "UsesConflict"
	case ReasonSingletonCollision:
		return "SingletonCollision"
	case ReasonNativeCodeNoMatch:
		return "NativeCodeNoMatch"
	case ReasonHookRejected:
		return "HookRejected"
	case ReasonMissingExecutionEnvironment:
		return "MissingExecutionEnvironment"
	case ReasonFilteredByHook:
		return "FilteredByHook"
	case ReasonFragmentNoHost:
		return "FragmentNoHost"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// Cause is one unsatisfied requirement. Requirement is nil for causes that
// concern the revision as a whole, such as a singleton collision.
type Cause struct {
	Requirement *resource.Requirement
	Reason      Reason
	Detail      string
}

func (c Cause) String() string {
	var b strings.Builder
	b.WriteString(c.Reason.String())
	if c.Requirement != nil {
		b.WriteString(" ")
		b.WriteString(c.Requirement.String())
	}
	if c.Detail != "" {
		b.WriteString(": ")
		b.WriteString(c.Detail)
	}
	return b.String()
}

// RevisionFailure lists the causes for one unresolved revision.
type RevisionFailure struct {
	Revision  *resource.Revision
	Mandatory bool
	Causes    []Cause
}

// UnresolvedReport describes revisions that could not be resolved.
type UnresolvedReport struct {
	Failures []RevisionFailure
	// HookErr is set when a hook failed and aborted resolution.
	HookErr *HookError
}

func (r *UnresolvedReport) Error() string {
	var b strings.Builder
	if r.HookErr != nil {
		b.WriteString("resolution aborted: ")
		b.WriteString(r.HookErr.Error())
		return b.String()
	}
	fmt.Fprintf(&b, "unable to resolve %d revision(s):", len(r.Failures))
	for _, f := range r.Failures {
		fmt.Fprintf(&b, "\n  %s", f.Revision)
		for _, c := range f.Causes {
			fmt.Fprintf(&b, "\n    - %s", c)
		}
	}
	return b.String()
}

// Unwrap returns the hook error, if any.
func (r *UnresolvedReport) Unwrap() error {
	if r.HookErr == nil {
		return nil
	}
	return r.HookErr
}

// For returns the causes recorded for rev.
func (r *UnresolvedReport) For(rev *resource.Revision) []Cause {
	if r == nil {
		return nil
	}
	for _, f := range r.Failures {
		if f.Revision == rev {
			return f.Causes
		}
	}
	return nil
}

// Has reports whether rev failed with reason.
func (r *UnresolvedReport) Has(rev *resource.Revision, reason Reason) bool {
	for _, c := range r.For(rev) {
		if c.Reason == reason {
			return true
		}
	}
	return false
}

// HookError reports a resolver hook that returned an error or panicked.
type HookError struct {
	Op  string
	Err error
}

func (e *HookError) Error() string {
	return "resolver hook " + e.Op + " rejected resolution: " + e.Err.Error()
}

func (e *HookError) Unwrap() error { return e.Err }
