package container

import "fmt"

// State is the lifecycle state of a bundle.
type State int32

const (
	Installed State = iota + 1
	Resolved
	Starting
	Active
	Stopping
	Uninstalled
)

func (s State) String() string {
	switch s {
	case Installed:
		return "INSTALLED"
	case Resolved:
		return "RESOLVED"
	case Starting:
		return "STARTING"
	case Active:
		return "ACTIVE"
	case Stopping:
		return "STOPPING"
	case Uninstalled:
		return "UNINSTALLED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// EventType is the type of a BundleEvent.
type EventType int

const (
	EventInstalled EventType = iota + 1
	EventResolved
	EventLazyActivation
	EventStarting
	EventStarted
	EventStopping
	EventStopped
	EventUpdated
	EventUnresolved
	EventUninstalled
)

func (t EventType) String() string {
	switch t {
	case EventInstalled:
		return "INSTALLED"
	case EventResolved:
		return "RESOLVED"
	case EventLazyActivation:
		return "LAZY_ACTIVATION"
	case EventStarting:
		return "STARTING"
	case EventStarted:
		return "STARTED"
	case EventStopping:
		return "STOPPING"
	case EventStopped:
		return "STOPPED"
	case EventUpdated:
		return "UPDATED"
	case EventUnresolved:
		return "UNRESOLVED"
	case EventUninstalled:
		return "UNINSTALLED"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// BundleEvent reports a lifecycle change of one bundle.
type BundleEvent struct {
	Type   EventType
	Bundle *Bundle
}

func (e BundleEvent) String() string {
	return e.Type.String() + " " + e.Bundle.String()
}

// FrameworkEventType is the type of a FrameworkEvent.
type FrameworkEventType int

const (
	FrameworkStarted FrameworkEventType = iota + 1
	FrameworkError
	FrameworkWarning
	FrameworkInfo
	PackagesRefreshed
	StartLevelChanged
	FrameworkStopped
	FrameworkStoppedUpdate
	WaitTimedOut
)

func (t FrameworkEventType) String() string {
	switch t {
	case FrameworkStarted:
		return "STARTED"
	case FrameworkError:
		return "ERROR"
	case FrameworkWarning:
		return "WARNING"
	case FrameworkInfo:
		return "INFO"
	case PackagesRefreshed:
		return "PACKAGES_REFRESHED"
	case StartLevelChanged:
		return "STARTLEVEL_CHANGED"
	case FrameworkStopped:
		return "STOPPED"
	case FrameworkStoppedUpdate:
		return "STOPPED_UPDATE"
	case WaitTimedOut:
		return "WAIT_TIMEDOUT"
	default:
		return fmt.Sprintf("FrameworkEventType(%d)", int(t))
	}
}

// FrameworkEvent reports a framework-wide occurrence. Bundle is the source
// bundle when there is one; Err is set for ERROR and WARNING events.
type FrameworkEvent struct {
	Type   FrameworkEventType
	Bundle *Bundle
	Err    error
}

// StartOptions modify Start.
type StartOptions int

const (
	// StartTransient starts the bundle without changing its persistent
	// start flag.
	StartTransient StartOptions = 1 << iota
	// StartActivationPolicy honors the bundle's declared activation policy.
	StartActivationPolicy
)

// StopOptions modify Stop.
type StopOptions int

// StopTransient stops the bundle without changing its persistent start flag.
const StopTransient StopOptions = 1
