// Package events provides an asynchronous fan-out bus decoupling the
// escalation engine from its observers (notifications, persistence,
// metrics) so a slow listener can never block a state transition.
package events

import (
	"time"

	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/alert"
)

// StateChangeEvent is one observable transition of the escalation state
// machine. The interface allows the escalation package to publish
// transitions without a circular dependency.
type StateChangeEvent interface {
	// GetSessionID returns the escalation session the transition belongs to
	GetSessionID() string

	// GetFrom returns the state before the transition
	GetFrom() string

	// GetTo returns the state after the transition
	GetTo() string

	// GetCause returns what drove the transition (event, operator, timer, dispatch)
	GetCause() string

	// GetTimestamp returns when the transition occurred
	GetTimestamp() time.Time

	// GetEvent returns the causal detection event, or nil
	GetEvent() *alert.DetectionEvent

	// GetError returns the error surfaced by the transition, or nil
	GetError() error
}

// Consumer represents a listener for engine output. Implementations must
// tolerate being called from bus worker goroutines.
type Consumer interface {
	// Name returns the consumer name for identification
	Name() string

	// ProcessStateChange processes a single state transition
	ProcessStateChange(event StateChangeEvent) error

	// ProcessDetection processes an accepted detection event
	ProcessDetection(event *alert.DetectionEvent) error
}

// BusStats contains runtime statistics for monitoring.
type BusStats struct {
	StateChangesReceived uint64
	DetectionsReceived   uint64
	EventsProcessed      uint64
	EventsDropped        uint64
	ConsumerErrors       uint64
}
