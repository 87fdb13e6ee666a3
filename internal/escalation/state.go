// Package escalation implements the escalation state machine. A single
// goroutine owns the session; detections, operator controls, timer
// expiries and dispatch results all enter through one inbox and are
// processed in arrival order, so no two causes of a transition can race.
package escalation

import (
	"time"

	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/alert"
)

// State is the escalation session state.
type State int

const (
	// StateIdle means no session exists.
	StateIdle State = iota
	// StatePendingConfirmation means a HIGH-tier countdown is running
	// and an operator may still deny or allow early.
	StatePendingConfirmation
	// StateActive means the deterrent dispatch is in flight.
	StateActive
	// StateMeasuring means the deterrent started and the effectiveness
	// window is open.
	StateMeasuring
	// StateDenied is the terminal exit when an operator denies a
	// pending confirmation. The session returns to idle immediately.
	StateDenied
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StatePendingConfirmation:
		return "PENDING_CONFIRMATION"
	case StateActive:
		return "ACTIVE"
	case StateMeasuring:
		return "MEASURING"
	case StateDenied:
		return "DENIED"
	default:
		return "UNKNOWN"
	}
}

// Transition causes, published with every state-change record.
const (
	CauseEventCritical       = "critical-event"
	CauseEventHigh           = "high-event"
	CauseSuperseded          = "superseded-by-critical"
	CauseCountdownElapsed    = "countdown-elapsed"
	CauseOperatorDeny        = "operator-deny"
	CauseOperatorAllow       = "operator-allow-now"
	CauseOperatorAcknowledge = "operator-acknowledge"
	CauseDispatchConfirmed   = "dispatch-confirmed"
	CauseDispatchFailed      = "dispatch-failed"
	CauseMeasurementResolve  = "measurement-resolved"
	CauseSessionClosed       = "session-closed"
)

// StateChange is one observable transition of the state machine. It
// implements events.StateChangeEvent.
type StateChange struct {
	SessionID string
	From      State
	To        State
	Cause     string
	Event     *alert.DetectionEvent
	Err       error
	Timestamp time.Time
}

func (sc *StateChange) GetSessionID() string { return sc.SessionID }

func (sc *StateChange) GetFrom() string { return sc.From.String() }

func (sc *StateChange) GetTo() string { return sc.To.String() }

func (sc *StateChange) GetCause() string { return sc.Cause }

func (sc *StateChange) GetTimestamp() time.Time { return sc.Timestamp }

func (sc *StateChange) GetEvent() *alert.DetectionEvent { return sc.Event }

func (sc *StateChange) GetError() error { return sc.Err }

// TransportStatus reports ingest stream health. It travels the same
// observer channel as session transitions so dashboards see degraded
// mode alongside escalations. Implements events.StateChangeEvent.
type TransportStatus struct {
	Degraded  bool
	Err       error
	Timestamp time.Time
}

func (ts *TransportStatus) GetSessionID() string { return "transport" }

func (ts *TransportStatus) GetFrom() string {
	if ts.Degraded {
		return "CONNECTED"
	}
	return "DEGRADED"
}

func (ts *TransportStatus) GetTo() string {
	if ts.Degraded {
		return "DEGRADED"
	}
	return "CONNECTED"
}

func (ts *TransportStatus) GetCause() string { return "stream-transport" }

func (ts *TransportStatus) GetTimestamp() time.Time { return ts.Timestamp }

func (ts *TransportStatus) GetEvent() *alert.DetectionEvent { return nil }

func (ts *TransportStatus) GetError() error { return ts.Err }
