package escalation

import (
	"time"

	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/alert"
	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/deterrent"
)

// Session is the single mutable piece of engine state. At most one
// exists at a time; the deterrent hardware runs one deployment at a
// time, so concurrent sessions would be meaningless. Only the engine
// loop touches it.
type Session struct {
	ID              string
	State           State
	TriggeringEvent *alert.DetectionEvent
	StartedAt       time.Time

	// Deadline of the confirmation countdown while the session is in
	// PENDING_CONFIRMATION, zero otherwise.
	Deadline time.Time

	// SelectedSound is the deterrent variant to deploy. A later
	// eligible event during PENDING_CONFIRMATION may update it.
	SelectedSound string

	// Acknowledged records whether an operator acknowledged a
	// critical-tier dispatch inside the acknowledgment window.
	Acknowledged bool

	Activation *deterrent.Activation
}

// CountdownRemaining returns the time left on the confirmation
// countdown, zero when none is running.
func (s *Session) CountdownRemaining(now time.Time) time.Duration {
	if s.State != StatePendingConfirmation || s.Deadline.IsZero() {
		return 0
	}
	remaining := s.Deadline.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}
