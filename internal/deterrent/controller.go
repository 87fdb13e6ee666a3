// Package deterrent dispatches the external deterrent capability at most
// once per escalation and tracks the delayed effectiveness measurement
// for each activation.
package deterrent

import (
	"context"
	"fmt"
	"time"
)

// Controller is the boundary to the physical deterrent hardware. The
// engine never talks to it directly; the Dispatcher and Tracker wrap it
// with idempotence, circuit breaking and exactly-once measurement.
type Controller interface {
	// Activate starts playing the given deterrent sound. The returned
	// result carries the hardware-assigned activation id, if any.
	Activate(ctx context.Context, soundType string) (*ActivationResult, error)

	// Stop cancels an in-progress deterrent action.
	Stop(ctx context.Context) error

	// MeasureEffectiveness reports the observed reduction in detections
	// over the window following the activation.
	MeasureEffectiveness(ctx context.Context, activationID string, window time.Duration) (Measurement, error)
}

// ActivationResult is the controller's response to Activate.
type ActivationResult struct {
	ActivationID string
	Message      string
}

// Measurement is the controller's raw effectiveness reading. Available
// false means the hardware could not produce a reading for the window.
type Measurement struct {
	Available bool
	Percent   float64
}

// EffectivenessStatus tracks the lifecycle of an activation's
// effectiveness value.
type EffectivenessStatus int

const (
	// EffectivenessPending means the measurement has not resolved yet.
	EffectivenessPending EffectivenessStatus = iota
	// EffectivenessMeasured means a positive reading was obtained.
	EffectivenessMeasured
	// EffectivenessUnavailable means the reading failed or was
	// non-positive. The reported value is recorded as-is alongside the
	// status, never substituted.
	EffectivenessUnavailable
)

func (s EffectivenessStatus) String() string {
	switch s {
	case EffectivenessPending:
		return "pending"
	case EffectivenessMeasured:
		return "measured"
	case EffectivenessUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Effectiveness is the measured outcome of one activation. Percent
// carries the reading exactly as reported; a non-positive reading keeps
// its number next to the unavailable status.
type Effectiveness struct {
	Status  EffectivenessStatus
	Percent float64
}

func (e Effectiveness) String() string {
	switch {
	case e.Status == EffectivenessMeasured:
		return fmt.Sprintf("%.1f%%", e.Percent)
	case e.Status == EffectivenessUnavailable && e.Percent != 0:
		return fmt.Sprintf("unavailable (reported %.1f%%)", e.Percent)
	}
	return e.Status.String()
}

// Activation is one deterrent deployment. Each activation is a fresh
// record tied one-to-one with the escalation session that dispatched it.
type Activation struct {
	ID            string
	SoundType     string
	ActivatedAt   time.Time
	WindowEnd     time.Time
	Effectiveness Effectiveness
}

// Window returns the effectiveness observation window of the activation.
func (a *Activation) Window() time.Duration {
	return a.WindowEnd.Sub(a.ActivatedAt)
}
