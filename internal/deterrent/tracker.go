package deterrent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/errors"
	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/logging"
)

// measureTimeout bounds the controller call when a measurement fires.
const measureTimeout = 10 * time.Second

// MeasurementReport is delivered to the report callback when a scheduled
// measurement resolves. Err is set when the controller call itself
// failed; Effectiveness is then unavailable.
type MeasurementReport struct {
	ActivationID  string
	Effectiveness Effectiveness
	Err           error
}

// Tracker schedules exactly one delayed effectiveness measurement per
// activation. Measurements are one-shot jobs independent of the engine;
// their results re-enter the engine through the report callback rather
// than by mutating shared state.
type Tracker struct {
	controller Controller

	mu     sync.Mutex
	timers map[string]*time.Timer
	done   map[string]struct{}

	logger *slog.Logger
}

// NewTracker creates a tracker around the given controller.
func NewTracker(controller Controller) *Tracker {
	return &Tracker{
		controller: controller,
		timers:     make(map[string]*time.Timer),
		done:       make(map[string]struct{}),
		logger:     logging.ForService("deterrent"),
	}
}

// Schedule arranges a single measurement at the activation's window end.
// Scheduling the same activation twice is a no-op, including across a
// restart recovery pass racing a live schedule. A window end already in
// the past (restart recovery) measures immediately.
func (t *Tracker) Schedule(activation *Activation, report func(MeasurementReport)) {
	t.mu.Lock()
	if _, measured := t.done[activation.ID]; measured {
		t.mu.Unlock()
		return
	}
	if _, pending := t.timers[activation.ID]; pending {
		t.mu.Unlock()
		return
	}

	delay := time.Until(activation.WindowEnd)
	if delay < 0 {
		delay = 0
	}

	id := activation.ID
	window := activation.Window()
	timer := time.AfterFunc(delay, func() {
		t.measure(id, window, report)
	})
	t.timers[id] = timer
	t.mu.Unlock()

	t.logger.Debug("effectiveness measurement scheduled",
		"activation_id", id,
		"delay", delay,
	)
}

// measure runs on the timer goroutine when the window elapses.
func (t *Tracker) measure(activationID string, window time.Duration, report func(MeasurementReport)) {
	t.mu.Lock()
	delete(t.timers, activationID)
	if _, measured := t.done[activationID]; measured {
		t.mu.Unlock()
		return
	}
	t.done[activationID] = struct{}{}
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), measureTimeout)
	defer cancel()

	measurement, err := t.controller.MeasureEffectiveness(ctx, activationID, window)
	if err != nil {
		t.logger.Warn("effectiveness measurement failed",
			"activation_id", activationID,
			"error", err,
		)
		report(MeasurementReport{
			ActivationID:  activationID,
			Effectiveness: Effectiveness{Status: EffectivenessUnavailable},
			Err: errors.New(err).
				Component("deterrent").
				Category(errors.CategoryEffectiveness).
				Context("activation_id", activationID).
				Build(),
		})
		return
	}

	// Non-positive or unavailable readings are stored as-is, number
	// included. The value is never replaced with a fabricated one.
	effectiveness := Effectiveness{
		Status:  EffectivenessUnavailable,
		Percent: measurement.Percent,
	}
	if measurement.Available && measurement.Percent > 0 {
		effectiveness = Effectiveness{
			Status:  EffectivenessMeasured,
			Percent: measurement.Percent,
		}
	}

	t.logger.Info("effectiveness measurement resolved",
		"activation_id", activationID,
		"effectiveness", effectiveness.String(),
	)

	report(MeasurementReport{
		ActivationID:  activationID,
		Effectiveness: effectiveness,
	})
}

// Pending returns the number of measurements still waiting to fire.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}

// Shutdown cancels all pending measurement timers.
func (t *Tracker) Shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
}
