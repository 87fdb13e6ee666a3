package deterrent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/errors"
	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/logging"
)

// Dispatcher wraps the deterrent controller with single-activation
// idempotence and a circuit breaker. A flapping hardware endpoint trips
// the breaker instead of being hammered on every qualifying event.
type Dispatcher struct {
	controller Controller
	breaker    *gobreaker.CircuitBreaker[*ActivationResult]

	window time.Duration

	mu      sync.Mutex
	current *Activation

	logger *slog.Logger
}

// NewDispatcher creates a dispatcher. window is the effectiveness
// observation window stamped onto each activation.
func NewDispatcher(controller Controller, window time.Duration) *Dispatcher {
	logger := logging.ForService("deterrent")

	settings := gobreaker.Settings{
		Name:        "deterrent-controller",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}

	return &Dispatcher{
		controller: controller,
		breaker:    gobreaker.NewCircuitBreaker[*ActivationResult](settings),
		window:     window,
		logger:     logger,
	}
}

// Dispatch activates the deterrent with the given sound. A second call
// while an activation is outstanding is rejected, preserving the
// one-activation-per-session contract.
func (d *Dispatcher) Dispatch(ctx context.Context, soundType string) (*Activation, error) {
	d.mu.Lock()
	if d.current != nil {
		current := d.current
		d.mu.Unlock()
		return nil, errors.Newf("deterrent already active").
			Component("deterrent").
			Category(errors.CategoryDispatch).
			Context("activation_id", current.ID).
			Context("sound_type", current.SoundType).
			Build()
	}
	d.mu.Unlock()

	result, err := d.breaker.Execute(func() (*ActivationResult, error) {
		return d.controller.Activate(ctx, soundType)
	})
	if err != nil {
		return nil, errors.New(err).
			Component("deterrent").
			Category(errors.CategoryDispatch).
			Context("sound_type", soundType).
			Context("breaker_state", d.breaker.State().String()).
			Build()
	}

	now := time.Now()
	activation := &Activation{
		ID:            result.ActivationID,
		SoundType:     soundType,
		ActivatedAt:   now,
		WindowEnd:     now.Add(d.window),
		Effectiveness: Effectiveness{Status: EffectivenessPending},
	}
	if activation.ID == "" {
		activation.ID = uuid.NewString()
	}

	d.mu.Lock()
	// A concurrent Dispatch may have won the race while the controller
	// call was in flight. Stop the extra deployment and reject.
	if d.current != nil {
		d.mu.Unlock()
		_ = d.controller.Stop(ctx)
		return nil, errors.Newf("deterrent already active").
			Component("deterrent").
			Category(errors.CategoryDispatch).
			Build()
	}
	d.current = activation
	d.mu.Unlock()

	d.logger.Info("deterrent activated",
		"activation_id", activation.ID,
		"sound_type", soundType,
		"window", d.window,
	)

	return activation, nil
}

// Stop cancels the in-progress deterrent action. Stopping while idle is
// a no-op. Stopping does not cancel the pending effectiveness
// measurement; effectiveness is still measured for whatever window the
// action actually ran.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	current := d.current
	d.mu.Unlock()

	if current == nil {
		return nil
	}

	if err := d.controller.Stop(ctx); err != nil {
		return errors.New(err).
			Component("deterrent").
			Category(errors.CategoryDispatch).
			Context("activation_id", current.ID).
			Build()
	}

	d.logger.Info("deterrent stopped", "activation_id", current.ID)
	return nil
}

// Complete releases the dispatcher for the next session. Called when the
// session owning the activation returns to idle.
func (d *Dispatcher) Complete(activationID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.current != nil && d.current.ID == activationID {
		d.current = nil
	}
}

// Current returns the outstanding activation, or nil when idle.
func (d *Dispatcher) Current() *Activation {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// BreakerState reports the circuit breaker state for monitoring.
func (d *Dispatcher) BreakerState() string {
	return d.breaker.State().String()
}
