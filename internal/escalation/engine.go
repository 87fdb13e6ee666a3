package escalation

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/alert"
	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/deterrent"
	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/errors"
	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/events"
	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/logging"
)

// dispositionInformational marks events accepted by the deduplicator
// but below the escalation-eligible tiers. They are kept for history
// and never start a session.
const dispositionInformational = "informational"

// Store persists alert history and deterrent activations. Activations
// are written synchronously from the engine loop so a restart can still
// resolve a pending effectiveness measurement.
type Store interface {
	SaveAlert(event *alert.DetectionEvent, key alert.Key, disposition string) error
	SaveActivation(activation *deterrent.Activation) error
	UpdateActivationEffectiveness(activationID string, effectiveness deterrent.Effectiveness) error
	PendingActivations() ([]*deterrent.Activation, error)
}

// Config wires the engine's collaborators and windows.
type Config struct {
	Dedup      *alert.Deduplicator
	Dispatcher *deterrent.Dispatcher
	Tracker    *deterrent.Tracker
	Sounds     *deterrent.SoundLibrary
	Bus        *events.Bus
	Store      Store // optional; nil loses pending measurements on restart

	// ConfirmationWindow is the operator override countdown for HIGH
	// tier events. AcknowledgmentWindow is the informational window
	// after a CRITICAL dispatch.
	ConfirmationWindow   time.Duration
	AcknowledgmentWindow time.Duration

	InboxSize int

	// Logger overrides the default service logger, e.g. with a rotated
	// file logger. Optional.
	Logger *slog.Logger
}

// Inbox message kinds. Every mutation of the session happens inside the
// loop in response to one of these.
type message interface{ isMessage() }

type detectionMsg struct{ event *alert.DetectionEvent }
type denyMsg struct{}
type allowNowMsg struct{}
type acknowledgeMsg struct{}
type stopMsg struct{}
type degradedMsg struct {
	degraded bool
	err      error
}

type timerKind int

const (
	timerConfirmation timerKind = iota
	timerAcknowledgment
)

// timerMsg carries the generation the timer was armed with. The loop
// ignores generations that no longer match, which makes cancellation
// race-free: a timer firing concurrently with a cancel is just a stale
// message.
type timerMsg struct {
	kind       timerKind
	generation uint64
}

type dispatchResultMsg struct {
	sessionID  string
	activation *deterrent.Activation
	err        error
}

type measurementMsg struct {
	report deterrent.MeasurementReport
}

func (detectionMsg) isMessage()      {}
func (denyMsg) isMessage()           {}
func (allowNowMsg) isMessage()       {}
func (acknowledgeMsg) isMessage()    {}
func (stopMsg) isMessage()           {}
func (degradedMsg) isMessage()       {}
func (timerMsg) isMessage()          {}
func (dispatchResultMsg) isMessage() {}
func (measurementMsg) isMessage()    {}

// Engine is the escalation state machine actor.
type Engine struct {
	dedup      *alert.Deduplicator
	dispatcher *deterrent.Dispatcher
	tracker    *deterrent.Tracker
	sounds     *deterrent.SoundLibrary
	bus        *events.Bus
	store      Store

	confirmationWindow   time.Duration
	acknowledgmentWindow time.Duration

	inbox   chan message
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool

	// Loop-owned state. Never touched outside the loop goroutine.
	session      *Session
	confirmGen   uint64
	confirmTimer *time.Timer
	ackGen       uint64
	ackTimer     *time.Timer

	// stateSnapshot mirrors the session state for monitoring reads.
	stateSnapshot atomic.Int32

	logger *slog.Logger
}

// New creates an engine. Dedup, Dispatcher, Tracker, Sounds and Bus are
// required.
func New(config Config) (*Engine, error) {
	if config.Dedup == nil || config.Dispatcher == nil || config.Tracker == nil ||
		config.Sounds == nil || config.Bus == nil {
		return nil, errors.Newf("escalation engine requires dedup, dispatcher, tracker, sounds and bus").
			Component("escalation").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if config.ConfirmationWindow <= 0 {
		config.ConfirmationWindow = 5 * time.Second
	}
	if config.AcknowledgmentWindow <= 0 {
		config.AcknowledgmentWindow = 5 * time.Second
	}
	if config.InboxSize <= 0 {
		config.InboxSize = 256
	}
	if config.Logger == nil {
		config.Logger = logging.ForService("escalation")
	}

	return &Engine{
		dedup:                config.Dedup,
		dispatcher:           config.Dispatcher,
		tracker:              config.Tracker,
		sounds:               config.Sounds,
		bus:                  config.Bus,
		store:                config.Store,
		confirmationWindow:   config.ConfirmationWindow,
		acknowledgmentWindow: config.AcknowledgmentWindow,
		inbox:                make(chan message, config.InboxSize),
		logger:               config.Logger,
	}, nil
}

// Start launches the engine loop and reschedules effectiveness
// measurements left pending by a previous run.
func (e *Engine) Start(ctx context.Context) error {
	if e.running.Swap(true) {
		return errors.Newf("engine already running").
			Component("escalation").
			Category(errors.CategoryState).
			Build()
	}

	e.ctx, e.cancel = context.WithCancel(ctx)

	e.recoverPendingMeasurements()

	e.wg.Add(1)
	go e.loop()

	e.logger.Info("escalation engine started",
		"confirmation_window", e.confirmationWindow,
		"acknowledgment_window", e.acknowledgmentWindow,
	)
	return nil
}

// Shutdown stops the loop and waits up to timeout for it to exit.
func (e *Engine) Shutdown(timeout time.Duration) error {
	if !e.running.Swap(false) {
		return nil
	}

	e.cancel()
	e.tracker.Shutdown()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info("escalation engine stopped")
		return nil
	case <-time.After(timeout):
		return errors.Newf("engine shutdown timeout exceeded").
			Component("escalation").
			Category(errors.CategoryTimeout).
			Timing("shutdown-wait", timeout).
			Build()
	}
}

// HandleDetection enqueues a normalized detection for processing.
// Returns false if the engine is stopped or the inbox is full; a lost
// detection degrades to a dropped message, never a blocked producer.
func (e *Engine) HandleDetection(event *alert.DetectionEvent) bool {
	if !e.running.Load() {
		return false
	}
	select {
	case e.inbox <- detectionMsg{event: event}:
		return true
	default:
		e.logger.Warn("detection dropped, engine inbox full",
			"species", event.Species.CommonName,
		)
		return false
	}
}

// Deny rejects the pending confirmation. A no-op outside
// PENDING_CONFIRMATION.
func (e *Engine) Deny() { e.post(denyMsg{}) }

// AllowNow short-circuits the pending countdown and dispatches
// immediately. A no-op outside PENDING_CONFIRMATION.
func (e *Engine) AllowNow() { e.post(allowNowMsg{}) }

// Acknowledge records operator acknowledgment of a critical dispatch.
// A no-op after the acknowledgment window closed.
func (e *Engine) Acknowledge() { e.post(acknowledgeMsg{}) }

// StopDeterrent cancels the in-progress deterrent action. The pending
// effectiveness measurement still resolves at its scheduled time.
func (e *Engine) StopDeterrent() { e.post(stopMsg{}) }

// SetDegraded surfaces ingest transport health to observers. While
// degraded no detections arrive, so no new escalations can start.
func (e *Engine) SetDegraded(degraded bool, cause error) {
	e.post(degradedMsg{degraded: degraded, err: cause})
}

// State returns the current session state for monitoring.
func (e *Engine) State() State {
	return State(e.stateSnapshot.Load())
}

// post delivers operator and status messages, dropping when stopped.
func (e *Engine) post(msg message) {
	if !e.running.Load() {
		return
	}
	select {
	case e.inbox <- msg:
	default:
		e.logger.Warn("engine inbox full, message dropped")
	}
}

// mustPost delivers loop-critical messages (timer expiries, dispatch
// and measurement results), blocking until accepted or shutdown.
func (e *Engine) mustPost(msg message) {
	select {
	case e.inbox <- msg:
	case <-e.ctx.Done():
	}
}

func (e *Engine) loop() {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			e.stopTimers()
			return
		case msg := <-e.inbox:
			e.handle(msg)
		}
	}
}

func (e *Engine) handle(msg message) {
	switch m := msg.(type) {
	case detectionMsg:
		e.handleDetection(m.event)
	case denyMsg:
		e.handleDeny()
	case allowNowMsg:
		e.handleAllowNow()
	case acknowledgeMsg:
		e.handleAcknowledge()
	case stopMsg:
		e.handleStop()
	case degradedMsg:
		e.handleDegraded(m)
	case timerMsg:
		e.handleTimer(m)
	case dispatchResultMsg:
		e.handleDispatchResult(m)
	case measurementMsg:
		e.handleMeasurement(m.report)
	}
}

func (e *Engine) handleDetection(event *alert.DetectionEvent) {
	now := time.Now()
	key, disposition := e.dedup.Filter(event, now)
	tier := alert.Classify(event)

	record := disposition.String()
	if disposition == alert.DispositionAccepted && !tier.EscalationEligible() {
		record = dispositionInformational
	}
	e.saveAlert(event, key, record)

	if disposition == alert.DispositionDuplicate {
		return
	}
	if disposition == alert.DispositionStale {
		// Kept for history, never eligible to start or influence a
		// session.
		e.logger.Debug("stale detection recorded",
			"species", event.Species.CommonName,
			"age", event.Age(now),
		)
		return
	}

	e.bus.PublishDetection(event)

	if !tier.EscalationEligible() {
		return
	}

	if e.session == nil {
		e.startSession(event, tier, now)
		return
	}
	e.handleConcurrentEligible(event, tier)
}

func (e *Engine) startSession(event *alert.DetectionEvent, tier alert.Level, now time.Time) {
	e.session = &Session{
		ID:              uuid.NewString(),
		State:           StateIdle,
		TriggeringEvent: event,
		StartedAt:       now,
		SelectedSound:   e.sounds.Primary(event.Species, event.Behavior),
	}

	if tier == alert.LevelCritical {
		// No human confirmation: dispatch immediately and open the
		// informational acknowledgment window in parallel.
		e.transition(StateActive, CauseEventCritical, event, nil)
		e.openAckWindow()
		e.dispatch()
		return
	}

	e.session.Deadline = now.Add(e.confirmationWindow)
	e.transition(StatePendingConfirmation, CauseEventHigh, event, nil)
	e.armConfirmation()
}

// handleConcurrentEligible processes an eligible event arriving while a
// session exists. It never starts a second session.
func (e *Engine) handleConcurrentEligible(event *alert.DetectionEvent, tier alert.Level) {
	if e.session.State != StatePendingConfirmation {
		e.logger.Debug("eligible event recorded during active session",
			"session_id", e.session.ID,
			"state", e.session.State.String(),
			"species", event.Species.CommonName,
		)
		return
	}

	if tier == alert.LevelCritical {
		// A critical event supersedes the pending confirmation: cancel
		// the countdown, adopt the new triggering event and dispatch.
		e.cancelConfirmation()
		e.session.TriggeringEvent = event
		e.session.SelectedSound = e.sounds.Primary(event.Species, event.Behavior)
		e.session.Deadline = time.Time{}
		e.transition(StateActive, CauseSuperseded, event, nil)
		e.openAckWindow()
		e.dispatch()
		return
	}

	// A concurrent HIGH event may refine the deterrent variant while
	// the countdown is still open.
	sound := e.sounds.Primary(event.Species, event.Behavior)
	if sound != e.session.SelectedSound {
		e.logger.Info("deterrent variant updated during confirmation",
			"session_id", e.session.ID,
			"previous", e.session.SelectedSound,
			"selected", sound,
			"countdown_remaining", e.session.CountdownRemaining(time.Now()),
		)
		e.session.SelectedSound = sound
	}
}

func (e *Engine) handleDeny() {
	if e.session == nil || e.session.State != StatePendingConfirmation {
		e.logger.Debug("deny ignored, no pending confirmation")
		return
	}

	e.cancelConfirmation()
	e.transition(StateDenied, CauseOperatorDeny, e.session.TriggeringEvent, nil)
	e.closeSession(CauseSessionClosed, nil)
}

func (e *Engine) handleAllowNow() {
	if e.session == nil || e.session.State != StatePendingConfirmation {
		e.logger.Debug("allow-now ignored, no pending confirmation")
		return
	}

	e.cancelConfirmation()
	e.session.Deadline = time.Time{}
	e.transition(StateActive, CauseOperatorAllow, e.session.TriggeringEvent, nil)
	e.dispatch()
}

func (e *Engine) handleAcknowledge() {
	if e.session == nil || e.ackTimer == nil {
		e.logger.Debug("acknowledge ignored, no open acknowledgment window")
		return
	}

	e.session.Acknowledged = true
	e.cancelAckWindow()
	// The acknowledgment is published and audited like a transition; the
	// state itself does not change.
	e.transition(e.session.State, CauseOperatorAcknowledge, e.session.TriggeringEvent, nil)
}

func (e *Engine) handleStop() {
	if e.session == nil ||
		(e.session.State != StateActive && e.session.State != StateMeasuring) {
		e.logger.Debug("stop ignored, no deterrent in progress")
		return
	}

	// The stop reaches the hardware off-loop; the session stays in its
	// state and the pending measurement still resolves on schedule.
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.dispatcher.Stop(e.ctx); err != nil {
			e.logger.Error("deterrent stop failed", "error", err)
		}
	}()
}

func (e *Engine) handleDegraded(msg degradedMsg) {
	status := &TransportStatus{
		Degraded:  msg.degraded,
		Err:       msg.err,
		Timestamp: time.Now(),
	}
	e.bus.PublishStateChange(status)

	if msg.degraded {
		e.logger.Warn("detection stream degraded, no new escalations can start",
			"error", msg.err,
		)
		return
	}
	e.logger.Info("detection stream recovered")
}

func (e *Engine) handleTimer(msg timerMsg) {
	switch msg.kind {
	case timerConfirmation:
		if msg.generation != e.confirmGen ||
			e.session == nil || e.session.State != StatePendingConfirmation {
			return // stale timer
		}
		e.confirmTimer = nil
		e.session.Deadline = time.Time{}
		e.transition(StateActive, CauseCountdownElapsed, e.session.TriggeringEvent, nil)
		e.dispatch()
	case timerAcknowledgment:
		if msg.generation != e.ackGen {
			return
		}
		e.ackTimer = nil
		if e.session != nil && !e.session.Acknowledged {
			e.logger.Info("acknowledgment window closed without operator response",
				"session_id", e.session.ID,
			)
		}
	}
}

// dispatch invokes the dispatcher off-loop; the result re-enters the
// inbox so state mutation stays inside the loop.
func (e *Engine) dispatch() {
	sessionID := e.session.ID
	sound := e.session.SelectedSound

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		activation, err := e.dispatcher.Dispatch(e.ctx, sound)
		e.mustPost(dispatchResultMsg{
			sessionID:  sessionID,
			activation: activation,
			err:        err,
		})
	}()
}

func (e *Engine) handleDispatchResult(msg dispatchResultMsg) {
	if e.session == nil || e.session.ID != msg.sessionID || e.session.State != StateActive {
		e.logger.Warn("dispatch result for stale session ignored",
			"session_id", msg.sessionID,
		)
		return
	}

	if msg.err != nil {
		// Revert to idle without an activation. The next qualifying
		// event may retry.
		e.cancelAckWindow()
		e.closeSession(CauseDispatchFailed, msg.err)
		return
	}

	e.session.Activation = msg.activation
	e.saveActivation(msg.activation)
	e.tracker.Schedule(msg.activation, func(report deterrent.MeasurementReport) {
		e.mustPost(measurementMsg{report: report})
	})
	e.transition(StateMeasuring, CauseDispatchConfirmed, e.session.TriggeringEvent, nil)
}

func (e *Engine) handleMeasurement(report deterrent.MeasurementReport) {
	if e.store != nil {
		if err := e.store.UpdateActivationEffectiveness(report.ActivationID, report.Effectiveness); err != nil {
			e.logger.Error("failed to persist effectiveness",
				"activation_id", report.ActivationID,
				"error", err,
			)
		}
	}

	if e.session == nil || e.session.Activation == nil ||
		e.session.Activation.ID != report.ActivationID {
		// A measurement recovered from a previous run; there is no
		// session to close, the persisted record is the outcome.
		e.logger.Info("recovered measurement resolved",
			"activation_id", report.ActivationID,
			"effectiveness", report.Effectiveness.String(),
		)
		return
	}

	e.session.Activation.Effectiveness = report.Effectiveness
	e.closeSession(CauseMeasurementResolve, report.Err)
}

// closeSession transitions to IDLE and destroys the session.
func (e *Engine) closeSession(cause string, err error) {
	e.transition(StateIdle, cause, e.session.TriggeringEvent, err)
	if e.session.Activation != nil {
		e.dispatcher.Complete(e.session.Activation.ID)
	}
	e.session = nil
}

// transition mutates the session state and publishes the state-change
// record. Every transition emits exactly one record.
func (e *Engine) transition(to State, cause string, event *alert.DetectionEvent, err error) {
	from := e.session.State
	e.session.State = to
	e.stateSnapshot.Store(int32(to))

	sc := &StateChange{
		SessionID: e.session.ID,
		From:      from,
		To:        to,
		Cause:     cause,
		Event:     event,
		Err:       err,
		Timestamp: time.Now(),
	}
	if !e.bus.PublishStateChange(sc) {
		e.logger.Warn("state change not delivered to bus",
			"session_id", sc.SessionID,
			"from", from.String(),
			"to", to.String(),
		)
	}

	e.logger.Info("session state change",
		"session_id", sc.SessionID,
		"from", from.String(),
		"to", to.String(),
		"cause", cause,
	)
}

func (e *Engine) armConfirmation() {
	e.confirmGen++
	generation := e.confirmGen
	e.confirmTimer = time.AfterFunc(e.confirmationWindow, func() {
		e.mustPost(timerMsg{kind: timerConfirmation, generation: generation})
	})
}

// cancelConfirmation invalidates the countdown. Cancelling twice, or
// cancelling while the timer fires concurrently, is harmless: the
// generation bump makes any in-flight timer message stale.
func (e *Engine) cancelConfirmation() {
	e.confirmGen++
	if e.confirmTimer != nil {
		e.confirmTimer.Stop()
		e.confirmTimer = nil
	}
}

func (e *Engine) openAckWindow() {
	e.ackGen++
	generation := e.ackGen
	e.ackTimer = time.AfterFunc(e.acknowledgmentWindow, func() {
		e.mustPost(timerMsg{kind: timerAcknowledgment, generation: generation})
	})
}

func (e *Engine) cancelAckWindow() {
	e.ackGen++
	if e.ackTimer != nil {
		e.ackTimer.Stop()
		e.ackTimer = nil
	}
}

func (e *Engine) stopTimers() {
	e.cancelConfirmation()
	e.cancelAckWindow()
}

func (e *Engine) saveAlert(event *alert.DetectionEvent, key alert.Key, disposition string) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveAlert(event, key, disposition); err != nil {
		e.logger.Error("failed to persist alert",
			"species", event.Species.CommonName,
			"error", err,
		)
	}
}

func (e *Engine) saveActivation(activation *deterrent.Activation) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveActivation(activation); err != nil {
		e.logger.Error("failed to persist activation",
			"activation_id", activation.ID,
			"error", err,
		)
	}
}

// recoverPendingMeasurements reschedules measurements left pending by a
// previous run so an activation's physical side effect always gets an
// eventual effectiveness read.
func (e *Engine) recoverPendingMeasurements() {
	if e.store == nil {
		return
	}

	pending, err := e.store.PendingActivations()
	if err != nil {
		e.logger.Error("failed to load pending activations", "error", err)
		return
	}

	for _, activation := range pending {
		e.tracker.Schedule(activation, func(report deterrent.MeasurementReport) {
			e.mustPost(measurementMsg{report: report})
		})
	}

	if len(pending) > 0 {
		e.logger.Info("rescheduled pending effectiveness measurements",
			"count", len(pending),
		)
	}
}
