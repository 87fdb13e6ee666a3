package datastore

import (
	"log/slog"

	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/alert"
	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/events"
	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/logging"
)

// TransitionRecorder is a bus consumer persisting the state-change
// audit trail. It runs on the bus worker goroutines, off the engine
// loop, so a slow disk never delays a transition.
type TransitionRecorder struct {
	store  *Store
	logger *slog.Logger
}

// NewTransitionRecorder creates a recorder writing to the given store.
func NewTransitionRecorder(store *Store) *TransitionRecorder {
	return &TransitionRecorder{
		store:  store,
		logger: logging.ForService("datastore"),
	}
}

// Name implements events.Consumer.
func (r *TransitionRecorder) Name() string {
	return "transition-recorder"
}

// ProcessStateChange implements events.Consumer.
func (r *TransitionRecorder) ProcessStateChange(event events.StateChangeEvent) error {
	record := &TransitionRecord{
		SessionID:  event.GetSessionID(),
		FromState:  event.GetFrom(),
		ToState:    event.GetTo(),
		Cause:      event.GetCause(),
		OccurredAt: event.GetTimestamp(),
	}
	if detection := event.GetEvent(); detection != nil {
		record.Species = detection.Species.CommonName
	}
	if err := event.GetError(); err != nil {
		record.Error = err.Error()
	}

	return r.store.saveTransition(record)
}

// ProcessDetection implements events.Consumer. Accepted detections are
// already persisted by the engine with their dispositions, so nothing
// is written here.
func (r *TransitionRecorder) ProcessDetection(_ *alert.DetectionEvent) error {
	return nil
}
