package alert

import (
	"log/slog"
	"time"

	"github.com/antonholmquist/jason"

	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/logging"
)

// Defaults applied by the normalizer when a payload field is missing or
// malformed.
const (
	DefaultCommonName        = "Unknown Bird"
	DefaultRecommendedAction = "MONITOR"
)

// Normalizer converts raw detection payloads into canonical
// DetectionEvents. It never fails: malformed input degrades to defaults
// because losing one detection must never stall the stream.
type Normalizer struct {
	logger *slog.Logger
}

// NewNormalizer creates a normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		logger: logging.ForService("normalizer"),
	}
}

// Normalize maps an arbitrary JSON payload to a complete DetectionEvent.
// Every field is populated either from the payload or from a documented
// default. receivedAt is used as the event timestamp when the payload
// carries none.
func (n *Normalizer) Normalize(payload []byte, receivedAt time.Time) *DetectionEvent {
	event := &DetectionEvent{
		Species:           Species{CommonName: DefaultCommonName},
		AlertLevel:        LevelLow,
		Timestamp:         receivedAt,
		RecommendedAction: DefaultRecommendedAction,
		ReceivedAt:        receivedAt,
	}

	obj, err := jason.NewObjectFromBytes(payload)
	if err != nil {
		n.logger.Debug("payload is not a JSON object, using defaults", "error", err)
		return event
	}

	if common, err := obj.GetString("species", "common"); err == nil && common != "" {
		event.Species.CommonName = common
	}
	if scientific, err := obj.GetString("species", "scientific"); err == nil {
		event.Species.ScientificName = scientific
	}

	if confidence, err := obj.GetFloat64("confidence"); err == nil {
		event.Confidence = clampUnit(confidence)
	}
	if risk, err := obj.GetFloat64("risk_score"); err == nil {
		event.RiskScore = clampUnit(risk)
	}

	if level, err := obj.GetString("alert_level"); err == nil {
		event.AlertLevel = ParseLevel(level)
	}

	if ts, err := obj.GetString("timestamp"); err == nil {
		if parsed, perr := parseTimestamp(ts); perr == nil {
			event.Timestamp = parsed
		} else {
			n.logger.Debug("unparseable event timestamp, using receipt time",
				"timestamp", ts, "error", perr)
		}
	}

	if action, err := obj.GetString("recommended_action"); err == nil && action != "" {
		event.RecommendedAction = action
	}

	if callType, err := obj.GetString("communication_analysis", "call_type"); err == nil {
		event.Behavior.CallType = callType
	}
	if state, err := obj.GetString("communication_analysis", "emotional_state"); err == nil {
		event.Behavior.EmotionalState = state
	}
	if flock, err := obj.GetBoolean("communication_analysis", "flock_communication"); err == nil {
		event.Behavior.FlockBehavior = flock
	}
	if intent, err := obj.GetString("behavioral_prediction", "primary_intent"); err == nil {
		event.Behavior.PrimaryIntent = intent
	}

	return event
}

// parseTimestamp accepts RFC3339 with or without sub-second precision,
// which covers what the detection pipeline emits.
func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05", s)
}

func clampUnit(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
