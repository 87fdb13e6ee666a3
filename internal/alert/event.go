// Package alert provides the canonical detection event model together
// with the normalization, risk classification and deduplication stages
// that sit in front of the escalation engine.
package alert

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"
)

// Level is the urgency tier of a detection event. Levels are ordered so
// that a higher value always means a more urgent event.
type Level int

const (
	LevelLow Level = iota
	LevelMedium
	LevelHigh
	LevelCritical
)

// String returns the wire representation of the level.
func (l Level) String() string {
	switch l {
	case LevelLow:
		return "LOW"
	case LevelMedium:
		return "MEDIUM"
	case LevelHigh:
		return "HIGH"
	case LevelCritical:
		return "CRITICAL"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// ParseLevel maps a wire string to a Level. Unknown or empty strings map
// to LevelLow so a malformed payload can never escalate on its own.
func ParseLevel(s string) Level {
	switch s {
	case "MEDIUM":
		return LevelMedium
	case "HIGH":
		return LevelHigh
	case "CRITICAL":
		return LevelCritical
	default:
		return LevelLow
	}
}

// MarshalJSON encodes the level as its wire string.
func (l Level) MarshalJSON() ([]byte, error) {
	return []byte(`"` + l.String() + `"`), nil
}

// UnmarshalJSON decodes a wire string into a Level.
func (l *Level) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	*l = ParseLevel(s)
	return nil
}

// Species identifies the detected species.
type Species struct {
	CommonName     string `json:"common"`
	ScientificName string `json:"scientific"`
}

// Behavior carries the behavioral annotations produced by the upstream
// audio-analysis pipeline. All fields are optional and opaque to the
// engine except where noted.
type Behavior struct {
	CallType       string `json:"call_type,omitempty"`
	EmotionalState string `json:"emotional_state,omitempty"`
	PrimaryIntent  string `json:"primary_intent,omitempty"`
	FlockBehavior  bool   `json:"flock_behavior,omitempty"`
}

// DetectionEvent is one normalized observation from the detection
// pipeline. Instances are immutable once constructed; the engine and all
// downstream consumers treat them as read-only.
type DetectionEvent struct {
	Species           Species   `json:"species"`
	Confidence        float64   `json:"confidence"` // [0,1]
	RiskScore         float64   `json:"risk_score"` // [0,1]
	AlertLevel        Level     `json:"alert_level"`
	Timestamp         time.Time `json:"timestamp"` // event time, not receipt time
	RecommendedAction string    `json:"recommended_action"`
	Behavior          Behavior  `json:"behavior"`
	ReceivedAt        time.Time `json:"received_at"`
}

// Age returns how old the event is relative to now, based on event time.
func (e *DetectionEvent) Age(now time.Time) time.Duration {
	return now.Sub(e.Timestamp)
}

// String returns a short human-readable description.
func (e *DetectionEvent) String() string {
	return fmt.Sprintf("%s (%s) risk=%.2f level=%s at %s",
		e.Species.CommonName, e.Species.ScientificName,
		e.RiskScore, e.AlertLevel, e.Timestamp.Format(time.RFC3339))
}

// Key is the deterministic identity of a logical alert, used for
// deduplication. Two events with the same key are the same alert.
type Key uint64

// String returns the key in fixed-width hex, convenient for logs.
func (k Key) String() string {
	return fmt.Sprintf("%016x", uint64(k))
}

// EventKey derives the alert key from a content hash of the fields that
// identify an observation: species identity plus event timestamp. Receipt
// time is deliberately excluded so redelivery of the same observation
// maps to the same key.
func EventKey(e *DetectionEvent) Key {
	h := sha256.New()
	h.Write([]byte(e.Species.ScientificName))
	h.Write([]byte{0})
	h.Write([]byte(e.Species.CommonName))
	h.Write([]byte{0})

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(e.Timestamp.UnixNano()))
	h.Write(ts[:])

	sum := h.Sum(nil)
	return Key(binary.BigEndian.Uint64(sum[:8]))
}
