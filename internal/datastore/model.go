// Package datastore persists alert history, deterrent activations and
// state-transition audit rows in SQLite via gorm. Activation rows keep
// explicit pending/unavailable effectiveness states so a restart can
// find and resolve measurements the previous run never finished.
package datastore

import "time"

// AlertRecord is one normalized detection with its eligibility
// disposition (accepted, duplicate, stale or informational).
type AlertRecord struct {
	ID                uint   `gorm:"primaryKey"`
	AlertKey          string `gorm:"index"`
	CommonName        string
	ScientificName    string
	Confidence        float64
	RiskScore         float64
	AlertLevel        string `gorm:"index"`
	RecommendedAction string
	Disposition       string `gorm:"index"`
	EventTime         time.Time
	ReceivedAt        time.Time
	CreatedAt         time.Time
}

// ActivationRecord is one deterrent deployment and its measured outcome.
type ActivationRecord struct {
	ID                   string `gorm:"primaryKey"`
	SoundType            string
	ActivatedAt          time.Time
	WindowEnd            time.Time
	EffectivenessStatus  string `gorm:"index"`
	EffectivenessPercent float64
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// TransitionRecord is one state-change audit row.
type TransitionRecord struct {
	ID         uint   `gorm:"primaryKey"`
	SessionID  string `gorm:"index"`
	FromState  string
	ToState    string
	Cause      string
	Species    string
	Error      string
	OccurredAt time.Time
	CreatedAt  time.Time
}
