package alert

// Classify maps an event to its urgency tier. The mapping is total and
// deterministic: it is taken directly from the event's alert level, so
// ties are impossible.
func Classify(e *DetectionEvent) Level {
	return e.AlertLevel
}

// EscalationEligible reports whether a tier may start an escalation
// session. CRITICAL and HIGH are escalation-eligible; LOW and MEDIUM are
// informational only.
func (l Level) EscalationEligible() bool {
	return l >= LevelHigh
}
