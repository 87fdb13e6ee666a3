package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/alert"
	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/events"
)

// stateValues maps session state names to gauge values.
var stateValues = map[string]float64{
	"IDLE":                 0,
	"PENDING_CONFIRMATION": 1,
	"ACTIVE":               2,
	"MEASURING":            3,
	"DENIED":               4,
}

// sessionOutcomes maps the cause of a transition into IDLE to the
// session outcome label.
var sessionOutcomes = map[string]string{
	"measurement-resolved": "completed",
	"session-closed":       "denied",
	"dispatch-failed":      "dispatch_failed",
}

// EngineMetrics tracks the escalation state machine. It consumes the
// event bus, so it observes exactly what every other subscriber does.
type EngineMetrics struct {
	transitionsTotal *prometheus.CounterVec
	sessionsTotal    *prometheus.CounterVec
	detectionsTotal  *prometheus.CounterVec
	currentState     prometheus.Gauge
	streamDegraded   prometheus.Gauge
	dispatchFailures prometheus.Counter
}

// NewEngineMetrics creates and registers engine metrics.
func NewEngineMetrics(registerer prometheus.Registerer) (*EngineMetrics, error) {
	m := &EngineMetrics{
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "transitions_total",
			Help:      "Session state transitions",
		}, []string{"to", "cause"}),
		sessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "sessions_total",
			Help:      "Completed escalation sessions by outcome",
		}, []string{"outcome"}),
		detectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "detections_total",
			Help:      "Accepted detections by alert level",
		}, []string{"level"}),
		currentState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "current_state",
			Help:      "Current session state (0 idle, 1 pending, 2 active, 3 measuring, 4 denied)",
		}),
		streamDegraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "stream_degraded",
			Help:      "Whether the detection stream is degraded (1) or healthy (0)",
		}),
		dispatchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "dispatch_failures_total",
			Help:      "Deterrent dispatch failures",
		}),
	}

	collectors := []prometheus.Collector{
		m.transitionsTotal,
		m.sessionsTotal,
		m.detectionsTotal,
		m.currentState,
		m.streamDegraded,
		m.dispatchFailures,
	}
	for _, collector := range collectors {
		if err := registerer.Register(collector); err != nil {
			return nil, registrationError(err, "engine")
		}
	}
	return m, nil
}

// Name implements events.Consumer.
func (m *EngineMetrics) Name() string {
	return "metrics"
}

// ProcessStateChange implements events.Consumer.
func (m *EngineMetrics) ProcessStateChange(event events.StateChangeEvent) error {
	to := event.GetTo()

	if event.GetSessionID() == "transport" {
		if to == "DEGRADED" {
			m.streamDegraded.Set(1)
		} else {
			m.streamDegraded.Set(0)
		}
		return nil
	}

	m.transitionsTotal.WithLabelValues(to, event.GetCause()).Inc()

	if value, ok := stateValues[to]; ok {
		m.currentState.Set(value)
	}

	if to == "IDLE" {
		if outcome, ok := sessionOutcomes[event.GetCause()]; ok {
			m.sessionsTotal.WithLabelValues(outcome).Inc()
		}
	}
	if event.GetCause() == "dispatch-failed" {
		m.dispatchFailures.Inc()
	}
	return nil
}

// ProcessDetection implements events.Consumer.
func (m *EngineMetrics) ProcessDetection(event *alert.DetectionEvent) error {
	m.detectionsTotal.WithLabelValues(event.AlertLevel.String()).Inc()
	return nil
}
