package metrics

import "github.com/prometheus/client_golang/prometheus"

// IngestMetrics tracks the inbound detection stream.
type IngestMetrics struct {
	connectionStatus prometheus.Gauge
	messagesTotal    prometheus.Counter
	heartbeatsTotal  prometheus.Counter
	reconnectsTotal  prometheus.Counter
	droppedTotal     prometheus.Counter
}

// NewIngestMetrics creates and registers ingest metrics.
func NewIngestMetrics(registerer prometheus.Registerer) (*IngestMetrics, error) {
	m := &IngestMetrics{
		connectionStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "connection_status",
			Help:      "Detection stream connection status (1 connected, 0 disconnected)",
		}),
		messagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "messages_total",
			Help:      "Messages received on the detections topic",
		}),
		heartbeatsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "heartbeats_total",
			Help:      "Heartbeat messages recognized and ignored",
		}),
		reconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "reconnects_total",
			Help:      "Connection loss events on the detection stream",
		}),
		droppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "dropped_total",
			Help:      "Detections dropped because the engine inbox was full",
		}),
	}

	collectors := []prometheus.Collector{
		m.connectionStatus,
		m.messagesTotal,
		m.heartbeatsTotal,
		m.reconnectsTotal,
		m.droppedTotal,
	}
	for _, collector := range collectors {
		if err := registerer.Register(collector); err != nil {
			return nil, registrationError(err, "ingest")
		}
	}
	return m, nil
}

// UpdateConnectionStatus sets the connection gauge.
func (m *IngestMetrics) UpdateConnectionStatus(connected bool) {
	if connected {
		m.connectionStatus.Set(1)
		return
	}
	m.connectionStatus.Set(0)
}

// IncMessages counts one received message.
func (m *IngestMetrics) IncMessages() { m.messagesTotal.Inc() }

// IncHeartbeats counts one ignored heartbeat.
func (m *IngestMetrics) IncHeartbeats() { m.heartbeatsTotal.Inc() }

// IncReconnects counts one connection loss.
func (m *IngestMetrics) IncReconnects() { m.reconnectsTotal.Inc() }

// IncDropped counts one dropped detection.
func (m *IngestMetrics) IncDropped() { m.droppedTotal.Inc() }
