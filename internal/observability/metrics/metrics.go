// Package metrics provides Prometheus metrics for the escalation
// engine and its ingest stream.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/errors"
)

const namespace = "birdstrike"

// Metrics bundles all metric groups behind one registry.
type Metrics struct {
	registry *prometheus.Registry

	Ingest *IngestMetrics
	Engine *EngineMetrics
}

// NewMetrics creates and registers all metric groups.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	ingest, err := NewIngestMetrics(registry)
	if err != nil {
		return nil, err
	}

	engine, err := NewEngineMetrics(registry)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		registry: registry,
		Ingest:   ingest,
		Engine:   engine,
	}, nil
}

// Registry exposes the underlying registry for an exporter endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func registrationError(err error, group string) error {
	return errors.New(err).
		Component("metrics").
		Category(errors.CategoryConfiguration).
		Context("group", group).
		Build()
}
