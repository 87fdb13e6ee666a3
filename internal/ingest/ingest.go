// Package ingest subscribes to the inbound detection stream over MQTT,
// normalizes payloads and feeds the escalation engine. Connection loss
// surfaces as degraded mode; recovery resubscribes automatically with a
// fixed retry delay.
package ingest

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/antonholmquist/jason"
	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/alert"
	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/conf"
	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/errors"
	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/logging"
	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/observability/metrics"
)

// Sink receives the output of the ingest stream. The escalation engine
// satisfies it.
type Sink interface {
	// HandleDetection enqueues a normalized detection. A false return
	// means the event was dropped.
	HandleDetection(event *alert.DetectionEvent) bool

	// SetDegraded reports transport health changes.
	SetDegraded(degraded bool, cause error)
}

// Stats are the subscriber's runtime counters.
type Stats struct {
	Messages   uint64
	Heartbeats uint64
	Dropped    uint64
	Reconnects uint64
}

// Subscriber is the MQTT detection stream consumer.
type Subscriber struct {
	settings   conf.IngestSettings
	clientID   string
	sink       Sink
	normalizer *alert.Normalizer
	metrics    *metrics.IngestMetrics

	client mqtt.Client

	messages   atomic.Uint64
	heartbeats atomic.Uint64
	dropped    atomic.Uint64
	reconnects atomic.Uint64

	logger *slog.Logger
}

// NewSubscriber creates a subscriber feeding the given sink.
func NewSubscriber(settings conf.IngestSettings, clientID string, sink Sink) *Subscriber {
	return &Subscriber{
		settings:   settings,
		clientID:   clientID,
		sink:       sink,
		normalizer: alert.NewNormalizer(),
		logger:     logging.ForService("ingest"),
	}
}

// SetMetrics attaches Prometheus metrics. Optional; nil-safe without.
func (s *Subscriber) SetMetrics(m *metrics.IngestMetrics) {
	s.metrics = m
}

// SetLogger replaces the default service logger, e.g. with a rotated
// file logger. Optional.
func (s *Subscriber) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Start connects to the broker and subscribes to the detections topic.
// Reconnection after a drop is automatic with a fixed retry delay.
func (s *Subscriber) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.settings.Broker)
	opts.SetClientID(s.clientID)
	opts.SetUsername(s.settings.Username)
	opts.SetPassword(s.settings.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(s.settings.ReconnectDelay)
	opts.SetMaxReconnectInterval(s.settings.ReconnectDelay)
	opts.SetOnConnectHandler(s.onConnect)
	opts.SetConnectionLostHandler(s.onConnectionLost)

	s.client = mqtt.NewClient(opts)

	token := s.client.Connect()
	select {
	case <-ctx.Done():
		s.client.Disconnect(0)
		return errors.New(ctx.Err()).
			Component("ingest").
			Category(errors.CategoryCancellation).
			Context("broker", s.settings.Broker).
			Build()
	case <-time.After(s.settings.ConnectTimeout):
		return errors.Newf("timeout connecting to broker %s", s.settings.Broker).
			Component("ingest").
			Category(errors.CategoryStreamTransport).
			Context("broker", s.settings.Broker).
			Build()
	case <-token.Done():
	}
	if err := token.Error(); err != nil {
		return errors.New(err).
			Component("ingest").
			Category(errors.CategoryStreamTransport).
			Context("broker", s.settings.Broker).
			Build()
	}
	return nil
}

// Stop disconnects from the broker.
func (s *Subscriber) Stop() {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
	}
}

// Stats returns a snapshot of the runtime counters.
func (s *Subscriber) Stats() Stats {
	return Stats{
		Messages:   s.messages.Load(),
		Heartbeats: s.heartbeats.Load(),
		Dropped:    s.dropped.Load(),
		Reconnects: s.reconnects.Load(),
	}
}

func (s *Subscriber) onConnect(client mqtt.Client) {
	token := client.Subscribe(s.settings.Topic, 0, s.handleMessage)
	token.Wait()
	if err := token.Error(); err != nil {
		s.logger.Error("failed to subscribe to detections topic",
			"topic", s.settings.Topic,
			"error", err,
		)
		s.sink.SetDegraded(true, err)
		return
	}

	s.logger.Info("subscribed to detection stream",
		"broker", s.settings.Broker,
		"topic", s.settings.Topic,
	)
	if s.metrics != nil {
		s.metrics.UpdateConnectionStatus(true)
	}
	s.sink.SetDegraded(false, nil)
}

func (s *Subscriber) onConnectionLost(_ mqtt.Client, err error) {
	s.reconnects.Add(1)
	s.logger.Warn("detection stream connection lost, retrying",
		"retry_delay", s.settings.ReconnectDelay,
		"error", err,
	)
	if s.metrics != nil {
		s.metrics.UpdateConnectionStatus(false)
		s.metrics.IncReconnects()
	}
	s.sink.SetDegraded(true, err)
}

func (s *Subscriber) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	payload := msg.Payload()
	s.messages.Add(1)
	if s.metrics != nil {
		s.metrics.IncMessages()
	}

	if isHeartbeat(payload) {
		s.heartbeats.Add(1)
		if s.metrics != nil {
			s.metrics.IncHeartbeats()
		}
		return
	}

	event := s.normalizer.Normalize(payload, time.Now())
	if !s.sink.HandleDetection(event) {
		s.dropped.Add(1)
		if s.metrics != nil {
			s.metrics.IncDropped()
		}
	}
}

// isHeartbeat recognizes keepalive messages on the detections topic.
// They are ignored, never treated as detections.
func isHeartbeat(payload []byte) bool {
	obj, err := jason.NewObjectFromBytes(payload)
	if err != nil {
		return false
	}
	msgType, err := obj.GetString("type")
	return err == nil && msgType == "heartbeat"
}
