package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/alert"
	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/errors"
	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/logging"
)

// Bus provides asynchronous event delivery with non-blocking publish
// guarantees. State changes are drained by a single worker so consumers
// observe transitions in the order they occurred inside the engine;
// detections are drained by a separate worker, reflecting that no
// cross-event ordering is promised at the ingestion boundary.
type Bus struct {
	stateChan     chan StateChangeEvent
	detectionChan chan *alert.DetectionEvent

	bufferSize int

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
	mu      sync.Mutex

	consumers []Consumer

	stats BusStats

	logger *slog.Logger
}

// Config holds bus configuration.
type Config struct {
	BufferSize int
}

// DefaultConfig returns the default bus configuration.
func DefaultConfig() *Config {
	return &Config{
		BufferSize: 1024,
	}
}

// NewBus creates a bus. Workers start when the first consumer registers.
func NewBus(config *Config) *Bus {
	if config == nil {
		config = DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Bus{
		stateChan:     make(chan StateChangeEvent, config.BufferSize),
		detectionChan: make(chan *alert.DetectionEvent, config.BufferSize),
		bufferSize:    config.BufferSize,
		ctx:           ctx,
		cancel:        cancel,
		consumers:     make([]Consumer, 0),
		logger:        logging.ForService("events"),
	}
}

// RegisterConsumer adds a new consumer. The first registration starts
// the worker goroutines.
func (b *Bus) RegisterConsumer(consumer Consumer) error {
	if b == nil {
		return errors.Newf("event bus not initialized").
			Component("events").
			Category(errors.CategoryState).
			Build()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.consumers {
		if existing.Name() == consumer.Name() {
			return errors.Newf("consumer %s already registered", consumer.Name()).
				Component("events").
				Category(errors.CategoryValidation).
				Build()
		}
	}

	b.consumers = append(b.consumers, consumer)

	b.logger.Info("registered event consumer", "consumer", consumer.Name())

	if len(b.consumers) == 1 && !b.running.Load() {
		b.start()
	}

	return nil
}

// PublishStateChange attempts to publish a transition without blocking.
// Returns true if accepted, false if dropped.
func (b *Bus) PublishStateChange(event StateChangeEvent) bool {
	if b == nil || !b.running.Load() {
		return false
	}

	select {
	case b.stateChan <- event:
		atomic.AddUint64(&b.stats.StateChangesReceived, 1)
		return true
	default:
		atomic.AddUint64(&b.stats.EventsDropped, 1)
		b.logger.Debug("state change dropped due to full buffer",
			"from", event.GetFrom(),
			"to", event.GetTo(),
		)
		return false
	}
}

// PublishDetection attempts to publish an accepted detection without
// blocking. Returns true if accepted, false if dropped.
func (b *Bus) PublishDetection(event *alert.DetectionEvent) bool {
	if b == nil || !b.running.Load() {
		return false
	}

	select {
	case b.detectionChan <- event:
		atomic.AddUint64(&b.stats.DetectionsReceived, 1)
		return true
	default:
		atomic.AddUint64(&b.stats.EventsDropped, 1)
		b.logger.Debug("detection dropped due to full buffer",
			"species", event.Species.CommonName,
		)
		return false
	}
}

// start begins the worker goroutines.
func (b *Bus) start() {
	if b.running.Swap(true) {
		return // Already running
	}

	b.logger.Info("starting event bus workers")

	b.wg.Add(2)
	go b.stateWorker()
	go b.detectionWorker()
}

// stateWorker drains transitions sequentially to preserve their order.
func (b *Bus) stateWorker() {
	defer b.wg.Done()

	logger := b.logger.With("worker", "state")
	for {
		select {
		case <-b.ctx.Done():
			logger.Debug("worker stopping due to context cancellation")
			return
		case event, ok := <-b.stateChan:
			if !ok {
				return
			}
			b.fanOut(logger, func(c Consumer) error {
				return c.ProcessStateChange(event)
			})
		}
	}
}

// detectionWorker drains accepted detections.
func (b *Bus) detectionWorker() {
	defer b.wg.Done()

	logger := b.logger.With("worker", "detection")
	for {
		select {
		case <-b.ctx.Done():
			logger.Debug("worker stopping due to context cancellation")
			return
		case event, ok := <-b.detectionChan:
			if !ok {
				return
			}
			b.fanOut(logger, func(c Consumer) error {
				return c.ProcessDetection(event)
			})
		}
	}
}

// fanOut delivers to every consumer, isolating failures: one consumer
// erroring or panicking must not corrupt delivery to the others.
func (b *Bus) fanOut(logger *slog.Logger, deliver func(Consumer) error) {
	b.mu.Lock()
	consumers := make([]Consumer, len(b.consumers))
	copy(consumers, b.consumers)
	b.mu.Unlock()

	for _, consumer := range consumers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					atomic.AddUint64(&b.stats.ConsumerErrors, 1)
					logger.Error("consumer panicked",
						"consumer", consumer.Name(),
						"panic", r,
					)
				}
			}()

			if err := deliver(consumer); err != nil {
				atomic.AddUint64(&b.stats.ConsumerErrors, 1)
				logger.Error("consumer error",
					"consumer", consumer.Name(),
					"error", err,
				)
			} else {
				atomic.AddUint64(&b.stats.EventsProcessed, 1)
			}
		}()
	}
}

// Shutdown gracefully shuts down the bus, waiting up to timeout for the
// workers to drain.
func (b *Bus) Shutdown(timeout time.Duration) error {
	if b == nil || !b.running.Load() {
		return nil
	}

	b.logger.Info("shutting down event bus", "timeout", timeout)

	b.running.Store(false)
	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("event bus shutdown complete")
		return nil
	case <-time.After(timeout):
		b.logger.Warn("event bus shutdown timeout exceeded")
		return errors.Newf("shutdown timeout exceeded").
			Component("events").
			Category(errors.CategoryTimeout).
			Build()
	}
}

// GetStats returns current bus statistics.
func (b *Bus) GetStats() BusStats {
	if b == nil {
		return BusStats{}
	}

	return BusStats{
		StateChangesReceived: atomic.LoadUint64(&b.stats.StateChangesReceived),
		DetectionsReceived:   atomic.LoadUint64(&b.stats.DetectionsReceived),
		EventsProcessed:      atomic.LoadUint64(&b.stats.EventsProcessed),
		EventsDropped:        atomic.LoadUint64(&b.stats.EventsDropped),
		ConsumerErrors:       atomic.LoadUint64(&b.stats.ConsumerErrors),
	}
}
