package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/alert"
)

// mockStateChange implements StateChangeEvent for testing
type mockStateChange struct {
	sessionID string
	from, to  string
	cause     string
	timestamp time.Time
}

func (m *mockStateChange) GetSessionID() string { return m.sessionID }
func (m *mockStateChange) GetFrom() string { return m.from }
func (m *mockStateChange) GetTo() string { return m.to }
func (m *mockStateChange) GetCause() string { return m.cause }
func (m *mockStateChange) GetTimestamp() time.Time { return m.timestamp }
func (m *mockStateChange) GetEvent() *alert.DetectionEvent { return nil }
func (m *mockStateChange) GetError() error { return nil }

// mockConsumer implements Consumer for testing
type mockConsumer struct {
	name           string
	errorOnProcess bool
	panicOnProcess bool
	processDelay   time.Duration
	processedCount atomic.Int32

	mu           sync.Mutex
	stateChanges []StateChangeEvent
	detections   []*alert.DetectionEvent
}

func (m *mockConsumer) Name() string { return m.name }

func (m *mockConsumer) ProcessStateChange(event StateChangeEvent) error {
	if m.processDelay > 0 {
		time.Sleep(m.processDelay)
	}
	if m.panicOnProcess {
		panic("mock panic")
	}

	m.mu.Lock()
	m.stateChanges = append(m.stateChanges, event)
	m.mu.Unlock()

	m.processedCount.Add(1)

	if m.errorOnProcess {
		return fmt.Errorf("mock error")
	}
	return nil
}

func (m *mockConsumer) ProcessDetection(event *alert.DetectionEvent) error {
	m.mu.Lock()
	m.detections = append(m.detections, event)
	m.mu.Unlock()

	m.processedCount.Add(1)
	return nil
}

func (m *mockConsumer) getStateChanges() []StateChangeEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StateChangeEvent, len(m.stateChanges))
	copy(out, m.stateChanges)
	return out
}

// waitForProcessed waits for the consumer to process n events or times out
func waitForProcessed(t *testing.T, consumer *mockConsumer, expected int32, timeout time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), timeout)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			require.Failf(t, "timeout waiting for events",
				"expected %d events, got %d", expected, consumer.processedCount.Load())
		case <-ticker.C:
			if consumer.processedCount.Load() >= expected {
				return
			}
		}
	}
}

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	bus := NewBus(&Config{BufferSize: 64})
	t.Cleanup(func() { _ = bus.Shutdown(time.Second) })
	return bus
}

func TestStateChangeOrderingPreserved(t *testing.T) {
	bus := newTestBus(t)
	consumer := &mockConsumer{name: "ordered"}
	require.NoError(t, bus.RegisterConsumer(consumer))

	const count = 50
	for i := range count {
		ok := bus.PublishStateChange(&mockStateChange{
			sessionID: fmt.Sprintf("session-%d", i),
			from:      "idle",
			to:        "active",
			timestamp: time.Now(),
		})
		require.True(t, ok)
	}

	waitForProcessed(t, consumer, count, 2*time.Second)

	changes := consumer.getStateChanges()
	require.Len(t, changes, count)
	for i, sc := range changes {
		assert.Equal(t, fmt.Sprintf("session-%d", i), sc.GetSessionID())
	}
}

func TestFanOutReachesAllConsumers(t *testing.T) {
	bus := newTestBus(t)
	first := &mockConsumer{name: "first"}
	second := &mockConsumer{name: "second"}
	require.NoError(t, bus.RegisterConsumer(first))
	require.NoError(t, bus.RegisterConsumer(second))

	require.True(t, bus.PublishStateChange(&mockStateChange{from: "idle", to: "active"}))

	waitForProcessed(t, first, 1, time.Second)
	waitForProcessed(t, second, 1, time.Second)
}

func TestFailingConsumerDoesNotAffectOthers(t *testing.T) {
	bus := newTestBus(t)
	failing := &mockConsumer{name: "failing", errorOnProcess: true}
	panicking := &mockConsumer{name: "panicking", panicOnProcess: true}
	healthy := &mockConsumer{name: "healthy"}
	require.NoError(t, bus.RegisterConsumer(failing))
	require.NoError(t, bus.RegisterConsumer(panicking))
	require.NoError(t, bus.RegisterConsumer(healthy))

	for range 3 {
		require.True(t, bus.PublishStateChange(&mockStateChange{from: "idle", to: "active"}))
	}

	waitForProcessed(t, healthy, 3, time.Second)

	stats := bus.GetStats()
	assert.GreaterOrEqual(t, stats.ConsumerErrors, uint64(6)) // 3 errors + 3 panics
}

func TestPublishWithoutConsumersIsDropped(t *testing.T) {
	bus := NewBus(nil)
	defer func() { _ = bus.Shutdown(time.Second) }()

	// No consumer registered means no workers, publish reports false.
	assert.False(t, bus.PublishStateChange(&mockStateChange{from: "idle", to: "active"}))
}

func TestPublishDoesNotBlockOnSlowConsumer(t *testing.T) {
	bus := NewBus(&Config{BufferSize: 4})
	defer func() { _ = bus.Shutdown(2 * time.Second) }()

	slow := &mockConsumer{name: "slow", processDelay: 50 * time.Millisecond}
	require.NoError(t, bus.RegisterConsumer(slow))

	// Publish more than buffer+in-flight can hold; every call must
	// return promptly, with overflow dropped rather than blocking.
	start := time.Now()
	for range 64 {
		bus.PublishStateChange(&mockStateChange{from: "idle", to: "active"})
	}
	assert.Less(t, time.Since(start), time.Second)
	assert.Positive(t, bus.GetStats().EventsDropped)
}

func TestDuplicateConsumerRejected(t *testing.T) {
	bus := newTestBus(t)
	require.NoError(t, bus.RegisterConsumer(&mockConsumer{name: "dup"}))
	assert.Error(t, bus.RegisterConsumer(&mockConsumer{name: "dup"}))
}

func TestDetectionFanOut(t *testing.T) {
	bus := newTestBus(t)
	consumer := &mockConsumer{name: "detections"}
	require.NoError(t, bus.RegisterConsumer(consumer))

	event := &alert.DetectionEvent{
		Species:   alert.Species{CommonName: "Common Starling"},
		Timestamp: time.Now(),
	}
	require.True(t, bus.PublishDetection(event))

	waitForProcessed(t, consumer, 1, time.Second)

	consumer.mu.Lock()
	defer consumer.mu.Unlock()
	require.Len(t, consumer.detections, 1)
	assert.Equal(t, "Common Starling", consumer.detections[0].Species.CommonName)
}
