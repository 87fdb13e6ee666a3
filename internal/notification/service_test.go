package notification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/alert"
	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/escalation"
)

func newTestService(t *testing.T, config *Config) *Service {
	t.Helper()
	service := NewService(config)
	service.Start(t.Context())
	t.Cleanup(service.Stop)
	return service
}

func pendingChange() *escalation.StateChange {
	return &escalation.StateChange{
		SessionID: "session-1",
		From:      escalation.StateIdle,
		To:        escalation.StatePendingConfirmation,
		Cause:     escalation.CauseEventHigh,
		Timestamp: time.Now(),
	}
}

func TestStateChangeProducesNotification(t *testing.T) {
	service := newTestService(t, nil)

	require.NoError(t, service.ProcessStateChange(pendingChange()))

	recent := service.Recent(10)
	require.Len(t, recent, 1)
	assert.Equal(t, TypeWarning, recent[0].Type)
	assert.Equal(t, PriorityHigh, recent[0].Priority)
	assert.Equal(t, "session-1", recent[0].Metadata["session_id"])
}

func TestDispatchFailureNotifiedAsError(t *testing.T) {
	service := newTestService(t, nil)

	sc := &escalation.StateChange{
		SessionID: "session-1",
		From:      escalation.StateActive,
		To:        escalation.StateIdle,
		Cause:     escalation.CauseDispatchFailed,
		Err:       assert.AnError,
		Timestamp: time.Now(),
	}
	require.NoError(t, service.ProcessStateChange(sc))

	recent := service.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, TypeError, recent[0].Type)
	assert.Equal(t, PriorityCritical, recent[0].Priority)
}

func TestOnlyEligibleDetectionsNotify(t *testing.T) {
	service := newTestService(t, nil)

	low := &alert.DetectionEvent{
		Species:    alert.Species{CommonName: "Rock Pigeon"},
		AlertLevel: alert.LevelLow,
	}
	critical := &alert.DetectionEvent{
		Species:    alert.Species{CommonName: "Herring Gull"},
		AlertLevel: alert.LevelCritical,
		RiskScore:  0.9,
	}

	require.NoError(t, service.ProcessDetection(low))
	require.NoError(t, service.ProcessDetection(critical))

	recent := service.Recent(10)
	require.Len(t, recent, 1)
	assert.Equal(t, TypeDetection, recent[0].Type)
	assert.Equal(t, PriorityCritical, recent[0].Priority)
}

func TestSubscriberReceivesNotifications(t *testing.T) {
	service := newTestService(t, nil)

	ch, cancel := service.Subscribe()
	defer cancel()

	require.NoError(t, service.ProcessStateChange(pendingChange()))

	select {
	case n := <-ch:
		assert.Equal(t, TypeWarning, n.Type)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive notification")
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	config := DefaultConfig()
	config.SubscriberBuffer = 1
	service := newTestService(t, config)

	_, cancel := service.Subscribe()
	defer cancel()

	// Fill the buffer, then keep publishing; publish must not block and
	// the overflow is counted as dropped.
	done := make(chan struct{})
	go func() {
		for range 5 {
			_ = service.ProcessStateChange(pendingChange())
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
	assert.Positive(t, service.Dropped())
}

func TestStoreEvictsOldestAtCapacity(t *testing.T) {
	store := NewInMemoryStore(2)

	first := NewNotification(TypeInfo, PriorityLow, "first", "")
	store.Save(first)
	store.Save(NewNotification(TypeInfo, PriorityLow, "second", ""))
	store.Save(NewNotification(TypeInfo, PriorityLow, "third", ""))

	assert.Equal(t, 2, store.Len())
	_, found := store.Get(first.ID)
	assert.False(t, found, "oldest notification evicted")
}

func TestRemoveExpired(t *testing.T) {
	store := NewInMemoryStore(10)

	expired := NewNotification(TypeInfo, PriorityLow, "old", "")
	expired.WithExpiry(-time.Minute)
	store.Save(expired)
	store.Save(NewNotification(TypeInfo, PriorityLow, "fresh", ""))

	assert.Equal(t, 1, store.RemoveExpired())
	assert.Equal(t, 1, store.Len())
}

func TestRateLimiterCapsPerTypeVolume(t *testing.T) {
	limiter := newRateLimiter(time.Minute, 3)

	for range 3 {
		assert.True(t, limiter.allow(TypeInfo))
	}
	assert.False(t, limiter.allow(TypeInfo))
	assert.True(t, limiter.allow(TypeError), "other types have their own budget")
}
