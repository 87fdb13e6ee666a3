package datastore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/alert"
	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/deterrent"
	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/escalation"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "birdstrike.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	return store
}

func testEvent() *alert.DetectionEvent {
	return &alert.DetectionEvent{
		Species:           alert.Species{CommonName: "Herring Gull", ScientificName: "Larus argentatus"},
		Confidence:        0.91,
		RiskScore:         0.85,
		AlertLevel:        alert.LevelHigh,
		RecommendedAction: "DETERRENT",
		Timestamp:         time.Now().Add(-2 * time.Second),
		ReceivedAt:        time.Now(),
	}
}

func TestStoreImplementsEngineStore(t *testing.T) {
	var _ escalation.Store = (*Store)(nil)
}

func TestSaveAlertRoundTrip(t *testing.T) {
	store := openTestStore(t)
	event := testEvent()

	require.NoError(t, store.SaveAlert(event, alert.EventKey(event), "accepted"))
	require.NoError(t, store.SaveAlert(event, alert.EventKey(event), "duplicate"))

	records, err := store.RecentAlerts(10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "Herring Gull", records[0].CommonName)
	assert.Equal(t, "HIGH", records[0].AlertLevel)
	assert.Equal(t, alert.EventKey(event).String(), records[0].AlertKey)

	dispositions := []string{records[0].Disposition, records[1].Disposition}
	assert.ElementsMatch(t, []string{"accepted", "duplicate"}, dispositions)
}

func TestPendingActivationRecovery(t *testing.T) {
	store := openTestStore(t)

	activation := &deterrent.Activation{
		ID:            "act-1",
		SoundType:     "hawk_screech",
		ActivatedAt:   time.Now().Add(-time.Minute),
		WindowEnd:     time.Now().Add(-40 * time.Second),
		Effectiveness: deterrent.Effectiveness{Status: deterrent.EffectivenessPending},
	}
	require.NoError(t, store.SaveActivation(activation))

	pending, err := store.PendingActivations()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "act-1", pending[0].ID)
	assert.Equal(t, "hawk_screech", pending[0].SoundType)
	assert.Equal(t, deterrent.EffectivenessPending, pending[0].Effectiveness.Status)

	require.NoError(t, store.UpdateActivationEffectiveness("act-1", deterrent.Effectiveness{
		Status:  deterrent.EffectivenessMeasured,
		Percent: 57.3,
	}))

	pending, err = store.PendingActivations()
	require.NoError(t, err)
	assert.Empty(t, pending, "resolved activation must not be rescheduled")
}

func TestUnavailableEffectivenessPersisted(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.SaveActivation(&deterrent.Activation{
		ID:            "act-1",
		SoundType:     "owl_hoot",
		ActivatedAt:   time.Now(),
		WindowEnd:     time.Now().Add(20 * time.Second),
		Effectiveness: deterrent.Effectiveness{Status: deterrent.EffectivenessPending},
	}))

	require.NoError(t, store.UpdateActivationEffectiveness("act-1", deterrent.Effectiveness{
		Status:  deterrent.EffectivenessUnavailable,
		Percent: -3,
	}))

	pending, err := store.PendingActivations()
	require.NoError(t, err)
	assert.Empty(t, pending, "unavailable is a resolved outcome, not a pending one")

	var record ActivationRecord
	require.NoError(t, store.db.First(&record, "id = ?", "act-1").Error)
	assert.Equal(t, "unavailable", record.EffectivenessStatus)
	assert.InDelta(t, -3, record.EffectivenessPercent, 0.001,
		"the reported number is persisted as-is, never substituted")
}

func TestUpdateUnknownActivationFails(t *testing.T) {
	store := openTestStore(t)

	err := store.UpdateActivationEffectiveness("missing", deterrent.Effectiveness{
		Status: deterrent.EffectivenessMeasured, Percent: 10,
	})
	assert.Error(t, err)
}

func TestTransitionRecorderPersistsAuditTrail(t *testing.T) {
	store := openTestStore(t)
	recorder := NewTransitionRecorder(store)

	event := testEvent()
	changes := []*escalation.StateChange{
		{
			SessionID: "session-1",
			From:      escalation.StateIdle,
			To:        escalation.StatePendingConfirmation,
			Cause:     escalation.CauseEventHigh,
			Event:     event,
			Timestamp: time.Now(),
		},
		{
			SessionID: "session-1",
			From:      escalation.StatePendingConfirmation,
			To:        escalation.StateActive,
			Cause:     escalation.CauseCountdownElapsed,
			Event:     event,
			Timestamp: time.Now(),
		},
		{
			SessionID: "session-1",
			From:      escalation.StateActive,
			To:        escalation.StateActive,
			Cause:     escalation.CauseOperatorAcknowledge,
			Event:     event,
			Timestamp: time.Now(),
		},
	}
	for _, sc := range changes {
		require.NoError(t, recorder.ProcessStateChange(sc))
	}

	records, err := store.SessionTransitions("session-1")
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "IDLE", records[0].FromState)
	assert.Equal(t, "PENDING_CONFIRMATION", records[0].ToState)
	assert.Equal(t, "Herring Gull", records[0].Species)
	assert.Equal(t, "ACTIVE", records[1].ToState)

	assert.Equal(t, "operator-acknowledge", records[2].Cause,
		"operator acknowledgment is part of the audit trail")
	assert.Equal(t, records[2].FromState, records[2].ToState)
}
