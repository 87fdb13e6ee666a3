package deterrent

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testActivation(id string, windowEnd time.Time) *Activation {
	return &Activation{
		ID:            id,
		SoundType:     "hawk_screech",
		ActivatedAt:   windowEnd.Add(-20 * time.Second),
		WindowEnd:     windowEnd,
		Effectiveness: Effectiveness{Status: EffectivenessPending},
	}
}

func collectReport(t *testing.T, reports <-chan MeasurementReport, timeout time.Duration) MeasurementReport {
	t.Helper()
	select {
	case report := <-reports:
		return report
	case <-time.After(timeout):
		require.Fail(t, "timeout waiting for measurement report")
		return MeasurementReport{}
	}
}

func TestMeasurementResolvesAfterWindow(t *testing.T) {
	t.Parallel()

	controller := &stubController{measurement: Measurement{Available: true, Percent: 72.5}}
	tracker := NewTracker(controller)
	t.Cleanup(tracker.Shutdown)

	reports := make(chan MeasurementReport, 1)
	tracker.Schedule(testActivation("act-1", time.Now().Add(30*time.Millisecond)), func(r MeasurementReport) {
		reports <- r
	})

	report := collectReport(t, reports, time.Second)
	assert.Equal(t, "act-1", report.ActivationID)
	assert.Equal(t, EffectivenessMeasured, report.Effectiveness.Status)
	assert.InDelta(t, 72.5, report.Effectiveness.Percent, 0.001)
	assert.NoError(t, report.Err)
}

func TestScheduleIsExactlyOncePerActivation(t *testing.T) {
	t.Parallel()

	controller := &stubController{measurement: Measurement{Available: true, Percent: 50}}
	tracker := NewTracker(controller)
	t.Cleanup(tracker.Shutdown)

	reports := make(chan MeasurementReport, 2)
	activation := testActivation("act-1", time.Now().Add(30*time.Millisecond))
	report := func(r MeasurementReport) { reports <- r }

	tracker.Schedule(activation, report)
	tracker.Schedule(activation, report)

	collectReport(t, reports, time.Second)

	select {
	case <-reports:
		t.Fatal("second measurement delivered for the same activation")
	case <-time.After(100 * time.Millisecond):
	}

	_, _, measures := controller.counts()
	assert.Equal(t, 1, measures)
}

func TestPastWindowEndMeasuresImmediately(t *testing.T) {
	t.Parallel()

	controller := &stubController{measurement: Measurement{Available: true, Percent: 40}}
	tracker := NewTracker(controller)
	t.Cleanup(tracker.Shutdown)

	reports := make(chan MeasurementReport, 1)

	// A window that elapsed while the process was down still resolves.
	tracker.Schedule(testActivation("act-restart", time.Now().Add(-5*time.Second)), func(r MeasurementReport) {
		reports <- r
	})

	report := collectReport(t, reports, time.Second)
	assert.Equal(t, EffectivenessMeasured, report.Effectiveness.Status)
}

func TestNonPositiveReadingStoredAsUnavailable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		measurement Measurement
	}{
		{"zero percent", Measurement{Available: true, Percent: 0}},
		{"negative percent", Measurement{Available: true, Percent: -3}},
		{"not available", Measurement{Available: false, Percent: 80}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tracker := NewTracker(&stubController{measurement: tt.measurement})
			t.Cleanup(tracker.Shutdown)

			reports := make(chan MeasurementReport, 1)
			tracker.Schedule(testActivation("act-1", time.Now()), func(r MeasurementReport) {
				reports <- r
			})

			report := collectReport(t, reports, time.Second)
			assert.Equal(t, EffectivenessUnavailable, report.Effectiveness.Status)
			assert.Equal(t, tt.measurement.Percent, report.Effectiveness.Percent,
				"the reported number is kept as-is next to the unavailable status")
			assert.NoError(t, report.Err)
		})
	}
}

func TestMeasurementErrorReportedAsUnavailable(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(&stubController{measureErr: fmt.Errorf("sensor offline")})
	t.Cleanup(tracker.Shutdown)

	reports := make(chan MeasurementReport, 1)
	tracker.Schedule(testActivation("act-1", time.Now()), func(r MeasurementReport) {
		reports <- r
	})

	report := collectReport(t, reports, time.Second)
	assert.Equal(t, EffectivenessUnavailable, report.Effectiveness.Status)
	assert.Error(t, report.Err)
}

func TestShutdownCancelsPendingTimers(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(&stubController{})
	tracker.Schedule(testActivation("act-1", time.Now().Add(time.Hour)), func(MeasurementReport) {})
	require.Equal(t, 1, tracker.Pending())

	tracker.Shutdown()
	assert.Zero(t, tracker.Pending())
}
