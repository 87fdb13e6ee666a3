package alert

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyIsTotalAndDeterministic(t *testing.T) {
	t.Parallel()

	for _, level := range []Level{LevelLow, LevelMedium, LevelHigh, LevelCritical} {
		event := &DetectionEvent{AlertLevel: level}
		assert.Equal(t, level, Classify(event))
		assert.Equal(t, level, Classify(event), "repeated classification must agree")
	}
}

func TestEscalationEligibility(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level    Level
		eligible bool
	}{
		{LevelLow, false},
		{LevelMedium, false},
		{LevelHigh, true},
		{LevelCritical, true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.eligible, tt.level.EscalationEligible(), "level %s", tt.level)
	}
}

func TestLevelOrdering(t *testing.T) {
	t.Parallel()

	assert.True(t, LevelCritical > LevelHigh)
	assert.True(t, LevelHigh > LevelMedium)
	assert.True(t, LevelMedium > LevelLow)
}

func TestParseLevelRoundTrip(t *testing.T) {
	t.Parallel()

	for _, level := range []Level{LevelLow, LevelMedium, LevelHigh, LevelCritical} {
		assert.Equal(t, level, ParseLevel(level.String()))
	}
	assert.Equal(t, LevelLow, ParseLevel("garbage"))
	assert.Equal(t, LevelLow, ParseLevel(""))
}
