package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseState(t *testing.T) {
	assert.Equal(t, StateEngaged, ParseState("Engaged"))
	assert.Equal(t, StateInactive, ParseState("Inactive"))
	assert.Equal(t, StateUnknown, ParseState("Daydreaming"))
	assert.Equal(t, StateUnknown, ParseState(""))
	// Case sensitive by contract: the scorer emits canonical casing.
	assert.Equal(t, StateUnknown, ParseState("engaged"))
}

func TestStateRiskBuckets(t *testing.T) {
	assert.Equal(t, RiskLow, StateAttentive.Risk())
	assert.Equal(t, RiskLow, StateEngaged.Risk())
	assert.Equal(t, RiskMedium, StateNeutral.Risk())
	assert.Equal(t, RiskHigh, StateDistracted.Risk())
	assert.Equal(t, RiskHigh, StateInactive.Risk())
	assert.Equal(t, RiskMedium, StateUnknown.Risk())
}

func TestScoreColor(t *testing.T) {
	assert.Equal(t, "green", ScoreColor(0.7))
	assert.Equal(t, "green", ScoreColor(1.0))
	assert.Equal(t, "yellow", ScoreColor(0.4))
	assert.Equal(t, "yellow", ScoreColor(0.69))
	assert.Equal(t, "red", ScoreColor(0.39))
	assert.Equal(t, "red", ScoreColor(0))
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, Clamp01(-0.5))
	assert.Equal(t, 1.0, Clamp01(1.5))
	assert.Equal(t, 0.42, Clamp01(0.42))
}

func TestRecordNormalize(t *testing.T) {
	r := &EngagementRecord{EngagementScore: 1.3, Confidence: -0.1}
	r.Normalize()
	assert.Equal(t, 1.0, r.EngagementScore)
	assert.Equal(t, 0.0, r.Confidence)
	assert.Equal(t, StateUnknown, r.State)

	r = &EngagementRecord{EngagementScore: 0.5, Confidence: 0.9, State: StateEngaged}
	r.Normalize()
	assert.Equal(t, StateEngaged, r.State)
}

func TestRosterEntryFor(t *testing.T) {
	s := &Session{Students: []RosterEntry{{StudentID: "a"}, {StudentID: "b"}}}
	assert.NotNil(t, s.RosterEntryFor("a"))
	assert.Nil(t, s.RosterEntryFor("missing"))

	// Returned pointer aliases the slice so callers can mutate in place.
	s.RosterEntryFor("b").IsActive = true
	assert.True(t, s.Students[1].IsActive)
}
