package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engageai/internal/model"
)

func newTestEngagementService(t *testing.T, scorer Scorer) (*EngagementService, *fakeSessionRepo, *fakeEngagementRepo, *fakeLiveCache, *fakeBroadcaster) {
	t.Helper()

	sessions := newFakeSessionRepo()
	records := newFakeEngagementRepo()
	live := newFakeLiveCache()
	broadcaster := newFakeBroadcaster()

	svc, err := NewEngagementService(sessions, records, live, scorer, broadcaster)
	require.NoError(t, err)
	return svc, sessions, records, live, broadcaster
}

func activeSession(t *testing.T, sessions *fakeSessionRepo) *model.Session {
	t.Helper()
	session := &model.Session{
		TeacherID:   "teacher-1",
		ClassroomID: "class-1",
		Subject:     "Algorithms",
		Status:      model.SessionActive,
	}
	require.NoError(t, sessions.Create(context.Background(), session))
	return session
}

func TestNewEngagementServiceRequiresCollaborators(t *testing.T) {
	_, err := NewEngagementService(newFakeSessionRepo(), newFakeEngagementRepo(), newFakeLiveCache(), &fakeScorer{}, nil)
	assert.Error(t, err)

	_, err = NewEngagementService(newFakeSessionRepo(), newFakeEngagementRepo(), newFakeLiveCache(), nil, newFakeBroadcaster())
	assert.Error(t, err)
}

func TestProcessFrame(t *testing.T) {
	scorer := &fakeScorer{result: &ScorerResult{EngagementScore: 0.82, State: "Engaged", Confidence: 0.91}}
	svc, sessions, records, live, broadcaster := newTestEngagementService(t, scorer)
	session := activeSession(t, sessions)
	ctx := context.Background()

	result, err := svc.ProcessFrame(ctx, session.ID, "student-1", "Aarav", []byte("jpeg-bytes"))
	require.NoError(t, err)

	assert.InDelta(t, 0.82, result.EngagementScore, 1e-9)
	assert.Equal(t, 82, result.EngagementPercent)
	assert.Equal(t, model.StateEngaged, result.State)
	assert.Equal(t, "green", result.StatusColor)
	assert.False(t, result.Flags.NoFace)
	assert.False(t, result.Flags.LowConfidence)

	stored, err := records.ListBySession(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "class-1", stored[0].ClassroomID)
	assert.False(t, stored[0].Timestamp.IsZero())

	scores, err := live.Scores(ctx, session.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.82, scores["student-1"], 1e-9)

	assert.Contains(t, broadcaster.eventsFor("session_"+session.ID), EventEngagementUpdate)
}

func TestProcessFrameDegradesWhenScorerUnavailable(t *testing.T) {
	scorer := &fakeScorer{err: errors.New("connect: timeout")}
	svc, sessions, records, _, _ := newTestEngagementService(t, scorer)
	session := activeSession(t, sessions)
	ctx := context.Background()

	result, err := svc.ProcessFrame(ctx, session.ID, "student-1", "Aarav", []byte("jpeg-bytes"))
	require.NoError(t, err, "a dead scorer must not surface as an error")

	assert.Equal(t, 0.0, result.EngagementScore)
	assert.Equal(t, model.StateInactive, result.State)
	assert.Equal(t, 0.0, result.Confidence)
	assert.True(t, result.Flags.NoFace, "Inactive with confidence 0 derives the noFace flag")
	assert.True(t, result.Flags.LowConfidence)
	assert.Equal(t, "red", result.StatusColor)

	stored, err := records.ListBySession(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1, "degraded frames are persisted like any other")

	// The noFace flag lands on the session's trail.
	s, err := sessions.GetByID(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, s.Flags, 1)
	assert.Equal(t, model.FlagNoFace, s.Flags[0].Type)
	assert.Equal(t, "student-1", s.Flags[0].StudentID)
}

func TestProcessFrameClampsOutOfRangeScores(t *testing.T) {
	scorer := &fakeScorer{result: &ScorerResult{EngagementScore: 1.7, State: "Attentive", Confidence: -0.2}}
	svc, sessions, records, _, _ := newTestEngagementService(t, scorer)
	session := activeSession(t, sessions)

	result, err := svc.ProcessFrame(context.Background(), session.ID, "student-1", "Aarav", []byte("x"))
	require.NoError(t, err)

	assert.Equal(t, 1.0, result.EngagementScore)
	assert.Equal(t, 0.0, result.Confidence)

	stored, _ := records.ListBySession(context.Background(), session.ID)
	require.Len(t, stored, 1)
	assert.Equal(t, 1.0, stored[0].EngagementScore)
}

func TestProcessFrameUnknownState(t *testing.T) {
	scorer := &fakeScorer{result: &ScorerResult{EngagementScore: 0.5, State: "Daydreaming", Confidence: 0.8}}
	svc, sessions, _, _, _ := newTestEngagementService(t, scorer)
	session := activeSession(t, sessions)

	result, err := svc.ProcessFrame(context.Background(), session.ID, "student-1", "Aarav", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, model.StateUnknown, result.State)
}

func TestProcessFrameValidation(t *testing.T) {
	svc, sessions, _, _, _ := newTestEngagementService(t, &fakeScorer{result: &ScorerResult{State: "Engaged"}})
	session := activeSession(t, sessions)
	ctx := context.Background()

	_, err := svc.ProcessFrame(ctx, "", "student-1", "Aarav", []byte("x"))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.ProcessFrame(ctx, session.ID, "student-1", "Aarav", nil)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.ProcessFrame(ctx, "missing", "student-1", "Aarav", []byte("x"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProcessFrameAbortsWhenStoreFails(t *testing.T) {
	scorer := &fakeScorer{result: &ScorerResult{EngagementScore: 0.8, State: "Engaged", Confidence: 0.9}}
	svc, sessions, records, _, broadcaster := newTestEngagementService(t, scorer)
	session := activeSession(t, sessions)
	records.failing = true

	_, err := svc.ProcessFrame(context.Background(), session.ID, "student-1", "Aarav", []byte("x"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrValidation)
	assert.Empty(t, broadcaster.eventsFor("session_"+session.ID), "no broadcast without a persisted record")
}

func TestSubmitScored(t *testing.T) {
	svc, sessions, records, live, broadcaster := newTestEngagementService(t, &fakeScorer{result: &ScorerResult{State: "Engaged"}})
	session := activeSession(t, sessions)
	ctx := context.Background()

	err := svc.SubmitScored(ctx, session.ID, "student-1", "Aarav", 0.73456, "Engaged", 0.9, map[string]bool{"no_face": true})
	require.NoError(t, err)

	stored, err := records.ListBySession(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.InDelta(t, 0.7346, stored[0].EngagementScore, 1e-9, "scores round to four decimals")

	scores, err := live.Scores(ctx, session.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.7346, scores["student-1"], 1e-9)

	events := broadcaster.eventsFor("session_" + session.ID)
	assert.Contains(t, events, EventEngagementUpdate)
	assert.Contains(t, events, EventStudentFlagged, "client-reported no_face flag is relayed")
}

func TestSubmitScoredInactiveSession(t *testing.T) {
	svc, _, _, _, _ := newTestEngagementService(t, &fakeScorer{result: &ScorerResult{State: "Engaged"}})

	err := svc.SubmitScored(context.Background(), "missing", "student-1", "Aarav", 0.5, "Engaged", 0.9, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeriveFrameFlags(t *testing.T) {
	tests := []struct {
		name          string
		state         model.EngagementState
		confidence    float64
		multipleFaces bool
		want          model.FrameFlags
	}{
		{"engaged high confidence", model.StateEngaged, 0.9, false, model.FrameFlags{}},
		{"inactive low confidence", model.StateInactive, 0.2, false, model.FrameFlags{NoFace: true, LowConfidence: true}},
		{"inactive confident", model.StateInactive, 0.8, false, model.FrameFlags{}},
		{"engaged low confidence", model.StateEngaged, 0.35, false, model.FrameFlags{LowConfidence: true}},
		{"boundary confidence", model.StateInactive, 0.3, false, model.FrameFlags{LowConfidence: true}},
		{"multiple faces passthrough", model.StateEngaged, 0.9, true, model.FrameFlags{MultipleFaces: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, deriveFrameFlags(tt.state, tt.confidence, tt.multipleFaces))
		})
	}
}
