package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"engageai/internal/cache"
	"engageai/internal/model"
	"engageai/internal/repository"
)

// Confidence cutoffs for frame flag derivation.
const (
	noFaceConfidence       = 0.3
	lowConfidenceThreshold = 0.4
)

// FrameResult is what the submitting student's client gets back. It is
// returned even when the scorer was unavailable (degraded result), so a
// flaky model service never turns into an error screen mid-class.
type FrameResult struct {
	EngagementScore   float64               `json:"engagementScore"`
	EngagementPercent int                   `json:"engagementPercent"`
	State             model.EngagementState `json:"state"`
	Confidence        float64               `json:"confidence"`
	StatusColor       string                `json:"statusColor"`
	Flags             model.FrameFlags      `json:"flags"`
}

// EngagementService is the ingestion pipeline: score, flag, persist,
// broadcast. It is stateless per call; any number of frames may be
// processed concurrently.
type EngagementService struct {
	sessions    repository.SessionRepo
	records     repository.EngagementRepo
	live        cache.LiveCache
	scorer      Scorer
	broadcaster Broadcaster
}

func NewEngagementService(
	sessions repository.SessionRepo,
	records repository.EngagementRepo,
	live cache.LiveCache,
	scorer Scorer,
	broadcaster Broadcaster,
) (*EngagementService, error) {
	if broadcaster == nil {
		return nil, errors.New("engagement service: broadcaster is required")
	}
	if scorer == nil {
		return nil, errors.New("engagement service: scorer is required")
	}
	return &EngagementService{
		sessions:    sessions,
		records:     records,
		live:        live,
		scorer:      scorer,
		broadcaster: broadcaster,
	}, nil
}

// ProcessFrame runs one frame through the pipeline. Scorer failures degrade
// to {0, Inactive, 0}; every other failure aborts the frame with no record
// written.
func (s *EngagementService) ProcessFrame(ctx context.Context, sessionID, studentID, studentName string, frame []byte) (*FrameResult, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: sessionId is required", ErrValidation)
	}
	if len(frame) == 0 {
		return nil, fmt.Errorf("%w: no frame image uploaded", ErrValidation)
	}

	session, err := s.sessions.FindActiveByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: no active session with that id", ErrNotFound)
	}

	scored, err := s.scorer.Score(ctx, frame, studentID)
	if err != nil {
		log.Printf("engagement: scorer unavailable for student %s: %v", studentID, err)
		scored = &ScorerResult{EngagementScore: 0, State: string(model.StateInactive), Confidence: 0}
	}

	record := &model.EngagementRecord{
		SessionID:       sessionID,
		StudentID:       studentID,
		ClassroomID:     session.ClassroomID,
		EngagementScore: scored.EngagementScore,
		State:           model.ParseState(scored.State),
		Confidence:      scored.Confidence,
		Timestamp:       time.Now(),
	}
	record.Normalize()
	record.FrameFlags = deriveFrameFlags(record.State, record.Confidence, scored.MultipleFaces)

	if err := s.records.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("persist record: %w", err)
	}

	if record.FrameFlags.NoFace {
		flag := model.SessionFlag{
			Type:      model.FlagNoFace,
			StudentID: studentID,
			Timestamp: record.Timestamp,
			Details:   "No face detected in frame.",
		}
		if err := s.sessions.AppendFlag(ctx, sessionID, flag); err != nil {
			return nil, fmt.Errorf("append session flag: %w", err)
		}
	}

	if err := s.live.SetScore(ctx, sessionID, studentID, record.EngagementScore); err != nil {
		log.Printf("engagement: failed to update live score for %s: %v", studentID, err)
	}

	result := &FrameResult{
		EngagementScore:   record.EngagementScore,
		EngagementPercent: int(math.Round(record.EngagementScore * 100)),
		State:             record.State,
		Confidence:        record.Confidence,
		StatusColor:       model.ScoreColor(record.EngagementScore),
		Flags:             record.FrameFlags,
	}

	s.broadcaster.ToSession(sessionID, EventEngagementUpdate, map[string]interface{}{
		"sessionId":         sessionID,
		"studentId":         studentID,
		"studentName":       studentName,
		"engagementScore":   result.EngagementScore,
		"engagementPercent": result.EngagementPercent,
		"state":             result.State,
		"confidence":        result.Confidence,
		"statusColor":       result.StatusColor,
		"timestamp":         record.Timestamp,
		"flags":             record.FrameFlags,
	})

	return result, nil
}

// SubmitScored is the channel-side ingestion path: the client already ran
// scoring and submits the result. It persists a record equivalent to the
// REST path's, with the same clamping and a server-assigned timestamp.
func (s *EngagementService) SubmitScored(ctx context.Context, sessionID, studentID, studentName string, score float64, state string, confidence float64, clientFlags map[string]bool) error {
	if sessionID == "" {
		return fmt.Errorf("%w: sessionId is required", ErrValidation)
	}

	session, err := s.sessions.FindActiveByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("find session: %w", err)
	}
	if session == nil {
		return fmt.Errorf("%w: no active session with that id", ErrNotFound)
	}

	record := &model.EngagementRecord{
		SessionID:       sessionID,
		StudentID:       studentID,
		ClassroomID:     session.ClassroomID,
		EngagementScore: math.Round(score*10000) / 10000,
		State:           model.ParseState(state),
		Confidence:      confidence,
		Timestamp:       time.Now(),
	}
	record.Normalize()
	record.FrameFlags = deriveFrameFlags(record.State, record.Confidence, clientFlags["multiple_faces"])

	if err := s.records.Create(ctx, record); err != nil {
		return fmt.Errorf("persist record: %w", err)
	}

	if err := s.live.SetScore(ctx, sessionID, studentID, record.EngagementScore); err != nil {
		log.Printf("engagement: failed to update live score for %s: %v", studentID, err)
	}

	s.broadcaster.ToSession(sessionID, EventEngagementUpdate, map[string]interface{}{
		"sessionId":         sessionID,
		"studentId":         studentID,
		"studentName":       studentName,
		"engagementPercent": int(math.Round(record.EngagementScore * 100)),
		"state":             record.State,
	})

	// Relay client-reported anti-spoof flags.
	for _, flag := range []model.FlagType{model.FlagNoFace, model.FlagMultipleFaces} {
		if clientFlags[string(flag)] {
			s.broadcaster.ToSession(sessionID, EventStudentFlagged, map[string]interface{}{
				"sessionId": sessionID,
				"studentId": studentID,
				"name":      studentName,
				"flag":      flag,
			})
		}
	}

	return nil
}

// deriveFrameFlags computes the per-frame anti-spoof heuristics. The
// multipleFaces flag is passed through from the scorer, never inferred.
func deriveFrameFlags(state model.EngagementState, confidence float64, multipleFaces bool) model.FrameFlags {
	return model.FrameFlags{
		NoFace:        state == model.StateInactive && confidence < noFaceConfidence,
		MultipleFaces: multipleFaces,
		LowConfidence: confidence < lowConfidenceThreshold,
	}
}
