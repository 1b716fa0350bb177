package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"engageai/internal/cache"
	"engageai/internal/model"
	"engageai/internal/repository"
)

const joinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
const joinCodeLength = 6

// liveWindow is how far back a record may be for a student to count as
// "active now" in the fleet view.
const liveWindow = 2 * time.Minute

// SessionService owns the live session lifecycle: start, join, leave, end.
type SessionService struct {
	sessions    repository.SessionRepo
	classrooms  repository.ClassroomRepo
	engagements repository.EngagementRepo
	users       repository.UserRepo
	codes       cache.CodeCache
	live        cache.LiveCache
	broadcaster Broadcaster

	codeAttempts int
	lowThreshold float64
}

// NewSessionService wires the registry. The broadcaster is mandatory:
// operating without one is a wiring bug surfaced at construction, not at
// call time.
func NewSessionService(
	sessions repository.SessionRepo,
	classrooms repository.ClassroomRepo,
	engagements repository.EngagementRepo,
	users repository.UserRepo,
	codes cache.CodeCache,
	live cache.LiveCache,
	broadcaster Broadcaster,
	codeAttempts int,
	lowThreshold float64,
) (*SessionService, error) {
	if broadcaster == nil {
		return nil, errors.New("session service: broadcaster is required")
	}
	if codeAttempts <= 0 {
		codeAttempts = 10
	}
	return &SessionService{
		sessions:     sessions,
		classrooms:   classrooms,
		engagements:  engagements,
		users:        users,
		codes:        codes,
		live:         live,
		broadcaster:  broadcaster,
		codeAttempts: codeAttempts,
		lowThreshold: lowThreshold,
	}, nil
}

// StartSessionInput is the teacher-supplied part of a new session.
type StartSessionInput struct {
	ClassroomID string
	Subject     string
	ClassName   string
	Title       string
}

// StartSession creates a new active session for a teacher. Any session
// still active for the same classroom is force-ended first (abandoned, no
// summary).
func (s *SessionService) StartSession(ctx context.Context, teacherID string, in StartSessionInput) (*model.Session, error) {
	if strings.TrimSpace(in.Subject) == "" {
		return nil, fmt.Errorf("%w: subject is required", ErrValidation)
	}

	if in.ClassroomID != "" {
		classroom, err := s.classrooms.FindOwned(ctx, in.ClassroomID, teacherID)
		if err != nil {
			return nil, fmt.Errorf("verify classroom: %w", err)
		}
		if classroom == nil {
			return nil, fmt.Errorf("%w: classroom not found or access denied", ErrNotFound)
		}

		// Force-end whatever was still running for this classroom.
		if prior, err := s.sessions.FindActiveByClassroom(ctx, in.ClassroomID); err == nil && prior != nil {
			if err := s.codes.Delete(ctx, prior.JoinCode); err != nil {
				log.Printf("session: failed to evict join code %s: %v", prior.JoinCode, err)
			}
			if err := s.live.Clear(ctx, prior.ID); err != nil {
				log.Printf("session: failed to clear live scores for %s: %v", prior.ID, err)
			}
		}
		if err := s.sessions.EndActiveForClassroom(ctx, in.ClassroomID, time.Now()); err != nil {
			return nil, fmt.Errorf("end previous session: %w", err)
		}
	}

	code, err := s.generateJoinCode(ctx)
	if err != nil {
		return nil, err
	}

	className := strings.TrimSpace(in.ClassName)
	if className == "" {
		if in.ClassroomID != "" {
			className = "Class"
		} else {
			className = "Session"
		}
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = fmt.Sprintf("%s - %s", className, time.Now().Format("Jan 2, 2006"))
	}

	session := &model.Session{
		TeacherID:   teacherID,
		ClassroomID: in.ClassroomID,
		ClassName:   className,
		Subject:     strings.TrimSpace(in.Subject),
		Title:       title,
		JoinCode:    code,
		Status:      model.SessionActive,
		StartTime:   time.Now(),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	if err := s.codes.Set(ctx, code, session.ID); err != nil {
		log.Printf("session: failed to index join code %s: %v", code, err)
	}

	s.broadcaster.ToTeacher(teacherID, EventSessionStarted, map[string]interface{}{
		"sessionId": session.ID,
		"subject":   session.Subject,
		"className": session.ClassName,
		"joinCode":  session.JoinCode,
		"title":     session.Title,
		"startTime": session.StartTime,
	})

	return session, nil
}

// generateJoinCode draws codes from a 32-symbol alphabet that excludes
// visually ambiguous characters. Uniqueness against other active sessions
// is best-effort: after codeAttempts collisions the last candidate is
// accepted.
func (s *SessionService) generateJoinCode(ctx context.Context) (string, error) {
	var code string
	for attempt := 0; attempt < s.codeAttempts; attempt++ {
		b := make([]byte, joinCodeLength)
		if _, err := rand.Read(b); err != nil {
			return "", fmt.Errorf("generate join code: %w", err)
		}
		buf := make([]byte, joinCodeLength)
		for i := range buf {
			buf[i] = joinCodeAlphabet[int(b[i])%len(joinCodeAlphabet)]
		}
		code = string(buf)

		taken, err := s.codes.Exists(ctx, code)
		if err != nil {
			// Cache outage: fall back to the store for the check.
			taken, err = s.sessions.ActiveCodeExists(ctx, code)
			if err != nil {
				return "", fmt.Errorf("check join code: %w", err)
			}
		}
		if !taken {
			return code, nil
		}
	}
	log.Printf("session: join code collision retries exhausted, accepting %s", code)
	return code, nil
}

// JoinByCode attaches a student to the active session with this code.
func (s *SessionService) JoinByCode(ctx context.Context, studentID, studentName, code string) (*model.Session, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, fmt.Errorf("%w: code is required", ErrValidation)
	}

	session, err := s.sessions.FindActiveByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: no active session with that code", ErrNotFound)
	}
	return s.join(ctx, session, studentID, studentName)
}

// JoinByID attaches a student to an active session by id.
func (s *SessionService) JoinByID(ctx context.Context, studentID, studentName, sessionID string) (*model.Session, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: sessionId is required", ErrValidation)
	}

	session, err := s.sessions.FindActiveByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: no active session with that id", ErrNotFound)
	}
	return s.join(ctx, session, studentID, studentName)
}

// join upserts the roster entry: a re-join reactivates, never duplicates.
func (s *SessionService) join(ctx context.Context, session *model.Session, studentID, studentName string) (*model.Session, error) {
	if session.RosterEntryFor(studentID) != nil {
		if err := s.sessions.ReactivateRosterEntry(ctx, session.ID, studentID); err != nil {
			return nil, fmt.Errorf("reactivate roster entry: %w", err)
		}
	} else {
		entry := model.RosterEntry{
			StudentID: studentID,
			JoinedAt:  time.Now(),
			IsActive:  true,
		}
		if err := s.sessions.AddRosterEntry(ctx, session.ID, entry); err != nil {
			return nil, fmt.Errorf("add roster entry: %w", err)
		}
	}

	s.broadcaster.ToTeacher(session.TeacherID, EventStudentJoined, map[string]interface{}{
		"sessionId": session.ID,
		"studentId": studentID,
		"name":      studentName,
	})

	return session, nil
}

// Leave marks the student inactive on the roster and tells the teacher.
// Broadcaster state and persisted state stay in sync on every explicit
// leave, not just on disconnect.
func (s *SessionService) Leave(ctx context.Context, sessionID, studentID, studentName string) error {
	if sessionID == "" {
		return fmt.Errorf("%w: sessionId is required", ErrValidation)
	}
	if err := s.sessions.DeactivateRosterEntry(ctx, sessionID, studentID, time.Now()); err != nil {
		return fmt.Errorf("deactivate roster entry: %w", err)
	}

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil || session == nil {
		return err
	}
	s.broadcaster.ToTeacher(session.TeacherID, EventStudentDisconnected, map[string]interface{}{
		"sessionId": sessionID,
		"studentId": studentID,
		"name":      studentName,
	})
	return nil
}

// EndSession closes an active session the teacher owns, freezing the
// summary computed from the full record stream.
func (s *SessionService) EndSession(ctx context.Context, teacherID, sessionID string) (*model.Session, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: sessionId is required", ErrValidation)
	}

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: session", ErrNotFound)
	}
	if session.TeacherID != teacherID {
		return nil, fmt.Errorf("%w: not your session", ErrForbidden)
	}
	if session.Status != model.SessionActive {
		return nil, fmt.Errorf("%w: active session", ErrNotFound)
	}

	records, err := s.engagements.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}

	now := time.Now()
	summary := s.computeSummary(session, records, now)

	if err := s.sessions.MarkEnded(ctx, sessionID, now, summary); err != nil {
		return nil, fmt.Errorf("end session: %w", err)
	}
	if err := s.codes.Delete(ctx, session.JoinCode); err != nil {
		log.Printf("session: failed to evict join code %s: %v", session.JoinCode, err)
	}
	if err := s.live.Clear(ctx, sessionID); err != nil {
		log.Printf("session: failed to clear live scores for %s: %v", sessionID, err)
	}

	if session.ClassroomID != "" {
		if err := s.classrooms.RecordSessionEnd(ctx, session.ClassroomID, now); err != nil {
			log.Printf("session: failed to update classroom stats for %s: %v", session.ClassroomID, err)
		}
	}

	s.broadcaster.ToSession(sessionID, EventSessionEnded, map[string]interface{}{
		"sessionId": sessionID,
		"summary":   summary,
	})
	s.broadcaster.CloseSession(sessionID)

	session.Status = model.SessionEnded
	session.EndTime = &now
	session.Summary = summary
	return session, nil
}

// computeSummary rolls the record stream into the frozen session summary.
// Engagement figures are percentages rounded to one decimal.
func (s *SessionService) computeSummary(session *model.Session, records []*model.EngagementRecord, endTime time.Time) *model.SessionSummary {
	var sum, peak float64
	lowAlerts := 0
	for _, r := range records {
		sum += r.EngagementScore
		if r.EngagementScore > peak {
			peak = r.EngagementScore
		}
		if r.EngagementScore < s.lowThreshold {
			lowAlerts++
		}
	}

	avg := 0.0
	if len(records) > 0 {
		avg = sum / float64(len(records))
	}

	return &model.SessionSummary{
		TotalStudents:       len(session.Students),
		AverageEngagement:   math.Round(avg*1000) / 10,
		PeakEngagement:      math.Round(peak*1000) / 10,
		LowEngagementAlerts: lowAlerts,
		DurationMinutes:     int(math.Round(endTime.Sub(session.StartTime).Minutes())),
	}
}

// GetSession returns one session; teachers only see their own.
func (s *SessionService) GetSession(ctx context.Context, caller *model.Claims, sessionID string) (*model.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: session", ErrNotFound)
	}
	if caller.Role == model.RoleTeacher && session.TeacherID != caller.UserID {
		return nil, fmt.Errorf("%w: not your session", ErrForbidden)
	}
	return session, nil
}

// ActiveForClassroom returns the classroom's active session, or nil.
func (s *SessionService) ActiveForClassroom(ctx context.Context, classroomID string) (*model.Session, error) {
	if classroomID == "" {
		return nil, nil
	}
	return s.sessions.FindActiveByClassroom(ctx, classroomID)
}

// ValidateActive returns the session iff it is currently active.
func (s *SessionService) ValidateActive(ctx context.Context, sessionID string) (*model.Session, error) {
	session, err := s.sessions.FindActiveByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: active session", ErrNotFound)
	}
	return session, nil
}

// ValidateOwnedActive returns the session iff active and owned by the
// teacher. Used when a teacher subscribes to a session channel.
func (s *SessionService) ValidateOwnedActive(ctx context.Context, teacherID, sessionID string) (*model.Session, error) {
	session, err := s.ValidateActive(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.TeacherID != teacherID {
		return nil, fmt.Errorf("%w: not your session", ErrForbidden)
	}
	return session, nil
}

// AppendFlag records an anti-spoof event on the session's trail.
func (s *SessionService) AppendFlag(ctx context.Context, sessionID string, flagType model.FlagType, studentID, details string) error {
	flag := model.SessionFlag{
		Type:      flagType,
		StudentID: studentID,
		Timestamp: time.Now(),
		Details:   details,
	}
	if err := s.sessions.AppendFlag(ctx, sessionID, flag); err != nil {
		return fmt.Errorf("append flag: %w", err)
	}
	return nil
}

// LiveSessions is the admin fleet view over every active session.
func (s *SessionService) LiveSessions(ctx context.Context) ([]model.LiveSessionInfo, error) {
	active, err := s.sessions.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}

	since := time.Now().Add(-liveWindow)
	infos := make([]model.LiveSessionInfo, 0, len(active))
	for _, session := range active {
		var enrolled int64
		if session.ClassroomID != "" {
			enrolled, err = s.users.CountStudentsInClassroom(ctx, session.ClassroomID)
			if err != nil {
				return nil, fmt.Errorf("count enrolled: %w", err)
			}
		}

		activeStudents, err := s.engagements.DistinctStudentsBySessionSince(ctx, session.ID, since)
		if err != nil {
			return nil, fmt.Errorf("count active students: %w", err)
		}

		records, err := s.engagements.ListBySession(ctx, session.ID)
		if err != nil {
			return nil, fmt.Errorf("load records: %w", err)
		}
		engagement := 0
		if len(records) > 0 {
			var sum float64
			for _, r := range records {
				sum += r.EngagementScore
			}
			engagement = int(math.Round(sum / float64(len(records)) * 100))
		}

		teacherName := "Unknown"
		if teacher, err := s.users.GetByID(ctx, session.TeacherID); err == nil && teacher != nil {
			teacherName = teacher.Name
		}

		infos = append(infos, model.LiveSessionInfo{
			SessionID:  session.ID,
			Name:       fmt.Sprintf("%s - %s", session.ClassName, session.Subject),
			Teacher:    teacherName,
			Subject:    session.Subject,
			Students:   int(enrolled),
			ActiveNow:  len(activeStudents),
			Engagement: engagement,
			Status:     fleetStatus(engagement),
			StartTime:  session.StartTime,
		})
	}
	return infos, nil
}

func fleetStatus(engagement int) string {
	switch {
	case engagement >= 80:
		return "Excellent"
	case engagement >= 55:
		return "Good"
	default:
		return "Needs Attention"
	}
}
