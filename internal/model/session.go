package model

import "time"

type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
)

// FlagType identifies an anti-spoof event recorded against a session.
type FlagType string

const (
	FlagNoFace         FlagType = "no_face"
	FlagMultipleFaces  FlagType = "multiple_faces"
	FlagCameraBlackout FlagType = "camera_blackout"
	FlagLongInactivity FlagType = "long_inactivity"
)

// RosterEntry tracks one student's membership in a session. Entries are
// idempotent per studentId: a re-join reactivates the entry instead of
// appending a duplicate.
type RosterEntry struct {
	StudentID string     `json:"studentId" bson:"studentId"`
	JoinedAt  time.Time  `json:"joinedAt" bson:"joinedAt"`
	LeftAt    *time.Time `json:"leftAt,omitempty" bson:"leftAt,omitempty"`
	IsActive  bool       `json:"isActive" bson:"isActive"`
}

// SessionFlag is one append-only anti-spoof trail entry.
type SessionFlag struct {
	Type      FlagType  `json:"type" bson:"type"`
	StudentID string    `json:"studentId" bson:"studentId"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	Details   string    `json:"details" bson:"details"`
}

// SessionSummary is frozen when a session ends. Engagement values are
// percentages (score * 100, one decimal).
type SessionSummary struct {
	TotalStudents       int     `json:"totalStudents" bson:"totalStudents"`
	AverageEngagement   float64 `json:"averageEngagement" bson:"averageEngagement"`
	PeakEngagement      float64 `json:"peakEngagement" bson:"peakEngagement"`
	LowEngagementAlerts int     `json:"lowEngagementAlerts" bson:"lowEngagementAlerts"`
	DurationMinutes     int     `json:"durationMinutes" bson:"durationMinutes"`
}

// Session is one live or historical class instance.
type Session struct {
	ID          string          `json:"id" bson:"_id,omitempty"`
	TeacherID   string          `json:"teacherId" bson:"teacherId"`
	ClassroomID string          `json:"classroomId,omitempty" bson:"classroomId,omitempty"`
	ClassName   string          `json:"className" bson:"className"`
	Subject     string          `json:"subject" bson:"subject"`
	Title       string          `json:"title" bson:"title"`
	JoinCode    string          `json:"joinCode" bson:"joinCode"`
	Status      SessionStatus   `json:"status" bson:"status"`
	StartTime   time.Time       `json:"startTime" bson:"startTime"`
	EndTime     *time.Time      `json:"endTime,omitempty" bson:"endTime,omitempty"`
	Students    []RosterEntry   `json:"students" bson:"students"`
	Summary     *SessionSummary `json:"summary,omitempty" bson:"summary,omitempty"`
	Flags       []SessionFlag   `json:"flags" bson:"flags"`
}

// RosterEntryFor returns the roster entry for a student, or nil.
func (s *Session) RosterEntryFor(studentID string) *RosterEntry {
	for i := range s.Students {
		if s.Students[i].StudentID == studentID {
			return &s.Students[i]
		}
	}
	return nil
}
