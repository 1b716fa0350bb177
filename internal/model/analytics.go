package model

import "time"

// StudentAverage is a per-student rollup within some scope. AvgEngagement is
// a percentage (0-100, one decimal).
type StudentAverage struct {
	StudentID        string          `json:"studentId"`
	Name             string          `json:"name,omitempty"`
	RollNumber       string          `json:"rollNumber,omitempty"`
	AvgEngagement    float64         `json:"avgEngagement"`
	FrameCount       int             `json:"frameCount"`
	DominantState    EngagementState `json:"dominantState,omitempty"`
	SessionsAttended int             `json:"sessionsAttended,omitempty"`
}

// TrendPoint is one time bucket of a trend series.
type TrendPoint struct {
	Time       time.Time `json:"time"`
	Label      string    `json:"label,omitempty"`
	Engagement float64   `json:"engagement"`
}

// StateCount is one slice of a state distribution.
type StateCount struct {
	State EngagementState `json:"state"`
	Count int             `json:"count"`
}

// SessionAnalytics is the full read-side rollup for one session.
type SessionAnalytics struct {
	Session               *Session         `json:"session"`
	ClassAverage          float64          `json:"classAverage"`
	Students              []StudentAverage `json:"students"`
	Timeline              []TrendPoint     `json:"timeline"`
	StateDistribution     []StateCount     `json:"stateDistribution"`
	TopStudents           []StudentAverage `json:"topStudents"`
	LowEngagementStudents []StudentAverage `json:"lowEngagementStudents"`
}

// SessionHistoryEntry is one past session in a student's history.
type SessionHistoryEntry struct {
	SessionID     string    `json:"sessionId"`
	Subject       string    `json:"subject"`
	Title         string    `json:"title"`
	Date          time.Time `json:"date"`
	AvgEngagement float64   `json:"avgEngagement"`
	FrameCount    int       `json:"frameCount"`
	DurationMS    int64     `json:"durationMs"`
}

// StudentAnalytics is the cross-session rollup for one student.
type StudentAnalytics struct {
	Student           *User                 `json:"student"`
	OverallAverage    float64               `json:"overallAverage"`
	SessionHistory    []SessionHistoryEntry `json:"sessionHistory"`
	WeeklyTrend       []TrendPoint          `json:"weeklyTrend"`
	StateDistribution []StateCount          `json:"stateDistribution"`
}

// ClassAnalytics is the rollup across a classroom's recent ended sessions.
type ClassAnalytics struct {
	ClassAverage          float64          `json:"classAverage"`
	RecentSessions        []*Session       `json:"recentSessions"`
	Students              []StudentAverage `json:"students"`
	TopStudents           []StudentAverage `json:"topStudents"`
	LowEngagementStudents []StudentAverage `json:"lowEngagementStudents"`
	TotalSessions         int              `json:"totalSessions"`
}

// TeacherDashboard backs the teacher's landing page.
type TeacherDashboard struct {
	TodaySessionCount int          `json:"todaySessionCount"`
	LiveEngagement    int          `json:"liveEngagement"`
	ActiveSessionID   string       `json:"activeSessionId,omitempty"`
	StudentsAtRisk    int          `json:"studentsAtRisk"`
	WeeklyTrend       []TrendPoint `json:"weeklyTrend"`
	RecentSessions    []*Session   `json:"recentSessions"`
}

// StatePercent is a distribution slice expressed as a percentage.
type StatePercent struct {
	State   EngagementState `json:"state"`
	Percent int             `json:"percent"`
}

// StudentDashboard backs the student's landing page.
type StudentDashboard struct {
	TodayEngagement   int            `json:"todayEngagement"`
	WeeklyAverage     int            `json:"weeklyAverage"`
	WeeklyData        []TrendPoint   `json:"weeklyData"`
	ActiveSession     *Session       `json:"activeSession,omitempty"`
	StateDistribution []StatePercent `json:"stateDist"`
	Streak            int            `json:"streak"`
}

// ClassroomOverview is one classroom row on the admin dashboard.
type ClassroomOverview struct {
	ClassroomID   string  `json:"classroomId"`
	Name          string  `json:"name"`
	Section       string  `json:"section"`
	Subject       string  `json:"subject"`
	TeacherName   string  `json:"teacherName"`
	StudentCount  int     `json:"studentCount"`
	AvgEngagement int     `json:"avgEngagement"`
	SessionCount  int     `json:"sessionCount"`
}

// AdminDashboard backs the admin landing page.
type AdminDashboard struct {
	TotalStudents     int                 `json:"totalStudents"`
	TotalTeachers     int                 `json:"totalTeachers"`
	ActiveSessions    int                 `json:"activeSessions"`
	OverallEngagement int                 `json:"overallEngagement"`
	WeeklyTrend       []TrendPoint        `json:"weeklyTrend"`
	Classrooms        []ClassroomOverview `json:"classrooms"`
}

// LiveSessionInfo is one row of the admin fleet view.
type LiveSessionInfo struct {
	SessionID  string    `json:"id"`
	Name       string    `json:"name"`
	Teacher    string    `json:"teacher"`
	Subject    string    `json:"subject"`
	Students   int       `json:"students"`
	ActiveNow  int       `json:"activeNow"`
	Engagement int       `json:"engagement"`
	Status     string    `json:"status"`
	StartTime  time.Time `json:"startTime"`
}

// Pagination describes one page of a listing.
type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

// SessionHistoryPage is one page of past sessions.
type SessionHistoryPage struct {
	Sessions   []*Session `json:"sessions"`
	Pagination Pagination `json:"pagination"`
}
