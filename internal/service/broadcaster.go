package service

// Event names on the real-time channel contract.
const (
	EventSessionStarted      = "session:started"
	EventSessionEnded        = "session:ended"
	EventStudentJoined       = "student:joined"
	EventStudentConnected    = "student:connected"
	EventStudentDisconnected = "student:disconnected"
	EventStudentFlagged      = "student:flagged"
	EventEngagementUpdate    = "engagement:update"
	EventTeacherJoined       = "teacher:joined_session"
	EventError               = "error"
)

// Broadcaster fans events out to live subscribers (avoids import cycle with
// the ws transport). Delivery is best-effort, at-most-once: a failed or
// slow subscriber misses the event, the persisted record stream stays the
// source of truth.
type Broadcaster interface {
	ToSession(sessionID, event string, payload interface{})
	ToUser(userID, event string, payload interface{})
	ToTeacher(teacherID, event string, payload interface{})

	// CloseSession invalidates every subscription to a session channel,
	// used when the session transitions to ended.
	CloseSession(sessionID string)
}
