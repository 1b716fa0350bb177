package model

import "time"

// ClassroomStats are aggregate counters updated when sessions end.
type ClassroomStats struct {
	TotalSessions     int        `json:"totalSessions" bson:"totalSessions"`
	AverageEngagement float64    `json:"averageEngagement" bson:"averageEngagement"`
	TotalStudents     int        `json:"totalStudents" bson:"totalStudents"`
	LastSessionDate   *time.Time `json:"lastSessionDate,omitempty" bson:"lastSessionDate,omitempty"`
}

// Classroom is owned by the external CRUD service. The core reads it for
// ownership checks and writes back stats counters on session end.
type Classroom struct {
	ID        string         `json:"id" bson:"_id,omitempty"`
	Name      string         `json:"name" bson:"name"`
	Section   string         `json:"section" bson:"section"`
	Subject   string         `json:"subject" bson:"subject"`
	TeacherID string         `json:"teacherId" bson:"teacherId"`
	Students  []string       `json:"students" bson:"students"`
	IsActive  bool           `json:"isActive" bson:"isActive"`
	Stats     ClassroomStats `json:"stats" bson:"stats"`
}
