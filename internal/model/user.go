package model

// Role of a platform user.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// User is owned by the external CRUD service; the core only reads identity
// fields for analytics payloads and roster membership.
type User struct {
	ID          string `json:"id" bson:"_id,omitempty"`
	Name        string `json:"name" bson:"name"`
	Email       string `json:"email" bson:"email"`
	Role        Role   `json:"role" bson:"role"`
	RollNumber  string `json:"rollNumber,omitempty" bson:"rollNumber,omitempty"`
	ClassroomID string `json:"classroomId,omitempty" bson:"classroomId,omitempty"`
	IsActive    bool   `json:"isActive" bson:"isActive"`
}
