package model

import (
	"errors"
	"time"
)

type Role string

const (
	RoleStudent Role = "student"
	RoleParent  Role = "parent"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

var ErrUnknownRole = errors.New("unknown role")

func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleStudent, RoleParent, RoleTeacher, RoleAdmin:
		return Role(raw), nil
	}
	return "", ErrUnknownRole
}

type User struct {
	ID            string
	Username      string
	Email         string
	PasswordHash  string
	FullName      string
	Role          Role
	ProfilePicRef string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Identity is the authenticated (user, role) pair the transport layer hands
// to every operation. Token issuance lives outside this service.
type Identity struct {
	UserID string
	Role   Role
}

type LinkStatus string

const (
	LinkPending  LinkStatus = "pending"
	LinkApproved LinkStatus = "approved"
	LinkRejected LinkStatus = "rejected"
)

// ParentLink connects a parent to a student once the student approves it.
type ParentLink struct {
	ID        string
	StudentID string
	ParentID  string
	Status    LinkStatus
	CreatedAt time.Time
	UpdatedAt *time.Time
}

// TeacherLink connects a teacher to a student for one subject.
type TeacherLink struct {
	ID        string
	StudentID string
	TeacherID string
	SubjectID string
	Status    LinkStatus
	CreatedAt time.Time
	UpdatedAt *time.Time
}

type Subject struct {
	ID          string
	TeacherID   string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   *time.Time
}

type AttendanceSession struct {
	ID        string
	SubjectID string
	TeacherID string
	Date      time.Time
	CreatedAt time.Time
}

type AttendanceRecord struct {
	ID         string
	SessionID  string
	SubjectID  string
	StudentID  string
	RecordedAt time.Time
}

// TrackingSession is one continuous reporting window for a student. At most
// one session per student may have EndedAt unset.
type TrackingSession struct {
	ID        string
	StudentID string
	StartedAt time.Time
	EndedAt   *time.Time
	Active    bool
}

func (s TrackingSession) Open() bool {
	return s.EndedAt == nil
}

// LocationPoint is append-only; points are never updated once written.
type LocationPoint struct {
	ID         string
	SessionID  string
	Latitude   float64
	Longitude  float64
	RecordedAt time.Time
}

// Viewer is a parent eligible to receive a student's live location.
type Viewer struct {
	ParentID string
	Username string
	FullName string
}

// UserSummary is the public slice of a user embedded in listings.
type UserSummary struct {
	ID       string
	Username string
	Email    string
	FullName string
}
