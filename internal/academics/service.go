package academics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"studenttracker/internal/model"
	"studenttracker/internal/repository"
)

const (
	ErrForbiddenRole   = "forbidden_role"
	ErrMissingName     = "missing_name"
	ErrNameTooLong     = "name_too_long"
	ErrSubjectNotFound = "subject_not_found"
	ErrSessionNotFound = "session_not_found"
	ErrNotEnrolled     = "not_enrolled"
	ErrAlreadyRecorded = "already_recorded"
	ErrServerError     = "server_error"
)

type Error struct {
	Code string
}

func (e *Error) Error() string {
	return e.Code
}

const maxSubjectNameLen = 100

// Store is the persistence slice subject and attendance operations need.
type Store interface {
	CreateSubject(ctx context.Context, subject model.Subject) error
	GetSubject(ctx context.Context, subjectID string) (model.Subject, error)
	ListSubjectsForTeacher(ctx context.Context, teacherID string) ([]model.Subject, error)
	ListSubjectsForStudent(ctx context.Context, studentID string) ([]model.Subject, error)
	DeleteSubject(ctx context.Context, subjectID string) error
	HasApprovedSubjectLink(ctx context.Context, studentID, subjectID string) (bool, error)

	CreateAttendanceSession(ctx context.Context, session model.AttendanceSession) error
	GetAttendanceSession(ctx context.Context, sessionID string) (model.AttendanceSession, error)
	CreateAttendanceRecord(ctx context.Context, record model.AttendanceRecord) error
	HasAttendanceRecord(ctx context.Context, sessionID, studentID string) (bool, error)
	ListSessionAttendance(ctx context.Context, sessionID string) ([]repository.AttendanceEntry, error)
	ListSubjectAttendance(ctx context.Context, subjectID string) ([]repository.AttendanceEntry, error)
}

// Service implements subject and attendance management. The transport
// binding that invokes it lives outside this repo.
type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// CreateSubject registers a subject owned by the calling teacher.
func (s *Service) CreateSubject(ctx context.Context, who model.Identity, name, description string) (model.Subject, error) {
	if who.Role != model.RoleTeacher {
		return model.Subject{}, &Error{Code: ErrForbiddenRole}
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Subject{}, &Error{Code: ErrMissingName}
	}
	if len(name) > maxSubjectNameLen {
		return model.Subject{}, &Error{Code: ErrNameTooLong}
	}

	subject := model.Subject{
		ID:          uuid.New().String(),
		TeacherID:   who.UserID,
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedAt:   s.now(),
	}
	if err := s.store.CreateSubject(ctx, subject); err != nil {
		return model.Subject{}, &Error{Code: ErrServerError}
	}
	return subject, nil
}

// ListSubjects returns the teacher's own subjects, or the subjects a student
// is enrolled in through an approved teacher link.
func (s *Service) ListSubjects(ctx context.Context, who model.Identity) ([]model.Subject, error) {
	switch who.Role {
	case model.RoleTeacher:
		subjects, err := s.store.ListSubjectsForTeacher(ctx, who.UserID)
		if err != nil {
			return nil, &Error{Code: ErrServerError}
		}
		return subjects, nil
	case model.RoleStudent:
		subjects, err := s.store.ListSubjectsForStudent(ctx, who.UserID)
		if err != nil {
			return nil, &Error{Code: ErrServerError}
		}
		return subjects, nil
	default:
		return nil, &Error{Code: ErrForbiddenRole}
	}
}

// GetSubject returns one subject to its owner or to an enrolled student.
func (s *Service) GetSubject(ctx context.Context, who model.Identity, subjectID string) (model.Subject, error) {
	subject, err := s.store.GetSubject(ctx, subjectID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Subject{}, &Error{Code: ErrSubjectNotFound}
		}
		return model.Subject{}, &Error{Code: ErrServerError}
	}
	switch who.Role {
	case model.RoleTeacher:
		if subject.TeacherID != who.UserID {
			return model.Subject{}, &Error{Code: ErrSubjectNotFound}
		}
	case model.RoleStudent:
		enrolled, err := s.store.HasApprovedSubjectLink(ctx, who.UserID, subjectID)
		if err != nil {
			return model.Subject{}, &Error{Code: ErrServerError}
		}
		if !enrolled {
			return model.Subject{}, &Error{Code: ErrSubjectNotFound}
		}
	default:
		return model.Subject{}, &Error{Code: ErrForbiddenRole}
	}
	return subject, nil
}

// DeleteSubject removes a subject and everything hanging off it. Owner only.
func (s *Service) DeleteSubject(ctx context.Context, who model.Identity, subjectID string) error {
	subject, err := s.ownedSubject(ctx, who, subjectID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteSubject(ctx, subject.ID); err != nil {
		return &Error{Code: ErrServerError}
	}
	return nil
}

// CreateSession opens an attendance session for one subject on one date.
func (s *Service) CreateSession(ctx context.Context, who model.Identity, subjectID string, date time.Time) (model.AttendanceSession, error) {
	subject, err := s.ownedSubject(ctx, who, subjectID)
	if err != nil {
		return model.AttendanceSession{}, err
	}
	session := model.AttendanceSession{
		ID:        uuid.New().String(),
		SubjectID: subject.ID,
		TeacherID: who.UserID,
		Date:      date,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateAttendanceSession(ctx, session); err != nil {
		return model.AttendanceSession{}, &Error{Code: ErrServerError}
	}
	return session, nil
}

// RecordAttendance marks the calling student present in a session. Requires
// an approved link for the session's subject; one record per session.
func (s *Service) RecordAttendance(ctx context.Context, who model.Identity, sessionID string) (model.AttendanceRecord, error) {
	if who.Role != model.RoleStudent {
		return model.AttendanceRecord{}, &Error{Code: ErrForbiddenRole}
	}
	session, err := s.store.GetAttendanceSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.AttendanceRecord{}, &Error{Code: ErrSessionNotFound}
		}
		return model.AttendanceRecord{}, &Error{Code: ErrServerError}
	}

	enrolled, err := s.store.HasApprovedSubjectLink(ctx, who.UserID, session.SubjectID)
	if err != nil {
		return model.AttendanceRecord{}, &Error{Code: ErrServerError}
	}
	if !enrolled {
		return model.AttendanceRecord{}, &Error{Code: ErrNotEnrolled}
	}

	recorded, err := s.store.HasAttendanceRecord(ctx, sessionID, who.UserID)
	if err != nil {
		return model.AttendanceRecord{}, &Error{Code: ErrServerError}
	}
	if recorded {
		return model.AttendanceRecord{}, &Error{Code: ErrAlreadyRecorded}
	}

	record := model.AttendanceRecord{
		ID:         uuid.New().String(),
		SessionID:  sessionID,
		SubjectID:  session.SubjectID,
		StudentID:  who.UserID,
		RecordedAt: s.now(),
	}
	if err := s.store.CreateAttendanceRecord(ctx, record); err != nil {
		return model.AttendanceRecord{}, &Error{Code: ErrServerError}
	}
	return record, nil
}

// SessionAttendance lists who showed up, for the owning teacher.
func (s *Service) SessionAttendance(ctx context.Context, who model.Identity, sessionID string) ([]repository.AttendanceEntry, error) {
	if who.Role != model.RoleTeacher {
		return nil, &Error{Code: ErrForbiddenRole}
	}
	session, err := s.store.GetAttendanceSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &Error{Code: ErrSessionNotFound}
		}
		return nil, &Error{Code: ErrServerError}
	}
	if session.TeacherID != who.UserID {
		return nil, &Error{Code: ErrSessionNotFound}
	}
	entries, err := s.store.ListSessionAttendance(ctx, sessionID)
	if err != nil {
		return nil, &Error{Code: ErrServerError}
	}
	return entries, nil
}

// SubjectAttendance lists every record across a subject, for its owner.
func (s *Service) SubjectAttendance(ctx context.Context, who model.Identity, subjectID string) ([]repository.AttendanceEntry, error) {
	subject, err := s.ownedSubject(ctx, who, subjectID)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.ListSubjectAttendance(ctx, subject.ID)
	if err != nil {
		return nil, &Error{Code: ErrServerError}
	}
	return entries, nil
}

func (s *Service) ownedSubject(ctx context.Context, who model.Identity, subjectID string) (model.Subject, error) {
	if who.Role != model.RoleTeacher {
		return model.Subject{}, &Error{Code: ErrForbiddenRole}
	}
	subject, err := s.store.GetSubject(ctx, subjectID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Subject{}, &Error{Code: ErrSubjectNotFound}
		}
		return model.Subject{}, &Error{Code: ErrServerError}
	}
	if subject.TeacherID != who.UserID {
		return model.Subject{}, &Error{Code: ErrSubjectNotFound}
	}
	return subject, nil
}
