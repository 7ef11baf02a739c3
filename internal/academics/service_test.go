package academics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"studenttracker/internal/model"
	"studenttracker/internal/repository"
)

type memStore struct {
	subjects map[string]model.Subject
	links    map[string]bool // studentID|subjectID approved
	sessions map[string]model.AttendanceSession
	records  map[string]model.AttendanceRecord
	users    map[string]model.UserSummary
}

func newMemStore() *memStore {
	return &memStore{
		subjects: make(map[string]model.Subject),
		links:    make(map[string]bool),
		sessions: make(map[string]model.AttendanceSession),
		records:  make(map[string]model.AttendanceRecord),
		users:    make(map[string]model.UserSummary),
	}
}

func (m *memStore) enroll(studentID, subjectID string) {
	m.links[studentID+"|"+subjectID] = true
	m.users[studentID] = model.UserSummary{ID: studentID, Username: studentID}
}

func (m *memStore) CreateSubject(_ context.Context, subject model.Subject) error {
	m.subjects[subject.ID] = subject
	return nil
}

func (m *memStore) GetSubject(_ context.Context, subjectID string) (model.Subject, error) {
	subject, ok := m.subjects[subjectID]
	if !ok {
		return model.Subject{}, pgx.ErrNoRows
	}
	return subject, nil
}

func (m *memStore) ListSubjectsForTeacher(_ context.Context, teacherID string) ([]model.Subject, error) {
	var out []model.Subject
	for _, subject := range m.subjects {
		if subject.TeacherID == teacherID {
			out = append(out, subject)
		}
	}
	return out, nil
}

func (m *memStore) ListSubjectsForStudent(_ context.Context, studentID string) ([]model.Subject, error) {
	var out []model.Subject
	for _, subject := range m.subjects {
		if m.links[studentID+"|"+subject.ID] {
			out = append(out, subject)
		}
	}
	return out, nil
}

func (m *memStore) DeleteSubject(_ context.Context, subjectID string) error {
	delete(m.subjects, subjectID)
	for id, session := range m.sessions {
		if session.SubjectID == subjectID {
			delete(m.sessions, id)
		}
	}
	for id, record := range m.records {
		if record.SubjectID == subjectID {
			delete(m.records, id)
		}
	}
	return nil
}

func (m *memStore) HasApprovedSubjectLink(_ context.Context, studentID, subjectID string) (bool, error) {
	return m.links[studentID+"|"+subjectID], nil
}

func (m *memStore) CreateAttendanceSession(_ context.Context, session model.AttendanceSession) error {
	m.sessions[session.ID] = session
	return nil
}

func (m *memStore) GetAttendanceSession(_ context.Context, sessionID string) (model.AttendanceSession, error) {
	session, ok := m.sessions[sessionID]
	if !ok {
		return model.AttendanceSession{}, pgx.ErrNoRows
	}
	return session, nil
}

func (m *memStore) CreateAttendanceRecord(_ context.Context, record model.AttendanceRecord) error {
	m.records[record.ID] = record
	return nil
}

func (m *memStore) HasAttendanceRecord(_ context.Context, sessionID, studentID string) (bool, error) {
	for _, record := range m.records {
		if record.SessionID == sessionID && record.StudentID == studentID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) ListSessionAttendance(_ context.Context, sessionID string) ([]repository.AttendanceEntry, error) {
	var out []repository.AttendanceEntry
	for _, record := range m.records {
		if record.SessionID == sessionID {
			out = append(out, repository.AttendanceEntry{Record: record, Student: m.users[record.StudentID]})
		}
	}
	return out, nil
}

func (m *memStore) ListSubjectAttendance(_ context.Context, subjectID string) ([]repository.AttendanceEntry, error) {
	var out []repository.AttendanceEntry
	for _, record := range m.records {
		if record.SubjectID == subjectID {
			out = append(out, repository.AttendanceEntry{Record: record, Student: m.users[record.StudentID]})
		}
	}
	return out, nil
}

func identity(role model.Role) model.Identity {
	return model.Identity{UserID: uuid.New().String(), Role: role}
}

func wantCode(t *testing.T, err error, code string) {
	t.Helper()
	opErr, ok := err.(*Error)
	if !ok || opErr.Code != code {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

func TestCreateSubjectValidation(t *testing.T) {
	svc := NewService(newMemStore())
	teacher := identity(model.RoleTeacher)
	student := identity(model.RoleStudent)

	_, err := svc.CreateSubject(context.Background(), student, "Math", "")
	wantCode(t, err, ErrForbiddenRole)

	_, err = svc.CreateSubject(context.Background(), teacher, "   ", "")
	wantCode(t, err, ErrMissingName)

	_, err = svc.CreateSubject(context.Background(), teacher, strings.Repeat("x", 101), "")
	wantCode(t, err, ErrNameTooLong)

	subject, err := svc.CreateSubject(context.Background(), teacher, "  Mathematics  ", "Numbers")
	if err != nil {
		t.Fatalf("create error: %v", err)
	}
	if subject.Name != "Mathematics" {
		t.Fatalf("name not trimmed: %q", subject.Name)
	}
	if subject.TeacherID != teacher.UserID {
		t.Fatalf("subject not owned by creator")
	}
}

func TestSubjectVisibility(t *testing.T) {
	store := newMemStore()
	svc := NewService(store)
	teacher := identity(model.RoleTeacher)
	student := identity(model.RoleStudent)
	outsider := identity(model.RoleStudent)

	subject, err := svc.CreateSubject(context.Background(), teacher, "Math", "")
	if err != nil {
		t.Fatalf("create error: %v", err)
	}
	store.enroll(student.UserID, subject.ID)

	if _, err := svc.GetSubject(context.Background(), teacher, subject.ID); err != nil {
		t.Fatalf("owner lookup error: %v", err)
	}
	if _, err := svc.GetSubject(context.Background(), student, subject.ID); err != nil {
		t.Fatalf("enrolled student lookup error: %v", err)
	}
	_, err = svc.GetSubject(context.Background(), outsider, subject.ID)
	wantCode(t, err, ErrSubjectNotFound)

	mine, err := svc.ListSubjects(context.Background(), student)
	if err != nil || len(mine) != 1 {
		t.Fatalf("expected 1 enrolled subject, got %d err=%v", len(mine), err)
	}
	none, err := svc.ListSubjects(context.Background(), outsider)
	if err != nil || len(none) != 0 {
		t.Fatalf("expected no subjects, got %d err=%v", len(none), err)
	}
}

func TestRecordAttendanceFlow(t *testing.T) {
	store := newMemStore()
	svc := NewService(store)
	teacher := identity(model.RoleTeacher)
	student := identity(model.RoleStudent)
	outsider := identity(model.RoleStudent)

	subject, err := svc.CreateSubject(context.Background(), teacher, "Math", "")
	if err != nil {
		t.Fatalf("create subject error: %v", err)
	}
	store.enroll(student.UserID, subject.ID)

	session, err := svc.CreateSession(context.Background(), teacher, subject.ID, time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("create session error: %v", err)
	}

	record, err := svc.RecordAttendance(context.Background(), student, session.ID)
	if err != nil {
		t.Fatalf("record error: %v", err)
	}
	if record.SubjectID != subject.ID || record.StudentID != student.UserID {
		t.Fatalf("record mismatch: %+v", record)
	}

	// One record per session and student.
	_, err = svc.RecordAttendance(context.Background(), student, session.ID)
	wantCode(t, err, ErrAlreadyRecorded)

	// Students outside the subject cannot sign.
	_, err = svc.RecordAttendance(context.Background(), outsider, session.ID)
	wantCode(t, err, ErrNotEnrolled)

	entries, err := svc.SessionAttendance(context.Background(), teacher, session.ID)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected 1 attendance entry, got %d err=%v", len(entries), err)
	}

	bysubject, err := svc.SubjectAttendance(context.Background(), teacher, subject.ID)
	if err != nil || len(bysubject) != 1 {
		t.Fatalf("expected 1 subject entry, got %d err=%v", len(bysubject), err)
	}
}

func TestSessionAttendanceOwnerOnly(t *testing.T) {
	store := newMemStore()
	svc := NewService(store)
	teacher := identity(model.RoleTeacher)
	rival := identity(model.RoleTeacher)

	subject, err := svc.CreateSubject(context.Background(), teacher, "Math", "")
	if err != nil {
		t.Fatalf("create subject error: %v", err)
	}
	session, err := svc.CreateSession(context.Background(), teacher, subject.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("create session error: %v", err)
	}

	_, err = svc.SessionAttendance(context.Background(), rival, session.ID)
	wantCode(t, err, ErrSessionNotFound)

	_, err = svc.CreateSession(context.Background(), rival, subject.ID, time.Now().UTC())
	wantCode(t, err, ErrSubjectNotFound)
}

func TestDeleteSubjectCascades(t *testing.T) {
	store := newMemStore()
	svc := NewService(store)
	teacher := identity(model.RoleTeacher)
	student := identity(model.RoleStudent)

	subject, err := svc.CreateSubject(context.Background(), teacher, "Math", "")
	if err != nil {
		t.Fatalf("create subject error: %v", err)
	}
	store.enroll(student.UserID, subject.ID)
	session, err := svc.CreateSession(context.Background(), teacher, subject.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("create session error: %v", err)
	}
	if _, err := svc.RecordAttendance(context.Background(), student, session.ID); err != nil {
		t.Fatalf("record error: %v", err)
	}

	if err := svc.DeleteSubject(context.Background(), teacher, subject.ID); err != nil {
		t.Fatalf("delete error: %v", err)
	}
	if len(store.sessions) != 0 || len(store.records) != 0 {
		t.Fatalf("dependents survived subject deletion")
	}
}
