package repository

import (
	"context"

	"studenttracker/internal/model"
)

func (s *Store) CreateSubject(ctx context.Context, subject model.Subject) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subjects (id, teacher_id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, subject.ID, subject.TeacherID, subject.Name, subject.Description, subject.CreatedAt, subject.UpdatedAt)
	return err
}

func (s *Store) GetSubject(ctx context.Context, subjectID string) (model.Subject, error) {
	var subject model.Subject
	row := s.pool.QueryRow(ctx, `
		SELECT id, teacher_id, name, description, created_at, updated_at
		FROM subjects
		WHERE id = $1
	`, subjectID)
	err := row.Scan(&subject.ID, &subject.TeacherID, &subject.Name, &subject.Description, &subject.CreatedAt, &subject.UpdatedAt)
	return subject, err
}

func (s *Store) ListSubjectsForTeacher(ctx context.Context, teacherID string) ([]model.Subject, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, teacher_id, name, description, created_at, updated_at
		FROM subjects
		WHERE teacher_id = $1
		ORDER BY created_at DESC
	`, teacherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subjects []model.Subject
	for rows.Next() {
		var subject model.Subject
		if err := rows.Scan(&subject.ID, &subject.TeacherID, &subject.Name, &subject.Description, &subject.CreatedAt, &subject.UpdatedAt); err != nil {
			return nil, err
		}
		subjects = append(subjects, subject)
	}
	return subjects, rows.Err()
}

// ListSubjectsForStudent lists subjects the student is linked to through an
// approved teacher link.
func (s *Store) ListSubjectsForStudent(ctx context.Context, studentID string) ([]model.Subject, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT subj.id, subj.teacher_id, subj.name, subj.description, subj.created_at, subj.updated_at
		FROM subjects subj
		JOIN teacher_links l ON l.subject_id = subj.id
		WHERE l.student_id = $1 AND l.status = 'approved'
		ORDER BY subj.created_at DESC
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subjects []model.Subject
	for rows.Next() {
		var subject model.Subject
		if err := rows.Scan(&subject.ID, &subject.TeacherID, &subject.Name, &subject.Description, &subject.CreatedAt, &subject.UpdatedAt); err != nil {
			return nil, err
		}
		subjects = append(subjects, subject)
	}
	return subjects, rows.Err()
}

// DeleteSubject removes the subject together with its dependent links,
// sessions and records in one transaction.
func (s *Store) DeleteSubject(ctx context.Context, subjectID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM attendance_records WHERE subject_id = $1`, subjectID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM attendance_sessions WHERE subject_id = $1`, subjectID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM teacher_links WHERE subject_id = $1`, subjectID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM subjects WHERE id = $1`, subjectID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) CreateAttendanceSession(ctx context.Context, session model.AttendanceSession) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO attendance_sessions (id, subject_id, teacher_id, session_date, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, session.ID, session.SubjectID, session.TeacherID, session.Date, session.CreatedAt)
	return err
}

func (s *Store) GetAttendanceSession(ctx context.Context, sessionID string) (model.AttendanceSession, error) {
	var session model.AttendanceSession
	row := s.pool.QueryRow(ctx, `
		SELECT id, subject_id, teacher_id, session_date, created_at
		FROM attendance_sessions
		WHERE id = $1
	`, sessionID)
	err := row.Scan(&session.ID, &session.SubjectID, &session.TeacherID, &session.Date, &session.CreatedAt)
	return session, err
}

func (s *Store) CreateAttendanceRecord(ctx context.Context, record model.AttendanceRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO attendance_records (id, session_id, subject_id, student_id, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
	`, record.ID, record.SessionID, record.SubjectID, record.StudentID, record.RecordedAt)
	return err
}

func (s *Store) HasAttendanceRecord(ctx context.Context, sessionID, studentID string) (bool, error) {
	var recorded bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM attendance_records WHERE session_id = $1 AND student_id = $2
		)
	`, sessionID, studentID).Scan(&recorded)
	return recorded, err
}

// AttendanceEntry is a record joined with the student's public profile.
type AttendanceEntry struct {
	Record  model.AttendanceRecord
	Student model.UserSummary
}

func (s *Store) ListSessionAttendance(ctx context.Context, sessionID string) ([]AttendanceEntry, error) {
	return s.listAttendance(ctx, `
		SELECT r.id, r.session_id, r.subject_id, r.student_id, r.recorded_at,
		       u.id, u.username, u.email, u.full_name
		FROM attendance_records r
		JOIN users u ON u.id = r.student_id
		WHERE r.session_id = $1
		ORDER BY r.recorded_at ASC
	`, sessionID)
}

func (s *Store) ListSubjectAttendance(ctx context.Context, subjectID string) ([]AttendanceEntry, error) {
	return s.listAttendance(ctx, `
		SELECT r.id, r.session_id, r.subject_id, r.student_id, r.recorded_at,
		       u.id, u.username, u.email, u.full_name
		FROM attendance_records r
		JOIN users u ON u.id = r.student_id
		WHERE r.subject_id = $1
		ORDER BY r.recorded_at DESC
	`, subjectID)
}

func (s *Store) listAttendance(ctx context.Context, query string, args ...any) ([]AttendanceEntry, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []AttendanceEntry
	for rows.Next() {
		var entry AttendanceEntry
		if err := rows.Scan(
			&entry.Record.ID,
			&entry.Record.SessionID,
			&entry.Record.SubjectID,
			&entry.Record.StudentID,
			&entry.Record.RecordedAt,
			&entry.Student.ID,
			&entry.Student.Username,
			&entry.Student.Email,
			&entry.Student.FullName,
		); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
