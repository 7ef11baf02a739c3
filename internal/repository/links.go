package repository

import (
	"context"
	"time"

	"studenttracker/internal/model"
)

// ParentLinkListing is a parent link joined with the other party's public
// profile, for the pending/connected/rejected listings.
type ParentLinkListing struct {
	Link  model.ParentLink
	Party model.UserSummary
}

func (s *Store) CreateParentLink(ctx context.Context, link model.ParentLink) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO parent_links (id, student_id, parent_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, link.ID, link.StudentID, link.ParentID, link.Status, link.CreatedAt, link.UpdatedAt)
	return err
}

func (s *Store) GetParentLink(ctx context.Context, linkID string) (model.ParentLink, error) {
	var link model.ParentLink
	row := s.pool.QueryRow(ctx, `
		SELECT id, student_id, parent_id, status, created_at, updated_at
		FROM parent_links
		WHERE id = $1
	`, linkID)
	err := row.Scan(&link.ID, &link.StudentID, &link.ParentID, &link.Status, &link.CreatedAt, &link.UpdatedAt)
	return link, err
}

func (s *Store) UpdateParentLinkStatus(ctx context.Context, linkID string, status model.LinkStatus, updatedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE parent_links
		SET status = $1, updated_at = $2
		WHERE id = $3
	`, status, updatedAt, linkID)
	return err
}

// HasActiveParentLink reports whether a pending or approved link already
// exists for the pair. The workflow keeps at most one such link at a time.
func (s *Store) HasActiveParentLink(ctx context.Context, studentID, parentID string) (bool, error) {
	var active bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM parent_links
			WHERE student_id = $1 AND parent_id = $2 AND status IN ('pending', 'approved')
		)
	`, studentID, parentID).Scan(&active)
	return active, err
}

func (s *Store) CountParentLinkRejections(ctx context.Context, studentID, parentID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM parent_links
		WHERE student_id = $1 AND parent_id = $2 AND status = 'rejected'
	`, studentID, parentID).Scan(&count)
	return count, err
}

func (s *Store) HasApprovedParentLink(ctx context.Context, studentID, parentID string) (bool, error) {
	var approved bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM parent_links
			WHERE student_id = $1 AND parent_id = $2 AND status = 'approved'
		)
	`, studentID, parentID).Scan(&approved)
	return approved, err
}

// ListApprovedViewers returns every parent with an approved link to the
// student, joined with the profile fields the live payload carries.
func (s *Store) ListApprovedViewers(ctx context.Context, studentID string) ([]model.Viewer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT u.id, u.username, u.full_name
		FROM parent_links l
		JOIN users u ON u.id = l.parent_id
		WHERE l.student_id = $1 AND l.status = 'approved'
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var viewers []model.Viewer
	for rows.Next() {
		var viewer model.Viewer
		if err := rows.Scan(&viewer.ParentID, &viewer.Username, &viewer.FullName); err != nil {
			return nil, err
		}
		viewers = append(viewers, viewer)
	}
	return viewers, rows.Err()
}

// ListParentLinksForStudent lists the student's links in a status, joined
// with the parent's profile.
func (s *Store) ListParentLinksForStudent(ctx context.Context, studentID string, status model.LinkStatus) ([]ParentLinkListing, error) {
	return s.listParentLinks(ctx, `
		SELECT l.id, l.student_id, l.parent_id, l.status, l.created_at, l.updated_at,
		       u.id, u.username, u.email, u.full_name
		FROM parent_links l
		JOIN users u ON u.id = l.parent_id
		WHERE l.student_id = $1 AND l.status = $2
		ORDER BY l.created_at DESC
	`, studentID, status)
}

// ListParentLinksForParent lists the parent's links in a status, joined with
// the student's profile.
func (s *Store) ListParentLinksForParent(ctx context.Context, parentID string, status model.LinkStatus) ([]ParentLinkListing, error) {
	return s.listParentLinks(ctx, `
		SELECT l.id, l.student_id, l.parent_id, l.status, l.created_at, l.updated_at,
		       u.id, u.username, u.email, u.full_name
		FROM parent_links l
		JOIN users u ON u.id = l.student_id
		WHERE l.parent_id = $1 AND l.status = $2
		ORDER BY l.created_at DESC
	`, parentID, status)
}

func (s *Store) listParentLinks(ctx context.Context, query string, args ...any) ([]ParentLinkListing, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []ParentLinkListing
	for rows.Next() {
		var item ParentLinkListing
		if err := rows.Scan(
			&item.Link.ID,
			&item.Link.StudentID,
			&item.Link.ParentID,
			&item.Link.Status,
			&item.Link.CreatedAt,
			&item.Link.UpdatedAt,
			&item.Party.ID,
			&item.Party.Username,
			&item.Party.Email,
			&item.Party.FullName,
		); err != nil {
			return nil, err
		}
		listings = append(listings, item)
	}
	return listings, rows.Err()
}

// TeacherLinkListing joins a teacher link with the other party's profile and
// the subject name.
type TeacherLinkListing struct {
	Link        model.TeacherLink
	Party       model.UserSummary
	SubjectName string
}

func (s *Store) CreateTeacherLink(ctx context.Context, link model.TeacherLink) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO teacher_links (id, student_id, teacher_id, subject_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, link.ID, link.StudentID, link.TeacherID, link.SubjectID, link.Status, link.CreatedAt, link.UpdatedAt)
	return err
}

func (s *Store) GetTeacherLink(ctx context.Context, linkID string) (model.TeacherLink, error) {
	var link model.TeacherLink
	row := s.pool.QueryRow(ctx, `
		SELECT id, student_id, teacher_id, subject_id, status, created_at, updated_at
		FROM teacher_links
		WHERE id = $1
	`, linkID)
	err := row.Scan(&link.ID, &link.StudentID, &link.TeacherID, &link.SubjectID, &link.Status, &link.CreatedAt, &link.UpdatedAt)
	return link, err
}

func (s *Store) UpdateTeacherLinkStatus(ctx context.Context, linkID string, status model.LinkStatus, updatedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE teacher_links
		SET status = $1, updated_at = $2
		WHERE id = $3
	`, status, updatedAt, linkID)
	return err
}

func (s *Store) DeleteTeacherLink(ctx context.Context, linkID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM teacher_links WHERE id = $1`, linkID)
	return err
}

func (s *Store) HasActiveTeacherLink(ctx context.Context, studentID, teacherID, subjectID string) (bool, error) {
	var active bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM teacher_links
			WHERE student_id = $1 AND teacher_id = $2 AND subject_id = $3 AND status IN ('pending', 'approved')
		)
	`, studentID, teacherID, subjectID).Scan(&active)
	return active, err
}

// HasApprovedSubjectLink reports whether the student holds an approved link
// for the subject, which gates attendance recording.
func (s *Store) HasApprovedSubjectLink(ctx context.Context, studentID, subjectID string) (bool, error) {
	var approved bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM teacher_links
			WHERE student_id = $1 AND subject_id = $2 AND status = 'approved'
		)
	`, studentID, subjectID).Scan(&approved)
	return approved, err
}

func (s *Store) ListTeacherLinksForStudent(ctx context.Context, studentID string, status model.LinkStatus) ([]TeacherLinkListing, error) {
	return s.listTeacherLinks(ctx, `
		SELECT l.id, l.student_id, l.teacher_id, l.subject_id, l.status, l.created_at, l.updated_at,
		       u.id, u.username, u.email, u.full_name, subj.name
		FROM teacher_links l
		JOIN users u ON u.id = l.teacher_id
		JOIN subjects subj ON subj.id = l.subject_id
		WHERE l.student_id = $1 AND l.status = $2
		ORDER BY l.created_at DESC
	`, studentID, status)
}

func (s *Store) ListTeacherLinksForTeacher(ctx context.Context, teacherID string, status model.LinkStatus) ([]TeacherLinkListing, error) {
	return s.listTeacherLinks(ctx, `
		SELECT l.id, l.student_id, l.teacher_id, l.subject_id, l.status, l.created_at, l.updated_at,
		       u.id, u.username, u.email, u.full_name, subj.name
		FROM teacher_links l
		JOIN users u ON u.id = l.student_id
		JOIN subjects subj ON subj.id = l.subject_id
		WHERE l.teacher_id = $1 AND l.status = $2
		ORDER BY l.created_at DESC
	`, teacherID, status)
}

func (s *Store) listTeacherLinks(ctx context.Context, query string, args ...any) ([]TeacherLinkListing, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []TeacherLinkListing
	for rows.Next() {
		var item TeacherLinkListing
		if err := rows.Scan(
			&item.Link.ID,
			&item.Link.StudentID,
			&item.Link.TeacherID,
			&item.Link.SubjectID,
			&item.Link.Status,
			&item.Link.CreatedAt,
			&item.Link.UpdatedAt,
			&item.Party.ID,
			&item.Party.Username,
			&item.Party.Email,
			&item.Party.FullName,
			&item.SubjectName,
		); err != nil {
			return nil, err
		}
		listings = append(listings, item)
	}
	return listings, rows.Err()
}
