package connections

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
	ErrForbiddenRole    = "forbidden_role"
	ErrStudentNotFound  = "student_not_found"
	ErrSubjectNotFound  = "subject_not_found"
	ErrLinkNotFound     = "link_not_found"
	ErrLinkExists       = "link_exists"
	ErrAlreadyProcessed = "already_processed"
	ErrRejectionLimit   = "rejection_limit"
	ErrInvalidStatus    = "invalid_status"
	ErrServerError      = "server_error"
)

type Error struct {
	Code string
}

func (e *Error) Error() string {
	return e.Code
}

// A parent blocked three times by the same student may not ask again.
const maxRejections = 3

// Store is the persistence slice the connection workflows need.
type Store interface {
	GetUserByID(ctx context.Context, userID string) (model.User, error)
	GetUserByUsername(ctx context.Context, username string, role model.Role) (model.User, error)

	CreateParentLink(ctx context.Context, link model.ParentLink) error
	GetParentLink(ctx context.Context, linkID string) (model.ParentLink, error)
	UpdateParentLinkStatus(ctx context.Context, linkID string, status model.LinkStatus, updatedAt time.Time) error
	HasActiveParentLink(ctx context.Context, studentID, parentID string) (bool, error)
	CountParentLinkRejections(ctx context.Context, studentID, parentID string) (int, error)
	ListParentLinksForStudent(ctx context.Context, studentID string, status model.LinkStatus) ([]repository.ParentLinkListing, error)
	ListParentLinksForParent(ctx context.Context, parentID string, status model.LinkStatus) ([]repository.ParentLinkListing, error)

	GetSubject(ctx context.Context, subjectID string) (model.Subject, error)
	CreateTeacherLink(ctx context.Context, link model.TeacherLink) error
	GetTeacherLink(ctx context.Context, linkID string) (model.TeacherLink, error)
	UpdateTeacherLinkStatus(ctx context.Context, linkID string, status model.LinkStatus, updatedAt time.Time) error
	DeleteTeacherLink(ctx context.Context, linkID string) error
	HasActiveTeacherLink(ctx context.Context, studentID, teacherID, subjectID string) (bool, error)
	ListTeacherLinksForStudent(ctx context.Context, studentID string, status model.LinkStatus) ([]repository.TeacherLinkListing, error)
	ListTeacherLinksForTeacher(ctx context.Context, teacherID string, status model.LinkStatus) ([]repository.TeacherLinkListing, error)
}

// Service implements the link workflows. The transport binding that invokes
// it lives outside this repo.
type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// RequestParentLink starts the parent→student workflow: the parent names the
// student by username and waits for approval.
func (s *Service) RequestParentLink(ctx context.Context, who model.Identity, studentUsername string) (model.ParentLink, error) {
	if who.Role != model.RoleParent {
		return model.ParentLink{}, &Error{Code: ErrForbiddenRole}
	}

	student, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(studentUsername), model.RoleStudent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ParentLink{}, &Error{Code: ErrStudentNotFound}
		}
		return model.ParentLink{}, &Error{Code: ErrServerError}
	}

	active, err := s.store.HasActiveParentLink(ctx, student.ID, who.UserID)
	if err != nil {
		return model.ParentLink{}, &Error{Code: ErrServerError}
	}
	if active {
		return model.ParentLink{}, &Error{Code: ErrLinkExists}
	}

	rejections, err := s.store.CountParentLinkRejections(ctx, student.ID, who.UserID)
	if err != nil {
		return model.ParentLink{}, &Error{Code: ErrServerError}
	}
	if rejections >= maxRejections {
		return model.ParentLink{}, &Error{Code: ErrRejectionLimit}
	}

	link := model.ParentLink{
		ID:        uuid.New().String(),
		StudentID: student.ID,
		ParentID:  who.UserID,
		Status:    model.LinkPending,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateParentLink(ctx, link); err != nil {
		return model.ParentLink{}, &Error{Code: ErrServerError}
	}
	return link, nil
}

// AcceptParentLink approves a pending request. Only the targeted student may
// accept, and only while the request is still pending.
func (s *Service) AcceptParentLink(ctx context.Context, who model.Identity, linkID string) error {
	_, err := s.resolvePendingParentLink(ctx, who, linkID)
	if err != nil {
		return err
	}
	if err := s.store.UpdateParentLinkStatus(ctx, linkID, model.LinkApproved, s.now()); err != nil {
		return &Error{Code: ErrServerError}
	}
	return nil
}

type RejectResult struct {
	RejectionCount   int
	MaxRejectionsHit bool
}

// RejectParentLink declines a pending request and reports how close the
// parent now is to the request cap.
func (s *Service) RejectParentLink(ctx context.Context, who model.Identity, linkID string) (RejectResult, error) {
	link, err := s.resolvePendingParentLink(ctx, who, linkID)
	if err != nil {
		return RejectResult{}, err
	}
	if err := s.store.UpdateParentLinkStatus(ctx, linkID, model.LinkRejected, s.now()); err != nil {
		return RejectResult{}, &Error{Code: ErrServerError}
	}
	count, err := s.store.CountParentLinkRejections(ctx, link.StudentID, link.ParentID)
	if err != nil {
		return RejectResult{}, &Error{Code: ErrServerError}
	}
	return RejectResult{RejectionCount: count, MaxRejectionsHit: count >= maxRejections}, nil
}

func (s *Service) resolvePendingParentLink(ctx context.Context, who model.Identity, linkID string) (model.ParentLink, error) {
	if who.Role != model.RoleStudent {
		return model.ParentLink{}, &Error{Code: ErrForbiddenRole}
	}
	link, err := s.store.GetParentLink(ctx, linkID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ParentLink{}, &Error{Code: ErrLinkNotFound}
		}
		return model.ParentLink{}, &Error{Code: ErrServerError}
	}
	if link.StudentID != who.UserID {
		return model.ParentLink{}, &Error{Code: ErrLinkNotFound}
	}
	if link.Status != model.LinkPending {
		return model.ParentLink{}, &Error{Code: ErrAlreadyProcessed}
	}
	return link, nil
}

// ListParentLinks lists the caller's links in a status, from either side of
// the relationship.
func (s *Service) ListParentLinks(ctx context.Context, who model.Identity, status model.LinkStatus) ([]repository.ParentLinkListing, error) {
	switch who.Role {
	case model.RoleStudent:
		listings, err := s.store.ListParentLinksForStudent(ctx, who.UserID, status)
		if err != nil {
			return nil, &Error{Code: ErrServerError}
		}
		return listings, nil
	case model.RoleParent:
		listings, err := s.store.ListParentLinksForParent(ctx, who.UserID, status)
		if err != nil {
			return nil, &Error{Code: ErrServerError}
		}
		return listings, nil
	default:
		return nil, &Error{Code: ErrForbiddenRole}
	}
}

// RequestTeacherLink starts the teacher→student workflow for one subject the
// teacher owns.
func (s *Service) RequestTeacherLink(ctx context.Context, who model.Identity, studentID, subjectID string) (model.TeacherLink, error) {
	if who.Role != model.RoleTeacher {
		return model.TeacherLink{}, &Error{Code: ErrForbiddenRole}
	}

	subject, err := s.store.GetSubject(ctx, subjectID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.TeacherLink{}, &Error{Code: ErrSubjectNotFound}
		}
		return model.TeacherLink{}, &Error{Code: ErrServerError}
	}
	if subject.TeacherID != who.UserID {
		return model.TeacherLink{}, &Error{Code: ErrSubjectNotFound}
	}

	student, err := s.store.GetUserByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.TeacherLink{}, &Error{Code: ErrStudentNotFound}
		}
		return model.TeacherLink{}, &Error{Code: ErrServerError}
	}
	if student.Role != model.RoleStudent {
		return model.TeacherLink{}, &Error{Code: ErrStudentNotFound}
	}

	active, err := s.store.HasActiveTeacherLink(ctx, studentID, who.UserID, subjectID)
	if err != nil {
		return model.TeacherLink{}, &Error{Code: ErrServerError}
	}
	if active {
		return model.TeacherLink{}, &Error{Code: ErrLinkExists}
	}

	link := model.TeacherLink{
		ID:        uuid.New().String(),
		StudentID: studentID,
		TeacherID: who.UserID,
		SubjectID: subjectID,
		Status:    model.LinkPending,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateTeacherLink(ctx, link); err != nil {
		return model.TeacherLink{}, &Error{Code: ErrServerError}
	}
	return link, nil
}

// RespondTeacherLink lets the student accept or reject a pending teacher
// request. No rejection cap on this side of the house.
func (s *Service) RespondTeacherLink(ctx context.Context, who model.Identity, linkID string, status model.LinkStatus) error {
	if who.Role != model.RoleStudent {
		return &Error{Code: ErrForbiddenRole}
	}
	if status != model.LinkApproved && status != model.LinkRejected {
		return &Error{Code: ErrInvalidStatus}
	}
	link, err := s.store.GetTeacherLink(ctx, linkID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &Error{Code: ErrLinkNotFound}
		}
		return &Error{Code: ErrServerError}
	}
	if link.StudentID != who.UserID {
		return &Error{Code: ErrLinkNotFound}
	}
	if link.Status != model.LinkPending {
		return &Error{Code: ErrAlreadyProcessed}
	}
	if err := s.store.UpdateTeacherLinkStatus(ctx, linkID, status, s.now()); err != nil {
		return &Error{Code: ErrServerError}
	}
	return nil
}

// RemoveTeacherLink detaches student and teacher; either party may do it.
func (s *Service) RemoveTeacherLink(ctx context.Context, who model.Identity, linkID string) error {
	link, err := s.store.GetTeacherLink(ctx, linkID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &Error{Code: ErrLinkNotFound}
		}
		return &Error{Code: ErrServerError}
	}
	switch who.Role {
	case model.RoleStudent:
		if link.StudentID != who.UserID {
			return &Error{Code: ErrLinkNotFound}
		}
	case model.RoleTeacher:
		if link.TeacherID != who.UserID {
			return &Error{Code: ErrLinkNotFound}
		}
	default:
		return &Error{Code: ErrForbiddenRole}
	}
	if err := s.store.DeleteTeacherLink(ctx, linkID); err != nil {
		return &Error{Code: ErrServerError}
	}
	return nil
}

// ListTeacherLinks lists the caller's teacher links in a status.
func (s *Service) ListTeacherLinks(ctx context.Context, who model.Identity, status model.LinkStatus) ([]repository.TeacherLinkListing, error) {
	switch who.Role {
	case model.RoleStudent:
		listings, err := s.store.ListTeacherLinksForStudent(ctx, who.UserID, status)
		if err != nil {
			return nil, &Error{Code: ErrServerError}
		}
		return listings, nil
	case model.RoleTeacher:
		listings, err := s.store.ListTeacherLinksForTeacher(ctx, who.UserID, status)
		if err != nil {
			return nil, &Error{Code: ErrServerError}
		}
		return listings, nil
	default:
		return nil, &Error{Code: ErrForbiddenRole}
	}
}
