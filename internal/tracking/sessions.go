package tracking

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"studenttracker/internal/metrics"
	"studenttracker/internal/model"
)

// SessionStore is the persistence slice the session manager needs.
type SessionStore interface {
	EnsureOpenSession(ctx context.Context, studentID string, now time.Time) (model.TrackingSession, bool, error)
	FindOpenSession(ctx context.Context, studentID string) (model.TrackingSession, error)
	CloseOpenSession(ctx context.Context, studentID string, endedAt time.Time) (model.TrackingSession, error)
}

// Sessions guards the one-open-session-per-student invariant. All the
// atomicity lives at the store; this layer owns timestamps and idempotency.
type Sessions struct {
	store SessionStore
	now   func() time.Time
}

func NewSessions(store SessionStore) *Sessions {
	return &Sessions{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// EnsureOpen returns the student's open session, creating one when none
// exists. Concurrent calls for the same student settle on a single session;
// the duplicate create loses and adopts the winner's row.
func (s *Sessions) EnsureOpen(ctx context.Context, studentID string) (model.TrackingSession, bool, error) {
	session, created, err := s.store.EnsureOpenSession(ctx, studentID, s.now())
	if err != nil {
		return model.TrackingSession{}, false, &Error{Code: ErrServerError}
	}
	if created {
		metrics.SessionsOpened.Inc()
	}
	return session, created, nil
}

// Close stamps the open session closed. Closing when nothing is open is a
// no-op, not an error; stops can race disconnects.
func (s *Sessions) Close(ctx context.Context, studentID string) (model.TrackingSession, bool, error) {
	session, err := s.store.CloseOpenSession(ctx, studentID, s.now())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.TrackingSession{}, false, nil
		}
		return model.TrackingSession{}, false, &Error{Code: ErrServerError}
	}
	metrics.SessionsClosed.Inc()
	return session, true, nil
}

// Status reports whether the student is currently reporting.
func (s *Sessions) Status(ctx context.Context, studentID string) (model.TrackingSession, bool, error) {
	session, err := s.store.FindOpenSession(ctx, studentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.TrackingSession{}, false, nil
		}
		return model.TrackingSession{}, false, &Error{Code: ErrServerError}
	}
	return session, true, nil
}
