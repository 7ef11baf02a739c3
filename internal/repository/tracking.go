package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"studenttracker/internal/model"
)

// EnsureOpenSession returns the student's open session, creating one when
// none exists. The insert is conditional on the partial unique index over
// (student_id) WHERE ended_at IS NULL, so two concurrent callers cannot both
// create; the loser of the race reads the winner's row.
func (s *Store) EnsureOpenSession(ctx context.Context, studentID string, now time.Time) (model.TrackingSession, bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO tracking_sessions (id, student_id, started_at, active)
		VALUES ($1, $2, $3, true)
		ON CONFLICT (student_id) WHERE ended_at IS NULL DO NOTHING
	`, uuid.New().String(), studentID, now)
	if err != nil {
		return model.TrackingSession{}, false, err
	}
	session, err := s.FindOpenSession(ctx, studentID)
	if err != nil {
		return model.TrackingSession{}, false, err
	}
	return session, tag.RowsAffected() > 0, nil
}

func (s *Store) FindOpenSession(ctx context.Context, studentID string) (model.TrackingSession, error) {
	var session model.TrackingSession
	row := s.pool.QueryRow(ctx, `
		SELECT id, student_id, started_at, ended_at, active
		FROM tracking_sessions
		WHERE student_id = $1 AND ended_at IS NULL
	`, studentID)
	err := row.Scan(&session.ID, &session.StudentID, &session.StartedAt, &session.EndedAt, &session.Active)
	return session, err
}

// CloseOpenSession stamps the student's open session closed. Returns
// pgx.ErrNoRows when no session was open.
func (s *Store) CloseOpenSession(ctx context.Context, studentID string, endedAt time.Time) (model.TrackingSession, error) {
	var session model.TrackingSession
	row := s.pool.QueryRow(ctx, `
		UPDATE tracking_sessions
		SET ended_at = $1, active = false
		WHERE student_id = $2 AND ended_at IS NULL
		RETURNING id, student_id, started_at, ended_at, active
	`, endedAt, studentID)
	err := row.Scan(&session.ID, &session.StudentID, &session.StartedAt, &session.EndedAt, &session.Active)
	return session, err
}

func (s *Store) InsertLocationPoint(ctx context.Context, point model.LocationPoint) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO location_points (id, session_id, latitude, longitude, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
	`, point.ID, point.SessionID, point.Latitude, point.Longitude, point.RecordedAt)
	return err
}

func (s *Store) ListSessionsForStudent(ctx context.Context, studentID string, limit int) ([]model.TrackingSession, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, student_id, started_at, ended_at, active
		FROM tracking_sessions
		WHERE student_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, studentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.TrackingSession
	for rows.Next() {
		var session model.TrackingSession
		if err := rows.Scan(&session.ID, &session.StudentID, &session.StartedAt, &session.EndedAt, &session.Active); err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// ListSessionPoints returns a session's points in recording order.
func (s *Store) ListSessionPoints(ctx context.Context, sessionID string) ([]model.LocationPoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, latitude, longitude, recorded_at
		FROM location_points
		WHERE session_id = $1
		ORDER BY recorded_at ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []model.LocationPoint
	for rows.Next() {
		var point model.LocationPoint
		if err := rows.Scan(&point.ID, &point.SessionID, &point.Latitude, &point.Longitude, &point.RecordedAt); err != nil {
			return nil, err
		}
		points = append(points, point)
	}
	return points, rows.Err()
}

// CloseIdleSessions closes open sessions whose latest point (or start, when
// no point ever landed) is older than cutoff. Returns the number closed.
func (s *Store) CloseIdleSessions(ctx context.Context, cutoff, endedAt time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tracking_sessions s
		SET ended_at = $1, active = false
		WHERE s.ended_at IS NULL
		  AND COALESCE(
			(SELECT max(p.recorded_at) FROM location_points p WHERE p.session_id = s.id),
			s.started_at
		  ) < $2
	`, endedAt, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
