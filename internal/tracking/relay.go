package tracking

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"studenttracker/internal/metrics"
	"studenttracker/internal/model"
)

const (
	EventLocation        = "location"
	EventTrackingStopped = "trackingStopped"
)

// RelayStore is the persistence slice the relay needs beyond sessions.
type RelayStore interface {
	InsertLocationPoint(ctx context.Context, point model.LocationPoint) error
	ListApprovedViewers(ctx context.Context, studentID string) ([]model.Viewer, error)
	HasApprovedParentLink(ctx context.Context, studentID, parentID string) (bool, error)
	ListSessionsForStudent(ctx context.Context, studentID string, limit int) ([]model.TrackingSession, error)
	ListSessionPoints(ctx context.Context, sessionID string) ([]model.LocationPoint, error)
	GetUserByID(ctx context.Context, userID string) (model.User, error)
}

// Broadcaster pushes one event to every live connection of a user.
type Broadcaster interface {
	Broadcast(userID, event string, payload any)
}

// LastLocationCache keeps the most recent sample per student. Optional;
// writes are best effort.
type LastLocationCache interface {
	SetLast(ctx context.Context, studentID string, event LocationEvent)
	GetLast(ctx context.Context, studentID string) (LocationEvent, bool, error)
}

type LocationEvent struct {
	StudentID     string    `json:"studentId"`
	Username      string    `json:"username"`
	FullName      string    `json:"fullName"`
	ProfilePicRef string    `json:"profilePicRef"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	Timestamp     time.Time `json:"timestamp"`
}

type StopEvent struct {
	StudentID string `json:"studentId"`
}

// Relay accepts location samples from authenticated students, persists them
// into the open tracking session and fans them out to approved parents.
type Relay struct {
	sessions *Sessions
	store    RelayStore
	hub      Broadcaster
	cache    LastLocationCache
	now      func() time.Time
}

func NewRelay(sessions *Sessions, store RelayStore, hub Broadcaster, cache LastLocationCache) *Relay {
	return &Relay{
		sessions: sessions,
		store:    store,
		hub:      hub,
		cache:    cache,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func validCoordinates(latitude, longitude float64) bool {
	return latitude >= -90 && latitude <= 90 && longitude >= -180 && longitude <= 180
}

// SubmitLocation persists one sample and pushes it to the student's approved
// parents. The submission succeeds once the point is stored; fan-out is best
// effort and a parent being offline is not the student's problem.
func (r *Relay) SubmitLocation(ctx context.Context, studentID string, latitude, longitude float64) (model.LocationPoint, error) {
	if !validCoordinates(latitude, longitude) {
		return model.LocationPoint{}, &Error{Code: ErrInvalidCoordinates}
	}

	student, err := r.store.GetUserByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.LocationPoint{}, &Error{Code: ErrStudentNotFound}
		}
		return model.LocationPoint{}, &Error{Code: ErrServerError}
	}

	session, _, err := r.sessions.EnsureOpen(ctx, studentID)
	if err != nil {
		return model.LocationPoint{}, err
	}

	point := model.LocationPoint{
		ID:         uuid.New().String(),
		SessionID:  session.ID,
		Latitude:   latitude,
		Longitude:  longitude,
		RecordedAt: r.now(),
	}
	if err := r.store.InsertLocationPoint(ctx, point); err != nil {
		return model.LocationPoint{}, &Error{Code: ErrServerError}
	}
	metrics.LocationPoints.Inc()

	event := LocationEvent{
		StudentID:     studentID,
		Username:      student.Username,
		FullName:      student.FullName,
		ProfilePicRef: student.ProfilePicRef,
		Latitude:      latitude,
		Longitude:     longitude,
		Timestamp:     point.RecordedAt,
	}
	if r.cache != nil {
		r.cache.SetLast(ctx, studentID, event)
	}
	r.fanOut(ctx, studentID, EventLocation, event)

	return point, nil
}

// StartTracking opens a session explicitly; returns the existing one when
// the student is already reporting.
func (r *Relay) StartTracking(ctx context.Context, studentID string) (model.TrackingSession, bool, error) {
	return r.sessions.EnsureOpen(ctx, studentID)
}

// StopTracking closes the open session, if any, and tells approved parents
// the stream ended. A stop with nothing open still notifies; stops and
// disconnects can arrive in any order.
func (r *Relay) StopTracking(ctx context.Context, studentID string) error {
	if _, _, err := r.sessions.Close(ctx, studentID); err != nil {
		return err
	}
	r.fanOut(ctx, studentID, EventTrackingStopped, StopEvent{StudentID: studentID})
	return nil
}

// Status reports the student's current tracking state.
func (r *Relay) Status(ctx context.Context, studentID string) (model.TrackingSession, bool, error) {
	return r.sessions.Status(ctx, studentID)
}

// fanOut resolves the viewer set and broadcasts to each member. Failures
// stop at this boundary; the submission already succeeded.
func (r *Relay) fanOut(ctx context.Context, studentID, event string, payload any) {
	viewers, err := r.store.ListApprovedViewers(ctx, studentID)
	if err != nil {
		log.Printf("tracking: viewer lookup for student %s failed: %v", studentID, err)
		return
	}
	for _, viewer := range viewers {
		r.hub.Broadcast(viewer.ParentID, event, payload)
	}
}

// Latest returns the cached most recent sample for an approved parent.
// False when the student has not reported recently or no cache is wired.
func (r *Relay) Latest(ctx context.Context, parentID, studentID string) (LocationEvent, bool, error) {
	linked, err := r.store.HasApprovedParentLink(ctx, studentID, parentID)
	if err != nil {
		return LocationEvent{}, false, &Error{Code: ErrServerError}
	}
	if !linked {
		return LocationEvent{}, false, &Error{Code: ErrNotLinked}
	}
	if r.cache == nil {
		return LocationEvent{}, false, nil
	}
	event, ok, err := r.cache.GetLast(ctx, studentID)
	if err != nil {
		return LocationEvent{}, false, &Error{Code: ErrServerError}
	}
	return event, ok, nil
}

// SessionHistory is one past session with its points in recording order.
type SessionHistory struct {
	Session model.TrackingSession
	Points  []model.LocationPoint
}

const historyLimit = 10

// History returns the student's recent sessions for an approved parent.
func (r *Relay) History(ctx context.Context, parentID, studentID string) ([]SessionHistory, error) {
	linked, err := r.store.HasApprovedParentLink(ctx, studentID, parentID)
	if err != nil {
		return nil, &Error{Code: ErrServerError}
	}
	if !linked {
		return nil, &Error{Code: ErrNotLinked}
	}

	sessions, err := r.store.ListSessionsForStudent(ctx, studentID, historyLimit)
	if err != nil {
		return nil, &Error{Code: ErrServerError}
	}

	history := make([]SessionHistory, 0, len(sessions))
	for _, session := range sessions {
		points, err := r.store.ListSessionPoints(ctx, session.ID)
		if err != nil {
			return nil, &Error{Code: ErrServerError}
		}
		history = append(history, SessionHistory{Session: session, Points: points})
	}
	return history, nil
}
