package repository

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"studenttracker/internal/model"
)

func openTestStore(t *testing.T) (*Store, *pgxpool.Pool) {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	if url == "" {
		t.Skip("TEST_DATABASE_URL or DATABASE_URL not set")
		return nil, nil
	}
	pool, err := NewPool(context.Background(), url)
	if err != nil {
		t.Skipf("db unavailable: %v", err)
		return nil, nil
	}
	t.Cleanup(pool.Close)

	_, err = pool.Exec(context.Background(), `
		CREATE TABLE IF NOT EXISTS tracking_sessions (
			id uuid PRIMARY KEY,
			student_id uuid NOT NULL,
			started_at timestamptz NOT NULL,
			ended_at timestamptz,
			active boolean NOT NULL DEFAULT true
		);
		CREATE UNIQUE INDEX IF NOT EXISTS tracking_sessions_open_idx
			ON tracking_sessions (student_id) WHERE ended_at IS NULL;
		CREATE TABLE IF NOT EXISTS location_points (
			id uuid PRIMARY KEY,
			session_id uuid NOT NULL REFERENCES tracking_sessions (id),
			latitude numeric(9,6) NOT NULL,
			longitude numeric(9,6) NOT NULL,
			recorded_at timestamptz NOT NULL
		);
	`)
	if err != nil {
		t.Fatalf("schema setup failed: %v", err)
	}
	return NewStore(pool), pool
}

func cleanupStudent(t *testing.T, pool *pgxpool.Pool, studentID string) {
	t.Helper()
	t.Cleanup(func() {
		ctx := context.Background()
		_, _ = pool.Exec(ctx, `
			DELETE FROM location_points
			WHERE session_id IN (SELECT id FROM tracking_sessions WHERE student_id = $1)
		`, studentID)
		_, _ = pool.Exec(ctx, `DELETE FROM tracking_sessions WHERE student_id = $1`, studentID)
	})
}

func openSessionCount(t *testing.T, pool *pgxpool.Pool, studentID string) int {
	t.Helper()
	var count int
	err := pool.QueryRow(context.Background(), `
		SELECT count(*) FROM tracking_sessions WHERE student_id = $1 AND ended_at IS NULL
	`, studentID).Scan(&count)
	if err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	return count
}

func TestEnsureOpenSessionConcurrent(t *testing.T) {
	store, pool := openTestStore(t)
	studentID := uuid.New().String()
	cleanupStudent(t, pool, studentID)

	const callers = 8
	var wg sync.WaitGroup
	ids := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			session, _, err := store.EnsureOpenSession(context.Background(), studentID, time.Now().UTC())
			ids[i] = session.ID
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	for i := 1; i < callers; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("callers settled on different sessions: %s vs %s", ids[0], ids[i])
		}
	}
	if got := openSessionCount(t, pool, studentID); got != 1 {
		t.Fatalf("expected exactly one open session, got %d", got)
	}
}

func TestCloseOpenSessionIdempotent(t *testing.T) {
	store, pool := openTestStore(t)
	studentID := uuid.New().String()
	cleanupStudent(t, pool, studentID)

	opened, created, err := store.EnsureOpenSession(context.Background(), studentID, time.Now().UTC())
	if err != nil {
		t.Fatalf("ensure error: %v", err)
	}
	if !created {
		t.Fatal("expected a fresh session")
	}

	closed, err := store.CloseOpenSession(context.Background(), studentID, time.Now().UTC())
	if err != nil {
		t.Fatalf("close error: %v", err)
	}
	if closed.ID != opened.ID || closed.EndedAt == nil || closed.Active {
		t.Fatalf("session not stamped closed: %+v", closed)
	}

	if _, err := store.CloseOpenSession(context.Background(), studentID, time.Now().UTC()); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("expected ErrNoRows on second close, got %v", err)
	}
	if _, err := store.FindOpenSession(context.Background(), studentID); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("expected no open session, got %v", err)
	}
}

func TestStopThenEnsureOpensNewSession(t *testing.T) {
	store, pool := openTestStore(t)
	studentID := uuid.New().String()
	cleanupStudent(t, pool, studentID)

	first, _, err := store.EnsureOpenSession(context.Background(), studentID, time.Now().UTC())
	if err != nil {
		t.Fatalf("ensure error: %v", err)
	}
	if _, err := store.CloseOpenSession(context.Background(), studentID, time.Now().UTC()); err != nil {
		t.Fatalf("close error: %v", err)
	}
	second, created, err := store.EnsureOpenSession(context.Background(), studentID, time.Now().UTC())
	if err != nil {
		t.Fatalf("ensure error: %v", err)
	}
	if !created || second.ID == first.ID {
		t.Fatalf("closed session reused: first=%s second=%s created=%v", first.ID, second.ID, created)
	}
}

func TestLocationPointRoundTrip(t *testing.T) {
	store, pool := openTestStore(t)
	studentID := uuid.New().String()
	cleanupStudent(t, pool, studentID)

	session, _, err := store.EnsureOpenSession(context.Background(), studentID, time.Now().UTC())
	if err != nil {
		t.Fatalf("ensure error: %v", err)
	}

	base := time.Now().UTC().Truncate(time.Microsecond)
	want := []model.LocationPoint{
		{ID: uuid.New().String(), SessionID: session.ID, Latitude: 14.5995, Longitude: 120.9842, RecordedAt: base},
		{ID: uuid.New().String(), SessionID: session.ID, Latitude: 14.6001, Longitude: 120.9850, RecordedAt: base.Add(time.Second)},
		{ID: uuid.New().String(), SessionID: session.ID, Latitude: 14.6010, Longitude: 120.9861, RecordedAt: base.Add(2 * time.Second)},
	}
	for _, point := range want {
		if err := store.InsertLocationPoint(context.Background(), point); err != nil {
			t.Fatalf("insert error: %v", err)
		}
	}

	got, err := store.ListSessionPoints(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d points, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].ID != want[i].ID {
			t.Fatalf("point %d out of order: got %s want %s", i, got[i].ID, want[i].ID)
		}
		if got[i].Latitude != want[i].Latitude || got[i].Longitude != want[i].Longitude {
			t.Fatalf("point %d coordinates altered: %+v", i, got[i])
		}
		if !got[i].RecordedAt.Equal(want[i].RecordedAt) {
			t.Fatalf("point %d timestamp altered: got %v want %v", i, got[i].RecordedAt, want[i].RecordedAt)
		}
	}
}

func TestCloseIdleSessions(t *testing.T) {
	store, pool := openTestStore(t)
	idleStudent := uuid.New().String()
	activeStudent := uuid.New().String()
	cleanupStudent(t, pool, idleStudent)
	cleanupStudent(t, pool, activeStudent)

	now := time.Now().UTC()
	if _, _, err := store.EnsureOpenSession(context.Background(), idleStudent, now.Add(-2*time.Hour)); err != nil {
		t.Fatalf("ensure error: %v", err)
	}
	active, _, err := store.EnsureOpenSession(context.Background(), activeStudent, now.Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("ensure error: %v", err)
	}
	point := model.LocationPoint{
		ID: uuid.New().String(), SessionID: active.ID,
		Latitude: 14.5995, Longitude: 120.9842, RecordedAt: now,
	}
	if err := store.InsertLocationPoint(context.Background(), point); err != nil {
		t.Fatalf("insert error: %v", err)
	}

	closed, err := store.CloseIdleSessions(context.Background(), now.Add(-time.Hour), now)
	if err != nil {
		t.Fatalf("sweep error: %v", err)
	}
	if closed < 1 {
		t.Fatalf("expected at least one closed session, got %d", closed)
	}
	if _, err := store.FindOpenSession(context.Background(), idleStudent); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("idle session still open: %v", err)
	}
	if _, err := store.FindOpenSession(context.Background(), activeStudent); err != nil {
		t.Fatalf("recently-reporting session was closed: %v", err)
	}
}
