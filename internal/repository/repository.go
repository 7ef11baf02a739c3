package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"studenttracker/internal/model"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func (s *Store) CreateUser(ctx context.Context, user model.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, username, email, password_hash, full_name, role, profile_pic_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, user.ID, user.Username, user.Email, user.PasswordHash, user.FullName, user.Role, user.ProfilePicRef, user.CreatedAt, user.UpdatedAt)
	return err
}

const userColumns = `id, username, email, password_hash, full_name, role, profile_pic_ref, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.FullName,
		&user.Role,
		&user.ProfilePicRef,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (model.User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, userID)
	return scanUser(row)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string, role model.Role) (model.User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE username = $1 AND role = $2
	`, username, role)
	return scanUser(row)
}

func (s *Store) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var taken bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, username).Scan(&taken)
	return taken, err
}

func (s *Store) EmailTaken(ctx context.Context, email string) (bool, error) {
	var taken bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email).Scan(&taken)
	return taken, err
}

func (s *Store) UpdateUserProfile(ctx context.Context, userID, email, fullName string, updatedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE users
		SET email = $1, full_name = $2, updated_at = $3
		WHERE id = $4
	`, email, fullName, updatedAt, userID)
	return err
}

func (s *Store) UpdateUserPassword(ctx context.Context, userID, passwordHash string, updatedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE users
		SET password_hash = $1, updated_at = $2
		WHERE id = $3
	`, passwordHash, updatedAt, userID)
	return err
}

func (s *Store) UpdateUserProfilePic(ctx context.Context, userID, profilePicRef string, updatedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE users
		SET profile_pic_ref = $1, updated_at = $2
		WHERE id = $3
	`, profilePicRef, updatedAt, userID)
	return err
}
