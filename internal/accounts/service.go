package accounts

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"studenttracker/internal/model"
)

const (
	ErrUsernameTaken      = "username_taken"
	ErrEmailTaken         = "email_taken"
	ErrMissingField       = "missing_field"
	ErrInvalidRole        = "invalid_role"
	ErrInvalidCredentials = "invalid_credentials"
	ErrUserNotFound       = "user_not_found"
	ErrWrongPassword      = "wrong_password"
	ErrServerError        = "server_error"
)

type Error struct {
	Code string
}

func (e *Error) Error() string {
	return e.Code
}

// Store is the persistence slice account operations need.
type Store interface {
	CreateUser(ctx context.Context, user model.User) error
	GetUserByID(ctx context.Context, userID string) (model.User, error)
	GetUserByUsername(ctx context.Context, username string, role model.Role) (model.User, error)
	UsernameTaken(ctx context.Context, username string) (bool, error)
	EmailTaken(ctx context.Context, email string) (bool, error)
	UpdateUserProfile(ctx context.Context, userID, email, fullName string, updatedAt time.Time) error
	UpdateUserPassword(ctx context.Context, userID, passwordHash string, updatedAt time.Time) error
	UpdateUserProfilePic(ctx context.Context, userID, profilePicRef string, updatedAt time.Time) error
}

// Service implements account management. The transport binding that invokes
// it lives outside this repo.
type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

type RegisterInput struct {
	Username string
	Password string
	Email    string
	FullName string
	Role     string
}

// Register creates an account with a bcrypt-hashed password. Usernames and
// emails are unique across every role.
func (s *Service) Register(ctx context.Context, input RegisterInput) (model.User, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.TrimSpace(input.Email)
	fullName := strings.TrimSpace(input.FullName)
	if username == "" || input.Password == "" || email == "" || fullName == "" {
		return model.User{}, &Error{Code: ErrMissingField}
	}
	role, err := model.ParseRole(input.Role)
	if err != nil {
		return model.User{}, &Error{Code: ErrInvalidRole}
	}

	taken, err := s.store.UsernameTaken(ctx, username)
	if err != nil {
		return model.User{}, &Error{Code: ErrServerError}
	}
	if taken {
		return model.User{}, &Error{Code: ErrUsernameTaken}
	}
	taken, err = s.store.EmailTaken(ctx, email)
	if err != nil {
		return model.User{}, &Error{Code: ErrServerError}
	}
	if taken {
		return model.User{}, &Error{Code: ErrEmailTaken}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return model.User{}, &Error{Code: ErrServerError}
	}

	now := s.now()
	user := model.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		FullName:     fullName,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return model.User{}, &Error{Code: ErrServerError}
	}
	user.PasswordHash = ""
	return user, nil
}

// Login verifies credentials and returns the authenticated identity. Token
// issuance happens at the identity provider, not here.
func (s *Service) Login(ctx context.Context, username, password, roleRaw string) (model.Identity, error) {
	role, err := model.ParseRole(roleRaw)
	if err != nil {
		return model.Identity{}, &Error{Code: ErrInvalidRole}
	}
	user, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username), role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Identity{}, &Error{Code: ErrInvalidCredentials}
		}
		return model.Identity{}, &Error{Code: ErrServerError}
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return model.Identity{}, &Error{Code: ErrInvalidCredentials}
	}
	return model.Identity{UserID: user.ID, Role: user.Role}, nil
}

func (s *Service) Get(ctx context.Context, userID string) (model.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, &Error{Code: ErrUserNotFound}
		}
		return model.User{}, &Error{Code: ErrServerError}
	}
	user.PasswordHash = ""
	return user, nil
}

// UpdateProfile changes email and full name; empty fields keep their value.
func (s *Service) UpdateProfile(ctx context.Context, userID, email, fullName string) (model.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, &Error{Code: ErrUserNotFound}
		}
		return model.User{}, &Error{Code: ErrServerError}
	}

	email = strings.TrimSpace(email)
	fullName = strings.TrimSpace(fullName)
	if email == "" {
		email = user.Email
	}
	if fullName == "" {
		fullName = user.FullName
	}
	if email != user.Email {
		taken, err := s.store.EmailTaken(ctx, email)
		if err != nil {
			return model.User{}, &Error{Code: ErrServerError}
		}
		if taken {
			return model.User{}, &Error{Code: ErrEmailTaken}
		}
	}

	now := s.now()
	if err := s.store.UpdateUserProfile(ctx, userID, email, fullName, now); err != nil {
		return model.User{}, &Error{Code: ErrServerError}
	}
	user.Email = email
	user.FullName = fullName
	user.UpdatedAt = now
	user.PasswordHash = ""
	return user, nil
}

// ChangePassword requires the current password before accepting a new one.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	if next == "" {
		return &Error{Code: ErrMissingField}
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &Error{Code: ErrUserNotFound}
		}
		return &Error{Code: ErrServerError}
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)) != nil {
		return &Error{Code: ErrWrongPassword}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return &Error{Code: ErrServerError}
	}
	if err := s.store.UpdateUserPassword(ctx, userID, string(hash), s.now()); err != nil {
		return &Error{Code: ErrServerError}
	}
	return nil
}

// SetProfilePic stores a reference to an already-uploaded picture. Upload
// handling itself lives outside this service.
func (s *Service) SetProfilePic(ctx context.Context, userID, profilePicRef string) error {
	if strings.TrimSpace(profilePicRef) == "" {
		return &Error{Code: ErrMissingField}
	}
	if err := s.store.UpdateUserProfilePic(ctx, userID, profilePicRef, s.now()); err != nil {
		return &Error{Code: ErrServerError}
	}
	return nil
}
