// Package account manages kitchen staff accounts and issues login tokens.
package account

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/Xalid7/oshxona/internal/model"
	"github.com/Xalid7/oshxona/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

var (
	ErrInvalidInput       = errors.New("invalid account data")
	ErrUserExists         = errors.New("username or email already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserInactive       = errors.New("user is deactivated")
)

type Store interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id uint) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	SetUserActive(ctx context.Context, id uint, active bool) error
	CountUsers(ctx context.Context) (int64, error)
}

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	GenerateToken(userID uint, username, role string) (string, error)
}

// AuthRecorder receives login outcomes.
type AuthRecorder interface {
	RecordAuthAttempt()
	RecordAuthSuccess()
	RecordAuthError(errorType string)
}

type nopAuthRecorder struct{}

func (nopAuthRecorder) RecordAuthAttempt()     {}
func (nopAuthRecorder) RecordAuthSuccess()     {}
func (nopAuthRecorder) RecordAuthError(string) {}

type UserInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type LoginResult struct {
	Token string      `json:"access_token"`
	Type  string      `json:"token_type"`
	User  *model.User `json:"user"`
}

type Service struct {
	store    Store
	tokens   TokenIssuer
	log      *zap.Logger
	recorder AuthRecorder
	cost     int
}

type Option func(*Service)

func WithAuthRecorder(r AuthRecorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithHashCost sets the bcrypt cost; tests use bcrypt.MinCost.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

func NewService(st Store, tokens TokenIssuer, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		store:    st,
		tokens:   tokens,
		log:      log,
		recorder: nopAuthRecorder{},
		cost:     bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) CreateUser(ctx context.Context, in UserInput) (*model.User, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)
	role := in.Role
	if role == "" {
		role = model.RoleCook
	}

	switch {
	case username == "":
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	case email == "":
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	case len(in.Password) < minPasswordLength:
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	case !model.ValidRole(role):
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		s.log.Error("Failed to hash password", zap.Error(err))
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		IsActive:     true,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			s.log.Warn("User already exists", zap.String("username", username))
			return nil, fmt.Errorf("%w: %s", ErrUserExists, username)
		}
		s.log.Error("Failed to create user", zap.String("username", username), zap.Error(err))
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.log.Info("User created",
		zap.Uint("user_id", u.ID),
		zap.String("username", u.Username),
		zap.String("role", u.Role))
	return u, nil
}

// Login checks the password and returns a signed token.
// Unknown users and wrong passwords fail the same way.
func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	s.recorder.RecordAuthAttempt()

	u, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.recorder.RecordAuthError("user_not_found")
			s.log.Warn("Login for unknown user", zap.String("username", username))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		s.recorder.RecordAuthError("invalid_password")
		s.log.Warn("Invalid password", zap.String("username", u.Username))
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		s.recorder.RecordAuthError("inactive_user")
		s.log.Warn("Login for deactivated user", zap.String("username", u.Username))
		return nil, ErrUserInactive
	}

	token, err := s.tokens.GenerateToken(u.ID, u.Username, u.Role)
	if err != nil {
		s.recorder.RecordAuthError("token_generation_failed")
		s.log.Error("Failed to generate token", zap.Error(err))
		return nil, fmt.Errorf("generate token: %w", err)
	}

	s.recorder.RecordAuthSuccess()
	s.log.Info("User logged in", zap.Uint("user_id", u.ID), zap.String("role", u.Role))
	return &LoginResult{Token: token, Type: "bearer", User: u}, nil
}

func (s *Service) GetUser(ctx context.Context, id uint) (*model.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrUserNotFound, id)
		}
		return nil, err
	}
	return u, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]model.User, error) {
	return s.store.ListUsers(ctx)
}

// ToggleActive flips the user's active flag and returns the updated user.
func (s *Service) ToggleActive(ctx context.Context, id uint) (*model.User, error) {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	u.IsActive = !u.IsActive
	if err := s.store.SetUserActive(ctx, id, u.IsActive); err != nil {
		return nil, fmt.Errorf("update user %d: %w", id, err)
	}
	s.log.Info("User active flag changed", zap.Uint("user_id", id), zap.Bool("is_active", u.IsActive))
	return u, nil
}

// EnsureAdmin creates an admin account when the user table is empty. An empty
// password is replaced by a random one, which is logged once.
func (s *Service) EnsureAdmin(ctx context.Context, username, email, password string) (bool, error) {
	n, err := s.store.CountUsers(ctx)
	if err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	generated := password == ""
	if generated {
		password = uuid.NewString()
	}
	u, err := s.CreateUser(ctx, UserInput{Username: username, Email: email, Password: password, Role: model.RoleAdmin})
	if err != nil {
		return false, err
	}
	if generated {
		s.log.Warn("Seeded admin with a generated password, change it after first login",
			zap.String("username", u.Username),
			zap.String("password", password))
	} else {
		s.log.Info("Seeded admin account", zap.String("username", u.Username))
	}
	return true, nil
}
