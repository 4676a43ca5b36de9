package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"librarian/internal/auth"
	apperrors "librarian/internal/errors"
	"librarian/internal/metrics"
	"librarian/internal/model"
	"librarian/internal/repository"
)

const bcryptCost = 10

// dummyHash is compared against when the email is unknown so both login
// failures cost one bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("librarian-dummy-password"), bcryptCost)

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// RegisterInput carries the fields of a registration.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      model.Role
}

// AuthService handles authentication operations.
type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*model.User, error)
	Login(ctx context.Context, email, password string) (token string, user *model.User, err error)
	Logout(ctx context.Context, token string) error
	Me(ctx context.Context, userID uuid.UUID) (*model.User, error)
}

type authService struct {
	users                  repository.UserRepository
	sessions               auth.SessionStore
	metrics                *metrics.Metrics
	log                    zerolog.Logger
	allowAdminRegistration bool
}

// NewAuthService creates a new authentication service.
func NewAuthService(
	users repository.UserRepository,
	sessions auth.SessionStore,
	m *metrics.Metrics,
	log zerolog.Logger,
	allowAdminRegistration bool,
) AuthService {
	return &authService{
		users:                  users,
		sessions:               sessions,
		metrics:                m,
		log:                    log.With().Str("service", "auth").Logger(),
		allowAdminRegistration: allowAdminRegistration,
	}
}

// Register creates a new user with a hashed password. Email uniqueness is
// enforced by the users table.
func (s *authService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	role := in.Role
	if role == "" {
		role = model.RoleUser
	}
	if !role.Valid() {
		return nil, apperrors.NewValidationError("role must be user or admin")
	}
	if role == model.RoleAdmin && !s.allowAdminRegistration {
		return nil, apperrors.ErrForbidden
	}

	hashed, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Email:        model.NormalizeEmail(in.Email),
		PasswordHash: hashed,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Role:         role,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.log.Info().Str("user_id", user.ID.String()).Str("role", string(role)).Msg("user registered")
	return user, nil
}

// Login verifies the credentials and issues a session token. Unknown email
// and wrong password are indistinguishable to the caller.
func (s *authService) Login(ctx context.Context, email, password string) (string, *model.User, error) {
	user, err := s.users.FindByEmail(ctx, model.NormalizeEmail(email))
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, fmt.Errorf("find user: %w", err)
		}
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		s.metrics.AuthFailure("bad_credentials")
		return "", nil, apperrors.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.metrics.AuthFailure("bad_credentials")
		return "", nil, apperrors.ErrInvalidCredentials
	}
	if !user.IsActive {
		s.metrics.AuthFailure("inactive")
		return "", nil, apperrors.ErrInvalidCredentials
	}

	token, err := s.sessions.Issue(ctx, user)
	if err != nil {
		return "", nil, fmt.Errorf("issue session: %w", err)
	}
	s.metrics.SessionIssued()

	return token, user, nil
}

// Logout revokes the session behind token. Revoking an unknown token succeeds.
func (s *authService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return apperrors.NewValidationError("no token provided")
	}
	if err := s.sessions.Revoke(ctx, token); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	s.metrics.SessionRevoked()
	return nil
}

// Me returns the user behind an identity.
func (s *authService) Me(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}
