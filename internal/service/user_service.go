package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"librarian/internal/auth"
	"librarian/internal/cache"
	apperrors "librarian/internal/errors"
	"librarian/internal/model"
	"librarian/internal/repository"
)

const (
	userCacheTTL      = 5 * time.Minute
	defaultUserLimit  = 10
	maxUserLimit      = 100
	minPasswordLength = 6
)

// ListUsersInput carries the query of an admin user listing.
type ListUsersInput struct {
	Role      model.Role
	SortBy    string
	SortOrder string
	Page      int
	Limit     int
}

// UpdateUserInput carries a partial update. Nil fields are left unchanged.
type UpdateUserInput struct {
	Email     *string
	FirstName *string
	LastName  *string
	Role      *model.Role
	Password  *string
	IsActive  *bool
}

// UserService exposes admin user management.
type UserService interface {
	List(ctx context.Context, in ListUsersInput) ([]model.User, int64, error)
	Get(ctx context.Context, id uuid.UUID) (*model.User, error)
	Update(ctx context.Context, id uuid.UUID, in UpdateUserInput) (*model.User, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ActiveSessions(ctx context.Context, id uuid.UUID) (int, error)
	EnsureAdmin(ctx context.Context, email, password string) (user *model.User, created bool, err error)
}

type userService struct {
	repo     repository.UserRepository
	sessions auth.SessionStore
	cache    *cache.Client
	log      zerolog.Logger
}

// NewUserService builds a UserService with repository, session store and cache.
func NewUserService(repo repository.UserRepository, sessions auth.SessionStore, cache *cache.Client, log zerolog.Logger) UserService {
	return &userService{
		repo:     repo,
		sessions: sessions,
		cache:    cache,
		log:      log.With().Str("service", "user").Logger(),
	}
}

func (s *userService) cacheKey(id uuid.UUID) string {
	return fmt.Sprintf("user:%s", id.String())
}

func (s *userService) List(ctx context.Context, in ListUsersInput) ([]model.User, int64, error) {
	role := in.Role
	if !role.Valid() {
		role = ""
	}
	users, total, err := s.repo.List(ctx, repository.UserFilter{
		Role:   role,
		SortBy: in.SortBy,
		Desc:   strings.EqualFold(in.SortOrder, "desc"),
		Page:   model.NormalizePage(in.Page, in.Limit, defaultUserLimit, maxUserLimit),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	return users, total, nil
}

func (s *userService) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	if cached := s.load(ctx, id); cached != nil {
		return cached, nil
	}

	user, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	s.store(ctx, user)
	return user, nil
}

// Update applies the provided fields. Changing the email, role or password, or
// deactivating the account, ends every session of the user.
func (s *userService) Update(ctx context.Context, id uuid.UUID, in UpdateUserInput) (*model.User, error) {
	user, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	revoke := false
	if in.Email != nil {
		email := model.NormalizeEmail(*in.Email)
		if email == "" {
			return nil, apperrors.NewValidationError("email must not be empty")
		}
		if email != user.Email {
			user.Email = email
			revoke = true
		}
	}
	if in.FirstName != nil {
		user.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		user.LastName = *in.LastName
	}
	if in.Role != nil && *in.Role != user.Role {
		if !in.Role.Valid() {
			return nil, apperrors.NewValidationError("role must be user or admin")
		}
		user.Role = *in.Role
		revoke = true
	}
	if in.Password != nil {
		if len(*in.Password) < minPasswordLength {
			return nil, apperrors.NewValidationError("password must be at least 6 characters")
		}
		hashed, err := HashPassword(*in.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hashed
		revoke = true
	}

	if in.IsActive != nil && *in.IsActive != user.IsActive {
		user.IsActive = *in.IsActive
		if !user.IsActive {
			revoke = true
		}
	}

	if err := s.repo.Update(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.ErrEmailTaken
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	s.evict(ctx, id)

	if revoke {
		if err := s.sessions.RevokeAll(ctx, id); err != nil {
			return nil, fmt.Errorf("revoke sessions: %w", err)
		}
		s.log.Info().Str("user_id", id.String()).Msg("sessions revoked after credential change")
	}
	return user, nil
}

// Delete removes the user and ends every session. Ledger entries are kept.
func (s *userService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrUserNotFound
		}
		return fmt.Errorf("delete user: %w", err)
	}
	s.evict(ctx, id)

	if err := s.sessions.RevokeAll(ctx, id); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	s.log.Info().Str("user_id", id.String()).Msg("user deleted")
	return nil
}

// ActiveSessions counts the unexpired sessions of an existing user.
func (s *userService) ActiveSessions(ctx context.Context, id uuid.UUID) (int, error) {
	if _, err := s.find(ctx, id); err != nil {
		return 0, err
	}
	n, err := s.sessions.ActiveSessions(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

// EnsureAdmin creates an admin with email or promotes the existing user and
// resets its password.
func (s *userService) EnsureAdmin(ctx context.Context, email, password string) (*model.User, bool, error) {
	email = model.NormalizeEmail(email)
	if email == "" {
		return nil, false, apperrors.NewValidationError("email is required")
	}
	if len(password) < minPasswordLength {
		return nil, false, apperrors.NewValidationError("password must be at least 6 characters")
	}
	hashed, err := HashPassword(password)
	if err != nil {
		return nil, false, err
	}

	user, err := s.repo.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = &model.User{
			Email:        email,
			PasswordHash: hashed,
			Role:         model.RoleAdmin,
			IsActive:     true,
		}
		if err := s.repo.Create(ctx, user); err != nil {
			return nil, false, fmt.Errorf("create admin: %w", err)
		}
		return user, true, nil
	case err != nil:
		return nil, false, fmt.Errorf("find user: %w", err)
	}

	user.Role = model.RoleAdmin
	user.PasswordHash = hashed
	user.IsActive = true
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, false, fmt.Errorf("promote admin: %w", err)
	}
	s.evict(ctx, user.ID)

	if err := s.sessions.RevokeAll(ctx, user.ID); err != nil {
		return nil, false, fmt.Errorf("revoke sessions: %w", err)
	}
	return user, false, nil
}

func (s *userService) load(ctx context.Context, id uuid.UUID) *model.User {
	data, err := s.cache.Get(ctx, s.cacheKey(id))
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", id.String()).Msg("user cache read failed")
		return nil
	}
	if data == nil {
		return nil
	}
	var cached model.User
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil
	}
	return &cached
}

func (s *userService) store(ctx context.Context, user *model.User) {
	payload, err := json.Marshal(user)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, s.cacheKey(user.ID), payload, userCacheTTL); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID.String()).Msg("user cache write failed")
	}
}

func (s *userService) evict(ctx context.Context, id uuid.UUID) {
	if err := s.cache.Delete(ctx, s.cacheKey(id)); err != nil {
		s.log.Warn().Err(err).Str("user_id", id.String()).Msg("user cache invalidation failed")
	}
}

func (s *userService) find(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}
