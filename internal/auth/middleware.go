package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	apperrors "librarian/internal/errors"
	"librarian/internal/metrics"
	"librarian/internal/model"
)

const (
	identityContextKey = "identity"
	bearerPrefix       = "bearer "
)

// TokenValidator resolves a bearer token to an identity.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*Identity, error)
}

// Authenticator provides the echo middlewares gating the API.
type Authenticator struct {
	validator TokenValidator
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(validator TokenValidator, m *metrics.Metrics, log zerolog.Logger) *Authenticator {
	return &Authenticator{
		validator: validator,
		metrics:   m,
		log:       log.With().Str("component", "auth").Logger(),
	}
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(c echo.Context) (string, bool) {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	return token, token != ""
}

// RequireIdentity rejects requests without a valid session token.
func (a *Authenticator) RequireIdentity(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, ok := BearerToken(c)
		if !ok {
			a.metrics.AuthFailure("missing")
			return apperrors.FromError(apperrors.ErrNoCredential)
		}

		identity, err := a.validator.Validate(c.Request().Context(), token)
		if err != nil {
			if errors.Is(err, apperrors.ErrInvalidCredential) {
				a.metrics.AuthFailure("invalid")
			}
			return apperrors.FromError(err)
		}

		WithIdentity(c, identity)
		return next(c)
	}
}

// OptionalIdentity attaches an identity when the request carries a valid
// token and lets every other request through anonymously.
func (a *Authenticator) OptionalIdentity(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, ok := BearerToken(c)
		if !ok {
			return next(c)
		}

		identity, err := a.validator.Validate(c.Request().Context(), token)
		switch {
		case err == nil:
			WithIdentity(c, identity)
		case errors.Is(err, apperrors.ErrInvalidCredential):
		default:
			a.log.Warn().Err(err).Msg("optional identity lookup failed")
		}
		return next(c)
	}
}

// RequireRole rejects requests whose identity lacks role. It must run after
// RequireIdentity or OptionalIdentity.
func RequireRole(role model.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identity := IdentityFrom(c)
			if identity == nil {
				return apperrors.FromError(apperrors.ErrNoCredential)
			}
			if identity.Role != role {
				return apperrors.FromError(apperrors.ErrForbidden)
			}
			return next(c)
		}
	}
}

// IdentityFrom returns the identity attached by the middlewares, or nil.
func IdentityFrom(c echo.Context) *Identity {
	identity, _ := c.Get(identityContextKey).(*Identity)
	return identity
}

// WithIdentity attaches an identity to the context.
func WithIdentity(c echo.Context, identity *Identity) {
	c.Set(identityContextKey, identity)
}
