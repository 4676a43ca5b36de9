package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"librarian/internal/model"
)

// DefaultSessionTTL is the lifetime of a session token unless configured otherwise.
const DefaultSessionTTL = 24 * time.Hour

// Claims represents JWT claims. The registered ID (jti) names the server-side session.
type Claims struct {
	UserID string     `json:"user_id"`
	Email  string     `json:"email"`
	Role   model.Role `json:"role"`
	jwt.RegisteredClaims
}

// JWTService handles JWT token generation and validation.
type JWTService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTService creates a new JWT service with the given secret and token lifetime.
func NewJWTService(secret string, ttl time.Duration) *JWTService {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &JWTService{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// TTL returns the token lifetime.
func (s *JWTService) TTL() time.Duration {
	return s.ttl
}

// GenerateToken signs a new session token for the user.
// The token ID is returned separately for storage in Redis.
func (s *JWTService) GenerateToken(user *model.User) (tokenID, token string, expiresAt time.Time, err error) {
	now := s.now()
	tokenID = generateTokenID()
	expiresAt = now.Add(s.ttl)
	claims := &Claims{
		UserID: user.ID.String(),
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Subject:   user.ID.String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	tokenObj := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token, err = tokenObj.SignedString(s.secret)
	return tokenID, token, expiresAt, err
}

// ValidateToken validates signature and expiry and returns the claims.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	return s.parse(tokenString, jwt.NewParser())
}

// ParseIgnoringExpiry checks the signature only. Used to revoke tokens that
// have already expired.
func (s *JWTService) ParseIgnoringExpiry(tokenString string) (*Claims, error) {
	return s.parse(tokenString, jwt.NewParser(jwt.WithoutClaimsValidation()))
}

func (s *JWTService) parse(tokenString string, parser *jwt.Parser) (*Claims, error) {
	token, err := parser.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.ID == "" {
		return nil, errors.New("token ID not found")
	}
	return claims, nil
}

// generateTokenID generates a unique session ID.
func generateTokenID() string {
	return uuid.New().String()
}
