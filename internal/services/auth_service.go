package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt"
)

type contextKey string

const (
	CallerContextKey       contextKey = "caller"
	OrganizationContextKey contextKey = "organization_id"
)

var ErrInvalidToken = errors.New("invalid token")

// AuthService verifies the dashboard bearer tokens. Tokens are HS256 JWTs
// carrying the organization in the org_id claim.
type AuthService interface {
	IssueToken(organizationID uint, ttl time.Duration) (string, error)
	VerifyToken(token string) (uint, error)
}

type authService struct {
	jwtSecret string
}

func NewAuthService(jwtSecret string) AuthService {
	return &authService{jwtSecret: jwtSecret}
}

func (s *authService) IssueToken(organizationID uint, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"org_id": organizationID,
		"exp":    time.Now().Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}

func (s *authService) VerifyToken(tokenString string) (uint, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(s.jwtSecret), nil
	})

	if err != nil || !token.Valid {
		return 0, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, ErrInvalidToken
	}

	orgID, err := organizationClaim(claims["org_id"])
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return orgID, nil
}

func organizationClaim(v interface{}) (uint, error) {
	switch id := v.(type) {
	case float64:
		if id <= 0 || id != float64(uint(id)) {
			return 0, fmt.Errorf("bad org_id %v", id)
		}
		return uint(id), nil
	case string:
		n, err := strconv.ParseUint(id, 10, 64)
		if err != nil || n == 0 {
			return 0, fmt.Errorf("bad org_id %q", id)
		}
		return uint(n), nil
	}
	return 0, errors.New("missing org_id")
}

func WithCaller(ctx context.Context, caller *Caller) context.Context {
	return context.WithValue(ctx, CallerContextKey, caller)
}

func CallerFromContext(ctx context.Context) (*Caller, bool) {
	caller, ok := ctx.Value(CallerContextKey).(*Caller)
	return caller, ok && caller != nil
}

func WithOrganizationID(ctx context.Context, organizationID uint) context.Context {
	return context.WithValue(ctx, OrganizationContextKey, organizationID)
}

func OrganizationIDFromContext(ctx context.Context) (uint, bool) {
	id, ok := ctx.Value(OrganizationContextKey).(uint)
	return id, ok
}
