package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"voice-agent-platform/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

// leeway absorbs clock skew between this service and the token issuer.
const leeway = 30 * time.Second

// sessionClaims is the token shape minted by the dashboard's identity service.
// The subject is the user id.
type sessionClaims struct {
	jwt.RegisteredClaims

	OrganizationID string `json:"org_id"`
	Role           string `json:"role"`
}

// JWTSessions verifies HS256 session tokens issued by the dashboard. This
// service never issues tokens itself.
type JWTSessions struct {
	secret   []byte
	issuer   string
	audience string

	Now func() time.Time
}

func NewJWTSessions(cfg config.AuthConfig) (*JWTSessions, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	return &JWTSessions{
		secret:   []byte(cfg.JWTSecret),
		issuer:   cfg.JWTIssuer,
		audience: cfg.JWTAudience,
		Now:      time.Now,
	}, nil
}

func (s *JWTSessions) Session(ctx context.Context, token string) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, ErrNoSession
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithLeeway(leeway),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}

	var claims sessionClaims
	_, err := jwt.NewParser(opts...).ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrNoSession, err)
	}
	if claims.Subject == "" || claims.OrganizationID == "" || claims.Role == "" {
		return Session{}, fmt.Errorf("%w: sub, org_id and role are required", ErrNoSession)
	}
	return Session{
		UserID:         claims.Subject,
		OrganizationID: claims.OrganizationID,
		Role:           claims.Role,
	}, nil
}

func (s *JWTSessions) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
