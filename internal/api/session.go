package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/davidcohan/identity-broker/internal/config"
	"github.com/davidcohan/identity-broker/internal/source"
)

// SessionClaims is the JWT payload minted after a flow completes
type SessionClaims struct {
	Username   string              `json:"username"`
	Source     string              `json:"source"`
	Attributes map[string][]string `json:"attributes,omitempty"`
	jwt.RegisteredClaims
}

// SessionService mints and validates session tokens
type SessionService struct {
	secret []byte
	expiry time.Duration
}

// NewSessionService creates a session service from configuration
func NewSessionService(cfg config.SessionConfig) *SessionService {
	return &SessionService{
		secret: []byte(cfg.JWTSecret),
		expiry: cfg.TokenExpiry,
	}
}

// GenerateToken creates a signed session token for an authenticated identity
func (s *SessionService) GenerateToken(identity *source.Identity) (string, time.Time, error) {
	expiresAt := time.Now().Add(s.expiry)

	claims := SessionClaims{
		Username:   identity.Username,
		Source:     identity.Source,
		Attributes: identity.Attributes,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, expiresAt, nil
}

// ValidateToken parses and validates a session token
func (s *SessionService) ValidateToken(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}

// authMiddleware validates session tokens on protected routes
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			respondError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			respondError(w, http.StatusUnauthorized, "invalid authorization header format")
			return
		}

		claims, err := s.sessions.ValidateToken(tokenString)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		r.Header.Set("X-Username", claims.Username)
		r.Header.Set("X-Auth-Source", claims.Source)
		next.ServeHTTP(w, r)
	})
}
