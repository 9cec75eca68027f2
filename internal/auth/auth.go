// Package auth provides JWT-based authentication for the transaction service.
//
// Tokens are signed with HMAC-SHA256. The signing secret must be at least
// 32 bytes in production (enforced by config); development deployments may
// run with an ephemeral generated secret.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/meridianfi/ledger/internal/model"
)

const issuer = "ledger"

// Claims is the typed bearer payload threaded through request handlers.
// Subject carries the user id; Username and Email are denormalized so
// handlers never need a user lookup for identity display.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	Email    string `json:"email"`
}

// UserID returns the subject parsed as a UUID.
func (c *Claims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// JWTManager handles token creation and validation.
type JWTManager struct {
	secret     []byte
	expiration time.Duration
}

// NewJWTManager creates a JWTManager. An empty secret generates an ephemeral
// random one, which invalidates all tokens on restart; acceptable only in
// development.
func NewJWTManager(secret string, expiration time.Duration) (*JWTManager, error) {
	if expiration <= 0 {
		return nil, fmt.Errorf("auth: expiration must be positive")
	}
	key := []byte(secret)
	if len(key) == 0 {
		slog.Warn("auth: no JWT_SECRET configured, generating ephemeral secret (not for production)")
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("auth: generate ephemeral secret: %w", err)
		}
		key = []byte(base64.StdEncoding.EncodeToString(buf))
	}
	return &JWTManager{secret: key, expiration: expiration}, nil
}

// Expiration returns the configured token lifetime.
func (m *JWTManager) Expiration() time.Duration {
	return m.expiration
}

// IssueToken creates a signed JWT for the given user.
func (m *JWTManager) IssueToken(user model.User) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(m.expiration)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.New().String(),
		},
		Username: user.Username,
		Email:    user.Email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, exp, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (m *JWTManager) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return m.secret, nil
		},
		jwt.WithIssuer(issuer),
	)
	if err != nil {
		return nil, fmt.Errorf("auth: validate token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims")
	}

	if _, err := uuid.Parse(claims.Subject); err != nil {
		return nil, fmt.Errorf("auth: invalid subject (expected UUID): %w", err)
	}

	return claims, nil
}
