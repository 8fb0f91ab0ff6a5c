package core

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer   = "urak-auth-service"
	tokenAudience = "urak-users"
)

// SessionClaims is the payload carried by a session token.
type SessionClaims struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies self-contained session tokens (HS256).
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager builds a manager signing with secret; ttl is the
// session lifetime applied to every issued token.
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl}
}

// TTL returns the configured session lifetime.
func (m *TokenManager) TTL() time.Duration { return m.ttl }

// Issue creates a signed session token for user bound to sessionID.
func (m *TokenManager) Issue(user User, sessionID string, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(m.ttl)
	claims := SessionClaims{
		Username:  user.Username,
		Email:     user.Email,
		Role:      user.Role,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", user.ID),
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{tokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks signature, expiry, issuer and audience and returns the
// claims. Any failure maps to ErrSessionInvalid.
func (m *TokenManager) Verify(token string) (*SessionClaims, error) {
	if token == "" {
		return nil, ErrSessionInvalid
	}

	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(tokenAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrSessionInvalid
	}
	return claims, nil
}

// Validator confirms a session artifact and resolves it back to the
// canonical user record. It is read-only: it never issues tokens.
type Validator struct {
	tokens   *TokenManager
	users    UserRepository
	registry SessionRegistry // optional; nil skips revocation checks
}

// NewValidator wires a validator. registry may be nil when revocation
// tracking is not deployed.
func NewValidator(tokens *TokenManager, users UserRepository, registry SessionRegistry) *Validator {
	return &Validator{tokens: tokens, users: users, registry: registry}
}

// Validate accepts a raw session token (from cookie or bearer header),
// verifies it and returns the owning user with a refreshed last-login
// timestamp. Every failure mode collapses to ErrSessionInvalid so the
// caller clears session cookies without learning why.
func (v *Validator) Validate(ctx context.Context, token string) (User, error) {
	claims, err := v.tokens.Verify(token)
	if err != nil {
		return User{}, ErrSessionInvalid
	}

	if v.registry != nil && claims.SessionID != "" {
		ok, err := v.registry.Exists(ctx, claims.SessionID)
		if err != nil || !ok {
			return User{}, ErrSessionInvalid
		}
	}

	u, err := v.users.FindByUsername(ctx, claims.Username)
	if err != nil || u == nil {
		return User{}, ErrSessionInvalid
	}

	return User{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		LastLogin: time.Now().UTC(),
	}, nil
}
