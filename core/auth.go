package core

import (
	"errors"
	"time"
)

// Roles known to the system. Anything else is rejected at the door.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User represents an authenticated principal returned to handlers.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	LastLogin time.Time `json:"last_login"`
}

// Session is the artifact handed to a client after a successful
// credential exchange. Token is a self-contained signed JWT; SessionID
// correlates it with the server-side registry entry.
type Session struct {
	Token     string
	SessionID string
	UserID    int64
	ExpiresAt time.Time
}

var (
	// ErrInvalidCredentials is returned when username/password is wrong.
	// It deliberately does not say which.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrSessionInvalid covers missing, malformed, expired and revoked
	// session artifacts alike. Callers clear session cookies on it.
	ErrSessionInvalid = errors.New("session invalid")

	// ErrCSRFMismatch is returned when the X-CSRF-Token header does not
	// match the bound csrf cookie.
	ErrCSRFMismatch = errors.New("csrf token mismatch")

	// ErrUserExists is returned by registration on a duplicate username.
	ErrUserExists = errors.New("username already exists")

	// ErrTooManyAttempts is returned while a username/IP pair is locked
	// out after repeated login failures.
	ErrTooManyAttempts = errors.New("too many login attempts")
)

// ValidRole reports whether r is one of the enumerated roles.
func ValidRole(r string) bool {
	return r == RoleAdmin || r == RoleUser
}
