package core

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type attemptState struct {
	count       int
	windowStart time.Time
	lockedUntil time.Time
}

// AuthService exchanges credentials for sessions and handles
// registration and revocation. It owns the login lockout counters; all
// other state lives in the repository and the registry.
type AuthService struct {
	users    UserRepository
	tokens   *TokenManager
	registry SessionRegistry // optional
	policy   SecurityPolicy

	mu       sync.Mutex
	attempts map[string]*attemptState
}

func NewAuthService(users UserRepository, tokens *TokenManager, registry SessionRegistry, policy SecurityPolicy) *AuthService {
	return &AuthService{
		users:    users,
		tokens:   tokens,
		registry: registry,
		policy:   policy,
		attempts: make(map[string]*attemptState),
	}
}

// Login verifies credentials and issues a fresh session. The error is
// ErrInvalidCredentials for any username/password miss, without saying
// which field was wrong, and ErrTooManyAttempts while locked out.
func (s *AuthService) Login(ctx context.Context, username, password, clientIP string) (Session, User, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return Session{}, User{}, ErrInvalidCredentials
	}

	key := username + "|" + clientIP
	if s.locked(key) {
		return Session{}, User{}, ErrTooManyAttempts
	}

	u, err := s.users.FindByUsername(ctx, username)
	if err != nil || u == nil {
		s.recordFailure(key)
		return Session{}, User{}, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		s.recordFailure(key)
		return Session{}, User{}, ErrInvalidCredentials
	}
	s.resetAttempts(key)

	now := time.Now().UTC()
	user := User{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		LastLogin: now,
	}

	sessionID := NewSessionID()
	token, expiresAt, err := s.tokens.Issue(user, sessionID, now)
	if err != nil {
		return Session{}, User{}, err
	}

	if s.registry != nil {
		if err := s.registry.Create(ctx, sessionID, user.ID, time.Until(expiresAt)); err != nil {
			return Session{}, User{}, err
		}
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		// Login already succeeded; a missed timestamp is not fatal.
		log.Printf("update last_login for user %d: %v", user.ID, err)
	}

	return Session{Token: token, SessionID: sessionID, UserID: user.ID, ExpiresAt: expiresAt}, user, nil
}

// Register creates a new account. It never authenticates the caller; a
// separate login is required afterwards. Field rules are checked
// fail-fast before the repository is touched.
func (s *AuthService) Register(ctx context.Context, username, email, password, confirm string) (User, error) {
	if ferr := ValidateRegistration(username, email, password, confirm); ferr != nil {
		return User{}, ferr
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	id, err := s.users.Create(ctx, username, email, string(hash), RoleUser)
	if err != nil {
		return User{}, err
	}

	return User{ID: id, Username: username, Email: email, Role: RoleUser}, nil
}

// Logout revokes the registry entry for sessionID. Best-effort: a
// registry failure is logged and swallowed so local cleanup (cookie
// clearing) always proceeds.
func (s *AuthService) Logout(ctx context.Context, sessionID string) {
	if s.registry == nil || sessionID == "" {
		return
	}
	if err := s.registry.Delete(ctx, sessionID); err != nil {
		log.Printf("revoke session %s: %v", sessionID, err)
	}
}

// LogoutAll revokes every live session of the user.
func (s *AuthService) LogoutAll(ctx context.Context, userID int64) (int64, error) {
	if s.registry == nil {
		return 0, nil
	}
	return s.registry.DeleteAllForUser(ctx, userID)
}

func (s *AuthService) locked(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.attempts[key]
	if !ok {
		return false
	}
	return time.Now().Before(st.lockedUntil)
}

func (s *AuthService) recordFailure(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	st, ok := s.attempts[key]
	if !ok || now.Sub(st.windowStart) > s.policy.LoginWindow {
		st = &attemptState{windowStart: now}
		s.attempts[key] = st
	}
	st.count++
	if st.count >= s.policy.MaxLoginAttempts {
		st.lockedUntil = now.Add(s.policy.LockoutDuration)
	}
}

func (s *AuthService) resetAttempts(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, key)
}

// IsFieldError reports whether err is a per-field validation failure.
func IsFieldError(err error) (*FieldError, bool) {
	var ferr *FieldError
	if errors.As(err, &ferr) {
		return ferr, true
	}
	return nil, false
}
