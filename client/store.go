package client

import (
	"context"
	"errors"
	"sync"

	"github.com/Thecnfor/URAK/core"
)

// AuthState is the client-visible snapshot of the session store. It is
// always handed out by value; nothing outside the store mutates it.
type AuthState struct {
	User            *core.User
	IsAuthenticated bool
	IsLoading       bool
	Err             string
	CSRFToken       string
}

// command is the closed set of state transitions. Every mutation of the
// store goes through exactly one of these, applied at a single switch
// site while the store lock is held.
type command interface{ isCommand() }

type loginStart struct{}
type loginSuccess struct {
	user core.User
	csrf string
}
type loginFailure struct{ msg string }
type validateStart struct{}
type validateSuccess struct{ user core.User }
type validateFailure struct{ wasAuthenticated bool }
type logoutDone struct{}
type registerStart struct{}
type registerDone struct{ msg string }
type csrfRefreshed struct{ token string }

func (loginStart) isCommand()      {}
func (loginSuccess) isCommand()    {}
func (loginFailure) isCommand()    {}
func (validateStart) isCommand()   {}
func (validateSuccess) isCommand() {}
func (validateFailure) isCommand() {}
func (logoutDone) isCommand()      {}
func (registerStart) isCommand()   {}
func (registerDone) isCommand()    {}
func (csrfRefreshed) isCommand()   {}

// Store is the single process-wide session state machine. Async auth
// operations race against it (periodic revalidation, tab refocus,
// explicit logout); an epoch counter incremented on every
// state-invalidating operation makes sure a stale in-flight response
// can never resurrect cleared state.
type Store struct {
	api AuthAPI

	mu      sync.Mutex
	state   AuthState
	epoch   uint64
	nextSub int
	subs    map[int]chan AuthState
}

// NewStore builds a store over the given API. The initial state is
// Idle: no attempt made yet, nothing loading, no error.
func NewStore(api AuthAPI) *Store {
	return &Store{api: api, subs: make(map[int]chan AuthState)}
}

// State returns the current snapshot.
func (s *Store) State() AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers a listener for state transitions. It returns the
// channel and a cancel func. Slow listeners drop intermediate
// snapshots rather than block the store.
func (s *Store) Subscribe() (<-chan AuthState, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan AuthState, 16)
	s.subs[id] = ch
	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Login exchanges credentials for a session. Starting a login
// invalidates any older in-flight operation.
func (s *Store) Login(ctx context.Context, username, password string) error {
	s.mu.Lock()
	s.epoch++
	ep := s.epoch
	csrf := s.state.CSRFToken
	s.applyLocked(loginStart{})
	s.mu.Unlock()

	if csrf == "" {
		var err error
		csrf, err = s.api.FetchCSRF(ctx)
		if err != nil {
			s.applyIf(ep, loginFailure{msg: userMessage(err)})
			return err
		}
		s.applyIf(ep, csrfRefreshed{token: csrf})
	}

	user, newCSRF, err := s.api.Login(ctx, username, password, csrf)
	if err != nil {
		s.applyIf(ep, loginFailure{msg: userMessage(err)})
		return err
	}
	s.applyIf(ep, loginSuccess{user: user, csrf: newCSRF})
	return nil
}

// Validate confirms the current session against the server. It does not
// invalidate the epoch: a logout or newer login that lands while the
// call is in flight wins, and this response is discarded.
func (s *Store) Validate(ctx context.Context) error {
	s.mu.Lock()
	ep := s.epoch
	was := s.state.IsAuthenticated
	s.applyLocked(validateStart{})
	s.mu.Unlock()

	user, err := s.api.Validate(ctx)
	if err != nil {
		s.applyIf(ep, validateFailure{wasAuthenticated: was})
		return err
	}
	s.applyIf(ep, validateSuccess{user: user})
	return nil
}

// Logout clears local state first, in one atomic transition, then tells
// the server best-effort. A server or network failure never restores
// the cleared state.
func (s *Store) Logout(ctx context.Context) {
	s.mu.Lock()
	s.epoch++
	csrf := s.state.CSRFToken
	s.applyLocked(logoutDone{})
	s.mu.Unlock()

	_ = s.api.Logout(ctx, csrf)
}

// Register creates an account. It never authenticates: only the
// loading flag and the error can change.
func (s *Store) Register(ctx context.Context, reg Registration) error {
	s.mu.Lock()
	ep := s.epoch
	csrf := s.state.CSRFToken
	s.applyLocked(registerStart{})
	s.mu.Unlock()

	if csrf == "" {
		var err error
		csrf, err = s.api.FetchCSRF(ctx)
		if err != nil {
			s.applyIf(ep, registerDone{msg: userMessage(err)})
			return err
		}
		s.applyIf(ep, csrfRefreshed{token: csrf})
	}

	if err := s.api.Register(ctx, reg, csrf); err != nil {
		msg := ""
		var apiErr *APIError
		// Field-level validation errors belong to the form, not to the
		// global auth error.
		if !errors.As(err, &apiErr) || apiErr.Field == "" {
			msg = userMessage(err)
		}
		s.applyIf(ep, registerDone{msg: msg})
		return err
	}
	s.applyIf(ep, registerDone{})
	return nil
}

// RefreshCSRF re-issues the csrf token for the current browser context.
func (s *Store) RefreshCSRF(ctx context.Context) error {
	s.mu.Lock()
	ep := s.epoch
	s.mu.Unlock()

	token, err := s.api.FetchCSRF(ctx)
	if err != nil {
		return err
	}
	s.applyIf(ep, csrfRefreshed{token: token})
	return nil
}

// applyIf applies cmd only when the epoch it was issued under is still
// current. Stale responses are discarded whole; there are no partial
// writes to roll back.
func (s *Store) applyIf(epoch uint64, cmd command) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return
	}
	s.applyLocked(cmd)
}

// applyLocked is the single transition site. Caller holds s.mu.
func (s *Store) applyLocked(cmd command) {
	switch c := cmd.(type) {
	case loginStart:
		s.state.IsLoading = true
		s.state.Err = ""
	case loginSuccess:
		u := c.user
		s.state = AuthState{
			User:            &u,
			IsAuthenticated: true,
			CSRFToken:       c.csrf,
		}
	case loginFailure:
		s.state = AuthState{Err: c.msg}
	case validateStart:
		s.state.IsLoading = true
	case validateSuccess:
		u := c.user
		s.state = AuthState{
			User:            &u,
			IsAuthenticated: true,
			CSRFToken:       s.state.CSRFToken,
		}
	case validateFailure:
		msg := ""
		// A failed validate only surfaces an error to someone who was
		// actually logged in; first-time visitors see nothing.
		if c.wasAuthenticated {
			msg = "your session has expired, please log in again"
		}
		s.state = AuthState{Err: msg}
	case logoutDone:
		s.state = AuthState{}
	case registerStart:
		s.state.IsLoading = true
		s.state.Err = ""
	case registerDone:
		s.state.IsLoading = false
		s.state.Err = c.msg
	case csrfRefreshed:
		s.state.CSRFToken = c.token
	}
	s.notifyLocked()
}

func (s *Store) snapshotLocked() AuthState {
	snap := s.state
	if s.state.User != nil {
		u := *s.state.User
		snap.User = &u
	}
	return snap
}

func (s *Store) notifyLocked() {
	snap := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

// userMessage maps an operation error to the string surfaced in
// AuthState. Transport and server failures get a generic, non-leaking
// message.
func userMessage(err error) string {
	if errors.Is(err, ErrNetwork) {
		return "network error, please try again"
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case "INVALID_CREDENTIALS", "SESSION_INVALID", "CSRF_INVALID", "TOO_MANY_ATTEMPTS":
			return apiErr.Message
		}
	}
	return "server error, please try again"
}
