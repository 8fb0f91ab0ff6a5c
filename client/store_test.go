package client

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thecnfor/URAK/core"
)

// fakeAPI is a scriptable AuthAPI backend.
type fakeAPI struct {
	mu sync.Mutex

	csrfToken    string
	loginUser    core.User
	loginErr     error
	validateUser core.User
	validateErr  error
	registerErr  error

	validateGate  chan struct{} // when set, Validate blocks until closed
	validateCalls int32
	logoutCalls   int32
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		csrfToken: "csrf-1",
		loginUser: core.User{ID: 1, Username: "admin", Role: core.RoleAdmin},
	}
}

func (f *fakeAPI) FetchCSRF(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.csrfToken, nil
}

func (f *fakeAPI) Login(_ context.Context, _, _, _ string) (core.User, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loginErr != nil {
		return core.User{}, "", f.loginErr
	}
	return f.loginUser, "csrf-rotated", nil
}

func (f *fakeAPI) Validate(context.Context) (core.User, error) {
	f.mu.Lock()
	gate := f.validateGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	atomic.AddInt32(&f.validateCalls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.validateErr != nil {
		return core.User{}, f.validateErr
	}
	return f.validateUser, nil
}

func (f *fakeAPI) Logout(context.Context, string) error {
	atomic.AddInt32(&f.logoutCalls, 1)
	return nil
}

func (f *fakeAPI) Register(_ context.Context, _ Registration, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registerErr
}

func sessionInvalidErr() error {
	return &APIError{Status: 401, Code: "SESSION_INVALID", Message: "session is invalid or expired"}
}

func TestLoginSuccessTransition(t *testing.T) {
	api := newFakeAPI()
	s := NewStore(api)

	require.NoError(t, s.Login(context.Background(), "admin", "admin123"))

	state := s.State()
	assert.True(t, state.IsAuthenticated)
	require.NotNil(t, state.User)
	assert.Equal(t, "admin", state.User.Username)
	assert.Equal(t, core.RoleAdmin, state.User.Role)
	assert.False(t, state.IsLoading)
	assert.Empty(t, state.Err)
	assert.Equal(t, "csrf-rotated", state.CSRFToken)
}

func TestLoginFailureTransition(t *testing.T) {
	api := newFakeAPI()
	api.loginErr = &APIError{Status: 401, Code: "INVALID_CREDENTIALS", Message: "invalid username or password"}
	s := NewStore(api)

	require.Error(t, s.Login(context.Background(), "admin", "nope"))

	state := s.State()
	assert.False(t, state.IsAuthenticated)
	assert.Nil(t, state.User)
	assert.False(t, state.IsLoading)
	assert.Equal(t, "invalid username or password", state.Err)
}

func TestFirstVisitSilence(t *testing.T) {
	api := newFakeAPI()
	api.validateErr = sessionInvalidErr()
	s := NewStore(api)

	// Fresh session, never logged in: the failed validate is swallowed.
	require.Error(t, s.Validate(context.Background()))

	state := s.State()
	assert.False(t, state.IsAuthenticated)
	assert.Empty(t, state.Err, "first-time visitors must not see a session error")
}

func TestValidateFailureAfterAuthenticatedSurfacesError(t *testing.T) {
	api := newFakeAPI()
	s := NewStore(api)
	require.NoError(t, s.Login(context.Background(), "admin", "admin123"))

	api.mu.Lock()
	api.validateErr = sessionInvalidErr()
	api.mu.Unlock()

	require.Error(t, s.Validate(context.Background()))

	state := s.State()
	assert.False(t, state.IsAuthenticated)
	assert.Nil(t, state.User)
	assert.NotEmpty(t, state.Err)
}

func TestLogoutAtomicClear(t *testing.T) {
	api := newFakeAPI()
	s := NewStore(api)
	require.NoError(t, s.Login(context.Background(), "admin", "admin123"))

	updates, cancel := s.Subscribe()
	defer cancel()

	s.Logout(context.Background())

	// The very first snapshot after logout already has everything
	// cleared; no partially-cleared state is observable.
	select {
	case snap := <-updates:
		assert.Nil(t, snap.User)
		assert.False(t, snap.IsAuthenticated)
		assert.Empty(t, snap.Err)
		assert.Empty(t, snap.CSRFToken)
		assert.False(t, snap.IsLoading)
	case <-time.After(time.Second):
		t.Fatal("no snapshot after logout")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&api.logoutCalls))
}

func TestStaleValidateResponseDiscardedAfterLogout(t *testing.T) {
	api := newFakeAPI()
	s := NewStore(api)
	require.NoError(t, s.Login(context.Background(), "admin", "admin123"))

	gate := make(chan struct{})
	api.mu.Lock()
	api.validateUser = api.loginUser
	api.validateGate = gate
	api.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Validate(context.Background())
	}()

	// Give the validate call time to get in flight, then log out.
	time.Sleep(20 * time.Millisecond)
	s.Logout(context.Background())
	require.False(t, s.State().IsAuthenticated)

	// Release the in-flight validate; its success must not resurrect
	// the cleared session.
	close(gate)
	<-done

	state := s.State()
	assert.False(t, state.IsAuthenticated, "stale validate response resurrected authenticated state")
	assert.Nil(t, state.User)
}

func TestNewerLoginWinsOverInFlightValidate(t *testing.T) {
	api := newFakeAPI()
	s := NewStore(api)
	require.NoError(t, s.Login(context.Background(), "admin", "admin123"))

	gate := make(chan struct{})
	api.mu.Lock()
	api.validateErr = sessionInvalidErr()
	api.validateGate = gate
	api.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Validate(context.Background())
	}()
	time.Sleep(20 * time.Millisecond)

	// A fresh login starts while the failing validate is in flight.
	api.mu.Lock()
	api.validateGate = nil
	api.mu.Unlock()
	require.NoError(t, s.Login(context.Background(), "admin", "admin123"))

	close(gate)
	<-done

	// The stale failure must not tear down the newer session.
	state := s.State()
	assert.True(t, state.IsAuthenticated)
	require.NotNil(t, state.User)
	assert.Equal(t, "admin", state.User.Username)
}

func TestRegisterNeverAuthenticates(t *testing.T) {
	api := newFakeAPI()
	s := NewStore(api)

	require.NoError(t, s.Register(context.Background(), Registration{
		Username: "carol", Email: "carol@example.com",
		Password: "carolpass1", ConfirmPassword: "carolpass1",
	}))

	state := s.State()
	assert.False(t, state.IsAuthenticated)
	assert.Nil(t, state.User)
	assert.False(t, state.IsLoading)
	assert.Empty(t, state.Err)
}

func TestRegisterFieldErrorStaysOutOfGlobalError(t *testing.T) {
	api := newFakeAPI()
	api.registerErr = &APIError{Status: 400, Code: "VALIDATION_ERROR", Field: "password", Message: "password must be at least 8 characters long"}
	s := NewStore(api)

	err := s.Register(context.Background(), Registration{Username: "carol", Password: "abc", ConfirmPassword: "abc"})
	require.Error(t, err)

	// The field error belongs to the form; the global error stays empty.
	assert.Empty(t, s.State().Err)
}

func TestRepeatedFailuresAreIdempotent(t *testing.T) {
	api := newFakeAPI()
	api.loginErr = &APIError{Status: 401, Code: "INVALID_CREDENTIALS", Message: "invalid username or password"}
	s := NewStore(api)

	for i := 0; i < 3; i++ {
		require.Error(t, s.Login(context.Background(), "admin", "nope"))
	}
	state := s.State()
	assert.False(t, state.IsAuthenticated)
	assert.Equal(t, "invalid username or password", state.Err)
}

func TestServerErrorIsGeneric(t *testing.T) {
	api := newFakeAPI()
	api.loginErr = &APIError{Status: 500, Code: "SERVER_ERROR", Message: "pq: duplicate key value violates unique constraint"}
	s := NewStore(api)

	require.Error(t, s.Login(context.Background(), "admin", "admin123"))
	// Raw backend detail never reaches the surfaced error.
	assert.Equal(t, "server error, please try again", s.State().Err)
}
