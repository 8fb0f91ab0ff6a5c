package core

import (
	"encoding/json"
	"net/http"
	"testing"
)

func TestLoginRoundTrip(t *testing.T) {
	s := newTestServer(t)
	token, csrfCookie := s.fetchCSRF(t)

	w := s.do(t, http.MethodPost, "/api/auth/login",
		`{"username":"admin","password":"admin123"}`,
		[]*http.Cookie{csrfCookie}, map[string]string{CSRFHeader: token})
	if w.Code != http.StatusOK {
		t.Fatalf("login: status %d body %s", w.Code, w.Body.String())
	}

	var out struct {
		User      User   `json:"user"`
		CSRFToken string `json:"csrfToken"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.User.Username != "admin" || out.User.Role != RoleAdmin {
		t.Fatalf("unexpected user: %+v", out.User)
	}
	if out.CSRFToken == "" || out.CSRFToken == token {
		t.Fatal("csrf token must rotate on login")
	}

	cookies := w.Result().Cookies()
	for _, name := range []string{AuthTokenCookie, SessionIDCookie, CSRFCookie} {
		c := findCookie(cookies, name)
		if c == nil || c.Value == "" {
			t.Fatalf("cookie %s not set", name)
		}
		if name != CSRFCookie && !c.HttpOnly {
			t.Fatalf("cookie %s must be HttpOnly", name)
		}
		if name == CSRFCookie && c.HttpOnly {
			t.Fatal("csrf cookie must stay client-readable")
		}
	}
}

func TestLoginCSRFCheckedBeforeCredentials(t *testing.T) {
	s := newTestServer(t)
	_, csrfCookie := s.fetchCSRF(t)

	// Valid credentials but wrong csrf header: 403, not 200 or 401.
	w := s.do(t, http.MethodPost, "/api/auth/login",
		`{"username":"admin","password":"admin123"}`,
		[]*http.Cookie{csrfCookie}, map[string]string{CSRFHeader: "forged"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("status %d", w.Code)
	}

	// Without any csrf cookie at all: 403 too.
	w = s.do(t, http.MethodPost, "/api/auth/login",
		`{"username":"admin","password":"admin123"}`, nil, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status %d", w.Code)
	}
}

func TestLoginRejectsReissuedCSRF(t *testing.T) {
	s := newTestServer(t)
	oldToken, _ := s.fetchCSRF(t)
	// Re-issue: the new cookie replaces the old binding.
	_, newCookie := s.fetchCSRF(t)

	w := s.do(t, http.MethodPost, "/api/auth/login",
		`{"username":"admin","password":"admin123"}`,
		[]*http.Cookie{newCookie}, map[string]string{CSRFHeader: oldToken})
	if w.Code != http.StatusForbidden {
		t.Fatalf("old csrf value accepted after re-issue: status %d", w.Code)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	s := newTestServer(t)
	token, csrfCookie := s.fetchCSRF(t)

	w := s.do(t, http.MethodPost, "/api/auth/login",
		`{"username":"admin","password":"wrong"}`,
		[]*http.Cookie{csrfCookie}, map[string]string{CSRFHeader: token})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status %d", w.Code)
	}
	var out struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Error.Code != "INVALID_CREDENTIALS" {
		t.Fatalf("code: %s", out.Error.Code)
	}
	// The message must not reveal which field was wrong.
	if out.Error.Message != "invalid username or password" {
		t.Fatalf("message leaks detail: %q", out.Error.Message)
	}
}

func TestLoginMissingFields(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/api/auth/login", `{"username":"admin"}`, nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d", w.Code)
	}
}

func TestLoginLockoutAfterRepeatedFailures(t *testing.T) {
	s := newTestServer(t)
	token, csrfCookie := s.fetchCSRF(t)

	for i := 0; i < DefaultSecurityPolicy().MaxLoginAttempts; i++ {
		w := s.do(t, http.MethodPost, "/api/auth/login",
			`{"username":"admin","password":"wrong"}`,
			[]*http.Cookie{csrfCookie}, map[string]string{CSRFHeader: token})
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status %d", i, w.Code)
		}
	}

	// Even the right password is refused while locked.
	w := s.do(t, http.MethodPost, "/api/auth/login",
		`{"username":"admin","password":"admin123"}`,
		[]*http.Cookie{csrfCookie}, map[string]string{CSRFHeader: token})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("lockout: status %d", w.Code)
	}
}

func TestValidateWithSessionCookie(t *testing.T) {
	s := newTestServer(t)
	cookies, _ := s.login(t, "bob", "bobpassword")
	authCookie := findCookie(cookies, AuthTokenCookie)

	w := s.do(t, http.MethodGet, "/api/auth/validate", "", []*http.Cookie{authCookie}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}
	var out struct {
		User User `json:"user"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.User.Username != "bob" {
		t.Fatalf("user: %+v", out.User)
	}
}

func TestValidateFailureClearsCookies(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/api/auth/validate", "",
		[]*http.Cookie{{Name: AuthTokenCookie, Value: "expired-or-garbage"}}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status %d", w.Code)
	}
	for _, name := range []string{AuthTokenCookie, SessionIDCookie, CSRFCookie} {
		c := findCookie(w.Result().Cookies(), name)
		if c == nil || c.MaxAge != -1 {
			t.Fatalf("cookie %s not cleared", name)
		}
	}
}

func TestLogoutRevokesSessionAndClearsCookies(t *testing.T) {
	s := newTestServer(t)
	cookies, _ := s.login(t, "bob", "bobpassword")
	authCookie := findCookie(cookies, AuthTokenCookie)
	sidCookie := findCookie(cookies, SessionIDCookie)

	w := s.do(t, http.MethodPost, "/api/auth/logout", "{}",
		[]*http.Cookie{authCookie, sidCookie}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("logout: status %d", w.Code)
	}
	for _, name := range []string{AuthTokenCookie, SessionIDCookie, CSRFCookie} {
		c := findCookie(w.Result().Cookies(), name)
		if c == nil || c.MaxAge != -1 {
			t.Fatalf("cookie %s not cleared on logout", name)
		}
	}

	// The still-unexpired token is now revoked: the registry entry died
	// with the logout.
	w = s.do(t, http.MethodGet, "/api/auth/validate", "", []*http.Cookie{authCookie}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("revoked token accepted: status %d", w.Code)
	}
}

func TestLogoutWithoutSessionStillSucceeds(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/api/auth/logout", "{}", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
}

func TestRegisterValidationShortPassword(t *testing.T) {
	s := newTestServer(t)
	token, csrfCookie := s.fetchCSRF(t)

	w := s.do(t, http.MethodPost, "/api/auth/register",
		`{"username":"newuser","email":"new@example.com","password":"abc","confirmPassword":"abc"}`,
		[]*http.Cookie{csrfCookie}, map[string]string{CSRFHeader: token})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}
	var out struct {
		Error struct {
			Code    string `json:"code"`
			Field   string `json:"field"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Error.Code != "VALIDATION_ERROR" || out.Error.Field != "password" {
		t.Fatalf("error: %+v", out.Error)
	}
	// The account must not have been created.
	for _, name := range s.repo.Usernames() {
		if name == "newuser" {
			t.Fatal("rejected registration still created a user")
		}
	}
}

func TestRegisterDoesNotAuthenticate(t *testing.T) {
	s := newTestServer(t)
	token, csrfCookie := s.fetchCSRF(t)

	w := s.do(t, http.MethodPost, "/api/auth/register",
		`{"username":"carol","email":"carol@example.com","password":"carolpass1","confirmPassword":"carolpass1"}`,
		[]*http.Cookie{csrfCookie}, map[string]string{CSRFHeader: token})
	if w.Code != http.StatusCreated {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}
	// No session cookies issued: a separate login is required.
	if c := findCookie(w.Result().Cookies(), AuthTokenCookie); c != nil {
		t.Fatal("register must not issue a session cookie")
	}

	// And the new credentials work through the normal login path.
	cookies, _ := s.login(t, "carol", "carolpass1")
	if findCookie(cookies, AuthTokenCookie) == nil {
		t.Fatal("login after register failed to set session cookie")
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	s := newTestServer(t)
	token, csrfCookie := s.fetchCSRF(t)

	w := s.do(t, http.MethodPost, "/api/auth/register",
		`{"username":"bob","email":"bob2@example.com","password":"bobpassword","confirmPassword":"bobpassword"}`,
		[]*http.Cookie{csrfCookie}, map[string]string{CSRFHeader: token})
	if w.Code != http.StatusConflict {
		t.Fatalf("status %d", w.Code)
	}
}

func TestLogoutAllRevokesEverySession(t *testing.T) {
	s := newTestServer(t)

	// Two independent logins for the same user.
	first, csrfOne := s.login(t, "bob", "bobpassword")
	second, _ := s.login(t, "bob", "bobpassword")
	firstAuth := findCookie(first, AuthTokenCookie)
	firstCSRF := findCookie(first, CSRFCookie)
	secondAuth := findCookie(second, AuthTokenCookie)

	w := s.do(t, http.MethodPost, "/api/auth/logout-all", "{}",
		[]*http.Cookie{firstAuth, firstCSRF}, map[string]string{CSRFHeader: csrfOne})
	if w.Code != http.StatusOK {
		t.Fatalf("logout-all: status %d body %s", w.Code, w.Body.String())
	}
	var out struct {
		Revoked int64 `json:"revoked"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Revoked != 2 {
		t.Fatalf("revoked: got %d want 2", out.Revoked)
	}

	for _, c := range []*http.Cookie{firstAuth, secondAuth} {
		w = s.do(t, http.MethodGet, "/api/auth/validate", "", []*http.Cookie{c}, nil)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("session survived logout-all: status %d", w.Code)
		}
	}
}
