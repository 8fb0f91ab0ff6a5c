// Package client is the browser-side half of the auth system: an HTTP
// client for the auth endpoints, a single-owner session state machine,
// periodic/visibility-driven revalidation and a route guard. It holds
// session artifacts only in its cookie jar, never in client storage.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/Thecnfor/URAK/core"
)

// ErrNetwork marks transport-level failures. Callers surface it with a
// generic message; the raw cause stays wrapped.
var ErrNetwork = errors.New("network error")

// APIError is a structured failure returned by the auth endpoints.
type APIError struct {
	Status  int
	Code    string
	Message string
	Field   string // set for field-level validation errors
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// Registration carries the register form fields.
type Registration struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// AuthAPI is the network surface the session store drives. Split out so
// tests can substitute a fake backend.
type AuthAPI interface {
	FetchCSRF(ctx context.Context) (string, error)
	Login(ctx context.Context, username, password, csrfToken string) (core.User, string, error)
	Validate(ctx context.Context) (core.User, error)
	Logout(ctx context.Context, csrfToken string) error
	Register(ctx context.Context, reg Registration, csrfToken string) error
}

// API talks to the auth endpoints over HTTP with a cookie jar, so the
// HTTP-only session cookies round-trip exactly as they would in a
// browser context.
type API struct {
	base *url.URL
	http *http.Client
}

// NewAPI builds a client for the service at baseURL.
func NewAPI(baseURL string) (*API, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &API{
		base: u,
		http: &http.Client{
			Jar:     jar,
			Timeout: 15 * time.Second,
			// The client never follows the gate's login redirects; the
			// route guard decides navigation.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

func (a *API) FetchCSRF(ctx context.Context) (string, error) {
	var out struct {
		CSRFToken string `json:"csrfToken"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/auth/csrf", nil, "", &out); err != nil {
		return "", err
	}
	return out.CSRFToken, nil
}

func (a *API) Login(ctx context.Context, username, password, csrfToken string) (core.User, string, error) {
	body := map[string]string{"username": username, "password": password}
	var out struct {
		User      core.User `json:"user"`
		CSRFToken string    `json:"csrfToken"`
	}
	if err := a.do(ctx, http.MethodPost, "/api/auth/login", body, csrfToken, &out); err != nil {
		return core.User{}, "", err
	}
	return out.User, out.CSRFToken, nil
}

func (a *API) Validate(ctx context.Context) (core.User, error) {
	var out struct {
		User core.User `json:"user"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/auth/validate", nil, "", &out); err != nil {
		return core.User{}, err
	}
	return out.User, nil
}

func (a *API) Logout(ctx context.Context, csrfToken string) error {
	return a.do(ctx, http.MethodPost, "/api/auth/logout", map[string]string{}, csrfToken, nil)
}

func (a *API) Register(ctx context.Context, reg Registration, csrfToken string) error {
	return a.do(ctx, http.MethodPost, "/api/auth/register", reg, csrfToken, nil)
}

func (a *API) do(ctx context.Context, method, path string, body any, csrfToken string, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	u := a.base.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if csrfToken != "" {
		req.Header.Set(core.CSRFHeader, csrfToken)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode response: %v", ErrNetwork, err)
		}
	}
	return nil
}

// decodeAPIError maps the server's error envelope to an APIError. A 5xx
// or undecodable payload collapses to a generic server error so raw
// backend details never reach the UI.
func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Code: "SERVER_ERROR", Message: "server error"}
	if resp.StatusCode >= 500 {
		return apiErr
	}

	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			Field   string `json:"field"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil || envelope.Error.Code == "" {
		return apiErr
	}
	apiErr.Code = envelope.Error.Code
	apiErr.Message = envelope.Error.Message
	apiErr.Field = envelope.Error.Field
	return apiErr
}
