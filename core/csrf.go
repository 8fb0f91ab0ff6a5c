package core

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"
)

// CSRFHeader is the request header compared against the csrf cookie on
// mutating protected calls (double-submit).
const CSRFHeader = "X-CSRF-Token"

// CSRFService issues random tokens bound to the browser context via a
// readable cookie. Possession of a token is never proof of
// authentication; its lifecycle is independent of the session.
type CSRFService struct {
	ttl  time.Duration
	opts cookieOptions
}

func NewCSRFService(cfg Config) *CSRFService {
	ttl := cfg.Policy.CSRFTokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CSRFService{ttl: ttl, opts: cookieOptionsFromConfig(cfg)}
}

// Issue generates a fresh token and binds it to the client via the csrf
// cookie. Re-issuing replaces the prior token; requests validated
// against the old value fail from then on.
func (s *CSRFService) Issue(w http.ResponseWriter) (string, error) {
	token, err := generateCSRFToken()
	if err != nil {
		return "", err
	}
	setCSRFCookie(w, token, s.ttl, s.opts)
	return token, nil
}

// Check compares the X-CSRF-Token header against the bound cookie in
// constant time. The cookie and header must both be present and equal.
func (s *CSRFService) Check(r *http.Request) error {
	cookie, err := r.Cookie(CSRFCookie)
	if err != nil || cookie.Value == "" {
		return ErrCSRFMismatch
	}
	header := r.Header.Get(CSRFHeader)
	if header == "" {
		return ErrCSRFMismatch
	}
	if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) != 1 {
		return ErrCSRFMismatch
	}
	return nil
}

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate csrf token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
