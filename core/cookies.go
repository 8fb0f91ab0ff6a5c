package core

import (
	"net/http"
	"strings"
	"time"
)

// Cookie names shared between the gate, the handlers and the client SDK.
const (
	AuthTokenCookie = "auth-token"
	SessionIDCookie = "session-id"
	CSRFCookie      = "csrf-token"
)

// cookieOptions carries the flags applied to every cookie we issue.
type cookieOptions struct {
	Secure   bool
	SameSite http.SameSite
}

func cookieOptionsFromConfig(cfg Config) cookieOptions {
	return cookieOptions{
		Secure:   cfg.CookieSecure,
		SameSite: sameSiteFromString(cfg.CookieSameSite),
	}
}

// setSessionCookies writes the HTTP-only session artifacts.
func setSessionCookies(w http.ResponseWriter, sess Session, opts cookieOptions) {
	maxAge := int(time.Until(sess.ExpiresAt).Seconds())
	http.SetCookie(w, &http.Cookie{
		Name:     AuthTokenCookie,
		Value:    sess.Token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     SessionIDCookie,
		Value:    sess.SessionID,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	})
}

// setCSRFCookie writes the client-readable csrf cookie. Not HttpOnly:
// the double-submit check requires the browser context to read it back.
func setCSRFCookie(w http.ResponseWriter, token string, ttl time.Duration, opts cookieOptions) {
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: false,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	})
}

// clearSessionCookies expires all three auth cookies in one shot.
func clearSessionCookies(w http.ResponseWriter, opts cookieOptions) {
	for _, name := range []string{AuthTokenCookie, SessionIDCookie, CSRFCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: name != CSRFCookie,
			Secure:   opts.Secure,
			SameSite: opts.SameSite,
		})
	}
}

// sessionTokenFromRequest extracts the session artifact, preferring a
// bearer Authorization header over the auth cookie. Both representations
// carry the same self-contained token.
func sessionTokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(AuthTokenCookie); err == nil {
		return c.Value
	}
	return ""
}

func sameSiteFromString(v string) http.SameSite {
	switch strings.ToLower(v) {
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteStrictMode
	}
}
