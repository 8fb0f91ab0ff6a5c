package core

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
)

// ContextUserKey is where the gate stores the validated User for
// downstream handlers.
const ContextUserKey = "auth.user"

// publicPrefixes lists the paths reachable without a session artifact.
// Everything else is protected (default-deny).
var publicPrefixes = []string{
	"/login",
	"/api/auth/login",
	"/api/auth/csrf",
	"/api/auth/logout",
	"/api/auth/validate",
	"/api/auth/register",
	"/healthz",
	"/metrics",
}

// roleScopedPrefixes maps path prefixes to the role required to use
// them. Enforced server-side; the client route guard only decides what
// to render.
var roleScopedPrefixes = map[string]string{
	"/api/admin": RoleAdmin,
	"/admin":     RoleAdmin,
}

// AccessGate classifies every inbound request, enforces session and
// CSRF policy in front of all application logic and stamps security
// headers on every response. It is stateless across requests:
// correctness rests on the token's own signature/expiry and the
// csrf cookie/header pair read fresh per request.
func AccessGate(cfg Config, validator *Validator, csrf *CSRFService) gin.HandlerFunc {
	opts := cookieOptionsFromConfig(cfg)

	return func(c *gin.Context) {
		setSecurityHeaders(c)

		path := c.Request.URL.Path
		if isPublicPath(path) {
			c.Next()
			return
		}

		token := sessionTokenFromRequest(c.Request)
		if token == "" {
			rejectUnauthenticated(c, opts, path)
			return
		}

		user, err := validator.Validate(c.Request.Context(), token)
		if err != nil {
			clearSessionCookies(c.Writer, opts)
			observeValidate("rejected")
			rejectUnauthenticated(c, opts, path)
			return
		}

		if !isSafeMethod(c.Request.Method) {
			if err := csrf.Check(c.Request); err != nil {
				observeCSRFReject()
				respondError(c, http.StatusForbidden, "CSRF_INVALID", "invalid csrf token")
				c.Abort()
				return
			}
		}

		if required, ok := requiredRoleFor(path); ok && user.Role != required {
			respondError(c, http.StatusForbidden, "FORBIDDEN", "insufficient role")
			c.Abort()
			return
		}

		c.Set(ContextUserKey, user)
		c.Next()
	}
}

// setSecurityHeaders attaches the unconditional response headers on
// every branch, pass or fail.
func setSecurityHeaders(c *gin.Context) {
	h := c.Writer.Header()
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
	h.Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; script-src 'self' 'unsafe-inline'")
	h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
}

// rejectUnauthenticated answers 401 for API paths and a login redirect
// carrying the originally requested path for page paths.
func rejectUnauthenticated(c *gin.Context, opts cookieOptions, path string) {
	if strings.HasPrefix(path, "/api/") {
		respondError(c, http.StatusUnauthorized, "SESSION_INVALID", "authentication required")
		c.Abort()
		return
	}
	target := "/login?redirect=" + url.QueryEscape(path)
	c.Redirect(http.StatusFound, target)
	c.Abort()
}

func isPublicPath(path string) bool {
	for _, p := range publicPrefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

func requiredRoleFor(path string) (string, bool) {
	for prefix, role := range roleScopedPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return role, true
		}
	}
	return "", false
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}

// GateUser returns the user the gate attached to the request, if any.
func GateUser(c *gin.Context) (User, bool) {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return User{}, false
	}
	u, ok := v.(User)
	return u, ok
}
