package core

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter constructs the Gin engine with the auth surface wired behind
// the access gate.
func NewRouter(cfg Config, auth *AuthService, validator *Validator, csrf *CSRFService, audit *AuditRecorder) *gin.Engine {
	startedAt := time.Now()
	r := gin.Default()

	opts := cookieOptionsFromConfig(cfg)

	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Content-Type", "Authorization", CSRFHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	r.Use(AccessGate(cfg, validator, csrf))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "uptime": time.Since(startedAt).String()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authAPI := r.Group("/api/auth")
	{
		authAPI.GET("/csrf", func(c *gin.Context) {
			token, err := csrf.Issue(c.Writer)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to issue csrf token")
				return
			}
			c.JSON(http.StatusOK, gin.H{"csrfToken": token})
		})

		authAPI.POST("/login", func(c *gin.Context) {
			var req struct {
				Username string `json:"username"`
				Password string `json:"password"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}
			if req.Username == "" || req.Password == "" {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "username and password are required")
				return
			}

			// The login path is public, so the gate never ran the
			// double-submit check. It still applies here, before
			// credentials are even looked at.
			if err := csrf.Check(c.Request); err != nil {
				observeCSRFReject()
				audit.Record(AuditEvent{Kind: AuditCSRFReject, Username: req.Username, ClientIP: c.ClientIP(), UserAgent: c.Request.UserAgent()})
				respondError(c, http.StatusForbidden, "CSRF_INVALID", "invalid csrf token")
				return
			}

			sess, user, err := auth.Login(c.Request.Context(), req.Username, req.Password, c.ClientIP())
			if err != nil {
				observeLogin("failure")
				audit.Record(AuditEvent{Kind: AuditLoginFailure, Username: req.Username, ClientIP: c.ClientIP(), UserAgent: c.Request.UserAgent()})
				switch {
				case errors.Is(err, ErrTooManyAttempts):
					respondError(c, http.StatusTooManyRequests, "TOO_MANY_ATTEMPTS", "too many login attempts, try again later")
				case errors.Is(err, ErrInvalidCredentials):
					respondError(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid username or password")
				default:
					respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "login failed")
				}
				return
			}

			setSessionCookies(c.Writer, sess, opts)
			// Fresh csrf token for the authenticated context; the old
			// value dies with the replaced cookie.
			newCSRF, err := csrf.Issue(c.Writer)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to rotate csrf token")
				return
			}

			observeLogin("success")
			audit.Record(AuditEvent{Kind: AuditLoginSuccess, Username: user.Username, ClientIP: c.ClientIP(), UserAgent: c.Request.UserAgent()})
			c.JSON(http.StatusOK, gin.H{"user": user, "csrfToken": newCSRF})
		})

		validateHandler := func(c *gin.Context) {
			token := sessionTokenFromRequest(c.Request)
			user, err := validator.Validate(c.Request.Context(), token)
			if err != nil {
				observeValidate("rejected")
				audit.Record(AuditEvent{Kind: AuditValidateFailure, ClientIP: c.ClientIP(), UserAgent: c.Request.UserAgent()})
				clearSessionCookies(c.Writer, opts)
				respondError(c, http.StatusUnauthorized, "SESSION_INVALID", "session is invalid or expired")
				return
			}
			observeValidate("ok")
			c.JSON(http.StatusOK, gin.H{"user": user})
		}
		authAPI.GET("/validate", validateHandler)
		authAPI.GET("/me", validateHandler)

		authAPI.POST("/logout", func(c *gin.Context) {
			if sid, err := c.Cookie(SessionIDCookie); err == nil {
				auth.Logout(c.Request.Context(), sid)
			}
			// Local cleanup is unconditional: even when redis is down or
			// the artifact is garbage the cookies die here.
			clearSessionCookies(c.Writer, opts)
			audit.Record(AuditEvent{Kind: AuditLogout, ClientIP: c.ClientIP(), UserAgent: c.Request.UserAgent()})
			c.JSON(http.StatusOK, gin.H{})
		})

		authAPI.POST("/register", func(c *gin.Context) {
			var req struct {
				Username        string `json:"username"`
				Email           string `json:"email"`
				Password        string `json:"password"`
				ConfirmPassword string `json:"confirmPassword"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}

			if err := csrf.Check(c.Request); err != nil {
				observeCSRFReject()
				respondError(c, http.StatusForbidden, "CSRF_INVALID", "invalid csrf token")
				return
			}

			user, err := auth.Register(c.Request.Context(), req.Username, req.Email, req.Password, req.ConfirmPassword)
			if err != nil {
				if ferr, ok := IsFieldError(err); ok {
					respondFieldError(c, http.StatusBadRequest, ferr)
					return
				}
				if errors.Is(err, ErrUserExists) {
					respondError(c, http.StatusConflict, "CONFLICT", "username already exists")
					return
				}
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "registration failed")
				return
			}

			audit.Record(AuditEvent{Kind: AuditRegister, Username: user.Username, ClientIP: c.ClientIP(), UserAgent: c.Request.UserAgent()})
			// Registration never authenticates; the caller logs in next.
			c.JSON(http.StatusCreated, gin.H{"user": user, "message": "registration successful, please log in"})
		})

		// Revokes every live session of the authenticated user. Not in
		// the public set, so the gate has already validated the caller.
		authAPI.POST("/logout-all", func(c *gin.Context) {
			user, ok := GateUser(c)
			if !ok {
				respondError(c, http.StatusUnauthorized, "SESSION_INVALID", "authentication required")
				return
			}
			revoked, err := auth.LogoutAll(c.Request.Context(), user.ID)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to revoke sessions")
				return
			}
			clearSessionCookies(c.Writer, opts)
			audit.Record(AuditEvent{Kind: AuditLogout, Username: user.Username, ClientIP: c.ClientIP(), UserAgent: c.Request.UserAgent(), Detail: "logout_all"})
			c.JSON(http.StatusOK, gin.H{"revoked": revoked})
		})
	}

	protected := r.Group("/api/protected")
	{
		protected.GET("/profile", func(c *gin.Context) {
			user, ok := GateUser(c)
			if !ok {
				respondError(c, http.StatusUnauthorized, "SESSION_INVALID", "authentication required")
				return
			}
			c.JSON(http.StatusOK, gin.H{"user": user})
		})
	}

	admin := r.Group("/api/admin")
	{
		admin.GET("/status", func(c *gin.Context) {
			user, _ := GateUser(c)
			c.JSON(http.StatusOK, gin.H{
				"status":     "ok",
				"uptime":     time.Since(startedAt).String(),
				"checked_by": user.Username,
			})
		})
	}

	return r
}
