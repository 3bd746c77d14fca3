package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/tradelink/leadexchange/pkg/audit"
	"github.com/tradelink/leadexchange/pkg/auth"
	"github.com/tradelink/leadexchange/pkg/httputil"
	"github.com/tradelink/leadexchange/pkg/middleware"
	"github.com/tradelink/leadexchange/pkg/observability"
)

const (
	// MinPasswordLength is enforced at registration
	MinPasswordLength = 8
	// MaxPasswordLength bounds the PBKDF2 input
	MaxPasswordLength = 256

	msgInvalidCredentials = "Invalid email or password"
	msgRegistrationFailed = "Unable to complete registration"
)

// AuthHandlers handles authentication-related HTTP requests
type AuthHandlers struct {
	users         UserStore
	sessions      *auth.SessionManager
	metrics       *observability.Metrics
	secureCookies bool
	auditLog      audit.Logger
	now           func() time.Time

	dummyOnce sync.Once
	dummyHash *auth.PasswordHash
}

// NewAuthHandlers creates a new auth handlers instance
func NewAuthHandlers(users UserStore, sessions *auth.SessionManager, metrics *observability.Metrics, secureCookies bool) *AuthHandlers {
	return &AuthHandlers{
		users:         users,
		sessions:      sessions,
		metrics:       metrics,
		secureCookies: secureCookies,
		auditLog:      audit.NoOpLogger{},
		now:           time.Now,
	}
}

// WithAudit records account events to logger
func (h *AuthHandlers) WithAudit(logger audit.Logger) *AuthHandlers {
	if logger != nil {
		h.auditLog = logger
	}
	return h
}

// RegisterRoutes registers authentication routes. Login and register are
// wrapped in their rate limit policies.
func (h *AuthHandlers) RegisterRoutes(router *mux.Router, login *middleware.LoginRateLimiter, register *middleware.RegisterRateLimiter) {
	router.Handle("/auth/register", register.Handler(http.HandlerFunc(h.register))).Methods("POST")
	router.Handle("/auth/login", login.Handler(http.HandlerFunc(h.login))).Methods("POST")
	router.HandleFunc("/auth/logout", h.logout).Methods("POST")
	router.HandleFunc("/auth/me", h.me).Methods("GET")
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
	Role     string `json:"role"`
}

func (req *registerRequest) validate() (auth.Role, string) {
	email := auth.NormalizeEmail(req.Email)
	if email == "" || !strings.Contains(email, "@") || len(email) > 254 {
		return auth.RoleNone, "A valid email is required"
	}
	if len(req.Password) < MinPasswordLength {
		return auth.RoleNone, "Password must be at least 8 characters"
	}
	if len(req.Password) > MaxPasswordLength {
		return auth.RoleNone, "Password is too long"
	}

	role, err := auth.ParseRole(req.Role)
	if err != nil {
		return auth.RoleNone, "Invalid role"
	}
	if role == auth.RoleNone {
		role = auth.RoleSales
	}
	if !role.SelfAssignable() {
		return auth.RoleNone, "Invalid role"
	}
	return role, ""
}

// register handles POST /api/auth/register
func (h *AuthHandlers) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	role, problem := req.validate()
	if problem != "" {
		h.metrics.RecordAuthAttempt("register", "invalid")
		httputil.WriteBadRequest(w, problem)
		return
	}

	log := observability.FromContext(r.Context())
	start := time.Now()
	hash, err := auth.HashPassword(req.Password)
	h.metrics.ObservePasswordHash(start)
	if err != nil {
		log.WithError(err).Error("failed to hash password")
		httputil.WriteInternalError(w)
		return
	}

	user := &auth.User{
		Email:    req.Email,
		FullName: strings.TrimSpace(req.FullName),
		Role:     role,
		Password: hash,
	}
	if err := h.users.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			h.metrics.RecordAuthAttempt("register", "conflict")
			event := audit.NewEvent(r, audit.EventTypeAuthRegister, audit.EventStatusFailure)
			event.Email = auth.NormalizeEmail(req.Email)
			event.Message = "email already registered"
			recordAudit(r, h.auditLog, event)
			httputil.WriteConflict(w, msgRegistrationFailed)
			return
		}
		log.WithError(err).Error("failed to create user")
		httputil.WriteInternalError(w)
		return
	}

	h.metrics.RecordAuthAttempt("register", "success")
	event := audit.NewEvent(r, audit.EventTypeAuthRegister, audit.EventStatusSuccess)
	event.UserID = user.ID.String()
	event.Email = user.Email
	event.Metadata["role"] = string(user.Role)
	recordAudit(r, h.auditLog, event)
	log.WithField("user_id", user.ID.String()).WithField("role", string(user.Role)).Info("user registered")
	httputil.WriteCreated(w, map[string]any{"user": user})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// dummy returns a hash to verify against when the email is unknown, so
// both failure paths cost one key derivation
func (h *AuthHandlers) dummy() *auth.PasswordHash {
	h.dummyOnce.Do(func() {
		hash, err := auth.HashPassword("leadx-timing-equalizer")
		if err == nil {
			h.dummyHash = hash
		}
	})
	return h.dummyHash
}

// login handles POST /api/auth/login
func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" || len(req.Password) > MaxPasswordLength {
		httputil.WriteBadRequest(w, "Email and password are required")
		return
	}

	ctx := r.Context()
	log := observability.FromContext(ctx)

	user, err := h.users.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, auth.ErrUserNotFound) {
			log.WithError(err).Error("failed to load user")
			httputil.WriteInternalError(w)
			return
		}
		if dummy := h.dummy(); dummy != nil {
			auth.VerifyPassword(req.Password, dummy)
		}
		h.metrics.RecordAuthAttempt("login", "failure")
		h.auditLoginFailure(r, req.Email, "", "unknown_email")
		httputil.WriteUnauthorized(w, msgInvalidCredentials)
		return
	}

	start := time.Now()
	ok, err := auth.VerifyPassword(req.Password, user.Password)
	h.metrics.ObservePasswordHash(start)
	if err != nil {
		log.WithError(err).WithField("user_id", user.ID.String()).Error("stored password hash is unusable")
		httputil.WriteInternalError(w)
		return
	}
	if !ok {
		h.metrics.RecordAuthAttempt("login", "failure")
		h.auditLoginFailure(r, req.Email, user.ID.String(), "bad_password")
		httputil.WriteUnauthorized(w, msgInvalidCredentials)
		return
	}

	if auth.NeedsRehash(user.Password) {
		from := user.Password.Iterations
		if h.upgradeHash(ctx, log, user, req.Password) {
			event := audit.NewEvent(r, audit.EventTypeAuthRehash, audit.EventStatusSuccess)
			event.UserID = user.ID.String()
			event.Metadata["from_iterations"] = from
			event.Metadata["to_iterations"] = user.Password.Iterations
			recordAudit(r, h.auditLog, event)
		}
	}
	if err := h.users.TouchLastLogin(ctx, user.ID, h.now()); err != nil {
		log.WithError(err).Warn("failed to record last login")
	}

	token, session, err := h.sessions.Create(ctx, user.Principal())
	if err != nil {
		log.WithError(err).Error("failed to create session")
		httputil.WriteInternalError(w)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		MaxAge:   int(h.sessions.TTL().Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	h.metrics.RecordAuthAttempt("login", "success")
	event := audit.NewEvent(r, audit.EventTypeAuthLogin, audit.EventStatusSuccess)
	event.UserID = user.ID.String()
	event.Email = user.Email
	recordAudit(r, h.auditLog, event)
	httputil.WriteSuccess(w, map[string]any{
		"user":       user,
		"token":      token,
		"expires_at": session.ExpiresAt,
	})
}

// upgradeHash re-derives a hash stored with an outdated work factor. Failure
// is logged; the login still succeeds.
func (h *AuthHandlers) upgradeHash(ctx context.Context, log *observability.Logger, user *auth.User, password string) bool {
	hash, err := auth.HashPassword(password)
	if err == nil {
		err = h.users.UpdatePasswordHash(ctx, user.ID, hash)
	}
	if err != nil {
		log.WithError(err).WithField("user_id", user.ID.String()).Warn("failed to upgrade password hash")
		return false
	}
	user.Password = hash
	return true
}

func (h *AuthHandlers) auditLoginFailure(r *http.Request, email, userID, reason string) {
	event := audit.NewEvent(r, audit.EventTypeAuthLoginFailed, audit.EventStatusFailure)
	event.Email = auth.NormalizeEmail(email)
	event.UserID = userID
	event.Metadata["reason"] = reason
	recordAudit(r, h.auditLog, event)
}

// logout handles POST /api/auth/logout
func (h *AuthHandlers) logout(w http.ResponseWriter, r *http.Request) {
	if token, ok := middleware.SessionToken(r); ok {
		if err := h.sessions.Revoke(r.Context(), token); err != nil {
			observability.FromContext(r.Context()).WithError(err).Warn("failed to revoke session")
		}
		recordAudit(r, h.auditLog, audit.NewEvent(r, audit.EventTypeAuthLogout, audit.EventStatusSuccess))
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	httputil.WriteNoContent(w)
}

// me handles GET /api/auth/me
func (h *AuthHandlers) me(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r)
	if principal == nil {
		httputil.WriteUnauthorized(w, httputil.MessageUnauthenticated)
		return
	}

	user, err := h.users.GetUserByID(r.Context(), principal.ID)
	if errors.Is(err, auth.ErrUserNotFound) {
		httputil.WriteUnauthorized(w, httputil.MessageUnauthenticated)
		return
	}
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to load user")
		httputil.WriteInternalError(w)
		return
	}

	profile, err := h.users.GetUserProfile(r.Context(), principal.ID)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to load profile")
		httputil.WriteInternalError(w)
		return
	}
	entitlements := []string{}
	if profile != nil && profile.Entitlements != nil {
		entitlements = profile.Entitlements
	}

	httputil.WriteSuccess(w, map[string]any{
		"user":         user,
		"entitlements": entitlements,
	})
}
