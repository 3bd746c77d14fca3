package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tradelink/leadexchange/pkg/audit"
	"github.com/tradelink/leadexchange/pkg/auth"
	"github.com/tradelink/leadexchange/pkg/httputil"
	"github.com/tradelink/leadexchange/pkg/middleware"
	"github.com/tradelink/leadexchange/pkg/observability"
)

// ServerConfig collects the server's collaborators
type ServerConfig struct {
	Users           UserStore
	Leads           LeadStore
	Sessions        *auth.SessionManager // roles are re-read from Users on each request
	LoginLimiter    *middleware.LoginRateLimiter
	RegisterLimiter *middleware.RegisterRateLimiter
	Logger          *observability.Logger
	Metrics         *observability.Metrics
	Audit           audit.Logger

	WebhookSecret string
	SecureCookies bool
	MaxBodyBytes  int64
}

// Server represents our API server
type Server struct {
	router          *mux.Router
	handler         http.Handler
	logger          *observability.Logger
	metrics         *observability.Metrics
	maxBodyBytes    int64
	authHandlers    *AuthHandlers
	leadHandlers    *LeadHandlers
	billingHandlers *BillingHandlers
	sessions        *auth.SessionManager
}

// NewServer creates a new API server
func NewServer(config ServerConfig) *Server {
	if config.Logger == nil {
		config.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if config.Sessions == nil {
		config.Sessions = auth.NewSessionManager(auth.NewMemorySessionStore(10000, auth.DefaultSessionTTL), auth.DefaultSessionTTL)
	}
	if config.Users != nil {
		config.Sessions.WithRoleLookup(currentRole(config.Users))
	}
	if config.LoginLimiter == nil {
		config.LoginLimiter = middleware.NewLoginRateLimiter(nil, nil, config.Logger)
	}
	if config.RegisterLimiter == nil {
		config.RegisterLimiter = middleware.NewRegisterRateLimiter(nil, nil, config.Logger)
	}
	if config.Metrics != nil {
		config.LoginLimiter.WithMetrics(config.Metrics)
		config.RegisterLimiter.WithMetrics(config.Metrics)
	}

	s := &Server{
		router:          mux.NewRouter(),
		logger:          config.Logger,
		metrics:         config.Metrics,
		maxBodyBytes:    config.MaxBodyBytes,
		sessions:        config.Sessions,
		authHandlers:    NewAuthHandlers(config.Users, config.Sessions, config.Metrics, config.SecureCookies).WithAudit(config.Audit),
		leadHandlers:    NewLeadHandlers(config.Leads),
		billingHandlers: NewBillingHandlers(config.Users, config.WebhookSecret).WithAudit(config.Audit),
	}
	s.setupRoutes(config)
	return s
}

// setupRoutes configures all the API routes. Middleware runs outermost
// first: recovery, request id, logging, metrics, body parsing, session.
// The first three wrap the router itself because mux only runs Use
// middleware on matched routes, and unmatched requests are logged too.
func (s *Server) setupRoutes(config ServerConfig) {
	s.handler = httputil.Chain(
		httputil.RecoveryMiddleware(s.logger),
		httputil.RequestIDMiddleware,
		httputil.APILoggingMiddleware(s.logger),
	)(s.router)

	if s.metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.metrics))
	}
	s.router.Use(
		mux.MiddlewareFunc(httputil.BodyParserMiddleware(s.maxBodyBytes)),
		middleware.NewAuthMiddleware(s.sessions, true).Handler,
	)

	apiRouter := s.router.PathPrefix("/api").Subrouter()
	s.authHandlers.RegisterRoutes(apiRouter, config.LoginLimiter, config.RegisterLimiter)
	s.leadHandlers.RegisterRoutes(apiRouter, config.Users, config.Metrics)
	s.billingHandlers.RegisterRoutes(apiRouter)

	methodNotAllowed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	s.router.MethodNotAllowedHandler = methodNotAllowed
	apiRouter.MethodNotAllowedHandler = methodNotAllowed
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteMessage(w, http.StatusNotFound, "Not found")
	})
}

// currentRole reads roles from the user store so sessions follow role changes
func currentRole(users UserStore) auth.RoleLookup {
	return func(ctx context.Context, userID string) (auth.Role, error) {
		user, err := users.GetUserByID(ctx, userID)
		if err != nil {
			return auth.RoleNone, err
		}
		return user.Role, nil
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
