package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/tradelink/leadexchange/pkg/auth"
	"github.com/tradelink/leadexchange/pkg/httputil"
	"github.com/tradelink/leadexchange/pkg/observability"
)

// StoreFactory returns the store backing the named limiter
type StoreFactory func(name string) RateLimitStore

// MemoryStoreFactory gives every limiter its own in-process store
func MemoryStoreFactory(string) RateLimitStore {
	return NewMemoryStore()
}

// LoginRateLimitConfig configures the login policy
type LoginRateLimitConfig struct {
	Attempts   RateLimitConfig // every login request counts
	Failures   RateLimitConfig // only 401 responses count
	TrustProxy bool
}

// DefaultLoginRateLimitConfig allows 30 attempts and 5 failures per 15 minutes
func DefaultLoginRateLimitConfig() *LoginRateLimitConfig {
	return &LoginRateLimitConfig{
		Attempts: RateLimitConfig{Max: 30, Window: 15 * time.Minute},
		Failures: RateLimitConfig{Max: 5, Window: 15 * time.Minute},
	}
}

// RegisterRateLimitConfig configures the registration policy
type RegisterRateLimitConfig struct {
	Attempts   RateLimitConfig
	TrustProxy bool
}

// DefaultRegisterRateLimitConfig allows 12 registrations per hour
func DefaultRegisterRateLimitConfig() *RegisterRateLimitConfig {
	return &RegisterRateLimitConfig{
		Attempts: RateLimitConfig{Max: 12, Window: time.Hour},
	}
}

// authPolicy holds what the login and register policies share
type authPolicy struct {
	name       string
	trustProxy bool
	logger     *observability.Logger
	metrics    *observability.Metrics
	now        func() time.Time
}

// identifiers returns the keys a request is counted under: always the
// client IP, plus the normalized email when the body carries one.
func (p *authPolicy) identifiers(r *http.Request) []string {
	ids := []string{"ip:" + httputil.ClientIP(r, p.trustProxy)}
	if email, ok := requestEmail(r); ok {
		if normalized := auth.NormalizeEmail(email); normalized != "" {
			ids = append(ids, "email:"+normalized)
		}
	}
	return ids
}

// check evaluates every identifier and returns the longest wait among the
// blocked ones. Store failures are logged and treated as allowed.
func (p *authPolicy) check(ctx context.Context, ids []string, limiter string, eval func(string) (Decision, error)) (bool, time.Duration) {
	var (
		blocked bool
		wait    time.Duration
	)
	for _, id := range ids {
		decision, err := eval(id)
		if err != nil {
			p.storeError(ctx, limiter, err)
			continue
		}
		if !decision.Allowed {
			blocked = true
			if decision.RetryAfter > wait {
				wait = decision.RetryAfter
			}
		}
	}
	return blocked, wait
}

// log prefers the request-scoped logger installed by APILoggingMiddleware
func (p *authPolicy) log(ctx context.Context) *observability.Logger {
	if _, ok := ctx.Value(observability.LoggerKey).(*observability.Logger); ok {
		return observability.FromContext(ctx)
	}
	return p.logger
}

func (p *authPolicy) storeError(ctx context.Context, limiter string, err error) {
	p.log(ctx).
		WithError(err).
		WithField("policy", p.name).
		WithField("limiter", limiter).
		Warn("rate limit store unavailable, allowing request")
	if p.metrics != nil {
		p.metrics.RateLimitStoreErrorsTotal.WithLabelValues(p.name).Inc()
	}
}

func (p *authPolicy) reject(w http.ResponseWriter, r *http.Request, wait time.Duration) {
	if p.metrics != nil {
		p.metrics.RateLimitedTotal.WithLabelValues(p.name).Inc()
	}
	p.log(r.Context()).
		WithField("policy", p.name).
		WithField("retry_after_s", httputil.RetryAfterSeconds(wait)).
		Info("auth rate limit exceeded")
	httputil.WriteTooManyRequests(w, wait)
}

// LoginRateLimiter guards POST /api/auth/login. Every request is counted
// against the attempt limiter; only 401 responses count against the
// failure limiter, and a 200 clears it.
type LoginRateLimiter struct {
	authPolicy
	attempts *SlidingWindowRateLimiter
	failures *SlidingWindowRateLimiter
}

// NewLoginRateLimiter creates the login policy. Nil arguments select the
// defaults and in-memory stores.
func NewLoginRateLimiter(config *LoginRateLimitConfig, stores StoreFactory, logger *observability.Logger) *LoginRateLimiter {
	if config == nil {
		config = DefaultLoginRateLimitConfig()
	}
	if stores == nil {
		stores = MemoryStoreFactory
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	return &LoginRateLimiter{
		authPolicy: authPolicy{
			name:       "login",
			trustProxy: config.TrustProxy,
			logger:     logger,
			now:        time.Now,
		},
		attempts: NewSlidingWindowRateLimiter(&config.Attempts, stores("login:attempts")),
		failures: NewSlidingWindowRateLimiter(&config.Failures, stores("login:failures")),
	}
}

// WithMetrics attaches Prometheus counters
func (l *LoginRateLimiter) WithMetrics(m *observability.Metrics) *LoginRateLimiter {
	l.metrics = m
	return l
}

// Handler applies the policy around next
func (l *LoginRateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ids := l.identifiers(r)
		now := l.now()

		if blocked, wait := l.check(ctx, ids, "attempts", func(id string) (Decision, error) {
			return l.attempts.Consume(ctx, id, now)
		}); blocked {
			l.reject(w, r, wait)
			return
		}

		if blocked, wait := l.check(ctx, ids, "failures", func(id string) (Decision, error) {
			return l.failures.IsLimited(ctx, id, now)
		}); blocked {
			l.reject(w, r, wait)
			return
		}

		rec := httputil.NewStatusRecorder(w)
		next.ServeHTTP(rec, r)

		// Counted even when the client has already gone away
		l.record(context.WithoutCancel(ctx), ids, rec.StatusCode)
	})
}

func (l *LoginRateLimiter) record(ctx context.Context, ids []string, status int) {
	switch status {
	case http.StatusOK:
		for _, id := range ids {
			if err := l.failures.Reset(ctx, id); err != nil {
				l.storeError(ctx, "failures", err)
			}
		}
	case http.StatusUnauthorized:
		now := l.now()
		for _, id := range ids {
			if err := l.failures.Increment(ctx, id, now); err != nil {
				l.storeError(ctx, "failures", err)
			}
		}
	}
}

// ResetAll clears both limiters
func (l *LoginRateLimiter) ResetAll(ctx context.Context) error {
	if err := l.attempts.ResetAll(ctx); err != nil {
		return err
	}
	return l.failures.ResetAll(ctx)
}

// RegisterRateLimiter guards POST /api/auth/register
type RegisterRateLimiter struct {
	authPolicy
	attempts *SlidingWindowRateLimiter
}

// NewRegisterRateLimiter creates the registration policy
func NewRegisterRateLimiter(config *RegisterRateLimitConfig, stores StoreFactory, logger *observability.Logger) *RegisterRateLimiter {
	if config == nil {
		config = DefaultRegisterRateLimitConfig()
	}
	if stores == nil {
		stores = MemoryStoreFactory
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	return &RegisterRateLimiter{
		authPolicy: authPolicy{
			name:       "register",
			trustProxy: config.TrustProxy,
			logger:     logger,
			now:        time.Now,
		},
		attempts: NewSlidingWindowRateLimiter(&config.Attempts, stores("register:attempts")),
	}
}

// WithMetrics attaches Prometheus counters
func (l *RegisterRateLimiter) WithMetrics(m *observability.Metrics) *RegisterRateLimiter {
	l.metrics = m
	return l
}

// Handler applies the policy around next
func (l *RegisterRateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		now := l.now()

		if blocked, wait := l.check(ctx, l.identifiers(r), "attempts", func(id string) (Decision, error) {
			return l.attempts.Consume(ctx, id, now)
		}); blocked {
			l.reject(w, r, wait)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ResetAll clears the limiter
func (l *RegisterRateLimiter) ResetAll(ctx context.Context) error {
	return l.attempts.ResetAll(ctx)
}

// requestEmail reads the email field from the parsed body, falling back to
// peeking at a JSON body when BodyParserMiddleware did not run.
func requestEmail(r *http.Request) (string, bool) {
	if email, ok := httputil.BodyString(r, "email"); ok {
		return email, true
	}
	if r.Body == nil || r.Body == http.NoBody {
		return "", false
	}
	if mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mediaType != "application/json" {
		return "", false
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, httputil.DefaultMaxBodyBytes))
	r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(raw), r.Body))
	if err != nil {
		return "", false
	}

	var body struct {
		Email *string `json:"email"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || body.Email == nil {
		return "", false
	}
	return *body.Email, true
}
