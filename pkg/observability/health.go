package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultProbeTimeout bounds each dependency probe
const DefaultProbeTimeout = 2 * time.Second

// HealthChecker provides health check functionality
type HealthChecker struct {
	db           *sql.DB
	redis        *redis.Client
	version      string
	probeTimeout time.Duration
	metrics      *Metrics
}

// NewHealthChecker creates a new health checker. Either dependency may be nil.
func NewHealthChecker(db *sql.DB, redis *redis.Client) *HealthChecker {
	return &HealthChecker{
		db:           db,
		redis:        redis,
		version:      "dev",
		probeTimeout: DefaultProbeTimeout,
	}
}

// WithVersion sets the version reported by readiness
func (h *HealthChecker) WithVersion(version string) *HealthChecker {
	h.version = version
	return h
}

// WithProbeTimeout overrides the per-probe budget
func (h *HealthChecker) WithProbeTimeout(timeout time.Duration) *HealthChecker {
	if timeout > 0 {
		h.probeTimeout = timeout
	}
	return h
}

// WithMetrics records probe latency
func (h *HealthChecker) WithMetrics(metrics *Metrics) *HealthChecker {
	h.metrics = metrics
	return h
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the health of a single dependency
type DependencyStatus struct {
	Status    string        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency_ms,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Liveness returns a simple liveness probe (always returns 200 if server is running)
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now(),
	})
}

// Readiness returns a readiness probe (checks all dependencies)
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	status := h.Check(r.Context())

	w.Header().Set("Content-Type", "application/json")

	// Return 503 if unhealthy, 200 if healthy or degraded
	if status.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(status)
}

// Check performs a comprehensive health check
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now(),
		Version:      h.version,
		Dependencies: make(map[string]DependencyStatus),
	}

	if h.db != nil {
		dbStatus := h.probe(ctx, "database", h.checkDatabase)
		status.Dependencies["database"] = dbStatus
		if dbStatus.Status == StatusUnhealthy {
			status.Status = StatusUnhealthy
		} else if dbStatus.Status == StatusDegraded {
			status.Status = StatusDegraded
		}
	}

	if h.redis != nil {
		redisStatus := h.probe(ctx, "redis", h.checkRedis)
		status.Dependencies["redis"] = redisStatus
		// Redis-backed rate limits fail open, so an outage only degrades.
		if redisStatus.Status == StatusUnhealthy && status.Status != StatusUnhealthy {
			status.Status = StatusDegraded
		}
	}

	return status
}

// probe races check against a timer. A probe that outlives its budget is
// reported unhealthy instead of holding the readiness response.
func (h *HealthChecker) probe(ctx context.Context, name string, check func(context.Context) DependencyStatus) DependencyStatus {
	start := time.Now()
	probeCtx, cancel := context.WithTimeout(ctx, h.probeTimeout)
	defer cancel()

	result := make(chan DependencyStatus, 1)
	go func() {
		result <- check(probeCtx)
	}()

	timer := time.NewTimer(h.probeTimeout)
	defer timer.Stop()

	var status DependencyStatus
	select {
	case status = <-result:
	case <-timer.C:
		status = DependencyStatus{
			Status:    StatusUnhealthy,
			Message:   fmt.Sprintf("probe exceeded %s", h.probeTimeout),
			Timestamp: time.Now(),
		}
	}
	status.Latency = time.Since(start)

	if h.metrics != nil {
		h.metrics.HealthCheckDuration.WithLabelValues(name, status.Status).Observe(status.Latency.Seconds())
	}
	return status
}

// checkDatabase checks PostgreSQL health
func (h *HealthChecker) checkDatabase(ctx context.Context) DependencyStatus {
	status := DependencyStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
	}

	var one int
	if err := h.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		status.Status = StatusUnhealthy
		status.Message = "query failed: " + err.Error()
		return status
	}

	stats := h.db.Stats()
	if stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections {
		status.Status = StatusDegraded
		status.Message = "connection pool exhausted"
	}

	return status
}

// checkRedis checks Redis health
func (h *HealthChecker) checkRedis(ctx context.Context) DependencyStatus {
	status := DependencyStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
	}

	if err := h.redis.Ping(ctx).Err(); err != nil {
		status.Status = StatusUnhealthy
		status.Message = err.Error()
	}

	return status
}

// RegisterHealthRoutes registers health check endpoints
func RegisterHealthRoutes(serveMux *http.ServeMux, checker *HealthChecker) {
	serveMux.HandleFunc("/health", checker.Readiness)
	serveMux.HandleFunc("/health/live", checker.Liveness)
	serveMux.HandleFunc("/health/ready", checker.Readiness)
}
