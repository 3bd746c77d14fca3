package api

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradelink/leadexchange/pkg/observability"
)

func TestServer_RequestID(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/auth/me", nil)
	_, err := uuid.Parse(w.Header().Get("X-Request-ID"))
	assert.NoError(t, err)

	incoming := uuid.NewString()
	w = env.do(http.MethodGet, "/api/auth/me", nil, func(r *http.Request) {
		r.Header.Set("X-Request-ID", incoming)
	})
	assert.Equal(t, incoming, w.Header().Get("X-Request-ID"))
}

func TestServer_NotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"message":"Not found"}`, w.Body.String())
}

func TestServer_LoginRejectsFormBodies(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader("email=x%40y.com&password=pw"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.RemoteAddr = "10.1.0." + string(rune('1'+i)) + ":4000"
		w := httptest.NewRecorder()
		env.server.ServeHTTP(w, req)
		// 400s never count as failures
		require.Equal(t, http.StatusBadRequest, w.Code)
	}
}

func TestServer_LogsBoundedLine(t *testing.T) {
	var buf bytes.Buffer
	server := NewServer(ServerConfig{
		Users:  newMemoryUsers(),
		Leads:  &memoryLeads{},
		Logger: observability.NewLogger(observability.InfoLevel, &buf),
	})

	w := httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/leads/"+strings.Repeat("x", 200)+"/purchase", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.JSONEq(t, `{"message":"Method not allowed"}`, w.Body.String())

	// 79 runes of the line, then the ellipsis
	assert.Contains(t, buf.String(), "GET /api/leads/"+strings.Repeat("x", 64)+"…")
	assert.NotContains(t, buf.String(), strings.Repeat("x", 65))

	w = httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
	assert.Contains(t, buf.String(), "GET /api/auth/me 401 in")
}

func TestServer_LogsUnmatchedRequests(t *testing.T) {
	var buf bytes.Buffer
	server := NewServer(ServerConfig{
		Users:  newMemoryUsers(),
		Leads:  &memoryLeads{},
		Logger: observability.NewLogger(observability.InfoLevel, &buf),
	})

	w := httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Contains(t, buf.String(), "GET /api/nope 404 in")

	w = httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/auth/login", nil))
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Contains(t, buf.String(), "DELETE /api/auth/login 405 in")
}

func TestServer_Metrics(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	server := NewServer(ServerConfig{
		Users:   newMemoryUsers(),
		Leads:   &memoryLeads{},
		Logger:  observability.NewLogger(observability.ErrorLevel, io.Discard),
		Metrics: metrics,
	})

	w := httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/leads", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/leads", "401")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.EntitlementChecksTotal.WithLabelValues("leads:view", "unauthenticated")))
}
