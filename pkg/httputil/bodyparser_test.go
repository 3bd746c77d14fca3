package httputil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradelink/leadexchange/pkg/contextkeys"
)

func TestBodyParserMiddleware_JSON(t *testing.T) {
	var parsed map[string]any
	var rawBody string

	handler := BodyParserMiddleware(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parsed, _ = contextkeys.GetParsedBody(r.Context())
		b, _ := io.ReadAll(r.Body)
		rawBody = string(b)
	}))

	body := `{"email":"A@B.com","password":"x"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, parsed)
	assert.Equal(t, "A@B.com", parsed["email"])
	assert.Equal(t, body, rawBody, "handlers can still read the body")
}

func TestBodyParserMiddleware_URLEncoded(t *testing.T) {
	var email string
	var ok bool

	handler := BodyParserMiddleware(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email, ok = BodyString(r, "email")
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader("email=u%40x.com&password=p"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.True(t, ok)
	assert.Equal(t, "u@x.com", email)
}

func TestBodyParserMiddleware_SkipsWebhook(t *testing.T) {
	called := false
	handler := BodyParserMiddleware(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		_, ok := contextkeys.GetParsedBody(r.Context())
		assert.False(t, ok)
	}))

	// Malformed JSON would be rejected by the parser; the webhook must still get it.
	req := httptest.NewRequest(http.MethodPost, "/api/billing/webhook?attempt=2", strings.NewReader(`{not json`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestBodyParserMiddleware_MalformedJSON(t *testing.T) {
	handler := BodyParserMiddleware(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestBodyParserMiddleware_TooLarge(t *testing.T) {
	handler := BodyParserMiddleware(16)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"`+strings.Repeat("a", 64)+`"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestBodyParserMiddleware_NonObjectJSON(t *testing.T) {
	var parsed map[string]any
	handler := BodyParserMiddleware(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parsed, _ = contextkeys.GetParsedBody(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`["a"]`))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.NotNil(t, parsed)
	assert.Empty(t, parsed)
}

func TestBodyString_NonString(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(contextkeys.WithParsedBody(req.Context(), map[string]any{"email": 42.0}))

	_, ok := BodyString(req, "email")
	assert.False(t, ok)

	_, ok = BodyString(httptest.NewRequest(http.MethodGet, "/", nil), "email")
	assert.False(t, ok)
}
