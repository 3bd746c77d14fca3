package httputil

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tradelink/leadexchange/pkg/auth"
)

func TestWriteMessage(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteForbidden(rr, "Forbidden")

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"message":"Forbidden"}`, rr.Body.String())
}

func TestWriteTooManyRequests(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteTooManyRequests(rr, 90*time.Second+time.Millisecond)

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "91", rr.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"message":"Too many attempts. Please try again later."}`, rr.Body.String())
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 1, RetryAfterSeconds(0))
	assert.Equal(t, 1, RetryAfterSeconds(-time.Second))
	assert.Equal(t, 1, RetryAfterSeconds(time.Millisecond))
	assert.Equal(t, 2, RetryAfterSeconds(1500*time.Millisecond))
	assert.Equal(t, 900, RetryAfterSeconds(15*time.Minute))
}

func TestWriteInternalError_HidesDetails(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteInternalError(rr)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"message":"Internal server error"}`, rr.Body.String())
}

func TestWriteCreatedAndNoContent(t *testing.T) {
	rr := httptest.NewRecorder()
	assert.NoError(t, WriteCreated(rr, map[string]string{"id": "1"}))
	assert.Equal(t, http.StatusCreated, rr.Code)

	rr = httptest.NewRecorder()
	WriteNoContent(rr)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Body.String())
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{auth.ErrRateLimitExceeded, http.StatusTooManyRequests},
		{auth.ErrUnauthenticated, http.StatusUnauthorized},
		{fmt.Errorf("login: %w", auth.ErrInvalidCredentials), http.StatusUnauthorized},
		{auth.ErrUserNotFound, http.StatusUnauthorized},
		{auth.ErrForbidden, http.StatusForbidden},
		{auth.ErrEmailTaken, http.StatusConflict},
		{auth.ErrInvalidRole, http.StatusBadRequest},
		{errors.New("db down"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusForError(tt.err))
		})
	}
}
