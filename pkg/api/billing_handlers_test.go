package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradelink/leadexchange/pkg/audit"
	"github.com/tradelink/leadexchange/pkg/auth"
)

func signed(payload []byte) func(*http.Request) {
	return func(r *http.Request) {
		r.Header.Set(SignatureHeader, Sign([]byte(testWebhookSecret), payload))
	}
}

func TestBillingWebhook_GrantAndRevoke(t *testing.T) {
	env := newTestEnv(t)
	user := env.addUser(t, "buyer@example.com", "s3cret-pass", auth.RoleSales)

	grant := []byte(fmt.Sprintf(`{"id":"evt_1","type":"entitlement.granted","data":{"user_id":%q,"entitlement":"leads:purchase"}}`, user.ID))
	w := env.do(http.MethodPost, "/api/billing/webhook", grant, signed(grant))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"received":true}`, w.Body.String())
	assert.True(t, env.users.hasEntitlement(user.ID, auth.EntitlementLeadsPurchase))

	revoke := []byte(fmt.Sprintf(`{"id":"evt_2","type":"entitlement.revoked","data":{"user_id":%q,"entitlement":"leads:purchase"}}`, user.ID))
	w = env.do(http.MethodPost, "/api/billing/webhook", revoke, signed(revoke))
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, env.users.hasEntitlement(user.ID, auth.EntitlementLeadsPurchase))
}

func TestBillingWebhook_Signature(t *testing.T) {
	env := newTestEnv(t)
	payload := []byte(`{"id":"evt_1","type":"invoice.paid"}`)

	tests := []struct {
		name         string
		mutate       func(*http.Request)
		expectedCode int
	}{
		{"valid", signed(payload), http.StatusOK},
		{"valid with scheme prefix", func(r *http.Request) {
			r.Header.Set(SignatureHeader, "sha256="+Sign([]byte(testWebhookSecret), payload))
		}, http.StatusOK},
		{"missing", func(r *http.Request) {}, http.StatusBadRequest},
		{"wrong secret", func(r *http.Request) {
			r.Header.Set(SignatureHeader, Sign([]byte("other"), payload))
		}, http.StatusBadRequest},
		{"not hex", func(r *http.Request) { r.Header.Set(SignatureHeader, "zz") }, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/billing/webhook", payload, tt.mutate)
			assert.Equal(t, tt.expectedCode, w.Code)
		})
	}
}

func TestBillingWebhook_RawBodyReachesHandler(t *testing.T) {
	env := newTestEnv(t)

	// Not valid JSON: a body parser in front of the handler would reject it
	// with 400 before the signature check could run.
	payload := []byte(`{"id":"evt_1","type":"unknown"} trailing`)
	w := env.do(http.MethodPost, "/api/billing/webhook?attempt=2", payload, signed(payload))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"message":"Invalid payload"}`, w.Body.String())
}

func TestBillingWebhook_StoreFailure(t *testing.T) {
	env := newTestEnv(t)
	user := env.addUser(t, "buyer@example.com", "s3cret-pass", auth.RoleSales)
	env.users.err = errors.New("db down")

	payload := []byte(fmt.Sprintf(`{"type":"entitlement.granted","data":{"user_id":%q,"entitlement":"leads:view"}}`, user.ID))
	w := env.do(http.MethodPost, "/api/billing/webhook", payload, signed(payload))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestBillingWebhook_UnknownUserIsAcknowledged(t *testing.T) {
	env := newTestEnv(t)
	missing := uuid.New()

	payload := []byte(fmt.Sprintf(`{"id":"evt_9","type":"entitlement.granted","data":{"user_id":%q,"entitlement":"leads:view"}}`, missing))
	w := env.do(http.MethodPost, "/api/billing/webhook", payload, signed(payload))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"received":true}`, w.Body.String())
	assert.False(t, env.users.hasEntitlement(missing, auth.EntitlementLeadsView))
	assert.Empty(t, env.audit.ofType(audit.EventTypeEntitlementGrant))
}

func TestBillingWebhook_NoSecretConfigured(t *testing.T) {
	h := NewBillingHandlers(newMemoryUsers(), "")
	assert.False(t, h.verify([]byte("x"), Sign(nil, []byte("x"))))
}
