package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/tradelink/leadexchange/pkg/audit"
	"github.com/tradelink/leadexchange/pkg/auth"
	"github.com/tradelink/leadexchange/pkg/httputil"
	"github.com/tradelink/leadexchange/pkg/observability"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body
const SignatureHeader = "X-Billing-Signature"

// Billing event types that change entitlements
const (
	EventEntitlementGranted = "entitlement.granted"
	EventEntitlementRevoked = "entitlement.revoked"
)

// BillingEvent is the webhook payload
type BillingEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		UserID      string `json:"user_id"`
		Entitlement string `json:"entitlement"`
	} `json:"data"`
}

// BillingHandlers receives signed events from the billing provider
type BillingHandlers struct {
	users    UserStore
	secret   []byte
	auditLog audit.Logger
}

// NewBillingHandlers creates billing handlers
func NewBillingHandlers(users UserStore, secret string) *BillingHandlers {
	return &BillingHandlers{users: users, secret: []byte(secret), auditLog: audit.NoOpLogger{}}
}

// WithAudit records entitlement changes and rejected deliveries to logger
func (h *BillingHandlers) WithAudit(logger audit.Logger) *BillingHandlers {
	if logger != nil {
		h.auditLog = logger
	}
	return h
}

// RegisterRoutes registers the webhook route
func (h *BillingHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/billing/webhook", h.HandleWebhook).Methods("POST")
}

// Sign computes the signature header value for payload
func Sign(secret, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (h *BillingHandlers) verify(payload []byte, header string) bool {
	if len(h.secret) == 0 || header == "" {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(header), "sha256="))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(payload)
	return hmac.Equal(got, mac.Sum(nil))
}

// HandleWebhook handles POST /api/billing/webhook. The signature is checked
// against the raw body, which is why body parsers skip this path.
func (h *BillingHandlers) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	log := observability.FromContext(r.Context())

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, httputil.DefaultMaxBodyBytes))
	if err != nil {
		httputil.WriteBadRequest(w, "Failed to read request body")
		return
	}

	if !h.verify(payload, r.Header.Get(SignatureHeader)) {
		log.Warn("rejected billing webhook with invalid signature")
		recordAudit(r, h.auditLog, audit.NewEvent(r, audit.EventTypeWebhookRejected, audit.EventStatusDenied))
		httputil.WriteBadRequest(w, "Invalid signature")
		return
	}

	var event BillingEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		httputil.WriteBadRequest(w, "Invalid payload")
		return
	}
	log = log.WithField("event_id", event.ID).WithField("event_type", event.Type)

	switch event.Type {
	case EventEntitlementGranted, EventEntitlementRevoked:
		userID, err := uuid.Parse(event.Data.UserID)
		if err != nil || event.Data.Entitlement == "" {
			httputil.WriteBadRequest(w, "Invalid payload")
			return
		}
		if event.Type == EventEntitlementGranted {
			err = h.users.GrantEntitlement(r.Context(), userID, event.Data.Entitlement)
		} else {
			err = h.users.RevokeEntitlement(r.Context(), userID, event.Data.Entitlement)
		}
		if errors.Is(err, auth.ErrUserNotFound) {
			// Redelivery cannot succeed, so acknowledge and drop the event
			log.WithField("user_id", userID.String()).Warn("ignoring billing event for unknown user")
			break
		}
		if err != nil {
			// A 5xx makes the provider redeliver
			log.WithError(err).Error("failed to apply billing event")
			httputil.WriteInternalError(w)
			return
		}
		log.WithField("entitlement", event.Data.Entitlement).Info("billing event applied")

		eventType := audit.EventTypeEntitlementGrant
		if event.Type == EventEntitlementRevoked {
			eventType = audit.EventTypeEntitlementRevoke
		}
		record := audit.NewEvent(r, eventType, audit.EventStatusSuccess)
		record.UserID = userID.String()
		record.Metadata["entitlement"] = event.Data.Entitlement
		record.Metadata["billing_event_id"] = event.ID
		recordAudit(r, h.auditLog, record)
	default:
		log.Debug("ignoring billing event")
	}

	httputil.WriteSuccess(w, map[string]bool{"received": true})
}
