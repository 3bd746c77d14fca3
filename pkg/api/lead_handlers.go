package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/tradelink/leadexchange/pkg/auth"
	"github.com/tradelink/leadexchange/pkg/httputil"
	"github.com/tradelink/leadexchange/pkg/middleware"
	"github.com/tradelink/leadexchange/pkg/observability"
)

const (
	defaultLeadPageSize = 50
	maxLeadPageSize     = 200
)

// LeadHandlers serves the lead catalogue to entitled accounts
type LeadHandlers struct {
	leads LeadStore
}

// NewLeadHandlers creates lead handlers
func NewLeadHandlers(leads LeadStore) *LeadHandlers {
	return &LeadHandlers{leads: leads}
}

// RegisterRoutes registers lead routes behind their entitlements
func (h *LeadHandlers) RegisterRoutes(router *mux.Router, profiles middleware.ProfileLookup, metrics *observability.Metrics) {
	view := middleware.RequireEntitlement(profiles, auth.EntitlementLeadsView, middleware.WithEntitlementMetrics(metrics))
	purchase := middleware.RequireEntitlement(profiles, auth.EntitlementLeadsPurchase, middleware.WithEntitlementMetrics(metrics))

	router.Handle("/leads", view(http.HandlerFunc(h.listLeads))).Methods("GET")
	router.Handle("/leads/{id}/purchase", purchase(http.HandlerFunc(h.purchaseLead))).Methods("POST")
}

// listLeads handles GET /api/leads
func (h *LeadHandlers) listLeads(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultLeadPageSize)
	if limit <= 0 || limit > maxLeadPageSize {
		limit = defaultLeadPageSize
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	leads, err := h.leads.ListAvailableLeads(r.Context(), limit, offset)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to list leads")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, map[string]any{
		"leads":  leads,
		"limit":  limit,
		"offset": offset,
	})
}

// purchaseLead handles POST /api/leads/{id}/purchase
func (h *LeadHandlers) purchaseLead(w http.ResponseWriter, r *http.Request) {
	idStr, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	leadID, err := uuid.Parse(idStr)
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid lead id")
		return
	}

	principal := middleware.GetPrincipal(r)
	buyerID, err := uuid.Parse(principal.ID)
	if err != nil {
		httputil.WriteUnauthorized(w, httputil.MessageUnauthenticated)
		return
	}

	lead, err := h.leads.PurchaseLead(r.Context(), leadID, buyerID)
	switch {
	case errors.Is(err, ErrLeadNotFound):
		httputil.WriteMessage(w, http.StatusNotFound, "Lead not found")
	case errors.Is(err, ErrLeadUnavailable):
		httputil.WriteConflict(w, "Lead is no longer available")
	case err != nil:
		observability.FromContext(r.Context()).WithError(err).Error("failed to purchase lead")
		httputil.WriteInternalError(w)
	default:
		observability.FromContext(r.Context()).WithField("lead_id", lead.ID.String()).Info("lead purchased")
		httputil.WriteSuccess(w, map[string]any{"lead": lead})
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
