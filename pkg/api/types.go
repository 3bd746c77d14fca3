package api

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/tradelink/leadexchange/pkg/auth"
)

var (
	// ErrLeadNotFound is returned when a lead does not exist
	ErrLeadNotFound = errors.New("lead not found")

	// ErrLeadUnavailable is returned when a lead was already purchased
	ErrLeadUnavailable = errors.New("lead no longer available")
)

// Lead is a project posted by a builder and sold to sales accounts
type Lead struct {
	ID          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	Trade       string     `json:"trade"`
	Region      string     `json:"region"`
	PriceCents  int        `json:"price_cents"`
	PostedBy    *uuid.UUID `json:"posted_by,omitempty"`
	PurchasedBy *uuid.UUID `json:"purchased_by,omitempty"`
	PurchasedAt *time.Time `json:"purchased_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// LeadStore lists and sells leads
type LeadStore interface {
	ListAvailableLeads(ctx context.Context, limit, offset int) ([]*Lead, error)
	PurchaseLead(ctx context.Context, leadID, buyerID uuid.UUID) (*Lead, error)
}

// UserStore persists accounts and entitlements
type UserStore interface {
	CreateUser(ctx context.Context, u *auth.User) error
	GetUserByEmail(ctx context.Context, email string) (*auth.User, error)
	GetUserByID(ctx context.Context, id string) (*auth.User, error)
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash *auth.PasswordHash) error
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	GetUserProfile(ctx context.Context, userID string) (*auth.UserProfile, error)
	GrantEntitlement(ctx context.Context, userID uuid.UUID, entitlement string) error
	RevokeEntitlement(ctx context.Context, userID uuid.UUID, entitlement string) error
}
