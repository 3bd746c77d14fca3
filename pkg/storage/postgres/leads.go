package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/tradelink/leadexchange/pkg/api"
)

// LeadStore reads the lead catalogue and records purchases
type LeadStore struct {
	pools Pools
}

// NewLeadStore creates a store
func NewLeadStore(pools Pools) *LeadStore {
	return &LeadStore{pools: pools}
}

const leadColumns = `id, title, trade, region, price_cents, posted_by, purchased_by, purchased_at, created_at`

func scanLead(row rowScanner) (*api.Lead, error) {
	var (
		l           api.Lead
		postedBy    uuid.NullUUID
		purchasedBy uuid.NullUUID
		purchasedAt sql.NullTime
	)
	if err := row.Scan(&l.ID, &l.Title, &l.Trade, &l.Region, &l.PriceCents,
		&postedBy, &purchasedBy, &purchasedAt, &l.CreatedAt); err != nil {
		return nil, err
	}
	if postedBy.Valid {
		l.PostedBy = &postedBy.UUID
	}
	if purchasedBy.Valid {
		l.PurchasedBy = &purchasedBy.UUID
	}
	if purchasedAt.Valid {
		l.PurchasedAt = &purchasedAt.Time
	}
	return &l, nil
}

// ListAvailableLeads returns unpurchased leads, newest first
func (s *LeadStore) ListAvailableLeads(ctx context.Context, limit, offset int) ([]*api.Lead, error) {
	query := `SELECT ` + leadColumns + `
		FROM leads
		WHERE purchased_by IS NULL
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := s.pools.Replica().QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list leads: %w", err)
	}
	defer rows.Close()

	leads := []*api.Lead{}
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lead: %w", err)
		}
		leads = append(leads, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list leads: %w", err)
	}
	return leads, nil
}

// PurchaseLead assigns an available lead to buyerID. The conditional
// update makes concurrent purchases of one lead race safely.
func (s *LeadStore) PurchaseLead(ctx context.Context, leadID, buyerID uuid.UUID) (*api.Lead, error) {
	query := `
		UPDATE leads
		SET purchased_by = $2, purchased_at = NOW()
		WHERE id = $1 AND purchased_by IS NULL
		RETURNING ` + leadColumns

	lead, err := scanLead(s.pools.Primary().QueryRowContext(ctx, query, leadID, buyerID))
	if err == nil {
		return lead, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to purchase lead: %w", err)
	}

	var exists bool
	if err := s.pools.Primary().QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM leads WHERE id = $1)`, leadID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to purchase lead: %w", err)
	}
	if !exists {
		return nil, api.ErrLeadNotFound
	}
	return nil, api.ErrLeadUnavailable
}
