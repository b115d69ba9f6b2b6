package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/afftrack/afftrack/internal/model"
	"github.com/afftrack/afftrack/internal/tracking"
)

// SaveCampaign inserts a campaign or updates its routing config.
func (r *Repository) SaveCampaign(ctx context.Context, campaign *model.Campaign) error {
	query := `
		INSERT INTO campaigns (id, name, offer_page_url, safe_page_url, postback_url,
		                       allowed_sources, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			offer_page_url = EXCLUDED.offer_page_url,
			safe_page_url = EXCLUDED.safe_page_url,
			postback_url = EXCLUDED.postback_url,
			allowed_sources = EXCLUDED.allowed_sources,
			active = EXCLUDED.active
	`

	_, err := r.pool.Exec(ctx, query,
		campaign.ID,
		campaign.Name,
		campaign.OfferPageURL,
		campaign.SafePageURL,
		nullableString(campaign.PostbackURL),
		pq.Array(campaign.AllowedSources),
		campaign.Active,
		campaign.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save campaign: %w", err)
	}
	return nil
}

// GetCampaignByID retrieves a campaign with its routing config.
func (r *Repository) GetCampaignByID(ctx context.Context, id string) (*model.Campaign, error) {
	query := `
		SELECT id, name, offer_page_url, safe_page_url, postback_url,
		       allowed_sources, active, created_at
		FROM campaigns
		WHERE id = $1
	`

	var campaign model.Campaign
	var postbackURL *string

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&campaign.ID,
		&campaign.Name,
		&campaign.OfferPageURL,
		&campaign.SafePageURL,
		&postbackURL,
		pq.Array(&campaign.AllowedSources),
		&campaign.Active,
		&campaign.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tracking.ErrCampaignNotFound
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	campaign.PostbackURL = deref(postbackURL)
	return &campaign, nil
}
