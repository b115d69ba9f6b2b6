package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/afftrack/afftrack/internal/model"
	"github.com/afftrack/afftrack/internal/tracking"
)

const conversionColumns = `
	id, click_id, conversion_type, conversion_value, currency, order_id,
	campaign_id, offer_id, landing_page_id, metadata, processed,
	created_at, updated_at
`

// SaveConversion inserts a new conversion. A write violating the
// partial unique index on order_id returns
// tracking.ErrDuplicateConversion; that write, not the pre-check, is
// the authoritative dedup boundary.
func (r *Repository) SaveConversion(ctx context.Context, conv *model.Conversion) error {
	metadata, err := json.Marshal(conv.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO conversions (` + conversionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = r.pool.Exec(ctx, query,
		conv.ID,
		conv.ClickID,
		string(conv.Type),
		conv.Value,
		nullableString(conv.Currency),
		nullableString(conv.OrderID),
		nullableString(conv.CampaignID),
		nullableString(conv.OfferID),
		nullableString(conv.LandingPageID),
		metadata,
		conv.Processed,
		conv.CreatedAt,
		conv.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return tracking.ErrDuplicateConversion
		}
		return fmt.Errorf("failed to insert conversion: %w", err)
	}
	return nil
}

// GetConversionByID retrieves a conversion by its id.
func (r *Repository) GetConversionByID(ctx context.Context, id string) (*model.Conversion, error) {
	query := `SELECT ` + conversionColumns + ` FROM conversions WHERE id = $1`
	return r.queryConversion(ctx, query, id)
}

// GetConversionByOrderID retrieves a conversion by its external order id.
func (r *Repository) GetConversionByOrderID(ctx context.Context, orderID string) (*model.Conversion, error) {
	query := `SELECT ` + conversionColumns + ` FROM conversions WHERE order_id = $1`
	return r.queryConversion(ctx, query, orderID)
}

// GetConversionByClickAndOrderID retrieves the conversion carrying an
// external transaction id for a specific click.
func (r *Repository) GetConversionByClickAndOrderID(ctx context.Context, clickID, orderID string) (*model.Conversion, error) {
	query := `SELECT ` + conversionColumns + ` FROM conversions WHERE click_id = $1 AND order_id = $2`
	return r.queryConversion(ctx, query, clickID, orderID)
}

// RecentConversionExists reports whether a conversion with the same
// click id and type was persisted within the trailing window.
func (r *Repository) RecentConversionExists(ctx context.Context, clickID string, conversionType model.ConversionType, window time.Duration) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM conversions
			WHERE click_id = $1 AND conversion_type = $2 AND created_at >= $3
		)
	`

	cutoff := time.Now().UTC().Add(-window)

	var exists bool
	if err := r.pool.QueryRow(ctx, query, clickID, string(conversionType), cutoff).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check recent conversions: %w", err)
	}
	return exists, nil
}

// GetRegistrationConversion returns the latest registration conversion
// for a platform user.
func (r *Repository) GetRegistrationConversion(ctx context.Context, platform, platformUserID string) (*model.Conversion, error) {
	query := `
		SELECT ` + conversionColumns + `
		FROM conversions
		WHERE conversion_type = 'registration'
		  AND metadata->>'platform' = $1
		  AND metadata->>'platform_user_id' = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.queryConversion(ctx, query, platform, platformUserID)
}

// MarkConversionProcessed flips the processed flag after postback dispatch.
func (r *Repository) MarkConversionProcessed(ctx context.Context, id string) error {
	query := `UPDATE conversions SET processed = TRUE, updated_at = NOW() WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark conversion processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tracking.ErrConversionNotFound
	}
	return nil
}

func (r *Repository) queryConversion(ctx context.Context, query string, args ...any) (*model.Conversion, error) {
	conv, err := scanConversion(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tracking.ErrConversionNotFound
		}
		return nil, fmt.Errorf("failed to get conversion: %w", err)
	}
	return conv, nil
}

// scanConversion scans a row into a Conversion.
func scanConversion(row pgx.Row) (*model.Conversion, error) {
	var conv model.Conversion
	var convType string
	var currency, orderID, campaignID, offerID, landingPageID *string
	var metadata []byte

	err := row.Scan(
		&conv.ID,
		&conv.ClickID,
		&convType,
		&conv.Value,
		&currency,
		&orderID,
		&campaignID,
		&offerID,
		&landingPageID,
		&metadata,
		&conv.Processed,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	conv.Type = model.ConversionType(convType)
	conv.Currency = deref(currency)
	conv.OrderID = deref(orderID)
	conv.CampaignID = deref(campaignID)
	conv.OfferID = deref(offerID)
	conv.LandingPageID = deref(landingPageID)

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &conv.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &conv, nil
}
