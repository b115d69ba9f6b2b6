package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/afftrack/afftrack/internal/model"
	"github.com/afftrack/afftrack/internal/tracking"
)

const clickColumns = `
	id, campaign_id, ip_address, user_agent, referrer,
	sub1, sub2, sub3, sub4, sub5,
	landing_page_id, offer_id, traffic_source_id,
	visitor_hash, is_valid, fraud_score,
	created_at, conversion_type, converted_at
`

// SaveClick inserts a new click.
func (r *Repository) SaveClick(ctx context.Context, click *model.Click) error {
	query := `
		INSERT INTO clicks (` + clickColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	_, err := r.pool.Exec(ctx, query,
		click.ID,
		click.CampaignID,
		nullableString(click.IPAddress),
		nullableString(click.UserAgent),
		nullableString(click.Referrer),
		nullableString(click.Sub1),
		nullableString(click.Sub2),
		nullableString(click.Sub3),
		nullableString(click.Sub4),
		nullableString(click.Sub5),
		nullableString(click.LandingPageID),
		nullableString(click.OfferID),
		nullableString(click.TrafficSourceID),
		nullableString(click.VisitorHash),
		click.IsValid,
		click.FraudScore,
		click.CreatedAt,
		nullableString(click.ConversionType),
		click.ConvertedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert click: %w", err)
	}
	return nil
}

// GetClickByID retrieves a click by its id.
func (r *Repository) GetClickByID(ctx context.Context, id string) (*model.Click, error) {
	query := `SELECT ` + clickColumns + ` FROM clicks WHERE id = $1`

	click, err := scanClick(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tracking.ErrClickNotFound
		}
		return nil, fmt.Errorf("failed to get click: %w", err)
	}
	return click, nil
}

// ListClicks retrieves clicks matching the filter, newest first.
func (r *Repository) ListClicks(ctx context.Context, filter model.ClickFilter) ([]*model.Click, error) {
	query := `SELECT ` + clickColumns + ` FROM clicks WHERE 1=1`
	args := []any{}
	argIndex := 1

	if filter.CampaignID != "" {
		query += fmt.Sprintf(" AND campaign_id = $%d", argIndex)
		args = append(args, filter.CampaignID)
		argIndex++
	}
	if filter.IsValid != nil {
		query += fmt.Sprintf(" AND is_valid = $%d", argIndex)
		args = append(args, *filter.IsValid)
		argIndex++
	}
	if filter.CreatedAfter != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIndex)
		args = append(args, *filter.CreatedAfter)
		argIndex++
	}
	if filter.CreatedBefore != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIndex)
		args = append(args, *filter.CreatedBefore)
		argIndex++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query clicks: %w", err)
	}
	defer rows.Close()

	var clicks []*model.Click
	for rows.Next() {
		click, err := scanClick(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan click: %w", err)
		}
		clicks = append(clicks, click)
	}
	return clicks, rows.Err()
}

// MarkClickConverted records the conversion linkage on a click. The
// validity flag and fraud score are never updated here.
func (r *Repository) MarkClickConverted(ctx context.Context, clickID string, conversionType model.ConversionType, at time.Time) error {
	query := `
		UPDATE clicks
		SET conversion_type = $2, converted_at = $3
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, clickID, string(conversionType), at)
	if err != nil {
		return fmt.Errorf("failed to mark click converted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tracking.ErrClickNotFound
	}
	return nil
}

// scanClick scans a row into a Click.
func scanClick(row pgx.Row) (*model.Click, error) {
	var click model.Click
	var ip, ua, referrer, sub1, sub2, sub3, sub4, sub5 *string
	var landing, offer, source, visitorHash, convType *string

	err := row.Scan(
		&click.ID,
		&click.CampaignID,
		&ip, &ua, &referrer,
		&sub1, &sub2, &sub3, &sub4, &sub5,
		&landing, &offer, &source,
		&visitorHash,
		&click.IsValid,
		&click.FraudScore,
		&click.CreatedAt,
		&convType,
		&click.ConvertedAt,
	)
	if err != nil {
		return nil, err
	}

	click.IPAddress = deref(ip)
	click.UserAgent = deref(ua)
	click.Referrer = deref(referrer)
	click.Sub1 = deref(sub1)
	click.Sub2 = deref(sub2)
	click.Sub3 = deref(sub3)
	click.Sub4 = deref(sub4)
	click.Sub5 = deref(sub5)
	click.LandingPageID = deref(landing)
	click.OfferID = deref(offer)
	click.TrafficSourceID = deref(source)
	click.VisitorHash = deref(visitorHash)
	click.ConversionType = deref(convType)

	return &click, nil
}

// nullableString returns nil for empty strings.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
