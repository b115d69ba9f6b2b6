// Package tracking implements the click-to-conversion attribution
// pipeline: click ingestion, cloaked redirect resolution, conversion
// enrichment, deduplication, attribution and fraud evaluation.
//
// All durable state lives behind the store ports below. The pipeline
// is stateless with respect to process memory; multiple workers may
// share one store.
package tracking

import (
	"context"
	"errors"
	"time"

	"github.com/afftrack/afftrack/internal/model"
)

// Store errors. Adapters translate their engine-specific failures
// (pgx.ErrNoRows, unique violations, ...) into these.
var (
	ErrClickNotFound    = errors.New("click not found")
	ErrCampaignNotFound = errors.New("campaign not found")
	// ErrDuplicateConversion is returned by SaveConversion when the
	// write violates the order-id uniqueness constraint. The save is
	// the authoritative dedup boundary; callers treat this as the
	// duplicate outcome, not a failure.
	ErrDuplicateConversion = errors.New("duplicate conversion")
	ErrConversionNotFound  = errors.New("conversion not found")
)

// ClickStore is the persistence port for clicks.
type ClickStore interface {
	SaveClick(ctx context.Context, click *model.Click) error
	GetClickByID(ctx context.Context, id string) (*model.Click, error)
	ListClicks(ctx context.Context, filter model.ClickFilter) ([]*model.Click, error)
	// MarkClickConverted records the conversion linkage on a click. It
	// never touches the validity flag or fraud score.
	MarkClickConverted(ctx context.Context, clickID string, conversionType model.ConversionType, at time.Time) error
}

// ConversionStore is the persistence port for conversions.
type ConversionStore interface {
	// SaveConversion persists a conversion. A write violating the
	// order-id uniqueness constraint returns ErrDuplicateConversion.
	SaveConversion(ctx context.Context, conversion *model.Conversion) error
	GetConversionByID(ctx context.Context, id string) (*model.Conversion, error)
	GetConversionByOrderID(ctx context.Context, orderID string) (*model.Conversion, error)
	// RecentConversionExists reports whether a conversion with the same
	// click id and type was persisted within the trailing window.
	RecentConversionExists(ctx context.Context, clickID string, conversionType model.ConversionType, window time.Duration) (bool, error)
	// GetConversionByClickAndOrderID reports whether the click already
	// carries a conversion with the given external transaction id.
	GetConversionByClickAndOrderID(ctx context.Context, clickID, orderID string) (*model.Conversion, error)
	// GetRegistrationConversion returns the registration conversion
	// recorded for a platform user, used to resolve deposits back to
	// their click.
	GetRegistrationConversion(ctx context.Context, platform, platformUserID string) (*model.Conversion, error)
	// MarkConversionProcessed flips the processed flag after postback
	// dispatch.
	MarkConversionProcessed(ctx context.Context, id string) error
}

// CampaignStore is the read-only port for campaign routing config.
type CampaignStore interface {
	GetCampaignByID(ctx context.Context, id string) (*model.Campaign, error)
}
