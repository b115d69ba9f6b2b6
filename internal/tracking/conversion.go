package tracking

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/afftrack/afftrack/internal/metrics"
	"github.com/afftrack/afftrack/internal/model"
)

// DuplicateWindow is the trailing window within which a conversion
// sharing (click id, type) counts as a repeat when no order id is set.
const DuplicateWindow = 5 * time.Minute

// ValidationCode classifies a conversion payload rejection.
type ValidationCode string

const (
	ValidationMissingField  ValidationCode = "missing_field"
	ValidationInvalidType   ValidationCode = "invalid_type"
	ValidationClickNotFound ValidationCode = "click_not_found"
	ValidationInvalidValue  ValidationCode = "invalid_value"
)

// ValidationError describes why a conversion payload was rejected.
// Never retried; surfaced to callers as a 400.
type ValidationError struct {
	Code  ValidationCode
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("conversion validation failed: %s (%s)", e.Code, e.Field)
}

// ConversionInput is the inbound conversion payload.
type ConversionInput struct {
	ClickID string
	Type    model.ConversionType

	// Optional monetary value.
	Value    float64
	Currency string

	// Optional external order/transaction id.
	OrderID string

	// Optional overrides; inherited from the click when empty.
	CampaignID    string
	OfferID       string
	LandingPageID string

	// Platform-specific fields merged into metadata.
	Platform       string
	PlatformUserID string
	PaymentMethod  string
	FirstDeposit   bool
	Test           bool
	Extra          map[string]string
}

// Outcome tags the terminal state of a tracking attempt.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeDuplicate Outcome = "duplicate"
)

// ConversionService runs the conversion pipeline: validate, enrich,
// deduplicate, attribute, fraud-check, persist.
type ConversionService struct {
	clicks      ClickStore
	conversions ConversionStore
	logger      *slog.Logger
	metrics     metrics.Recorder
	now         func() time.Time
}

// NewConversionService creates a ConversionService.
func NewConversionService(clicks ClickStore, conversions ConversionStore, logger *slog.Logger, recorder metrics.Recorder) *ConversionService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &ConversionService{
		clicks:      clicks,
		conversions: conversions,
		logger:      logger.With("component", "tracking.conversion"),
		metrics:     recorder,
		now:         time.Now,
	}
}

// Track runs the full pipeline for one conversion payload.
//
// The duplicate pre-check and the save are not atomic; the store's
// uniqueness constraint on order id is the authoritative boundary. A
// save that violates it is reported as OutcomeDuplicate, not an error.
func (s *ConversionService) Track(ctx context.Context, input ConversionInput) (*model.Conversion, Outcome, error) {
	if err := validateInput(input); err != nil {
		return nil, "", err
	}

	click, err := s.clicks.GetClickByID(ctx, input.ClickID)
	if err != nil {
		if errors.Is(err, ErrClickNotFound) {
			return nil, "", &ValidationError{Code: ValidationClickNotFound, Field: "click_id"}
		}
		return nil, "", fmt.Errorf("find click: %w", err)
	}

	conv := s.enrich(input, click)

	duplicate, existing, err := s.detectDuplicate(ctx, conv)
	if err != nil {
		return nil, "", fmt.Errorf("duplicate check: %w", err)
	}
	if duplicate {
		s.metrics.IncConversionTracked("duplicate")
		return existing, OutcomeDuplicate, nil
	}

	attribution := Attribute(conv.CreatedAt, click)
	conv.Metadata.Attribution = &attribution
	conv.Metadata.Fraud = EvaluateFraud(conv, click, attribution)

	if err := s.conversions.SaveConversion(ctx, conv); err != nil {
		if errors.Is(err, ErrDuplicateConversion) {
			// Lost the race to a concurrent delivery of the same event.
			s.metrics.IncConversionTracked("duplicate")
			return nil, OutcomeDuplicate, nil
		}
		return nil, "", fmt.Errorf("save conversion: %w", err)
	}

	if err := s.clicks.MarkClickConverted(ctx, click.ID, conv.Type, conv.CreatedAt); err != nil {
		// The conversion is already committed; the linkage is advisory.
		s.logger.Warn("click_link_failed", "click_id", click.ID, "conversion_id", conv.ID, "error", err)
	}

	s.metrics.IncConversionTracked("created")
	s.logger.Info("conversion_tracked",
		"conversion_id", conv.ID,
		"click_id", conv.ClickID,
		"type", conv.Type,
		"is_fraudulent", conv.IsFraudulent(),
	)

	return conv, OutcomeCreated, nil
}

// validateInput checks payload shape before any store access.
func validateInput(input ConversionInput) error {
	if input.ClickID == "" {
		return &ValidationError{Code: ValidationMissingField, Field: "click_id"}
	}
	if input.Type == "" {
		return &ValidationError{Code: ValidationMissingField, Field: "conversion_type"}
	}
	if !input.Type.IsValid() {
		return &ValidationError{Code: ValidationInvalidType, Field: "conversion_type"}
	}
	if input.Value < 0 {
		return &ValidationError{Code: ValidationInvalidValue, Field: "conversion_value"}
	}
	if input.Value > 0 && len(input.Currency) != 3 {
		return &ValidationError{Code: ValidationInvalidValue, Field: "currency"}
	}
	return nil
}

// enrich builds the conversion from the payload and its click,
// inheriting campaign/offer/landing-page ids when not supplied and
// freezing the click context into metadata.
func (s *ConversionService) enrich(input ConversionInput, click *model.Click) *model.Conversion {
	now := s.now().UTC()

	conv := &model.Conversion{
		ID:            ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		ClickID:       click.ID,
		Type:          input.Type,
		Value:         input.Value,
		Currency:      input.Currency,
		OrderID:       input.OrderID,
		CampaignID:    input.CampaignID,
		OfferID:       input.OfferID,
		LandingPageID: input.LandingPageID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if conv.CampaignID == "" {
		conv.CampaignID = click.CampaignID
	}
	if conv.OfferID == "" {
		conv.OfferID = click.OfferID
	}
	if conv.LandingPageID == "" {
		conv.LandingPageID = click.LandingPageID
	}

	clickCreated := click.CreatedAt
	conv.Metadata = model.ConversionMetadata{
		IPAddress:       click.IPAddress,
		UserAgent:       click.UserAgent,
		Referrer:        click.Referrer,
		Sub1:            click.Sub1,
		Sub2:            click.Sub2,
		Sub3:            click.Sub3,
		Sub4:            click.Sub4,
		Sub5:            click.Sub5,
		ClickCreatedAt:  &clickCreated,
		ClickFraudScore: click.FraudScore,
		Platform:        input.Platform,
		PlatformUserID:  input.PlatformUserID,
		PaymentMethod:   input.PaymentMethod,
		FirstDeposit:    input.FirstDeposit,
		Test:            input.Test,
		Extra:           input.Extra,
	}

	return conv
}

// detectDuplicate runs the pre-save duplicate check: by order id when
// one is present, otherwise by (click id, type) within DuplicateWindow.
func (s *ConversionService) detectDuplicate(ctx context.Context, conv *model.Conversion) (bool, *model.Conversion, error) {
	if conv.OrderID != "" {
		existing, err := s.conversions.GetConversionByOrderID(ctx, conv.OrderID)
		switch {
		case err == nil:
			return true, existing, nil
		case errors.Is(err, ErrConversionNotFound):
			return false, nil, nil
		default:
			return false, nil, err
		}
	}

	exists, err := s.conversions.RecentConversionExists(ctx, conv.ClickID, conv.Type, DuplicateWindow)
	if err != nil {
		return false, nil, err
	}
	return exists, nil, nil
}
