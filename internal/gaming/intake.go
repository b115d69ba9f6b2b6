// Package gaming implements idempotent webhook intake for gaming
// platforms (deposits and registrations). Each webhook runs a fixed
// sequence of steps; any failure is tagged with the step that failed
// and never propagates partial state past the intake boundary.
package gaming

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/afftrack/afftrack/internal/metrics"
	"github.com/afftrack/afftrack/internal/model"
	"github.com/afftrack/afftrack/internal/tracking"
)

// Stage identifies a step of the intake pipeline.
type Stage string

const (
	StageValidation     Stage = "validation"
	StageClickLookup    Stage = "click_lookup"
	StageDuplicateCheck Stage = "duplicate_check"
	StageConversion     Stage = "conversion_creation"
	StagePersistence    Stage = "persistence"
)

// StageError tags a pipeline failure with the step that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("webhook intake failed at %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// transactionIDPattern constrains external transaction ids.
var transactionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{10,50}$`)

// DepositPayload is an inbound deposit webhook.
type DepositPayload struct {
	Platform      string  `json:"platform"`
	UserID        string  `json:"user_id"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	TransactionID string  `json:"transaction_id"`
	PaymentMethod string  `json:"payment_method,omitempty"`
	FirstDeposit  bool    `json:"first_deposit,omitempty"`
	// ClickID is optional; when absent the click is resolved through
	// the registration recorded for this platform user.
	ClickID string `json:"click_id,omitempty"`
	Test    bool   `json:"test,omitempty"`
}

// RegistrationPayload is an inbound registration webhook.
type RegistrationPayload struct {
	Platform      string `json:"platform"`
	UserID        string `json:"user_id"`
	TransactionID string `json:"transaction_id"`
	ClickID       string `json:"click_id,omitempty"`
	Test          bool   `json:"test,omitempty"`
}

// Result reports the terminal state of an intake run.
type Result struct {
	Status            string            `json:"status"` // "ok" or "duplicate"
	Conversion        *model.Conversion `json:"-"`
	ConversionID      string            `json:"conversion_id,omitempty"`
	ClickID           string            `json:"click_id"`
	PostbackTriggered bool              `json:"postback_triggered"`
}

// PostbackQueue enqueues a conversion for asynchronous postback
// delivery. Enqueue failures are logged, not surfaced: the conversion
// is committed and dispatch can be retried independently.
type PostbackQueue interface {
	Enqueue(ctx context.Context, conversion *model.Conversion) error
}

// Intake runs gaming webhook pipelines.
type Intake struct {
	clicks      tracking.ClickStore
	conversions tracking.ConversionStore
	tracker     *tracking.ConversionService
	queue       PostbackQueue
	logger      *slog.Logger
	metrics     metrics.Recorder
}

// NewIntake creates an Intake. queue may be nil when asynchronous
// postback dispatch is disabled.
func NewIntake(
	clicks tracking.ClickStore,
	conversions tracking.ConversionStore,
	tracker *tracking.ConversionService,
	queue PostbackQueue,
	logger *slog.Logger,
	recorder metrics.Recorder,
) *Intake {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Intake{
		clicks:      clicks,
		conversions: conversions,
		tracker:     tracker,
		queue:       queue,
		logger:      logger.With("component", "gaming.intake"),
		metrics:     recorder,
	}
}

// HandleDeposit processes a deposit webhook:
// validate -> resolve click -> duplicate check -> create & persist a
// deposit conversion -> postback decision. Retries of the same
// transaction id return the duplicate result instead of double-crediting.
func (i *Intake) HandleDeposit(ctx context.Context, payload DepositPayload) (*Result, error) {
	if err := validateDeposit(payload); err != nil {
		i.metrics.IncWebhookIntake(payload.Platform, "failed")
		return nil, &StageError{Stage: StageValidation, Err: err}
	}

	click, err := i.resolveClick(ctx, payload.ClickID, payload.Platform, payload.UserID)
	if err != nil {
		i.metrics.IncWebhookIntake(payload.Platform, "failed")
		return nil, &StageError{Stage: StageClickLookup, Err: err}
	}

	duplicate, err := i.IsDuplicateDeposit(ctx, payload, click.ID)
	if err != nil {
		i.metrics.IncWebhookIntake(payload.Platform, "failed")
		return nil, &StageError{Stage: StageDuplicateCheck, Err: err}
	}
	if duplicate {
		i.metrics.IncWebhookIntake(payload.Platform, "duplicate")
		i.logger.Info("deposit_duplicate",
			"platform", payload.Platform,
			"transaction_id", payload.TransactionID,
			"click_id", click.ID,
		)
		return &Result{Status: "duplicate", ClickID: click.ID}, nil
	}

	currency := payload.Currency
	if currency == "" {
		currency = "USD"
	}

	conv, outcome, err := i.tracker.Track(ctx, tracking.ConversionInput{
		ClickID:        click.ID,
		Type:           model.ConversionDeposit,
		Value:          payload.Amount,
		Currency:       currency,
		OrderID:        payload.TransactionID,
		Platform:       payload.Platform,
		PlatformUserID: payload.UserID,
		PaymentMethod:  payload.PaymentMethod,
		FirstDeposit:   payload.FirstDeposit,
		Test:           payload.Test,
	})
	if err != nil {
		return nil, i.trackError(payload.Platform, err)
	}
	if outcome == tracking.OutcomeDuplicate {
		// Lost the race to a concurrent retry; the unique constraint on
		// the transaction id is the authoritative boundary.
		i.metrics.IncWebhookIntake(payload.Platform, "duplicate")
		return &Result{Status: "duplicate", ClickID: click.ID, Conversion: conv}, nil
	}

	i.metrics.IncWebhookIntake(payload.Platform, "ok")
	return i.finish(ctx, conv), nil
}

// HandleRegistration processes a registration webhook. Same shape as
// deposits, producing a non-monetary registration conversion that also
// records the platform-user binding used by later deposits.
func (i *Intake) HandleRegistration(ctx context.Context, payload RegistrationPayload) (*Result, error) {
	if err := validateRegistration(payload); err != nil {
		i.metrics.IncWebhookIntake(payload.Platform, "failed")
		return nil, &StageError{Stage: StageValidation, Err: err}
	}

	click, err := i.resolveClick(ctx, payload.ClickID, payload.Platform, payload.UserID)
	if err != nil {
		i.metrics.IncWebhookIntake(payload.Platform, "failed")
		return nil, &StageError{Stage: StageClickLookup, Err: err}
	}

	existing, err := i.conversions.GetConversionByClickAndOrderID(ctx, click.ID, payload.TransactionID)
	if err != nil && !errors.Is(err, tracking.ErrConversionNotFound) {
		i.metrics.IncWebhookIntake(payload.Platform, "failed")
		return nil, &StageError{Stage: StageDuplicateCheck, Err: err}
	}
	if existing != nil {
		i.metrics.IncWebhookIntake(payload.Platform, "duplicate")
		return &Result{Status: "duplicate", ClickID: click.ID, Conversion: existing}, nil
	}

	conv, outcome, err := i.tracker.Track(ctx, tracking.ConversionInput{
		ClickID:        click.ID,
		Type:           model.ConversionRegistration,
		OrderID:        payload.TransactionID,
		Platform:       payload.Platform,
		PlatformUserID: payload.UserID,
		Test:           payload.Test,
	})
	if err != nil {
		return nil, i.trackError(payload.Platform, err)
	}
	if outcome == tracking.OutcomeDuplicate {
		i.metrics.IncWebhookIntake(payload.Platform, "duplicate")
		return &Result{Status: "duplicate", ClickID: click.ID, Conversion: conv}, nil
	}

	i.metrics.IncWebhookIntake(payload.Platform, "ok")
	return i.finish(ctx, conv), nil
}

// IsDuplicateDeposit reports whether the click already carries a
// conversion with the payload's transaction id. This is the pre-check;
// the storage uniqueness constraint remains the final arbiter under
// concurrent retries.
func (i *Intake) IsDuplicateDeposit(ctx context.Context, payload DepositPayload, clickID string) (bool, error) {
	existing, err := i.conversions.GetConversionByClickAndOrderID(ctx, clickID, payload.TransactionID)
	if err != nil {
		if errors.Is(err, tracking.ErrConversionNotFound) {
			return false, nil
		}
		return false, err
	}
	return existing != nil, nil
}

// resolveClick finds the originating click: an explicit click id wins,
// otherwise the registration binding for the platform user is used.
func (i *Intake) resolveClick(ctx context.Context, clickID, platform, userID string) (*model.Click, error) {
	if clickID == "" {
		registration, err := i.conversions.GetRegistrationConversion(ctx, platform, userID)
		if err != nil {
			if errors.Is(err, tracking.ErrConversionNotFound) {
				return nil, fmt.Errorf("no click binding for user %q: %w", userID, tracking.ErrClickNotFound)
			}
			return nil, err
		}
		clickID = registration.ClickID
	}
	return i.clicks.GetClickByID(ctx, clickID)
}

// finish runs the postback decision for a freshly persisted conversion.
// Persistence already succeeded; nothing past this point may fail the
// intake.
func (i *Intake) finish(ctx context.Context, conv *model.Conversion) *Result {
	result := &Result{
		Status:       "ok",
		Conversion:   conv,
		ConversionID: conv.ID,
		ClickID:      conv.ClickID,
	}

	if !shouldTrigger(conv) {
		i.logger.Info("postback_skipped", "conversion_id", conv.ID, "reason", "test_conversion")
		return result
	}

	result.PostbackTriggered = true
	if i.queue != nil {
		if err := i.queue.Enqueue(ctx, conv); err != nil {
			i.logger.Warn("postback_enqueue_failed", "conversion_id", conv.ID, "error", err)
		}
	}
	return result
}

// trackError maps a tracking pipeline failure onto intake stages.
func (i *Intake) trackError(platform string, err error) error {
	i.metrics.IncWebhookIntake(platform, "failed")

	var vErr *tracking.ValidationError
	if errors.As(err, &vErr) {
		return &StageError{Stage: StageConversion, Err: err}
	}
	return &StageError{Stage: StagePersistence, Err: err}
}

// shouldTrigger mirrors the postback gate: test conversions never
// notify partners.
func shouldTrigger(conv *model.Conversion) bool {
	return !conv.IsTest()
}

func validateDeposit(payload DepositPayload) error {
	if payload.UserID == "" {
		return errors.New("user_id is required")
	}
	if payload.Amount <= 0 {
		return errors.New("amount must be positive")
	}
	if !transactionIDPattern.MatchString(payload.TransactionID) {
		return errors.New("transaction_id must match [A-Za-z0-9_-]{10,50}")
	}
	return nil
}

func validateRegistration(payload RegistrationPayload) error {
	if payload.UserID == "" {
		return errors.New("user_id is required")
	}
	if !transactionIDPattern.MatchString(payload.TransactionID) {
		return errors.New("transaction_id must match [A-Za-z0-9_-]{10,50}")
	}
	return nil
}
