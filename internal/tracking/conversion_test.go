package tracking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/afftrack/afftrack/internal/model"
)

func newConversionService(stores *memStores) *ConversionService {
	return NewConversionService(stores, stores, discardLogger(), nil)
}

func seedClick(stores *memStores, id string, age time.Duration) *model.Click {
	click := &model.Click{
		ID:         id,
		CampaignID: "camp-1",
		IPAddress:  "203.0.113.7",
		UserAgent:  "Mozilla/5.0",
		Sub1:       "fb",
		OfferID:    "offer-3",
		IsValid:    true,
		CreatedAt:  time.Now().UTC().Add(-age),
	}
	stores.clicks[id] = click
	return click
}

func TestConversionService_Track(t *testing.T) {
	stores := newMemStores()
	svc := newConversionService(stores)
	seedClick(stores, "click-1", time.Hour)

	conv, outcome, err := svc.Track(context.Background(), ConversionInput{
		ClickID:  "click-1",
		Type:     model.ConversionSale,
		Value:    49.99,
		Currency: "USD",
		OrderID:  "ORD-2001",
	})
	if err != nil {
		t.Fatalf("Track() error = %v", err)
	}
	if outcome != OutcomeCreated {
		t.Fatalf("outcome = %q, want created", outcome)
	}

	if conv.ID == "" {
		t.Error("conversion id not assigned")
	}
	if conv.CampaignID != "camp-1" || conv.OfferID != "offer-3" {
		t.Errorf("inherited ids = (%q, %q), want (camp-1, offer-3)", conv.CampaignID, conv.OfferID)
	}
	if conv.Metadata.Sub1 != "fb" || conv.Metadata.IPAddress != "203.0.113.7" {
		t.Error("click context not frozen into metadata")
	}
	if conv.Metadata.Attribution == nil {
		t.Fatal("attribution not computed")
	}
	if conv.Metadata.Attribution.Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0", conv.Metadata.Attribution.Confidence)
	}
	if conv.IsFraudulent() {
		t.Errorf("clean conversion flagged: %+v", conv.Metadata.Fraud)
	}

	// The click carries the linkage after a successful save.
	click, _ := stores.GetClickByID(context.Background(), "click-1")
	if click.ConversionType != "sale" || click.ConvertedAt == nil {
		t.Errorf("click linkage = (%q, %v)", click.ConversionType, click.ConvertedAt)
	}
}

func TestConversionService_Track_ExplicitOverridesWin(t *testing.T) {
	stores := newMemStores()
	svc := newConversionService(stores)
	seedClick(stores, "click-1", time.Hour)

	conv, _, err := svc.Track(context.Background(), ConversionInput{
		ClickID:    "click-1",
		Type:       model.ConversionLead,
		CampaignID: "camp-override",
	})
	if err != nil {
		t.Fatalf("Track() error = %v", err)
	}
	if conv.CampaignID != "camp-override" {
		t.Errorf("campaign id = %q, want camp-override", conv.CampaignID)
	}
	if conv.OfferID != "offer-3" {
		t.Errorf("offer id = %q, want inherited offer-3", conv.OfferID)
	}
}

func TestConversionService_Track_FastConversionFlagged(t *testing.T) {
	stores := newMemStores()
	svc := newConversionService(stores)
	seedClick(stores, "click-1", 5*time.Second)

	conv, outcome, err := svc.Track(context.Background(), ConversionInput{
		ClickID:  "click-1",
		Type:     model.ConversionSale,
		Value:    25,
		Currency: "USD",
	})
	if err != nil {
		t.Fatalf("Track() error = %v", err)
	}
	if outcome != OutcomeCreated {
		t.Fatalf("outcome = %q, want created", outcome)
	}
	if !conv.IsFraudulent() {
		t.Fatal("fast conversion not flagged")
	}
	if conv.Metadata.Fraud.Reason != model.FraudReasonFastConversion {
		t.Errorf("reason = %q, want %q", conv.Metadata.Fraud.Reason, model.FraudReasonFastConversion)
	}
}

func TestConversionService_Track_DuplicateOrderID(t *testing.T) {
	stores := newMemStores()
	svc := newConversionService(stores)
	seedClick(stores, "click-1", time.Hour)

	first, outcome, err := svc.Track(context.Background(), ConversionInput{
		ClickID:  "click-1",
		Type:     model.ConversionSale,
		Value:    10,
		Currency: "USD",
		OrderID:  "ORD-1",
	})
	if err != nil || outcome != OutcomeCreated {
		t.Fatalf("first Track() = (%q, %v)", outcome, err)
	}

	second, outcome, err := svc.Track(context.Background(), ConversionInput{
		ClickID:  "click-1",
		Type:     model.ConversionSale,
		Value:    10,
		Currency: "USD",
		OrderID:  "ORD-1",
	})
	if err != nil {
		t.Fatalf("second Track() error = %v", err)
	}
	if outcome != OutcomeDuplicate {
		t.Fatalf("outcome = %q, want duplicate", outcome)
	}
	if second == nil || second.ID != first.ID {
		t.Error("duplicate outcome did not return the existing conversion")
	}
	if len(stores.conversions) != 1 {
		t.Errorf("stored conversions = %d, want 1", len(stores.conversions))
	}
}

func TestConversionService_Track_WindowDedupWithoutOrderID(t *testing.T) {
	stores := newMemStores()
	svc := newConversionService(stores)
	seedClick(stores, "click-1", time.Hour)

	if _, outcome, err := svc.Track(context.Background(), ConversionInput{
		ClickID: "click-1",
		Type:    model.ConversionLead,
	}); err != nil || outcome != OutcomeCreated {
		t.Fatalf("first Track() = (%q, %v)", outcome, err)
	}

	// Same click and type inside the window counts as a repeat.
	if _, outcome, err := svc.Track(context.Background(), ConversionInput{
		ClickID: "click-1",
		Type:    model.ConversionLead,
	}); err != nil || outcome != OutcomeDuplicate {
		t.Fatalf("repeat Track() = (%q, %v), want duplicate", outcome, err)
	}

	// A different type on the same click is a distinct conversion.
	if _, outcome, err := svc.Track(context.Background(), ConversionInput{
		ClickID:  "click-1",
		Type:     model.ConversionSale,
		Value:    10,
		Currency: "USD",
	}); err != nil || outcome != OutcomeCreated {
		t.Fatalf("different-type Track() = (%q, %v), want created", outcome, err)
	}
}

func TestConversionService_Track_SaveRaceReportsDuplicate(t *testing.T) {
	stores := newMemStores()
	svc := newConversionService(stores)
	seedClick(stores, "click-1", time.Hour)

	// The pre-check passes but the save loses to a concurrent writer.
	stores.saveConversionErr = ErrDuplicateConversion

	conv, outcome, err := svc.Track(context.Background(), ConversionInput{
		ClickID:  "click-1",
		Type:     model.ConversionSale,
		Value:    10,
		Currency: "USD",
		OrderID:  "ORD-RACE",
	})
	if err != nil {
		t.Fatalf("Track() error = %v", err)
	}
	if outcome != OutcomeDuplicate {
		t.Errorf("outcome = %q, want duplicate", outcome)
	}
	if conv != nil {
		t.Error("raced save should not return a conversion")
	}
}

func TestConversionService_Track_Validation(t *testing.T) {
	stores := newMemStores()
	svc := newConversionService(stores)
	seedClick(stores, "click-1", time.Hour)

	tests := []struct {
		name      string
		input     ConversionInput
		wantCode  ValidationCode
		wantField string
	}{
		{
			name:      "missing click id",
			input:     ConversionInput{Type: model.ConversionSale},
			wantCode:  ValidationMissingField,
			wantField: "click_id",
		},
		{
			name:      "missing type",
			input:     ConversionInput{ClickID: "click-1"},
			wantCode:  ValidationMissingField,
			wantField: "conversion_type",
		},
		{
			name:      "unknown type",
			input:     ConversionInput{ClickID: "click-1", Type: "purchase"},
			wantCode:  ValidationInvalidType,
			wantField: "conversion_type",
		},
		{
			name:      "negative value",
			input:     ConversionInput{ClickID: "click-1", Type: model.ConversionSale, Value: -1},
			wantCode:  ValidationInvalidValue,
			wantField: "conversion_value",
		},
		{
			name:      "bad currency code",
			input:     ConversionInput{ClickID: "click-1", Type: model.ConversionSale, Value: 10, Currency: "EURO"},
			wantCode:  ValidationInvalidValue,
			wantField: "currency",
		},
		{
			name:      "unknown click",
			input:     ConversionInput{ClickID: "click-404", Type: model.ConversionSale, Value: 10, Currency: "USD"},
			wantCode:  ValidationClickNotFound,
			wantField: "click_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Track(context.Background(), tt.input)

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Track() error = %v, want *ValidationError", err)
			}
			if verr.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", verr.Code, tt.wantCode)
			}
			if verr.Field != tt.wantField {
				t.Errorf("field = %q, want %q", verr.Field, tt.wantField)
			}
		})
	}
}

func TestConversionService_Track_ZeroValueNeedsNoCurrency(t *testing.T) {
	stores := newMemStores()
	svc := newConversionService(stores)
	seedClick(stores, "click-1", time.Hour)

	if _, outcome, err := svc.Track(context.Background(), ConversionInput{
		ClickID: "click-1",
		Type:    model.ConversionRegistration,
	}); err != nil || outcome != OutcomeCreated {
		t.Fatalf("Track() = (%q, %v), want created", outcome, err)
	}
}
