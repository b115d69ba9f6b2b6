package model

import "time"

// ConversionType classifies the outcome a conversion represents.
type ConversionType string

const (
	ConversionLead         ConversionType = "lead"
	ConversionSale         ConversionType = "sale"
	ConversionInstall      ConversionType = "install"
	ConversionRegistration ConversionType = "registration"
	ConversionSignup       ConversionType = "signup"
	ConversionDeposit      ConversionType = "deposit"
)

// IsValid checks if the conversion type is one of the known values.
func (t ConversionType) IsValid() bool {
	switch t {
	case ConversionLead, ConversionSale, ConversionInstall,
		ConversionRegistration, ConversionSignup, ConversionDeposit:
		return true
	}
	return false
}

// Conversion represents a monetizable or non-monetary outcome tied to a Click.
type Conversion struct {
	ID      string         `json:"id"` // ULID (time-sortable)
	ClickID string         `json:"click_id"`
	Type    ConversionType `json:"conversion_type"`

	// Monetary value, zero when the conversion is non-monetary.
	Value    float64 `json:"conversion_value"`
	Currency string  `json:"currency,omitempty"`

	// External order/transaction id. At most one conversion may exist
	// per non-empty order id; the storage layer enforces uniqueness.
	OrderID string `json:"order_id,omitempty"`

	// Copied or inherited from the click.
	CampaignID    string `json:"campaign_id,omitempty"`
	OfferID       string `json:"offer_id,omitempty"`
	LandingPageID string `json:"landing_page_id,omitempty"`

	Metadata ConversionMetadata `json:"metadata"`

	// Processed flips to true exactly once, after postback dispatch.
	Processed bool `json:"processed"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AttributionResult describes how a conversion was credited to its click.
type AttributionResult struct {
	Model            string  `json:"model"` // always "last_click"
	Confidence       float64 `json:"confidence"`
	TimeToConversion float64 `json:"time_to_conversion_seconds"`
	Touchpoints      int     `json:"touchpoints"`
}

// FraudSignal is the outcome of the fraud rule chain.
type FraudSignal struct {
	Reason       string `json:"reason"`
	IsFraudulent bool   `json:"is_fraudulent"`
}

// Fraud signal reason codes, in rule-chain order.
const (
	FraudReasonInvalidClick   = "conversion_from_invalid_click"
	FraudReasonHighScoreClick = "high_fraud_score_click"
	FraudReasonHighValue      = "unusually_high_value"
	FraudReasonFastConversion = "suspiciously_fast_conversion"
)

// ConversionMetadata is the typed metadata attached to a conversion.
// Fixed fields cover the attribution pipeline; Extra is an open
// side-map for platform-specific fields.
type ConversionMetadata struct {
	Attribution *AttributionResult `json:"attribution,omitempty"`
	Fraud       *FraudSignal       `json:"fraud,omitempty"`

	// Click context frozen at enrichment time.
	IPAddress       string     `json:"ip_address,omitempty"`
	UserAgent       string     `json:"user_agent,omitempty"`
	Referrer        string     `json:"referrer,omitempty"`
	Sub1            string     `json:"sub1,omitempty"`
	Sub2            string     `json:"sub2,omitempty"`
	Sub3            string     `json:"sub3,omitempty"`
	Sub4            string     `json:"sub4,omitempty"`
	Sub5            string     `json:"sub5,omitempty"`
	ClickCreatedAt  *time.Time `json:"click_created_at,omitempty"`
	ClickFraudScore float64    `json:"click_fraud_score,omitempty"`

	// Gaming-platform fields.
	Platform       string `json:"platform,omitempty"`
	PlatformUserID string `json:"platform_user_id,omitempty"`
	PaymentMethod  string `json:"payment_method,omitempty"`
	FirstDeposit   bool   `json:"first_deposit,omitempty"`

	// Test conversions never trigger postbacks.
	Test bool `json:"test,omitempty"`

	Extra map[string]string `json:"extra,omitempty"`
}

// IsFraudulent reports whether the fraud rule chain flagged the conversion.
func (c *Conversion) IsFraudulent() bool {
	return c.Metadata.Fraud != nil && c.Metadata.Fraud.IsFraudulent
}

// IsTest reports whether the conversion is marked as a test conversion.
func (c *Conversion) IsTest() bool {
	return c.Metadata.Test
}
