// Package model defines domain entities for the application.
package model

import "time"

// Click represents a single tracking-link hit.
type Click struct {
	ID         string `json:"id"` // UUID, generated locally
	CampaignID string `json:"campaign_id"`

	// Request metadata
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Referrer  string `json:"referrer,omitempty"`

	// Opaque tracking sub-parameters carried through to conversions.
	Sub1 string `json:"sub1,omitempty"`
	Sub2 string `json:"sub2,omitempty"`
	Sub3 string `json:"sub3,omitempty"`
	Sub4 string `json:"sub4,omitempty"`
	Sub5 string `json:"sub5,omitempty"`

	LandingPageID   string `json:"landing_page_id,omitempty"`
	OfferID         string `json:"offer_id,omitempty"`
	TrafficSourceID string `json:"traffic_source_id,omitempty"`

	// Privacy-safe visitor identification: blake2b(IP + UA + daily salt)[0:16]
	VisitorHash string `json:"visitor_hash,omitempty"`

	// Assessment, set once at creation and never rewritten.
	IsValid    bool    `json:"is_valid"`
	FraudScore float64 `json:"fraud_score"` // 0.0-1.0

	CreatedAt time.Time `json:"created_at"`

	// Conversion linkage, set when a conversion is attributed.
	ConversionType string     `json:"conversion_type,omitempty"`
	ConvertedAt    *time.Time `json:"converted_at,omitempty"`
}

// Suspicious returns true if the click should be routed to the safe page.
func (c *Click) Suspicious() bool {
	return !c.IsValid || c.FraudScore > HighFraudScoreThreshold
}

// Subs returns the sub-parameters as a fixed-size slice (sub1..sub5).
func (c *Click) Subs() [5]string {
	return [5]string{c.Sub1, c.Sub2, c.Sub3, c.Sub4, c.Sub5}
}

// HighFraudScoreThreshold is the score above which a click is treated
// as fraudulent for cloaking and conversion flagging.
const HighFraudScoreThreshold = 0.7

// ClickFilter defines read-only filters for listing clicks.
type ClickFilter struct {
	CampaignID    string
	IsValid       *bool
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Limit         int
	Offset        int
}
