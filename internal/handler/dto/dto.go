// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"time"

	"github.com/afftrack/afftrack/internal/model"
)

// TrackConversionRequest is the body of POST /conversions/track.
type TrackConversionRequest struct {
	ClickID        string            `json:"click_id"`
	ConversionType string            `json:"conversion_type"`
	Value          float64           `json:"conversion_value,omitempty"`
	Currency       string            `json:"currency,omitempty"`
	OrderID        string            `json:"order_id,omitempty"`
	CampaignID     string            `json:"campaign_id,omitempty"`
	OfferID        string            `json:"offer_id,omitempty"`
	LandingPageID  string            `json:"landing_page_id,omitempty"`
	Platform       string            `json:"platform,omitempty"`
	PlatformUserID string            `json:"platform_user_id,omitempty"`
	Test           bool              `json:"test,omitempty"`
	Extra          map[string]string `json:"extra,omitempty"`
}

// ConversionResponse represents a tracked conversion in API responses.
type ConversionResponse struct {
	Status       string    `json:"status"`
	ConversionID string    `json:"conversion_id,omitempty"`
	ClickID      string    `json:"click_id"`
	Type         string    `json:"conversion_type,omitempty"`
	Value        float64   `json:"conversion_value,omitempty"`
	Currency     string    `json:"currency,omitempty"`
	IsFraudulent bool      `json:"is_fraudulent"`
	FraudReason  string    `json:"fraud_reason,omitempty"`
	Confidence   float64   `json:"attribution_confidence,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

// ClickAssessmentResponse is the body of GET /v1/clicks/validate/{clickId}.
type ClickAssessmentResponse struct {
	ClickID    string  `json:"click_id"`
	IsValid    bool    `json:"is_valid"`
	FraudScore float64 `json:"fraud_score"`
	Suspicious bool    `json:"suspicious"`
	CampaignID string  `json:"campaign_id"`
}

// SendPostbackRequest is the body of POST /postbacks/send.
type SendPostbackRequest struct {
	ConversionID string `json:"conversion_id"`
}

// SendPostbackResponse reports the postback dispatch outcome.
type SendPostbackResponse struct {
	Status       string `json:"status"`
	ConversionID string `json:"conversion_id"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ValidationErrorResponse carries a field-level validation failure.
type ValidationErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field"`
}

// StageErrorResponse names the webhook intake step that failed.
type StageErrorResponse struct {
	Error string `json:"error"`
	Stage string `json:"stage"`
}

// ToConversionResponse converts a tracked conversion to its response DTO.
func ToConversionResponse(status string, conv *model.Conversion) *ConversionResponse {
	resp := &ConversionResponse{Status: status}
	if conv == nil {
		return resp
	}

	resp.ConversionID = conv.ID
	resp.ClickID = conv.ClickID
	resp.Type = string(conv.Type)
	resp.Value = conv.Value
	resp.Currency = conv.Currency
	resp.IsFraudulent = conv.IsFraudulent()
	resp.CreatedAt = conv.CreatedAt

	if conv.Metadata.Fraud != nil {
		resp.FraudReason = conv.Metadata.Fraud.Reason
	}
	if conv.Metadata.Attribution != nil {
		resp.Confidence = conv.Metadata.Attribution.Confidence
	}
	return resp
}
