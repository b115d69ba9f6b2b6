package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/afftrack/afftrack/internal/handler/dto"
	"github.com/afftrack/afftrack/internal/model"
	"github.com/afftrack/afftrack/internal/postback"
	"github.com/afftrack/afftrack/internal/tracking"
)

// PostbackEnqueuer queues a conversion for asynchronous postback
// delivery.
type PostbackEnqueuer interface {
	Enqueue(ctx context.Context, conversion *model.Conversion) error
}

// ConversionHandler handles conversion tracking requests.
type ConversionHandler struct {
	tracker *tracking.ConversionService
	queue   PostbackEnqueuer
	logger  *slog.Logger
}

// NewConversionHandler creates a ConversionHandler. queue may be nil
// when asynchronous postback dispatch is disabled.
func NewConversionHandler(tracker *tracking.ConversionService, queue PostbackEnqueuer, logger *slog.Logger) *ConversionHandler {
	return &ConversionHandler{tracker: tracker, queue: queue, logger: logger}
}

// Track handles POST /conversions/track. Duplicates are a 200 with
// status "duplicate"; only validation failures are a 400.
func (h *ConversionHandler) Track(w http.ResponseWriter, r *http.Request) {
	var req dto.TrackConversionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Request body must be valid JSON")
		return
	}

	conv, outcome, err := h.tracker.Track(r.Context(), tracking.ConversionInput{
		ClickID:        req.ClickID,
		Type:           model.ConversionType(req.ConversionType),
		Value:          req.Value,
		Currency:       req.Currency,
		OrderID:        req.OrderID,
		CampaignID:     req.CampaignID,
		OfferID:        req.OfferID,
		LandingPageID:  req.LandingPageID,
		Platform:       req.Platform,
		PlatformUserID: req.PlatformUserID,
		Test:           req.Test,
		Extra:          req.Extra,
	})
	if err != nil {
		var vErr *tracking.ValidationError
		if errors.As(err, &vErr) {
			writeJSON(w, http.StatusBadRequest, dto.ValidationErrorResponse{
				Error: vErr.Error(),
				Code:  string(vErr.Code),
				Field: vErr.Field,
			})
			return
		}
		h.logger.Error("conversion_track_failed", "click_id", req.ClickID, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		return
	}

	if outcome == tracking.OutcomeCreated && h.queue != nil && postback.ShouldTrigger(conv) {
		if err := h.queue.Enqueue(r.Context(), conv); err != nil {
			// The conversion is committed; dispatch retries independently.
			h.logger.Warn("postback_enqueue_failed", "conversion_id", conv.ID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, dto.ToConversionResponse(string(outcome), conv))
}
