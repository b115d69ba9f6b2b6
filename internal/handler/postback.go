package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/afftrack/afftrack/internal/handler/dto"
	"github.com/afftrack/afftrack/internal/postback"
	"github.com/afftrack/afftrack/internal/tracking"
)

// PostbackHandler triggers synchronous postback dispatch.
type PostbackHandler struct {
	sender      *postback.Sender
	conversions tracking.ConversionStore
	logger      *slog.Logger
}

// NewPostbackHandler creates a PostbackHandler.
func NewPostbackHandler(sender *postback.Sender, conversions tracking.ConversionStore, logger *slog.Logger) *PostbackHandler {
	return &PostbackHandler{sender: sender, conversions: conversions, logger: logger}
}

// Send handles POST /postbacks/send: loads the conversion and delivers
// its postback inline. Partner failures are a 502 and safe to retry;
// the conversion stays unprocessed until a delivery succeeds.
func (h *PostbackHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req dto.SendPostbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Request body must be valid JSON")
		return
	}
	if req.ConversionID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_FIELD", "conversion_id is required")
		return
	}

	conv, err := h.conversions.GetConversionByID(r.Context(), req.ConversionID)
	if err != nil {
		if errors.Is(err, tracking.ErrConversionNotFound) {
			writeError(w, http.StatusBadRequest, "CONVERSION_NOT_FOUND", "Conversion not found")
			return
		}
		h.logger.Error("postback_lookup_failed", "conversion_id", req.ConversionID, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		return
	}

	err = h.sender.Send(r.Context(), conv)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, dto.SendPostbackResponse{
			Status:       "sent",
			ConversionID: conv.ID,
		})
	case errors.Is(err, postback.ErrSkipped):
		writeJSON(w, http.StatusOK, dto.SendPostbackResponse{
			Status:       "skipped",
			ConversionID: conv.ID,
		})
	case errors.Is(err, postback.ErrNotConfigured):
		writeError(w, http.StatusBadRequest, "POSTBACK_NOT_CONFIGURED", "Campaign has no postback URL")
	case errors.Is(err, postback.ErrPartnerFailure):
		writeError(w, http.StatusBadGateway, "PARTNER_FAILURE", "Partner endpoint failed")
	default:
		h.logger.Error("postback_send_failed", "conversion_id", conv.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}
