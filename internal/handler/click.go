package handler

import (
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/afftrack/afftrack/internal/handler/dto"
	"github.com/afftrack/afftrack/internal/model"
	"github.com/afftrack/afftrack/internal/tracking"
)

// ClickHandler handles click ingestion and click assessment lookups.
type ClickHandler struct {
	svc    *tracking.ClickService
	logger *slog.Logger
}

// NewClickHandler creates a ClickHandler.
func NewClickHandler(svc *tracking.ClickService, logger *slog.Logger) *ClickHandler {
	return &ClickHandler{svc: svc, logger: logger}
}

// Track handles GET /v1/click: records the click and responds 302 to
// the resolved destination. cid and click_id are both required;
// missing either is a 404 so probes cannot distinguish the endpoint
// from dead routes. test_mode=1 renders a diagnostic page instead of
// redirecting.
func (h *ClickHandler) Track(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	campaignID := query.Get("cid")
	suppliedClickID := query.Get("click_id")
	if campaignID == "" || suppliedClickID == "" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found")
		return
	}

	params := tracking.ClickParams{
		CampaignID:      campaignID,
		Sub1:            query.Get("sub1"),
		Sub2:            query.Get("sub2"),
		Sub3:            query.Get("sub3"),
		Sub4:            query.Get("sub4"),
		Sub5:            query.Get("sub5"),
		LandingPageID:   query.Get("lp"),
		OfferID:         query.Get("offer"),
		TrafficSourceID: query.Get("source"),
	}
	reqCtx := tracking.RequestContext{
		IPAddress:       getClientIP(r),
		UserAgent:       r.Header.Get("User-Agent"),
		Referrer:        r.Header.Get("Referer"),
		SuppliedClickID: suppliedClickID,
	}

	click, err := h.svc.CreateClick(r.Context(), params, reqCtx)
	if err != nil {
		h.logger.Error("click_create_failed", "campaign_id", campaignID, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		return
	}

	target := h.svc.ResolveRedirect(r.Context(), click)

	if query.Get("test_mode") == "1" {
		h.renderTestPage(w, click, target)
		return
	}

	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "private, max-age=0")
	http.Redirect(w, r, target, http.StatusFound)
}

// Validate handles GET /v1/clicks/validate/{clickId}: returns the
// stored validity and fraud assessment without redirecting.
func (h *ClickHandler) Validate(w http.ResponseWriter, r *http.Request) {
	clickID := chi.URLParam(r, "clickId")

	if _, err := uuid.Parse(clickID); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ValidationErrorResponse{
			Error: "click id must be a UUID",
			Code:  "INVALID_CLICK_ID",
			Field: "click_id",
		})
		return
	}

	click, err := h.svc.FindByID(r.Context(), clickID)
	if err != nil {
		if errors.Is(err, tracking.ErrClickNotFound) {
			writeError(w, http.StatusNotFound, "CLICK_NOT_FOUND", "Click not found")
			return
		}
		h.logger.Error("click_lookup_failed", "click_id", clickID, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		return
	}

	writeJSON(w, http.StatusOK, dto.ClickAssessmentResponse{
		ClickID:    click.ID,
		IsValid:    click.IsValid,
		FraudScore: click.FraudScore,
		Suspicious: click.Suspicious(),
		CampaignID: click.CampaignID,
	})
}

// renderTestPage writes the test_mode diagnostic page.
func (h *ClickHandler) renderTestPage(w http.ResponseWriter, click *model.Click, target string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `<!DOCTYPE html>
<html><head><title>Click test mode</title></head><body>
<h1>Click recorded (test mode)</h1>
<ul>
<li>click id: %s</li>
<li>campaign id: %s</li>
<li>valid: %t</li>
<li>fraud score: %.2f</li>
<li>would redirect to: %s</li>
</ul>
</body></html>
`, click.ID, html.EscapeString(click.CampaignID), click.IsValid, click.FraudScore, html.EscapeString(target))
}
