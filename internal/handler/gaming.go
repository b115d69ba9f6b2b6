package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/afftrack/afftrack/internal/gaming"
	"github.com/afftrack/afftrack/internal/handler/dto"
)

// GamingHandler handles gaming platform webhooks.
type GamingHandler struct {
	intake *gaming.Intake
	logger *slog.Logger
}

// NewGamingHandler creates a GamingHandler.
func NewGamingHandler(intake *gaming.Intake, logger *slog.Logger) *GamingHandler {
	return &GamingHandler{intake: intake, logger: logger}
}

// Deposit handles POST /webhooks/gaming/deposit.
func (h *GamingHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var payload gaming.DepositPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.StageErrorResponse{
			Error: "request body must be valid JSON",
			Stage: string(gaming.StageValidation),
		})
		return
	}

	result, err := h.intake.HandleDeposit(r.Context(), payload)
	if err != nil {
		h.writeStageError(w, "deposit", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Registration handles POST /webhooks/gaming/registration.
func (h *GamingHandler) Registration(w http.ResponseWriter, r *http.Request) {
	var payload gaming.RegistrationPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.StageErrorResponse{
			Error: "request body must be valid JSON",
			Stage: string(gaming.StageValidation),
		})
		return
	}

	result, err := h.intake.HandleRegistration(r.Context(), payload)
	if err != nil {
		h.writeStageError(w, "registration", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// writeStageError reports an intake failure, naming the failing stage.
// Every intake error carries one; anything else is internal.
func (h *GamingHandler) writeStageError(w http.ResponseWriter, kind string, err error) {
	var stageErr *gaming.StageError
	if errors.As(err, &stageErr) {
		writeJSON(w, http.StatusBadRequest, dto.StageErrorResponse{
			Error: stageErr.Err.Error(),
			Stage: string(stageErr.Stage),
		})
		return
	}

	h.logger.Error("gaming_intake_failed", "webhook", kind, "error", err)
	writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
}
