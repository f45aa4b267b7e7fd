package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/foundpay/backend/internal/middleware"
	"github.com/foundpay/backend/internal/models"
)

// ClaimStore is the claim persistence the handler uses.
type ClaimStore interface {
	Create(ctx context.Context, c *models.Claim) error
	ExistsForCase(ctx context.Context, caseID, finderID uuid.UUID) (bool, error)
}

// ClaimHandler serves the /api/v1/claims endpoints. The per-day claim cap
// is enforced by middleware before requests reach it.
type ClaimHandler struct {
	Claims ClaimStore
	Cases  CaseGetter
	Logger *slog.Logger
}

type createClaimRequest struct {
	CaseID string `json:"case_id"`
}

// CreateClaim files an "I found it" claim on an active case.
func (h *ClaimHandler) CreateClaim(w http.ResponseWriter, r *http.Request) {
	var req createClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "invalid JSON"})
		return
	}
	caseID, err := uuid.Parse(req.CaseID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "invalid case_id"})
		return
	}
	finderID := middleware.UserIDFromCtx(r.Context())

	c, err := h.Cases.GetByID(r.Context(), caseID)
	if err != nil {
		h.Logger.Error("load case failed", "case_id", caseID, "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{Success: false, Message: "internal error"})
		return
	}
	if c == nil {
		writeJSON(w, http.StatusNotFound, envelope{Success: false, Message: "case not found"})
		return
	}
	if c.Status != models.CaseStatusActive {
		writeJSON(w, http.StatusConflict, envelope{Success: false, Message: "case is not open for claims"})
		return
	}
	if c.PosterID == finderID {
		writeJSON(w, http.StatusForbidden, envelope{Success: false, Message: "cannot claim your own case"})
		return
	}

	exists, err := h.Claims.ExistsForCase(r.Context(), caseID, finderID)
	if err != nil {
		h.Logger.Error("check existing claim failed", "case_id", caseID, "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{Success: false, Message: "internal error"})
		return
	}
	if exists {
		writeJSON(w, http.StatusConflict, envelope{Success: false, Message: "you already claimed this case"})
		return
	}

	claim := &models.Claim{
		ID:       uuid.New(),
		CaseID:   caseID,
		FinderID: finderID,
		Status:   models.ClaimStatusPending,
	}
	if err := h.Claims.Create(r.Context(), claim); err != nil {
		h.Logger.Error("create claim failed", "case_id", caseID, "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{Success: false, Message: "internal error"})
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Message: "claim filed", Data: claim})
}
