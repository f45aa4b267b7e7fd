package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/foundpay/backend/internal/middleware"
	"github.com/foundpay/backend/internal/models"
	"github.com/foundpay/backend/internal/rules"
)

// CaseStore is the case persistence the handler uses.
type CaseStore interface {
	Create(ctx context.Context, c *models.Case) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Case, error)
}

// CaseHandler serves the /api/v1/cases endpoints.
type CaseHandler struct {
	Cases    CaseStore
	Rules    rules.Rules
	Currency string
	Logger   *slog.Logger
}

// --- POST /api/v1/cases ---

type createCaseRequest struct {
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	BountyAmount  decimal.Decimal `json:"bounty_amount"`
	ExpiresInDays int             `json:"expires_in_days"`
}

// CreateCase registers a lost-item listing. The bounty is validated here
// but no money moves until the poster calls the escrow create endpoint.
func (h *CaseHandler) CreateCase(w http.ResponseWriter, r *http.Request) {
	var req createCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "invalid JSON"})
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "title is required"})
		return
	}
	if err := h.Rules.ValidateBounty(req.BountyAmount); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: err.Error()})
		return
	}

	c := &models.Case{
		ID:           uuid.New(),
		PosterID:     middleware.UserIDFromCtx(r.Context()),
		Title:        strings.TrimSpace(req.Title),
		Description:  req.Description,
		BountyAmount: req.BountyAmount,
		Currency:     h.Currency,
		BountyStatus: models.BountyStatusNone,
		Status:       models.CaseStatusActive,
	}
	days := req.ExpiresInDays
	if days <= 0 {
		days = h.Rules.EscrowHoldDays
	}
	expires := time.Now().UTC().Add(time.Duration(days) * 24 * time.Hour)
	c.ExpiresAt = &expires

	if err := h.Cases.Create(r.Context(), c); err != nil {
		h.Logger.Error("create case failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{Success: false, Message: "internal error"})
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Message: "case created", Data: c})
}

// --- GET /api/v1/cases/{caseId} ---

func (h *CaseHandler) GetCase(w http.ResponseWriter, r *http.Request) {
	caseID, err := uuid.Parse(r.PathValue("caseId"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "invalid case id"})
		return
	}
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
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "case", Data: c})
}
