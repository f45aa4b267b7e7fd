package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/foundpay/backend/internal/escrow"
	"github.com/foundpay/backend/internal/gateway"
	"github.com/foundpay/backend/internal/middleware"
	"github.com/foundpay/backend/internal/models"
	"github.com/foundpay/backend/internal/rules"
)

// EscrowService is the subset of escrow operations the handler exposes.
type EscrowService interface {
	CreateHold(ctx context.Context, caseID, posterID uuid.UUID) (*models.Transaction, error)
	Release(ctx context.Context, txID, finderID uuid.UUID, claimID *uuid.UUID) (*models.Transaction, error)
	Refund(ctx context.Context, txID uuid.UUID, reason string) (*models.Transaction, error)
	OpenDispute(ctx context.Context, txID, userID uuid.UUID, reason string) (*models.Transaction, error)
	ResolveDispute(ctx context.Context, txID uuid.UUID, resolution string, adminID uuid.UUID, finderID *uuid.UUID) (*models.Transaction, error)
	Status(ctx context.Context, caseID uuid.UUID) (*escrow.StatusProjection, error)
}

// TransactionGetter resolves a transaction for ownership checks.
type TransactionGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
}

// CaseGetter resolves a case for ownership checks.
type CaseGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Case, error)
}

// EscrowHandler serves the /api/v1/escrow endpoints.
type EscrowHandler struct {
	Escrow EscrowService
	Txs    TransactionGetter
	Cases  CaseGetter
	Logger *slog.Logger
}

// envelope is the uniform response shape.
type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// --- POST /api/v1/escrow/create ---

type createHoldRequest struct {
	CaseID string `json:"case_id"`
}

// CreateHold authorizes a gateway hold for the case bounty. Poster only;
// the service enforces ownership against the authenticated user.
func (h *EscrowHandler) CreateHold(w http.ResponseWriter, r *http.Request) {
	var req createHoldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	caseID, err := uuid.Parse(req.CaseID)
	if err != nil {
		h.fail(w, http.StatusBadRequest, "invalid case_id")
		return
	}

	tx, err := h.Escrow.CreateHold(r.Context(), caseID, middleware.UserIDFromCtx(r.Context()))
	if err != nil {
		h.writeError(w, "create escrow hold", err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Message: "escrow hold created", Data: tx})
}

// --- POST /api/v1/escrow/release/{transactionId} ---

type releaseRequest struct {
	FinderID string  `json:"finder_id"`
	ClaimID  *string `json:"claim_id,omitempty"`
}

// Release captures the hold and pays the finder. Poster of the case or admin.
func (h *EscrowHandler) Release(w http.ResponseWriter, r *http.Request) {
	txID, ok := h.pathTransaction(w, r)
	if !ok {
		return
	}
	var req releaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	finderID, err := uuid.Parse(req.FinderID)
	if err != nil {
		h.fail(w, http.StatusBadRequest, "invalid finder_id")
		return
	}
	var claimID *uuid.UUID
	if req.ClaimID != nil {
		id, err := uuid.Parse(*req.ClaimID)
		if err != nil {
			h.fail(w, http.StatusBadRequest, "invalid claim_id")
			return
		}
		claimID = &id
	}

	if !h.posterOrAdmin(w, r, txID) {
		return
	}
	tx, err := h.Escrow.Release(r.Context(), txID, finderID, claimID)
	if err != nil {
		h.writeError(w, "release escrow", err)
		return
	}
	msg := "escrow released"
	if tx.Status == models.TransactionStatusPayoutPending {
		msg = "escrow captured; payout pending manual follow-up"
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: msg, Data: tx})
}

// --- POST /api/v1/escrow/refund/{transactionId} ---

type refundRequest struct {
	Reason string `json:"reason"`
}

// Refund cancels the hold and returns funds to the poster. Poster or admin.
func (h *EscrowHandler) Refund(w http.ResponseWriter, r *http.Request) {
	txID, ok := h.pathTransaction(w, r)
	if !ok {
		return
	}
	var req refundRequest
	if r.Body != nil {
		// Reason is optional; an empty body is fine.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Reason == "" {
		req.Reason = "Requested by poster"
	}

	if !h.posterOrAdmin(w, r, txID) {
		return
	}
	tx, err := h.Escrow.Refund(r.Context(), txID, req.Reason)
	if err != nil {
		h.writeError(w, "refund escrow", err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "escrow refunded", Data: tx})
}

// --- POST /api/v1/escrow/dispute/{transactionId} ---

type disputeRequest struct {
	Reason string `json:"reason"`
}

// OpenDispute freezes the escrow. The service enforces that the caller is
// the poster or the claiming finder of the transaction's case.
func (h *EscrowHandler) OpenDispute(w http.ResponseWriter, r *http.Request) {
	txID, ok := h.pathTransaction(w, r)
	if !ok {
		return
	}
	var req disputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	tx, err := h.Escrow.OpenDispute(r.Context(), txID, middleware.UserIDFromCtx(r.Context()), req.Reason)
	if err != nil {
		h.writeError(w, "open dispute", err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "dispute opened", Data: tx})
}

// --- POST /api/v1/escrow/dispute/{transactionId}/resolve ---

type resolveRequest struct {
	Resolution string  `json:"resolution"`
	FinderID   *string `json:"finder_id,omitempty"`
}

// ResolveDispute settles a dispute either way. Admin only (router-enforced).
func (h *EscrowHandler) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	txID, ok := h.pathTransaction(w, r)
	if !ok {
		return
	}
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	var finderID *uuid.UUID
	if req.FinderID != nil {
		id, err := uuid.Parse(*req.FinderID)
		if err != nil {
			h.fail(w, http.StatusBadRequest, "invalid finder_id")
			return
		}
		finderID = &id
	}

	tx, err := h.Escrow.ResolveDispute(r.Context(), txID, req.Resolution, middleware.UserIDFromCtx(r.Context()), finderID)
	if err != nil {
		h.writeError(w, "resolve dispute", err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "dispute resolved", Data: tx})
}

// --- GET /api/v1/escrow/status/{caseId} ---

// Status returns the escrow projection for a case. Poster of the case or admin.
func (h *EscrowHandler) Status(w http.ResponseWriter, r *http.Request) {
	caseID, err := uuid.Parse(r.PathValue("caseId"))
	if err != nil {
		h.fail(w, http.StatusBadRequest, "invalid case id")
		return
	}

	c, err := h.Cases.GetByID(r.Context(), caseID)
	if err != nil {
		h.Logger.Error("load case", "case_id", caseID, "error", err)
		h.fail(w, http.StatusInternalServerError, "internal error")
		return
	}
	if c == nil {
		h.fail(w, http.StatusNotFound, "case not found")
		return
	}
	if !h.allowOwner(w, r, c.PosterID) {
		return
	}

	proj, err := h.Escrow.Status(r.Context(), caseID)
	if err != nil {
		h.writeError(w, "escrow status", err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "escrow status", Data: proj})
}

// --- helpers ---

func (h *EscrowHandler) pathTransaction(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("transactionId"))
	if err != nil {
		h.fail(w, http.StatusBadRequest, "invalid transaction id")
		return uuid.Nil, false
	}
	return id, true
}

// posterOrAdmin loads the transaction and checks the caller owns its case
// or is an admin. Writes the error response itself on rejection.
func (h *EscrowHandler) posterOrAdmin(w http.ResponseWriter, r *http.Request, txID uuid.UUID) bool {
	tx, err := h.Txs.GetByID(r.Context(), txID)
	if err != nil {
		h.Logger.Error("load transaction", "transaction_id", txID, "error", err)
		h.fail(w, http.StatusInternalServerError, "internal error")
		return false
	}
	if tx == nil {
		h.fail(w, http.StatusNotFound, "transaction not found")
		return false
	}
	return h.allowOwner(w, r, tx.PosterID)
}

func (h *EscrowHandler) allowOwner(w http.ResponseWriter, r *http.Request, ownerID uuid.UUID) bool {
	ctx := r.Context()
	if middleware.RoleFromCtx(ctx) == models.RoleAdmin || middleware.UserIDFromCtx(ctx) == ownerID {
		return true
	}
	h.fail(w, http.StatusForbidden, "not allowed")
	return false
}

// writeError maps service errors to the response taxonomy. Gateway
// internals are logged, never returned.
func (h *EscrowHandler) writeError(w http.ResponseWriter, op string, err error) {
	var gwErr *gateway.Error
	switch {
	case errors.Is(err, escrow.ErrCaseNotFound),
		errors.Is(err, escrow.ErrTransactionNotFound),
		errors.Is(err, escrow.ErrFinderNotFound),
		errors.Is(err, escrow.ErrClaimNotFound):
		h.fail(w, http.StatusNotFound, err.Error())
	case errors.Is(err, rules.ErrInvalidBountyAmount),
		errors.Is(err, escrow.ErrReasonTooShort),
		errors.Is(err, escrow.ErrInvalidResolution):
		h.fail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, escrow.ErrUnauthorized):
		h.fail(w, http.StatusForbidden, "not allowed")
	case errors.Is(err, escrow.ErrDuplicateEscrow):
		h.fail(w, http.StatusConflict, "an active escrow already exists for this case")
	case errors.Is(err, escrow.ErrInvalidTransactionState):
		h.fail(w, http.StatusConflict, "transaction is not in a valid state for this operation")
	case errors.As(err, &gwErr):
		h.Logger.Error(op+" gateway failure", "gateway_op", gwErr.Op, "error", gwErr.Err)
		h.fail(w, http.StatusBadGateway, "payment gateway error")
	default:
		h.Logger.Error(op+" failed", "error", err)
		h.fail(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *EscrowHandler) fail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
