// Package dashboard serves the signed-in user's account surface: profile,
// payout destination, and API key management for the ops/cron callers.
package dashboard

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/foundpay/backend/internal/middleware"
	"github.com/foundpay/backend/internal/models"
	"github.com/foundpay/backend/internal/repository"
)

type Handler struct {
	userR   *repository.UserRepo
	apiKeyR *repository.APIKeyRepo
	log     *slog.Logger
}

func NewHandler(userR *repository.UserRepo, apiKeyR *repository.APIKeyRepo, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{userR: userR, apiKeyR: apiKeyR, log: log}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// GET /api/v1/account/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromCtx(r.Context())
	u, err := h.userR.GetByID(r.Context(), userID)
	if err != nil {
		h.log.Error("get user failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if u == nil {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":                 u.ID,
		"email":              u.Email,
		"name":               u.Name,
		"role":               u.Role,
		"total_earnings":     u.TotalEarnings,
		"payout_account_ref": u.PayoutAccountRef,
		"created_at":         u.CreatedAt,
	})
}

// PATCH /api/v1/account/payout-account
// Registers the external destination the gateway transfers winnings to.
// Until a finder sets this, released escrows land in payout_pending.
func (h *Handler) SetPayoutAccount(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromCtx(r.Context())
	var body struct {
		PayoutAccountRef string `json:"payout_account_ref"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(body.PayoutAccountRef) == "" {
		http.Error(w, "payout_account_ref is required", http.StatusBadRequest)
		return
	}
	if err := h.userR.SetPayoutAccountRef(r.Context(), userID, body.PayoutAccountRef); err != nil {
		h.log.Error("set payout account failed", "error", err)
		http.Error(w, "update failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/api-keys
// The raw key is returned exactly once; only its SHA-256 hash is stored.
func (h *Handler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromCtx(r.Context())
	rawBytes := make([]byte, 32)
	if _, err := rand.Read(rawBytes); err != nil {
		http.Error(w, "key generation failed", http.StatusInternalServerError)
		return
	}
	rawKey := "fp_" + hex.EncodeToString(rawBytes)
	hash := sha256.Sum256([]byte(rawKey))

	k := &models.APIKey{
		ID:        uuid.New(),
		UserID:    userID,
		KeyHash:   hex.EncodeToString(hash[:]),
		KeyPrefix: rawKey[:10],
		IsActive:  true,
	}
	if err := h.apiKeyR.Create(r.Context(), k); err != nil {
		h.log.Error("create api key failed", "error", err)
		http.Error(w, "create failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         k.ID,
		"key_prefix": k.KeyPrefix,
		"is_active":  k.IsActive,
		"raw_key":    rawKey,
	})
}

// DELETE /api/v1/api-keys/{id}
func (h *Handler) DeleteAPIKey(w http.ResponseWriter, r *http.Request) {
	keyID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid key ID", http.StatusBadRequest)
		return
	}
	if err := h.apiKeyR.Deactivate(r.Context(), keyID); err != nil {
		h.log.Error("deactivate api key failed", "error", err)
		http.Error(w, "delete failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
