package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/foundpay/backend/internal/escrow"
	"github.com/foundpay/backend/internal/gateway"
	"github.com/foundpay/backend/internal/middleware"
	"github.com/foundpay/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type stubEscrow struct {
	tx   *models.Transaction
	proj *escrow.StatusProjection
	err  error

	lastResolution string
}

func (s *stubEscrow) CreateHold(_ context.Context, _, _ uuid.UUID) (*models.Transaction, error) {
	return s.tx, s.err
}

func (s *stubEscrow) Release(_ context.Context, _, _ uuid.UUID, _ *uuid.UUID) (*models.Transaction, error) {
	return s.tx, s.err
}

func (s *stubEscrow) Refund(_ context.Context, _ uuid.UUID, _ string) (*models.Transaction, error) {
	return s.tx, s.err
}

func (s *stubEscrow) OpenDispute(_ context.Context, _, _ uuid.UUID, _ string) (*models.Transaction, error) {
	return s.tx, s.err
}

func (s *stubEscrow) ResolveDispute(_ context.Context, _ uuid.UUID, resolution string, _ uuid.UUID, _ *uuid.UUID) (*models.Transaction, error) {
	s.lastResolution = resolution
	return s.tx, s.err
}

func (s *stubEscrow) Status(_ context.Context, _ uuid.UUID) (*escrow.StatusProjection, error) {
	return s.proj, s.err
}

type stubTxGetter struct {
	tx  *models.Transaction
	err error
}

func (s *stubTxGetter) GetByID(_ context.Context, _ uuid.UUID) (*models.Transaction, error) {
	return s.tx, s.err
}

type stubCaseGetter struct {
	c   *models.Case
	err error
}

func (s *stubCaseGetter) GetByID(_ context.Context, _ uuid.UUID) (*models.Case, error) {
	return s.c, s.err
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

var testLogger = slog.New(slog.DiscardHandler)

func escrowTxFor(posterID uuid.UUID) *models.Transaction {
	return &models.Transaction{
		ID:                 uuid.New(),
		CaseID:             uuid.New(),
		PosterID:           posterID,
		Type:               models.TransactionTypeBountyPayment,
		Amount:             decimal.NewFromInt(100),
		PlatformCommission: decimal.NewFromInt(10),
		NetAmount:          decimal.NewFromInt(90),
		Currency:           "USD",
		Status:             models.TransactionStatusEscrow,
	}
}

func authedRequest(method, target string, body interface{}, userID uuid.UUID, role string) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	return req.WithContext(middleware.WithIdentity(req.Context(), userID, role))
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return env
}

// ---------------------------------------------------------------------------
// Create hold
// ---------------------------------------------------------------------------

func TestCreateHoldEndpoint(t *testing.T) {
	poster := uuid.New()
	tx := escrowTxFor(poster)
	h := &EscrowHandler{Escrow: &stubEscrow{tx: tx}, Logger: testLogger}

	req := authedRequest(http.MethodPost, "/api/v1/escrow/create",
		map[string]string{"case_id": tx.CaseID.String()}, poster, models.RolePoster)
	rec := httptest.NewRecorder()
	h.CreateHold(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if !env.Success {
		t.Errorf("expected success envelope, got %+v", env)
	}
}

func TestCreateHoldEndpoint_BadRequest(t *testing.T) {
	h := &EscrowHandler{Escrow: &stubEscrow{}, Logger: testLogger}

	cases := []struct {
		name string
		body interface{}
	}{
		{"missing case_id", map[string]string{}},
		{"malformed case_id", map[string]string{"case_id": "not-a-uuid"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := authedRequest(http.MethodPost, "/api/v1/escrow/create", tc.body, uuid.New(), models.RolePoster)
			rec := httptest.NewRecorder()
			h.CreateHold(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestCreateHoldEndpoint_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{escrow.ErrCaseNotFound, http.StatusNotFound},
		{escrow.ErrDuplicateEscrow, http.StatusConflict},
		{escrow.ErrUnauthorized, http.StatusForbidden},
		{&gateway.Error{Op: "authorize_hold", Err: errors.New("processor 500")}, http.StatusBadGateway},
		{errors.New("database down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%v", tc.err), func(t *testing.T) {
			h := &EscrowHandler{Escrow: &stubEscrow{err: tc.err}, Logger: testLogger}
			req := authedRequest(http.MethodPost, "/api/v1/escrow/create",
				map[string]string{"case_id": uuid.New().String()}, uuid.New(), models.RolePoster)
			rec := httptest.NewRecorder()
			h.CreateHold(rec, req)

			if rec.Code != tc.want {
				t.Errorf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
			env := decodeEnvelope(t, rec)
			if env.Success {
				t.Error("error responses must not be success envelopes")
			}
		})
	}
}

func TestCreateHoldEndpoint_GatewayDetailsNotLeaked(t *testing.T) {
	gwErr := &gateway.Error{Op: "authorize_hold", Err: errors.New("card_declined: insufficient_funds acct_123")}
	h := &EscrowHandler{Escrow: &stubEscrow{err: gwErr}, Logger: testLogger}
	req := authedRequest(http.MethodPost, "/api/v1/escrow/create",
		map[string]string{"case_id": uuid.New().String()}, uuid.New(), models.RolePoster)
	rec := httptest.NewRecorder()
	h.CreateHold(rec, req)

	if bytes.Contains(rec.Body.Bytes(), []byte("acct_123")) {
		t.Error("gateway internals leaked into the response body")
	}
}

// ---------------------------------------------------------------------------
// Release
// ---------------------------------------------------------------------------

func TestReleaseEndpoint(t *testing.T) {
	poster := uuid.New()
	tx := escrowTxFor(poster)
	released := *tx
	released.Status = models.TransactionStatusCompleted

	h := &EscrowHandler{
		Escrow: &stubEscrow{tx: &released},
		Txs:    &stubTxGetter{tx: tx},
		Logger: testLogger,
	}
	req := authedRequest(http.MethodPost, "/api/v1/escrow/release/"+tx.ID.String(),
		map[string]string{"finder_id": uuid.New().String()}, poster, models.RolePoster)
	req.SetPathValue("transactionId", tx.ID.String())
	rec := httptest.NewRecorder()
	h.Release(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestReleaseEndpoint_StrangerForbidden(t *testing.T) {
	tx := escrowTxFor(uuid.New())
	h := &EscrowHandler{
		Escrow: &stubEscrow{tx: tx},
		Txs:    &stubTxGetter{tx: tx},
		Logger: testLogger,
	}
	req := authedRequest(http.MethodPost, "/api/v1/escrow/release/"+tx.ID.String(),
		map[string]string{"finder_id": uuid.New().String()}, uuid.New(), models.RolePoster)
	req.SetPathValue("transactionId", tx.ID.String())
	rec := httptest.NewRecorder()
	h.Release(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for stranger, got %d", rec.Code)
	}
}

func TestReleaseEndpoint_AdminAllowed(t *testing.T) {
	tx := escrowTxFor(uuid.New())
	h := &EscrowHandler{
		Escrow: &stubEscrow{tx: tx},
		Txs:    &stubTxGetter{tx: tx},
		Logger: testLogger,
	}
	req := authedRequest(http.MethodPost, "/api/v1/escrow/release/"+tx.ID.String(),
		map[string]string{"finder_id": uuid.New().String()}, uuid.New(), models.RoleAdmin)
	req.SetPathValue("transactionId", tx.ID.String())
	rec := httptest.NewRecorder()
	h.Release(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestReleaseEndpoint_WrongState(t *testing.T) {
	poster := uuid.New()
	tx := escrowTxFor(poster)
	h := &EscrowHandler{
		Escrow: &stubEscrow{err: escrow.ErrInvalidTransactionState},
		Txs:    &stubTxGetter{tx: tx},
		Logger: testLogger,
	}
	req := authedRequest(http.MethodPost, "/api/v1/escrow/release/"+tx.ID.String(),
		map[string]string{"finder_id": uuid.New().String()}, poster, models.RolePoster)
	req.SetPathValue("transactionId", tx.ID.String())
	rec := httptest.NewRecorder()
	h.Release(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestReleaseEndpoint_UnknownTransaction(t *testing.T) {
	h := &EscrowHandler{
		Escrow: &stubEscrow{},
		Txs:    &stubTxGetter{},
		Logger: testLogger,
	}
	id := uuid.New()
	req := authedRequest(http.MethodPost, "/api/v1/escrow/release/"+id.String(),
		map[string]string{"finder_id": uuid.New().String()}, uuid.New(), models.RoleAdmin)
	req.SetPathValue("transactionId", id.String())
	rec := httptest.NewRecorder()
	h.Release(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// Refund
// ---------------------------------------------------------------------------

func TestRefundEndpoint_DefaultReason(t *testing.T) {
	poster := uuid.New()
	tx := escrowTxFor(poster)
	refunded := *tx
	refunded.Status = models.TransactionStatusRefunded

	h := &EscrowHandler{
		Escrow: &stubEscrow{tx: &refunded},
		Txs:    &stubTxGetter{tx: tx},
		Logger: testLogger,
	}
	// No body at all: reason is optional.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/escrow/refund/"+tx.ID.String(), nil)
	req = req.WithContext(middleware.WithIdentity(req.Context(), poster, models.RolePoster))
	req.SetPathValue("transactionId", tx.ID.String())
	rec := httptest.NewRecorder()
	h.Refund(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Dispute
// ---------------------------------------------------------------------------

func TestOpenDisputeEndpoint_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{escrow.ErrReasonTooShort, http.StatusBadRequest},
		{escrow.ErrUnauthorized, http.StatusForbidden},
		{escrow.ErrInvalidTransactionState, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			h := &EscrowHandler{Escrow: &stubEscrow{err: tc.err}, Logger: testLogger}
			id := uuid.New()
			req := authedRequest(http.MethodPost, "/api/v1/escrow/dispute/"+id.String(),
				map[string]string{"reason": "item returned broken"}, uuid.New(), models.RolePoster)
			req.SetPathValue("transactionId", id.String())
			rec := httptest.NewRecorder()
			h.OpenDispute(rec, req)

			if rec.Code != tc.want {
				t.Errorf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestResolveDisputeEndpoint(t *testing.T) {
	tx := escrowTxFor(uuid.New())
	tx.Status = models.TransactionStatusCompleted
	stub := &stubEscrow{tx: tx}
	h := &EscrowHandler{Escrow: stub, Logger: testLogger}

	finder := uuid.New().String()
	req := authedRequest(http.MethodPost, "/api/v1/escrow/dispute/"+tx.ID.String()+"/resolve",
		map[string]interface{}{"resolution": models.ResolutionReleaseToFinder, "finder_id": finder},
		uuid.New(), models.RoleAdmin)
	req.SetPathValue("transactionId", tx.ID.String())
	rec := httptest.NewRecorder()
	h.ResolveDispute(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if stub.lastResolution != models.ResolutionReleaseToFinder {
		t.Errorf("resolution passed through = %q", stub.lastResolution)
	}
}

func TestResolveDisputeEndpoint_InvalidResolution(t *testing.T) {
	h := &EscrowHandler{Escrow: &stubEscrow{err: escrow.ErrInvalidResolution}, Logger: testLogger}
	id := uuid.New()
	req := authedRequest(http.MethodPost, "/api/v1/escrow/dispute/"+id.String()+"/resolve",
		map[string]string{"resolution": "split_in_half"}, uuid.New(), models.RoleAdmin)
	req.SetPathValue("transactionId", id.String())
	rec := httptest.NewRecorder()
	h.ResolveDispute(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// Status
// ---------------------------------------------------------------------------

func TestStatusEndpoint(t *testing.T) {
	poster := uuid.New()
	c := &models.Case{ID: uuid.New(), PosterID: poster, BountyAmount: decimal.NewFromInt(100)}
	proj := &escrow.StatusProjection{
		CaseID:     c.ID,
		Status:     models.TransactionStatusEscrow,
		Amount:     decimal.NewFromInt(100),
		CanDispute: true,
	}
	h := &EscrowHandler{
		Escrow: &stubEscrow{proj: proj},
		Cases:  &stubCaseGetter{c: c},
		Logger: testLogger,
	}
	req := authedRequest(http.MethodGet, "/api/v1/escrow/status/"+c.ID.String(), nil, poster, models.RolePoster)
	req.SetPathValue("caseId", c.ID.String())
	rec := httptest.NewRecorder()
	h.Status(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestStatusEndpoint_Access(t *testing.T) {
	poster := uuid.New()
	c := &models.Case{ID: uuid.New(), PosterID: poster}
	h := &EscrowHandler{
		Escrow: &stubEscrow{proj: &escrow.StatusProjection{CaseID: c.ID}},
		Cases:  &stubCaseGetter{c: c},
		Logger: testLogger,
	}

	cases := []struct {
		name string
		user uuid.UUID
		role string
		want int
	}{
		{"poster", poster, models.RolePoster, http.StatusOK},
		{"admin", uuid.New(), models.RoleAdmin, http.StatusOK},
		{"stranger", uuid.New(), models.RoleFinder, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := authedRequest(http.MethodGet, "/api/v1/escrow/status/"+c.ID.String(), nil, tc.user, tc.role)
			req.SetPathValue("caseId", c.ID.String())
			rec := httptest.NewRecorder()
			h.Status(rec, req)

			if rec.Code != tc.want {
				t.Errorf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestStatusEndpoint_UnknownCase(t *testing.T) {
	h := &EscrowHandler{
		Escrow: &stubEscrow{},
		Cases:  &stubCaseGetter{},
		Logger: testLogger,
	}
	id := uuid.New()
	req := authedRequest(http.MethodGet, "/api/v1/escrow/status/"+id.String(), nil, uuid.New(), models.RoleAdmin)
	req.SetPathValue("caseId", id.String())
	rec := httptest.NewRecorder()
	h.Status(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
