package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/foundpay/backend/internal/models"
	"github.com/foundpay/backend/internal/rules"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type mockEscrow struct {
	refunded  map[uuid.UUID]string
	cancelled map[uuid.UUID]string
	failTx    uuid.UUID // Refund/CancelPending for this id returns an error
}

func newMockEscrow() *mockEscrow {
	return &mockEscrow{
		refunded:  make(map[uuid.UUID]string),
		cancelled: make(map[uuid.UUID]string),
	}
}

func (m *mockEscrow) Refund(_ context.Context, txID uuid.UUID, reason string) (*models.Transaction, error) {
	if txID == m.failTx {
		return nil, errors.New("gateway unavailable")
	}
	m.refunded[txID] = reason
	return &models.Transaction{ID: txID, Status: models.TransactionStatusRefunded}, nil
}

func (m *mockEscrow) CancelPending(_ context.Context, txID uuid.UUID, reason string) (*models.Transaction, error) {
	if txID == m.failTx {
		return nil, errors.New("gateway unavailable")
	}
	m.cancelled[txID] = reason
	return &models.Transaction{ID: txID, Status: models.TransactionStatusCancelled}, nil
}

type mockCases struct {
	expired  []*models.Case
	expiring map[int][]*models.Case // keyed by days-out lead
	statuses map[uuid.UUID]string
	listErr  error
}

func newMockCases() *mockCases {
	return &mockCases{
		expiring: make(map[int][]*models.Case),
		statuses: make(map[uuid.UUID]string),
	}
}

func (m *mockCases) FindExpiredHeld(_ context.Context, _ time.Time) ([]*models.Case, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	// Mirror the durable query: a case marked expired drops out.
	var out []*models.Case
	for _, c := range m.expired {
		if m.statuses[c.ID] == models.CaseStatusExpired {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (m *mockCases) FindExpiringHeld(_ context.Context, from, to time.Time) ([]*models.Case, error) {
	var out []*models.Case
	for _, cases := range m.expiring {
		for _, c := range cases {
			if c.ExpiresAt != nil && !c.ExpiresAt.Before(from) && c.ExpiresAt.Before(to) {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (m *mockCases) SetStatus(_ context.Context, id uuid.UUID, status string) error {
	m.statuses[id] = status
	return nil
}

type mockTxs struct {
	byCase  map[uuid.UUID]*models.Transaction
	stale   []*models.Transaction
	loadErr map[uuid.UUID]error
}

func newMockTxs() *mockTxs {
	return &mockTxs{
		byCase:  make(map[uuid.UUID]*models.Transaction),
		loadErr: make(map[uuid.UUID]error),
	}
}

func (m *mockTxs) EscrowByCase(_ context.Context, caseID uuid.UUID) (*models.Transaction, error) {
	if err := m.loadErr[caseID]; err != nil {
		return nil, err
	}
	return m.byCase[caseID], nil
}

func (m *mockTxs) FindStalePending(_ context.Context, before time.Time) ([]*models.Transaction, error) {
	var out []*models.Transaction
	for _, tx := range m.stale {
		if tx.CreatedAt.Before(before) {
			out = append(out, tx)
		}
	}
	return out, nil
}

type mockNotifier struct {
	sent    []uuid.UUID
	sendErr error
}

func (m *mockNotifier) ExpiryWarning(_ context.Context, _, caseID uuid.UUID, _ string, _ decimal.Decimal, _ int) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, caseID)
	return nil
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

func heldCase(expiresAt time.Time) *models.Case {
	return &models.Case{
		ID:           uuid.New(),
		PosterID:     uuid.New(),
		Title:        "Lost keys near Central Station",
		BountyAmount: decimal.NewFromInt(50),
		Currency:     "USD",
		BountyStatus: models.BountyStatusHeld,
		Status:       models.CaseStatusActive,
		ExpiresAt:    &expiresAt,
	}
}

func escrowTx(caseID uuid.UUID) *models.Transaction {
	return &models.Transaction{
		ID:     uuid.New(),
		CaseID: caseID,
		Type:   models.TransactionTypeBountyPayment,
		Status: models.TransactionStatusEscrow,
	}
}

func newTestSweeper(escrow *mockEscrow, cases *mockCases, txs *mockTxs, notifier *mockNotifier, r rules.Rules) *Sweeper {
	return NewSweeper(escrow, cases, txs, notifier, r, slog.New(slog.DiscardHandler))
}

// ---------------------------------------------------------------------------
// Expired sweep
// ---------------------------------------------------------------------------

func TestRunExpiredSweep(t *testing.T) {
	escrow := newMockEscrow()
	cases := newMockCases()
	txs := newMockTxs()

	past := time.Now().UTC().Add(-time.Hour)
	c1 := heldCase(past)
	c2 := heldCase(past)
	cases.expired = []*models.Case{c1, c2}
	tx1 := escrowTx(c1.ID)
	tx2 := escrowTx(c2.ID)
	txs.byCase[c1.ID] = tx1
	txs.byCase[c2.ID] = tx2

	sw := newTestSweeper(escrow, cases, txs, &mockNotifier{}, rules.Default())
	summary, err := sw.RunExpiredSweep(context.Background())
	if err != nil {
		t.Fatalf("RunExpiredSweep: %v", err)
	}
	if summary.Processed != 2 {
		t.Fatalf("processed = %d, want 2", summary.Processed)
	}
	if len(summary.Errors) != 0 {
		t.Fatalf("errors = %v, want none", summary.Errors)
	}
	if escrow.refunded[tx1.ID] != ExpiredRefundReason {
		t.Errorf("tx1 refund reason = %q, want %q", escrow.refunded[tx1.ID], ExpiredRefundReason)
	}
	if cases.statuses[c1.ID] != models.CaseStatusExpired || cases.statuses[c2.ID] != models.CaseStatusExpired {
		t.Errorf("cases not marked expired: %v", cases.statuses)
	}
}

func TestRunExpiredSweepTwiceProcessesOnce(t *testing.T) {
	escrow := newMockEscrow()
	cases := newMockCases()
	txs := newMockTxs()

	c := heldCase(time.Now().UTC().Add(-time.Hour))
	cases.expired = []*models.Case{c}
	txs.byCase[c.ID] = escrowTx(c.ID)

	sw := newTestSweeper(escrow, cases, txs, &mockNotifier{}, rules.Default())

	first, err := sw.RunExpiredSweep(context.Background())
	if err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	if first.Processed != 1 {
		t.Fatalf("first sweep processed = %d, want 1", first.Processed)
	}

	second, err := sw.RunExpiredSweep(context.Background())
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if second.Processed != 0 {
		t.Fatalf("second sweep processed = %d, want 0", second.Processed)
	}
	if len(escrow.refunded) != 1 {
		t.Fatalf("refund count = %d, want exactly 1", len(escrow.refunded))
	}
}

func TestRunExpiredSweepDisabled(t *testing.T) {
	escrow := newMockEscrow()
	cases := newMockCases()
	cases.listErr = errors.New("must not be queried")
	r := rules.Default()
	r.AutoRefundExpired = false

	sw := newTestSweeper(escrow, cases, newMockTxs(), &mockNotifier{}, r)
	summary, err := sw.RunExpiredSweep(context.Background())
	if err != nil {
		t.Fatalf("disabled sweep: %v", err)
	}
	if summary.Processed != 0 || len(summary.Errors) != 0 {
		t.Fatalf("disabled sweep did work: %+v", summary)
	}
}

func TestRunExpiredSweepIsolatesFailures(t *testing.T) {
	escrow := newMockEscrow()
	cases := newMockCases()
	txs := newMockTxs()

	past := time.Now().UTC().Add(-time.Hour)
	bad := heldCase(past)
	good := heldCase(past)
	cases.expired = []*models.Case{bad, good}
	badTx := escrowTx(bad.ID)
	goodTx := escrowTx(good.ID)
	txs.byCase[bad.ID] = badTx
	txs.byCase[good.ID] = goodTx
	escrow.failTx = badTx.ID

	sw := newTestSweeper(escrow, cases, txs, &mockNotifier{}, rules.Default())
	summary, err := sw.RunExpiredSweep(context.Background())
	if err != nil {
		t.Fatalf("RunExpiredSweep: %v", err)
	}
	if summary.Processed != 1 {
		t.Errorf("processed = %d, want 1", summary.Processed)
	}
	if len(summary.Errors) != 1 || summary.Errors[0].ID != bad.ID {
		t.Errorf("errors = %v, want one for the failing case", summary.Errors)
	}
	if _, ok := escrow.refunded[goodTx.ID]; !ok {
		t.Error("healthy case was not refunded")
	}
	// The failed case keeps its bounty; the next run retries it.
	if cases.statuses[bad.ID] == models.CaseStatusExpired {
		t.Error("failed case must not be marked expired")
	}
}

func TestRunExpiredSweepSkipsCasesWithoutEscrow(t *testing.T) {
	escrow := newMockEscrow()
	cases := newMockCases()
	txs := newMockTxs()

	c := heldCase(time.Now().UTC().Add(-time.Hour))
	cases.expired = []*models.Case{c}
	// No escrow transaction on record for the case.

	sw := newTestSweeper(escrow, cases, txs, &mockNotifier{}, rules.Default())
	summary, err := sw.RunExpiredSweep(context.Background())
	if err != nil {
		t.Fatalf("RunExpiredSweep: %v", err)
	}
	if summary.Processed != 0 || len(summary.Errors) != 0 {
		t.Fatalf("summary = %+v, want untouched", summary)
	}
}

// ---------------------------------------------------------------------------
// Expiry warnings
// ---------------------------------------------------------------------------

func TestRunExpiryWarnings(t *testing.T) {
	escrow := newMockEscrow()
	cases := newMockCases()
	txs := newMockTxs()
	notifier := &mockNotifier{}

	r := rules.Default()
	r.WarningLeadDays = []int{3}
	start, _ := r.WarningWindow(time.Now().UTC(), 3)
	expiry := start.Add(6 * time.Hour)
	c := heldCase(expiry)
	cases.expiring[3] = []*models.Case{c}
	txs.byCase[c.ID] = escrowTx(c.ID)

	sw := newTestSweeper(escrow, cases, txs, notifier, r)
	summary, err := sw.RunExpiryWarnings(context.Background())
	if err != nil {
		t.Fatalf("RunExpiryWarnings: %v", err)
	}
	if summary.Processed != 1 {
		t.Fatalf("processed = %d, want 1", summary.Processed)
	}
	if len(notifier.sent) != 1 || notifier.sent[0] != c.ID {
		t.Fatalf("notifications = %v, want one for %s", notifier.sent, c.ID)
	}
}

func TestRunExpiryWarningsSkipsResolvedCases(t *testing.T) {
	escrow := newMockEscrow()
	cases := newMockCases()
	txs := newMockTxs()
	notifier := &mockNotifier{}

	r := rules.Default()
	r.WarningLeadDays = []int{1}
	start, _ := r.WarningWindow(time.Now().UTC(), 1)
	expiry := start.Add(time.Hour)
	c := heldCase(expiry)
	cases.expiring[1] = []*models.Case{c}
	// No active escrow transaction: the bounty was already released or refunded.

	sw := newTestSweeper(escrow, cases, txs, notifier, r)
	summary, err := sw.RunExpiryWarnings(context.Background())
	if err != nil {
		t.Fatalf("RunExpiryWarnings: %v", err)
	}
	if summary.Processed != 0 || len(notifier.sent) != 0 {
		t.Fatalf("warned on a case without escrow: %+v", summary)
	}
}

// ---------------------------------------------------------------------------
// Stale pending cleanup
// ---------------------------------------------------------------------------

func TestRunStaleCleanup(t *testing.T) {
	escrow := newMockEscrow()
	txs := newMockTxs()

	r := rules.Default()
	old := &models.Transaction{
		ID:        uuid.New(),
		Status:    models.TransactionStatusPending,
		CreatedAt: time.Now().UTC().Add(-time.Duration(r.StalePendingHours+1) * time.Hour),
	}
	fresh := &models.Transaction{
		ID:        uuid.New(),
		Status:    models.TransactionStatusPending,
		CreatedAt: time.Now().UTC().Add(-time.Hour),
	}
	txs.stale = []*models.Transaction{old, fresh}

	sw := newTestSweeper(escrow, newMockCases(), txs, &mockNotifier{}, r)
	summary, err := sw.RunStaleCleanup(context.Background())
	if err != nil {
		t.Fatalf("RunStaleCleanup: %v", err)
	}
	if summary.Processed != 1 {
		t.Fatalf("processed = %d, want 1", summary.Processed)
	}
	if escrow.cancelled[old.ID] != StaleCancelReason {
		t.Errorf("old tx cancel reason = %q, want %q", escrow.cancelled[old.ID], StaleCancelReason)
	}
	if _, ok := escrow.cancelled[fresh.ID]; ok {
		t.Error("fresh pending transaction must not be cancelled")
	}
}

func TestRunStaleCleanupIsolatesFailures(t *testing.T) {
	escrow := newMockEscrow()
	txs := newMockTxs()

	r := rules.Default()
	created := time.Now().UTC().Add(-time.Duration(r.StalePendingHours+1) * time.Hour)
	bad := &models.Transaction{ID: uuid.New(), Status: models.TransactionStatusPending, CreatedAt: created}
	good := &models.Transaction{ID: uuid.New(), Status: models.TransactionStatusPending, CreatedAt: created}
	txs.stale = []*models.Transaction{bad, good}
	escrow.failTx = bad.ID

	sw := newTestSweeper(escrow, newMockCases(), txs, &mockNotifier{}, r)
	summary, err := sw.RunStaleCleanup(context.Background())
	if err != nil {
		t.Fatalf("RunStaleCleanup: %v", err)
	}
	if summary.Processed != 1 || len(summary.Errors) != 1 {
		t.Fatalf("summary = %+v, want 1 processed 1 error", summary)
	}
	if _, ok := escrow.cancelled[good.ID]; !ok {
		t.Error("healthy transaction was not cancelled")
	}
}
