package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/foundpay/backend/internal/scheduler"
)

// SweepRunner runs the expired-escrow sweep synchronously.
type SweepRunner interface {
	RunExpiredSweep(ctx context.Context) (scheduler.SweepSummary, error)
}

// SchedulerControl is the scheduler surface exposed to operators.
type SchedulerControl interface {
	RunNow(ctx context.Context, name string) error
	Status() scheduler.Status
}

// OpsHandler serves the admin/cron endpoints behind API key auth.
type OpsHandler struct {
	Sweeper   SweepRunner
	Scheduler SchedulerControl
	Logger    *slog.Logger
}

// ProcessExpired handles POST /api/v1/escrow/process-expired: an immediate
// synchronous sweep, returning the summary so cron callers can alert on
// the error list.
func (h *OpsHandler) ProcessExpired(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Sweeper.RunExpiredSweep(r.Context())
	if err != nil {
		h.Logger.Error("manual expired sweep failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{Success: false, Message: "sweep failed"})
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "expired escrow sweep complete", Data: summary})
}

// SchedulerStatus handles GET /api/v1/scheduler/status.
func (h *OpsHandler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "scheduler status", Data: h.Scheduler.Status()})
}

// SchedulerRun handles POST /api/v1/scheduler/run/{task}: enqueues an
// immediate run of the named task.
func (h *OpsHandler) SchedulerRun(w http.ResponseWriter, r *http.Request) {
	task := r.PathValue("task")
	if err := h.Scheduler.RunNow(r.Context(), task); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, envelope{Success: true, Message: "task enqueued", Data: map[string]string{"task": task}})
}
