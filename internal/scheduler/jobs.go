package scheduler

import (
	"context"

	"github.com/riverqueue/river"
)

// Task names, also the River job kinds. Used for manual run-by-name.
const (
	TaskExpiredSweep   = "escrow_expired_sweep"
	TaskExpiryWarnings = "escrow_expiry_warnings"
	TaskStaleCleanup   = "escrow_stale_cleanup"
)

type ExpiredSweepArgs struct{}

func (ExpiredSweepArgs) Kind() string { return TaskExpiredSweep }

type ExpiryWarningArgs struct{}

func (ExpiryWarningArgs) Kind() string { return TaskExpiryWarnings }

type StaleCleanupArgs struct{}

func (StaleCleanupArgs) Kind() string { return TaskStaleCleanup }

// The workers are thin wrappers: all logic lives in Sweeper. A returned
// error means the whole run failed (e.g. the case query) and River should
// retry; per-item errors are already logged and absorbed in the summary.

type ExpiredSweepWorker struct {
	river.WorkerDefaults[ExpiredSweepArgs]
	sweeper *Sweeper
}

func (w *ExpiredSweepWorker) Work(ctx context.Context, _ *river.Job[ExpiredSweepArgs]) error {
	_, err := w.sweeper.RunExpiredSweep(ctx)
	return err
}

type ExpiryWarningWorker struct {
	river.WorkerDefaults[ExpiryWarningArgs]
	sweeper *Sweeper
}

func (w *ExpiryWarningWorker) Work(ctx context.Context, _ *river.Job[ExpiryWarningArgs]) error {
	_, err := w.sweeper.RunExpiryWarnings(ctx)
	return err
}

type StaleCleanupWorker struct {
	river.WorkerDefaults[StaleCleanupArgs]
	sweeper *Sweeper
}

func (w *StaleCleanupWorker) Work(ctx context.Context, _ *river.Job[StaleCleanupArgs]) error {
	_, err := w.sweeper.RunStaleCleanup(ctx)
	return err
}
