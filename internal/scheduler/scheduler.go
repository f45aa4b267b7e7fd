package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"

	"github.com/foundpay/backend/internal/rules"
)

// Intervals configures how often each periodic task ticks.
type Intervals struct {
	Sweep   time.Duration
	Warning time.Duration
	Cleanup time.Duration
}

// TaskStatus describes one scheduled task in the status report.
type TaskStatus struct {
	Name      string        `json:"name"`
	Scheduled bool          `json:"scheduled"`
	Interval  time.Duration `json:"interval"`
}

// Status is the operational report for the scheduler.
type Status struct {
	Running           bool         `json:"running"`
	Tasks             []TaskStatus `json:"tasks"`
	AutoRefundExpired bool         `json:"auto_refund_expired"`
	WarningLeadDays   []int        `json:"warning_lead_days"`
	StalePendingHours int          `json:"stale_pending_hours"`
}

// Scheduler owns the lifecycle of the three periodic escrow tasks. It is
// constructed explicitly by the composition root and started/stopped as a
// unit; no hidden package state. Unique-by-period inserts give each tick
// single-flight execution even if two schedulers accidentally run.
type Scheduler struct {
	client    *river.Client[pgx.Tx]
	intervals Intervals
	rules     rules.Rules
	log       *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

func New(pool *pgxpool.Pool, sweeper *Sweeper, intervals Intervals, r rules.Rules, log *slog.Logger) (*Scheduler, error) {
	if log == nil {
		log = slog.Default()
	}
	workers := river.NewWorkers()
	river.AddWorker(workers, &ExpiredSweepWorker{sweeper: sweeper})
	river.AddWorker(workers, &ExpiryWarningWorker{sweeper: sweeper})
	river.AddWorker(workers, &StaleCleanupWorker{sweeper: sweeper})

	periodic := []*river.PeriodicJob{
		river.NewPeriodicJob(river.PeriodicInterval(intervals.Sweep), func() (river.JobArgs, *river.InsertOpts) {
			return ExpiredSweepArgs{}, &river.InsertOpts{UniqueOpts: river.UniqueOpts{ByPeriod: intervals.Sweep}}
		}, &river.PeriodicJobOpts{RunOnStart: true}),
		river.NewPeriodicJob(river.PeriodicInterval(intervals.Warning), func() (river.JobArgs, *river.InsertOpts) {
			return ExpiryWarningArgs{}, &river.InsertOpts{UniqueOpts: river.UniqueOpts{ByPeriod: intervals.Warning}}
		}, nil),
		river.NewPeriodicJob(river.PeriodicInterval(intervals.Cleanup), func() (river.JobArgs, *river.InsertOpts) {
			return StaleCleanupArgs{}, &river.InsertOpts{UniqueOpts: river.UniqueOpts{ByPeriod: intervals.Cleanup}}
		}, nil),
	}

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 4},
		},
		Workers:      workers,
		PeriodicJobs: periodic,
	})
	if err != nil {
		return nil, err
	}
	return &Scheduler{client: client, intervals: intervals, rules: r, log: log}, nil
}

// StartJobs begins processing all three tasks.
func (s *Scheduler) StartJobs(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	if err := s.client.Start(runCtx); err != nil {
		cancel()
		return err
	}
	s.cancel = cancel
	s.running = true
	s.log.Info("escrow scheduler started",
		"sweep_interval", s.intervals.Sweep,
		"warning_interval", s.intervals.Warning,
		"cleanup_interval", s.intervals.Cleanup)
	return nil
}

// StopJobs halts future ticks, letting in-flight task runs finish.
func (s *Scheduler) StopJobs(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	err := s.client.Stop(ctx)
	if s.cancel != nil {
		s.cancel()
	}
	s.running = false
	s.log.Info("escrow scheduler stopped")
	return err
}

// RunNow enqueues an immediate run of the named task (operational tooling).
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	var args river.JobArgs
	switch name {
	case TaskExpiredSweep:
		args = ExpiredSweepArgs{}
	case TaskExpiryWarnings:
		args = ExpiryWarningArgs{}
	case TaskStaleCleanup:
		args = StaleCleanupArgs{}
	default:
		return fmt.Errorf("unknown scheduler task %q", name)
	}
	_, err := s.client.Insert(ctx, args, nil)
	return err
}

// Status reports which tasks are scheduled and the active configuration.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	return Status{
		Running: running,
		Tasks: []TaskStatus{
			{Name: TaskExpiredSweep, Scheduled: running, Interval: s.intervals.Sweep},
			{Name: TaskExpiryWarnings, Scheduled: running, Interval: s.intervals.Warning},
			{Name: TaskStaleCleanup, Scheduled: running, Interval: s.intervals.Cleanup},
		},
		AutoRefundExpired: s.rules.AutoRefundExpired,
		WarningLeadDays:   s.rules.WarningLeadDays,
		StalePendingHours: s.rules.StalePendingHours,
	}
}
