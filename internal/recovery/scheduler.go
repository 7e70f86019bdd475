package recovery

import (
	"context"
	"log/slog"
	"time"

	"scribe/internal/logging"
	"scribe/internal/notify"
	"scribe/internal/registry"
	"scribe/internal/store"
	"scribe/internal/supervisor"
)

// Report summarizes one recovery sweep. It is the contract operator-facing
// status output is built from.
type Report struct {
	ItemsReset           int64    `json:"items_reset"`
	SessionsExpired      int      `json:"sessions_expired"`
	TotalPendingSessions int      `json:"total_pending_sessions"`
	SessionsStarted      int      `json:"sessions_started"`
	SessionsSkipped      int      `json:"sessions_skipped"`
	StartedIDs           []string `json:"started_ids,omitempty"`
	SkippedIDs           []string `json:"skipped_ids,omitempty"`
}

// Options carries the sweep thresholds and limits.
type Options struct {
	StuckThreshold        time.Duration
	StaleSessionThreshold time.Duration
	Interval              time.Duration
	StartupSessionLimit   int
	IntervalSessionLimit  int
}

// Scheduler resets crash-orphaned work and restarts processors for sessions
// with unconsumed backlog. It runs once at startup and then on a fixed
// interval for the lifetime of the process.
type Scheduler struct {
	store    *store.Store
	registry *registry.Registry
	sup      *supervisor.Supervisor
	notifier notify.Service
	logger   *slog.Logger
	opts     Options
}

// New constructs a scheduler. The notifier may be nil.
func New(st *store.Store, reg *registry.Registry, sup *supervisor.Supervisor, notifier notify.Service, logger *slog.Logger, opts Options) *Scheduler {
	if opts.StuckThreshold <= 0 {
		opts.StuckThreshold = 5 * time.Minute
	}
	if opts.StaleSessionThreshold <= 0 {
		opts.StaleSessionThreshold = 30 * time.Minute
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.StartupSessionLimit <= 0 {
		opts.StartupSessionLimit = 50
	}
	if opts.IntervalSessionLimit <= 0 {
		opts.IntervalSessionLimit = 10
	}
	return &Scheduler{
		store:    st,
		registry: reg,
		sup:      sup,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "recovery"),
		opts:     opts,
	}
}

// RunStartup performs the initial sweep with the startup concurrency cap.
func (s *Scheduler) RunStartup(ctx context.Context) (Report, error) {
	return s.RunOnce(ctx, s.opts.StartupSessionLimit)
}

// Run executes periodic sweeps until the context is cancelled. Sweep
// failures are logged, never fatal.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx, s.opts.IntervalSessionLimit); err != nil {
				s.logger.Error("recovery sweep failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "recovery_sweep_failed"),
					logging.String(logging.FieldErrorHint, "check work database access"),
				)
			}
		}
	}
}

// RunOnce performs a single sweep: reset stuck items, expire stale
// sessions, then restart processors for up to sessionLimit backlogged
// sessions, oldest backlog first. An individual session's start failure is
// logged and skipped.
func (s *Scheduler) RunOnce(ctx context.Context, sessionLimit int) (Report, error) {
	report := Report{}

	reset, err := s.store.ResetStuck(ctx, s.opts.StuckThreshold)
	if err != nil {
		return report, err
	}
	report.ItemsReset = reset
	if reset > 0 {
		s.logger.Info("reset stuck items",
			logging.Int64("count", reset),
			logging.Duration("threshold", s.opts.StuckThreshold),
		)
	}

	expired := s.registry.CleanupStale(ctx, s.opts.StaleSessionThreshold, s.store)
	report.SessionsExpired = len(expired)
	for _, sessionID := range expired {
		// The registry only drops its in-memory row; the durable history
		// transition to failed happens here.
		if err := s.store.SetSessionStatus(ctx, sessionID, store.SessionFailed); err != nil {
			s.logger.Warn("failed to persist session failure",
				logging.String(logging.FieldSessionID, sessionID),
				logging.Error(err),
			)
		}
		if s.notifier != nil {
			if err := s.notifier.NotifySessionFailed(ctx, sessionID, "expired after inactivity"); err != nil {
				s.logger.Debug("notification failed", logging.Error(err))
			}
		}
	}

	pending, err := s.store.SessionsWithPending(ctx)
	if err != nil {
		return report, err
	}
	report.TotalPendingSessions = len(pending)

	for _, sessionID := range pending {
		if report.SessionsStarted >= sessionLimit {
			report.SessionsSkipped++
			report.SkippedIDs = append(report.SkippedIDs, sessionID)
			continue
		}
		if s.registry.HasLiveProcessor(sessionID) {
			report.SessionsSkipped++
			report.SkippedIDs = append(report.SkippedIDs, sessionID)
			continue
		}

		project := ""
		if record, err := s.store.GetSession(ctx, sessionID); err == nil && record != nil {
			project = record.Project
		}

		if err := s.sup.Start(ctx, sessionID, project); err != nil {
			s.logger.Warn("failed to restart session",
				logging.String(logging.FieldSessionID, sessionID),
				logging.Error(err),
			)
			report.SessionsSkipped++
			report.SkippedIDs = append(report.SkippedIDs, sessionID)
			continue
		}
		report.SessionsStarted++
		report.StartedIDs = append(report.StartedIDs, sessionID)
	}

	if report.SessionsStarted > 0 || report.ItemsReset > 0 {
		s.logger.Info("recovery sweep finished",
			logging.Int64("items_reset", report.ItemsReset),
			logging.Int("sessions_expired", report.SessionsExpired),
			logging.Int("pending_sessions", report.TotalPendingSessions),
			logging.Int("sessions_started", report.SessionsStarted),
			logging.Int("sessions_skipped", report.SessionsSkipped),
		)
		if s.notifier != nil {
			if err := s.notifier.NotifyRecoverySweep(ctx, int(report.ItemsReset), report.SessionsStarted); err != nil {
				s.logger.Debug("notification failed", logging.Error(err))
			}
		}
		s.sup.PublishStatus(ctx)
	}

	return report, nil
}
