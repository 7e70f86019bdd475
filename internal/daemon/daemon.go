package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"scribe/internal/api"
	"scribe/internal/backend"
	"scribe/internal/broadcast"
	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/notify"
	"scribe/internal/recovery"
	"scribe/internal/registry"
	"scribe/internal/store"
	"scribe/internal/supervisor"
)

// State is the daemon lifecycle phase. Transitions are one-directional;
// shutting down is reachable from any state.
type State int32

const (
	StateStarting State = iota
	StateCoreReady
	StateFullyReady
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateCoreReady:
		return "core_ready"
	case StateFullyReady:
		return "fully_ready"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ErrNotReady is returned for operations that need the core initialized.
var ErrNotReady = errors.New("daemon core not ready")

// Daemon sequences startup and shutdown for every component and exposes
// the operations the HTTP and IPC surfaces call. The external listener is
// bound before the slower initialization so early callers get a retry-able
// status instead of connection refused.
type Daemon struct {
	cfg         *config.Config
	baseLogger  *slog.Logger
	logger      *slog.Logger
	broadcaster *broadcast.Broadcaster
	notifier    notify.Service

	lockPath string
	lock     *flock.Flock

	state atomic.Int32

	mu        sync.Mutex
	store     *store.Store
	registry  *registry.Registry
	sup       *supervisor.Supervisor
	scheduler *recovery.Scheduler
	apiSrv    *apiServer

	runCtx    context.Context
	runCancel context.CancelFunc

	stopOnce sync.Once
	done     chan struct{}
}

// New constructs a daemon with its ambient collaborators. Heavy resources
// (listener, database, backends) are not touched until Start.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := filepath.Join(cfg.Paths.LogDir, "scribed.lock")
	d := &Daemon{
		cfg:         cfg,
		baseLogger:  logger,
		logger:      logging.NewComponentLogger(logger, "daemon"),
		broadcaster: broadcast.New(logger),
		notifier:    notify.NewService(cfg),
		lockPath:    lockPath,
		lock:        flock.New(lockPath),
		done:        make(chan struct{}),
	}
	d.state.Store(int32(StateStarting))
	return d, nil
}

// State returns the current lifecycle phase.
func (d *Daemon) State() State {
	return State(d.state.Load())
}

// Done is closed once shutdown completes.
func (d *Daemon) Done() <-chan struct{} {
	return d.done
}

// Broadcaster exposes the status fan-out for transports.
func (d *Daemon) Broadcaster() *broadcast.Broadcaster {
	return d.broadcaster
}

// APIAddr returns the bound HTTP listener address, or an empty string when
// the HTTP surface is disabled or not yet started.
func (d *Daemon) APIAddr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.apiSrv == nil {
		return ""
	}
	return d.apiSrv.addr()
}

// Start brings the daemon up: acquire the single-instance lock, bind the
// API listener, then run the slower initialization (open the store, wire
// the supervisor, run the startup recovery sweep) before declaring full
// readiness.
func (d *Daemon) Start(ctx context.Context) error {
	if State(d.state.Load()) != StateStarting {
		return errors.New("daemon already started")
	}

	if err := d.cfg.EnsureDirectories(); err != nil {
		return err
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another scribed instance is already running")
	}

	d.runCtx, d.runCancel = context.WithCancel(context.WithoutCancel(ctx))

	// Reachable before ready: the listener comes up first and serves 503
	// until the core is initialized.
	apiSrv, err := newAPIServer(d.cfg, d, d.baseLogger)
	if err != nil {
		d.releaseLock()
		return err
	}
	if apiSrv != nil {
		if err := apiSrv.start(d.runCtx); err != nil {
			d.releaseLock()
			return err
		}
	}

	st, err := store.Open(d.cfg)
	if err != nil {
		if apiSrv != nil {
			apiSrv.stop()
		}
		d.releaseLock()
		return fmt.Errorf("open store: %w", err)
	}

	reg := registry.New(d.baseLogger)
	selector := backend.NewSelector(d.cfg, d.baseLogger)
	sup := supervisor.New(st, reg, selector, d.broadcaster, d.notifier, d.baseLogger, supervisor.Options{
		BackendTimeout: time.Duration(d.cfg.Workflow.BackendTimeoutSeconds) * time.Second,
	})
	scheduler := recovery.New(st, reg, sup, d.notifier, d.baseLogger, recovery.Options{
		StuckThreshold:        time.Duration(d.cfg.Workflow.StuckThresholdMinutes) * time.Minute,
		StaleSessionThreshold: time.Duration(d.cfg.Workflow.StaleSessionMinutes) * time.Minute,
		Interval:              time.Duration(d.cfg.Workflow.RecoveryIntervalMinutes) * time.Minute,
		StartupSessionLimit:   d.cfg.Workflow.StartupSessionLimit,
		IntervalSessionLimit:  d.cfg.Workflow.IntervalSessionLimit,
	})

	d.mu.Lock()
	d.store = st
	d.registry = reg
	d.sup = sup
	d.scheduler = scheduler
	d.apiSrv = apiSrv
	d.mu.Unlock()

	d.state.Store(int32(StateCoreReady))
	d.logger.Info("core ready", logging.String("db", st.Path()))

	report, err := scheduler.RunStartup(d.runCtx)
	if err != nil {
		d.logger.Error("startup recovery sweep failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "startup_recovery_failed"),
			logging.String(logging.FieldErrorHint, "check work database access"),
		)
	} else if report.TotalPendingSessions > 0 {
		d.logger.Info("startup recovery sweep finished",
			logging.Int64("items_reset", report.ItemsReset),
			logging.Int("pending_sessions", report.TotalPendingSessions),
			logging.Int("sessions_started", report.SessionsStarted),
		)
	}

	go scheduler.Run(d.runCtx)

	d.state.Store(int32(StateFullyReady))
	d.logger.Info("scribed started",
		logging.String("lock", d.lockPath),
		logging.String("bind", d.cfg.Paths.APIBind),
	)
	return nil
}

// Shutdown stops the daemon: cancel the recovery timer and every session's
// handle, wait up to the drain timeout for live processors to self-detach,
// force-abandon the rest, then close the store and the listener. Safe to
// call concurrently and more than once.
func (d *Daemon) Shutdown(ctx context.Context) error {
	d.stopOnce.Do(func() {
		d.state.Store(int32(StateShuttingDown))
		d.logger.Info("shutdown started")

		if d.runCancel != nil {
			d.runCancel()
		}

		d.mu.Lock()
		reg := d.registry
		st := d.store
		apiSrv := d.apiSrv
		d.mu.Unlock()

		if reg != nil {
			handles := reg.CancelAll()
			timeout := time.Duration(d.cfg.Workflow.DrainTimeoutSeconds) * time.Second
			if !waitForHandles(ctx, handles, timeout) {
				// Expected degradation, not an error: abandoned processors
				// left their in-flight item in processing for the next
				// startup sweep to reclaim.
				d.logger.Warn("drain timeout reached, abandoning live processors",
					logging.Duration("timeout", timeout),
				)
			} else if len(handles) > 0 {
				d.logger.Info("all processors drained",
					logging.Int("count", len(handles)),
				)
			}
		}

		if st != nil {
			if err := st.Close(); err != nil {
				d.logger.Warn("failed to close store", logging.Error(err))
			}
		}
		if apiSrv != nil {
			apiSrv.stop()
		}
		d.releaseLock()

		d.state.Store(int32(StateStopped))
		d.logger.Info("scribed stopped")
		close(d.done)
	})

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Daemon) releaseLock() {
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}

func waitForHandles(ctx context.Context, handles []<-chan struct{}, timeout time.Duration) bool {
	if len(handles) == 0 {
		return true
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for _, handle := range handles {
		select {
		case <-handle:
		case <-deadline.C:
			return false
		case <-ctx.Done():
			return false
		}
	}
	return true
}

// Enqueue durably records one work submission and nudges the session's
// processor. Validation failures are rejected before touching the store.
func (d *Daemon) Enqueue(ctx context.Context, sessionID, project, payload string) (*store.Item, error) {
	if err := d.requireCore(); err != nil {
		return nil, err
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}
	if strings.TrimSpace(payload) == "" {
		return nil, errors.New("payload is required")
	}

	d.mu.Lock()
	st := d.store
	sup := d.sup
	runCtx := d.runCtx
	d.mu.Unlock()

	item, err := st.Enqueue(ctx, sessionID, project, payload)
	if err != nil {
		return nil, err
	}

	// A rejected start (no backend available) leaves the item pending for
	// the next recovery sweep; acceptance only promises durability.
	if err := sup.Start(runCtx, sessionID, project); err != nil {
		d.logger.Warn("could not start processor for submission",
			logging.String(logging.FieldSessionID, sessionID),
			logging.Error(err),
		)
	}
	sup.PublishStatus(ctx)

	return item, nil
}

// Status assembles the daemon status snapshot.
func (d *Daemon) Status(ctx context.Context) api.StatusResponse {
	resp := api.StatusResponse{
		State:        d.State().String(),
		LockFilePath: d.lockPath,
		PID:          os.Getpid(),
	}

	d.mu.Lock()
	st := d.store
	reg := d.registry
	sup := d.sup
	d.mu.Unlock()

	if st == nil || sup == nil {
		return resp
	}
	resp.DBPath = st.Path()
	resp.TrackedSessions = reg.Len()

	if snapshot, err := sup.Status(ctx); err == nil {
		resp.Processing = snapshot.Processing
		resp.QueueDepth = snapshot.QueueDepth
	}
	if stats, err := st.Stats(ctx); err == nil {
		converted := make(map[string]int, len(stats))
		for status, count := range stats {
			converted[string(status)] = count
		}
		resp.QueueStats = converted
	}
	return resp
}

// QueueList returns work items filtered by optional statuses.
func (d *Daemon) QueueList(ctx context.Context, statuses []store.ItemStatus) ([]*store.Item, error) {
	if err := d.requireCore(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	st := d.store
	d.mu.Unlock()
	return st.List(ctx, statuses...)
}

// Sessions returns the durable session history.
func (d *Daemon) Sessions(ctx context.Context) ([]*store.SessionRecord, error) {
	if err := d.requireCore(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	st := d.store
	d.mu.Unlock()
	return st.ListSessions(ctx)
}

// QueueHealth returns aggregate queue diagnostics.
func (d *Daemon) QueueHealth(ctx context.Context) (store.HealthSummary, error) {
	if err := d.requireCore(); err != nil {
		return store.HealthSummary{}, err
	}
	d.mu.Lock()
	st := d.store
	d.mu.Unlock()
	return st.Health(ctx)
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (store.DatabaseHealth, error) {
	if err := d.requireCore(); err != nil {
		return store.DatabaseHealth{}, err
	}
	d.mu.Lock()
	st := d.store
	d.mu.Unlock()
	return st.CheckHealth(ctx)
}

// RecoverNow runs a recovery sweep on demand with the given session limit.
func (d *Daemon) RecoverNow(ctx context.Context, sessionLimit int) (recovery.Report, error) {
	if err := d.requireCore(); err != nil {
		return recovery.Report{}, err
	}
	d.mu.Lock()
	scheduler := d.scheduler
	d.mu.Unlock()
	if sessionLimit <= 0 {
		sessionLimit = d.cfg.Workflow.IntervalSessionLimit
	}
	return scheduler.RunOnce(ctx, sessionLimit)
}

// TestNotification triggers a test notification with the current settings.
func (d *Daemon) TestNotification(ctx context.Context) error {
	return d.notifier.TestNotification(ctx)
}

func (d *Daemon) requireCore() error {
	switch d.State() {
	case StateCoreReady, StateFullyReady:
		return nil
	default:
		return ErrNotReady
	}
}
