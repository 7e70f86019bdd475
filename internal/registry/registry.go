package registry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"scribe/internal/logging"
)

// ErrProcessorActive is returned by AttachProcessor when a live processor is
// already attached to the session. Callers treat it as a benign no-op.
var ErrProcessorActive = errors.New("processor already active for session")

// ErrUnknownSession is returned when an operation references a session the
// registry is not tracking.
var ErrUnknownSession = errors.New("unknown session")

// Status is the in-memory lifecycle of a tracked session.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Session is one logical unit of ongoing work tracked in memory. The
// cancellation handle and processor handle are owned by the registry; a
// fresh pair is issued on every AttachProcessor call, so a handle signalled
// by a previous run can never leak into a restart.
type Session struct {
	ID           string
	Project      string
	Status       Status
	StartedAt    time.Time
	LastActivity time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func (s *Session) processorLive() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// BacklogFailer is the narrow store surface CleanupStale needs to fail the
// remaining backlog of an expired session.
type BacklogFailer interface {
	FailPending(ctx context.Context, sessionID, reason string) (int64, error)
}

// Registry is the in-memory table of known sessions. It exclusively owns
// Session objects; other components hold non-owning references for
// coordination only.
type Registry struct {
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// New constructs an empty session registry.
func New(logger *slog.Logger) *Registry {
	return &Registry{
		logger:   logging.NewComponentLogger(logger, "registry"),
		sessions: make(map[string]*Session),
	}
}

// GetOrCreate returns the tracked session, creating one in active status if
// absent.
func (r *Registry) GetOrCreate(id, project string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sess, ok := r.sessions[id]; ok {
		return sess
	}
	now := time.Now().UTC()
	sess := &Session{
		ID:           id,
		Project:      project,
		Status:       StatusActive,
		StartedAt:    now,
		LastActivity: now,
	}
	r.sessions[id] = sess
	return sess
}

// Get returns the tracked session or nil.
func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

// AttachProcessor installs a fresh processor handle for the session and
// returns the context the processor must run under. It fails with
// ErrProcessorActive when a live processor is already attached; this check
// is the enforcement point for the single-processor-per-session invariant.
func (r *Registry) AttachProcessor(parent context.Context, id string) (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return nil, ErrUnknownSession
	}
	if sess.processorLive() {
		return nil, ErrProcessorActive
	}

	ctx, cancel := context.WithCancel(parent)
	sess.cancel = cancel
	sess.done = make(chan struct{})
	sess.LastActivity = time.Now().UTC()
	return ctx, nil
}

// DetachProcessor clears the session's processor handle. Safe to call more
// than once and for sessions the registry no longer tracks.
func (r *Registry) DetachProcessor(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return
	}
	if sess.cancel != nil {
		sess.cancel()
		sess.cancel = nil
	}
	if sess.done != nil {
		select {
		case <-sess.done:
		default:
			close(sess.done)
		}
	}
}

// Touch updates the session's last-activity time.
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[id]; ok {
		sess.LastActivity = time.Now().UTC()
	}
}

// Complete marks the session completed and removes it from the registry.
// The durable history record is the caller's responsibility.
func (r *Registry) Complete(id string) {
	r.remove(id, StatusCompleted)
}

// Fail marks the session failed and removes it from the registry.
func (r *Registry) Fail(id string) {
	r.remove(id, StatusFailed)
}

func (r *Registry) remove(id string, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if !ok {
		return
	}
	sess.Status = status
	// Release the processor handle here as well: removal can race a deferred
	// DetachProcessor, and a drain waiting on the done channel must not hang.
	if sess.cancel != nil {
		sess.cancel()
		sess.cancel = nil
	}
	if sess.done != nil {
		select {
		case <-sess.done:
		default:
			close(sess.done)
		}
	}
	delete(r.sessions, id)
}

// HasLiveProcessor reports whether the session currently has a live
// processor attached.
func (r *Registry) HasLiveProcessor(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	return ok && sess.processorLive()
}

// AnyLiveProcessor reports whether any tracked session has a live processor.
func (r *Registry) AnyLiveProcessor() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sess := range r.sessions {
		if sess.processorLive() {
			return true
		}
	}
	return false
}

// Len returns the number of tracked sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CancelAll signals cancellation on every tracked session's handle and
// returns the processor handles of sessions that were live, so callers can
// wait for them to drain.
func (r *Registry) CancelAll() []<-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	var handles []<-chan struct{}
	for _, sess := range r.sessions {
		if sess.cancel != nil {
			sess.cancel()
		}
		if sess.processorLive() {
			handles = append(handles, sess.done)
		}
	}
	return handles
}

// CleanupStale expires sessions whose last activity is older than the
// threshold and that have no live processor: the session is marked failed,
// removed from the registry, and its remaining pending backlog is failed in
// the store. Individual failures are logged and skipped, never fatal.
// Returns the identifiers of the sessions removed; the caller owns the
// durable history transition for each of them.
func (r *Registry) CleanupStale(ctx context.Context, threshold time.Duration, failer BacklogFailer) []string {
	cutoff := time.Now().UTC().Add(-threshold)

	r.mu.Lock()
	var stale []*Session
	for _, sess := range r.sessions {
		if sess.processorLive() {
			continue
		}
		if sess.LastActivity.Before(cutoff) {
			stale = append(stale, sess)
		}
	}
	for _, sess := range stale {
		sess.Status = StatusFailed
		delete(r.sessions, sess.ID)
	}
	r.mu.Unlock()

	expired := make([]string, 0, len(stale))
	for _, sess := range stale {
		expired = append(expired, sess.ID)
		if failer == nil {
			continue
		}
		failed, err := failer.FailPending(ctx, sess.ID, "session expired after inactivity")
		if err != nil {
			r.logger.Warn("failed to fail backlog of stale session",
				logging.String(logging.FieldSessionID, sess.ID),
				logging.Error(err),
			)
			continue
		}
		if failed > 0 {
			r.logger.Info("expired stale session",
				logging.String(logging.FieldSessionID, sess.ID),
				logging.Int64("items_failed", failed),
			)
		}
	}
	return expired
}
