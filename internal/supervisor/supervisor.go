package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"scribe/internal/backend"
	"scribe/internal/broadcast"
	"scribe/internal/logging"
	"scribe/internal/notify"
	"scribe/internal/registry"
	"scribe/internal/store"
)

// Supervisor drives session processors. It enforces the single-active-
// processor guarantee through the registry's attach check and guarantees
// that every processor, however it exits, detaches exactly once and pushes
// a final status snapshot.
type Supervisor struct {
	store       *store.Store
	registry    *registry.Registry
	selector    *backend.Selector
	broadcaster *broadcast.Broadcaster
	notifier    notify.Service
	logger      *slog.Logger

	backendTimeout time.Duration

	wg sync.WaitGroup
}

// Options configures optional supervisor behavior.
type Options struct {
	// BackendTimeout bounds a single backend call. Zero disables the
	// ceiling; the recovery stuck-threshold remains the backstop.
	BackendTimeout time.Duration
}

// New constructs a supervisor. The notifier may be nil.
func New(st *store.Store, reg *registry.Registry, sel *backend.Selector, bc *broadcast.Broadcaster, notifier notify.Service, logger *slog.Logger, opts Options) *Supervisor {
	return &Supervisor{
		store:          st,
		registry:       reg,
		selector:       sel,
		broadcaster:    bc,
		notifier:       notifier,
		logger:         logging.NewComponentLogger(logger, "supervisor"),
		backendTimeout: opts.BackendTimeout,
	}
}

// Start launches a processor for the session unless one is already live,
// in which case it is a no-op. The backend is selected fresh on every
// start. The processor runs under a fresh cancellation handle derived from
// ctx; a handle signalled by a previous run is never reused.
func (s *Supervisor) Start(ctx context.Context, sessionID, project string) error {
	sess := s.registry.GetOrCreate(sessionID, project)

	procCtx, err := s.registry.AttachProcessor(ctx, sessionID)
	if err != nil {
		if errors.Is(err, registry.ErrProcessorActive) {
			s.logger.Debug("processor already running",
				logging.String(logging.FieldSessionID, sessionID),
			)
			return nil
		}
		return err
	}

	b, err := s.selector.Select(procCtx)
	if err != nil {
		s.registry.DetachProcessor(sessionID)
		return err
	}

	s.logger.Info("processor started",
		logging.String(logging.FieldSessionID, sessionID),
		logging.String(logging.FieldBackend, b.Name()),
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if !s.run(procCtx, sess, b) {
			return
		}
		// A submission racing the drain is swallowed as a conflict no-op
		// while this processor's handle is still live. The handle is
		// released once run returns, so restart if backlog arrived in
		// that window.
		if ctx.Err() != nil {
			return
		}
		count, err := s.store.PendingCount(ctx, sessionID)
		if err != nil || count == 0 {
			return
		}
		if err := s.Start(ctx, sessionID, project); err != nil {
			s.logger.Warn("failed to restart session after late submission",
				logging.String(logging.FieldSessionID, sessionID),
				logging.Error(err),
			)
		}
	}()
	return nil
}

// Wait blocks until every processor launched by Start has returned.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// run is the processor loop: claim the next pending item, hand it to the
// backend, record the outcome, repeat until the session drains or the
// cancellation handle fires. The detach and the final status push run on
// every exit path. Returns true only when the session drained.
func (s *Supervisor) run(ctx context.Context, sess *registry.Session, b backend.Backend) bool {
	sessionID := sess.ID
	logger := s.logger.With(logging.String(logging.FieldSessionID, sessionID))
	processed := 0

	defer func() {
		s.registry.DetachProcessor(sessionID)
		s.PublishStatus(context.Background())
	}()

	for {
		if ctx.Err() != nil {
			logger.Debug("processor cancelled")
			return false
		}

		item, err := s.store.ClaimNext(ctx, sessionID)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			// Store trouble stops this processor; the backlog stays pending
			// and the next recovery sweep retries the session.
			logger.Error("failed to claim next item",
				logging.Error(err),
				logging.String(logging.FieldEventType, "claim_failed"),
				logging.String(logging.FieldErrorHint, "check work database access"),
			)
			return false
		}

		if item == nil {
			s.finishSession(ctx, logger, sessionID, processed)
			return true
		}

		s.processItem(ctx, logger, b, sess, item)
		if ctx.Err() != nil {
			// Cancellation observed mid-call: the in-flight item stays
			// processing and is reclaimed later by the stuck-item sweep.
			logger.Info("processor stopped by cancellation",
				logging.String(logging.FieldItemID, item.ID),
			)
			return false
		}

		processed++
		s.registry.Touch(sessionID)
		s.PublishStatus(ctx)
	}
}

func (s *Supervisor) processItem(ctx context.Context, logger *slog.Logger, b backend.Backend, sess *registry.Session, item *store.Item) {
	started := time.Now()

	callCtx := ctx
	if s.backendTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.backendTimeout)
		defer cancel()
	}

	err := b.Process(callCtx, backend.Request{
		SessionID: sess.ID,
		Project:   sess.Project,
		ItemID:    item.ID,
		Payload:   item.Payload,
	})

	if ctx.Err() != nil {
		// Leave the item in processing; marking it here would race the
		// shutdown path that reclaims it.
		return
	}

	if err != nil {
		logger.Warn("backend call failed",
			logging.String(logging.FieldItemID, item.ID),
			logging.String(logging.FieldBackend, b.Name()),
			logging.Error(err),
			logging.Duration(logging.FieldDuration, time.Since(started)),
		)
		updated, markErr := s.store.MarkFailed(context.WithoutCancel(ctx), item.ID, err.Error())
		if markErr != nil {
			logger.Error("failed to record item failure", logging.Error(markErr))
			return
		}
		if updated != nil && updated.Status == store.StatusFailed {
			logger.Error("item exhausted retries",
				logging.String(logging.FieldItemID, item.ID),
				logging.Int(logging.FieldRetries, updated.RetryCount),
			)
			if s.notifier != nil {
				if notifyErr := s.notifier.NotifyProcessingError(ctx, sess.ID, item.ID, err); notifyErr != nil {
					logger.Debug("notification failed", logging.Error(notifyErr))
				}
			}
		}
		return
	}

	if markErr := s.store.MarkCompleted(context.WithoutCancel(ctx), item.ID); markErr != nil {
		logger.Error("failed to record item completion", logging.Error(markErr))
		return
	}
	logger.Debug("item completed",
		logging.String(logging.FieldItemID, item.ID),
		logging.Duration(logging.FieldDuration, time.Since(started)),
	)
}

// finishSession runs when a processor finds no pending work: the session is
// durably completed and dropped from the registry.
func (s *Supervisor) finishSession(ctx context.Context, logger *slog.Logger, sessionID string, processed int) {
	if err := s.store.SetSessionStatus(context.WithoutCancel(ctx), sessionID, store.SessionCompleted); err != nil {
		logger.Warn("failed to persist session completion", logging.Error(err))
	}
	s.registry.Complete(sessionID)
	logger.Info("session drained",
		logging.String(logging.FieldEventType, "session_completed"),
		logging.Int("items_processed", processed),
	)
	if s.notifier != nil && processed > 0 {
		if err := s.notifier.NotifySessionCompleted(ctx, sessionID, processed); err != nil {
			logger.Debug("notification failed", logging.Error(err))
		}
	}
}

// PublishStatus recomputes the aggregate snapshot and pushes it to the
// broadcaster. Failures to read the store degrade to a processing-only
// snapshot rather than suppressing the push.
func (s *Supervisor) PublishStatus(ctx context.Context) {
	if s.broadcaster == nil {
		return
	}
	depth, err := s.store.QueueDepth(ctx)
	if err != nil {
		s.logger.Debug("failed to read queue depth for status push", logging.Error(err))
	}
	s.broadcaster.Publish(broadcast.Snapshot{
		Processing: s.registry.AnyLiveProcessor(),
		QueueDepth: depth,
	})
}

// Status returns a point-in-time snapshot without publishing it.
func (s *Supervisor) Status(ctx context.Context) (broadcast.Snapshot, error) {
	depth, err := s.store.QueueDepth(ctx)
	if err != nil {
		return broadcast.Snapshot{}, err
	}
	return broadcast.Snapshot{
		Processing: s.registry.AnyLiveProcessor(),
		QueueDepth: depth,
		At:         time.Now().UTC(),
	}, nil
}
