package recovery_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"scribe/internal/backend"
	"scribe/internal/broadcast"
	"scribe/internal/logging"
	"scribe/internal/recovery"
	"scribe/internal/registry"
	"scribe/internal/store"
	"scribe/internal/supervisor"
	"scribe/internal/testsupport"
)

type noopBackend struct{}

func (noopBackend) Name() string { return "noop" }

func (noopBackend) Available(context.Context) bool { return true }

func (noopBackend) Process(context.Context, backend.Request) error { return nil }

type fixture struct {
	store    *store.Store
	registry *registry.Registry
	sup      *supervisor.Supervisor
}

func newFixture(t *testing.T, b backend.Backend) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	reg := registry.New(logging.NewNop())
	sel := backend.NewSelectorWithBackends(logging.NewNop(), b)
	sup := supervisor.New(st, reg, sel, broadcast.New(logging.NewNop()), nil, logging.NewNop(), supervisor.Options{})
	return &fixture{store: st, registry: reg, sup: sup}
}

func newScheduler(f *fixture, opts recovery.Options) *recovery.Scheduler {
	return recovery.New(f.store, f.registry, f.sup, nil, logging.NewNop(), opts)
}

func TestRunOnceResetsStuckAndRestarts(t *testing.T) {
	f := newFixture(t, noopBackend{})
	ctx := context.Background()

	// Orphan a claim the way a crash would: claim it and walk away.
	testsupport.Enqueue(t, f.store, "session-1", "orphaned payload")
	if _, err := f.store.ClaimNext(ctx, "session-1"); err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	sched := newScheduler(f, recovery.Options{StuckThreshold: 5 * time.Millisecond})
	report, err := sched.RunOnce(ctx, 10)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if report.ItemsReset != 1 {
		t.Fatalf("expected 1 item reset, got %d", report.ItemsReset)
	}
	if report.SessionsStarted != 1 || len(report.StartedIDs) != 1 {
		t.Fatalf("expected 1 session restarted, got %#v", report)
	}

	f.sup.Wait()
	items, err := f.store.ListSessionItems(ctx, "session-1")
	if err != nil {
		t.Fatalf("ListSessionItems failed: %v", err)
	}
	if len(items) != 1 || items[0].Status != store.StatusCompleted {
		t.Fatalf("expected recovered item completed, got %#v", items)
	}
	if items[0].RetryCount != 0 {
		t.Fatalf("crash recovery consumed a retry: %d", items[0].RetryCount)
	}
}

func TestRunOnceHonorsSessionLimit(t *testing.T) {
	f := newFixture(t, noopBackend{})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		testsupport.Enqueue(t, f.store, fmt.Sprintf("session-%d", i), "payload")
		time.Sleep(2 * time.Millisecond)
	}

	sched := newScheduler(f, recovery.Options{})
	report, err := sched.RunOnce(ctx, 3)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if report.TotalPendingSessions != 5 {
		t.Fatalf("expected 5 pending sessions, got %d", report.TotalPendingSessions)
	}
	if report.SessionsStarted != 3 {
		t.Fatalf("expected 3 sessions started, got %d", report.SessionsStarted)
	}
	if report.SessionsSkipped != 2 {
		t.Fatalf("expected 2 sessions skipped, got %d", report.SessionsSkipped)
	}
	// Oldest backlog goes first.
	if len(report.StartedIDs) != 3 || report.StartedIDs[0] != "session-0" {
		t.Fatalf("unexpected start order: %v", report.StartedIDs)
	}
	f.sup.Wait()
}

func TestRunOnceSkipsLiveProcessors(t *testing.T) {
	release := make(chan struct{})
	blocking := &blockingBackend{release: release}
	f := newFixture(t, blocking)
	ctx := context.Background()

	testsupport.Enqueue(t, f.store, "session-busy", "payload")
	if err := f.sup.Start(ctx, "session-busy", ""); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for !f.registry.HasLiveProcessor("session-busy") {
		if time.Now().After(deadline) {
			t.Fatal("processor never attached")
		}
		time.Sleep(5 * time.Millisecond)
	}

	sched := newScheduler(f, recovery.Options{})
	report, err := sched.RunOnce(ctx, 10)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if report.SessionsStarted != 0 {
		t.Fatalf("expected no restarts while processor live, got %d", report.SessionsStarted)
	}
	if report.SessionsSkipped != 1 || len(report.SkippedIDs) != 1 {
		t.Fatalf("expected the busy session skipped, got %#v", report)
	}

	close(release)
	f.sup.Wait()
}

func TestRunOnceExpiresStaleSessions(t *testing.T) {
	f := newFixture(t, noopBackend{})
	ctx := context.Background()

	sess := f.registry.GetOrCreate("session-stale", "")
	sess.LastActivity = time.Now().UTC().Add(-time.Hour)
	testsupport.Enqueue(t, f.store, "session-stale", "abandoned payload")

	notifier := &recordingNotifier{}
	sched := recovery.New(f.store, f.registry, f.sup, notifier, logging.NewNop(),
		recovery.Options{StaleSessionThreshold: 30 * time.Minute})
	report, err := sched.RunOnce(ctx, 10)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if report.SessionsExpired != 1 {
		t.Fatalf("expected 1 session expired, got %d", report.SessionsExpired)
	}
	// The expired backlog is terminally failed, so nothing restarts.
	if report.SessionsStarted != 0 {
		t.Fatalf("expected no restarts, got %d", report.SessionsStarted)
	}
	items, err := f.store.ListSessionItems(ctx, "session-stale")
	if err != nil {
		t.Fatalf("ListSessionItems failed: %v", err)
	}
	if len(items) != 1 || items[0].Status != store.StatusFailed {
		t.Fatalf("expected backlog failed, got %#v", items)
	}
	record, err := f.store.GetSession(ctx, "session-stale")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if record == nil || record.Status != store.SessionFailed {
		t.Fatalf("expected durable history failed, got %#v", record)
	}
	if len(notifier.failedSessions) != 1 || notifier.failedSessions[0] != "session-stale" {
		t.Fatalf("expected failure notification for expired session, got %v", notifier.failedSessions)
	}
}

type recordingNotifier struct {
	failedSessions []string
}

func (n *recordingNotifier) NotifySessionCompleted(context.Context, string, int) error { return nil }

func (n *recordingNotifier) NotifySessionFailed(_ context.Context, sessionID, _ string) error {
	n.failedSessions = append(n.failedSessions, sessionID)
	return nil
}

func (n *recordingNotifier) NotifyProcessingError(context.Context, string, string, error) error {
	return nil
}

func (n *recordingNotifier) NotifyRecoverySweep(context.Context, int, int) error { return nil }

func (n *recordingNotifier) TestNotification(context.Context) error { return nil }

type blockingBackend struct {
	release chan struct{}
}

func (blockingBackend) Name() string { return "blocking" }

func (blockingBackend) Available(context.Context) bool { return true }

func (b *blockingBackend) Process(ctx context.Context, _ backend.Request) error {
	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
