package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"scribe/internal/api"
	"scribe/internal/config"
	"scribe/internal/daemon"
	"scribe/internal/logging"
	"scribe/internal/testsupport"
)

func startDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	d, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New failed: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = d.Shutdown(ctx)
	})
	return d
}

func waitFor(t *testing.T, what string, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !check() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStartReachesFullReadiness(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := startDaemon(t, cfg)

	if d.State() != daemon.StateFullyReady {
		t.Fatalf("expected fully ready state, got %s", d.State())
	}
	if d.APIAddr() == "" {
		t.Fatal("expected a bound api listener")
	}

	status := d.Status(context.Background())
	if status.State != "fully_ready" {
		t.Fatalf("unexpected status state %q", status.State)
	}
	if status.PID == 0 || status.DBPath == "" {
		t.Fatalf("incomplete status snapshot: %#v", status)
	}
}

func TestOperationsRejectedBeforeStart(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New failed: %v", err)
	}

	if _, err := d.Enqueue(context.Background(), "session-1", "", "payload"); !errors.Is(err, daemon.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if _, err := d.QueueList(context.Background(), nil); !errors.Is(err, daemon.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if _, err := d.RecoverNow(context.Background(), 1); !errors.Is(err, daemon.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}

func TestEnqueueProcessesWork(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := startDaemon(t, cfg)

	ctx := context.Background()
	item, err := d.Enqueue(ctx, "session-1", "demo", "work payload")
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if item.ID == "" {
		t.Fatal("expected item ID to be assigned")
	}

	waitFor(t, "item completion", func() bool {
		status := d.Status(ctx)
		return status.QueueStats["completed"] == 1 && !status.Processing
	})
}

func TestEnqueueValidatesInput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := startDaemon(t, cfg)

	if _, err := d.Enqueue(context.Background(), "  ", "", "payload"); err == nil {
		t.Fatal("expected error for blank session id")
	}
	if _, err := d.Enqueue(context.Background(), "session-1", "", ""); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestSecondInstanceRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	startDaemon(t, cfg)

	second, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New failed: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		t.Fatal("expected second instance to fail on the lock")
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := startDaemon(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if d.State() != daemon.StateStopped {
		t.Fatalf("expected stopped state, got %s", d.State())
	}
	select {
	case <-d.Done():
	default:
		t.Fatal("expected done channel closed")
	}
	if err := d.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown failed: %v", err)
	}
}

func TestShutdownDrainsLiveProcessor(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithCommandBackend("sleep", "30"),
		testsupport.WithDrainTimeout(2),
	)
	d := startDaemon(t, cfg)

	ctx := context.Background()
	item, err := d.Enqueue(ctx, "session-slow", "", "slow payload")
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	st := testsupport.MustOpenStore(t, cfg)
	waitFor(t, "processor to claim the item", func() bool {
		got, err := st.GetItem(ctx, item.ID)
		return err == nil && got.Status == "processing"
	})

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	started := time.Now()
	if err := d.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	// Cancellation stops the backend call, so the bounded drain finishes
	// without waiting out the 30-second command.
	if elapsed := time.Since(started); elapsed > 10*time.Second {
		t.Fatalf("shutdown took %s, drain was not bounded", elapsed)
	}
	if d.State() != daemon.StateStopped {
		t.Fatalf("expected stopped state, got %s", d.State())
	}
	select {
	case <-d.Done():
	default:
		t.Fatal("expected done channel closed")
	}

	// The interrupted item stays processing with no retry consumed; the
	// stuck sweep reclaims it on the next start.
	got, err := st.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if got.Status != "processing" {
		t.Fatalf("expected interrupted item left processing, got %s", got.Status)
	}
	if got.RetryCount != 0 {
		t.Fatalf("expected retry count 0, got %d", got.RetryCount)
	}
}

func TestHTTPStatusEndpoint(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := startDaemon(t, cfg)

	resp, err := http.Get("http://" + d.APIAddr() + "/api/status")
	if err != nil {
		t.Fatalf("status request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var status api.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status failed: %v", err)
	}
	if status.State != "fully_ready" {
		t.Fatalf("unexpected state %q", status.State)
	}
}

func TestHTTPSessionEvents(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := startDaemon(t, cfg)
	base := "http://" + d.APIAddr()

	body, _ := json.Marshal(api.SubmitRequest{Payload: "tool call output"})
	resp, err := http.Post(base+"/api/sessions/session-1/events", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("submit request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	var submitted api.SubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&submitted); err != nil {
		t.Fatalf("decode submit response failed: %v", err)
	}
	if submitted.Item.SessionID != "session-1" {
		t.Fatalf("unexpected item %#v", submitted.Item)
	}

	// Malformed body.
	resp, err = http.Post(base+"/api/sessions/session-1/events", "application/json", bytes.NewReader([]byte("{")))
	if err != nil {
		t.Fatalf("submit request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", resp.StatusCode)
	}

	// Empty payload.
	body, _ = json.Marshal(api.SubmitRequest{Payload: "   "})
	resp, err = http.Post(base+"/api/sessions/session-1/events", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("submit request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty payload, got %d", resp.StatusCode)
	}

	// Missing events suffix.
	resp, err = http.Post(base+"/api/sessions/session-1", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("submit request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for bad path, got %d", resp.StatusCode)
	}
}

func TestHTTPQueueEndpoint(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := startDaemon(t, cfg)
	base := "http://" + d.APIAddr()

	ctx := context.Background()
	if _, err := d.Enqueue(ctx, "session-1", "", "queued payload"); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	waitFor(t, "item completion", func() bool {
		return d.Status(ctx).QueueStats["completed"] == 1
	})

	resp, err := http.Get(base + "/api/queue?status=completed")
	if err != nil {
		t.Fatalf("queue request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var list api.QueueListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode queue response failed: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].Status != "completed" {
		t.Fatalf("unexpected queue listing %#v", list.Items)
	}

	resp, err = http.Get(base + "/api/queue?status=bogus")
	if err != nil {
		t.Fatalf("queue request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", resp.StatusCode)
	}
}

func TestHTTPStatusStreamSendsCurrentSnapshot(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := startDaemon(t, cfg)

	reqCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, "http://"+d.APIAddr()+"/api/status/stream", nil)
	if err != nil {
		t.Fatalf("build request failed: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	// The first frame arrives without any publish happening.
	buf := make([]byte, 512)
	n, err := resp.Body.Read(buf)
	if err != nil {
		t.Fatalf("read stream failed: %v", err)
	}
	frame := string(buf[:n])
	if !bytes.HasPrefix(buf[:n], []byte("data: ")) {
		t.Fatalf("unexpected frame %q", frame)
	}
}

func TestHTTPShutdownStopsDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := startDaemon(t, cfg)

	resp, err := http.Post("http://"+d.APIAddr()+"/api/shutdown", "application/json", nil)
	if err != nil {
		t.Fatalf("shutdown request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	select {
	case <-d.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop after shutdown request")
	}
	if d.State() != daemon.StateStopped {
		t.Fatalf("expected stopped state, got %s", d.State())
	}
}

func TestRestartRecoversBacklog(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	// Seed backlog directly, the way work left behind by a dead process
	// would look on the next boot.
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.Enqueue(t, st, "session-1", "left behind")
	if err := st.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	d := startDaemon(t, cfg)
	ctx := context.Background()
	waitFor(t, "startup recovery", func() bool {
		return d.Status(ctx).QueueStats["completed"] == 1
	})
}

func TestRecoverNowReportsSweep(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := startDaemon(t, cfg)

	report, err := d.RecoverNow(context.Background(), 5)
	if err != nil {
		t.Fatalf("RecoverNow failed: %v", err)
	}
	if report.TotalPendingSessions != 0 {
		t.Fatalf("expected empty sweep, got %#v", report)
	}
}

func TestStateStringLabels(t *testing.T) {
	labels := map[daemon.State]string{
		daemon.StateStarting:     "starting",
		daemon.StateCoreReady:    "core_ready",
		daemon.StateFullyReady:   "fully_ready",
		daemon.StateShuttingDown: "shutting_down",
		daemon.StateStopped:      "stopped",
	}
	for state, want := range labels {
		if got := state.String(); got != want {
			t.Fatalf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
	if got := daemon.State(99).String(); got != "unknown" {
		t.Fatalf("unexpected label for invalid state: %q", got)
	}
}
