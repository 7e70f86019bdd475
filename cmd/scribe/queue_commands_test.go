package main

import (
	"testing"
	"time"

	"scribe/internal/ipc"
)

func TestEnqueueAndQueueList(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t,
		[]string{"enqueue", "session-cli", "--project", "demo", "--payload", "tool output"},
		env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	requireContains(t, out, "Enqueued item")
	requireContains(t, out, "session-cli")

	// The command backend (true) drains the item quickly.
	deadline := time.Now().Add(5 * time.Second)
	for {
		out, _, err = runCLI(t, []string{"queue", "list", "--status", "completed"}, env.socketPath, env.configPath)
		if err != nil {
			t.Fatalf("queue list: %v", err)
		}
		if !containsEmptyQueue(out) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("item never completed, last output:\n%s", out)
		}
		time.Sleep(20 * time.Millisecond)
	}
	requireContains(t, out, "session-cli")
	requireContains(t, out, "completed")
}

func containsEmptyQueue(out string) bool {
	return len(out) > 0 && out == "Queue is empty\n"
}

func TestEnqueueRequiresPayload(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"enqueue", "session-cli"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected missing payload to be rejected")
	}
}

func TestQueueHealthCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"queue", "health"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue health: %v", err)
	}
	requireContains(t, out, "work_items table present: yes")
	requireContains(t, out, "Integrity check: yes")
	requireContains(t, out, "Missing columns: none")
}

func TestSessionsCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"sessions"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	requireContains(t, out, "No sessions recorded")

	if _, _, err := runCLI(t,
		[]string{"enqueue", "session-history", "--payload", "work"},
		env.socketPath, env.configPath); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	out, _, err = runCLI(t, []string{"sessions"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	requireContains(t, out, "session-history")
}

func TestRecoverCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"recover", "--limit", "5"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	requireContains(t, out, "Items reset: 0")
	requireContains(t, out, "Sessions with pending work: 0")
}

func TestTestNotifyCommandWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"test-notify"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "topic not configured")
}

func TestNotifyOutcome(t *testing.T) {
	if got := notifyOutcome(&ipc.TestNotificationResponse{Message: "topic not configured"}); got != "topic not configured" {
		t.Fatalf("expected daemon message preferred, got %q", got)
	}
	if got := notifyOutcome(&ipc.TestNotificationResponse{Sent: true}); got != "Test notification sent" {
		t.Fatalf("unexpected sent outcome %q", got)
	}
	if got := notifyOutcome(&ipc.TestNotificationResponse{}); got != "Notification not sent" {
		t.Fatalf("unexpected default outcome %q", got)
	}
}

func TestShortIDAndTruncate(t *testing.T) {
	if got := shortID("0123456789abcdef"); got != "01234567" {
		t.Fatalf("shortID = %q", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Fatalf("shortID short input = %q", got)
	}
	if got := truncate("a long error message that keeps going", 12); got != "a long er..." {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("short", 12); got != "short" {
		t.Fatalf("truncate short input = %q", got)
	}
}
