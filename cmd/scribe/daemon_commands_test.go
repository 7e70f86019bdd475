package main

import (
	"testing"
)

func TestStatusCommandShowsDaemonState(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Daemon")
	requireContains(t, out, "fully_ready")
	requireContains(t, out, "Queue is empty")
}

func TestStatusCommandOfflineFallback(t *testing.T) {
	env := setupCLITestEnv(t)

	// Point at a socket nobody listens on.
	out, _, err := runCLI(t, []string{"status"}, env.socketPath+".gone", env.configPath)
	if err != nil {
		t.Fatalf("status against dead socket: %v", err)
	}
	requireContains(t, out, "Not running")
}

func TestStatusCommandJSONOffline(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status", "--json"}, env.socketPath+".gone", env.configPath)
	if err != nil {
		t.Fatalf("status --json against dead socket: %v", err)
	}
	requireContains(t, out, `"state": "stopped"`)
}

func TestBuildQueueStatusRows(t *testing.T) {
	rows := buildQueueStatusRows(map[string]int{
		"pending":   3,
		"failed":    1,
		"completed": 0,
	})
	if len(rows) != 2 {
		t.Fatalf("expected zero counts skipped, got %d rows", len(rows))
	}
	// Sorted by status name.
	if rows[0][0] != "failed" || rows[1][0] != "pending" {
		t.Fatalf("unexpected row order: %v", rows)
	}
	if rows[1][1] != "3" {
		t.Fatalf("unexpected count cell: %v", rows[1])
	}

	if rows := buildQueueStatusRows(nil); len(rows) != 0 {
		t.Fatalf("expected no rows for empty stats, got %v", rows)
	}
}
