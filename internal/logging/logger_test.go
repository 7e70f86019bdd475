package logging_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scribe/internal/logging"
)

func readLog(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	return string(data)
}

func TestConsoleFormatIncludesComponentPrefix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scribe.log")
	logger, err := logging.New(logging.Options{
		Level:       "info",
		Format:      "console",
		OutputPaths: []string{path},
	})
	if err != nil {
		t.Fatalf("logging.New failed: %v", err)
	}

	component := logging.NewComponentLogger(logger, "supervisor")
	component.Info("processor started", logging.String(logging.FieldSessionID, "session-1"))

	out := readLog(t, path)
	if !strings.Contains(out, "supervisor: processor started") {
		t.Fatalf("expected component prefix, got %q", out)
	}
	if !strings.Contains(out, "session_id=session-1") {
		t.Fatalf("expected session attribute, got %q", out)
	}
	// The component renders as a prefix, never as a key=value pair.
	if strings.Contains(out, "component=") {
		t.Fatalf("component attribute leaked into fields: %q", out)
	}
}

func TestJSONFormatEmitsStructuredRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scribe.log")
	logger, err := logging.New(logging.Options{
		Level:       "debug",
		Format:      "json",
		OutputPaths: []string{path},
	})
	if err != nil {
		t.Fatalf("logging.New failed: %v", err)
	}

	logging.NewComponentLogger(logger, "recovery").Info("sweep finished", logging.Int("items_reset", 3))

	line := strings.TrimSpace(readLog(t, path))
	var record map[string]any
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		t.Fatalf("log line is not JSON: %v\n%s", err, line)
	}
	if record["msg"] != "sweep finished" {
		t.Fatalf("unexpected msg field: %v", record["msg"])
	}
	if record["component"] != "recovery" {
		t.Fatalf("unexpected component field: %v", record["component"])
	}
	if record["items_reset"] != float64(3) {
		t.Fatalf("unexpected items_reset field: %v", record["items_reset"])
	}
}

func TestLevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scribe.log")
	logger, err := logging.New(logging.Options{
		Level:       "warn",
		Format:      "console",
		OutputPaths: []string{path},
	})
	if err != nil {
		t.Fatalf("logging.New failed: %v", err)
	}

	logger.Info("quiet info")
	logger.Warn("loud warning")

	out := readLog(t, path)
	if strings.Contains(out, "quiet info") {
		t.Fatalf("info record should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "loud warning") {
		t.Fatalf("warn record missing: %q", out)
	}
}

func TestUnsupportedFormatRejected(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected unsupported format error")
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	// Must not panic and must report disabled at every level.
	logger.Error("discarded", logging.Error(nil))
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("expected nop logger to be disabled")
	}
}
