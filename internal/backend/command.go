package backend

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"scribe/internal/config"
)

// commandBackend pipes work-item payloads to a configured external binary.
// The session and item identifiers are passed through the environment so
// the command can correlate output without parsing its stdin.
type commandBackend struct {
	cfg config.CommandBackend
}

func newCommandBackend(cfg config.CommandBackend) *commandBackend {
	return &commandBackend{cfg: cfg}
}

func (b *commandBackend) Name() string { return "command" }

// Available probes the configured binary on PATH on every call, so
// installing or removing the tool takes effect without a daemon restart.
func (b *commandBackend) Available(_ context.Context) bool {
	if b.cfg.Binary == "" {
		return false
	}
	_, err := exec.LookPath(b.cfg.Binary)
	return err == nil
}

func (b *commandBackend) Process(ctx context.Context, req Request) error {
	timeout := time.Duration(b.cfg.TimeoutSeconds) * time.Second
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, b.cfg.Binary, b.cfg.Args...)
	cmd.Stdin = strings.NewReader(req.Payload)
	cmd.Env = append(cmd.Environ(),
		"SCRIBE_SESSION_ID="+req.SessionID,
		"SCRIBE_ITEM_ID="+req.ItemID,
		"SCRIBE_PROJECT="+req.Project,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return &Error{Backend: b.Name(), Err: ctx.Err()}
		}
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return &Error{Backend: b.Name(), Err: fmt.Errorf("%w: %s", err, truncate(detail, 512))}
		}
		return &Error{Backend: b.Name(), Err: err}
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
