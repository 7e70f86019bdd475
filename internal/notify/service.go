package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"scribe/internal/config"
)

const userAgent = "scribe/0.1.0"

// Service defines the notification surface exposed to workflow components.
// Every method is best effort; errors are for the caller to log, never to
// act on.
type Service interface {
	NotifySessionCompleted(ctx context.Context, sessionID string, processed int) error
	NotifySessionFailed(ctx context.Context, sessionID, reason string) error
	NotifyProcessingError(ctx context.Context, sessionID, itemID string, procErr error) error
	NotifyRecoverySweep(ctx context.Context, itemsReset int, sessionsStarted int) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		sessions: cfg.Notifications.Sessions,
		recovery: cfg.Notifications.Recovery,
		errors:   cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	sessions bool
	recovery bool
	errors   bool
}

func (n *ntfyService) NotifySessionCompleted(ctx context.Context, sessionID string, processed int) error {
	if !n.sessions {
		return nil
	}
	data := payload{
		title:   "Scribe - Session Completed",
		message: fmt.Sprintf("Session %s drained (%d items processed)", sessionID, processed),
		tags:    []string{"scribe", "session", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifySessionFailed(ctx context.Context, sessionID, reason string) error {
	if !n.sessions {
		return nil
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown"
	}
	data := payload{
		title:    "Scribe - Session Failed",
		message:  fmt.Sprintf("Session %s failed: %s", sessionID, reason),
		tags:     []string{"scribe", "session", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyProcessingError(ctx context.Context, sessionID, itemID string, procErr error) error {
	if !n.errors {
		return nil
	}
	data := payload{
		title:    "Scribe - Processing Error",
		message:  fmt.Sprintf("Item %s in session %s failed: %v", itemID, sessionID, procErr),
		tags:     []string{"scribe", "error"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRecoverySweep(ctx context.Context, itemsReset, sessionsStarted int) error {
	if !n.recovery {
		return nil
	}
	if itemsReset == 0 && sessionsStarted == 0 {
		return nil
	}
	data := payload{
		title:   "Scribe - Recovery Sweep",
		message: fmt.Sprintf("Reset %d stuck items, restarted %d sessions", itemsReset, sessionsStarted),
		tags:    []string{"scribe", "recovery"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:   "Scribe - Test",
		message: "Test notification from scribe",
		tags:    []string{"scribe", "test"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

type noopService struct{}

func (noopService) NotifySessionCompleted(context.Context, string, int) error { return nil }

func (noopService) NotifySessionFailed(context.Context, string, string) error { return nil }

func (noopService) NotifyProcessingError(context.Context, string, string, error) error { return nil }

func (noopService) NotifyRecoverySweep(context.Context, int, int) error { return nil }

func (noopService) TestNotification(context.Context) error {
	return fmt.Errorf("ntfy topic not configured")
}
