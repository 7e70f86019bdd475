package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"scribe/internal/config"
	"scribe/internal/logging"
)

// ErrNoBackendAvailable is returned by Select when no configured backend
// passes its availability probe.
var ErrNoBackendAvailable = errors.New("no processing backend available")

// Request carries one work item into a backend.
type Request struct {
	SessionID string
	Project   string
	ItemID    string
	Payload   string
}

// Error wraps a backend failure with the backend's name so callers can log
// and classify without inspecting implementation types.
type Error struct {
	Backend string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend %s: %v", e.Backend, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Backend is the processing capability consumed by the supervisor. It is
// the core's only coupling to the actual processing intelligence and must
// remain swappable without changing supervisor logic.
type Backend interface {
	// Name identifies the backend in configuration and logs.
	Name() string
	// Available reports whether the backend can currently accept work.
	Available(ctx context.Context) bool
	// Process transforms one work item. A nil return marks the item
	// completed; any error marks it failed with bounded retry.
	Process(ctx context.Context, req Request) error
}

// Selector resolves a backend by iterating a fixed priority order and
// picking the first available implementation.
type Selector struct {
	backends []Backend
	logger   *slog.Logger
}

// NewSelector builds the priority-ordered backend set from configuration.
func NewSelector(cfg *config.Config, logger *slog.Logger) *Selector {
	logger = logging.NewComponentLogger(logger, "backend")

	variants := map[string]Backend{
		"llm":     newLLMBackend(cfg.Backend.LLM),
		"command": newCommandBackend(cfg.Backend.Command),
	}

	ordered := make([]Backend, 0, len(cfg.Backend.Priority))
	for _, name := range cfg.Backend.Priority {
		if b, ok := variants[name]; ok {
			ordered = append(ordered, b)
		}
	}
	return &Selector{backends: ordered, logger: logger}
}

// NewSelectorWithBackends constructs a selector over an explicit backend
// list (used in tests).
func NewSelectorWithBackends(logger *slog.Logger, backends ...Backend) *Selector {
	return &Selector{
		backends: backends,
		logger:   logging.NewComponentLogger(logger, "backend"),
	}
}

// Select evaluates the priority order and returns the first available
// backend. Selection is re-evaluated on every call, never cached, so
// operators can change backends between runs.
func (s *Selector) Select(ctx context.Context) (Backend, error) {
	for _, b := range s.backends {
		if b.Available(ctx) {
			return b, nil
		}
		s.logger.Debug("backend unavailable, trying next",
			logging.String(logging.FieldBackend, b.Name()),
		)
	}
	return nil, ErrNoBackendAvailable
}
