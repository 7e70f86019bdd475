// Package testsupport provides shared fixtures for package tests: temp-dir
// backed configs and pre-opened stores with automatic cleanup.
package testsupport

import (
	"path/filepath"
	"testing"

	"scribe/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.SocketPath = filepath.Join(base, "scribed.sock")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Backend.Command.Binary = "true"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithBackendPriority overrides the backend selection order.
func WithBackendPriority(priority ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Backend.Priority = priority
	}
}

// WithCommandBackend points the command backend at the given binary.
func WithCommandBackend(binary string, args ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Backend.Command.Binary = binary
		b.cfg.Backend.Command.Args = args
	}
}

// WithDrainTimeout overrides the shutdown drain timeout in seconds.
func WithDrainTimeout(seconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.DrainTimeoutSeconds = seconds
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
