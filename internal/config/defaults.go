package config

const (
	defaultDataDir                 = "~/.local/share/scribe"
	defaultLogDir                  = "~/.local/share/scribe/logs"
	defaultAPIBind                 = "127.0.0.1:7419"
	defaultSocketPath              = "~/.local/share/scribe/scribed.sock"
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	defaultStuckThresholdMinutes   = 5
	defaultStaleSessionMinutes     = 30
	defaultRecoveryIntervalMinutes = 5
	defaultStartupSessionLimit     = 50
	defaultIntervalSessionLimit    = 10
	defaultDrainTimeoutSeconds     = 10
	defaultBackendTimeoutSeconds   = 600
	defaultLLMTimeoutSeconds       = 120
	defaultCommandTimeoutSeconds   = 300
	defaultNotifyRequestTimeout    = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
			SocketPath: defaultSocketPath,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Workflow: Workflow{
			StuckThresholdMinutes:   defaultStuckThresholdMinutes,
			StaleSessionMinutes:     defaultStaleSessionMinutes,
			RecoveryIntervalMinutes: defaultRecoveryIntervalMinutes,
			StartupSessionLimit:     defaultStartupSessionLimit,
			IntervalSessionLimit:    defaultIntervalSessionLimit,
			DrainTimeoutSeconds:     defaultDrainTimeoutSeconds,
			BackendTimeoutSeconds:   defaultBackendTimeoutSeconds,
		},
		Backend: Backend{
			Priority: []string{"llm", "command"},
			LLM: LLMBackend{
				TimeoutSeconds: defaultLLMTimeoutSeconds,
			},
			Command: CommandBackend{
				TimeoutSeconds: defaultCommandTimeoutSeconds,
			},
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Sessions:       true,
			Recovery:       false,
			Errors:         true,
		},
	}
}
