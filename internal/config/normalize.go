package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeWorkflow()
	c.normalizeBackend()
	c.normalizeLogging()
	c.normalizeNotifications()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = ExpandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = ExpandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.SocketPath) == "" {
		c.Paths.SocketPath = defaultSocketPath
	}
	if c.Paths.SocketPath, err = ExpandPath(c.Paths.SocketPath); err != nil {
		return fmt.Errorf("paths.socket_path: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.StuckThresholdMinutes <= 0 {
		c.Workflow.StuckThresholdMinutes = defaultStuckThresholdMinutes
	}
	if c.Workflow.StaleSessionMinutes <= 0 {
		c.Workflow.StaleSessionMinutes = defaultStaleSessionMinutes
	}
	if c.Workflow.RecoveryIntervalMinutes <= 0 {
		c.Workflow.RecoveryIntervalMinutes = defaultRecoveryIntervalMinutes
	}
	if c.Workflow.StartupSessionLimit <= 0 {
		c.Workflow.StartupSessionLimit = defaultStartupSessionLimit
	}
	if c.Workflow.IntervalSessionLimit <= 0 {
		c.Workflow.IntervalSessionLimit = defaultIntervalSessionLimit
	}
	if c.Workflow.DrainTimeoutSeconds <= 0 {
		c.Workflow.DrainTimeoutSeconds = defaultDrainTimeoutSeconds
	}
	if c.Workflow.BackendTimeoutSeconds <= 0 {
		c.Workflow.BackendTimeoutSeconds = defaultBackendTimeoutSeconds
	}
}

func (c *Config) normalizeBackend() {
	cleaned := make([]string, 0, len(c.Backend.Priority))
	for _, name := range c.Backend.Priority {
		trimmed := strings.ToLower(strings.TrimSpace(name))
		if trimmed == "" {
			continue
		}
		cleaned = append(cleaned, trimmed)
	}
	if len(cleaned) == 0 {
		cleaned = []string{"llm", "command"}
	}
	c.Backend.Priority = cleaned

	c.Backend.LLM.BaseURL = strings.TrimSpace(c.Backend.LLM.BaseURL)
	c.Backend.LLM.Model = strings.TrimSpace(c.Backend.LLM.Model)
	if c.Backend.LLM.TimeoutSeconds <= 0 {
		c.Backend.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
	c.Backend.Command.Binary = strings.TrimSpace(c.Backend.Command.Binary)
	if c.Backend.Command.TimeoutSeconds <= 0 {
		c.Backend.Command.TimeoutSeconds = defaultCommandTimeoutSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}
