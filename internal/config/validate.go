package config

import (
	"errors"
	"fmt"
)

var knownBackends = map[string]struct{}{
	"llm":     {},
	"command": {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateBackend(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	if c.Paths.APIBind == "" {
		return errors.New("paths.api_bind must be set")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
		return nil
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
}

func (c *Config) validateBackend() error {
	for _, name := range c.Backend.Priority {
		if _, ok := knownBackends[name]; !ok {
			return fmt.Errorf("backend.priority contains unknown backend %q", name)
		}
	}
	if c.Backend.LLM.BaseURL != "" && c.Backend.LLM.Model == "" {
		return errors.New("backend.llm.model must be set when backend.llm.base_url is configured")
	}
	return nil
}
