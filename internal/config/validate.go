package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/robfig/cron/v3"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	add := func(path, format string, args ...any) {
		issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	// LLM
	validAPIs := []string{"openai", "anthropic"}
	for name, p := range cfg.LLM.Providers {
		if !slices.Contains(validAPIs, p.API) {
			add("llm.providers."+name+".api", "must be one of %v, got %q", validAPIs, p.API)
		}
		if p.Model == "" {
			add("llm.providers."+name+".model", "model is required")
		}
		if p.API == "anthropic" && p.APIKey == "" {
			add("llm.providers."+name+".apiKey", "apiKey is required for anthropic")
		}
		if p.API == "openai" && p.APIKey == "" && p.BaseURL == "" {
			add("llm.providers."+name+".apiKey", "apiKey is required unless baseUrl points at a local server")
		}
	}

	// Agent
	if cfg.Agent.MaxIterations < 1 {
		add("agent.maxIterations", "must be at least 1, got %d", cfg.Agent.MaxIterations)
	}
	if cfg.Agent.LLMTimeout < 0 {
		add("agent.llmTimeout", "must not be negative")
	}
	if cfg.Agent.ToolTimeout < 0 {
		add("agent.toolTimeout", "must not be negative")
	}
	if t := cfg.Agent.Temperature; t != nil && (*t < 0 || *t > 2) {
		add("agent.temperature", "must be between 0 and 2, got %v", *t)
	}

	// Booking
	if cfg.Booking.Timezone != "" && cfg.Booking.Timezone != "Local" {
		if _, err := time.LoadLocation(cfg.Booking.Timezone); err != nil {
			add("booking.timezone", "unknown timezone %q", cfg.Booking.Timezone)
		}
	}

	// Store
	validDrivers := []string{"sqlite", "postgres"}
	if !slices.Contains(validDrivers, cfg.Store.Driver) {
		add("store.driver", "must be one of %v, got %q", validDrivers, cfg.Store.Driver)
	}
	if cfg.Store.Driver == "postgres" && cfg.Store.DSN == "" {
		add("store.dsn", "required when driver is postgres")
	}

	// Gateway
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		add("gateway.port", "port must be 0-65535, got %d", cfg.Gateway.Port)
	}
	validBinds := []string{"lan", "loopback", "custom"}
	if cfg.Gateway.Bind != "" && !slices.Contains(validBinds, cfg.Gateway.Bind) {
		add("gateway.bind", "must be one of %v, got %q", validBinds, cfg.Gateway.Bind)
	}
	if cfg.Gateway.Bind == "custom" && cfg.Gateway.CustomBindHost == "" {
		add("gateway.customBindHost", "required when bind is custom")
	}
	validAuthModes := []string{"token", "password"}
	if cfg.Gateway.Auth.Mode != "" && !slices.Contains(validAuthModes, cfg.Gateway.Auth.Mode) {
		add("gateway.auth.mode", "must be one of %v, got %q", validAuthModes, cfg.Gateway.Auth.Mode)
	}
	if cfg.Gateway.TLS.Enabled && (cfg.Gateway.TLS.CertPath == "" || cfg.Gateway.TLS.KeyPath == "") {
		add("gateway.tls", "certPath and keyPath are required when TLS is enabled")
	}
	if cfg.Gateway.RateLimit.PerMinute < 0 {
		add("gateway.rateLimit.perMinute", "must not be negative")
	}

	// Logging
	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		add("logging.level", "must be one of %v, got %q", validLogLevels, cfg.Logging.Level)
	}
	validConsoleStyles := []string{"pretty", "compact", "json"}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		add("logging.consoleStyle", "must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle)
	}

	// IRC validation (only if configured)
	if irc := cfg.Channels.IRC; irc != nil {
		if irc.Server == "" {
			add("channels.irc.server", "server is required")
		}
		if irc.Nick == "" {
			add("channels.irc.nick", "nick is required")
		}
		if irc.Port < 0 || irc.Port > 65535 {
			add("channels.irc.port", "port must be 0-65535, got %d", irc.Port)
		}
		if irc.SASL && irc.Password == "" {
			add("channels.irc.sasl", "SASL requires a password to be set")
		}
	}

	if slack := cfg.Channels.Slack; slack != nil {
		if slack.BotToken == "" {
			add("channels.slack.botToken", "botToken is required")
		}
		if slack.AppToken == "" {
			add("channels.slack.appToken", "appToken is required for Socket Mode")
		}
	}

	// Calendar
	if cfg.Calendar.Enabled {
		if cfg.Calendar.CredentialsFile == "" {
			add("calendar.credentialsFile", "required when calendar is enabled")
		}
		if _, err := cron.ParseStandard(cfg.Calendar.BackfillSchedule); err != nil {
			add("calendar.backfillSchedule", "invalid schedule: %v", err)
		}
	}

	// Tracing
	if cfg.Tracing.SampleRate < 0 || cfg.Tracing.SampleRate > 1 {
		add("tracing.sampleRate", "must be between 0 and 1, got %v", cfg.Tracing.SampleRate)
	}

	return issues
}
