package config

import (
	"fmt"
	"time"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

const (
	DefaultGatewayPort      = 18790
	DefaultMaxIterations    = 5
	DefaultLLMTimeout       = 60 * time.Second
	DefaultToolTimeout      = 10 * time.Second
	DefaultMaxTokens        = 1024
	DefaultBackfillSchedule = "@every 15m"
	DefaultOpenAIModel      = "gpt-4o"
	DefaultAnthropicModel   = "claude-sonnet-4-5"
)

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}

// SeedOnStart reports whether the room catalog should be seeded when the
// store opens empty. Defaults to true.
func (c *Config) SeedOnStart() bool {
	return c.Store.SeedOnStart == nil || *c.Store.SeedOnStart
}

// TraceEnabled reports whether the JSONL audit trace is written.
func (c *Config) TraceEnabled() bool {
	return c.Trace.Enabled == nil || *c.Trace.Enabled
}

// MetricsEnabled reports whether /metrics is served.
func (c *Config) MetricsEnabled() bool {
	return c.Metrics.Enabled == nil || *c.Metrics.Enabled
}

// Location resolves the booking timezone.
func (c *Config) Location() (*time.Location, error) {
	switch c.Booking.Timezone {
	case "", "Local":
		return time.Local, nil
	default:
		loc, err := time.LoadLocation(c.Booking.Timezone)
		if err != nil {
			return nil, &ConfigError{Message: "invalid booking.timezone: " + err.Error()}
		}
		return loc, nil
	}
}
