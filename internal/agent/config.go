package agent

import (
	"time"

	"github.com/soyeahso/roombot/internal/config"
)

// Fixed replies.
const (
	FallbackReply         = "I'm not sure how to help with that."
	ExhaustedReply        = "Request timed out or too many steps."
	TransportFailureReply = "Sorry, I encountered an error processing your request."
)

// Config controls one Assistant.
type Config struct {
	Name          string
	Organization  string
	MaxIterations int
	MaxTokens     int
	Temperature   *float64
	LLMTimeout    time.Duration
	ToolTimeout   time.Duration
	ExtraPrompt   string
	Location      *time.Location
}

// ConfigFrom maps the agent config section onto a Config.
func ConfigFrom(ac config.AgentConfig, loc *time.Location) Config {
	return Config{
		Name:          ac.Name,
		Organization:  ac.Organization,
		MaxIterations: ac.MaxIterations,
		MaxTokens:     ac.MaxTokens,
		Temperature:   ac.Temperature,
		LLMTimeout:    ac.LLMTimeout,
		ToolTimeout:   ac.ToolTimeout,
		ExtraPrompt:   ac.ExtraPrompt,
		Location:      loc,
	}
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "RoomBot"
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = config.DefaultMaxIterations
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = config.DefaultMaxTokens
	}
	if c.LLMTimeout <= 0 {
		c.LLMTimeout = config.DefaultLLMTimeout
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = config.DefaultToolTimeout
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	return c
}
