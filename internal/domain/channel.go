package domain

import "context"

// ChannelStatus reports the runtime state of a channel.
type ChannelStatus struct {
	ChannelID string `json:"channelId"`
	Connected bool   `json:"connected"`
	Running   bool   `json:"running"`
	LastError string `json:"lastError,omitempty"`
}

// Channel is implemented by every chat transport (IRC, Slack).
type Channel interface {
	// ID returns the channel identifier (e.g., "irc", "slack").
	ID() string

	// Start connects the channel and begins listening for messages.
	// It blocks until ctx is cancelled or the connection fails.
	Start(ctx context.Context) error

	// Stop gracefully disconnects the channel.
	Stop(ctx context.Context) error

	// Send delivers an outbound message through this channel.
	Send(ctx context.Context, msg OutboundMessage) error

	// OnMessage registers a handler for inbound messages.
	OnMessage(handler func(msg InboundMessage))
}
