package domain

import "time"

// ChatType classifies the conversation context.
type ChatType string

const (
	ChatTypeDM     ChatType = "dm"
	ChatTypeGroup  ChatType = "group"
	ChatTypeThread ChatType = "thread"
)

// InboundMessage is a message received from a channel.
type InboundMessage struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channelId"`
	From      string    `json:"from"`
	FromName  string    `json:"fromName,omitempty"`
	ChatID    string    `json:"chatId"`
	ChatType  ChatType  `json:"chatType"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
	ThreadID  string    `json:"threadId,omitempty"`
}

// OutboundMessage is a message to be sent via a channel.
type OutboundMessage struct {
	ChannelID string `json:"channelId"`
	To        string `json:"to"`
	Body      string `json:"body"`
	ThreadID  string `json:"threadId,omitempty"`
}
