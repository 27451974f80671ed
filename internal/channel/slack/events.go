package slack

import "encoding/json"

// envelope is one Socket Mode frame from Slack.
type envelope struct {
	EnvelopeID string          `json:"envelope_id,omitempty"`
	Type       string          `json:"type"`
	Reason     string          `json:"reason,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

type ackFrame struct {
	EnvelopeID string `json:"envelope_id"`
}

type eventsPayload struct {
	TeamID  string `json:"team_id"`
	EventID string `json:"event_id"`
	Event   event  `json:"event"`
}

type event struct {
	Type        string `json:"type"`
	Subtype     string `json:"subtype,omitempty"`
	User        string `json:"user,omitempty"`
	BotID       string `json:"bot_id,omitempty"`
	Text        string `json:"text"`
	TS          string `json:"ts"`
	ThreadTS    string `json:"thread_ts,omitempty"`
	Channel     string `json:"channel"`
	ChannelType string `json:"channel_type,omitempty"`
}
