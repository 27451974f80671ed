package tools

// AvailableRoomsArgs are the arguments of getAvailableRooms.
type AvailableRoomsArgs struct {
	Date            string   `json:"date" jsonschema:"pattern=^\\d{4}-\\d{2}-\\d{2}$" jsonschema_description:"Date in YYYY-MM-DD format (e.g. 2026-02-09)"`
	StartTime       string   `json:"startTime" jsonschema:"pattern=^([01]\\d|2[0-3]):[0-5]\\d$" jsonschema_description:"Start time in HH:mm format (e.g. 14:00)"`
	EndTime         string   `json:"endTime" jsonschema:"pattern=^([01]\\d|2[0-3]):[0-5]\\d$" jsonschema_description:"End time in HH:mm format (e.g. 15:00)"`
	Characteristics []string `json:"characteristics,omitempty" jsonschema_description:"Optional features like \"quiet\", \"TV\" or \"view\""`
}

// CreateReservationArgs are the arguments of createReservation.
type CreateReservationArgs struct {
	RoomID    int64  `json:"roomId" jsonschema:"minimum=1" jsonschema_description:"ID of the room to book"`
	Date      string `json:"date" jsonschema:"pattern=^\\d{4}-\\d{2}-\\d{2}$" jsonschema_description:"Date in YYYY-MM-DD format"`
	StartTime string `json:"startTime" jsonschema:"pattern=^([01]\\d|2[0-3]):[0-5]\\d$" jsonschema_description:"Start time in HH:mm format"`
	EndTime   string `json:"endTime" jsonschema:"pattern=^([01]\\d|2[0-3]):[0-5]\\d$" jsonschema_description:"End time in HH:mm format"`
	Topic     string `json:"topic" jsonschema:"minLength=1" jsonschema_description:"Meeting topic/title"`
}

// SearchKnowledgeArgs are the arguments of searchKnowledge.
type SearchKnowledgeArgs struct {
	Query string `json:"query" jsonschema:"minLength=1" jsonschema_description:"The search query or question."`
}

// UserPreferenceArgs are the arguments of getUserPreference.
type UserPreferenceArgs struct {
	UserSlackID string `json:"userSlackId,omitempty" jsonschema_description:"Optional. Defaults to current user if omitted."`
}

// Caller identifies who invoked a tool.
type Caller struct {
	RequesterID string
	ThreadID    string
}
