package gateway

import "encoding/json"

// Frame types for the WebSocket protocol.
const (
	FrameTypeRequest  = "req"
	FrameTypeResponse = "res"
	FrameTypeEvent    = "event"
)

// ProtocolVersion is the frame protocol version spoken by this server.
const ProtocolVersion = 1

// Events pushed to connected clients.
const (
	EventConnectChallenge    = "connect.challenge"
	EventReservationsChanged = "reservations.changed"
)

// Error codes carried in ErrorShape.Code.
const (
	CodeProtocolError   = "protocol_error"
	CodeInvalidParams   = "invalid_params"
	CodeUnauthorized    = "unauthorized"
	CodeMethodNotFound  = "method_not_found"
	CodeNotFound        = "not_found"
	CodeAlreadyCanceled = "already_canceled"
	CodeRateLimited     = "rate_limited"
	CodeUnavailable     = "unavailable"
	CodeInternal        = "internal"
)

// Frame is the envelope for every WebSocket message. Type discriminates
// between request, response and event frames.
type Frame struct {
	Type string `json:"type"`

	// Request
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`

	// Response
	OK      *bool           `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *ErrorShape     `json:"error,omitempty"`

	// Event
	Event string `json:"event,omitempty"`
	Seq   int64  `json:"seq,omitempty"`
}

// ErrorShape is the error body of a failed response.
type ErrorShape struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
	Retryable  bool   `json:"retryable,omitempty"`
	RetryAfter int    `json:"retryAfterMs,omitempty"`
}

// ConnectParams are sent by the client in the initial "connect" request.
type ConnectParams struct {
	MinProtocol int          `json:"minProtocol"`
	MaxProtocol int          `json:"maxProtocol"`
	Client      ClientInfo   `json:"client"`
	Auth        *ConnectAuth `json:"auth,omitempty"`
	Locale      string       `json:"locale,omitempty"`
	UserAgent   string       `json:"userAgent,omitempty"`
}

// ClientInfo identifies the connecting client.
type ClientInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Version     string `json:"version"`
	Platform    string `json:"platform"`
}

// ConnectAuth carries credentials in the connect request.
type ConnectAuth struct {
	Token    string `json:"token,omitempty"`
	Password string `json:"password,omitempty"`
}

// HelloOK is the response payload after a successful connect.
type HelloOK struct {
	Protocol int          `json:"protocol"`
	Server   ServerInfo   `json:"server"`
	Features Features     `json:"features"`
	Policy   ServerPolicy `json:"policy"`
}

// ServerInfo identifies the gateway server.
type ServerInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	ConnID  string `json:"connId"`
}

// Features advertises available RPC methods and events.
type Features struct {
	Methods []string `json:"methods"`
	Events  []string `json:"events"`
}

// ServerPolicy communicates protocol limits to the client.
type ServerPolicy struct {
	MaxPayload     int `json:"maxPayload"`
	TickIntervalMs int `json:"tickIntervalMs"`
}

// ChatSendParams are the params of chat.send. RequesterID defaults to the
// connecting client's id and ThreadID to the connection id.
type ChatSendParams struct {
	Message     string `json:"message"`
	RequesterID string `json:"requesterId,omitempty"`
	ThreadID    string `json:"threadId,omitempty"`
}

// ChatSendResult is the payload of a chat.send response.
type ChatSendResult struct {
	Text       string `json:"text"`
	TraceID    string `json:"traceId"`
	Outcome    string `json:"outcome"`
	Iterations int    `json:"iterations"`
	Dispatches int    `json:"dispatches"`
	DurationMs int64  `json:"durationMs"`
}

// RoomsAvailableParams are the params of rooms.available. Times are
// wall-clock HH:MM on Date in the booking timezone.
type RoomsAvailableParams struct {
	Date            string   `json:"date"`
	StartTime       string   `json:"startTime"`
	EndTime         string   `json:"endTime"`
	MinCapacity     *int     `json:"minCapacity,omitempty"`
	Characteristics []string `json:"characteristics,omitempty"`
}

// ReservationsListParams are the params of reservations.list. From and To
// are YYYY-MM-DD dates; To is inclusive.
type ReservationsListParams struct {
	RequesterID string `json:"requesterId,omitempty"`
	RoomID      int64  `json:"roomId,omitempty"`
	Status      string `json:"status,omitempty"`
	From        string `json:"from,omitempty"`
	To          string `json:"to,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

// ReservationsCancelParams are the params of reservations.cancel.
type ReservationsCancelParams struct {
	ID int64 `json:"id"`
}

// NewRequest creates a request frame.
func NewRequest(id, method string, params any) (Frame, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Type:   FrameTypeRequest,
		ID:     id,
		Method: method,
		Params: raw,
	}, nil
}

// NewResponse creates a success response frame.
func NewResponse(id string, payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	ok := true
	return Frame{
		Type:    FrameTypeResponse,
		ID:      id,
		OK:      &ok,
		Payload: raw,
	}, nil
}

// NewErrorResponse creates an error response frame.
func NewErrorResponse(id string, errShape ErrorShape) Frame {
	ok := false
	return Frame{
		Type:  FrameTypeResponse,
		ID:    id,
		OK:    &ok,
		Error: &errShape,
	}
}

// NewEvent creates an event frame.
func NewEvent(event string, payload any, seq int64) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Type:    FrameTypeEvent,
		Event:   event,
		Payload: raw,
		Seq:     seq,
	}, nil
}
