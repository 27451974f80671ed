package tools

import (
	"encoding/json"
)

const (
	MsgValidation        = "Validation Error"
	MsgPastSearch        = "Cannot search for rooms in the past."
	MsgPastReservation   = "Cannot create a reservation in the past."
	MsgEndBeforeStart    = "End time must be after start time."
	MsgNoHistory         = "No booking history found for this user."
	MsgReservationOK     = "Reservation Confirmed"
	MsgRoomDetailsFailed = "Room details could not be fetched."
	msgUnavailable       = "Booking service is temporarily unavailable."
)

// Envelope is the uniform result of a dispatch. Exactly one of Result or
// Error is meaningful. Fault carries an infrastructure failure that the
// caller should treat as a transport error; it is never serialised.
type Envelope struct {
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
	Details any    `json:"details,omitempty"`
	Fault   error  `json:"-"`
}

// OK reports whether the envelope carries a result.
func (e Envelope) OK() bool {
	return e.Error == "" && e.Fault == nil
}

// JSON renders the envelope as the tool message body.
func (e Envelope) JSON() string {
	b, err := json.Marshal(e)
	if err != nil {
		return `{"error":"unserialisable tool result"}`
	}
	return string(b)
}

func resultEnvelope(v any) Envelope { return Envelope{Result: v} }

func errorEnvelope(msg string) Envelope { return Envelope{Error: msg} }

func faultEnvelope(err error) Envelope {
	return Envelope{Error: msgUnavailable, Fault: err}
}

// RoomSummary is one availability hit.
type RoomSummary struct {
	ID              int64    `json:"id"`
	Name            string   `json:"name"`
	Characteristics []string `json:"characteristics"`
	Capacity        int      `json:"capacity"`
}

// ReservationResult is the success body of createReservation.
type ReservationResult struct {
	Success       bool   `json:"success"`
	ReservationID int64  `json:"reservationId"`
	Message       string `json:"message"`
}

// ConflictDetails accompanies a double-booking rejection.
type ConflictDetails struct {
	Code   string `json:"code"`
	RoomID int64  `json:"roomId"`
	Start  string `json:"start"`
	End    string `json:"end"`
}

// PreferenceResult is the success body of getUserPreference.
type PreferenceResult struct {
	Summary string            `json:"summary"`
	Details PreferenceDetails `json:"details"`
}

// PreferenceDetails carries the aggregated booking history.
type PreferenceDetails struct {
	FavoriteRoomID   int64  `json:"favoriteRoomId"`
	FavoriteRoomName string `json:"favoriteRoomName"`
	TotalBookings    int    `json:"totalBookings"`
	LastMeetingTopic string `json:"lastMeetingTopic"`
}

// MessageResult is a result that only carries a note.
type MessageResult struct {
	Message string `json:"message"`
}
