package domain

import "time"

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	StatusConfirmed ReservationStatus = "CONFIRMED"
	StatusCanceled  ReservationStatus = "CANCELED"
)

// Valid reports whether s is a known status.
func (s ReservationStatus) Valid() bool {
	return s == StatusConfirmed || s == StatusCanceled
}

// Reservation books one room for the half-open interval [Start, End).
type Reservation struct {
	ID          int64             `json:"id"`
	RoomID      int64             `json:"roomId"`
	RequesterID string            `json:"requesterId"`
	Start       time.Time         `json:"start"`
	End         time.Time         `json:"end"`
	Topic       string            `json:"topic"`
	Status      ReservationStatus `json:"status"`
	Context     string            `json:"context,omitempty"`
	Complexity  *int              `json:"complexity,omitempty"`
	ThreadID    string            `json:"threadId,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
// Touching endpoints do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// Overlaps reports whether the reservation intersects [start, end).
func (r Reservation) Overlaps(start, end time.Time) bool {
	return Overlaps(r.Start, r.End, start, end)
}

// Active reports whether the reservation still holds its room.
func (r Reservation) Active() bool {
	return r.Status == StatusConfirmed
}
