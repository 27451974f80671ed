package booking

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRoomNotFound is returned when a room id does not exist.
	ErrRoomNotFound = errors.New("room not found")
	// ErrInvalidInterval is returned when end is not after start.
	ErrInvalidInterval = errors.New("end must be after start")
	// ErrReservationNotFound is returned when a reservation id does not exist.
	ErrReservationNotFound = errors.New("reservation not found")
	// ErrAlreadyCanceled is returned when canceling a canceled reservation.
	ErrAlreadyCanceled = errors.New("reservation already canceled")
)

// ConflictError reports that the requested interval intersects a confirmed
// reservation on the same room. Nothing was written.
type ConflictError struct {
	RoomID int64
	Start  time.Time
	End    time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("room %d is already booked between %s and %s",
		e.RoomID, e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}

// IsConflict reports whether err carries a *ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
