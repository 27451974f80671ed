package booking

import (
	"context"
	"time"

	"github.com/soyeahso/roombot/internal/domain"
)

// Store is the persistence port the engine and availability search run on.
type Store interface {
	// WithinTx runs fn in a single transaction. A non-nil return from fn rolls
	// the transaction back and is returned unchanged.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	ListRooms(ctx context.Context) ([]domain.Room, error)
	GetRoom(ctx context.Context, id int64) (domain.Room, error)

	// BookedRoomIDs returns the rooms holding a confirmed reservation that
	// overlaps [start, end).
	BookedRoomIDs(ctx context.Context, start, end time.Time) (map[int64]bool, error)

	// ConfirmedByRequester returns the requester's confirmed reservations
	// ordered by start time.
	ConfirmedByRequester(ctx context.Context, requesterID string) ([]domain.Reservation, error)

	ListReservations(ctx context.Context, f ReservationFilter) ([]domain.Reservation, error)

	// CancelReservation moves a reservation from CONFIRMED to CANCELED and
	// returns the updated row.
	CancelReservation(ctx context.Context, id int64) (domain.Reservation, error)
}

// Tx is the transactional view used by the check-and-insert.
type Tx interface {
	// LockRoom takes the write lock on the room for the rest of the
	// transaction. Returns ErrRoomNotFound if the room does not exist.
	LockRoom(ctx context.Context, roomID int64) (domain.Room, error)
	// Overlapping returns confirmed reservations on roomID intersecting [start, end).
	Overlapping(ctx context.Context, roomID int64, start, end time.Time) ([]domain.Reservation, error)
	// Insert writes r and sets its ID.
	Insert(ctx context.Context, r *domain.Reservation) error
}

// ReservationFilter narrows ListReservations. Zero fields match everything.
type ReservationFilter struct {
	RequesterID string
	RoomID      int64
	Status      domain.ReservationStatus
	From        time.Time // reservations ending after From
	To          time.Time // reservations starting before To
	Limit       int
}

// Seeder loads the initial room catalog.
type Seeder interface {
	// SeedRooms inserts rooms and links only when no room exists yet and
	// returns the number of rooms inserted.
	SeedRooms(ctx context.Context, rooms []domain.Room, links []Adjacency) (int, error)
}

// Adjacency links two rooms by name.
type Adjacency struct {
	A, B string
}
