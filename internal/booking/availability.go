package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/soyeahso/roombot/internal/domain"
)

// Query describes an availability search.
type Query struct {
	Start           time.Time
	End             time.Time
	MinCapacity     *int
	Characteristics []string
}

// Availability answers which rooms are free for an interval.
type Availability struct {
	store Store
}

// NewAvailability creates an availability search on store.
func NewAvailability(store Store) *Availability {
	return &Availability{store: store}
}

// FindAvailable returns rooms with no confirmed reservation overlapping
// [q.Start, q.End) that satisfy the capacity and characteristic filters.
// Every requested characteristic must be present. Rooms keep the store's
// order.
func (a *Availability) FindAvailable(ctx context.Context, q Query) ([]domain.Room, error) {
	if !q.End.After(q.Start) {
		return nil, ErrInvalidInterval
	}

	booked, err := a.store.BookedRoomIDs(ctx, q.Start, q.End)
	if err != nil {
		return nil, fmt.Errorf("loading booked rooms: %w", err)
	}
	rooms, err := a.store.ListRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing rooms: %w", err)
	}

	free := make([]domain.Room, 0, len(rooms))
	for _, r := range rooms {
		if booked[r.ID] {
			continue
		}
		if q.MinCapacity != nil && r.Capacity < *q.MinCapacity {
			continue
		}
		if !r.HasCharacteristics(q.Characteristics) {
			continue
		}
		free = append(free, r)
	}
	return free, nil
}
