package booking

import (
	"context"

	"github.com/soyeahso/roombot/internal/domain"
)

// DefaultRooms is the catalog installed into an empty store.
var DefaultRooms = []domain.Room{
	{
		Name:            "Mate Center 304",
		Capacity:        10,
		Amenities:       []string{"TV", "Whiteboard"},
		Characteristics: []string{"View", "Quiet"},
	},
	{
		Name:            "Mate Center 305",
		Capacity:        4,
		Amenities:       []string{"TV"},
		Characteristics: []string{"sunny", "casual"},
	},
	{
		Name:            "Soul Cup Lounge",
		Capacity:        12,
		Amenities:       []string{"Projector", "Sound System"},
		Characteristics: []string{"large", "open"},
	},
	{
		Name:            "Focus Room A",
		Capacity:        2,
		Amenities:       []string{},
		Characteristics: []string{"small", "quiet", "private"},
	},
}

// DefaultAdjacency links the rooms in DefaultRooms that share a wall.
var DefaultAdjacency = []Adjacency{
	{A: "Mate Center 304", B: "Mate Center 305"},
}

// Seed installs the default catalog if the store has no rooms.
func Seed(ctx context.Context, s Seeder) (int, error) {
	return s.SeedRooms(ctx, DefaultRooms, DefaultAdjacency)
}
