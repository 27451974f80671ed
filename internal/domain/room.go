// Package domain holds the core types shared across roombot packages.
package domain

import "strings"

// Room is a bookable meeting room. Rooms are created at seed time and only
// the adjacency link changes afterwards.
type Room struct {
	ID              int64    `json:"id"`
	Name            string   `json:"name"`
	Capacity        int      `json:"capacity"`
	Amenities       []string `json:"amenities"`
	Characteristics []string `json:"characteristics"`
	AdjacentRoomID  *int64   `json:"adjacentRoomId,omitempty"`
}

// HasCharacteristics reports whether every wanted characteristic is present
// on the room. Comparison ignores case.
func (r Room) HasCharacteristics(wanted []string) bool {
	for _, w := range wanted {
		found := false
		for _, c := range r.Characteristics {
			if strings.EqualFold(strings.TrimSpace(w), c) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// UserStats summarises a requester's confirmed booking history.
type UserStats struct {
	FavoriteRoomID int64  `json:"favoriteRoomId"`
	TotalBookings  int    `json:"totalBookings"`
	LastTopic      string `json:"lastTopic"`
}
