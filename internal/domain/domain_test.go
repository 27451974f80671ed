package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(hhmm string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", "2026-11-02 "+hhmm)
	if err != nil {
		panic(err)
	}
	return t
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name       string
		aStart     string
		aEnd       string
		bStart     string
		bEnd       string
		wantResult bool
	}{
		{"identical", "10:00", "11:00", "10:00", "11:00", true},
		{"contained", "10:00", "12:00", "10:30", "11:00", true},
		{"partial start", "10:00", "11:00", "10:30", "11:30", true},
		{"partial end", "10:30", "11:30", "10:00", "11:00", true},
		{"touching after", "10:00", "11:00", "11:00", "12:00", false},
		{"touching before", "11:00", "12:00", "10:00", "11:00", false},
		{"disjoint", "08:00", "09:00", "10:00", "11:00", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Overlaps(at(tt.aStart), at(tt.aEnd), at(tt.bStart), at(tt.bEnd))
			assert.Equal(t, tt.wantResult, got)
			// symmetric
			assert.Equal(t, tt.wantResult, Overlaps(at(tt.bStart), at(tt.bEnd), at(tt.aStart), at(tt.aEnd)))
		})
	}
}

func TestReservationOverlapsAndActive(t *testing.T) {
	r := Reservation{Start: at("10:00"), End: at("11:00"), Status: StatusConfirmed}
	assert.True(t, r.Overlaps(at("10:59"), at("12:00")))
	assert.False(t, r.Overlaps(at("11:00"), at("12:00")))
	assert.True(t, r.Active())

	r.Status = StatusCanceled
	assert.False(t, r.Active())
}

func TestReservationStatusValid(t *testing.T) {
	assert.True(t, StatusConfirmed.Valid())
	assert.True(t, StatusCanceled.Valid())
	assert.False(t, ReservationStatus("PENDING").Valid())
}

func TestRoomHasCharacteristics(t *testing.T) {
	room := Room{Name: "Mate Center 304", Characteristics: []string{"View", "Quiet"}}

	assert.True(t, room.HasCharacteristics(nil))
	assert.True(t, room.HasCharacteristics([]string{"view"}))
	assert.True(t, room.HasCharacteristics([]string{"quiet", "VIEW"}))
	assert.False(t, room.HasCharacteristics([]string{"quiet", "sunny"}), "all characteristics are required")
}
