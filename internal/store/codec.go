package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/soyeahso/roombot/internal/domain"
)

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func encodeList(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func decodeList(s string) []string {
	out := []string{}
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

type scanner interface {
	Scan(dest ...any) error
}

const roomColumns = `id, name, capacity, amenities, characteristics, adjacent_room_id`

func scanRoom(s scanner) (domain.Room, error) {
	var (
		r        domain.Room
		amen, ch string
		adjacent sql.NullInt64
	)
	if err := s.Scan(&r.ID, &r.Name, &r.Capacity, &amen, &ch, &adjacent); err != nil {
		return domain.Room{}, err
	}
	r.Amenities = decodeList(amen)
	r.Characteristics = decodeList(ch)
	if adjacent.Valid {
		id := adjacent.Int64
		r.AdjacentRoomID = &id
	}
	return r, nil
}

const reservationColumns = `id, room_id, requester_id, start_ms, end_ms, topic, status, context, complexity, thread_id, created_ms`

func scanReservation(s scanner) (domain.Reservation, error) {
	var (
		r                   domain.Reservation
		start, end, created int64
		status              string
		complexity          sql.NullInt64
	)
	if err := s.Scan(&r.ID, &r.RoomID, &r.RequesterID, &start, &end, &r.Topic,
		&status, &r.Context, &complexity, &r.ThreadID, &created); err != nil {
		return domain.Reservation{}, err
	}
	r.Start = fromMillis(start)
	r.End = fromMillis(end)
	r.CreatedAt = fromMillis(created)
	r.Status = domain.ReservationStatus(status)
	if complexity.Valid {
		c := int(complexity.Int64)
		r.Complexity = &c
	}
	return r, nil
}

func collectReservations(rows *sql.Rows) ([]domain.Reservation, error) {
	defer rows.Close()
	var out []domain.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
