package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/soyeahso/roombot/internal/booking"
	"github.com/soyeahso/roombot/internal/domain"
)

// ListRooms returns every room ordered by id.
func (db *DB) ListRooms(ctx context.Context) ([]domain.Room, error) {
	rows, err := db.sql.QueryContext(ctx, `SELECT `+roomColumns+` FROM rooms ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing rooms: %w", err)
	}
	defer rows.Close()

	var rooms []domain.Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning room: %w", err)
		}
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

// GetRoom loads one room.
func (db *DB) GetRoom(ctx context.Context, id int64) (domain.Room, error) {
	r, err := scanRoom(db.sql.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Room{}, booking.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, fmt.Errorf("loading room %d: %w", id, err)
	}
	return r, nil
}

// SeedRooms inserts rooms and adjacency links when the rooms table is empty.
func (db *DB) SeedRooms(ctx context.Context, rooms []domain.Room, links []booking.Adjacency) (int, error) {
	inserted := 0
	err := db.writeTx(ctx, func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM rooms`).Scan(&count); err != nil {
			return fmt.Errorf("counting rooms: %w", err)
		}
		if count > 0 {
			return nil
		}

		ids := make(map[string]int64, len(rooms))
		for _, r := range rooms {
			res, err := tx.ExecContext(ctx,
				`INSERT INTO rooms (name, capacity, amenities, characteristics) VALUES (?, ?, ?, ?)`,
				r.Name, r.Capacity, encodeList(r.Amenities), encodeList(r.Characteristics))
			if err != nil {
				return fmt.Errorf("inserting room %q: %w", r.Name, err)
			}
			if ids[r.Name], err = res.LastInsertId(); err != nil {
				return err
			}
			inserted++
		}

		for _, l := range links {
			a, okA := ids[l.A]
			b, okB := ids[l.B]
			if !okA || !okB {
				return fmt.Errorf("adjacency %q-%q names an unknown room", l.A, l.B)
			}
			if _, err := tx.ExecContext(ctx, `UPDATE rooms SET adjacent_room_id = ? WHERE id = ?`, b, a); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `UPDATE rooms SET adjacent_room_id = ? WHERE id = ?`, a, b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if inserted > 0 {
		db.log.Info().Int("rooms", inserted).Msg("seeded room catalog")
	}
	return inserted, nil
}
