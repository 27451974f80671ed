package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/roombot/internal/booking"
	"github.com/soyeahso/roombot/internal/domain"
)

var (
	_ booking.Store  = (*DB)(nil)
	_ booking.Seeder = (*DB)(nil)
)

// WithinTx runs fn in a write transaction. Transactions are serialised.
func (db *DB) WithinTx(ctx context.Context, fn func(tx booking.Tx) error) error {
	return db.writeTx(ctx, func(tx *sql.Tx) error {
		return fn(&sqliteTx{tx: tx})
	})
}

type sqliteTx struct {
	tx *sql.Tx
}

// LockRoom verifies the room exists. The write mutex held by WithinTx is
// the lock.
func (t *sqliteTx) LockRoom(ctx context.Context, roomID int64) (domain.Room, error) {
	r, err := scanRoom(t.tx.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = ?`, roomID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Room{}, booking.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, fmt.Errorf("locking room %d: %w", roomID, err)
	}
	return r, nil
}

func (t *sqliteTx) Overlapping(ctx context.Context, roomID int64, start, end time.Time) ([]domain.Reservation, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE room_id = ? AND status = 'CONFIRMED' AND start_ms < ? AND end_ms > ?
		ORDER BY start_ms`,
		roomID, toMillis(end), toMillis(start))
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

func (t *sqliteTx) Insert(ctx context.Context, r *domain.Reservation) error {
	var complexity any
	if r.Complexity != nil {
		complexity = *r.Complexity
	}
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO reservations
			(room_id, requester_id, start_ms, end_ms, topic, status, context, complexity, thread_id, created_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RoomID, r.RequesterID, toMillis(r.Start), toMillis(r.End), r.Topic, string(r.Status),
		r.Context, complexity, r.ThreadID, toMillis(r.CreatedAt))
	if err != nil {
		return err
	}
	r.ID, err = res.LastInsertId()
	return err
}

// BookedRoomIDs returns rooms with a confirmed reservation overlapping [start, end).
func (db *DB) BookedRoomIDs(ctx context.Context, start, end time.Time) (map[int64]bool, error) {
	rows, err := db.sql.QueryContext(ctx, `
		SELECT DISTINCT room_id FROM reservations
		WHERE status = 'CONFIRMED' AND start_ms < ? AND end_ms > ?`,
		toMillis(end), toMillis(start))
	if err != nil {
		return nil, fmt.Errorf("querying booked rooms: %w", err)
	}
	defer rows.Close()

	booked := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		booked[id] = true
	}
	return booked, rows.Err()
}

// ConfirmedByRequester returns the requester's confirmed reservations by start time.
func (db *DB) ConfirmedByRequester(ctx context.Context, requesterID string) ([]domain.Reservation, error) {
	return db.ListReservations(ctx, booking.ReservationFilter{
		RequesterID: requesterID,
		Status:      domain.StatusConfirmed,
	})
}

// ListReservations returns reservations matching f ordered by start time.
func (db *DB) ListReservations(ctx context.Context, f booking.ReservationFilter) ([]domain.Reservation, error) {
	var (
		where []string
		args  []any
	)
	if f.RequesterID != "" {
		where = append(where, "requester_id = ?")
		args = append(args, f.RequesterID)
	}
	if f.RoomID != 0 {
		where = append(where, "room_id = ?")
		args = append(args, f.RoomID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if !f.From.IsZero() {
		where = append(where, "end_ms > ?")
		args = append(args, toMillis(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "start_ms < ?")
		args = append(args, toMillis(f.To))
	}

	q := `SELECT ` + reservationColumns + ` FROM reservations`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY start_ms, id"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := db.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing reservations: %w", err)
	}
	return collectReservations(rows)
}

// GetReservation loads one reservation.
func (db *DB) GetReservation(ctx context.Context, id int64) (domain.Reservation, error) {
	r, err := scanReservation(db.sql.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Reservation{}, booking.ErrReservationNotFound
	}
	return r, err
}

// CancelReservation moves a confirmed reservation to CANCELED.
func (db *DB) CancelReservation(ctx context.Context, id int64) (domain.Reservation, error) {
	var out domain.Reservation
	err := db.writeTx(ctx, func(tx *sql.Tx) error {
		r, err := scanReservation(tx.QueryRowContext(ctx,
			`SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return booking.ErrReservationNotFound
		}
		if err != nil {
			return err
		}
		if r.Status == domain.StatusCanceled {
			return booking.ErrAlreadyCanceled
		}
		if _, err := tx.ExecContext(ctx, `UPDATE reservations SET status = 'CANCELED' WHERE id = ?`, id); err != nil {
			return fmt.Errorf("canceling reservation %d: %w", id, err)
		}
		r.Status = domain.StatusCanceled
		out = r
		return nil
	})
	return out, err
}
