package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/soyeahso/roombot/internal/domain"
)

// UnmirroredReservations returns confirmed reservations ending after from
// that have no calendar event recorded yet.
func (db *DB) UnmirroredReservations(ctx context.Context, from time.Time) ([]domain.Reservation, error) {
	rows, err := db.sql.QueryContext(ctx, `
		SELECT `+reservationColumns+` FROM reservations r
		WHERE r.status = 'CONFIRMED' AND r.end_ms > ?
		  AND NOT EXISTS (SELECT 1 FROM calendar_events c WHERE c.reservation_id = r.id)
		ORDER BY r.start_ms`,
		toMillis(from))
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

// RecordCalendarEvent stores the event id mirrored for a reservation.
func (db *DB) RecordCalendarEvent(ctx context.Context, reservationID int64, calendarID, eventID string) error {
	return db.writeTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO calendar_events (reservation_id, calendar_id, event_id, synced_ms)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (reservation_id) DO UPDATE SET
				calendar_id = excluded.calendar_id,
				event_id = excluded.event_id,
				synced_ms = excluded.synced_ms`,
			reservationID, calendarID, eventID, toMillis(time.Now()))
		return err
	})
}

// CalendarEventID returns the mirrored event id for a reservation.
func (db *DB) CalendarEventID(ctx context.Context, reservationID int64) (string, bool, error) {
	var id string
	err := db.sql.QueryRowContext(ctx,
		`SELECT event_id FROM calendar_events WHERE reservation_id = ?`, reservationID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

// ForgetCalendarEvent removes the mirror record for a reservation.
func (db *DB) ForgetCalendarEvent(ctx context.Context, reservationID int64) error {
	return db.writeTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM calendar_events WHERE reservation_id = ?`, reservationID)
		return err
	})
}
