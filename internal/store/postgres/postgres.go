// Package postgres implements the booking store on PostgreSQL through the
// pgx database/sql driver. Bookings for a room are serialised with a
// row-level lock on the room.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver.

	"github.com/soyeahso/roombot/internal/booking"
	"github.com/soyeahso/roombot/internal/domain"
	"github.com/soyeahso/roombot/internal/logging"
)

var (
	_ booking.Store  = (*DB)(nil)
	_ booking.Seeder = (*DB)(nil)
)

// DB is a PostgreSQL-backed booking store.
type DB struct {
	sql *sql.DB
	log *logging.Logger
}

// Open connects to dsn and applies the schema.
func Open(ctx context.Context, dsn string, log *logging.Logger) (*DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN not configured")
	}
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	db := &DB{sql: sqlDB, log: log.Sub("store")}
	if err := db.migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	db.log.Info().Msg("postgres store opened")
	return db, nil
}

// Close closes the pool.
func (db *DB) Close() error {
	return db.sql.Close()
}

// Ping checks the connection.
func (db *DB) Ping(ctx context.Context) error {
	return db.sql.PingContext(ctx)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS rooms (
		id               BIGSERIAL PRIMARY KEY,
		name             TEXT NOT NULL UNIQUE,
		capacity         INTEGER NOT NULL,
		amenities        JSONB NOT NULL DEFAULT '[]',
		characteristics  JSONB NOT NULL DEFAULT '[]',
		adjacent_room_id BIGINT REFERENCES rooms(id),
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS reservations (
		id           BIGSERIAL PRIMARY KEY,
		room_id      BIGINT NOT NULL REFERENCES rooms(id),
		requester_id TEXT NOT NULL,
		start_time   TIMESTAMPTZ NOT NULL,
		end_time     TIMESTAMPTZ NOT NULL,
		topic        TEXT NOT NULL,
		status       TEXT NOT NULL DEFAULT 'CONFIRMED' CHECK (status IN ('CONFIRMED', 'CANCELED')),
		context      TEXT NOT NULL DEFAULT '',
		complexity   INTEGER,
		thread_id    TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		CHECK (end_time > start_time)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reservations_room ON reservations (room_id, status, start_time)`,
	`CREATE INDEX IF NOT EXISTS idx_reservations_requester ON reservations (requester_id, status, start_time)`,
	`CREATE TABLE IF NOT EXISTS calendar_events (
		reservation_id BIGINT PRIMARY KEY REFERENCES reservations(id),
		calendar_id    TEXT NOT NULL,
		event_id       TEXT NOT NULL,
		synced_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

func (db *DB) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.sql.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

const roomColumns = `id, name, capacity, amenities::text, characteristics::text, adjacent_room_id`

const reservationColumns = `id, room_id, requester_id, start_time, end_time, topic, status, context, complexity, thread_id, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func decodeList(s string) []string {
	out := []string{}
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

func encodeList(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

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

func scanReservation(s scanner) (domain.Reservation, error) {
	var (
		r          domain.Reservation
		status     string
		complexity sql.NullInt64
	)
	if err := s.Scan(&r.ID, &r.RoomID, &r.RequesterID, &r.Start, &r.End, &r.Topic,
		&status, &r.Context, &complexity, &r.ThreadID, &r.CreatedAt); err != nil {
		return domain.Reservation{}, err
	}
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

func (db *DB) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.sql.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// WithinTx runs fn in a read-committed transaction.
func (db *DB) WithinTx(ctx context.Context, fn func(tx booking.Tx) error) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

type pgTx struct {
	tx *sql.Tx
}

// LockRoom takes a FOR UPDATE lock on the room row until the transaction
// ends, which serialises bookings for that room across connections.
func (t *pgTx) LockRoom(ctx context.Context, roomID int64) (domain.Room, error) {
	r, err := scanRoom(t.tx.QueryRowContext(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE id = $1 FOR UPDATE`, roomID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Room{}, booking.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, fmt.Errorf("locking room %d: %w", roomID, err)
	}
	return r, nil
}

func (t *pgTx) Overlapping(ctx context.Context, roomID int64, start, end time.Time) ([]domain.Reservation, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE room_id = $1 AND status = 'CONFIRMED' AND start_time < $2 AND end_time > $3
		ORDER BY start_time`,
		roomID, end, start)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

func (t *pgTx) Insert(ctx context.Context, r *domain.Reservation) error {
	var complexity any
	if r.Complexity != nil {
		complexity = *r.Complexity
	}
	return t.tx.QueryRowContext(ctx, `
		INSERT INTO reservations
			(room_id, requester_id, start_time, end_time, topic, status, context, complexity, thread_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		r.RoomID, r.RequesterID, r.Start, r.End, r.Topic, string(r.Status),
		r.Context, complexity, r.ThreadID, r.CreatedAt).Scan(&r.ID)
}

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
			return nil, err
		}
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

// GetRoom loads one room.
func (db *DB) GetRoom(ctx context.Context, id int64) (domain.Room, error) {
	r, err := scanRoom(db.sql.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Room{}, booking.ErrRoomNotFound
	}
	return r, err
}

// SeedRooms inserts rooms and adjacency links when the rooms table is empty.
// The table lock keeps two starting processes from both seeding.
func (db *DB) SeedRooms(ctx context.Context, rooms []domain.Room, links []booking.Adjacency) (int, error) {
	inserted := 0
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `LOCK TABLE rooms IN EXCLUSIVE MODE`); err != nil {
			return err
		}
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM rooms`).Scan(&count); err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		ids := make(map[string]int64, len(rooms))
		for _, r := range rooms {
			var id int64
			if err := tx.QueryRowContext(ctx,
				`INSERT INTO rooms (name, capacity, amenities, characteristics) VALUES ($1, $2, $3::jsonb, $4::jsonb) RETURNING id`,
				r.Name, r.Capacity, encodeList(r.Amenities), encodeList(r.Characteristics)).Scan(&id); err != nil {
				return fmt.Errorf("inserting room %q: %w", r.Name, err)
			}
			ids[r.Name] = id
			inserted++
		}
		for _, l := range links {
			a, okA := ids[l.A]
			b, okB := ids[l.B]
			if !okA || !okB {
				return fmt.Errorf("adjacency %q-%q names an unknown room", l.A, l.B)
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE rooms SET adjacent_room_id = CASE id WHEN $1 THEN $2 ELSE $1 END WHERE id IN ($1, $2)`,
				a, b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// BookedRoomIDs returns rooms with a confirmed reservation overlapping [start, end).
func (db *DB) BookedRoomIDs(ctx context.Context, start, end time.Time) (map[int64]bool, error) {
	rows, err := db.sql.QueryContext(ctx, `
		SELECT DISTINCT room_id FROM reservations
		WHERE status = 'CONFIRMED' AND start_time < $1 AND end_time > $2`, end, start)
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
	return db.ListReservations(ctx, booking.ReservationFilter{RequesterID: requesterID, Status: domain.StatusConfirmed})
}

// ListReservations returns reservations matching f ordered by start time.
func (db *DB) ListReservations(ctx context.Context, f booking.ReservationFilter) ([]domain.Reservation, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.RequesterID != "" {
		where = append(where, "requester_id = "+arg(f.RequesterID))
	}
	if f.RoomID != 0 {
		where = append(where, "room_id = "+arg(f.RoomID))
	}
	if f.Status != "" {
		where = append(where, "status = "+arg(string(f.Status)))
	}
	if !f.From.IsZero() {
		where = append(where, "end_time > "+arg(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "start_time < "+arg(f.To))
	}

	q := `SELECT ` + reservationColumns + ` FROM reservations`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY start_time, id"
	if f.Limit > 0 {
		q += " LIMIT " + arg(f.Limit)
	}

	rows, err := db.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing reservations: %w", err)
	}
	return collectReservations(rows)
}

// CancelReservation moves a confirmed reservation to CANCELED.
func (db *DB) CancelReservation(ctx context.Context, id int64) (domain.Reservation, error) {
	var out domain.Reservation
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		r, err := scanReservation(tx.QueryRowContext(ctx,
			`SELECT `+reservationColumns+` FROM reservations WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return booking.ErrReservationNotFound
		}
		if err != nil {
			return err
		}
		if r.Status == domain.StatusCanceled {
			return booking.ErrAlreadyCanceled
		}
		if _, err := tx.ExecContext(ctx, `UPDATE reservations SET status = 'CANCELED' WHERE id = $1`, id); err != nil {
			return err
		}
		r.Status = domain.StatusCanceled
		out = r
		return nil
	})
	return out, err
}

// UnmirroredReservations returns confirmed reservations ending after from
// that have no calendar event recorded yet.
func (db *DB) UnmirroredReservations(ctx context.Context, from time.Time) ([]domain.Reservation, error) {
	rows, err := db.sql.QueryContext(ctx, `
		SELECT `+reservationColumns+` FROM reservations r
		WHERE r.status = 'CONFIRMED' AND r.end_time > $1
		  AND NOT EXISTS (SELECT 1 FROM calendar_events c WHERE c.reservation_id = r.id)
		ORDER BY r.start_time`, from)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

// RecordCalendarEvent stores the event id mirrored for a reservation.
func (db *DB) RecordCalendarEvent(ctx context.Context, reservationID int64, calendarID, eventID string) error {
	_, err := db.sql.ExecContext(ctx, `
		INSERT INTO calendar_events (reservation_id, calendar_id, event_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (reservation_id) DO UPDATE SET
			calendar_id = EXCLUDED.calendar_id,
			event_id = EXCLUDED.event_id,
			synced_at = now()`,
		reservationID, calendarID, eventID)
	return err
}

// CalendarEventID returns the mirrored event id for a reservation.
func (db *DB) CalendarEventID(ctx context.Context, reservationID int64) (string, bool, error) {
	var id string
	err := db.sql.QueryRowContext(ctx,
		`SELECT event_id FROM calendar_events WHERE reservation_id = $1`, reservationID).Scan(&id)
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
	_, err := db.sql.ExecContext(ctx, `DELETE FROM calendar_events WHERE reservation_id = $1`, reservationID)
	return err
}
