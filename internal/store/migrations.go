package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// Times are stored as unix milliseconds so interval comparisons are numeric.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create rooms and reservations",
		SQL: `
			CREATE TABLE rooms (
				id               INTEGER PRIMARY KEY AUTOINCREMENT,
				name             TEXT NOT NULL UNIQUE,
				capacity         INTEGER NOT NULL,
				amenities        TEXT NOT NULL DEFAULT '[]',
				characteristics  TEXT NOT NULL DEFAULT '[]',
				adjacent_room_id INTEGER REFERENCES rooms(id),
				created_at       TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE TABLE reservations (
				id           INTEGER PRIMARY KEY AUTOINCREMENT,
				room_id      INTEGER NOT NULL REFERENCES rooms(id),
				requester_id TEXT NOT NULL,
				start_ms     INTEGER NOT NULL,
				end_ms       INTEGER NOT NULL,
				topic        TEXT NOT NULL,
				status       TEXT NOT NULL DEFAULT 'CONFIRMED' CHECK (status IN ('CONFIRMED', 'CANCELED')),
				context      TEXT NOT NULL DEFAULT '',
				complexity   INTEGER,
				thread_id    TEXT NOT NULL DEFAULT '',
				created_ms   INTEGER NOT NULL,
				CHECK (end_ms > start_ms)
			);

			CREATE INDEX idx_reservations_room ON reservations (room_id, status, start_ms);
			CREATE INDEX idx_reservations_requester ON reservations (requester_id, status, start_ms);
		`,
	},
	{
		Version: 2,
		Name:    "create calendar events",
		SQL: `
			CREATE TABLE calendar_events (
				reservation_id INTEGER PRIMARY KEY REFERENCES reservations(id),
				calendar_id    TEXT NOT NULL,
				event_id       TEXT NOT NULL,
				synced_ms      INTEGER NOT NULL
			);
		`,
	},
}
