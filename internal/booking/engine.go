// Package booking enforces the reservation invariants: for any room, no two
// confirmed reservations overlap.
package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/soyeahso/roombot/internal/domain"
	"github.com/soyeahso/roombot/internal/hooks"
	"github.com/soyeahso/roombot/internal/logging"
)

// NewReservation is a request to book a room.
type NewReservation struct {
	RoomID      int64
	RequesterID string
	Start       time.Time
	End         time.Time
	Topic       string
	Context     string
	Complexity  *int
	ThreadID    string
}

// Engine performs the atomic check-and-insert and the booking history
// queries.
type Engine struct {
	store Store
	hooks *hooks.Manager
	now   func() time.Time
	log   *logging.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithHooks emits reservation events on m.
func WithHooks(m *hooks.Manager) EngineOption {
	return func(e *Engine) { e.hooks = m }
}

// WithClock overrides the clock used for CreatedAt.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine on store.
func NewEngine(store Store, log *logging.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		store: store,
		now:   time.Now,
		log:   log.Sub("booking"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the underlying persistence port.
func (e *Engine) Store() Store {
	return e.store
}

// CreateReservation books the room if no confirmed reservation overlaps the
// requested interval. The overlap check and the insert run in one
// transaction under the room lock; on conflict nothing is written and a
// *ConflictError is returned.
func (e *Engine) CreateReservation(ctx context.Context, req NewReservation) (*domain.Reservation, error) {
	if !req.End.After(req.Start) {
		return nil, ErrInvalidInterval
	}

	var (
		created domain.Reservation
		room    domain.Room
	)
	err := e.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		if room, err = tx.LockRoom(ctx, req.RoomID); err != nil {
			return err
		}

		existing, err := tx.Overlapping(ctx, req.RoomID, req.Start, req.End)
		if err != nil {
			return fmt.Errorf("checking overlaps: %w", err)
		}
		if len(existing) > 0 {
			return &ConflictError{RoomID: req.RoomID, Start: req.Start, End: req.End}
		}

		created = domain.Reservation{
			RoomID:      req.RoomID,
			RequesterID: req.RequesterID,
			Start:       req.Start,
			End:         req.End,
			Topic:       req.Topic,
			Status:      domain.StatusConfirmed,
			Context:     req.Context,
			Complexity:  req.Complexity,
			ThreadID:    req.ThreadID,
			CreatedAt:   e.now(),
		}
		if err := tx.Insert(ctx, &created); err != nil {
			return fmt.Errorf("inserting reservation: %w", err)
		}
		return nil
	})
	if err != nil {
		if IsConflict(err) {
			e.log.Info().
				Int64("room", req.RoomID).
				Time("start", req.Start).
				Time("end", req.End).
				Msg("reservation conflict")
		}
		return nil, err
	}

	e.log.Info().
		Int64("id", created.ID).
		Int64("room", created.RoomID).
		Str("requester", created.RequesterID).
		Time("start", created.Start).
		Time("end", created.End).
		Msg("reservation created")
	e.hooks.EmitAsync(ctx, hooks.EventReservationCreated, hooks.ReservationData(created, room.Name))
	return &created, nil
}

// CancelReservation performs the CONFIRMED to CANCELED transition.
func (e *Engine) CancelReservation(ctx context.Context, id int64) (*domain.Reservation, error) {
	r, err := e.store.CancelReservation(ctx, id)
	if err != nil {
		return nil, err
	}

	var roomName string
	if room, err := e.store.GetRoom(ctx, r.RoomID); err == nil {
		roomName = room.Name
	}
	e.log.Info().Int64("id", r.ID).Int64("room", r.RoomID).Msg("reservation canceled")
	e.hooks.EmitAsync(ctx, hooks.EventReservationCanceled, hooks.ReservationData(r, roomName))
	return &r, nil
}

// GetUserStats summarises the requester's confirmed bookings. It returns
// nil, nil when the requester has none. Ties for the favourite room go to
// the lowest room id.
func (e *Engine) GetUserStats(ctx context.Context, requesterID string) (*domain.UserStats, error) {
	rs, err := e.store.ConfirmedByRequester(ctx, requesterID)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	return Aggregate(rs), nil
}

// Aggregate computes UserStats over confirmed reservations. Canceled
// entries are ignored.
func Aggregate(rs []domain.Reservation) *domain.UserStats {
	counts := make(map[int64]int)
	var last *domain.Reservation
	total := 0
	for i := range rs {
		r := &rs[i]
		if !r.Active() {
			continue
		}
		counts[r.RoomID]++
		total++
		if last == nil || r.Start.After(last.Start) {
			last = r
		}
	}
	if total == 0 {
		return nil
	}

	ids := make([]int64, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if counts[ids[i]] != counts[ids[j]] {
			return counts[ids[i]] > counts[ids[j]]
		}
		return ids[i] < ids[j]
	})

	return &domain.UserStats{
		FavoriteRoomID: ids[0],
		TotalBookings:  total,
		LastTopic:      last.Topic,
	}
}

// RoomName resolves a room's display name, or "" if it does not exist.
func (e *Engine) RoomName(ctx context.Context, id int64) (string, error) {
	room, err := e.store.GetRoom(ctx, id)
	if errors.Is(err, ErrRoomNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return room.Name, nil
}
