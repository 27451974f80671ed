package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"

	"github.com/soyeahso/roombot/internal/domain"
	"github.com/soyeahso/roombot/internal/hooks"
	"github.com/soyeahso/roombot/internal/logging"
)

// EventStore tracks which reservations have been mirrored.
type EventStore interface {
	UnmirroredReservations(ctx context.Context, from time.Time) ([]domain.Reservation, error)
	RecordCalendarEvent(ctx context.Context, reservationID int64, calendarID, eventID string) error
	CalendarEventID(ctx context.Context, reservationID int64) (string, bool, error)
	ForgetCalendarEvent(ctx context.Context, reservationID int64) error
}

// RoomNamer resolves room display names.
type RoomNamer interface {
	RoomName(ctx context.Context, id int64) (string, error)
}

// Mirror pushes reservations to one calendar.
type Mirror struct {
	svc        *gcal.Service
	calendarID string
	store      EventStore
	rooms      RoomNamer
	loc        *time.Location
	now        func() time.Time
	cron       *cron.Cron
	log        *logging.Logger
}

// NewMirror creates a mirror writing to calendarID.
func NewMirror(svc *gcal.Service, calendarID string, store EventStore, rooms RoomNamer, loc *time.Location, log *logging.Logger) *Mirror {
	if loc == nil {
		loc = time.Local
	}
	return &Mirror{
		svc:        svc,
		calendarID: calendarID,
		store:      store,
		rooms:      rooms,
		loc:        loc,
		now:        time.Now,
		log:        log.Sub("calendar"),
	}
}

// Attach subscribes the mirror to reservation hooks.
func (m *Mirror) Attach(h *hooks.Manager) {
	h.On(hooks.EventReservationCreated, "calendar", func(ctx context.Context, p hooks.Payload) error {
		r, ok := p.Reservation()
		if !ok {
			return nil
		}
		roomName, _ := p.Data["roomName"].(string)
		return m.Push(ctx, r, roomName)
	})
	h.On(hooks.EventReservationCanceled, "calendar", func(ctx context.Context, p hooks.Payload) error {
		r, ok := p.Reservation()
		if !ok {
			return nil
		}
		return m.Remove(ctx, r.ID)
	})
}

// Detach removes the mirror's reservation hooks.
func (m *Mirror) Detach(h *hooks.Manager) {
	h.Off(hooks.EventReservationCreated, "calendar")
	h.Off(hooks.EventReservationCanceled, "calendar")
}

// Push inserts an event for r and records its id.
func (m *Mirror) Push(ctx context.Context, r domain.Reservation, roomName string) error {
	if roomName == "" && m.rooms != nil {
		roomName, _ = m.rooms.RoomName(ctx, r.RoomID)
	}
	ev, err := m.svc.Events.Insert(m.calendarID, m.event(r, roomName)).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("inserting event for reservation %d: %w", r.ID, err)
	}
	if err := m.store.RecordCalendarEvent(ctx, r.ID, m.calendarID, ev.Id); err != nil {
		return fmt.Errorf("recording event for reservation %d: %w", r.ID, err)
	}
	m.log.Info().Int64("reservation", r.ID).Str("event", ev.Id).Msg("reservation mirrored")
	return nil
}

// Remove deletes the event mirrored for a reservation, if any. An event
// already gone on the calendar side counts as removed.
func (m *Mirror) Remove(ctx context.Context, reservationID int64) error {
	eventID, ok, err := m.store.CalendarEventID(ctx, reservationID)
	if err != nil {
		return fmt.Errorf("looking up event: %w", err)
	}
	if !ok {
		return nil
	}
	err = m.svc.Events.Delete(m.calendarID, eventID).Context(ctx).Do()
	if err != nil && !isGone(err) {
		return fmt.Errorf("deleting event %s: %w", eventID, err)
	}
	if err := m.store.ForgetCalendarEvent(ctx, reservationID); err != nil {
		return fmt.Errorf("forgetting event: %w", err)
	}
	m.log.Info().Int64("reservation", reservationID).Str("event", eventID).Msg("mirrored event removed")
	return nil
}

// Backfill pushes every current or future confirmed reservation that has
// not been mirrored yet. It returns how many were pushed.
func (m *Mirror) Backfill(ctx context.Context) (int, error) {
	rs, err := m.store.UnmirroredReservations(ctx, m.now())
	if err != nil {
		return 0, fmt.Errorf("listing unmirrored reservations: %w", err)
	}
	pushed := 0
	var errs []error
	for _, r := range rs {
		if err := m.Push(ctx, r, ""); err != nil {
			errs = append(errs, err)
			continue
		}
		pushed++
	}
	return pushed, errors.Join(errs...)
}

// Start runs Backfill on schedule until Stop.
func (m *Mirror) Start(schedule string) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		n, err := m.Backfill(ctx)
		if err != nil {
			m.log.Warn().Err(err).Int("pushed", n).Msg("calendar backfill incomplete")
			return
		}
		if n > 0 {
			m.log.Info().Int("pushed", n).Msg("calendar backfill")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid backfill schedule %q: %w", schedule, err)
	}
	m.cron = c
	c.Start()
	return nil
}

// Stop halts the schedule and waits for a running backfill.
func (m *Mirror) Stop() {
	if m.cron == nil {
		return
	}
	<-m.cron.Stop().Done()
}

func (m *Mirror) event(r domain.Reservation, roomName string) *gcal.Event {
	var desc strings.Builder
	if roomName != "" {
		fmt.Fprintf(&desc, "Room: %s (ID: %d)\n", roomName, r.RoomID)
	} else {
		fmt.Fprintf(&desc, "Room ID: %d\n", r.RoomID)
	}
	fmt.Fprintf(&desc, "Booked by: %s\n", r.RequesterID)
	fmt.Fprintf(&desc, "Reservation: #%d", r.ID)

	return &gcal.Event{
		Summary:     r.Topic,
		Description: desc.String(),
		Location:    roomName,
		Start: &gcal.EventDateTime{
			DateTime: r.Start.In(m.loc).Format(time.RFC3339),
			TimeZone: m.loc.String(),
		},
		End: &gcal.EventDateTime{
			DateTime: r.End.In(m.loc).Format(time.RFC3339),
			TimeZone: m.loc.String(),
		},
	}
}

func isGone(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone
	}
	return false
}
