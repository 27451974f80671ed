package gateway

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/roombot/internal/agent"
	"github.com/soyeahso/roombot/internal/booking"
	"github.com/soyeahso/roombot/internal/channel"
	"github.com/soyeahso/roombot/internal/domain"
	"github.com/soyeahso/roombot/internal/metrics"
	"github.com/soyeahso/roombot/internal/ratelimit"
)

var testDay = time.Date(2030, 5, 6, 0, 0, 0, 0, time.UTC)

func (h *harness) book(t *testing.T, roomID int64, requester string, startHour, endHour int) *domain.Reservation {
	t.Helper()
	r, err := h.engine.CreateReservation(context.Background(), booking.NewReservation{
		RoomID:      roomID,
		RequesterID: requester,
		Start:       testDay.Add(time.Duration(startHour) * time.Hour),
		End:         testDay.Add(time.Duration(endHour) * time.Hour),
		Topic:       "Sync",
	})
	require.NoError(t, err)
	return r
}

func TestRPC_Health(t *testing.T) {
	h := newHarness(t)
	conn, _ := h.connect(t)

	health := decode[HealthResponse](t, call(t, conn, "r1", "health", nil))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "ok", health.Store)
	assert.NotEmpty(t, health.Version)
	assert.Equal(t, 1, health.Clients)
}

type failingStore struct{}

func (failingStore) Ping(context.Context) error { return errors.New("database is locked") }

func TestRPC_HealthDegraded(t *testing.T) {
	h := newHarness(t, WithStore(failingStore{}))
	conn, _ := h.connect(t)

	health := decode[HealthResponse](t, call(t, conn, "r1", "health", nil))
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, "database is locked", health.Store)
}

type stubChannel struct{ id string }

func (s stubChannel) ID() string                                       { return s.id }
func (stubChannel) Start(context.Context) error                        { return nil }
func (stubChannel) Stop(context.Context) error                         { return nil }
func (stubChannel) Send(context.Context, domain.OutboundMessage) error { return nil }
func (stubChannel) OnMessage(func(domain.InboundMessage))              {}

func TestRPC_ChannelsStatus(t *testing.T) {
	reg := channel.NewRegistry(testLog())
	reg.Register(stubChannel{id: "slack"})
	h := newHarness(t, WithChannels(reg))
	conn, _ := h.connect(t)

	got := decode[struct {
		Channels []domain.ChannelStatus `json:"channels"`
	}](t, call(t, conn, "r1", "channels.status", nil))
	require.Len(t, got.Channels, 1)
	assert.Equal(t, "slack", got.Channels[0].ChannelID)
}

func TestRPC_ChannelsStatus_NoRegistry(t *testing.T) {
	h := newHarness(t)
	conn, _ := h.connect(t)

	got := decode[map[string][]any](t, call(t, conn, "r1", "channels.status", nil))
	assert.Empty(t, got["channels"])
}

func TestRPC_ChatSend(t *testing.T) {
	h := newHarness(t)
	conn, hello := h.connect(t)

	res := decode[ChatSendResult](t, call(t, conn, "r1", "chat.send", ChatSendParams{Message: "  rooms free at 10?  "}))
	assert.Equal(t, ChatSendResult{
		Text:       "echo: rooms free at 10?",
		TraceID:    "trace-1",
		Outcome:    string(agent.OutcomeAnswered),
		Iterations: 1,
		DurationMs: 1500,
	}, res)

	turns := h.asst.recorded()
	require.Len(t, turns, 1)
	assert.Equal(t, agent.Turn{
		RequesterID: "ops-console",
		Text:        "rooms free at 10?",
		ThreadID:    hello.Server.ConnID,
		ChannelID:   "gateway",
	}, turns[0])
}

func TestRPC_ChatSend_ExplicitRequesterAndThread(t *testing.T) {
	h := newHarness(t)
	conn, _ := h.connect(t)

	decode[ChatSendResult](t, call(t, conn, "r1", "chat.send", ChatSendParams{
		Message: "book room 2", RequesterID: "U42", ThreadID: "T1",
	}))
	turns := h.asst.recorded()
	require.Len(t, turns, 1)
	assert.Equal(t, "U42", turns[0].RequesterID)
	assert.Equal(t, "T1", turns[0].ThreadID)
}

func TestRPC_ChatSend_Validation(t *testing.T) {
	h := newHarness(t)
	conn, _ := h.connect(t)

	requireError(t, call(t, conn, "r1", "chat.send", ChatSendParams{Message: "   "}), CodeInvalidParams)
	requireError(t, call(t, conn, "r2", "chat.send", []int{1}), CodeInvalidParams)
	assert.Empty(t, h.asst.recorded())
}

func TestRPC_ChatSend_NoAssistant(t *testing.T) {
	h := newHarness(t, WithAssistant(nil))
	conn, _ := h.connect(t)

	requireError(t, call(t, conn, "r1", "chat.send", ChatSendParams{Message: "hi"}), CodeUnavailable)
}

func TestRPC_ChatSend_RateLimited(t *testing.T) {
	m := metrics.New()
	h := newHarness(t, WithLimiter(ratelimit.New(1, 1)), WithMetrics(m))
	conn, _ := h.connect(t)

	decode[ChatSendResult](t, call(t, conn, "r1", "chat.send", ChatSendParams{Message: "first"}))
	shape := requireError(t, call(t, conn, "r2", "chat.send", ChatSendParams{Message: "second"}), CodeRateLimited)
	assert.Equal(t, ratelimit.Message, shape.Message)
	assert.True(t, shape.Retryable)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitedTotal.WithLabelValues("gateway")))

	// Another requester has its own bucket.
	decode[ChatSendResult](t, call(t, conn, "r3", "chat.send", ChatSendParams{Message: "mine", RequesterID: "U2"}))
	assert.Len(t, h.asst.recorded(), 2)
}

func TestRPC_RoomsList(t *testing.T) {
	h := newHarness(t)
	conn, _ := h.connect(t)

	got := decode[struct {
		Rooms []domain.Room `json:"rooms"`
	}](t, call(t, conn, "r1", "rooms.list", nil))
	require.Len(t, got.Rooms, 4)
	assert.Equal(t, "Mate Center 304", got.Rooms[0].Name)
	require.NotNil(t, got.Rooms[0].AdjacentRoomID)
}

func TestRPC_RoomsAvailable(t *testing.T) {
	h := newHarness(t)
	h.book(t, 1, "U1", 10, 11)
	conn, _ := h.connect(t)

	type roomsResult struct {
		Start time.Time     `json:"start"`
		End   time.Time     `json:"end"`
		Rooms []domain.Room `json:"rooms"`
	}
	names := func(rs []domain.Room) []string {
		out := make([]string, len(rs))
		for i, r := range rs {
			out[i] = r.Name
		}
		return out
	}

	got := decode[roomsResult](t, call(t, conn, "r1", "rooms.available", RoomsAvailableParams{
		Date: "2030-05-06", StartTime: "10:30", EndTime: "11:30",
	}))
	assert.Equal(t, testDay.Add(10*time.Hour+30*time.Minute), got.Start.UTC())
	assert.Equal(t, []string{"Mate Center 305", "Soul Cup Lounge", "Focus Room A"}, names(got.Rooms))

	// Touching intervals do not overlap.
	got = decode[roomsResult](t, call(t, conn, "r2", "rooms.available", RoomsAvailableParams{
		Date: "2030-05-06", StartTime: "11:00", EndTime: "12:00",
	}))
	assert.Len(t, got.Rooms, 4)

	capacity := 5
	got = decode[roomsResult](t, call(t, conn, "r3", "rooms.available", RoomsAvailableParams{
		Date: "2030-05-06", StartTime: "11:00", EndTime: "12:00",
		MinCapacity: &capacity, Characteristics: []string{"QUIET"},
	}))
	assert.Equal(t, []string{"Mate Center 304"}, names(got.Rooms))
}

func TestRPC_RoomsAvailable_Validation(t *testing.T) {
	h := newHarness(t)
	conn, _ := h.connect(t)

	tests := []struct {
		name   string
		params RoomsAvailableParams
	}{
		{"missing fields", RoomsAvailableParams{Date: "2030-05-06"}},
		{"bad date", RoomsAvailableParams{Date: "06/05/2030", StartTime: "10:00", EndTime: "11:00"}},
		{"bad time", RoomsAvailableParams{Date: "2030-05-06", StartTime: "10am", EndTime: "11:00"}},
		{"end before start", RoomsAvailableParams{Date: "2030-05-06", StartTime: "11:00", EndTime: "10:00"}},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireError(t, call(t, conn, "v"+string(rune('0'+i)), "rooms.available", tt.params), CodeInvalidParams)
		})
	}
}

func TestRPC_ReservationsList(t *testing.T) {
	h := newHarness(t)
	a := h.book(t, 1, "U1", 9, 10)
	b := h.book(t, 2, "U1", 14, 15)
	h.book(t, 3, "U2", 9, 10)
	_, err := h.engine.CancelReservation(context.Background(), b.ID)
	require.NoError(t, err)
	conn, _ := h.connect(t)

	type listResult struct {
		Reservations []domain.Reservation `json:"reservations"`
	}
	ids := func(rs []domain.Reservation) []int64 {
		out := make([]int64, len(rs))
		for i, r := range rs {
			out[i] = r.ID
		}
		return out
	}

	got := decode[listResult](t, call(t, conn, "r1", "reservations.list", ReservationsListParams{
		RequesterID: "U1", Status: "confirmed",
	}))
	assert.Equal(t, []int64{a.ID}, ids(got.Reservations))

	got = decode[listResult](t, call(t, conn, "r2", "reservations.list", ReservationsListParams{
		From: "2030-05-06", To: "2030-05-06",
	}))
	assert.Len(t, got.Reservations, 3)

	got = decode[listResult](t, call(t, conn, "r3", "reservations.list", ReservationsListParams{
		From: "2030-05-07",
	}))
	assert.NotNil(t, got.Reservations)
	assert.Empty(t, got.Reservations)

	requireError(t, call(t, conn, "r4", "reservations.list", ReservationsListParams{Status: "PENDING"}), CodeInvalidParams)
	requireError(t, call(t, conn, "r5", "reservations.list", ReservationsListParams{From: "tomorrow"}), CodeInvalidParams)
}

func TestRPC_ReservationsCancel(t *testing.T) {
	h := newHarness(t)
	r := h.book(t, 1, "U1", 9, 10)
	conn, _ := h.connect(t)

	got := decode[struct {
		Reservation domain.Reservation `json:"reservation"`
	}](t, call(t, conn, "r1", "reservations.cancel", ReservationsCancelParams{ID: r.ID}))
	assert.Equal(t, domain.StatusCanceled, got.Reservation.Status)

	stored, err := h.db.GetReservation(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCanceled, stored.Status)

	requireError(t, call(t, conn, "r2", "reservations.cancel", ReservationsCancelParams{ID: r.ID}), CodeAlreadyCanceled)
	requireError(t, call(t, conn, "r3", "reservations.cancel", ReservationsCancelParams{ID: 999}), CodeNotFound)
	requireError(t, call(t, conn, "r4", "reservations.cancel", ReservationsCancelParams{}), CodeInvalidParams)
}

func TestRPC_BookingMethodsWithoutEngine(t *testing.T) {
	srv := New(testConfig(), testLog())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	h := &harness{srv: srv, ts: ts}
	conn, _ := h.connect(t)

	for _, method := range []string{"rooms.list", "rooms.available", "reservations.list", "reservations.cancel"} {
		requireError(t, call(t, conn, method, method, nil), CodeUnavailable)
	}
}
