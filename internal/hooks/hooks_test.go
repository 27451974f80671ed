package hooks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/soyeahso/roombot/internal/domain"
	"github.com/soyeahso/roombot/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager() *Manager {
	return NewManager(logging.New(nil, "silent"))
}

func TestManager_EmitOrderAndErrors(t *testing.T) {
	m := testManager()

	var order []string
	m.On(EventTurnCompleted, "first", func(_ context.Context, p Payload) error {
		assert.Equal(t, EventTurnCompleted, p.Event)
		order = append(order, "first")
		return errors.New("handler broke")
	})
	m.On(EventTurnCompleted, "second", func(_ context.Context, _ Payload) error {
		order = append(order, "second")
		return nil
	})

	m.Emit(context.Background(), EventTurnCompleted, nil)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestManager_ReservationPayload(t *testing.T) {
	m := testManager()

	var got domain.Reservation
	var name any
	m.On(EventReservationCreated, "capture", func(_ context.Context, p Payload) error {
		r, ok := p.Reservation()
		require.True(t, ok)
		got = r
		name = p.Data["roomName"]
		return nil
	})

	res := domain.Reservation{ID: 7, RoomID: 1, Topic: "Sync", Status: domain.StatusConfirmed}
	m.Emit(context.Background(), EventReservationCreated, ReservationData(res, "Mate Center 304"))
	assert.Equal(t, res, got)
	assert.Equal(t, "Mate Center 304", name)

	_, ok := Payload{}.Reservation()
	assert.False(t, ok)
}

func TestManager_Off(t *testing.T) {
	m := testManager()

	var removed, kept int
	m.On(EventGatewayStart, "remove-me", func(_ context.Context, _ Payload) error {
		removed++
		return nil
	})
	m.On(EventGatewayStart, "keep-me", func(_ context.Context, _ Payload) error {
		kept++
		return nil
	})

	m.Emit(context.Background(), EventGatewayStart, nil)
	m.Off(EventGatewayStart, "remove-me")
	m.Emit(context.Background(), EventGatewayStart, nil)

	assert.Equal(t, 1, removed)
	assert.Equal(t, 2, kept)
	assert.Equal(t, 1, m.Count(EventGatewayStart))
}

func TestManager_EmitAsyncAndWait(t *testing.T) {
	m := testManager()

	var count atomic.Int32
	for _, name := range []string{"a", "b"} {
		m.On(EventReservationCanceled, name, func(ctx context.Context, _ Payload) error {
			time.Sleep(10 * time.Millisecond)
			if ctx.Err() == nil {
				count.Add(1)
			}
			return nil
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.EmitAsync(ctx, EventReservationCanceled, nil)
	cancel()

	done := make(chan struct{})
	go func() { m.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async handlers did not complete in time")
	}
	assert.Equal(t, int32(2), count.Load())
}

func TestManager_NilIsNoop(t *testing.T) {
	var m *Manager
	m.Emit(context.Background(), EventGatewayStop, nil)
	m.EmitAsync(context.Background(), EventGatewayStop, nil)
	m.Wait()
	assert.Equal(t, 0, m.Count(EventGatewayStop))
}

func TestManager_Events(t *testing.T) {
	m := testManager()

	m.On(EventGatewayStart, "h1", func(_ context.Context, _ Payload) error { return nil })
	m.On(EventMessageReceived, "h2", func(_ context.Context, _ Payload) error { return nil })

	events := m.Events()
	assert.ElementsMatch(t, []string{EventGatewayStart, EventMessageReceived}, events)
	assert.Contains(t, AllEvents, EventReservationCreated)
}
