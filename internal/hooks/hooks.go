// Package hooks dispatches roombot lifecycle events to registered handlers.
package hooks

import (
	"context"
	"sync"

	"github.com/soyeahso/roombot/internal/domain"
	"github.com/soyeahso/roombot/internal/logging"
)

// Event names for the hook system.
const (
	EventReservationCreated  = "reservation_created"
	EventReservationCanceled = "reservation_canceled"
	EventMessageReceived     = "message_received"
	EventTurnCompleted       = "turn_completed"
	EventGatewayStart        = "gateway_start"
	EventGatewayStop         = "gateway_stop"
)

// AllEvents lists all known hook event names.
var AllEvents = []string{
	EventReservationCreated,
	EventReservationCanceled,
	EventMessageReceived,
	EventTurnCompleted,
	EventGatewayStart,
	EventGatewayStop,
}

// Payload carries event data to hook handlers.
type Payload struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

// Reservation extracts the reservation attached by ReservationData.
func (p Payload) Reservation() (domain.Reservation, bool) {
	r, ok := p.Data["reservation"].(domain.Reservation)
	return r, ok
}

// ReservationData builds the payload data for reservation events.
func ReservationData(r domain.Reservation, roomName string) map[string]any {
	return map[string]any{
		"reservation": r,
		"roomName":    roomName,
	}
}

// Handler is a function that handles a hook event.
// Returning an error logs the failure but does not stop processing.
type Handler func(ctx context.Context, p Payload) error

// Manager manages hook registrations and dispatches events.
// A nil *Manager is valid and drops every event.
type Manager struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
	inflight sync.WaitGroup
	log      *logging.Logger
}

type namedHandler struct {
	name    string
	handler Handler
}

// NewManager creates a hook manager.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		handlers: make(map[string][]namedHandler),
		log:      log.Sub("hooks"),
	}
}

// On registers a handler for the given event.
// The name identifies the handler for logging and Off.
func (m *Manager) On(event, name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], namedHandler{name: name, handler: handler})
	m.log.Debug().Str("event", event).Str("handler", name).Msg("hook registered")
}

// Off removes all handlers with the given name from the event.
func (m *Manager) Off(event, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.handlers[event][:0:0]
	for _, h := range m.handlers[event] {
		if h.name != name {
			kept = append(kept, h)
		}
	}
	m.handlers[event] = kept
}

func (m *Manager) snapshot(event string) []namedHandler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]namedHandler(nil), m.handlers[event]...)
}

func (m *Manager) run(ctx context.Context, h namedHandler, p Payload) {
	if err := h.handler(ctx, p); err != nil {
		m.log.Warn().
			Err(err).
			Str("event", p.Event).
			Str("handler", h.name).
			Msg("hook handler error")
	}
}

// Emit dispatches an event to all registered handlers synchronously, in
// registration order. Errors are logged and do not stop later handlers.
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	if m == nil {
		return
	}
	p := Payload{Event: event, Data: data}
	for _, h := range m.snapshot(event) {
		m.run(ctx, h, p)
	}
}

// EmitAsync dispatches an event to all registered handlers concurrently and
// returns immediately. The handlers run on a context detached from ctx's
// cancellation so a finished request does not abort them.
func (m *Manager) EmitAsync(ctx context.Context, event string, data map[string]any) {
	if m == nil {
		return
	}
	handlers := m.snapshot(event)
	if len(handlers) == 0 {
		return
	}
	p := Payload{Event: event, Data: data}
	detached := context.WithoutCancel(ctx)
	for _, h := range handlers {
		m.inflight.Add(1)
		go func() {
			defer m.inflight.Done()
			m.run(detached, h, p)
		}()
	}
}

// Wait blocks until every handler started by EmitAsync has returned.
func (m *Manager) Wait() {
	if m == nil {
		return
	}
	m.inflight.Wait()
}

// Count returns the number of handlers registered for an event.
func (m *Manager) Count(event string) int {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers[event])
}

// Events returns the events that have at least one handler registered.
func (m *Manager) Events() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]string, 0, len(m.handlers))
	for event, handlers := range m.handlers {
		if len(handlers) > 0 {
			events = append(events, event)
		}
	}
	return events
}
