// Package trace records the audit trail of assistant turns as JSON lines.
package trace

import (
	"context"
	"sync"
	"time"
)

// Kind names a trace event.
type Kind string

const (
	KindUserInput       Kind = "USER_INPUT"
	KindSecurityBlock   Kind = "SECURITY_BLOCK"
	KindToolExecution   Kind = "TOOL_EXECUTION"
	KindToolResult      Kind = "TOOL_RESULT"
	KindToolError       Kind = "TOOL_ERROR"
	KindTransportError  Kind = "TRANSPORT_ERROR"
	KindBudgetExhausted Kind = "BUDGET_EXHAUSTED"
)

// Event is one audit record. All events of a turn share TraceID.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	TraceID   string    `json:"traceId"`
	Kind      Kind      `json:"event"`
	Data      any       `json:"data"`
}

// Sink receives trace events. Implementations must be safe for concurrent
// use.
type Sink interface {
	Record(ctx context.Context, ev Event) error
	Close() error
}

// Discard is a Sink that drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Record(context.Context, Event) error { return nil }
func (discard) Close() error                        { return nil }

// MemorySink keeps events in memory.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

// NewMemorySink returns an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (m *MemorySink) Record(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *MemorySink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Events returns a copy of all recorded events in order.
func (m *MemorySink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Kinds returns the event kinds recorded for traceID, in order.
func (m *MemorySink) Kinds(traceID string) []Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Kind
	for _, ev := range m.events {
		if ev.TraceID == traceID {
			out = append(out, ev.Kind)
		}
	}
	return out
}

// Closed reports whether Close was called.
func (m *MemorySink) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
