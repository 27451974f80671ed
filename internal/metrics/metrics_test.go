package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/roombot/internal/domain"
	"github.com/soyeahso/roombot/internal/hooks"
	"github.com/soyeahso/roombot/internal/logging"
)

func TestCollector_Registers(t *testing.T) {
	c := New()
	c.ObserveTool("getAvailableRooms", "ok", 10*time.Millisecond)

	families, err := c.Registry.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "roombot_tool_dispatches_total")
	assert.Contains(t, names, "roombot_tool_dispatch_duration_seconds")
}

func TestCollector_Observations(t *testing.T) {
	c := New()

	done := c.TurnStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ActiveTurns))
	done("answered")
	assert.Equal(t, 0.0, testutil.ToFloat64(c.ActiveTurns))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.TurnsTotal.WithLabelValues("answered")))

	c.ObserveLLM("openai", "ok", time.Second, 120, 30)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.LLMRequestsTotal.WithLabelValues("openai", "ok")))
	assert.Equal(t, 120.0, testutil.ToFloat64(c.LLMTokensUsed.WithLabelValues("openai", "input")))
	assert.Equal(t, 30.0, testutil.ToFloat64(c.LLMTokensUsed.WithLabelValues("openai", "output")))

	c.ObserveTool("createReservation", "conflict", time.Millisecond)
	c.ObserveTool("createReservation", "ok", time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ConflictsTotal))

	c.GuardrailBlocked()
	c.RateLimited("gateway")
	c.MessageReceived("irc")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.GuardrailBlocks))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.RateLimitedTotal.WithLabelValues("gateway")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ChannelMessagesIn.WithLabelValues("irc")))
}

func TestCollector_NilIsSafe(t *testing.T) {
	var c *Collector
	c.ObserveTool("x", "ok", 0)
	c.ObserveLLM("x", "ok", 0, 1, 1)
	c.GuardrailBlocked()
	c.RateLimited("x")
	c.MessageReceived("x")
	c.Attach(nil)
	c.TurnStarted()("answered")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCollector_AttachHooks(t *testing.T) {
	c := New()
	m := hooks.NewManager(logging.Nop())
	c.Attach(m)

	data := hooks.ReservationData(domain.Reservation{ID: 1, RoomID: 2}, "Mate Center 305")
	m.Emit(context.Background(), hooks.EventReservationCreated, data)
	m.Emit(context.Background(), hooks.EventReservationCreated, data)
	m.Emit(context.Background(), hooks.EventReservationCanceled, data)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.ReservationsTotal.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ReservationsTotal.WithLabelValues("canceled")))
}

func TestCollector_Handler(t *testing.T) {
	c := New()
	c.GuardrailBlocked()

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "roombot_guardrail_blocks_total 1")
}
