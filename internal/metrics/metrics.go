// Package metrics holds the Prometheus collectors for roombot. Collectors
// live on a private registry. A nil *Collector ignores every observation.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/soyeahso/roombot/internal/hooks"
)

const namespace = "roombot"

// Collector holds all roombot metrics.
type Collector struct {
	Registry *prometheus.Registry

	TurnsTotal   *prometheus.CounterVec
	TurnDuration prometheus.Histogram
	ActiveTurns  prometheus.Gauge

	LLMRequestsTotal   *prometheus.CounterVec
	LLMRequestDuration *prometheus.HistogramVec
	LLMTokensUsed      *prometheus.CounterVec

	ToolDispatchesTotal *prometheus.CounterVec
	ToolDuration        *prometheus.HistogramVec

	ReservationsTotal *prometheus.CounterVec
	ConflictsTotal    prometheus.Counter
	GuardrailBlocks   prometheus.Counter
	RateLimitedTotal  *prometheus.CounterVec
	ChannelMessagesIn *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,

		TurnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "turns_total",
			Help:      "Assistant turns by outcome.",
		}, []string{"outcome"}),

		TurnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "turn_duration_seconds",
			Help:      "Wall time of an assistant turn.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),

		ActiveTurns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "active_turns",
			Help:      "Turns currently in progress.",
		}),

		LLMRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "requests_total",
			Help:      "LLM completion requests.",
		}, []string{"provider", "status"}),

		LLMRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "request_duration_seconds",
			Help:      "LLM completion latency in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider"}),

		LLMTokensUsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "tokens_used_total",
			Help:      "LLM tokens consumed.",
		}, []string{"provider", "direction"}),

		ToolDispatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tool",
			Name:      "dispatches_total",
			Help:      "Tool dispatches by tool and status.",
		}, []string{"tool", "status"}),

		ToolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tool",
			Name:      "dispatch_duration_seconds",
			Help:      "Tool dispatch latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),

		ReservationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "reservations_total",
			Help:      "Reservation lifecycle transitions.",
		}, []string{"event"}),

		ConflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "conflicts_total",
			Help:      "Reservation requests rejected as double bookings.",
		}),

		GuardrailBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guardrail",
			Name:      "blocks_total",
			Help:      "Inputs refused by the guardrail.",
		}),

		RateLimitedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Turns rejected by the per-requester rate limiter.",
		}, []string{"source"}),

		ChannelMessagesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "messages_received_total",
			Help:      "Inbound chat messages by channel.",
		}, []string{"channel"}),
	}

	reg.MustRegister(
		c.TurnsTotal,
		c.TurnDuration,
		c.ActiveTurns,
		c.LLMRequestsTotal,
		c.LLMRequestDuration,
		c.LLMTokensUsed,
		c.ToolDispatchesTotal,
		c.ToolDuration,
		c.ReservationsTotal,
		c.ConflictsTotal,
		c.GuardrailBlocks,
		c.RateLimitedTotal,
		c.ChannelMessagesIn,
	)
	return c
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{Registry: c.Registry})
}

// TurnStarted increments the active turn gauge and returns a func that
// records the outcome.
func (c *Collector) TurnStarted() func(outcome string) {
	if c == nil {
		return func(string) {}
	}
	start := time.Now()
	c.ActiveTurns.Inc()
	return func(outcome string) {
		c.ActiveTurns.Dec()
		c.TurnsTotal.WithLabelValues(outcome).Inc()
		c.TurnDuration.Observe(time.Since(start).Seconds())
	}
}

// ObserveLLM records one completion request.
func (c *Collector) ObserveLLM(provider, status string, elapsed time.Duration, inputTokens, outputTokens int) {
	if c == nil {
		return
	}
	c.LLMRequestsTotal.WithLabelValues(provider, status).Inc()
	c.LLMRequestDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
	if inputTokens > 0 {
		c.LLMTokensUsed.WithLabelValues(provider, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		c.LLMTokensUsed.WithLabelValues(provider, "output").Add(float64(outputTokens))
	}
}

// ObserveTool records one tool dispatch.
func (c *Collector) ObserveTool(tool, status string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.ToolDispatchesTotal.WithLabelValues(tool, status).Inc()
	c.ToolDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
	if status == "conflict" {
		c.ConflictsTotal.Inc()
	}
}

// GuardrailBlocked counts a refused input.
func (c *Collector) GuardrailBlocked() {
	if c == nil {
		return
	}
	c.GuardrailBlocks.Inc()
}

// RateLimited counts a turn dropped by a rate limiter.
func (c *Collector) RateLimited(source string) {
	if c == nil {
		return
	}
	c.RateLimitedTotal.WithLabelValues(source).Inc()
}

// MessageReceived counts an inbound chat message.
func (c *Collector) MessageReceived(channel string) {
	if c == nil {
		return
	}
	c.ChannelMessagesIn.WithLabelValues(channel).Inc()
}

// Attach counts reservation lifecycle hooks.
func (c *Collector) Attach(m *hooks.Manager) {
	if c == nil || m == nil {
		return
	}
	m.On(hooks.EventReservationCreated, "metrics", func(context.Context, hooks.Payload) error {
		c.ReservationsTotal.WithLabelValues("created").Inc()
		return nil
	})
	m.On(hooks.EventReservationCanceled, "metrics", func(context.Context, hooks.Payload) error {
		c.ReservationsTotal.WithLabelValues("canceled").Inc()
		return nil
	})
}
