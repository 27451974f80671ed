// Package agent runs the bounded tool-orchestration loop that turns one user
// message into one reply.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/soyeahso/roombot/internal/guardrail"
	"github.com/soyeahso/roombot/internal/hooks"
	"github.com/soyeahso/roombot/internal/llm"
	"github.com/soyeahso/roombot/internal/logging"
	"github.com/soyeahso/roombot/internal/telemetry"
	"github.com/soyeahso/roombot/internal/tools"
	"github.com/soyeahso/roombot/internal/trace"
)

// State is a loop state.
type State int

const (
	StateAwaitingModel State = iota
	StateDispatchingTools
	StateDone
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateAwaitingModel:
		return "AWAITING_MODEL"
	case StateDispatchingTools:
		return "DISPATCHING_TOOLS"
	case StateDone:
		return "DONE"
	case StateExhausted:
		return "EXHAUSTED"
	default:
		return "UNKNOWN"
	}
}

// Outcome classifies how a turn ended.
type Outcome string

const (
	OutcomeAnswered         Outcome = "answered"
	OutcomeBlocked          Outcome = "blocked"
	OutcomeExhausted        Outcome = "exhausted"
	OutcomeTransportFailure Outcome = "transport_failure"
)

// Dispatcher executes tool calls and publishes the catalog.
type Dispatcher interface {
	Dispatch(ctx context.Context, name, rawArgs string, caller tools.Caller) tools.Envelope
	Definitions() []llm.ToolDefinition
}

// Metrics receives turn-level observations.
type Metrics interface {
	TurnStarted() func(outcome string)
	GuardrailBlocked()
}

// Turn is one inbound user message.
type Turn struct {
	RequesterID string
	Text        string
	ThreadID    string
	ChannelID   string
}

// Result is the outcome of a turn.
type Result struct {
	Text       string        `json:"text"`
	TraceID    string        `json:"traceId"`
	Outcome    Outcome       `json:"outcome"`
	Iterations int           `json:"iterations"`
	Dispatches int           `json:"dispatches"`
	Duration   time.Duration `json:"duration"`
}

// Assistant drives the model and the tool catalog for each turn. It holds
// no per-turn state and is safe for concurrent use.
type Assistant struct {
	cfg     Config
	client  llm.Client
	tools   Dispatcher
	sink    trace.Sink
	guard   *guardrail.Guard
	metrics Metrics
	tracer  oteltrace.Tracer
	hooks   *hooks.Manager
	now     func() time.Time
	log     *logging.Logger
}

// Option configures an Assistant.
type Option func(*Assistant)

// WithTraceSink records audit events to s. The caller owns s.
func WithTraceSink(s trace.Sink) Option {
	return func(a *Assistant) {
		if s != nil {
			a.sink = s
		}
	}
}

// WithGuard replaces the default guardrail.
func WithGuard(g *guardrail.Guard) Option {
	return func(a *Assistant) {
		if g != nil {
			a.guard = g
		}
	}
}

// WithMetrics reports turn metrics to m.
func WithMetrics(m Metrics) Option {
	return func(a *Assistant) { a.metrics = m }
}

// WithTracer emits spans on t.
func WithTracer(t oteltrace.Tracer) Option {
	return func(a *Assistant) {
		if t != nil {
			a.tracer = t
		}
	}
}

// WithClock overrides the clock used for the prompt and trace timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Assistant) { a.now = now }
}

// WithHooks emits turn_completed on m.
func WithHooks(m *hooks.Manager) Option {
	return func(a *Assistant) { a.hooks = m }
}

// WithLogger sets the parent logger.
func WithLogger(l *logging.Logger) Option {
	return func(a *Assistant) {
		if l != nil {
			a.log = l.Sub("agent")
		}
	}
}

// New creates an Assistant.
func New(cfg Config, client llm.Client, registry Dispatcher, opts ...Option) *Assistant {
	a := &Assistant{
		cfg:    cfg.withDefaults(),
		client: client,
		tools:  registry,
		sink:   trace.Discard,
		guard:  guardrail.New(),
		tracer: noop.NewTracerProvider().Tracer(""),
		now:    time.Now,
		log:    logging.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ProcessMessage runs a turn and returns only the reply text.
func (a *Assistant) ProcessMessage(ctx context.Context, requesterID, text, threadID string) string {
	return a.Process(ctx, Turn{RequesterID: requesterID, Text: text, ThreadID: threadID}).Text
}

// turn carries the state of one Process call.
type turn struct {
	Turn
	traceID    string
	started    time.Time
	messages   []llm.Message
	pending    []llm.ToolCall
	iterations int
	dispatches int
	log        *logging.Logger
}

// Process runs the loop for one message. It never returns an error; every
// failure maps to one of the fixed replies.
func (a *Assistant) Process(ctx context.Context, in Turn) Result {
	t := &turn{
		Turn:    in,
		traceID: uuid.NewString(),
		started: time.Now(),
	}
	t.log = a.log.With("traceId", t.traceID)

	var done func(string)
	if a.metrics != nil {
		done = a.metrics.TurnStarted()
	}

	ctx, span := a.tracer.Start(ctx, telemetry.SpanTurn, oteltrace.WithAttributes(
		attribute.String("roombot.trace_id", t.traceID),
		attribute.String("roombot.requester", in.RequesterID),
		attribute.String("roombot.thread", in.ThreadID),
	))
	defer span.End()

	res := a.run(ctx, t)
	res.TraceID = t.traceID
	res.Iterations = t.iterations
	res.Dispatches = t.dispatches
	res.Duration = time.Since(t.started)

	span.SetAttributes(
		attribute.String("roombot.outcome", string(res.Outcome)),
		attribute.Int("roombot.iterations", res.Iterations),
	)
	if res.Outcome == OutcomeTransportFailure {
		span.SetStatus(codes.Error, string(res.Outcome))
	}
	if done != nil {
		done(string(res.Outcome))
	}

	t.log.Info().
		Str("requester", in.RequesterID).
		Str("outcome", string(res.Outcome)).
		Int("iterations", res.Iterations).
		Int("dispatches", res.Dispatches).
		Dur("duration", res.Duration).
		Msg("turn completed")

	a.hooks.EmitAsync(ctx, hooks.EventTurnCompleted, map[string]any{
		"traceId":     t.traceID,
		"requesterId": in.RequesterID,
		"threadId":    in.ThreadID,
		"channelId":   in.ChannelID,
		"outcome":     string(res.Outcome),
		"iterations":  res.Iterations,
	})
	return res
}

func (a *Assistant) run(ctx context.Context, t *turn) Result {
	a.record(ctx, t, trace.KindUserInput, map[string]any{
		"userSlackId": t.RequesterID,
		"userMessage": t.Text,
		"threadId":    t.ThreadID,
	})

	if v := a.guard.Screen(t.Text); v.Blocked {
		a.record(ctx, t, trace.KindSecurityBlock, map[string]any{
			"reason":  v.Reason,
			"pattern": v.Pattern,
		})
		if a.metrics != nil {
			a.metrics.GuardrailBlocked()
		}
		t.log.Warn().Str("pattern", v.Pattern).Msg("input blocked by guardrail")
		return Result{Text: guardrail.RefusalMessage, Outcome: OutcomeBlocked}
	}

	system := BuildSystemPrompt(PromptConfig{
		AgentName:    a.cfg.Name,
		Organization: a.cfg.Organization,
		Now:          a.now(),
		Location:     a.cfg.Location,
		ChannelID:    t.ChannelID,
		ExtraPrompt:  a.cfg.ExtraPrompt,
	})
	t.messages = []llm.Message{{Role: llm.RoleUser, Content: t.Text}}
	defs := a.tools.Definitions()

	state := StateAwaitingModel
	var reply string
	for {
		switch state {
		case StateAwaitingModel:
			if t.iterations >= a.cfg.MaxIterations {
				state = StateExhausted
				continue
			}
			t.iterations++

			resp, err := a.complete(ctx, t, llm.CompletionRequest{
				System:      system,
				Messages:    t.messages,
				Tools:       defs,
				ToolChoice:  llm.ToolChoiceAuto,
				MaxTokens:   a.cfg.MaxTokens,
				Temperature: a.cfg.Temperature,
			})
			if err != nil {
				return a.transportFailure(ctx, t, "llm", err)
			}

			if len(resp.ToolCalls) == 0 {
				reply = strings.TrimSpace(resp.Content)
				if reply == "" {
					reply = FallbackReply
				}
				state = StateDone
				continue
			}

			t.messages = append(t.messages, llm.Message{
				Role:      llm.RoleAssistant,
				Content:   resp.Content,
				ToolCalls: resp.ToolCalls,
			})
			t.pending = resp.ToolCalls
			state = StateDispatchingTools

		case StateDispatchingTools:
			for _, call := range t.pending {
				env := a.dispatch(ctx, t, call)
				if env.Fault != nil {
					return a.transportFailure(ctx, t, call.Name, env.Fault)
				}
				t.messages = append(t.messages, llm.Message{
					Role:       llm.RoleTool,
					Content:    env.JSON(),
					ToolCallID: call.ID,
				})
			}
			t.pending = nil
			state = StateAwaitingModel

		case StateDone:
			return Result{Text: reply, Outcome: OutcomeAnswered}

		case StateExhausted:
			a.record(ctx, t, trace.KindBudgetExhausted, map[string]any{
				"iterations": t.iterations,
				"limit":      a.cfg.MaxIterations,
			})
			t.log.Warn().Int("iterations", t.iterations).Msg("iteration budget exhausted")
			return Result{Text: ExhaustedReply, Outcome: OutcomeExhausted}
		}
	}
}

func (a *Assistant) complete(ctx context.Context, t *turn, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.LLMTimeout)
	defer cancel()

	ctx, span := a.tracer.Start(ctx, telemetry.SpanComplete, oteltrace.WithAttributes(
		attribute.String("llm.client", a.client.Name()),
		attribute.Int("roombot.iteration", t.iterations),
	))
	defer span.End()

	resp, err := a.client.Complete(ctx, req)
	if err == nil && resp == nil {
		err = errors.New("empty completion")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("llm.tool_calls", len(resp.ToolCalls)),
		attribute.Int("llm.input_tokens", resp.Usage.InputTokens),
		attribute.Int("llm.output_tokens", resp.Usage.OutputTokens),
	)
	t.log.Debug().
		Int("iteration", t.iterations).
		Int("toolCalls", len(resp.ToolCalls)).
		Str("model", resp.Model).
		Msg("model responded")
	return resp, nil
}

func (a *Assistant) dispatch(ctx context.Context, t *turn, call llm.ToolCall) tools.Envelope {
	a.record(ctx, t, trace.KindToolExecution, map[string]any{
		"toolName":   call.Name,
		"toolCallId": call.ID,
		"args":       rawArgs(call.Input),
	})

	ctx, cancel := context.WithTimeout(ctx, a.cfg.ToolTimeout)
	defer cancel()

	ctx, span := a.tracer.Start(ctx, telemetry.SpanDispatch, oteltrace.WithAttributes(
		attribute.String("tool.name", call.Name),
	))
	defer span.End()

	env := a.tools.Dispatch(ctx, call.Name, call.Input, tools.Caller{
		RequesterID: t.RequesterID,
		ThreadID:    t.ThreadID,
	})
	t.dispatches++

	if env.Fault != nil {
		span.RecordError(env.Fault)
		span.SetStatus(codes.Error, env.Fault.Error())
		a.record(ctx, t, trace.KindToolError, map[string]any{
			"toolName": call.Name,
			"error":    env.Fault.Error(),
		})
		return env
	}
	if env.Error != "" {
		span.SetAttributes(attribute.String("tool.error", env.Error))
	}
	a.record(ctx, t, trace.KindToolResult, map[string]any{
		"toolName": call.Name,
		"result":   env,
	})
	return env
}

func (a *Assistant) transportFailure(ctx context.Context, t *turn, source string, err error) Result {
	a.record(ctx, t, trace.KindTransportError, map[string]any{
		"source": source,
		"error":  err.Error(),
	})
	t.log.Error().Err(err).Str("source", source).Msg("turn failed")
	return Result{Text: TransportFailureReply, Outcome: OutcomeTransportFailure}
}

// record writes a trace event. Sink failures are only logged.
func (a *Assistant) record(ctx context.Context, t *turn, kind trace.Kind, data any) {
	err := a.sink.Record(context.WithoutCancel(ctx), trace.Event{
		Timestamp: a.now(),
		TraceID:   t.traceID,
		Kind:      kind,
		Data:      data,
	})
	if err != nil {
		t.log.Warn().Err(err).Str("event", string(kind)).Msg("trace sink write failed")
	}
}

// rawArgs keeps well-formed JSON arguments structured in the trace.
func rawArgs(input string) any {
	if json.Valid([]byte(input)) {
		return json.RawMessage(input)
	}
	return input
}
