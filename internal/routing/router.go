// Package routing connects messaging channels to the assistant.
package routing

import (
	"context"
	"fmt"
	"sync"

	"github.com/soyeahso/roombot/internal/agent"
	"github.com/soyeahso/roombot/internal/channel"
	"github.com/soyeahso/roombot/internal/domain"
	"github.com/soyeahso/roombot/internal/hooks"
	"github.com/soyeahso/roombot/internal/logging"
	"github.com/soyeahso/roombot/internal/ratelimit"
)

// ErrorReply is sent when a message could not be processed at all.
const ErrorReply = "Sorry, something went wrong while processing your request."

// Processor runs one turn.
type Processor interface {
	Process(ctx context.Context, in agent.Turn) agent.Result
}

// Metrics receives routing counters.
type Metrics interface {
	MessageReceived(channel string)
	RateLimited(source string)
}

// Router routes inbound messages to the assistant and replies through the
// originating channel.
type Router struct {
	channels  *channel.Registry
	assistant Processor
	limiter   *ratelimit.Limiter
	metrics   Metrics
	hooks     *hooks.Manager
	log       *logging.Logger

	ctx      context.Context
	inflight sync.WaitGroup
}

// Option configures a Router.
type Option func(*Router)

// WithLimiter rate-limits turns per channel and requester.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(r *Router) { r.limiter = l }
}

// WithMetrics records inbound and rate-limited messages.
func WithMetrics(m Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// WithHooks emits message_received for every routed message.
func WithHooks(h *hooks.Manager) Option {
	return func(r *Router) { r.hooks = h }
}

// NewRouter creates a message router.
func NewRouter(channels *channel.Registry, assistant Processor, log *logging.Logger, opts ...Option) *Router {
	r := &Router{
		channels:  channels,
		assistant: assistant,
		log:       log.Sub("routing"),
		ctx:       context.Background(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HandleInbound runs a turn for msg and sends the reply back through the
// originating channel. It blocks until the reply is sent.
func (r *Router) HandleInbound(ctx context.Context, msg domain.InboundMessage) {
	log := r.log.With("channel", msg.ChannelID)
	log.Info().
		Str("from", msg.From).
		Str("chatId", msg.ChatID).
		Str("thread", msg.ThreadID).
		Msg("routing inbound message")

	if r.metrics != nil {
		r.metrics.MessageReceived(msg.ChannelID)
	}
	r.hooks.EmitAsync(ctx, hooks.EventMessageReceived, map[string]any{
		"channelId": msg.ChannelID,
		"from":      msg.From,
		"chatId":    msg.ChatID,
		"threadId":  msg.ThreadID,
	})

	if err := r.limiter.Allow(msg.ChannelID + ":" + msg.From); err != nil {
		if r.metrics != nil {
			r.metrics.RateLimited(msg.ChannelID)
		}
		log.Warn().Str("from", msg.From).Msg("requester rate limited")
		r.reply(ctx, msg, ratelimit.Message)
		return
	}

	if r.assistant == nil {
		log.Warn().Msg("no assistant configured, dropping message")
		return
	}

	res, err := r.process(ctx, msg)
	if err != nil {
		log.Error().Err(err).Str("from", msg.From).Msg("turn failed")
		r.reply(ctx, msg, ErrorReply)
		return
	}

	if r.reply(ctx, msg, res.Text) {
		log.Info().
			Str("to", replyTarget(msg)).
			Str("traceId", res.TraceID).
			Str("outcome", string(res.Outcome)).
			Dur("duration", res.Duration).
			Msg("reply sent")
	}
}

// process runs the turn, converting a panic into an error so one bad
// message cannot take the channel down.
func (r *Router) process(ctx context.Context, msg domain.InboundMessage) (res agent.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	res = r.assistant.Process(ctx, agent.Turn{
		RequesterID: msg.From,
		Text:        msg.Body,
		ThreadID:    msg.ThreadID,
		ChannelID:   msg.ChannelID,
	})
	return res, nil
}

func (r *Router) reply(ctx context.Context, msg domain.InboundMessage, body string) bool {
	out := domain.OutboundMessage{
		ChannelID: msg.ChannelID,
		To:        replyTarget(msg),
		Body:      body,
		ThreadID:  msg.ThreadID,
	}
	if err := r.channels.Send(ctx, out); err != nil {
		r.log.Error().Err(err).
			Str("channel", msg.ChannelID).
			Str("to", out.To).
			Msg("failed to send reply")
		return false
	}
	return true
}

// Wire installs the router on every registered channel. Each message runs
// on its own goroutine under ctx.
func (r *Router) Wire(ctx context.Context) {
	r.ctx = ctx
	r.channels.OnMessage(func(msg domain.InboundMessage) {
		r.inflight.Add(1)
		go func() {
			defer r.inflight.Done()
			r.HandleInbound(r.ctx, msg)
		}()
	})
	for _, id := range r.channels.List() {
		r.log.Debug().Str("channel", id).Msg("wired message handler")
	}
}

// Wait blocks until every message started by Wire has been answered.
func (r *Router) Wait() {
	r.inflight.Wait()
}

// replyTarget is the requester for direct messages and the chat otherwise.
func replyTarget(msg domain.InboundMessage) string {
	if msg.ChatType == domain.ChatTypeDM && msg.ChatID == "" {
		return msg.From
	}
	return msg.ChatID
}
