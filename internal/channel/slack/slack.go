// Package slack implements the Slack channel over Socket Mode.
//
// The bot opens an outbound WebSocket (apps.connections.open), acknowledges
// every envelope, and turns app_mention and message events into inbound
// messages. Replies are posted with chat.postMessage into the thread of the
// triggering message.
package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/soyeahso/roombot/internal/config"
	"github.com/soyeahso/roombot/internal/domain"
	"github.com/soyeahso/roombot/internal/logging"
)

const (
	minBackoff   = time.Second
	maxBackoff   = 30 * time.Second
	writeTimeout = 10 * time.Second
)

var mentionRe = regexp.MustCompile(`<@[A-Z0-9]+(\|[^>]*)?>`)

// Channel implements domain.Channel for Slack.
type Channel struct {
	cfg    config.SlackConfig
	http   *http.Client
	dialer *websocket.Dialer
	log    *logging.Logger

	mu        sync.RWMutex
	handler   func(msg domain.InboundMessage)
	running   bool
	connected bool
	lastErr   string
	botUserID string

	writeMu sync.Mutex
	conn    *websocket.Conn

	inflight sync.WaitGroup
}

// Option configures a Channel.
type Option func(*Channel)

// WithHTTPClient overrides the Web API client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Channel) { c.http = hc }
}

// WithDialer overrides the Socket Mode dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Channel) { c.dialer = d }
}

// New creates a Slack channel from configuration.
func New(cfg config.SlackConfig, log *logging.Logger, opts ...Option) *Channel {
	c := &Channel{
		cfg:    cfg,
		http:   &http.Client{Timeout: 15 * time.Second},
		dialer: websocket.DefaultDialer,
		log:    log.Sub("slack"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Channel) ID() string { return "slack" }

func (c *Channel) baseURL() string {
	if c.cfg.APIBaseURL != "" {
		return c.cfg.APIBaseURL
	}
	return DefaultAPIBaseURL
}

func (c *Channel) OnMessage(handler func(msg domain.InboundMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// Status returns the current runtime status.
func (c *Channel) Status() domain.ChannelStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.ChannelStatus{
		ChannelID: "slack",
		Connected: c.connected,
		Running:   c.running,
		LastError: c.lastErr,
	}
}

// Start connects to Socket Mode and keeps reconnecting until ctx is done.
func (c *Channel) Start(ctx context.Context) error {
	if c.cfg.BotToken == "" || c.cfg.AppToken == "" {
		return errors.New("slack: botToken and appToken are required")
	}

	botID, err := c.authTest(ctx)
	if err != nil {
		c.setErr(err)
		return fmt.Errorf("slack auth: %w", err)
	}
	c.mu.Lock()
	c.botUserID = botID
	c.running = true
	c.mu.Unlock()
	c.log.Info().Str("botUser", botID).Msg("slack authenticated")

	defer func() {
		c.mu.Lock()
		c.running = false
		c.connected = false
		c.mu.Unlock()
	}()

	backoff := minBackoff
	for {
		started := time.Now()
		err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			c.setErr(err)
			c.log.Warn().Err(err).Dur("retryIn", backoff).Msg("slack socket closed")
		}
		if time.Since(started) > maxBackoff {
			backoff = minBackoff
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// session runs one WebSocket connection until it drops, Slack asks for a
// reconnect, or ctx is done.
func (c *Channel) session(ctx context.Context) error {
	url, err := c.openConnection(ctx)
	if err != nil {
		return err
	}
	conn, _, err := c.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dialing socket: %w", err)
	}

	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()
	defer func() {
		c.writeMu.Lock()
		c.conn = nil
		c.writeMu.Unlock()
		conn.Close()
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			return fmt.Errorf("reading envelope: %w", err)
		}
		if env.EnvelopeID != "" {
			if err := c.ack(conn, env.EnvelopeID); err != nil {
				return err
			}
		}

		switch env.Type {
		case "hello":
			c.mu.Lock()
			c.connected = true
			c.lastErr = ""
			c.mu.Unlock()
			c.log.Info().Msg("slack socket connected")
		case "disconnect":
			c.log.Info().Str("reason", env.Reason).Msg("slack requested reconnect")
			return nil
		case "events_api":
			c.handleEvents(env.Payload)
		default:
			c.log.Debug().Str("type", env.Type).Msg("ignoring envelope")
		}
	}
}

func (c *Channel) ack(conn *websocket.Conn, envelopeID string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(ackFrame{EnvelopeID: envelopeID}); err != nil {
		return fmt.Errorf("acknowledging envelope: %w", err)
	}
	return nil
}

func (c *Channel) handleEvents(raw json.RawMessage) {
	var p eventsPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.log.Warn().Err(err).Msg("malformed events_api payload")
		return
	}

	c.mu.RLock()
	botID := c.botUserID
	handler := c.handler
	c.mu.RUnlock()

	msg, ok := inbound(p.Event, botID)
	if !ok || handler == nil {
		return
	}

	c.log.Debug().
		Str("type", p.Event.Type).
		Str("user", msg.From).
		Str("channel", msg.ChatID).
		Msg("slack message received")

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		handler(msg)
	}()
}

// Stop closes the socket and waits for in-flight handlers.
func (c *Channel) Stop(ctx context.Context) error {
	c.writeMu.Lock()
	if c.conn != nil {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutting down"),
			time.Now().Add(time.Second))
		c.conn.Close()
	}
	c.writeMu.Unlock()

	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send posts msg.Body to msg.To, threaded under msg.ThreadID.
func (c *Channel) Send(ctx context.Context, msg domain.OutboundMessage) error {
	if msg.To == "" {
		return errors.New("slack: no channel specified")
	}
	if err := c.postMessage(ctx, msg.To, msg.Body, msg.ThreadID); err != nil {
		return err
	}
	c.log.Debug().Str("to", msg.To).Str("thread", msg.ThreadID).Msg("sent slack message")
	return nil
}

func (c *Channel) setErr(err error) {
	c.mu.Lock()
	c.lastErr = err.Error()
	c.mu.Unlock()
}

// inbound converts a Slack event into an InboundMessage. Bot messages and
// message subtypes (edits, joins, ...) are dropped. A plain message event
// that mentions the bot is dropped too since Slack also delivers it as an
// app_mention.
func inbound(ev event, botUserID string) (domain.InboundMessage, bool) {
	var msg domain.InboundMessage
	if ev.User == "" || ev.BotID != "" || ev.Subtype != "" || ev.User == botUserID {
		return msg, false
	}

	switch ev.Type {
	case "app_mention":
	case "message":
		if botUserID != "" && strings.Contains(ev.Text, "<@"+botUserID) {
			return msg, false
		}
	default:
		return msg, false
	}

	text := strings.TrimSpace(mentionRe.ReplaceAllStringFunc(ev.Text, func(m string) string {
		if botUserID != "" && strings.HasPrefix(m, "<@"+botUserID) {
			return ""
		}
		return m
	}))
	if text == "" {
		return msg, false
	}

	thread := ev.ThreadTS
	if thread == "" {
		thread = ev.TS
	}
	chatType := domain.ChatTypeGroup
	if ev.ChannelType == "im" {
		chatType = domain.ChatTypeDM
	}

	return domain.InboundMessage{
		ID:        uuid.NewString(),
		ChannelID: "slack",
		From:      ev.User,
		ChatID:    ev.Channel,
		ChatType:  chatType,
		Body:      text,
		Timestamp: parseTS(ev.TS),
		ThreadID:  thread,
	}, true
}

// parseTS reads the seconds part of a Slack "1700000000.000100" timestamp.
func parseTS(ts string) time.Time {
	secs, _, _ := strings.Cut(ts, ".")
	n, err := strconv.ParseInt(secs, 10, 64)
	if err != nil || n <= 0 {
		return time.Now()
	}
	return time.Unix(n, 0)
}
