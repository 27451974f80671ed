// Package irc implements the IRC messaging channel using the girc library.
package irc

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lrstanley/girc"
	"github.com/soyeahso/roombot/internal/config"
	"github.com/soyeahso/roombot/internal/domain"
	"github.com/soyeahso/roombot/internal/logging"
	"github.com/soyeahso/roombot/internal/version"
)

// maxLineLen keeps a PRIVMSG under the 512 byte protocol limit once the
// prefix and target are added.
const maxLineLen = 400

// Channel implements domain.Channel for IRC.
type Channel struct {
	cfg    config.IRCConfig
	client *girc.Client
	log    *logging.Logger

	mu      sync.RWMutex
	handler func(msg domain.InboundMessage)
	running bool
	lastErr string
}

// New creates an IRC channel from configuration.
func New(cfg config.IRCConfig, log *logging.Logger) *Channel {
	return &Channel{
		cfg: cfg,
		log: log.Sub("irc"),
	}
}

func (c *Channel) ID() string { return "irc" }

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
		ChannelID: "irc",
		Connected: c.client != nil && c.client.IsConnected(),
		Running:   c.running,
		LastError: c.lastErr,
	}
}

func (c *Channel) port() int {
	if c.cfg.Port != 0 {
		return c.cfg.Port
	}
	if c.cfg.UseTLS {
		return 6697
	}
	return 6667
}

func (c *Channel) gircConfig() girc.Config {
	gc := girc.Config{
		Server:  c.cfg.Server,
		Port:    c.port(),
		Nick:    c.cfg.Nick,
		User:    c.cfg.Nick,
		Name:    "RoomBot meeting room assistant",
		SSL:     c.cfg.UseTLS,
		Version: version.UserAgent(),
	}
	if c.cfg.UseTLS {
		gc.TLSConfig = &tls.Config{ServerName: c.cfg.Server}
	}
	if c.cfg.SASL && c.cfg.Password != "" {
		gc.SASL = &girc.SASLPlain{User: c.cfg.Nick, Pass: c.cfg.Password}
	} else if c.cfg.Password != "" {
		gc.ServerPass = c.cfg.Password
	}
	return gc
}

// Start connects to the IRC server and blocks until the connection ends or
// ctx is cancelled.
func (c *Channel) Start(ctx context.Context) error {
	client := girc.New(c.gircConfig())
	client.Handlers.Add(girc.CONNECTED, c.onConnected)
	client.Handlers.Add(girc.PRIVMSG, c.onPrivmsg)
	client.Handlers.Add(girc.DISCONNECTED, c.onDisconnected)

	c.mu.Lock()
	c.client = client
	c.running = true
	c.lastErr = ""
	c.mu.Unlock()

	c.log.Info().
		Str("server", c.cfg.Server).
		Int("port", c.port()).
		Str("nick", c.cfg.Nick).
		Strs("channels", c.cfg.Channels).
		Bool("tls", c.cfg.UseTLS).
		Msg("connecting to IRC")

	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Connect()
	}()

	select {
	case err := <-errCh:
		c.mu.Lock()
		c.running = false
		if err != nil {
			c.lastErr = err.Error()
		}
		c.mu.Unlock()
		if err != nil {
			return fmt.Errorf("irc connect: %w", err)
		}
		return nil
	case <-ctx.Done():
		client.Close()
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return ctx.Err()
	}
}

// Stop gracefully disconnects from the IRC server.
func (c *Channel) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil && c.client.IsConnected() {
		c.log.Info().Msg("disconnecting from IRC")
		c.client.Quit("RoomBot shutting down")
	}
	c.running = false
	return nil
}

// Send delivers a reply to a channel or nick, falling back to the thread
// when no explicit target is set.
func (c *Channel) Send(ctx context.Context, msg domain.OutboundMessage) error {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()
	if client == nil || !client.IsConnected() {
		return fmt.Errorf("irc: not connected")
	}

	target := msg.To
	if target == "" {
		target = msg.ThreadID
	}
	if target == "" {
		return fmt.Errorf("irc: no target specified")
	}

	lines := splitMessage(msg.Body, maxLineLen)
	for _, line := range lines {
		client.Cmd.Message(target, line)
	}

	c.log.Debug().
		Str("to", target).
		Int("lines", len(lines)).
		Msg("sent IRC message")
	return nil
}

func (c *Channel) onConnected(client *girc.Client, _ girc.Event) {
	c.log.Info().Str("nick", client.GetNick()).Msg("connected to IRC")
	for _, ch := range c.cfg.Channels {
		c.log.Info().Str("channel", ch).Msg("joining channel")
		client.Cmd.Join(ch)
	}
}

func (c *Channel) onPrivmsg(client *girc.Client, e girc.Event) {
	if e.Source == nil || len(e.Params) == 0 {
		return
	}
	if strings.EqualFold(e.Source.Name, client.GetNick()) {
		return
	}

	body := e.Last()
	if e.IsAction() {
		body = e.StripAction()
	}
	msg, ok := c.inbound(client.GetNick(), e.Source.Name, e.Params[0], body, e.IsFromChannel())
	if !ok {
		return
	}
	c.deliver(msg)
}

// inbound turns a PRIVMSG into an InboundMessage. In a channel the bot only
// answers when addressed by nick, and the channel itself is the thread.
// Direct messages are always answered and threaded per sender.
func (c *Channel) inbound(nick, from, target, body string, fromChannel bool) (domain.InboundMessage, bool) {
	msg := domain.InboundMessage{
		ID:        uuid.NewString(),
		ChannelID: "irc",
		From:      from,
		FromName:  from,
		Timestamp: time.Now(),
	}

	if !fromChannel {
		body = strings.TrimSpace(body)
		if body == "" {
			return msg, false
		}
		msg.ChatID = from
		msg.ChatType = domain.ChatTypeDM
		msg.ThreadID = from
		msg.Body = body
		return msg, true
	}

	text, ok := stripMention(nick, body)
	if !ok || text == "" {
		return msg, false
	}
	msg.ChatID = target
	msg.ChatType = domain.ChatTypeGroup
	msg.ThreadID = target
	msg.Body = text
	return msg, true
}

func (c *Channel) deliver(msg domain.InboundMessage) {
	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()
	if handler != nil {
		handler(msg)
	}
}

func (c *Channel) onDisconnected(_ *girc.Client, _ girc.Event) {
	c.log.Warn().Msg("disconnected from IRC")
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

// stripMention reports whether body addresses nick ("nick: text",
// "nick, text" or "@nick text") and returns the remaining text.
func stripMention(nick, body string) (string, bool) {
	body = strings.TrimSpace(body)
	rest := strings.TrimPrefix(body, "@")
	if len(rest) < len(nick) || !strings.EqualFold(rest[:len(nick)], nick) {
		return "", false
	}
	rest = rest[len(nick):]
	if rest != "" {
		switch rest[0] {
		case ':', ',', ' ':
		default:
			// "roombotx" is a different nick.
			return "", false
		}
	}
	return strings.TrimSpace(strings.TrimLeft(rest, ":, ")), true
}

// splitMessage breaks a reply into PRIVMSG-sized lines. IRC has no embedded
// newlines, so each input line becomes at least one output line; blank
// lines are dropped.
func splitMessage(text string, maxLen int) []string {
	var chunks []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		for len(line) > maxLen {
			cut := strings.LastIndexByte(line[:maxLen], ' ')
			if cut <= 0 {
				cut = maxLen
			}
			chunks = append(chunks, line[:cut])
			line = strings.TrimLeft(line[cut:], " ")
		}
		if line != "" {
			chunks = append(chunks, line)
		}
	}
	if len(chunks) == 0 {
		return []string{text}
	}
	return chunks
}
