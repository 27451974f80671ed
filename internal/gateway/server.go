// Package gateway serves the roombot HTTP endpoints and the authenticated
// WebSocket JSON-RPC interface used by operators and local clients.
package gateway

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/soyeahso/roombot/internal/agent"
	"github.com/soyeahso/roombot/internal/booking"
	"github.com/soyeahso/roombot/internal/channel"
	"github.com/soyeahso/roombot/internal/config"
	"github.com/soyeahso/roombot/internal/hooks"
	"github.com/soyeahso/roombot/internal/logging"
	"github.com/soyeahso/roombot/internal/metrics"
	"github.com/soyeahso/roombot/internal/ratelimit"
	"github.com/soyeahso/roombot/internal/version"
)

// ErrClientClosed is returned when writing to a closed client.
var ErrClientClosed = errors.New("client connection closed")

const (
	maxPayload       = 1 << 20
	handshakeTimeout = 10 * time.Second
	tickInterval     = 30 * time.Second
)

// Assistant runs one turn for chat.send.
type Assistant interface {
	Process(ctx context.Context, in agent.Turn) agent.Result
}

// Pinger reports store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the roombot gateway HTTP + WebSocket server.
type Server struct {
	cfg      config.Config
	auth     ResolvedAuth
	log      *logging.Logger
	clients  *ClientRegistry
	handlers map[string]RequestHandler
	eventSeq atomic.Int64

	assistant Assistant
	engine    *booking.Engine
	avail     *booking.Availability
	channels  *channel.Registry
	hooks     *hooks.Manager
	metrics   *metrics.Collector
	limiter   *ratelimit.Limiter
	store     Pinger
	loc       *time.Location

	mu          sync.Mutex
	addr        string
	startedAt   time.Time
	httpServer  *http.Server
	upgrader    websocket.Upgrader
	authLimiter *authLimiter
}

// ServerOption configures the gateway server.
type ServerOption func(*Server)

// WithAssistant enables chat.send.
func WithAssistant(a Assistant) ServerOption {
	return func(s *Server) { s.assistant = a }
}

// WithEngine enables the rooms.* and reservations.* methods.
func WithEngine(e *booking.Engine) ServerOption {
	return func(s *Server) {
		s.engine = e
		s.avail = booking.NewAvailability(e.Store())
	}
}

// WithChannels sets the channel registry for channels.status.
func WithChannels(ch *channel.Registry) ServerOption {
	return func(s *Server) { s.channels = ch }
}

// WithHooks emits gateway lifecycle events and pushes reservation changes
// to connected clients.
func WithHooks(hm *hooks.Manager) ServerOption {
	return func(s *Server) { s.hooks = hm }
}

// WithMetrics serves /metrics and counts rate-limited chat.send calls.
func WithMetrics(m *metrics.Collector) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithLimiter rate-limits chat.send per requester.
func WithLimiter(l *ratelimit.Limiter) ServerOption {
	return func(s *Server) { s.limiter = l }
}

// WithStore reports store health in the health RPC.
func WithStore(p Pinger) ServerOption {
	return func(s *Server) { s.store = p }
}

// WithLocation sets the timezone for date and time params.
func WithLocation(loc *time.Location) ServerOption {
	return func(s *Server) { s.loc = loc }
}

// New creates a gateway server.
func New(cfg config.Config, log *logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:         cfg,
		auth:        ResolveAuth(cfg.Gateway.Auth),
		log:         log.Sub("gateway"),
		clients:     NewClientRegistry(log.Sub("clients")),
		handlers:    make(map[string]RequestHandler),
		authLimiter: newAuthLimiter(),
		startedAt:   time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.Gateway.AllowedOrigins),
		},
	}
	if loc, err := cfg.Location(); err == nil {
		s.loc = loc
	} else {
		s.loc = time.Local
	}

	for _, opt := range opts {
		opt(s)
	}

	s.registerRPCHandlers()
	s.attachHooks()
	return s
}

// checkWebSocketOrigin allows requests without an Origin header (non-browser
// clients) and browser requests from a configured origin.
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || isOriginAllowed(origin, allowed)
	}
}

// Handle registers an RPC method handler.
func (s *Server) Handle(method string, handler RequestHandler) {
	s.handlers[method] = handler
}

// Methods returns the registered RPC method names, sorted.
func (s *Server) Methods() []string {
	methods := make([]string, 0, len(s.handlers))
	for m := range s.handlers {
		methods = append(methods, m)
	}
	slices.Sort(methods)
	return methods
}

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg config.GatewayConfig) string {
	switch cfg.Bind {
	case "lan", "auto":
		return fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	case "custom":
		host := cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
		return net.JoinHostPort(host, fmt.Sprint(cfg.Port))
	default:
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	}
}

// Handler returns the HTTP handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerHTTPRoutes(mux)
	return withMiddleware(mux, s.log, s.cfg.Gateway.AllowedOrigins)
}

// Start listens for HTTP and WebSocket connections. It blocks until ctx is
// canceled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg.Gateway)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	if s.cfg.Gateway.TLS.Enabled {
		cert, err := tls.LoadX509KeyPair(s.cfg.Gateway.TLS.CertPath, s.cfg.Gateway.TLS.KeyPath)
		if err != nil {
			ln.Close()
			return fmt.Errorf("loading TLS certificate: %w", err)
		}
		ln = tls.NewListener(ln, &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		})
		s.log.Info().Msg("TLS enabled")
	} else if s.cfg.Gateway.Bind != "loopback" {
		s.log.Warn().Msg("TLS is not enabled, credentials will be sent in cleartext")
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.httpServer = srv
	s.addr = ln.Addr().String()
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("bind", s.cfg.Gateway.Bind).
		Str("auth", s.auth.Mode).
		Int("methods", len(s.handlers)).
		Msg("gateway server ready")
	s.hooks.Emit(ctx, hooks.EventGatewayStart, map[string]any{"addr": ln.Addr().String()})

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.log.Info().Msg("shutting down gateway server")
		s.hooks.Emit(context.WithoutCancel(ctx), hooks.EventGatewayStop, nil)
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		s.clients.CloseAll()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("gateway shutdown")
		}
	}()

	err = srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		<-stopped
		return nil
	}
	return err
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Server) uptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.startedAt)
}

// attachHooks forwards reservation changes to every connected client.
func (s *Server) attachHooks() {
	if s.hooks == nil {
		return
	}
	forward := func(action string) hooks.Handler {
		return func(_ context.Context, p hooks.Payload) error {
			r, ok := p.Reservation()
			if !ok {
				return nil
			}
			s.clients.Broadcast(EventReservationsChanged, map[string]any{
				"action":      action,
				"reservation": r,
				"roomName":    p.Data["roomName"],
			}, s.eventSeq.Add(1))
			return nil
		}
	}
	s.hooks.On(hooks.EventReservationCreated, "gateway", forward("created"))
	s.hooks.On(hooks.EventReservationCanceled, "gateway", forward("canceled"))
}

// handleWebSocket upgrades HTTP to WebSocket and runs the connection loop.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.authLimiter.allow(r.RemoteAddr) {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("too many failed auth attempts")
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxPayload)

	s.log.Debug().Str("remote", r.RemoteAddr).Msg("new websocket connection")

	client, err := s.handshake(conn)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("handshake failed")
		s.authLimiter.recordFailure(r.RemoteAddr)
		conn.Close()
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	var inflight sync.WaitGroup
	s.clients.Add(client)
	defer func() {
		cancel()
		inflight.Wait()
		s.clients.Remove(client.ConnID)
		client.Close()
	}()

	inflight.Add(1)
	go func() {
		defer inflight.Done()
		s.keepalive(ctx, client)
	}()

	s.readLoop(ctx, client, &inflight)
}

// keepalive pings the client every tick so dead peers fail their next write.
func (s *Server) keepalive(ctx context.Context, client *Client) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := client.Ping(); err != nil {
				s.log.Debug().Err(err).Str("connId", client.ConnID).Msg("ping failed")
				client.Close()
				return
			}
		}
	}
}

// handshake authenticates a new connection: the server sends a challenge,
// the client answers with connect, the server replies with hello-ok.
func (s *Server) handshake(conn *websocket.Conn) (*Client, error) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))

	challenge, err := NewEvent(EventConnectChallenge, map[string]any{
		"nonce": uuid.New().String(),
		"ts":    time.Now().UnixMilli(),
	}, 0)
	if err != nil {
		return nil, fmt.Errorf("creating challenge: %w", err)
	}
	if err := conn.WriteJSON(challenge); err != nil {
		return nil, fmt.Errorf("sending challenge: %w", err)
	}

	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("reading connect: %w", err)
	}

	var frame Frame
	if err := json.Unmarshal(msg, &frame); err != nil {
		sendErrorAndClose(conn, "", CodeProtocolError, "invalid frame")
		return nil, fmt.Errorf("parsing connect frame: %w", err)
	}
	if frame.Type != FrameTypeRequest || frame.Method != "connect" {
		sendErrorAndClose(conn, frame.ID, CodeProtocolError, "expected connect request")
		return nil, fmt.Errorf("expected connect request, got type=%s method=%s", frame.Type, frame.Method)
	}

	var params ConnectParams
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		sendErrorAndClose(conn, frame.ID, CodeInvalidParams, "invalid connect params")
		return nil, fmt.Errorf("parsing connect params: %w", err)
	}
	if params.MaxProtocol != 0 && (params.MinProtocol > ProtocolVersion || params.MaxProtocol < ProtocolVersion) {
		sendErrorAndClose(conn, frame.ID, CodeProtocolError, fmt.Sprintf("unsupported protocol, server speaks %d", ProtocolVersion))
		return nil, fmt.Errorf("protocol mismatch: client %d-%d", params.MinProtocol, params.MaxProtocol)
	}

	authResult := Authorize(s.auth, params.Auth)
	if !authResult.OK {
		sendErrorAndClose(conn, frame.ID, CodeUnauthorized, authResult.Reason)
		return nil, fmt.Errorf("auth failed: %s", authResult.Reason)
	}

	_ = conn.SetReadDeadline(time.Time{})
	client := NewClient(conn, params.Client, authResult, s.log.Sub("ws"))

	hello := HelloOK{
		Protocol: ProtocolVersion,
		Server: ServerInfo{
			Version: version.Version,
			Commit:  version.Commit,
			ConnID:  client.ConnID,
		},
		Features: Features{
			Methods: s.Methods(),
			Events:  []string{EventConnectChallenge, EventReservationsChanged},
		},
		Policy: ServerPolicy{
			MaxPayload:     maxPayload,
			TickIntervalMs: int(tickInterval.Milliseconds()),
		},
	}
	if err := client.Respond(frame.ID, hello); err != nil {
		return nil, fmt.Errorf("sending hello: %w", err)
	}

	s.log.Info().
		Str("connId", client.ConnID).
		Str("clientId", params.Client.ID).
		Str("clientVersion", params.Client.Version).
		Str("authMethod", authResult.Method).
		Msg("client authenticated")

	return client, nil
}

// readLoop reads request frames until the connection fails. Each request
// runs on its own goroutine so a long chat.send does not block others.
func (s *Server) readLoop(ctx context.Context, client *Client, inflight *sync.WaitGroup) {
	for {
		frame, err := client.ReadFrame()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Str("connId", client.ConnID).Msg("client closed connection")
			} else if ctx.Err() == nil {
				s.log.Warn().Err(err).Str("connId", client.ConnID).Msg("read error")
			}
			return
		}

		if frame.Type != FrameTypeRequest {
			s.log.Debug().Str("type", frame.Type).Msg("ignoring non-request frame")
			continue
		}

		inflight.Add(1)
		go func() {
			defer inflight.Done()
			s.dispatch(ctx, client, frame)
		}()
	}
}

// dispatch routes a request frame to its handler.
func (s *Server) dispatch(ctx context.Context, client *Client, frame Frame) {
	rc := &RequestContext{Ctx: ctx, Client: client, Frame: frame, Server: s}

	handler, ok := s.handlers[frame.Method]
	if !ok {
		rc.RespondError(CodeMethodNotFound, "unknown method: "+frame.Method)
		return
	}

	defer func() {
		if p := recover(); p != nil {
			s.log.Error().Interface("panic", p).Str("method", frame.Method).Msg("rpc handler panic")
			rc.RespondError(CodeInternal, "internal error")
		}
	}()
	handler(rc)
}

// sendErrorAndClose sends an error response and a close frame.
func sendErrorAndClose(conn *websocket.Conn, reqID, code, message string) {
	_ = conn.WriteJSON(NewErrorResponse(reqID, ErrorShape{Code: code, Message: message}))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message))
}
