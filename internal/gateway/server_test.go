package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/roombot/internal/agent"
	"github.com/soyeahso/roombot/internal/booking"
	"github.com/soyeahso/roombot/internal/config"
	"github.com/soyeahso/roombot/internal/hooks"
	"github.com/soyeahso/roombot/internal/logging"
	"github.com/soyeahso/roombot/internal/metrics"
	"github.com/soyeahso/roombot/internal/store"
)

const testToken = "test-token-123"

func testLog() *logging.Logger {
	return logging.New(nil, "silent")
}

// fakeAssistant echoes the turn it was given.
type fakeAssistant struct {
	mu    sync.Mutex
	turns []agent.Turn
}

func (f *fakeAssistant) Process(_ context.Context, in agent.Turn) agent.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns = append(f.turns, in)
	return agent.Result{
		Text:       "echo: " + in.Text,
		TraceID:    "trace-1",
		Outcome:    agent.OutcomeAnswered,
		Iterations: 1,
		Duration:   1500 * time.Millisecond,
	}
}

func (f *fakeAssistant) recorded() []agent.Turn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]agent.Turn(nil), f.turns...)
}

type harness struct {
	srv    *Server
	ts     *httptest.Server
	db     *store.DB
	engine *booking.Engine
	hooks  *hooks.Manager
	asst   *fakeAssistant
}

func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.Gateway.Auth.Mode = "token"
	cfg.Gateway.Auth.Token = testToken
	cfg.Booking.Timezone = "UTC"
	return cfg
}

// newHarness serves a gateway backed by a seeded in-memory store.
func newHarness(t *testing.T, opts ...ServerOption) *harness {
	t.Helper()
	log := testLog()

	db, err := store.Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = booking.Seed(context.Background(), db)
	require.NoError(t, err)

	h := hooks.NewManager(log)
	engine := booking.NewEngine(db, log, booking.WithHooks(h))
	asst := &fakeAssistant{}

	base := []ServerOption{
		WithEngine(engine),
		WithHooks(h),
		WithAssistant(asst),
		WithStore(db),
	}
	srv := New(testConfig(), log, append(base, opts...)...)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(h.Wait)
	return &harness{srv: srv, ts: ts, db: db, engine: engine, hooks: h, asst: asst}
}

func (h *harness) wsURL() string {
	return "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/ws"
}

// dial opens a socket and reads the challenge.
func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(h.wsURL(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	var challenge Frame
	require.NoError(t, readFrame(conn, &challenge))
	assert.Equal(t, FrameTypeEvent, challenge.Type)
	assert.Equal(t, EventConnectChallenge, challenge.Event)
	return conn
}

func readFrame(conn *websocket.Conn, f *Frame) error {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn.ReadJSON(f)
}

func connectFrame(t *testing.T, auth *ConnectAuth) Frame {
	t.Helper()
	f, err := NewRequest("connect-1", "connect", ConnectParams{
		MinProtocol: 1,
		MaxProtocol: 1,
		Client:      ClientInfo{ID: "ops-console", Version: "1.0.0", Platform: "linux"},
		Auth:        auth,
	})
	require.NoError(t, err)
	return f
}

// connect completes the handshake and returns the hello payload.
func (h *harness) connect(t *testing.T) (*websocket.Conn, HelloOK) {
	t.Helper()
	conn := h.dial(t)
	require.NoError(t, conn.WriteJSON(connectFrame(t, &ConnectAuth{Token: testToken})))

	var resp Frame
	require.NoError(t, readFrame(conn, &resp))
	require.Equal(t, FrameTypeResponse, resp.Type)
	require.NotNil(t, resp.OK)
	require.True(t, *resp.OK, "handshake rejected: %+v", resp.Error)

	var hello HelloOK
	require.NoError(t, json.Unmarshal(resp.Payload, &hello))
	return conn, hello
}

// call sends a request and waits for its response, skipping events.
func call(t *testing.T, conn *websocket.Conn, id, method string, params any) Frame {
	t.Helper()
	req, err := NewRequest(id, method, params)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))
	for {
		var f Frame
		require.NoError(t, readFrame(conn, &f))
		if f.Type == FrameTypeResponse && f.ID == id {
			return f
		}
	}
}

func decode[T any](t *testing.T, f Frame) T {
	t.Helper()
	require.NotNil(t, f.OK)
	require.True(t, *f.OK, "unexpected error: %+v", f.Error)
	var v T
	require.NoError(t, json.Unmarshal(f.Payload, &v))
	return v
}

func requireError(t *testing.T, f Frame, code string) *ErrorShape {
	t.Helper()
	require.NotNil(t, f.OK)
	require.False(t, *f.OK)
	require.NotNil(t, f.Error)
	assert.Equal(t, code, f.Error.Code)
	return f.Error
}

func TestHealthEndpoint(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, HealthResponse{Status: "ok"}, health)
}

func TestNotFoundEndpoint(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.ts.URL + "/nonexistent")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, WithMetrics(metrics.New()))

	resp, err := http.Get(h.ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "roombot_agent_active_turns")
}

func TestMetricsEndpoint_DisabledWithoutCollector(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandshake_Success(t *testing.T) {
	h := newHarness(t)
	_, hello := h.connect(t)

	assert.Equal(t, ProtocolVersion, hello.Protocol)
	assert.NotEmpty(t, hello.Server.ConnID)
	assert.Equal(t, []string{
		"channels.status",
		"chat.send",
		"health",
		"reservations.cancel",
		"reservations.list",
		"rooms.available",
		"rooms.list",
	}, hello.Features.Methods)
	assert.Contains(t, hello.Features.Events, EventReservationsChanged)
	assert.Equal(t, maxPayload, hello.Policy.MaxPayload)

	assert.Eventually(t, func() bool { return h.srv.clients.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestHandshake_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		frame func(t *testing.T) Frame
		code  string
	}{
		{"wrong token", func(t *testing.T) Frame { return connectFrame(t, &ConnectAuth{Token: "nope"}) }, CodeUnauthorized},
		{"no credentials", func(t *testing.T) Frame { return connectFrame(t, nil) }, CodeUnauthorized},
		{"not connect", func(t *testing.T) Frame {
			f, err := NewRequest("r1", "health", nil)
			require.NoError(t, err)
			return f
		}, CodeProtocolError},
		{"protocol mismatch", func(t *testing.T) Frame {
			f, err := NewRequest("r1", "connect", ConnectParams{
				MinProtocol: 2, MaxProtocol: 3, Auth: &ConnectAuth{Token: testToken},
			})
			require.NoError(t, err)
			return f
		}, CodeProtocolError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			conn := h.dial(t)
			require.NoError(t, conn.WriteJSON(tt.frame(t)))

			var resp Frame
			require.NoError(t, readFrame(conn, &resp))
			requireError(t, resp, tt.code)

			// The server closes the socket after a rejected handshake.
			var next Frame
			assert.Error(t, readFrame(conn, &next))
			assert.Eventually(t, func() bool { return h.srv.authLimiter.tracked() == 1 }, 2*time.Second, 10*time.Millisecond)
		})
	}
}

func TestHandshake_FailedAuthLockout(t *testing.T) {
	h := newHarness(t)
	for range authMaxFails {
		conn := h.dial(t)
		require.NoError(t, conn.WriteJSON(connectFrame(t, &ConnectAuth{Token: "bad"})))
		var resp Frame
		require.NoError(t, readFrame(conn, &resp))
		requireError(t, resp, CodeUnauthorized)
	}
	require.Eventually(t, func() bool { return !h.srv.authLimiter.allow("127.0.0.1:1") }, 2*time.Second, 10*time.Millisecond)

	_, resp, err := websocket.DefaultDialer.Dial(h.wsURL(), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestWebSocket_RejectsForeignOrigin(t *testing.T) {
	h := newHarness(t)
	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(h.wsURL(), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRPC_UnknownMethod(t *testing.T) {
	h := newHarness(t)
	conn, _ := h.connect(t)

	resp := call(t, conn, "r1", "config.set", map[string]any{"key": "gateway.port"})
	requireError(t, resp, CodeMethodNotFound)
}

func TestRPC_HandlerPanicIsReported(t *testing.T) {
	h := newHarness(t)
	h.srv.Handle("boom", func(*RequestContext) { panic("kaboom") })
	conn, _ := h.connect(t)

	resp := call(t, conn, "r1", "boom", nil)
	requireError(t, resp, CodeInternal)

	// The connection survives.
	health := decode[HealthResponse](t, call(t, conn, "r2", "health", nil))
	assert.Equal(t, "ok", health.Status)
}

func TestReservationChangesAreBroadcast(t *testing.T) {
	h := newHarness(t)
	conn, _ := h.connect(t)
	require.Eventually(t, func() bool { return h.srv.clients.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	start := time.Date(2030, 5, 6, 10, 0, 0, 0, time.UTC)
	created, err := h.engine.CreateReservation(context.Background(), booking.NewReservation{
		RoomID: 1, RequesterID: "U1", Start: start, End: start.Add(time.Hour), Topic: "Planning",
	})
	require.NoError(t, err)

	var ev Frame
	require.NoError(t, readFrame(conn, &ev))
	assert.Equal(t, FrameTypeEvent, ev.Type)
	assert.Equal(t, EventReservationsChanged, ev.Event)
	assert.Positive(t, ev.Seq)

	var payload struct {
		Action      string `json:"action"`
		RoomName    string `json:"roomName"`
		Reservation struct {
			ID int64 `json:"id"`
		} `json:"reservation"`
	}
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	assert.Equal(t, "created", payload.Action)
	assert.Equal(t, "Mate Center 304", payload.RoomName)
	assert.Equal(t, created.ID, payload.Reservation.ID)
}

func TestStart_ServesAndShutsDown(t *testing.T) {
	cfg := testConfig()
	cfg.Gateway.Port = 0

	var (
		mu     sync.Mutex
		events []string
	)
	h := hooks.NewManager(testLog())
	for _, ev := range []string{hooks.EventGatewayStart, hooks.EventGatewayStop} {
		h.On(ev, "test", func(_ context.Context, p hooks.Payload) error {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, p.Event)
			return nil
		})
	}
	srv := New(cfg, testLog(), WithHooks(h))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	require.Eventually(t, func() bool { return srv.Addr() != "" }, 5*time.Second, 10*time.Millisecond)
	resp, err := http.Get("http://" + srv.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{hooks.EventGatewayStart, hooks.EventGatewayStop}, events)
}

func TestResolveBindAddr(t *testing.T) {
	tests := []struct {
		name string
		bind string
		port int
		host string
		want string
	}{
		{"loopback", "loopback", 18790, "", "127.0.0.1:18790"},
		{"lan", "lan", 9999, "", "0.0.0.0:9999"},
		{"auto", "auto", 8080, "", "0.0.0.0:8080"},
		{"custom default host", "custom", 3000, "", "0.0.0.0:3000"},
		{"custom host", "custom", 3000, "10.0.0.1", "10.0.0.1:3000"},
		{"custom ipv6", "custom", 3000, "::1", "[::1]:3000"},
		{"unknown falls back", "whatever", 5000, "", "127.0.0.1:5000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.GatewayConfig{Bind: tt.bind, Port: tt.port, CustomBindHost: tt.host}
			assert.Equal(t, tt.want, resolveBindAddr(cfg))
		})
	}
}
