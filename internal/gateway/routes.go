package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/soyeahso/roombot/internal/agent"
	"github.com/soyeahso/roombot/internal/booking"
	"github.com/soyeahso/roombot/internal/domain"
	"github.com/soyeahso/roombot/internal/ratelimit"
	"github.com/soyeahso/roombot/internal/version"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	healthTimeout    = 2 * time.Second
)

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	if s.metrics != nil && s.cfg.MetricsEnabled() {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	mux.HandleFunc("/", handleNotFound)
}

// registerRPCHandlers sets up all JSON-RPC method handlers.
func (s *Server) registerRPCHandlers() {
	s.Handle("health", s.rpcHealth)
	s.Handle("channels.status", s.rpcChannelsStatus)
	s.Handle("chat.send", s.rpcChatSend)
	s.Handle("rooms.list", s.rpcRoomsList)
	s.Handle("rooms.available", s.rpcRoomsAvailable)
	s.Handle("reservations.list", s.rpcReservationsList)
	s.Handle("reservations.cancel", s.rpcReservationsCancel)
}

func (s *Server) rpcHealth(rc *RequestContext) {
	resp := HealthResponse{
		Status:   "ok",
		Version:  version.Version,
		Clients:  s.clients.Count(),
		UptimeMs: s.uptime().Milliseconds(),
	}
	if s.store != nil {
		ctx, cancel := context.WithTimeout(rc.Ctx, healthTimeout)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Store = err.Error()
		} else {
			resp.Store = "ok"
		}
	}
	rc.Respond(resp)
}

func (s *Server) rpcChannelsStatus(rc *RequestContext) {
	if s.channels == nil {
		rc.Respond(map[string]any{"channels": []domain.ChannelStatus{}})
		return
	}
	rc.Respond(map[string]any{"channels": s.channels.Status()})
}

func (s *Server) rpcChatSend(rc *RequestContext) {
	if s.assistant == nil {
		rc.RespondError(CodeUnavailable, "no LLM provider configured")
		return
	}

	var p ChatSendParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	p.Message = strings.TrimSpace(p.Message)
	if p.Message == "" {
		rc.RespondError(CodeInvalidParams, "message is required")
		return
	}
	if p.RequesterID == "" {
		p.RequesterID = rc.Client.RequesterID()
	}
	if p.ThreadID == "" {
		p.ThreadID = rc.Client.ConnID
	}

	if err := s.limiter.Allow("gateway:" + p.RequesterID); err != nil {
		s.metrics.RateLimited("gateway")
		s.log.Warn().Str("requester", p.RequesterID).Msg("chat.send rate limited")
		rc.RespondErrorShape(ErrorShape{
			Code:      CodeRateLimited,
			Message:   ratelimit.Message,
			Retryable: true,
		})
		return
	}

	res := s.assistant.Process(rc.Ctx, agent.Turn{
		RequesterID: p.RequesterID,
		Text:        p.Message,
		ThreadID:    p.ThreadID,
		ChannelID:   "gateway",
	})
	rc.Respond(ChatSendResult{
		Text:       res.Text,
		TraceID:    res.TraceID,
		Outcome:    string(res.Outcome),
		Iterations: res.Iterations,
		Dispatches: res.Dispatches,
		DurationMs: res.Duration.Milliseconds(),
	})
}

// requireEngine responds unavailable when no store is wired.
func (s *Server) requireEngine(rc *RequestContext) bool {
	if s.engine == nil {
		rc.RespondError(CodeUnavailable, "booking store not configured")
		return false
	}
	return true
}

func (s *Server) rpcRoomsList(rc *RequestContext) {
	if !s.requireEngine(rc) {
		return
	}
	rooms, err := s.engine.Store().ListRooms(rc.Ctx)
	if err != nil {
		s.internalError(rc, err)
		return
	}
	rc.Respond(map[string]any{"rooms": rooms})
}

func (s *Server) rpcRoomsAvailable(rc *RequestContext) {
	if !s.requireEngine(rc) {
		return
	}
	var p RoomsAvailableParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if p.Date == "" || p.StartTime == "" || p.EndTime == "" {
		rc.RespondError(CodeInvalidParams, "date, startTime and endTime are required")
		return
	}
	start, end, err := booking.Window(p.Date, p.StartTime, p.EndTime, s.loc)
	if err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}

	rooms, err := s.avail.FindAvailable(rc.Ctx, booking.Query{
		Start:           start,
		End:             end,
		MinCapacity:     p.MinCapacity,
		Characteristics: p.Characteristics,
	})
	switch {
	case errors.Is(err, booking.ErrInvalidInterval):
		rc.RespondError(CodeInvalidParams, err.Error())
	case err != nil:
		s.internalError(rc, err)
	default:
		rc.Respond(map[string]any{
			"start": start,
			"end":   end,
			"rooms": rooms,
		})
	}
}

func (s *Server) rpcReservationsList(rc *RequestContext) {
	if !s.requireEngine(rc) {
		return
	}
	var p ReservationsListParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}

	f := booking.ReservationFilter{
		RequesterID: p.RequesterID,
		RoomID:      p.RoomID,
		Limit:       p.Limit,
	}
	if p.Status != "" {
		f.Status = domain.ReservationStatus(strings.ToUpper(p.Status))
		if !f.Status.Valid() {
			rc.RespondError(CodeInvalidParams, "status must be CONFIRMED or CANCELED")
			return
		}
	}
	if p.From != "" {
		from, err := booking.ParseDate(p.From, s.loc)
		if err != nil {
			rc.RespondError(CodeInvalidParams, err.Error())
			return
		}
		f.From = from
	}
	if p.To != "" {
		to, err := booking.ParseDate(p.To, s.loc)
		if err != nil {
			rc.RespondError(CodeInvalidParams, err.Error())
			return
		}
		f.To = to.AddDate(0, 0, 1)
	}
	switch {
	case f.Limit <= 0:
		f.Limit = defaultListLimit
	case f.Limit > maxListLimit:
		f.Limit = maxListLimit
	}

	rs, err := s.engine.Store().ListReservations(rc.Ctx, f)
	if err != nil {
		s.internalError(rc, err)
		return
	}
	if rs == nil {
		rs = []domain.Reservation{}
	}
	rc.Respond(map[string]any{"reservations": rs})
}

func (s *Server) rpcReservationsCancel(rc *RequestContext) {
	if !s.requireEngine(rc) {
		return
	}
	var p ReservationsCancelParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if p.ID <= 0 {
		rc.RespondError(CodeInvalidParams, "id is required")
		return
	}

	r, err := s.engine.CancelReservation(rc.Ctx, p.ID)
	switch {
	case errors.Is(err, booking.ErrReservationNotFound):
		rc.RespondError(CodeNotFound, err.Error())
	case errors.Is(err, booking.ErrAlreadyCanceled):
		rc.RespondError(CodeAlreadyCanceled, err.Error())
	case err != nil:
		s.internalError(rc, err)
	default:
		s.log.Info().
			Int64("id", r.ID).
			Str("connId", rc.Client.ConnID).
			Msg("reservation canceled via gateway")
		rc.Respond(map[string]any{"reservation": r})
	}
}

func (s *Server) internalError(rc *RequestContext, err error) {
	s.log.Error().Err(err).Str("method", rc.Frame.Method).Msg("rpc failed")
	rc.RespondError(CodeInternal, "internal error")
}
