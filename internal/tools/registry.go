package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/roombot/internal/booking"
	"github.com/soyeahso/roombot/internal/knowledge"
	"github.com/soyeahso/roombot/internal/llm"
	"github.com/soyeahso/roombot/internal/logging"
)

// Dispatch outcomes reported to an Observer.
const (
	StatusOK       = "ok"
	StatusInvalid  = "invalid"
	StatusRefused  = "refused"
	StatusConflict = "conflict"
	StatusFault    = "fault"
	StatusUnknown  = "unknown"
)

var descriptions = map[Kind]string{
	KindGetAvailableRooms: "Find available meeting rooms based on date, time, and optional characteristics.",
	KindCreateReservation: "Book a meeting room. REQUIRES user confirmation.",
	KindSearchKnowledge:   "Search company policies, guidelines, or facility information (e.g., wifi, guests, coffee).",
	KindGetUserPreference: "Get user's booking history statistics (favorite room, last topic). Use this when user says \"my usual\" or \"like last time\".",
}

var argTypes = map[Kind]any{
	KindGetAvailableRooms: &AvailableRoomsArgs{},
	KindCreateReservation: &CreateReservationArgs{},
	KindSearchKnowledge:   &SearchKnowledgeArgs{},
	KindGetUserPreference: &UserPreferenceArgs{},
}

// Observer receives one callback per dispatch.
type Observer interface {
	ObserveTool(tool, status string, elapsed time.Duration)
}

// Registry validates and executes tool calls.
type Registry struct {
	engine    *booking.Engine
	avail     *booking.Availability
	knowledge knowledge.Searcher
	schemas   map[Kind]*argSchema
	defs      []llm.ToolDefinition
	now       func() time.Time
	loc       *time.Location
	observer  Observer
	log       *logging.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the clock used by the past-date guardrails.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithLocation sets the zone in which wall-clock dates and times are read.
func WithLocation(loc *time.Location) Option {
	return func(r *Registry) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// WithObserver reports each dispatch to o.
func WithObserver(o Observer) Option {
	return func(r *Registry) { r.observer = o }
}

// NewRegistry builds the catalog over the booking engine and knowledge base.
func NewRegistry(engine *booking.Engine, kb knowledge.Searcher, log *logging.Logger, opts ...Option) (*Registry, error) {
	r := &Registry{
		engine:    engine,
		avail:     booking.NewAvailability(engine.Store()),
		knowledge: kb,
		schemas:   make(map[Kind]*argSchema, len(argTypes)),
		now:       time.Now,
		loc:       time.Local,
		log:       log.Sub("tools"),
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, k := range Kinds() {
		s, err := compileSchema(argTypes[k])
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", k, err)
		}
		r.schemas[k] = s
		r.defs = append(r.defs, llm.ToolDefinition{
			Name:        k.String(),
			Description: descriptions[k],
			InputSchema: s.raw,
		})
	}
	return r, nil
}

// Definitions returns the catalog in declaration order.
func (r *Registry) Definitions() []llm.ToolDefinition {
	out := make([]llm.ToolDefinition, len(r.defs))
	copy(out, r.defs)
	return out
}

// Dispatch validates rawArgs and runs the named tool for caller. It never
// returns a Go error; every outcome is an Envelope.
func (r *Registry) Dispatch(ctx context.Context, name, rawArgs string, caller Caller) Envelope {
	started := time.Now()
	env, status := r.dispatch(ctx, name, rawArgs, caller)
	elapsed := time.Since(started)

	ev := r.log.Debug()
	if env.Fault != nil {
		ev = r.log.Warn().Err(env.Fault)
	}
	ev.Str("tool", name).
		Str("status", status).
		Str("requester", caller.RequesterID).
		Dur("elapsed", elapsed).
		Msg("tool dispatched")

	if r.observer != nil {
		label := name
		if status == StatusUnknown {
			label = StatusUnknown
		}
		r.observer.ObserveTool(label, status, elapsed)
	}
	return env
}

func (r *Registry) dispatch(ctx context.Context, name, rawArgs string, caller Caller) (Envelope, string) {
	kind, ok := ParseKind(name)
	if !ok {
		return errorEnvelope("Unknown tool: " + name), StatusUnknown
	}
	if errs := r.schemas[kind].validate(rawArgs); len(errs) > 0 {
		return Envelope{Error: MsgValidation, Details: errs}, StatusInvalid
	}

	var env Envelope
	switch kind {
	case KindGetAvailableRooms:
		var args AvailableRoomsArgs
		if env, ok = decode(rawArgs, &args); ok {
			env = r.availableRooms(ctx, args)
		}
	case KindCreateReservation:
		var args CreateReservationArgs
		if env, ok = decode(rawArgs, &args); ok {
			env = r.createReservation(ctx, args, caller)
		}
	case KindSearchKnowledge:
		var args SearchKnowledgeArgs
		if env, ok = decode(rawArgs, &args); ok {
			env = resultEnvelope(r.knowledge.Search(ctx, args.Query))
		}
	case KindGetUserPreference:
		var args UserPreferenceArgs
		if env, ok = decode(rawArgs, &args); ok {
			env = r.userPreference(ctx, args, caller)
		}
	default:
		return errorEnvelope("Unknown tool: " + name), StatusUnknown
	}
	return env, statusOf(env)
}

func statusOf(env Envelope) string {
	switch {
	case env.OK():
		return StatusOK
	case env.Fault != nil:
		return StatusFault
	case env.Error == MsgValidation:
		return StatusInvalid
	case isConflict(env):
		return StatusConflict
	default:
		return StatusRefused
	}
}

func isConflict(env Envelope) bool {
	_, ok := env.Details.(ConflictDetails)
	return ok
}

// decode unmarshals schema-valid arguments into their typed struct.
func decode(raw string, into any) (Envelope, bool) {
	if raw == "" {
		raw = "{}"
	}
	if err := json.Unmarshal([]byte(raw), into); err != nil {
		return Envelope{Error: MsgValidation, Details: []FieldError{{Message: err.Error()}}}, false
	}
	return Envelope{}, true
}

func invalidField(field, msg string) Envelope {
	return Envelope{Error: MsgValidation, Details: []FieldError{{Field: field, Message: msg}}}
}

func (r *Registry) today() string {
	return r.now().In(r.loc).Format(booking.DateLayout)
}

func (r *Registry) availableRooms(ctx context.Context, args AvailableRoomsArgs) Envelope {
	if _, err := booking.ParseDate(args.Date, r.loc); err != nil {
		return invalidField("date", "not a calendar date")
	}
	if args.Date < r.today() {
		return errorEnvelope(MsgPastSearch)
	}
	start, end, err := booking.Window(args.Date, args.StartTime, args.EndTime, r.loc)
	if err != nil {
		return invalidField("startTime", err.Error())
	}
	if !end.After(start) {
		return errorEnvelope(MsgEndBeforeStart)
	}

	rooms, err := r.avail.FindAvailable(ctx, booking.Query{
		Start:           start,
		End:             end,
		Characteristics: args.Characteristics,
	})
	if err != nil {
		return faultEnvelope(err)
	}

	out := make([]RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		chars := room.Characteristics
		if chars == nil {
			chars = []string{}
		}
		out = append(out, RoomSummary{
			ID:              room.ID,
			Name:            room.Name,
			Characteristics: chars,
			Capacity:        room.Capacity,
		})
	}
	return resultEnvelope(out)
}

func (r *Registry) createReservation(ctx context.Context, args CreateReservationArgs, caller Caller) Envelope {
	if _, err := booking.ParseDate(args.Date, r.loc); err != nil {
		return invalidField("date", "not a calendar date")
	}
	start, end, err := booking.Window(args.Date, args.StartTime, args.EndTime, r.loc)
	if err != nil {
		return invalidField("startTime", err.Error())
	}
	if start.Before(r.now()) {
		return errorEnvelope(MsgPastReservation)
	}
	if !end.After(start) {
		return errorEnvelope(MsgEndBeforeStart)
	}

	res, err := r.engine.CreateReservation(ctx, booking.NewReservation{
		RoomID:      args.RoomID,
		RequesterID: caller.RequesterID,
		Start:       start,
		End:         end,
		Topic:       args.Topic,
		ThreadID:    caller.ThreadID,
	})
	var conflict *booking.ConflictError
	switch {
	case err == nil:
	case errors.As(err, &conflict):
		return Envelope{
			Error: fmt.Sprintf("Room %d is already booked for this time slot.", conflict.RoomID),
			Details: ConflictDetails{
				Code:   "CONFLICT",
				RoomID: conflict.RoomID,
				Start:  conflict.Start.In(r.loc).Format(time.RFC3339),
				End:    conflict.End.In(r.loc).Format(time.RFC3339),
			},
		}
	case errors.Is(err, booking.ErrRoomNotFound):
		return errorEnvelope(fmt.Sprintf("Room %d not found.", args.RoomID))
	case errors.Is(err, booking.ErrInvalidInterval):
		return errorEnvelope(MsgEndBeforeStart)
	default:
		return faultEnvelope(err)
	}

	return resultEnvelope(ReservationResult{
		Success:       true,
		ReservationID: res.ID,
		Message:       MsgReservationOK,
	})
}

func (r *Registry) userPreference(ctx context.Context, args UserPreferenceArgs, caller Caller) Envelope {
	target := args.UserSlackID
	if target == "" {
		target = caller.RequesterID
	}

	stats, err := r.engine.GetUserStats(ctx, target)
	if err != nil {
		return faultEnvelope(err)
	}
	if stats == nil {
		return resultEnvelope(MessageResult{Message: MsgNoHistory})
	}

	name, err := r.engine.RoomName(ctx, stats.FavoriteRoomID)
	if err != nil {
		r.log.Warn().Err(err).Int64("room", stats.FavoriteRoomID).Msg("room lookup failed")
		return resultEnvelope(map[string]any{
			"favoriteRoomId": stats.FavoriteRoomID,
			"totalBookings":  stats.TotalBookings,
			"note":           MsgRoomDetailsFailed,
		})
	}

	return resultEnvelope(PreferenceResult{
		Summary: fmt.Sprintf("User frequently books %s (ID: %d).", name, stats.FavoriteRoomID),
		Details: PreferenceDetails{
			FavoriteRoomID:   stats.FavoriteRoomID,
			FavoriteRoomName: name,
			TotalBookings:    stats.TotalBookings,
			LastMeetingTopic: stats.LastTopic,
		},
	})
}
