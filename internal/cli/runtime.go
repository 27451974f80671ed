package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/roombot/internal/agent"
	"github.com/soyeahso/roombot/internal/booking"
	"github.com/soyeahso/roombot/internal/calendar"
	"github.com/soyeahso/roombot/internal/config"
	"github.com/soyeahso/roombot/internal/guardrail"
	"github.com/soyeahso/roombot/internal/hooks"
	"github.com/soyeahso/roombot/internal/knowledge"
	"github.com/soyeahso/roombot/internal/llm"
	"github.com/soyeahso/roombot/internal/metrics"
	"github.com/soyeahso/roombot/internal/store"
	"github.com/soyeahso/roombot/internal/store/postgres"
	"github.com/soyeahso/roombot/internal/telemetry"
	"github.com/soyeahso/roombot/internal/tools"
	"github.com/soyeahso/roombot/internal/trace"
)

// errNoProviders is returned when a command needs the assistant but no LLM
// provider is configured.
var errNoProviders = errors.New("no LLM providers configured (set OPENAI_API_KEY or ANTHROPIC_API_KEY, or llm.providers)")

// backend is what both store adapters provide.
type backend interface {
	booking.Store
	booking.Seeder
	calendar.EventStore
	Ping(ctx context.Context) error
	Close() error
}

// loadConfig reads and validates the config file.
func loadConfig() (config.Config, *time.Location, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return cfg, nil, err
	}
	if issues := config.Validate(&cfg); len(issues) > 0 {
		for _, issue := range issues {
			log.Error().Str("path", issue.Path).Msg(issue.Message)
		}
		return cfg, nil, fmt.Errorf("config validation failed with %d issue(s)", len(issues))
	}
	loc, err := cfg.Location()
	if err != nil {
		return cfg, nil, err
	}
	return cfg, loc, nil
}

// openBackend opens the configured store, seeding an empty room catalog
// when seed is set.
func openBackend(ctx context.Context, cfg *config.Config, seed bool) (backend, error) {
	var db backend
	switch cfg.Store.Driver {
	case "postgres":
		pg, err := postgres.Open(ctx, cfg.Store.DSN, log)
		if err != nil {
			return nil, err
		}
		db = pg
	default:
		lite, err := store.Open(paths.DatabasePath(cfg), log)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		db = lite
	}

	if seed {
		n, err := booking.Seed(ctx, db)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("seeding rooms: %w", err)
		}
		if n > 0 {
			log.Info().Int("rooms", n).Msg("seeded room catalog")
		}
	}
	return db, nil
}

// runtime is the assembled booking stack shared by serve and ask.
type runtime struct {
	cfg       config.Config
	loc       *time.Location
	db        backend
	hooks     *hooks.Manager
	metrics   *metrics.Collector
	engine    *booking.Engine
	assistant *agent.Assistant // nil without LLM providers

	sink   trace.Sink
	tracer *telemetry.TracerSetup
}

// newRuntime opens the store and builds the engine. The assistant is built
// when at least one LLM provider is configured.
func newRuntime(ctx context.Context, cfg config.Config, loc *time.Location) (*runtime, error) {
	db, err := openBackend(ctx, &cfg, cfg.SeedOnStart())
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		cfg:   cfg,
		loc:   loc,
		db:    db,
		hooks: hooks.NewManager(log),
	}
	if cfg.MetricsEnabled() {
		rt.metrics = metrics.New()
		rt.metrics.Attach(rt.hooks)
	}
	rt.engine = booking.NewEngine(db, log, booking.WithHooks(rt.hooks))

	if err := rt.buildAssistant(ctx); err != nil {
		rt.Close(ctx)
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) buildAssistant(ctx context.Context) error {
	registry := llm.NewRegistryFromConfig(rt.cfg.LLM, log)
	providers := registry.List()
	if len(providers) == 0 {
		log.Warn().Msg("no LLM providers found, the assistant is disabled")
		return nil
	}
	primary := rt.cfg.LLM.Primary
	if primary == "" {
		primary = providers[0]
	}
	log.Info().Strs("providers", providers).Str("primary", primary).Msg("LLM providers available")

	kb, err := knowledge.Load(rt.cfg.Knowledge.Path, log)
	if err != nil {
		return err
	}
	toolReg, err := tools.NewRegistry(rt.engine, kb, log,
		tools.WithLocation(rt.loc),
		tools.WithObserver(rt.metrics),
	)
	if err != nil {
		return fmt.Errorf("building tool registry: %w", err)
	}

	guard := guardrail.New(rt.cfg.Guardrail.ExtraPatterns...)
	log.Debug().Int("patterns", len(guard.Patterns())).Msg("guardrail ready")

	opts := []agent.Option{
		agent.WithGuard(guard),
		agent.WithMetrics(rt.metrics),
		agent.WithHooks(rt.hooks),
		agent.WithLogger(log),
	}
	if rt.cfg.TraceEnabled() {
		sink, err := trace.NewFileSink(paths.TraceDir(&rt.cfg))
		if err != nil {
			return fmt.Errorf("opening trace sink: %w", err)
		}
		rt.sink = sink
		opts = append(opts, agent.WithTraceSink(sink))
	}
	tracer, err := telemetry.NewTracerSetup(ctx, rt.cfg.Tracing)
	if err != nil {
		return err
	}
	if tracer != nil {
		rt.tracer = tracer
		opts = append(opts, agent.WithTracer(tracer.Tracer()))
	}

	client := agent.NewFailoverClient(registry, primary, log).Observe(rt.metrics)
	rt.assistant = agent.New(agent.ConfigFrom(rt.cfg.Agent, rt.loc), client, toolReg, opts...)
	return nil
}

// Close drains pending hooks and releases the store, trace file and tracer.
func (rt *runtime) Close(ctx context.Context) {
	rt.hooks.Wait()
	if rt.tracer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := rt.tracer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("tracer shutdown")
		}
		cancel()
	}
	if rt.sink != nil {
		if err := rt.sink.Close(); err != nil {
			log.Warn().Err(err).Msg("closing trace sink")
		}
	}
	if err := rt.db.Close(); err != nil {
		log.Warn().Err(err).Msg("closing store")
	}
}
