package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/soyeahso/roombot/internal/calendar"
	"github.com/soyeahso/roombot/internal/channel"
	"github.com/soyeahso/roombot/internal/channel/irc"
	"github.com/soyeahso/roombot/internal/channel/slack"
	"github.com/soyeahso/roombot/internal/gateway"
	"github.com/soyeahso/roombot/internal/logging"
	"github.com/soyeahso/roombot/internal/ratelimit"
	"github.com/soyeahso/roombot/internal/routing"
	"github.com/spf13/cobra"
)

const stopTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway, chat channels and the booking assistant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, loc, err := loadConfig()
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}

			level := cfg.Logging.Level
			if logLevel != "" {
				level = logLevel
			}
			var closer io.Closer
			log, closer, err = logging.Open(logging.Options{
				Level:        level,
				ConsoleStyle: cfg.Logging.ConsoleStyle,
				File:         cfg.Logging.File,
			})
			if err != nil {
				return err
			}
			defer closer.Close()

			if err := paths.EnsureDirs(); err != nil {
				return fmt.Errorf("creating directories: %w", err)
			}

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := newRuntime(ctx, cfg, loc)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			return serve(ctx, rt)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (loopback, lan, custom)")

	return cmd
}

func serve(ctx context.Context, rt *runtime) error {
	cfg := rt.cfg
	limiter := ratelimit.FromConfig(cfg.Gateway.RateLimit)

	channels := channel.NewRegistry(log)
	if cfg.Channels.IRC != nil {
		channels.Register(irc.New(*cfg.Channels.IRC, log))
	}
	if sc := cfg.Channels.Slack; sc != nil && sc.BotToken != "" && sc.AppToken != "" {
		channels.Register(slack.New(*sc, log))
	}

	opts := []gateway.ServerOption{
		gateway.WithEngine(rt.engine),
		gateway.WithChannels(channels),
		gateway.WithHooks(rt.hooks),
		gateway.WithLimiter(limiter),
		gateway.WithStore(rt.db),
		gateway.WithLocation(rt.loc),
	}
	if rt.metrics != nil {
		opts = append(opts, gateway.WithMetrics(rt.metrics))
	}
	if rt.assistant != nil {
		opts = append(opts, gateway.WithAssistant(rt.assistant))
	}

	if channels.Count() > 0 {
		if rt.assistant != nil {
			router := routing.NewRouter(channels, rt.assistant, log,
				routing.WithLimiter(limiter),
				routing.WithMetrics(rt.metrics),
				routing.WithHooks(rt.hooks),
			)
			router.Wire(ctx)
			defer router.Wait()
			log.Info().Strs("channels", channels.List()).Msg("message routing active")
		} else {
			log.Warn().Msg("channels configured but no LLM provider, messages will not be processed")
		}

		if err := channels.StartAll(ctx); err != nil {
			return fmt.Errorf("starting channels: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
			defer cancel()
			channels.StopAll(stopCtx)
		}()
	}

	if cfg.Calendar.Enabled {
		mirror, err := startMirror(ctx, rt)
		if err != nil {
			return err
		}
		defer mirror.Stop()
		defer mirror.Detach(rt.hooks)
	}
	log.Debug().Strs("events", rt.hooks.Events()).Msg("hook subscriptions")

	return gateway.New(cfg, log, opts...).Start(ctx)
}

// startMirror attaches the calendar mirror, pushes anything missed while
// the process was down and schedules later backfills.
func startMirror(ctx context.Context, rt *runtime) (*calendar.Mirror, error) {
	cc := rt.cfg.Calendar
	svc, err := calendar.NewService(ctx, cc.CredentialsFile, paths.CalendarTokenPath(&rt.cfg))
	if err != nil {
		return nil, fmt.Errorf("calendar: %w (run `roombot calendar auth` first)", err)
	}
	mirror := calendar.NewMirror(svc, cc.CalendarID, rt.db, rt.engine, rt.loc, log)
	mirror.Attach(rt.hooks)

	n, err := mirror.Backfill(ctx)
	if err != nil {
		log.Warn().Err(err).Int("pushed", n).Msg("initial calendar backfill incomplete")
	}
	if err := mirror.Start(cc.BackfillSchedule); err != nil {
		return nil, err
	}
	log.Info().Str("calendar", cc.CalendarID).Str("schedule", cc.BackfillSchedule).Msg("calendar mirror active")
	return mirror, nil
}
