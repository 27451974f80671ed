package cli

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/soyeahso/roombot/internal/agent"
	"github.com/spf13/cobra"
)

func newAskCmd() *cobra.Command {
	var (
		user   string
		thread string
	)

	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Run one assistant turn and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, loc, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := newRuntime(ctx, cfg, loc)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)
			if rt.assistant == nil {
				return errNoProviders
			}

			res := rt.assistant.Process(ctx, agent.Turn{
				RequesterID: user,
				Text:        strings.Join(args, " "),
				ThreadID:    thread,
				ChannelID:   "cli",
			})
			fmt.Fprintln(cmd.OutOrStdout(), res.Text)
			fmt.Fprintf(cmd.ErrOrStderr(), "\n[trace=%s outcome=%s iterations=%d tools=%d took=%s]\n",
				res.TraceID, res.Outcome, res.Iterations, res.Dispatches, res.Duration.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "cli-user", "requester id the turn runs as")
	cmd.Flags().StringVar(&thread, "thread", "cli", "thread id recorded on reservations")

	return cmd
}
