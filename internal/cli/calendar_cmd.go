package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/soyeahso/roombot/internal/calendar"
	"github.com/spf13/cobra"
)

func newCalendarCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Manage the Google Calendar mirror",
	}

	cmd.AddCommand(newCalendarAuthCmd())
	cmd.AddCommand(newCalendarBackfillCmd())
	return cmd
}

func newCalendarAuthCmd() *cobra.Command {
	var code string

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize roombot to write calendar events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Calendar.CredentialsFile == "" {
				return fmt.Errorf("calendar.credentialsFile is not set")
			}
			oauthCfg, err := calendar.OAuthConfig(cfg.Calendar.CredentialsFile)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if code == "" {
				fmt.Fprintf(out, "Open this URL in a browser and paste the authorization code:\n\n%s\n\ncode: ", calendar.AuthURL(oauthCfg))
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("reading authorization code: %w", err)
				}
				code = strings.TrimSpace(line)
			}
			if code == "" {
				return fmt.Errorf("no authorization code given")
			}

			tokenPath := paths.CalendarTokenPath(&cfg)
			if _, err := calendar.Exchange(cmd.Context(), oauthCfg, code, tokenPath); err != nil {
				return err
			}
			fmt.Fprintf(out, "Token saved to %s\n", tokenPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&code, "code", "", "authorization code (prompted when omitted)")
	return cmd
}

func newCalendarBackfillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backfill",
		Short: "Push confirmed reservations that are not yet on the calendar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, seedOnStart, func(ctx context.Context, sc *storeCommand) error {
				svc, err := calendar.NewService(ctx, sc.cfg.Calendar.CredentialsFile, paths.CalendarTokenPath(&sc.cfg))
				if err != nil {
					return err
				}
				mirror := calendar.NewMirror(svc, sc.cfg.Calendar.CalendarID, sc.db, sc.engine, sc.loc, log)
				n, err := mirror.Backfill(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "Pushed %d reservation(s) to %s\n", n, sc.cfg.Calendar.CalendarID)
				return err
			})
		},
	}
}
