package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/soyeahso/roombot/internal/config"
	"github.com/soyeahso/roombot/internal/guardrail"
	"github.com/soyeahso/roombot/internal/llm"
	"github.com/soyeahso/roombot/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show roombot status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "roombot %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Fprintf(out, "Config:   %s\n", paths.Config)
			fmt.Fprintf(out, "Data:     %s\n", paths.Data)
			fmt.Fprintf(out, "Logs:     %s\n", paths.Logs)
			fmt.Fprintln(out)

			if _, err := os.Stat(paths.Config); os.IsNotExist(err) {
				fmt.Fprintln(out, "Config:   not found (using defaults)")
			}
			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Fprintf(out, "Config:   error loading: %v\n", err)
				return nil
			}

			fmt.Fprintf(out, "Gateway:  port=%d bind=%s auth=%s tls=%v\n",
				cfg.Gateway.Port, cfg.Gateway.Bind, cfg.Gateway.Auth.Mode, cfg.Gateway.TLS.Enabled)

			switch cfg.Store.Driver {
			case "postgres":
				fmt.Fprintln(out, "Store:    postgres")
			default:
				fmt.Fprintf(out, "Store:    sqlite path=%s\n", paths.DatabasePath(&cfg))
			}
			fmt.Fprintf(out, "Timezone: %s\n", cfg.Booking.Timezone)

			registry := llm.NewRegistryFromConfig(cfg.LLM, log)
			if providers := registry.List(); len(providers) > 0 {
				primary := cfg.LLM.Primary
				if primary == "" {
					primary = providers[0]
				}
				fmt.Fprintf(out, "LLM:      %s (primary %s)\n", strings.Join(providers, ", "), primary)
			} else {
				fmt.Fprintln(out, "LLM:      (none detected)")
			}
			fmt.Fprintf(out, "Agent:    name=%s maxIterations=%d llmTimeout=%s toolTimeout=%s\n",
				cfg.Agent.Name, cfg.Agent.MaxIterations, cfg.Agent.LLMTimeout, cfg.Agent.ToolTimeout)

			fmt.Fprintf(out, "Guard:    %d deny-list patterns\n", len(guardrail.New(cfg.Guardrail.ExtraPatterns...).Patterns()))

			if irc := cfg.Channels.IRC; irc != nil {
				fmt.Fprintf(out, "IRC:      server=%s nick=%s channels=%s tls=%v\n",
					irc.Server, irc.Nick, strings.Join(irc.Channels, ","), irc.UseTLS)
			} else {
				fmt.Fprintln(out, "IRC:      (not configured)")
			}
			if sc := cfg.Channels.Slack; sc != nil && sc.BotToken != "" {
				fmt.Fprintln(out, "Slack:    socket mode")
			} else {
				fmt.Fprintln(out, "Slack:    (not configured)")
			}

			if cfg.Calendar.Enabled {
				fmt.Fprintf(out, "Calendar: id=%s schedule=%s\n", cfg.Calendar.CalendarID, cfg.Calendar.BackfillSchedule)
			}
			if cfg.TraceEnabled() {
				fmt.Fprintf(out, "Trace:    %s\n", paths.TraceDir(&cfg))
			}

			if issues := config.Validate(&cfg); len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s: %s\n", issue.Path, issue.Message)
				}
			}

			return nil
		},
	}

	return cmd
}
