package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/soyeahso/roombot/internal/booking"
	"github.com/soyeahso/roombot/internal/config"
	"github.com/spf13/cobra"
)

// storeCommand holds what the offline store commands run against.
type storeCommand struct {
	cfg    config.Config
	loc    *time.Location
	db     backend
	engine *booking.Engine
}

// withStore loads the config, opens the store and runs fn against it.
func withStore(cmd *cobra.Command, seed func(*config.Config) bool, fn func(ctx context.Context, sc *storeCommand) error) error {
	cfg, loc, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	db, err := openBackend(ctx, &cfg, seed(&cfg))
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(ctx, &storeCommand{
		cfg:    cfg,
		loc:    loc,
		db:     db,
		engine: booking.NewEngine(db, log),
	})
}

func seedOnStart(cfg *config.Config) bool { return cfg.SeedOnStart() }

func noSeed(*config.Config) bool { return false }

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the default room catalog into an empty store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, noSeed, func(ctx context.Context, sc *storeCommand) error {
				n, err := booking.Seed(ctx, sc.db)
				if err != nil {
					return err
				}
				if n == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Rooms already present, nothing seeded")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d rooms\n", n)
				return nil
			})
		},
	}
}
