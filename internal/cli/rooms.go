package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/soyeahso/roombot/internal/booking"
	"github.com/soyeahso/roombot/internal/domain"
	"github.com/spf13/cobra"
)

func newRoomsCmd() *cobra.Command {
	var (
		date            string
		start           string
		end             string
		minCapacity     int
		characteristics []string
	)

	cmd := &cobra.Command{
		Use:   "rooms",
		Short: "List rooms, or the rooms free for a time window",
		Long: "Without flags, lists every room. With --date, --start and --end, lists the rooms\n" +
			"free for that window, optionally filtered by capacity and characteristics.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			windowed := date != "" || start != "" || end != ""
			if windowed && (date == "" || start == "" || end == "") {
				return fmt.Errorf("--date, --start and --end must be given together")
			}

			return withStore(cmd, seedOnStart, func(ctx context.Context, sc *storeCommand) error {
				out := cmd.OutOrStdout()
				if !windowed {
					rooms, err := sc.db.ListRooms(ctx)
					if err != nil {
						return err
					}
					printRooms(out, rooms)
					return nil
				}

				from, to, err := booking.Window(date, start, end, sc.loc)
				if err != nil {
					return err
				}
				q := booking.Query{Start: from, End: to, Characteristics: characteristics}
				if cmd.Flags().Changed("min-capacity") {
					q.MinCapacity = &minCapacity
				}
				rooms, err := booking.NewAvailability(sc.db).FindAvailable(ctx, q)
				if err != nil {
					return err
				}
				if len(rooms) == 0 {
					fmt.Fprintln(out, "No rooms available for that window")
					return nil
				}
				printRooms(out, rooms)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&start, "start", "", "start time (HH:MM)")
	cmd.Flags().StringVar(&end, "end", "", "end time (HH:MM)")
	cmd.Flags().IntVar(&minCapacity, "min-capacity", 0, "minimum number of seats")
	cmd.Flags().StringSliceVar(&characteristics, "characteristic", nil, "required characteristic (repeatable)")

	return cmd
}

func printRooms(w io.Writer, rooms []domain.Room) {
	for _, r := range rooms {
		fmt.Fprintf(w, "  %-3d %-18s cap=%-3d %s\n", r.ID, r.Name, r.Capacity, strings.Join(r.Characteristics, ", "))
	}
}
