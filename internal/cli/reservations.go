package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/soyeahso/roombot/internal/booking"
	"github.com/soyeahso/roombot/internal/domain"
	"github.com/spf13/cobra"
)

func newReservationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "reservations",
		Aliases: []string{"res"},
		Short:   "List or cancel reservations",
	}

	cmd.AddCommand(newReservationsListCmd())
	cmd.AddCommand(newReservationsCancelCmd())
	return cmd
}

func newReservationsListCmd() *cobra.Command {
	var (
		user   string
		room   int64
		status string
		from   string
		to     string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reservations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, seedOnStart, func(ctx context.Context, sc *storeCommand) error {
				f := booking.ReservationFilter{RequesterID: user, RoomID: room, Limit: limit}
				if status != "" {
					f.Status = domain.ReservationStatus(strings.ToUpper(status))
					if !f.Status.Valid() {
						return fmt.Errorf("unknown status %q", status)
					}
				}
				if from != "" {
					d, err := booking.ParseDate(from, sc.loc)
					if err != nil {
						return err
					}
					f.From = d
				}
				if to != "" {
					d, err := booking.ParseDate(to, sc.loc)
					if err != nil {
						return err
					}
					f.To = d.AddDate(0, 0, 1)
				}

				rs, err := sc.db.ListReservations(ctx, f)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(rs) == 0 {
					fmt.Fprintln(out, "No reservations")
					return nil
				}
				names := roomNames(ctx, sc)
				for _, r := range rs {
					printReservation(out, r, names[r.RoomID], sc)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "only this requester")
	cmd.Flags().Int64Var(&room, "room", 0, "only this room id")
	cmd.Flags().StringVar(&status, "status", "", "CONFIRMED or CANCELED")
	cmd.Flags().StringVar(&from, "from", "", "first day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last day, inclusive (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")

	return cmd
}

func newReservationsCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a confirmed reservation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid reservation id %q", args[0])
			}
			return withStore(cmd, seedOnStart, func(ctx context.Context, sc *storeCommand) error {
				r, err := sc.engine.CancelReservation(ctx, id)
				switch {
				case errors.Is(err, booking.ErrReservationNotFound):
					return fmt.Errorf("reservation %d not found", id)
				case errors.Is(err, booking.ErrAlreadyCanceled):
					return fmt.Errorf("reservation %d is already canceled", id)
				case err != nil:
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Canceled reservation %d\n", r.ID)
				return nil
			})
		},
	}
}

func roomNames(ctx context.Context, sc *storeCommand) map[int64]string {
	names := map[int64]string{}
	rooms, err := sc.db.ListRooms(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("listing rooms")
		return names
	}
	for _, r := range rooms {
		names[r.ID] = r.Name
	}
	return names
}

func printReservation(w io.Writer, r domain.Reservation, room string, sc *storeCommand) {
	fmt.Fprintf(w, "  #%-4d %-9s %s %s-%s  %-18s %-12s %s\n",
		r.ID, r.Status,
		r.Start.In(sc.loc).Format(booking.DateLayout),
		r.Start.In(sc.loc).Format(booking.TimeLayout),
		r.End.In(sc.loc).Format(booking.TimeLayout),
		room, r.RequesterID, r.Topic)
}
