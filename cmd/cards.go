package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/kilianp07/loom/app"
	"github.com/kilianp07/loom/core/model"
)

var cardFlags struct {
	date        string
	participant string
	staff       string
	from        string
	to          string
}

var cardsCmd = &cobra.Command{
	Use:   "cards",
	Short: "List cards for a date, a participant or a staff member",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd.Context(), func(ctx context.Context, svc *app.Service) error {
			list, err := queryCards(ctx, svc)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(list)
			}
			printCards(list)
			return nil
		})
	},
}

func queryCards(ctx context.Context, svc *app.Service) ([]model.Card, error) {
	if cardFlags.participant == "" && cardFlags.staff == "" {
		d := svc.Clock.Today()
		if cardFlags.date != "" {
			var err error
			if d, err = model.ParseDate(cardFlags.date); err != nil {
				return nil, err
			}
		}
		return svc.Cards.ForDate(ctx, d)
	}
	w, err := svc.Roller.Window(ctx)
	if err != nil {
		return nil, err
	}
	from, to := w.Today, w.End
	for _, f := range []struct {
		raw string
		dst *time.Time
	}{{cardFlags.from, &from}, {cardFlags.to, &to}} {
		if f.raw == "" {
			continue
		}
		if *f.dst, err = model.ParseDate(f.raw); err != nil {
			return nil, err
		}
	}
	if cardFlags.participant != "" {
		return svc.Cards.ForParticipant(ctx, cardFlags.participant, from, to)
	}
	return svc.Cards.ForStaff(ctx, cardFlags.staff, from, to)
}

func printCards(list []model.Card) {
	tw := newTable(table.Row{"Date", "Type", "#", "Time", "Location", "Participants", "Staff", "Vehicle"})
	for _, c := range list {
		kind := string(c.Type)
		if c.Flagged {
			kind = warnColor.Sprint(kind, " !")
		}
		tw.AppendRow(table.Row{
			model.FormatDate(c.Date),
			kind,
			c.Sequence,
			fmt.Sprintf("%s-%s", c.StartTime, c.EndTime),
			c.Location,
			strings.Join(c.ParticipantIDs, ","),
			strings.Join(c.StaffIDs, ","),
			c.VehicleID,
		})
	}
	tw.Render()
}

var cardsRegenerateCmd = &cobra.Command{
	Use:   "regenerate",
	Short: "Rebuild cards for every instance whose last generation failed",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd.Context(), func(ctx context.Context, svc *app.Service) error {
			n, err := svc.Roller.RegenerateDirty(ctx)
			fmt.Printf("regenerated %d instances\n", n)
			return err
		})
	},
}

func init() {
	f := cardsCmd.Flags()
	f.StringVar(&cardFlags.date, "date", "", "date (YYYY-MM-DD, default today)")
	f.StringVar(&cardFlags.participant, "participant", "", "participant id")
	f.StringVar(&cardFlags.staff, "staff", "", "staff id")
	f.StringVar(&cardFlags.from, "from", "", "range start (default window start)")
	f.StringVar(&cardFlags.to, "to", "", "range end, exclusive (default window end)")
	cardsCmd.MarkFlagsMutuallyExclusive("participant", "staff")
	cardsCmd.AddCommand(cardsRegenerateCmd)
	rootCmd.AddCommand(cardsCmd)
}
