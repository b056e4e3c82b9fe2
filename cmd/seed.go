package cmd

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/kilianp07/loom/app"
	"github.com/kilianp07/loom/core/model"
	"github.com/kilianp07/loom/core/store"
	"github.com/kilianp07/loom/infra/catalog"
)

var seedRoll bool

var seedCmd = &cobra.Command{
	Use:   "seed CATALOG.yaml",
	Short: "Upsert programs, participants, staff, vehicles, venues and billing codes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := catalog.Load(args[0])
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		return withService(cmd.Context(), func(ctx context.Context, svc *app.Service) error {
			var n catalog.Counts
			err := svc.Store.InTx(ctx, func(tx store.Tx) error {
				var err error
				if n, err = c.Apply(ctx, tx); err != nil {
					return err
				}
				// Existing instances of seeded programs must pick up the new
				// definitions on the next roll.
				for _, id := range c.ProgramIDs() {
					if _, err := tx.MarkStale(ctx, id, model.Interval{}); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
			tw := newTable(table.Row{"Billing codes", "Venues", "Participants", "Staff", "Vehicles", "Programs"})
			tw.AppendRow(table.Row{n.BillingCodes, n.Venues, n.Participants, n.Staff, n.Vehicles, n.Programs})
			tw.Render()
			if !seedRoll {
				return nil
			}
			report, err := svc.Roller.RollForward(ctx, "seed")
			if perr := printReport(report); perr != nil {
				return perr
			}
			return err
		})
	},
}

func init() {
	seedCmd.Flags().BoolVar(&seedRoll, "roll", true, "roll the window after seeding")
	rootCmd.AddCommand(seedCmd)
}
