package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/kilianp07/loom/app"
)

var rollCmd = &cobra.Command{
	Use:   "roll",
	Short: "Roll the window forward once",
	Long:  "Materializes and reconciles every program across the window, prunes old instances and regenerates dirty cards.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd.Context(), func(ctx context.Context, svc *app.Service) error {
			report, err := svc.Roller.RollForward(ctx, "cli")
			if perr := printReport(report); perr != nil {
				return perr
			}
			if err != nil {
				return err
			}
			_, err = svc.Roller.RegenerateDirty(ctx)
			return err
		})
	},
}

func init() {
	rootCmd.AddCommand(rollCmd)
}
