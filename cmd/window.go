package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kilianp07/loom/app"
	"github.com/kilianp07/loom/core/model"
)

var windowCmd = &cobra.Command{
	Use:   "window",
	Short: "Show the rolling window",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd.Context(), func(ctx context.Context, svc *app.Service) error {
			w, err := svc.Roller.Window(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(map[string]any{"today": model.FormatDate(w.Today), "weeks": w.Weeks, "end": model.FormatDate(w.End)})
			}
			fmt.Printf("%s .. %s (%d weeks, end exclusive)\n", model.FormatDate(w.Today), model.FormatDate(w.End), w.Weeks)
			return nil
		})
	},
}

var windowResizeCmd = &cobra.Command{
	Use:   "resize WEEKS",
	Short: "Persist a new window size and roll",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		weeks, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("weeks: %w", err)
		}
		return withService(cmd.Context(), func(ctx context.Context, svc *app.Service) error {
			report, err := svc.Roller.Resize(ctx, weeks)
			if err != nil {
				return err
			}
			return printReport(report)
		})
	},
}

func init() {
	windowCmd.AddCommand(windowResizeCmd)
	rootCmd.AddCommand(windowCmd)
}
