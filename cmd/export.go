package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kilianp07/loom/app"
	"github.com/kilianp07/loom/pkg/export"
)

var (
	exportFormat  string
	exportOutput  string
	exportProgram string
)

var exportCmd = &cobra.Command{
	Use:       "export financials|shifts",
	Short:     "Export instance financials or staff shifts of the window",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"financials", "shifts"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportFormat != "csv" && exportFormat != "json" {
			return fmt.Errorf("unsupported format %q", exportFormat)
		}
		return withService(cmd.Context(), func(ctx context.Context, svc *app.Service) error {
			list, err := svc.Roller.Instances(ctx, exportProgram)
			if err != nil {
				return err
			}
			var w io.Writer = os.Stdout
			if exportOutput != "" {
				f, err := os.Create(exportOutput)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			switch {
			case args[0] == "financials" && exportFormat == "csv":
				return export.WriteFinancialsCSV(w, export.Financials(list))
			case args[0] == "financials":
				return export.WriteJSON(w, export.Financials(list))
			case exportFormat == "csv":
				return export.WriteShiftsCSV(w, export.Shifts(list))
			default:
				return export.WriteJSON(w, export.Shifts(list))
			}
		})
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "csv or json")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default stdout)")
	exportCmd.Flags().StringVar(&exportProgram, "program", "", "program id filter")
	rootCmd.AddCommand(exportCmd)
}
