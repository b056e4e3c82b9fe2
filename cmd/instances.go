package cmd

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/kilianp07/loom/app"
	"github.com/kilianp07/loom/core/model"
)

var instanceProgram string

var instancesCmd = &cobra.Command{
	Use:   "instances",
	Short: "List the instances inside the window",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd.Context(), func(ctx context.Context, svc *app.Service) error {
			list, err := svc.Roller.Instances(ctx, instanceProgram)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(list)
			}
			printInstances(list)
			return nil
		})
	},
}

func printInstances(list []model.Instance) {
	tw := newTable(table.Row{"Date", "Program", "Time", "Status", "Attending", "Staff", "Revenue", "Margin", "Shortfall"})
	for _, inst := range list {
		name := inst.ProgramName
		if inst.Overridden {
			name = warnColor.Sprint(name, " *")
		}
		tw.AppendRow(table.Row{
			model.FormatDate(inst.Date),
			name,
			fmt.Sprintf("%s-%s", inst.StartTime, inst.EndTime),
			statusLabel(inst.Status),
			len(inst.Attending()),
			fmt.Sprintf("%d/%d", len(inst.Shifts), inst.RequiredStaff),
			fmt.Sprintf("%.2f", inst.Financials.Revenue),
			fmt.Sprintf("%.1f%%", inst.Financials.Margin*100),
			shortfallLabel(inst.Shortfalls),
		})
	}
	tw.AppendFooter(table.Row{"", "", "", "", "", "", "", "", fmt.Sprintf("%d instances", len(list))})
	tw.Render()
}

// instanceAction builds a subcommand that applies fn to one instance id.
func instanceAction(use, short string, fn func(context.Context, *app.Service, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " INSTANCE_ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *app.Service) error {
				if err := fn(ctx, svc, args[0]); err != nil {
					return err
				}
				fmt.Println(okColor.Sprintf("%s: %s", use, args[0]))
				return nil
			})
		},
	}
}

func init() {
	instancesCmd.Flags().StringVar(&instanceProgram, "program", "", "program id filter")
	instancesCmd.AddCommand(
		instanceAction("reoptimize", "Rerun allocation and cards without re-materializing", func(ctx context.Context, svc *app.Service, id string) error {
			_, err := svc.Roller.Reoptimize(ctx, id)
			return err
		}),
		instanceAction("confirm", "Mark an instance as confirmed", func(ctx context.Context, svc *app.Service, id string) error {
			return svc.Roller.Confirm(ctx, id)
		}),
		instanceAction("finalise", "Freeze an instance against later rolls", func(ctx context.Context, svc *app.Service, id string) error {
			return svc.Roller.Finalise(ctx, id)
		}),
	)
	rootCmd.AddCommand(instancesCmd)
}
