package cmd

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/kilianp07/loom/app"
	"github.com/kilianp07/loom/core/model"
	"github.com/kilianp07/loom/core/store"
)

var exceptionFlags struct {
	kind        string
	program     string
	participant string
	date        string
	startTime   string
	endTime     string
	venue       string
	reason      string
}

var exceptionsCmd = &cobra.Command{
	Use:   "exceptions",
	Short: "List single-date overrides",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd.Context(), func(ctx context.Context, svc *app.Service) error {
			list, err := svc.Rules.ListExceptions(ctx, store.ExceptionFilter{
				ProgramID:     exceptionFlags.program,
				ParticipantID: exceptionFlags.participant,
				Kind:          model.ExceptionKind(exceptionFlags.kind),
			})
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(list)
			}
			tw := newTable(table.Row{"ID", "Kind", "Program", "Participant", "Date", "Reason"})
			for _, ex := range list {
				tw.AppendRow(table.Row{ex.ID, ex.Kind, ex.ProgramID, ex.ParticipantID, model.FormatDate(ex.Date), ex.Details.Reason})
			}
			tw.Render()
			return nil
		})
	},
}

var exceptionsAddCmd = &cobra.Command{
	Use:     "add",
	Short:   "Create an exception for one date",
	Example: "  loom exceptions add --kind PROGRAM_CANCELLATION --program art --date 2026-11-04 --reason 'venue closed'",
	RunE: func(cmd *cobra.Command, args []string) error {
		date, err := model.ParseDate(exceptionFlags.date)
		if err != nil {
			return fmt.Errorf("--date: %w", err)
		}
		ex := model.Exception{
			Kind:          model.ExceptionKind(exceptionFlags.kind),
			ProgramID:     exceptionFlags.program,
			ParticipantID: exceptionFlags.participant,
			Date:          date,
			Details: model.ExceptionDetails{
				StartTime: model.TimeOfDay(exceptionFlags.startTime),
				EndTime:   model.TimeOfDay(exceptionFlags.endTime),
				VenueID:   exceptionFlags.venue,
				Reason:    exceptionFlags.reason,
			},
			CreatedBy: "cli",
		}
		return withService(cmd.Context(), func(ctx context.Context, svc *app.Service) error {
			created, err := svc.Rules.CreateException(ctx, ex)
			if err != nil {
				return describe(err)
			}
			fmt.Println(okColor.Sprintf("created %s %s", created.Kind, created.ID))
			return nil
		})
	},
}

var exceptionsDeleteCmd = &cobra.Command{
	Use:   "delete EXCEPTION_ID",
	Short: "Delete an exception and restore its date",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd.Context(), func(ctx context.Context, svc *app.Service) error {
			if err := svc.Rules.DeleteException(ctx, args[0]); err != nil {
				return describe(err)
			}
			fmt.Println(okColor.Sprintf("deleted %s", args[0]))
			return nil
		})
	},
}

func init() {
	exceptionsCmd.Flags().StringVar(&exceptionFlags.program, "program", "", "program id filter")
	exceptionsCmd.Flags().StringVar(&exceptionFlags.participant, "participant", "", "participant id filter")
	exceptionsCmd.Flags().StringVar(&exceptionFlags.kind, "kind", "", "kind filter")

	f := exceptionsAddCmd.Flags()
	f.StringVar(&exceptionFlags.kind, "kind", "", "exception kind")
	f.StringVar(&exceptionFlags.program, "program", "", "program id")
	f.StringVar(&exceptionFlags.participant, "participant", "", "participant id")
	f.StringVar(&exceptionFlags.date, "date", "", "date (YYYY-MM-DD)")
	f.StringVar(&exceptionFlags.startTime, "start-time", "", "one-off start time (HH:MM)")
	f.StringVar(&exceptionFlags.endTime, "end-time", "", "one-off end time (HH:MM)")
	f.StringVar(&exceptionFlags.venue, "venue", "", "one-off venue id")
	f.StringVar(&exceptionFlags.reason, "reason", "", "free-text reason")
	_ = exceptionsAddCmd.MarkFlagRequired("kind")
	_ = exceptionsAddCmd.MarkFlagRequired("date")

	exceptionsCmd.AddCommand(exceptionsAddCmd, exceptionsDeleteCmd)
	rootCmd.AddCommand(exceptionsCmd)
}
