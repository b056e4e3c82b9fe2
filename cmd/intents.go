package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/kilianp07/loom/app"
	"github.com/kilianp07/loom/core/model"
	"github.com/kilianp07/loom/core/store"
)

var intentFlags struct {
	kind        string
	program     string
	participant string
	staff       string
	vehicle     string
	venue       string
	start       string
	end         string
	payload     string
	createdBy   string
}

var intentsCmd = &cobra.Command{
	Use:   "intents",
	Short: "List persistent rule changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd.Context(), func(ctx context.Context, svc *app.Service) error {
			list, err := svc.Rules.ListIntents(ctx, store.IntentFilter{
				ProgramID:     intentFlags.program,
				ParticipantID: intentFlags.participant,
				StaffID:       intentFlags.staff,
				Kind:          model.IntentKind(intentFlags.kind),
			})
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(list)
			}
			tw := newTable(table.Row{"ID", "Kind", "Program", "Subject", "From", "Until"})
			for _, in := range list {
				until := dimColor.Sprint("open")
				if in.End != nil {
					until = model.FormatDate(*in.End)
				}
				subject := in.ParticipantID
				if subject == "" {
					subject = in.StaffID
				}
				tw.AppendRow(table.Row{in.ID, in.Kind, in.ProgramID, subject, model.FormatDate(in.Start), until})
			}
			tw.Render()
			return nil
		})
	},
}

var intentsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create an intent",
	Example: `  loom intents add --kind ADD_PARTICIPANT --program art --participant cara \
    --start 2026-11-02 --payload '{"billing_code":"SUP01","hours":3}'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := intentFromFlags()
		if err != nil {
			return err
		}
		return withService(cmd.Context(), func(ctx context.Context, svc *app.Service) error {
			created, err := svc.Rules.CreateIntent(ctx, in)
			if err != nil {
				return describe(err)
			}
			fmt.Println(okColor.Sprintf("created %s %s", created.Kind, created.ID))
			return nil
		})
	},
}

func intentFromFlags() (model.Intent, error) {
	in := model.Intent{
		Kind:          model.IntentKind(intentFlags.kind),
		ProgramID:     intentFlags.program,
		ParticipantID: intentFlags.participant,
		StaffID:       intentFlags.staff,
		VehicleID:     intentFlags.vehicle,
		VenueID:       intentFlags.venue,
		CreatedBy:     intentFlags.createdBy,
	}
	start, err := model.ParseDate(intentFlags.start)
	if err != nil {
		return in, fmt.Errorf("--start: %w", err)
	}
	in.Start = start
	if intentFlags.end != "" {
		end, err := model.ParseDate(intentFlags.end)
		if err != nil {
			return in, fmt.Errorf("--end: %w", err)
		}
		in.End = &end
	}
	if in.Payload, err = model.DecodePayload(in.Kind, []byte(intentFlags.payload)); err != nil {
		return in, err
	}
	return in, nil
}

var intentsDeleteCmd = &cobra.Command{
	Use:   "delete INTENT_ID",
	Short: "Delete an intent and restore the affected dates",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd.Context(), func(ctx context.Context, svc *app.Service) error {
			if err := svc.Rules.DeleteIntent(ctx, args[0]); err != nil {
				return describe(err)
			}
			fmt.Println(okColor.Sprintf("deleted %s", args[0]))
			return nil
		})
	},
}

// describe expands validation and conflict errors for the terminal.
func describe(err error) error {
	var v *model.ValidationError
	if errors.As(err, &v) {
		for _, f := range v.Fields {
			fmt.Println(errorColor.Sprintf("  %s: %s", f.Field, f.Message))
		}
		return fmt.Errorf("validation failed")
	}
	var c *model.ConflictError
	if errors.As(err, &c) {
		fmt.Println(warnColor.Sprintf("  conflicts with %s %s", c.Entity, c.ExistingID))
	}
	return err
}

func init() {
	intentsCmd.Flags().StringVar(&intentFlags.program, "program", "", "program id filter")
	intentsCmd.Flags().StringVar(&intentFlags.participant, "participant", "", "participant id filter")
	intentsCmd.Flags().StringVar(&intentFlags.staff, "staff", "", "staff id filter")
	intentsCmd.Flags().StringVar(&intentFlags.kind, "kind", "", "kind filter")

	f := intentsAddCmd.Flags()
	f.StringVar(&intentFlags.kind, "kind", "", "intent kind")
	f.StringVar(&intentFlags.program, "program", "", "program id")
	f.StringVar(&intentFlags.participant, "participant", "", "participant id")
	f.StringVar(&intentFlags.staff, "staff", "", "staff id")
	f.StringVar(&intentFlags.vehicle, "vehicle", "", "vehicle id")
	f.StringVar(&intentFlags.venue, "venue", "", "venue id")
	f.StringVar(&intentFlags.start, "start", "", "first effective date (YYYY-MM-DD)")
	f.StringVar(&intentFlags.end, "end", "", "exclusive end date (YYYY-MM-DD)")
	f.StringVar(&intentFlags.payload, "payload", "", "kind-specific JSON payload")
	f.StringVar(&intentFlags.createdBy, "by", "cli", "author recorded on the intent")
	_ = intentsAddCmd.MarkFlagRequired("kind")
	_ = intentsAddCmd.MarkFlagRequired("start")

	intentsCmd.AddCommand(intentsAddCmd, intentsDeleteCmd)
	rootCmd.AddCommand(intentsCmd)
}
