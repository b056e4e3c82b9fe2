package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/kilianp07/loom/core/model"
	"github.com/kilianp07/loom/core/roller"
)

var (
	warnColor  = color.New(color.FgYellow)
	errorColor = color.New(color.FgRed)
	okColor    = color.New(color.FgHiGreen)
	dimColor   = color.New(color.FgHiBlack)
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(header)
	return tw
}

func statusLabel(s model.InstanceStatus) string {
	switch s {
	case model.StatusFinalised:
		return okColor.Sprint(s)
	case model.StatusConfirmed:
		return color.New(color.FgCyan).Sprint(s)
	default:
		return dimColor.Sprint(s)
	}
}

func shortfallLabel(ws []model.ShortfallWarning) string {
	if len(ws) == 0 {
		return ""
	}
	parts := make([]string, len(ws))
	for i, w := range ws {
		parts[i] = fmt.Sprintf("%s %d/%d", w.Resource, w.Assigned, w.Required)
	}
	return errorColor.Sprint(strings.Join(parts, ", "))
}

func printReport(r roller.RollReport) error {
	if jsonOutput {
		errs := make([]string, len(r.Errors))
		for i, err := range r.Errors {
			errs[i] = err.Error()
		}
		return printJSON(map[string]any{
			"today":       model.FormatDate(r.Window.Today),
			"weeks":       r.Window.Weeks,
			"processed":   r.Processed,
			"skipped":     r.Skipped,
			"removed":     r.Removed,
			"failed":      r.Failed,
			"pruned":      r.Pruned,
			"errors":      errs,
			"duration_ms": r.Duration.Milliseconds(),
		})
	}
	fmt.Printf("window %s .. %s (%d weeks)\n", model.FormatDate(r.Window.Today), model.FormatDate(r.Window.End), r.Window.Weeks)
	tw := newTable(table.Row{"Processed", "Skipped", "Removed", "Failed", "Pruned", "Duration"})
	failed := fmt.Sprint(r.Failed)
	if r.Failed > 0 {
		failed = errorColor.Sprint(r.Failed)
	}
	tw.AppendRow(table.Row{r.Processed, r.Skipped, r.Removed, failed, r.Pruned, r.Duration.Round(time.Millisecond)})
	tw.Render()
	for _, err := range r.Errors {
		fmt.Println(errorColor.Sprint("  ", err))
	}
	return nil
}
