package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/debashishroy00/ccom/internal/logger"
	"github.com/debashishroy00/ccom/internal/report"
)

// NewReportCommand creates the report command
func NewReportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "report <path>",
		Short: "Show a run report written with --report",
		Long: `Print the waves, per-task results and summary stored in a JSON run
report.

Examples:
  ccom run pre_commit --report .ccom/last-run.json
  ccom report .ccom/last-run.json`,
		Args: cobra.ExactArgs(1),
		RunE: reportCommand,
	}
}

func reportCommand(cmd *cobra.Command, args []string) error {
	doc, err := report.ReadJSON(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for i, wave := range doc.Waves {
		fmt.Fprintf(out, "Wave %d: %s\n", i+1, strings.Join(wave, ", "))
	}

	if len(doc.Tasks) > 0 {
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TASK\tSTATUS\tBACKEND\tDURATION\tMESSAGE")
		for _, t := range doc.Tasks {
			backendText := string(t.BackendUsed)
			if backendText == "" {
				backendText = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				t.Task, t.Status, backendText, time.Duration(t.DurationMs)*time.Millisecond, t.Message)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	logger.NewConsoleLogger(out, "info").LogSummary(doc.OrchestrationResult)
	return nil
}
