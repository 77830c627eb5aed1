package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/debashishroy00/ccom/internal/audit"
)

// NewAuditCommand creates the audit command
func NewAuditCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent orchestration runs from the audit database",
		Long: `List recent runs recorded in the audit database. Recording is enabled
with audit.enabled in the config file (or CCOM_AUDIT_ENABLED=true).

Examples:
  ccom audit
  ccom audit --limit 5
  ccom audit --run 3f2a...   # task rows for one run`,
		Args: cobra.NoArgs,
		RunE: auditCommand,
	}

	cmd.Flags().Int("limit", 20, "Number of runs to show")
	cmd.Flags().String("run", "", "Show task results for this run ID")
	cmd.Flags().String("db", "", "Audit database path (default from config)")
	return cmd
}

func auditCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	dbPath, _ := cmd.Flags().GetString("db")
	if dbPath == "" {
		dbPath = cfg.Audit.DBPath
	}

	store, err := audit.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open audit database: %w", err)
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	if runID, _ := cmd.Flags().GetString("run"); runID != "" {
		tasks, err := store.TaskResults(cmd.Context(), runID)
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			fmt.Fprintf(out, "No task results recorded for run %s\n", runID)
			return nil
		}
		fmt.Fprintln(w, "TASK\tSTATUS\tBACKEND\tDURATION\tERRORS")
		for _, t := range tasks {
			backendText := t.Backend
			if backendText == "" {
				backendText = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				t.Task, t.Status, backendText, time.Duration(t.DurationMs)*time.Millisecond, strings.Join(t.Errors, "; "))
		}
		return w.Flush()
	}

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := store.RecentRuns(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return nil
	}

	fmt.Fprintln(w, "STARTED\tRUN\tEVENT\tRESULT\tDURATION\tEFFICIENCY\tFAILED")
	for _, r := range runs {
		outcome := "SUCCESS"
		if !r.Success {
			outcome = "FAILED"
		}
		event := r.Event
		if event == "" {
			event = "(explicit)"
		}
		failed := "-"
		if len(r.FailedTasks) > 0 {
			failed = strings.Join(r.FailedTasks, ", ")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.0f%%\t%s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.RunID, event, outcome,
			time.Duration(r.DurationMs)*time.Millisecond, r.ParallelEfficiency, failed)
	}
	return w.Flush()
}
