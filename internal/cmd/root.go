package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for ccom
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ccom",
		Short: "Event-driven orchestration of development agents",
		Long: `ccom runs development agents (quality, security, test, build, deploy and
friends) in response to workflow events.

Each event resolves to a set of tasks. ccom orders them into dependency
waves, runs every wave in parallel on the native or legacy backend, applies
quality gates, and reports a single orchestration result.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "Path to config file (default: $CCOM_HOME/config.yaml or .ccom/config.yaml)")
	cmd.PersistentFlags().Bool("verbose", false, "Show per-task results (sets log level to debug)")
	cmd.PersistentFlags().String("log-level", "", "Log level: trace, debug, info, warn, error")

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewExecCommand())
	cmd.AddCommand(NewPlanCommand())
	cmd.AddCommand(NewTriggersCommand())
	cmd.AddCommand(NewTasksCommand())
	cmd.AddCommand(NewAuditCommand())
	cmd.AddCommand(NewReportCommand())

	return cmd
}
