package cmd

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/debashishroy00/ccom/internal/executor"
	"github.com/debashishroy00/ccom/internal/models"
)

// NewPlanCommand creates the plan command
func NewPlanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "plan <event>",
		Short: "Show the execution waves for an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadCommandEnvironment(cmd)
			if err != nil {
				return err
			}

			event := args[0]
			tasks := env.resolver.Resolve(event)
			plan, err := executor.BuildPlan(env.registry, tasks)
			if err != nil {
				return fmt.Errorf("planning %q: %w", event, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Event: %s\n", event)
			if !env.resolver.Known(event) {
				fmt.Fprintf(out, "  (unknown event, using default tasks)\n")
			}
			fmt.Fprintf(out, "Tasks: %s\n", strings.Join(tasks, ", "))
			printPlan(out, plan)
			return nil
		},
	}
}

// NewTriggersCommand creates the triggers command
func NewTriggersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "triggers",
		Short: "List known events and the tasks they trigger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := loadCommandEnvironment(cmd)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "EVENT\tTASKS")
			for _, event := range env.resolver.Events() {
				fmt.Fprintf(w, "%s\t%s\n", event, strings.Join(env.resolver.Resolve(event), ", "))
			}
			fmt.Fprintf(w, "(default)\t%s\n", strings.Join(env.resolver.Fallback(), ", "))
			return w.Flush()
		},
	}
}

// NewTasksCommand creates the tasks command
func NewTasksCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List registered tasks grouped by phase",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := loadCommandEnvironment(cmd)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PHASE\tTASK\tDEPENDS ON\tCAN FAIL\tTIMEOUT\tEXPECTED")

			byPhase := env.registry.ByPhase()
			for _, phase := range models.AllPhases() {
				for _, name := range byPhase[phase] {
					spec, err := env.registry.Get(name)
					if err != nil {
						return err
					}
					deps := append([]string(nil), spec.DependsOn...)
					sort.Strings(deps)
					depText := "-"
					if len(deps) > 0 {
						depText = strings.Join(deps, ", ")
					}
					timeout := spec.Timeout
					if timeout == 0 {
						timeout = env.cfg.Orchestrator.DefaultTimeout
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%s\n",
						phase, name, depText, spec.CanFail, timeout, env.registry.ExpectedCost(name).Round(time.Second))
				}
			}
			return w.Flush()
		},
	}
}

func loadCommandEnvironment(cmd *cobra.Command) (*environment, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return loadEnvironment(cfg)
}
