package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/debashishroy00/ccom/internal/config"
	"github.com/debashishroy00/ccom/internal/executor"
	"github.com/debashishroy00/ccom/internal/models"
	"github.com/debashishroy00/ccom/internal/report"
)

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <event>",
		Short: "Orchestrate the agents triggered by an event",
		Long: `Resolve an event to its agent tasks, order them into dependency waves and
execute every wave.

Unknown events run the default task set (quality and security).
Configuration is loaded from $CCOM_HOME/config.yaml (or .ccom/config.yaml)
if present. CLI flags override configuration file settings.

Examples:
  ccom run pre_commit
  ccom run deployment_request --mode native --report .ccom/last-run.json
  ccom run full_pipeline --max-parallelism 2 --timeout 10m
  ccom run build_request --params branch=main --params env=staging
  ccom run security_review --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: runCommand,
	}

	addExecutionFlags(cmd)
	return cmd
}

// NewExecCommand creates the exec command
func NewExecCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec --wave <tasks> [--wave <tasks>]...",
		Short: "Execute explicit waves of tasks",
		Long: `Execute caller-supplied waves in order. Each --wave flag is a
comma-separated list of tasks that run in parallel; waves run one after
another. Dependencies between waves are not re-checked.

Examples:
  ccom exec --wave quality,security --wave build
  ccom exec --wave test --mode legacy`,
		Args: cobra.NoArgs,
		RunE: execCommand,
	}

	cmd.Flags().StringArray("wave", nil, "Comma-separated tasks for one wave (repeatable)")
	addExecutionFlags(cmd)
	return cmd
}

func addExecutionFlags(cmd *cobra.Command) {
	cmd.Flags().String("mode", "", "Backend mode: hybrid, native or legacy (default from config)")
	cmd.Flags().Int("max-parallelism", 0, "Maximum number of tasks running at once within a wave")
	cmd.Flags().String("timeout", "", "Default per-task timeout (e.g., 90s, 5m)")
	cmd.Flags().Bool("no-fallback", false, "Do not retry raised native invocations on the legacy backend")
	cmd.Flags().String("report", "", "Write the orchestration result as JSON to this path")
	cmd.Flags().Bool("dry-run", false, "Print the execution plan without running tasks")
	cmd.Flags().StringArray("params", nil, "Task parameter as key=value (repeatable)")
}

// applyExecutionFlags merges the execution flags that were set into cfg.
func applyExecutionFlags(cmd *cobra.Command, cfg *config.Config) error {
	var maxParallelismPtr *int
	if cmd.Flags().Changed("max-parallelism") {
		v, _ := cmd.Flags().GetInt("max-parallelism")
		maxParallelismPtr = &v
	}

	var timeoutPtr *time.Duration
	if cmd.Flags().Changed("timeout") {
		timeoutStr, _ := cmd.Flags().GetString("timeout")
		timeout, err := time.ParseDuration(timeoutStr)
		if err != nil {
			return fmt.Errorf("invalid timeout format %q: %w", timeoutStr, err)
		}
		timeoutPtr = &timeout
	}

	var modePtr *string
	if cmd.Flags().Changed("mode") {
		v, _ := cmd.Flags().GetString("mode")
		modePtr = &v
	}

	var fallbackPtr *bool
	if noFallback, _ := cmd.Flags().GetBool("no-fallback"); noFallback {
		disabled := false
		fallbackPtr = &disabled
	}

	cfg.MergeWithFlags(maxParallelismPtr, timeoutPtr, modePtr, fallbackPtr, nil, nil)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// parseParams turns key=value pairs into a parameter map.
func parseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", pair)
		}
		params[key] = value
	}
	return params, nil
}

// parseWaves splits each --wave value on commas.
func parseWaves(values []string) ([][]string, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("at least one --wave is required")
	}
	waves := make([][]string, 0, len(values))
	for _, value := range values {
		var tasks []string
		for _, name := range strings.Split(value, ",") {
			if name = strings.TrimSpace(name); name != "" {
				tasks = append(tasks, name)
			}
		}
		waves = append(waves, tasks)
	}
	return waves, nil
}

// prepare loads configuration, applies flags and reads --params.
func prepare(cmd *cobra.Command) (*environment, map[string]any, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if err := applyExecutionFlags(cmd, cfg); err != nil {
		return nil, nil, err
	}

	pairs, _ := cmd.Flags().GetStringArray("params")
	params, err := parseParams(pairs)
	if err != nil {
		return nil, nil, err
	}

	env, err := loadEnvironment(cfg)
	if err != nil {
		return nil, nil, err
	}
	return env, params, nil
}

// runCommand implements the run command logic
func runCommand(cmd *cobra.Command, args []string) error {
	event := args[0]

	env, params, err := prepare(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		tasks := env.resolver.Resolve(event)
		plan, err := executor.BuildPlan(env.registry, tasks)
		if err != nil {
			return fmt.Errorf("planning %q: %w", event, err)
		}
		fmt.Fprintf(out, "Event: %s\n", event)
		if !env.resolver.Known(event) {
			fmt.Fprintf(out, "  (unknown event, using default tasks)\n")
		}
		printPlan(out, plan)
		fmt.Fprintf(out, "\nDry-run mode: no tasks were executed.\n")
		return nil
	}

	return orchestrate(cmd, env, func(ctx context.Context, s *session) (*models.OrchestrationResult, error) {
		return s.orch.AutoOrchestrate(ctx, event, params)
	})
}

// execCommand implements the exec command logic
func execCommand(cmd *cobra.Command, _ []string) error {
	values, _ := cmd.Flags().GetStringArray("wave")
	waves, err := parseWaves(values)
	if err != nil {
		return err
	}

	env, params, err := prepare(cmd)
	if err != nil {
		return err
	}

	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		plan, err := executor.PlanFromWaves(env.registry, waves)
		if err != nil {
			return fmt.Errorf("planning explicit waves: %w", err)
		}
		printPlan(cmd.OutOrStdout(), plan)
		fmt.Fprintf(cmd.OutOrStdout(), "\nDry-run mode: no tasks were executed.\n")
		return nil
	}

	return orchestrate(cmd, env, func(ctx context.Context, s *session) (*models.OrchestrationResult, error) {
		return s.orch.SmartExecute(ctx, waves, params)
	})
}

// orchestrate runs fn inside a session that stops on SIGINT or SIGTERM,
// then writes the report and metrics textfile. An unsuccessful result is
// returned as an error so the process exits non-zero.
func orchestrate(cmd *cobra.Command, env *environment, fn func(context.Context, *session) (*models.OrchestrationResult, error)) error {
	out := cmd.OutOrStdout()

	s, err := env.newSession(out)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := fn(ctx, s)
	if err != nil {
		return err
	}

	if reportPath, _ := cmd.Flags().GetString("report"); reportPath != "" {
		if err := report.WriteJSON(reportPath, result); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		fmt.Fprintf(out, "Report written to %s\n", reportPath)
	}

	if textfile := env.cfg.Metrics.Textfile; textfile != "" {
		if err := s.collector.WriteTextfile(textfile); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}

	fmt.Fprintf(out, "Logs: %s\n", s.fileLog.Path())

	if !result.Success {
		if ctx.Err() != nil {
			return fmt.Errorf("orchestration interrupted")
		}
		return fmt.Errorf("orchestration failed: %d task(s) failed", len(result.FailedTasks))
	}
	return nil
}
