package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/debashishroy00/ccom/internal/audit"
	"github.com/debashishroy00/ccom/internal/backend"
	"github.com/debashishroy00/ccom/internal/config"
	"github.com/debashishroy00/ccom/internal/executor"
	"github.com/debashishroy00/ccom/internal/logger"
	"github.com/debashishroy00/ccom/internal/metrics"
	"github.com/debashishroy00/ccom/internal/models"
	"github.com/debashishroy00/ccom/internal/quality"
	"github.com/debashishroy00/ccom/internal/registry"
	"github.com/debashishroy00/ccom/internal/trigger"
)

// environment is the configuration and task tables shared by subcommands.
type environment struct {
	cfg      *config.Config
	registry *registry.Registry
	resolver *trigger.Resolver
	native   map[string]string
	legacy   map[string]string
	gates    []models.QualityGate
}

// loadConfig loads the config file named by --config (or the default path)
// and applies the persistent logging flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
	} else {
		path, err := config.DefaultConfigPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path: %w", err)
		}
		configPath = path
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	var logLevelPtr *string
	if cmd.Flags().Changed("log-level") {
		level, _ := cmd.Flags().GetString("log-level")
		logLevelPtr = &level
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		debug := "debug"
		logLevelPtr = &debug
	}
	cfg.MergeWithFlags(nil, nil, nil, nil, nil, logLevelPtr)

	return cfg, nil
}

// loadEnvironment resolves the task registry, trigger table and gates from
// the definitions file when one is configured.
func loadEnvironment(cfg *config.Config) (*environment, error) {
	env := &environment{
		cfg:      cfg,
		registry: registry.Default(),
		gates:    quality.DefaultGates(),
	}

	var (
		table    map[string][]string
		fallback []string
	)
	if cfg.Definitions.File != "" {
		defs, err := registry.LoadDefinitions(cfg.Definitions.File)
		if err != nil {
			return nil, err
		}
		env.registry = defs.Registry
		env.native = defs.NativeCommands
		env.legacy = defs.LegacyCommands
		table = defs.Triggers
		fallback = defs.DefaultTrigger
		if defs.Gates != nil {
			env.gates = defs.Gates
		}
	}

	resolver, err := trigger.New(table, fallback)
	if err != nil {
		return nil, fmt.Errorf("invalid trigger table: %w", err)
	}
	env.resolver = resolver
	return env, nil
}

// session is one orchestrator wired to its loggers and observers.
type session struct {
	orch      *executor.Orchestrator
	collector *metrics.Collector
	fileLog   *logger.FileLogger
	closers   []func() error
}

// newSession builds an orchestrator that logs to out and to the run log
// directory, exports Prometheus metrics and, when enabled, appends to the
// audit database.
func (e *environment) newSession(out io.Writer) (*session, error) {
	cfg := e.cfg
	mode, err := cfg.BackendMode()
	if err != nil {
		return nil, err
	}

	s := &session{}

	fileLog, err := logger.NewFileLogger(cfg.Log.Dir, cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to create file logger: %w", err)
	}
	s.fileLog = fileLog
	s.closers = append(s.closers, fileLog.Close)

	s.collector = metrics.NewCollector(prometheus.NewRegistry())
	observers := []executor.RunObserver{s.collector}

	if cfg.Audit.Enabled {
		store, err := audit.Open(cfg.Audit.DBPath)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to open audit database: %w", err)
		}
		s.closers = append(s.closers, store.Close)
		observers = append(observers, store)
	}

	orchCfg := executor.Config{
		MaxParallelism:  cfg.Orchestrator.MaxParallelism,
		DefaultTimeout:  cfg.Orchestrator.DefaultTimeout,
		FallbackEnabled: cfg.Orchestrator.FallbackEnabled,
		HistorySize:     cfg.Orchestrator.HistorySize,
		Mode:            mode,
		Gates:           e.gates,
	}

	orch, err := executor.New(orchCfg, executor.Dependencies{
		Registry:    e.registry,
		Resolver:    e.resolver,
		Native:      backend.NewNativeBackend(e.native),
		Legacy:      backend.NewLegacyBackend(e.legacy),
		Logger:      logger.NewMultiLogger(logger.NewConsoleLogger(out, cfg.Log.Level), fileLog),
		Diagnostics: fileLog.Zap(),
		Observers:   observers,
		OnFallback:  s.collector.ObserveFallback,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}
	s.orch = orch
	return s, nil
}

// Close releases the session's files in reverse order of opening.
func (s *session) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// printPlan writes the waves of plan and its estimated duration.
func printPlan(w io.Writer, plan *models.ExecutionPlan) {
	fmt.Fprintf(w, "Execution waves: %d\n", len(plan.Waves))
	for _, wave := range plan.Waves {
		fmt.Fprintf(w, "  %s: %s\n", wave.Name, strings.Join(wave.Tasks, ", "))
	}
	fmt.Fprintf(w, "Estimated duration: %s\n", plan.EstimatedDuration.Round(time.Second))
}
