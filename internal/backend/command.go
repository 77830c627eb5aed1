package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/debashishroy00/ccom/internal/models"
)

// ErrNoCommand is raised when no command is configured for a task.
var ErrNoCommand = errors.New("no command configured for task")

// DefaultNativeCommands returns the built-in native command table.
func DefaultNativeCommands() map[string]string {
	return map[string]string{
		"quality":       "npx eslint .",
		"security":      "npm audit --audit-level=high",
		"accessibility": "npx pa11y-ci",
		"performance":   "npx lhci autorun",
		"test":          "npm test",
		"build":         "npm run build",
		"deploy":        "npm run deploy",
		"monitor":       "npm run monitor",
	}
}

// LegacyAgentCommand is the command used for a task when the legacy table
// has no explicit entry.
func LegacyAgentCommand(task string) string {
	return fmt.Sprintf("node .claude/agents/%s.js", task)
}

// TaskReport is the JSON document a task command may print on stdout to
// report a structured result.
type TaskReport struct {
	Success  *bool              `json:"success"`
	Message  string             `json:"message"`
	Errors   []string           `json:"errors"`
	Warnings []string           `json:"warnings"`
	Metrics  map[string]float64 `json:"metrics"`
}

// CommandBackend runs a shell command per task.
type CommandBackend struct {
	Commands map[string]string
	Fallback func(task string) string // consulted when Commands has no entry
	Shell    string                   // defaults to "sh"
	Dir      string
	Env      []string
}

// NewNativeBackend returns a CommandBackend over commands, or the built-in
// native table when commands is empty.
func NewNativeBackend(commands map[string]string) *CommandBackend {
	if len(commands) == 0 {
		commands = DefaultNativeCommands()
	}
	return &CommandBackend{Commands: commands}
}

// NewLegacyBackend returns a CommandBackend that uses commands and resolves
// any other task to its legacy agent script.
func NewLegacyBackend(commands map[string]string) *CommandBackend {
	return &CommandBackend{Commands: commands, Fallback: LegacyAgentCommand}
}

// CommandFor returns the command line configured for task.
func (b *CommandBackend) CommandFor(task string) string {
	if cmd := strings.TrimSpace(b.Commands[task]); cmd != "" {
		return cmd
	}
	if b.Fallback != nil {
		return b.Fallback(task)
	}
	return ""
}

// Invoke runs the task's command. A missing command, a failure to start the
// process, or cancellation of ctx is returned as an error. Once the command
// has run, its result is reported through the TaskResult.
func (b *CommandBackend) Invoke(ctx context.Context, task string, params map[string]any) (models.TaskResult, error) {
	cmdline := b.CommandFor(task)
	if cmdline == "" {
		return models.TaskResult{}, fmt.Errorf("%s: %w", task, ErrNoCommand)
	}

	shell := b.Shell
	if shell == "" {
		shell = "sh"
	}

	cmd := exec.CommandContext(ctx, shell, "-c", cmdline)
	cmd.Dir = b.Dir
	cmd.Env = append(os.Environ(), b.Env...)
	cmd.Env = append(cmd.Env, "CCOM_TASK="+task)
	if len(params) > 0 {
		encoded, err := json.Marshal(params)
		if err != nil {
			return models.TaskResult{}, fmt.Errorf("failed to encode params: %w", err)
		}
		cmd.Env = append(cmd.Env, "CCOM_PARAMS="+string(encoded))
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	if ctx.Err() != nil {
		return models.TaskResult{}, fmt.Errorf("%s: %w", task, ctx.Err())
	}

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return models.TaskResult{}, fmt.Errorf("failed to run %q: %w", cmdline, runErr)
		}
		exitCode = exitErr.ExitCode()
	}

	result := ParseOutput(stdout.String(), exitCode)
	result.Duration = duration
	if exitCode != 0 {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			result.Errors = append(result.Errors, msg)
		}
	}
	return result, nil
}

// ParseOutput converts command output into a TaskResult. Output that decodes
// as a TaskReport with a success field is used as-is; anything else is kept
// as the message and success follows the exit code.
func ParseOutput(output string, exitCode int) models.TaskResult {
	trimmed := strings.TrimSpace(output)

	var report TaskReport
	if strings.HasPrefix(trimmed, "{") && json.Unmarshal([]byte(trimmed), &report) == nil && report.Success != nil {
		return models.TaskResult{
			Success:  *report.Success,
			Message:  report.Message,
			Errors:   report.Errors,
			Warnings: report.Warnings,
			Metrics:  report.Metrics,
		}
	}

	result := models.TaskResult{
		Success: exitCode == 0,
		Message: trimmed,
	}
	if exitCode != 0 {
		result.Errors = []string{fmt.Sprintf("exit status %d", exitCode)}
	}
	return result
}
