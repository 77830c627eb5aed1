// Package logger provides logging implementations for ccom orchestration.
//
// ConsoleLogger writes human-readable progress to a terminal; FileLogger
// writes structured JSON lines through zap. Both implement executor.Logger
// and are safe for concurrent use.
package logger

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/debashishroy00/ccom/internal/models"
)

// ConsoleLogger logs orchestration progress to a writer with timestamps.
// All output is prefixed with [HH:MM:SS]. Color output is enabled when the
// writer is a terminal and NO_COLOR is unset.
type ConsoleLogger struct {
	writer      io.Writer
	logLevel    string
	mutex       sync.Mutex
	colorOutput bool
}

// NewConsoleLogger creates a ConsoleLogger that writes to the provided io.Writer.
// If writer is nil, messages are silently discarded.
// Valid levels: trace, debug, info, warn, error (case-insensitive); anything
// else selects info.
func NewConsoleLogger(writer io.Writer, logLevel string) *ConsoleLogger {
	return &ConsoleLogger{
		writer:      writer,
		logLevel:    normalizeLogLevel(logLevel),
		colorOutput: isTerminal(writer),
	}
}

// isTerminal reports whether w is a TTY that should receive colors.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (cl *ConsoleLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(cl.logLevel)
}

func (cl *ConsoleLogger) paint(attr color.Attribute, s string) string {
	if !cl.colorOutput {
		return s
	}
	c := color.New(attr)
	c.EnableColor()
	return c.Sprint(s)
}

// LogDebug logs a debug-level message.
func (cl *ConsoleLogger) LogDebug(message string) {
	cl.logWithLevel("DEBUG", message)
}

// LogInfo logs an info-level message.
func (cl *ConsoleLogger) LogInfo(message string) {
	cl.logWithLevel("INFO", message)
}

// LogWarn logs a warning-level message.
func (cl *ConsoleLogger) LogWarn(message string) {
	cl.logWithLevel("WARN", message)
}

// LogError logs an error-level message.
func (cl *ConsoleLogger) LogError(message string) {
	cl.logWithLevel("ERROR", message)
}

func (cl *ConsoleLogger) logWithLevel(level string, message string) {
	if cl.writer == nil || !cl.shouldLog(strings.ToLower(level)) {
		return
	}

	label := level
	switch level {
	case "DEBUG":
		label = cl.paint(color.FgCyan, level)
	case "INFO":
		label = cl.paint(color.FgBlue, level)
	case "WARN":
		label = cl.paint(color.FgYellow, level)
	case "ERROR":
		label = cl.paint(color.FgRed, level)
	}

	cl.write(fmt.Sprintf("[%s] [%s] %s\n", timestamp(), label, message))
}

func (cl *ConsoleLogger) write(s string) {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()
	_, _ = io.WriteString(cl.writer, s)
}

// LogWaveStart logs the start of a wave at INFO level.
// Format: "[HH:MM:SS] Starting <name>: <count> tasks (a, b)"
func (cl *ConsoleLogger) LogWaveStart(wave models.Wave) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}
	cl.write(fmt.Sprintf("[%s] Starting %s: %d tasks (%s)\n",
		timestamp(), cl.paint(color.Bold, wave.Name), len(wave.Tasks), strings.Join(wave.Tasks, ", ")))
}

// LogWaveComplete logs the completion of a wave at INFO level.
// Format: "[HH:MM:SS] <name> complete (<duration>) - <ok>/<total> succeeded"
func (cl *ConsoleLogger) LogWaveComplete(wave models.Wave, duration time.Duration, results []models.TaskResult) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}

	status := cl.paint(color.FgGreen, "complete")
	if succeeded < len(results) {
		status = cl.paint(color.FgYellow, "complete")
	}
	cl.write(fmt.Sprintf("[%s] %s %s (%s) - %d/%d succeeded\n",
		timestamp(), cl.paint(color.Bold, wave.Name), status, formatDuration(duration), succeeded, len(results)))
}

// LogTaskResult logs a task outcome at DEBUG level; failures are always
// shown at WARN level.
// Format: "[HH:MM:SS] Task <name>: <status> via <backend> (<duration>)"
func (cl *ConsoleLogger) LogTaskResult(result models.TaskResult) error {
	if cl.writer == nil {
		return nil
	}
	level := "debug"
	if !result.Success {
		level = "warn"
	}
	if !cl.shouldLog(level) {
		return nil
	}

	var statusText string
	switch result.Status {
	case models.StatusSuccess:
		statusText = cl.paint(color.FgGreen, string(result.Status))
	case models.StatusFailed, models.StatusTimeout:
		statusText = cl.paint(color.FgRed, string(result.Status))
	case models.StatusBlocked:
		statusText = cl.paint(color.FgHiBlack, string(result.Status))
	default:
		statusText = string(result.Status)
	}

	line := fmt.Sprintf("[%s] Task %s: %s", timestamp(), result.Task, statusText)
	if result.BackendUsed != "" {
		line += fmt.Sprintf(" via %s (%s)", result.BackendUsed, formatDuration(result.Duration))
	}
	if result.Message != "" && !result.Success {
		line += " - " + firstLine(result.Message)
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()
	_, err := io.WriteString(cl.writer, line+"\n")
	return err
}

// LogSummary logs the orchestration summary at INFO level.
func (cl *ConsoleLogger) LogSummary(result models.OrchestrationResult) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	ts := timestamp()
	var sb strings.Builder

	outcome := cl.paint(color.FgGreen, "SUCCESS")
	if !result.Success {
		outcome = cl.paint(color.FgRed, "FAILED")
	}

	fmt.Fprintf(&sb, "[%s] %s\n", ts, cl.paint(color.Bold, "=== Orchestration Summary ==="))
	if result.Event != "" {
		fmt.Fprintf(&sb, "[%s] Event: %s\n", ts, result.Event)
	}
	fmt.Fprintf(&sb, "[%s] Run: %s\n", ts, result.RunID)
	fmt.Fprintf(&sb, "[%s] Result: %s\n", ts, outcome)
	fmt.Fprintf(&sb, "[%s] Tasks: %d executed, %d failed, %d blocked\n",
		ts, result.ExecutedCount(), len(result.FailedTasks), len(result.BlockedTasks))
	fmt.Fprintf(&sb, "[%s] Duration: %s\n", ts, formatDuration(result.TotalDuration))
	fmt.Fprintf(&sb, "[%s] Parallel efficiency: %.0f%%\n", ts, result.ParallelEfficiency)

	if len(result.FailedTasks) > 0 {
		fmt.Fprintf(&sb, "[%s] %s\n", ts, cl.paint(color.FgRed, "Failed tasks:"))
		for _, name := range result.FailedTasks {
			res := result.Results[name]
			fmt.Fprintf(&sb, "[%s]   - %s: %s\n", ts, name, res.Status)
		}
	}
	if len(result.BlockingGates) > 0 {
		gates := append([]string(nil), result.BlockingGates...)
		sort.Strings(gates)
		fmt.Fprintf(&sb, "[%s] Blocking gates: %s\n", ts, strings.Join(gates, ", "))
	}
	if len(result.Recommendations) > 0 {
		fmt.Fprintf(&sb, "[%s] Recommendations:\n", ts)
		for _, rec := range result.Recommendations {
			fmt.Fprintf(&sb, "[%s]   * %s\n", ts, rec)
		}
	}

	cl.write(sb.String())
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// NoOpLogger is a Logger implementation that discards all log messages.
type NoOpLogger struct{}

// NewNoOpLogger creates a NoOpLogger instance.
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

// LogWaveStart is a no-op implementation.
func (n *NoOpLogger) LogWaveStart(models.Wave) {}

// LogWaveComplete is a no-op implementation.
func (n *NoOpLogger) LogWaveComplete(models.Wave, time.Duration, []models.TaskResult) {}

// LogTaskResult is a no-op implementation.
func (n *NoOpLogger) LogTaskResult(models.TaskResult) error { return nil }

// LogSummary is a no-op implementation.
func (n *NoOpLogger) LogSummary(models.OrchestrationResult) {}
