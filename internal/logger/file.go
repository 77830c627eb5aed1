package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/debashishroy00/ccom/internal/models"
)

// FileLogger writes JSON-lines run logs to <dir>/run-<timestamp>.log and
// keeps <dir>/latest.log pointing at the most recent run.
type FileLogger struct {
	logDir  string
	runFile string
	file    *os.File
	zlog    *zap.Logger
	mu      sync.Mutex
	closed  bool
}

// NewFileLogger creates the log directory if needed, opens a new run log and
// updates the latest.log symlink.
func NewFileLogger(logDir string, logLevel string) (*FileLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	stamp := time.Now().Format("20060102-150405.000")
	runFile := filepath.Join(logDir, fmt.Sprintf("run-%s.log", stamp))

	file, err := os.OpenFile(runFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log file: %w", err)
	}

	symlinkPath := filepath.Join(logDir, "latest.log")
	if _, err := os.Lstat(symlinkPath); err == nil {
		if err := os.Remove(symlinkPath); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to remove old symlink: %w", err)
		}
	}
	if err := os.Symlink(filepath.Base(runFile), symlinkPath); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create symlink: %w", err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeDuration = zapcore.MillisDurationEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.AddSync(file),
		zap.NewAtomicLevelAt(ZapLevel(logLevel)),
	)

	return &FileLogger{
		logDir:  logDir,
		runFile: runFile,
		file:    file,
		zlog:    zap.New(core),
	}, nil
}

// Path returns the run log path.
func (fl *FileLogger) Path() string {
	return fl.runFile
}

// Zap returns the underlying zap logger for internal diagnostics.
func (fl *FileLogger) Zap() *zap.Logger {
	return fl.zlog
}

// LogWaveStart implements executor.Logger.
func (fl *FileLogger) LogWaveStart(wave models.Wave) {
	fl.zlog.Info("wave started",
		zap.String("wave", wave.Name),
		zap.Strings("tasks", wave.Tasks))
}

// LogWaveComplete implements executor.Logger.
func (fl *FileLogger) LogWaveComplete(wave models.Wave, duration time.Duration, results []models.TaskResult) {
	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	fl.zlog.Info("wave completed",
		zap.String("wave", wave.Name),
		zap.Duration("duration", duration),
		zap.Int("succeeded", succeeded),
		zap.Int("total", len(results)))
}

// LogTaskResult implements executor.Logger.
func (fl *FileLogger) LogTaskResult(result models.TaskResult) error {
	fields := []zap.Field{
		zap.String("task", result.Task),
		zap.String("status", string(result.Status)),
		zap.Bool("success", result.Success),
		zap.String("backend", string(result.BackendUsed)),
		zap.Duration("duration", result.Duration),
	}
	if result.Message != "" {
		fields = append(fields, zap.String("message", result.Message))
	}
	if len(result.Errors) > 0 {
		fields = append(fields, zap.Strings("errors", result.Errors))
	}
	if len(result.Warnings) > 0 {
		fields = append(fields, zap.Strings("warnings", result.Warnings))
	}
	if len(result.Metrics) > 0 {
		fields = append(fields, zap.Any("metrics", result.Metrics))
	}
	if len(result.Gates) > 0 {
		fields = append(fields, zap.Any("gates", result.Gates))
	}

	if result.Success {
		fl.zlog.Debug("task result", fields...)
	} else {
		fl.zlog.Warn("task result", fields...)
	}
	return nil
}

// LogSummary implements executor.Logger.
func (fl *FileLogger) LogSummary(result models.OrchestrationResult) {
	fl.zlog.Info("orchestration summary",
		zap.String("run_id", result.RunID),
		zap.String("event", result.Event),
		zap.Bool("success", result.Success),
		zap.Duration("duration", result.TotalDuration),
		zap.Float64("parallel_efficiency", result.ParallelEfficiency),
		zap.Int("executed", result.ExecutedCount()),
		zap.Strings("failed_tasks", result.FailedTasks),
		zap.Strings("blocked_tasks", result.BlockedTasks),
		zap.Strings("blocking_gates", result.BlockingGates),
		zap.Strings("recommendations", result.Recommendations))
}

// Close flushes and closes the run log. It is safe to call more than once.
func (fl *FileLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.closed {
		return nil
	}
	fl.closed = true
	_ = fl.zlog.Sync()
	return fl.file.Close()
}
