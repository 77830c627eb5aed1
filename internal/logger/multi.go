package logger

import (
	"errors"
	"time"

	"github.com/debashishroy00/ccom/internal/executor"
	"github.com/debashishroy00/ccom/internal/models"
)

// MultiLogger fans every call out to several loggers.
type MultiLogger struct {
	loggers []executor.Logger
}

// NewMultiLogger returns a MultiLogger over the non-nil loggers given.
func NewMultiLogger(loggers ...executor.Logger) *MultiLogger {
	m := &MultiLogger{}
	for _, l := range loggers {
		if l != nil {
			m.loggers = append(m.loggers, l)
		}
	}
	return m
}

// LogWaveStart implements executor.Logger.
func (m *MultiLogger) LogWaveStart(wave models.Wave) {
	for _, l := range m.loggers {
		l.LogWaveStart(wave)
	}
}

// LogWaveComplete implements executor.Logger.
func (m *MultiLogger) LogWaveComplete(wave models.Wave, duration time.Duration, results []models.TaskResult) {
	for _, l := range m.loggers {
		l.LogWaveComplete(wave, duration, results)
	}
}

// LogTaskResult implements executor.Logger and joins any errors.
func (m *MultiLogger) LogTaskResult(result models.TaskResult) error {
	var errs []error
	for _, l := range m.loggers {
		if err := l.LogTaskResult(result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSummary implements executor.Logger.
func (m *MultiLogger) LogSummary(result models.OrchestrationResult) {
	for _, l := range m.loggers {
		l.LogSummary(result)
	}
}
