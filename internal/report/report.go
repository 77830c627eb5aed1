// Package report writes orchestration results to disk for other tools to
// pick up.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/gofrs/flock"

	"github.com/debashishroy00/ccom/internal/models"
)

// Lock wraps a flock advisory lock.
type Lock struct {
	flock *flock.Flock
	path  string
}

// NewLock creates a lock backed by the file at path.
func NewLock(path string) *Lock {
	return &Lock{
		flock: flock.New(path),
		path:  path,
	}
}

// Lock acquires the lock, blocking until it is available.
func (l *Lock) Lock() error {
	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock on %s: %w", l.path, err)
	}
	return nil
}

// Unlock releases the lock.
func (l *Lock) Unlock() error {
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock on %s: %w", l.path, err)
	}
	return nil
}

// Document is the on-disk shape of a run report.
type Document struct {
	models.OrchestrationResult
	TotalDurationMs int64          `json:"total_duration_ms"`
	Waves           [][]string     `json:"waves,omitempty"`
	Tasks           []TaskDocument `json:"tasks"`
}

// TaskDocument is a task result with its duration in milliseconds, listed in
// plan order.
type TaskDocument struct {
	models.TaskResult
	DurationMs int64 `json:"duration_ms"`
}

// NewDocument builds the report document for result.
func NewDocument(result *models.OrchestrationResult) Document {
	doc := Document{
		OrchestrationResult: *result,
		TotalDurationMs:     result.TotalDurationMs(),
	}

	var order []string
	if result.Plan != nil {
		for _, wave := range result.Plan.Waves {
			doc.Waves = append(doc.Waves, append([]string(nil), wave.Tasks...))
		}
		order = result.Plan.TaskNames()
	}

	seen := make(map[string]bool, len(result.Results))
	for _, name := range order {
		if res, ok := result.Results[name]; ok && !seen[name] {
			seen[name] = true
			doc.Tasks = append(doc.Tasks, TaskDocument{TaskResult: res, DurationMs: res.DurationMs()})
		}
	}

	var rest []string
	for name := range result.Results {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		res := result.Results[name]
		doc.Tasks = append(doc.Tasks, TaskDocument{TaskResult: res, DurationMs: res.DurationMs()})
	}

	return doc
}

// WriteJSON writes result to path as indented JSON. The write holds
// <path>.lock and replaces the file atomically.
func WriteJSON(path string, result *models.OrchestrationResult) error {
	if result == nil {
		return fmt.Errorf("report: nil result")
	}

	data, err := json.MarshalIndent(NewDocument(result), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	data = append(data, '\n')

	return LockAndWrite(path, data)
}

// ReadJSON loads a report previously written by WriteJSON.
func ReadJSON(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse report %s: %w", path, err)
	}
	return &doc, nil
}

// LockAndWrite acquires <path>.lock, writes data atomically and releases
// the lock.
func LockAndWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	lock := NewLock(path + ".lock")
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	return AtomicWrite(path, data)
}

// AtomicWrite writes data to a temp file in the target directory and renames
// it over path, so readers never observe a partial report.
func AtomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tempFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	defer func() {
		if tempFile != nil {
			tempFile.Close()
			os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tempPath, 0644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", path, err)
	}

	tempFile = nil
	return nil
}
