// Package report holds the terminal record of one task execution: the
// per-attempt log appended live as NDJSON and the final execution report
// written once, atomically. The queue file only carries a short error
// summary; everything larger lands here.
package report

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/smartdio/cursor-flow/internal/fsutil"
	"github.com/smartdio/cursor-flow/internal/ndjson"
)

// Conclusion classifies how one attempt ended.
type Conclusion string

const (
	ConclusionCompleted             Conclusion = "completed"
	ConclusionNeedsContinuation     Conclusion = "needs_continuation"
	ConclusionSuggestedContinuation Conclusion = "suggested_continuation"
	ConclusionRuntimeError          Conclusion = "runtime_error"
	ConclusionExecutionError        Conclusion = "execution_error"
)

// FinalStatus is the terminal state of one task execution.
type FinalStatus string

const (
	StatusDone    FinalStatus = "done"
	StatusPartial FinalStatus = "partial"
	StatusError   FinalStatus = "error"
)

// Attempt records one invoke-then-judge cycle. Never mutated once appended.
type Attempt struct {
	Index      int        `json:"index"`
	DurationMs int64      `json:"duration_ms"`
	Conclusion Conclusion `json:"conclusion"`
	SessionID  string     `json:"session_id,omitempty"`
	Notes      []string   `json:"notes,omitempty"`
}

// ExecutionReport is the terminal output of one controller run.
type ExecutionReport struct {
	TaskID       string      `json:"task_id"`
	Success      bool        `json:"success"`
	Attempts     int         `json:"attempts"`
	FinalStatus  FinalStatus `json:"final_status"`
	AttemptLog   []Attempt   `json:"attempt_log"`
	ErrorMessage string      `json:"error_message,omitempty"`
}

// attemptRecord is the shape appended to the NDJSON attempt log.
type attemptRecord struct {
	TaskID     string `json:"task_id"`
	OccurredAt string `json:"occurred_at"`
	Attempt
}

// Log appends attempt records to an NDJSON file as they happen, so progress
// survives a crash even before the final report is written.
type Log struct {
	file    *os.File
	encoder *ndjson.Encoder
	logger  *slog.Logger
	mu      sync.Mutex
}

// NewLog opens (or creates) the attempt log at logPath for appending.
func NewLog(logPath string, logger *slog.Logger) (*Log, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dir := filepath.Dir(logPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open attempt log: %w", err)
	}

	return &Log{
		file:    file,
		encoder: ndjson.NewEncoder(file, logger),
		logger:  logger,
	}, nil
}

// WriteAttempt appends one attempt record.
func (l *Log) WriteAttempt(taskID string, attempt Attempt) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.encoder.Encode(attemptRecord{
		TaskID:     taskID,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
		Attempt:    attempt,
	})
}

// Close closes the attempt log file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Write persists the final report atomically under dir and returns its path.
func Write(dir, taskID string, rep *ExecutionReport) (string, error) {
	path := filepath.Join(dir, taskID+".report.json")
	if err := fsutil.AtomicWriteJSON(path, rep); err != nil {
		return "", fmt.Errorf("failed to write report for task %s: %w", taskID, err)
	}
	return path, nil
}
