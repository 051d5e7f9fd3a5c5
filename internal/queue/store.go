package queue

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/smartdio/cursor-flow/internal/fsutil"
)

// Store owns the queue file on disk. The runner is its sole writer; every
// mutation is flushed atomically before the next task starts, so a crash
// loses at most the in-flight attempt.
type Store struct {
	path   string
	queue  *Queue
	logger *slog.Logger
}

// Load reads and validates the queue file. A validation failure aborts the
// whole run; no partial validation is attempted.
func Load(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue file %s: %w", path, err)
	}

	q, err := Parse(data, filepath.Dir(path))
	if err != nil {
		return nil, err
	}

	logger.Info("queue loaded", "path", path, "tasks", len(q.Tasks), "pending", len(q.Pending()))
	return &Store{path: path, queue: q, logger: logger}, nil
}

// Queue returns the in-memory queue document.
func (s *Store) Queue() *Queue {
	return s.queue
}

// Path returns the queue file location.
func (s *Store) Path() string {
	return s.path
}

// BaseDir returns the directory containing the queue file. Relative spec
// file references resolve against it.
func (s *Store) BaseDir() string {
	return filepath.Dir(s.path)
}

// MarkDone records a task as completed and persists the queue.
func (s *Store) MarkDone(taskID, reportPath string) error {
	task := s.queue.task(taskID)
	if task == nil {
		return fmt.Errorf("task %q not found", taskID)
	}
	task.Status = StatusDone
	task.ErrorMessage = ""
	task.ReportPath = reportPath
	return s.flush()
}

// MarkError records a task as failed with a truncated error summary and
// persists the queue.
func (s *Store) MarkError(taskID, message, reportPath string) error {
	task := s.queue.task(taskID)
	if task == nil {
		return fmt.Errorf("task %q not found", taskID)
	}
	task.Status = StatusError
	task.ErrorMessage = truncateError(message)
	task.ReportPath = reportPath
	return s.flush()
}

// Reset returns a finished task to pending so an operator can re-run it.
func (s *Store) Reset(taskID string) error {
	task := s.queue.task(taskID)
	if task == nil {
		return fmt.Errorf("task %q not found", taskID)
	}
	task.Status = StatusPending
	task.ErrorMessage = ""
	task.ReportPath = ""
	return s.flush()
}

func (s *Store) flush() error {
	if err := fsutil.AtomicWriteJSON(s.path, s.queue); err != nil {
		return fmt.Errorf("failed to persist queue: %w", err)
	}
	return nil
}
