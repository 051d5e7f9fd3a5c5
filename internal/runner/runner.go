// Package runner walks the task queue in order, executing each pending task
// through the controller and persisting its outcome before moving on. One
// failed task never aborts the run; the queue file records it and the walk
// continues.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/smartdio/cursor-flow/internal/fsutil"
	"github.com/smartdio/cursor-flow/internal/queue"
	"github.com/smartdio/cursor-flow/internal/report"
	"github.com/smartdio/cursor-flow/internal/telemetry"
)

// maxSpecFileBytes bounds how much of a referenced spec file is inlined into
// the prompt.
const maxSpecFileBytes = 1 << 20

// Executor runs one task to its terminal state. Satisfied by
// *controller.Controller.
type Executor interface {
	Execute(ctx context.Context, taskID, prompt string) *report.ExecutionReport
}

// Summary tallies one queue run.
type Summary struct {
	Executed int
	Done     int
	Partial  int
	Errored  int
}

// Runner executes the pending tasks of one queue.
type Runner struct {
	store     *queue.Store
	executor  Executor
	reportDir string
	logger    *slog.Logger
	telemetry telemetry.Sink
	queueID   string
}

// New creates a runner. Reports land under reportDir, one file per task.
func New(store *queue.Store, executor Executor, reportDir, queueID string, sink telemetry.Sink, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = telemetry.NewNoop()
	}
	return &Runner{
		store:     store,
		executor:  executor,
		reportDir: reportDir,
		logger:    logger,
		telemetry: sink,
		queueID:   queueID,
	}
}

// Run executes every pending task in queue order. Each task's terminal state
// is flushed to the queue file before the next task starts. A canceled
// context stops the walk between tasks.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	pending := r.store.Queue().Pending()
	summary := &Summary{}

	r.logger.Info("queue run starting", "queue_id", r.queueID, "pending", len(pending))
	r.telemetry.Progress(r.queueID, "", fmt.Sprintf("queue run starting with %d pending tasks", len(pending)))

	for _, task := range pending {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("queue run interrupted: %w", err)
		}

		r.logger.Info("task starting", "task_id", task.ID, "name", task.Name)
		r.runTask(ctx, task, summary)
		summary.Executed++
	}

	r.logger.Info("queue run finished",
		"executed", summary.Executed,
		"done", summary.Done,
		"partial", summary.Partial,
		"errored", summary.Errored)
	r.telemetry.Progress(r.queueID, "", fmt.Sprintf(
		"queue run finished: %d executed, %d done, %d partial, %d errored",
		summary.Executed, summary.Done, summary.Partial, summary.Errored))
	return summary, nil
}

func (r *Runner) runTask(ctx context.Context, task *queue.Task, summary *Summary) {
	prompt, err := r.assemblePrompt(task)
	if err != nil {
		r.logger.Error("prompt assembly failed", "task_id", task.ID, "error", err)
		r.markError(task.ID, err.Error(), "")
		summary.Errored++
		return
	}

	rep := r.executor.Execute(ctx, task.ID, prompt)

	reportPath, err := report.Write(r.reportDir, task.ID, rep)
	if err != nil {
		// The execution outcome still reaches the queue file even when the
		// report artifact cannot be written.
		r.logger.Error("report write failed", "task_id", task.ID, "error", err)
	}

	switch rep.FinalStatus {
	case report.StatusDone:
		r.markDone(task.ID, reportPath)
		summary.Done++
	case report.StatusPartial:
		// A partially-done task made real progress and already burned its
		// whole retry budget; re-running it from scratch would discard that
		// work, so it leaves the pending set. The report keeps the partial
		// verdict for the operator.
		r.markDone(task.ID, reportPath)
		summary.Partial++
	default:
		r.markError(task.ID, rep.ErrorMessage, reportPath)
		summary.Errored++
	}
}

// assemblePrompt builds the initial prompt: shared prompt material first,
// then the task's own prompt, then the contents of each referenced spec file.
func (r *Runner) assemblePrompt(task *queue.Task) (string, error) {
	var parts []string

	for _, shared := range r.store.Queue().SharedPrompts {
		if s := strings.TrimSpace(shared); s != "" {
			parts = append(parts, s)
		}
	}
	if p := strings.TrimSpace(task.Prompt); p != "" {
		parts = append(parts, p)
	}

	for _, spec := range task.SpecFiles {
		path := spec
		if !filepath.IsAbs(path) {
			path = filepath.Join(r.store.BaseDir(), path)
		}
		content, err := fsutil.ReadFileLimited(path, maxSpecFileBytes)
		if err != nil {
			return "", fmt.Errorf("failed to read spec file %s: %w", spec, err)
		}
		parts = append(parts, fmt.Sprintf("--- %s ---\n%s", spec, strings.TrimSpace(string(content))))
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("task %q produced an empty prompt", task.ID)
	}
	return strings.Join(parts, "\n\n"), nil
}

func (r *Runner) markDone(taskID, reportPath string) {
	if err := r.store.MarkDone(taskID, reportPath); err != nil {
		r.logger.Error("failed to mark task done", "task_id", taskID, "error", err)
	}
}

func (r *Runner) markError(taskID, message, reportPath string) {
	if err := r.store.MarkError(taskID, message, reportPath); err != nil {
		r.logger.Error("failed to mark task errored", "task_id", taskID, "error", err)
	}
}
