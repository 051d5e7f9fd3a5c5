// Package queue models the persisted task queue: an ordered list of tasks
// with shared prompt material, processed strictly sequentially. The queue
// file is the durable source of truth for task lifecycle status.
package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// MaxTaskIDLength bounds task identifiers.
const MaxTaskIDLength = 255

// maxErrorMessageLength bounds the persisted per-task error summary. Larger
// diagnostics belong in the report artifact, not the queue file.
const maxErrorMessageLength = 500

// Task is one unit of work in the queue.
type Task struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Prompt       string   `json:"prompt,omitempty"`
	SpecFiles    []string `json:"spec_files,omitempty"`
	Status       Status   `json:"status"`
	ErrorMessage string   `json:"error_message,omitempty"`
	ReportPath   string   `json:"report_path,omitempty"`
}

// Queue is the parsed queue document.
type Queue struct {
	Version       string   `json:"version,omitempty"`
	SharedPrompts []string `json:"shared_prompts,omitempty"`
	Tasks         []Task   `json:"tasks"`
}

// queueSchema is the structural contract for the queue file. Shape errors are
// caught here before semantic validation so malformed documents fail with a
// pointer to the offending field.
const queueSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["tasks"],
  "properties": {
    "version": {"type": "string"},
    "shared_prompts": {"type": "array", "items": {"type": "string"}},
    "tasks": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "name"],
        "properties": {
          "id": {"type": "string", "minLength": 1, "maxLength": 255},
          "name": {"type": "string", "minLength": 1},
          "prompt": {"type": "string"},
          "spec_files": {"type": "array", "items": {"type": "string"}},
          "status": {"type": "string", "enum": ["pending", "done", "error"]},
          "error_message": {"type": "string"},
          "report_path": {"type": "string"}
        }
      }
    }
  }
}`

var compiledSchema = jsonschema.MustCompileString("queue.schema.json", queueSchema)

// Parse decodes and fully validates a queue document. Validation is
// all-or-nothing: any invalid task aborts the whole run before anything
// executes. baseDir anchors relative spec file references.
func Parse(data []byte, baseDir string) (*Queue, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("queue file is not valid JSON: %w", err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("queue file failed schema validation: %w", err)
	}

	var q Queue
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("failed to decode queue file: %w", err)
	}

	if err := q.Validate(baseDir); err != nil {
		return nil, err
	}
	return &q, nil
}

// Validate enforces the semantic invariants the schema cannot express:
// unique IDs and names, and at least one prompt source per task with every
// referenced spec file present on disk.
func (q *Queue) Validate(baseDir string) error {
	if len(q.Tasks) == 0 {
		return fmt.Errorf("queue has no tasks")
	}

	seenIDs := make(map[string]struct{}, len(q.Tasks))
	seenNames := make(map[string]struct{}, len(q.Tasks))

	for i := range q.Tasks {
		task := &q.Tasks[i]

		id := strings.TrimSpace(task.ID)
		if id == "" {
			return fmt.Errorf("task %d: id is required", i)
		}
		if len(id) > MaxTaskIDLength {
			return fmt.Errorf("task %q: id exceeds %d characters", id, MaxTaskIDLength)
		}
		if _, dup := seenIDs[id]; dup {
			return fmt.Errorf("duplicate task id %q", id)
		}
		seenIDs[id] = struct{}{}

		name := strings.TrimSpace(task.Name)
		if name == "" {
			return fmt.Errorf("task %q: name is required", id)
		}
		if _, dup := seenNames[name]; dup {
			return fmt.Errorf("duplicate task name %q", name)
		}
		seenNames[name] = struct{}{}

		if strings.TrimSpace(task.Prompt) == "" && len(task.SpecFiles) == 0 {
			return fmt.Errorf("task %q: needs a prompt or at least one spec file", id)
		}
		for _, spec := range task.SpecFiles {
			path := spec
			if !filepath.IsAbs(path) {
				path = filepath.Join(baseDir, path)
			}
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("task %q: spec file %s: %w", id, spec, err)
			}
		}

		if task.Status == "" {
			task.Status = StatusPending
		}
	}
	return nil
}

// Pending returns the tasks still awaiting execution, in queue order.
func (q *Queue) Pending() []*Task {
	var pending []*Task
	for i := range q.Tasks {
		if q.Tasks[i].Status == StatusPending {
			pending = append(pending, &q.Tasks[i])
		}
	}
	return pending
}

// task returns the task with the given ID, or nil.
func (q *Queue) task(id string) *Task {
	for i := range q.Tasks {
		if q.Tasks[i].ID == id {
			return &q.Tasks[i]
		}
	}
	return nil
}

// truncateError shortens an error message for queue-file persistence.
func truncateError(msg string) string {
	msg = strings.TrimSpace(msg)
	if len(msg) <= maxErrorMessageLength {
		return msg
	}
	return msg[:maxErrorMessageLength-3] + "..."
}
