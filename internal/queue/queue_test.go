package queue

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeQueue(t *testing.T, dir string, doc string) string {
	t.Helper()
	path := filepath.Join(dir, "tasks.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0600))
	return path
}

func TestParseValidQueue(t *testing.T) {
	dir := t.TempDir()
	specPath := filepath.Join(dir, "feature.md")
	require.NoError(t, os.WriteFile(specPath, []byte("# Feature"), 0600))

	doc := fmt.Sprintf(`{
		"version": "1",
		"shared_prompts": ["%s"],
		"tasks": [
			{"id": "1", "name": "first", "prompt": "do the thing"},
			{"id": "2", "name": "second", "spec_files": ["feature.md"]}
		]
	}`, specPath)

	q, err := Parse([]byte(doc), dir)
	require.NoError(t, err)
	assert.Len(t, q.Tasks, 2)
	assert.Equal(t, StatusPending, q.Tasks[0].Status, "status defaults to pending")
	assert.Len(t, q.Pending(), 2)
}

func TestParseRejectsInvalidQueues(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			"not json",
			`{tasks: []`,
			"not valid JSON",
		},
		{
			"missing tasks field",
			`{"version": "1"}`,
			"schema validation",
		},
		{
			"empty task list",
			`{"tasks": []}`,
			"no tasks",
		},
		{
			"empty id",
			`{"tasks": [{"id": " ", "name": "a", "prompt": "p"}]}`,
			"id is required",
		},
		{
			"duplicate id",
			`{"tasks": [
				{"id": "1", "name": "a", "prompt": "p"},
				{"id": "1", "name": "b", "prompt": "p"}
			]}`,
			"duplicate task id",
		},
		{
			"duplicate name",
			`{"tasks": [
				{"id": "1", "name": "a", "prompt": "p"},
				{"id": "2", "name": "a", "prompt": "p"}
			]}`,
			"duplicate task name",
		},
		{
			"no prompt and no spec files",
			`{"tasks": [{"id": "1", "name": "a"}]}`,
			"needs a prompt",
		},
		{
			"missing spec file",
			`{"tasks": [{"id": "1", "name": "a", "spec_files": ["nope.md"]}]}`,
			"spec file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), dir)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateRejectsOverlongID(t *testing.T) {
	dir := t.TempDir()
	doc := fmt.Sprintf(`{"tasks": [{"id": %q, "name": "a", "prompt": "p"}]}`,
		strings.Repeat("x", MaxTaskIDLength+1))

	_, err := Parse([]byte(doc), dir)
	require.Error(t, err)
	// The schema catches this before semantic validation does.
	assert.Contains(t, err.Error(), "schema validation")
}

func TestStoreMarkDone(t *testing.T) {
	dir := t.TempDir()
	path := writeQueue(t, dir, `{"tasks": [{"id": "1", "name": "a", "prompt": "p"}]}`)

	store, err := Load(path, testLogger())
	require.NoError(t, err)

	require.NoError(t, store.MarkDone("1", "reports/1.json"))

	reloaded, err := Load(path, testLogger())
	require.NoError(t, err)
	task := reloaded.Queue().Tasks[0]
	assert.Equal(t, StatusDone, task.Status)
	assert.Equal(t, "reports/1.json", task.ReportPath)
	assert.Empty(t, reloaded.Queue().Pending())
}

func TestStoreMarkErrorTruncates(t *testing.T) {
	dir := t.TempDir()
	path := writeQueue(t, dir, `{"tasks": [{"id": "1", "name": "a", "prompt": "p"}]}`)

	store, err := Load(path, testLogger())
	require.NoError(t, err)

	long := strings.Repeat("e", 2000)
	require.NoError(t, store.MarkError("1", long, ""))

	reloaded, err := Load(path, testLogger())
	require.NoError(t, err)
	task := reloaded.Queue().Tasks[0]
	assert.Equal(t, StatusError, task.Status)
	assert.LessOrEqual(t, len(task.ErrorMessage), maxErrorMessageLength)
	assert.True(t, strings.HasSuffix(task.ErrorMessage, "..."))
}

func TestStoreReset(t *testing.T) {
	dir := t.TempDir()
	path := writeQueue(t, dir, `{"tasks": [{"id": "1", "name": "a", "prompt": "p", "status": "error", "error_message": "boom"}]}`)

	store, err := Load(path, testLogger())
	require.NoError(t, err)

	require.NoError(t, store.Reset("1"))

	reloaded, err := Load(path, testLogger())
	require.NoError(t, err)
	task := reloaded.Queue().Tasks[0]
	assert.Equal(t, StatusPending, task.Status)
	assert.Empty(t, task.ErrorMessage)
}

func TestStoreUnknownTask(t *testing.T) {
	dir := t.TempDir()
	path := writeQueue(t, dir, `{"tasks": [{"id": "1", "name": "a", "prompt": "p"}]}`)

	store, err := Load(path, testLogger())
	require.NoError(t, err)

	assert.Error(t, store.MarkDone("missing", ""))
	assert.Error(t, store.Reset("missing"))
}

// The queue file must never be observable in a torn state: after any number
// of completed mutations the on-disk document is full, parseable JSON with a
// consistent task count, and no abandoned temp files accumulate.
func TestStorePersistenceIsAtomic(t *testing.T) {
	dir := t.TempDir()
	path := writeQueue(t, dir, `{"tasks": [
		{"id": "1", "name": "a", "prompt": "p"},
		{"id": "2", "name": "b", "prompt": "p"},
		{"id": "3", "name": "c", "prompt": "p"}
	]}`)

	store, err := Load(path, testLogger())
	require.NoError(t, err)

	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, store.MarkDone(id, ""))

		data, err := os.ReadFile(path)
		require.NoError(t, err)

		var snapshot Queue
		require.NoError(t, json.Unmarshal(data, &snapshot), "queue file must always parse")
		assert.Len(t, snapshot.Tasks, 3, "task count must stay consistent")
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.False(t, strings.Contains(entry.Name(), ".tmp."), "temp file left behind: %s", entry.Name())
	}
}
