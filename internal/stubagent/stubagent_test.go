package stubagent

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScriptFile(t *testing.T, s Script) string {
	t.Helper()
	data, err := json.Marshal(s)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "script.json")
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func TestLoadScript(t *testing.T) {
	path := writeScriptFile(t, Script{Turns: []Turn{{Snapshots: []string{"hi"}}}})
	s, err := LoadScript(path)
	require.NoError(t, err)
	assert.NotEmpty(t, s.SessionID, "session id is generated when absent")
	require.Len(t, s.Turns, 1)
}

func TestLoadScriptRejectsEmpty(t *testing.T) {
	path := writeScriptFile(t, Script{})
	_, err := LoadScript(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no turns")
}

func TestParseArgs(t *testing.T) {
	t.Run("positional prompt", func(t *testing.T) {
		inv, err := ParseArgs([]string{"--model", "m", "--print", "--output-format", "stream-json", "do it"}, strings.NewReader(""))
		require.NoError(t, err)
		assert.Equal(t, "do it", inv.Prompt)
		assert.False(t, inv.Resume)
	})

	t.Run("stdin prompt", func(t *testing.T) {
		inv, err := ParseArgs([]string{"--print", "--output-format", "stream-json"}, strings.NewReader("line one\nline two"))
		require.NoError(t, err)
		assert.Equal(t, "line one\nline two", inv.Prompt)
	})

	t.Run("resume", func(t *testing.T) {
		inv, err := ParseArgs([]string{"--resume", "sess-9", "--print", "--output-format", "stream-json", "continue"}, strings.NewReader(""))
		require.NoError(t, err)
		assert.True(t, inv.Resume)
		assert.Equal(t, "sess-9", inv.SessionID)
		assert.Equal(t, "continue", inv.Prompt)
	})

	t.Run("dangling resume", func(t *testing.T) {
		_, err := ParseArgs([]string{"--resume"}, strings.NewReader(""))
		require.Error(t, err)
	})
}

func TestRunWalksTurns(t *testing.T) {
	script := &Script{
		SessionID: "sess-1",
		Turns: []Turn{
			{Snapshots: []string{"working", "working on it"}},
			{Snapshots: []string{"done."}},
		},
	}
	statePath := filepath.Join(t.TempDir(), "state")

	var out bytes.Buffer
	code := Run(script, statePath, Invocation{Prompt: "p"}, &out, io.Discard)
	require.Zero(t, code)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	var evt streamEvent
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &evt))
	assert.Equal(t, "sess-1", evt.SessionID)
	assert.Equal(t, "working on it", evt.Message.Content[0].Text)

	out.Reset()
	code = Run(script, statePath, Invocation{Resume: true, SessionID: "sess-1", Prompt: "continue"}, &out, io.Discard)
	require.Zero(t, code)
	assert.Contains(t, out.String(), "done.")

	// Third invocation has no scripted turn left.
	var errBuf bytes.Buffer
	code = Run(script, statePath, Invocation{Prompt: "p"}, &out, &errBuf)
	assert.Equal(t, 1, code)
	assert.Contains(t, errBuf.String(), "exhausted")
}

func TestRunRejectsUnknownSession(t *testing.T) {
	script := &Script{SessionID: "sess-1", Turns: []Turn{{Snapshots: []string{"x"}}}}
	var errBuf bytes.Buffer
	code := Run(script, filepath.Join(t.TempDir(), "state"), Invocation{Resume: true, SessionID: "other"}, io.Discard, &errBuf)
	assert.Equal(t, 1, code)
	assert.Contains(t, errBuf.String(), "unknown session")
}

func TestRunScriptedFailure(t *testing.T) {
	script := &Script{SessionID: "s", Turns: []Turn{{ExitCode: 3, Stderr: "rate limit exceeded"}}}
	var errBuf bytes.Buffer
	code := Run(script, filepath.Join(t.TempDir(), "state"), Invocation{Prompt: "p"}, io.Discard, &errBuf)
	assert.Equal(t, 3, code)
	assert.Contains(t, errBuf.String(), "rate limit exceeded")
}
