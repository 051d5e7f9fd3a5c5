// Package stubagent implements a scripted stand-in for the real coding-agent
// binary. It speaks the same surface: prompt via positional argument or
// stdin, --resume for follow-up turns, and cumulative stream-json events on
// stdout. Tests and local dry runs point the invoker at it instead of the
// real agent.
package stubagent

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/smartdio/cursor-flow/internal/ndjson"
)

// Turn scripts one invocation: the cumulative assistant snapshots to emit,
// and optionally a failure to simulate.
type Turn struct {
	Snapshots []string `json:"snapshots"`
	ExitCode  int      `json:"exit_code,omitempty"`
	Stderr    string   `json:"stderr,omitempty"`
	DelayMs   int      `json:"delay_ms,omitempty"`
}

// Script drives the stub across invocations. Turn 0 answers the initial
// invocation; each resume consumes the next turn.
type Script struct {
	SessionID string `json:"session_id,omitempty"`
	Turns     []Turn `json:"turns"`
}

// LoadScript reads a script file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	var s Script
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	if len(s.Turns) == 0 {
		return nil, fmt.Errorf("script has no turns")
	}
	if s.SessionID == "" {
		s.SessionID = "stub-" + uuid.New().String()[:8]
	}
	return &s, nil
}

// Invocation is what the stub understood from its command line.
type Invocation struct {
	Prompt    string
	SessionID string
	Resume    bool
}

// ParseArgs extracts the prompt and resume target from a cursor-agent style
// argument list, reading stdin when no positional prompt is present.
func ParseArgs(args []string, stdin io.Reader) (Invocation, error) {
	var inv Invocation
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--model", "--output-format":
			i++
		case "--print":
		case "--resume":
			i++
			if i >= len(args) {
				return inv, fmt.Errorf("--resume requires a session id")
			}
			inv.Resume = true
			inv.SessionID = args[i]
		default:
			if strings.HasPrefix(args[i], "--") {
				continue
			}
			inv.Prompt = args[i]
		}
	}

	if inv.Prompt == "" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return inv, fmt.Errorf("failed to read prompt from stdin: %w", err)
		}
		inv.Prompt = string(data)
	}
	return inv, nil
}

// streamEvent matches the wire shape the extractor consumes.
type streamEvent struct {
	Type      string        `json:"type"`
	SessionID string        `json:"session_id"`
	Message   streamMessage `json:"message"`
}

type streamMessage struct {
	Content []streamPart `json:"content"`
}

type streamPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Run executes one stub invocation and returns its exit code. The turn index
// is tracked in statePath so consecutive invocations walk the script.
func Run(script *Script, statePath string, inv Invocation, stdout, stderr io.Writer) int {
	turnIdx := nextTurn(statePath)
	if turnIdx >= len(script.Turns) {
		fmt.Fprintln(stderr, "stub script exhausted")
		return 1
	}
	turn := script.Turns[turnIdx]

	if inv.Resume && inv.SessionID != script.SessionID {
		fmt.Fprintf(stderr, "unknown session %s\n", inv.SessionID)
		return 1
	}

	if turn.DelayMs > 0 {
		time.Sleep(time.Duration(turn.DelayMs) * time.Millisecond)
	}

	enc := ndjson.NewEncoder(stdout, nil)
	for _, snapshot := range turn.Snapshots {
		evt := streamEvent{
			Type:      "assistant",
			SessionID: script.SessionID,
			Message:   streamMessage{Content: []streamPart{{Type: "text", Text: snapshot}}},
		}
		if err := enc.Encode(evt); err != nil {
			fmt.Fprintf(stderr, "failed to emit event: %v\n", err)
			return 1
		}
	}

	if turn.Stderr != "" {
		fmt.Fprintln(stderr, turn.Stderr)
	}
	return turn.ExitCode
}

// nextTurn reads, increments, and persists the invocation counter. A missing
// or unreadable state file starts from turn 0.
func nextTurn(statePath string) int {
	idx := 0
	if data, err := os.ReadFile(statePath); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil {
			idx = n
		}
	}
	_ = os.WriteFile(statePath, []byte(strconv.Itoa(idx+1)), 0600)
	return idx
}
