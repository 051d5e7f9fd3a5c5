// Package stream reconstructs a plain-text transcript from the agent's
// structured output stream. The agent re-transmits assistant messages
// cumulatively rather than as deltas, so the extractor diffs each candidate
// text against the longest text seen so far and emits only what is new.
package stream

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
)

// Extractor consumes raw bytes from one agent invocation and accumulates the
// transcript. It is owned by exactly one invocation and must not be reused.
type Extractor struct {
	prompt string
	sink   io.Writer
	logger *slog.Logger

	onSession func(string)

	partial    []byte
	transcript strings.Builder
	last       string
	emitted    map[string]struct{}
	sessionID  string
}

// NewExtractor creates an extractor for a single invocation. prompt is the
// original user prompt; events that echo it verbatim are dropped. Emitted
// transcript deltas are written to sink as they arrive (sink may be nil).
func NewExtractor(prompt string, sink io.Writer, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		prompt:  prompt,
		sink:    sink,
		logger:  logger,
		emitted: make(map[string]struct{}),
	}
}

// OnSessionID registers a callback invoked whenever a new non-empty session
// identifier is observed, including mid-stream.
func (x *Extractor) OnSessionID(fn func(string)) {
	x.onSession = fn
}

// SessionID returns the most recently observed session identifier. It is
// valid mid-stream; callers do not need to wait for Finish.
func (x *Extractor) SessionID() string {
	return x.sessionID
}

// Transcript returns the text accumulated so far.
func (x *Extractor) Transcript() string {
	return x.transcript.String()
}

// Feed consumes the next chunk of stream bytes. A chunk may end mid-line;
// the partial line is buffered until the next chunk or Finish completes it.
func (x *Extractor) Feed(chunk []byte) {
	x.partial = append(x.partial, chunk...)
	for {
		idx := bytes.IndexByte(x.partial, '\n')
		if idx < 0 {
			return
		}
		line := x.partial[:idx]
		x.partial = x.partial[idx+1:]
		x.handleLine(line)
	}
}

// Finish flushes any buffered partial line and returns the complete
// transcript and the final session identifier.
func (x *Extractor) Finish() (transcript, sessionID string) {
	if len(bytes.TrimSpace(x.partial)) > 0 {
		x.handleLine(x.partial)
	}
	x.partial = nil
	return x.transcript.String(), x.sessionID
}

func (x *Extractor) handleLine(line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}

	// SSE-style frames wrap the JSON payload in a "data:" line.
	if rest, ok := bytes.CutPrefix(line, []byte("data:")); ok {
		line = bytes.TrimSpace(rest)
	}
	if len(line) == 0 || (line[0] != '{' && line[0] != '[') {
		return
	}

	evt, ok := parseEvent(line)
	if !ok {
		// The agent's framing is not perfectly guaranteed; skip quietly.
		x.logger.Debug("skipping malformed stream line", "bytes", len(line))
		return
	}

	if evt.SessionID != "" && evt.SessionID != x.sessionID {
		x.sessionID = evt.SessionID
		if x.onSession != nil {
			x.onSession(evt.SessionID)
		}
	}

	if evt.Role != RoleAssistant || evt.Text == "" {
		return
	}

	// Some events mirror the user prompt back under an assistant tag.
	// Exact-match filtering is approximate but matches observed behaviour.
	if evt.Text == x.prompt {
		return
	}

	fragment := Delta(x.last, evt.Text)
	x.last = evt.Text
	if fragment == "" {
		return
	}
	if _, seen := x.emitted[fragment]; seen {
		return
	}
	x.emitted[fragment] = struct{}{}

	x.transcript.WriteString(fragment)
	if x.sink != nil {
		if _, err := io.WriteString(x.sink, fragment); err != nil {
			x.logger.Warn("transcript sink write failed", "error", err)
		}
	}
}

// Delta computes the text to emit when current arrives after previous.
// The agent transmits assistant messages cumulatively, so:
//   - current == previous: nothing new, emit nothing
//   - current extends previous: emit only the suffix
//   - otherwise the message was restarted: emit current in full
func Delta(previous, current string) string {
	if current == previous {
		return ""
	}
	if strings.HasPrefix(current, previous) {
		return current[len(previous):]
	}
	return current
}
