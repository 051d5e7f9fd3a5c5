// Package invoker launches the external coding-agent process and normalizes
// its outcome. Each invocation produces exactly one Result or one error,
// never both: a timeout kills the process and surfaces as an error.
package invoker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/smartdio/cursor-flow/internal/stream"
)

// ErrTimeout marks an invocation that exceeded its wall-clock budget.
var ErrTimeout = errors.New("agent invocation timed out")

// IsTimeout reports whether err came from an expired invocation timer.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// maxInlinePromptBytes is the largest prompt passed as a positional argument.
// Anything larger, or anything containing a newline, goes through stdin:
// process argument limits and shell quoting are unreliable for such payloads.
const maxInlinePromptBytes = 4096

// maxStderrBytes bounds the retained error-stream tail.
const maxStderrBytes = 64 * 1024

// failureMarkers are stderr fragments that indicate the agent process itself
// failed, independent of its exit code.
var failureMarkers = []string{
	"command not found",
	"not logged in",
	"authentication failed",
	"unauthorized",
	"rate limit exceeded",
}

// Result is the normalized outcome of one agent invocation.
type Result struct {
	ExitCode   int
	Stderr     string
	Transcript string
	SessionID  string
	Duration   time.Duration
}

// InitialInvocation describes a fresh agent launch.
type InitialInvocation struct {
	Prompt    string
	Model     string
	ExtraArgs []string
	Timeout   time.Duration
}

// ResumeInvocation continues a prior agent session. Only the short
// instruction travels; the conversation state lives inside the agent session.
type ResumeInvocation struct {
	Model       string
	SessionID   string
	Instruction string
	Timeout     time.Duration
}

// Invoker launches agent subprocesses.
type Invoker struct {
	binary    string
	dir       string
	logger    *slog.Logger
	echo      io.Writer
	onSession func(string)
}

// New creates an invoker for the given agent binary.
func New(binary string, logger *slog.Logger) *Invoker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{binary: binary, logger: logger}
}

// SetDir sets the working directory for spawned agents.
func (inv *Invoker) SetDir(dir string) {
	inv.dir = dir
}

// SetEcho directs live transcript deltas to w as they arrive.
func (inv *Invoker) SetEcho(w io.Writer) {
	inv.echo = w
}

// OnSessionID registers a callback fired as soon as a session identifier is
// observed, without waiting for the invocation to finish.
func (inv *Invoker) OnSessionID(fn func(string)) {
	inv.onSession = fn
}

// InvokeInitial launches the agent fresh with the task prompt.
func (inv *Invoker) InvokeInitial(ctx context.Context, req InitialInvocation) (*Result, error) {
	args, stdinPrompt := buildInitialArgs(req)
	inv.logger.Info("launching agent", "binary", inv.binary, "model", req.Model, "stdin_prompt", stdinPrompt != "")
	return inv.run(ctx, args, stdinPrompt, req.Prompt, req.Timeout)
}

// InvokeResume relaunches the agent bound to an existing session.
func (inv *Invoker) InvokeResume(ctx context.Context, req ResumeInvocation) (*Result, error) {
	if strings.TrimSpace(req.SessionID) == "" {
		return nil, fmt.Errorf("resume requested without a session id")
	}
	args := buildResumeArgs(req)
	inv.logger.Info("resuming agent", "binary", inv.binary, "session_id", req.SessionID, "instruction", req.Instruction)
	return inv.run(ctx, args, "", req.Instruction, req.Timeout)
}

// buildInitialArgs assembles the argument list and decides the prompt
// transport. The returned stdin payload is empty when the prompt is inlined.
func buildInitialArgs(req InitialInvocation) (args []string, stdinPrompt string) {
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	args = append(args, req.ExtraArgs...)
	if !hasOutputFormat(req.ExtraArgs) {
		args = append(args, "--print", "--output-format", "stream-json")
	}

	if strings.Contains(req.Prompt, "\n") || len(req.Prompt) > maxInlinePromptBytes {
		return args, req.Prompt
	}
	return append(args, req.Prompt), ""
}

func buildResumeArgs(req ResumeInvocation) []string {
	var args []string
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	args = append(args, "--resume", req.SessionID, "--print", "--output-format", "stream-json", req.Instruction)
	return args
}

func hasOutputFormat(args []string) bool {
	for _, a := range args {
		if a == "--output-format" || strings.HasPrefix(a, "--output-format=") {
			return true
		}
	}
	return false
}

func (inv *Invoker) run(ctx context.Context, args []string, stdinPrompt, prompt string, timeout time.Duration) (*Result, error) {
	start := time.Now()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, inv.binary, args...)
	cmd.Dir = inv.dir
	if stdinPrompt != "" {
		cmd.Stdin = strings.NewReader(stdinPrompt)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	extractor := stream.NewExtractor(prompt, inv.echo, inv.logger)
	if inv.onSession != nil {
		extractor.OnSessionID(inv.onSession)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start agent process: %w", err)
	}

	errBuf := newTailBuffer(maxStderrBytes)

	var g errgroup.Group
	g.Go(func() error {
		buf := make([]byte, 4096)
		for {
			n, readErr := stdout.Read(buf)
			if n > 0 {
				extractor.Feed(buf[:n])
			}
			if readErr == io.EOF {
				return nil
			}
			if readErr != nil {
				return readErr
			}
		}
	})
	g.Go(func() error {
		_, copyErr := io.Copy(errBuf, stderr)
		return copyErr
	})

	pumpErr := g.Wait()
	waitErr := cmd.Wait()

	transcript, sessionID := extractor.Finish()
	duration := time.Since(start)

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w after %s", ErrTimeout, duration.Round(time.Millisecond))
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("agent invocation canceled: %w", ctx.Err())
	}
	if pumpErr != nil {
		inv.logger.Warn("agent output pump error", "error", pumpErr)
	}

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("agent process wait failed: %w", waitErr)
		}
	}

	inv.logger.Info("agent exited",
		"exit_code", exitCode,
		"duration", duration.Round(time.Millisecond),
		"transcript_bytes", len(transcript),
		"session_id", sessionID)

	return &Result{
		ExitCode:   exitCode,
		Stderr:     errBuf.String(),
		Transcript: transcript,
		SessionID:  sessionID,
		Duration:   duration,
	}, nil
}

// HasFailureMarker reports whether stderr output contains a known fatal
// marker. The controller treats a match as a runtime error even on exit 0.
func HasFailureMarker(stderr string) bool {
	lowered := strings.ToLower(stderr)
	for _, marker := range failureMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	data  []byte
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	if len(b.data) > b.limit {
		b.data = b.data[len(b.data)-b.limit:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	return string(b.data)
}
