// Package controller drives one task to completion: it sequences agent
// invocations and judge verdicts, resuming the agent session until the judge
// declares the task done, a runtime error occurs, or the retry ceiling is
// reached. It never returns an error and never panics outward; every failure
// is folded into the execution report.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/smartdio/cursor-flow/internal/invoker"
	"github.com/smartdio/cursor-flow/internal/judge"
	"github.com/smartdio/cursor-flow/internal/report"
	"github.com/smartdio/cursor-flow/internal/telemetry"
)

// Short resume instructions. The conversation state lives in the agent
// session, so these are all that travels on a resume invocation.
const (
	instructionContinue = "continue"
	instructionAuto     = "apply your suggestion"
)

// Invoker launches agent invocations. Satisfied by *invoker.Invoker.
type Invoker interface {
	InvokeInitial(ctx context.Context, req invoker.InitialInvocation) (*invoker.Result, error)
	InvokeResume(ctx context.Context, req invoker.ResumeInvocation) (*invoker.Result, error)
}

// Judge classifies a finished transcript. Satisfied by *judge.Classifier.
type Judge interface {
	Classify(ctx context.Context, transcript string) judge.Decision
}

// Options configures one controller run.
type Options struct {
	Model       string
	ExtraArgs   []string
	MaxAttempts int
	Timeout     time.Duration
	QueueID     string

	// AttemptLog, when set, receives each attempt as it is recorded.
	AttemptLog *report.Log
	// Telemetry mirrors progress remotely; defaults to a no-op sink.
	Telemetry telemetry.Sink
}

// Controller executes one task at a time. Attempts are strictly sequential;
// attempt n+1 starts only after attempt n's outcome is known.
type Controller struct {
	invoker   Invoker
	judge     Judge
	logger    *slog.Logger
	opts      Options
	telemetry telemetry.Sink
}

// New creates a controller.
func New(inv Invoker, j Judge, logger *slog.Logger, opts Options) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	sink := opts.Telemetry
	if sink == nil {
		sink = telemetry.NewNoop()
	}
	return &Controller{invoker: inv, judge: j, logger: logger, opts: opts, telemetry: sink}
}

// Execute runs the retry/resume loop for one task and returns its report.
func (c *Controller) Execute(ctx context.Context, taskID, prompt string) (rep *report.ExecutionReport) {
	rep = &report.ExecutionReport{TaskID: taskID}

	// A sequencing bug anywhere in the loop must fail the task, not the
	// whole queue run.
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("controller panic", "task_id", taskID, "panic", r)
			c.finishError(rep, fmt.Sprintf("internal error: %v", r))
		}
	}()

	var sessionID string
	lastVerdict := judge.VerdictResume

	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		c.telemetry.Progress(c.opts.QueueID, taskID, fmt.Sprintf("attempt %d started", attempt))

		res, err := c.invoke(ctx, attempt, prompt, sessionID, lastVerdict)
		if err != nil {
			timedOut := invoker.IsTimeout(err)
			c.record(rep, report.Attempt{
				Index:      attempt,
				Conclusion: report.ConclusionRuntimeError,
				SessionID:  sessionID,
				Notes:      []string{err.Error()},
			})
			// A timed-out invocation burns the attempt but not the task,
			// as long as budget remains. The session is not updated.
			if timedOut && attempt < c.opts.MaxAttempts {
				c.logger.Warn("invocation timed out, moving to next attempt",
					"task_id", taskID, "attempt", attempt)
				continue
			}
			c.finishError(rep, err.Error())
			return rep
		}

		if res.SessionID != "" {
			sessionID = res.SessionID
		}

		// Non-zero exit or a fatal stderr marker is a runtime error; the
		// judge is not consulted.
		if res.ExitCode != 0 || invoker.HasFailureMarker(res.Stderr) {
			msg := runtimeFailureMessage(res)
			c.record(rep, report.Attempt{
				Index:      attempt,
				DurationMs: res.Duration.Milliseconds(),
				Conclusion: report.ConclusionRuntimeError,
				SessionID:  sessionID,
				Notes:      []string{msg},
			})
			c.finishError(rep, msg)
			return rep
		}

		decision := c.judge.Classify(ctx, res.Transcript)
		c.logger.Info("judge verdict",
			"task_id", taskID,
			"attempt", attempt,
			"verdict", decision.Verdict,
			"reasons", strings.Join(decision.Reasons, "; "))
		c.telemetry.Message(c.opts.QueueID, taskID, "judge", string(decision.Verdict))

		attemptRec := report.Attempt{
			Index:      attempt,
			DurationMs: res.Duration.Milliseconds(),
			SessionID:  sessionID,
			Notes:      decision.Reasons,
		}

		switch decision.Verdict {
		case judge.VerdictDone:
			attemptRec.Conclusion = report.ConclusionCompleted
			c.record(rep, attemptRec)
			rep.Success = true
			rep.FinalStatus = report.StatusDone
			c.telemetry.Progress(c.opts.QueueID, taskID, "task done")
			return rep
		case judge.VerdictAuto:
			attemptRec.Conclusion = report.ConclusionSuggestedContinuation
		default:
			attemptRec.Conclusion = report.ConclusionNeedsContinuation
		}
		c.record(rep, attemptRec)
		lastVerdict = decision.Verdict
	}

	// Ceiling reached while the task still wants continuation: incomplete
	// but not failed.
	rep.Success = false
	rep.FinalStatus = report.StatusPartial
	c.telemetry.Progress(c.opts.QueueID, taskID,
		fmt.Sprintf("retry ceiling of %d reached, task partially done", c.opts.MaxAttempts))
	return rep
}

func (c *Controller) invoke(ctx context.Context, attempt int, prompt, sessionID string, lastVerdict judge.Verdict) (*invoker.Result, error) {
	if attempt == 1 {
		return c.invoker.InvokeInitial(ctx, invoker.InitialInvocation{
			Prompt:    prompt,
			Model:     c.opts.Model,
			ExtraArgs: c.opts.ExtraArgs,
			Timeout:   c.opts.Timeout,
		})
	}

	// A resume without a session id is an internal sequencing bug, not an
	// external fault.
	if sessionID == "" {
		return nil, fmt.Errorf("no session id available to resume (attempt %d)", attempt)
	}

	instruction := instructionContinue
	if lastVerdict == judge.VerdictAuto {
		instruction = instructionAuto
	}
	return c.invoker.InvokeResume(ctx, invoker.ResumeInvocation{
		Model:       c.opts.Model,
		SessionID:   sessionID,
		Instruction: instruction,
		Timeout:     c.opts.Timeout,
	})
}

func (c *Controller) record(rep *report.ExecutionReport, attempt report.Attempt) {
	rep.AttemptLog = append(rep.AttemptLog, attempt)
	rep.Attempts = len(rep.AttemptLog)

	if c.opts.AttemptLog != nil {
		if err := c.opts.AttemptLog.WriteAttempt(rep.TaskID, attempt); err != nil {
			c.logger.Warn("failed to append attempt log", "error", err)
		}
	}
}

func (c *Controller) finishError(rep *report.ExecutionReport, msg string) {
	rep.Success = false
	rep.FinalStatus = report.StatusError
	rep.ErrorMessage = msg
	c.telemetry.Progress(c.opts.QueueID, rep.TaskID, "task failed: "+msg)
}

func runtimeFailureMessage(res *invoker.Result) string {
	if res.ExitCode != 0 {
		msg := fmt.Sprintf("agent exited with status %d", res.ExitCode)
		if tail := strings.TrimSpace(res.Stderr); tail != "" {
			msg += ": " + lastLine(tail)
		}
		return msg
	}
	return "agent reported failure: " + lastLine(strings.TrimSpace(res.Stderr))
}

// lastLine returns the final non-empty stderr line, which usually carries
// the actual error.
func lastLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if trimmed := strings.TrimSpace(lines[i]); trimmed != "" {
			return trimmed
		}
	}
	return s
}
