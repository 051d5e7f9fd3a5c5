// Package judge classifies an agent transcript into a three-way verdict that
// drives the retry loop. The classifier fails closed: any transport or parse
// failure yields resume, never done, so an ambiguous answer can never
// terminate a task that may still need work.
package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// Verdict is the judge's three-valued answer.
type Verdict string

const (
	// VerdictDone means the task is complete.
	VerdictDone Verdict = "done"
	// VerdictResume means the agent should continue with a neutral instruction.
	VerdictResume Verdict = "resume"
	// VerdictAuto means the agent should execute its own most recent suggestion.
	VerdictAuto Verdict = "auto"
)

// Decision is one classification outcome.
type Decision struct {
	Verdict Verdict  `json:"verdict"`
	Reasons []string `json:"reasons,omitempty"`
}

// maxExcerptBytes caps the transcript prefix sent to the classifier.
const maxExcerptBytes = 16 * 1024

// classifyInstruction is the fixed system prompt describing the taxonomy.
const classifyInstruction = `You review the latest output of an automated coding agent and decide what should happen next.

Answer with a single JSON object and nothing else:
  {"verdict": "<done|resume|auto>", "reasons": ["short explanation"]}

Verdicts:
  done   - the task is complete; no further work is needed.
  resume - the agent should keep working; it will receive a neutral "continue" instruction.
  auto   - the agent proposed a concrete next step; it will be told to apply its own suggestion.`

// Backend performs one classifier round trip: system instruction plus user
// payload in, raw model text out.
type Backend interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Classifier wraps a backend with excerpt bounding and fail-closed parsing.
type Classifier struct {
	backend Backend
	logger  *slog.Logger
}

// NewClassifier creates a classifier over the given backend.
func NewClassifier(backend Backend, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{backend: backend, logger: logger}
}

// Classify sends a bounded transcript prefix to the backend and returns the
// parsed decision. It never returns an error: failures degrade to resume.
func (c *Classifier) Classify(ctx context.Context, transcript string) Decision {
	excerpt := transcript
	if len(excerpt) > maxExcerptBytes {
		excerpt = excerpt[:maxExcerptBytes]
	}

	raw, err := c.backend.Complete(ctx, classifyInstruction, excerpt)
	if err != nil {
		c.logger.Warn("judge request failed, resuming", "error", err)
		return failClosed(fmt.Sprintf("judge request failed: %v", err))
	}

	decision, err := ParseDecision(raw)
	if err != nil {
		c.logger.Warn("judge response unparsable, resuming", "error", err)
		return failClosed(fmt.Sprintf("judge response unparsable: %v", err))
	}
	return decision
}

func failClosed(reason string) Decision {
	return Decision{Verdict: VerdictResume, Reasons: []string{reason}}
}

// ParseDecision extracts the verdict object from a raw model response. The
// object may arrive bare or wrapped in a fenced code block, possibly with
// prose around it.
func ParseDecision(raw string) (Decision, error) {
	body := stripFences(strings.TrimSpace(raw))

	start := strings.IndexByte(body, '{')
	end := strings.LastIndexByte(body, '}')
	if start < 0 || end <= start {
		return Decision{}, fmt.Errorf("no JSON object in response")
	}

	var decision Decision
	if err := json.Unmarshal([]byte(body[start:end+1]), &decision); err != nil {
		return Decision{}, fmt.Errorf("invalid verdict JSON: %w", err)
	}

	switch Verdict(strings.ToLower(strings.TrimSpace(string(decision.Verdict)))) {
	case VerdictDone:
		decision.Verdict = VerdictDone
	case VerdictResume:
		decision.Verdict = VerdictResume
	case VerdictAuto:
		decision.Verdict = VerdictAuto
	default:
		return Decision{}, fmt.Errorf("unrecognized verdict %q", decision.Verdict)
	}
	return decision, nil
}

// stripFences unwraps a ```-fenced block if the response is wrapped in one.
func stripFences(s string) string {
	idx := strings.Index(s, "```")
	if idx < 0 {
		return s
	}
	rest := s[idx+3:]
	// Drop an optional language tag on the fence line.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}
	if closing := strings.Index(rest, "```"); closing >= 0 {
		rest = rest[:closing]
	}
	return rest
}
