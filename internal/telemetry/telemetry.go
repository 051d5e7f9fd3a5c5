// Package telemetry mirrors progress to an optional remote sink. Every call
// is best-effort: failures are logged and never influence task execution.
package telemetry

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Sink receives progress lines and role-tagged messages for a queue run.
type Sink interface {
	Progress(queueID, taskID, text string)
	Message(queueID, taskID, role, text string)
}

// NewNoop returns a sink that discards everything.
func NewNoop() Sink {
	return noopSink{}
}

type noopSink struct{}

func (noopSink) Progress(string, string, string)        {}
func (noopSink) Message(string, string, string, string) {}

// event is the wire shape posted to the remote service.
type event struct {
	QueueID string `json:"queue_id"`
	TaskID  string `json:"task_id"`
	Role    string `json:"role,omitempty"`
	Text    string `json:"text"`
	At      string `json:"at"`
}

// HTTPSink posts events to a remote endpoint.
type HTTPSink struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// NewHTTPSink creates a sink posting to endpoint.
func NewHTTPSink(endpoint string, logger *slog.Logger) *HTTPSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPSink{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 3 * time.Second},
		logger:   logger,
	}
}

// Progress sends a free-text progress line.
func (s *HTTPSink) Progress(queueID, taskID, text string) {
	s.post(event{QueueID: queueID, TaskID: taskID, Text: text})
}

// Message sends a role-tagged message.
func (s *HTTPSink) Message(queueID, taskID, role, text string) {
	s.post(event{QueueID: queueID, TaskID: taskID, Role: role, Text: text})
}

func (s *HTTPSink) post(evt event) {
	evt.At = time.Now().UTC().Format(time.RFC3339)

	payload, err := json.Marshal(evt)
	if err != nil {
		s.logger.Warn("telemetry marshal failed", "error", err)
		return
	}

	resp, err := s.client.Post(s.endpoint, "application/json", bytes.NewReader(payload))
	if err != nil {
		s.logger.Warn("telemetry post failed", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		s.logger.Warn("telemetry post rejected", "status", resp.StatusCode)
	}
}
