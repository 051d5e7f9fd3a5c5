package telemetry

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHTTPSinkPostsEvents(t *testing.T) {
	var received []event
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt event
		require.NoError(t, json.NewDecoder(r.Body).Decode(&evt))
		received = append(received, evt)
	}))
	defer server.Close()

	sink := NewHTTPSink(server.URL, testLogger())
	sink.Progress("queue-1", "1", "attempt 1 started")
	sink.Message("queue-1", "1", "assistant", "working on it")

	require.Len(t, received, 2)
	assert.Equal(t, "queue-1", received[0].QueueID)
	assert.Empty(t, received[0].Role)
	assert.Equal(t, "assistant", received[1].Role)
	assert.NotEmpty(t, received[0].At)
}

// A dead endpoint must never propagate an error to the caller.
func TestHTTPSinkSwallowsFailures(t *testing.T) {
	sink := NewHTTPSink("http://127.0.0.1:1/events", testLogger())
	assert.NotPanics(t, func() {
		sink.Progress("queue-1", "1", "still fine")
	})
}

func TestNoopSink(t *testing.T) {
	sink := NewNoop()
	sink.Progress("q", "t", "x")
	sink.Message("q", "t", "assistant", "x")
}
