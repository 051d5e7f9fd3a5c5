package stream

import (
	"encoding/json"
	"strings"
)

// Role identifies the speaker of a stream event.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleOther     Role = "other"
)

// Event is one decoded structured unit from the agent's output stream.
type Event struct {
	Role      Role
	Text      string
	SessionID string
}

// rawEvent mirrors the loose shapes the agent emits. Fields are probed in a
// fixed order; anything that matches none of them decodes to the fallback
// variant and is ignored by the caller.
type rawEvent struct {
	Type         string      `json:"type"`
	Subtype      string      `json:"subtype"`
	Role         string      `json:"role"`
	Text         string      `json:"text"`
	Result       string      `json:"result"`
	SessionID    string      `json:"session_id"`
	SessionIDAlt string      `json:"sessionId"`
	Message      *rawMessage `json:"message"`
}

type rawMessage struct {
	Role    string       `json:"role"`
	Content []rawContent `json:"content"`
}

type rawContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// parseEvent decodes a single line into an Event. The second return value is
// false when the line is not a JSON object or carries no recognizable shape.
func parseEvent(data []byte) (Event, bool) {
	var raw rawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return Event{}, false
	}

	evt := Event{
		Role:      resolveRole(raw),
		SessionID: raw.SessionID,
	}
	if evt.SessionID == "" {
		evt.SessionID = raw.SessionIDAlt
	}
	evt.Text = resolveText(raw)
	return evt, true
}

func resolveRole(raw rawEvent) Role {
	candidates := []string{raw.Type, raw.Role}
	if raw.Message != nil {
		candidates = append(candidates, raw.Message.Role)
	}
	for _, c := range candidates {
		switch strings.ToLower(strings.TrimSpace(c)) {
		case "user":
			return RoleUser
		case "assistant", "result":
			return RoleAssistant
		case "system":
			return RoleSystem
		}
	}
	return RoleOther
}

// resolveText pulls the message text out of whichever field carries it. The
// agent emits text either nested under message.content, as a top-level text
// field, or as the final result payload.
func resolveText(raw rawEvent) string {
	if raw.Message != nil {
		var b strings.Builder
		for _, part := range raw.Message.Content {
			if part.Type == "" || part.Type == "text" {
				b.WriteString(part.Text)
			}
		}
		if b.Len() > 0 {
			return b.String()
		}
	}
	if raw.Text != "" {
		return raw.Text
	}
	return raw.Result
}
