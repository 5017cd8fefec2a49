package sundaews

import (
	"encoding/json"
	"time"

	sundaeerr "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-err"
	"github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-ws/messagedao"
)

// Event types
const (
	EventPing          = "ping"
	EventPong          = "pong"
	EventMessage       = "message"
	EventJoin          = "join"
	EventLeave         = "leave"
	EventHistory       = "history"
	EventAck           = "ack"
	EventError         = "error"
	EventAuthenticated = "authenticated"
)

// Event is the json envelope exchanged with clients in both directions.
type Event struct {
	Type      string             `json:"type"`
	ID        string             `json:"id,omitempty"` // client correlation id, echoed on replies
	SessionID string             `json:"sessionId,omitempty"`
	Room      string             `json:"room,omitempty"`
	Limit     int                `json:"limit,omitempty"`
	MessageID string             `json:"messageId,omitempty"`
	From      string             `json:"from,omitempty"`
	Payload   json.RawMessage    `json:"payload,omitempty"`
	Messages  []HistoryEntry     `json:"messages,omitempty"`
	Error     *sundaeerr.Payload `json:"error,omitempty"`
}

// HistoryEntry is a persisted message as returned to clients.
type HistoryEntry struct {
	ID           string          `json:"id"`
	ConnectionID string          `json:"connectionId"`
	SessionID    string          `json:"sessionId"`
	Content      json.RawMessage `json:"content"`
	CreatedAt    time.Time       `json:"createdAt"`
}

func newHistoryEntry(msg messagedao.Message) HistoryEntry {
	content := json.RawMessage(msg.Content)
	if !json.Valid(content) {
		content, _ = json.Marshal(msg.Content)
	}
	return HistoryEntry{
		ID:           msg.ID,
		ConnectionID: msg.ConnectionID,
		SessionID:    msg.SessionID,
		Content:      content,
		CreatedAt:    msg.Created().UTC(),
	}
}

func newHistoryEntries(messages []messagedao.Message) []HistoryEntry {
	entries := make([]HistoryEntry, 0, len(messages))
	for _, msg := range messages {
		entries = append(entries, newHistoryEntry(msg))
	}
	return entries
}

// ParseEvent decodes a client event.
func ParseEvent(body string) (Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(body), &ev); err != nil {
		return Event{}, sundaeerr.Validation(sundaeerr.CodeInvalidEvent, "event is not valid json").Wrap(err)
	}
	if ev.Type == "" {
		return Event{}, sundaeerr.Validation(sundaeerr.CodeInvalidEvent, "missing event type")
	}
	return ev, nil
}

func (e Event) Bytes() []byte {
	b, _ := json.Marshal(e)
	return b
}

func ErrorEvent(id string, payload sundaeerr.Payload) Event {
	return Event{
		Type:  EventError,
		ID:    id,
		Error: &payload,
	}
}
