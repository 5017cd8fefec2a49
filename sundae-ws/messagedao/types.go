package messagedao

import "time"

// SessionIndex is the GSI ordering a session's messages by creation time.
const SessionIndex = "SessionIndex"

// Message metadata keys.
const (
	MetaType    = "type"
	MetaSubject = "subject" // subject that wrote the message
)

// Message is one immutable unit of relayed content.
type Message struct {
	ID           string            `dynamodbav:"pk" ddb:"hash"`
	ConnectionID string            `dynamodbav:"connection_id"`
	SessionID    string            `dynamodbav:"session_id" ddb:"gsi_hash:SessionIndex"`
	CreatedAt    int64             `dynamodbav:"created_at" ddb:"gsi_range:SessionIndex"` // unix nanos
	Content      string            `dynamodbav:"content"`
	Metadata     map[string]string `dynamodbav:"metadata,omitempty"`
	TTL          int64             `dynamodbav:"ttl"`
}

func (m Message) Created() time.Time {
	return time.Unix(0, m.CreatedAt)
}

func (m Message) Expired(now time.Time) bool {
	return m.TTL > 0 && m.TTL < now.Unix()
}
