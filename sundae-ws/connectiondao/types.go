package connectiondao

import "time"

// Well-known metadata keys.
const (
	MetaRequestID = "request_id"
	MetaSessionID = "session_id"
	MetaRoom      = "room"
)

// Connection is one logical client session. A row without a Subject has not
// completed authentication and must never receive application messages.
type Connection struct {
	ConnectionID  string            `dynamodbav:"pk" ddb:"hash"`
	Subject       string            `dynamodbav:"subject,omitempty"`
	Issuer        string            `dynamodbav:"issuer,omitempty"`
	RequestID     string            `dynamodbav:"request_id,omitempty"`
	EstablishedAt int64             `dynamodbav:"established_at"`
	TTL           int64             `dynamodbav:"ttl"`
	Metadata      map[string]string `dynamodbav:"metadata"`
}

// Authenticated reports whether the connection carries a verified identity.
func (c Connection) Authenticated() bool {
	return c.Subject != ""
}

// Expired reports whether the row is past its ttl and must be treated as absent.
func (c Connection) Expired(now time.Time) bool {
	return c.TTL > 0 && c.TTL < now.Unix()
}

func (c Connection) ExpiresAt() time.Time {
	return time.Unix(c.TTL, 0)
}

func (c Connection) Meta(key string) string {
	return c.Metadata[key]
}

// merge applies metadata onto c. An empty value deletes the key.
func (c *Connection) merge(metadata map[string]string) {
	if c.Metadata == nil {
		c.Metadata = map[string]string{}
	}
	for k, v := range metadata {
		if v == "" {
			delete(c.Metadata, k)
			continue
		}
		c.Metadata[k] = v
	}
}

func (c Connection) clone() Connection {
	if c.Metadata != nil {
		metadata := make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			metadata[k] = v
		}
		c.Metadata = metadata
	}
	return c
}
