package messagedao

import (
	"context"
	"sort"
	"sync"
	"time"
)

const pruneInterval = time.Minute

// Memory is an in-process message store for console mode and tests. Expired
// messages are dropped as new ones are written.
type Memory struct {
	now func() time.Time

	mu       sync.Mutex
	sessions map[string][]Message
	prunedAt time.Time
}

func NewMemory(opts ...Option) *Memory {
	o := buildOptions(opts)
	return &Memory{
		now:      o.now,
		sessions: map[string][]Message{},
	}
}

func (m *Memory) Put(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if now.Sub(m.prunedAt) >= pruneInterval {
		for sessionID := range m.sessions {
			m.prune(sessionID, now)
		}
		m.prunedAt = now
	}

	messages := append(m.sessions[msg.SessionID], msg)
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt < messages[j].CreatedAt
	})
	m.sessions[msg.SessionID] = messages
	m.prune(msg.SessionID, now)
	return nil
}

func (m *Memory) prune(sessionID string, now time.Time) {
	var live []Message
	for _, msg := range m.sessions[sessionID] {
		if !msg.Expired(now) {
			live = append(live, msg)
		}
	}
	if len(live) == 0 {
		delete(m.sessions, sessionID)
		return
	}
	m.sessions[sessionID] = live
}

func (m *Memory) BySession(_ context.Context, sessionID string, limit int) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var messages []Message
	for _, msg := range m.sessions[sessionID] {
		if msg.Expired(now) {
			continue
		}
		messages = append(messages, msg)
		if limit > 0 && len(messages) == limit {
			break
		}
	}
	return messages, nil
}
