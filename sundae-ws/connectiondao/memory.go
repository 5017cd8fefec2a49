package connectiondao

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process registry for console mode and tests. It honours the
// same ttl semantics as DAO.
type Memory struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	conns map[string]Connection
}

func NewMemory(opts ...Option) *Memory {
	o := buildOptions(opts)
	return &Memory{
		ttl:   o.ttl,
		now:   o.now,
		conns: map[string]Connection{},
	}
}

func (m *Memory) Add(_ context.Context, conn Connection) error {
	now := m.now()
	conn = conn.clone()
	if conn.EstablishedAt == 0 {
		conn.EstablishedAt = now.Unix()
	}
	if conn.Metadata == nil {
		conn.Metadata = map[string]string{}
	}
	conn.TTL = now.Add(m.ttl).Unix()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[conn.ConnectionID] = conn
	return nil
}

func (m *Memory) Get(_ context.Context, connectionID string) (Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.conns[connectionID]
	if !ok || conn.Expired(m.now()) {
		return Connection{}, notFound(connectionID)
	}
	return conn.clone(), nil
}

func (m *Memory) Merge(_ context.Context, connectionID string, metadata map[string]string) (Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	conn, ok := m.conns[connectionID]
	if !ok || conn.Expired(now) {
		return Connection{}, notFound(connectionID)
	}
	conn = conn.clone()
	conn.merge(metadata)
	conn.TTL = now.Add(m.ttl).Unix()
	m.conns[connectionID] = conn
	return conn.clone(), nil
}

func (m *Memory) Remove(_ context.Context, connectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conns, connectionID)
	return nil
}

func (m *Memory) List(_ context.Context, limit int) ([]Connection, error) {
	return m.filter(limit, func(c Connection, now time.Time) bool {
		return !c.Expired(now)
	}), nil
}

func (m *Memory) FindByMetadata(_ context.Context, key, value string, limit int) ([]Connection, error) {
	return m.filter(limit, func(c Connection, now time.Time) bool {
		return !c.Expired(now) && c.Meta(key) == value
	}), nil
}

func (m *Memory) Expired(_ context.Context, limit int) ([]Connection, error) {
	return m.filter(limit, func(c Connection, now time.Time) bool {
		return c.Expired(now)
	}), nil
}

func (m *Memory) filter(limit int, keep func(Connection, time.Time) bool) []Connection {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var conns []Connection
	for _, conn := range m.conns {
		if keep(conn, now) {
			conns = append(conns, conn.clone())
		}
	}
	sort.Slice(conns, func(i, j int) bool {
		return conns[i].ConnectionID < conns[j].ConnectionID
	})
	if limit > 0 && len(conns) > limit {
		conns = conns[:limit]
	}
	return conns
}
