package sundaews

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// errNotReady is returned for a connection that has been reserved but not yet
// upgraded. It is deliberately not ErrGone so the row is not pruned.
var errNotReady = errors.New("connection not ready")

type socket struct {
	mu   sync.Mutex // gorilla/websocket supports one concurrent writer
	conn *websocket.Conn
}

func (s *socket) write(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, data)
}

// SocketTransport delivers to websockets held by this process.
type SocketTransport struct {
	mu      sync.RWMutex
	sockets map[string]*socket // nil value means reserved
}

func NewSocketTransport() *SocketTransport {
	return &SocketTransport{
		sockets: map[string]*socket{},
	}
}

// Reserve marks connectionID as being established so deliveries in the window
// between registration and upgrade fail without pruning the connection.
func (t *SocketTransport) Reserve(connectionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.sockets[connectionID]; !ok {
		t.sockets[connectionID] = nil
	}
}

func (t *SocketTransport) Register(connectionID string, conn *websocket.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sockets[connectionID] = &socket{conn: conn}
}

func (t *SocketTransport) Unregister(connectionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sockets, connectionID)
}

func (t *SocketTransport) lookup(connectionID string) (*socket, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.sockets[connectionID]
	switch {
	case !ok:
		return nil, fmt.Errorf("%w: %v", ErrGone, connectionID)
	case s == nil:
		return nil, fmt.Errorf("%w: %v", errNotReady, connectionID)
	default:
		return s, nil
	}
}

func (t *SocketTransport) Send(_ context.Context, connectionID string, data []byte) error {
	s, err := t.lookup(connectionID)
	if err != nil {
		return err
	}
	if err := s.write(websocket.TextMessage, data); err != nil {
		t.Unregister(connectionID)
		return fmt.Errorf("%w: %v: %v", ErrGone, connectionID, err)
	}
	return nil
}

func (t *SocketTransport) ping(connectionID string) error {
	s, err := t.lookup(connectionID)
	if err != nil {
		return err
	}
	return s.write(websocket.PingMessage, nil)
}

// Close sends a close frame and drops the socket. Unknown connections are
// ignored.
func (t *SocketTransport) Close(_ context.Context, connectionID string) error {
	s, err := t.lookup(connectionID)
	if err != nil {
		t.Unregister(connectionID)
		return nil
	}
	t.Unregister(connectionID)

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed")
	_ = s.write(websocket.CloseMessage, msg)
	return s.conn.Close()
}
