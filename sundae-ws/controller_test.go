package sundaews

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	sundaeauth "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-auth"
	sundaeerr "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-err"
	"github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-ws/connectiondao"
	"github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-ws/messagedao"
	"github.com/rs/zerolog"
	"github.com/tj/assert"
)

// blockingVerifier waits for the caller to give up.
type blockingVerifier struct{}

func (blockingVerifier) Verify(ctx context.Context, _ string) (sundaeauth.Identity, error) {
	<-ctx.Done()
	return sundaeauth.Identity{}, ctx.Err()
}

func TestController_Lifecycle(t *testing.T) {
	var (
		ctx = context.Background()
		f   = newFixture(t)
	)

	s := f.connect(t, "c1", "u1", "s1")
	assert.Equal(t, StateActive, s.State)
	assert.Equal(t, "u1", s.Subject)
	assert.NotEqual(t, "", s.RequestID)

	conn, err := f.registry.Get(ctx, "c1")
	assert.NoError(t, err)
	assert.Equal(t, "u1", conn.Subject)
	assert.Equal(t, "https://idp.example.com/", conn.Issuer)
	assert.Equal(t, "s1", conn.Meta(connectiondao.MetaSessionID))
	assert.Equal(t, s.RequestID, conn.Meta(connectiondao.MetaRequestID))

	err = f.controller.Receive(ctx, "c1", `{"type":"ping","id":"p1"}`)
	assert.NoError(t, err)

	pong := f.transport.last(t, "c1")
	assert.Equal(t, EventPong, pong.Type)
	assert.Equal(t, "p1", pong.ID)
	assert.Equal(t, "s1", pong.SessionID)
	assert.NotEqual(t, "", pong.MessageID)

	persisted, err := f.messages.BySession(ctx, "s1", 0)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(persisted))
	assert.Equal(t, pong.MessageID, persisted[0].ID)
	assert.Equal(t, "c1", persisted[0].ConnectionID)
	assert.Equal(t, "ping", persisted[0].Metadata["type"])
	assert.Equal(t, "u1", persisted[0].Metadata["subject"])

	f.controller.Disconnect(ctx, "c1")
	_, err = f.registry.Get(ctx, "c1")
	assert.True(t, connectiondao.IsNotFound(err))

	err = f.controller.Receive(ctx, "c1", `{"type":"ping"}`)
	assert.True(t, sundaeerr.IsKind(err, sundaeerr.KindNotFound))

	// disconnecting twice is harmless
	f.controller.Disconnect(ctx, "c1")
}

func TestController_Connect(t *testing.T) {
	ctx := context.Background()

	t.Run("expired token", func(t *testing.T) {
		f := newFixture(t)
		s, err := f.controller.Connect(ctx, ConnectRequest{
			ConnectionID: "c1",
			Headers: map[string]string{
				"cookie":       "access_token=expired-jwt",
				"X-Request-Id": "r-123",
			},
		})
		e, ok := sundaeerr.As(err)
		assert.True(t, ok)
		assert.Equal(t, sundaeerr.CodeTokenExpired, e.Code)
		assert.Equal(t, http.StatusUnauthorized, e.StatusCode)
		assert.Equal(t, "c1", e.ConnectionID)
		assert.Equal(t, StateClosed, s.State)
		assert.Equal(t, "r-123", s.RequestID)

		_, err = f.registry.Get(ctx, "c1")
		assert.True(t, connectiondao.IsNotFound(err))
	})

	t.Run("missing credential", func(t *testing.T) {
		f := newFixture(t)
		s, err := f.controller.Connect(ctx, ConnectRequest{ConnectionID: "c1"})
		e, ok := sundaeerr.As(err)
		assert.True(t, ok)
		assert.Equal(t, sundaeerr.CodeMissingCredential, e.Code)
		assert.NotEqual(t, "", s.RequestID)
	})

	t.Run("stateless rejection removes row", func(t *testing.T) {
		f := newFixture(t)
		f.controller.Stateless = true
		assert.NoError(t, f.registry.Add(ctx, connectiondao.Connection{ConnectionID: "c1"}))

		_, err := f.controller.Connect(ctx, ConnectRequest{
			ConnectionID: "c1",
			Headers:      map[string]string{"Cookie": "access_token=forged"},
		})
		assert.True(t, sundaeerr.IsKind(err, sundaeerr.KindAuth))

		_, err = f.registry.Get(ctx, "c1")
		assert.True(t, connectiondao.IsNotFound(err))
	})

	t.Run("session header wins over query", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.controller.Connect(ctx, ConnectRequest{
			ConnectionID: "c1",
			Headers: map[string]string{
				"Authorization": "Bearer u1-token",
				"X-Session-Id":  "from-header",
			},
			Query: map[string]string{"sessionId": "from-query"},
		})
		assert.NoError(t, err)

		conn, err := f.registry.Get(ctx, "c1")
		assert.NoError(t, err)
		assert.Equal(t, "from-header", conn.Meta(connectiondao.MetaSessionID))
	})

	t.Run("timeout", func(t *testing.T) {
		f := newFixture(t)
		f.controller.Gate = &sundaeauth.Gate{Verifier: blockingVerifier{}, Logger: zerolog.Nop()}
		f.controller.AuthTimeout = 10 * time.Millisecond

		_, err := f.controller.Connect(ctx, ConnectRequest{
			ConnectionID: "c1",
			Headers:      map[string]string{"Cookie": "access_token=u1-token"},
		})
		e, ok := sundaeerr.As(err)
		assert.True(t, ok)
		assert.Equal(t, sundaeerr.CodeTimeout, e.Code)
		assert.Equal(t, http.StatusServiceUnavailable, e.StatusCode)

		_, err = f.registry.Get(ctx, "c1")
		assert.True(t, connectiondao.IsNotFound(err))
	})

	t.Run("registry failure rolls back", func(t *testing.T) {
		f := newFixture(t)
		registry := &failingRegistry{Registry: f.registry, addErr: errors.New("boom")}
		f.controller.Registry = registry

		s, err := f.controller.Connect(ctx, ConnectRequest{
			ConnectionID: "c1",
			Headers:      map[string]string{"Cookie": "access_token=u1-token"},
		})
		assert.NotNil(t, err)
		assert.Equal(t, StateClosed, s.State)
		assert.Equal(t, []string{"c1"}, registry.removed)
	})
}

func TestController_Receive(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown event", func(t *testing.T) {
		f := newFixture(t)
		f.connect(t, "c1", "u1", "s1")

		err := f.controller.Receive(ctx, "c1", `{"type":"dance","id":"d1"}`)
		assert.NoError(t, err)

		ev := f.transport.last(t, "c1")
		assert.Equal(t, EventError, ev.Type)
		assert.Equal(t, "d1", ev.ID)
		assert.Equal(t, sundaeerr.CodeUnknownEvent, ev.Error.Code)
		assert.Equal(t, http.StatusBadRequest, ev.Error.Status)
		assert.Equal(t, "c1", ev.Error.ConnectionID)

		persisted, err := f.messages.BySession(ctx, "s1", 0)
		assert.NoError(t, err)
		assert.Equal(t, 0, len(persisted))
	})

	t.Run("malformed event", func(t *testing.T) {
		f := newFixture(t)
		f.connect(t, "c1", "u1", "")

		assert.NoError(t, f.controller.Receive(ctx, "c1", `not json`))
		ev := f.transport.last(t, "c1")
		assert.Equal(t, EventError, ev.Type)
		assert.Equal(t, sundaeerr.CodeInvalidEvent, ev.Error.Code)
	})

	t.Run("unauthenticated connection", func(t *testing.T) {
		f := newFixture(t)
		assert.NoError(t, f.registry.Add(ctx, connectiondao.Connection{ConnectionID: "anon"}))

		err := f.controller.Receive(ctx, "anon", `{"type":"ping"}`)
		assert.True(t, sundaeerr.IsKind(err, sundaeerr.KindAuth))
		assert.Equal(t, 0, f.transport.count("anon"))
	})

	t.Run("store failure reported", func(t *testing.T) {
		f := newFixture(t)
		f.connect(t, "c1", "u1", "")
		f.relay.Messages = failingMessages{err: errors.New("unavailable")}

		err := f.controller.Receive(ctx, "c1", `{"type":"ping","id":"p1"}`)
		assert.NotNil(t, err)

		ev := f.transport.last(t, "c1")
		assert.Equal(t, EventError, ev.Type)
		assert.Equal(t, sundaeerr.CodeMessageStoreError, ev.Error.Code)
	})

	t.Run("session defaults to connection id", func(t *testing.T) {
		f := newFixture(t)
		f.connect(t, "c1", "u1", "")

		assert.NoError(t, f.controller.Receive(ctx, "c1", `{"type":"ping"}`))
		persisted, err := f.messages.BySession(ctx, "c1", 0)
		assert.NoError(t, err)
		assert.Equal(t, 1, len(persisted))
	})

	t.Run("custom handler", func(t *testing.T) {
		f := newFixture(t)
		f.connect(t, "c1", "u1", "s1")
		f.controller.Handle("echo", func(ctx context.Context, s *Session, ev Event, msg messagedao.Message) (*Event, error) {
			return &Event{Type: "echo", ID: ev.ID, Payload: ev.Payload, From: s.Subject}, nil
		})

		assert.NoError(t, f.controller.Receive(ctx, "c1", `{"type":"echo","id":"e1","payload":{"n":1}}`))
		ev := f.transport.last(t, "c1")
		assert.Equal(t, "echo", ev.Type)
		assert.Equal(t, "u1", ev.From)
		assert.Equal(t, json.RawMessage(`{"n":1}`), ev.Payload)
	})
}

func TestController_Rooms(t *testing.T) {
	var (
		ctx = context.Background()
		f   = newFixture(t)
	)

	f.connect(t, "c1", "u1", "")
	f.connect(t, "c2", "u2", "")
	f.connect(t, "c3", "u3", "")

	assert.NoError(t, f.controller.Receive(ctx, "c1", `{"type":"join","id":"j1","room":"lobby"}`))
	assert.NoError(t, f.controller.Receive(ctx, "c2", `{"type":"join","id":"j2","room":"lobby"}`))

	ack := f.transport.last(t, "c1")
	assert.Equal(t, EventAck, ack.Type)
	assert.Equal(t, "j1", ack.ID)
	assert.Equal(t, "lobby", ack.Room)

	conn, err := f.registry.Get(ctx, "c1")
	assert.NoError(t, err)
	assert.Equal(t, "lobby", conn.Meta(connectiondao.MetaRoom))

	t.Run("join requires room", func(t *testing.T) {
		assert.NoError(t, f.controller.Receive(ctx, "c3", `{"type":"join"}`))
		ev := f.transport.last(t, "c3")
		assert.Equal(t, EventError, ev.Type)
		assert.Equal(t, sundaeerr.CodeInvalidEvent, ev.Error.Code)
	})

	t.Run("message fans out to other members", func(t *testing.T) {
		before := f.transport.count("c1")
		assert.NoError(t, f.controller.Receive(ctx, "c1", `{"type":"message","id":"m1","payload":{"text":"hi"}}`))

		got := f.transport.last(t, "c2")
		assert.Equal(t, EventMessage, got.Type)
		assert.Equal(t, "lobby", got.Room)
		assert.Equal(t, "u1", got.From)
		assert.Equal(t, json.RawMessage(`{"text":"hi"}`), got.Payload)

		// the sender only gets its ack
		assert.Equal(t, before+1, f.transport.count("c1"))
		ack := f.transport.last(t, "c1")
		assert.Equal(t, EventAck, ack.Type)
		assert.Equal(t, got.MessageID, ack.MessageID)

		// c3 never joined; it only holds the earlier error
		assert.Equal(t, 1, f.transport.count("c3"))
	})

	t.Run("leave", func(t *testing.T) {
		assert.NoError(t, f.controller.Receive(ctx, "c2", `{"type":"leave","id":"l1"}`))
		ack := f.transport.last(t, "c2")
		assert.Equal(t, EventAck, ack.Type)
		assert.Equal(t, "lobby", ack.Room)

		conn, err := f.registry.Get(ctx, "c2")
		assert.NoError(t, err)
		assert.Equal(t, "", conn.Meta(connectiondao.MetaRoom))

		before := f.transport.count("c2")
		assert.NoError(t, f.controller.Receive(ctx, "c1", `{"type":"message","payload":"again"}`))
		assert.Equal(t, before, f.transport.count("c2"))
	})
}

func TestController_History(t *testing.T) {
	var (
		ctx = context.Background()
		f   = newFixture(t)
	)

	f.connect(t, "c1", "u1", "s1")
	f.connect(t, "c2", "u2", "s2")

	assert.NoError(t, f.controller.Receive(ctx, "c1", `{"type":"message","payload":"a"}`))
	assert.NoError(t, f.controller.Receive(ctx, "c1", `{"type":"message","payload":"b"}`))
	assert.NoError(t, f.controller.Receive(ctx, "c2", `{"type":"message","payload":"z"}`))

	t.Run("own session only", func(t *testing.T) {
		assert.NoError(t, f.controller.Receive(ctx, "c1", `{"type":"history","id":"h1"}`))
		ev := f.transport.last(t, "c1")
		assert.Equal(t, EventHistory, ev.Type)
		assert.Equal(t, "h1", ev.ID)
		assert.Equal(t, "s1", ev.SessionID)

		// the history request itself is recorded before it runs
		assert.Equal(t, 3, len(ev.Messages))
		for _, entry := range ev.Messages {
			assert.Equal(t, "s1", entry.SessionID)
			assert.Equal(t, "c1", entry.ConnectionID)
		}
		assert.True(t, ev.Messages[0].CreatedAt.Before(ev.Messages[1].CreatedAt))
	})

	t.Run("limit", func(t *testing.T) {
		assert.NoError(t, f.controller.Receive(ctx, "c2", `{"type":"history","limit":1}`))
		ev := f.transport.last(t, "c2")
		assert.Equal(t, 1, len(ev.Messages))
		assert.Equal(t, "s2", ev.Messages[0].SessionID)
	})

	t.Run("another subject's session refused", func(t *testing.T) {
		before, err := f.messages.BySession(ctx, "s1", 0)
		assert.NoError(t, err)

		assert.NoError(t, f.controller.Receive(ctx, "c2", `{"type":"message","id":"m1","sessionId":"s1","payload":"injected"}`))
		ev := f.transport.last(t, "c2")
		assert.Equal(t, EventError, ev.Type)
		assert.Equal(t, "m1", ev.ID)
		assert.Equal(t, sundaeerr.CodeForbidden, ev.Error.Code)
		assert.Equal(t, http.StatusForbidden, ev.Error.Status)

		assert.NoError(t, f.controller.Receive(ctx, "c2", `{"type":"history","id":"h2","sessionId":"s1"}`))
		ev = f.transport.last(t, "c2")
		assert.Equal(t, EventError, ev.Type)
		assert.Equal(t, sundaeerr.CodeForbidden, ev.Error.Code)

		after, err := f.messages.BySession(ctx, "s1", 0)
		assert.NoError(t, err)
		assert.Equal(t, len(before), len(after))
	})
}

func TestSession_SessionID(t *testing.T) {
	s := &Session{ConnectionID: "c1", Metadata: map[string]string{}}
	assert.Equal(t, "c1", s.SessionID(Event{}))

	s.Metadata[connectiondao.MetaSessionID] = "bound"
	assert.Equal(t, "bound", s.SessionID(Event{}))
	assert.Equal(t, "explicit", s.SessionID(Event{SessionID: "explicit"}))
}
