package sundaews

import (
	"context"
	"errors"
	"net/http"
	"testing"

	sundaeerr "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-err"
	"github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-ws/connectiondao"
	"github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-ws/messagedao"
	"github.com/tj/assert"
)

func TestRelay_AuthorizeSession(t *testing.T) {
	var (
		ctx = context.Background()
		f   = newFixture(t)
	)

	assert.NoError(t, f.relay.AuthorizeSession(ctx, "s1", "u2"))

	_, err := f.relay.Persist(ctx, "c1", `{"n":1}`, "s1", map[string]string{messagedao.MetaSubject: "u1"})
	assert.NoError(t, err)

	assert.NoError(t, f.relay.AuthorizeSession(ctx, "s1", "u1"))

	err = f.relay.AuthorizeSession(ctx, "s1", "u2")
	assert.True(t, sundaeerr.IsKind(err, sundaeerr.KindAuth))
	assert.Equal(t, sundaeerr.CodeForbidden, sundaeerr.From(err).Code)
	assert.Equal(t, http.StatusForbidden, sundaeerr.From(err).StatusCode)

	f.relay.Messages = failingMessages{err: errors.New("unavailable")}
	err = f.relay.AuthorizeSession(ctx, "s1", "u1")
	assert.Equal(t, sundaeerr.CodeMessageStoreError, sundaeerr.From(err).Code)
}

func TestRelay_Persist(t *testing.T) {
	ctx := context.Background()

	t.Run("stored before returning", func(t *testing.T) {
		f := newFixture(t)
		msg, err := f.relay.Persist(ctx, "c1", `{"type":"message"}`, "s1", map[string]string{"type": "message"})
		assert.NoError(t, err)
		assert.NotEqual(t, "", msg.ID)
		assert.Equal(t, "s1", msg.SessionID)
		assert.True(t, msg.TTL > msg.Created().Unix())

		got, err := f.messages.BySession(ctx, "s1", 0)
		assert.NoError(t, err)
		assert.Equal(t, 1, len(got))
		assert.Equal(t, msg.ID, got[0].ID)
	})

	t.Run("store failure", func(t *testing.T) {
		f := newFixture(t)
		f.relay.Messages = failingMessages{err: errors.New("ProvisionedThroughputExceededException")}

		_, err := f.relay.Persist(ctx, "c1", "hello", "s1", nil)
		e, ok := sundaeerr.As(err)
		assert.True(t, ok)
		assert.Equal(t, sundaeerr.CodeMessageStoreError, e.Code)
		assert.Equal(t, "c1", e.ConnectionID)
	})
}

func TestRelay_RetrieveBySession(t *testing.T) {
	var (
		ctx = context.Background()
		f   = newFixture(t)
	)

	for _, content := range []string{"a", "b", "c"} {
		_, err := f.relay.Persist(ctx, "c1", content, "s1", nil)
		assert.NoError(t, err)
	}
	_, err := f.relay.Persist(ctx, "c2", "other", "s2", nil)
	assert.NoError(t, err)

	t.Run("oldest first", func(t *testing.T) {
		got, err := f.relay.RetrieveBySession(ctx, "s1", 0)
		assert.NoError(t, err)
		assert.Equal(t, 3, len(got))
		assert.Equal(t, "a", got[0].Content)
		assert.Equal(t, "c", got[2].Content)
	})

	t.Run("limit", func(t *testing.T) {
		got, err := f.relay.RetrieveBySession(ctx, "s1", 2)
		assert.NoError(t, err)
		assert.Equal(t, 2, len(got))
		assert.Equal(t, "b", got[1].Content)
	})

	t.Run("sessions are isolated", func(t *testing.T) {
		got, err := f.relay.RetrieveBySession(ctx, "s2", 0)
		assert.NoError(t, err)
		assert.Equal(t, 1, len(got))
		assert.Equal(t, "other", got[0].Content)

		got, err = f.relay.RetrieveBySession(ctx, "unknown", 0)
		assert.NoError(t, err)
		assert.Equal(t, 0, len(got))
	})

	t.Run("session required", func(t *testing.T) {
		_, err := f.relay.RetrieveBySession(ctx, "", 0)
		assert.True(t, sundaeerr.IsKind(err, sundaeerr.KindValidation))
	})
}

func TestRelay_Deliver(t *testing.T) {
	ctx := context.Background()

	t.Run("delivered", func(t *testing.T) {
		f := newFixture(t)
		f.connect(t, "c1", "u1", "")

		ok, err := f.relay.Deliver(ctx, "c1", []byte(`{"type":"pong"}`))
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 1, f.transport.count("c1"))
	})

	t.Run("unknown connection", func(t *testing.T) {
		f := newFixture(t)
		ok, err := f.relay.Deliver(ctx, "nope", []byte("x"))
		assert.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, 0, f.transport.count("nope"))
	})

	t.Run("unauthenticated connection", func(t *testing.T) {
		f := newFixture(t)
		assert.NoError(t, f.registry.Add(ctx, connectiondao.Connection{ConnectionID: "anon"}))

		ok, err := f.relay.Deliver(ctx, "anon", []byte("x"))
		assert.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, 0, f.transport.count("anon"))
	})

	t.Run("gone prunes once", func(t *testing.T) {
		f := newFixture(t)
		registry := &failingRegistry{Registry: f.registry}
		f.relay.Registry = registry
		f.connect(t, "c1", "u1", "")
		f.transport.setGone("c1")

		ok, err := f.relay.Deliver(ctx, "c1", []byte("x"))
		assert.NoError(t, err)
		assert.False(t, ok)

		_, err = f.registry.Get(ctx, "c1")
		assert.True(t, connectiondao.IsNotFound(err))

		ok, err = f.relay.Deliver(ctx, "c1", []byte("x"))
		assert.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, []string{"c1"}, registry.removed)
	})

	t.Run("transient failure keeps connection", func(t *testing.T) {
		f := newFixture(t)
		f.connect(t, "c1", "u1", "")
		f.transport.setBroken("c1")

		ok, err := f.relay.Deliver(ctx, "c1", []byte("x"))
		assert.False(t, ok)
		e, isErr := sundaeerr.As(err)
		assert.True(t, isErr)
		assert.Equal(t, sundaeerr.CodeDeliveryFailed, e.Code)

		_, err = f.registry.Get(ctx, "c1")
		assert.NoError(t, err)
	})
}

func TestRelay_PersistAndDeliver(t *testing.T) {
	ctx := context.Background()

	t.Run("store failure leaves nothing behind", func(t *testing.T) {
		f := newFixture(t)
		f.connect(t, "c1", "u1", "")
		registry := &failingRegistry{Registry: f.registry}
		f.relay.Registry = registry
		f.relay.Messages = failingMessages{err: errors.New("unavailable")}

		msg, delivered, err := f.relay.PersistAndDeliver(ctx, "c1", "hello", "s1", nil)
		assert.NotNil(t, err)
		assert.False(t, delivered)
		assert.Equal(t, "", msg.ID)
		assert.Equal(t, 0, f.transport.count("c1"))
		assert.Equal(t, 0, len(registry.removed))
	})

	t.Run("delivery failure still durable", func(t *testing.T) {
		f := newFixture(t)
		f.connect(t, "c1", "u1", "")
		f.transport.setBroken("c1")

		msg, delivered, err := f.relay.PersistAndDeliver(ctx, "c1", "hello", "s1", nil)
		assert.NoError(t, err)
		assert.False(t, delivered)
		assert.NotEqual(t, "", msg.ID)

		got, err := f.relay.RetrieveBySession(ctx, "s1", 0)
		assert.NoError(t, err)
		assert.Equal(t, 1, len(got))
	})

	t.Run("delivered", func(t *testing.T) {
		f := newFixture(t)
		f.connect(t, "c1", "u1", "")

		_, delivered, err := f.relay.PersistAndDeliver(ctx, "c1", `{"n":1}`, "s1", nil)
		assert.NoError(t, err)
		assert.True(t, delivered)
		assert.Equal(t, 1, f.transport.count("c1"))
	})
}
