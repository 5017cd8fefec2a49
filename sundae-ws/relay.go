package sundaews

import (
	"context"
	"errors"
	"net/http"
	"time"

	sundaecli "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-cli"
	sundaeerr "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-err"
	"github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-ws/connectiondao"
	"github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-ws/messagedao"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultMessageTTL   = 30 * 24 * time.Hour
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

// Relay records messages durably and pushes payloads to live connections.
type Relay struct {
	Registry   Registry
	Messages   MessageStore
	Transport  Transport
	Metrics    sundaecli.Metrics
	Logger     zerolog.Logger
	MessageTTL time.Duration
	Now        func() time.Time
}

func (r *Relay) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Persist stores content under sessionID. It returns only after the store has
// acknowledged the write.
func (r *Relay) Persist(ctx context.Context, connectionID, content, sessionID string, metadata map[string]string) (messagedao.Message, error) {
	ttl := r.MessageTTL
	if ttl <= 0 {
		ttl = DefaultMessageTTL
	}

	now := r.now()
	msg := messagedao.Message{
		ID:           uuid.NewString(),
		ConnectionID: connectionID,
		SessionID:    sessionID,
		CreatedAt:    now.UnixNano(),
		Content:      content,
		Metadata:     metadata,
		TTL:          now.Add(ttl).Unix(),
	}
	if err := r.Messages.Put(ctx, msg); err != nil {
		return messagedao.Message{}, sundaeerr.Connection(sundaeerr.CodeMessageStoreError, "message store unavailable").
			Wrap(err).
			WithConnection(connectionID)
	}

	r.Metrics.Event(ctx, sundaecli.MessagePersistedMetric)
	return msg, nil
}

// AuthorizeSession fails when sessionID already holds messages written by a
// subject other than subject. The oldest live message decides the owner.
func (r *Relay) AuthorizeSession(ctx context.Context, sessionID, subject string) error {
	messages, err := r.Messages.BySession(ctx, sessionID, 1)
	if err != nil {
		return sundaeerr.Connection(sundaeerr.CodeMessageStoreError, "message store unavailable").Wrap(err)
	}
	if len(messages) == 0 {
		return nil
	}
	if owner := messages[0].Metadata[messagedao.MetaSubject]; owner != "" && owner != subject {
		return sundaeerr.Auth(sundaeerr.CodeForbidden, "session belongs to another subject").
			WithStatus(http.StatusForbidden)
	}
	return nil
}

// RetrieveBySession returns a session's messages oldest first.
func (r *Relay) RetrieveBySession(ctx context.Context, sessionID string, limit int) ([]messagedao.Message, error) {
	if sessionID == "" {
		return nil, sundaeerr.Validation(sundaeerr.CodeInvalidEvent, "session id required")
	}
	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}

	messages, err := r.Messages.BySession(ctx, sessionID, limit)
	if err != nil {
		return nil, sundaeerr.Connection(sundaeerr.CodeMessageStoreError, "message store unavailable").Wrap(err)
	}
	return messages, nil
}

// Deliver makes exactly one attempt to push payload to connectionID. It reports
// false without error when the connection is unknown, unauthenticated, or gone;
// a gone connection is removed from the registry.
func (r *Relay) Deliver(ctx context.Context, connectionID string, payload []byte) (bool, error) {
	logger := r.Logger.With().Str("connection_id", connectionID).Logger()

	conn, err := r.Registry.Get(ctx, connectionID)
	if err != nil {
		if connectiondao.IsNotFound(err) {
			logger.Debug().Msg("skipping delivery to unknown connection")
			return false, nil
		}
		return false, err
	}
	if !conn.Authenticated() {
		logger.Warn().Msg("refusing delivery to unauthenticated connection")
		return false, nil
	}

	err = r.Transport.Send(ctx, connectionID, payload)
	switch {
	case err == nil:
		return true, nil

	case errors.Is(err, ErrGone):
		logger.Info().Msg("connection gone, pruning")
		r.Metrics.Event(ctx, sundaecli.DeliveryGoneMetric)
		if err := r.Registry.Remove(ctx, connectionID); err != nil {
			logger.Warn().Err(err).Msg("failed to prune gone connection")
		}
		return false, nil

	default:
		return false, sundaeerr.Connection(sundaeerr.CodeDeliveryFailed, "delivery failed").
			Wrap(err).
			WithConnection(connectionID)
	}
}

// PersistAndDeliver persists content then delivers it to connectionID. A
// persistence failure fails the call. A delivery failure does not: the message
// is durable and is returned with delivered set to false.
func (r *Relay) PersistAndDeliver(ctx context.Context, connectionID, content, sessionID string, metadata map[string]string) (messagedao.Message, bool, error) {
	msg, err := r.Persist(ctx, connectionID, content, sessionID, metadata)
	if err != nil {
		return messagedao.Message{}, false, err
	}

	delivered, err := r.Deliver(ctx, connectionID, []byte(content))
	if err != nil {
		r.Logger.Warn().Err(err).
			Str("connection_id", connectionID).
			Str("message_id", msg.ID).
			Msg("message persisted but not delivered")
		return msg, false, nil
	}
	return msg, delivered, nil
}
