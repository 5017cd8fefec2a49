package sundaews

import (
	"context"

	sundaeerr "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-err"
	"github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-ws/connectiondao"
	"github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-ws/messagedao"
	"github.com/rs/zerolog"
)

func (c *Controller) handlePing(_ context.Context, s *Session, ev Event, msg messagedao.Message) (*Event, error) {
	return &Event{
		Type:      EventPong,
		ID:        ev.ID,
		SessionID: msg.SessionID,
		MessageID: msg.ID,
	}, nil
}

func (c *Controller) handleMessage(ctx context.Context, s *Session, ev Event, msg messagedao.Message) (*Event, error) {
	room := ev.Room
	if room == "" {
		room = s.Metadata[connectiondao.MetaRoom]
	}

	if room != "" && c.Broadcaster != nil {
		out := Event{
			Type:      EventMessage,
			SessionID: msg.SessionID,
			Room:      room,
			MessageID: msg.ID,
			From:      s.Subject,
			Payload:   ev.Payload,
		}
		if err := c.Broadcaster.Broadcast(ctx, room, s.ConnectionID, out.Bytes()); err != nil {
			// the message is durable; members can catch up through history
			zerolog.Ctx(ctx).Warn().Err(err).Str("room", room).Msg("failed to broadcast message")
		}
	}

	return &Event{
		Type:      EventAck,
		ID:        ev.ID,
		SessionID: msg.SessionID,
		Room:      room,
		MessageID: msg.ID,
	}, nil
}

func (c *Controller) handleJoin(ctx context.Context, s *Session, ev Event, msg messagedao.Message) (*Event, error) {
	if ev.Room == "" {
		return nil, sundaeerr.Validation(sundaeerr.CodeInvalidEvent, "room required")
	}
	conn, err := c.Registry.Merge(ctx, s.ConnectionID, map[string]string{connectiondao.MetaRoom: ev.Room})
	if err != nil {
		return nil, err
	}
	s.Metadata = conn.Metadata

	return &Event{
		Type:      EventAck,
		ID:        ev.ID,
		Room:      ev.Room,
		MessageID: msg.ID,
	}, nil
}

func (c *Controller) handleLeave(ctx context.Context, s *Session, ev Event, msg messagedao.Message) (*Event, error) {
	room := s.Metadata[connectiondao.MetaRoom]
	conn, err := c.Registry.Merge(ctx, s.ConnectionID, map[string]string{connectiondao.MetaRoom: ""})
	if err != nil {
		return nil, err
	}
	s.Metadata = conn.Metadata

	return &Event{
		Type:      EventAck,
		ID:        ev.ID,
		Room:      room,
		MessageID: msg.ID,
	}, nil
}

func (c *Controller) handleHistory(ctx context.Context, s *Session, ev Event, msg messagedao.Message) (*Event, error) {
	sessionID := s.SessionID(ev)
	messages, err := c.Relay.RetrieveBySession(ctx, sessionID, ev.Limit)
	if err != nil {
		return nil, err
	}

	return &Event{
		Type:      EventHistory,
		ID:        ev.ID,
		SessionID: sessionID,
		MessageID: msg.ID,
		Messages:  newHistoryEntries(messages),
	}, nil
}
