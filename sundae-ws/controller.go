package sundaews

import (
	"context"
	"time"

	sundaeauth "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-auth"
	sundaecli "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-cli"
	sundaeerr "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-err"
	"github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-ws/connectiondao"
	"github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-ws/messagedao"
	"github.com/rs/zerolog"
)

const DefaultAuthTimeout = 5 * time.Second

const sessionIDHeader = "x-session-id"

type State int

const (
	StateConnecting State = iota
	StateAuthenticated
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	default:
		return "closed"
	}
}

// Session is the per-call view of a connection. It is rebuilt from the registry
// on every inbound event and never outlives the call that created it.
type Session struct {
	ConnectionID string
	RequestID    string
	Subject      string
	Issuer       string
	Metadata     map[string]string
	State        State
}

// SessionID resolves the message grouping key for ev: the event's own session
// id, then the one bound at connect, then the connection id.
func (s *Session) SessionID(ev Event) string {
	if ev.SessionID != "" {
		return ev.SessionID
	}
	if id := s.Metadata[connectiondao.MetaSessionID]; id != "" {
		return id
	}
	return s.ConnectionID
}

// Authenticator is satisfied by *sundaeauth.Gate.
type Authenticator interface {
	Authenticate(ctx context.Context, req sundaeauth.Request) (sundaeauth.Result, error)
}

// Broadcaster fans a payload out to the members of a room.
type Broadcaster interface {
	Broadcast(ctx context.Context, room, sender string, payload []byte) error
}

// HandlerFunc handles one inbound event. msg is the persisted copy of the event.
// A nil reply sends nothing back.
type HandlerFunc func(ctx context.Context, s *Session, ev Event, msg messagedao.Message) (*Event, error)

// Controller sequences connect, authenticate, active and closed for both
// transports. It keeps no state between calls.
type Controller struct {
	Gate        Authenticator
	Registry    Registry
	Relay       *Relay
	Broadcaster Broadcaster
	Metrics     sundaecli.Metrics
	Logger      zerolog.Logger
	AuthTimeout time.Duration
	// Stateless is set when every event arrives in a separate invocation.
	Stateless bool
	Now       func() time.Time

	handlers map[string]HandlerFunc
}

// Handle registers fn for events of type eventType, replacing any default.
func (c *Controller) Handle(eventType string, fn HandlerFunc) {
	if c.handlers == nil {
		c.handlers = map[string]HandlerFunc{}
	}
	c.handlers[eventType] = fn
}

func (c *Controller) handler(eventType string) (HandlerFunc, bool) {
	if fn, ok := c.handlers[eventType]; ok {
		return fn, true
	}
	switch eventType {
	case EventPing:
		return c.handlePing, true
	case EventMessage:
		return c.handleMessage, true
	case EventJoin:
		return c.handleJoin, true
	case EventLeave:
		return c.handleLeave, true
	case EventHistory:
		return c.handleHistory, true
	}
	return nil, false
}

func (c *Controller) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

type ConnectRequest struct {
	ConnectionID string
	Headers      map[string]string
	Query        map[string]string
}

// Connect authenticates the connection and registers it. The returned Session
// is never nil and always carries the request id, so callers can build the
// rejection payload from it. Errors are *sundaeerr.Error values.
func (c *Controller) Connect(ctx context.Context, req ConnectRequest) (*Session, error) {
	timeout := c.AuthTimeout
	if timeout <= 0 {
		timeout = DefaultAuthTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s := &Session{
		ConnectionID: req.ConnectionID,
		State:        StateConnecting,
	}

	result, err := c.Gate.Authenticate(ctx, sundaeauth.Request{
		ConnectionID: req.ConnectionID,
		Headers:      req.Headers,
		Stateless:    c.Stateless,
	})
	s.RequestID = result.RequestID
	logger := c.Logger.With().
		Str("connection_id", req.ConnectionID).
		Str("request_id", s.RequestID).
		Logger()

	if err != nil {
		s.State = StateClosed
		e := sundaeerr.From(err).WithConnection(req.ConnectionID)
		c.Metrics.Event(ctx, sundaecli.AuthFailureMetric, map[sundaecli.DimensionName]string{
			sundaecli.ErrorCodeDimension: e.Code,
		})
		return s, e
	}

	s.State = StateAuthenticated
	s.Subject = result.Identity.Subject
	s.Issuer = result.Identity.Issuer
	s.Metadata = map[string]string{
		connectiondao.MetaRequestID: s.RequestID,
	}
	if id := sundaeauth.Header(req.Headers, sessionIDHeader); id != "" {
		s.Metadata[connectiondao.MetaSessionID] = id
	} else if id := req.Query["sessionId"]; id != "" {
		s.Metadata[connectiondao.MetaSessionID] = id
	}

	err = c.Registry.Add(ctx, connectiondao.Connection{
		ConnectionID:  req.ConnectionID,
		Subject:       s.Subject,
		Issuer:        s.Issuer,
		RequestID:     s.RequestID,
		EstablishedAt: c.now().Unix(),
		Metadata:      s.Metadata,
	})
	if err == nil && ctx.Err() != nil {
		err = sundaeerr.Connection(sundaeerr.CodeTimeout, "connect timed out").Wrap(ctx.Err())
	}
	if err != nil {
		s.State = StateClosed
		// the add may have landed even though it reported failure
		if rmErr := c.Registry.Remove(context.WithoutCancel(ctx), req.ConnectionID); rmErr != nil {
			logger.Warn().Err(rmErr).Msg("failed to roll back connection registration")
		}
		logger.Error().Err(err).Msg("failed to register connection")
		return s, sundaeerr.From(err).WithConnection(req.ConnectionID)
	}

	s.State = StateActive
	c.Metrics.Event(ctx, sundaecli.ConnectMetric)
	logger.Info().
		Str("subject", s.Subject).
		Str("state", s.State.String()).
		Msg("connection authenticated")
	return s, nil
}

// Receive handles one inbound event. Validation and handler failures are sent
// back to the client as error events. The returned error is non-nil only when
// the failure is not the client's fault.
func (c *Controller) Receive(ctx context.Context, connectionID, body string) error {
	s, err := c.rehydrate(ctx, connectionID)
	if err != nil {
		c.Logger.Warn().Err(err).Str("connection_id", connectionID).Msg("event from unknown connection")
		return err
	}

	logger := c.Logger.With().
		Str("connection_id", connectionID).
		Str("request_id", s.RequestID).
		Logger()
	ctx = logger.WithContext(ctx)

	ev, reply, err := c.dispatch(ctx, s, body)
	if err != nil {
		e := sundaeerr.From(err).WithConnection(connectionID)
		logger.Info().Err(err).Str("type", ev.Type).Str("code", e.Code).Msg("event failed")
		errorEvent := ErrorEvent(ev.ID, e.Payload(s.RequestID, c.now()))
		reply = &errorEvent
		err = e
	}

	if reply != nil {
		if _, deliverErr := c.Relay.Deliver(ctx, connectionID, reply.Bytes()); deliverErr != nil {
			logger.Warn().Err(deliverErr).Str("type", reply.Type).Msg("failed to deliver reply")
		}
	}

	if err != nil && !sundaeerr.IsKind(err, sundaeerr.KindValidation) && !sundaeerr.IsKind(err, sundaeerr.KindAuth) {
		return err
	}
	return nil
}

func (c *Controller) dispatch(ctx context.Context, s *Session, body string) (Event, *Event, error) {
	ev, err := ParseEvent(body)
	if err != nil {
		return ev, nil, err
	}

	fn, ok := c.handler(ev.Type)
	if !ok {
		return ev, nil, sundaeerr.Validation(sundaeerr.CodeUnknownEvent, "unknown event type "+ev.Type)
	}

	sessionID := s.SessionID(ev)
	if err := c.Relay.AuthorizeSession(ctx, sessionID, s.Subject); err != nil {
		return ev, nil, err
	}

	msg, err := c.Relay.Persist(ctx, s.ConnectionID, body, sessionID, map[string]string{
		messagedao.MetaType:    ev.Type,
		messagedao.MetaSubject: s.Subject,
	})
	if err != nil {
		return ev, nil, err
	}

	reply, err := fn(ctx, s, ev, msg)
	return ev, reply, err
}

// rehydrate rebuilds the Session from the registry. Connections without a
// verified subject are rejected.
func (c *Controller) rehydrate(ctx context.Context, connectionID string) (*Session, error) {
	conn, err := c.Registry.Get(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if !conn.Authenticated() {
		return nil, sundaeerr.Auth(sundaeerr.CodeUnauthorized, "unauthorized").WithConnection(connectionID)
	}
	return &Session{
		ConnectionID: conn.ConnectionID,
		RequestID:    conn.RequestID,
		Subject:      conn.Subject,
		Issuer:       conn.Issuer,
		Metadata:     conn.Metadata,
		State:        StateActive,
	}, nil
}

// Disconnect removes the connection. It is idempotent and never fails; a
// registry error is logged and left to ttl expiry.
func (c *Controller) Disconnect(ctx context.Context, connectionID string) {
	logger := c.Logger.With().Str("connection_id", connectionID).Logger()
	if err := c.Registry.Remove(ctx, connectionID); err != nil {
		logger.Error().Err(err).Msg("failed to remove connection")
	}
	c.Metrics.Event(ctx, sundaecli.DisconnectMetric)
	logger.Info().Str("state", StateClosed.String()).Msg("connection closed")
}
