package sundaews

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	sundaeauth "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-auth"
	sundaeerr "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-err"
	"github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-ws/connectiondao"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	DefaultPingInterval = 30 * time.Second
	DefaultPongWait     = 60 * time.Second
	maxMessageBytes     = 128 << 10
)

// Server runs the controller over websockets held in this process.
type Server struct {
	Controller   *Controller
	Sockets      *SocketTransport
	Logger       zerolog.Logger
	PingInterval time.Duration
	PongWait     time.Duration
	Upgrader     websocket.Upgrader
}

func (s *Server) Routes(r chi.Router) {
	r.Get("/ws", s.handleUpgrade)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, req *http.Request) {
	connectionID := uuid.NewString()
	logger := s.Logger.With().Str("connection_id", connectionID).Logger()

	query := map[string]string{}
	for k, vs := range req.URL.Query() {
		if len(vs) > 0 {
			query[k] = vs[0]
		}
	}

	s.Sockets.Reserve(connectionID)
	session, err := s.Controller.Connect(req.Context(), ConnectRequest{
		ConnectionID: connectionID,
		Headers:      sundaeauth.HeadersFromHTTP(req.Header),
		Query:        query,
	})
	if err != nil {
		s.Sockets.Unregister(connectionID)
		writeError(w, err, session.RequestID, s.Controller.now())
		return
	}

	conn, err := s.Upgrader.Upgrade(w, req, http.Header{"X-Request-Id": {session.RequestID}})
	if err != nil {
		logger.Warn().Err(err).Msg("websocket upgrade failed")
		s.Sockets.Unregister(connectionID)
		s.Controller.Disconnect(context.Background(), connectionID)
		return
	}
	s.Sockets.Register(connectionID, conn)

	ctx := logger.WithContext(context.Background())
	s.serve(ctx, connectionID, conn, session)
}

func (s *Server) serve(ctx context.Context, connectionID string, conn *websocket.Conn, session *Session) {
	pingInterval, pongWait := s.PingInterval, s.PongWait
	if pingInterval <= 0 {
		pingInterval = DefaultPingInterval
	}
	if pongWait <= pingInterval {
		pongWait = 2 * pingInterval
	}

	done := make(chan struct{})
	defer func() {
		close(done)
		_ = s.Sockets.Close(ctx, connectionID)
		s.Controller.Disconnect(ctx, connectionID)
	}()

	hello := Event{Type: EventAuthenticated, SessionID: session.Metadata[connectiondao.MetaSessionID], From: session.Subject}
	if err := s.Sockets.Send(ctx, connectionID, hello.Bytes()); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to send authenticated event")
		return
	}

	go s.keepAlive(connectionID, pingInterval, done)

	conn.SetReadLimit(maxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				zerolog.Ctx(ctx).Info().Err(err).Msg("websocket read failed")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		if err := s.Controller.Receive(ctx, connectionID, string(data)); err != nil {
			if sundaeerr.IsKind(err, sundaeerr.KindNotFound) || sundaeerr.IsKind(err, sundaeerr.KindAuth) {
				return
			}
		}
	}
}

// keepAlive pings the socket well inside typical proxy idle timeouts.
func (s *Server) keepAlive(connectionID string, interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := s.Sockets.ping(connectionID); err != nil {
				return
			}
		}
	}
}

func writeError(w http.ResponseWriter, err error, requestID string, now time.Time) {
	payload := sundaeerr.From(err).Payload(requestID, now)
	w.Header().Set("Content-Type", "application/json")
	if requestID != "" {
		w.Header().Set("X-Request-Id", requestID)
	}
	w.WriteHeader(payload.Status)
	_ = json.NewEncoder(w).Encode(payload)
}
