package sundaews

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	sundaeauth "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-auth"
	sundaeerr "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-err"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// HistoryAPI serves persisted session messages over REST.
type HistoryAPI struct {
	Gate  Authenticator
	Relay *Relay
}

type historyResponse struct {
	SessionID string         `json:"sessionId"`
	Messages  []HistoryEntry `json:"messages"`
}

func (h *HistoryAPI) Routes(r chi.Router) {
	r.Get("/sessions/{sessionID}/messages", h.handleList)
}

func (h *HistoryAPI) handleList(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	result, err := h.Gate.Authenticate(ctx, sundaeauth.Request{Headers: sundaeauth.HeadersFromHTTP(req.Header)})
	if err != nil {
		writeError(w, err, result.RequestID, time.Now())
		return
	}
	logger := zerolog.Ctx(ctx).With().
		Str("request_id", result.RequestID).
		Str("subject", result.Identity.Subject).
		Logger()

	var limit int
	if v := req.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, sundaeerr.Validation(sundaeerr.CodeInvalidEvent, "limit must be a non-negative integer"), result.RequestID, time.Now())
			return
		}
	}

	sessionID := chi.URLParam(req, "sessionID")
	if err := h.Relay.AuthorizeSession(ctx, sessionID, result.Identity.Subject); err != nil {
		logger.Info().Err(err).Str("session_id", sessionID).Msg("history refused")
		writeError(w, err, result.RequestID, time.Now())
		return
	}

	messages, err := h.Relay.RetrieveBySession(ctx, sessionID, limit)
	if err != nil {
		logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to retrieve history")
		writeError(w, err, result.RequestID, time.Now())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-Id", result.RequestID)
	_ = json.NewEncoder(w).Encode(historyResponse{
		SessionID: sessionID,
		Messages:  newHistoryEntries(messages),
	})
}
