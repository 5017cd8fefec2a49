package sundaews

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	sundaeerr "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-err"
	"github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-ws/messagedao"
	"github.com/go-chi/chi/v5"
	"github.com/tj/assert"
)

func TestHistoryAPI(t *testing.T) {
	var (
		ctx    = context.Background()
		f      = newFixture(t)
		api    = &HistoryAPI{Gate: f.controller.Gate, Relay: f.relay}
		router = chi.NewRouter()
	)
	api.Routes(router)

	for _, content := range []string{`{"n":1}`, `{"n":2}`, `{"n":3}`} {
		_, err := f.relay.Persist(ctx, "c1", content, "s1", map[string]string{messagedao.MetaSubject: "u1"})
		assert.NoError(t, err)
	}
	_, err := f.relay.Persist(ctx, "c2", `{"n":9}`, "s2", map[string]string{messagedao.MetaSubject: "u2"})
	assert.NoError(t, err)

	get := func(path, cookie string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if cookie != "" {
			req.Header.Set("Cookie", cookie)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("ok", func(t *testing.T) {
		w := get("/sessions/s1/messages", "access_token=u1-token")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotEqual(t, "", w.Header().Get("X-Request-Id"))

		var resp historyResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "s1", resp.SessionID)
		assert.Equal(t, 3, len(resp.Messages))
		assert.Equal(t, json.RawMessage(`{"n":1}`), resp.Messages[0].Content)
		assert.Equal(t, json.RawMessage(`{"n":3}`), resp.Messages[2].Content)
	})

	t.Run("limit", func(t *testing.T) {
		w := get("/sessions/s1/messages?limit=2", "access_token=u1-token")
		assert.Equal(t, http.StatusOK, w.Code)

		var resp historyResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 2, len(resp.Messages))
	})

	t.Run("bad limit", func(t *testing.T) {
		w := get("/sessions/s1/messages?limit=lots", "access_token=u1-token")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		w := get("/sessions/s1/messages", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		var payload sundaeerr.Payload
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
		assert.Equal(t, sundaeerr.CodeMissingCredential, payload.Code)
		assert.NotEqual(t, "", payload.RequestID)
	})

	t.Run("another subject's session", func(t *testing.T) {
		w := get("/sessions/s2/messages", "access_token=u1-token")
		assert.Equal(t, http.StatusForbidden, w.Code)

		var payload sundaeerr.Payload
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
		assert.Equal(t, sundaeerr.CodeForbidden, payload.Code)
	})

	t.Run("unknown session is empty", func(t *testing.T) {
		w := get("/sessions/nobody/messages", "access_token=u1-token")
		assert.Equal(t, http.StatusOK, w.Code)

		var resp historyResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 0, len(resp.Messages))
	})
}
