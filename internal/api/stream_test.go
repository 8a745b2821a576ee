package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"dcsourcing/internal/sourcing"
)

func TestStreamDeliversCompletedRuns(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	seed(t, s.Handler(), "t_ws")

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/sourcing/stream?tenantId=t_ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg wsMessage
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "connection_ack", msg.Type)

	require.NoError(t, conn.WriteJSON(wsMessage{Type: "ping"}))
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "pong", msg.Type)

	rr := do(t, s.Handler(), http.MethodPost, "/v1/sourcing/runs", "t_ws", nil)
	require.Equal(t, http.StatusCreated, rr.Code)

	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "next", msg.Type)
	var evt struct {
		Type string `json:"type"`
		Data struct {
			TenantID  string `json:"tenantId"`
			Status    string `json:"status"`
			Decisions []any  `json:"decisions"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg.Payload, &evt))
	require.Equal(t, sourcing.EventCompleted, evt.Type)
	require.Equal(t, "t_ws", evt.Data.TenantID)
	require.Equal(t, "optimal", evt.Data.Status)
	require.Empty(t, evt.Data.Decisions)
}
