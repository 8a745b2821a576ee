package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// StreamHandler handles /v1/sourcing/stream. Each completed run of the
// tenant (header X-Tenant-Id, or ?tenantId for browsers) is pushed as a
// "next" message; clients may send "ping" and get "pong".
func (s *Server) StreamHandler(w http.ResponseWriter, r *http.Request) {
	if t := r.URL.Query().Get("tenantId"); t != "" && r.Header.Get("X-Tenant-Id") == "" {
		r.Header.Set("X-Tenant-Id", t)
	}
	_, tenant := s.withTenant(r)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	var wmu sync.Mutex
	write := func(v any) error {
		wmu.Lock()
		defer wmu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(v)
	}

	ch := s.Broker.Subscribe(tenant)
	defer s.Broker.Unsubscribe(tenant, ch)
	if err := write(wsMessage{Type: "connection_ack"}); err != nil {
		return
	}
	s.Log.Debug().Str("tenant", tenant).Msg("stream subscriber connected")

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(20 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				payload, _ := json.Marshal(evt)
				if err := write(wsMessage{Type: "next", Payload: payload}); err != nil {
					return
				}
			case <-ticker.C:
				if err := write(wsMessage{Type: "ping"}); err != nil {
					return
				}
			}
		}
	}()

	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		switch msg.Type {
		case "ping":
			_ = write(wsMessage{Type: "pong"})
		case "pong":
		default:
			// ignore
		}
	}
	close(done)
}
