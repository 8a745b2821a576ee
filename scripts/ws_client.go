// Package main runs a demo WebSocket client for sourcing events.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	tenant := os.Getenv("TENANT")
	if tenant == "" {
		tenant = "t_demo"
	}

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/sourcing/stream"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", tenant)
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal().Err(err).Str("url", u.String()).Msg("dial")
	}
	defer func() { _ = c.Close() }()

	var ack wsMessage
	if err := c.ReadJSON(&ack); err != nil || ack.Type != "connection_ack" {
		log.Fatal().Err(err).Str("type", ack.Type).Msg("expected connection_ack")
	}
	log.Info().Str("tenant", tenant).Msg("subscribed; trigger a run with POST /v1/sourcing/runs")

	// Trigger one run so the demo prints something.
	req, _ := http.NewRequest(http.MethodPost, fmt.Sprintf("http://localhost:%s/v1/sourcing/runs", port), nil)
	req.Header.Set("X-Tenant-Id", tenant)
	if resp, err := http.DefaultClient.Do(req); err != nil {
		log.Warn().Err(err).Msg("trigger run")
	} else {
		_ = resp.Body.Close()
		log.Info().Int("status", resp.StatusCode).Msg("run requested")
	}

	for {
		var msg wsMessage
		if err := c.ReadJSON(&msg); err != nil {
			log.Info().Err(err).Msg("stream closed")
			return
		}
		switch msg.Type {
		case "ping":
			_ = c.WriteJSON(wsMessage{Type: "pong"})
		case "next":
			fmt.Println(string(msg.Payload))
		}
	}
}
