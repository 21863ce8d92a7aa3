package client

import (
	"context"
	"encoding/json"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsMaxReconnects = 10
	wsPingInterval  = 30 * time.Second
)

// wsConsumer is the optional push channel. It only ever accelerates a poll;
// polling continues regardless of socket state.
type wsConsumer struct {
	endpoint     string
	onInvalidate func(rev int64)
}

func newWSConsumer(baseURL, token, deviceID string, onInvalidate func(int64)) *wsConsumer {
	wsBase := strings.Replace(baseURL, "https://", "wss://", 1)
	wsBase = strings.Replace(wsBase, "http://", "ws://", 1)

	q := url.Values{}
	q.Set("token", token)
	q.Set("dk", deviceID)

	return &wsConsumer{
		endpoint:     wsBase + "/ws/display/?" + q.Encode(),
		onInvalidate: onInvalidate,
	}
}

// Run keeps one connection alive until ctx ends, a permanent close code
// arrives, or the reconnect budget is spent.
func (w *wsConsumer) Run(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		permanent := w.session(ctx)
		if permanent {
			log.Println("WS closed permanently, relying on polling")
			return
		}

		attempt++
		if attempt > wsMaxReconnects {
			log.Println("WS reconnect budget spent, relying on polling")
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wsReconnectDelay(attempt - 1)):
		}
	}
}

// session runs one connection to completion. Returns true for permanent
// failures (4400/4403/4408).
func (w *wsConsumer) session(ctx context.Context) bool {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.endpoint, nil)
	if err != nil {
		return false
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)

	// Keepalive: infrastructure kills idle connections; ping every 30s.
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if closeErr, ok := err.(*websocket.CloseError); ok {
				switch closeErr.Code {
				case 4400, 4403, 4408:
					return true
				}
			}
			return false
		}

		var msg struct {
			Type     string `json:"type"`
			Revision int64  `json:"revision"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Type == "invalidate" && w.onInvalidate != nil {
			w.onInvalidate(msg.Revision)
		}
	}
}
