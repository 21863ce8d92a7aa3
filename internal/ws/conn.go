package ws

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/azzam1122112-dot/school-display/internal/binding"
)

// Close codes, mirrored by the client's permanent-failure handling.
const (
	CloseBadParams    = 4400 // missing token or dk
	CloseUnknownToken = 4403 // token invalid or screen inactive
	CloseDeviceBound  = 4408 // screen bound to a different device
	CloseServerError  = 4500
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 512

	// Outbound buffer per connection. Invalidations are tiny and rare; a
	// full buffer means the peer stopped reading.
	sendBuffer = 8
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Displays are token-authenticated; origin is not part of the model.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Conn is one display's WebSocket connection.
type Conn struct {
	ws       *websocket.Conn
	schoolID uint
	screenID uint
	deviceID string

	send      chan []byte
	closeOnce sync.Once
}

// Handler upgrades and runs display WebSocket connections.
type Handler struct {
	hub     *Hub
	binding *binding.Service
	metrics *Metrics

	pongWait time.Duration
	logEvery time.Duration
}

func NewHandler(hub *Hub, bind *binding.Service, metrics *Metrics) *Handler {
	pingInterval := time.Duration(hub.cfg.Display.WSPingIntervalSeconds) * time.Second
	return &Handler{
		hub:     hub,
		binding: bind,
		metrics: metrics,
		// Client pings every interval; allow two missed pings.
		pongWait: 2*pingInterval + 10*time.Second,
		logEvery: time.Duration(hub.cfg.Display.WSMetricsLogInterval) * time.Second,
	}
}

// Serve is the gin handler for GET /ws/display/?token=<t>&dk=<d>.
func (h *Handler) Serve(c *gin.Context) {
	token := c.Query("token")
	deviceID := c.Query("dk")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.metrics.ConnectionFailed()
		return
	}

	if token == "" || deviceID == "" {
		h.reject(ws, CloseBadParams, "missing token or dk")
		return
	}

	screen, err := h.binding.BindAtomic(c.Request.Context(), token, deviceID)
	if err != nil {
		switch {
		case errors.Is(err, binding.ErrScreenUnknown):
			h.reject(ws, CloseUnknownToken, "unknown token")
		case errors.Is(err, binding.ErrScreenBound):
			h.reject(ws, CloseDeviceBound, "device bound elsewhere")
		case errors.Is(err, binding.ErrDeviceRequired):
			h.reject(ws, CloseBadParams, "device required")
		default:
			log.Printf("⚠️ WS bind error: %v", err)
			h.reject(ws, CloseServerError, "server error")
		}
		return
	}

	conn := &Conn{
		ws:       ws,
		schoolID: screen.SchoolID,
		screenID: screen.ID,
		deviceID: deviceID,
		send:     make(chan []byte, sendBuffer),
	}

	// Group name is derived from the screen row only; anything the client
	// claims about its school is ignored.
	if !h.hub.join(conn) {
		h.reject(ws, CloseServerError, "school at capacity")
		return
	}

	h.metrics.ConnectionOpened()
	log.Printf("🔌 WS connected: screen %d school %d device %.8s…",
		conn.screenID, conn.schoolID, deviceID)

	go h.writePump(conn)
	h.readPump(conn)
}

func (h *Handler) reject(ws *websocket.Conn, code int, reason string) {
	h.metrics.ConnectionFailed()
	deadline := time.Now().Add(writeWait)
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)
	_ = ws.Close()
}

// readPump handles inbound traffic: ping keepalives only. Anything else is
// logged and ignored; malformed JSON is dropped.
func (h *Handler) readPump(c *Conn) {
	defer func() {
		h.hub.leave(c)
		c.close()
		h.metrics.ConnectionClosed()
		log.Printf("🔌 WS disconnected: screen %d school %d", c.screenID, c.schoolID)
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(h.pongWait))

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(h.pongWait))

		var msg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			if !c.trySend([]byte(`{"type":"pong"}`)) {
				return
			}
		} else {
			log.Printf("WS unknown message type %q from screen %d", msg.Type, c.screenID)
		}

		h.metrics.LogIfNeeded(h.logEvery)
	}
}

// writePump serializes all outbound writes for one connection.
func (h *Handler) writePump(c *Conn) {
	for msg := range c.send {
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.close()
			return
		}
	}
	// Channel closed: say goodbye.
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
}

// trySend queues a message without blocking. False means the buffer is full
// or the connection is closed.
func (c *Conn) trySend(msg []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.send)
		_ = c.ws.Close()
	})
}

// closeSlow drops a connection that stopped draining its buffer.
func (c *Conn) closeSlow() {
	log.Printf("⚠️ WS slow consumer dropped: screen %d school %d", c.screenID, c.schoolID)
	c.close()
}
