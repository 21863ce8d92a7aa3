package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/azzam1122112-dot/school-display/internal/binding"
	"github.com/azzam1122112-dot/school-display/internal/config"
	"github.com/azzam1122112-dot/school-display/internal/models"
	"github.com/azzam1122112-dot/school-display/internal/store"
)

type wsEnv struct {
	server  *httptest.Server
	store   *store.Client
	metrics *Metrics
	hub     *Hub
	cancel  context.CancelFunc
}

func setupWS(t *testing.T) *wsEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	st := store.NewFromRedis(rdb)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.School{}, &models.DisplayScreen{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	db.Create(&models.DisplayScreen{SchoolID: 1, Name: "شاشة", Token: "TK", IsActive: true})

	cfg := &config.Config{}
	cfg.Display.WSEnabled = true
	cfg.Display.WSChannelCapacity = 2
	cfg.Display.WSPingIntervalSeconds = 30
	cfg.Display.WSMetricsLogInterval = 300

	metrics := NewMetrics()
	hub := NewHub(st, cfg, metrics)
	handler := NewHandler(hub, binding.New(db, false), metrics)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	router := gin.New()
	router.GET("/ws/display/", handler.Serve)
	server := httptest.NewServer(router)

	t.Cleanup(func() {
		cancel()
		server.Close()
	})

	return &wsEnv{server: server, store: st, metrics: metrics, hub: hub, cancel: cancel}
}

func (e *wsEnv) dial(t *testing.T, query string) (*websocket.Conn, error) {
	t.Helper()
	url := strings.Replace(e.server.URL, "http://", "ws://", 1) + "/ws/display/" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	return conn, err
}

// expectClose reads until the server closes and returns the close code.
func expectClose(t *testing.T, conn *websocket.Conn) int {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if closeErr, ok := err.(*websocket.CloseError); ok {
				return closeErr.Code
			}
			t.Fatalf("connection ended without close frame: %v", err)
		}
	}
}

func TestWSRejectsBadParams(t *testing.T) {
	env := setupWS(t)

	conn, err := env.dial(t, "?token=TK") // dk missing
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if code := expectClose(t, conn); code != CloseBadParams {
		t.Fatalf("close code = %d, want %d", code, CloseBadParams)
	}
}

func TestWSRejectsUnknownToken(t *testing.T) {
	env := setupWS(t)

	conn, err := env.dial(t, "?token=NOPE&dk=D1")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if code := expectClose(t, conn); code != CloseUnknownToken {
		t.Fatalf("close code = %d, want %d", code, CloseUnknownToken)
	}
}

func TestWSRejectsSecondDevice(t *testing.T) {
	env := setupWS(t)

	winner, err := env.dial(t, "?token=TK&dk=Da")
	if err != nil {
		t.Fatal(err)
	}
	defer winner.Close()

	loser, err := env.dial(t, "?token=TK&dk=Db")
	if err != nil {
		t.Fatal(err)
	}
	defer loser.Close()
	if code := expectClose(t, loser); code != CloseDeviceBound {
		t.Fatalf("close code = %d, want %d", code, CloseDeviceBound)
	}
}

func TestWSPingPongAndInvalidate(t *testing.T) {
	env := setupWS(t)

	conn, err := env.dial(t, "?token=TK&dk=D1")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// Keepalive round-trip.
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var pong struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &pong); err != nil || pong.Type != "pong" {
		t.Fatalf("reply = %s", raw)
	}

	// The member list is populated before publishing.
	waitForMembers(t, env.hub, 1, 1)

	// An invalidation published on the school channel reaches the client.
	payload, _ := json.Marshal(map[string]any{"type": "invalidate", "school_id": 1, "revision": 42})
	if err := env.store.Publish(context.Background(), store.SchoolChannel(1), string(payload)); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err = conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var msg struct {
		Type     string `json:"type"`
		Revision int64  `json:"revision"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != "invalidate" || msg.Revision != 42 {
		t.Fatalf("message = %+v", msg)
	}

	if env.metrics.Snapshot()["broadcasts_sent"].(int64) < 1 {
		t.Fatal("broadcast metric not counted")
	}
}

func waitForMembers(t *testing.T, hub *Hub, schoolID uint, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.GroupSize(schoolID) >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("school %d never reached %d members", schoolID, want)
}
