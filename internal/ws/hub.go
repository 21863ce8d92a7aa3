package ws

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/azzam1122112-dot/school-display/internal/config"
	"github.com/azzam1122112-dot/school-display/internal/store"
)

// Hub owns every local WS connection, grouped by school, and relays
// invalidation events from the store's pub/sub into the groups. One hub per
// process; cross-process fan-out happens through Redis.
type Hub struct {
	store   *store.Client
	cfg     *config.Config
	metrics *Metrics

	mu     sync.RWMutex
	groups map[uint]map[*Conn]struct{}
}

func NewHub(st *store.Client, cfg *config.Config, metrics *Metrics) *Hub {
	return &Hub{
		store:   st,
		cfg:     cfg,
		metrics: metrics,
		groups:  make(map[uint]map[*Conn]struct{}),
	}
}

// Run subscribes to every school channel and dispatches until ctx ends.
// go-redis reconnects the subscription on transient failures by itself.
func (h *Hub) Run(ctx context.Context) {
	sub := h.store.PSubscribe(ctx, "school:*")
	defer sub.Close()

	log.Println("📡 WS hub subscribed to school:*")
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.dispatch(msg.Channel, []byte(msg.Payload))
		}
	}
}

// dispatch fans one invalidation out to the local members of the school
// group. Sends are non-blocking: a connection that cannot keep up is dropped
// and will reconnect.
func (h *Hub) dispatch(channel string, payload []byte) {
	schoolID, ok := schoolFromChannel(channel)
	if !ok {
		return
	}

	var msg struct {
		Type     string `json:"type"`
		Revision int64  `json:"revision"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil || msg.Type != "invalidate" {
		return
	}

	out, _ := json.Marshal(map[string]any{
		"type":     "invalidate",
		"revision": msg.Revision,
	})

	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.groups[schoolID]))
	for c := range h.groups[schoolID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		start := time.Now()
		if c.trySend(out) {
			h.metrics.BroadcastSent(float64(time.Since(start).Microseconds()) / 1000)
		} else {
			h.metrics.BroadcastFailed()
			c.closeSlow()
		}
	}
}

// join adds a connection to its school group. Returns false when the
// per-school capacity is exhausted.
func (h *Hub) join(c *Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	group := h.groups[c.schoolID]
	if group == nil {
		group = make(map[*Conn]struct{})
		h.groups[c.schoolID] = group
	}
	if len(group) >= h.cfg.Display.WSChannelCapacity {
		return false
	}
	group[c] = struct{}{}
	return true
}

func (h *Hub) leave(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if group, ok := h.groups[c.schoolID]; ok {
		delete(group, c)
		if len(group) == 0 {
			delete(h.groups, c.schoolID)
		}
	}
}

// GroupSize reports the local member count for a school.
func (h *Hub) GroupSize(schoolID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[schoolID])
}

func schoolFromChannel(channel string) (uint, bool) {
	raw, ok := strings.CutPrefix(channel, "school:")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}
