package broadcast

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/azzam1122112-dot/school-display/internal/config"
	"github.com/azzam1122112-dot/school-display/internal/store"
	"github.com/azzam1122112-dot/school-display/internal/ws"
)

// Message is the pub/sub payload for one invalidation event.
type Message struct {
	Type     string `json:"type"` // always "invalidate"
	SchoolID uint   `json:"school_id"`
	Revision int64  `json:"revision"`
	TS       int64  `json:"ts"` // epoch ms
}

// Broadcaster turns a committed revision bump into a push to every WS
// subscriber of that school. Delivery is best-effort, at-most-once; polling
// is the source of truth.
type Broadcaster struct {
	store   *store.Client
	cfg     *config.Config
	metrics *ws.Metrics
}

func New(st *store.Client, cfg *config.Config, metrics *ws.Metrics) *Broadcaster {
	return &Broadcaster{store: st, cfg: cfg, metrics: metrics}
}

// Broadcast publishes {invalidate, school, revision}. Must only be called
// after the data transaction committed. Failures are logged and counted,
// never propagated.
func (b *Broadcaster) Broadcast(schoolID uint, rev int64) {
	if !b.cfg.Display.WSEnabled {
		return
	}

	msg := Message{
		Type:     "invalidate",
		SchoolID: schoolID,
		Revision: rev,
		TS:       time.Now().UnixMilli(),
	}
	payload, err := json.Marshal(&msg)
	if err != nil {
		log.Printf("⚠️ broadcast marshal failed for school %d: %v", schoolID, err)
		b.metrics.BroadcastFailed()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := b.store.Publish(ctx, store.SchoolChannel(schoolID), string(payload)); err != nil {
		log.Printf("⚠️ broadcast publish failed for school %d: %v", schoolID, err)
		b.metrics.BroadcastFailed()
		return
	}
}
