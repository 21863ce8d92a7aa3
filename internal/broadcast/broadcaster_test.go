package broadcast

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/azzam1122112-dot/school-display/internal/config"
	"github.com/azzam1122112-dot/school-display/internal/store"
	"github.com/azzam1122112-dot/school-display/internal/ws"
)

func setupBroadcaster(t *testing.T, wsEnabled bool) (*Broadcaster, *store.Client, *ws.Metrics) {
	b, st, metrics, _ := setupBroadcasterMR(t, wsEnabled)
	return b, st, metrics
}

func setupBroadcasterMR(t *testing.T, wsEnabled bool) (*Broadcaster, *store.Client, *ws.Metrics, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	st := store.NewFromRedis(rdb)

	cfg := &config.Config{}
	cfg.Display.WSEnabled = wsEnabled

	metrics := ws.NewMetrics()
	return New(st, cfg, metrics), st, metrics, mr
}

func TestBroadcastPublishesToSchoolChannel(t *testing.T) {
	b, st, _ := setupBroadcaster(t, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := st.PSubscribe(ctx, "school:*")
	defer sub.Close()
	// Wait for the subscription to be live before publishing.
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatal(err)
	}

	b.Broadcast(5, 123)

	select {
	case msg := <-sub.Channel():
		if msg.Channel != "school:5" {
			t.Fatalf("channel = %q, want school:5", msg.Channel)
		}
		var got Message
		if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil {
			t.Fatal(err)
		}
		if got.Type != "invalidate" || got.SchoolID != 5 || got.Revision != 123 {
			t.Fatalf("payload = %+v", got)
		}
		if got.TS == 0 {
			t.Fatal("missing timestamp")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestBroadcastDisabledIsNoOp(t *testing.T) {
	b, st, metrics := setupBroadcaster(t, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := st.PSubscribe(ctx, "school:*")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatal(err)
	}

	b.Broadcast(5, 123)

	select {
	case msg := <-sub.Channel():
		t.Fatalf("unexpected publish while disabled: %+v", msg)
	case <-time.After(200 * time.Millisecond):
	}

	if metrics.Snapshot()["broadcasts_failed"].(int64) != 0 {
		t.Fatal("disabled broadcast must not count as a failure")
	}
}

func TestBroadcastStoreOutageIsSwallowed(t *testing.T) {
	b, _, metrics, mr := setupBroadcasterMR(t, true)

	// Redis goes away between the commit and the publish.
	mr.Close()

	// Must not panic or propagate; polling is the recovery path.
	b.Broadcast(5, 123)

	if metrics.Snapshot()["broadcasts_failed"].(int64) != 1 {
		t.Fatal("store outage must count as a broadcast failure")
	}
}
