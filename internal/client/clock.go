package client

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

const (
	// Corrections above this snap instead of smoothing; the local clock is
	// simply wrong.
	clockSnapThreshold = 30 * time.Second

	// EMA weight for new samples.
	clockEMANew = 0.2

	// Ticker-vs-wall divergence that triggers a resync request, and the
	// floor between two such requests.
	driftThreshold      = time.Second
	driftResyncInterval = 5 * time.Second
)

// ClockSync keeps a smoothed offset between the server clock and the local
// one. Every HTTP response carries X-Server-Time-MS; the offset is persisted
// so the first second after a reload is not off by seconds.
type ClockSync struct {
	mu sync.Mutex

	offset     time.Duration
	haveSample bool

	statePath string

	lastDriftCheck time.Time
	lastResyncReq  time.Time

	now func() time.Time
}

type clockState struct {
	OffsetMS int64 `json:"offset_ms"`
}

func NewClockSync(statePath string) *ClockSync {
	c := &ClockSync{statePath: statePath, now: time.Now}
	c.load()
	return c
}

// Update feeds one server timestamp (epoch ms) into the filter.
func (c *ClockSync) Update(serverMS int64) {
	if serverMS <= 0 {
		return
	}
	sample := time.UnixMilli(serverMS).Sub(c.now())

	c.mu.Lock()
	switch {
	case !c.haveSample, absDuration(sample-c.offset) > clockSnapThreshold:
		c.offset = sample
		c.haveSample = true
	default:
		c.offset = time.Duration(clockEMANew*float64(sample) + (1-clockEMANew)*float64(c.offset))
	}
	offset := c.offset
	c.mu.Unlock()

	c.save(offset)
}

// Now is the best estimate of the server's current time.
func (c *ClockSync) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now().Add(c.offset)
}

func (c *ClockSync) Offset() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offset
}

// CheckDrift compares elapsed wall time against the expected tick period.
// Returns true when the divergence warrants a server resync; throttled to
// one request per driftResyncInterval.
func (c *ClockSync) CheckDrift(expected time.Duration) bool {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lastDriftCheck.IsZero() {
		c.lastDriftCheck = now
		return false
	}
	elapsed := now.Sub(c.lastDriftCheck)
	c.lastDriftCheck = now

	if absDuration(elapsed-expected) <= driftThreshold {
		return false
	}
	if now.Sub(c.lastResyncReq) < driftResyncInterval {
		return false
	}
	c.lastResyncReq = now
	return true
}

func (c *ClockSync) load() {
	if c.statePath == "" {
		return
	}
	raw, err := os.ReadFile(c.statePath)
	if err != nil {
		return
	}
	var state clockState
	if err := json.Unmarshal(raw, &state); err != nil {
		return
	}
	c.offset = time.Duration(state.OffsetMS) * time.Millisecond
	c.haveSample = true
}

func (c *ClockSync) save(offset time.Duration) {
	if c.statePath == "" {
		return
	}
	raw, _ := json.Marshal(clockState{OffsetMS: offset.Milliseconds()})
	_ = os.WriteFile(c.statePath, raw, 0644)
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
