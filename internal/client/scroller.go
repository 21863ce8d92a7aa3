package client

import "time"

// Marquee models the dual-copy scrolling list (standby, period classes,
// duty). The renderer draws the content twice and shifts both copies by
// Offset; once a full copy has scrolled past, the offset wraps and the
// second copy is exactly where the first one started.
type Marquee struct {
	ContentPx  float64 // width/height of one copy of the content
	ViewportPx float64
	SpeedPxSec float64 // derived from the configured speed constant

	offset float64
}

// speedUnitPx turns the school-configured speed factor (0.15..4) into
// pixels per second.
const speedUnitPx = 60.0

func NewMarquee(contentPx, viewportPx, speedFactor float64) *Marquee {
	return &Marquee{
		ContentPx:  contentPx,
		ViewportPx: viewportPx,
		SpeedPxSec: speedFactor * speedUnitPx,
	}
}

// Active reports whether scrolling (and the clone copy) is needed at all:
// content shorter than the viewport just sits still.
func (m *Marquee) Active() bool {
	return m.ContentPx > m.ViewportPx && m.SpeedPxSec > 0
}

// Step advances the scroll position by dt and returns the new offset.
func (m *Marquee) Step(dt time.Duration) float64 {
	if !m.Active() {
		m.offset = 0
		return 0
	}
	m.offset += m.SpeedPxSec * dt.Seconds()
	for m.offset >= m.ContentPx {
		m.offset -= m.ContentPx
	}
	return m.offset
}

func (m *Marquee) Offset() float64 { return m.offset }

// Rotator cycles through a list on a fixed cadence (announcements 6.5s,
// excellence cards 7s). Suspended while the list is empty.
type Rotator struct {
	Interval time.Duration

	count    int
	index    int
	lastFlip time.Time
}

func NewRotator(interval time.Duration) *Rotator {
	return &Rotator{Interval: interval}
}

// SetCount adjusts to the current list length, clamping the index.
func (r *Rotator) SetCount(n int) {
	r.count = n
	if n == 0 {
		r.index = 0
		return
	}
	if r.index >= n {
		r.index = r.index % n
	}
}

// Step flips to the next item when the cadence elapsed. Returns the current
// index, or -1 while the list is empty.
func (r *Rotator) Step(now time.Time) int {
	if r.count == 0 {
		r.lastFlip = now
		return -1
	}
	if r.lastFlip.IsZero() {
		r.lastFlip = now
	}
	if now.Sub(r.lastFlip) >= r.Interval {
		r.index = (r.index + 1) % r.count
		r.lastFlip = now
	}
	return r.index
}

func (r *Rotator) Index() int { return r.index }

// Frame cadence for the render loop. Lite mode (weak kiosk hardware) caps
// at ~20 FPS.
const (
	frameInterval     = 16 * time.Millisecond
	liteFrameInterval = 50 * time.Millisecond
)

func FrameInterval(lite bool) time.Duration {
	if lite {
		return liteFrameInterval
	}
	return frameInterval
}
