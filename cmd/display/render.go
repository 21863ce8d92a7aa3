package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/azzam1122112-dot/school-display/internal/client"
)

// termRenderer paints the display state to stdout. Throttled to one line per
// second: the frame loop runs much faster, but a terminal does not need
// 60 FPS of countdowns.
type termRenderer struct {
	mu        sync.Mutex
	lastDraw  time.Time
	lastState string
}

func newTermRenderer() *termRenderer {
	return &termRenderer{}
}

func (t *termRenderer) RenderLoading(message string) {
	fmt.Printf("⏳ %s\n", message)
}

func (t *termRenderer) Render(view *client.View) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := fmt.Sprintf("%s|%d", view.StateType, view.CountdownS)
	if time.Since(t.lastDraw) < time.Second && key == t.lastState {
		return
	}
	t.lastDraw = time.Now()
	t.lastState = key

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", view.StateType, view.Headline)
	if view.CountdownS > 0 {
		fmt.Fprintf(&b, " — %02d:%02d", view.CountdownS/60, view.CountdownS%60)
	}
	if view.IsOptimistic {
		b.WriteString(" (متوقع)")
	}
	if view.Stale {
		b.WriteString(" [stale]")
	}
	if view.NetworkDown {
		b.WriteString(" [تعذر جلب البيانات]")
	}
	if n := len(view.Standby); n > 0 {
		fmt.Fprintf(&b, " | انتظار: %d", n)
	}
	if view.AnnouncementIdx >= 0 && view.AnnouncementIdx < len(view.Doc.Announcements) {
		fmt.Fprintf(&b, " | 📢 %s", view.Doc.Announcements[view.AnnouncementIdx].Title)
	}
	fmt.Println(b.String())
}

func (t *termRenderer) RenderBlocker(code string) {
	switch code {
	case "screen_bound":
		fmt.Println("🚫 هذه الشاشة مفعلة على جهاز آخر")
	case "device_required":
		fmt.Println("🚫 معرف الجهاز مفقود")
	default:
		fmt.Printf("🚫 الشاشة غير متاحة (%s)\n", code)
	}
}

func (t *termRenderer) RenderError(message string) {
	fmt.Printf("⚠️  %s\n", message)
}
