package client

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/azzam1122112-dot/school-display/internal/snapshot"
)

const (
	// Transition window: after a countdown hits zero the client fetches
	// snapshots (not status) on an accelerated cadence, because time-based
	// transitions do not bump the revision.
	transitionWindow  = 15 * time.Second
	transitionCadence = 1200 * time.Millisecond

	// Delay between a WS invalidate and the resulting fetch; the jitter
	// keeps a whole school from stampeding the snapshot endpoint.
	invalidateDelay  = 500 * time.Millisecond
	invalidateJitter = 250 * time.Millisecond
)

// Config identifies one display.
type Config struct {
	BaseURL  string
	Token    string
	DeviceID string

	// StatePath persists the clock offset between restarts. Empty disables
	// persistence.
	StatePath string

	// Lite caps the render loop at ~20 FPS for weak kiosk hardware.
	Lite bool
}

// Runtime is the display-side state machine: status-first polling with
// adaptive backoff, ETag caching, clock sync, optimistic boundary
// transitions, and the optional WS push channel on top.
type Runtime struct {
	cfg      Config
	api      *apiClient
	clock    *ClockSync
	backoff  *pollBackoff
	renderer Renderer

	mu              sync.Mutex
	doc             *snapshot.Document
	rev             int64
	etag            string
	optimistic      *snapshot.PeriodInfo
	transitionUntil time.Time
	pendingRev      int64
	blocked         bool
	netDown         bool

	wake chan struct{}

	announcements *Rotator
	excellence    *Rotator

	wsOnce   sync.Once
	wsCancel context.CancelFunc
}

func New(cfg Config, renderer Renderer) *Runtime {
	return &Runtime{
		cfg:           cfg,
		api:           newAPIClient(cfg.BaseURL, cfg.Token, cfg.DeviceID),
		clock:         NewClockSync(cfg.StatePath),
		backoff:       newPollBackoff(30 * time.Second),
		renderer:      renderer,
		wake:          make(chan struct{}, 1),
		announcements: NewRotator(6500 * time.Millisecond),
		excellence:    NewRotator(7 * time.Second),
	}
}

// Run drives the display until ctx ends or the screen is blocked.
func (r *Runtime) Run(ctx context.Context) error {
	r.safeRender(func() { r.renderer.RenderLoading("جاري التحميل...") })

	if err := r.firstLoad(ctx); err != nil {
		return err
	}

	renderCtx, cancelRender := context.WithCancel(ctx)
	defer cancelRender()
	go r.renderLoop(renderCtx)

	return r.pollLoop(ctx)
}

// firstLoad retries the initial snapshot until it lands or the screen turns
// out to be unusable.
func (r *Runtime) firstLoad(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		result, err := r.api.Snapshot(ctx, 0, "", false, true)
		if err == nil && result.Doc != nil {
			r.adoptSnapshot(result)
			return nil
		}

		wait := retryDelay(attempt)
		var perm *permanentError
		var limited *rateLimitError
		switch {
		case errors.As(err, &perm):
			r.block(perm.Code)
			return err
		case errors.As(err, &limited):
			wait = limited.RetryAfter
		default:
			r.safeRender(func() { r.renderer.RenderError("تعذر جلب البيانات") })
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// pollLoop is the status-first polling state machine.
func (r *Runtime) pollLoop(ctx context.Context) error {
	next := r.backoff.Next(false)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.wake:
		case <-time.After(next):
		}

		if r.isBlocked() {
			return nil
		}

		switch {
		case r.inTransition():
			next = r.transitionPoll(ctx)
		case r.takePendingRev():
			next = r.fetchSnapshot(ctx, false)
		default:
			next = r.statusPoll(ctx)
		}
	}
}

// statusPoll runs one status call and returns the delay before the next poll.
func (r *Runtime) statusPoll(ctx context.Context) time.Duration {
	result, err := r.api.Status(ctx, r.currentRev())
	if err != nil {
		return r.handleFetchError(err)
	}

	r.clock.Update(result.ServerTimeMS)
	r.setNetDown(false)

	if !result.FetchRequired {
		r.backoff.RecordNotModified()
		return r.backoff.Next(r.isIdle())
	}

	r.backoff.Reset()
	return r.fetchSnapshot(ctx, false)
}

// fetchSnapshot pulls the full document and returns the next poll delay.
func (r *Runtime) fetchSnapshot(ctx context.Context, transition bool) time.Duration {
	result, err := r.api.Snapshot(ctx, r.currentRev(), r.currentETag(), transition, false)
	if err != nil {
		return r.handleFetchError(err)
	}

	r.clock.Update(result.ServerTimeMS)
	r.setNetDown(false)

	// Any completed snapshot round-trip satisfies whatever push or boundary
	// event requested it; a lost update is recovered by normal polling.
	r.mu.Lock()
	r.pendingRev = 0
	r.mu.Unlock()

	if !result.NotModified && result.Doc != nil {
		r.adoptSnapshot(result)
	}

	if r.inTransition() {
		return withJitter(transitionCadence, 0.1)
	}
	return r.backoff.Next(r.isIdle())
}

// transitionPoll fetches snapshots aggressively until the server confirms
// the new block (state.remaining_seconds > 0) or the window expires.
func (r *Runtime) transitionPoll(ctx context.Context) time.Duration {
	delay := r.fetchSnapshot(ctx, true)

	r.mu.Lock()
	doc := r.doc
	expired := time.Now().After(r.transitionUntil)
	confirmed := doc != nil && doc.State.RemainingSeconds != nil && *doc.State.RemainingSeconds > 0
	if confirmed || expired {
		r.optimistic = nil
		r.transitionUntil = time.Time{}
	}
	r.mu.Unlock()

	if confirmed || expired {
		r.backoff.Reset()
		return r.backoff.Next(r.isIdle())
	}
	return delay
}

func (r *Runtime) handleFetchError(err error) time.Duration {
	var perm *permanentError
	var limited *rateLimitError
	switch {
	case errors.As(err, &perm):
		r.block(perm.Code)
		return time.Hour // never reached; pollLoop exits on blocked
	case errors.As(err, &limited):
		return limited.RetryAfter
	default:
		r.setNetDown(true)
		r.safeRender(func() { r.renderer.RenderError("تعذر جلب البيانات") })
		return r.backoff.Next(r.isIdle())
	}
}

// adoptSnapshot installs a fresh document and its bookkeeping.
func (r *Runtime) adoptSnapshot(result *snapshotResult) {
	doc := result.Doc

	r.mu.Lock()
	r.doc = doc
	r.rev = doc.Meta.ScheduleRevision
	r.etag = result.ETag
	if r.pendingRev <= r.rev {
		r.pendingRev = 0
	}
	r.mu.Unlock()

	r.clock.Update(result.ServerTimeMS)
	r.backoff.SetBase(time.Duration(doc.Settings.RefreshIntervalSec) * time.Second)
	r.announcements.SetCount(len(doc.Announcements))
	r.excellence.SetCount(len(doc.Excellence))

	// The push channel starts only after the first successful snapshot
	// said it is enabled. Polling never pauses because of it.
	if doc.Meta.WSEnabled {
		r.wsOnce.Do(func() {
			ctx, cancel := context.WithCancel(context.Background())
			r.wsCancel = cancel
			consumer := newWSConsumer(r.cfg.BaseURL, r.cfg.Token, r.cfg.DeviceID, r.onInvalidate)
			go consumer.Run(ctx)
		})
	}
}

// onInvalidate handles a WS push: remember the revision and poll shortly.
func (r *Runtime) onInvalidate(rev int64) {
	r.mu.Lock()
	if rev > r.rev && rev > r.pendingRev {
		r.pendingRev = rev
	}
	pending := r.pendingRev
	r.mu.Unlock()

	if pending == 0 {
		return
	}

	delay := invalidateDelay + time.Duration(rand.Int63n(int64(invalidateJitter)))
	time.AfterFunc(delay, r.wakeUp)
}

// renderLoop draws frames and owns the countdown. A render panic never kills
// polling.
func (r *Runtime) renderLoop(ctx context.Context) {
	ticker := time.NewTicker(FrameInterval(r.cfg.Lite))
	defer ticker.Stop()

	lastRemaining := -1

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if r.isBlocked() {
			return
		}

		// Local clock drift: a suspended process resumes with a huge gap
		// between ticks; resync against the server, throttled.
		if r.clock.CheckDrift(FrameInterval(r.cfg.Lite)) {
			r.wakeUp()
		}

		r.mu.Lock()
		doc := r.doc
		optimistic := r.optimistic
		r.mu.Unlock()
		if doc == nil {
			continue
		}

		view := buildView(doc, r.clock.Now(), optimistic)
		r.mu.Lock()
		view.NetworkDown = r.netDown
		r.mu.Unlock()
		serverNow := r.clock.Now()
		view.AnnouncementIdx = r.announcements.Step(serverNow)
		view.ExcellenceIdx = r.excellence.Step(serverNow)

		// Countdown crossing zero triggers the optimistic transition.
		if lastRemaining > 0 && view.CountdownS == 0 && !view.IsOptimistic {
			r.onCountdownZero(doc)
		}
		lastRemaining = view.CountdownS

		r.safeRender(func() { r.renderer.Render(view) })
	}
}

// onCountdownZero advances the UI to the announced next block and opens the
// transition window; with no next block (day over) it schedules a spread-out
// full refresh instead.
func (r *Runtime) onCountdownZero(doc *snapshot.Document) {
	if doc.NextPeriod != nil {
		r.mu.Lock()
		r.optimistic = doc.NextPeriod
		r.transitionUntil = time.Now().Add(transitionWindow)
		r.mu.Unlock()
		r.wakeUp()
		return
	}

	// End of the last block: every screen in the org hits this within the
	// same second, so the refresh is deliberately spread out.
	delay := boundaryRefreshDelay(doc.Meta.SchoolID)
	log.Printf("Day boundary reached, refreshing in %s", delay)
	r.mu.Lock()
	r.pendingRev = r.rev + 1
	r.mu.Unlock()
	time.AfterFunc(delay, r.wakeUp)
}

func (r *Runtime) block(code string) {
	r.mu.Lock()
	r.blocked = true
	cancel := r.wsCancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.safeRender(func() { r.renderer.RenderBlocker(code) })
	log.Printf("Display blocked: %s", code)
}

// safeRender isolates renderer failures from the state machine.
func (r *Runtime) safeRender(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("⚠️ render panic: %v", rec)
		}
	}()
	fn()
}

func (r *Runtime) wakeUp() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// --- small state accessors ---

func (r *Runtime) currentRev() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rev
}

func (r *Runtime) currentETag() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.etag
}

func (r *Runtime) isBlocked() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.blocked
}

func (r *Runtime) inTransition() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.transitionUntil.IsZero() && time.Now().Before(r.transitionUntil)
}

// takePendingRev reports whether a pushed revision is waiting to be fetched.
func (r *Runtime) takePendingRev() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pendingRev > r.rev
}

// isIdle: outside the active window the backoff cap stretches to 5 minutes.
func (r *Runtime) isIdle() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doc != nil && r.doc.State.Type == snapshot.StateOff
}

func (r *Runtime) setNetDown(down bool) {
	r.mu.Lock()
	r.netDown = down
	r.mu.Unlock()
}
