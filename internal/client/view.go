package client

import (
	"time"

	"github.com/azzam1122112-dot/school-display/internal/snapshot"
)

// Renderer is what the runtime draws on. cmd/display ships a terminal
// implementation; a kiosk shell would wrap a webview instead.
type Renderer interface {
	RenderLoading(message string)
	Render(view *View)
	// RenderBlocker is terminal: the screen token is unusable from this
	// device and polling has stopped.
	RenderBlocker(code string)
	RenderError(message string)
}

// View is one render-ready frame: the document plus everything derived
// locally (countdown, progress, filtered lists).
type View struct {
	Doc *snapshot.Document

	Headline    string
	StateType   string
	CountdownS  int
	Progress    float64 // 0..1 through the current block
	IsOptimistic bool   // countdown hit zero, showing the announced next block

	Standby       []snapshot.StandbyItem
	PeriodClasses []snapshot.PeriodClassItem
	DutyItems     []snapshot.DutyItem

	AnnouncementIdx int // -1 when empty
	ExcellenceIdx   int // -1 when empty

	Stale bool

	// NetworkDown: fetches are failing; the view still shows the last good
	// document with a banner.
	NetworkDown bool
}

// boundsFor resolves state.from/to into absolute instants using the server's
// local date and UTC offset; the device's own time zone is never trusted.
func boundsFor(doc *snapshot.Document, from, to string) (time.Time, time.Time, bool) {
	serverNow, err := time.Parse(time.RFC3339, doc.Now)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	loc := serverNow.Location()

	day, err := time.ParseInLocation("2006-01-02", doc.Meta.LocalDate, loc)
	if err != nil {
		day = serverNow
	}

	start, ok1 := combine(day, from, loc)
	end, ok2 := combine(day, to, loc)
	if !ok1 || !ok2 {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func combine(day time.Time, hhmm string, loc *time.Location) (time.Time, bool) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, loc), true
}

// Server remaining_seconds is only a sanity bound on the local computation.
const (
	countdownSanityMin = -12 * time.Hour
	countdownSanityMax = 24 * time.Hour
)

// countdown computes the local countdown for the current state. Falls back
// to the server's value when the local computation leaves the sanity window.
func countdown(doc *snapshot.Document, now time.Time) (remaining int, progress float64) {
	state := doc.State
	serverRemaining := 0
	if state.RemainingSeconds != nil {
		serverRemaining = *state.RemainingSeconds
	}

	if state.From == "" || state.To == "" {
		return serverRemaining, 0
	}

	start, end, ok := boundsFor(doc, state.From, state.To)
	if !ok {
		return serverRemaining, 0
	}

	// "before" counts down to the start, everything else to the end.
	target := end
	if state.Type == snapshot.StateBefore {
		target = start
	}

	until := target.Sub(now)
	if until < countdownSanityMin || until > countdownSanityMax {
		return serverRemaining, 0
	}

	remaining = int(until.Round(time.Second).Seconds())
	if remaining < 0 {
		remaining = 0
	}

	if total := end.Sub(start); total > 0 && state.Type != snapshot.StateBefore {
		progress = float64(now.Sub(start)) / float64(total)
		if progress < 0 {
			progress = 0
		}
		if progress > 1 {
			progress = 1
		}
	}
	return remaining, progress
}

// buildView derives a frame from the document at the synchronized instant.
// optimistic is non-nil once a countdown hit zero and the UI advanced to the
// announced next block before the server confirmed it.
func buildView(doc *snapshot.Document, now time.Time, optimistic *snapshot.PeriodInfo) *View {
	view := &View{
		Doc:             doc,
		StateType:       doc.State.Type,
		Headline:        doc.State.Label,
		Stale:           doc.Meta.IsStale,
		AnnouncementIdx: -1,
		ExcellenceIdx:   -1,
	}

	if optimistic != nil {
		view.IsOptimistic = true
		view.Headline = optimistic.Label
		view.StateType = optimistic.Kind
		if start, end, ok := boundsFor(doc, optimistic.From, optimistic.To); ok {
			until := end.Sub(now)
			if now.Before(start) {
				until = start.Sub(now)
			}
			if s := int(until.Round(time.Second).Seconds()); s > 0 {
				view.CountdownS = s
			}
		}
	} else {
		view.CountdownS, view.Progress = countdown(doc, now)
	}

	// Runtime period index: panels for periods already behind us are
	// hidden; after the day is over everything empties.
	index := runtimePeriodIndex(doc, optimistic)
	dayOver := doc.State.Type == snapshot.StateAfter && optimistic == nil

	if !dayOver {
		for _, item := range doc.Standby {
			if index == 0 || item.PeriodIndex >= index {
				view.Standby = append(view.Standby, item)
			}
		}
		for _, item := range doc.PeriodClasses {
			if index == 0 || item.PeriodIndex >= index {
				view.PeriodClasses = append(view.PeriodClasses, item)
			}
		}
		view.DutyItems = doc.Duty.Items
	}

	return view
}

// runtimePeriodIndex is the period the display considers "current" for list
// filtering, advanced optimistically at boundaries.
func runtimePeriodIndex(doc *snapshot.Document, optimistic *snapshot.PeriodInfo) int {
	if optimistic != nil && optimistic.Kind == snapshot.StatePeriod {
		return optimistic.Index
	}
	if doc.State.Type == snapshot.StatePeriod {
		return doc.State.PeriodIndex
	}
	if doc.NextPeriod != nil && doc.NextPeriod.Kind == snapshot.StatePeriod {
		return doc.NextPeriod.Index
	}
	return 0
}
