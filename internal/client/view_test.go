package client

import (
	"testing"
	"time"

	"github.com/azzam1122112-dot/school-display/internal/snapshot"
)

func testDoc() *snapshot.Document {
	remaining := 3
	return &snapshot.Document{
		Settings: snapshot.Settings{RefreshIntervalSec: 30},
		State: snapshot.State{
			Type:             snapshot.StatePeriod,
			Label:            "رياضيات",
			From:             "08:00",
			To:               "08:45",
			PeriodIndex:      2,
			RemainingSeconds: &remaining,
		},
		NextPeriod: &snapshot.PeriodInfo{
			Index: 3, Kind: snapshot.StatePeriod, Label: "علوم",
			From: "08:45", To: "09:30",
		},
		Standby: []snapshot.StandbyItem{
			{PeriodIndex: 1, Class: "1/أ", Subject: "لغتي", Teacher: "أ. سعد"},
			{PeriodIndex: 2, Class: "2/ب", Subject: "علوم", Teacher: "أ. فهد"},
			{PeriodIndex: 5, Class: "3/ج", Subject: "رياضيات", Teacher: "أ. خالد"},
		},
		PeriodClasses: []snapshot.PeriodClassItem{
			{PeriodIndex: 1, Class: "1/أ"},
			{PeriodIndex: 3, Class: "1/أ"},
		},
		Duty: snapshot.Duty{Items: []snapshot.DutyItem{{Teacher: "أ. ماجد"}}},
		Now:  "2026-02-08T08:44:57+03:00",
		Meta: snapshot.Meta{SchoolID: 7, ScheduleRevision: 12, LocalDate: "2026-02-08"},
	}
}

func riyadhTime(hhmmss string) time.Time {
	loc := time.FixedZone("AST", 3*3600)
	t, _ := time.ParseInLocation("2006-01-02 15:04:05", "2026-02-08 "+hhmmss, loc)
	return t
}

func TestCountdownFromBounds(t *testing.T) {
	doc := testDoc()

	// 08:44:57 → 08:45:00 leaves 3 seconds.
	view := buildView(doc, riyadhTime("08:44:57"), nil)
	if view.CountdownS != 3 {
		t.Fatalf("countdown = %d, want 3", view.CountdownS)
	}
	if view.StateType != snapshot.StatePeriod {
		t.Fatalf("state = %q", view.StateType)
	}
	// 44:57 of a 45-minute block.
	if view.Progress < 0.99 || view.Progress > 1.0 {
		t.Fatalf("progress = %f, want ~0.999", view.Progress)
	}
}

func TestCountdownSanityFallback(t *testing.T) {
	doc := testDoc()

	// A clock two days off the document's date leaves the sanity window;
	// the server value is used instead.
	view := buildView(doc, riyadhTime("08:44:57").AddDate(0, 0, 2), nil)
	if view.CountdownS != 3 {
		t.Fatalf("countdown = %d, want server fallback 3", view.CountdownS)
	}
}

func TestOptimisticTransitionView(t *testing.T) {
	doc := testDoc()

	// Countdown hit zero: the view advances to the announced next period
	// with a countdown rebuilt from now → next.to.
	view := buildView(doc, riyadhTime("08:45:00"), doc.NextPeriod)
	if !view.IsOptimistic {
		t.Fatal("expected optimistic view")
	}
	if view.Headline != "علوم" {
		t.Fatalf("headline = %q, want the next period's label", view.Headline)
	}
	// 08:45 → 09:30 = 45 minutes.
	if view.CountdownS != 45*60 {
		t.Fatalf("countdown = %d, want %d", view.CountdownS, 45*60)
	}

	// The runtime period index advances too: standby rows for periods 1-2
	// disappear, period 5 stays.
	if len(view.Standby) != 1 || view.Standby[0].PeriodIndex != 5 {
		t.Fatalf("standby = %+v, want only period 5", view.Standby)
	}
}

func TestListFilteringByPeriodIndex(t *testing.T) {
	doc := testDoc()

	view := buildView(doc, riyadhTime("08:30:00"), nil)
	// Current period index 2: the period-1 standby row is behind us.
	if len(view.Standby) != 2 {
		t.Fatalf("standby = %+v, want periods 2 and 5", view.Standby)
	}
	for _, item := range view.Standby {
		if item.PeriodIndex < 2 {
			t.Fatalf("stale standby row leaked: %+v", item)
		}
	}
	if len(view.PeriodClasses) != 1 || view.PeriodClasses[0].PeriodIndex != 3 {
		t.Fatalf("period_classes = %+v", view.PeriodClasses)
	}
}

func TestDayOverEmptiesLists(t *testing.T) {
	doc := testDoc()
	zero := 0
	doc.State = snapshot.State{Type: snapshot.StateAfter, Label: "انتهى اليوم الدراسي", From: "13:00", To: "13:45", RemainingSeconds: &zero}
	doc.NextPeriod = nil

	view := buildView(doc, riyadhTime("14:00:00"), nil)
	if len(view.Standby) != 0 || len(view.PeriodClasses) != 0 || len(view.DutyItems) != 0 {
		t.Fatalf("day over must empty all lists: %+v", view)
	}
}

func TestRotatorSuspendedWhenEmpty(t *testing.T) {
	r := NewRotator(time.Second)
	r.SetCount(0)
	if idx := r.Step(time.Now()); idx != -1 {
		t.Fatalf("empty rotator index = %d, want -1", idx)
	}

	r.SetCount(3)
	now := time.Now()
	first := r.Step(now)
	second := r.Step(now.Add(1100 * time.Millisecond))
	if first != 0 || second != 1 {
		t.Fatalf("rotation = %d then %d, want 0 then 1", first, second)
	}
}

func TestMarqueeOnlyScrollsWhenOverflowing(t *testing.T) {
	fits := NewMarquee(100, 200, 0.8)
	if fits.Active() {
		t.Fatal("content shorter than viewport must not scroll")
	}
	if off := fits.Step(time.Second); off != 0 {
		t.Fatalf("static content offset = %f", off)
	}

	scrolls := NewMarquee(500, 200, 0.5) // 30 px/s
	if !scrolls.Active() {
		t.Fatal("overflowing content must scroll")
	}
	off := scrolls.Step(2 * time.Second)
	if off < 59 || off > 61 {
		t.Fatalf("offset after 2s at 30px/s = %f, want ~60", off)
	}

	// Wraps after one full content length.
	scrolls.Step(20 * time.Second)
	if scrolls.Offset() >= 500 {
		t.Fatalf("offset %f did not wrap", scrolls.Offset())
	}
}
