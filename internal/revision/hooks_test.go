package revision

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/azzam1122112-dot/school-display/internal/models"
)

func TestSignalsBurstBumpsOnce(t *testing.T) {
	registry, _, db := setupRegistry(t)
	if err := db.AutoMigrate(&models.Announcement{}); err != nil {
		t.Fatal(err)
	}

	signals := NewSignals(registry)

	var mu sync.Mutex
	var notified []int64
	signals.Notify = func(schoolID uint, rev int64) {
		mu.Lock()
		notified = append(notified, rev)
		mu.Unlock()
	}

	if err := signals.Register(db); err != nil {
		t.Fatalf("register hooks: %v", err)
	}

	// A formset save storms the table; the debounce collapses it.
	for i := 0; i < 50; i++ {
		db.Create(&models.Announcement{SchoolID: 1, Title: "إعلان", Body: "نص", IsActive: true})
	}

	waitUntil(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(notified) >= 1
	})

	// Give stragglers a moment, then assert exactly one bump fired.
	time.Sleep(200 * time.Millisecond)
	mu.Lock()
	count := len(notified)
	rev := notified[0]
	mu.Unlock()

	if count != 1 {
		t.Fatalf("notified %d times, want 1", count)
	}
	if rev != 1 {
		t.Fatalf("broadcast revision = %d, want 1", rev)
	}
	if got := registry.Get(context.Background(), 1); got != 1 {
		t.Fatalf("registry revision = %d, want 1", got)
	}
}

func TestSignalsIgnoreUnwatchedModels(t *testing.T) {
	registry, _, db := setupRegistry(t)
	if err := db.AutoMigrate(&models.StaffUser{}); err != nil {
		t.Fatal(err)
	}

	signals := NewSignals(registry)
	fired := make(chan struct{}, 1)
	signals.Notify = func(uint, int64) { fired <- struct{}{} }
	if err := signals.Register(db); err != nil {
		t.Fatal(err)
	}

	db.Create(&models.StaffUser{Username: "support", PasswordHash: "x", Role: "support"})

	select {
	case <-fired:
		t.Fatal("staff user writes must not bump school revisions")
	case <-time.After(300 * time.Millisecond):
	}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
